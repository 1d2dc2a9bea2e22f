package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/redis"
)

// Manager remembers which outbox events a handler already completed so a
// redelivered row does not repeat its side effect. Keys follow the
// `of:idempotency:outbox:handled:<handler>:<event_id>` pattern.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewManager builds a guard whose markers expire after ttl (0 keeps them forever).
func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// Claim marks the event as handled by handler. It returns false when another
// delivery already claimed it.
func (m *Manager) Claim(ctx context.Context, handler string, eventID uuid.UUID) (bool, error) {
	key, err := m.handledKey(handler, eventID)
	if err != nil {
		return false, err
	}
	return m.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), m.ttl)
}

// Release drops the marker after a failed attempt so the next delivery runs the handler again.
func (m *Manager) Release(ctx context.Context, handler string, eventID uuid.UUID) error {
	key, err := m.handledKey(handler, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) handledKey(handler string, eventID uuid.UUID) (string, error) {
	if handler == "" {
		return "", errors.New("handler name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey(fmt.Sprintf("outbox:handled:%s", handler), eventID.String()), nil
}
