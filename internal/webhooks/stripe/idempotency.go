package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/orderflow-backend/pkg/redis"
)

// DefaultEventTTL covers Stripe's retry horizon for undelivered events.
const DefaultEventTTL = 72 * time.Hour

// IdempotencyGuard remembers which Stripe event ids were already applied.
// Each marker holds "<event type>@<claim time>" to help when tracing replays.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
	now   func() time.Time
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	case strings.TrimSpace(scope) == "":
		return nil, errors.New("scope is required")
	}
	if ttl == 0 {
		ttl = DefaultEventTTL
	}
	return &IdempotencyGuard{store: store, ttl: ttl, scope: scope, now: time.Now}, nil
}

// Claim reserves eventID for this delivery. It returns false when an earlier
// delivery already holds the claim.
func (g *IdempotencyGuard) Claim(ctx context.Context, eventID, eventType string) (bool, error) {
	key, err := g.key(eventID)
	if err != nil {
		return false, err
	}
	marker := eventType + "@" + g.now().UTC().Format(time.RFC3339)
	claimed, err := g.store.SetNX(ctx, key, marker, g.ttl)
	if err != nil {
		return false, fmt.Errorf("claim event %s: %w", eventID, err)
	}
	return claimed, nil
}

// Release drops a claim after a failed apply so Stripe's retry is processed.
func (g *IdempotencyGuard) Release(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *IdempotencyGuard) key(eventID string) (string, error) {
	if eventID == "" {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey(g.scope, eventID), nil
}
