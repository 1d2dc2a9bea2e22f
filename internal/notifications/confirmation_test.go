package notifications

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/registry"
)

type stubUsers struct {
	user *models.User
}

func (s stubUsers) FindUser(context.Context, uuid.UUID) (*models.User, error) {
	if s.user == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.user, nil
}

type flakySender struct {
	failures int
	calls    int
}

func (s *flakySender) SendOrderConfirmation(context.Context, Recipient, payloads.OrderCreatedEvent) error {
	s.calls++
	if s.calls <= s.failures {
		return errors.New("smtp timeout")
	}
	return nil
}

func newHandler(t *testing.T, users userLookup, sender Sender) (*OrderConfirmationHandler, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Output: &buf})
	h, err := NewOrderConfirmationHandler(users, sender, 2, logg)
	require.NoError(t, err)
	return h, &buf
}

func orderCreated() *registry.ResolvedEvent {
	order := sampleOrder()
	return &registry.ResolvedEvent{Payload: &order}
}

func knownUser() stubUsers {
	return stubUsers{user: &models.User{ID: uuid.New(), Email: "ada@example.com", FirstName: "Ada", LastName: "Lovelace"}}
}

func TestConfirmationRetriesOnce(t *testing.T) {
	sender := &flakySender{failures: 1}
	h, logs := newHandler(t, knownUser(), sender)

	require.NoError(t, h.Handle(context.Background(), orderCreated()))
	require.Equal(t, 2, sender.calls)
	require.Contains(t, logs.String(), "email.order_confirmation.attempt_failed")
	require.NotContains(t, logs.String(), "permanently_failed")
}

func TestConfirmationExhaustionIsTerminal(t *testing.T) {
	sender := &flakySender{failures: 5}
	h, logs := newHandler(t, knownUser(), sender)

	err := h.Handle(context.Background(), orderCreated())
	require.Error(t, err)
	require.Equal(t, 2, sender.calls, "no more than two attempts")

	var terminal registry.NonRetryableError
	require.ErrorAs(t, err, &terminal)
	require.Equal(t, enums.OutboxDLQReasonEmailExhausted, terminal.DLQReason())
	require.Contains(t, logs.String(), "email.order_confirmation.permanently_failed")
}

func TestConfirmationMissingUserIsNotRetried(t *testing.T) {
	sender := &flakySender{}
	h, _ := newHandler(t, stubUsers{}, sender)

	err := h.Handle(context.Background(), orderCreated())
	var terminal registry.NonRetryableError
	require.ErrorAs(t, err, &terminal)
	require.Equal(t, enums.OutboxDLQReasonNonRetryable, terminal.DLQReason())
	require.Zero(t, sender.calls)
}

func TestConfirmationRejectsForeignPayload(t *testing.T) {
	h, _ := newHandler(t, knownUser(), &flakySender{})
	err := h.Handle(context.Background(), &registry.ResolvedEvent{Payload: &payloads.OrderPaidEvent{}})
	var terminal registry.NonRetryableError
	require.ErrorAs(t, err, &terminal)
}
