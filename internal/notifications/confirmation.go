package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/registry"
)

const (
	orderConfirmationHandler = "order-confirmation-email"
	defaultEmailAttempts     = 2
)

type userLookup interface {
	FindUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// OrderConfirmationHandler emails the customer when an order is created.
// Delivery is retried a fixed number of times without backoff; once the
// attempts are spent the event is reported as terminal.
type OrderConfirmationHandler struct {
	users    userLookup
	sender   Sender
	attempts int
	logg     *logger.Logger
}

func NewOrderConfirmationHandler(users userLookup, sender Sender, attempts int, logg *logger.Logger) (*OrderConfirmationHandler, error) {
	if users == nil {
		return nil, fmt.Errorf("user lookup required")
	}
	if sender == nil {
		return nil, fmt.Errorf("email sender required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if attempts <= 0 {
		attempts = defaultEmailAttempts
	}
	return &OrderConfirmationHandler{users: users, sender: sender, attempts: attempts, logg: logg}, nil
}

// Name identifies the handler in idempotency markers.
func (h *OrderConfirmationHandler) Name() string {
	return orderConfirmationHandler
}

// EventType is the outbox event this handler consumes.
func (h *OrderConfirmationHandler) EventType() enums.OutboxEventType {
	return enums.EventOrderCreated
}

// Handle sends the confirmation for a resolved order_created event.
func (h *OrderConfirmationHandler) Handle(ctx context.Context, event *registry.ResolvedEvent) error {
	payload, ok := event.Payload.(*payloads.OrderCreatedEvent)
	if !ok || payload == nil {
		return registry.NewNonRetryableError(fmt.Errorf("unexpected payload %T", event.Payload))
	}
	ctx = h.logg.WithFields(ctx, map[string]any{
		"order_id": payload.OrderID.String(),
		"user_id":  payload.UserID.String(),
		"event_id": event.Envelope.EventID,
	})

	user, err := h.users.FindUser(ctx, payload.UserID)
	if err != nil {
		// the user row is read-only for this service; a missing row never reappears
		return registry.NewNonRetryableError(fmt.Errorf("load order owner: %w", err))
	}
	to := Recipient{
		Email: user.Email,
		Name:  strings.TrimSpace(user.FirstName + " " + user.LastName),
	}

	var errs error
	for attempt := 1; attempt <= h.attempts; attempt++ {
		err := h.sender.SendOrderConfirmation(ctx, to, *payload)
		if err == nil {
			h.logg.Info(h.logg.WithField(ctx, "attempt", attempt), "email.order_confirmation.sent")
			return nil
		}
		errs = multierr.Append(errs, err)
		h.logg.Warn(h.logg.WithFields(ctx, map[string]any{
			"attempt": attempt,
			"error":   err.Error(),
		}), "email.order_confirmation.attempt_failed")
	}

	final := fmt.Errorf("order confirmation not delivered after %d attempts: %w", h.attempts, errs)
	h.logg.Error(ctx, "email.order_confirmation.permanently_failed", final)
	return registry.NewTerminalError(enums.OutboxDLQReasonEmailExhausted, final)
}
