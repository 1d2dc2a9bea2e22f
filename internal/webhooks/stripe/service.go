// Package stripewebhook verifies and applies payment gateway webhook events.
package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/internal/paymentmethods"
	"github.com/angelmondragon/orderflow-backend/internal/payments"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/metrics"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
)

// UserIDMetadataKey identifies the local user on setup intents.
const UserIDMetadataKey = "userId"

const (
	outcomeApplied   = "applied"
	outcomeIgnored   = "ignored"
	outcomeDuplicate = "duplicate"
	outcomeFailed    = "failed"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type verifier interface {
	VerifyWebhook(payload []byte, signature string) (stripe.Event, error)
}

type ServiceParams struct {
	Verifier          verifier
	Guard             *IdempotencyGuard
	Intents           payments.Repository
	Orders            orders.Repository
	PaymentMethods    paymentmethods.Service
	Outbox            outbox.Emitter
	TransactionRunner txRunner
	Metrics           *metrics.Metrics
	Logger            *logger.Logger
}

type Service struct {
	verifier       verifier
	guard          *IdempotencyGuard
	intents        payments.Repository
	orders         orders.Repository
	paymentMethods paymentmethods.Service
	outbox         outbox.Emitter
	txRunner       txRunner
	metrics        *metrics.Metrics
	logg           *logger.Logger
	now            func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Verifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook verifier required")
	}
	if params.Intents == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment intent repo required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repo required")
	}
	if params.PaymentMethods == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment method service required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		verifier:       params.Verifier,
		guard:          params.Guard,
		intents:        params.Intents,
		orders:         params.Orders,
		paymentMethods: params.PaymentMethods,
		outbox:         params.Outbox,
		txRunner:       params.TransactionRunner,
		metrics:        params.Metrics,
		logg:           params.Logger,
		now:            func() time.Time { return time.Now().UTC() },
	}, nil
}

// HandleWebhook verifies the raw payload before decoding it, drops redelivered
// event ids and applies the event. Unknown event types and events for
// entities this system does not know are accepted without changes.
func (s *Service) HandleWebhook(ctx context.Context, signature string, payload []byte) error {
	event, err := s.verifier.VerifyWebhook(payload, signature)
	if err != nil {
		s.metrics.ObserveWebhook("unverified", outcomeFailed)
		s.logg.Warn(ctx, "webhook.signature_invalid")
		return pkgerrors.Wrap(pkgerrors.CodeInvalidSignature, err, "invalid webhook signature")
	}

	eventType := string(event.Type)
	ctx = s.logg.WithFields(ctx, map[string]any{"event_id": event.ID, "event_type": eventType})

	claimed := false
	if s.guard != nil && event.ID != "" {
		fresh, guardErr := s.guard.Claim(ctx, event.ID, eventType)
		switch {
		case guardErr != nil:
			// State guards below still make the event safe to apply.
			s.logg.Warn(ctx, "webhook.idempotency_unavailable")
		case !fresh:
			s.metrics.ObserveWebhook(eventType, outcomeDuplicate)
			s.logg.Info(ctx, "webhook.duplicate")
			return nil
		default:
			claimed = true
		}
	}

	outcome, err := s.HandleEvent(ctx, &event)
	if err != nil {
		if claimed {
			if delErr := s.guard.Release(ctx, event.ID); delErr != nil {
				s.logg.Warn(ctx, "webhook.idempotency_release_failed")
			}
		}
		s.metrics.ObserveWebhook(eventType, outcomeFailed)
		s.logg.Error(ctx, "webhook.failed", err)
		return err
	}

	s.metrics.ObserveWebhook(eventType, outcome)
	s.logg.Info(s.logg.WithField(ctx, "outcome", outcome), "webhook.processed")
	return nil
}

// HandleEvent applies an already verified event and reports the outcome label.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) (string, error) {
	if event == nil || event.Data == nil {
		return outcomeIgnored, nil
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
		}
		return s.paymentSucceeded(ctx, &pi)
	case stripe.EventTypePaymentIntentPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
		}
		return s.paymentFailed(ctx, &pi)
	case stripe.EventTypeChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge event")
		}
		return s.chargeRefunded(ctx, &charge)
	case stripe.EventTypeSetupIntentSucceeded:
		var si stripe.SetupIntent
		if err := json.Unmarshal(event.Data.Raw, &si); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode setup intent event")
		}
		return s.setupSucceeded(ctx, &si)
	default:
		return outcomeIgnored, nil
	}
}

func (s *Service) paymentSucceeded(ctx context.Context, pi *stripe.PaymentIntent) (string, error) {
	outcome := outcomeIgnored
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		intent, err := s.intents.WithTx(tx).FindByExternalID(ctx, pi.ID)
		if err != nil {
			return ignoreMissing(err)
		}
		status := enums.IntentStatus(pi.Status)
		if !status.IsValid() {
			status = enums.IntentStatusSucceeded
		}
		if _, err := s.intents.WithTx(tx).UpdateStatus(ctx, pi.ID, status, enums.IntentStatusSources(status)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment intent")
		}

		order, err := s.orderForIntent(ctx, tx, pi.Metadata, intent)
		if err != nil || order == nil {
			return err
		}
		paidAt := s.now()
		changed, err := s.orders.WithTx(tx).UpdatePayment(ctx, order.ID, enums.OpenPaymentStatuses, map[string]any{
			"payment_status": enums.PaymentStatusPaid,
			"paid_at":        paidAt,
			"status":         enums.OrderStatusProcessing,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
		outcome = outcomeApplied
		if !changed {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderPaidEvent{
				OrderID:          order.ID,
				ExternalIntentID: pi.ID,
				AmountCents:      order.TotalCents,
				PaidAt:           paidAt,
			},
		})
	})
	return outcome, err
}

func (s *Service) paymentFailed(ctx context.Context, pi *stripe.PaymentIntent) (string, error) {
	outcome := outcomeIgnored
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		intent, err := s.intents.WithTx(tx).FindByExternalID(ctx, pi.ID)
		if err != nil {
			return ignoreMissing(err)
		}
		if _, err := s.intents.WithTx(tx).UpdateStatus(ctx, pi.ID, enums.IntentStatusPaymentFailed, enums.IntentStatusSources(enums.IntentStatusPaymentFailed)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment intent")
		}

		order, err := s.orderForIntent(ctx, tx, pi.Metadata, intent)
		if err != nil || order == nil {
			return err
		}
		changed, err := s.orders.WithTx(tx).UpdatePayment(ctx, order.ID, []enums.PaymentStatus{
			enums.PaymentStatusUnpaid,
			enums.PaymentStatusPending,
		}, map[string]any{"payment_status": enums.PaymentStatusFailed})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order payment failed")
		}
		outcome = outcomeApplied
		if !changed {
			return nil
		}
		failure := ""
		if pi.LastPaymentError != nil {
			failure = pi.LastPaymentError.Msg
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregatePaymentIntent,
			AggregateID:   intent.ID,
			Data: payloads.PaymentFailedEvent{
				OrderID:          order.ID,
				ExternalIntentID: pi.ID,
				FailureMessage:   failure,
			},
		})
	})
	return outcome, err
}

// chargeRefunded accepts the charge's payment_intent either as an id string
// or as an expanded object; both decode into PaymentIntent.ID.
func (s *Service) chargeRefunded(ctx context.Context, charge *stripe.Charge) (string, error) {
	if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
		return outcomeIgnored, nil
	}
	piID := charge.PaymentIntent.ID
	refundID := ""
	if charge.Refunds != nil && len(charge.Refunds.Data) > 0 && charge.Refunds.Data[0] != nil {
		refundID = charge.Refunds.Data[0].ID
	}

	outcome := outcomeIgnored
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		intents := s.intents.WithTx(tx)
		ordersTx := s.orders.WithTx(tx)

		var order *models.Order
		intent, err := intents.FindByExternalID(ctx, piID)
		switch {
		case err == nil:
			if _, err := intents.UpdateStatus(ctx, piID, enums.IntentStatusRefunded, enums.IntentStatusSources(enums.IntentStatusRefunded)); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment intent")
			}
			order, err = s.orderForIntent(ctx, tx, charge.Metadata, intent)
			if err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			found, findErr := ordersTx.FindByPaymentID(ctx, piID)
			if findErr != nil {
				return ignoreMissing(findErr)
			}
			order = found
		default:
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment intent")
		}
		if order == nil {
			return nil
		}

		outcome = outcomeApplied
		if order.PaymentStatus == enums.PaymentStatusRefunded && order.Status == enums.OrderStatusCancelled {
			return nil
		}
		refundedAt := s.now()
		updates := map[string]any{
			"payment_status": enums.PaymentStatusRefunded,
			"status":         enums.OrderStatusCancelled,
		}
		if order.RefundedAt == nil {
			updates["refunded_at"] = refundedAt
		} else {
			refundedAt = *order.RefundedAt
		}
		if order.RefundID == nil && refundID != "" {
			updates["refund_id"] = refundID
		}
		if _, err := ordersTx.UpdatePayment(ctx, order.ID, nil, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order refunded")
		}
		if order.RefundID != nil {
			refundID = *order.RefundID
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderRefunded,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderRefundedEvent{
				OrderID:    order.ID,
				RefundID:   refundID,
				RefundedAt: refundedAt,
			},
		})
	})
	return outcome, err
}

func (s *Service) setupSucceeded(ctx context.Context, si *stripe.SetupIntent) (string, error) {
	if si.PaymentMethod == nil || si.PaymentMethod.ID == "" {
		return outcomeIgnored, nil
	}
	userID, err := uuid.Parse(si.Metadata[UserIDMetadataKey])
	if err != nil || userID == uuid.Nil {
		return outcomeIgnored, nil
	}
	if _, _, err := s.paymentMethods.SaveFromGateway(ctx, userID, si.PaymentMethod.ID); err != nil {
		return "", err
	}
	return outcomeApplied, nil
}

// orderForIntent resolves the order through the orderId metadata, falling back
// to the order recorded on the local intent. A missing order yields nil.
func (s *Service) orderForIntent(ctx context.Context, tx *gorm.DB, metadata map[string]string, intent *models.PaymentIntent) (*models.Order, error) {
	orderID, err := uuid.Parse(metadata[payments.OrderIDMetadataKey])
	if err != nil && intent != nil {
		orderID = intent.OrderID
	}
	if orderID == uuid.Nil {
		return nil, nil
	}
	order, err := s.orders.WithTx(tx).FindByID(ctx, orderID)
	if err != nil {
		return nil, ignoreMissing(err)
	}
	return order, nil
}

func ignoreMissing(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "webhook lookup")
}
