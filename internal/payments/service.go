// Package payments creates gateway payment intents for orders and issues refunds.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/catalog"
	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/pkg/db"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/metrics"
	"github.com/angelmondragon/orderflow-backend/pkg/stripe"
)

// OrderIDMetadataKey tags gateway intents with the local order id.
const OrderIDMetadataKey = "orderId"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Actor is the caller of a payment operation. Admins may act on any order.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// IntentResult is returned to the client to confirm the payment.
type IntentResult struct {
	ClientSecret     string             `json:"client_secret"`
	ExternalIntentID string             `json:"payment_intent_id"`
	Status           enums.IntentStatus `json:"status"`
	Reused           bool               `json:"-"`
}

// RefundResult reports the gateway refund.
type RefundResult struct {
	RefundID string `json:"refund_id"`
	Status   string `json:"status"`
}

// Service is the payment orchestrator for the request path.
type Service interface {
	CreatePaymentIntent(ctx context.Context, actor Actor, orderID uuid.UUID, idempotencyKey string) (*IntentResult, error)
	RefundPayment(ctx context.Context, actor Actor, orderID uuid.UUID) (*RefundResult, error)
}

// ServiceParams groups the payment service dependencies.
type ServiceParams struct {
	Repo    Repository
	Orders  orders.Repository
	Catalog catalog.Gateway
	Gateway Gateway
	Tx      txRunner
	Metrics *metrics.Metrics
	Logger  *logger.Logger
}

type service struct {
	repo    Repository
	orders  orders.Repository
	catalog catalog.Gateway
	gateway Gateway
	tx      txRunner
	metrics *metrics.Metrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewService validates params and builds the payment service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payment intent repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog gateway required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:    params.Repo,
		orders:  params.Orders,
		catalog: params.Catalog,
		gateway: params.Gateway,
		tx:      params.Tx,
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// EffectiveKey returns the caller key or the deterministic per-order fallback.
func EffectiveKey(orderID uuid.UUID, idempotencyKey string) string {
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		return key
	}
	return "order-" + orderID.String()
}

func (s *service) CreatePaymentIntent(ctx context.Context, actor Actor, orderID uuid.UUID, idempotencyKey string) (*IntentResult, error) {
	order, err := s.loadOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	key := EffectiveKey(order.ID, idempotencyKey)
	ctx = s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{"idempotency_key": key})

	existing, err := s.repo.FindByIdempotencyKey(ctx, key)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment intent")
	}
	if existing != nil && existing.ClientSecret != nil && *existing.ClientSecret != "" {
		if existing.OrderID != order.ID {
			return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key already used for another order")
		}
		s.metrics.ObservePaymentIntent("reused")
		s.logg.Info(ctx, "payment.intent_reused")
		return intentResult(existing, true), nil
	}

	if order.PaymentStatus.IsSettled() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order payment is already %s", order.PaymentStatus))
	}

	input := stripe.CreateIntentInput{
		AmountCents:    order.TotalCents,
		Currency:       order.Currency.String(),
		Metadata:       map[string]string{OrderIDMetadataKey: order.ID.String()},
		IdempotencyKey: key,
	}
	if user, err := s.catalog.FindUser(ctx, order.UserID); err == nil && user.StripeCustomerID != nil {
		input.CustomerID = *user.StripeCustomerID
	}

	created, err := s.gateway.CreateIntent(ctx, input)
	if err != nil {
		s.metrics.ObservePaymentIntent("failed")
		s.logg.Error(ctx, "payment.intent_create_failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "create payment intent")
	}

	secret := created.ClientSecret
	record := &models.PaymentIntent{
		OrderID:          order.ID,
		IdempotencyKey:   key,
		ExternalIntentID: created.ID,
		AmountCents:      order.TotalCents,
		Currency:         order.Currency,
		Status:           intentStatus(created.Status),
		ClientSecret:     &secret,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if existing != nil {
			record.ID = existing.ID
			if err := repo.Update(ctx, existing.ID, map[string]any{
				"external_intent_id": record.ExternalIntentID,
				"status":             record.Status,
				"client_secret":      secret,
			}); err != nil {
				return err
			}
		} else if err := repo.Create(ctx, record); err != nil {
			return err
		}

		method := created.PaymentMethod
		if method == "" {
			method = stripe.DefaultPaymentMethodType
		}
		updates := map[string]any{
			"payment_id":     created.ID,
			"payment_status": enums.PaymentStatusPending,
			"payment_method": method,
		}
		_, err := s.orders.WithTx(tx).UpdatePayment(ctx, order.ID, enums.OpenPaymentStatuses, updates)
		return err
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			stored, findErr := s.repo.FindByIdempotencyKey(ctx, key)
			if findErr == nil && stored.ClientSecret != nil {
				s.metrics.ObservePaymentIntent("reused")
				s.logg.Info(ctx, "payment.intent_reused")
				return intentResult(stored, true), nil
			}
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist payment intent")
	}

	s.metrics.ObservePaymentIntent("created")
	s.logg.Info(s.logg.WithField(ctx, "payment_intent_id", created.ID), "payment.intent_created")
	return intentResult(record, false), nil
}

// RefundPayment refunds the order's payment in full. Only the payment
// side-channel columns are written; the charge.refunded webhook moves the
// fulfillment status.
func (s *service) RefundPayment(ctx context.Context, actor Actor, orderID uuid.UUID) (*RefundResult, error) {
	order, err := s.loadOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentID == nil || *order.PaymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeNoPayment, "order has no payment")
	}
	ctx = s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{"payment_intent_id": *order.PaymentID})

	refund, err := s.gateway.Refund(ctx, *order.PaymentID, "refund-"+order.ID.String())
	if err != nil {
		s.logg.Error(ctx, "payment.refund_failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "refund payment")
	}

	_, err = s.orders.UpdatePayment(ctx, order.ID, nil, map[string]any{
		"payment_status": enums.PaymentStatusRefunded,
		"refund_id":      refund.ID,
		"refunded_at":    s.now(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund")
	}

	s.logg.Info(s.logg.WithField(ctx, "refund_id", refund.ID), "payment.refunded")
	return &RefundResult{RefundID: refund.ID, Status: refund.Status}, nil
}

func (s *service) loadOrder(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if actor.Role != enums.UserRoleAdmin && order.UserID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}
	return order, nil
}

func intentResult(intent *models.PaymentIntent, reused bool) *IntentResult {
	out := &IntentResult{
		ExternalIntentID: intent.ExternalIntentID,
		Status:           intent.Status,
		Reused:           reused,
	}
	if intent.ClientSecret != nil {
		out.ClientSecret = *intent.ClientSecret
	}
	return out
}

func intentStatus(raw string) enums.IntentStatus {
	status := enums.IntentStatus(raw)
	if status.IsValid() {
		return status
	}
	return enums.IntentStatusRequiresPaymentMethod
}
