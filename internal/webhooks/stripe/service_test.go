package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/catalog"
	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/internal/paymentmethods"
	"github.com/angelmondragon/orderflow-backend/internal/payments"
	"github.com/angelmondragon/orderflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	pkgstripe "github.com/angelmondragon/orderflow-backend/pkg/stripe"
)

const testSecret = "whsec_test"

type memStore struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemStore() *memStore { return &memStore{keys: map[string]string{}} }

func (m *memStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key], nil
}

func (m *memStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memStore) IdempotencyKey(scope, id string) string {
	return "of:idempotency:" + scope + ":" + id
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

type stubCards struct{}

func (stubCards) GetPaymentMethodDetails(_ context.Context, id string) (*pkgstripe.PaymentMethodDetails, error) {
	return &pkgstripe.PaymentMethodDetails{ID: id, Brand: "visa", Last4: "4242"}, nil
}

func (stubCards) ListPaymentMethods(context.Context, string) ([]pkgstripe.PaymentMethodDetails, error) {
	return nil, nil
}

func (stubCards) DetachPaymentMethod(context.Context, string) error { return nil }

type fixture struct {
	svc   *Service
	conn  *gorm.DB
	store *memStore
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	gateway, err := pkgstripe.NewGateway(pkgstripe.NewTestClient(testSecret))
	require.NoError(t, err)
	store := newMemStore()
	guard, err := NewIdempotencyGuard(store, DefaultEventTTL, "stripe-webhook")
	require.NoError(t, err)
	methods, err := paymentmethods.NewService(paymentmethods.ServiceParams{
		Repo:    paymentmethods.NewRepository(client.DB()),
		Users:   catalog.NewRepository(client.DB()),
		Gateway: stubCards{},
		Logger:  logg,
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Verifier:          gateway,
		Guard:             guard,
		Intents:           payments.NewRepository(client.DB()),
		Orders:            orders.NewRepository(client.DB()),
		PaymentMethods:    methods,
		Outbox:            outbox.NewService(outbox.NewRepository(client.DB()), logg),
		TransactionRunner: client,
		Logger:            logg,
	})
	require.NoError(t, err)
	return fixture{svc: svc, conn: client.DB(), store: store}
}

func eventPayload(t *testing.T, id, eventType string, object map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"api_version": "2025-01-01",
		"created":     time.Now().Unix(),
		"data":        map[string]any{"object": object},
	})
	require.NoError(t, err)
	return raw
}

func deliver(t *testing.T, f fixture, payload []byte) error {
	t.Helper()
	return f.svc.HandleWebhook(context.Background(), pkgstripe.SignPayload(payload, testSecret, time.Now()), payload)
}

func seedPendingOrder(t *testing.T, conn *gorm.DB, externalID string) models.Order {
	t.Helper()
	user := dbtest.SeedUser(t, conn, uuid.NewString()[:8]+"@example.com")
	order := dbtest.SeedOrder(t, conn, user.ID, 2000)
	secret := externalID + "_secret"
	require.NoError(t, conn.Create(&models.PaymentIntent{
		ID:               uuid.New(),
		OrderID:          order.ID,
		IdempotencyKey:   "order-" + order.ID.String(),
		ExternalIntentID: externalID,
		AmountCents:      2000,
		Currency:         enums.CurrencyUSD,
		Status:           enums.IntentStatusRequiresPaymentMethod,
		ClientSecret:     &secret,
	}).Error)
	require.NoError(t, conn.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]any{
		"payment_id":     externalID,
		"payment_status": enums.PaymentStatusPending,
	}).Error)
	return order
}

func loadOrder(t *testing.T, conn *gorm.DB, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, conn.First(&order, "id = ?", id).Error)
	return order
}

func loadIntent(t *testing.T, conn *gorm.DB, externalID string) models.PaymentIntent {
	t.Helper()
	var intent models.PaymentIntent
	require.NoError(t, conn.First(&intent, "external_intent_id = ?", externalID).Error)
	return intent
}

func countEvents(t *testing.T, conn *gorm.DB, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	payload := eventPayload(t, "evt_1", "payment_intent.succeeded", map[string]any{"id": "pi_1", "object": "payment_intent"})

	err := f.svc.HandleWebhook(context.Background(), pkgstripe.SignPayload(payload, "whsec_other", time.Now()), payload)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidSignature))

	err = f.svc.HandleWebhook(context.Background(), "", payload)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidSignature))

	tampered := append([]byte{}, payload...)
	signature := pkgstripe.SignPayload(payload, testSecret, time.Now())
	tampered[len(tampered)-2] = ' '
	err = f.svc.HandleWebhook(context.Background(), signature, tampered)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidSignature))
}

func TestPaymentSucceededIsIdempotent(t *testing.T) {
	f := newFixture(t)
	order := seedPendingOrder(t, f.conn, "pi_ok")
	object := map[string]any{
		"id":       "pi_ok",
		"object":   "payment_intent",
		"status":   "succeeded",
		"metadata": map[string]string{payments.OrderIDMetadataKey: order.ID.String()},
	}

	require.NoError(t, deliver(t, f, eventPayload(t, "evt_paid", "payment_intent.succeeded", object)))
	first := loadOrder(t, f.conn, order.ID)
	require.Equal(t, enums.PaymentStatusPaid, first.PaymentStatus)
	require.Equal(t, enums.OrderStatusProcessing, first.Status)
	require.NotNil(t, first.PaidAt)
	require.Equal(t, enums.IntentStatusSucceeded, loadIntent(t, f.conn, "pi_ok").Status)

	require.NoError(t, deliver(t, f, eventPayload(t, "evt_paid", "payment_intent.succeeded", object)))
	f.store.keys = map[string]string{}
	require.NoError(t, deliver(t, f, eventPayload(t, "evt_paid_again", "payment_intent.succeeded", object)))

	second := loadOrder(t, f.conn, order.ID)
	require.Equal(t, first.PaymentStatus, second.PaymentStatus)
	require.Equal(t, first.Status, second.Status)
	require.True(t, first.PaidAt.Equal(*second.PaidAt))
	require.Equal(t, int64(1), countEvents(t, f.conn, enums.EventOrderPaid))
}

func TestPaymentFailedLeavesFulfillmentStatus(t *testing.T) {
	f := newFixture(t)
	order := seedPendingOrder(t, f.conn, "pi_fail")
	object := map[string]any{
		"id":                 "pi_fail",
		"object":             "payment_intent",
		"status":             "requires_payment_method",
		"metadata":           map[string]string{payments.OrderIDMetadataKey: order.ID.String()},
		"last_payment_error": map[string]any{"message": "card declined"},
	}

	require.NoError(t, deliver(t, f, eventPayload(t, "evt_fail", "payment_intent.payment_failed", object)))
	stored := loadOrder(t, f.conn, order.ID)
	require.Equal(t, enums.PaymentStatusFailed, stored.PaymentStatus)
	require.Equal(t, enums.OrderStatusPending, stored.Status)
	require.Equal(t, enums.IntentStatusPaymentFailed, loadIntent(t, f.conn, "pi_fail").Status)
	require.Equal(t, int64(1), countEvents(t, f.conn, enums.EventPaymentFailed))
}

func TestChargeRefundedWithStringPaymentIntent(t *testing.T) {
	f := newFixture(t)
	order := seedPendingOrder(t, f.conn, "pi_123")
	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]any{
		"payment_status": enums.PaymentStatusPaid,
		"status":         enums.OrderStatusProcessing,
	}).Error)

	object := map[string]any{
		"id":             "ch_1",
		"object":         "charge",
		"payment_intent": "pi_123",
		"refunds": map[string]any{
			"object": "list",
			"data":   []map[string]any{{"id": "re_1", "object": "refund"}},
		},
	}
	require.NoError(t, deliver(t, f, eventPayload(t, "evt_refund", "charge.refunded", object)))

	stored := loadOrder(t, f.conn, order.ID)
	require.Equal(t, enums.PaymentStatusRefunded, stored.PaymentStatus)
	require.Equal(t, enums.OrderStatusCancelled, stored.Status)
	require.Equal(t, "re_1", *stored.RefundID)
	require.NotNil(t, stored.RefundedAt)
	require.Equal(t, enums.IntentStatusRefunded, loadIntent(t, f.conn, "pi_123").Status)

	f.store.keys = map[string]string{}
	require.NoError(t, deliver(t, f, eventPayload(t, "evt_refund", "charge.refunded", object)))
	require.Equal(t, int64(1), countEvents(t, f.conn, enums.EventOrderRefunded))
}

func TestLateIntentEventsDoNotRewindRefund(t *testing.T) {
	f := newFixture(t)
	order := seedPendingOrder(t, f.conn, "pi_late")
	intent := func(status string) map[string]any {
		return map[string]any{
			"id":       "pi_late",
			"object":   "payment_intent",
			"status":   status,
			"metadata": map[string]string{payments.OrderIDMetadataKey: order.ID.String()},
		}
	}
	refund := map[string]any{"id": "ch_late", "object": "charge", "payment_intent": "pi_late"}

	require.NoError(t, deliver(t, f, eventPayload(t, "evt_late_paid", "payment_intent.succeeded", intent("succeeded"))))
	require.NoError(t, deliver(t, f, eventPayload(t, "evt_late_refund", "charge.refunded", refund)))
	require.Equal(t, enums.IntentStatusRefunded, loadIntent(t, f.conn, "pi_late").Status)

	require.NoError(t, deliver(t, f, eventPayload(t, "evt_late_failed", "payment_intent.payment_failed", intent("requires_payment_method"))))
	require.NoError(t, deliver(t, f, eventPayload(t, "evt_late_paid_again", "payment_intent.succeeded", intent("succeeded"))))

	require.Equal(t, enums.IntentStatusRefunded, loadIntent(t, f.conn, "pi_late").Status)
	stored := loadOrder(t, f.conn, order.ID)
	require.Equal(t, enums.PaymentStatusRefunded, stored.PaymentStatus)
	require.Equal(t, enums.OrderStatusCancelled, stored.Status)
	require.Zero(t, countEvents(t, f.conn, enums.EventPaymentFailed))
	require.Equal(t, int64(1), countEvents(t, f.conn, enums.EventOrderPaid))
}

func TestLateFailureDoesNotDemoteSucceededIntent(t *testing.T) {
	f := newFixture(t)
	order := seedPendingOrder(t, f.conn, "pi_race")
	paid := map[string]any{
		"id":       "pi_race",
		"object":   "payment_intent",
		"status":   "succeeded",
		"metadata": map[string]string{payments.OrderIDMetadataKey: order.ID.String()},
	}
	failed := map[string]any{
		"id":       "pi_race",
		"object":   "payment_intent",
		"status":   "requires_payment_method",
		"metadata": map[string]string{payments.OrderIDMetadataKey: order.ID.String()},
	}

	require.NoError(t, deliver(t, f, eventPayload(t, "evt_race_paid", "payment_intent.succeeded", paid)))
	require.NoError(t, deliver(t, f, eventPayload(t, "evt_race_failed", "payment_intent.payment_failed", failed)))

	require.Equal(t, enums.IntentStatusSucceeded, loadIntent(t, f.conn, "pi_race").Status)
	require.Equal(t, enums.PaymentStatusPaid, loadOrder(t, f.conn, order.ID).PaymentStatus)
}

func TestChargeRefundedWithExpandedPaymentIntent(t *testing.T) {
	f := newFixture(t)
	order := seedPendingOrder(t, f.conn, "pi_obj")
	object := map[string]any{
		"id":             "ch_2",
		"object":         "charge",
		"payment_intent": map[string]any{"id": "pi_obj", "object": "payment_intent"},
	}
	require.NoError(t, deliver(t, f, eventPayload(t, "evt_refund_obj", "charge.refunded", object)))

	stored := loadOrder(t, f.conn, order.ID)
	require.Equal(t, enums.PaymentStatusRefunded, stored.PaymentStatus)
	require.Equal(t, enums.OrderStatusCancelled, stored.Status)
}

func TestSetupIntentSucceededSavesMethodOnce(t *testing.T) {
	f := newFixture(t)
	user := dbtest.SeedUser(t, f.conn, "ada@example.com")
	object := map[string]any{
		"id":             "seti_1",
		"object":         "setup_intent",
		"payment_method": "pm_1",
		"metadata":       map[string]string{UserIDMetadataKey: user.ID.String()},
	}

	require.NoError(t, deliver(t, f, eventPayload(t, "evt_setup", "setup_intent.succeeded", object)))
	f.store.keys = map[string]string{}
	require.NoError(t, deliver(t, f, eventPayload(t, "evt_setup", "setup_intent.succeeded", object)))

	var methods []models.PaymentMethod
	require.NoError(t, f.conn.Where("user_id = ?", user.ID).Find(&methods).Error)
	require.Len(t, methods, 1)
	require.Equal(t, "pm_1", methods[0].ExternalMethodID)
}

func TestUnknownAndUnmatchedEventsAreAccepted(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, deliver(t, f, eventPayload(t, "evt_unknown", "customer.created", map[string]any{"id": "cus_1", "object": "customer"})))

	object := map[string]any{
		"id":       "pi_foreign",
		"object":   "payment_intent",
		"status":   "succeeded",
		"metadata": map[string]string{payments.OrderIDMetadataKey: uuid.NewString()},
	}
	require.NoError(t, deliver(t, f, eventPayload(t, "evt_foreign", "payment_intent.succeeded", object)))

	refund := map[string]any{"id": "ch_x", "object": "charge", "payment_intent": "pi_missing"}
	require.NoError(t, deliver(t, f, eventPayload(t, "evt_missing", "charge.refunded", refund)))
}
