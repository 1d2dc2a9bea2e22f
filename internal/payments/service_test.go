package payments

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow-backend/internal/catalog"
	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/pkg/db"
	"github.com/angelmondragon/orderflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/stripe"
)

type fakeGateway struct {
	mu          sync.Mutex
	createCalls []stripe.CreateIntentInput
	refundCalls []string
	createErr   error
	refundErr   error
	beforeReply func(input stripe.CreateIntentInput)
	noMethod    bool
}

func (f *fakeGateway) CreateIntent(_ context.Context, input stripe.CreateIntentInput) (*stripe.Intent, error) {
	f.mu.Lock()
	f.createCalls = append(f.createCalls, input)
	n := len(f.createCalls)
	f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.beforeReply != nil {
		f.beforeReply(input)
	}
	id := "pi_" + uuid.NewString()[:8]
	intent := &stripe.Intent{
		ID:            id,
		ClientSecret:  id + "_secret_" + string(rune('a'+n)),
		Status:        "requires_payment_method",
		PaymentMethod: "card",
	}
	if f.noMethod {
		intent.PaymentMethod = ""
	}
	return intent, nil
}

func (f *fakeGateway) Refund(_ context.Context, paymentIntentID, _ string) (*stripe.RefundResult, error) {
	f.mu.Lock()
	f.refundCalls = append(f.refundCalls, paymentIntentID)
	f.mu.Unlock()
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	return &stripe.RefundResult{ID: "re_1", Status: "succeeded"}, nil
}

func newTestService(t *testing.T, gw *fakeGateway) (Service, *db.Client) {
	t.Helper()
	client := dbtest.Open(t)
	svc, err := NewService(ServiceParams{
		Repo:    NewRepository(client.DB()),
		Orders:  orders.NewRepository(client.DB()),
		Catalog: catalog.NewRepository(client.DB()),
		Gateway: gw,
		Tx:      client,
		Logger:  logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return svc, client
}

func TestEffectiveKey(t *testing.T) {
	id := uuid.MustParse("7b0c61c3-1b35-4d5c-9a37-9bb6c1b1d8a1")
	require.Equal(t, "order-7b0c61c3-1b35-4d5c-9a37-9bb6c1b1d8a1", EffectiveKey(id, ""))
	require.Equal(t, "order-7b0c61c3-1b35-4d5c-9a37-9bb6c1b1d8a1", EffectiveKey(id, "   "))
	require.Equal(t, "client-key", EffectiveKey(id, "client-key"))
}

func TestCreatePaymentIntentIsIdempotent(t *testing.T) {
	gw := &fakeGateway{}
	svc, client := newTestService(t, gw)
	ctx := context.Background()
	user := dbtest.SeedUser(t, client.DB(), "ada@example.com")
	order := dbtest.SeedOrder(t, client.DB(), user.ID, 2000)
	actor := Actor{UserID: user.ID, Role: enums.UserRoleCustomer}

	first, err := svc.CreatePaymentIntent(ctx, actor, order.ID, "key-1")
	require.NoError(t, err)
	require.NotEmpty(t, first.ClientSecret)
	require.False(t, first.Reused)

	second, err := svc.CreatePaymentIntent(ctx, actor, order.ID, "key-1")
	require.NoError(t, err)
	require.Equal(t, first.ClientSecret, second.ClientSecret)
	require.True(t, second.Reused)

	require.Len(t, gw.createCalls, 1)
	require.Equal(t, int64(2000), gw.createCalls[0].AmountCents)
	require.Equal(t, order.ID.String(), gw.createCalls[0].Metadata[OrderIDMetadataKey])
	require.Equal(t, "key-1", gw.createCalls[0].IdempotencyKey)

	var count int64
	require.NoError(t, client.DB().Model(&models.PaymentIntent{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	var stored models.Order
	require.NoError(t, client.DB().First(&stored, "id = ?", order.ID).Error)
	require.Equal(t, enums.PaymentStatusPending, stored.PaymentStatus)
	require.Equal(t, enums.OrderStatusPending, stored.Status, "fulfillment status untouched")
	require.Equal(t, first.ExternalIntentID, *stored.PaymentID)
	require.Equal(t, "card", *stored.PaymentMethod)
}

func TestCreatePaymentIntentAlwaysRecordsPaymentMethod(t *testing.T) {
	gw := &fakeGateway{noMethod: true}
	svc, client := newTestService(t, gw)
	ctx := context.Background()
	user := dbtest.SeedUser(t, client.DB(), "ada@example.com")
	order := dbtest.SeedOrder(t, client.DB(), user.ID, 2000)

	_, err := svc.CreatePaymentIntent(ctx, Actor{UserID: user.ID, Role: enums.UserRoleCustomer}, order.ID, "key-1")
	require.NoError(t, err)

	var stored models.Order
	require.NoError(t, client.DB().First(&stored, "id = ?", order.ID).Error)
	require.NotNil(t, stored.PaymentMethod)
	require.Equal(t, stripe.DefaultPaymentMethodType, *stored.PaymentMethod)
}

func TestCreatePaymentIntentFallbackKey(t *testing.T) {
	gw := &fakeGateway{}
	svc, client := newTestService(t, gw)
	ctx := context.Background()
	user := dbtest.SeedUser(t, client.DB(), "ada@example.com")
	order := dbtest.SeedOrder(t, client.DB(), user.ID, 2000)
	actor := Actor{UserID: user.ID}

	first, err := svc.CreatePaymentIntent(ctx, actor, order.ID, "")
	require.NoError(t, err)
	second, err := svc.CreatePaymentIntent(ctx, actor, order.ID, "")
	require.NoError(t, err)
	require.Equal(t, first.ClientSecret, second.ClientSecret)
	require.Len(t, gw.createCalls, 1)
	require.Equal(t, "order-"+order.ID.String(), gw.createCalls[0].IdempotencyKey)
}

func TestCreatePaymentIntentConcurrentWinnerIsReturned(t *testing.T) {
	gw := &fakeGateway{}
	svc, client := newTestService(t, gw)
	ctx := context.Background()
	user := dbtest.SeedUser(t, client.DB(), "ada@example.com")
	order := dbtest.SeedOrder(t, client.DB(), user.ID, 2000)

	winnerSecret := "pi_winner_secret"
	gw.beforeReply = func(input stripe.CreateIntentInput) {
		require.NoError(t, client.DB().Create(&models.PaymentIntent{
			ID:               uuid.New(),
			OrderID:          order.ID,
			IdempotencyKey:   input.IdempotencyKey,
			ExternalIntentID: "pi_winner",
			AmountCents:      2000,
			Currency:         enums.CurrencyUSD,
			Status:           enums.IntentStatusRequiresPaymentMethod,
			ClientSecret:     &winnerSecret,
		}).Error)
	}

	res, err := svc.CreatePaymentIntent(ctx, Actor{UserID: user.ID}, order.ID, "race")
	require.NoError(t, err)
	require.Equal(t, winnerSecret, res.ClientSecret)

	var count int64
	require.NoError(t, client.DB().Model(&models.PaymentIntent{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestCreatePaymentIntentFailures(t *testing.T) {
	gw := &fakeGateway{}
	svc, client := newTestService(t, gw)
	ctx := context.Background()
	user := dbtest.SeedUser(t, client.DB(), "ada@example.com")
	stranger := dbtest.SeedUser(t, client.DB(), "grace@example.com")
	order := dbtest.SeedOrder(t, client.DB(), user.ID, 2000)

	_, err := svc.CreatePaymentIntent(ctx, Actor{UserID: user.ID}, uuid.New(), "")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.CreatePaymentIntent(ctx, Actor{UserID: stranger.ID}, order.ID, "")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	gw.createErr = errors.New("card network down")
	_, err = svc.CreatePaymentIntent(ctx, Actor{UserID: user.ID}, order.ID, "")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUpstream))

	var count int64
	require.NoError(t, client.DB().Model(&models.PaymentIntent{}).Count(&count).Error)
	require.Zero(t, count, "no half-created intent")

	require.NoError(t, client.DB().Model(&models.Order{}).Where("id = ?", order.ID).Update("payment_status", enums.PaymentStatusPaid).Error)
	gw.createErr = nil
	_, err = svc.CreatePaymentIntent(ctx, Actor{UserID: user.ID}, order.ID, "")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestRefundPayment(t *testing.T) {
	gw := &fakeGateway{}
	svc, client := newTestService(t, gw)
	ctx := context.Background()
	user := dbtest.SeedUser(t, client.DB(), "ada@example.com")
	order := dbtest.SeedOrder(t, client.DB(), user.ID, 2000)
	actor := Actor{UserID: user.ID}

	_, err := svc.RefundPayment(ctx, actor, order.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNoPayment))

	_, err = svc.RefundPayment(ctx, actor, uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	require.NoError(t, client.DB().Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]any{
		"payment_id":     "pi_123",
		"payment_status": enums.PaymentStatusPaid,
		"status":         enums.OrderStatusProcessing,
	}).Error)

	res, err := svc.RefundPayment(ctx, actor, order.ID)
	require.NoError(t, err)
	require.Equal(t, "re_1", res.RefundID)
	require.Equal(t, []string{"pi_123"}, gw.refundCalls)

	var stored models.Order
	require.NoError(t, client.DB().First(&stored, "id = ?", order.ID).Error)
	require.Equal(t, enums.PaymentStatusRefunded, stored.PaymentStatus)
	require.Equal(t, "re_1", *stored.RefundID)
	require.NotNil(t, stored.RefundedAt)
	require.Equal(t, enums.OrderStatusProcessing, stored.Status, "webhook finalizes fulfillment status")
}

func TestRefundPaymentAdminAndUpstream(t *testing.T) {
	gw := &fakeGateway{refundErr: errors.New("gateway timeout")}
	svc, client := newTestService(t, gw)
	ctx := context.Background()
	user := dbtest.SeedUser(t, client.DB(), "ada@example.com")
	order := dbtest.SeedOrder(t, client.DB(), user.ID, 2000)
	require.NoError(t, client.DB().Model(&models.Order{}).Where("id = ?", order.ID).Update("payment_id", "pi_9").Error)

	_, err := svc.RefundPayment(ctx, Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}, order.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUpstream))

	var stored models.Order
	require.NoError(t, client.DB().First(&stored, "id = ?", order.ID).Error)
	require.Equal(t, enums.PaymentStatusUnpaid, stored.PaymentStatus)
}
