package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/orderflow-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/orderflow-backend/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/orderflow-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/orderflow-backend/api/controllers/webhooks"
	"github.com/angelmondragon/orderflow-backend/api/middleware"
	"github.com/angelmondragon/orderflow-backend/internal/cart"
	"github.com/angelmondragon/orderflow-backend/internal/invoices"
	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/internal/paymentmethods"
	"github.com/angelmondragon/orderflow-backend/internal/payments"
	"github.com/angelmondragon/orderflow-backend/internal/promotions"
	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/redis"
)

// Services groups everything the HTTP layer dispatches to.
type Services struct {
	Cart           cart.Service
	Promotions     promotions.Service
	Orders         orders.Service
	Payments       payments.Service
	PaymentMethods paymentmethods.Service
	Invoices       invoices.Service
	StripeWebhook  webhookcontrollers.StripeWebhookService
}

// RedisStore is the slice of the Redis client the HTTP layer needs.
type RedisStore interface {
	redis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
}

// Infra carries the shared clients used by middleware and health checks.
type Infra struct {
	DB       controllers.Pinger
	Redis    RedisStore
	Gatherer prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, infra Infra, svc Services) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	promoPolicy := middleware.NewRateLimitPolicy(
		"promo",
		cfg.RateLimit.PromoWindow,
		cfg.RateLimit.PromoIPLimit,
		cfg.RateLimit.PromoUserLimit,
	)

	readiness := map[string]controllers.Pinger{"db": infra.DB}
	if infra.Redis != nil {
		readiness["redis"] = infra.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	if infra.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(infra.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Post("/api/v1/webhooks/stripe", webhookcontrollers.StripeWebhook(svc.StripeWebhook, logg))

	r.Group(func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.JWT, logg))

		r.Get("/api/v1/cart", cartcontrollers.CartFetch(svc.Cart, logg))
		r.Post("/api/v1/cart/items", cartcontrollers.CartAddItem(svc.Cart, logg))
		r.Put("/api/v1/cart/items/{productId}", cartcontrollers.CartUpdateItem(svc.Cart, logg))
		r.Delete("/api/v1/cart/items/{productId}", cartcontrollers.CartRemoveItem(svc.Cart, logg))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		// Runs after Auth so stored responses are scoped to the caller.
		r.Use(middleware.Idempotency(infra.Redis, logg))

		r.Post("/api/v1/cart/merge", cartcontrollers.CartMerge(svc.Cart, logg))

		r.With(middleware.RateLimit(promoPolicy, infra.Redis, logg)).
			Post("/api/v1/promotions/apply", controllers.PromotionApply(svc.Promotions, logg))

		r.Post("/api/v1/orders", ordercontrollers.Create(svc.Orders, logg))
		r.Get("/api/v1/orders", ordercontrollers.List(svc.Orders, logg))
		r.Get("/api/v1/orders/{orderId}", ordercontrollers.Detail(svc.Orders, logg))
		r.Post("/api/v1/orders/{orderId}/payment-intent", ordercontrollers.CreatePaymentIntent(svc.Payments, logg))
		r.Post("/api/v1/orders/{orderId}/refund", ordercontrollers.Refund(svc.Payments, logg))
		r.Get("/api/v1/orders/{orderId}/invoice", ordercontrollers.InvoicePDF(svc.Invoices, logg))
		r.Patch("/api/v1/orders/{orderId}/invoice", ordercontrollers.ModifyInvoice(svc.Invoices, logg))
		r.Post("/api/v1/orders/{orderId}/invoice/void", ordercontrollers.VoidInvoice(svc.Invoices, logg))

		r.Get("/api/v1/payment-methods", controllers.PaymentMethodsList(svc.PaymentMethods, logg))
		r.Delete("/api/v1/payment-methods/{id}", controllers.PaymentMethodDetach(svc.PaymentMethods, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
			r.Post("/api/v1/admin/promotions", controllers.AdminPromotionCreate(svc.Promotions, logg))
			r.Delete("/api/v1/admin/promotions/{code}", controllers.AdminPromotionDeactivate(svc.Promotions, logg))
		})
	})

	return r
}
