package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/orderflow-backend/api/routes"
	"github.com/angelmondragon/orderflow-backend/internal/cart"
	"github.com/angelmondragon/orderflow-backend/internal/catalog"
	"github.com/angelmondragon/orderflow-backend/internal/invoices"
	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/internal/paymentmethods"
	"github.com/angelmondragon/orderflow-backend/internal/payments"
	"github.com/angelmondragon/orderflow-backend/internal/promotions"
	stripewebhook "github.com/angelmondragon/orderflow-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/db"
	"github.com/angelmondragon/orderflow-backend/pkg/env"
	"github.com/angelmondragon/orderflow-backend/pkg/instance"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/metrics"
	"github.com/angelmondragon/orderflow-backend/pkg/migrate"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/redis"
	"github.com/angelmondragon/orderflow-backend/pkg/storage"
	"github.com/angelmondragon/orderflow-backend/pkg/storage/gcs"
	"github.com/angelmondragon/orderflow-backend/pkg/storage/local"
	"github.com/angelmondragon/orderflow-backend/pkg/stripe"
)

const (
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 5 * time.Second
	webhookGuardScope = "stripe-webhook"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	boot := context.Background()

	dbClient, err := db.New(boot, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(boot, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("run dev migrations: %w", err)
	}

	redisClient, err := redis.New(boot, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	stripeClient, err := stripe.NewClient(boot, cfg.Stripe, logg)
	if err != nil {
		return fmt.Errorf("bootstrap stripe: %w", err)
	}
	stripeGateway, err := stripe.NewGateway(stripeClient)
	if err != nil {
		return err
	}

	documents, closeDocuments, err := openDocumentStore(boot, cfg, logg)
	if err != nil {
		return fmt.Errorf("bootstrap document storage: %w", err)
	}
	defer func() { err = multierr.Append(err, closeDocuments()) }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(registry)

	gormDB := dbClient.DB()
	catalogRepo := catalog.NewRepository(gormDB)
	cartRepo := cart.NewRepository(gormDB)
	ordersRepo := orders.NewRepository(gormDB)
	paymentsRepo := payments.NewRepository(gormDB)
	emitter := outbox.NewService(outbox.NewRepository(gormDB), logg)

	cartService, err := cart.NewService(cartRepo, dbClient, catalogRepo, logg)
	if err != nil {
		return err
	}

	promotionService, err := promotions.NewService(promotions.NewRepository(gormDB), dbClient, logg)
	if err != nil {
		return err
	}

	orderService, err := orders.NewService(ordersRepo, cartRepo, catalogRepo, dbClient, emitter, logg)
	if err != nil {
		return err
	}

	paymentService, err := payments.NewService(payments.ServiceParams{
		Repo:    paymentsRepo,
		Orders:  ordersRepo,
		Catalog: catalogRepo,
		Gateway: stripeGateway,
		Tx:      dbClient,
		Metrics: appMetrics,
		Logger:  logg,
	})
	if err != nil {
		return err
	}

	paymentMethodService, err := paymentmethods.NewService(paymentmethods.ServiceParams{
		Repo:    paymentmethods.NewRepository(gormDB),
		Users:   catalogRepo,
		Gateway: stripeGateway,
		Logger:  logg,
	})
	if err != nil {
		return err
	}

	invoiceService, err := invoices.NewService(invoices.ServiceParams{
		Repo:     invoices.NewRepository(gormDB),
		Orders:   ordersRepo,
		Users:    catalogRepo,
		Numbers:  invoices.NewNumberGenerator(redisClient),
		Renderer: invoices.NewPDFRenderer(),
		Storage:  documents,
		Outbox:   emitter,
		Tx:       dbClient,
		Config:   cfg.Invoice,
		Logger:   logg,
	})
	if err != nil {
		return err
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Webhooks.IdempotencyTTL, webhookGuardScope)
	if err != nil {
		return err
	}
	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Verifier:          stripeClient,
		Guard:             webhookGuard,
		Intents:           paymentsRepo,
		Orders:            ordersRepo,
		PaymentMethods:    paymentMethodService,
		Outbox:            emitter,
		TransactionRunner: dbClient,
		Metrics:           appMetrics,
		Logger:            logg,
	})
	if err != nil {
		return err
	}

	addr := ":" + env.First(cfg.App.Port, "PORT")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.ID(),
	})

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: readHeaderTimeout,
		Handler: routes.NewRouter(cfg, logg,
			routes.Infra{DB: dbClient, Redis: redisClient, Gatherer: registry},
			routes.Services{
				Cart:           cartService,
				Promotions:     promotionService,
				Orders:         orderService,
				Payments:       paymentService,
				PaymentMethods: paymentMethodService,
				Invoices:       invoiceService,
				StripeWebhook:  webhookService,
			},
		),
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logg.Info(ctx, "api server shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// openDocumentStore picks the invoice PDF backend named by ORDERFLOW_STORAGE_DRIVER.
func openDocumentStore(ctx context.Context, cfg *config.Config, logg *logger.Logger) (storage.Store, func() error, error) {
	noop := func() error { return nil }
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "gcs":
		client, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
		if err != nil {
			return nil, noop, err
		}
		return client, client.Close, nil
	case "", "local":
		store, err := local.NewStore(cfg.Storage.LocalDir)
		if err != nil {
			return nil, noop, err
		}
		logg.Info(logg.WithField(ctx, "dir", cfg.Storage.LocalDir), "local document storage initialized")
		return store, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
