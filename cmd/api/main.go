package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/asbolsyn/mealmarket-backend/api/routes"
	"github.com/asbolsyn/mealmarket-backend/internal/commission"
	"github.com/asbolsyn/mealmarket-backend/internal/confirmation"
	"github.com/asbolsyn/mealmarket-backend/internal/earnings"
	"github.com/asbolsyn/mealmarket-backend/internal/meals"
	"github.com/asbolsyn/mealmarket-backend/internal/orders"
	"github.com/asbolsyn/mealmarket-backend/internal/payments"
	"github.com/asbolsyn/mealmarket-backend/internal/payouts"
	"github.com/asbolsyn/mealmarket-backend/internal/tracking"
	"github.com/asbolsyn/mealmarket-backend/internal/webhooks"
	"github.com/asbolsyn/mealmarket-backend/pkg/config"
	"github.com/asbolsyn/mealmarket-backend/pkg/db"
	"github.com/asbolsyn/mealmarket-backend/pkg/enums"
	"github.com/asbolsyn/mealmarket-backend/pkg/logger"
	"github.com/asbolsyn/mealmarket-backend/pkg/metrics"
	"github.com/asbolsyn/mealmarket-backend/pkg/migrate"
	"github.com/asbolsyn/mealmarket-backend/pkg/outbox"
	"github.com/asbolsyn/mealmarket-backend/pkg/redis"
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

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	orderRepo := orders.NewRepository(dbClient.DB())
	mealRepo := meals.NewRepository(dbClient.DB())
	earningsRepo := earnings.NewRepository(dbClient.DB())
	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	tracker, err := tracking.NewService(tracking.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create tracking service", err)
		os.Exit(1)
	}

	commissionService, err := commission.NewService(commission.ServiceParams{
		Repository:  commission.NewRepository(dbClient.DB()),
		DB:          dbClient,
		DefaultRate: cfg.Commission.Rate(),
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create commission service", err)
		os.Exit(1)
	}
	if err := commissionService.EnsureDefault(context.Background()); err != nil {
		logg.Error(context.Background(), "failed to seed default commission rate", err)
		os.Exit(1)
	}

	ledger, err := earnings.NewService(earnings.ServiceParams{
		Repository: earningsRepo,
		Meals:      mealRepo,
		Rates:      commissionService,
		Tracker:    tracker,
		DB:         dbClient,
		Location:   cfg.Commission.Location(),
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create earnings ledger", err)
		os.Exit(1)
	}

	orderService, err := orders.NewService(orders.ServiceParams{
		Repository: orderRepo,
		Meals:      mealRepo,
		Earnings:   ledger,
		Outbox:     emitter,
		Tracker:    tracker,
		DB:         dbClient,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	gateway := payments.NewGateway(cfg.Payment)
	paymentService, err := payments.NewService(payments.ServiceParams{
		Gateway: gateway,
		Orders:  orderRepo,
		Meals:   mealRepo,
		Metrics: paymentMetrics,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	processor, err := confirmation.NewProcessor(confirmation.ProcessorParams{
		Orders:    orderRepo,
		Meals:     mealRepo,
		Inventory: meals.NewInventory(),
		Outbox:    emitter,
		Tracker:   tracker,
		DB:        dbClient,
		Metrics:   paymentMetrics,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create confirmation processor", err)
		os.Exit(1)
	}

	guard, err := webhooks.NewIdempotencyGuard(redisClient, cfg.Webhook.IdempotencyTTL, webhooks.Scope)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook idempotency guard", err)
		os.Exit(1)
	}
	webhookService, err := webhooks.NewService(webhooks.ServiceParams{
		Processor: processor,
		Verifier:  payments.NewVerifier(cfg.Payment.WebhookSecret),
		Guard:     guard,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	payoutService, err := payouts.NewService(payouts.ServiceParams{
		Repository: payouts.NewRepository(dbClient.DB()),
		Earnings:   earningsRepo,
		Outbox:     emitter,
		Tracker:    tracker,
		DB:         dbClient,
		Currency:   enums.Currency(cfg.Payment.Currency),
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payouts service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	if backend, ok := gateway.Backend(); ok {
		logg.Info(logg.WithFields(ctx, map[string]any{"payment_backend": backend}), "payment gateway configured")
	} else {
		logg.Warn(ctx, "payment gateway disabled; orders cannot be paid")
	}
	logg.Info(ctx, "starting api server")

	handler := routes.NewRouter(
		cfg,
		logg,
		dbClient,
		redisClient,
		redisClient,
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		webhookService,
		processor,
		orderService,
		paymentService,
		ledger,
		payoutService,
		commissionService,
		outbox.NewDLQRepository(dbClient.DB()),
	)

	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
