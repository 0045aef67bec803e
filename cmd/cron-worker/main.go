package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/asbolsyn/mealmarket-backend/internal/commission"
	"github.com/asbolsyn/mealmarket-backend/internal/cron"
	"github.com/asbolsyn/mealmarket-backend/internal/earnings"
	"github.com/asbolsyn/mealmarket-backend/internal/meals"
	"github.com/asbolsyn/mealmarket-backend/internal/orders"
	"github.com/asbolsyn/mealmarket-backend/internal/payouts"
	"github.com/asbolsyn/mealmarket-backend/internal/tracking"
	"github.com/asbolsyn/mealmarket-backend/pkg/config"
	"github.com/asbolsyn/mealmarket-backend/pkg/db"
	"github.com/asbolsyn/mealmarket-backend/pkg/enums"
	"github.com/asbolsyn/mealmarket-backend/pkg/logger"
	"github.com/asbolsyn/mealmarket-backend/pkg/metrics"
	"github.com/asbolsyn/mealmarket-backend/pkg/migrate"
	"github.com/asbolsyn/mealmarket-backend/pkg/outbox"
	"github.com/asbolsyn/mealmarket-backend/pkg/redis"
)


const serviceName = "cron-worker"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: config: %v\n", serviceName, err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName
	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": serviceName})

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "cron worker stopped", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer multierr.AppendInvoke(&err, multierr.Close(dbClient))

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer multierr.AppendInvoke(&err, multierr.Close(redisClient))

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(serviceName), cfg.Cron.LockTTL)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}
	jobs, err := buildRegistry(cfg, logg, dbClient)
	if err != nil {
		return fmt.Errorf("cron jobs: %w", err)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: jobs,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(promRegistry),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	if addr := cfg.Cron.MetricsAddr; addr != "" {
		stopMetrics := serveMetrics(ctx, logg, addr, promRegistry)
		defer stopMetrics()
	}

	logg.Info(logg.WithField(ctx, "jobs", jobs.Names()), "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// serveMetrics exposes the worker's registry until the returned func runs.
func serveMetrics(ctx context.Context, logg *logger.Logger, addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics listener failed", err)
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	orderRepo := orders.NewRepository(dbClient.DB())
	mealRepo := meals.NewRepository(dbClient.DB())
	earningsRepo := earnings.NewRepository(dbClient.DB())
	outboxRepo := outbox.NewRepository(dbClient.DB())
	emitter := outbox.NewService(outboxRepo, logg)

	tracker, err := tracking.NewService(tracking.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, fmt.Errorf("tracking service: %w", err)
	}
	rates, err := commission.NewService(commission.ServiceParams{
		Repository:  commission.NewRepository(dbClient.DB()),
		DB:          dbClient,
		DefaultRate: cfg.Commission.Rate(),
		Logger:      logg,
	})
	if err != nil {
		return nil, fmt.Errorf("commission service: %w", err)
	}
	ledger, err := earnings.NewService(earnings.ServiceParams{
		Repository: earningsRepo,
		Meals:      mealRepo,
		Rates:      rates,
		Tracker:    tracker,
		DB:         dbClient,
		Location:   cfg.Commission.Location(),
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("earnings ledger: %w", err)
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
		return nil, fmt.Errorf("orders service: %w", err)
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
		return nil, fmt.Errorf("payouts service: %w", err)
	}

	mealExpiry, err := cron.NewMealExpiryJob(mealRepo)
	if err != nil {
		return nil, err
	}
	orderTTL, err := cron.NewOrderTTLJob(cron.OrderTTLJobParams{
		Orders: orderService,
		TTL:    cfg.Cron.PendingOrderTTL,
		Logger: logg,
	})
	if err != nil {
		return nil, err
	}
	backfill, err := cron.NewEarningsBackfillJob(orderService, ledger, 0)
	if err != nil {
		return nil, err
	}
	rollup, err := cron.NewPayoutRollupJob(payoutService, cfg.Commission.Location())
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(dbClient, outboxRepo, 0)
	if err != nil {
		return nil, err
	}
	return cron.NewRegistry(mealExpiry, orderTTL, backfill, rollup, retention), nil
}
