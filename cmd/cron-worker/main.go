package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/golosretail/golos-backend/internal/audit"
	internalauth "github.com/golosretail/golos-backend/internal/auth"
	"github.com/golosretail/golos-backend/internal/catalog"
	"github.com/golosretail/golos-backend/internal/closing"
	"github.com/golosretail/golos-backend/internal/cron"
	"github.com/golosretail/golos-backend/internal/ledger"
	"github.com/golosretail/golos-backend/internal/orders"
	"github.com/golosretail/golos-backend/internal/sales"
	"github.com/golosretail/golos-backend/internal/shipping"
	"github.com/golosretail/golos-backend/pkg/config"
	"github.com/golosretail/golos-backend/pkg/db"
	"github.com/golosretail/golos-backend/pkg/db/models"
	pkgerrors "github.com/golosretail/golos-backend/pkg/errors"
	"github.com/golosretail/golos-backend/pkg/logger"
	"github.com/golosretail/golos-backend/pkg/metrics"
	"github.com/golosretail/golos-backend/pkg/migrate"
	"github.com/golosretail/golos-backend/pkg/redis"
)

type ordersDelegate struct {
	svc orders.Service
}

func (d *ordersDelegate) UpdateStatus(ctx context.Context, input orders.UpdateStatusInput) (*models.Sale, error) {
	if d.svc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service not wired")
	}
	return d.svc.UpdateStatus(ctx, input)
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	gormDB := dbClient.DB()

	auditSvc, err := audit.NewService(audit.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create audit service", err)
		os.Exit(1)
	}

	ledgerRepo := ledger.NewRepository(gormDB)
	closingSvc, err := closing.NewService(dbClient, closing.NewRepository(gormDB), ledgerRepo, auditSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create closing service", err)
		os.Exit(1)
	}

	provider, err := shipping.NewProvider(cfg.Shipping)
	if err != nil {
		logg.Error(context.Background(), "failed to create shipping provider", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(gormDB)
	ordersHook := &ordersDelegate{}

	shippingSvc, err := shipping.NewService(logg, dbClient, shipping.NewRepository(gormDB), ordersRepo, ordersHook, provider, auditSvc, cfg.Shipping)
	if err != nil {
		logg.Error(context.Background(), "failed to create shipping service", err)
		os.Exit(1)
	}

	salesSvc, err := sales.NewService(dbClient, sales.NewRepository(gormDB), ledgerRepo, catalog.NewRepository(gormDB), closingSvc, shippingSvc, auditSvc, cfg.Wompi.Currency)
	if err != nil {
		logg.Error(context.Background(), "failed to create sales service", err)
		os.Exit(1)
	}

	ordersSvc, err := orders.NewService(dbClient, ordersRepo, auditSvc, internalauth.NewDefaultPolicy(), salesSvc, cfg.Automation)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}
	ordersHook.svc = ordersSvc

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker"), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	advanceJob, err := cron.NewAdvanceOrdersJob(cron.AdvanceOrdersJobParams{
		Logger:  logg,
		Orders:  ordersSvc,
		Metrics: metricsCollector,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create advance-orders job", err)
		os.Exit(1)
	}
	closeJob, err := cron.NewCloseMonthJob(cron.CloseMonthJobParams{
		Logger:  logg,
		Closing: closingSvc,
		Metrics: metricsCollector,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create close-month job", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(advanceJob, closeJob),
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
