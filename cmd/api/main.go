package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/golosretail/golos-backend/api/routes"
	"github.com/golosretail/golos-backend/internal/audit"
	internalauth "github.com/golosretail/golos-backend/internal/auth"
	"github.com/golosretail/golos-backend/internal/catalog"
	"github.com/golosretail/golos-backend/internal/closing"
	"github.com/golosretail/golos-backend/internal/customers"
	"github.com/golosretail/golos-backend/internal/ledger"
	"github.com/golosretail/golos-backend/internal/orders"
	"github.com/golosretail/golos-backend/internal/payments"
	"github.com/golosretail/golos-backend/internal/sales"
	"github.com/golosretail/golos-backend/internal/shipping"
	"github.com/golosretail/golos-backend/pkg/config"
	"github.com/golosretail/golos-backend/pkg/db"
	"github.com/golosretail/golos-backend/pkg/db/models"
	pkgerrors "github.com/golosretail/golos-backend/pkg/errors"
	"github.com/golosretail/golos-backend/pkg/logger"
	"github.com/golosretail/golos-backend/pkg/migrate"
	"github.com/golosretail/golos-backend/pkg/redis"
)

// ordersDelegate lets the shipping service hold an order-transition hook
// before the orders service exists. Shipping, sales and orders reference each
// other in a cycle that has to be broken somewhere at wiring time.
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

	gormDB := dbClient.DB()

	auditSvc, err := audit.NewService(audit.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create audit service", err)
		os.Exit(1)
	}

	ledgerRepo := ledger.NewRepository(gormDB)
	ledgerSvc, err := ledger.NewService(dbClient, ledgerRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	catalogRepo := catalog.NewRepository(gormDB)
	catalogSvc, err := catalog.NewService(catalogRepo, ledgerSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}

	closingSvc, err := closing.NewService(dbClient, closing.NewRepository(gormDB), ledgerRepo, auditSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create closing service", err)
		os.Exit(1)
	}

	customersSvc, err := customers.NewService(customers.NewRepository(gormDB), cfg.JWT, cfg.Password)
	if err != nil {
		logg.Error(context.Background(), "failed to create customer service", err)
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

	salesSvc, err := sales.NewService(dbClient, sales.NewRepository(gormDB), ledgerRepo, catalogRepo, closingSvc, shippingSvc, auditSvc, cfg.Wompi.Currency)
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

	gateway, err := payments.NewGateway(cfg.Wompi)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment gateway", err)
		os.Exit(1)
	}

	paymentsSvc, err := payments.NewService(logg, dbClient, ordersRepo, gateway, salesSvc, shippingSvc, auditSvc, cfg.Wompi)
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, routes.Services{
			Customers: customersSvc,
			Catalog:   catalogSvc,
			Sales:     salesSvc,
			Orders:    ordersSvc,
			Ledger:    ledgerSvc,
			Closing:   closingSvc,
			Shipping:  shippingSvc,
			Payments:  paymentsSvc,
			Audit:     auditSvc,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
