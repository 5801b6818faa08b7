package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/golosretail/golos-backend/api/controllers"
	webhookcontrollers "github.com/golosretail/golos-backend/api/controllers/webhooks"
	"github.com/golosretail/golos-backend/api/middleware"
	"github.com/golosretail/golos-backend/internal/audit"
	"github.com/golosretail/golos-backend/internal/catalog"
	"github.com/golosretail/golos-backend/internal/closing"
	"github.com/golosretail/golos-backend/internal/customers"
	"github.com/golosretail/golos-backend/internal/ledger"
	internalorders "github.com/golosretail/golos-backend/internal/orders"
	"github.com/golosretail/golos-backend/internal/payments"
	"github.com/golosretail/golos-backend/internal/sales"
	"github.com/golosretail/golos-backend/internal/shipping"
	"github.com/golosretail/golos-backend/pkg/config"
	"github.com/golosretail/golos-backend/pkg/db"
	"github.com/golosretail/golos-backend/pkg/enums"
	"github.com/golosretail/golos-backend/pkg/logger"
	"github.com/golosretail/golos-backend/pkg/redis"
)

// Services bundles everything the HTTP layer depends on.
type Services struct {
	Customers customers.Service
	Catalog   catalog.Service
	Sales     sales.Service
	Orders    internalorders.Service
	Ledger    ledger.Service
	Closing   closing.Service
	Shipping  shipping.Service
	Payments  payments.Service
	Audit     audit.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	svcs Services,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbClient, redisClient))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
		r.Get("/products", controllers.CatalogList(svcs.Catalog, logg))
		r.Get("/products/{slug}", controllers.CatalogDetail(svcs.Catalog, logg))
		r.Get("/shipping/options", controllers.ShippingOptions(svcs.Shipping, logg))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/wompi", webhookcontrollers.WompiWebhook(svcs.Payments, logg))
		r.Post("/carrier", webhookcontrollers.CarrierWebhook(svcs.Shipping, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, redisClient, logg)).
			Post("/login", controllers.AuthLogin(svcs.Customers, logg))
		r.With(middleware.AuthRateLimit(registerPolicy, redisClient, logg)).
			Post("/register", controllers.AuthRegister(svcs.Customers, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Get("/ping", controllers.PrivatePing())
		r.Get("/me", controllers.AuthMe(svcs.Customers, logg))

		r.Post("/checkout", controllers.Checkout(svcs.Sales, svcs.Payments, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.OrderList(svcs.Orders, logg))
			r.Get("/{orderId}", controllers.OrderDetail(svcs.Orders, logg))
			r.Post("/{orderId}/cancel", controllers.OrderCancel(svcs.Orders, logg))
			r.Post("/{orderId}/verify-payment", controllers.OrderVerifyPayment(svcs.Orders, svcs.Payments, logg))
		})
	})

	r.Route("/api/ops/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRoles(logg, enums.ActorRoleAdmin, enums.ActorRoleStaff))

		r.Route("/inventory", func(r chi.Router) {
			r.Post("/movements", controllers.OpsRecordMovement(svcs.Ledger, logg))
			r.Get("/movements", controllers.OpsListMovements(svcs.Ledger, logg))
			r.Get("/stock", controllers.OpsVariantStock(svcs.Ledger, logg))
		})

		r.Route("/closings", func(r chi.Router) {
			r.Post("/", controllers.OpsCloseMonth(svcs.Closing, logg))
			r.Get("/", controllers.OpsSnapshots(svcs.Closing, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/advance", controllers.OpsAdvanceOrders(svcs.Orders, logg))
			r.Post("/{orderId}/status", controllers.OpsUpdateOrderStatus(svcs.Orders, logg))
			r.Post("/{orderId}/confirm", controllers.OpsConfirmSale(svcs.Sales, logg))
			r.Post("/{orderId}/shipment", controllers.OpsEnsureShipment(svcs.Shipping, logg))
			r.Get("/{orderId}/audit", controllers.OpsAuditTrail(svcs.Audit, logg))
		})
	})

	return r
}
