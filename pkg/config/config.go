package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "GOLOS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "GOLOS_DB_DSN"
	EnvDBHost = "GOLOS_DB_HOST"
	EnvDBUser = "GOLOS_DB_USER"
	EnvDBName = "GOLOS_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Wompi         WompiConfig
	Shipping      ShippingConfig
	Automation    AutomationConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"GOLOS_APP_ENV" required:"true"`
	Port         string `envconfig:"GOLOS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"GOLOS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"GOLOS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"GOLOS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"GOLOS_DB_DSN"`
	Driver string `envconfig:"GOLOS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"GOLOS_DB_HOST"`
	LegacyPort     int    `envconfig:"GOLOS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"GOLOS_DB_USER"`
	LegacyPassword string `envconfig:"GOLOS_DB_PASSWORD"`
	LegacyName     string `envconfig:"GOLOS_DB_NAME"`
	LegacySSLMode  string `envconfig:"GOLOS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"GOLOS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GOLOS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GOLOS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GOLOS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"GOLOS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"GOLOS_REDIS_ADDR"`
	Password     string        `envconfig:"GOLOS_REDIS_PASSWORD"`
	DB           int           `envconfig:"GOLOS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GOLOS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GOLOS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GOLOS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GOLOS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GOLOS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"GOLOS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"GOLOS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"GOLOS_JWT_EXPIRATION_MINUTES" default:"60"`
}

// AccessTokenTTL returns the access token TTL configured in minutes.
func (j JWTConfig) AccessTokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"GOLOS_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"GOLOS_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"GOLOS_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"GOLOS_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"GOLOS_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"GOLOS_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"GOLOS_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"GOLOS_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"GOLOS_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"GOLOS_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"GOLOS_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"GOLOS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"GOLOS_AUTO_MIGRATE" default:"false"`
}

// WompiConfig carries the payment gateway integration settings.
type WompiConfig struct {
	PublicKey        string        `envconfig:"GOLOS_WOMPI_PUBLIC_KEY"`
	IntegritySecret  string        `envconfig:"GOLOS_WOMPI_INTEGRITY_SECRET"`
	EventsSecret     string        `envconfig:"GOLOS_WOMPI_EVENTS_SECRET"`
	APIBaseURL       string        `envconfig:"GOLOS_WOMPI_API_BASE_URL" default:"https://sandbox.wompi.co/v1"`
	CheckoutBaseURL  string        `envconfig:"GOLOS_WOMPI_CHECKOUT_BASE_URL" default:"https://checkout.wompi.co/p/"`
	RedirectURL      string        `envconfig:"GOLOS_WOMPI_REDIRECT_URL"`
	Currency         string        `envconfig:"GOLOS_WOMPI_CURRENCY" default:"COP"`
	RequestTimeout   time.Duration `envconfig:"GOLOS_WOMPI_REQUEST_TIMEOUT" default:"15s"`
}

// Configured reports whether the gateway can build checkouts.
func (w WompiConfig) Configured() bool {
	return w.PublicKey != "" && w.IntegritySecret != ""
}

// WebhookConfigured reports whether incoming events can be verified.
func (w WompiConfig) WebhookConfigured() bool {
	return w.EventsSecret != ""
}

// ShippingConfig carries the carrier integration settings.
type ShippingConfig struct {
	Provider         string        `envconfig:"GOLOS_SHIPPING_PROVIDER" default:"mock"`
	Services         string        `envconfig:"GOLOS_SHIPPING_SERVICES" default:"eco:12000:72,standard:18000:48,express:25000:24"`
	MaxDeliveryHours int           `envconfig:"GOLOS_SHIPPING_MAX_DELIVERY_HOURS" default:"72"`
	APIBaseURL       string        `envconfig:"GOLOS_SHIPPING_API_BASE_URL"`
	CreatePath       string        `envconfig:"GOLOS_SHIPPING_CREATE_PATH" default:"/shipments"`
	APIKey           string        `envconfig:"GOLOS_SHIPPING_API_KEY"`
	AuthHeader       string        `envconfig:"GOLOS_SHIPPING_AUTH_HEADER" default:"Authorization"`
	AuthPrefix       string        `envconfig:"GOLOS_SHIPPING_AUTH_PREFIX" default:"Bearer "`
	WebhookSecret    string        `envconfig:"GOLOS_SHIPPING_WEBHOOK_SECRET"`
	CarrierName      string        `envconfig:"GOLOS_SHIPPING_CARRIER_NAME" default:"LocalCarrier"`
	Currency         string        `envconfig:"GOLOS_SHIPPING_CURRENCY" default:"COP"`
	RequestTimeout   time.Duration `envconfig:"GOLOS_SHIPPING_REQUEST_TIMEOUT" default:"15s"`
}

// ProviderMode returns the normalized provider mode (mock/http).
func (s ShippingConfig) ProviderMode() string {
	mode := strings.TrimSpace(strings.ToLower(s.Provider))
	if mode == "" {
		return "mock"
	}
	return mode
}

// AutomationConfig tunes the time-driven order transitions.
type AutomationConfig struct {
	Enabled             bool `envconfig:"GOLOS_AUTO_ADVANCE_ENABLED" default:"true"`
	ToProcessingMinutes int  `envconfig:"GOLOS_AUTO_TO_PROCESSING_MINUTES" default:"5"`
	ToShippedMinutes    int  `envconfig:"GOLOS_AUTO_TO_SHIPPED_MINUTES" default:"120"`
	ToDeliveredMinutes  int  `envconfig:"GOLOS_AUTO_TO_DELIVERED_MINUTES" default:"1440"`
	ToCompletedMinutes  int  `envconfig:"GOLOS_AUTO_TO_COMPLETED_MINUTES" default:"2880"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"GOLOS_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"GOLOS_CRON_LOCK_TTL" default:"2h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
