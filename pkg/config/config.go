package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Payment      PaymentConfig
	Commission   CommissionConfig
	Cron         CronConfig
	Webhook      WebhookConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Commission.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MEALMARKET_APP_ENV" required:"true"`
	Port         string `envconfig:"MEALMARKET_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MEALMARKET_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MEALMARKET_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MEALMARKET_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MEALMARKET_DB_DSN"`
	Driver string `envconfig:"MEALMARKET_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MEALMARKET_DB_HOST"`
	LegacyPort     int    `envconfig:"MEALMARKET_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MEALMARKET_DB_USER"`
	LegacyPassword string `envconfig:"MEALMARKET_DB_PASSWORD"`
	LegacyName     string `envconfig:"MEALMARKET_DB_NAME"`
	LegacySSLMode  string `envconfig:"MEALMARKET_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MEALMARKET_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MEALMARKET_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MEALMARKET_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MEALMARKET_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the configured driver is the embedded sqlite engine.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"MEALMARKET_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MEALMARKET_REDIS_ADDR"`
	Password     string        `envconfig:"MEALMARKET_REDIS_PASSWORD"`
	DB           int           `envconfig:"MEALMARKET_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MEALMARKET_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MEALMARKET_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MEALMARKET_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MEALMARKET_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MEALMARKET_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig guards the command surface used by the bot and operators.
type JWTConfig struct {
	Secret            string `envconfig:"MEALMARKET_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MEALMARKET_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MEALMARKET_JWT_EXPIRATION_MINUTES" default:"60"`
}

type PaymentConfig struct {
	Enabled       bool   `envconfig:"MEALMARKET_PAYMENT_GATEWAY_ENABLED" default:"false"`
	ProviderToken string `envconfig:"MEALMARKET_PAYMENT_PROVIDER_TOKEN"`
	GatewayURL    string `envconfig:"MEALMARKET_PAYMENT_GATEWAY_URL"`
	APIKey        string `envconfig:"MEALMARKET_PAYMENT_GATEWAY_API_KEY"`
	Secret        string `envconfig:"MEALMARKET_PAYMENT_GATEWAY_SECRET"`
	WebhookSecret string `envconfig:"MEALMARKET_PAYMENT_WEBHOOK_SECRET"`
	SuccessURL    string `envconfig:"MEALMARKET_PAYMENT_SUCCESS_URL"`
	FailureURL    string `envconfig:"MEALMARKET_PAYMENT_FAILURE_URL"`
	Currency      string `envconfig:"MEALMARKET_PAYMENT_CURRENCY" default:"KZT"`
}

type CommissionConfig struct {
	DefaultRate        string `envconfig:"MEALMARKET_COMMISSION_DEFAULT_RATE" default:"0.15"`
	SettlementTimezone string `envconfig:"MEALMARKET_SETTLEMENT_TIMEZONE" default:"Asia/Almaty"`
}

// Rate returns the configured fallback commission rate.
func (c CommissionConfig) Rate() decimal.Decimal {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.DefaultRate))
	if err != nil {
		return decimal.RequireFromString(DefaultCommissionRate)
	}
	return rate
}

// Location resolves the settlement timezone, falling back to UTC.
func (c CommissionConfig) Location() *time.Location {
	name := strings.TrimSpace(c.SettlementTimezone)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c CommissionConfig) validate() error {
	if strings.TrimSpace(c.DefaultRate) == "" {
		return nil
	}
	rate, err := decimal.NewFromString(strings.TrimSpace(c.DefaultRate))
	if err != nil {
		return fmt.Errorf("%s: %w", EnvCommissionDefaultRate, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be within [0,1], got %s", EnvCommissionDefaultRate, rate)
	}
	return nil
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"MEALMARKET_CRON_INTERVAL" default:"5m"`
	PendingOrderTTL time.Duration `envconfig:"MEALMARKET_CRON_PENDING_ORDER_TTL" default:"30m"`
	LockTTL         time.Duration `envconfig:"MEALMARKET_CRON_LOCK_TTL" default:"10m"`
	// MetricsAddr is where the worker serves /metrics; empty disables it.
	MetricsAddr string `envconfig:"MEALMARKET_CRON_METRICS_ADDR" default:":9091"`
}

type WebhookConfig struct {
	IdempotencyTTL time.Duration `envconfig:"MEALMARKET_WEBHOOK_IDEMPOTENCY_TTL" default:"168h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MEALMARKET_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MEALMARKET_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"MEALMARKET_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MEALMARKET_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic              string `envconfig:"MEALMARKET_PUBSUB_ORDERS_TOPIC" default:"mm-order-events"`
	PayoutsTopic             string `envconfig:"MEALMARKET_PUBSUB_PAYOUTS_TOPIC" default:"mm-payout-events"`
	NotificationSubscription string `envconfig:"MEALMARKET_PUBSUB_NOTIFICATION_SUBSCRIPTION"`
	// EmulatorHost points the client at a local Pub/Sub emulator (host:port).
	EmulatorHost string `envconfig:"MEALMARKET_PUBSUB_EMULATOR_HOST"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MEALMARKET_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MEALMARKET_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MEALMARKET_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required when %s=%s", EnvDBDSN, EnvDBDriver, DBDriverSQLite)
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
