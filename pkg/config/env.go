package config

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	DefaultCommissionRate = "0.15"
)

const (
	EnvAppEnv = "MEALMARKET_APP_ENV"
	EnvPort   = "MEALMARKET_APP_PORT"

	EnvDBDSN    = "MEALMARKET_DB_DSN"
	EnvDBDriver = "MEALMARKET_DB_DRIVER"
	EnvDBHost   = "MEALMARKET_DB_HOST"
	EnvDBUser   = "MEALMARKET_DB_USER"
	EnvDBName   = "MEALMARKET_DB_NAME"

	EnvRedisURL = "MEALMARKET_REDIS_URL"

	EnvJWTSecret = "MEALMARKET_JWT_SECRET"
	EnvJWTIssuer = "MEALMARKET_JWT_ISSUER"

	EnvPaymentEnabled       = "MEALMARKET_PAYMENT_GATEWAY_ENABLED"
	EnvPaymentProviderToken = "MEALMARKET_PAYMENT_PROVIDER_TOKEN"

	EnvCommissionDefaultRate = "MEALMARKET_COMMISSION_DEFAULT_RATE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
