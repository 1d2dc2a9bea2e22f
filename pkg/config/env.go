package config

// EnvPrefix is passed to envconfig; every field carries its full variable name.
const EnvPrefix = "ORDERFLOW"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv       = "ORDERFLOW_APP_ENV"
	EnvPort         = "ORDERFLOW_APP_PORT"
	EnvLogLevel     = "ORDERFLOW_LOG_LEVEL"
	EnvDBDSN        = "ORDERFLOW_DB_DSN"
	EnvDBHost       = "ORDERFLOW_DB_HOST"
	EnvDBPort       = "ORDERFLOW_DB_PORT"
	EnvDBUser       = "ORDERFLOW_DB_USER"
	EnvDBPassword   = "ORDERFLOW_DB_PASSWORD"
	EnvDBName       = "ORDERFLOW_DB_NAME"
	EnvUseSQLite    = "ORDERFLOW_USE_SQLITE"
	EnvRedisURL     = "ORDERFLOW_REDIS_URL"
	EnvJWTSecret    = "ORDERFLOW_JWT_SECRET"
	EnvJWTIssuer    = "ORDERFLOW_JWT_ISSUER"
	EnvStripeAPIKey = "ORDERFLOW_STRIPE_API_KEY"
	EnvStripeSecret = "ORDERFLOW_STRIPE_SECRET"
	EnvOrdersTopic  = "ORDERFLOW_PUBSUB_ORDERS_TOPIC"
	EnvEmailRetries = "ORDERFLOW_OUTBOX_EMAIL_ATTEMPTS"
	EnvSellerName   = "ORDERFLOW_INVOICE_SELLER_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
