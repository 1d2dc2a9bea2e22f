package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"google.golang.org/api/option"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	GCS          GCSConfig
	Storage      StorageConfig
	PubSub       PubSubConfig
	Stripe       StripeConfig
	Sendgrid     SendgridConfig
	Outbox       OutboxConfig
	Webhooks     WebhooksConfig
	Invoice      InvoiceConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ORDERFLOW_APP_ENV" required:"true"`
	Port         string `envconfig:"ORDERFLOW_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ORDERFLOW_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ORDERFLOW_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"ORDERFLOW_CORS_ALLOWED_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"ORDERFLOW_DB_DSN"`
	Driver string `envconfig:"ORDERFLOW_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ORDERFLOW_DB_HOST"`
	LegacyPort     int    `envconfig:"ORDERFLOW_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ORDERFLOW_DB_USER"`
	LegacyPassword string `envconfig:"ORDERFLOW_DB_PASSWORD"`
	LegacyName     string `envconfig:"ORDERFLOW_DB_NAME"`
	LegacySSLMode  string `envconfig:"ORDERFLOW_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"ORDERFLOW_SQLITE_PATH" default:"orderflow.db"`

	MaxOpenConns    int           `envconfig:"ORDERFLOW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ORDERFLOW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ORDERFLOW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ORDERFLOW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"ORDERFLOW_DB_SLOW_QUERY" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ORDERFLOW_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ORDERFLOW_REDIS_ADDR"`
	Password     string        `envconfig:"ORDERFLOW_REDIS_PASSWORD"`
	DB           int           `envconfig:"ORDERFLOW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ORDERFLOW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ORDERFLOW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ORDERFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ORDERFLOW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ORDERFLOW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies access tokens minted by the identity provider.
type JWTConfig struct {
	Secret string `envconfig:"ORDERFLOW_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"ORDERFLOW_JWT_ISSUER" required:"true"`
	// ExpirationMinutes applies to locally minted tokens only.
	ExpirationMinutes int `envconfig:"ORDERFLOW_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"ORDERFLOW_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"ORDERFLOW_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"ORDERFLOW_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"ORDERFLOW_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"ORDERFLOW_GOOGLE_APPLICATION_CREDENTIALS"`
}

// ClientOptions builds the Google API client options for the configured credentials.
func (g GCPConfig) ClientOptions() []option.ClientOption {
	switch {
	case strings.TrimSpace(g.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(g.CredentialsJSON))}
	case strings.TrimSpace(g.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(g.ApplicationCredentials)}
	default:
		return nil
	}
}

type GCSConfig struct {
	BucketName string `envconfig:"ORDERFLOW_GCS_BUCKET_NAME"`
	PathPrefix string `envconfig:"ORDERFLOW_GCS_PATH_PREFIX" default:"invoices"`
}

// StorageConfig selects where generated documents are written.
type StorageConfig struct {
	Driver   string `envconfig:"ORDERFLOW_STORAGE_DRIVER" default:"local"`
	LocalDir string `envconfig:"ORDERFLOW_STORAGE_LOCAL_DIR" default:"var/documents"`
}

type PubSubConfig struct {
	OrdersTopic string `envconfig:"ORDERFLOW_PUBSUB_ORDERS_TOPIC"`
}

// Enabled reports whether domain events should be fanned out to Pub/Sub.
func (p PubSubConfig) Enabled() bool {
	return strings.TrimSpace(p.OrdersTopic) != ""
}

type StripeConfig struct {
	APIKey          string `envconfig:"ORDERFLOW_STRIPE_API_KEY"`
	Secret          string `envconfig:"ORDERFLOW_STRIPE_SECRET"`
	Env             string `envconfig:"ORDERFLOW_STRIPE_ENV" default:"test"`
	DefaultCurrency string `envconfig:"ORDERFLOW_STRIPE_DEFAULT_CURRENCY" default:"usd"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type SendgridConfig struct {
	APIKey      string `envconfig:"ORDERFLOW_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"ORDERFLOW_SENDGRID_FROM_EMAIL" default:"orders@example.com"`
	FromName    string `envconfig:"ORDERFLOW_SENDGRID_FROM_NAME" default:"Orders"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"ORDERFLOW_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"ORDERFLOW_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"ORDERFLOW_OUTBOX_MAX_ATTEMPTS" default:"10"`
	EmailAttempts  int `envconfig:"ORDERFLOW_OUTBOX_EMAIL_ATTEMPTS" default:"2"`
}

type WebhooksConfig struct {
	IdempotencyTTL time.Duration `envconfig:"ORDERFLOW_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
}

// RateLimitConfig throttles promo-code redemption attempts per client IP and per user.
type RateLimitConfig struct {
	PromoWindow    time.Duration `envconfig:"ORDERFLOW_PROMO_RATE_LIMIT_WINDOW" default:"1m"`
	PromoIPLimit   int           `envconfig:"ORDERFLOW_PROMO_RATE_LIMIT_IP" default:"30"`
	PromoUserLimit int           `envconfig:"ORDERFLOW_PROMO_RATE_LIMIT_USER" default:"10"`
}

// InvoiceConfig carries the seller block and document numbering prefixes.
type InvoiceConfig struct {
	SellerName    string `envconfig:"ORDERFLOW_INVOICE_SELLER_NAME" default:"Storefront Inc."`
	SellerAddress string `envconfig:"ORDERFLOW_INVOICE_SELLER_ADDRESS"`
	SellerEmail   string `envconfig:"ORDERFLOW_INVOICE_SELLER_EMAIL"`
	SellerTaxID   string `envconfig:"ORDERFLOW_INVOICE_SELLER_TAX_ID"`
	NumberPrefix  string `envconfig:"ORDERFLOW_INVOICE_NUMBER_PREFIX" default:"INV"`
	CreditPrefix  string `envconfig:"ORDERFLOW_CREDIT_NOTE_NUMBER_PREFIX" default:"CN"`
}

// SellerInfo returns the configured seller block as invoice snapshot fields.
func (i InvoiceConfig) SellerInfo() map[string]string {
	info := map[string]string{"name": i.SellerName}
	if i.SellerAddress != "" {
		info["address"] = i.SellerAddress
	}
	if i.SellerEmail != "" {
		info["email"] = i.SellerEmail
	}
	if i.SellerTaxID != "" {
		info["taxId"] = i.SellerTaxID
	}
	return info
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite || db.DSN != "" {
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
