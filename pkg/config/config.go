package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Password     PasswordConfig
	Session      SessionConfig
	RateLimit    AuthRateLimitConfig
	Pricing      PricingConfig
	Stripe       StripeConfig
	PayPal       PayPalConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	CORS         CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var err error
	if _, parseErr := c.Pricing.TaxRateDecimal(); parseErr != nil {
		err = multierr.Append(err, parseErr)
	}
	if c.Pricing.ShippingCents < 0 {
		err = multierr.Append(err, fmt.Errorf("%s must not be negative", EnvPricingShippingCents))
	}
	if env := c.PayPal.Environment(); env != PayPalEnvSandbox && env != PayPalEnvLive {
		err = multierr.Append(err, fmt.Errorf("%s must be %q or %q", EnvPayPalEnv, PayPalEnvSandbox, PayPalEnvLive))
	}
	if c.Session.CartCookieTTL <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s must be positive", EnvSessionCartCookieTTL))
	}
	return err
}

type AppConfig struct {
	Env          string `envconfig:"AUDIOPHILE_APP_ENV" required:"true"`
	Port         string `envconfig:"AUDIOPHILE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"AUDIOPHILE_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"AUDIOPHILE_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"AUDIOPHILE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"AUDIOPHILE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"AUDIOPHILE_DB_DSN"`
	Driver string `envconfig:"AUDIOPHILE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"AUDIOPHILE_DB_HOST"`
	LegacyPort     int    `envconfig:"AUDIOPHILE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"AUDIOPHILE_DB_USER"`
	LegacyPassword string `envconfig:"AUDIOPHILE_DB_PASSWORD"`
	LegacyName     string `envconfig:"AUDIOPHILE_DB_NAME"`
	LegacySSLMode  string `envconfig:"AUDIOPHILE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"AUDIOPHILE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"AUDIOPHILE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"AUDIOPHILE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"AUDIOPHILE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"AUDIOPHILE_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"AUDIOPHILE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"AUDIOPHILE_REDIS_ADDR"`
	Password     string        `envconfig:"AUDIOPHILE_REDIS_PASSWORD"`
	DB           int           `envconfig:"AUDIOPHILE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"AUDIOPHILE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"AUDIOPHILE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"AUDIOPHILE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"AUDIOPHILE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"AUDIOPHILE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"AUDIOPHILE_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"AUDIOPHILE_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"AUDIOPHILE_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"AUDIOPHILE_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"AUDIOPHILE_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"AUDIOPHILE_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"AUDIOPHILE_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"AUDIOPHILE_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"AUDIOPHILE_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"AUDIOPHILE_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"AUDIOPHILE_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"AUDIOPHILE_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"AUDIOPHILE_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"AUDIOPHILE_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"AUDIOPHILE_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

// SessionConfig controls the anonymous cart cookie.
type SessionConfig struct {
	CartCookieName   string        `envconfig:"AUDIOPHILE_SESSION_CART_COOKIE_NAME" default:"sessionCartId"`
	CartCookieTTL    time.Duration `envconfig:"AUDIOPHILE_SESSION_CART_COOKIE_TTL" default:"720h"`
	CartCookieSecure bool          `envconfig:"AUDIOPHILE_SESSION_CART_COOKIE_SECURE" default:"false"`
}

type PricingConfig struct {
	ShippingCents int64  `envconfig:"AUDIOPHILE_PRICING_SHIPPING_CENTS" default:"5000"`
	TaxRate       string `envconfig:"AUDIOPHILE_PRICING_TAX_RATE" default:"0.20"`
	Currency      string `envconfig:"AUDIOPHILE_PRICING_CURRENCY" default:"USD"`
}

// TaxRateDecimal parses the configured tax rate.
func (p PricingConfig) TaxRateDecimal() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(p.TaxRate))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", EnvPricingTaxRate, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("%s must be in [0,1)", EnvPricingTaxRate)
	}
	return rate, nil
}

type StripeConfig struct {
	APIKey     string        `envconfig:"AUDIOPHILE_STRIPE_API_KEY"`
	Secret     string        `envconfig:"AUDIOPHILE_STRIPE_SECRET"`
	Env        string        `envconfig:"AUDIOPHILE_STRIPE_ENV" default:"test"`
	Timeout    time.Duration `envconfig:"AUDIOPHILE_STRIPE_TIMEOUT" default:"20s"`
	MaxRetries int64         `envconfig:"AUDIOPHILE_STRIPE_MAX_RETRIES" default:"2"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type PayPalConfig struct {
	ClientID     string `envconfig:"AUDIOPHILE_PAYPAL_CLIENT_ID"`
	ClientSecret string `envconfig:"AUDIOPHILE_PAYPAL_CLIENT_SECRET"`
	Env          string `envconfig:"AUDIOPHILE_PAYPAL_ENV" default:"sandbox"`
}

// Environment returns the normalized PayPal environment (sandbox/live).
func (p PayPalConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(p.Env))
	if env == "" {
		return PayPalEnvSandbox
	}
	return env
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"AUDIOPHILE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"AUDIOPHILE_AUTO_MIGRATE" default:"false"`
}

// MigratesOnStart reports whether services apply pending migrations before
// serving. Only dev databases are migrated this way.
func (c *Config) MigratesOnStart() bool {
	return c.App.IsDev() && c.FeatureFlags.AutoMigrate
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"AUDIOPHILE_EVENTING_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
	CartCountCacheTTL     time.Duration `envconfig:"AUDIOPHILE_EVENTING_CART_COUNT_CACHE_TTL" default:"10m"`
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"AUDIOPHILE_CRON_INTERVAL" default:"24h"`
	OutboxRetentionDays int           `envconfig:"AUDIOPHILE_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"AUDIOPHILE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"AUDIOPHILE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"AUDIOPHILE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic    string        `envconfig:"AUDIOPHILE_PUBSUB_ORDERS_TOPIC" default:"audiophile-order-events"`
	PublishDelay   time.Duration `envconfig:"AUDIOPHILE_PUBSUB_PUBLISH_DELAY" default:"5ms"`
	PublishTimeout time.Duration `envconfig:"AUDIOPHILE_PUBSUB_PUBLISH_TIMEOUT" default:"30s"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"AUDIOPHILE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"AUDIOPHILE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"AUDIOPHILE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CORSConfig struct {
	AllowedOrigins  []string      `envconfig:"AUDIOPHILE_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	PreflightMaxAge time.Duration `envconfig:"AUDIOPHILE_CORS_PREFLIGHT_MAX_AGE" default:"5m"`
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
