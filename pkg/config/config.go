package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	BigQuery      BigQueryConfig
	Outbox        OutboxConfig
	Gateways      GatewaysConfig
	Sendgrid      SendgridConfig
	Storefront    StorefrontConfig
	Scheduler     SchedulerConfig
	Workers       WorkersConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// minProdJWTSecret is the HS256 key length enforced outside dev.
const minProdJWTSecret = 32

// validate checks the cross-field rules envconfig tags cannot express. All
// violations are reported together.
func (c *Config) validate() error {
	var errs error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.App.LogFormat == "" || c.App.LogFormat == "json" || c.App.LogFormat == "console",
		"MARKETCORE_LOG_FORMAT must be json or console, got %q", c.App.LogFormat)
	check(!c.App.IsProd() || len(c.JWT.Secret) >= minProdJWTSecret,
		"%s must be at least %d bytes in prod", EnvJWTSecret, minProdJWTSecret)
	check(c.JWT.AccessTokenTTL() > 0, "%s must be positive", EnvJWTExpMins)
	check(c.JWT.RefreshTokenTTL() > c.JWT.AccessTokenTTL(),
		"refresh token ttl (%s) must exceed access token ttl (%s)", c.JWT.RefreshTokenTTL(), c.JWT.AccessTokenTTL())
	check(c.AuthRateLimit.LoginWindow > 0 && c.AuthRateLimit.LoginEmailLimit > 0 && c.AuthRateLimit.LoginIPLimit > 0,
		"login rate limit window and limits must be positive")
	check(c.Outbox.BatchSize > 0 && c.Outbox.MaxAttempts > 0 && c.Outbox.PollIntervalMS > 0,
		"outbox batch size, max attempts and poll interval must be positive")
	check(c.BigQuery.BatchSize >= 1, "MARKETCORE_BIGQUERY_BATCH_SIZE must be at least 1")
	check(c.Workers.PoolSize > 0 && c.Workers.QueueSize >= 0, "worker pool size must be positive")
	return errs
}

type AppConfig struct {
	Env          string `envconfig:"MARKETCORE_APP_ENV" required:"true"`
	Port         string `envconfig:"MARKETCORE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MARKETCORE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MARKETCORE_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"MARKETCORE_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MARKETCORE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MARKETCORE_DB_DSN"`
	Driver string `envconfig:"MARKETCORE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MARKETCORE_DB_HOST"`
	LegacyPort     int    `envconfig:"MARKETCORE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MARKETCORE_DB_USER"`
	LegacyPassword string `envconfig:"MARKETCORE_DB_PASSWORD"`
	LegacyName     string `envconfig:"MARKETCORE_DB_NAME"`
	LegacySSLMode  string `envconfig:"MARKETCORE_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"MARKETCORE_SQLITE_PATH" default:"marketcore.db"`

	MaxOpenConns    int           `envconfig:"MARKETCORE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MARKETCORE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MARKETCORE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MARKETCORE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// SlowQueryThreshold logs statements at or above this duration; 0 disables.
	SlowQueryThreshold time.Duration `envconfig:"MARKETCORE_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MARKETCORE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MARKETCORE_REDIS_ADDR"`
	Password     string        `envconfig:"MARKETCORE_REDIS_PASSWORD"`
	DB           int           `envconfig:"MARKETCORE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MARKETCORE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MARKETCORE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MARKETCORE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MARKETCORE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MARKETCORE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"MARKETCORE_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"MARKETCORE_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"MARKETCORE_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"MARKETCORE_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

func (j JWTConfig) AccessTokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"MARKETCORE_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"MARKETCORE_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"MARKETCORE_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"MARKETCORE_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"MARKETCORE_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow     time.Duration `envconfig:"MARKETCORE_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit int           `envconfig:"MARKETCORE_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit    int           `envconfig:"MARKETCORE_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MARKETCORE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MARKETCORE_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL  time.Duration `envconfig:"MARKETCORE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	WebhookIdempotencyTTL time.Duration `envconfig:"MARKETCORE_WEBHOOK_IDEMPOTENCY_TTL" default:"168h"`
	RequestIdempotencyTTL time.Duration `envconfig:"MARKETCORE_REQUEST_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MARKETCORE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"MARKETCORE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MARKETCORE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic              string `envconfig:"MARKETCORE_PUBSUB_DOMAIN_TOPIC" default:"mc-domain-events"`
	NotificationSubscription string `envconfig:"MARKETCORE_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"mc-notification-sub"`
	AnalyticsSubscription    string `envconfig:"MARKETCORE_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"mc-analytics-sub"`
}

type BigQueryConfig struct {
	Dataset             string        `envconfig:"MARKETCORE_BIGQUERY_DATASET" default:"marketcore"`
	PipelineEventsTable string        `envconfig:"MARKETCORE_BIGQUERY_PIPELINE_TABLE" default:"pipeline_events"`
	AutoCreateTables    bool          `envconfig:"MARKETCORE_BIGQUERY_AUTO_CREATE_TABLES" default:"false"`
	BatchSize           int           `envconfig:"MARKETCORE_BIGQUERY_BATCH_SIZE" default:"1"`
	FlushInterval       time.Duration `envconfig:"MARKETCORE_BIGQUERY_FLUSH_INTERVAL" default:"10s"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"MARKETCORE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"MARKETCORE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"MARKETCORE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"MARKETCORE_OUTBOX_RETENTION" default:"336h"`
}

// GatewaysConfig carries per-provider credentials. A provider whose
// credentials are missing fails Initialize and is hidden from the catalogue.
type GatewaysConfig struct {
	HTTPTimeout time.Duration `envconfig:"MARKETCORE_GATEWAY_HTTP_TIMEOUT" default:"30s"`
	Currency    string        `envconfig:"MARKETCORE_GATEWAY_CURRENCY" default:"PKR"`
	CallbackURL string        `envconfig:"MARKETCORE_GATEWAY_CALLBACK_BASE_URL" default:"http://localhost:8080/payment/callback"`

	PayFast   PayFastConfig
	EasyPaisa EasyPaisaConfig
	JazzCash  JazzCashConfig
	PayPak    PayPakConfig
	Stripe    StripeConfig
}

type PayFastConfig struct {
	MerchantID string `envconfig:"MARKETCORE_PAYFAST_MERCHANT_ID"`
	SecuredKey string `envconfig:"MARKETCORE_PAYFAST_SECURED_KEY"`
	BaseURL    string `envconfig:"MARKETCORE_PAYFAST_BASE_URL" default:"https://ipguat.apps.net.pk/Ecommerce/api"`
}

type EasyPaisaConfig struct {
	StoreID string `envconfig:"MARKETCORE_EASYPAISA_STORE_ID"`
	HashKey string `envconfig:"MARKETCORE_EASYPAISA_HASH_KEY"`
	BaseURL string `envconfig:"MARKETCORE_EASYPAISA_BASE_URL" default:"https://easypaystg.easypaisa.com.pk/easypay"`
}

type JazzCashConfig struct {
	MerchantID    string `envconfig:"MARKETCORE_JAZZCASH_MERCHANT_ID"`
	Password      string `envconfig:"MARKETCORE_JAZZCASH_PASSWORD"`
	IntegritySalt string `envconfig:"MARKETCORE_JAZZCASH_INTEGRITY_SALT"`
	BaseURL       string `envconfig:"MARKETCORE_JAZZCASH_BASE_URL" default:"https://sandbox.jazzcash.com.pk"`
}

type PayPakConfig struct {
	MerchantID string `envconfig:"MARKETCORE_PAYPAK_MERCHANT_ID"`
	APIKey     string `envconfig:"MARKETCORE_PAYPAK_API_KEY"`
	SecretKey  string `envconfig:"MARKETCORE_PAYPAK_SECRET_KEY"`
	BaseURL    string `envconfig:"MARKETCORE_PAYPAK_BASE_URL" default:"https://sandbox.paypak.com.pk/api/v1"`
}

type StripeConfig struct {
	APIKey           string        `envconfig:"MARKETCORE_STRIPE_API_KEY"`
	Secret           string        `envconfig:"MARKETCORE_STRIPE_WEBHOOK_SECRET"`
	Env              string        `envconfig:"MARKETCORE_STRIPE_ENV" default:"test"`
	Currency         string        `envconfig:"MARKETCORE_STRIPE_CURRENCY" default:"usd"`
	WebhookTolerance time.Duration `envconfig:"MARKETCORE_STRIPE_WEBHOOK_TOLERANCE" default:"5m"`
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
	APIKey      string `envconfig:"MARKETCORE_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"MARKETCORE_SENDGRID_FROM_EMAIL" default:"no-reply@marketcore.local"`
	BaseURL     string `envconfig:"MARKETCORE_SENDGRID_BASE_URL" default:"https://api.sendgrid.com"`
}

type StorefrontConfig struct {
	BaseURL        string   `envconfig:"MARKETCORE_STOREFRONT_BASE_URL" default:"http://localhost:3000"`
	AllowedOrigins []string `envconfig:"MARKETCORE_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type SchedulerConfig struct {
	OrderEmailInterval time.Duration `envconfig:"MARKETCORE_SCHEDULER_ORDER_EMAIL_INTERVAL" default:"5m"`
	OrderEmailWindow   time.Duration `envconfig:"MARKETCORE_SCHEDULER_ORDER_EMAIL_WINDOW" default:"10m"`
	DailyInterval      time.Duration `envconfig:"MARKETCORE_SCHEDULER_DAILY_INTERVAL" default:"24h"`
	LowStockThreshold  int           `envconfig:"MARKETCORE_SCHEDULER_LOW_STOCK_THRESHOLD" default:"10"`
	WishlistAfter      time.Duration `envconfig:"MARKETCORE_SCHEDULER_WISHLIST_AFTER" default:"168h"`
	CartAfter          time.Duration `envconfig:"MARKETCORE_SCHEDULER_CART_AFTER" default:"48h"`
	LockTTL            time.Duration `envconfig:"MARKETCORE_SCHEDULER_LOCK_TTL" default:"10m"`
	JobTimeout         time.Duration `envconfig:"MARKETCORE_SCHEDULER_JOB_TIMEOUT" default:"5m"`
}

type WorkersConfig struct {
	PoolSize  int `envconfig:"MARKETCORE_WORKER_POOL_SIZE" default:"8"`
	QueueSize int `envconfig:"MARKETCORE_WORKER_QUEUE_SIZE" default:"256"`
	// AdminAddr serves /metrics and health probes for the background
	// binaries. Empty disables it.
	AdminAddr string `envconfig:"MARKETCORE_ADMIN_ADDR" default:":9090"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
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
