package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	GCS          GCSConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Stripe       StripeConfig
	Credits      CreditsConfig
	Generation   GenerationConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Credits.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SNAPSTUDIO_APP_ENV" required:"true"`
	Port         string `envconfig:"SNAPSTUDIO_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SNAPSTUDIO_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SNAPSTUDIO_LOG_WARN_STACK" default:"false"`
	FrontendURL  string `envconfig:"SNAPSTUDIO_FRONTEND_URL" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SNAPSTUDIO_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SNAPSTUDIO_DB_DSN"`
	Driver string `envconfig:"SNAPSTUDIO_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SNAPSTUDIO_DB_HOST"`
	LegacyPort     int    `envconfig:"SNAPSTUDIO_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SNAPSTUDIO_DB_USER"`
	LegacyPassword string `envconfig:"SNAPSTUDIO_DB_PASSWORD"`
	LegacyName     string `envconfig:"SNAPSTUDIO_DB_NAME"`
	LegacySSLMode  string `envconfig:"SNAPSTUDIO_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"SNAPSTUDIO_DB_SQLITE_PATH" default:"snapstudio.db"`

	MaxOpenConns    int           `envconfig:"SNAPSTUDIO_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SNAPSTUDIO_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SNAPSTUDIO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SNAPSTUDIO_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SNAPSTUDIO_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SNAPSTUDIO_REDIS_ADDR"`
	Password     string        `envconfig:"SNAPSTUDIO_REDIS_PASSWORD"`
	DB           int           `envconfig:"SNAPSTUDIO_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SNAPSTUDIO_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SNAPSTUDIO_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SNAPSTUDIO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SNAPSTUDIO_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SNAPSTUDIO_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig describes the identity provider's access tokens. Tokens are
// verified here, never issued to end users.
type JWTConfig struct {
	Secret            string `envconfig:"SNAPSTUDIO_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SNAPSTUDIO_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SNAPSTUDIO_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SNAPSTUDIO_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SNAPSTUDIO_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	ConsumerIdempotencyTTL time.Duration `envconfig:"SNAPSTUDIO_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SNAPSTUDIO_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"SNAPSTUDIO_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SNAPSTUDIO_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName string `envconfig:"SNAPSTUDIO_GCS_BUCKET_NAME"`
}

type PubSubConfig struct {
	CreditEventsTopic        string `envconfig:"SNAPSTUDIO_PUBSUB_CREDIT_EVENTS_TOPIC" default:"ss-credit-events"`
	CreditEventsSubscription string `envconfig:"SNAPSTUDIO_PUBSUB_CREDIT_EVENTS_SUBSCRIPTION" default:"ss-credit-events-analytics"`
}

type BigQueryConfig struct {
	Dataset           string `envconfig:"SNAPSTUDIO_BIGQUERY_DATASET" default:"snapstudio"`
	CreditEventsTable string `envconfig:"SNAPSTUDIO_BIGQUERY_CREDIT_EVENTS_TABLE" default:"credit_events"`
	UsageDailyTable   string `envconfig:"SNAPSTUDIO_BIGQUERY_USAGE_TABLE" default:"usage_daily"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SNAPSTUDIO_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SNAPSTUDIO_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SNAPSTUDIO_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"SNAPSTUDIO_OUTBOX_RETENTION_DAYS" default:"30"`
}

type StripeConfig struct {
	APIKey     string `envconfig:"SNAPSTUDIO_STRIPE_API_KEY"`
	Secret     string `envconfig:"SNAPSTUDIO_STRIPE_SECRET"`
	Env        string `envconfig:"SNAPSTUDIO_STRIPE_ENV" default:"test"`
	SuccessURL string `envconfig:"SNAPSTUDIO_STRIPE_SUCCESS_URL"`
	CancelURL  string `envconfig:"SNAPSTUDIO_STRIPE_CANCEL_URL"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// CheckoutURLs falls back to the frontend dashboard/pricing pages.
func (s StripeConfig) CheckoutURLs(frontendURL string) (string, string) {
	base := strings.TrimRight(strings.TrimSpace(frontendURL), "/")
	success := strings.TrimSpace(s.SuccessURL)
	if success == "" {
		success = base + "/dashboard?payment=success"
	}
	cancel := strings.TrimSpace(s.CancelURL)
	if cancel == "" {
		cancel = base + "/pricing?payment=cancelled"
	}
	return success, cancel
}

type CreditsConfig struct {
	SignupGrant          int64         `envconfig:"SNAPSTUDIO_CREDITS_SIGNUP_GRANT" default:"30"`
	AuthorizeMaxAttempts int           `envconfig:"SNAPSTUDIO_CREDITS_AUTHORIZE_MAX_ATTEMPTS" default:"5"`
	OperationStaleAfter  time.Duration `envconfig:"SNAPSTUDIO_CREDITS_OPERATION_STALE_AFTER" default:"30m"`
	PriceCacheTTL        time.Duration `envconfig:"SNAPSTUDIO_CREDITS_PRICE_CACHE_TTL" default:"5m"`
	CheckoutRateLimit    int           `envconfig:"SNAPSTUDIO_CREDITS_CHECKOUT_RATE_LIMIT" default:"10"`
	CheckoutRateWindow   time.Duration `envconfig:"SNAPSTUDIO_CREDITS_CHECKOUT_RATE_WINDOW" default:"1m"`
}

func (c CreditsConfig) validate() error {
	if c.SignupGrant < 0 {
		return fmt.Errorf("%s must not be negative", EnvCreditsSignupGrant)
	}
	if c.AuthorizeMaxAttempts <= 0 {
		return fmt.Errorf("%s must be positive", EnvCreditsAuthorizeAttempts)
	}
	return nil
}

type GenerationConfig struct {
	Endpoint    string        `envconfig:"SNAPSTUDIO_GENERATION_ENDPOINT"`
	APIKey      string        `envconfig:"SNAPSTUDIO_GENERATION_API_KEY"`
	Timeout     time.Duration `envconfig:"SNAPSTUDIO_GENERATION_TIMEOUT" default:"9m"`
	MaxParallel int           `envconfig:"SNAPSTUDIO_GENERATION_MAX_PARALLEL" default:"4"`
	RateLimit   int           `envconfig:"SNAPSTUDIO_GENERATION_RATE_LIMIT" default:"20"`
	RateWindow  time.Duration `envconfig:"SNAPSTUDIO_GENERATION_RATE_WINDOW" default:"1m"`
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

type CronConfig struct {
	Interval       time.Duration `envconfig:"SNAPSTUDIO_CRON_INTERVAL" default:"5m"`
	LockTTL        time.Duration `envconfig:"SNAPSTUDIO_CRON_LOCK_TTL" default:"10m"`
	StaleBatchSize int           `envconfig:"SNAPSTUDIO_CRON_STALE_BATCH_SIZE" default:"100"`
}
