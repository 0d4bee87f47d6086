package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "PORTAL"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv       = "PORTAL_APP_ENV"
	EnvPort         = "PORTAL_APP_PORT"
	EnvLogLevel     = "PORTAL_LOG_LEVEL"
	EnvDBDSN        = "PORTAL_DB_DSN"
	EnvDBHost       = "PORTAL_DB_HOST"
	EnvDBUser       = "PORTAL_DB_USER"
	EnvDBName       = "PORTAL_DB_NAME"
	EnvRedisURL     = "PORTAL_REDIS_URL"
	EnvJWTSecret    = "PORTAL_JWT_SECRET"
	EnvJWTIssuer    = "PORTAL_JWT_ISSUER"
	EnvJWTExpMins   = "PORTAL_JWT_EXPIRATION_MINUTES"
	EnvGCPProjectID = "PORTAL_GCP_PROJECT_ID"
	EnvQuotesTopic  = "PORTAL_PUBSUB_QUOTES_TOPIC"
	EnvQuotePrefix  = "PORTAL_QUOTE_NUMBER_PREFIX"
	EnvExpirySweep  = "PORTAL_QUOTE_EXPIRY_SWEEP_INTERVAL"
	EnvUseSQLite    = "PORTAL_USE_SQLITE"
	EnvCORSOrigins  = "PORTAL_CORS_ALLOWED_ORIGINS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	CORS         CORSConfig
	Quotes       QuotesConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = "sqlite"
		if cfg.DB.DSN == "" {
			cfg.DB.DSN = "file:portal.db?cache=shared"
		}
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Quotes.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PORTAL_APP_ENV" required:"true"`
	Port         string `envconfig:"PORTAL_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"PORTAL_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"PORTAL_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"PORTAL_LOG_WARN_STACK" default:"false"`

	ReadTimeout     time.Duration `envconfig:"PORTAL_HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"PORTAL_HTTP_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"PORTAL_HTTP_SHUTDOWN_TIMEOUT" default:"20s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PORTAL_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PORTAL_DB_DSN"`
	Driver string `envconfig:"PORTAL_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PORTAL_DB_HOST"`
	LegacyPort     int    `envconfig:"PORTAL_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PORTAL_DB_USER"`
	LegacyPassword string `envconfig:"PORTAL_DB_PASSWORD"`
	LegacyName     string `envconfig:"PORTAL_DB_NAME"`
	LegacySSLMode  string `envconfig:"PORTAL_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PORTAL_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PORTAL_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PORTAL_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PORTAL_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"PORTAL_DB_SLOW_QUERY_THRESHOLD" default:"200ms"`
}

type RedisConfig struct {
	URL            string        `envconfig:"PORTAL_REDIS_URL" required:"true"`
	Address        string        `envconfig:"PORTAL_REDIS_ADDR"`
	Password       string        `envconfig:"PORTAL_REDIS_PASSWORD"`
	DB             int           `envconfig:"PORTAL_REDIS_DB" default:"0"`
	PoolSize       int           `envconfig:"PORTAL_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns   int           `envconfig:"PORTAL_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout    time.Duration `envconfig:"PORTAL_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout    time.Duration `envconfig:"PORTAL_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout   time.Duration `envconfig:"PORTAL_REDIS_WRITE_TIMEOUT" default:"5s"`
	IdempotencyTTL time.Duration `envconfig:"PORTAL_REDIS_IDEMPOTENCY_TTL" default:"24h"`
	CronLockTTL    time.Duration `envconfig:"PORTAL_REDIS_CRON_LOCK_TTL" default:"5m"`
	KeyNamespace   string        `envconfig:"PORTAL_REDIS_KEY_NAMESPACE" default:"crm"`
}

type JWTConfig struct {
	Secret            string `envconfig:"PORTAL_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PORTAL_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PORTAL_JWT_EXPIRATION_MINUTES" default:"60"`
	// Leeway absorbs clock skew between the identity service and this API.
	Leeway time.Duration `envconfig:"PORTAL_JWT_LEEWAY" default:"30s"`
	// RequireSession rejects tokens whose jti has no live Redis session.
	RequireSession bool `envconfig:"PORTAL_JWT_REQUIRE_SESSION" default:"false"`
}

// AccessTokenTTL returns the access token lifetime configured in minutes.
func (j JWTConfig) AccessTokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"PORTAL_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"PORTAL_AUTO_MIGRATE" default:"false"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"PORTAL_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type QuotesConfig struct {
	NumberPrefix        string        `envconfig:"PORTAL_QUOTE_NUMBER_PREFIX" default:"QT"`
	DefaultValidityDays int           `envconfig:"PORTAL_QUOTE_DEFAULT_VALIDITY_DAYS" default:"30"`
	ExpirySweepInterval time.Duration `envconfig:"PORTAL_QUOTE_EXPIRY_SWEEP_INTERVAL" default:"5m"`
	ExpiryBatchSize     int           `envconfig:"PORTAL_QUOTE_EXPIRY_BATCH_SIZE" default:"100"`
}

func (q QuotesConfig) validate() error {
	if strings.TrimSpace(q.NumberPrefix) == "" {
		return fmt.Errorf("%s must not be empty", EnvQuotePrefix)
	}
	if q.ExpirySweepInterval <= 0 {
		return fmt.Errorf("%s must be positive", EnvExpirySweep)
	}
	return nil
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PORTAL_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"PORTAL_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PORTAL_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	QuotesTopic string `envconfig:"PORTAL_PUBSUB_QUOTES_TOPIC" default:"portal-quote-events"`
	// CreateTopics lets the emulator and dev projects bootstrap missing topics.
	CreateTopics bool `envconfig:"PORTAL_PUBSUB_CREATE_TOPICS" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PORTAL_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PORTAL_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PORTAL_OUTBOX_MAX_ATTEMPTS" default:"10"`
	PublishTimeout time.Duration `envconfig:"PORTAL_OUTBOX_PUBLISH_TIMEOUT" default:"15s"`

	Retention    time.Duration `envconfig:"PORTAL_OUTBOX_RETENTION" default:"720h"`
	DLQRetention time.Duration `envconfig:"PORTAL_OUTBOX_DLQ_RETENTION" default:"2160h"`
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
