package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix scopes every environment variable consumed by the platform.
	EnvPrefix = "TRIALOPS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "TRIALOPS_DB_DSN"
	EnvDBHost = "TRIALOPS_DB_HOST"
	EnvDBUser = "TRIALOPS_DB_USER"
	EnvDBName = "TRIALOPS_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Inventory    InventoryConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
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
	Env          string `envconfig:"TRIALOPS_APP_ENV" required:"true"`
	Port         string `envconfig:"TRIALOPS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TRIALOPS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TRIALOPS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TRIALOPS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"TRIALOPS_DB_DSN"`
	Driver string `envconfig:"TRIALOPS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TRIALOPS_DB_HOST"`
	LegacyPort     int    `envconfig:"TRIALOPS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TRIALOPS_DB_USER"`
	LegacyPassword string `envconfig:"TRIALOPS_DB_PASSWORD"`
	LegacyName     string `envconfig:"TRIALOPS_DB_NAME"`
	LegacySSLMode  string `envconfig:"TRIALOPS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TRIALOPS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TRIALOPS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TRIALOPS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TRIALOPS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TRIALOPS_REDIS_URL"`
	Address      string        `envconfig:"TRIALOPS_REDIS_ADDR"`
	Password     string        `envconfig:"TRIALOPS_REDIS_PASSWORD"`
	DB           int           `envconfig:"TRIALOPS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TRIALOPS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TRIALOPS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TRIALOPS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TRIALOPS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TRIALOPS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TRIALOPS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TRIALOPS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"TRIALOPS_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"TRIALOPS_AUTO_MIGRATE" default:"false"`
}

type InventoryConfig struct {
	// LowStockThreshold is the remaining-quantity level at or below which a
	// drug shows up in low-stock listings and sweep notifications.
	LowStockThreshold int `envconfig:"TRIALOPS_INVENTORY_LOW_STOCK_THRESHOLD" default:"10"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"TRIALOPS_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"TRIALOPS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"TRIALOPS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"TRIALOPS_PUBSUB_DOMAIN_TOPIC" default:"trialops-domain-events"`
	DomainSubscription string `envconfig:"TRIALOPS_PUBSUB_DOMAIN_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TRIALOPS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TRIALOPS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"TRIALOPS_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"TRIALOPS_CRON_INTERVAL" default:"1h"`
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
