package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Environment string         `mapstructure:"environment"`
	LogLevel    string         `mapstructure:"log_level"`
	Server      ServerConfig   `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	Redis       RedisConfig    `mapstructure:"redis"`
	JWT         JWTConfig      `mapstructure:"jwt"`
	Ledger      LedgerConfig   `mapstructure:"ledger"`
	Tracing     TracingConfig  `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port             int      `mapstructure:"port"`
	Host             string   `mapstructure:"host"`
	ReadTimeout      int      `mapstructure:"read_timeout"`
	WriteTimeout     int      `mapstructure:"write_timeout"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	RateLimitPerMin  int64    `mapstructure:"rate_limit_per_min"`
	RateLimitPerHour int64    `mapstructure:"rate_limit_per_hour"`
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string `mapstructure:"migrations_path"`
}

// DSN returns the connection string, preferring an explicit URL.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret    string `mapstructure:"secret"`
	AccessTTL int    `mapstructure:"access_token_ttl"`
	Issuer    string `mapstructure:"issuer"`
}

// LedgerConfig carries the transactional-core tunables.
type LedgerConfig struct {
	// IdempotencyKeyTTLSeconds is the lifetime of idempotency records.
	IdempotencyKeyTTLSeconds int `mapstructure:"idempotency_key_ttl_seconds"`
	// BalanceCacheTTLSeconds bounds balance-read staleness.
	BalanceCacheTTLSeconds int `mapstructure:"balance_cache_ttl_seconds"`
	// MaxTransferRetries bounds retries on concurrent-modification
	// conflicts before surfacing the error.
	MaxTransferRetries int `mapstructure:"max_transfer_retries"`
	// SweepSchedule is the cron spec for the expired-key sweep.
	SweepSchedule string `mapstructure:"sweep_schedule"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	CollectorURL string  `mapstructure:"collector_url"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	Insecure     bool    `mapstructure:"insecure"`
}

// Load reads configuration from configs/config.yaml, .env, and the
// environment. Environment variables win.
func Load() (*Config, error) {
	// Best effort; absence of a .env file is normal outside development.
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()
	bindEnvAliases()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Environment != "test" && cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt.secret is required")
	}

	return &cfg, nil
}

// bindEnvAliases wires the externally-recognized variable names onto their
// config keys.
func bindEnvAliases() {
	viper.BindEnv("ledger.idempotency_key_ttl_seconds", "IDEMPOTENCY_KEY_TTL_SECONDS")
	viper.BindEnv("server.rate_limit_per_min", "RATE_LIMIT_PER_MINUTE")
	viper.BindEnv("server.rate_limit_per_hour", "RATE_LIMIT_PER_HOUR")
	viper.BindEnv("database.url", "DATABASE_URL")
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("jwt.secret", "JWT_SECRET")
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.rate_limit_per_min", 100)
	viper.SetDefault("server.rate_limit_per_hour", 2000)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "ledger_service")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 300)
	viper.SetDefault("database.migrations_path", "migrations")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)

	viper.SetDefault("jwt.access_token_ttl", 3600)
	viper.SetDefault("jwt.issuer", "ledger_service")

	viper.SetDefault("ledger.idempotency_key_ttl_seconds", 86400)
	viper.SetDefault("ledger.balance_cache_ttl_seconds", 300)
	viper.SetDefault("ledger.max_transfer_retries", 3)
	viper.SetDefault("ledger.sweep_schedule", "@hourly")

	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.collector_url", "localhost:4317")
	viper.SetDefault("tracing.sample_rate", 1.0)
}
