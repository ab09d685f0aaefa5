package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	AES       AESConfig       `mapstructure:"aes"`
	Log       LogConfig       `mapstructure:"log"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// GatewayConfig holds the signed-request pipeline and invoice lifecycle
// tunables named in spec §6.
type GatewayConfig struct {
	SignWindow      time.Duration `mapstructure:"sign_window"`       // default 60s
	NonceTTL        time.Duration `mapstructure:"nonce_ttl"`         // default 120s
	InvoiceTTL      time.Duration `mapstructure:"invoice_ttl"`       // default 600s
	PaidCacheTTL    time.Duration `mapstructure:"paid_cache_ttl"`    // default 3600s
	RateLimit       int           `mapstructure:"rate_limit"`        // default 120/min
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window"` // default 60s
}

// WebhookConfig holds outbound delivery tunables named in spec §6.
type WebhookConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"` // default 8
	BaseBackoff time.Duration `mapstructure:"base_backoff"` // default 60s
	Timeout     time.Duration `mapstructure:"timeout"`      // default 8000ms
	BatchSize   int           `mapstructure:"batch_size"`   // default 20
}

// SchedulerConfig holds the lifecycle scheduler tunables named in spec §6.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`          // default 15000ms
	ExpiryBatchSize int           `mapstructure:"expiry_batch_size"` // default 200
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type AESConfig struct {
	Key string `mapstructure:"key"` // 32-byte hex-encoded key for AES-256
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// UpstreamConfig holds the QRIS credit provider's connection details (C8).
type UpstreamConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	APISecret  string        `mapstructure:"api_secret"`
	Timeout    time.Duration `mapstructure:"timeout"`     // default 8000ms
	BearerMode bool          `mapstructure:"bearer_mode"` // send caller token as Bearer instead of signing
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: QRISGW_.
// Nested keys use underscore: QRISGW_DATABASE_HOST, QRISGW_GATEWAY_SIGN_WINDOW, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "qris_gateway")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("gateway.sign_window", "60s")
	v.SetDefault("gateway.nonce_ttl", "120s")
	v.SetDefault("gateway.invoice_ttl", "600s")
	v.SetDefault("gateway.paid_cache_ttl", "3600s")
	v.SetDefault("gateway.rate_limit", 120)
	v.SetDefault("gateway.rate_limit_window", "60s")
	v.SetDefault("webhook.max_attempts", 8)
	v.SetDefault("webhook.base_backoff", "60s")
	v.SetDefault("webhook.timeout", "8000ms")
	v.SetDefault("webhook.batch_size", 20)
	v.SetDefault("scheduler.interval", "15000ms")
	v.SetDefault("scheduler.expiry_batch_size", 200)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "qris-gateway")
	v.SetDefault("aes.key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("upstream.base_url", "")
	v.SetDefault("upstream.api_key", "")
	v.SetDefault("upstream.api_secret", "")
	v.SetDefault("upstream.timeout", "8000ms")
	v.SetDefault("upstream.bearer_mode", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: QRISGW_DATABASE_HOST -> database.host
	v.SetEnvPrefix("QRISGW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
