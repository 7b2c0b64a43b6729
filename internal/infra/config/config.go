package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	JWT       JWTSettings       `mapstructure:"jwt"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name           string   `mapstructure:"name"`
	Env            string   `mapstructure:"env"`
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type PostgresSettings struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// RedisSettings configures the optional shared backing store for the token
// blacklist and rate-limit counters. When disabled, both stay in-process.
type RedisSettings struct {
	Enabled         bool   `mapstructure:"enabled"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	DB              int    `mapstructure:"db"`
	Password        string `mapstructure:"password"`
	TLSEnabled      bool   `mapstructure:"tls_enabled"`
	BlacklistPrefix string `mapstructure:"blacklist_prefix"`
	CounterPrefix   string `mapstructure:"counter_prefix"`
}

// KafkaSettings configures the auth event producer.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

// JWTSettings carries the signing configuration for issued tokens.
type JWTSettings struct {
	Secret          string        `mapstructure:"secret"`
	Algorithm       string        `mapstructure:"algorithm"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
	AllowRefresh    bool          `mapstructure:"allow_refresh"`
}

// RateLimitSettings configures the per-endpoint fixed-window limits.
type RateLimitSettings struct {
	LoginMaxAttempts    int           `mapstructure:"login_max_attempts"`
	LoginWindow         time.Duration `mapstructure:"login_window"`
	RefreshMaxAttempts  int           `mapstructure:"refresh_max_attempts"`
	RefreshWindow       time.Duration `mapstructure:"refresh_window"`
	RegisterMaxAttempts int           `mapstructure:"register_max_attempts"`
	RegisterWindow      time.Duration `mapstructure:"register_window"`
}

type TelemetrySettings struct {
	MetricsNamespace string `mapstructure:"metrics_namespace"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("AUTH")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.allowed_origins",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"redis.enabled",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.blacklist_prefix",
		"redis.counter_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"jwt.secret",
		"jwt.algorithm",
		"jwt.access_token_ttl",
		"jwt.refresh_token_ttl",
		"jwt.allow_refresh",
		"rate_limit.login_max_attempts",
		"rate_limit.login_window",
		"rate_limit.refresh_max_attempts",
		"rate_limit.refresh_window",
		"rate_limit.register_max_attempts",
		"rate_limit.register_window",
		"telemetry.metrics_namespace",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the token layer cannot operate with.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if c.JWT.Algorithm != "HS256" {
		return fmt.Errorf("unsupported jwt.algorithm %q", c.JWT.Algorithm)
	}
	if c.JWT.AccessTokenTTL <= 0 || c.JWT.RefreshTokenTTL <= 0 {
		return fmt.Errorf("jwt token ttls must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "marketplace-auth")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.allowed_origins", []string{"*"})

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "dealsbasket")
	v.SetDefault("postgres.password", "dealsbasket")
	v.SetDefault("postgres.database", "dealsbasket")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.blacklist_prefix", "auth:blacklist")
	v.SetDefault("redis.counter_prefix", "auth:counter")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "auth")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.algorithm", "HS256")
	v.SetDefault("jwt.access_token_ttl", "60m")
	v.SetDefault("jwt.refresh_token_ttl", "168h")
	v.SetDefault("jwt.allow_refresh", true)

	v.SetDefault("rate_limit.login_max_attempts", 5)
	v.SetDefault("rate_limit.login_window", "5m")
	v.SetDefault("rate_limit.refresh_max_attempts", 20)
	v.SetDefault("rate_limit.refresh_window", "5m")
	v.SetDefault("rate_limit.register_max_attempts", 3)
	v.SetDefault("rate_limit.register_window", "1h")

	v.SetDefault("telemetry.metrics_namespace", "auth")
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "AUTH_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
