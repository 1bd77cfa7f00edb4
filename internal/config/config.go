package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the dunning service
type Config struct {
	AppName       string              `mapstructure:"app_name"`
	Environment   string              `mapstructure:"environment"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	GRPC          GRPCConfig          `mapstructure:"grpc"`
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Commerce      CommerceConfig      `mapstructure:"commerce"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Tracing       TracingConfig       `mapstructure:"tracing"`
	Digest        DigestConfig        `mapstructure:"digest"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Log           LogConfig           `mapstructure:"log"`
}

// HTTPConfig holds the webhook/API server and metrics server addresses
type HTTPConfig struct {
	Address         string        `mapstructure:"address"`
	MetricsAddress  string        `mapstructure:"metrics_address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// GRPCConfig holds the ops gRPC server configuration
type GRPCConfig struct {
	Address          string `mapstructure:"address"`
	EnableReflection bool   `mapstructure:"enable_reflection"`
}

// PostgresConfig holds PostgreSQL configuration
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// RedisConfig holds Redis configuration. An empty Addr disables caching,
// webhook dedupe and inventory digests.
type RedisConfig struct {
	Addr             string        `mapstructure:"addr"`
	DB               int           `mapstructure:"db"`
	Password         string        `mapstructure:"password"`
	SettingsCacheTTL time.Duration `mapstructure:"settings_cache_ttl"`
}

// KafkaConfig holds the outcome event publisher configuration
type KafkaConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Brokers  []string `mapstructure:"brokers"`
	Topic    string   `mapstructure:"topic"`
	ClientID string   `mapstructure:"client_id"`
}

// CommerceConfig holds the commerce Admin API client configuration
type CommerceConfig struct {
	APIVersion     string               `mapstructure:"api_version"`
	BaseURL        string               `mapstructure:"base_url"`
	Timeout        time.Duration        `mapstructure:"timeout"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// CircuitBreakerConfig holds per-shop circuit breaker settings
type CircuitBreakerConfig struct {
	MaxFailures      int           `mapstructure:"max_failures"`
	Timeout          time.Duration `mapstructure:"timeout"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
}

// NotificationsConfig holds the email delivery client configuration
type NotificationsConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// AuthConfig holds the app credentials used for webhook HMACs and session tokens
type AuthConfig struct {
	AppAPIKey    string `mapstructure:"app_api_key"`
	AppAPISecret string `mapstructure:"app_api_secret"`
}

// TracingConfig holds tracing configuration
type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	SamplingRatio  float64 `mapstructure:"sampling_ratio"`
}

// DigestConfig holds the inventory digest scheduler configuration
type DigestConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// RateLimitConfig holds the per-shop admin API rate limit. It needs Redis.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return decode(v)
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() (*Config, error) {
	return decode(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Comma separated broker lists from the environment
	if len(config.Kafka.Brokers) == 1 && strings.Contains(config.Kafka.Brokers[0], ",") {
		config.Kafka.Brokers = strings.Split(config.Kafka.Brokers[0], ",")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults registers every key so env-only configuration is picked up
func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "dunning-service")
	v.SetDefault("environment", "development")

	v.SetDefault("http.address", ":8080")
	v.SetDefault("http.metrics_address", ":9090")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("grpc.address", ":8081")
	v.SetDefault("grpc.enable_reflection", false)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 10)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.settings_cache_ttl", 5*time.Minute)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "dunning.outcomes")
	v.SetDefault("kafka.client_id", "dunning-service")

	v.SetDefault("commerce.api_version", "2025-01")
	v.SetDefault("commerce.base_url", "")
	v.SetDefault("commerce.timeout", 10*time.Second)
	v.SetDefault("commerce.circuit_breaker.max_failures", 5)
	v.SetDefault("commerce.circuit_breaker.timeout", 30*time.Second)
	v.SetDefault("commerce.circuit_breaker.success_threshold", 2)

	v.SetDefault("notifications.base_url", "")
	v.SetDefault("notifications.api_key", "")
	v.SetDefault("notifications.timeout", 10*time.Second)
	v.SetDefault("notifications.max_attempts", 3)

	v.SetDefault("auth.app_api_key", "")
	v.SetDefault("auth.app_api_secret", "")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("tracing.sampling_ratio", 1.0)

	v.SetDefault("digest.interval", time.Hour)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_minute", 60)

	v.SetDefault("log.level", "info")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.AppName == "" {
		return fmt.Errorf("app_name is required")
	}
	if c.HTTP.Address == "" {
		return fmt.Errorf("http.address is required")
	}
	if c.GRPC.Address == "" {
		return fmt.Errorf("grpc.address is required")
	}
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required")
	}
	if c.Postgres.MaxConns <= 0 {
		return fmt.Errorf("postgres.max_conns must be greater than 0")
	}
	if c.Auth.AppAPISecret == "" {
		return fmt.Errorf("auth.app_api_secret is required")
	}
	if c.Notifications.BaseURL == "" {
		return fmt.Errorf("notifications.base_url is required")
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka.topic is required when kafka is enabled")
		}
	}
	if c.Tracing.SamplingRatio < 0 || c.Tracing.SamplingRatio > 1 {
		return fmt.Errorf("tracing.sampling_ratio must be between 0 and 1")
	}
	return nil
}

// RedisEnabled reports whether a Redis address is configured
func (c *Config) RedisEnabled() bool {
	return c.Redis.Addr != ""
}
