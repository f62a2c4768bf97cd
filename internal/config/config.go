package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backend constants
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Persist mode constants
const (
	PersistSync  = "sync"
	PersistAsync = "async"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Tracking TrackingConfig `mapstructure:"tracking"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Port    int    `mapstructure:"port"`
	Env     string `mapstructure:"env"`
	BaseURL string `mapstructure:"base_url"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TrackingConfig configures request audit logging
type TrackingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Store   string `mapstructure:"store"` // "postgres" or "redis"

	LoggingMethods  []string `mapstructure:"logging_methods"` // empty means every method
	SensitiveFields []string `mapstructure:"sensitive_fields"`
	// CleanedSubstitute is kept untyped so a non-string value in the config
	// file is rejected when the interceptor is built, not coerced.
	CleanedSubstitute  interface{} `mapstructure:"cleaned_substitute"`
	DecodeRequestBody  bool        `mapstructure:"decode_request_body"`
	RecursiveRedaction bool        `mapstructure:"recursive_redaction"`

	PersistMode    string        `mapstructure:"persist_mode"` // "sync" or "async"
	AsyncWorkers   int           `mapstructure:"async_workers"`
	AsyncQueueSize int           `mapstructure:"async_queue_size"`
	PersistTimeout time.Duration `mapstructure:"persist_timeout"`

	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Retention RetentionConfig `mapstructure:"retention"`

	RedisTTL time.Duration `mapstructure:"redis_ttl"`
}

type BreakerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxFailures uint32        `mapstructure:"max_failures"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

type RetentionConfig struct {
	Days     int    `mapstructure:"days"`     // 0 keeps records forever
	Schedule string `mapstructure:"schedule"` // cron expression
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "api-tracking")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.env", "development")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("logging.level", "info")

	v.SetDefault("tracking.enabled", true)
	v.SetDefault("tracking.store", StorePostgres)
	v.SetDefault("tracking.cleaned_substitute", "********************")
	v.SetDefault("tracking.decode_request_body", true)
	v.SetDefault("tracking.persist_mode", PersistSync)
	v.SetDefault("tracking.async_workers", 4)
	v.SetDefault("tracking.async_queue_size", 1024)
	v.SetDefault("tracking.persist_timeout", 5*time.Second)
	v.SetDefault("tracking.breaker.max_failures", 5)
	v.SetDefault("tracking.breaker.open_timeout", 30*time.Second)
	v.SetDefault("tracking.retention.schedule", "0 3 * * *")
	v.SetDefault("tracking.redis_ttl", 30*24*time.Hour)
}

func NewConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Methods are compared upper-case everywhere
	for i, m := range cfg.Tracking.LoggingMethods {
		cfg.Tracking.LoggingMethods[i] = strings.ToUpper(strings.TrimSpace(m))
	}

	return &cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// UsesRedisStore reports whether request logs go to redis instead of postgres
func (c *Config) UsesRedisStore() bool {
	return c.Tracking.Store == StoreRedis
}
