package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	CORS       CORSConfig
	Log        LogConfig
	Billing    BillingConfig
	Transition TransitionConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// BillingConfig points the engine at the external billing collaborator.
type BillingConfig struct {
	Enabled    bool
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// TransitionConfig carries the module closure policy knobs.
type TransitionConfig struct {
	FrequencyThreshold      float64
	DefaultChargeCents      int64
	BatchPreviewConcurrency int
	BatchCloseConcurrency   int
	PreviewCacheTTL         time.Duration
	BringForward            bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Billing = BillingConfig{
		Enabled:    v.GetBool("BILLING_ENABLED"),
		BaseURL:    v.GetString("BILLING_BASE_URL"),
		Timeout:    parseDuration(v.GetString("BILLING_TIMEOUT"), 10*time.Second),
		MaxRetries: v.GetInt("BILLING_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("BILLING_RETRY_DELAY"), 30*time.Second),
	}

	threshold := v.GetFloat64("TRANSITION_FREQUENCY_THRESHOLD")
	if threshold <= 0 || threshold > 100 {
		threshold = 75
	}
	previewConcurrency := v.GetInt("TRANSITION_BATCH_PREVIEW_CONCURRENCY")
	if previewConcurrency < 1 {
		previewConcurrency = 4
	}
	closeConcurrency := v.GetInt("TRANSITION_BATCH_CLOSE_CONCURRENCY")
	if closeConcurrency < 1 {
		closeConcurrency = 1
	}
	cfg.Transition = TransitionConfig{
		FrequencyThreshold:      threshold,
		DefaultChargeCents:      v.GetInt64("TRANSITION_DEFAULT_CHARGE_CENTS"),
		BatchPreviewConcurrency: previewConcurrency,
		BatchCloseConcurrency:   closeConcurrency,
		PreviewCacheTTL:         parseDuration(v.GetString("TRANSITION_PREVIEW_CACHE_TTL"), time.Minute),
		BringForward:            v.GetBool("TRANSITION_BRING_FORWARD"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "ibuc_admin")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("BILLING_ENABLED", false)
	v.SetDefault("BILLING_BASE_URL", "http://localhost:3000")
	v.SetDefault("BILLING_TIMEOUT", "10s")
	v.SetDefault("BILLING_MAX_RETRIES", 3)
	v.SetDefault("BILLING_RETRY_DELAY", "30s")

	v.SetDefault("TRANSITION_FREQUENCY_THRESHOLD", 75)
	v.SetDefault("TRANSITION_DEFAULT_CHARGE_CENTS", 5000)
	v.SetDefault("TRANSITION_BATCH_PREVIEW_CONCURRENCY", 4)
	v.SetDefault("TRANSITION_BATCH_CLOSE_CONCURRENCY", 1)
	v.SetDefault("TRANSITION_PREVIEW_CACHE_TTL", "1m")
	v.SetDefault("TRANSITION_BRING_FORWARD", false)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
