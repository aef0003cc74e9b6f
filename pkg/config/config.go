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

// Gateway providers.
const (
	GatewayHeuristic = "heuristic"
	GatewayLLM       = "llm"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string
	Timezone  string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	RateLimit  RateLimitConfig
	Log        LogConfig
	Gateway    GatewayConfig
	Wizard     WizardConfig
	Correction CorrectionConfig
	Export     ExportConfig
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

type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

// RateLimitConfig bounds requests per caller; zero Requests disables limiting.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// LogConfig selects zap encoding and an optional rotating log file.
type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// GatewayConfig selects and tunes the content generation/grading backend.
type GatewayConfig struct {
	Provider          string
	BaseURL           string
	APIKey            string
	Model             string
	Timeout           time.Duration
	RequestsPerMinute int
	CacheEnabled      bool
	CacheTTL          time.Duration
}

// WizardConfig tunes authoring session housekeeping.
type WizardConfig struct {
	SessionTTL    time.Duration
	SweepInterval time.Duration
}

// CorrectionConfig tunes triage thresholds and batch fan-out.
type CorrectionConfig struct {
	ConfidenceThreshold float64
	BatchConcurrency    int
	Workers             int
	Retries             int
	RetryDelay          time.Duration
}

// ExportConfig controls archived grade sheets served by signed link.
type ExportConfig struct {
	Dir           string
	LinkTTL       time.Duration
	SigningSecret string
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.Timezone = v.GetString("APP_TIMEZONE")

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

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Issuer:     v.GetString("JWT_ISSUER"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.RateLimit = RateLimitConfig{
		Requests: v.GetInt("RATE_LIMIT_REQUESTS"),
		Window:   parseDuration(v.GetString("RATE_LIMIT_WINDOW"), time.Minute),
	}

	cfg.Log = LogConfig{
		Level:      v.GetString("LOG_LEVEL"),
		Format:     v.GetString("LOG_FORMAT"),
		File:       v.GetString("LOG_FILE"),
		MaxSizeMB:  v.GetInt("LOG_MAX_SIZE_MB"),
		MaxBackups: v.GetInt("LOG_MAX_BACKUPS"),
		MaxAgeDays: v.GetInt("LOG_MAX_AGE_DAYS"),
	}

	cfg.Gateway = GatewayConfig{
		Provider:          strings.ToLower(v.GetString("GATEWAY_PROVIDER")),
		BaseURL:           strings.TrimRight(v.GetString("LLM_BASE_URL"), "/"),
		APIKey:            v.GetString("LLM_API_KEY"),
		Model:             v.GetString("LLM_MODEL"),
		Timeout:           parseDuration(v.GetString("LLM_TIMEOUT"), 30*time.Second),
		RequestsPerMinute: v.GetInt("LLM_REQUESTS_PER_MINUTE"),
		CacheEnabled:      v.GetBool("ENABLE_GENERATION_CACHE"),
		CacheTTL:          parseDuration(v.GetString("GENERATION_CACHE_TTL"), time.Hour),
	}
	if cfg.Gateway.Provider != GatewayLLM {
		cfg.Gateway.Provider = GatewayHeuristic
	}

	cfg.Wizard = WizardConfig{
		SessionTTL:    parseDuration(v.GetString("WIZARD_SESSION_TTL"), 2*time.Hour),
		SweepInterval: parseDuration(v.GetString("WIZARD_SWEEP_INTERVAL"), 10*time.Minute),
	}

	threshold := v.GetFloat64("CORRECTION_CONFIDENCE_THRESHOLD")
	if threshold <= 0 || threshold > 100 {
		threshold = 70
	}
	cfg.Correction = CorrectionConfig{
		ConfidenceThreshold: threshold,
		BatchConcurrency:    v.GetInt("CORRECTION_BATCH_CONCURRENCY"),
		Workers:             v.GetInt("CORRECTION_WORKERS"),
		Retries:             v.GetInt("CORRECTION_RETRIES"),
		RetryDelay:          parseDuration(v.GetString("CORRECTION_RETRY_DELAY"), 5*time.Second),
	}

	cfg.Export = ExportConfig{
		Dir:           v.GetString("EXPORT_DIR"),
		LinkTTL:       parseDuration(v.GetString("EXPORT_LINK_TTL"), 24*time.Hour),
		SigningSecret: v.GetString("EXPORT_SIGNING_SECRET"),
	}
	if cfg.Export.SigningSecret == "" {
		cfg.Export.SigningSecret = cfg.JWT.Secret
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("APP_TIMEZONE", "UTC")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "edu_authoring")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "edu-authoring-api")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("RATE_LIMIT_REQUESTS", 120)
	v.SetDefault("RATE_LIMIT_WINDOW", "1m")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("LOG_MAX_SIZE_MB", 100)
	v.SetDefault("LOG_MAX_BACKUPS", 5)
	v.SetDefault("LOG_MAX_AGE_DAYS", 30)

	v.SetDefault("GATEWAY_PROVIDER", GatewayHeuristic)
	v.SetDefault("LLM_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("LLM_API_KEY", "")
	v.SetDefault("LLM_MODEL", "gpt-4o-mini")
	v.SetDefault("LLM_TIMEOUT", "30s")
	v.SetDefault("LLM_REQUESTS_PER_MINUTE", 60)
	v.SetDefault("ENABLE_GENERATION_CACHE", false)
	v.SetDefault("GENERATION_CACHE_TTL", "1h")

	v.SetDefault("WIZARD_SESSION_TTL", "2h")
	v.SetDefault("WIZARD_SWEEP_INTERVAL", "10m")

	v.SetDefault("CORRECTION_CONFIDENCE_THRESHOLD", 70)
	v.SetDefault("CORRECTION_BATCH_CONCURRENCY", 4)
	v.SetDefault("CORRECTION_WORKERS", 2)
	v.SetDefault("CORRECTION_RETRIES", 3)
	v.SetDefault("CORRECTION_RETRY_DELAY", "5s")

	v.SetDefault("EXPORT_DIR", "./exports")
	v.SetDefault("EXPORT_LINK_TTL", "24h")
	v.SetDefault("EXPORT_SIGNING_SECRET", "")
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
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
