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

	Database     DatabaseConfig
	Redis        RedisConfig
	Broker       BrokerConfig
	CORS         CORSConfig
	Log          LogConfig
	Certificates CertificatesConfig
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

// BrokerConfig configures the RabbitMQ event publisher.
type BrokerConfig struct {
	URL            string
	Exchange       string
	Source         string
	ConnectRetries int
	ConnectBackoff time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CertificatesConfig governs artifact rendering and signed downloads.
type CertificatesConfig struct {
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	Issuer            string
	Locality          string
	ValidationBaseURL string
	ValidateCacheTTL  time.Duration
	WorkerConcurrency int
	WorkerRetries     int
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

	cfg.Broker = BrokerConfig{
		URL:            v.GetString("RABBITMQ_URL"),
		Exchange:       v.GetString("RABBITMQ_EXCHANGE"),
		Source:         v.GetString("EVENT_SOURCE"),
		ConnectRetries: v.GetInt("RABBITMQ_CONNECT_RETRIES"),
		ConnectBackoff: parseDuration(v.GetString("RABBITMQ_CONNECT_BACKOFF"), 500*time.Millisecond),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Certificates = CertificatesConfig{
		StorageDir:        v.GetString("CERTIFICATES_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("CERTIFICATES_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("CERTIFICATES_SIGNED_URL_TTL"), 5*time.Minute),
		Issuer:            v.GetString("CERTIFICATES_ISSUER"),
		Locality:          v.GetString("CERTIFICATES_LOCALITY"),
		ValidationBaseURL: v.GetString("CERTIFICATES_VALIDATION_BASE_URL"),
		ValidateCacheTTL:  parseDuration(v.GetString("CERTIFICATES_VALIDATE_CACHE_TTL"), time.Minute),
		WorkerConcurrency: v.GetInt("CERTIFICATES_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("CERTIFICATES_WORKER_RETRIES"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/progress/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "nextlevel_progress")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("RABBITMQ_EXCHANGE", "progress.events")
	v.SetDefault("EVENT_SOURCE", "progress-service")
	v.SetDefault("RABBITMQ_CONNECT_RETRIES", 10)
	v.SetDefault("RABBITMQ_CONNECT_BACKOFF", "500ms")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CERTIFICATES_STORAGE_DIR", "./certificates")
	v.SetDefault("CERTIFICATES_SIGNED_URL_SECRET", "dev_certificates_secret")
	v.SetDefault("CERTIFICATES_SIGNED_URL_TTL", "5m")
	v.SetDefault("CERTIFICATES_ISSUER", "NextLevel E-Learning")
	v.SetDefault("CERTIFICATES_LOCALITY", "Curitiba - PR, Brasil")
	v.SetDefault("CERTIFICATES_VALIDATION_BASE_URL", "https://validar.nextlevel.com.br/cert")
	v.SetDefault("CERTIFICATES_VALIDATE_CACHE_TTL", "1m")
	v.SetDefault("CERTIFICATES_WORKER_CONCURRENCY", 1)
	v.SetDefault("CERTIFICATES_WORKER_RETRIES", 3)
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
