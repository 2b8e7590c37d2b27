package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort         int      `env:"SERVER_PORT" envDefault:"8080"`
	PublicBaseURL      string   `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`
	LogLevel           string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat          string   `env:"LOG_FORMAT" envDefault:"text"`
	// TrustedProxies lists proxy IPs or CIDRs whose X-Forwarded-For and
	// X-Real-IP headers are believed. Empty means no proxy is trusted.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	Auth      AuthConfig
	RateLimit RateLimitConfig
	Database  DatabaseConfig
	Storage   StorageConfig
	MQ        MQConfig
	Redis     RedisConfig
}

type AuthConfig struct {
	JWTSecret string `env:"JWT_SECRET"`
	// AdminSecretKey enables POST /create-admin when set.
	AdminSecretKey string `env:"ADMIN_SECRET_KEY"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `env:"RATE_LIMIT_RPS" envDefault:"5"`
	Burst             int     `env:"RATE_LIMIT_BURST" envDefault:"10"`
}

type DatabaseConfig struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"civictrack"`
	Password string `env:"DB_PASSWORD" envDefault:"password"`
	DBName   string `env:"DB_NAME" envDefault:"civictrack_db"`
	UseSSL   bool   `env:"DB_USE_SSL" envDefault:"false"`
}

type StorageConfig struct {
	// Backend is one of "local", "minio" or "gcs".
	Backend    string `env:"STORAGE_BACKEND" envDefault:"local"`
	UploadsDir string `env:"UPLOADS_DIR" envDefault:"./uploads"`
	Minio      MinioConfig
	GCS        GCSConfig
}

type MinioConfig struct {
	Endpoint  string `env:"MINIO_ENDPOINT"`
	AccessKey string `env:"MINIO_ACCESS_KEY"`
	SecretKey string `env:"MINIO_SECRET_KEY"`
	Bucket    string `env:"MINIO_BUCKET" envDefault:"complaint-images"`
	UseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`
}

type GCSConfig struct {
	Bucket          string `env:"GCS_BUCKET"`
	ProjectID       string `env:"GCS_PROJECT_ID"`
	CredentialsFile string `env:"GCS_CREDENTIALS_FILE"`
}

type MQConfig struct {
	// Backend is empty (events disabled), "rabbitmq" or "pubsub".
	Backend  string `env:"MQ_BACKEND"`
	Channel  string `env:"EVENTS_CHANNEL" envDefault:"complaint-events"`
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL             string `env:"RABBITMQ_URL"`
	QueueDurable    bool   `env:"RABBITMQ_QUEUE_DURABLE" envDefault:"true"`
	QueueAutoDelete bool   `env:"RABBITMQ_QUEUE_AUTO_DELETE" envDefault:"false"`
	PrefetchCount   int    `env:"RABBITMQ_PREFETCH" envDefault:"10"`
}

type PubSubConfig struct {
	ProjectID          string `env:"PUBSUB_PROJECT_ID"`
	CredentialsFile    string `env:"PUBSUB_CREDENTIALS_FILE"`
	SubscriptionSuffix string `env:"PUBSUB_SUBSCRIPTION_SUFFIX" envDefault:"-sub"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// LoadConfig reads configuration from the environment. In dev mode a local
// .env file is loaded first.
func LoadConfig() (Config, error) {
	if os.Getenv("ENV") == "dev" {
		_ = godotenv.Load()
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	return cfg, nil
}

// Validate checks settings that only the server needs.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.Storage.Backend {
	case "local", "minio", "gcs":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch c.MQ.Backend {
	case "", "rabbitmq", "pubsub":
	default:
		return fmt.Errorf("unknown mq backend %q", c.MQ.Backend)
	}
	return nil
}

// RedisEnabled reports whether a Redis server is configured.
func (c Config) RedisEnabled() bool {
	return strings.TrimSpace(c.Redis.Addr) != ""
}
