package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the environment driven configuration for the alt-text service.
type Config struct {
	// Service Configuration
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"alttext-api"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	HTTPPort        int           `env:"ALTTEXT_API_PORT" envDefault:"8290"`
	LogLevel        string        `env:"ALTTEXT_LOG_LEVEL" envDefault:"info"`
	EnableTracing   bool          `env:"ENABLE_TRACING" envDefault:"false"`
	OTLPEndpoint    string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Database
	DBPostgresqlWriteDSN string `env:"DB_POSTGRESQL_WRITE_DSN,notEmpty"`

	// Database Connection Pool
	DBMaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBMaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"15"`
	DBConnLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`

	// Storage Backend Selection
	StorageBackend string `env:"ALTTEXT_STORAGE_BACKEND" envDefault:"local"` // Options: "local" or "s3"

	// Local Storage Configuration
	LocalStoragePath string `env:"ALTTEXT_LOCAL_STORAGE_PATH" envDefault:"./media-data"`

	// S3 Storage Configuration
	S3Endpoint     string `env:"ALTTEXT_S3_ENDPOINT"`
	S3Region       string `env:"ALTTEXT_S3_REGION" envDefault:"us-east-1"`
	S3Bucket       string `env:"ALTTEXT_S3_BUCKET"`
	S3AccessKeyID  string `env:"ALTTEXT_S3_ACCESS_KEY_ID"`
	S3SecretKey    string `env:"ALTTEXT_S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle bool   `env:"ALTTEXT_S3_USE_PATH_STYLE" envDefault:"true"`

	// Upload limits
	MaxUploadBytes int64 `env:"ALTTEXT_MAX_UPLOAD_BYTES" envDefault:"20971520"`

	// OpenRouter vision API
	OpenRouterAPIKey       string        `env:"OPENROUTER_API_KEY"`
	OpenRouterBaseURL      string        `env:"OPENROUTER_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	OpenRouterModelOrder   string        `env:"OPENROUTER_MODEL_ORDER"` // comma-separated, tried left to right
	OpenRouterSyncTimeout  time.Duration `env:"OPENROUTER_SYNC_TIMEOUT" envDefault:"8s"`
	OpenRouterBatchTimeout time.Duration `env:"OPENROUTER_BATCH_TIMEOUT" envDefault:"120s"`
	OpenRouterCABundle     string        `env:"OPENROUTER_CA_BUNDLE"` // optional custom trust root (PEM path)
	OpenRouterReferer      string        `env:"OPENROUTER_HTTP_REFERER"`
	OpenRouterTitle        string        `env:"OPENROUTER_X_TITLE" envDefault:"Image Alt Text Maker"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	cfg.S3Bucket = strings.TrimSpace(cfg.S3Bucket)
	cfg.S3AccessKeyID = strings.TrimSpace(cfg.S3AccessKeyID)
	cfg.S3SecretKey = strings.TrimSpace(cfg.S3SecretKey)
	cfg.S3Endpoint = strings.TrimSpace(cfg.S3Endpoint)
	cfg.OpenRouterAPIKey = strings.TrimSpace(cfg.OpenRouterAPIKey)
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20 * 1024 * 1024
	}
	if cfg.IsS3Storage() && cfg.S3Bucket == "" {
		return nil, fmt.Errorf("ALTTEXT_S3_BUCKET is required when the s3 storage backend is selected")
	}
	return cfg, nil
}

// ModelOrder returns the configured vision models in priority order.
func (c *Config) ModelOrder() []string {
	raw := strings.Split(c.OpenRouterModelOrder, ",")
	models := make([]string, 0, len(raw))
	for _, m := range raw {
		if m = strings.TrimSpace(m); m != "" {
			models = append(models, m)
		}
	}
	return models
}

// VisionCredentialsAvailable reports whether an alt-text attempt can be made at all.
func (c *Config) VisionCredentialsAvailable() bool {
	return c.OpenRouterAPIKey != "" && len(c.ModelOrder()) > 0
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// IsLocalStorage returns true if the local storage backend is configured.
func (c *Config) IsLocalStorage() bool {
	backend := strings.ToLower(strings.TrimSpace(c.StorageBackend))
	return backend == "" || backend == "local"
}

// IsS3Storage returns true if the S3 storage backend is configured.
func (c *Config) IsS3Storage() bool {
	return strings.ToLower(strings.TrimSpace(c.StorageBackend)) == "s3"
}
