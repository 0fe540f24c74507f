package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(NewConfig),
)

// Config holds all application configuration
type Config struct {
	// Server settings
	ServerPort    int    `env:"SERVER_PORT" envDefault:"8080"`
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"0.0.0.0"`
	Environment   string `env:"ENVIRONMENT" envDefault:"local"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	Database         DatabaseConfig
	Queue            QueueConfig
	Processor        ProcessorConfig
	Notifier         NotifierConfig
	ContentGenerator ContentGeneratorConfig
	Storage          StorageConfig
	Archive          ArchiveConfig
	Tracing          TracingConfig

	// Server timeouts
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	User     string `env:"POSTGRES_USER" envDefault:"oppgjor"`
	Password string `env:"POSTGRES_PASSWORD" envDefault:""`
	Database string `env:"POSTGRES_DB" envDefault:"oppgjorsrapporter"`
	SSLMode  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// MaxConns must leave room for the ops endpoints on top of the
	// connection each background loop holds during a unit of work.
	MaxConns        int           `env:"DB_MAX_CONNS" envDefault:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" envDefault:"2"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"5m"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"30m"`
	ConnectTimeout  time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"10s"`
	// StatementTimeout bounds a single statement, 0 disables it
	StatementTimeout time.Duration `env:"DB_STATEMENT_TIMEOUT" envDefault:"30s"`
	ApplicationName  string        `env:"DB_APPLICATION_NAME" envDefault:"sokos-oppgjorsrapporter"`

	QueryDebug bool          `env:"DB_QUERY_DEBUG" envDefault:"false"`
	SlowQuery  time.Duration `env:"DB_SLOW_QUERY" envDefault:"1s"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// QueueConfig holds settings for the inbound order queue.
type QueueConfig struct {
	// Driver is "redis" or "memory"
	Driver        string `env:"QUEUE_DRIVER" envDefault:"redis"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	Stream        string `env:"QUEUE_STREAM" envDefault:"oppgjor.refusjon"`
	Group         string `env:"QUEUE_GROUP" envDefault:"oppgjorsrapporter"`
	// Consumer defaults to the hostname when empty
	Consumer string `env:"QUEUE_CONSUMER" envDefault:""`
	// Source is stored on each order and selects the decoder
	Source         string        `env:"QUEUE_SOURCE" envDefault:"refusjon"`
	ReceiveTimeout time.Duration `env:"QUEUE_RECEIVE_TIMEOUT" envDefault:"2s"`
	ClaimIdle      time.Duration `env:"QUEUE_CLAIM_IDLE" envDefault:"5m"`
	RetryPause     time.Duration `env:"QUEUE_RETRY_PAUSE" envDefault:"1s"`
	Enabled        bool          `env:"QUEUE_ENABLED" envDefault:"true"`
}

// ProcessorConfig holds order processor loop settings.
type ProcessorConfig struct {
	Enabled      bool          `env:"PROCESSOR_ENABLED" envDefault:"true"`
	BaseDelay    time.Duration `env:"PROCESSOR_BASE_DELAY" envDefault:"1s"`
	Growth       float64       `env:"PROCESSOR_GROWTH_FACTOR" envDefault:"1.5"`
	MaxDelay     time.Duration `env:"PROCESSOR_MAX_DELAY" envDefault:"5m"`
	FailureDelay time.Duration `env:"PROCESSOR_FAILURE_DELAY" envDefault:"0s"`
	// Formats lists the variants rendered for each report
	Formats []string `env:"PROCESSOR_VARIANT_FORMATS" envDefault:"pdf,csv" envSeparator:","`
}

// NotifierConfig holds notification delivery settings.
type NotifierConfig struct {
	Enabled bool `env:"NOTIFIER_ENABLED" envDefault:"true"`
	// Systems is a comma separated list of name=baseURL pairs. The first
	// entry owns the report's correlation id.
	Systems []string `env:"NOTIFIER_SYSTEMS" envDefault:"" envSeparator:","`

	BaseDelay  time.Duration `env:"NOTIFIER_BASE_DELAY" envDefault:"10s"`
	Growth     float64       `env:"NOTIFIER_GROWTH_FACTOR" envDefault:"2"`
	MaxDelay   time.Duration `env:"NOTIFIER_MAX_DELAY" envDefault:"6h"`
	MaxJitter  time.Duration `env:"NOTIFIER_MAX_JITTER" envDefault:"5s"`
	RetryPause time.Duration `env:"NOTIFIER_RETRY_POLL_DELAY" envDefault:"5s"`

	PollBaseDelay time.Duration `env:"NOTIFIER_POLL_BASE_DELAY" envDefault:"1s"`
	PollGrowth    float64       `env:"NOTIFIER_POLL_GROWTH_FACTOR" envDefault:"1.5"`
	PollMaxDelay  time.Duration `env:"NOTIFIER_POLL_MAX_DELAY" envDefault:"1m"`

	Timeout   time.Duration `env:"NOTIFIER_TIMEOUT" envDefault:"10s"`
	RateLimit float64       `env:"NOTIFIER_RATE_LIMIT" envDefault:"5"`
	RateBurst int           `env:"NOTIFIER_RATE_BURST" envDefault:"5"`
}

// Target is one downstream notification system.
type Target struct {
	Name    string
	BaseURL string
}

// Targets parses Systems into ordered name/URL pairs.
func (n *NotifierConfig) Targets() ([]Target, error) {
	targets := make([]Target, 0, len(n.Systems))
	seen := make(map[string]bool, len(n.Systems))
	for _, raw := range n.Systems {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		name, url, ok := strings.Cut(raw, "=")
		name, url = strings.TrimSpace(name), strings.TrimSpace(url)
		if !ok || name == "" || url == "" {
			return nil, fmt.Errorf("invalid notifier system %q, expected name=url", raw)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate notifier system %q", name)
		}
		seen[name] = true
		targets = append(targets, Target{Name: name, BaseURL: strings.TrimRight(url, "/")})
	}
	return targets, nil
}

// ContentGeneratorConfig holds PDF generator settings.
type ContentGeneratorConfig struct {
	URL      string        `env:"CONTENT_GENERATOR_URL" envDefault:"http://localhost:9090"`
	Template string        `env:"CONTENT_GENERATOR_TEMPLATE" envDefault:"refusjon"`
	Timeout  time.Duration `env:"CONTENT_GENERATOR_TIMEOUT" envDefault:"30s"`
}

// StorageConfig holds storage (MinIO/S3) configuration
type StorageConfig struct {
	// Endpoint is the MinIO/S3 endpoint URL
	Endpoint string `env:"S3_ENDPOINT" envDefault:""`
	// AccessKeyID is the access key ID
	AccessKeyID string `env:"S3_ACCESS_KEY" envDefault:""`
	// SecretAccessKey is the secret access key
	SecretAccessKey string `env:"S3_SECRET_KEY" envDefault:""`
	// Bucket is the bucket name
	Bucket string `env:"S3_BUCKET" envDefault:"oppgjorsrapporter-arkiv"`
	// UseSSL determines if SSL should be used
	UseSSL bool `env:"S3_USE_SSL" envDefault:"false"`
	// Region is the bucket region (for S3 compatibility)
	Region string `env:"S3_REGION" envDefault:"us-east-1"`
}

// IsConfigured returns true if storage is configured
func (s *StorageConfig) IsConfigured() bool {
	return s.Endpoint != "" && s.AccessKeyID != "" && s.SecretAccessKey != ""
}

// ArchiveConfig holds the archival task settings.
type ArchiveConfig struct {
	Enabled  bool          `env:"ARCHIVE_ENABLED" envDefault:"true"`
	Schedule string        `env:"ARCHIVE_SCHEDULE" envDefault:"0 15 2 * * *"`
	After    time.Duration `env:"ARCHIVE_AFTER" envDefault:"2160h"`
	Batch    int           `env:"ARCHIVE_BATCH_SIZE" envDefault:"100"`
}

// NewConfig loads configuration from environment variables
func NewConfig(log *slog.Logger) (*Config, error) {
	cfg, err := NewConfigFromEnv()
	if err != nil {
		return nil, err
	}

	log.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.ServerPort),
		slog.String("db_host", cfg.Database.Host),
		slog.String("queue_driver", cfg.Queue.Driver),
		slog.Int("notifier_systems", len(cfg.Notifier.Systems)),
		slog.Bool("tracing", cfg.Tracing.Enabled()),
	)

	return cfg, nil
}

// NewConfigFromEnv parses the environment without logging. Used by the
// command line tools that run outside the fx graph.
func NewConfigFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if _, err := cfg.Notifier.Targets(); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
