// Package config loads and validates the transform configuration from YAML
// files with environment-variable overrides. It provides typed structs for
// every subsystem (Postgres, Kafka, Redis, Transform, Quality, etc.).
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Transform TransformConfig `yaml:"transform"`
	Quality   QualityConfig   `yaml:"quality"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds the health/status HTTP server settings used in loop and
// trigger modes.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	AutoMigrate     bool          `yaml:"autoMigrate"`
	ConnectAttempts int           `yaml:"connectAttempts"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// URL returns the same connection as a postgres:// URL.
func (p PostgresConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     p.Database,
		RawQuery: "sslmode=" + p.SSLMode,
	}
	return u.String()
}

// KafkaConfig holds Kafka broker and topic settings. Kafka is optional; when
// disabled no events are produced and trigger mode is unavailable.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	SnapshotsLoaded    string `yaml:"snapshotsLoaded"`
	TransformCompleted string `yaml:"transformCompleted"`
	QualityReports     string `yaml:"qualityReports"`
}

// RedisConfig holds Redis connection parameters, the run-lock settings and
// the dashboard cache key pattern invalidated after each publish.
type RedisConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Addr            string        `yaml:"addr"`
	Password        string        `yaml:"password"`
	DB              int           `yaml:"db"`
	PoolSize        int           `yaml:"poolSize"`
	LockKey         string        `yaml:"lockKey"`
	LockTTL         time.Duration `yaml:"lockTTL"`
	CacheKeyPattern string        `yaml:"cacheKeyPattern"`
}

// RawTables names the append-only snapshot tables read by the transform.
type RawTables struct {
	Contacts  string `yaml:"contacts"`
	PushStats string `yaml:"pushStats"`
	Campaigns string `yaml:"campaigns"`
}

// TransformConfig controls the batch transform itself.
type TransformConfig struct {
	DefaultTenant  string        `yaml:"defaultTenant"`
	DefaultAccount string        `yaml:"defaultAccount"`
	Entities       []string      `yaml:"entities"`
	Workers        int           `yaml:"workers"`
	LoadAttempts   int           `yaml:"loadAttempts"`
	Interval       time.Duration `yaml:"interval"`
	RunTimeout     time.Duration `yaml:"runTimeout"`
	RawTables      RawTables     `yaml:"rawTables"`
}

// QualityConfig controls the post-publish Quality Gate.
type QualityConfig struct {
	Enabled     bool `yaml:"enabled"`
	PersistRuns bool `yaml:"persistRuns"`
	Strict      bool `yaml:"strict"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig toggles stage span logging.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the transform cannot run with. Every
// error wraps ErrInvalidConfig.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Transform.DefaultTenant) == "" {
		return fmt.Errorf("%w: transform.defaultTenant must not be empty", apperrors.ErrInvalidConfig)
	}
	if c.Transform.Workers <= 0 {
		return fmt.Errorf("%w: transform.workers must be positive, got %d", apperrors.ErrInvalidConfig, c.Transform.Workers)
	}
	if c.Transform.LoadAttempts <= 0 {
		return fmt.Errorf("%w: transform.loadAttempts must be positive, got %d", apperrors.ErrInvalidConfig, c.Transform.LoadAttempts)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("%w: kafka.brokers must be set when kafka is enabled", apperrors.ErrInvalidConfig)
	}
	if c.Redis.Enabled && c.Redis.LockTTL <= 0 {
		return fmt.Errorf("%w: redis.lockTTL must be positive when redis is enabled", apperrors.ErrInvalidConfig)
	}
	if c.Redis.Enabled && c.Redis.CacheKeyPattern != "" && strings.Count(c.Redis.CacheKeyPattern, "%s") != 1 {
		return fmt.Errorf("%w: redis.cacheKeyPattern must contain exactly one %%s", apperrors.ErrInvalidConfig)
	}
	return nil
}

// defaultConfig returns a Config with defaults suited to local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8090,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "engagement",
			User:            "engagement",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			AutoMigrate:     true,
			ConnectAttempts: 5,
		},
		Kafka: KafkaConfig{
			Enabled:       false,
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "engagement-transform",
			Topics: KafkaTopics{
				SnapshotsLoaded:    "snapshots.loaded",
				TransformCompleted: "transform.completed",
				QualityReports:     "quality.reports",
			},
		},
		Redis: RedisConfig{
			Enabled:         false,
			Addr:            "localhost:6379",
			PoolSize:        5,
			LockKey:         "engagement-transform:run-lock",
			LockTTL:         10 * time.Minute,
			CacheKeyPattern: "dashboard:%s:*",
		},
		Transform: TransformConfig{
			DefaultTenant:  "visionamos",
			DefaultAccount: "100274",
			Workers:        4,
			LoadAttempts:   3,
			RunTimeout:     10 * time.Minute,
			RawTables: RawTables{
				Contacts:  "raw.raw_contacts_api",
				PushStats: "raw.raw_push_stats",
				Campaigns: "raw.raw_campaigns_api",
			},
		},
		Quality: QualityConfig{
			Enabled:     true,
			PersistRuns: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads ET_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ET_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ET_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("ET_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("ET_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("ET_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("ET_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("ET_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("ET_POSTGRES_AUTO_MIGRATE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Postgres.AutoMigrate = b
		}
	}
	if v := os.Getenv("ET_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("ET_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("ET_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv("ET_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("ET_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("ET_TRANSFORM_DEFAULT_TENANT"); v != "" {
		cfg.Transform.DefaultTenant = v
	}
	if v := os.Getenv("ET_TRANSFORM_DEFAULT_ACCOUNT"); v != "" {
		cfg.Transform.DefaultAccount = v
	}
	if v := os.Getenv("ET_TRANSFORM_ENTITIES"); v != "" {
		cfg.Transform.Entities = strings.Split(v, ",")
	}
	if v := os.Getenv("ET_TRANSFORM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Transform.Workers = n
		}
	}
	if v := os.Getenv("ET_TRANSFORM_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Transform.Interval = d
		}
	}
	if v := os.Getenv("ET_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ET_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("ET_METRICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
	if v := os.Getenv("ET_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
