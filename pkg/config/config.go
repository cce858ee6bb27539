// Package config loads and validates the indexer configuration from YAML
// files with environment-variable overrides. It provides typed structs for
// every subsystem (Indexer, Discovery, Logging, Metrics, Publish, Kafka,
// Redis, Postgres).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

// Config is the top-level application configuration.
type Config struct {
	Indexer   IndexerConfig   `yaml:"indexer"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Publish   PublishConfig   `yaml:"publish"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
}

// IndexerConfig controls how documents are analyzed and where the segment
// is committed.
type IndexerConfig struct {
	IndexDir       string `yaml:"indexDir"`
	SegmentName    string `yaml:"segmentName"`
	ContentField   string `yaml:"contentField"`
	TrackPositions bool   `yaml:"trackPositions"`
	Tokenizer      string `yaml:"tokenizer"`
	Workers        int    `yaml:"workers"`
}

// DiscoveryConfig controls which files under the data directory are indexed.
type DiscoveryConfig struct {
	Pattern       string `yaml:"pattern"`
	Recursive     bool   `yaml:"recursive"`
	IncludeHidden bool   `yaml:"includeHidden"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls where build metrics are written. An empty
// TextfilePath disables the export.
type MetricsConfig struct {
	TextfilePath string `yaml:"textfilePath"`
}

// PublishConfig bounds every notification sink call.
type PublishConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"maxAttempts"`
}

// KafkaConfig holds broker and topic settings. No brokers disables the sink.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// RedisConfig holds connection parameters for the manifest sink. An empty
// Addr disables the sink.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	PoolSize  int           `yaml:"poolSize"`
	KeyPrefix string        `yaml:"keyPrefix"`
	BuildTTL  time.Duration `yaml:"buildTTL"`
}

// PostgresConfig holds PostgreSQL connection parameters for the build
// catalog sink. An empty Host disables the sink.
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
}

// DSN returns a lib/pq keyword/value connection string. Values are quoted
// so passwords containing spaces or quotes survive, and the connection is
// labelled with the textindex application name.
func (p PostgresConfig) DSN() string {
	parts := []string{
		"host=" + dsnValue(p.Host),
		"port=" + strconv.Itoa(p.Port),
		"user=" + dsnValue(p.User),
		"password=" + dsnValue(p.Password),
		"dbname=" + dsnValue(p.Database),
		"sslmode=" + dsnValue(p.SSLMode),
		"application_name=textindex",
		"connect_timeout=5",
	}
	return strings.Join(parts, " ")
}

// Target identifies the catalog for log and error messages.
func (p PostgresConfig) Target() string {
	return fmt.Sprintf("%s:%d/%s", p.Host, p.Port, p.Database)
}

func dsnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := Default()
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
	return cfg, nil
}

// Default returns a Config with the defaults used when no file is given.
func Default() *Config {
	return &Config{
		Indexer: IndexerConfig{
			SegmentName:  "index.seg",
			ContentField: "contents",
			Tokenizer:    "ascii",
		},
		Discovery: DiscoveryConfig{
			Pattern: "*.txt",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Publish: PublishConfig{
			Timeout:     5 * time.Second,
			MaxAttempts: 3,
		},
		Kafka: KafkaConfig{
			Topic: "index.complete",
		},
		Redis: RedisConfig{
			PoolSize:  4,
			KeyPrefix: "textindex:",
			BuildTTL:  24 * time.Hour,
		},
		Postgres: PostgresConfig{
			Port:            5432,
			Database:        "textindex",
			User:            "textindex",
			SSLMode:         "disable",
			MaxOpenConns:    2,
			MaxIdleConns:    1,
			ConnMaxLifetime: 5 * time.Minute,
		},
	}
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Indexer.Tokenizer {
	case "ascii", "unicode":
	default:
		return apperrors.Newf(apperrors.ErrInvalidConfig, "unknown tokenizer %q", c.Indexer.Tokenizer)
	}
	if c.Indexer.Workers < 0 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, "workers must not be negative, got %d", c.Indexer.Workers)
	}
	if strings.TrimSpace(c.Indexer.ContentField) == "" {
		return apperrors.New(apperrors.ErrInvalidConfig, "content field must not be empty")
	}
	if strings.TrimSpace(c.Indexer.SegmentName) == "" || strings.ContainsAny(c.Indexer.SegmentName, `/\`) {
		return apperrors.Newf(apperrors.ErrInvalidConfig, "invalid segment name %q", c.Indexer.SegmentName)
	}
	if c.Discovery.Pattern == "" {
		return apperrors.New(apperrors.ErrInvalidConfig, "discovery pattern must not be empty")
	}
	return nil
}

// applyEnvOverrides reads TIX_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TIX_INDEX_DIR"); v != "" {
		cfg.Indexer.IndexDir = v
	}
	if v := os.Getenv("TIX_SEGMENT_NAME"); v != "" {
		cfg.Indexer.SegmentName = v
	}
	if v := os.Getenv("TIX_CONTENT_FIELD"); v != "" {
		cfg.Indexer.ContentField = v
	}
	if v := os.Getenv("TIX_TRACK_POSITIONS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Indexer.TrackPositions = b
		}
	}
	if v := os.Getenv("TIX_TOKENIZER"); v != "" {
		cfg.Indexer.Tokenizer = v
	}
	if v := os.Getenv("TIX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.Workers = n
		}
	}
	if v := os.Getenv("TIX_PATTERN"); v != "" {
		cfg.Discovery.Pattern = v
	}
	if v := os.Getenv("TIX_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TIX_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("TIX_METRICS_TEXTFILE"); v != "" {
		cfg.Metrics.TextfilePath = v
	}
	if v := os.Getenv("TIX_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("TIX_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("TIX_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TIX_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("TIX_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("TIX_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("TIX_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
}
