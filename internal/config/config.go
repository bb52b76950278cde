// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Scraper   ScraperConfig   `mapstructure:"scraper"`
	Session   SessionConfig   `mapstructure:"session"`
	Store     StoreConfig     `mapstructure:"store"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Insight   InsightConfig   `mapstructure:"insight"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ScraperConfig governs discovery and extraction behavior.
type ScraperConfig struct {
	MaxPostsDefault    int `mapstructure:"max_posts_default"`
	DiscoveryMaxRounds int `mapstructure:"discovery_max_rounds"`
	StaleHeightRounds  int `mapstructure:"stale_height_rounds"`
	ExtractMaxRounds   int `mapstructure:"extract_max_rounds"`
	ExtractStaleRounds int `mapstructure:"extract_stale_rounds"`
	SettleMs           int `mapstructure:"settle_ms"`
	ClickLimit         int `mapstructure:"click_limit"`
}

// SessionConfig configures the headless browser sessions.
type SessionConfig struct {
	Headless          bool    `mapstructure:"headless"`
	UserAgent         string  `mapstructure:"user_agent"`
	NavTimeoutSeconds int     `mapstructure:"nav_timeout_seconds"`
	MaxParallel       int     `mapstructure:"max_parallel"`
	DomainQPS         float64 `mapstructure:"domain_qps"`
}

// StoreConfig selects and configures the aggregate store backend.
type StoreConfig struct {
	Provider string         `mapstructure:"provider"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// MongoConfig controls access to MongoDB.
type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// PostgresConfig controls access to PostgreSQL.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
}

// PublisherConfig holds metadata for publish-subscribe notifications.
type PublisherConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// ArchiveConfig sets where raw page captures are persisted.
type ArchiveConfig struct {
	Provider string `mapstructure:"provider"`
	LocalDir string `mapstructure:"local_dir"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
}

// InsightConfig configures comment summarization.
type InsightConfig struct {
	Provider       string `mapstructure:"provider"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SOCIALCRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 120)
	v.SetDefault("scraper.max_posts_default", 12)
	v.SetDefault("scraper.discovery_max_rounds", 20)
	v.SetDefault("scraper.stale_height_rounds", 3)
	v.SetDefault("scraper.extract_max_rounds", 10)
	v.SetDefault("scraper.extract_stale_rounds", 2)
	v.SetDefault("scraper.settle_ms", 1500)
	v.SetDefault("scraper.click_limit", 5)
	v.SetDefault("session.headless", true)
	v.SetDefault("session.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36")
	v.SetDefault("session.nav_timeout_seconds", 25)
	v.SetDefault("session.max_parallel", 2)
	v.SetDefault("session.domain_qps", 0.5)
	v.SetDefault("store.provider", "memory")
	v.SetDefault("store.mongo.database", "socialcrawler")
	v.SetDefault("store.postgres.max_conns", 4)
	v.SetDefault("publisher.provider", "noop")
	v.SetDefault("archive.provider", "none")
	v.SetDefault("archive.prefix", "captures")
	v.SetDefault("insight.provider", "fallback")
	v.SetDefault("insight.model", "gpt-4o-mini")
	v.SetDefault("insight.base_url", "https://api.openai.com/v1")
	v.SetDefault("insight.timeout_seconds", 30)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scraper.MaxPostsDefault <= 0 {
		return fmt.Errorf("scraper.max_posts_default must be > 0")
	}
	if c.Session.MaxParallel <= 0 {
		return fmt.Errorf("session.max_parallel must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Store.Provider {
	case "memory":
	case "mongo":
		if c.Store.Mongo.URI == "" {
			return fmt.Errorf("store.mongo.uri must be set when store.provider is mongo")
		}
	case "postgres":
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store.postgres.dsn must be set when store.provider is postgres")
		}
	default:
		return fmt.Errorf("store.provider must be one of memory, mongo, postgres")
	}
	switch c.Publisher.Provider {
	case "noop", "memory":
	case "pubsub":
		if c.Publisher.ProjectID == "" || c.Publisher.TopicID == "" {
			return fmt.Errorf("publisher.project_id and publisher.topic_id must be set when publisher.provider is pubsub")
		}
	default:
		return fmt.Errorf("publisher.provider must be one of noop, memory, pubsub")
	}
	switch c.Archive.Provider {
	case "none":
	case "local":
		if c.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir must be set when archive.provider is local")
		}
	case "gcs":
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket must be set when archive.provider is gcs")
		}
	default:
		return fmt.Errorf("archive.provider must be one of none, local, gcs")
	}
	switch c.Insight.Provider {
	case "fallback":
	case "openai":
		if c.Insight.APIKey == "" {
			return fmt.Errorf("insight.api_key must be set when insight.provider is openai")
		}
	default:
		return fmt.Errorf("insight.provider must be one of fallback, openai")
	}
	return nil
}

// RequestTimeout converts the server timeout config into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// NavTimeout converts the session navigation timeout into a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Session.NavTimeoutSeconds) * time.Second
}

// Settle converts the scraper settle delay into a duration.
func (c Config) Settle() time.Duration {
	return time.Duration(c.Scraper.SettleMs) * time.Millisecond
}
