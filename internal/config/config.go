// Package config defines the crawler's configuration schema and loads it
// from Viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Provider names accepted by the pluggable subsystems.
const (
	QueuePubSub    = "pubsub"
	QueueMemory    = "memory"
	AnnouncePubSub = "pubsub"
	AnnounceMemory = "memory"
	AnnounceNone   = "none"
	StorageLocal   = "local"
	StorageGCS     = "gcs"
	StorageMemory  = "memory"
	DBPostgres     = "postgres"
	DBNoop         = "noop"
)

// Config captures every knob the service reads at startup.
type Config struct {
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Render   RenderConfig   `mapstructure:"render"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Announce AnnounceConfig `mapstructure:"announce"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Batch    BatchConfig    `mapstructure:"batch"`
	Progress ProgressConfig `mapstructure:"progress"`
	Shutdown ShutdownConfig `mapstructure:"shutdown"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// CrawlerConfig governs admission and the crawl pipeline.
type CrawlerConfig struct {
	AllowedDomains      []string      `mapstructure:"allowed_domains"`
	Concurrency         int           `mapstructure:"concurrency"`
	AdmissionsPerMinute int           `mapstructure:"admissions_per_minute"`
	RunBudget           int           `mapstructure:"run_budget"`
	RunTimeout          time.Duration `mapstructure:"run_timeout"`
	MinContentChars     int           `mapstructure:"min_content_chars"`
	MaxIdlePulls        int           `mapstructure:"max_idle_pulls"`
	UserAgent           string        `mapstructure:"user_agent"`
}

// RenderConfig selects and tunes the page renderer.
type RenderConfig struct {
	Provider    string        `mapstructure:"provider"`
	Timeout     time.Duration `mapstructure:"timeout"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	DomainRPS   float64       `mapstructure:"domain_rps"`
	DomainBurst int           `mapstructure:"domain_burst"`
}

// QueueConfig selects and tunes the work-queue source.
type QueueConfig struct {
	Provider    string            `mapstructure:"provider"`
	MaxBatch    int               `mapstructure:"max_batch"`
	WaitTimeout time.Duration     `mapstructure:"wait_timeout"`
	GCP         QueueGCP          `mapstructure:"gcp"`
	Memory      QueueMemoryConfig `mapstructure:"memory"`
}

// QueueGCP identifies the Pub/Sub subscription the consumer pulls from.
type QueueGCP struct {
	ProjectID      string `mapstructure:"project_id"`
	SubscriptionID string `mapstructure:"subscription_id"`
}

// QueueMemoryConfig seeds the in-memory queue for local runs.
type QueueMemoryConfig struct {
	URLs []string `mapstructure:"urls"`
}

// AnnounceConfig selects where newly discovered URLs are announced.
type AnnounceConfig struct {
	Provider string      `mapstructure:"provider"`
	GCP      AnnounceGCP `mapstructure:"gcp"`
}

// AnnounceGCP identifies the Pub/Sub topic discovered URLs are published to.
type AnnounceGCP struct {
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// StorageConfig selects and tunes the page artifact store.
type StorageConfig struct {
	Provider string             `mapstructure:"provider"`
	Prefix   string             `mapstructure:"prefix"`
	GCS      StorageGCSConfig   `mapstructure:"gcs"`
	Local    StorageLocalConfig `mapstructure:"local"`
}

// StorageGCSConfig identifies the artifact bucket.
type StorageGCSConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// StorageLocalConfig sets the on-disk artifact directory.
type StorageLocalConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// DatabaseConfig controls access to the relational page store.
type DatabaseConfig struct {
	Provider    string `mapstructure:"provider"`
	DSN         string `mapstructure:"dsn"`
	Table       string `mapstructure:"table"`
	EventsTable string `mapstructure:"events_table"`
	MaxConns    int    `mapstructure:"max_conns"`
}

// BatchConfig tunes the persistence batcher.
type BatchConfig struct {
	ChunkSize int `mapstructure:"chunk_size"`
	MaxWindow int `mapstructure:"max_window"`
}

// ProgressConfig tunes the progress event hub.
type ProgressConfig struct {
	BufferSize  int           `mapstructure:"buffer_size"`
	BatchEvents int           `mapstructure:"batch_events"`
	BatchWait   time.Duration `mapstructure:"batch_wait"`
}

// ShutdownConfig bounds the drain sequence.
type ShutdownConfig struct {
	DrainTimeout     time.Duration `mapstructure:"drain_timeout"`
	ExitDrainTimeout time.Duration `mapstructure:"exit_drain_timeout"`
}

// ServerConfig controls the operational HTTP endpoint.
type ServerConfig struct {
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load unmarshals and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces required values and cross-field consistency.
func (c Config) Validate() error {
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.AdmissionsPerMinute <= 0 {
		return fmt.Errorf("crawler.admissions_per_minute must be > 0")
	}
	if c.Crawler.RunBudget < 0 {
		return fmt.Errorf("crawler.run_budget must not be negative")
	}
	if c.Crawler.MaxIdlePulls <= 0 {
		return fmt.Errorf("crawler.max_idle_pulls must be > 0")
	}

	switch c.Queue.Provider {
	case QueuePubSub:
		if c.Queue.GCP.ProjectID == "" || c.Queue.GCP.SubscriptionID == "" {
			return fmt.Errorf("queue.gcp.project_id and queue.gcp.subscription_id are required for the pubsub queue")
		}
	case QueueMemory:
		if len(c.Queue.Memory.URLs) == 0 {
			return fmt.Errorf("queue.memory.urls must seed at least one URL for the memory queue")
		}
	default:
		return fmt.Errorf("unknown queue.provider %q", c.Queue.Provider)
	}
	if c.Queue.MaxBatch <= 0 {
		return fmt.Errorf("queue.max_batch must be > 0")
	}

	switch c.Announce.Provider {
	case AnnouncePubSub:
		if c.Announce.GCP.ProjectID == "" || c.Announce.GCP.TopicID == "" {
			return fmt.Errorf("announce.gcp.project_id and announce.gcp.topic_id are required for the pubsub announcer")
		}
	case AnnounceMemory, AnnounceNone:
	default:
		return fmt.Errorf("unknown announce.provider %q", c.Announce.Provider)
	}

	switch c.Storage.Provider {
	case StorageGCS:
		if c.Storage.GCS.Bucket == "" {
			return fmt.Errorf("storage.gcs.bucket is required for GCS storage")
		}
	case StorageLocal:
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir is required for local storage")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown storage.provider %q", c.Storage.Provider)
	}

	switch c.Database.Provider {
	case DBPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres store")
		}
	case DBNoop:
	default:
		return fmt.Errorf("unknown database.provider %q", c.Database.Provider)
	}

	if c.Batch.ChunkSize <= 0 {
		return fmt.Errorf("batch.chunk_size must be > 0")
	}
	if c.Batch.MaxWindow < c.Batch.ChunkSize {
		return fmt.Errorf("batch.max_window must be >= batch.chunk_size")
	}
	if c.Shutdown.DrainTimeout <= 0 {
		return fmt.Errorf("shutdown.drain_timeout must be > 0")
	}
	if c.Server.MetricsAddr == "" {
		return fmt.Errorf("server.metrics_addr is required")
	}
	return nil
}
