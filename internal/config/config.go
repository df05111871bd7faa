// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Fetch       FetchConfig       `mapstructure:"fetch"`
	Crawl       CrawlConfig       `mapstructure:"crawl"`
	Logo        LogoConfig        `mapstructure:"logo"`
	Palette     PaletteConfig     `mapstructure:"palette"`
	Wizard      WizardConfig      `mapstructure:"wizard"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Sweeper     SweeperConfig     `mapstructure:"sweeper"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Store       StoreConfig       `mapstructure:"store"`
	Queue       QueueConfig       `mapstructure:"queue"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// FetchConfig governs the single-fetch wrapper used by every network call.
type FetchConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
	BackoffMs      int    `mapstructure:"backoff_ms"`
	MaxRedirects   int    `mapstructure:"max_redirects"`
	UserAgent      string `mapstructure:"user_agent"`
	AllowPrivate   bool   `mapstructure:"allow_private"`
}

// CrawlConfig bounds the site crawl.
type CrawlConfig struct {
	MaxPages         int   `mapstructure:"max_pages"`
	MaxImages        int   `mapstructure:"max_images"`
	MaxBytes         int64 `mapstructure:"max_bytes"`
	MaxPageBytes     int64 `mapstructure:"max_page_bytes"`
	MaxAssetBytes    int64 `mapstructure:"max_asset_bytes"`
	MaxCSSFiles      int   `mapstructure:"max_css_files"`
	RequestDelayMs   int   `mapstructure:"request_delay_ms"`
	WallClockSeconds int   `mapstructure:"wall_clock_seconds"`
}

// LogoConfig bounds pixel analysis during logo selection.
type LogoConfig struct {
	TopAnalysis   int   `mapstructure:"top_analysis"`
	MaxAssetBytes int64 `mapstructure:"max_asset_bytes"`
}

// PaletteConfig tunes color extraction and merging.
type PaletteConfig struct {
	CustomPropWeight float64 `mapstructure:"custom_prop_weight"`
	LiteralWeight    float64 `mapstructure:"literal_weight"`
	LogoWeight       float64 `mapstructure:"logo_weight"`
	LogoFloor        float64 `mapstructure:"logo_floor"`
	Clusters         int     `mapstructure:"clusters"`
	Iterations       int     `mapstructure:"iterations"`
	SampleSide       int     `mapstructure:"sample_side"`
	MergeDistance    float64 `mapstructure:"merge_distance"`
	NeutralSpread    float64 `mapstructure:"neutral_spread"`
	MaxStylesheets   int     `mapstructure:"max_stylesheets"`
}

// WizardConfig controls the autofill automator.
type WizardConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	TargetURL         string  `mapstructure:"target_url"`
	NavTimeoutSeconds int     `mapstructure:"nav_timeout_seconds"`
	MinConfidence     float64 `mapstructure:"min_confidence"`
	UserAgent         string  `mapstructure:"user_agent"`
}

// CoordinatorConfig bounds pipeline retries.
type CoordinatorConfig struct {
	AssetBudgetBytes       int64 `mapstructure:"asset_budget_bytes"`
	NetworkMaxAttempts     int   `mapstructure:"network_max_attempts"`
	NetworkBaseDelayMs     int   `mapstructure:"network_base_delay_ms"`
	NetworkMaxElapsedSec   int   `mapstructure:"network_max_elapsed_seconds"`
	StorageMaxAttempts     int   `mapstructure:"storage_max_attempts"`
	StorageBaseDelayMs     int   `mapstructure:"storage_base_delay_ms"`
	StorageMaxElapsedSec   int   `mapstructure:"storage_max_elapsed_seconds"`
	WorkerCount            int   `mapstructure:"worker_count"`
}

// SweeperConfig controls stale-job reconciliation.
type SweeperConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	Schedule            string `mapstructure:"schedule"`
	RetryThresholdMin   int    `mapstructure:"retry_threshold_minutes"`
	StallThresholdMin   int    `mapstructure:"stall_threshold_minutes"`
	MaxRetries          int    `mapstructure:"max_retries"`
	Limit               int    `mapstructure:"limit"`
}

// CacheConfig controls the completed-job reuse window at submission.
type CacheConfig struct {
	TTLMinutes int `mapstructure:"ttl_minutes"`
}

// StorageConfig selects and configures the artifact blob store.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
}

// StoreConfig selects and configures the job store.
type StoreConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// QueueConfig selects and configures the job queue.
type QueueConfig struct {
	Provider       string `mapstructure:"provider"`
	ProjectID      string `mapstructure:"project_id"`
	TopicID        string `mapstructure:"topic_id"`
	SubscriptionID string `mapstructure:"subscription_id"`
	DeadLetterSub  string `mapstructure:"dead_letter_subscription_id"`
	Capacity       int    `mapstructure:"capacity"`
	MaxDeliveries  int    `mapstructure:"max_deliveries"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BRANDING")
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
	v.SetDefault("logging.development", true)

	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.max_retries", 2)
	v.SetDefault("fetch.backoff_ms", 250)
	v.SetDefault("fetch.max_redirects", 5)
	v.SetDefault("fetch.user_agent", "glovebrand-bot/0.1")
	v.SetDefault("fetch.allow_private", false)

	v.SetDefault("crawl.max_pages", 3)
	v.SetDefault("crawl.max_images", 30)
	v.SetDefault("crawl.max_bytes", 25<<20)
	v.SetDefault("crawl.max_page_bytes", 2<<20)
	v.SetDefault("crawl.max_asset_bytes", 5<<20)
	v.SetDefault("crawl.max_css_files", 4)
	v.SetDefault("crawl.request_delay_ms", 150)
	v.SetDefault("crawl.wall_clock_seconds", 120)

	v.SetDefault("logo.top_analysis", 5)
	v.SetDefault("logo.max_asset_bytes", 5<<20)

	v.SetDefault("palette.custom_prop_weight", 0.5)
	v.SetDefault("palette.literal_weight", 0.35)
	v.SetDefault("palette.logo_weight", 0.7)
	v.SetDefault("palette.logo_floor", 0.15)
	v.SetDefault("palette.clusters", 8)
	v.SetDefault("palette.iterations", 6)
	v.SetDefault("palette.sample_side", 200)
	v.SetDefault("palette.merge_distance", 25)
	v.SetDefault("palette.neutral_spread", 20)
	v.SetDefault("palette.max_stylesheets", 3)

	v.SetDefault("wizard.enabled", false)
	v.SetDefault("wizard.target_url", "https://bc2gloves.com/cart")
	v.SetDefault("wizard.nav_timeout_seconds", 45)
	v.SetDefault("wizard.min_confidence", 0.55)

	v.SetDefault("coordinator.asset_budget_bytes", 25<<20)
	v.SetDefault("coordinator.network_max_attempts", 4)
	v.SetDefault("coordinator.network_base_delay_ms", 500)
	v.SetDefault("coordinator.network_max_elapsed_seconds", 45)
	v.SetDefault("coordinator.storage_max_attempts", 5)
	v.SetDefault("coordinator.storage_base_delay_ms", 100)
	v.SetDefault("coordinator.storage_max_elapsed_seconds", 15)
	v.SetDefault("coordinator.worker_count", 4)

	v.SetDefault("sweeper.enabled", true)
	v.SetDefault("sweeper.schedule", "0 */5 * * * *")
	v.SetDefault("sweeper.retry_threshold_minutes", 5)
	v.SetDefault("sweeper.stall_threshold_minutes", 20)
	v.SetDefault("sweeper.max_retries", 2)
	v.SetDefault("sweeper.limit", 25)

	v.SetDefault("cache.ttl_minutes", 60)

	v.SetDefault("storage.provider", "memory")
	v.SetDefault("store.provider", "memory")
	v.SetDefault("store.table", "branding_jobs")
	v.SetDefault("store.max_conns", 8)
	v.SetDefault("queue.provider", "memory")
	v.SetDefault("queue.capacity", 128)
	v.SetDefault("queue.max_deliveries", 5)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Crawl.MaxPages <= 0 {
		return fmt.Errorf("crawl.max_pages must be > 0")
	}
	if c.Coordinator.WorkerCount <= 0 {
		return fmt.Errorf("coordinator.worker_count must be > 0")
	}
	switch c.Storage.Provider {
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.provider is gcs")
		}
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set when storage.provider is local")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage.provider: %s", c.Storage.Provider)
	}
	switch c.Store.Provider {
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set when store.provider is postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store.provider: %s", c.Store.Provider)
	}
	switch c.Queue.Provider {
	case "pubsub":
		if c.Queue.ProjectID == "" || c.Queue.TopicID == "" || c.Queue.SubscriptionID == "" {
			return fmt.Errorf("queue.project_id, queue.topic_id, and queue.subscription_id must be set when queue.provider is pubsub")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown queue.provider: %s", c.Queue.Provider)
	}
	if c.Wizard.Enabled && c.Wizard.TargetURL == "" {
		return fmt.Errorf("wizard.target_url must be set when wizard is enabled")
	}
	return nil
}

// CacheTTL returns the completed-job reuse window.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLMinutes) * time.Minute
}
