// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends accepted by storage.backend.
const (
	BackendMemory   = "memory"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
	BackendPostgres = "postgres"
	BackendBadger   = "badger"
)

// Fetcher modes accepted by fetcher.mode.
const (
	FetcherHTTP     = "http"
	FetcherHeadless = "headless"
	FetcherAuto     = "auto"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	ReadTimeoutSeconds     int `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds    int `mapstructure:"write_timeout_seconds"`
	RequestTimeoutSeconds  int `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines the operator API key toggle.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs job admission and the chapter pipeline.
type CrawlerConfig struct {
	Workers           int `mapstructure:"workers"`
	JobConcurrency    int `mapstructure:"job_concurrency"`
	QueueDepth        int `mapstructure:"queue_depth"`
	EnqueueTimeoutMs  int `mapstructure:"enqueue_timeout_ms"`
	MaxAttempts       int `mapstructure:"max_attempts"`
	DelayMinMs        int `mapstructure:"delay_min_ms"`
	DelayMaxMs        int `mapstructure:"delay_max_ms"`
	FailureRecordSize int `mapstructure:"failure_record_size"`
}

// HTTPConfig configures the page transport.
type HTTPConfig struct {
	TimeoutSeconds   int      `mapstructure:"timeout_seconds"`
	BackoffInitialMs int      `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int      `mapstructure:"backoff_max_ms"`
	UserAgents       []string `mapstructure:"user_agents"`
	AcceptLanguage   string   `mapstructure:"accept_language"`
	RespectRobots    bool     `mapstructure:"respect_robots"`
}

// FetcherConfig selects and tunes the page transport.
type FetcherConfig struct {
	Mode     string         `mapstructure:"mode"`
	Headless HeadlessConfig `mapstructure:"headless"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	MaxParallel        int      `mapstructure:"max_parallel"`
	NavTimeoutSeconds  int      `mapstructure:"nav_timeout_seconds"`
	WaitSelector       string   `mapstructure:"wait_selector"`
	SettleMs           int      `mapstructure:"settle_ms"`
	PromotionThreshold int      `mapstructure:"promotion_threshold"`
	ContentMarkers     []string `mapstructure:"content_markers"`
}

// RateLimitConfig configures per-host token buckets.
type RateLimitConfig struct {
	DefaultRPS   float64    `mapstructure:"default_rps"`
	DefaultBurst int        `mapstructure:"default_burst"`
	Hosts        []HostRate `mapstructure:"hosts"`
}

// HostRate overrides the request rate for one host. Hosts are listed rather
// than keyed because Viper splits keys on dots.
type HostRate struct {
	Host string  `mapstructure:"host"`
	RPS  float64 `mapstructure:"rps"`
}

// StorageConfig selects the result store.
type StorageConfig struct {
	Backend    string `mapstructure:"backend"`
	LocalDir   string `mapstructure:"local_dir"`
	GCSBucket  string `mapstructure:"gcs_bucket"`
	Prefix     string `mapstructure:"prefix"`
	BadgerPath string `mapstructure:"badger_path"`
}

// DatabaseConfig controls access to PostgreSQL.
type DatabaseConfig struct {
	DSN                    string `mapstructure:"dsn"`
	Table                  string `mapstructure:"table"`
	RunsTable              string `mapstructure:"runs_table"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
}

// PubSubConfig holds metadata for completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ProgressConfig tunes the progress event hub.
type ProgressConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	BufferSize     int  `mapstructure:"buffer_size"`
	BatchMaxEvents int  `mapstructure:"batch_max_events"`
	BatchMaxWaitMs int  `mapstructure:"batch_max_wait_ms"`
	SinkTimeoutMs  int  `mapstructure:"sink_timeout_ms"`
	LogSink        bool `mapstructure:"log_sink"`
	PrometheusSink bool `mapstructure:"prometheus_sink"`
	// StoreSink records job run history in Postgres when database.dsn is set.
	StoreSink bool `mapstructure:"store_sink"`
	// TrackerRetentionMs keeps finished progress entries this long. Zero keeps
	// them for the life of the process.
	TrackerRetentionMs int `mapstructure:"tracker_retention_ms"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Version     string  `mapstructure:"version"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment. Environment variables use the
// NOVEL_ prefix with dots replaced by underscores.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NOVEL")
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
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.write_timeout_seconds", 60)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("server.shutdown_timeout_seconds", 20)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("crawler.workers", 5)
	v.SetDefault("crawler.job_concurrency", 2)
	v.SetDefault("crawler.queue_depth", 32)
	v.SetDefault("crawler.enqueue_timeout_ms", 2000)
	v.SetDefault("crawler.max_attempts", 5)
	v.SetDefault("crawler.delay_min_ms", 500)
	v.SetDefault("crawler.delay_max_ms", 1500)
	v.SetDefault("crawler.failure_record_size", 1024)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.backoff_initial_ms", 500)
	v.SetDefault("http.backoff_max_ms", 10000)
	v.SetDefault("http.accept_language", "ja,en-US;q=0.9,en;q=0.8")
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("fetcher.mode", FetcherHTTP)
	v.SetDefault("fetcher.headless.max_parallel", 1)
	v.SetDefault("fetcher.headless.nav_timeout_seconds", 45)
	v.SetDefault("fetcher.headless.wait_selector", "body")
	v.SetDefault("fetcher.headless.settle_ms", 500)
	v.SetDefault("fetcher.headless.promotion_threshold", 2048)
	v.SetDefault("fetcher.headless.content_markers", []string{`id="honbun"`, "js-novel-text", `id="novel_honbun"`})
	v.SetDefault("rate_limit.default_rps", 2.0)
	v.SetDefault("rate_limit.default_burst", 2)
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.local_dir", "data/documents")
	v.SetDefault("storage.prefix", "documents")
	v.SetDefault("storage.badger_path", "data/badger")
	v.SetDefault("database.table", "novel_documents")
	v.SetDefault("database.runs_table", "novel_job_runs")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime_minutes", 30)
	v.SetDefault("progress.enabled", true)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.batch_max_events", 256)
	v.SetDefault("progress.batch_max_wait_ms", 500)
	v.SetDefault("progress.sink_timeout_ms", 5000)
	v.SetDefault("progress.log_sink", true)
	v.SetDefault("progress.prometheus_sink", true)
	v.SetDefault("progress.store_sink", true)
	v.SetDefault("progress.tracker_retention_ms", 600000)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.service_name", "novel-crawler")
	v.SetDefault("telemetry.version", "dev")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.Crawler.JobConcurrency <= 0 {
		return fmt.Errorf("crawler.job_concurrency must be > 0")
	}
	if c.Crawler.QueueDepth <= 0 {
		return fmt.Errorf("crawler.queue_depth must be > 0")
	}
	if c.Crawler.MaxAttempts <= 0 {
		return fmt.Errorf("crawler.max_attempts must be > 0")
	}
	if c.Crawler.DelayMinMs < 0 || c.Crawler.DelayMaxMs < c.Crawler.DelayMinMs {
		return fmt.Errorf("crawler.delay_min_ms must be >= 0 and <= crawler.delay_max_ms")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if !slices.Contains([]string{FetcherHTTP, FetcherHeadless, FetcherAuto}, c.Fetcher.Mode) {
		return fmt.Errorf("fetcher.mode %q is not one of http, headless, auto", c.Fetcher.Mode)
	}
	if c.Fetcher.Mode != FetcherHTTP && c.Fetcher.Headless.MaxParallel <= 0 {
		return fmt.Errorf("fetcher.headless.max_parallel must be > 0 when headless rendering is used")
	}
	for _, h := range c.RateLimit.Hosts {
		if h.Host == "" {
			return fmt.Errorf("rate_limit.hosts entries require a host")
		}
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	if c.Progress.TrackerRetentionMs < 0 {
		return fmt.Errorf("progress.tracker_retention_ms must be >= 0")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

func (c Config) validateStorage() error {
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendLocal:
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir is required for the local backend")
		}
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	case BackendPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres backend")
		}
	case BackendBadger:
		if c.Storage.BadgerPath == "" {
			return fmt.Errorf("storage.badger_path is required for the badger backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	return nil
}

// HostRPS flattens rate_limit.hosts into a lookup map.
func (c Config) HostRPS() map[string]float64 {
	out := make(map[string]float64, len(c.RateLimit.Hosts))
	for _, h := range c.RateLimit.Hosts {
		out[strings.ToLower(h.Host)] = h.RPS
	}
	return out
}

// Millis converts a millisecond knob to a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// Seconds converts a second knob to a duration.
func Seconds(s int) time.Duration {
	return time.Duration(s) * time.Second
}
