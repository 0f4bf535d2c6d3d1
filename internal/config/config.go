// Package config loads and validates crawl runner configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/crawlrunner/internal/crawler"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Defaults  DefaultsConfig  `mapstructure:"defaults"`
	Runner    RunnerConfig    `mapstructure:"runner"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int      `mapstructure:"port"`
	RequestTimeoutSeconds  int      `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int      `mapstructure:"shutdown_timeout_seconds"`
	CORSOrigins            []string `mapstructure:"cors_origins"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// RateLimitConfig bounds requests per client. RPS <= 0 disables limiting.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// DefaultsConfig fills fields a crawl request leaves out.
type DefaultsConfig struct {
	MaxPages              int    `mapstructure:"max_pages"`
	Depth                 int    `mapstructure:"depth"`
	Strategy              string `mapstructure:"strategy"`
	WaitTimeMs            int    `mapstructure:"wait_time_ms"`
	CaptureNetworkTraffic bool   `mapstructure:"capture_network_traffic"`
	CaptureConsole        bool   `mapstructure:"capture_console"`
	CaptureHTML           bool   `mapstructure:"capture_html"`
	CaptureScreenshots    bool   `mapstructure:"capture_screenshots"`
}

// RunnerConfig governs the interpreter, workspace and subprocess limits.
type RunnerConfig struct {
	PythonPath          string   `mapstructure:"python_path"`
	EngineModule        string   `mapstructure:"engine_module"`
	WorkspaceDir        string   `mapstructure:"workspace_dir"`
	ArtifactPrefix      string   `mapstructure:"artifact_prefix"`
	TimeoutSeconds      int      `mapstructure:"timeout_seconds"`
	ProbeTimeoutSeconds int      `mapstructure:"probe_timeout_seconds"`
	MaxConcurrent       int      `mapstructure:"max_concurrent"`
	MaxOutputBytes      int      `mapstructure:"max_output_bytes"`
	MaxResultBytes      int64    `mapstructure:"max_result_bytes"`
	StaleArenaMinutes   int      `mapstructure:"stale_arena_minutes"`
	KillGraceSeconds    int      `mapstructure:"kill_grace_seconds"`
	SinkTimeoutSeconds  int      `mapstructure:"sink_timeout_seconds"`
	Env                 []string `mapstructure:"env"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// StorageConfig selects where raw results are archived.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to the run ledger.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// TracingConfig controls OpenTelemetry spans. ProjectID enables Cloud Trace export.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ProjectID   string  `mapstructure:"project_id"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLRUNNER")
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
	v.SetDefault("server.request_timeout_seconds", 180)
	v.SetDefault("server.shutdown_timeout_seconds", 30)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("ratelimit.rps", 0)
	v.SetDefault("ratelimit.burst", 5)
	v.SetDefault("defaults.max_pages", 1)
	v.SetDefault("defaults.depth", 0)
	v.SetDefault("defaults.strategy", string(crawler.StrategyBFS))
	v.SetDefault("defaults.wait_time_ms", 2000)
	v.SetDefault("defaults.capture_network_traffic", false)
	v.SetDefault("defaults.capture_console", false)
	v.SetDefault("defaults.capture_html", false)
	v.SetDefault("defaults.capture_screenshots", false)
	v.SetDefault("runner.python_path", "python3")
	v.SetDefault("runner.engine_module", "crawl4ai")
	v.SetDefault("runner.workspace_dir", "")
	v.SetDefault("runner.artifact_prefix", "crawl")
	v.SetDefault("runner.timeout_seconds", 120)
	v.SetDefault("runner.probe_timeout_seconds", 30)
	v.SetDefault("runner.max_concurrent", 4)
	v.SetDefault("runner.max_output_bytes", 1<<20)
	v.SetDefault("runner.max_result_bytes", 64<<20)
	v.SetDefault("runner.stale_arena_minutes", 60)
	v.SetDefault("runner.kill_grace_seconds", 5)
	v.SetDefault("runner.sink_timeout_seconds", 10)
	v.SetDefault("runner.env", []string{})
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("storage.provider", "none")
	v.SetDefault("storage.local_dir", "")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "results")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "crawl_runs")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.project_id", "")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst <= 0 {
		return fmt.Errorf("ratelimit.burst must be > 0 when ratelimit.rps is set")
	}
	if strings.TrimSpace(c.Runner.PythonPath) == "" {
		return fmt.Errorf("runner.python_path is required")
	}
	if c.Runner.TimeoutSeconds <= 0 {
		return fmt.Errorf("runner.timeout_seconds must be > 0")
	}
	if c.Runner.ProbeTimeoutSeconds <= 0 {
		return fmt.Errorf("runner.probe_timeout_seconds must be > 0")
	}
	if c.Runner.MaxConcurrent < 0 {
		return fmt.Errorf("runner.max_concurrent must be >= 0")
	}
	if c.Runner.MaxOutputBytes <= 0 {
		return fmt.Errorf("runner.max_output_bytes must be > 0")
	}
	if c.Server.RequestTimeoutSeconds < c.Runner.TimeoutSeconds {
		return fmt.Errorf("server.request_timeout_seconds must be >= runner.timeout_seconds")
	}
	if err := c.validateDefaults(); err != nil {
		return err
	}
	switch c.Storage.Provider {
	case "", "none", "memory":
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir is required for the local provider")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs provider")
		}
	default:
		return fmt.Errorf("storage.provider %q is not supported", c.Storage.Provider)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1]")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

func (c Config) validateDefaults() error {
	params := crawler.CrawlParameters{
		URL:      "https://placeholder.invalid",
		MaxPages: c.Defaults.MaxPages,
		Depth:    c.Defaults.Depth,
		Strategy: crawler.Strategy(c.Defaults.Strategy),
		WaitTime: c.Defaults.WaitTimeMs,
	}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}
	return nil
}

// CrawlDefaults converts the defaults section into resolver input.
func (c Config) CrawlDefaults() crawler.Defaults {
	return crawler.Defaults{
		MaxPages:              c.Defaults.MaxPages,
		Depth:                 c.Defaults.Depth,
		Strategy:              crawler.Strategy(c.Defaults.Strategy),
		CaptureNetworkTraffic: c.Defaults.CaptureNetworkTraffic,
		CaptureConsole:        c.Defaults.CaptureConsole,
		CaptureHTML:           c.Defaults.CaptureHTML,
		CaptureScreenshots:    c.Defaults.CaptureScreenshots,
		WaitTime:              c.Defaults.WaitTimeMs,
	}
}

// RequestTimeout bounds one HTTP request end to end.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds graceful shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// RunTimeout bounds one crawl subprocess.
func (c Config) RunTimeout() time.Duration {
	return time.Duration(c.Runner.TimeoutSeconds) * time.Second
}

// ProbeTimeout bounds the health probe subprocess.
func (c Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Runner.ProbeTimeoutSeconds) * time.Second
}

// KillGrace bounds how long a finished or killed process may hold its pipes.
func (c Config) KillGrace() time.Duration {
	return time.Duration(c.Runner.KillGraceSeconds) * time.Second
}

// SinkTimeout bounds archiving, the run ledger and notification for one run.
func (c Config) SinkTimeout() time.Duration {
	return time.Duration(c.Runner.SinkTimeoutSeconds) * time.Second
}

// StaleArenaAge is how old an arena must be before the startup sweep removes it.
// Zero disables the sweep.
func (c Config) StaleArenaAge() time.Duration {
	return time.Duration(c.Runner.StaleArenaMinutes) * time.Minute
}
