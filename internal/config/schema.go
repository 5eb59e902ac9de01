// Package config handles YAML configuration loading, environment variable
// expansion, defaults, and structural validation for tasksched.
package config

import "time"

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	Store     StoreConfig     `yaml:"store"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Executor  ExecutorConfig  `yaml:"executor"`
	Reload    ReloadConfig    `yaml:"reload"`
	Log       LogConfig       `yaml:"log"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// StoreConfig selects the task store backend.
type StoreConfig struct {
	// Driver is "yaml" or "sqlite".
	Driver string `yaml:"driver"`
	// Path is the task file or database path. Relative paths resolve
	// against the working directory.
	Path string `yaml:"path"`
}

// SchedulerConfig tunes the tick loop.
type SchedulerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Tolerance    time.Duration `yaml:"tolerance"`
	// Dispatch is "sync" or "async".
	Dispatch string `yaml:"dispatch"`
}

// ExecutorConfig bounds external command runs.
type ExecutorConfig struct {
	// Timeout of zero means no limit.
	Timeout        time.Duration `yaml:"timeout"`
	WorkDir        string        `yaml:"workdir"`
	MaxOutputBytes int           `yaml:"max_output_bytes"`
	// SanitizeEnv strips known secret variables (DATABASE_URL,
	// AWS_SECRET_ACCESS_KEY, TASKSCHED_*, ...) from task environments.
	// Off by default: tasks inherit the scheduler's environment.
	SanitizeEnv bool `yaml:"sanitize_env"`
}

// ReloadConfig controls the task store watcher.
type ReloadConfig struct {
	Enabled      *bool         `yaml:"enabled"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// IsEnabled reports whether store watching is on. It defaults to true.
func (r ReloadConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// LogConfig configures the slog handler chain.
type LogConfig struct {
	Level string `yaml:"level"`
	// Format is "text" or "json".
	Format string `yaml:"format"`
	// File enables a rotated JSON file sink when set.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// GatewayConfig configures the optional HTTP surface.
type GatewayConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Bind        string `yaml:"bind"`
	BearerToken string `yaml:"bearer_token"`
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	// OTLPEndpoint enables export when set (host:port).
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
	ServiceName  string `yaml:"service_name"`
}

// Defaults.
const (
	DefaultVersion        = "1"
	DefaultStoreDriver    = "yaml"
	DefaultStorePath      = "tasks.yml"
	DefaultSQLitePath     = "tasks.db"
	DefaultPollInterval   = time.Second
	DefaultTolerance      = time.Minute
	DefaultDispatch       = "sync"
	DefaultMaxOutputBytes = 64 * 1024
	DefaultReloadInterval = 5 * time.Second
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultGatewayBind    = "127.0.0.1:8080"
	DefaultServiceName    = "tasksched"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DefaultStoreDriver
	}
	if c.Store.Path == "" {
		c.Store.Path = DefaultStorePath
		if c.Store.Driver == "sqlite" {
			c.Store.Path = DefaultSQLitePath
		}
	}
	if c.Scheduler.PollInterval == 0 {
		c.Scheduler.PollInterval = DefaultPollInterval
	}
	if c.Scheduler.Tolerance == 0 {
		c.Scheduler.Tolerance = DefaultTolerance
	}
	if c.Scheduler.Dispatch == "" {
		c.Scheduler.Dispatch = DefaultDispatch
	}
	if c.Executor.MaxOutputBytes == 0 {
		c.Executor.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if c.Reload.PollInterval == 0 {
		c.Reload.PollInterval = DefaultReloadInterval
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	if c.Gateway.Bind == "" {
		c.Gateway.Bind = DefaultGatewayBind
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = DefaultServiceName
	}
}
