// Package config provides configuration types and defaults for the register core.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/register/internal/flags"
	"github.com/zjrosen/register/internal/log"
	"github.com/zjrosen/register/internal/tracing"
)

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Config holds all configuration options.
type Config struct {
	Storage StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Events  EventsConfig    `mapstructure:"events" yaml:"events"`
	Cache   CacheConfig     `mapstructure:"cache" yaml:"cache"`
	Log     LogConfig       `mapstructure:"log" yaml:"log"`
	Tracing tracing.Config  `mapstructure:"tracing" yaml:"tracing"`
	Metrics MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Flags   map[string]bool `mapstructure:"flags" yaml:"flags,omitempty"`
}

// StorageConfig selects and configures the repository backend.
type StorageConfig struct {
	Driver string       `mapstructure:"driver" yaml:"driver"` // memory, sqlite (default) or mysql
	SQLite SQLiteConfig `mapstructure:"sqlite" yaml:"sqlite"`
	MySQL  MySQLConfig  `mapstructure:"mysql" yaml:"mysql"`
}

// SQLiteConfig configures the embedded store.
type SQLiteConfig struct {
	// Path is the database file. The directory is created on open.
	Path string `mapstructure:"path" yaml:"path"`
}

// MySQLConfig configures the networked store.
type MySQLConfig struct {
	Host       string `mapstructure:"host" yaml:"host"`
	Port       int    `mapstructure:"port" yaml:"port"`
	Username   string `mapstructure:"username" yaml:"username"`
	Password   string `mapstructure:"password" yaml:"password,omitempty"`
	Database   string `mapstructure:"database" yaml:"database"`
	LogQueries bool   `mapstructure:"log_queries" yaml:"log_queries"`
}

// EventsConfig configures the in-process event bus.
type EventsConfig struct {
	// BufferSize is the per-subscriber channel size. Events are dropped for
	// subscribers whose buffer is full.
	BufferSize int `mapstructure:"buffer_size" yaml:"buffer_size"`
}

// CacheConfig configures the register existence cache.
type CacheConfig struct {
	RegisterTTL     time.Duration `mapstructure:"register_ttl" yaml:"register_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
}

// LogToStderr is the log.path value that sends log lines to stderr.
const LogToStderr = "-"

// LogConfig configures the file logger.
type LogConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
	Level   string `mapstructure:"level" yaml:"level"` // debug, info (default), warn, error
}

// MetricsConfig configures the Prometheus collectors.
type MetricsConfig struct {
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
	// Address is the listen address for /metrics. Empty disables the endpoint.
	Address string `mapstructure:"address" yaml:"address"`
}

// DefaultConfigDir returns ~/.config/register, or an empty string if the home
// dir is unavailable.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "register")
}

// defaultPath joins name onto DefaultConfigDir, falling back to the working directory.
func defaultPath(name ...string) string {
	dir := DefaultConfigDir()
	if dir == "" {
		dir = ".register"
	}
	return filepath.Join(append([]string{dir}, name...)...)
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	t := tracing.DefaultConfig()
	t.FilePath = defaultPath("traces", "traces.jsonl")
	return Config{
		Storage: StorageConfig{
			Driver: DriverSQLite,
			SQLite: SQLiteConfig{Path: defaultPath("register.db")},
			MySQL: MySQLConfig{
				Host:     "localhost",
				Port:     3306,
				Username: "register",
				Database: "register",
			},
		},
		Events: EventsConfig{BufferSize: 256},
		Cache: CacheConfig{
			RegisterTTL:     5 * time.Minute,
			CleanupInterval: 10 * time.Minute,
		},
		Log: LogConfig{
			Enabled: false,
			Path:    defaultPath("register.log"),
			Level:   "info",
		},
		Tracing: t,
		Metrics: MetricsConfig{Namespace: "register"},
		Flags:   flags.Defaults(),
	}
}

// Validate checks every section and returns the first error.
func (c Config) Validate() error {
	if err := ValidateStorage(c.Storage); err != nil {
		return err
	}
	if c.Events.BufferSize < 0 {
		return fmt.Errorf("events.buffer_size must not be negative, got %d", c.Events.BufferSize)
	}
	if c.Cache.RegisterTTL < 0 {
		return fmt.Errorf("cache.register_ttl must not be negative, got %s", c.Cache.RegisterTTL)
	}
	if err := ValidateLog(c.Log); err != nil {
		return err
	}
	if err := ValidateTracing(c.Tracing); err != nil {
		return err
	}
	if err := flags.Validate(c.Flags); err != nil {
		return fmt.Errorf("flags: %w", err)
	}
	return nil
}

// ValidateStorage checks the storage section. Empty driver means sqlite.
func ValidateStorage(s StorageConfig) error {
	switch s.Driver {
	case "", DriverSQLite:
		if s.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path is required for the sqlite driver")
		}
	case DriverMemory:
	case DriverMySQL:
		if s.MySQL.Host == "" {
			return fmt.Errorf("storage.mysql.host is required for the mysql driver")
		}
		if s.MySQL.Database == "" {
			return fmt.Errorf("storage.mysql.database is required for the mysql driver")
		}
		if s.MySQL.Port < 1 || s.MySQL.Port > 65535 {
			return fmt.Errorf("storage.mysql.port must be between 1 and 65535, got %d", s.MySQL.Port)
		}
	default:
		return fmt.Errorf("storage.driver must be %q, %q, or %q, got %q", DriverMemory, DriverSQLite, DriverMySQL, s.Driver)
	}
	return nil
}

// ValidateLog checks the log section.
func ValidateLog(l LogConfig) error {
	if l.Level != "" {
		if _, err := log.ParseLevel(l.Level); err != nil {
			return fmt.Errorf("log.level: %w", err)
		}
	}
	if l.Enabled && l.Path == "" {
		return fmt.Errorf("log.path is required when logging is enabled")
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(t tracing.Config) error {
	if t.SampleRate < 0.0 || t.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", t.SampleRate)
	}

	if t.Exporter != "" {
		switch t.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", t.Exporter)
		}
	}

	// Only validate path requirements when tracing is enabled
	if t.Enabled {
		if t.Exporter == "file" && t.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if t.Exporter == "otlp" && t.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}
	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# Register core configuration

# Repository backend
storage:
  driver: sqlite          # memory, sqlite (default), or mysql
  # sqlite:
  #   path: ~/.config/register/register.db
  # mysql:
  #   host: localhost
  #   port: 3306
  #   username: register
  #   password: secret      # prefer REGISTER_STORAGE_MYSQL_PASSWORD
  #   database: register
  #   log_queries: false

# In-process event bus
events:
  buffer_size: 256        # per-subscriber buffer; full subscribers drop events

# Register existence cache (used when the register-cache flag is on).
# Positive answers are kept per process for register_ttl, so a register deleted
# by another process is still accepted here until its entry expires.
cache:
  register_ttl: 5m
  cleanup_interval: 10m

# File logger
log:
  enabled: false
  # path: ~/.config/register/register.log   # "-" writes to stderr
  level: info             # debug, info, warn, error

# Distributed tracing
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp (default: file)
#   file_path: ~/.config/register/traces/traces.jsonl
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0 (default: 1.0)

# Prometheus metrics
metrics:
  namespace: register
  # address: 127.0.0.1:9464   # where ` + "`register serve`" + ` exposes /metrics

# Feature flags
flags:
  register-cache: true    # cache positive register existence lookups
  seal-lock: true         # serialize docket create/seal per register in-process
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
