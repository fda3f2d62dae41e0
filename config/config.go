package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/INLOpen/rbf/rbf"
)

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // e.g., "debug", "info", "warn", "error"
	Output string `yaml:"output"` // e.g., "stdout", "stderr", "file", "none"
	File   string `yaml:"file"`   // Path to the log file, used if output is "file"
}

// TracingConfig holds configuration for distributed tracing.
type TracingConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Endpoint        string `yaml:"endpoint"` // e.g., "localhost:4317" for gRPC OTLP collector
	Protocol        string `yaml:"protocol"` // "grpc" or "http"
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// FileConfig holds the options applied to every RBF file the tools open.
type FileConfig struct {
	PreallocateBytes int64  `yaml:"preallocate_bytes"`
	ExclusiveLock    bool   `yaml:"exclusive_lock"`
	LockTimeout      string `yaml:"lock_timeout"`
	// DebugIO logs every positional read and write at debug level.
	DebugIO bool `yaml:"debug_io"`
}

// InspectConfig holds settings for the offline inspection commands.
type InspectConfig struct {
	VerifyConcurrency int  `yaml:"verify_concurrency"`
	ShowTombstones    bool `yaml:"show_tombstones"`
}

// Config is the top-level configuration struct.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
	File    FileConfig    `yaml:"file"`
	Inspect InspectConfig `yaml:"inspect"`
}

// Options converts the file section into facade options. Logger, tracer
// and hooks are left for the caller to fill in.
func (c FileConfig) Options(logger *slog.Logger) rbf.Options {
	return rbf.Options{
		Logger:           logger,
		PreallocateBytes: c.PreallocateBytes,
		ExclusiveLock:    c.ExclusiveLock,
		LockTimeout:      ParseDuration(c.LockTimeout, 0, logger),
	}
}

// ParseDuration parses a duration string. Returns the default duration if the string is empty or invalid.
// Logs a warning if the string is invalid but not empty.
func ParseDuration(durationStr string, defaultDuration time.Duration, logger *slog.Logger) time.Duration {
	if durationStr == "" || durationStr == "0" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		if logger != nil {
			logger.Warn("Invalid duration format, using default", "input", durationStr, "default", defaultDuration.String(), "error", err)
		}
		return defaultDuration
	}
	return d
}

// Load reads configuration from an io.Reader.
// This is the core logic, separated for testability.
func Load(r io.Reader) (*Config, error) {
	// Set default values
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
			File:   "rbf.log",
		},
		Tracing: TracingConfig{
			Enabled:         false,
			Endpoint:        "localhost:4317",
			Protocol:        "grpc",
			ShutdownTimeout: "5s",
		},
		File: FileConfig{
			PreallocateBytes: 0,
			ExclusiveLock:    true,
			LockTimeout:      "0s",
		},
		Inspect: InspectConfig{
			VerifyConcurrency: 4,
			ShowTombstones:    false,
		},
	}

	// If the reader is nil, it's like an empty file, return defaults.
	if r == nil {
		return cfg, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}
	if len(data) == 0 {
		return cfg, nil
	}

	// Unmarshal YAML into the config struct, overwriting defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Tracing.Protocol {
	case "grpc", "http":
	default:
		return fmt.Errorf("invalid tracing protocol %q: must be grpc or http", c.Tracing.Protocol)
	}
	if c.File.PreallocateBytes < 0 {
		return fmt.Errorf("file.preallocate_bytes must not be negative, got %d", c.File.PreallocateBytes)
	}
	if c.Inspect.VerifyConcurrency < 1 {
		return fmt.Errorf("inspect.verify_concurrency must be at least 1, got %d", c.Inspect.VerifyConcurrency)
	}
	return nil
}

// LoadConfig reads configuration from a YAML file by path.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// If file doesn't exist, return default config by calling Load with a nil reader.
			return Load(nil)
		}
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	return Load(file)
}
