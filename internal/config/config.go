package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/bazelide/internal/foundation/errors"
)

// DefaultFileName is the optional per-workspace configuration file.
const DefaultFileName = ".bazelide.yaml"

// Config holds the full bazelide configuration. Every field has a working
// default; a workspace without a .bazelide.yaml is fully supported.
type Config struct {
	Targets    string `yaml:"targets"`
	Output     string `yaml:"output"`
	DebounceMS int    `yaml:"debounce_ms"`
	// MaxDelayMS bounds how long a steady stream of changes can postpone a
	// refresh. Zero disables the bound.
	MaxDelayMS int `yaml:"max_delay_ms"`
	// FullRefresh forces a refresh at a fixed interval even without file
	// changes, as a Go duration string ("30m"). Empty disables it.
	FullRefresh string `yaml:"full_refresh"`

	Watch   WatchConfig   `yaml:"watch"`
	Notify  NotifyConfig  `yaml:"notify"`
	Metrics MetricsConfig `yaml:"metrics"`
	History HistoryConfig `yaml:"history"`

	// Parsed form of FullRefresh, populated by Load.
	FullRefreshInterval time.Duration `yaml:"-"`
}

// WatchConfig selects which files count as build-description files.
type WatchConfig struct {
	Filenames  []string `yaml:"filenames"`
	Extensions []string `yaml:"extensions"`
}

// NotifyConfig configures outcome fan-out beyond the log.
type NotifyConfig struct {
	Desktop     bool   `yaml:"desktop"`
	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`
}

// MetricsConfig configures the optional Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// HistoryConfig configures the refresh-history store.
type HistoryConfig struct {
	Path     string `yaml:"path"`
	Disabled bool   `yaml:"disabled"`
}

// Default filename and extension sets recognized by the path classifier.
var (
	DefaultWatchFilenames = []string{
		"BUILD",
		"BUILD.bazel",
		"WORKSPACE",
		"WORKSPACE.bazel",
		"MODULE.bazel",
		"MODULE.bazel.lock",
	}
	DefaultWatchExtensions = []string{".bzl", ".bazel"}
)

// Load reads the configuration file at path, expanding environment variables
// in the YAML content. A missing file yields pure defaults. Variables from
// .env / .env.local are loaded first (existing process env wins).
func Load(path string) (*Config, error) {
	loadEnvFiles()

	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			slog.Debug("No configuration file, using defaults", "path", path)
		case err != nil:
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read config file").
				WithContext("path", path).
				Build()
		default:
			expanded := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
				return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to parse config file").
					WithContext("path", path).
					Build()
			}
		}
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.Targets == "" {
		c.Targets = "//..."
	}
	if c.Output == "" {
		c.Output = "compile_commands.json"
	}
	if c.DebounceMS == 0 {
		c.DebounceMS = 2000
	}
	if len(c.Watch.Filenames) == 0 {
		c.Watch.Filenames = DefaultWatchFilenames
	}
	if len(c.Watch.Extensions) == 0 {
		c.Watch.Extensions = DefaultWatchExtensions
	}
	if c.Notify.NATSSubject == "" {
		c.Notify.NATSSubject = "bazelide.refresh"
	}
	if c.History.Path == "" {
		c.History.Path = ".bazelide/history.db"
	}

	if c.FullRefresh != "" {
		interval, err := time.ParseDuration(c.FullRefresh)
		if err != nil {
			return ferrors.ConfigError("invalid full_refresh duration").
				WithContext("value", c.FullRefresh).
				Build()
		}
		if interval < time.Minute {
			return ferrors.ConfigError("full_refresh must be at least 1m").
				WithContext("value", c.FullRefresh).
				Build()
		}
		c.FullRefreshInterval = interval
	}

	return nil
}

// Debounce returns the debounce window as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// MaxDelay returns the max-delay bound, zero when disabled.
func (c *Config) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMS) * time.Millisecond
}

// loadEnvFiles loads the first available env file. Missing files are normal.
func loadEnvFiles() {
	for _, name := range []string{".env", ".env.local"} {
		if err := godotenv.Load(name); err == nil {
			slog.Debug("Loaded environment variables", "path", name)
			return
		}
	}
}
