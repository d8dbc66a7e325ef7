// Package config loads assetpipe.yaml: source and destination roots, the dev
// server address, watch debounce, per-profile option overrides, logging and
// metrics settings.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/profile"
)

const (
	// DefaultPath is the configuration file looked up when none is given.
	DefaultPath = "assetpipe.yaml"

	CurrentVersion = "1"

	defaultSource      = "src"
	defaultDestination = "theme"
	defaultHost        = "localhost"
	defaultPort        = 3000
	defaultDebounce    = "100ms"
)

// Config is the assetpipe configuration file.
type Config struct {
	Version  string                   `yaml:"version"`
	Paths    PathsConfig              `yaml:"paths"`
	Server   ServerConfig             `yaml:"server"`
	Watch    WatchConfig              `yaml:"watch"`
	Profiles map[string]ProfileConfig `yaml:"profiles,omitempty"`
	Logging  LoggingConfig            `yaml:"logging"`
	Metrics  MetricsConfig            `yaml:"metrics"`
}

// PathsConfig locates the source tree and the destination (theme) root.
type PathsConfig struct {
	Source      string `yaml:"src"`
	Destination string `yaml:"dest"`
}

// ServerConfig is the dev server listen address.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// WatchConfig tunes change detection.
type WatchConfig struct {
	// Debounce is the quiet window before a changed category is rebuilt.
	Debounce string `yaml:"debounce"`
}

// DebounceDuration returns the parsed debounce window.
func (w WatchConfig) DebounceDuration() time.Duration {
	d, err := time.ParseDuration(w.Debounce)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(defaultDebounce)
	}
	return d
}

// ProfileConfig overrides the canonical options of one profile.
type ProfileConfig struct {
	Options map[string]bool `yaml:"options,omitempty"`
}

// LoggingConfig selects log verbosity and output format.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// MetricsConfig toggles the Prometheus endpoint of the dev server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads, expands, defaults and validates the configuration at path.
func Load(path string) (*Config, error) {
	LoadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ferrors.NewError(ferrors.CategoryNotFound, "configuration file not found").
				Fatal().
				WithContext("file", path).
				Build()
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read configuration").
			Fatal().
			WithContext("file", path).
			Build()
	}
	return Parse(data, path)
}

// LoadOrDefault is Load, falling back to Default when path does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		LoadEnvFiles()
		cfg := Default()
		applyEnvOverrides(cfg)
		return cfg, cfg.Validate()
	}
	return Load(path)
}

// Parse decodes configuration data. ${VAR} references are expanded from the
// environment before decoding.
func Parse(data []byte, source string) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to parse configuration").
			Fatal().
			WithContext("file", source).
			Build()
	}
	if cfg.Version != "" && cfg.Version != CurrentVersion {
		return nil, ferrors.ConfigError(fmt.Sprintf("unsupported configuration version %q (expected %s)", cfg.Version, CurrentVersion)).
			WithContext("file", source).
			Build()
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == "" {
		cfg.Version = CurrentVersion
	}
	if cfg.Paths.Source == "" {
		cfg.Paths.Source = defaultSource
	}
	if cfg.Paths.Destination == "" {
		cfg.Paths.Destination = defaultDestination
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = defaultHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaultPort
	}
	if cfg.Watch.Debounce == "" {
		cfg.Watch.Debounce = defaultDebounce
	}
	cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = NormalizeLogLevel(v)
	}
}

// ProfileOptions returns the option overrides configured for a profile.
func (c *Config) ProfileOptions(name profile.Name) profile.OptionSet {
	out := profile.OptionSet{}
	for raw, pc := range c.Profiles {
		n, err := profile.ParseName(raw)
		if err != nil || n != name {
			continue
		}
		for k, v := range pc.Options {
			out[k] = v
		}
	}
	return out
}

// Init writes an example configuration file.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return ferrors.ValidationError("configuration file already exists (use --force to overwrite)").
			WithContext("file", path).
			Build()
	}

	example := Default()
	example.Profiles = map[string]ProfileConfig{
		string(profile.Release): {Options: map[string]bool{
			profile.OptMinifyScripts: true,
			profile.OptMinifyStyles:  true,
		}},
	}
	data, err := yaml.Marshal(example)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "failed to marshal example configuration").Build()
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to write configuration").
			Fatal().
			WithContext("file", path).
			Build()
	}
	return nil
}
