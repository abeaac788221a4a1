// Package config loads sdlcjournal settings from an optional YAML file and
// SDLCJOURNAL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the environment variable prefix.
const EnvPrefix = "SDLCJOURNAL"

// FileName is the config file looked up in the data directory.
const FileName = "config.yaml"

// DefaultDirName is the data directory under the user's home.
const DefaultDirName = ".sdlcjournal"

// Config holds runtime settings.
// Precedence: defaults < config file < environment < command-line flags.
type Config struct {
	DataDir       string        `yaml:"data_dir" envconfig:"DATA_DIR"`
	AutosaveDelay time.Duration `yaml:"autosave_delay" envconfig:"AUTOSAVE_DELAY" default:"1500ms"`
	RecentLimit   int           `yaml:"recent_limit" envconfig:"RECENT_LIMIT" default:"5"`
	LogLevel      string        `yaml:"log_level" envconfig:"LOG_LEVEL" default:"warn"`
	Audit         bool          `yaml:"audit" envconfig:"AUDIT" default:"true"`
}

// fileConfig mirrors Config with pointer fields so unset keys keep defaults.
type fileConfig struct {
	DataDir       *string `yaml:"data_dir"`
	AutosaveDelay *string `yaml:"autosave_delay"`
	RecentLimit   *int    `yaml:"recent_limit"`
	LogLevel      *string `yaml:"log_level"`
	Audit         *bool   `yaml:"audit"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		DataDir:       DefaultDataDir(),
		AutosaveDelay: 1500 * time.Millisecond,
		RecentLimit:   5,
		LogLevel:      "warn",
		Audit:         true,
	}
}

// DefaultDataDir returns ~/.sdlcjournal, or a relative directory when the
// home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultDirName
	}
	return filepath.Join(home, DefaultDirName)
}

// Load builds the configuration. path names the config file; when empty,
// <data_dir>/config.yaml is used if it exists. Environment variables are
// applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	// The environment may move the data directory, which moves the default file.
	if dir := os.Getenv(EnvPrefix + "_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}

	explicit := path != ""
	if !explicit {
		path = filepath.Join(cfg.DataDir, FileName)
	}
	if err := cfg.loadFile(path, explicit); err != nil {
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.DataDir = expandHome(cfg.DataDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string, required bool) error {
	data, err := os.ReadFile(path) // #nosec G304 -- path is user-provided config location
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	if fc.DataDir != nil {
		c.DataDir = *fc.DataDir
	}
	if fc.AutosaveDelay != nil {
		d, err := time.ParseDuration(*fc.AutosaveDelay)
		if err != nil {
			return fmt.Errorf("config: invalid autosave_delay %q: %w", *fc.AutosaveDelay, err)
		}
		c.AutosaveDelay = d
	}
	if fc.RecentLimit != nil {
		c.RecentLimit = *fc.RecentLimit
	}
	if fc.LogLevel != nil {
		c.LogLevel = *fc.LogLevel
	}
	if fc.Audit != nil {
		c.Audit = *fc.Audit
	}
	return nil
}

// applyEnv overrides fields whose SDLCJOURNAL_* variable is set.
func (c *Config) applyEnv() error {
	var env Config
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("config: failed to process environment variables: %w", err)
	}

	if _, ok := os.LookupEnv(EnvPrefix + "_DATA_DIR"); ok {
		c.DataDir = env.DataDir
	}
	if _, ok := os.LookupEnv(EnvPrefix + "_AUTOSAVE_DELAY"); ok {
		c.AutosaveDelay = env.AutosaveDelay
	}
	if _, ok := os.LookupEnv(EnvPrefix + "_RECENT_LIMIT"); ok {
		c.RecentLimit = env.RecentLimit
	}
	if _, ok := os.LookupEnv(EnvPrefix + "_LOG_LEVEL"); ok {
		c.LogLevel = env.LogLevel
	}
	if _, ok := os.LookupEnv(EnvPrefix + "_AUDIT"); ok {
		c.Audit = env.Audit
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("config: data_dir must not be empty")
	}
	if c.AutosaveDelay <= 0 {
		return fmt.Errorf("config: autosave_delay must be positive, got %v", c.AutosaveDelay)
	}
	if c.RecentLimit < 0 {
		return fmt.Errorf("config: recent_limit must not be negative, got %d", c.RecentLimit)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("config: invalid log_level %q: %w", c.LogLevel, err)
	}
	return nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
