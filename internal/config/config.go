package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nexpy/nxguard/internal/lockfile"
	"github.com/nexpy/nxguard/internal/logging"
)

// Config represents the complete nxguard configuration
type Config struct {
	Lock    LockConfig    `mapstructure:"lock"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// LockConfig controls advisory file locking
type LockConfig struct {
	// DefaultTimeout is the process default lock timeout in seconds.
	// 0 disables locking for files that do not set their own timeout.
	DefaultTimeout int `mapstructure:"default_timeout"`
	// Directory holds marker files. Empty places each marker next to its file.
	Directory string `mapstructure:"directory"`
	// BackoffInitialMs is the first retry delay while waiting for a lock
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	// BackoffMaxMs caps the retry delay
	BackoffMaxMs int `mapstructure:"backoff_max_ms"`
	// BackoffMultiplier grows the delay after each attempt (>= 1)
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier"`
	// MaxRetries bounds acquisition attempts in addition to the timeout (0 = timeout only)
	MaxRetries int `mapstructure:"max_retries"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error"
	Level string `mapstructure:"level"`
	// File is the log file path. Empty logs to stderr.
	File string `mapstructure:"file"`
	// MaxSizeMB is the size at which the log file is rotated
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated files kept
	MaxBackups int `mapstructure:"max_backups"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	backoff := lockfile.DefaultBackoff()
	return &Config{
		Lock: LockConfig{
			DefaultTimeout:    0, // Locking is opt-in
			Directory:         "",
			BackoffInitialMs:  int(backoff.Initial / time.Millisecond),
			BackoffMaxMs:      int(backoff.Max / time.Millisecond),
			BackoffMultiplier: backoff.Multiplier,
			MaxRetries:        0,
		},
		Logging: LoggingConfig{
			Level:      "warn",
			File:       "",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Timeout returns the default timeout as a duration.
func (c *LockConfig) Timeout() time.Duration {
	return time.Duration(c.DefaultTimeout) * time.Second
}

// Backoff returns the retry schedule for lock acquisition.
func (c *LockConfig) Backoff() lockfile.Backoff {
	return lockfile.Backoff{
		Initial:    time.Duration(c.BackoffInitialMs) * time.Millisecond,
		Max:        time.Duration(c.BackoffMaxMs) * time.Millisecond,
		Multiplier: c.BackoffMultiplier,
	}
}

// ResolveDirectory expands a leading ~ in the lock directory.
func (c *LockConfig) ResolveDirectory() string {
	return expandHome(c.Directory)
}

// Rotation returns the rotation settings for the log file.
func (c *LoggingConfig) Rotation() logging.RotationConfig {
	rc := logging.DefaultRotationConfig()
	rc.MaxSizeMB = c.MaxSizeMB
	rc.MaxBackups = c.MaxBackups
	return rc
}

// ResolveFile expands a leading ~ in the log file path.
func (c *LoggingConfig) ResolveFile() string {
	return expandHome(c.File)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Lock defaults
	viper.SetDefault("lock.default_timeout", defaults.Lock.DefaultTimeout)
	viper.SetDefault("lock.directory", defaults.Lock.Directory)
	viper.SetDefault("lock.backoff_initial_ms", defaults.Lock.BackoffInitialMs)
	viper.SetDefault("lock.backoff_max_ms", defaults.Lock.BackoffMaxMs)
	viper.SetDefault("lock.backoff_multiplier", defaults.Lock.BackoffMultiplier)
	viper.SetDefault("lock.max_retries", defaults.Lock.MaxRetries)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.file", defaults.Logging.File)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "nxguard")
	}
	// Fall back to ~/.config/nxguard
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nxguard"
	}
	return filepath.Join(home, ".config", "nxguard")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
