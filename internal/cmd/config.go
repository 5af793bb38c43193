package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nexpy/nxguard/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify nxguard configuration",
	Long: `View or modify nxguard configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  nxguard config set lock.default_timeout 30
  nxguard config set logging.file ~/.local/state/nxguard/nxguard.log

Valid keys:
  lock.default_timeout     - Process default lock timeout in seconds (0 disables)
  lock.directory           - Directory for marker files (empty: next to the file)
  lock.backoff_initial_ms  - First retry delay while waiting for a lock
  lock.backoff_max_ms      - Largest retry delay
  lock.max_retries         - Attempt limit in addition to the timeout (0: none)
  logging.level            - debug, info, warn, error
  logging.file             - Log file path (empty: stderr)
  logging.max_size_mb      - Rotate the log file at this size
  logging.max_backups      - Rotated log files to keep`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/nxguard/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintln(out)

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Config file: (none - using defaults)\n")
	}
	fmt.Fprintln(out)

	// Lock settings
	fmt.Fprintln(out, "lock:")
	fmt.Fprintf(out, "  default_timeout: %d\n", cfg.Lock.DefaultTimeout)
	fmt.Fprintf(out, "  directory: %s\n", cfg.Lock.Directory)
	fmt.Fprintf(out, "  backoff_initial_ms: %d\n", cfg.Lock.BackoffInitialMs)
	fmt.Fprintf(out, "  backoff_max_ms: %d\n", cfg.Lock.BackoffMaxMs)
	fmt.Fprintf(out, "  backoff_multiplier: %g\n", cfg.Lock.BackoffMultiplier)
	fmt.Fprintf(out, "  max_retries: %d\n", cfg.Lock.MaxRetries)

	// Logging settings
	fmt.Fprintln(out, "logging:")
	fmt.Fprintf(out, "  level: %s\n", cfg.Logging.Level)
	fmt.Fprintf(out, "  file: %s\n", cfg.Logging.File)
	fmt.Fprintf(out, "  max_size_mb: %d\n", cfg.Logging.MaxSizeMB)
	fmt.Fprintf(out, "  max_backups: %d\n", cfg.Logging.MaxBackups)

	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	// Validate the key exists
	validKeys := map[string]string{
		"lock.default_timeout":    "int",
		"lock.directory":          "string",
		"lock.backoff_initial_ms": "int",
		"lock.backoff_max_ms":     "int",
		"lock.max_retries":        "int",
		"logging.level":           "string",
		"logging.file":            "string",
		"logging.max_size_mb":     "int",
		"logging.max_backups":     "int",
	}

	keyType, ok := validKeys[key]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s\nRun 'nxguard config set --help' to see valid keys", key)
	}

	var typedValue any
	switch keyType {
	case "string":
		typedValue = value
	case "int":
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected integer", key)
		}
		if intVal < 0 {
			return fmt.Errorf("invalid value for %s: must be non-negative", key)
		}
		typedValue = intVal
	}

	viper.Set(key, typedValue)

	// Reject values that would make the config unusable before writing it
	if _, err := config.Load(); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	// Ensure config directory exists
	configDir := config.ConfigDir()
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := config.ConfigFile()
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Set %s = %v\n", key, typedValue)
	fmt.Fprintf(out, "Config saved to %s\n", configFile)

	return nil
}

const defaultConfigContent = `# nxguard configuration

# Advisory file locking
lock:
  # Process default lock timeout in seconds. Files without their own
  # setting are locked with this timeout; 0 leaves them unlocked.
  default_timeout: 0
  # Directory for marker files. Empty places <file>.lock next to the file.
  directory: ""
  # Retry delays while waiting for another writer
  backoff_initial_ms: 50
  backoff_max_ms: 1000
  backoff_multiplier: 2
  # Give up after this many attempts even before the timeout (0: no limit)
  max_retries: 0

# Logging
logging:
  # debug, info, warn, error
  level: warn
  # Log file path. Empty logs to stderr.
  file: ""
  # Rotate the log file at this size, keeping this many backups
  max_size_mb: 10
  max_backups: 3
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'nxguard config set' to modify values", configFile)
	}

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(defaultConfigContent), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created config file at %s\n", configFile)
	fmt.Fprintln(out, "Edit this file to customize nxguard's behavior.")

	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configFile := config.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	}

	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Fprintf(out, "  2. ./config.yaml (current directory)\n")
	fmt.Fprintln(out, "\nEnvironment variables: NXGUARD_* (e.g., NXGUARD_LOCK_DEFAULT_TIMEOUT)")

	return nil
}
