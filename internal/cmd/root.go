package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nexpy/nxguard/internal/config"
	"github.com/nexpy/nxguard/internal/filelock"
	"github.com/nexpy/nxguard/internal/logging"
	"github.com/nexpy/nxguard/internal/nxfile"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "nxguard",
	Short: "Advisory locking for shared data files",
	Long: `nxguard reads and writes tree-structured data files that several
processes share. Writes can be guarded by a marker-file lock next to the
data file; readers pick up other writers' changes by comparing mtimes.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is $HOME/.config/nxguard/config.yaml)")
}

func initConfig() {
	// Commands run more than once per process in tests
	viper.Reset()

	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("NXGUARD")
	// e.g. NXGUARD_LOCK_DEFAULT_TIMEOUT for lock.default_timeout
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// newManager builds a Manager from the loaded configuration. The returned
// logger must be closed by the caller.
func newManager() (*nxfile.Manager, *logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	return managerFor(cfg, logger), logger, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	if file := cfg.Logging.ResolveFile(); file != "" {
		return logging.NewLoggerWithRotation(file, cfg.Logging.Level, cfg.Logging.Rotation())
	}
	return logging.NewLogger("", cfg.Logging.Level)
}

// managerFor returns a Manager with its own lock registry, as a separate
// process would have.
func managerFor(cfg *config.Config, logger *logging.Logger) *nxfile.Manager {
	reg := filelock.NewRegistry(
		filelock.WithDefaultTimeout(cfg.Lock.Timeout()),
		filelock.WithLockDir(cfg.Lock.ResolveDirectory()),
		filelock.WithBackoff(cfg.Lock.Backoff()),
		filelock.WithMaxRetries(cfg.Lock.MaxRetries),
		filelock.WithLogger(logger),
	)
	return nxfile.NewManager(nxfile.WithRegistry(reg), nxfile.WithLogger(logger))
}
