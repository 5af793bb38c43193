package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nexpy/nxguard/internal/config"
	"github.com/nexpy/nxguard/internal/filelock"
	"github.com/nexpy/nxguard/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View lock and file activity logs",
	Long: `View and filter the nxguard log file, including rotated backups.

Logs are only written to a file when logging.file is configured.

Examples:
  # Show the last 50 entries
  nxguard logs

  # Stale lock recoveries and timeouts in the last hour
  nxguard logs --level warn --since 1h

  # Everything about one data file, as CSV
  nxguard logs --data-file scan.nxs -n 0 --format csv`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

var (
	logsFile     string
	logsTail     int
	logsLevel    string
	logsSince    string
	logsDataFile string
	logsGrep     string
	logsFormat   string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringVar(&logsFile, "log-file", "", "Log file to read (default: logging.file)")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of entries to show (0 for all)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show entries since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsDataFile, "data-file", "", "Only entries about this data file")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Only entries whose message contains this text")
	logsCmd.Flags().StringVarP(&logsFormat, "format", "o", "text", "Output format (text/json/csv)")
}

func runLogs(cmd *cobra.Command, args []string) error {
	path := logsFile
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		path = cfg.Logging.ResolveFile()
	}
	if path == "" {
		return errors.New("no log file: set logging.file in the config or pass --log-file")
	}

	filter := logging.LogFilter{
		Level:           logsLevel,
		MessageContains: logsGrep,
	}
	if logsLevel != "" {
		filter.Level = logging.ParseLevel(logsLevel)
	}
	if logsDataFile != "" {
		filter.File = filelock.Canonical(logsDataFile)
	}
	if logsSince != "" {
		d, err := time.ParseDuration(logsSince)
		if err != nil {
			return fmt.Errorf("invalid --since duration: %w", err)
		}
		filter.StartTime = time.Now().Add(-d)
	}

	entries, err := logging.ReadLogs(path)
	if err != nil {
		return err
	}
	entries = logging.FilterLogs(entries, filter)
	if logsTail > 0 && len(entries) > logsTail {
		entries = entries[len(entries)-logsTail:]
	}
	return logging.WriteEntries(cmd.OutOrStdout(), entries, logsFormat)
}
