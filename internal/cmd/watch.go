package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nexpy/nxguard/internal/storage"
)

var watchCmd = &cobra.Command{
	Use:   "watch <file> [path]",
	Short: "Print changes other writers make to a data file",
	Long: `Follow a data file and print a line each time another writer changes it.

With a path the field's new value is printed as well. Runs until
interrupted, or until --count changes have been seen.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runWatch,
}

var watchCount int

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().IntVarP(&watchCount, "count", "n", 0, "Exit after this many changes (0 = run until interrupted)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	mgr, logger, err := newManager()
	if err != nil {
		return err
	}
	defer logger.Close()

	root, err := mgr.Load(args[0], storage.ReadOnly)
	if err != nil {
		return err
	}
	guard := root.File()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Watching %s\n", guard.Path())

	seen := 0
	return guard.Watch(ctx, func(mtime time.Time) {
		line := fmt.Sprintf("%s changed", mtime.Format("15:04:05.000"))
		if len(args) == 2 {
			v, err := root.Get(args[1])
			if err != nil {
				line += fmt.Sprintf(" (%s: %v)", args[1], err)
			} else if s, err := formatValue(v); err == nil {
				line += fmt.Sprintf(" %s = %s", args[1], s)
			}
		}
		fmt.Fprintln(out, line)

		seen++
		if watchCount > 0 && seen >= watchCount {
			cancel()
		}
	})
}
