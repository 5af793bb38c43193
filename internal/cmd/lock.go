package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nexpy/nxguard/internal/lockfile"
	"github.com/nexpy/nxguard/internal/nxfile"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Inspect and manage lock markers",
}

var lockStatusCmd = &cobra.Command{
	Use:   "status <file>",
	Short: "Show who holds the lock on a data file",
	Long: `Show whether the marker for a data file exists, how old it is, and
which process created it.

A marker older than the timeout is reported as stale; the next writer will
reclaim it. The timeout comes from --timeout, then lock.default_timeout,
then the built-in default.`,
	Args: cobra.ExactArgs(1),
	RunE: runLockStatus,
}

var lockClearCmd = &cobra.Command{
	Use:   "clear <file>",
	Short: "Remove the lock marker of a data file",
	Long: `Remove the lock marker of a data file regardless of who holds it.

Use this to break a lock left behind by a crashed process. A process still
holding the lock will not notice; only clear markers you know are dead.`,
	Args: cobra.ExactArgs(1),
	RunE: runLockClear,
}

var lockHoldCmd = &cobra.Command{
	Use:   "hold <file>",
	Short: "Acquire the lock and hold it for a while",
	Long: `Acquire the lock on a data file and hold it until --for elapses or the
command is interrupted. Useful for checking that other writers wait.`,
	Args: cobra.ExactArgs(1),
	RunE: runLockHold,
}

var (
	lockTimeout int
	lockHoldFor time.Duration
)

var (
	lockLabelStyle = lipgloss.NewStyle().Bold(true).Width(9)
	lockHeldStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F87171")).Bold(true)
	lockStaleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FBBF24")).Bold(true)
	lockFreeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#34D399")).Bold(true)
	lockMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
)

func init() {
	rootCmd.AddCommand(lockCmd)
	lockCmd.AddCommand(lockStatusCmd)
	lockCmd.AddCommand(lockClearCmd)
	lockCmd.AddCommand(lockHoldCmd)

	lockCmd.PersistentFlags().IntVarP(&lockTimeout, "timeout", "t", 0, "Lock timeout in seconds (default: configured or built-in)")
	lockHoldCmd.Flags().DurationVar(&lockHoldFor, "for", 5*time.Second, "How long to hold the lock")
}

// resolveLock returns the lock for file with the timeout chosen by the
// --timeout flag, the configured default, or the built-in default.
func resolveLock(file string) (*lockfile.LockFile, func(), error) {
	mgr, logger, err := newManager()
	if err != nil {
		return nil, nil, err
	}
	timeout := time.Duration(lockTimeout) * time.Second
	if timeout <= 0 {
		timeout = mgr.Registry().DefaultTimeout()
	}
	if timeout <= 0 {
		timeout = nxfile.UseDefault.Timeout()
	}
	l := mgr.Registry().GetOrCreate(file, timeout)
	return l, func() { _ = logger.Close() }, nil
}

func runLockStatus(cmd *cobra.Command, args []string) error {
	l, done, err := resolveLock(args[0])
	if err != nil {
		return err
	}
	defer done()

	w := cmd.OutOrStdout()
	printLockField(w, "File", l.Target())
	printLockField(w, "Marker", l.Path())
	printLockField(w, "Timeout", l.Timeout().String())

	age, err := l.Age()
	if errors.Is(err, fs.ErrNotExist) {
		printLockField(w, "State", lockFreeStyle.Render("free"))
		return nil
	}
	if err != nil {
		return err
	}

	state := lockHeldStyle.Render("locked")
	if l.IsStale() {
		state = lockStaleStyle.Render("stale") + lockMutedStyle.Render(" (will be reclaimed by the next writer)")
	}
	printLockField(w, "State", state)
	printLockField(w, "Age", humanize.Time(time.Now().Add(-age)))

	info, err := l.Info()
	if err != nil {
		printLockField(w, "Holder", lockMutedStyle.Render("unknown (unreadable marker)"))
		return nil
	}
	holder := fmt.Sprintf("pid %d on %s", info.PID, info.Hostname)
	switch alive, known := l.HolderAlive(); {
	case !known:
		holder += lockMutedStyle.Render(" (liveness unknown)")
	case alive:
		holder += lockMutedStyle.Render(" (running)")
	default:
		holder += lockStaleStyle.Render(" (not running)")
	}
	printLockField(w, "Holder", holder)
	return nil
}

func printLockField(w io.Writer, label, value string) {
	fmt.Fprintf(w, "%s %s\n", lockLabelStyle.Render(label+":"), value)
}

func runLockClear(cmd *cobra.Command, args []string) error {
	l, done, err := resolveLock(args[0])
	if err != nil {
		return err
	}
	defer done()

	existed, err := l.Clear()
	if err != nil {
		return err
	}
	if !existed {
		fmt.Fprintf(cmd.OutOrStdout(), "No lock marker at %s\n", l.Path())
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed lock marker %s\n", l.Path())
	return nil
}

func runLockHold(cmd *cobra.Command, args []string) error {
	l, done, err := resolveLock(args[0])
	if err != nil {
		return err
	}
	defer done()

	if lockHoldFor > l.Timeout() {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: holding for %s exceeds the %s timeout; other writers will treat the marker as stale\n",
			lockHoldFor, l.Timeout())
	}

	if err := l.Acquire(); err != nil {
		return err
	}
	defer func() { _ = l.Release() }()

	fmt.Fprintf(cmd.OutOrStdout(), "Holding %s for %s\n", l.Path(), lockHoldFor)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	timer := time.NewTimer(lockHoldFor)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	if err := l.Release(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Released %s\n", l.Path())
	return nil
}
