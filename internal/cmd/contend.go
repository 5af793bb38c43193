package cmd

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/nexpy/nxguard/internal/config"
	"github.com/nexpy/nxguard/internal/event"
	"github.com/nexpy/nxguard/internal/nxfile"
	"github.com/nexpy/nxguard/internal/storage"
	"github.com/nexpy/nxguard/internal/tree"
)

var contendCmd = &cobra.Command{
	Use:   "contend <file> <path>",
	Short: "Run concurrent writers against one counter field",
	Long: `Start several independent writers that each increment an integer field
a number of times, then report whether any increment was lost.

Each writer has its own lock registry, so writers only coordinate through
the marker file the way separate processes would. With --lock off the
writers race and updates are usually lost.

Example:
  nxguard contend scan.nxs entry/counter --writers 8 --increments 25`,
	Args: cobra.ExactArgs(2),
	RunE: runContend,
}

var (
	contendWriters    int
	contendIncrements int
	contendLock       string
)

func init() {
	rootCmd.AddCommand(contendCmd)

	contendCmd.Flags().IntVarP(&contendWriters, "writers", "w", 4, "Number of concurrent writers")
	contendCmd.Flags().IntVarP(&contendIncrements, "increments", "n", 10, "Increments per writer")
	contendCmd.Flags().StringVar(&contendLock, "lock", "default", "Lock timeout for each writer: off, default, or seconds")
}

// contendResult summarizes a contend run.
type contendResult struct {
	Start, Final int
	Expected     int
	Acquisitions int64
	Waited       time.Duration
	Elapsed      time.Duration
}

// Lost returns the number of increments that were overwritten.
func (r contendResult) Lost() int { return r.Expected - r.Final }

func runContend(cmd *cobra.Command, args []string) error {
	if contendWriters < 1 || contendIncrements < 1 {
		return fmt.Errorf("--writers and --increments must be positive")
	}
	setting, err := nxfile.ParseLockSetting(contendLock)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	res, err := contend(args[0], args[1], setting, contendWriters, contendIncrements, func() *nxfile.Manager {
		return managerFor(cfg, logger)
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Writers:      %d x %d increments (lock %s)\n", contendWriters, contendIncrements, setting)
	fmt.Fprintf(out, "Counter:      %d -> %d (expected %d)\n", res.Start, res.Final, res.Expected)
	fmt.Fprintf(out, "Acquisitions: %s, %s waiting in total\n",
		humanize.Comma(res.Acquisitions), res.Waited.Round(time.Millisecond))
	fmt.Fprintf(out, "Elapsed:      %s\n", res.Elapsed.Round(time.Millisecond))
	if lost := res.Lost(); lost > 0 {
		fmt.Fprintf(out, "Lost updates: %d\n", lost)
	} else {
		fmt.Fprintln(out, "Lost updates: none")
	}
	return nil
}

// contend runs writers concurrent writers, each with a Manager from
// newMgr, incrementing the integer at path increments times.
func contend(file, path string, setting nxfile.LockSetting, writers, increments int, newMgr func() *nxfile.Manager) (contendResult, error) {
	var res contendResult

	// Seed the counter, creating the file and parent groups if needed
	seed := newMgr()
	guard, err := seed.Open(file, storage.WriteCreate)
	if err != nil {
		return res, err
	}
	if err := guard.SetLock(setting); err != nil {
		return res, err
	}
	err = guard.Write(func(t *tree.Tree) error {
		v, err := t.Get(path)
		switch {
		case errors.Is(err, tree.ErrNotFound):
			if err := ensureParents(t, path); err != nil {
				return err
			}
			return t.Set(path, 0)
		case err != nil:
			return err
		case v == nil:
			return t.Set(path, 0)
		}
		n, ok := v.(int)
		if !ok {
			return fmt.Errorf("%s holds %T, not int", path, v)
		}
		res.Start = n
		return nil
	})
	if err != nil {
		return res, err
	}
	res.Expected = res.Start + writers*increments

	var acquisitions atomic.Int64
	var waited atomic.Int64

	start := time.Now()
	p := pool.New().WithErrors().WithMaxGoroutines(writers)
	for i := 0; i < writers; i++ {
		mgr := newMgr()
		mgr.Registry().WatchAcquisitions(func(e event.LockAcquiredEvent) {
			acquisitions.Add(1)
			waited.Add(int64(e.Waited))
		})
		p.Go(func() error {
			g, err := mgr.Open(file, storage.ReadWrite)
			if err != nil {
				return err
			}
			if err := g.SetLock(setting); err != nil {
				return err
			}
			for j := 0; j < increments; j++ {
				err := nxfile.UpdateValue(g, path, func(cur int) (int, error) {
					return cur + 1, nil
				})
				if err != nil {
					return fmt.Errorf("writer %d: %w", i, err)
				}
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return res, err
	}
	res.Elapsed = time.Since(start)
	res.Acquisitions = acquisitions.Load()
	res.Waited = time.Duration(waited.Load())

	final, err := seed.Load(file, storage.ReadOnly)
	if err != nil {
		return res, err
	}
	v, err := final.Get(path)
	if err != nil {
		return res, err
	}
	n, ok := v.(int)
	if !ok {
		return res, fmt.Errorf("%s holds %T after contention, not int", path, v)
	}
	res.Final = n
	return res, nil
}
