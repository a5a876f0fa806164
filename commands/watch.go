package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/penwyp/go-station-timeline/internal/application/live"
	"github.com/penwyp/go-station-timeline/internal/presentation/formatter"
	"github.com/penwyp/go-station-timeline/internal/util"
	"github.com/spf13/cobra"
)

const clearScreen = "\033[H\033[2J"

var (
	watchInterval time.Duration
	watchStore    bool

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Keep station timelines current and redraw on every change",
		Long: `Watch refreshes every station once, then keeps the view current.

Changes arrive from the configured notifiers (store file watcher, Kafka
change events, Redis pub/sub). Without any, stations are polled on a
fixed interval.

Examples:
  go-station-timeline watch                         # Poll the default store every 30s
  go-station-timeline watch --store-events          # Redraw as soon as store files change
  go-station-timeline watch --interval 10s -s alpha # Poll one station every 10s`,
		RunE: runWatch,
	}
)

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0,
		"Poll interval when no notifier is configured (default 30s)")
	watchCmd.Flags().BoolVar(&watchStore, "store-events", false,
		"Watch the store directory for file changes")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("interval") {
		if watchInterval <= 0 {
			return fmt.Errorf("--interval must be positive, got %s", watchInterval)
		}
		cfg.Refresh.PollInterval = watchInterval
	}
	if watchStore {
		cfg.Notifiers.Watch.Enabled = true
	}
	if err := setup(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redraw := make(chan struct{}, 1)
	eng, err := newEngine(ctx, cfg, engineOptions{
		push: true,
		listener: func(live.Snapshot) {
			select {
			case redraw <- struct{}{}:
			default:
			}
		},
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	out := cmd.OutOrStdout()
	opts := formatterOptions(cfg, out)
	table := formatter.NewTableFormatter(opts)

	runErr := make(chan error, 1)
	go func() {
		runErr <- eng.orchestrator.Run(ctx)
	}()

	util.LogInfof("Watching %d stations", len(cfg.Scopes))
	for {
		select {
		case <-ctx.Done():
			return waitRun(runErr)
		case err := <-runErr:
			return err
		case <-redraw:
			views := pendingViews(eng.views(), eng.coordinator.Changed(), opts.Color)
			if len(views) == 0 {
				continue
			}
			if opts.Color {
				fmt.Fprint(out, clearScreen)
			}
			if err := table.Format(out, views); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
		}
	}
}

// pendingViews picks what to print after a change. A terminal redraws every
// station; appended output repeats only stations that changed or failed.
func pendingViews(views []formatter.ScopeView, changed []string, redrawAll bool) []formatter.ScopeView {
	if redrawAll {
		return views
	}
	var picked []formatter.ScopeView
	for _, v := range views {
		if v.Err != nil || slices.Contains(changed, v.Scope) {
			picked = append(picked, v)
		}
	}
	return picked
}

// waitRun waits for the orchestrator to stop after cancellation.
func waitRun(runErr <-chan error) error {
	err := <-runErr
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
