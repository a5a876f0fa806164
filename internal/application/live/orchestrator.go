package live

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/penwyp/go-station-timeline/internal/config"
	"github.com/penwyp/go-station-timeline/internal/data/notify"
	"github.com/penwyp/go-station-timeline/internal/data/scanner"
	"github.com/penwyp/go-station-timeline/internal/util"
)

// ResolveScopes returns the configured scopes, or the scopes discovered in
// the mock store when none are configured.
func ResolveScopes(cfg *config.Config) ([]string, error) {
	if len(cfg.Scopes) > 0 {
		return cfg.Scopes, nil
	}
	if cfg.Sources.Store.Dir != "" {
		scopes, err := scanner.NewFileScanner(cfg.Sources.Store.Dir).Scopes()
		if err != nil {
			return nil, fmt.Errorf("discover scopes: %w", err)
		}
		if len(scopes) > 0 {
			return scopes, nil
		}
	}
	return nil, config.ErrNoScopes
}

// Orchestrator feeds change notices from every notifier into the
// coordinator. Without notifiers it polls every scope on
// Refresh.PollInterval.
type Orchestrator struct {
	config      *config.Config
	coordinator *Coordinator
	notifiers   []notify.Notifier
	metrics     *Metrics
	scopes      map[string]struct{}
}

func NewOrchestrator(cfg *config.Config, coordinator *Coordinator, notifiers ...notify.Notifier) *Orchestrator {
	scopes := make(map[string]struct{}, len(cfg.Scopes))
	for _, s := range cfg.Scopes {
		scopes[s] = struct{}{}
	}
	coordinator.Track(cfg.Scopes...)
	return &Orchestrator{
		config:      cfg,
		coordinator: coordinator,
		notifiers:   notifiers,
		metrics:     coordinator.metrics,
		scopes:      scopes,
	}
}

// RefreshAll refreshes every configured scope concurrently and waits. The
// result joins the errors of failed scopes.
func (o *Orchestrator) RefreshAll(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, scope := range o.config.Scopes {
		wg.Add(1)
		go func(scope string) {
			defer wg.Done()
			if err := o.coordinator.Refresh(ctx, scope); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(scope)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Run performs an initial refresh and then handles notices until ctx ends.
// Notifiers are closed on return.
func (o *Orchestrator) Run(ctx context.Context) error {
	util.LogInfo("Starting station timeline refresh loop...")

	notifiers := o.notifiers
	if len(notifiers) == 0 {
		util.LogInfof("No change feed configured, polling every %s", o.config.Refresh.PollInterval)
		notifiers = []notify.Notifier{notify.NewPoller(o.config.Refresh.PollInterval)}
	}
	defer func() {
		if err := notify.CloseAll(notifiers); err != nil {
			util.LogWarnf("Failed to close notifiers: %v", err)
		}
	}()

	if err := o.RefreshAll(ctx); err != nil {
		util.LogWarnf("Initial refresh incomplete: %v", err)
	}

	notices := fanIn(ctx, notifiers)
	for {
		select {
		case <-ctx.Done():
			util.LogInfo("Shutting down station timeline refresh loop...")
			return nil
		case notice, ok := <-notices:
			if !ok {
				return nil
			}
			o.handleNotice(notice)
		}
	}
}

func (o *Orchestrator) handleNotice(notice notify.Notice) {
	o.metrics.recordNotice(notice.Origin)
	if notice.Scope != notify.AllScopes {
		if _, ok := o.scopes[notice.Scope]; !ok {
			util.LogDebugf("Ignoring %s notice for unconfigured scope %s", notice.Origin, notice.Scope)
			return
		}
	}
	util.LogDebugf("Notice from %s for scope %s", notice.Origin, notice.Scope)
	o.coordinator.Invalidate(notice.Scope)
	o.coordinator.Trigger(notice.Scope)
}

// fanIn merges notifier channels. The result closes once every notifier
// channel is drained or ctx ends.
func fanIn(ctx context.Context, notifiers []notify.Notifier) <-chan notify.Notice {
	out := make(chan notify.Notice)
	var wg sync.WaitGroup
	for _, n := range notifiers {
		wg.Add(1)
		go func(events <-chan notify.Notice) {
			defer wg.Done()
			for {
				select {
				case notice, ok := <-events:
					if !ok {
						return
					}
					select {
					case out <- notice:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}(n.Events())
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
