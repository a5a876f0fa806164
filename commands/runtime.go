package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/penwyp/go-station-timeline/internal/application/live"
	"github.com/penwyp/go-station-timeline/internal/config"
	"github.com/penwyp/go-station-timeline/internal/core/normalize"
	"github.com/penwyp/go-station-timeline/internal/core/timeline"
	"github.com/penwyp/go-station-timeline/internal/data/notify"
	"github.com/penwyp/go-station-timeline/internal/data/source"
	"github.com/penwyp/go-station-timeline/internal/presentation/formatter"
	"github.com/penwyp/go-station-timeline/internal/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// loadConfig reads --config when given and lets explicitly set flags
// override the file. Defaults are filled by Validate.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := &config.Config{}
	if configFile != "" {
		loaded, err := config.Load(expandPath(configFile))
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("dir") {
		cfg.Sources.Store.Dir = storeDir
	}
	if flags.Changed("base-url") {
		cfg.Sources.HTTP.BaseURL = baseURL
	}
	if flags.Changed("scope") {
		cfg.Scopes = scopes
	}
	if flags.Changed("timezone") || cfg.Timeline.Timezone == "" {
		cfg.Timeline.Timezone = timezone
	}
	if flags.Changed("dedup") {
		cfg.Refresh.Deduplicate = deduplicate
	}
	if flags.Changed("limit") {
		cfg.Timeline.Limit = limit
	}
	if flags.Changed("excerpt-chars") {
		cfg.Timeline.ExcerptChars = excerptChars
	}
	if debug {
		cfg.Log.Level = "debug"
	}

	if !cfg.HasSource() {
		cfg.Sources.Store.Dir = defaultStoreDir
	}
	if cfg.Sources.Store.Dir != "" {
		cfg.Sources.Store.Dir = expandPath(cfg.Sources.Store.Dir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	resolved, err := live.ResolveScopes(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: pass --scope or add <scope>-timeline.jsonl files to %s", err, cfg.Sources.Store.Dir)
	}
	cfg.Scopes = resolved
	return cfg, nil
}

// setup initializes logging and the display timezone.
func setup(cfg *config.Config) error {
	logFile := expandPath(cfg.Log.File)
	if err := ensureDir(filepath.Dir(logFile)); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	if err := util.InitLogger(cfg.Log.Level, logFile, debug); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return util.InitializeTimeProvider(cfg.Timeline.Timezone)
}

func formatterOptions(cfg *config.Config, out io.Writer) formatter.Options {
	return formatter.Options{
		ExcerptChars: cfg.Timeline.ExcerptChars,
		Color:        !noColor && isTerminal(out),
		Provider:     util.GetTimeProvider(),
	}
}

type engineOptions struct {
	registerer prometheus.Registerer
	push       bool // start the configured push notifiers
	listener   func(live.Snapshot)
}

// engine is the wiring shared by every command: one source, one
// coordinator and the orchestrator driving it.
type engine struct {
	config       *config.Config
	source       source.Source
	builder      *timeline.Builder
	coordinator  *live.Coordinator
	orchestrator *live.Orchestrator
	notifiers    []notify.Notifier
}

func newEngine(ctx context.Context, cfg *config.Config, opts engineOptions) (*engine, error) {
	src, err := source.NewFromConfig(ctx, cfg.Sources)
	if err != nil {
		return nil, fmt.Errorf("failed to create source: %w", err)
	}
	util.LogDebugf("Using source %s for %d stations", src.Name(), len(cfg.Scopes))

	builder := timeline.NewBuilder(normalize.New(nil), util.GetTimeProvider())
	coordOpts := []live.Option{
		live.WithBuilder(builder),
		live.WithMetrics(live.NewMetrics(opts.registerer)),
		live.WithFetchTimeout(cfg.Refresh.FetchTimeout),
		live.WithDeduplicate(cfg.Refresh.Deduplicate),
		live.WithScopes(cfg.Scopes...),
	}
	if opts.listener != nil {
		coordOpts = append(coordOpts, live.WithListener(opts.listener))
	}
	coordinator := live.NewCoordinator(src, coordOpts...)

	var notifiers []notify.Notifier
	if opts.push {
		notifiers, err = notify.NewFromConfig(ctx, cfg)
		if err != nil {
			coordinator.Close()
			source.Close(src)
			return nil, fmt.Errorf("failed to start notifiers: %w", err)
		}
		for _, n := range notifiers {
			util.LogInfof("Listening for changes via %s", n.Name())
		}
	}

	return &engine{
		config:       cfg,
		source:       src,
		builder:      builder,
		coordinator:  coordinator,
		orchestrator: live.NewOrchestrator(cfg, coordinator, notifiers...),
		notifiers:    notifiers,
	}, nil
}

// views snapshots every configured scope in configuration order.
func (e *engine) views() []formatter.ScopeView {
	views := make([]formatter.ScopeView, 0, len(e.config.Scopes))
	for _, scope := range e.config.Scopes {
		snap := e.coordinator.Query(scope)
		views = append(views, formatter.ScopeView{
			Scope:     scope,
			Status:    snap.Status.String(),
			Groups:    e.builder.GroupWithLimit(snap.Entries, e.config.Timeline.Limit),
			Total:     len(snap.Entries),
			Err:       snap.Err,
			UpdatedAt: snap.UpdatedAt,
			Loading:   snap.IsLoading,
		})
	}
	return views
}

func (e *engine) Close() {
	if err := notify.CloseAll(e.notifiers); err != nil {
		util.LogWarnf("Failed to close notifiers: %v", err)
	}
	e.coordinator.Close()
	source.Close(e.source)
}
