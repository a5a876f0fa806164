package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/penwyp/go-station-timeline/internal/presentation/api"
	"github.com/penwyp/go-station-timeline/internal/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var (
	serveAddr string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve station timelines over HTTP",
		Long: `Serve keeps every station current like watch and exposes the
timelines as JSON, together with Prometheus metrics.

Endpoints:
  GET  /api/v1/stations
  GET  /api/v1/stations/{scope}/timeline?limit=&offset=
  GET  /api/v1/stations/{scope}/timeline/groups
  POST /api/v1/stations/{scope}/refresh
  GET  /metrics
  GET  /healthz

Examples:
  go-station-timeline serve                          # Listen on :8085
  go-station-timeline serve --addr 127.0.0.1:9000    # Listen on a custom address`,
		RunE: runServe,
	}
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "",
		"Listen address (default :8085)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr = serveAddr
	}
	if err := setup(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	eng, err := newEngine(ctx, cfg, engineOptions{registerer: registry, push: true})
	if err != nil {
		return err
	}
	defer eng.Close()

	handler := api.NewHandler(eng.coordinator, eng.builder, cfg.Timeline.Limit, registry)
	srv := api.NewServer(cfg.Server.Addr, handler)

	runErr := make(chan error, 1)
	go func() {
		runErr <- eng.orchestrator.Run(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		util.LogInfof("Serving station timelines on %s", cfg.Server.Addr)
		fmt.Fprintf(cmd.OutOrStdout(), "Serving %d stations on %s\n", len(cfg.Scopes), cfg.Server.Addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		stop()
		<-runErr
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	}

	util.LogInfo("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return waitRun(runErr)
}
