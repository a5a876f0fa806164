package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/penwyp/go-station-timeline/internal/presentation/formatter"
	"github.com/penwyp/go-station-timeline/internal/util"
	"github.com/spf13/cobra"
)

var (
	// Logging related
	debug bool

	// Configuration
	configFile string

	// Sources
	storeDir string
	baseURL  string
	scopes   []string

	// Output related
	outputFormat string
	timezone     string
	noColor      bool

	// Timeline shaping
	limit        int
	excerptChars int
	deduplicate  bool

	rootCmd = &cobra.Command{
		Use:   "go-station-timeline [flags]",
		Short: "Station activity timeline viewer",
		Long: `go-station-timeline fetches activity records for one or more stations,
normalizes them into a single timeline and prints it grouped by day.

Records come from a local store directory, a timeline HTTP API or
PostgreSQL tables, as configured.

Examples:
  go-station-timeline                                   # Print every station in the default store
  go-station-timeline --dir ./store --scope north-ridge  # Print one station from a store directory
  go-station-timeline --base-url http://localhost:8085   # Read stations from a timeline API
  go-station-timeline --output json --limit 20          # JSON output, newest 20 entries per station
  go-station-timeline --config station.yaml --dedup     # Use a config file and drop duplicate ids
  go-station-timeline watch                             # Keep the terminal view current
  go-station-timeline serve --addr :8085                # Serve timelines over HTTP`,
		RunE:          runTimeline,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
)

const (
	defaultLogFile  = "~/.go-station-timeline/logs/app.log"
	defaultStoreDir = "~/.go-station-timeline/store"
)

func init() {
	// Configuration and sources, shared by every subcommand
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&storeDir, "dir", "",
		"Store directory holding <scope>-timeline.jsonl files (default "+defaultStoreDir+" when no source is configured)")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "",
		"Timeline API base URL")
	rootCmd.PersistentFlags().StringSliceVarP(&scopes, "scope", "s", nil,
		"Stations to show (repeatable; default: all stations in the store)")
	rootCmd.PersistentFlags().StringVar(&timezone, "timezone", "Local",
		"Timezone for day groups and times (e.g., Asia/Shanghai, UTC)")
	rootCmd.PersistentFlags().BoolVar(&deduplicate, "dedup", false,
		"Drop entries whose id was already seen")
	rootCmd.PersistentFlags().IntVar(&limit, "limit", 0,
		"Entries per station (0 = unlimited)")
	rootCmd.PersistentFlags().IntVar(&excerptChars, "excerpt-chars", 0,
		"Payload preview budget when an entry has no summary (0 = default)")

	// Output configuration
	rootCmd.Flags().StringVarP(&outputFormat, "output", "o", formatter.FormatTable,
		"Output format (table, json, csv, summary)")
	rootCmd.Flags().StringVar(&outputFormat, "format", "",
		"Alias for --output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false,
		"Disable colored table output")

	// System and debugging
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"Enable debug mode")
}

func runTimeline(cmd *cobra.Command, args []string) error {
	// Handle format alias
	if format := cmd.Flags().Lookup("format"); format != nil && format.Changed {
		outputFormat = format.Value.String()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := setup(cfg); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	f, err := formatter.New(outputFormat, formatterOptions(cfg, out))
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	eng, err := newEngine(ctx, cfg, engineOptions{})
	if err != nil {
		return err
	}
	defer eng.Close()

	refreshErr := eng.orchestrator.RefreshAll(ctx)
	views := eng.views()
	if err := f.Format(out, views); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if refreshErr != nil {
		util.LogWarnf("Some stations failed to refresh: %v", refreshErr)
		if allFailed(views) {
			return fmt.Errorf("no station could be refreshed: %w", refreshErr)
		}
	}
	return nil
}

func allFailed(views []formatter.ScopeView) bool {
	for _, v := range views {
		if v.Err == nil {
			return false
		}
	}
	return len(views) > 0
}

func Execute() error {
	return rootCmd.Execute()
}

// Helper functions

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// isTerminal reports whether w is the process stdout attached to a TTY.
func isTerminal(w interface{}) bool {
	f, ok := w.(*os.File)
	if !ok || f != os.Stdout {
		return false
	}
	return formatter.IsTerminal(f)
}
