package formatter

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/penwyp/go-station-timeline/internal/core/timeline"
	"github.com/penwyp/go-station-timeline/internal/util"
)

// SummaryFormatter reports per-scope totals instead of individual entries.
type SummaryFormatter struct {
	opts Options
}

func NewSummaryFormatter(opts Options) *SummaryFormatter {
	return &SummaryFormatter{opts: opts}
}

type typeCount struct {
	Type  string
	Count int
}

func (f *SummaryFormatter) Format(w io.Writer, views []ScopeView) error {
	p := &printer{w: w}

	p.println(strings.Repeat("=", 60))
	p.println("Station Timeline Summary Report")
	p.println(strings.Repeat("=", 60))

	if len(views) == 0 {
		p.println("")
		p.println("No scopes to summarize")
		p.println("")
		p.println(strings.Repeat("=", 60))
		return p.err
	}

	grand := 0
	for _, v := range views {
		entries := v.Entries()
		grand += v.Total

		p.println("")
		p.println(fmt.Sprintf("%s (%s):", v.Scope, v.Status))
		if v.Err != nil {
			p.println("  Error: " + v.Err.Error())
		}
		if !v.UpdatedAt.IsZero() {
			p.println("  Updated: " + util.FormatRelativeTime(v.UpdatedAt, f.opts.now()))
		}
		p.println("  Entries: " + util.FormatCount(v.Total))
		if len(entries) == 0 {
			continue
		}

		newest, oldest := entries[0], entries[len(entries)-1]
		provider := f.opts.provider()
		if newest.DateKey() == oldest.DateKey() {
			p.println("  Date Range: " + newest.DateKey())
		} else {
			p.println(fmt.Sprintf("  Date Range: %s to %s", oldest.DateKey(), newest.DateKey()))
		}
		p.println(fmt.Sprintf("  Latest: %s %s (%s)",
			provider.Format(newest.OccurredAt, timeline.GroupLabelLayout),
			f.opts.timeLabel(newest),
			util.FormatRelativeTime(newest.OccurredAt, f.opts.now())))

		p.println("  By Type:")
		for _, tc := range countTypes(v) {
			p.println(fmt.Sprintf("    %-20s %s", tc.Type, util.FormatCount(tc.Count)))
		}
	}

	p.println("")
	p.println(strings.Repeat("-", 60))
	p.println(fmt.Sprintf("Total: %s entries across %d scopes", util.FormatCount(grand), len(views)))
	p.println(strings.Repeat("=", 60))
	return p.err
}

// countTypes tallies entry types, most frequent first, ties by name.
func countTypes(v ScopeView) []typeCount {
	counts := make(map[string]int)
	for _, e := range v.Entries() {
		counts[e.Type]++
	}
	out := make([]typeCount, 0, len(counts))
	for t, n := range counts {
		out = append(out, typeCount{Type: t, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type < out[j].Type
	})
	return out
}
