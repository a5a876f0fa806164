// Package formatter renders scope timelines for terminals and files.
package formatter

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/penwyp/go-station-timeline/internal/core/excerpt"
	"github.com/penwyp/go-station-timeline/internal/core/model"
	"github.com/penwyp/go-station-timeline/internal/core/timeline"
	"github.com/penwyp/go-station-timeline/internal/util"
)

// ScopeView is everything a formatter shows for one scope.
type ScopeView struct {
	Scope     string
	Status    string
	Groups    []model.TimelineGroup
	Total     int // entries before any display limit
	Err       error
	UpdatedAt time.Time
	Loading   bool
}

// Entries flattens the groups, newest first.
func (v ScopeView) Entries() []model.TimelineEntry {
	var out []model.TimelineEntry
	for _, g := range v.Groups {
		out = append(out, g.Entries...)
	}
	return out
}

// Options tune the output.
type Options struct {
	ExcerptChars int                // payload preview budget
	Color        bool               // ANSI colors in table output
	Width        int                // table width; 0 uses the terminal width
	Provider     *util.TimeProvider // nil uses the global provider
	Now          func() time.Time
}

func (o Options) provider() *util.TimeProvider {
	if o.Provider != nil {
		return o.Provider
	}
	return util.GetTimeProvider()
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o Options) timeLabel(e model.TimelineEntry) string {
	return timeline.NewBuilder(nil, o.provider()).TimeLabel(e)
}

// preview is the summary, or a single-line payload excerpt when there is
// none.
func (o Options) preview(e model.TimelineEntry) string {
	if e.Summary != "" {
		return singleLine(e.Summary)
	}
	text, ok := excerpt.Excerpt(e.Payload, o.ExcerptChars)
	if !ok {
		return ""
	}
	return singleLine(text)
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Formatter writes views to w.
type Formatter interface {
	Format(w io.Writer, views []ScopeView) error
}

// Names of the supported output formats.
const (
	FormatTable   = "table"
	FormatJSON    = "json"
	FormatCSV     = "csv"
	FormatSummary = "summary"
)

// New returns the formatter for name.
func New(name string, opts Options) (Formatter, error) {
	switch name {
	case "", FormatTable:
		return NewTableFormatter(opts), nil
	case FormatJSON:
		return NewJSONFormatter(), nil
	case FormatCSV:
		return NewCSVFormatter(opts), nil
	case FormatSummary:
		return NewSummaryFormatter(opts), nil
	default:
		return nil, fmt.Errorf("unsupported output format %q (table, json, csv, summary)", name)
	}
}

// TerminalWidth returns the width of stdout, or fallback when it is not a
// terminal.
func TerminalWidth(fallback int) int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width < 60 {
		return fallback
	}
	return width
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
