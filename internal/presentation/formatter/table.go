package formatter

import (
	"fmt"
	"io"
	"strings"

	"github.com/penwyp/go-station-timeline/internal/core/model"
	"github.com/penwyp/go-station-timeline/internal/util"
)

const (
	defaultTableWidth = 100
	minTitleWidth     = 12
	minSummaryWidth   = 16
)

type TableFormatter struct {
	opts    Options
	headers []string
}

func NewTableFormatter(opts Options) *TableFormatter {
	return &TableFormatter{
		opts:    opts,
		headers: []string{"Time", "Type", "Title", "Source", "Summary"},
	}
}

func (f *TableFormatter) Format(w io.Writer, views []ScopeView) error {
	width := f.opts.Width
	if width <= 0 {
		width = TerminalWidth(defaultTableWidth)
	}

	p := &printer{w: w}
	for i, v := range views {
		if i > 0 {
			p.println("")
		}
		f.formatScope(p, v, width)
	}
	return p.err
}

func (f *TableFormatter) formatScope(p *printer, v ScopeView, width int) {
	header := fmt.Sprintf("%s · %s", v.Scope, v.Status)
	if !v.UpdatedAt.IsZero() {
		header += " · updated " + util.FormatRelativeTime(v.UpdatedAt, f.opts.now())
	}
	header += " · " + util.FormatCount(v.Total) + " entries"
	if f.opts.Color {
		header = util.FormatHeaderTitle(header)
	}
	p.println(header)

	if v.Err != nil {
		p.println(util.Colorize("Error: "+v.Err.Error(), util.ColorRed, f.opts.Color))
	}
	if len(v.Groups) == 0 {
		switch {
		case v.Loading:
			p.println("Loading timeline...")
		case v.Err == nil:
			p.println("No timeline entries")
		}
		return
	}

	for _, g := range v.Groups {
		rows := f.rows(g.Entries)
		widths := f.calculateColumnWidths(rows, width)

		p.println("")
		p.println(util.Colorize(fmt.Sprintf("%s (%d)", g.Label, len(g.Entries)), util.ColorBold, f.opts.Color))
		f.printBorder(p, widths, "top")
		f.printRow(p, f.headers, widths, "")
		f.printBorder(p, widths, "middle")
		for i, row := range rows {
			color := util.TypeColor(model.TypeClass(g.Entries[i].Type))
			f.printRow(p, row, widths, color)
		}
		f.printBorder(p, widths, "bottom")
	}
}

func (f *TableFormatter) rows(entries []model.TimelineEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			f.opts.timeLabel(e),
			e.Icon + " " + singleLine(e.Type),
			singleLine(e.Title),
			singleLine(e.Source),
			f.opts.preview(e),
		})
	}
	return rows
}

// calculateColumnWidths sizes columns to their content, then shrinks Summary
// and Title until the table fits in width.
func (f *TableFormatter) calculateColumnWidths(rows [][]string, width int) []int {
	widths := make([]int, len(f.headers))
	for i, h := range f.headers {
		widths[i] = util.GetDisplayWidth(h)
	}
	for _, row := range rows {
		for i, value := range row {
			if w := util.GetDisplayWidth(value); w > widths[i] {
				widths[i] = w
			}
		}
	}

	// "│ " before every column plus the closing " │".
	total := func() int {
		sum := 1
		for _, w := range widths {
			sum += w + 3
		}
		return sum
	}

	for _, col := range []struct{ index, min int }{{4, minSummaryWidth}, {2, minTitleWidth}} {
		if over := total() - width; over > 0 && widths[col.index] > col.min {
			widths[col.index] = max(col.min, widths[col.index]-over)
		}
	}
	return widths
}

func (f *TableFormatter) printBorder(p *printer, widths []int, borderType string) {
	var left, middle, right string
	switch borderType {
	case "top":
		left, middle, right = "┌", "┬", "┐"
	case "middle":
		left, middle, right = "├", "┼", "┤"
	default:
		left, middle, right = "└", "┴", "┘"
	}

	var b strings.Builder
	b.WriteString(left)
	for i, width := range widths {
		b.WriteString(strings.Repeat("─", width+2))
		if i < len(widths)-1 {
			b.WriteString(middle)
		}
	}
	b.WriteString(right)
	p.println(b.String())
}

// printRow pads every cell to its column; typeColor tints the Type cell.
func (f *TableFormatter) printRow(p *printer, values []string, widths []int, typeColor string) {
	var b strings.Builder
	b.WriteString("│")
	for i, value := range values {
		cell := util.PadRight(util.TruncateToWidth(value, widths[i]), widths[i])
		if i == 1 && typeColor != "" {
			cell = util.Colorize(cell, typeColor, f.opts.Color)
		}
		b.WriteString(" ")
		b.WriteString(cell)
		b.WriteString(" │")
	}
	p.println(b.String())
}

// printer remembers the first write error so rendering code stays linear.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) println(s string) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintln(p.w, s)
}
