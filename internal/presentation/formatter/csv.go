package formatter

import (
	"encoding/csv"
	"io"
)

type CSVFormatter struct {
	opts Options
}

func NewCSVFormatter(opts Options) *CSVFormatter {
	return &CSVFormatter{opts: opts}
}

var csvHeaders = []string{
	"Scope", "Date", "Time", "ID", "Type", "Title", "Source", "Summary", "Occurred At",
}

func (f *CSVFormatter) Format(w io.Writer, views []ScopeView) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeaders); err != nil {
		return err
	}

	for _, v := range views {
		for _, g := range v.Groups {
			for _, e := range g.Entries {
				record := []string{
					v.Scope,
					g.Key,
					f.opts.timeLabel(e),
					e.ID,
					e.Type,
					e.Title,
					e.Source,
					f.opts.preview(e),
					e.OccurredAtISO(),
				}
				if err := cw.Write(record); err != nil {
					return err
				}
			}
		}
	}

	cw.Flush()
	return cw.Error()
}
