package model

import (
	"time"

	"github.com/bytedance/sonic"
)

// ISOLayout is the canonical rendering of occurred_at: UTC with milliseconds.
const ISOLayout = "2006-01-02T15:04:05.000Z"

// DateKeyLayout is the calendar-day key used for grouping.
const DateKeyLayout = "2006-01-02"

// RawRecord is an arbitrarily shaped record from an upstream source.
type RawRecord map[string]interface{}

// TimelineEntry is the canonical, normalized form of one raw record. It is
// built once per normalization pass and never mutated afterwards.
type TimelineEntry struct {
	ID         string
	Type       string
	OccurredAt time.Time // always UTC
	Title      string
	Summary    string // empty when absent
	Source     string // empty when absent
	Icon       string
	Payload    map[string]interface{} // nil when absent
	Metadata   map[string]interface{} // nil when absent
	Raw        RawRecord
}

// OccurredAtISO renders OccurredAt in the canonical ISO form.
func (e TimelineEntry) OccurredAtISO() string {
	return e.OccurredAt.UTC().Format(ISOLayout)
}

// DateKey is the UTC calendar date of the entry.
func (e TimelineEntry) DateKey() string {
	return e.OccurredAt.UTC().Format(DateKeyLayout)
}

type timelineEntryJSON struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	OccurredAt string                 `json:"occurred_at"`
	Title      string                 `json:"title"`
	Summary    string                 `json:"summary,omitempty"`
	Source     string                 `json:"source,omitempty"`
	Icon       string                 `json:"icon"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Raw        RawRecord              `json:"raw"`
}

// MarshalJSON emits the wire shape consumed by dashboards.
func (e TimelineEntry) MarshalJSON() ([]byte, error) {
	raw := e.Raw
	if raw == nil {
		raw = RawRecord{}
	}
	return sonic.Marshal(timelineEntryJSON{
		ID:         e.ID,
		Type:       e.Type,
		OccurredAt: e.OccurredAtISO(),
		Title:      e.Title,
		Summary:    e.Summary,
		Source:     e.Source,
		Icon:       e.Icon,
		Payload:    e.Payload,
		Metadata:   e.Metadata,
		Raw:        raw,
	})
}

// TimelineGroup is a derived view: the entries of one UTC calendar day,
// newest first.
type TimelineGroup struct {
	Key     string          `json:"key"`
	Label   string          `json:"label"`
	Entries []TimelineEntry `json:"entries"`
}

// TimelinePage is a window over a sorted timeline.
type TimelinePage struct {
	Items  []TimelineEntry `json:"items"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}
