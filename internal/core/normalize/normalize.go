// Package normalize turns arbitrarily shaped raw records into canonical
// timeline entries.
package normalize

import (
	"maps"
	"time"

	"github.com/penwyp/go-station-timeline/internal/core/coerce"
	"github.com/penwyp/go-station-timeline/internal/core/identity"
	"github.com/penwyp/go-station-timeline/internal/core/model"
	"github.com/penwyp/go-station-timeline/internal/util"
)

// Normalizer builds entries from raw records. Records without a usable
// timestamp are stamped with the clock's current instant.
type Normalizer struct {
	clock util.Clock
}

// New creates a Normalizer; a nil clock reads the wall clock.
func New(clock util.Clock) *Normalizer {
	if clock == nil {
		clock = util.SystemClock{}
	}
	return &Normalizer{clock: clock}
}

var defaultNormalizer = New(util.SystemClock{})

// Normalize converts raw with the wall clock as timestamp fallback.
func Normalize(raw model.RawRecord) model.TimelineEntry {
	return defaultNormalizer.Normalize(raw)
}

// Normalize never fails: every field that cannot be resolved falls back to
// its default.
func (n *Normalizer) Normalize(raw model.RawRecord) model.TimelineEntry {
	entryType := firstString(raw, model.TypeFields)
	if entryType == "" {
		entryType = model.TypeDefault
	}

	occurredAt, ok := firstTime(raw, model.TimestampFields)
	if !ok {
		occurredAt = n.clock.Now().UTC()
	}

	sourceRecord, _ := coerce.ToRecord(raw[model.SourceField])
	sourceName := ""
	if sourceRecord != nil {
		sourceName = nonEmpty(sourceRecord[model.SourceNameField])
	}

	title := firstString(raw, model.TitleFields)
	if title == "" {
		title = sourceName
	}
	if title == "" {
		title = entryType
	}

	source := sourceName
	if source == "" {
		source = nonEmpty(raw[model.SourceField])
	}

	return model.TimelineEntry{
		ID:         identity.ResolveID(raw),
		Type:       entryType,
		OccurredAt: occurredAt,
		Title:      title,
		Summary:    firstString(raw, model.SummaryFields),
		Source:     source,
		Icon:       model.IconFor(entryType),
		Payload:    firstRecord(raw, model.PayloadFields),
		Metadata:   firstRecord(raw, model.MetadataFields),
		Raw:        cloneRaw(raw),
	}
}

func nonEmpty(value interface{}) string {
	s, _ := coerce.ToString(value)
	return s
}

func firstString(raw model.RawRecord, keys []string) string {
	for _, key := range keys {
		if s := nonEmpty(raw[key]); s != "" {
			return s
		}
	}
	return ""
}

func firstTime(raw model.RawRecord, keys []string) (time.Time, bool) {
	for _, key := range keys {
		if t, ok := coerce.ToTime(raw[key]); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func firstRecord(raw model.RawRecord, keys []string) map[string]interface{} {
	for _, key := range keys {
		if record, ok := coerce.ToRecord(raw[key]); ok {
			return record
		}
	}
	return nil
}

// cloneRaw gives the entry its own top-level map so later writes to the
// caller's record are not observed through Raw.
func cloneRaw(raw model.RawRecord) model.RawRecord {
	if raw == nil {
		return model.RawRecord{}
	}
	return maps.Clone(raw)
}
