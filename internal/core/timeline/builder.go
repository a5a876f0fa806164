package timeline

import (
	"sort"

	"github.com/penwyp/go-station-timeline/internal/core/model"
	"github.com/penwyp/go-station-timeline/internal/core/normalize"
	"github.com/penwyp/go-station-timeline/internal/util"
)

const (
	// GroupLabelLayout renders a group's calendar day.
	GroupLabelLayout = "Mon, Jan 2, 2006"
	// TimeLabelLayout renders an entry's time of day.
	TimeLabelLayout = "15:04"
)

// Builder normalizes raw records into a sorted timeline and derives the
// date-grouped view. Labels are rendered in the provider's timezone while
// group keys stay on the UTC date.
type Builder struct {
	normalizer *normalize.Normalizer
	provider   *util.TimeProvider
}

// NewBuilder creates a builder. A nil normalizer uses the wall clock and a
// nil provider uses the global time provider at call time.
func NewBuilder(normalizer *normalize.Normalizer, provider *util.TimeProvider) *Builder {
	if normalizer == nil {
		normalizer = normalize.New(nil)
	}
	return &Builder{normalizer: normalizer, provider: provider}
}

func (b *Builder) timeProvider() *util.TimeProvider {
	if b.provider != nil {
		return b.provider
	}
	return util.GetTimeProvider()
}

// NormalizeTimeline maps every record through the normalizer and orders the
// result newest first. Equal timestamps keep their input order.
func (b *Builder) NormalizeTimeline(records []model.RawRecord) []model.TimelineEntry {
	entries := make([]model.TimelineEntry, 0, len(records))
	for _, raw := range records {
		entries = append(entries, b.normalizer.Normalize(raw))
	}
	SortNewestFirst(entries)
	return entries
}

// GroupByDate partitions entries by the UTC date of OccurredAt. Groups are
// ordered by descending date and each group is re-sorted newest first, so
// callers may pass entries in any order.
func (b *Builder) GroupByDate(entries []model.TimelineEntry) []model.TimelineGroup {
	if len(entries) == 0 {
		return []model.TimelineGroup{}
	}

	index := make(map[string]int)
	groups := make([]model.TimelineGroup, 0)
	for _, entry := range entries {
		key := entry.DateKey()
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, model.TimelineGroup{Key: key})
		}
		groups[i].Entries = append(groups[i].Entries, entry)
	}

	// Keys are YYYY-MM-DD, so lexical order is chronological.
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Key > groups[j].Key
	})

	provider := b.timeProvider()
	for i := range groups {
		SortNewestFirst(groups[i].Entries)
		groups[i].Label = provider.Format(groups[i].Entries[0].OccurredAt, GroupLabelLayout)
	}
	return groups
}

// GroupWithLimit keeps the first limit entries of the input and groups them.
// The limit bounds the total number of entries shown, not the per-group count.
func (b *Builder) GroupWithLimit(entries []model.TimelineEntry, limit int) []model.TimelineGroup {
	return b.GroupByDate(ApplyLimit(entries, limit))
}

// TimeLabel renders the entry's time of day in the display timezone.
func (b *Builder) TimeLabel(entry model.TimelineEntry) string {
	return b.timeProvider().Format(entry.OccurredAt, TimeLabelLayout)
}

var defaultBuilder = NewBuilder(nil, nil)

// NormalizeTimeline normalizes records with the wall clock and sorts them
// newest first.
func NormalizeTimeline(records []model.RawRecord) []model.TimelineEntry {
	return defaultBuilder.NormalizeTimeline(records)
}

// GroupByDate groups entries by UTC date with labels in the global display
// timezone.
func GroupByDate(entries []model.TimelineEntry) []model.TimelineGroup {
	return defaultBuilder.GroupByDate(entries)
}

// GroupWithLimit applies limit to the input before grouping.
func GroupWithLimit(entries []model.TimelineEntry, limit int) []model.TimelineGroup {
	return defaultBuilder.GroupWithLimit(entries, limit)
}
