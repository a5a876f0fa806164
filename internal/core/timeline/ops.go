package timeline

import (
	"sort"

	"github.com/penwyp/go-station-timeline/internal/core/model"
)

const (
	// DefaultPageLimit is used when a page request carries no limit.
	DefaultPageLimit = 50
	// MaxPageLimit caps a single page.
	MaxPageLimit = 200
)

// SortNewestFirst orders entries by OccurredAt descending in place. Equal
// timestamps keep their relative order.
func SortNewestFirst(entries []model.TimelineEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].OccurredAt.After(entries[j].OccurredAt)
	})
}

// ApplyLimit returns the first limit entries. A limit <= 0 keeps everything.
func ApplyLimit(entries []model.TimelineEntry, limit int) []model.TimelineEntry {
	if limit <= 0 || limit >= len(entries) {
		return entries
	}
	return entries[:limit]
}

// MergeTimelines concatenates independently normalized timelines and sorts
// the result newest first.
func MergeTimelines(timelines ...[]model.TimelineEntry) []model.TimelineEntry {
	var totalSize int
	for _, tl := range timelines {
		totalSize += len(tl)
	}

	merged := make([]model.TimelineEntry, 0, totalSize)
	for _, tl := range timelines {
		merged = append(merged, tl...)
	}
	SortNewestFirst(merged)
	return merged
}

// DeduplicateEntries drops entries whose ID was already seen; the first
// occurrence wins and order is preserved.
func DeduplicateEntries(entries []model.TimelineEntry) []model.TimelineEntry {
	if len(entries) == 0 {
		return entries
	}

	seen := make(map[string]struct{}, len(entries))
	result := make([]model.TimelineEntry, 0, len(entries))
	for _, entry := range entries {
		if _, ok := seen[entry.ID]; ok {
			continue
		}
		seen[entry.ID] = struct{}{}
		result = append(result, entry)
	}
	return result
}

// Paginate windows a sorted timeline. limit <= 0 means DefaultPageLimit and
// larger limits are capped at MaxPageLimit; a negative offset counts as 0.
func Paginate(entries []model.TimelineEntry, limit, offset int) model.TimelinePage {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	if offset < 0 {
		offset = 0
	}

	page := model.TimelinePage{
		Items:  []model.TimelineEntry{},
		Total:  len(entries),
		Limit:  limit,
		Offset: offset,
	}
	if offset >= len(entries) {
		return page
	}

	end := min(offset+limit, len(entries))
	page.Items = entries[offset:end]
	return page
}
