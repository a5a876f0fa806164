package timeline

import (
	"github.com/penwyp/go-station-timeline/internal/core/coerce"
	"github.com/penwyp/go-station-timeline/internal/core/model"
)

// UnwrapRecords extracts the record list from a decoded retrieval response.
// A bare array is used as-is; an object contributes the first non-nil value
// under entries, timeline or items. Anything else yields an empty list, as do
// list elements that are not objects.
func UnwrapRecords(payload interface{}) []model.RawRecord {
	list, ok := payload.([]interface{})
	if !ok {
		envelope, isRecord := coerce.ToRecord(payload)
		if !isRecord {
			return []model.RawRecord{}
		}
		for _, key := range model.EnvelopeFields {
			if value, present := envelope[key]; present && value != nil {
				list, ok = value.([]interface{})
				break
			}
		}
		if !ok {
			return []model.RawRecord{}
		}
	}

	records := make([]model.RawRecord, 0, len(list))
	for _, item := range list {
		if record, isRecord := coerce.ToRecord(item); isRecord {
			records = append(records, record)
		}
	}
	return records
}
