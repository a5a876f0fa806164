package formatter

import (
	"errors"
	"testing"
	"time"

	"github.com/penwyp/go-station-timeline/internal/core/model"
	"github.com/penwyp/go-station-timeline/internal/core/normalize"
	"github.com/penwyp/go-station-timeline/internal/core/timeline"
	"github.com/penwyp/go-station-timeline/internal/util"
)

var testNow = time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)

func testOptions(t *testing.T) Options {
	t.Helper()
	provider, err := util.NewTimeProvider("UTC")
	if err != nil {
		t.Fatal(err)
	}
	return Options{
		ExcerptChars: 60,
		Width:        120,
		Provider:     provider,
		Now:          func() time.Time { return testNow },
	}
}

func testView(t *testing.T) ScopeView {
	t.Helper()
	opts := testOptions(t)
	b := timeline.NewBuilder(normalize.New(util.FixedClock{T: testNow}), opts.Provider)
	entries := b.NormalizeTimeline([]model.RawRecord{
		{"id": 1, "type": "telemetry", "timestamp": "2024-01-03T09:30:00Z", "source": map[string]interface{}{"name": "Sensor Alpha"}, "payload": map[string]interface{}{"temperature": 21.4}},
		{"id": "t-2", "type": "task", "timestamp": "2024-01-02T18:05:00Z", "title": "Replace filter", "summary": "Scheduled\nmaintenance"},
		{"id": "i-3", "type": "incident", "timestamp": "2024-01-02T07:00:00Z", "title": "Door, open"},
	})
	return ScopeView{
		Scope:     "alpha",
		Status:    "fresh",
		Groups:    b.GroupByDate(entries),
		Total:     len(entries),
		UpdatedAt: testNow.Add(-3 * time.Minute),
	}
}

func staleView() ScopeView {
	return ScopeView{
		Scope:  "beta",
		Status: "stale",
		Err:    errors.New("upstream returned 503"),
	}
}
