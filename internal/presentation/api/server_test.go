package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/go-station-timeline/internal/application/live"
	"github.com/penwyp/go-station-timeline/internal/config"
	"github.com/penwyp/go-station-timeline/internal/core/model"
	"github.com/penwyp/go-station-timeline/internal/core/normalize"
	"github.com/penwyp/go-station-timeline/internal/core/timeline"
	"github.com/penwyp/go-station-timeline/internal/data/source"
	"github.com/penwyp/go-station-timeline/internal/util"
)

type fakeService struct {
	mu        sync.Mutex
	snaps     map[string]live.Snapshot
	triggered []string
}

func (f *fakeService) Query(scope string) live.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snaps[scope]
}

func (f *fakeService) Scopes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.snaps))
	for _, s := range []string{"alpha", "beta"} {
		if _, ok := f.snaps[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeService) Trigger(scope string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggered = append(f.triggered, scope)
}

func testBuilder(t *testing.T) *timeline.Builder {
	t.Helper()
	provider, err := util.NewTimeProvider("UTC")
	require.NoError(t, err)
	return timeline.NewBuilder(normalize.New(util.FixedClock{T: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)}), provider)
}

func newFakeService(t *testing.T) *fakeService {
	b := testBuilder(t)
	records := make([]model.RawRecord, 0, 5)
	for i := 0; i < 5; i++ {
		records = append(records, model.RawRecord{
			"id":        fmt.Sprintf("e%d", i),
			"type":      "telemetry",
			"timestamp": fmt.Sprintf("2024-01-0%dT10:00:00Z", i+1),
		})
	}
	return &fakeService{snaps: map[string]live.Snapshot{
		"alpha": {
			Scope:     "alpha",
			Status:    live.StatusFresh,
			Entries:   b.NormalizeTimeline(records),
			UpdatedAt: time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC),
			Sequence:  1,
		},
		"beta": {
			Scope:       "beta",
			Status:      live.StatusStale,
			Entries:     []model.TimelineEntry{},
			Err:         errors.New("upstream returned 503"),
			Invalidated: true,
		},
	}}
}

func get(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	}
	return rec, body
}

func ids(items []interface{}) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.(map[string]interface{})["id"].(string))
	}
	return out
}

func TestTimelinePage(t *testing.T) {
	h := NewHandler(newFakeService(t), testBuilder(t), 0, nil)

	tests := []struct {
		name       string
		query      string
		wantIDs    []string
		wantLimit  float64
		wantOffset float64
	}{
		{name: "defaults", query: "", wantIDs: []string{"e4", "e3", "e2", "e1", "e0"}, wantLimit: 50},
		{name: "window", query: "?limit=2&offset=1", wantIDs: []string{"e3", "e2"}, wantLimit: 2, wantOffset: 1},
		{name: "past the end", query: "?offset=10", wantIDs: []string{}, wantLimit: 50, wantOffset: 10},
		{name: "limit capped", query: "?limit=1000", wantIDs: []string{"e4", "e3", "e2", "e1", "e0"}, wantLimit: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := get(t, h, "/api/v1/stations/alpha/timeline"+tt.query)
			require.Equal(t, http.StatusOK, rec.Code)

			assert.Equal(t, tt.wantIDs, ids(body["items"].([]interface{})))
			assert.Equal(t, float64(5), body["total"])
			assert.Equal(t, tt.wantLimit, body["limit"])
			assert.Equal(t, tt.wantOffset, body["offset"])
			assert.Equal(t, "alpha", body["scope"])
			assert.Equal(t, "fresh", body["status"])
			assert.Equal(t, "2024-01-05T12:00:00.000Z", body["updated_at"])
		})
	}
}

func TestTimelinePage_StaleCarriesError(t *testing.T) {
	h := NewHandler(newFakeService(t), testBuilder(t), 0, nil)

	rec, body := get(t, h, "/api/v1/stations/beta/timeline")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stale", body["status"])
	assert.Equal(t, "upstream returned 503", body["error"])
	assert.Equal(t, []interface{}{}, body["items"])
	assert.NotContains(t, body, "updated_at")
}

func TestTimelinePage_BadParams(t *testing.T) {
	h := NewHandler(newFakeService(t), testBuilder(t), 0, nil)

	for _, q := range []string{"?limit=abc", "?offset=-1", "?limit=-5"} {
		rec, body := get(t, h, "/api/v1/stations/alpha/timeline"+q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		assert.Contains(t, body["error"], "want a non-negative integer")
	}
}

func TestUnknownScope(t *testing.T) {
	h := NewHandler(newFakeService(t), testBuilder(t), 0, nil)

	rec, body := get(t, h, "/api/v1/stations/nowhere/timeline")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, `unknown station "nowhere"`, body["error"])
}

func TestTimelineGroups(t *testing.T) {
	h := NewHandler(newFakeService(t), testBuilder(t), 3, nil)

	rec, body := get(t, h, "/api/v1/stations/alpha/timeline/groups")
	require.Equal(t, http.StatusOK, rec.Code)

	groups := body["groups"].([]interface{})
	require.Len(t, groups, 3, "configured limit keeps the newest three entries")
	first := groups[0].(map[string]interface{})
	assert.Equal(t, "2024-01-05", first["key"])
	assert.Equal(t, "Fri, Jan 5, 2024", first["label"])

	_, body = get(t, h, "/api/v1/stations/alpha/timeline/groups?limit=0")
	assert.Len(t, body["groups"], 5)
}

func TestListScopes(t *testing.T) {
	h := NewHandler(newFakeService(t), testBuilder(t), 0, nil)

	rec, body := get(t, h, "/api/v1/stations")
	require.Equal(t, http.StatusOK, rec.Code)

	stations := body["stations"].([]interface{})
	require.Len(t, stations, 2)
	assert.Equal(t, "alpha", stations[0].(map[string]interface{})["scope"])
	assert.Equal(t, float64(5), stations[0].(map[string]interface{})["total"])
	assert.Equal(t, "stale", stations[1].(map[string]interface{})["status"])
	assert.Equal(t, false, stations[0].(map[string]interface{})["invalidated"])
	assert.Equal(t, true, stations[1].(map[string]interface{})["invalidated"])
}

func TestRefresh(t *testing.T) {
	svc := newFakeService(t)
	h := NewHandler(svc, testBuilder(t), 0, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stations/alpha/refresh", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"alpha"}, svc.triggered)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/stations/alpha/refresh", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthzAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	live.NewMetrics(reg)
	h := NewHandler(newFakeService(t), testBuilder(t), 0, reg)

	rec, _ := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec, _ = get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)

	noMetrics := NewHandler(newFakeService(t), testBuilder(t), 0, nil)
	rec, _ = get(t, noMetrics, "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// The API serves the envelope the HTTP source unwraps, so one instance can
// feed another.
func TestServedTimelineFeedsHTTPSource(t *testing.T) {
	srv := httptest.NewServer(NewHandler(newFakeService(t), testBuilder(t), 0, nil))
	defer srv.Close()

	src := source.NewHTTPSource(config.HTTPSource{
		BaseURL:    srv.URL,
		Timeout:    2 * time.Second,
		MaxRetries: 1,
		Backoff:    time.Millisecond,
		MaxBackoff: time.Millisecond,
		UserAgent:  "test",
	})
	records, err := src.Fetch(context.Background(), "alpha")
	require.NoError(t, err)
	require.Len(t, records, 5)

	entries := testBuilder(t).NormalizeTimeline(records)
	assert.Equal(t, "e4", entries[0].ID)
	assert.Equal(t, "2024-01-05T10:00:00.000Z", entries[0].OccurredAtISO())
	assert.Equal(t, "telemetry", entries[0].Type)
}

func TestNewServer(t *testing.T) {
	srv := NewServer(":0", http.NotFoundHandler())
	assert.Equal(t, ":0", srv.Addr)
	assert.Positive(t, srv.ReadHeaderTimeout)

	resp := httptest.NewRecorder()
	srv.Handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	body, _ := io.ReadAll(resp.Result().Body)
	assert.Contains(t, string(body), "404")
}
