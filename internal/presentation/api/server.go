// Package api serves scope timelines over HTTP in the same shape the HTTP
// source consumes.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/penwyp/go-station-timeline/internal/application/live"
	"github.com/penwyp/go-station-timeline/internal/core/model"
	"github.com/penwyp/go-station-timeline/internal/core/timeline"
	"github.com/penwyp/go-station-timeline/internal/util"
)

// TimelineService is the part of the coordinator the API reads from.
type TimelineService interface {
	Query(scope string) live.Snapshot
	Scopes() []string
	Trigger(scope string)
}

// Handler routes the timeline API plus /metrics and /healthz.
type Handler struct {
	service TimelineService
	builder *timeline.Builder
	limit   int // cap on grouped entries; 0 = unlimited
	mux     *http.ServeMux
}

// NewHandler builds the routes. gatherer may be nil to skip /metrics.
func NewHandler(service TimelineService, builder *timeline.Builder, groupLimit int, gatherer prometheus.Gatherer) *Handler {
	if builder == nil {
		builder = timeline.NewBuilder(nil, nil)
	}
	h := &Handler{service: service, builder: builder, limit: groupLimit, mux: http.NewServeMux()}

	h.mux.HandleFunc("GET /api/v1/stations", h.listScopes)
	h.mux.HandleFunc("GET /api/v1/stations/{scope}/timeline", h.timelinePage)
	h.mux.HandleFunc("GET /api/v1/stations/{scope}/timeline/groups", h.timelineGroups)
	h.mux.HandleFunc("POST /api/v1/stations/{scope}/refresh", h.refresh)
	if gatherer != nil {
		h.mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	h.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// NewServer wraps handler in an http.Server with conservative timeouts.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

type scopeStatus struct {
	Scope        string `json:"scope"`
	Status       string `json:"status"`
	IsLoading    bool   `json:"is_loading"`
	IsRefreshing bool   `json:"is_refreshing"`
	Invalidated  bool   `json:"invalidated"`
	Error        string `json:"error,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
	Total        int    `json:"total"`
}

func statusOf(snap live.Snapshot) scopeStatus {
	s := scopeStatus{
		Scope:        snap.Scope,
		Status:       snap.Status.String(),
		IsLoading:    snap.IsLoading,
		IsRefreshing: snap.IsRefreshing,
		Invalidated:  snap.Invalidated,
		Total:        len(snap.Entries),
	}
	if snap.Err != nil {
		s.Error = snap.Err.Error()
	}
	if !snap.UpdatedAt.IsZero() {
		s.UpdatedAt = snap.UpdatedAt.UTC().Format(model.ISOLayout)
	}
	return s
}

type pageResponse struct {
	scopeStatus
	Items  []model.TimelineEntry `json:"items"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

type groupsResponse struct {
	scopeStatus
	Groups []model.TimelineGroup `json:"groups"`
}

func (h *Handler) listScopes(w http.ResponseWriter, r *http.Request) {
	scopes := h.service.Scopes()
	out := make([]scopeStatus, 0, len(scopes))
	for _, scope := range scopes {
		out = append(out, statusOf(h.service.Query(scope)))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"stations": out})
}

func (h *Handler) timelinePage(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.lookup(w, r)
	if !ok {
		return
	}

	limit, err := intParam(r, "limit", timeline.DefaultPageLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page := timeline.Paginate(snap.Entries, limit, offset)
	writeJSON(w, http.StatusOK, pageResponse{
		scopeStatus: statusOf(snap),
		Items:       page.Items,
		Limit:       page.Limit,
		Offset:      page.Offset,
	})
}

func (h *Handler) timelineGroups(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.lookup(w, r)
	if !ok {
		return
	}

	limit, err := intParam(r, "limit", h.limit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, groupsResponse{
		scopeStatus: statusOf(snap),
		Groups:      h.builder.GroupWithLimit(snap.Entries, limit),
	})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.service.Trigger(snap.Scope)
	writeJSON(w, http.StatusAccepted, map[string]string{"scope": snap.Scope, "status": "refresh scheduled"})
}

// lookup resolves the {scope} path value to a known scope, answering 404
// otherwise.
func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (live.Snapshot, bool) {
	scope := r.PathValue("scope")
	for _, known := range h.service.Scopes() {
		if known == scope {
			return h.service.Query(scope), true
		}
	}
	writeError(w, http.StatusNotFound, "unknown station "+strconv.Quote(scope))
	return live.Snapshot{}, false
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &paramError{name: name, value: raw}
	}
	return n, nil
}

type paramError struct {
	name, value string
}

func (e *paramError) Error() string {
	return "invalid " + e.name + " " + strconv.Quote(e.value) + ": want a non-negative integer"
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	data, err := sonic.Marshal(body)
	if err != nil {
		util.LogErrorf("Failed to encode API response: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
