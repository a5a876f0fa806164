package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/penwyp/go-station-timeline/internal/config"
	"github.com/penwyp/go-station-timeline/internal/core/model"
	"github.com/penwyp/go-station-timeline/internal/core/timeline"
	"github.com/penwyp/go-station-timeline/internal/util"
)

// ScopeHeader carries the scope on every timeline request.
const ScopeHeader = "X-Station-Id"

const maxErrorBody = 512

// StatusError is a non-2xx response from the timeline API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// HTTPSource polls GET {base}/api/v1/stations/{scope}/timeline.
type HTTPSource struct {
	cfg    config.HTTPSource
	client *http.Client
}

func NewHTTPSource(cfg config.HTTPSource) *HTTPSource {
	return &HTTPSource{cfg: cfg, client: util.NewHTTPClient(cfg.Timeout)}
}

func (h *HTTPSource) Name() string { return KindHTTP }

// Endpoint returns the timeline URL of scope.
func (h *HTTPSource) Endpoint(scope string) string {
	return strings.TrimRight(h.cfg.BaseURL, "/") + "/api/v1/stations/" + url.PathEscape(scope) + "/timeline"
}

// Fetch retries transport errors and 5xx/429 responses with exponential
// backoff; other statuses fail immediately.
func (h *HTTPSource) Fetch(ctx context.Context, scope string) ([]model.RawRecord, error) {
	var records []model.RawRecord
	var permanent error

	err := util.Retry(ctx, h.cfg.MaxRetries, h.cfg.Backoff, h.cfg.MaxBackoff, func() error {
		result, err := h.fetchOnce(ctx, scope)
		if err != nil {
			var statusErr *StatusError
			if errors.As(err, &statusErr) && !statusErr.Temporary() {
				permanent = err
				return nil
			}
			if ctx.Err() != nil {
				permanent = ctx.Err()
				return nil
			}
			util.Named("http").WithContext(ctx).Debug("Timeline request failed", util.F("error", err.Error()))
			return err
		}
		records = result
		return nil
	})
	if permanent != nil {
		return nil, permanent
	}
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (h *HTTPSource) fetchOnce(ctx context.Context, scope string) ([]model.RawRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.Endpoint(scope), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(ScopeHeader, scope)
	if h.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", h.cfg.UserAgent)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var payload interface{}
	if err := sonic.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode timeline response: %w", err)
	}
	return timeline.UnwrapRecords(payload), nil
}
