// Package live keeps per-scope timelines current. The coordinator applies
// only the most recently initiated fetch of a scope; the orchestrator feeds it
// change notices.
package live

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/penwyp/go-station-timeline/internal/core/cache"
	"github.com/penwyp/go-station-timeline/internal/core/model"
	"github.com/penwyp/go-station-timeline/internal/core/timeline"
	"github.com/penwyp/go-station-timeline/internal/data/notify"
	"github.com/penwyp/go-station-timeline/internal/util"
)

// DefaultFetchTimeout bounds a single retrieval.
const DefaultFetchTimeout = 15 * time.Second

// ErrClosed is returned by Refresh after Close.
var ErrClosed = errors.New("coordinator closed")

// Fetcher retrieves the raw records of a scope. source.Source satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, scope string) ([]model.RawRecord, error)
}

// partitionedFetcher returns one record list per upstream member. Each list
// is normalized on its own and the results are merged.
type partitionedFetcher interface {
	FetchEach(ctx context.Context, scope string) ([][]model.RawRecord, error)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithCache shares a cache between coordinators or with readers.
func WithCache(c *cache.MemoryCache) Option {
	return func(co *Coordinator) { co.cache = c }
}

// WithBuilder sets the normalizing builder.
func WithBuilder(b *timeline.Builder) Option {
	return func(co *Coordinator) { co.builder = b }
}

// WithMetrics records refresh outcomes.
func WithMetrics(m *Metrics) Option {
	return func(co *Coordinator) { co.metrics = m }
}

// WithFetchTimeout bounds each fetch; zero or negative disables the bound.
func WithFetchTimeout(d time.Duration) Option {
	return func(co *Coordinator) { co.fetchTimeout = d }
}

// WithDeduplicate drops repeated entry ids, keeping the first.
func WithDeduplicate(enabled bool) Option {
	return func(co *Coordinator) { co.deduplicate = enabled }
}

// WithScopes registers scopes up front so AllScopes notices reach them
// before their first refresh.
func WithScopes(scopes ...string) Option {
	return func(co *Coordinator) {
		for _, s := range scopes {
			co.stateFor(s)
		}
	}
}

// WithListener is called after a refresh result is applied, outside the
// coordinator's lock. Superseded results are not reported.
func WithListener(fn func(Snapshot)) Option {
	return func(co *Coordinator) { co.listener = fn }
}

// WithClock sets the clock used for UpdatedAt.
func WithClock(clock util.Clock) Option {
	return func(co *Coordinator) { co.clock = clock }
}

// Coordinator runs the Idle -> Fetching -> Fresh | Stale machine per scope.
// Every Refresh takes a new sequence number and cancels the fetch it
// supersedes; a result is applied only if its sequence is still the latest
// issued for the scope.
type Coordinator struct {
	fetcher      Fetcher
	cache        *cache.MemoryCache
	builder      *timeline.Builder
	metrics      *Metrics
	clock        util.Clock
	fetchTimeout time.Duration
	deduplicate  bool
	listener     func(Snapshot)

	mu     sync.Mutex
	scopes map[string]*scopeState
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewCoordinator(fetcher Fetcher, opts ...Option) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		fetcher:      fetcher,
		clock:        util.SystemClock{},
		fetchTimeout: DefaultFetchTimeout,
		scopes:       make(map[string]*scopeState),
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		c.cache = cache.NewMemoryCache()
	}
	if c.builder == nil {
		c.builder = timeline.NewBuilder(nil, nil)
	}
	return c
}

// stateFor returns the state of scope, creating it. Callers hold c.mu or
// run during construction.
func (c *Coordinator) stateFor(scope string) *scopeState {
	st, ok := c.scopes[scope]
	if !ok {
		st = &scopeState{}
		c.scopes[scope] = st
	}
	return st
}

// Refresh fetches and normalizes scope and blocks until done. It returns the
// fetch error when this refresh is still the latest one for the scope. A
// superseded refresh returns nil and changes nothing.
func (c *Coordinator) Refresh(ctx context.Context, scope string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	st := c.stateFor(scope)
	if st.cancel != nil {
		st.cancel()
	}
	st.issued++
	seq := st.issued
	fetchCtx, cancel := c.fetchContext(ctx)
	fetchCtx = util.ContextWithSequence(util.ContextWithScope(fetchCtx, scope), seq)
	st.cancel = cancel
	st.inFlight++
	st.status = StatusFetching
	c.cache.Invalidate(scope)
	c.mu.Unlock()

	start := time.Now()
	entries, err := c.load(fetchCtx, scope)
	cancel()
	c.metrics.observeFetch(scope, time.Since(start))

	if err == nil && c.deduplicate {
		entries = timeline.DeduplicateEntries(entries)
	}

	applied, err := c.apply(scope, st, seq, entries, err)
	if applied && c.listener != nil {
		c.listener(c.Query(scope))
	}
	return err
}

func (c *Coordinator) load(ctx context.Context, scope string) ([]model.TimelineEntry, error) {
	pf, ok := c.fetcher.(partitionedFetcher)
	if !ok {
		records, err := c.fetcher.Fetch(ctx, scope)
		if err != nil {
			return nil, err
		}
		return c.builder.NormalizeTimeline(records), nil
	}

	parts, err := pf.FetchEach(ctx, scope)
	if err != nil {
		return nil, err
	}
	timelines := make([][]model.TimelineEntry, 0, len(parts))
	for _, records := range parts {
		timelines = append(timelines, c.builder.NormalizeTimeline(records))
	}
	return timeline.MergeTimelines(timelines...), nil
}

// apply publishes the result of refresh seq unless a newer refresh was
// initiated meanwhile.
func (c *Coordinator) apply(scope string, st *scopeState, seq uint64, entries []model.TimelineEntry, err error) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st.inFlight--

	if seq != st.issued {
		util.LogDebugf("Dropping superseded refresh of %s (seq %d, latest %d)", scope, seq, st.issued)
		c.metrics.recordOutcome(scope, OutcomeSuperseded)
		return false, nil
	}
	st.cancel = nil

	// Shutdown is not a retrieval failure.
	if err != nil && c.ctx.Err() != nil && errors.Is(err, context.Canceled) {
		st.status = st.settled()
		c.cache.Cancel(scope)
		c.metrics.recordOutcome(scope, OutcomeCancelled)
		return false, nil
	}

	if err != nil {
		st.status = StatusStale
		st.err = err
		c.cache.Cancel(scope)
		c.metrics.recordOutcome(scope, OutcomeStale)
		util.LogWarnf("Refresh of %s failed: %v", scope, err)
		return true, fmt.Errorf("refresh %s: %w", scope, err)
	}

	now := c.clock.Now()
	c.cache.Set(scope, &cache.ScopeEntry{Entries: entries, FetchedAt: now, Sequence: seq})
	c.cache.Commit(scope)
	st.status = StatusFresh
	st.err = nil
	st.applied = seq
	st.loaded = true
	c.metrics.recordFresh(scope, len(entries), now)
	c.metrics.setCachedScopes(c.cache.Len())
	util.LogDebugf("Refreshed %s: %d entries (seq %d)", scope, len(entries), seq)
	return true, nil
}

func (c *Coordinator) fetchContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = c.ctx
	}
	// Close must also stop fetches started with a caller context.
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(c.ctx, cancel)
	if c.fetchTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, c.fetchTimeout)
		return ctx, func() {
			cancelTimeout()
			cancel()
			stop()
		}
	}
	return ctx, func() {
		cancel()
		stop()
	}
}

// Track registers scopes so AllScopes notices reach them before their first
// refresh.
func (c *Coordinator) Track(scopes ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range scopes {
		c.stateFor(s)
	}
}

// Trigger starts a background refresh of scope. AllScopes refreshes every
// known scope.
func (c *Coordinator) Trigger(scope string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	targets := []string{scope}
	if scope == notify.AllScopes {
		targets = c.scopesLocked()
	}
	c.wg.Add(len(targets))
	c.mu.Unlock()

	for _, s := range targets {
		go func(s string) {
			defer c.wg.Done()
			_ = c.Refresh(c.ctx, s)
		}(s)
	}
}

// Invalidate marks the cached timeline of scope for replacement. It keeps
// being served until a refresh commits. AllScopes invalidates every scope.
func (c *Coordinator) Invalidate(scope string) {
	targets := []string{scope}
	if scope == notify.AllScopes {
		targets = c.Scopes()
	}
	for _, s := range targets {
		c.cache.Invalidate(s)
	}
}

// Query returns the current view of scope. Unknown scopes are Idle.
func (c *Coordinator) Query(scope string) Snapshot {
	c.mu.Lock()
	st, ok := c.scopes[scope]
	var snap Snapshot
	snap.Scope = scope
	if ok {
		snap.Status = st.status
		snap.Err = st.err
		snap.IsRefreshing = st.inFlight > 0
		snap.IsLoading = st.inFlight > 0 && !st.loaded
		snap.Sequence = st.applied
	}
	c.mu.Unlock()

	snap.Invalidated = c.cache.IsPending(scope)

	if entry, found := c.cache.Get(scope); found {
		snap.Entries = slices.Clone(entry.Entries)
		snap.UpdatedAt = entry.FetchedAt
	}
	if snap.Entries == nil {
		snap.Entries = []model.TimelineEntry{}
	}
	return snap
}

// Scopes lists every scope registered or refreshed so far, plus the scopes
// held by a shared cache, sorted.
func (c *Coordinator) Scopes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scopesLocked()
}

func (c *Coordinator) scopesLocked() []string {
	seen := make(map[string]struct{}, len(c.scopes))
	for s := range c.scopes {
		seen[s] = struct{}{}
	}
	for _, s := range c.cache.Scopes() {
		seen[s] = struct{}{}
	}
	scopes := make([]string, 0, len(seen))
	for s := range seen {
		scopes = append(scopes, s)
	}
	sort.Strings(scopes)
	return scopes
}

// Changed returns the scopes whose visible timeline was replaced since the
// previous call, sorted.
func (c *Coordinator) Changed() []string {
	dirty := c.cache.DrainDirty()
	scopes := make([]string, 0, len(dirty))
	for s := range dirty {
		scopes = append(scopes, s)
	}
	sort.Strings(scopes)
	return scopes
}

// Close cancels in-flight fetches and waits for triggered refreshes. Later
// Refresh calls return ErrClosed and Trigger does nothing.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}
