package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/go-station-timeline/internal/core/cache"
	"github.com/penwyp/go-station-timeline/internal/core/model"
	"github.com/penwyp/go-station-timeline/internal/data/notify"
	"github.com/penwyp/go-station-timeline/internal/util"
)

type fetchFunc func(ctx context.Context, scope string, call int) ([]model.RawRecord, error)

// scriptedFetcher numbers calls per scope starting at 1.
type scriptedFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	fn    fetchFunc
}

func newScriptedFetcher(fn fetchFunc) *scriptedFetcher {
	return &scriptedFetcher{calls: make(map[string]int), fn: fn}
}

func (f *scriptedFetcher) Fetch(ctx context.Context, scope string) ([]model.RawRecord, error) {
	f.mu.Lock()
	f.calls[scope]++
	call := f.calls[scope]
	f.mu.Unlock()
	return f.fn(ctx, scope, call)
}

func (f *scriptedFetcher) callCount(scope string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[scope]
}

func record(id, ts string) model.RawRecord {
	return model.RawRecord{"id": id, "type": "telemetry", "timestamp": ts}
}

func entryIDs(entries []model.TimelineEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}

var fixedNow = time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)

func TestCoordinator_RefreshFresh(t *testing.T) {
	fetcher := newScriptedFetcher(func(ctx context.Context, scope string, call int) ([]model.RawRecord, error) {
		return []model.RawRecord{
			record("a", "2024-01-02T10:00:00Z"),
			record("b", "2024-01-03T10:00:00Z"),
		}, nil
	})
	c := NewCoordinator(fetcher, WithClock(util.FixedClock{T: fixedNow}))
	defer c.Close()

	require.NoError(t, c.Refresh(context.Background(), "alpha"))

	snap := c.Query("alpha")
	assert.Equal(t, "alpha", snap.Scope)
	assert.Equal(t, StatusFresh, snap.Status)
	assert.Equal(t, []string{"b", "a"}, entryIDs(snap.Entries))
	assert.False(t, snap.IsLoading)
	assert.False(t, snap.IsRefreshing)
	assert.NoError(t, snap.Err)
	assert.Equal(t, uint64(1), snap.Sequence)
	assert.True(t, snap.UpdatedAt.Equal(fixedNow))
}

func TestCoordinator_QueryUnknownScope(t *testing.T) {
	c := NewCoordinator(newScriptedFetcher(nil))
	defer c.Close()

	snap := c.Query("nowhere")
	assert.Equal(t, StatusIdle, snap.Status)
	assert.NotNil(t, snap.Entries)
	assert.Empty(t, snap.Entries)
	assert.False(t, snap.IsLoading)
}

func TestCoordinator_StaleKeepsLastGood(t *testing.T) {
	boom := errors.New("upstream unavailable")
	fetcher := newScriptedFetcher(func(ctx context.Context, scope string, call int) ([]model.RawRecord, error) {
		if call == 1 {
			return []model.RawRecord{record("a", "2024-01-02T10:00:00Z")}, nil
		}
		return nil, boom
	})
	c := NewCoordinator(fetcher)
	defer c.Close()

	require.NoError(t, c.Refresh(context.Background(), "alpha"))
	err := c.Refresh(context.Background(), "alpha")
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "refresh alpha")

	snap := c.Query("alpha")
	assert.Equal(t, StatusStale, snap.Status)
	assert.ErrorIs(t, snap.Err, boom)
	assert.Equal(t, []string{"a"}, entryIDs(snap.Entries))
	assert.Equal(t, uint64(1), snap.Sequence)
}

func TestCoordinator_StaleRecoversToFresh(t *testing.T) {
	fetcher := newScriptedFetcher(func(ctx context.Context, scope string, call int) ([]model.RawRecord, error) {
		if call == 1 {
			return nil, errors.New("timeout")
		}
		return []model.RawRecord{record("b", "2024-01-02T10:00:00Z")}, nil
	})
	c := NewCoordinator(fetcher)
	defer c.Close()

	require.Error(t, c.Refresh(context.Background(), "alpha"))
	snap := c.Query("alpha")
	assert.Equal(t, StatusStale, snap.Status)
	assert.Empty(t, snap.Entries)

	require.NoError(t, c.Refresh(context.Background(), "alpha"))
	snap = c.Query("alpha")
	assert.Equal(t, StatusFresh, snap.Status)
	assert.NoError(t, snap.Err)
	assert.Equal(t, []string{"b"}, entryIDs(snap.Entries))
}

func TestCoordinator_LatestInitiatedWins(t *testing.T) {
	release := make(chan struct{})
	started := make(chan context.Context, 1)
	fetcher := newScriptedFetcher(func(ctx context.Context, scope string, call int) ([]model.RawRecord, error) {
		if call == 1 {
			started <- ctx
			<-release
			return []model.RawRecord{record("old", "2024-01-02T10:00:00Z")}, nil
		}
		return []model.RawRecord{record("new", "2024-01-02T11:00:00Z")}, nil
	})
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	c := NewCoordinator(fetcher, WithMetrics(metrics))
	defer c.Close()

	firstDone := make(chan error, 1)
	go func() { firstDone <- c.Refresh(context.Background(), "alpha") }()
	firstCtx := <-started

	snap := c.Query("alpha")
	assert.True(t, snap.IsLoading)
	assert.True(t, snap.IsRefreshing)
	assert.Equal(t, StatusFetching, snap.Status)

	require.NoError(t, c.Refresh(context.Background(), "alpha"))
	assert.Error(t, firstCtx.Err(), "superseded fetch should be cancelled")

	close(release)
	require.NoError(t, <-firstDone)

	snap = c.Query("alpha")
	assert.Equal(t, StatusFresh, snap.Status)
	assert.Equal(t, []string{"new"}, entryIDs(snap.Entries))
	assert.Equal(t, uint64(2), snap.Sequence)
	assert.False(t, snap.IsRefreshing)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.refreshTotal.WithLabelValues("alpha", OutcomeSuperseded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.refreshTotal.WithLabelValues("alpha", OutcomeFresh)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.entries.WithLabelValues("alpha")))
}

func TestCoordinator_SupersededFailureIsSilent(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	fetcher := newScriptedFetcher(func(ctx context.Context, scope string, call int) ([]model.RawRecord, error) {
		if call == 1 {
			started <- struct{}{}
			<-release
			return nil, errors.New("late failure")
		}
		return []model.RawRecord{record("new", "2024-01-02T11:00:00Z")}, nil
	})
	c := NewCoordinator(fetcher)
	defer c.Close()

	firstDone := make(chan error, 1)
	go func() { firstDone <- c.Refresh(context.Background(), "alpha") }()
	<-started

	require.NoError(t, c.Refresh(context.Background(), "alpha"))
	close(release)
	assert.NoError(t, <-firstDone)

	snap := c.Query("alpha")
	assert.Equal(t, StatusFresh, snap.Status)
	assert.NoError(t, snap.Err)
}

func TestCoordinator_ScopesAreIndependent(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	fetcher := newScriptedFetcher(func(ctx context.Context, scope string, call int) ([]model.RawRecord, error) {
		if scope == "slow" {
			started <- struct{}{}
			<-release
		}
		return []model.RawRecord{record(scope, "2024-01-02T10:00:00Z")}, nil
	})
	c := NewCoordinator(fetcher)
	defer c.Close()

	slowDone := make(chan error, 1)
	go func() { slowDone <- c.Refresh(context.Background(), "slow") }()
	<-started

	require.NoError(t, c.Refresh(context.Background(), "fast"))
	assert.Equal(t, StatusFresh, c.Query("fast").Status)

	close(release)
	require.NoError(t, <-slowDone)
	assert.Equal(t, []string{"slow"}, entryIDs(c.Query("slow").Entries))
}

func TestCoordinator_FetchTimeout(t *testing.T) {
	fetcher := newScriptedFetcher(func(ctx context.Context, scope string, call int) ([]model.RawRecord, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	c := NewCoordinator(fetcher, WithFetchTimeout(20*time.Millisecond))
	defer c.Close()

	err := c.Refresh(context.Background(), "alpha")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StatusStale, c.Query("alpha").Status)
}

func TestCoordinator_Deduplicate(t *testing.T) {
	fetcher := newScriptedFetcher(func(ctx context.Context, scope string, call int) ([]model.RawRecord, error) {
		return []model.RawRecord{
			record("dup", "2024-01-02T10:00:00Z"),
			record("dup", "2024-01-02T09:00:00Z"),
			record("other", "2024-01-02T08:00:00Z"),
		}, nil
	})

	plain := NewCoordinator(fetcher)
	defer plain.Close()
	require.NoError(t, plain.Refresh(context.Background(), "alpha"))
	assert.Len(t, plain.Query("alpha").Entries, 3)

	dedup := NewCoordinator(fetcher, WithDeduplicate(true))
	defer dedup.Close()
	require.NoError(t, dedup.Refresh(context.Background(), "alpha"))
	assert.Equal(t, []string{"dup", "other"}, entryIDs(dedup.Query("alpha").Entries))
}

func TestCoordinator_TriggerAllScopes(t *testing.T) {
	fetcher := newScriptedFetcher(func(ctx context.Context, scope string, call int) ([]model.RawRecord, error) {
		return []model.RawRecord{record(scope, "2024-01-02T10:00:00Z")}, nil
	})

	applied := make(chan string, 2)
	c := NewCoordinator(fetcher,
		WithScopes("alpha", "beta"),
		WithListener(func(s Snapshot) { applied <- s.Scope }),
	)
	defer c.Close()

	assert.Equal(t, []string{"alpha", "beta"}, c.Scopes())
	c.Trigger(notify.AllScopes)

	var got []string
	for len(got) < 2 {
		select {
		case s := <-applied:
			got = append(got, s)
		case <-time.After(2 * time.Second):
			t.Fatalf("only %v refreshed", got)
		}
	}

	assert.ElementsMatch(t, []string{"alpha", "beta"}, got)
	assert.Equal(t, 1, fetcher.callCount("alpha"))
	assert.Equal(t, 1, fetcher.callCount("beta"))
	assert.Equal(t, StatusFresh, c.Query("alpha").Status)
	assert.Equal(t, StatusFresh, c.Query("beta").Status)
}

func TestCoordinator_InvalidateKeepsServing(t *testing.T) {
	fetcher := newScriptedFetcher(func(ctx context.Context, scope string, call int) ([]model.RawRecord, error) {
		return []model.RawRecord{record("a", "2024-01-02T10:00:00Z")}, nil
	})
	c := NewCoordinator(fetcher)
	defer c.Close()

	require.NoError(t, c.Refresh(context.Background(), "alpha"))
	c.Invalidate("alpha")
	assert.Equal(t, []string{"a"}, entryIDs(c.Query("alpha").Entries))
}

func TestCoordinator_RefreshAfterClose(t *testing.T) {
	c := NewCoordinator(newScriptedFetcher(nil))
	c.Close()
	assert.ErrorIs(t, c.Refresh(context.Background(), "alpha"), ErrClosed)
}

func TestCoordinator_QueryReturnsCopy(t *testing.T) {
	fetcher := newScriptedFetcher(func(ctx context.Context, scope string, call int) ([]model.RawRecord, error) {
		return []model.RawRecord{record("a", "2024-01-02T10:00:00Z")}, nil
	})
	c := NewCoordinator(fetcher)
	defer c.Close()
	require.NoError(t, c.Refresh(context.Background(), "alpha"))

	snap := c.Query("alpha")
	snap.Entries[0].ID = "mutated"
	assert.Equal(t, "a", c.Query("alpha").Entries[0].ID)
}

func TestCoordinator_CloseDropsInFlightRefresh(t *testing.T) {
	started := make(chan struct{})
	fetcher := newScriptedFetcher(func(ctx context.Context, scope string, call int) ([]model.RawRecord, error) {
		if call == 1 {
			return []model.RawRecord{record("a", "2024-01-02T10:00:00Z")}, nil
		}
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	c := NewCoordinator(fetcher, WithMetrics(metrics))

	require.NoError(t, c.Refresh(context.Background(), "alpha"))
	c.Trigger("alpha")
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("triggered refresh never started")
	}
	c.Close()

	snap := c.Query("alpha")
	assert.Equal(t, StatusFresh, snap.Status)
	assert.NoError(t, snap.Err)
	assert.False(t, snap.IsRefreshing)
	assert.False(t, snap.Invalidated)
	assert.Equal(t, []string{"a"}, entryIDs(snap.Entries))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.refreshTotal.WithLabelValues("alpha", OutcomeCancelled)))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.refreshTotal.WithLabelValues("alpha", OutcomeStale)))
}

func TestCoordinator_CloseBeforeFirstLoadIsIdle(t *testing.T) {
	started := make(chan struct{})
	fetcher := newScriptedFetcher(func(ctx context.Context, scope string, call int) ([]model.RawRecord, error) {
		close(started)
		<-ctx.Done()
		return nil, fmt.Errorf("fetch %s: %w", scope, ctx.Err())
	})
	c := NewCoordinator(fetcher)

	c.Trigger("alpha")
	<-started
	c.Close()

	snap := c.Query("alpha")
	assert.Equal(t, StatusIdle, snap.Status)
	assert.NoError(t, snap.Err)
	assert.Empty(t, snap.Entries)
}

func TestCoordinator_TriggerRacesClose(t *testing.T) {
	fetcher := newScriptedFetcher(func(ctx context.Context, scope string, call int) ([]model.RawRecord, error) {
		return []model.RawRecord{record("a", "2024-01-02T10:00:00Z")}, nil
	})
	c := NewCoordinator(fetcher, WithScopes("alpha", "beta"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.Trigger(notify.AllScopes)
			}
		}()
	}
	c.Close()
	wg.Wait()

	calls := fetcher.callCount("alpha") + fetcher.callCount("beta")
	c.Trigger(notify.AllScopes)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, fetcher.callCount("alpha")+fetcher.callCount("beta"))
}

func TestCoordinator_ChangedDrainsCommittedScopes(t *testing.T) {
	boom := errors.New("upstream unavailable")
	fetcher := newScriptedFetcher(func(ctx context.Context, scope string, call int) ([]model.RawRecord, error) {
		if call > 1 {
			return nil, boom
		}
		return []model.RawRecord{record(scope, "2024-01-02T10:00:00Z")}, nil
	})
	c := NewCoordinator(fetcher)
	defer c.Close()

	require.NoError(t, c.Refresh(context.Background(), "beta"))
	require.NoError(t, c.Refresh(context.Background(), "alpha"))
	assert.Equal(t, []string{"alpha", "beta"}, c.Changed())
	assert.Empty(t, c.Changed())

	require.Error(t, c.Refresh(context.Background(), "alpha"))
	assert.Empty(t, c.Changed(), "a failed refresh leaves the visible timeline untouched")
}

func TestCoordinator_InvalidatedUntilCommit(t *testing.T) {
	fetcher := newScriptedFetcher(func(ctx context.Context, scope string, call int) ([]model.RawRecord, error) {
		return []model.RawRecord{record("a", "2024-01-02T10:00:00Z")}, nil
	})
	c := NewCoordinator(fetcher)
	defer c.Close()

	require.NoError(t, c.Refresh(context.Background(), "alpha"))
	assert.False(t, c.Query("alpha").Invalidated)

	c.Invalidate("alpha")
	snap := c.Query("alpha")
	assert.True(t, snap.Invalidated)
	assert.Equal(t, []string{"a"}, entryIDs(snap.Entries))

	require.NoError(t, c.Refresh(context.Background(), "alpha"))
	assert.False(t, c.Query("alpha").Invalidated)
}

func TestCoordinator_ScopesIncludeSharedCache(t *testing.T) {
	shared := cache.NewMemoryCache()
	shared.Set("gamma", &cache.ScopeEntry{Scope: "gamma"})

	fetcher := newScriptedFetcher(func(ctx context.Context, scope string, call int) ([]model.RawRecord, error) {
		return []model.RawRecord{record("a", "2024-01-02T10:00:00Z")}, nil
	})
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	c := NewCoordinator(fetcher, WithCache(shared), WithScopes("alpha"), WithMetrics(metrics))
	defer c.Close()

	assert.Equal(t, []string{"alpha", "gamma"}, c.Scopes())

	require.NoError(t, c.Refresh(context.Background(), "beta"))
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, c.Scopes())
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.cachedScopes))
}

// splitFetcher serves one record list per upstream member.
type splitFetcher struct {
	parts [][]model.RawRecord
	flat  int
}

func (f *splitFetcher) Fetch(ctx context.Context, scope string) ([]model.RawRecord, error) {
	f.flat++
	return nil, errors.New("flat fetch not expected")
}

func (f *splitFetcher) FetchEach(ctx context.Context, scope string) ([][]model.RawRecord, error) {
	return f.parts, nil
}

func TestCoordinator_MergesMemberTimelines(t *testing.T) {
	fetcher := &splitFetcher{parts: [][]model.RawRecord{
		{record("store-old", "2024-01-01T10:00:00Z"), record("store-new", "2024-01-04T10:00:00Z")},
		{record("http-mid", "2024-01-02T10:00:00Z")},
		{},
	}}
	c := NewCoordinator(fetcher)
	defer c.Close()

	require.NoError(t, c.Refresh(context.Background(), "alpha"))

	snap := c.Query("alpha")
	assert.Equal(t, StatusFresh, snap.Status)
	assert.Equal(t, []string{"store-new", "http-mid", "store-old"}, entryIDs(snap.Entries))
	assert.Zero(t, fetcher.flat)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "idle", StatusIdle.String())
	assert.Equal(t, "fetching", StatusFetching.String())
	assert.Equal(t, "fresh", StatusFresh.String())
	assert.Equal(t, "stale", StatusStale.String())
	assert.Equal(t, "unknown", Status(42).String())
}
