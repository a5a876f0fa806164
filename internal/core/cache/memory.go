package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/penwyp/go-station-timeline/internal/core/model"
	"github.com/penwyp/go-station-timeline/internal/util"
)

// ScopeEntry is the normalized timeline last produced for one scope.
type ScopeEntry struct {
	Scope     string
	Entries   []model.TimelineEntry
	FetchedAt time.Time
	Sequence  uint64 // refresh sequence that produced Entries
	IsDirty   bool   // changed since the last DrainDirty
}

// MemoryCache holds normalized timelines keyed by scope. Invalidation is
// double buffered: an invalidated scope keeps serving its previous entries
// until replacement data is committed, or the invalidation is cancelled.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*ScopeEntry

	pending map[string]*ScopeEntry // shadow slot per invalidated scope; nil until staged
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]*ScopeEntry),
		pending: make(map[string]*ScopeEntry),
	}
}

// Set stores entry for scope. While the scope is pending invalidation the
// entry goes to the shadow slot and becomes visible on Commit.
func (mc *MemoryCache) Set(scope string, entry *ScopeEntry) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if entry != nil {
		entry.Scope = scope
		entry.IsDirty = true
	}

	if _, ok := mc.pending[scope]; ok {
		mc.pending[scope] = entry
		return
	}
	mc.entries[scope] = entry
}

// Get returns the visible entry for scope.
func (mc *MemoryCache) Get(scope string) (*ScopeEntry, bool) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	entry, ok := mc.entries[scope]
	return entry, ok && entry != nil
}

// Invalidate marks scope for replacement without dropping what it serves.
func (mc *MemoryCache) Invalidate(scope string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if _, ok := mc.pending[scope]; ok {
		return
	}
	mc.pending[scope] = nil
	util.Named("cache").Debug("Scope marked for pending invalidation", util.F("scope", scope))
}

// IsPending reports whether scope has an uncommitted invalidation.
func (mc *MemoryCache) IsPending(scope string) bool {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	_, ok := mc.pending[scope]
	return ok
}

// Commit swaps a staged shadow entry in. An invalidation with nothing staged
// stays pending.
func (mc *MemoryCache) Commit(scope string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	shadow, ok := mc.pending[scope]
	if !ok || shadow == nil {
		return
	}
	mc.entries[scope] = shadow
	delete(mc.pending, scope)
	util.Named("cache").Debug("Committed invalidated scope", util.F("scope", scope), util.F("entries", len(shadow.Entries)))
}

// Cancel drops a pending invalidation and any staged entry; the previous
// entry keeps being served.
func (mc *MemoryCache) Cancel(scope string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if _, ok := mc.pending[scope]; !ok {
		return
	}
	delete(mc.pending, scope)
	util.Named("cache").Debug("Cancelled pending invalidation", util.F("scope", scope))
}

// DrainDirty returns the visible entries changed since the previous call and
// clears their dirty flag.
func (mc *MemoryCache) DrainDirty() map[string]*ScopeEntry {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	dirty := make(map[string]*ScopeEntry)
	for scope, entry := range mc.entries {
		if entry != nil && entry.IsDirty {
			dirty[scope] = entry
			entry.IsDirty = false
		}
	}
	return dirty
}

// Scopes lists the scopes with a visible entry, sorted.
func (mc *MemoryCache) Scopes() []string {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	scopes := make([]string, 0, len(mc.entries))
	for scope, entry := range mc.entries {
		if entry != nil {
			scopes = append(scopes, scope)
		}
	}
	sort.Strings(scopes)
	return scopes
}

// Len is the number of scopes with a visible entry.
func (mc *MemoryCache) Len() int {
	return len(mc.Scopes())
}
