package live

import (
	"context"
	"time"

	"github.com/penwyp/go-station-timeline/internal/core/model"
)

// Status is the refresh state of one scope.
type Status int

const (
	StatusIdle Status = iota
	StatusFetching
	StatusFresh
	StatusStale
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusFetching:
		return "fetching"
	case StatusFresh:
		return "fresh"
	case StatusStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Snapshot is the query view of a scope. Entries always hold the last
// successful result, including while Stale.
type Snapshot struct {
	Scope        string
	Status       Status
	Entries      []model.TimelineEntry
	IsLoading    bool // no successful fetch yet and one is in flight
	IsRefreshing bool // any fetch in flight
	Err          error
	UpdatedAt    time.Time
	Sequence     uint64 // sequence of the result in Entries
	Invalidated  bool   // Entries are awaiting replacement
}

// scopeState is the mutable per-scope bookkeeping guarded by the
// coordinator's mutex.
type scopeState struct {
	issued   uint64 // last initiated sequence
	applied  uint64 // sequence whose result is visible
	inFlight int
	cancel   context.CancelFunc
	status   Status
	err      error
	loaded   bool
}

// settled is the status implied by the last applied outcome, for when an
// in-flight refresh ends without one.
func (s *scopeState) settled() Status {
	switch {
	case s.err != nil:
		return StatusStale
	case s.loaded:
		return StatusFresh
	default:
		return StatusIdle
	}
}
