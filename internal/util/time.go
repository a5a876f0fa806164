package util

import (
	"fmt"
	"sync"
	"time"
)

// Clock supplies the current instant. Normalization falls back to it when a
// record carries no usable timestamp.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }

// TimeProvider renders instants in the configured display timezone.
type TimeProvider struct {
	location *time.Location
	clock    Clock
	mu       sync.RWMutex
}

var (
	globalTimeProvider *TimeProvider
	mu                 sync.Mutex
)

// NewTimeProvider creates a provider for timezone ("" and "Local" mean the
// host zone).
func NewTimeProvider(timezone string) (*TimeProvider, error) {
	provider := &TimeProvider{clock: SystemClock{}}
	if err := provider.SetTimezone(timezone); err != nil {
		return nil, err
	}
	return provider, nil
}

// InitializeTimeProvider installs the global provider. An invalid timezone
// leaves the previous provider in place.
func InitializeTimeProvider(timezone string) error {
	provider, err := NewTimeProvider(timezone)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	globalTimeProvider = provider
	return nil
}

// GetTimeProvider returns the global provider, defaulting to Local.
func GetTimeProvider() *TimeProvider {
	mu.Lock()
	defer mu.Unlock()
	if globalTimeProvider == nil {
		globalTimeProvider, _ = NewTimeProvider("Local")
	}
	return globalTimeProvider
}

// SetTimezone updates the display timezone
func (tp *TimeProvider) SetTimezone(timezone string) error {
	loc := time.Local
	switch timezone {
	case "", "Local":
	case "UTC":
		loc = time.UTC
	default:
		l, err := time.LoadLocation(timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone '%s': %w\nValid examples: Local, UTC, America/New_York, Asia/Shanghai, Europe/London", timezone, err)
		}
		loc = l
	}

	tp.mu.Lock()
	defer tp.mu.Unlock()
	tp.location = loc
	return nil
}

// SetClock swaps the clock used by Now.
func (tp *TimeProvider) SetClock(clock Clock) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	tp.clock = clock
}

// Location returns the display timezone.
func (tp *TimeProvider) Location() *time.Location {
	tp.mu.RLock()
	defer tp.mu.RUnlock()
	return tp.location
}

// Now returns the current time in the display timezone
func (tp *TimeProvider) Now() time.Time {
	tp.mu.RLock()
	defer tp.mu.RUnlock()
	return tp.clock.Now().In(tp.location)
}

// In converts t to the display timezone
func (tp *TimeProvider) In(t time.Time) time.Time {
	tp.mu.RLock()
	defer tp.mu.RUnlock()
	return t.In(tp.location)
}

// Format formats t in the display timezone
func (tp *TimeProvider) Format(t time.Time, layout string) string {
	return tp.In(t).Format(layout)
}
