package util

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// FormatCount formats n with thousands separators.
func FormatCount(n int) string {
	return humanize.Comma(int64(n))
}

// FormatRelativeTime describes t relative to now ("3 minutes ago").
func FormatRelativeTime(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	if d := now.Sub(t); d < time.Second && d > -time.Second {
		return "just now"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// FormatDuration renders d as "1h 5m", "5m 3s" or "850ms".
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
