package model

import "strings"

// Well-known entry types. Type is an open enumeration; anything else a source
// supplies is kept as-is.
const (
	TypeTelemetry     = "telemetry"
	TypeTask          = "task"
	TypeIncident      = "incident"
	TypeAgent         = "agent"
	TypeCommunication = "communication"
	TypeDefault       = "event"
)

// Icons per base type.
const (
	IconTelemetry     = "📡"
	IconTask          = "📝"
	IconIncident      = "⚠️"
	IconAgent         = "🤖"
	IconCommunication = "💬"
	IconDefault       = "🛰️"
)

var iconByType = map[string]string{
	TypeTelemetry:     IconTelemetry,
	TypeTask:          IconTask,
	TypeIncident:      IconIncident,
	TypeAgent:         IconAgent,
	TypeCommunication: IconCommunication,
}

// IconFor resolves the icon for an entry type: the full lower-cased type
// first, then the part before the first '.', then the default glyph.
func IconFor(entryType string) string {
	if entryType == "" {
		return IconDefault
	}

	normalized := strings.ToLower(entryType)
	if icon, ok := iconByType[normalized]; ok {
		return icon
	}

	if base, _, found := strings.Cut(normalized, "."); found {
		if icon, ok := iconByType[base]; ok {
			return icon
		}
	}

	return IconDefault
}

// TypeClass turns a type into a lower-case slug usable as a CSS class or
// column key: runs of anything but [a-z0-9] become '-', edges are trimmed.
func TypeClass(entryType string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(entryType) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	if b.Len() == 0 {
		return TypeDefault
	}
	return b.String()
}
