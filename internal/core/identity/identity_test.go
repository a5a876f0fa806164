package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHash(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"", 0},
		{"a", 97},
		{"incident-1704211200000", 1597832597},
		{"event-unknown", 1141258217},
		{"telemetry-2024-01-02T10:00:00Z", 563143588},
		{"agent-1.5", 1702270224},
		{"event-🛰️", 85181545},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, Hash(tt.input))
		})
	}
}

func TestResolve_Explicit(t *testing.T) {
	tests := []struct {
		name     string
		raw      map[string]interface{}
		expected string
	}{
		{name: "numeric id", raw: map[string]interface{}{"id": float64(42)}, expected: "42"},
		{name: "string id", raw: map[string]interface{}{"id": "evt-1"}, expected: "evt-1"},
		{name: "uuid fallback", raw: map[string]interface{}{"uuid": "1b4e28ba-2fa1-11d2-883f-0016d3cca427"}, expected: "1b4e28ba-2fa1-11d2-883f-0016d3cca427"},
		{name: "blank id skipped", raw: map[string]interface{}{"id": "   ", "event_id": "e-9"}, expected: "e-9"},
		{name: "non scalar id skipped", raw: map[string]interface{}{"id": map[string]interface{}{"x": 1}, "reference": "REF-7"}, expected: "REF-7"},
		{name: "untrimmed value kept", raw: map[string]interface{}{"timeline_id": " t-1 "}, expected: " t-1 "},
		{name: "priority order", raw: map[string]interface{}{"reference": "r", "uuid": "u", "id": "i"}, expected: "i"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := Resolve(tt.raw)
			assert.Equal(t, Explicit, id.Kind)
			assert.Equal(t, tt.expected, id.Value)
			assert.Empty(t, id.Fingerprint)
		})
	}
}

func TestResolve_Derived(t *testing.T) {
	tests := []struct {
		name        string
		raw         map[string]interface{}
		fingerprint string
		expected    string
	}{
		{
			name:        "epoch millis",
			raw:         map[string]interface{}{"type": "incident", "timestamp": float64(1704211200000)},
			fingerprint: "incident-1704211200000",
			expected:    "timeline-1597832597",
		},
		{
			name:        "nothing usable",
			raw:         map[string]interface{}{"title": "orphan"},
			fingerprint: "event-unknown",
			expected:    "timeline-1141258217",
		},
		{
			name:        "event_type and raw timestamp string",
			raw:         map[string]interface{}{"event_type": "telemetry", "event_time": "2024-01-02T10:00:00Z"},
			fingerprint: "telemetry-2024-01-02T10:00:00Z",
			expected:    "timeline-563143588",
		},
		{
			name:        "kind is not part of the fingerprint",
			raw:         map[string]interface{}{"kind": "task"},
			fingerprint: "event-unknown",
			expected:    "timeline-1141258217",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := Resolve(tt.raw)
			assert.Equal(t, Derived, id.Kind)
			assert.Equal(t, tt.fingerprint, id.Fingerprint)
			assert.Equal(t, tt.expected, id.Value)
			assert.Equal(t, tt.expected, ResolveID(tt.raw))
		})
	}
}

func TestResolve_Deterministic(t *testing.T) {
	raw := map[string]interface{}{"type": "incident", "timestamp": float64(1704211200000)}
	assert.Equal(t, Resolve(raw), Resolve(raw))

	copyRaw := map[string]interface{}{"timestamp": float64(1704211200000), "type": "incident", "extra": true}
	assert.Equal(t, ResolveID(raw), ResolveID(copyRaw))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "explicit", Explicit.String())
	assert.Equal(t, "derived", Derived.String())
}
