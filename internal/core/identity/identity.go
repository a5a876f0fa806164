// Package identity derives stable timeline entry identifiers.
package identity

import (
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/penwyp/go-station-timeline/internal/core/coerce"
	"github.com/penwyp/go-station-timeline/internal/core/model"
)

// Namespace prefixes every derived identifier.
const Namespace = "timeline-"

// Kind tells whether an identifier came from the record or was derived.
type Kind int

const (
	Explicit Kind = iota
	Derived
)

func (k Kind) String() string {
	if k == Derived {
		return "derived"
	}
	return "explicit"
}

// Derived ids hash type and event_type only; kind is not consulted.
var fingerprintTypeFields = []string{"type", "event_type"}

// Identity is the resolved identifier of a raw record. Fingerprint is set
// only for derived identities.
type Identity struct {
	Kind        Kind
	Value       string
	Fingerprint string
}

func (id Identity) String() string { return id.Value }

// Resolve returns the first explicit identifier with non-blank content,
// otherwise an identifier hashed from the record's type and timestamp.
// Distinct events sharing type and timestamp collide on the derived path.
func Resolve(raw map[string]interface{}) Identity {
	for _, key := range model.IDFields {
		if candidate, ok := coerce.ToString(raw[key]); ok && strings.TrimSpace(candidate) != "" {
			return Identity{Kind: Explicit, Value: candidate}
		}
	}

	fingerprint := Fingerprint(raw)
	return Identity{
		Kind:        Derived,
		Value:       Namespace + strconv.FormatInt(Hash(fingerprint), 10),
		Fingerprint: fingerprint,
	}
}

// ResolveID is Resolve(raw).Value.
func ResolveID(raw map[string]interface{}) string {
	return Resolve(raw).Value
}

// Fingerprint is "<type>-<timestamp>" built from the raw, uncoerced field
// values, with "event" and "unknown" standing in for missing ones.
func Fingerprint(raw map[string]interface{}) string {
	entryType := firstString(raw, fingerprintTypeFields, model.TypeDefault)
	timestamp := firstString(raw, model.TimestampFields, "unknown")
	return entryType + "-" + timestamp
}

func firstString(raw map[string]interface{}, keys []string, fallback string) string {
	for _, key := range keys {
		if s, ok := coerce.ToString(raw[key]); ok {
			return s
		}
	}
	return fallback
}

// Hash is a 32-bit rolling multiply-add (h = h*31 + c) over the UTF-16 code
// units of s, returned as an absolute value.
func Hash(s string) int64 {
	var h int32
	for _, unit := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(unit)
	}
	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	return abs
}
