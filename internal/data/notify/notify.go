// Package notify turns upstream change signals into scope notices. A notice
// says a scope may have changed; it never carries the data itself.
package notify

import (
	"strings"

	"github.com/bytedance/sonic"

	"github.com/penwyp/go-station-timeline/internal/core/coerce"
)

// AllScopes asks for every known scope to be refreshed.
const AllScopes = "*"

// Notice reports a possible change of Scope. Origin names the notifier.
type Notice struct {
	Scope  string
	Origin string
}

// Notifier delivers notices until closed.
type Notifier interface {
	Name() string
	Events() <-chan Notice
	Close() error
}

// scopeFromPayload reads a scope from a message body: a JSON object's
// scopeField (or "scope"), otherwise the trimmed text. Empty yields AllScopes.
func scopeFromPayload(payload []byte, scopeField string) string {
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return AllScopes
	}
	if strings.HasPrefix(text, "{") {
		var body map[string]interface{}
		if err := sonic.UnmarshalString(text, &body); err == nil {
			if scope := scopeFromRecord(body, scopeField); scope != "" {
				return scope
			}
		}
		return AllScopes
	}
	return text
}

func scopeFromRecord(record map[string]interface{}, scopeField string) string {
	for _, key := range []string{scopeField, "scope"} {
		if key == "" {
			continue
		}
		if s, ok := coerce.ToString(record[key]); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
