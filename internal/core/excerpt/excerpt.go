// Package excerpt renders bounded previews of entry payloads.
package excerpt

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"

	"github.com/penwyp/go-station-timeline/internal/util"
)

const (
	// DefaultMaxChars is the preview budget used when callers pass <= 0.
	DefaultMaxChars = 220
	// Ellipsis marks a truncated preview.
	Ellipsis = "..."

	maxDepth = 512
)

var (
	errCycle       = errors.New("cyclic structure")
	errTooDeep     = errors.New("structure nested too deeply")
	errUnsupported = errors.New("unsupported value")
)

// prettyJSON sorts map keys so previews are stable between refreshes.
var prettyJSON = sonic.Config{SortMapKeys: true}.Froze()

// Excerpt pretty-prints payload and bounds the result to maxChars bytes,
// cutting on a rune boundary and appending Ellipsis. A nil or empty payload,
// or one that cannot be serialized, yields ok=false.
func Excerpt(payload map[string]interface{}, maxChars int) (string, bool) {
	if len(payload) == 0 {
		return "", false
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	serialized, err := serialize(payload)
	if err != nil {
		util.Named("excerpt").Warn("Unable to serialize timeline payload", util.F("error", err.Error()))
		return "", false
	}

	trimmed := strings.TrimSpace(serialized)
	if trimmed == "" {
		return "", false
	}
	return Truncate(trimmed, maxChars), true
}

// Truncate bounds s to maxChars bytes. Longer input keeps the largest prefix
// of at most maxChars-len(Ellipsis) bytes that ends on a rune boundary.
func Truncate(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}
	if maxChars <= len(Ellipsis) {
		return Ellipsis[:max(maxChars, 0)]
	}

	cut := maxChars - len(Ellipsis)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + Ellipsis
}

func serialize(payload map[string]interface{}) (string, error) {
	if err := checkSerializable(reflect.ValueOf(payload), make(map[uintptr]struct{}), 0); err != nil {
		return "", err
	}
	data, err := prettyJSON.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// checkSerializable rejects values the encoder would loop on or refuse:
// reference cycles, runaway nesting, funcs, channels, complex and
// non-finite numbers. Only containers on the current path count as a cycle,
// so shared sub-trees are fine.
func checkSerializable(v reflect.Value, path map[uintptr]struct{}, depth int) error {
	if depth > maxDepth {
		return errTooDeep
	}
	if !v.IsValid() {
		return nil
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return checkSerializable(v.Elem(), path, depth)

	case reflect.Ptr, reflect.Map, reflect.Slice:
		if v.IsNil() {
			return nil
		}
		ptr := v.Pointer()
		if v.Kind() == reflect.Slice {
			if v.Len() == 0 {
				return nil
			}
			// A slice is identified by its backing array and length.
			ptr += uintptr(v.Len())
		}
		if _, seen := path[ptr]; seen {
			return errCycle
		}
		path[ptr] = struct{}{}
		defer delete(path, ptr)

		switch v.Kind() {
		case reflect.Ptr:
			return checkSerializable(v.Elem(), path, depth+1)
		case reflect.Map:
			iter := v.MapRange()
			for iter.Next() {
				if err := checkSerializable(iter.Value(), path, depth+1); err != nil {
					return err
				}
			}
			return nil
		default:
			return checkElements(v, path, depth)
		}

	case reflect.Array:
		return checkElements(v, path, depth)

	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if !v.Type().Field(i).IsExported() {
				continue
			}
			if err := checkSerializable(v.Field(i), path, depth+1); err != nil {
				return err
			}
		}
		return nil

	case reflect.Float32, reflect.Float64:
		if f := v.Float(); math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite number", errUnsupported)
		}
		return nil

	case reflect.Func, reflect.Chan, reflect.Complex64, reflect.Complex128, reflect.UnsafePointer:
		return fmt.Errorf("%w: %s", errUnsupported, v.Kind())
	}
	return nil
}

func checkElements(v reflect.Value, path map[uintptr]struct{}, depth int) error {
	for i := 0; i < v.Len(); i++ {
		if err := checkSerializable(v.Index(i), path, depth+1); err != nil {
			return err
		}
	}
	return nil
}
