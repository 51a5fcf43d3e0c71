// Package coerce maps raw, possibly empty user form entries to the typed
// values a specification's variables declare, and reports which variables
// still lack a usable entry. Incomplete input is a normal, frequent
// outcome, so missing fields are data, not an error.
package coerce

import (
	"sort"
	"strconv"
	"strings"

	"github.com/vk/bidevalgo/internal/scope"
	"github.com/vk/bidevalgo/internal/spec"
)

// FormState holds the raw user entries, one per variable name. Values are
// whatever the consumer put in: string, float64, bool, or nil.
type FormState map[string]any

// Coerce seeds a fresh scope with every declared variable, typed per its
// input kind, and returns shortened labels for the variables that are
// missing or unparseable. Form entries for undeclared names are ignored so
// stale state from a previous document cannot leak in.
func Coerce(form FormState, s *spec.Specification) (*scope.Scope, []string) {
	sc := scope.New()
	var missing []string

	names := make([]string, 0, len(s.Variables))
	for name := range s.Variables {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		def := s.Variables[name]
		raw, ok := form[name]
		if !ok || isEmpty(raw) {
			sc.Set(name, nil)
			missing = append(missing, ShortLabel(labelOf(def, name)))
			continue
		}

		val, ok := coerceValue(raw, def)
		if !ok {
			sc.Set(name, nil)
			missing = append(missing, ShortLabel(labelOf(def, name)))
			continue
		}
		sc.Set(name, val)
	}

	return sc, missing
}

// coerceValue types one non-empty raw entry. The second return is false
// when the entry cannot be used at all (a non-numeric entry for a number
// variable), which counts as missing rather than silently becoming zero.
func coerceValue(raw any, def spec.VariableDef) (any, bool) {
	switch def.Input {
	case spec.InputNumber:
		return coerceNumber(raw)
	case spec.InputYesNo:
		return coerceYesNo(raw), true
	case spec.InputRadio:
		return coerceRadio(raw, def.Options), true
	default:
		// Unrecognized kinds are tolerated; the entry passes through as-is.
		return raw, true
	}
}

func coerceNumber(raw any) (any, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, false
		}
		return f, true
	default:
		return nil, false
	}
}

// coerceYesNo maps an explicit true (boolean or the literal "true") to
// true and any other explicit entry to false. Absent entries never reach
// here; they are flagged missing instead of defaulting to false.
func coerceYesNo(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}

// coerceRadio resolves a raw entry against the option list by value
// equality. With no match the raw entry passes through unresolved: a
// caller error surface, not a crash.
func coerceRadio(raw any, options []spec.Option) any {
	for _, opt := range options {
		if opt.Match(raw) {
			return opt.Value()
		}
	}
	return raw
}

// isEmpty reports whether a raw entry counts as "no entry".
func isEmpty(raw any) bool {
	if raw == nil {
		return true
	}
	s, ok := raw.(string)
	return ok && s == ""
}

func labelOf(def spec.VariableDef, name string) string {
	if def.Label != "" {
		return def.Label
	}
	return name
}

// ShortLabel compacts a variable label for error display: at most its
// first three words, with an ellipsis when the full label had more than
// two words.
func ShortLabel(label string) string {
	words := strings.Fields(label)
	if len(words) <= 2 {
		return label
	}
	n := 3
	if len(words) < n {
		n = len(words)
	}
	return strings.Join(words[:n], " ") + "..."
}
