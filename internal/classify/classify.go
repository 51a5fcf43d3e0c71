// Package classify partitions an evaluated scope into itemized line items
// and the single highlighted total. Only rule outputs are candidates; the
// raw input variables are never results.
package classify

import (
	"strings"

	"github.com/vk/bidevalgo/internal/formula"
	"github.com/vk/bidevalgo/internal/quantity"
	"github.com/vk/bidevalgo/internal/scope"
	"github.com/vk/bidevalgo/internal/spec"
)

// totalMarkers are the canonical names under which the upstream extraction
// emits grand-total formulas. The extraction is LLM-produced and may emit
// several; the largest numeric value is picked as "the" total and the rest
// are demoted to ordinary line items.
var totalMarkers = map[string]struct{}{
	"total_price":      {},
	"final_price":      {},
	"comparison_price": {},
}

// Item is one itemized result line.
type Item struct {
	Name  string
	Label string
	Value any

	// Quantity is the multiplier recovered from simple product formulas,
	// present only for display enrichment.
	Quantity *float64
}

// Total is the single highlighted result.
type Total struct {
	Name  string
	Label string
	Value any
}

// Result is the classified outcome of one evaluation pass.
type Result struct {
	Itemized []Item
	Total    *Total
}

// Classify partitions the scope's rule outputs, in evaluation order, into
// line items and the heuristic total. It returns nil when the scope holds
// no rule outputs at all, which is a valid steady state.
func Classify(sc *scope.Scope, s *spec.Specification) *Result {
	rulesByName := indexRules(s.Rules)

	var candidates []string
	for _, name := range sc.Names() {
		if _, declared := s.Variables[name]; declared {
			continue
		}
		candidates = append(candidates, name)
	}
	if len(candidates) == 0 {
		return nil
	}

	totalName := pickTotal(candidates, sc)

	result := &Result{}
	for _, name := range candidates {
		value, _ := sc.Get(name)
		label, formulaText := resolveRule(rulesByName, name)

		if name == totalName {
			result.Total = &Total{Name: name, Label: label, Value: value}
			continue
		}

		item := Item{Name: name, Label: label, Value: value}
		if k, ok := quantity.Extract(formulaText); ok {
			item.Quantity = &k
		}
		result.Itemized = append(result.Itemized, item)
	}

	return result
}

// pickTotal selects the marker-named candidate with the largest numeric
// value. Non-numeric values under marker names never win.
func pickTotal(candidates []string, sc *scope.Scope) string {
	name := ""
	best := 0.0
	for _, cand := range candidates {
		if _, ok := totalMarkers[strings.ToLower(cand)]; !ok {
			continue
		}
		v, _ := sc.Get(cand)
		num, ok := asNumber(v)
		if !ok {
			continue
		}
		if name == "" || num > best {
			name = cand
			best = num
		}
	}
	return name
}

// indexRules maps each rule's assignment target to the rule itself, so
// result labels and formulas can be looked up by output name.
func indexRules(rules []spec.Rule) map[string]spec.Rule {
	byName := make(map[string]spec.Rule, len(rules))
	for _, rule := range rules {
		assign, err := formula.ParseAssignment(rule.Formula)
		if err != nil {
			continue
		}
		byName[assign.Name] = rule
	}
	return byName
}

// resolveRule returns the display label and source formula for an output
// name, falling back to the raw name when no rule matches. The fallback
// guards against extraction inconsistencies.
func resolveRule(byName map[string]spec.Rule, name string) (label, formulaText string) {
	rule, ok := byName[name]
	if !ok || rule.Label == "" {
		return name, rule.Formula
	}
	return rule.Label, rule.Formula
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
