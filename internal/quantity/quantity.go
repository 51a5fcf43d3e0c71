// Package quantity implements the display-only heuristic that recovers a
// numeric multiplier from simple direct-multiplication formulas. Anything
// beyond a single "name = name * literal" product is deliberately refused
// so composite formulas never get a misleading unit-price display.
package quantity

import (
	"regexp"
	"strconv"
)

var (
	varTimesNum = regexp.MustCompile(`^\s*[A-Za-z_][A-Za-z0-9_]*\s*=\s*[A-Za-z_][A-Za-z0-9_]*\s*\*\s*([0-9]+(?:\.[0-9]+)?)\s*$`)
	numTimesVar = regexp.MustCompile(`^\s*[A-Za-z_][A-Za-z0-9_]*\s*=\s*([0-9]+(?:\.[0-9]+)?)\s*\*\s*[A-Za-z_][A-Za-z0-9_]*\s*$`)
)

// Extract returns the literal multiplier of a formula shaped exactly like
// "name = name * k" or "name = k * name". The second return is false for
// every other shape.
func Extract(formulaText string) (float64, bool) {
	m := varTimesNum.FindStringSubmatch(formulaText)
	if m == nil {
		m = numTimesVar.FindStringSubmatch(formulaText)
	}
	if m == nil {
		return 0, false
	}

	k, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return k, true
}
