// Package evaluator folds a specification's rules, strictly in list
// order, over a scope seeded with the coerced input variables. Each rule
// sees every variable value and the outputs of all earlier rules; the
// first failing formula aborts the whole pass.
package evaluator

import (
	"context"
	"fmt"

	"github.com/vk/bidevalgo/internal/ctxlog"
	"github.com/vk/bidevalgo/internal/formula"
	"github.com/vk/bidevalgo/internal/scope"
	"github.com/vk/bidevalgo/internal/spec"
)

// RuleError identifies the rule whose formula failed during a pass.
type RuleError struct {
	Label   string
	Formula string
	Err     error
}

// Error implements the error interface.
func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %q failed: %v", e.Label, e.Err)
}

// Unwrap exposes the underlying expression error.
func (e *RuleError) Unwrap() error {
	return e.Err
}

// Evaluate runs every rule against the accumulated scope, binding each
// rule's output for the rules after it, and returns the extended scope.
// Evaluation stops at the first failing formula; the partial scope is
// abandoned and the offending rule is logged and returned for diagnostics.
func Evaluate(ctx context.Context, rules []spec.Rule, sc *scope.Scope) (*scope.Scope, error) {
	logger := ctxlog.FromContext(ctx)

	for _, rule := range rules {
		assign, err := formula.ParseAssignment(rule.Formula)
		if err != nil {
			logger.Warn("Rule formula is not an assignment.", "label", rule.Label, "formula", rule.Formula)
			return nil, &RuleError{Label: rule.Label, Formula: rule.Formula, Err: err}
		}

		val, err := assign.Evaluate(sc)
		if err != nil {
			logger.Warn("Rule evaluation failed.", "label", rule.Label, "formula", rule.Formula, "error", err)
			return nil, &RuleError{Label: rule.Label, Formula: rule.Formula, Err: err}
		}

		sc.Set(assign.Name, val)
	}

	return sc, nil
}
