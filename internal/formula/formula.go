// Package formula wraps the HCL expression engine behind the narrow
// interface the evaluator needs: split an assignment formula into its
// target name and right-hand expression, and evaluate that expression
// against a named scope. Formulas are upstream-generated data, never
// statically checked.
package formula

import (
	"fmt"
	"regexp"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/bidevalgo/internal/scope"
)

// assignmentRegex matches "name = expression" where the '=' is a plain
// assignment, not the first half of '=='.
var assignmentRegex = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*=\s*([^=].*)$`)

// ExprError reports a formula whose expression could not be parsed or
// evaluated. The offending formula text is kept for diagnostics.
type ExprError struct {
	Formula string
	Detail  string
}

// Error implements the error interface.
func (e *ExprError) Error() string {
	return fmt.Sprintf("formula %q failed: %s", e.Formula, e.Detail)
}

// Assignment is one parsed "name = expression" formula.
type Assignment struct {
	// Name is the left-hand target the result is bound to.
	Name string

	// RHS is the raw right-hand expression text.
	RHS string

	source string
}

// ParseAssignment splits a formula into its assignment target and
// right-hand expression. Formulas that are not single assignments are a
// caller error surfaced as *ExprError.
func ParseAssignment(text string) (*Assignment, error) {
	m := assignmentRegex.FindStringSubmatch(text)
	if m == nil {
		return nil, &ExprError{Formula: text, Detail: "not a single 'name = expression' assignment"}
	}
	return &Assignment{Name: m[1], RHS: m[2], source: text}, nil
}

// Evaluate parses the right-hand expression and evaluates it against the
// given scope. The result is a Go-native value (float64, bool, or string).
func (a *Assignment) Evaluate(sc *scope.Scope) (any, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(a.RHS), a.source, hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, &ExprError{Formula: a.source, Detail: diags.Error()}
	}

	val, diags := expr.Value(&hcl.EvalContext{Variables: ctyScope(sc)})
	if diags.HasErrors() {
		return nil, &ExprError{Formula: a.source, Detail: diags.Error()}
	}

	out, err := goValue(val)
	if err != nil {
		return nil, &ExprError{Formula: a.source, Detail: err.Error()}
	}
	return out, nil
}

// ctyScope converts a scope into the variable map of an hcl.EvalContext.
func ctyScope(sc *scope.Scope) map[string]cty.Value {
	vars := make(map[string]cty.Value, sc.Len())
	for _, name := range sc.Names() {
		v, _ := sc.Get(name)
		vars[name] = ctyValue(v)
	}
	return vars
}

// ctyValue converts one Go-native scope value to cty. Booleans become the
// numbers 0/1 so upstream formulas can compare and multiply them, matching
// the arithmetic the extraction backend generates.
func ctyValue(v any) cty.Value {
	switch val := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType)
	case float64:
		return cty.NumberFloatVal(val)
	case int:
		return cty.NumberIntVal(int64(val))
	case bool:
		if val {
			return cty.NumberIntVal(1)
		}
		return cty.NumberIntVal(0)
	case string:
		return cty.StringVal(val)
	default:
		return cty.StringVal(fmt.Sprintf("%v", val))
	}
}

// goValue converts an evaluated cty result back to a Go-native value.
func goValue(v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsKnown() {
		return nil, fmt.Errorf("expression produced an unknown value")
	}
	switch v.Type() {
	case cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return f, nil
	case cty.Bool:
		return v.True(), nil
	case cty.String:
		return v.AsString(), nil
	default:
		return nil, fmt.Errorf("expression produced unsupported type %s", v.Type().FriendlyName())
	}
}
