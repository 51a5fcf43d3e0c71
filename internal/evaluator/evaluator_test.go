package evaluator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/bidevalgo/internal/evaluator"
	"github.com/vk/bidevalgo/internal/formula"
	"github.com/vk/bidevalgo/internal/scope"
	"github.com/vk/bidevalgo/internal/spec"
)

func seeded(pairs map[string]any, order ...string) *scope.Scope {
	sc := scope.New()
	for _, name := range order {
		sc.Set(name, pairs[name])
	}
	return sc
}

func TestEvaluate_ChainsRuleOutputs(t *testing.T) {
	rules := []spec.Rule{
		{Label: "Dubblering", Formula: "b = a * 2"},
		{Label: "Påslag", Formula: "c = b + 1"},
	}
	sc := seeded(map[string]any{"a": 3.0}, "a")

	out, err := evaluator.Evaluate(context.Background(), rules, sc)
	require.NoError(t, err)

	b, _ := out.Get("b")
	require.Equal(t, 6.0, b)
	c, _ := out.Get("c")
	require.Equal(t, 7.0, c)
}

func TestEvaluate_OrderIsSignificant(t *testing.T) {
	// c references b before b is bound: a caller error, not tolerated.
	rules := []spec.Rule{
		{Label: "Påslag", Formula: "c = b + 1"},
		{Label: "Dubblering", Formula: "b = a * 2"},
	}
	sc := seeded(map[string]any{"a": 3.0}, "a")

	_, err := evaluator.Evaluate(context.Background(), rules, sc)
	var ruleErr *evaluator.RuleError
	require.ErrorAs(t, err, &ruleErr)
	require.Equal(t, "c = b + 1", ruleErr.Formula)
	require.Equal(t, "Påslag", ruleErr.Label)

	var exprErr *formula.ExprError
	require.ErrorAs(t, err, &exprErr)
}

func TestEvaluate_StopsAtFirstFailure(t *testing.T) {
	rules := []spec.Rule{
		{Label: "Bra", Formula: "x = a + 1"},
		{Label: "Trasig", Formula: "y = a +* 2"},
		{Label: "Nås aldrig", Formula: "z = x + 1"},
	}
	sc := seeded(map[string]any{"a": 1.0}, "a")

	_, err := evaluator.Evaluate(context.Background(), rules, sc)
	var ruleErr *evaluator.RuleError
	require.ErrorAs(t, err, &ruleErr)
	require.Equal(t, "Trasig", ruleErr.Label)
}

func TestEvaluate_NonAssignmentRuleFails(t *testing.T) {
	rules := []spec.Rule{{Label: "Felaktig", Formula: "a == 1"}}
	sc := seeded(map[string]any{"a": 1.0}, "a")

	_, err := evaluator.Evaluate(context.Background(), rules, sc)
	require.Error(t, err)
}

func TestEvaluate_EmptyRules(t *testing.T) {
	sc := seeded(map[string]any{"a": 1.0}, "a")
	out, err := evaluator.Evaluate(context.Background(), nil, sc)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, out.Names())
}

func TestEvaluate_RuleOutputsAppendInOrder(t *testing.T) {
	rules := []spec.Rule{
		{Label: "Rabatt", Formula: "discount = eco * 100"},
		{Label: "Slutpris", Formula: "final_price = bid_price - discount"},
	}
	sc := scope.New()
	sc.Set("bid_price", 1000.0)
	sc.Set("eco", true)

	out, err := evaluator.Evaluate(context.Background(), rules, sc)
	require.NoError(t, err)
	require.Equal(t, []string{"bid_price", "eco", "discount", "final_price"}, out.Names())

	fp, _ := out.Get("final_price")
	require.Equal(t, 900.0, fp)
}
