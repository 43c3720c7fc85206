package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericsciple/actions-yaml/expression"
	"github.com/ericsciple/actions-yaml/resource"
)

func testEvaluator(contexts map[string]expression.Value) ExpressionEvaluator {
	return func(body string) (expression.Value, int, error) {
		node, err := expression.Parse(body, expression.Parser{
			Functions: expression.DefaultFunctions(),
			Contexts: func(name string) (expression.Value, bool) {
				v, ok := contexts[name]
				return v, ok
			},
		})
		if err != nil {
			return expression.Value{}, 0, err
		}
		res := expression.EvaluateTree(node, expression.DefaultFunctions(), expression.EvaluationOptions{})
		if res.Err != nil {
			return expression.Value{}, 0, res.Err
		}
		return res.Value, res.BytesUsed, nil
	}
}

func npos() Position { return Position{} }

func str(s string) *Token               { return StringToken(s, npos(), false) }
func num(n float64) *Token              { return NumberToken(n, npos(), false) }
func seq(items ...*Token) *Token        { return SequenceToken(items, npos(), false) }
func mapping(pairs ...Pair) *Token      { return MappingToken(pairs, npos(), false) }
func expr(body string) *Token           { return BasicExpressionToken(body, npos(), false) }
func pair(k, v *Token) Pair             { return Pair{Key: k, Value: v} }

func unravelAll(t *testing.T, root *Token, contexts map[string]expression.Value) (*Token, *ValidationErrors, *resource.Counter, *resource.Depth) {
	t.Helper()
	counter := resource.NewCounter(0)
	depth := resource.NewDepth(0)
	errs := NewValidationErrors()
	out, err := Unravel(root, counter, depth, errs, testEvaluator(contexts))
	require.NoError(t, err)
	return out, errs, counter, depth
}

func TestUnravelSequenceInsertion(t *testing.T) {
	// steps:
	//   - script: build
	//   - ${{ parameters.extra }}
	//   - script: test
	root := mapping(
		pair(str("steps"), seq(
			mapping(pair(str("script"), str("build"))),
			expr("parameters.extra"),
			mapping(pair(str("script"), str("test"))),
		)),
	)
	contexts := map[string]expression.Value{
		"parameters": expression.NewObject([]expression.Pair{
			{Key: "extra", Value: expression.NewArray([]expression.Value{
				expression.NewObject([]expression.Pair{{Key: "script", Value: expression.String("lint")}}),
				expression.NewObject([]expression.Pair{{Key: "script", Value: expression.String("package")}}),
			})},
		}),
	}

	out, errs, _, _ := unravelAll(t, root, contexts)
	assert.True(t, errs.Empty(), "unexpected: %v", errs.Errors())

	steps := out.Pairs()[0].Value
	require.Equal(t, KindSequence, steps.Kind)
	require.Len(t, steps.Items(), 4)
	var scripts []string
	for _, item := range steps.Items() {
		scripts = append(scripts, item.Pairs()[0].Value.StringValue())
	}
	assert.Equal(t, []string{"build", "lint", "package", "test"}, scripts)
}

func TestUnravelMappingInsertion(t *testing.T) {
	// variables:
	//   a: 1
	//   ${{ insert }}: ${{ parameters.extra }}
	//   b: 2
	root := mapping(
		pair(str("variables"), mapping(
			pair(str("a"), num(1)),
			pair(InsertExpressionToken(npos(), false), expr("parameters.extra")),
			pair(str("b"), num(2)),
		)),
	)
	contexts := map[string]expression.Value{
		"parameters": expression.NewObject([]expression.Pair{
			{Key: "extra", Value: expression.NewObject([]expression.Pair{
				{Key: "c", Value: expression.Number(3)},
				{Key: "a", Value: expression.Number(9)},
			})},
		}),
	}

	out, errs, _, _ := unravelAll(t, root, contexts)

	vars := out.Pairs()[0].Value
	require.Equal(t, KindMapping, vars.Kind)
	require.Len(t, vars.Pairs(), 3)
	var keys []string
	var vals []float64
	for _, p := range vars.Pairs() {
		keys = append(keys, p.Key.StringValue())
		vals = append(vals, p.Value.NumberValue())
	}
	assert.Equal(t, []string{"a", "c", "b"}, keys)
	assert.Equal(t, []float64{1, 3, 2}, vals)

	// The duplicate 'a' from the insertion keeps the first-seen value and
	// surfaces a diagnostic.
	require.Equal(t, 1, errs.Count())
	assert.Equal(t, "insert_duplicate_key", errs.Errors()[0].Code)
}

func TestUnravelInsertValueMustBeMapping(t *testing.T) {
	root := mapping(
		pair(InsertExpressionToken(npos(), false), expr("parameters.extra")),
	)
	contexts := map[string]expression.Value{
		"parameters": expression.NewObject([]expression.Pair{
			{Key: "extra", Value: expression.String("not a mapping")},
		}),
	}
	out, errs, _, _ := unravelAll(t, root, contexts)
	assert.Len(t, out.Pairs(), 0, "the directive is omitted from the result")
	require.False(t, errs.Empty())
	assert.Equal(t, "invalid_insert_value", errs.Errors()[0].Code)
}

func TestUnravelExpressionErrorSubstitutesEmptyString(t *testing.T) {
	root := mapping(pair(str("v"), expr("bogusContext.x")))
	out, errs, _, _ := unravelAll(t, root, nil)
	assert.Equal(t, "", out.Pairs()[0].Value.StringValue())
	require.False(t, errs.Empty())
	assert.Equal(t, "expression_evaluation_failed", errs.Errors()[0].Code)
}

func TestUnravelMappingKeyExpression(t *testing.T) {
	root := mapping(pair(expr("parameters.name"), num(1)))
	contexts := map[string]expression.Value{
		"parameters": expression.NewObject([]expression.Pair{
			{Key: "name", Value: expression.String("dynamic")},
		}),
	}
	out, errs, _, _ := unravelAll(t, root, contexts)
	assert.True(t, errs.Empty(), "unexpected: %v", errs.Errors())
	require.Len(t, out.Pairs(), 1)
	assert.Equal(t, "dynamic", out.Pairs()[0].Key.StringValue())
}

func TestUnravelMappingKeyExpressionErrorSkipsPair(t *testing.T) {
	root := mapping(
		pair(expr("bogus.name"), num(1)),
		pair(str("keep"), num(2)),
	)
	out, errs, _, _ := unravelAll(t, root, nil)
	require.Len(t, out.Pairs(), 1)
	assert.Equal(t, "keep", out.Pairs()[0].Key.StringValue())
	require.False(t, errs.Empty())
}

func TestUnravelNonStringKeySkipsPair(t *testing.T) {
	root := mapping(pair(expr("parameters.n"), num(1)))
	contexts := map[string]expression.Value{
		"parameters": expression.NewObject([]expression.Pair{
			{Key: "n", Value: expression.Number(42)},
		}),
	}
	out, errs, _, _ := unravelAll(t, root, contexts)
	assert.Len(t, out.Pairs(), 0)
	require.False(t, errs.Empty())
	assert.Equal(t, "invalid_mapping_key", errs.Errors()[0].Code)
}

func TestUnravelNullSequenceItemIsOmitted(t *testing.T) {
	root := seq(str("a"), expr("parameters.missing"), str("b"))
	contexts := map[string]expression.Value{
		"parameters": expression.NewObject(nil),
	}
	out, errs, _, _ := unravelAll(t, root, contexts)
	assert.True(t, errs.Empty(), "unexpected: %v", errs.Errors())
	require.Len(t, out.Items(), 2)
	assert.Equal(t, "a", out.Items()[0].StringValue())
	assert.Equal(t, "b", out.Items()[1].StringValue())
}

func TestUnravelExpandFalseSurfacesExpressionTokens(t *testing.T) {
	root := seq(expr("parameters.extra"))
	counter := resource.NewCounter(0)
	depth := resource.NewDepth(0)
	errs := NewValidationErrors()
	u := NewUnraveler(root, counter, depth, errs, testEvaluator(nil))

	require.True(t, u.AllowSequenceStart(false))
	tok, ok := u.AllowScalar(false)
	require.True(t, ok)
	assert.Equal(t, KindBasicExpression, tok.Kind)
	assert.Equal(t, "parameters.extra", tok.ExpressionBody())
	require.True(t, u.AllowSequenceEnd())
	assert.True(t, u.Finished())
}

func TestUnravelAccountingReturnsToInitial(t *testing.T) {
	root := mapping(
		pair(str("steps"), seq(
			mapping(pair(str("script"), str("build"))),
			expr("parameters.extra"),
		)),
	)
	contexts := map[string]expression.Value{
		"parameters": expression.NewObject([]expression.Pair{
			{Key: "extra", Value: expression.NewArray([]expression.Value{expression.String("x")})},
		}),
	}
	_, _, counter, depth := unravelAll(t, root, contexts)
	assert.Equal(t, 0, counter.Current(), "every charge must be released when the cursor leaves")
	assert.Equal(t, 0, depth.Current())
}

func TestUnravelMemoryBudgetTerminates(t *testing.T) {
	root := seq(expr("format('{0}{0}{0}{0}{0}{0}{0}{0}', parameters.big)"))
	contexts := map[string]expression.Value{
		"parameters": expression.NewObject([]expression.Pair{
			{Key: "big", Value: expression.String(makeString(4096))},
		}),
	}
	counter := resource.NewCounter(1024)
	depth := resource.NewDepth(0)
	errs := NewValidationErrors()
	u := NewUnraveler(root, counter, depth, errs, testEvaluator(contexts))
	u.AllowSequenceStart(true)
	u.AllowScalar(true)
	// Either the evaluator failed (recorded as a diagnostic) or the splice
	// charge blew the cursor's budget; both bound the work.
	failed := u.Err() != nil || !errs.Empty()
	assert.True(t, failed)
}

func makeString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'x'
	}
	return string(b)
}

func TestUnravelSkipOperations(t *testing.T) {
	root := seq(str("a"), str("b"), str("c"))
	counter := resource.NewCounter(0)
	u := NewUnraveler(root, counter, resource.NewDepth(0), NewValidationErrors(), testEvaluator(nil))

	require.True(t, u.AllowSequenceStart(false))
	u.SkipSequenceItem()
	tok, ok := u.AllowScalar(false)
	require.True(t, ok)
	assert.Equal(t, "b", tok.StringValue())
	u.SkipSequenceItem()
	require.True(t, u.AllowSequenceEnd())
	assert.True(t, u.Finished())
	assert.Equal(t, 0, counter.Current())
}
