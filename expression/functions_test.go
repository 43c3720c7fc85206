package expression

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericsciple/actions-yaml/resource"
)

func TestFormatStringEscapesAndPlaceholders(t *testing.T) {
	out, err := formatString("{{literal}} {0}-{1}", []Value{String("a"), Number(2)})
	require.NoError(t, err)
	assert.Equal(t, "{literal} a-2", out)
}

func TestFormatStringUnterminatedPlaceholder(t *testing.T) {
	_, err := formatString("abc {0", nil)
	require.Error(t, err)
}

func TestFormatStringUnsupportedSpecifierRejected(t *testing.T) {
	_, err := formatString("{0:x}", []Value{Number(1)})
	require.Error(t, err)
	ee, ok := err.(*EvalError)
	require.True(t, ok)
	assert.Equal(t, "format_unsupported_specifier", ee.Code)
}

func TestFormatStringIndexOutOfRange(t *testing.T) {
	_, err := formatString("{1}", []Value{Number(1)})
	require.Error(t, err)
}

func TestFormatDisplayChargesCounter(t *testing.T) {
	c := resource.NewCounter(0)
	out, err := FormatDisplay(c, "job ({0}, {1})", []string{"linux", "x64"})
	require.NoError(t, err)
	assert.Equal(t, "job (linux, x64)", out)
	assert.Equal(t, resource.StringCost(len(out)), c.Current())

	small := resource.NewCounter(4)
	_, err = FormatDisplay(small, "{0}", []string{"too big"})
	require.Error(t, err)
	_, ok := err.(*MemoryError)
	assert.True(t, ok)
}

func TestJoinObjectIsEmptyAndCollectionSeparatorDefaults(t *testing.T) {
	obj := NewObject([]Pair{{Key: "a", Value: Number(1)}})
	node := &FunctionNode{
		Name: "join",
		Fn:   DefaultFunctions()["JOIN"],
		Args: []Node{&LiteralNode{Value: obj}},
	}
	res := EvaluateTree(node, DefaultFunctions(), EvaluationOptions{})
	require.NoError(t, res.Err)
	assert.Equal(t, "", res.Value.StringValue())

	node = &FunctionNode{
		Name: "join",
		Fn:   DefaultFunctions()["JOIN"],
		Args: []Node{
			&LiteralNode{Value: NewArray([]Value{String("a"), String("b")})},
			&LiteralNode{Value: obj},
		},
	}
	res = EvaluateTree(node, DefaultFunctions(), EvaluationOptions{})
	require.NoError(t, res.Err)
	assert.Equal(t, "a,b", res.Value.StringValue(), "a collection separator falls back to the default")
}

func callFn(t *testing.T, name string, args ...Node) EvaluationResult {
	t.Helper()
	fn, ok := DefaultFunctions()[name]
	require.True(t, ok)
	node := &FunctionNode{Name: fn.Name, Fn: fn, Args: args}
	return EvaluateTree(node, DefaultFunctions(), EvaluationOptions{})
}

func TestToJsonPreservesInsertionOrder(t *testing.T) {
	obj := NewObject([]Pair{
		{Key: "a", Value: Number(1)},
		{Key: "c", Value: Number(3)},
		{Key: "b", Value: Number(2)},
	})
	res := callFn(t, "TOJSON", &LiteralNode{Value: obj})
	require.NoError(t, res.Err)
	assert.Equal(t, "{\n  \"a\": 1,\n  \"c\": 3,\n  \"b\": 2\n}", res.Value.StringValue())
}

func TestToJsonNestedIndentation(t *testing.T) {
	obj := NewObject([]Pair{
		{Key: "a", Value: Number(1)},
		{Key: "b", Value: NewArray([]Value{Bool(true), Null()})},
	})
	res := callFn(t, "TOJSON", &LiteralNode{Value: obj})
	require.NoError(t, res.Err)
	assert.Equal(t, "{\n  \"a\": 1,\n  \"b\": [\n    true,\n    null\n  ]\n}", res.Value.StringValue())
}

func TestToJsonCanonicalNumberRendering(t *testing.T) {
	res := callFn(t, "TOJSON", &LiteralNode{Value: Number(math.NaN())})
	require.NoError(t, res.Err)
	assert.Equal(t, "NaN", res.Value.StringValue())
}

func TestToJsonUnknownCollectionKindIsEmptyObject(t *testing.T) {
	res := callFn(t, "TOJSON", &LiteralNode{Value: Array(nil)})
	require.NoError(t, res.Err)
	assert.Equal(t, "{}", res.Value.StringValue())
}

func TestFromJsonPreservesKeyOrder(t *testing.T) {
	res := callFn(t, "FROMJSON", &LiteralNode{Value: String(`{"b": 2, "a": 1}`)})
	require.NoError(t, res.Err)
	require.Equal(t, KindObject, res.Value.Kind())
	assert.Equal(t, []string{"b", "a"}, res.Value.ObjectCapability().Keys())
}

func TestToJsonFromJsonRoundTripKeepsOrder(t *testing.T) {
	v := evalSrc(t, `toJson(fromJson('{"b": 2, "a": 1}'))`, nil)
	assert.Equal(t, "{\n  \"b\": 2,\n  \"a\": 1\n}", v.StringValue())
}

func TestContainsOverObjectIsFalse(t *testing.T) {
	node := &FunctionNode{
		Name: "contains",
		Fn:   DefaultFunctions()["CONTAINS"],
		Args: []Node{
			&LiteralNode{Value: NewObject([]Pair{{Key: "a", Value: Number(1)}})},
			&LiteralNode{Value: Number(1)},
		},
	}
	res := EvaluateTree(node, DefaultFunctions(), EvaluationOptions{})
	require.NoError(t, res.Err)
	assert.False(t, res.Value.Truthy())
}

func TestContainsOverArray(t *testing.T) {
	node := &FunctionNode{
		Name: "contains",
		Fn:   DefaultFunctions()["CONTAINS"],
		Args: []Node{
			&LiteralNode{Value: NewArray([]Value{Number(1), Number(2), Number(3)})},
			&LiteralNode{Value: Number(2)},
		},
	}
	res := EvaluateTree(node, DefaultFunctions(), EvaluationOptions{})
	require.NoError(t, res.Err)
	assert.True(t, res.Value.Truthy())
}
