package expression

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, src string) Node {
	t.Helper()
	node, err := Parse(src, Parser{Functions: DefaultFunctions()})
	require.NoError(t, err)
	return node
}

func TestEvaluatorMaxDepthExceeded(t *testing.T) {
	var src strings.Builder
	for i := 0; i < 60; i++ {
		src.WriteString("(")
	}
	src.WriteString("1")
	for i := 0; i < 60; i++ {
		src.WriteString(")")
	}
	_, err := Parse(src.String(), Parser{Functions: DefaultFunctions()})
	require.Error(t, err)
	pe, ok := err.(*ParseError)
	require.True(t, ok)
	assert.Equal(t, ErrExceededMaxDepth, pe.Code)
}

func TestEvaluatorMaxMemoryExceeded(t *testing.T) {
	node := mustParse(t, "'a very small string'")
	res := EvaluateTree(node, DefaultFunctions(), EvaluationOptions{MaxMemory: 4})
	require.Error(t, res.Err)
	_, ok := res.Err.(*MemoryError)
	assert.True(t, ok)
}

func TestEvaluatorRuntimeDepthExceeded(t *testing.T) {
	node := mustParse(t, "!!!!!true")
	res := EvaluateTree(node, DefaultFunctions(), EvaluationOptions{MaxDepth: 2})
	require.Error(t, res.Err)
	_, ok := res.Err.(*MemoryError)
	assert.True(t, ok)
}

func TestEvaluatorFormatDoesNotDoubleCountArguments(t *testing.T) {
	// format('{0}{0}{0}{0}{0}', <82 x's>) realizes a 410-byte string; the
	// format string and the argument must not also be charged on top of it.
	node := mustParse(t, "format('{0}{0}{0}{0}{0}', 'xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx')")
	res := EvaluateTree(node, DefaultFunctions(), EvaluationOptions{})
	require.NoError(t, res.Err)
	// Net accounting leaves one realized-string charge (26 + 2*410 = 846).
	// If the arguments were also charged (56 for the format string, 190
	// for the argument) BytesUsed would reach 1092.
	assert.Less(t, res.BytesUsed, 1000)
}

func TestEvaluationResultRealizedOf(t *testing.T) {
	node := mustParse(t, "'hello'")
	res := EvaluateTree(node, DefaultFunctions(), EvaluationOptions{})
	require.NoError(t, res.Err)
	assert.Equal(t, "hello", res.Value.StringValue())
	_, realized := res.RealizedOf(node)
	assert.False(t, realized, "a literal node does not cache a realized form")
}
