package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterAdd(t *testing.T) {
	c := NewCounter(10)
	require.NoError(t, c.Add(4))
	require.NoError(t, c.Add(6))
	assert.Equal(t, 10, c.Current())

	err := c.Add(1)
	assert.ErrorIs(t, err, ErrMaxBytesExceeded)
	assert.Equal(t, 10, c.Current(), "a failed Add must not mutate state")
}

func TestCounterUnbounded(t *testing.T) {
	c := NewCounter(0)
	require.NoError(t, c.Add(1_000_000))
	assert.Equal(t, 1_000_000, c.Current())
}

func TestCounterSubtractClampsAtZero(t *testing.T) {
	c := NewCounter(100)
	require.NoError(t, c.Add(5))
	c.Subtract(100)
	assert.Equal(t, 0, c.Current())
}

func TestStringCost(t *testing.T) {
	assert.Equal(t, 26, StringCost(0))
	assert.Equal(t, 26+2*5, StringCost(5))
}

func TestDepthEnterExit(t *testing.T) {
	d := NewDepth(2)
	require.NoError(t, d.Enter())
	require.NoError(t, d.Enter())
	assert.ErrorIs(t, d.Enter(), ErrMaxDepthExceeded)
	d.Exit()
	require.NoError(t, d.Enter())
	assert.Equal(t, 2, d.Current())
}

func TestDepthDefaultMax(t *testing.T) {
	d := NewDepth(0)
	assert.Equal(t, DefaultMaxDepth, d.Max())
}
