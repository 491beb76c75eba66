package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plan(t *testing.T, pattern string) Fragment {
	t.Helper()
	f, err := Plan(pattern)
	require.NoError(t, err)
	return f
}

func TestStringLiteral(t *testing.T) {
	f := plan(t, "hello")
	assert.Equal(t, NewLiteral("hello"), f)
}

func TestSimpleInline(t *testing.T) {
	// x(foo|bar)y => Or(And("x","foo","y"), And("x","bar","y"))
	f := plan(t, "x(foo|bar)y")
	require.Equal(t, KindDense, f.Kind)
	assert.Equal(t, Or, f.Op)
	require.Len(t, f.Children, 2)
	assert.Equal(t, NewLiteral("xfooy"), f.Children[0])
	assert.Equal(t, NewLiteral("xbary"), f.Children[1])
}

func TestDoubleAlternation(t *testing.T) {
	f := plan(t, "(a|b)(c|d)")
	require.Equal(t, KindDense, f.Kind)
	assert.Equal(t, Or, f.Op)
	assert.Len(t, f.Children, 4)
}

func TestNestedOr(t *testing.T) {
	f := plan(t, "a|b|c")
	require.Equal(t, KindDense, f.Kind)
	assert.Equal(t, Or, f.Op)
	assert.Len(t, f.Children, 3)
}

func TestBasicInline(t *testing.T) {
	f := plan(t, "(a|b)c")
	require.Equal(t, KindDense, f.Kind)
	assert.Equal(t, Or, f.Op)
	assert.Equal(t, NewLiteral("ac"), f.Children[0])
	assert.Equal(t, NewLiteral("bc"), f.Children[1])
}

func TestSmallLiteralAlt(t *testing.T) {
	f := plan(t, "[ab]")
	require.Equal(t, KindDense, f.Kind)
	assert.Equal(t, Or, f.Op)
	assert.Len(t, f.Children, 2)
}

func TestSimpleWildcard(t *testing.T) {
	f := plan(t, "a.b")
	require.Equal(t, KindDense, f.Kind)
	assert.Equal(t, And, f.Op)
	assert.Contains(t, f.Children, NewBreak())
}

func TestRepetition(t *testing.T) {
	f := plan(t, "a+b")
	require.Equal(t, KindDense, f.Kind)
	assert.Equal(t, And, f.Op)
	assert.Contains(t, f.Children, NewBreak())
}

func TestSimpleRange(t *testing.T) {
	f := plan(t, "[0-9]")
	require.Equal(t, KindDense, f.Kind)
	assert.Equal(t, Or, f.Op)
	assert.Len(t, f.Children, 10)
}

func TestWideClassIsBreak(t *testing.T) {
	f := plan(t, "[\\x00-\\xff]")
	assert.Equal(t, NewBreak(), f)
}

func TestAndElidesEmptyLiteral(t *testing.T) {
	got := NewLiteral("").And(NewLiteral("x"))
	assert.Equal(t, NewLiteral("x"), got)
	got = NewLiteral("x").And(NewLiteral(""))
	assert.Equal(t, NewLiteral("x"), got)
}

func TestDisplayFormat(t *testing.T) {
	f := plan(t, "x(foo|bar)y")
	s := f.String()
	assert.Contains(t, s, " OR ")
	assert.Contains(t, s, `"xfooy"`)
	assert.Contains(t, s, `"xbary"`)
}
