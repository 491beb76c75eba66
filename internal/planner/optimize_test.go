package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasicNestedOr(t *testing.T) {
	// Or(Or(a,b), c) flattens to Or(a,b,c).
	nested := NewDense(Or, []Fragment{
		NewDense(Or, []Fragment{NewLiteral("a"), NewLiteral("b")}),
		NewLiteral("c"),
	})
	got := Optimize(nested)
	require.Equal(t, KindDense, got.Kind)
	assert.Equal(t, Or, got.Op)
	assert.Equal(t, []Fragment{NewLiteral("a"), NewLiteral("b"), NewLiteral("c")}, got.Children)
}

func TestOptimizeBasicInline(t *testing.T) {
	// And(Or(a,b), c) => Or(And(a,c), And(b,c))
	tree := NewDense(And, []Fragment{
		NewDense(Or, []Fragment{NewLiteral("a"), NewLiteral("b")}),
		NewLiteral("c"),
	})
	got := Optimize(tree)
	require.Equal(t, KindDense, got.Kind)
	assert.Equal(t, Or, got.Op)
	assert.Equal(t, NewLiteral("ac"), got.Children[0])
	assert.Equal(t, NewLiteral("bc"), got.Children[1])
}

func TestInlineNested(t *testing.T) {
	// And(Or(a,b), Or(c,d)) => Or(ac,ad,bc,bd)
	tree := NewDense(And, []Fragment{
		NewDense(Or, []Fragment{NewLiteral("a"), NewLiteral("b")}),
		NewDense(Or, []Fragment{NewLiteral("c"), NewLiteral("d")}),
	})
	got := Optimize(tree)
	require.Equal(t, KindDense, got.Kind)
	assert.Equal(t, Or, got.Op)
	assert.Len(t, got.Children, 4)
}

func TestInlineBreak(t *testing.T) {
	// And(Or(a,b), Break) distributes the Break across both branches
	// rather than collapsing the whole tree to a single Break.
	tree := NewDense(And, []Fragment{
		NewDense(Or, []Fragment{NewLiteral("a"), NewLiteral("b")}),
		NewBreak(),
	})
	got := Optimize(tree)
	require.Equal(t, KindDense, got.Kind)
	assert.Equal(t, Or, got.Op)
	for _, c := range got.Children {
		assert.Equal(t, KindDense, c.Kind)
		assert.Equal(t, And, c.Op)
		assert.Contains(t, c.Children, NewBreak())
	}
}
