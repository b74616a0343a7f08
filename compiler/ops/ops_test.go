package ops_test

import (
	"testing"

	"github.com/brimdata/ruleflow/compiler/ast"
	"github.com/brimdata/ruleflow/compiler/ast/asttest"
	"github.com/brimdata/ruleflow/compiler/ops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHintsClone(t *testing.T) {
	h := ops.NewHints(ops.NewFieldSet("a", "b"))
	h.Filter = ast.NewAtom("a", "==", ast.NewNumber(1), ast.Number)
	h.SetSort("a", "asc")
	h.SetLimit(3)

	c := h.Clone()
	assert.Equal(t, []string{"a", "b"}, c.Projection.Sorted())
	assert.True(t, ast.IsTrue(c.Filter))
	assert.Nil(t, c.Sort)
	assert.Nil(t, c.Limit)

	c.Projection.Add("c")
	assert.False(t, h.Projection.Has("c"))

	h.CarryOrder(c)
	require.NotNil(t, c.Limit)
	assert.Equal(t, 3, *c.Limit)
	assert.Equal(t, &ops.SortHint{Field: "a", Direction: "asc"}, c.Sort)
}

func TestFieldSet(t *testing.T) {
	f := ops.NewFieldSet("z", "a", "m")
	assert.Equal(t, []string{"a", "m", "z"}, f.Sorted())
	assert.Equal(t, []string{"m"}, f.Intersect(ops.NewFieldSet("m", "q")).Sorted())
	assert.Empty(t, ops.NewFieldSet().Sorted())
}

func TestSameDevice(t *testing.T) {
	a := &ast.DeviceSelector{Kind: "com.foo", ID: "1"}
	b := &ast.DeviceSelector{Kind: "com.foo", ID: "1"}
	c := &ast.DeviceSelector{Kind: "com.foo", ID: "2"}
	assert.True(t, ops.SameDevice(a, b))
	assert.False(t, ops.SameDevice(a, c))
	assert.False(t, ops.SameDevice(a, nil))

	lhs := &ops.InvokeGet{Placement: ops.Placement{Device: a, HandleThingTalk: true}}
	rhs := &ops.InvokeGet{Placement: ops.Placement{Device: b}}
	p := ops.Join(lhs, rhs)
	assert.Equal(t, a, p.Device)
	assert.False(t, p.HandleThingTalk)

	p = ops.Join(lhs, &ops.InvokeGet{Placement: ops.Placement{Device: c}})
	assert.Nil(t, p.Device)
}

func TestFormat(t *testing.T) {
	products := asttest.Products()
	get := &ops.InvokeGet{Invocation: products.Invocation, AST: products}
	op := &ops.EdgeNew{
		Stream: &ops.InvokeTable{
			Stream: &ops.InvokeSubscribe{Invocation: products.Invocation},
			Table: &ops.Reduce{
				Table: get,
				Op:    &ops.SimpleArgMinMax{Operator: "argmin", Field: "price"},
			},
		},
	}
	assert.Equal(t,
		"EdgeNew(InvokeTable(InvokeSubscribe(@com.shop.products), Reduce(InvokeGet(@com.shop.products), SimpleArgMinMax(argmin, price))))",
		ops.Format(op))

	m := &ops.TableMap{Table: get, Op: &ops.Projection{Args: []string{"name"}}}
	assert.Equal(t, "Map(InvokeGet(@com.shop.products), Projection[name])", ops.Format(m))
	assert.Equal(t, "Now", ops.Format(ops.NowOp))
}
