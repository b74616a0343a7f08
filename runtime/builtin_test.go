package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func pairs(prices ...float64) Tuple {
	var out Tuple
	for _, p := range prices {
		out = append(out, Tuple{"t", Row{"price": p}})
	}
	return out
}

func prices(list any) []float64 {
	var out []float64
	for _, v := range list.(Tuple) {
		out = append(out, field(v, "price").(float64))
	}
	return out
}

func TestIndexArray(t *testing.T) {
	list := pairs(10, 20, 30)
	v, err := callBuiltin("indexArray", list, Tuple{1.0, -1.0, 0.0, 7.0})
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 30}, prices(v))
}

func TestSliceArray(t *testing.T) {
	list := pairs(10, 20, 30, 40)
	cases := []struct {
		base, limit float64
		expected    []float64
	}{
		{1, 2, []float64{10, 20}},
		{3, 5, []float64{30, 40}},
		{-2, 1, []float64{30}},
		{9, 1, nil},
	}
	for _, c := range cases {
		v, err := callBuiltin("sliceArray", list, c.base, c.limit)
		require.NoError(t, err)
		assert.Equal(t, c.expected, prices(v), "base %v limit %v", c.base, c.limit)
	}
}

func TestArgMinMax(t *testing.T) {
	list := pairs(20, 5, 40, 5)
	v, err := callBuiltin("argminmax", list, "price", "argmax", 1.0, 2.0)
	require.NoError(t, err)
	assert.Equal(t, []float64{40, 20}, prices(v))
	v, err = callBuiltin("argminmax", list, "price", "argmin", 1.0, 1.0)
	require.NoError(t, err)
	assert.Equal(t, []float64{5}, prices(v))
	_, err = callBuiltin("argminmax", list, "price", "median", 1.0, 1.0)
	assert.EqualError(t, err, `argminmax: unknown operator "median"`)
}

func TestSortIsStable(t *testing.T) {
	list := Tuple{
		Tuple{"t", Row{"price": 5.0, "name": "a"}},
		Tuple{"t", Row{"price": 1.0, "name": "b"}},
		Tuple{"t", Row{"price": 5.0, "name": "c"}},
	}
	v, err := callBuiltin("sortBy", list, "price", "asc")
	require.NoError(t, err)
	var names []any
	for _, e := range v.(Tuple) {
		names = append(names, field(e, "name"))
	}
	assert.Equal(t, []any{"b", "a", "c"}, names)
}

func TestOperators(t *testing.T) {
	v, err := binaryOp("+", Currency{Value: 2, Code: "usd"}, 3.0)
	require.NoError(t, err)
	assert.Equal(t, Currency{Value: 5, Code: "usd"}, v)
	v, err = binaryOp("<=", nil, 3.0)
	require.NoError(t, err)
	assert.Equal(t, false, v)
	v, err = binaryOp("!==", nil, false)
	require.NoError(t, err)
	assert.Equal(t, true, v)
	_, err = binaryOp("*", "a", 2.0)
	assert.Error(t, err)
	v, err = unaryOp("String", Entity{Value: "#go"})
	require.NoError(t, err)
	assert.Equal(t, "#go", v)
}

func TestMatching(t *testing.T) {
	v, err := callBuiltin("like", "The Quick Fox", "quick")
	require.NoError(t, err)
	assert.Equal(t, true, v)
	v, err = callBuiltin("equality", Entity{Value: "bob"}, "bob")
	require.NoError(t, err)
	assert.Equal(t, true, v)
	v, err = callBuiltin("containsLike", Tuple{"Red", "Green"}, "green")
	require.NoError(t, err)
	assert.Equal(t, true, v)
	v, err = callBuiltin("contains", Tuple{"Red", "Green"}, "green")
	require.NoError(t, err)
	assert.Equal(t, false, v)
}

func TestAggregates(t *testing.T) {
	v, err := callBuiltin("max", nil, 4.0)
	require.NoError(t, err)
	assert.Equal(t, 4.0, v)
	v, err = callBuiltin("min", Tuple{3.0, 1.0, 2.0})
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
	v, err = callBuiltin("avg", Tuple{3.0, 1.0, 2.0})
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)
	set, err := callBuiltin("newSet")
	require.NoError(t, err)
	for _, x := range []any{"a", Entity{Value: "a"}, 1.0} {
		set, err = callBuiltin("setAdd", set, x)
		require.NoError(t, err)
	}
	v, err = callBuiltin("setSize", set)
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)
}

func TestEdgeTuples(t *testing.T) {
	keys := []string{"name"}
	var state any
	assert.True(t, isNewTuple(state, Row{"name": "a", "price": 1.0}, keys))
	state = addTuple(state, Row{"name": "a", "price": 1.0})
	assert.False(t, isNewTuple(state, Row{"name": "a", "price": 2.0}, keys))
	assert.True(t, isNewTuple(state, Row{"name": "b", "price": 1.0}, keys))
}

func TestGeneratorInterleavesBranches(t *testing.T) {
	rctx := NewContext(context.Background(), nil, zap.NewNop())
	defer rctx.Cancel()
	branch := func(tag string, n int) func(context.Context, emitFunc) error {
		return func(ctx context.Context, emit emitFunc) error {
			for k := 0; k < n; k++ {
				if err := emit(ctx, tag, Row{"k": float64(k)}); err != nil {
					return err
				}
			}
			return nil
		}
	}
	g := generate(rctx, rctx, branch("lhs", 3), branch("rhs", 2))
	seen := map[string][]float64{}
	for {
		v, ok, err := g.Next(rctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		pair := v.(Tuple)
		seen[pair[0].(string)] = append(seen[pair[0].(string)], pair[1].(Row)["k"].(float64))
	}
	assert.Equal(t, []float64{0, 1, 2}, seen["lhs"])
	assert.Equal(t, []float64{0, 1}, seen["rhs"])
	_, ok, err := g.Next(rctx)
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestGeneratorReportsBranchError(t *testing.T) {
	rctx := NewContext(context.Background(), nil, zap.NewNop())
	defer rctx.Cancel()
	failed := errors.New("failed")
	g := generate(rctx, rctx, func(context.Context, emitFunc) error { return failed })
	_, ok, err := g.Next(rctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, failed)
}

func TestGeneratorClose(t *testing.T) {
	rctx := NewContext(context.Background(), nil, zap.NewNop())
	forever := func(ctx context.Context, emit emitFunc) error {
		for {
			if err := emit(ctx, "t", Row{}); err != nil {
				return err
			}
		}
	}
	g := generate(rctx, rctx, forever)
	_, ok, err := g.Next(rctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, g.Close())
	// Cancel waits for the branch to exit.
	rctx.Cancel()
}

func TestDates(t *testing.T) {
	noon := time.Date(2021, 4, 29, 12, 0, 0, 0, time.UTC)
	v, err := binaryOp("<", noon, "2021-05-01")
	require.NoError(t, err)
	assert.Equal(t, true, v)
	v, err = binaryOp("===", noon, float64(noon.UnixMilli()))
	require.NoError(t, err)
	assert.Equal(t, true, v)
	v, err = callBuiltin("get_time", "2021-04-29 08:15:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 8, Minute: 15, Second: 30}, v)
	_, err = callBuiltin("get_time", "not a date")
	assert.Error(t, err)
}
