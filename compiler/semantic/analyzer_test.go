package semantic_test

import (
	"errors"
	"testing"

	"github.com/brimdata/ruleflow/compiler/ast"
	"github.com/brimdata/ruleflow/compiler/ast/asttest"
	"github.com/brimdata/ruleflow/compiler/ops"
	"github.com/brimdata/ruleflow/compiler/semantic"
	rfe "github.com/brimdata/ruleflow/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorInvocation(t *testing.T) {
	rule, err := semantic.Analyze(asttest.Monitor(asttest.Products()))
	require.NoError(t, err)
	assert.Equal(t, "EdgeNew(InvokeSubscribe(@com.shop.products))", ops.Format(rule))

	sub := rule.Stream.(*ops.EdgeNew).Stream.(*ops.InvokeSubscribe)
	assert.Equal(t, []string{"name", "price"}, sub.Hints.Projection.Sorted())
}

func TestSortIndexToArgMin(t *testing.T) {
	table := ast.NewIndexTable(ast.NewSortTable(asttest.Products(), "price", "asc"), ast.NewNumber(1))
	rule, err := semantic.Analyze(asttest.Notify(table))
	require.NoError(t, err)
	assert.Equal(t,
		"Join(Now, Reduce(InvokeGet(@com.shop.products), SimpleArgMinMax(argmin, price)))",
		ops.Format(rule))

	reduce := rule.Stream.(*ops.StreamJoin).Table.(*ops.Reduce)
	get := reduce.Table.(*ops.InvokeGet)
	require.NotNil(t, get.Hints.Limit)
	assert.Equal(t, 1, *get.Hints.Limit)
	assert.Equal(t, &ops.SortHint{Field: "price", Direction: "asc"}, get.Hints.Sort)
}

func TestArgMinMaxVariants(t *testing.T) {
	cases := []struct {
		direction string
		index     float64
		expected  string
		limit     *int
		sort      string
	}{
		{"asc", 1, "SimpleArgMinMax(argmin, price)", intp(1), "asc"},
		{"desc", 1, "SimpleArgMinMax(argmax, price)", intp(1), "desc"},
		{"asc", -1, "SimpleArgMinMax(argmax, price)", intp(1), "desc"},
		{"desc", -1, "SimpleArgMinMax(argmin, price)", intp(1), "asc"},
		{"asc", 3, "ComplexArgMinMax(argmin, price, 3, 1)", intp(3), "asc"},
		{"desc", -2, "ComplexArgMinMax(argmax, price, -2, 1)", nil, "desc"},
	}
	for _, c := range cases {
		table := ast.NewIndexTable(ast.NewSortTable(asttest.Products(), "price", c.direction), ast.NewNumber(c.index))
		op, err := semantic.CompileTable(table, nil, ops.NewHints(nil))
		require.NoError(t, err)
		reduce := op.(*ops.Reduce)
		assert.Equal(t, "Reduce(InvokeGet(@com.shop.products), "+c.expected+")", ops.Format(reduce))
		hints := reduce.Table.(*ops.InvokeGet).Hints
		assert.Equal(t, c.limit, hints.Limit, "%s [%v]", c.direction, c.index)
		// A backend that honors sort and limit returns the selected row.
		assert.Equal(t, &ops.SortHint{Field: "price", Direction: c.sort}, hints.Sort, "%s [%v]", c.direction, c.index)
	}
}

func TestSortSliceToArgMin(t *testing.T) {
	table := ast.NewSliceTable(ast.NewSortTable(asttest.Products(), "price", "desc"), ast.NewNumber(2), ast.NewNumber(3))
	op, err := semantic.CompileTable(table, nil, ops.NewHints(nil))
	require.NoError(t, err)
	assert.Equal(t, "Reduce(InvokeGet(@com.shop.products), ComplexArgMinMax(argmax, price, 2, 3))", ops.Format(op))
	hints := op.(*ops.Reduce).Table.(*ops.InvokeGet).Hints
	assert.Equal(t, intp(4), hints.Limit)
	assert.Equal(t, &ops.SortHint{Field: "price", Direction: "desc"}, hints.Sort)
}

func TestSliceFromEndFetchesEverything(t *testing.T) {
	sliced := ast.NewSliceTable(asttest.Products(), ast.NewNumber(-2), ast.NewNumber(1))
	op, err := semantic.CompileTable(sliced, nil, ops.NewHints(nil))
	require.NoError(t, err)
	assert.Equal(t, "Reduce(InvokeGet(@com.shop.products), Slice(-2, 1))", ops.Format(op))
	assert.Nil(t, op.(*ops.Reduce).Table.(*ops.InvokeGet).Hints.Limit)

	sorted := ast.NewSliceTable(ast.NewSortTable(asttest.Products(), "price", "asc"), ast.NewNumber(-2), ast.NewNumber(1))
	op, err = semantic.CompileTable(sorted, nil, ops.NewHints(nil))
	require.NoError(t, err)
	assert.Equal(t, "Reduce(InvokeGet(@com.shop.products), ComplexArgMinMax(argmin, price, -2, 1))", ops.Format(op))
	assert.Nil(t, op.(*ops.Reduce).Table.(*ops.InvokeGet).Hints.Limit)
}

func TestIndexAndSlice(t *testing.T) {
	op, err := semantic.CompileTable(ast.NewIndexTable(asttest.Products(), ast.NewNumber(2)), nil, ops.NewHints(nil))
	require.NoError(t, err)
	assert.Equal(t, "Reduce(InvokeGet(@com.shop.products), SimpleIndex(2))", ops.Format(op))
	assert.Equal(t, intp(2), op.(*ops.Reduce).Table.(*ops.InvokeGet).Hints.Limit)

	op, err = semantic.CompileTable(ast.NewIndexTable(asttest.Products(), ast.NewNumber(-1), ast.NewNumber(2)), nil, ops.NewHints(nil))
	require.NoError(t, err)
	assert.Equal(t, "Reduce(InvokeGet(@com.shop.products), ComplexIndex([-1, 2]))", ops.Format(op))
	assert.Nil(t, op.(*ops.Reduce).Table.(*ops.InvokeGet).Hints.Limit)

	op, err = semantic.CompileTable(ast.NewSliceTable(asttest.Products(), ast.NewNumber(1), ast.NewVarRef("n")), nil, ops.NewHints(nil))
	require.NoError(t, err)
	assert.Equal(t, "Reduce(InvokeGet(@com.shop.products), Slice(1, n))", ops.Format(op))
	assert.Nil(t, op.(*ops.Reduce).Table.(*ops.InvokeGet).Hints.Limit)
}

func TestAggregationDiscardsHints(t *testing.T) {
	sorted := ast.NewSortTable(asttest.Products(), "price", "asc")
	table := ast.NewAggregationTable(sorted, "avg", "price", "")
	hints := ops.NewHints(ops.NewFieldSet("price", "name"))
	hints.SetLimit(5)
	op, err := semantic.CompileTable(table, nil, hints)
	require.NoError(t, err)
	assert.Equal(t, "Reduce(Reduce(InvokeGet(@com.shop.products), Sort(price, asc)), Average(price))", ops.Format(op))
	get := op.(*ops.Reduce).Table.(*ops.Reduce).Table.(*ops.InvokeGet)
	assert.Equal(t, []string{"price"}, get.Hints.Projection.Sorted())
	assert.Nil(t, get.Hints.Limit)

	op, err = semantic.CompileTable(ast.NewAggregationTable(asttest.Products(), "count", "*", ""), nil, hints)
	require.NoError(t, err)
	assert.Equal(t, "Reduce(InvokeGet(@com.shop.products), Count)", ops.Format(op))
	assert.Empty(t, op.(*ops.Reduce).Table.(*ops.InvokeGet).Hints.Projection)
}

func TestNestedLoopJoinPlacement(t *testing.T) {
	headlines := asttest.Headlines()
	reviews := asttest.Reviews()
	join := ast.NewJoinTable(headlines, reviews, ast.NewInputParam("product", ast.NewVarRef("title")))
	rule, err := semantic.Analyze(asttest.Notify(join))
	require.NoError(t, err)
	assert.Equal(t,
		"Join(Now, NestedLoopJoin(InvokeGet(@com.news.headlines), InvokeGet(@com.shop.reviews)))",
		ops.Format(rule))

	nlj := rule.Stream.(*ops.StreamJoin).Table.(*ops.NestedLoopJoin)
	assert.Nil(t, nlj.Device)
	assert.False(t, nlj.HandleThingTalk)
	rhs := nlj.RHS.(*ops.InvokeGet)
	require.Len(t, rhs.ExtraInParams, 1)
	assert.Equal(t, "product", rhs.ExtraInParams[0].Name)
}

func TestCrossJoinSameDevice(t *testing.T) {
	handled := &ast.BooleanValue{Value: true}
	products := asttest.Products()
	products.Signature().Annotations = map[string]ast.Value{"handle_thingtalk": handled}
	reviews := asttest.Reviews(ast.NewInputParam("product", ast.NewString("phone")))
	reviews.Signature().Annotations = map[string]ast.Value{"handle_thingtalk": handled}
	op, err := semantic.CompileTable(ast.NewJoinTable(products, reviews), nil, ops.NewHints(nil))
	require.NoError(t, err)
	cj := op.(*ops.CrossJoin)
	assert.Equal(t, "com.shop", cj.Device.Kind)
	assert.True(t, cj.HandleThingTalk)
}

func TestMonitorJoinIsUnion(t *testing.T) {
	join := ast.NewJoinTable(asttest.Products(), asttest.Headlines())
	rule, err := semantic.Analyze(asttest.Monitor(join))
	require.NoError(t, err)
	assert.Equal(t,
		"EdgeNew(Union(EdgeNew(InvokeSubscribe(@com.shop.products)), EdgeNew(InvokeSubscribe(@com.news.headlines))))",
		ops.Format(rule))
}

func TestMonitorJoinWithParamsNotImplemented(t *testing.T) {
	join := ast.NewJoinTable(asttest.Headlines(), asttest.Reviews(), ast.NewInputParam("product", ast.NewVarRef("title")))
	_, err := semantic.Analyze(asttest.Monitor(join))
	require.Error(t, err)
	assert.True(t, rfe.IsNotImplemented(err))
	var unsupported *semantic.UnsupportedError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "monitor of join with parameter passing", unsupported.Construct)
	assert.Equal(t, "not implemented: monitor of join with parameter passing", err.Error())
}

func TestAliasNotImplemented(t *testing.T) {
	alias := &ast.AliasTable{Typed: ast.Typed{Schema: asttest.Products().Signature()}, Table: asttest.Products(), Name: "p"}
	_, err := semantic.Analyze(asttest.Notify(alias))
	assert.True(t, rfe.IsNotImplemented(err))
}

func TestJoinHintsNarrow(t *testing.T) {
	join := ast.NewJoinTable(asttest.Products(), asttest.Headlines())
	filter := ast.NewAnd(
		ast.NewAtom("price", ">=", ast.NewNumber(10), ast.Number),
		ast.NewAtom("title", "=~", ast.NewString("sale"), ast.String),
	)
	table := ast.NewProjectionTable(ast.NewFilterTable(join, filter), "name", "title")
	rule, err := semantic.Analyze(asttest.Notify(table))
	require.NoError(t, err)
	assert.Equal(t,
		"Join(Now, Map(Filter(CrossJoin(InvokeGet(@com.shop.products), InvokeGet(@com.news.headlines)), (price >= 10) && (title =~ \"sale\")), Projection[name, title]))",
		ops.Format(rule))

	m := rule.Stream.(*ops.StreamJoin).Table.(*ops.TableMap)
	cj := m.Table.(*ops.TableFilter).Table.(*ops.CrossJoin)
	parent := ops.NewFieldSet("name", "price", "title")
	products := cj.LHS.(*ops.InvokeGet).Hints
	headlines := cj.RHS.(*ops.InvokeGet).Hints
	assert.Equal(t, []string{"name", "price"}, products.Projection.Sorted())
	assert.Equal(t, []string{"title"}, headlines.Projection.Sorted())
	for _, h := range []*ops.Hints{products, headlines} {
		for name := range h.Projection {
			assert.True(t, parent.Has(name))
		}
	}
	assert.Equal(t, "price >= 10", ast.FormatFilter(products.Filter))
	assert.Equal(t, "title =~ \"sale\"", ast.FormatFilter(headlines.Filter))
}

func TestComputeDropsAliasFromHints(t *testing.T) {
	expr := &ast.Computation{
		Op:       "*",
		Operands: []ast.Value{ast.NewVarRef("price"), ast.NewNumber(2)},
		Type:     ast.Number,
	}
	compute := ast.NewComputeTable(asttest.Products(), expr, "double")
	filter := ast.NewFilterTable(compute, ast.NewAtom("double", ">", ast.NewNumber(5), ast.Number))
	op, err := semantic.CompileTable(filter, nil, ops.NewHints(ops.NewFieldSet("double", "name")))
	require.NoError(t, err)
	assert.Equal(t, "Filter(Map(InvokeGet(@com.shop.products), Compute(*(price, 2) as double)), double > 5)", ops.Format(op))
	get := op.(*ops.TableFilter).Table.(*ops.TableMap).Table.(*ops.InvokeGet)
	assert.Equal(t, []string{"name", "price"}, get.Hints.Projection.Sorted())
	assert.True(t, ast.IsTrue(get.Hints.Filter))
}

func TestProjectionDroppedWithoutNotify(t *testing.T) {
	products := asttest.Products()
	products.Signature().DefaultProjection = []string{"name"}
	rule := &ast.Rule{
		Stream:  ast.NewMonitorStream(products),
		Actions: []ast.Action{asttest.Send(ast.NewInputParam("body", ast.NewVarRef("name")))},
	}
	op, err := semantic.Analyze(rule)
	require.NoError(t, err)
	assert.Equal(t, "EdgeNew(InvokeSubscribe(@com.shop.products))", ops.Format(op))

	rule.Actions = []ast.Action{ast.Notify}
	op, err = semantic.Analyze(rule)
	require.NoError(t, err)
	assert.Equal(t, "Map(EdgeNew(InvokeSubscribe(@com.shop.products)), Projection[name])", ops.Format(op))
}

func TestCommandWithoutTable(t *testing.T) {
	rule, err := semantic.Analyze(&ast.Command{Actions: []ast.Action{asttest.Send()}})
	require.NoError(t, err)
	assert.Equal(t, "Now", ops.Format(rule))
}

func intp(n int) *int {
	return &n
}
