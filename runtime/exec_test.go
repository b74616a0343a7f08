package runtime_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/brimdata/ruleflow/compiler/ast"
	"github.com/brimdata/ruleflow/compiler/ast/asttest"
	"github.com/brimdata/ruleflow/compiler/kernel"
	"github.com/brimdata/ruleflow/compiler/semantic"
	"github.com/brimdata/ruleflow/runtime"
	"github.com/brimdata/ruleflow/runtime/runtimetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func run(t *testing.T, env runtime.Environment, stmt ast.Statement) *kernel.Allocator {
	t.Helper()
	rule, err := semantic.Analyze(stmt)
	require.NoError(t, err)
	alloc := kernel.NewAllocator()
	b := kernel.NewBuilder(zap.NewNop(), alloc, kernel.NewScope(nil), kernel.Options{DefaultCurrency: "usd"})
	prog := b.CompileStatement("rule", rule)
	rctx := runtime.NewContext(context.Background(), env, zap.NewNop())
	defer rctx.Cancel()
	rctx.ASTs = alloc.ASTs()
	require.NoError(t, runtime.Run(rctx, prog))
	return alloc
}

func products(env *runtimetest.Env, rows ...runtime.Row) {
	env.Results["com.shop.products"] = rows
}

func product(name string, price float64) runtime.Row {
	return runtime.Row{"name": name, "price": price}
}

func names(outputs []runtimetest.Output) []any {
	var out []any
	for _, o := range outputs {
		out = append(out, o.Row["name"])
	}
	return out
}

func TestCommandOutputsEveryRow(t *testing.T) {
	env := runtimetest.New()
	products(env, product("kettle", 30), product("toaster", 25))
	run(t, env, asttest.Notify(asttest.Products()))
	outputs := env.Outputs()
	require.Len(t, outputs, 2)
	assert.Equal(t, "com.shop:products", outputs[0].Type)
	assert.Equal(t, []any{"kettle", "toaster"}, names(outputs))
	assert.Equal(t, 30.0, outputs[0].Row["price"])
	calls := env.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"name", "price"}, calls[0].Hints.Projection)
}

func TestMonitorSuppressesRepeats(t *testing.T) {
	env := runtimetest.New()
	products(env, product("kettle", 30), product("kettle", 30), product("toaster", 25))
	alloc := run(t, env, asttest.Monitor(asttest.Products()))
	assert.Equal(t, []any{"kettle", "toaster"}, names(env.Outputs()))
	assert.IsType(t, []any{}, env.State(0))
	assert.Equal(t, 1, alloc.States())
}

func TestMonitorProjectionIdentity(t *testing.T) {
	env := runtimetest.New()
	// The second row only changes the price, which is projected away.
	products(env, product("kettle", 30), product("kettle", 35), product("toaster", 25))
	run(t, env, asttest.Monitor(ast.NewProjectionTable(asttest.Products(), "name")))
	outputs := env.Outputs()
	assert.Equal(t, []any{"kettle", "toaster"}, names(outputs))
	for _, o := range outputs {
		assert.NotContains(t, o.Row, "price")
	}
}

func TestFailedQueryIsReported(t *testing.T) {
	env := runtimetest.New()
	env.Failures["com.shop.products"] = errors.New("device offline")
	run(t, env, asttest.Notify(asttest.Products()))
	assert.Empty(t, env.Outputs())
	reports := env.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, "Failed to invoke query", reports[0].Message)
	assert.EqualError(t, reports[0].Err, "device offline")
}

func TestCrossJoinRightWins(t *testing.T) {
	lhs := asttest.Table(asttest.Query("com.a", "x", asttest.Out("name", ast.String), asttest.Out("a", ast.Number)))
	rhs := asttest.Table(asttest.Query("com.b", "y", asttest.Out("name", ast.String)))
	env := runtimetest.New()
	env.Results["com.a.x"] = []runtime.Row{{"name": "left", "a": 1.0}}
	env.Results["com.b.y"] = []runtime.Row{{"name": "right"}, {"name": "other"}}
	run(t, env, asttest.Notify(ast.NewJoinTable(lhs, rhs)))
	outputs := env.Outputs()
	require.Len(t, outputs, 2)
	assert.Equal(t, "com.a:x+com.b:y", outputs[0].Type)
	assert.Equal(t, []any{"right", "other"}, names(outputs))
	assert.Equal(t, 1.0, outputs[1].Row["a"])
}

func TestNestedLoopJoinPassesParams(t *testing.T) {
	env := runtimetest.New()
	products(env, product("kettle", 30), product("toaster", 25))
	env.Results["com.shop.reviews"] = []runtime.Row{{"rating": 4.0, "text": "fine"}}
	join := ast.NewJoinTable(asttest.Products(), asttest.Reviews(),
		ast.NewInputParam("product", ast.NewVarRef("name")))
	run(t, env, asttest.Notify(join))
	var args []any
	for _, c := range env.Calls() {
		if c.Function == "reviews" {
			args = append(args, c.Args["product"])
		}
	}
	assert.Equal(t, []any{"kettle", "toaster"}, args)
	assert.Len(t, env.Outputs(), 2)
}

func TestLastOfSorted(t *testing.T) {
	for _, apply := range []bool{false, true} {
		env := runtimetest.New()
		env.ApplyHints = apply
		products(env, product("kettle", 30), product("blender", 40), product("mug", 5), product("toaster", 25))
		table := ast.NewIndexTable(ast.NewSortTable(asttest.Products(), "price", "asc"), ast.NewNumber(-1))
		run(t, env, asttest.Notify(table))
		assert.Equal(t, []any{"blender"}, names(env.Outputs()), "hints applied: %t", apply)
	}
}

func TestSliceFromEnd(t *testing.T) {
	for _, apply := range []bool{false, true} {
		env := runtimetest.New()
		env.ApplyHints = apply
		products(env, product("kettle", 30), product("blender", 40), product("mug", 5), product("toaster", 25))
		table := ast.NewSliceTable(asttest.Products(), ast.NewNumber(-2), ast.NewNumber(1))
		run(t, env, asttest.Notify(table))
		assert.Equal(t, []any{"mug"}, names(env.Outputs()), "hints applied: %t", apply)
	}
}

// clockEnv answers every context lookup with a new number.
type clockEnv struct {
	*runtimetest.Env
	mu  sync.Mutex
	now float64
}

func (c *clockEnv) LoadContext(context.Context, string, ast.Type) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now++
	return c.now, nil
}

func TestMonitorIgnoresComputedFields(t *testing.T) {
	env := &clockEnv{Env: runtimetest.New()}
	// The two polls differ only in the computed "seen" field.
	products(env.Env, product("kettle", 30), product("kettle", 30), product("toaster", 25))
	clock := &ast.ContextRef{Name: "clock", Type: ast.Number}
	run(t, env, asttest.Monitor(ast.NewComputeTable(asttest.Products(), clock, "seen")))
	assert.Equal(t, []any{"kettle", "toaster"}, names(env.Outputs()))
}

func TestCount(t *testing.T) {
	env := runtimetest.New()
	products(env, product("kettle", 30), product("toaster", 25), product("mug", 5))
	run(t, env, asttest.Notify(ast.NewAggregationTable(asttest.Products(), "count", "*", "")))
	outputs := env.Outputs()
	require.Len(t, outputs, 1)
	assert.Equal(t, "count(com.shop:products)", outputs[0].Type)
	assert.Equal(t, runtime.Row{"count": 3.0}, outputs[0].Row)
}

func TestArgMin(t *testing.T) {
	env := runtimetest.New()
	products(env, product("kettle", 30), product("mug", 5), product("toaster", 25))
	table := ast.NewIndexTable(ast.NewSortTable(asttest.Products(), "price", "asc"), ast.NewNumber(1))
	run(t, env, asttest.Notify(table))
	assert.Equal(t, []any{"mug"}, names(env.Outputs()))
}

func TestSortDescending(t *testing.T) {
	env := runtimetest.New()
	products(env, product("kettle", 30), product("mug", 5), product("toaster", 25))
	run(t, env, asttest.Notify(ast.NewSortTable(asttest.Products(), "price", "desc")))
	assert.Equal(t, []any{"kettle", "toaster", "mug"}, names(env.Outputs()))
}

func TestFilter(t *testing.T) {
	env := runtimetest.New()
	products(env, product("kettle", 30), product("mug", 5), product("toaster", 25))
	cheap := ast.NewAtom("price", "<", ast.NewNumber(26), ast.Number)
	run(t, env, asttest.Notify(ast.NewFilterTable(asttest.Products(), cheap)))
	assert.Equal(t, []any{"mug", "toaster"}, names(env.Outputs()))
	calls := env.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Hints.Filter, 1)
	assert.Equal(t, runtime.Tuple{"price", "<", 26.0}, calls[0].Hints.Filter[0])
}

func TestActionReceivesParams(t *testing.T) {
	env := runtimetest.New()
	products(env, product("kettle", 30))
	send := asttest.Send(
		ast.NewInputParam("to", ast.NewEntity("bob@example.com", "tt:email_address")),
		ast.NewInputParam("body", ast.NewVarRef("name")),
	)
	run(t, env, &ast.Command{Table: asttest.Products(), Actions: []ast.Action{send}})
	var sends []runtimetest.Call
	for _, c := range env.Calls() {
		if c.Function == "send" {
			sends = append(sends, c)
		}
	}
	require.Len(t, sends, 1)
	assert.Equal(t, "kettle", sends[0].Args["body"])
	assert.Equal(t, runtime.Entity{Value: "bob@example.com"}, sends[0].Args["to"])
	assert.Empty(t, env.Outputs())
}
