package kernel_test

import (
	"testing"

	"github.com/brimdata/ruleflow/compiler/ast"
	"github.com/brimdata/ruleflow/compiler/ast/asttest"
	"github.com/brimdata/ruleflow/compiler/ir"
	"github.com/brimdata/ruleflow/compiler/kernel"
	"github.com/brimdata/ruleflow/compiler/semantic"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func compile(t *testing.T, stmt ast.Statement) (*ir.Program, *kernel.Allocator) {
	t.Helper()
	rule, err := semantic.Analyze(stmt)
	require.NoError(t, err)
	alloc := kernel.NewAllocator()
	b := kernel.NewBuilder(zap.NewNop(), alloc, kernel.NewScope(nil), kernel.Options{DefaultCurrency: "usd"})
	return b.CompileStatement("rule", rule), alloc
}

func collect[T ir.Instruction](p *ir.Program) []T {
	var out []T
	ir.Walk(p.Body, func(i ir.Instruction) {
		if i, ok := i.(T); ok {
			out = append(out, i)
		}
	})
	return out
}

func assertListing(t *testing.T, expected string, p *ir.Program) {
	t.Helper()
	actual := ir.Format(p)
	if actual == expected {
		return
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(expected),
		B:        difflib.SplitLines(actual),
		FromFile: "expected",
		ToFile:   "actual",
		Context:  3,
	})
	require.NoError(t, err)
	t.Fatalf("listing mismatch:\n%s", diff)
}

const commandListing = `async function rule(__env, __emit) {
  let _t_0, _t_1, _t_2, _t_3, _t_4, _t_5, _t_6, _t_7, _t_8;
  try {
    _t_0 = {};
    _t_1 = await __env.invokeQuery("com.shop", {}, "products", _t_0, { projection: ["name", "price"] });
    _t_2 = __builtin.getAsyncIterator(_t_1);
    for await (_t_3 of _t_2) {
      _t_4 = _t_3[0];
      _t_5 = _t_3[1];
      _t_6 = _t_5["__response"];
      _t_7 = _t_5["name"];
      _t_8 = _t_5["price"];
      try {
        await __env.output(String(_t_4), _t_5);
      } catch(_exc_) {
        __env.reportError("Failed to invoke action", _exc_);
      }
    }
  } catch(_exc_) {
    __env.reportError("Failed to invoke query", _exc_);
  }
}
`

func TestCommandListing(t *testing.T) {
	p, alloc := compile(t, asttest.Notify(asttest.Products()))
	assertListing(t, commandListing, p)
	assert.Equal(t, 0, alloc.States())
}

func TestMonitorAllocatesOneState(t *testing.T) {
	p, alloc := compile(t, asttest.Monitor(asttest.Products()))
	assert.Equal(t, 1, alloc.States())
	require.Len(t, collect[*ir.InvokeMonitor](p), 1)

	check := collect[*ir.CheckIsNewTuple](p)
	require.Len(t, check, 1)
	assert.Equal(t, []string{"name", "price"}, check[0].Keys)

	reads := collect[*ir.InvokeReadState](p)
	writes := collect[*ir.InvokeWriteState](p)
	require.Len(t, reads, 1)
	require.Len(t, writes, 1)
	assert.Equal(t, 0, reads[0].State)
	assert.Equal(t, 0, writes[0].State)

	// The state is read once, before the subscription starts.
	require.Len(t, p.Body.Instructions, 2)
	assert.IsType(t, &ir.InvokeReadState{}, p.Body.Instructions[0])
	try := p.Body.Instructions[1].(*ir.TryCatch)
	assert.Equal(t, "Failed to invoke trigger", try.Message)
}

func TestFilterLowering(t *testing.T) {
	schema := asttest.Query("com.example", "items",
		asttest.Out("x", ast.Number),
		asttest.Out("y", &ast.Entity{Name: "tt:hashtag"}),
	)
	filter := ast.NewAnd(
		ast.NewAtom("x", "==", ast.NewNumber(3), ast.Number),
		&ast.Atom{
			Name:     "y",
			Operator: "=~",
			Value:    ast.NewString("a"),
			Overload: []ast.Type{ast.String, ast.String, ast.Boolean},
		},
	)
	p, _ := compile(t, asttest.Notify(ast.NewFilterTable(asttest.Table(schema), filter)))

	calls := collect[*ir.BinaryFunctionOp](p)
	require.Len(t, calls, 2)
	equality, like := calls[0], calls[1]
	assert.Equal(t, "equality", equality.Fn)
	assert.Equal(t, "like", like.Fn)

	casts := collect[*ir.UnaryOp](p)
	require.Len(t, casts, 1)
	assert.Equal(t, "String", casts[0].Op)
	assert.Equal(t, casts[0].Into, like.LHS)

	var ands []*ir.BinaryOp
	for _, op := range collect[*ir.BinaryOp](p) {
		if op.Op == "&&" {
			ands = append(ands, op)
		}
	}
	require.Len(t, ands, 2)
	assert.Equal(t, equality.Into, ands[0].RHS)
	assert.Equal(t, like.Into, ands[1].RHS)
	assert.Equal(t, ands[0].Into, ands[1].LHS)

	ifs := collect[*ir.IfStatement](p)
	require.Len(t, ifs, 1)
	assert.Equal(t, ands[1].Into, ifs[0].Cond)

	// Both atoms are pushed to the query as hints.
	query := collect[*ir.InvokeQuery](p)
	require.Len(t, query, 1)
	assert.NotEqual(t, ir.NoRegister, query[0].Hints.Filter)
	tuples := collect[*ir.CreateTuple](p)
	require.NotEmpty(t, tuples)
	assert.Equal(t, 2, tuples[0].Size)
}

func TestEdgeFilter(t *testing.T) {
	stream := ast.NewEdgeFilterStream(
		ast.NewMonitorStream(asttest.Products()),
		ast.NewAtom("price", ">", ast.NewNumber(10), ast.Number),
	)
	p, alloc := compile(t, &ast.Rule{Stream: stream, Actions: []ast.Action{ast.Notify}})
	assert.Equal(t, 2, alloc.States())
	var ops []string
	for _, op := range collect[*ir.BinaryOp](p) {
		ops = append(ops, op.Op)
	}
	assert.Equal(t, []string{">", "!==", "&&"}, ops)
	// The new value of the filter is only written when it changed.
	writes := collect[*ir.InvokeWriteState](p)
	require.Len(t, writes, 2)
	assert.Equal(t, 0, writes[1].State)
}

func TestMonitorJoinUnion(t *testing.T) {
	p, alloc := compile(t, asttest.Monitor(ast.NewJoinTable(asttest.Products(), asttest.Headlines())))
	assert.Equal(t, 3, alloc.States())
	fns := collect[*ir.AsyncFunctionExpression](p)
	require.Len(t, fns, 2)
	for _, fn := range fns {
		last := fn.Body.Instructions[len(fn.Body.Instructions)-1]
		assert.IsType(t, &ir.TryCatch{}, last)
	}
	assert.Len(t, collect[*ir.InvokeEmit](p), 2)
	merges := collect[*ir.BinaryFunctionOp](p)
	require.Len(t, merges, 1)
	assert.Equal(t, "streamUnion", merges[0].Fn)
	assert.Equal(t, fns[0].Into, merges[0].LHS)
	assert.Equal(t, fns[1].Into, merges[0].RHS)
	assert.Len(t, collect[*ir.InvokeOutput](p), 1)
}

func TestCrossJoin(t *testing.T) {
	p, _ := compile(t, asttest.Notify(ast.NewJoinTable(asttest.Products(), asttest.Headlines())))
	var fns []string
	for _, op := range collect[*ir.BinaryFunctionOp](p) {
		fns = append(fns, op.Fn)
	}
	assert.Equal(t, []string{"tableCrossJoin"}, fns)
	var keys []string
	for _, get := range collect[*ir.GetKey](p) {
		keys = append(keys, get.Key)
	}
	// Both sides read their outputs, then the merged scope reads every
	// name back from the merged result.
	assert.Subset(t, keys, []string{"name", "price", "title", "link"})
}

func TestNestedLoopJoin(t *testing.T) {
	join := ast.NewJoinTable(asttest.Products(), asttest.Reviews(),
		ast.NewInputParam("product", ast.NewVarRef("name")))
	p, _ := compile(t, asttest.Notify(join))
	queries := collect[*ir.InvokeQuery](p)
	require.Len(t, queries, 2)
	assert.Equal(t, "products", queries[0].Function)
	assert.Equal(t, "reviews", queries[1].Function)
	assert.Empty(t, collect[*ir.AsyncFunctionExpression](p))
	var keys []string
	for _, set := range collect[*ir.SetKey](p) {
		keys = append(keys, set.Key)
	}
	assert.Contains(t, keys, "product")
	assert.Len(t, collect[*ir.CreateObject](p), 3)
}

func TestDatabaseQuery(t *testing.T) {
	schema := asttest.Query("com.shop", "orders", asttest.Out("total", ast.Currency))
	schema.Annotations = map[string]ast.Value{"handle_thingtalk": ast.NewBoolean(true)}
	p, alloc := compile(t, asttest.Notify(asttest.Table(schema)))
	require.Len(t, alloc.ASTs(), 1)
	cmd := alloc.ASTs()[0].Statements[0].(*ast.Command)
	assert.Equal(t, []ast.Action{ast.Notify}, cmd.Actions)
	assert.Empty(t, collect[*ir.InvokeQuery](p))
	db := collect[*ir.InvokeDBQuery](p)
	require.Len(t, db, 1)
	assert.Equal(t, "com.shop", db[0].Kind)
	objects := collect[*ir.GetASTObject](p)
	require.Len(t, objects, 1)
	assert.Equal(t, 0, objects[0].ID)
	assert.Equal(t, objects[0].Into, db[0].Query)
}

func TestCount(t *testing.T) {
	p, _ := compile(t, asttest.Notify(ast.NewAggregationTable(asttest.Products(), "count", "*", "")))
	var adds int
	for _, op := range collect[*ir.BinaryOp](p) {
		if op.Op == "+" {
			adds++
		}
	}
	assert.Equal(t, 1, adds)
	calls := collect[*ir.BinaryFunctionOp](p)
	require.Len(t, calls, 1)
	assert.Equal(t, "aggregateOutputType", calls[0].Fn)
	// The output follows the loop over the child at the top level.
	try := p.Body.Instructions[len(p.Body.Instructions)-1]
	assert.IsType(t, &ir.TryCatch{}, try)
	var keys []string
	for _, set := range collect[*ir.SetKey](p) {
		keys = append(keys, set.Key)
	}
	assert.Equal(t, []string{"count"}, keys)
}

func TestArgMinLowering(t *testing.T) {
	table := ast.NewIndexTable(ast.NewSortTable(asttest.Products(), "price", "asc"), ast.NewNumber(1))
	p, _ := compile(t, asttest.Notify(table))
	calls := collect[*ir.FunctionOp](p)
	var fns []string
	for _, call := range calls {
		fns = append(fns, call.Fn)
	}
	assert.Equal(t, []string{"push", "argminmax"}, fns)
	query := collect[*ir.InvokeQuery](p)
	require.Len(t, query, 1)
	assert.Equal(t, &[2]string{"price", "asc"}, query[0].Hints.Sort)
	require.NotNil(t, query[0].Hints.Limit)
	assert.Equal(t, 1, *query[0].Hints.Limit)
}

func TestRemoteSendEndOfFlow(t *testing.T) {
	schema := asttest.Action(ast.RemoteKind, "send",
		asttest.In("__principal", &ast.Entity{Name: "tt:contact"}),
		asttest.In("__flow", ast.Number),
	)
	send := &ast.InvocationAction{Invocation: ast.NewInvocation(schema.Class, schema.Name, schema,
		ast.NewInputParam("__principal", ast.NewEntity("mock-account:bob", "tt:contact")),
		ast.NewInputParam("__flow", ast.NewNumber(7)),
	)}
	p, _ := compile(t, &ast.Command{Table: asttest.Products(), Actions: []ast.Action{send}})
	assert.Len(t, collect[*ir.InvokeVoidAction](p), 1)
	last := p.Body.Instructions[len(p.Body.Instructions)-1].(*ir.TryCatch)
	assert.Equal(t, "Failed to signal end-of-flow", last.Message)
	eof := collect[*ir.SendEndOfFlow](p)
	require.Len(t, eof, 1)
	assert.NotEqual(t, ir.NoRegister, eof[0].Principal)
	assert.NotEqual(t, ir.NoRegister, eof[0].Flow)
}

func TestActionsKeepScope(t *testing.T) {
	reply := asttest.Action("com.mail", "reply",
		asttest.In("body", ast.String),
		asttest.Out("id", ast.String),
	)
	first := &ast.InvocationAction{Invocation: ast.NewInvocation(reply.Class, reply.Name, reply,
		ast.NewInputParam("body", ast.NewVarRef("name")))}
	second := asttest.Send(ast.NewInputParam("body", ast.NewVarRef("name")))
	p, _ := compile(t, &ast.Command{Table: asttest.Products(), Actions: []ast.Action{first, second}})
	actions := collect[*ir.InvokeAction](p)
	voids := collect[*ir.InvokeVoidAction](p)
	require.Len(t, actions, 1)
	require.Len(t, voids, 1)
	// The second action sits next to the first one, not inside its loop.
	var name []ir.Register
	for _, get := range collect[*ir.GetKey](p) {
		if get.Key == "name" {
			name = append(name, get.Into)
		}
	}
	require.Len(t, name, 1)
	var bodies []ir.Register
	for _, set := range collect[*ir.SetKey](p) {
		if set.Key == "body" {
			bodies = append(bodies, set.Value)
		}
	}
	assert.Equal(t, []ir.Register{name[0], name[0]}, bodies)
	// The reply has results so they are shown to the user.
	assert.Len(t, collect[*ir.InvokeOutput](p), 1)
}

func TestProcedureEmits(t *testing.T) {
	rule, err := semantic.Analyze(asttest.Notify(asttest.Products()))
	require.NoError(t, err)
	b := kernel.NewBuilder(nil, kernel.NewAllocator(), kernel.NewScope(nil), kernel.Options{ForProcedure: true})
	p := b.CompileStatement("proc", rule)
	assert.Empty(t, collect[*ir.InvokeOutput](p))
	assert.Len(t, collect[*ir.InvokeEmit](p), 1)
}

func TestStreamVarRef(t *testing.T) {
	schema := asttest.Query("", "cheap", asttest.In("max", ast.Number), asttest.Out("name", ast.String))
	global := kernel.NewScope(nil)
	global.Set("cheap", &kernel.Entry{
		Kind:     kernel.Declaration,
		Register: ir.NoRegister,
		Schema:   schema,
		Args:     []string{"max"},
	})
	table := ast.NewVarRefTable("cheap", schema, ast.NewInputParam("max", ast.NewNumber(5)))
	rule, err := semantic.Analyze(asttest.Notify(table))
	require.NoError(t, err)
	b := kernel.NewBuilder(nil, kernel.NewAllocator(), global, kernel.Options{})
	p := b.CompileStatement("rule", rule)
	scopes := collect[*ir.GetScope](p)
	require.Len(t, scopes, 1)
	assert.Equal(t, "cheap", scopes[0].Name)
	calls := collect[*ir.InvokeStreamVarRef](p)
	require.Len(t, calls, 1)
	assert.Equal(t, scopes[0].Into, calls[0].Function)
	assert.Len(t, calls[0].Args, 1)
}

func TestDeclarationParams(t *testing.T) {
	b := kernel.NewBuilder(nil, kernel.NewAllocator(), kernel.NewScope(nil), kernel.Options{ForProcedure: true})
	reg := b.DeclareParam("to", &ast.Entity{Name: "tt:email_address"})
	p := b.CompileActionDeclaration("mail", asttest.Send(
		ast.NewInputParam("to", ast.NewVarRef("to")),
		ast.NewInputParam("body", ast.NewString("hi")),
	))
	assert.Equal(t, []ir.Register{reg}, p.Params)
	voids := collect[*ir.InvokeVoidAction](p)
	require.Len(t, voids, 1)
	var to ir.Register = ir.NoRegister
	for _, set := range collect[*ir.SetKey](p) {
		if set.Key == "to" {
			to = set.Value
		}
	}
	assert.Equal(t, reg, to)
	assert.Contains(t, ir.Format(p), "async function mail(__env, __emit, _t_0)")
}

func TestEntityParamsAreStrings(t *testing.T) {
	post := asttest.Action("com.social", "post",
		asttest.In("tag", &ast.Entity{Name: "tt:hashtag"}),
		asttest.In("to", &ast.Entity{Name: "tt:email_address"}),
	)
	action := &ast.InvocationAction{Invocation: ast.NewInvocation(post.Class, post.Name, post,
		ast.NewInputParam("tag", ast.NewEntity("golang", "tt:hashtag")),
		ast.NewInputParam("to", ast.NewEntity("bob@example.com", "tt:email_address")),
	)}
	p, _ := compile(t, &ast.Command{Table: asttest.Products(), Actions: []ast.Action{action}})
	values := make(map[string]ir.Register)
	for _, set := range collect[*ir.SetKey](p) {
		values[set.Key] = set.Value
	}
	var casts []*ir.UnaryOp
	for _, u := range collect[*ir.UnaryOp](p) {
		if u.Op == "String" {
			casts = append(casts, u)
		}
	}
	require.Len(t, casts, 1)
	assert.Equal(t, casts[0].Into, values["tag"])
	assert.Contains(t, ir.Format(p), casts[0].Into.String()+" = String("+casts[0].Arg.String()+");")
	// Other entities keep their display value.
	var constants []ir.Register
	for _, c := range collect[*ir.LoadConstant](p) {
		constants = append(constants, c.Into)
	}
	assert.Contains(t, constants, values["to"])
}
