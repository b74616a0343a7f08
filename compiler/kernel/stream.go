package kernel

import (
	"fmt"

	"github.com/brimdata/ruleflow/compiler/ast"
	"github.com/brimdata/ruleflow/compiler/ir"
	"github.com/brimdata/ruleflow/compiler/ops"
)

func (b *Builder) compileStream(op ops.StreamOp) {
	switch op := op.(type) {
	case *ops.Now:
		// Fires once: the body runs at the top level of the function.
	case *ops.InvokeStreamVarRef:
		b.tryCatch("Failed to invoke stream")
		b.invokeVarRef(op.Name, op.InParams)
	case *ops.InvokeSubscribe:
		b.tryCatch("Failed to invoke trigger")
		inv := op.Invocation
		kind, attrs, fn := b.functionCall(inv)
		bound, args := b.inputParams(inv, nil, b.scope)
		hints := b.hints(inv.Schema, op.Hints)
		iter := b.reg()
		b.add(&ir.InvokeMonitor{
			Kind:     kind,
			Attrs:    attrs,
			Function: fn,
			Into:     iter,
			Args:     args,
			Hints:    hints,
		})
		typeAndResult := b.loop(iter)
		b.setInvocationOutputs(inv.Schema, bound, typeAndResult)
	case *ops.Timer:
		b.tryCatch("Failed to invoke timer")
		base := b.optionalValue(op.Base)
		interval := b.optionalValue(op.Interval)
		frequency := b.optionalValue(op.Frequency)
		iter := b.reg()
		b.add(&ir.InvokeTimer{Into: iter, Base: base, Interval: interval, Frequency: frequency})
		typeAndResult := b.loop(iter)
		b.setInvocationOutputs(op.AST.Signature(), nil, typeAndResult)
	case *ops.AtTimer:
		b.tryCatch("Failed to invoke at-timer")
		times := b.compileValue(&ast.ArrayValue{Elems: op.Times, Type: &ast.Array{Elem: ast.Time}}, b.scope)
		expiration := b.optionalValue(op.ExpirationDate)
		iter := b.reg()
		b.add(&ir.InvokeAtTimer{Into: iter, Times: times, Expiration: expiration})
		typeAndResult := b.loop(iter)
		b.setInvocationOutputs(op.AST.Signature(), nil, typeAndResult)
	case *ops.StreamFilter:
		b.compileStream(op.Stream)
		b.ifThen(b.compileFilter(op.Filter, b.scope))
	case *ops.StreamMap:
		b.compileStream(op.Stream)
		b.compilePointWise(op.Op)
	case *ops.EdgeNew:
		b.compileEdgeNew(op)
	case *ops.EdgeFilter:
		b.compileEdgeFilter(op)
	case *ops.InvokeTable:
		b.compileInvokeTable(op)
	case *ops.Union:
		lhs, lhsScope := b.asyncFunction(func() { b.compileStream(op.LHS) })
		rhs, rhsScope := b.asyncFunction(func() { b.compileStream(op.RHS) })
		b.merge(lhs, rhs, "streamUnion", lhsScope, rhsScope)
	case *ops.StreamJoin:
		if _, ok := op.Stream.(*ops.Now); ok {
			b.compileTable(op.Table)
			return
		}
		b.compileStream(op.Stream)
		streamScope := b.scope
		b.compileTable(op.Table)
		tableScope := b.scope
		outputType, result := b.mergeResults(streamScope, tableScope)
		b.mergeScopes(streamScope, tableScope, outputType, result)
	default:
		panic(fmt.Sprintf("kernel: unknown stream operator %T", op))
	}
}

func (b *Builder) optionalValue(v ast.Value) ir.Register {
	if v == nil {
		return ir.NoRegister
	}
	return b.compileValue(v, b.scope)
}

// compileEdgeNew lets a tuple through only if no tuple with the same
// identity was seen in the previous round.  The state holds the tuples
// of the previous round.
func (b *Builder) compileEdgeNew(op *ops.EdgeNew) {
	state := b.reg()
	id := b.alloc.AllocState()
	b.add(&ir.InvokeReadState{Into: state, State: id})
	b.compileStream(op.Stream)
	isNew := b.reg()
	output := b.scope.Register("$output")
	b.add(&ir.CheckIsNewTuple{
		Into:  isNew,
		State: state,
		Tuple: output,
		Keys:  append([]string(nil), b.identity...),
	})
	newState := b.reg()
	b.add(&ir.AddTupleToState{Into: newState, State: state, Tuple: output})
	b.add(&ir.InvokeWriteState{Value: newState, State: id})
	b.add(&ir.Copy{From: newState, To: state})
	b.ifThen(isNew)
}

// compileEdgeFilter lets a tuple through when the filter holds and did
// not hold for the previous tuple.  The state holds the previous value
// of the filter and is only written when it changes.
func (b *Builder) compileEdgeFilter(op *ops.EdgeFilter) {
	id := b.alloc.AllocState()
	b.compileStream(op.Stream)
	state := b.reg()
	b.add(&ir.InvokeReadState{Into: state, State: id})
	cond := b.compileFilter(op.Filter, b.scope)
	changed := b.reg()
	b.add(&ir.BinaryOp{LHS: state, RHS: cond, Op: "!==", Into: changed})
	depth := b.ir.SaveStackState()
	b.ifThen(changed)
	b.add(&ir.InvokeWriteState{Value: cond, State: id})
	b.ir.PopTo(depth)
	wasFalse := b.reg()
	b.add(&ir.UnaryOp{Arg: state, Op: "!", Into: wasFalse})
	rising := b.reg()
	b.add(&ir.BinaryOp{LHS: cond, RHS: wasFalse, Op: "&&", Into: rising})
	b.ifThen(rising)
}

// compileInvokeTable evaluates the table once per stream tuple whose
// timestamp is newer than the last one processed.
func (b *Builder) compileInvokeTable(op *ops.InvokeTable) {
	state := b.reg()
	id := b.alloc.AllocState()
	b.add(&ir.InvokeReadState{Into: state, State: id})
	b.compileStream(op.Stream)
	timestamp := b.reg()
	b.add(&ir.GetKey{Object: b.scope.Register("$output"), Key: "__timestamp", Into: timestamp})
	old := b.reg()
	b.add(&ir.BinaryOp{LHS: timestamp, RHS: state, Op: "<=", Into: old})
	isNew := b.reg()
	b.add(&ir.UnaryOp{Arg: old, Op: "!", Into: isNew})
	b.ifThen(isNew)
	b.add(&ir.InvokeWriteState{Value: timestamp, State: id})
	b.add(&ir.Copy{From: timestamp, To: state})
	b.compileTable(op.Table)
}

// asyncFunction compiles body into a function expression that emits
// every result and returns the register holding the function and the
// scope the body ended with.  The body starts from, and the caller gets
// back, the scope of the caller.
func (b *Builder) asyncFunction(body func()) (ir.Register, *Scope) {
	restore := b.saveScope()
	defer restore()
	fn := b.reg()
	expr := &ir.AsyncFunctionExpression{Into: fn, Body: &ir.Block{}}
	b.add(expr)
	depth := b.ir.PushBlock(expr.Body)
	body()
	b.emit()
	scope := b.scope
	b.ir.PopTo(depth)
	return fn, scope
}

// merge runs the builtin combinator over two function expressions and
// iterates the merged results.
func (b *Builder) merge(lhs, rhs ir.Register, combinator string, lhsScope, rhsScope *Scope) {
	iter := b.reg()
	b.add(&ir.BinaryFunctionOp{LHS: lhs, RHS: rhs, Fn: combinator, Into: iter})
	typeAndResult := b.loop(iter)
	outputType, result := b.readTypeResult(typeAndResult)
	b.mergeScopes(lhsScope, rhsScope, outputType, result)
}
