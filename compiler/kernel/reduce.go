package kernel

import (
	"fmt"
	"strings"

	"github.com/brimdata/ruleflow/compiler/ast"
	"github.com/brimdata/ruleflow/compiler/ir"
	"github.com/brimdata/ruleflow/compiler/ops"
)

// A reducer lowers a ReduceOp in three steps: init runs before the
// child table, advance runs once per child tuple inside its loop and
// finish runs after the loop and makes the reduced result the current
// scope.
type reducer interface {
	init(b *Builder)
	advance(b *Builder)
	finish(b *Builder)
}

func (b *Builder) compileReduce(op *ops.Reduce) {
	r := newReducer(op)
	r.init(b)
	depth := b.ir.SaveStackState()
	b.compileTable(op.Table)
	r.advance(b)
	b.ir.PopTo(depth)
	r.finish(b)
}

func newReducer(op *ops.Reduce) reducer {
	switch o := op.Op.(type) {
	case *ops.Count:
		return &countReducer{name: aggregateName(op, "count")}
	case *ops.CountDistinct:
		return &countDistinctReducer{name: aggregateName(op, "count"), field: o.Field}
	case *ops.Average:
		return &averageReducer{name: aggregateName(op, o.Field), field: o.Field, typ: o.Type}
	case *ops.SimpleAggregation:
		return &aggregationReducer{name: aggregateName(op, o.Field), operator: o.Operator, field: o.Field, typ: o.Type}
	case *ops.Sort:
		return &sortReducer{field: o.Field, direction: o.Direction}
	case *ops.SimpleIndex:
		return &indexReducer{indices: []ast.Value{o.Index}}
	case *ops.ComplexIndex:
		return &indexReducer{indices: o.Indices}
	case *ops.Slice:
		return &sliceReducer{base: o.Base, limit: o.Limit}
	case *ops.SimpleArgMinMax:
		one := ast.NewNumber(1)
		return &argMinMaxReducer{operator: o.Operator, field: o.Field, base: one, limit: one}
	case *ops.ComplexArgMinMax:
		return &argMinMaxReducer{operator: o.Operator, field: o.Field, base: o.Base, limit: o.Limit}
	default:
		panic(fmt.Sprintf("kernel: unknown reduce operator %T", op.Op))
	}
}

// aggregateName is the output parameter of an aggregation, which the
// typechecker appends after the inputs.
func aggregateName(op *ops.Reduce, fallback string) string {
	if op.AST != nil && op.AST.Signature() != nil {
		if outputs := op.AST.Signature().Outputs(); len(outputs) > 0 {
			return outputs[len(outputs)-1].Name
		}
	}
	return fallback
}

func (b *Builder) constant(v ast.Value) ir.Register {
	reg := b.reg()
	b.add(&ir.LoadConstant{Value: v, Into: reg})
	return reg
}

// aggregateResult makes a single-row result holding value under name the
// current scope.
func (b *Builder) aggregateResult(operator, name string, value ir.Register, typ ast.Type) {
	op := b.constant(ast.NewString(operator))
	outputType := b.reg()
	b.add(&ir.BinaryFunctionOp{LHS: op, RHS: b.special("$outputType"), Fn: "aggregateOutputType", Into: outputType})
	output := b.reg()
	b.add(&ir.CreateObject{Into: output})
	b.add(&ir.SetKey{Object: output, Key: name, Value: value})
	scope := NewScope(b.global)
	scope.Set("$outputType", &Entry{Register: outputType, Direction: Special})
	scope.Set("$output", &Entry{Register: output, Direction: Special})
	scope.Set(name, &Entry{Register: value, Type: typ, Direction: Output, InIdentity: true})
	b.scope = scope
	b.identity = []string{name}
}

type countReducer struct {
	name  string
	count ir.Register
	one   ir.Register
}

func (r *countReducer) init(b *Builder) {
	r.count = b.constant(ast.NewNumber(0))
	r.one = b.constant(ast.NewNumber(1))
}

func (r *countReducer) advance(b *Builder) {
	b.add(&ir.BinaryOp{LHS: r.count, RHS: r.one, Op: "+", Into: r.count})
}

func (r *countReducer) finish(b *Builder) {
	b.aggregateResult("count", r.name, r.count, ast.Number)
}

type countDistinctReducer struct {
	name  string
	field string
	set   ir.Register
}

func (r *countDistinctReducer) init(b *Builder) {
	r.set = b.reg()
	b.add(&ir.FunctionOp{Fn: "newSet", Into: r.set})
}

func (r *countDistinctReducer) advance(b *Builder) {
	b.add(&ir.FunctionOp{Fn: "setAdd", Into: r.set, Args: []ir.Register{r.set, b.scope.Register(r.field)}})
}

func (r *countDistinctReducer) finish(b *Builder) {
	count := b.reg()
	b.add(&ir.FunctionOp{Fn: "setSize", Into: count, Args: []ir.Register{r.set}})
	b.aggregateResult("count", r.name, count, ast.Number)
}

type averageReducer struct {
	name  string
	field string
	typ   ast.Type
	sum   ir.Register
	count ir.Register
	one   ir.Register
}

func (r *averageReducer) init(b *Builder) {
	r.sum = b.constant(ast.NewNumber(0))
	r.count = b.constant(ast.NewNumber(0))
	r.one = b.constant(ast.NewNumber(1))
}

func (r *averageReducer) advance(b *Builder) {
	b.add(&ir.BinaryOp{LHS: r.sum, RHS: b.scope.Register(r.field), Op: "+", Into: r.sum})
	b.add(&ir.BinaryOp{LHS: r.count, RHS: r.one, Op: "+", Into: r.count})
}

func (r *averageReducer) finish(b *Builder) {
	avg := b.reg()
	b.add(&ir.BinaryOp{LHS: r.sum, RHS: r.count, Op: "/", Into: avg})
	b.aggregateResult("avg", r.name, avg, r.typ)
}

// aggregationReducer computes sum, max or min.  Max and min start from
// null, which loses to any value.
type aggregationReducer struct {
	name     string
	operator string
	field    string
	typ      ast.Type
	value    ir.Register
}

func (r *aggregationReducer) init(b *Builder) {
	if r.operator == "sum" {
		r.value = b.constant(ast.NewNumber(0))
		return
	}
	r.value = b.constant(nil)
}

func (r *aggregationReducer) advance(b *Builder) {
	field := b.scope.Register(r.field)
	switch r.operator {
	case "sum":
		b.add(&ir.BinaryOp{LHS: r.value, RHS: field, Op: "+", Into: r.value})
	case "max", "min":
		b.add(&ir.BinaryFunctionOp{LHS: r.value, RHS: field, Fn: r.operator, Into: r.value})
	default:
		panic(fmt.Sprintf("kernel: unknown aggregation %q", r.operator))
	}
}

func (r *aggregationReducer) finish(b *Builder) {
	b.aggregateResult(r.operator, r.name, r.value, r.typ)
}

// collector buffers every tuple of the child table as an
// [outputType, row] pair so that a builtin can reorder or select them
// once the child is exhausted.  The rows hold every parameter in scope,
// inputs included, and are unpacked again by finish.
type collector struct {
	list     ir.Register
	entries  map[string]*Entry
	names    []string
	identity []string
}

func (c *collector) init(b *Builder) {
	c.list = b.reg()
	b.add(&ir.CreateTuple{Size: 0, Into: c.list})
}

func (c *collector) advance(b *Builder) {
	c.entries = make(map[string]*Entry)
	c.names = nil
	row := b.reg()
	b.add(&ir.CreateObject{Into: row})
	for _, name := range b.scope.OwnKeys() {
		if strings.HasPrefix(name, "$") {
			continue
		}
		e := b.scope.Get(name)
		b.add(&ir.SetKey{Object: row, Key: name, Value: e.Register})
		c.entries[name] = e
		c.names = append(c.names, name)
	}
	c.identity = append([]string(nil), b.identity...)
	pair := b.reg()
	b.add(&ir.CreateTuple{Size: 2, Into: pair})
	b.add(&ir.SetIndex{Tuple: pair, Index: 0, Value: b.special("$outputType")})
	b.add(&ir.SetIndex{Tuple: pair, Index: 1, Value: row})
	b.add(&ir.FunctionOp{Fn: "push", Into: c.list, Args: []ir.Register{c.list, pair}})
}

func (c *collector) finish(b *Builder, fn string, args ...ir.Register) {
	selected := b.reg()
	b.add(&ir.FunctionOp{Fn: fn, Into: selected, Args: append([]ir.Register{c.list}, args...)})
	typeAndResult := b.iterate(selected)
	outputType, result := b.readTypeResult(typeAndResult)
	scope := NewScope(b.global)
	scope.Set("$outputType", &Entry{Register: outputType, Direction: Special})
	scope.Set("$output", &Entry{Register: result, Direction: Special})
	for _, name := range c.names {
		e := *c.entries[name]
		e.Register = b.reg()
		b.add(&ir.GetKey{Object: result, Key: name, Into: e.Register})
		scope.Set(name, &e)
	}
	b.scope = scope
	b.identity = c.identity
}

type sortReducer struct {
	collector
	field     string
	direction string
}

func (r *sortReducer) finish(b *Builder) {
	field := b.constant(ast.NewString(r.field))
	direction := b.constant(ast.NewString(r.direction))
	r.collector.finish(b, "sortBy", field, direction)
}

type indexReducer struct {
	collector
	indices []ast.Value
	tuple   ir.Register
}

func (r *indexReducer) init(b *Builder) {
	r.tuple = b.compileValue(&ast.ArrayValue{Elems: r.indices}, b.scope)
	r.collector.init(b)
}

func (r *indexReducer) finish(b *Builder) {
	r.collector.finish(b, "indexArray", r.tuple)
}

type sliceReducer struct {
	collector
	base  ast.Value
	limit ast.Value
	regs  [2]ir.Register
}

func (r *sliceReducer) init(b *Builder) {
	r.regs[0] = b.compileValue(r.base, b.scope)
	r.regs[1] = b.compileValue(r.limit, b.scope)
	r.collector.init(b)
}

func (r *sliceReducer) finish(b *Builder) {
	r.collector.finish(b, "sliceArray", r.regs[0], r.regs[1])
}

// argMinMaxReducer keeps limit tuples starting at the 1-based position
// base of the tuples ordered by field, ascending for argmin and
// descending for argmax.
type argMinMaxReducer struct {
	collector
	operator string
	field    string
	base     ast.Value
	limit    ast.Value
	regs     [2]ir.Register
}

func (r *argMinMaxReducer) init(b *Builder) {
	r.regs[0] = b.compileValue(r.base, b.scope)
	r.regs[1] = b.compileValue(r.limit, b.scope)
	r.collector.init(b)
}

func (r *argMinMaxReducer) finish(b *Builder) {
	field := b.constant(ast.NewString(r.field))
	operator := b.constant(ast.NewString(r.operator))
	r.collector.finish(b, "argminmax", field, operator, r.regs[0], r.regs[1])
}
