// Package kernel lowers operator trees into register programs.  A Builder
// compiles one function body: a statement, or the body of a declared
// stream, query or action.  Every tuple flowing through a stream is
// processed inside the loop that produced it, so lowering a stream
// operator leaves the IR builder positioned in the innermost block where
// the current tuple is available in registers described by the current
// scope.
package kernel

import (
	"github.com/brimdata/ruleflow/compiler/ast"
	"github.com/brimdata/ruleflow/compiler/ir"
	"github.com/brimdata/ruleflow/compiler/ops"
	"go.uber.org/zap"
)

// Allocator hands out persistent state slots and AST objects.  It is
// shared by all the builders of one compiled program so that ids are
// unique across rules and declarations.
type Allocator struct {
	states int
	asts   []*ast.Program
}

func NewAllocator() *Allocator {
	return &Allocator{}
}

func (a *Allocator) AllocState() int {
	id := a.states
	a.states++
	return id
}

func (a *Allocator) AllocAST(p *ast.Program) int {
	a.asts = append(a.asts, p)
	return len(a.asts) - 1
}

// States returns the number of state slots allocated so far.
func (a *Allocator) States() int {
	return a.states
}

func (a *Allocator) ASTs() []*ast.Program {
	return a.asts
}

type Options struct {
	// ForProcedure makes results go to the emit callback of the
	// enclosing procedure instead of the user.
	ForProcedure bool
	// DefaultCurrency is the currency code of numbers cast to
	// Currency.
	DefaultCurrency string
}

type Builder struct {
	logger   *zap.Logger
	alloc    *Allocator
	opts     Options
	ir       *ir.Builder
	global   *Scope
	scope    *Scope
	identity []string
	params   []ir.Register
}

// NewBuilder returns a builder whose global scope is a child of global,
// which holds the declarations visible to the body.
func NewBuilder(logger *zap.Logger, alloc *Allocator, global *Scope, opts Options) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	scope := NewScope(global)
	return &Builder{
		logger: logger,
		alloc:  alloc,
		opts:   opts,
		ir:     ir.NewBuilder(),
		global: scope,
		scope:  scope,
	}
}

// DeclareParam binds an argument of the procedure being compiled to a
// fresh register.
func (b *Builder) DeclareParam(name string, typ ast.Type) ir.Register {
	reg := b.ir.AllocRegister()
	b.global.Set(name, &Entry{
		Kind:      Scalar,
		Register:  reg,
		Type:      typ,
		Direction: Input,
	})
	b.params = append(b.params, reg)
	return reg
}

// CompileStatement lowers a rule: the stream, then every action inside
// the innermost loop, then the end-of-flow signals once the stream is
// exhausted.
func (b *Builder) CompileStatement(name string, rule *ops.Rule) *ir.Program {
	b.logger.Debug("compile statement", zap.String("name", name), zap.String("stream", ops.Format(rule.Stream)))
	b.compileStream(rule.Stream)
	for _, action := range rule.Actions {
		b.compileAction(action)
	}
	b.ir.PopAll()
	for _, action := range rule.Actions {
		b.compileEndOfFlow(action)
	}
	return b.ir.Program(name, b.params...)
}

func (b *Builder) CompileStreamDeclaration(name string, op ops.StreamOp) *ir.Program {
	b.logger.Debug("compile stream declaration", zap.String("name", name))
	b.compileStream(op)
	b.emit()
	return b.ir.Program(name, b.params...)
}

func (b *Builder) CompileQueryDeclaration(name string, op ops.TableOp) *ir.Program {
	b.logger.Debug("compile query declaration", zap.String("name", name))
	b.compileTable(op)
	b.emit()
	return b.ir.Program(name, b.params...)
}

func (b *Builder) CompileActionDeclaration(name string, action ast.Action) *ir.Program {
	b.logger.Debug("compile action declaration", zap.String("name", name))
	b.compileAction(action)
	b.ir.PopAll()
	b.compileEndOfFlow(action)
	return b.ir.Program(name, b.params...)
}

// CompileAssignment lowers an assignment of a query.  The results are
// collected in a list written to a fresh state slot, which is returned
// along with the program.
func (b *Builder) CompileAssignment(name string, op ops.TableOp) (*ir.Program, int) {
	b.logger.Debug("compile assignment", zap.String("name", name), zap.String("table", ops.Format(op)))
	return b.collect(name, func() {
		b.compileTable(op)
	})
}

// CompileActionAssignment is like CompileAssignment for an action with
// results.
func (b *Builder) CompileActionAssignment(name string, inv *ast.Invocation) (*ir.Program, int) {
	b.logger.Debug("compile action assignment", zap.String("name", name))
	return b.collect(name, func() {
		b.tryCatch("Failed to invoke action")
		b.invokeAction(inv)
	})
}

func (b *Builder) collect(name string, compile func()) (*ir.Program, int) {
	list := b.reg()
	b.add(&ir.CreateTuple{Size: 0, Into: list})
	compile()
	pair := b.reg()
	b.add(&ir.CreateTuple{Size: 2, Into: pair})
	b.add(&ir.SetIndex{Tuple: pair, Index: 0, Value: b.special("$outputType")})
	b.add(&ir.SetIndex{Tuple: pair, Index: 1, Value: b.special("$output")})
	b.add(&ir.FunctionOp{Fn: "push", Into: list, Args: []ir.Register{list, pair}})
	b.ir.PopAll()
	state := b.alloc.AllocState()
	b.add(&ir.InvokeWriteState{Value: list, State: state})
	return b.ir.Program(name, b.params...), state
}

func (b *Builder) reg() ir.Register {
	return b.ir.AllocRegister()
}

func (b *Builder) add(i ir.Instruction) {
	b.ir.Add(i)
}

// special returns the register of $outputType or $output, or NoRegister
// when the current scope has no result, e.g., for a command without a
// table.
func (b *Builder) special(name string) ir.Register {
	return specialOf(b.scope, name)
}

func specialOf(scope *Scope, name string) ir.Register {
	if e, ok := scope.Lookup(name); ok {
		return e.Register
	}
	return ir.NoRegister
}

func (b *Builder) emit() {
	b.add(&ir.InvokeEmit{
		OutputType: b.special("$outputType"),
		Output:     b.special("$output"),
	})
}

// tryCatch opens a try block that stays open until the enclosing
// block is popped.
func (b *Builder) tryCatch(message string) {
	t := &ir.TryCatch{Message: message, Try: &ir.Block{}}
	b.add(t)
	b.ir.PushBlock(t.Try)
}

// ifThen opens the true branch of a conditional on cond.
func (b *Builder) ifThen(cond ir.Register) {
	stmt := &ir.IfStatement{Cond: cond, IfTrue: &ir.Block{}, IfFalse: &ir.Block{}}
	b.add(stmt)
	b.ir.PushBlock(stmt.IfTrue)
}

// iterate loops over the iterable in list and returns the register that
// holds the [outputType, result] pair of each element.
func (b *Builder) iterate(list ir.Register) ir.Register {
	iter := b.reg()
	b.add(&ir.Iterator{Into: iter, Iterable: list})
	return b.loop(iter)
}

func (b *Builder) loop(iter ir.Register) ir.Register {
	typeAndResult := b.reg()
	loop := &ir.AsyncWhileLoop{Into: typeAndResult, Iterator: iter, Body: &ir.Block{}}
	b.add(loop)
	b.ir.PushBlock(loop.Body)
	return typeAndResult
}

func (b *Builder) readTypeResult(typeAndResult ir.Register) (ir.Register, ir.Register) {
	outputType := b.reg()
	b.add(&ir.GetIndex{Tuple: typeAndResult, Index: 0, Into: outputType})
	result := b.reg()
	b.add(&ir.GetIndex{Tuple: typeAndResult, Index: 1, Into: result})
	return outputType, result
}

func (b *Builder) saveScope() func() {
	scope, identity := b.scope, b.identity
	return func() {
		b.scope, b.identity = scope, identity
	}
}
