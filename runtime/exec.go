package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/brimdata/ruleflow/compiler/ast"
	"github.com/brimdata/ruleflow/compiler/ir"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

var errBreak = errors.New("break outside of a loop")

type emitFunc func(ctx context.Context, outputType, output any) error

// machine runs one function body over its own register file.
type machine struct {
	rctx *Context
	regs []any
	emit emitFunc
}

// Run runs the body of a rule or command until its streams are
// exhausted or rctx is canceled.  Errors raised inside a try block are
// reported to the environment and do not stop the program.
func Run(rctx *Context, prog *ir.Program) error {
	m := &machine{rctx: rctx, regs: make([]any, prog.Registers)}
	err := m.run(rctx, prog.Body)
	if err == errBreak {
		err = nil
	}
	return err
}

// RunProcedure runs the body of a declaration with args bound to its
// parameters and passes each result to emit.
func RunProcedure(ctx context.Context, rctx *Context, prog *ir.Program, args []any, emit func(outputType any, output Row) error) error {
	return runProcedure(ctx, rctx, prog, args, func(_ context.Context, outputType, output any) error {
		return emit(outputType, asRow(output))
	})
}

func runProcedure(ctx context.Context, rctx *Context, prog *ir.Program, args []any, emit emitFunc) error {
	if len(args) > len(prog.Params) {
		return fmt.Errorf("%s: expected %d arguments, got %d", prog.Name, len(prog.Params), len(args))
	}
	m := &machine{rctx: rctx, regs: make([]any, prog.Registers), emit: emit}
	for k, arg := range args {
		m.set(prog.Params[k], arg)
	}
	err := m.run(ctx, prog.Body)
	if err == errBreak {
		err = nil
	}
	return err
}

// closure is the value of an AsyncFunctionExpression.  Each call runs
// over a copy of the registers of the defining body, so that the
// branches of a merge never share a register file.
type closure struct {
	parent *machine
	body   *ir.Block
}

func (c *closure) fork() func(context.Context, emitFunc) error {
	regs := slices.Clone(c.parent.regs)
	return func(ctx context.Context, emit emitFunc) error {
		m := &machine{rctx: c.parent.rctx, regs: regs, emit: emit}
		return m.run(ctx, c.body)
	}
}

type procedure struct {
	prog *ir.Program
}

func (m *machine) get(r ir.Register) any {
	if r < 0 || int(r) >= len(m.regs) {
		return nil
	}
	return m.regs[r]
}

func (m *machine) set(r ir.Register, v any) {
	if r >= 0 && int(r) < len(m.regs) {
		m.regs[r] = v
	}
}

func (m *machine) run(ctx context.Context, b *ir.Block) error {
	if b == nil {
		return nil
	}
	for _, i := range b.Instructions {
		if err := m.exec(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

func (m *machine) exec(ctx context.Context, i ir.Instruction) error {
	env := m.rctx.Env
	switch i := i.(type) {
	case *ir.LoadConstant:
		v, err := FromAST(i.Value)
		if err != nil {
			return err
		}
		m.set(i.Into, v)
	case *ir.Copy:
		m.set(i.To, m.get(i.From))
	case *ir.CreateObject:
		m.set(i.Into, Row{})
	case *ir.CreateTuple:
		m.set(i.Into, make(Tuple, i.Size))
	case *ir.SetKey:
		row, ok := m.get(i.Object).(Row)
		if !ok {
			return fmt.Errorf("cannot set %q of %v", i.Key, m.get(i.Object))
		}
		row[i.Key] = m.get(i.Value)
	case *ir.GetKey:
		row, _ := m.get(i.Object).(Row)
		m.set(i.Into, row[i.Key])
	case *ir.SetIndex:
		tuple, ok := m.get(i.Tuple).(Tuple)
		if !ok || i.Index >= len(tuple) {
			return fmt.Errorf("cannot set index %d of %v", i.Index, m.get(i.Tuple))
		}
		tuple[i.Index] = m.get(i.Value)
	case *ir.GetIndex:
		var v any
		if tuple, ok := m.get(i.Tuple).(Tuple); ok && i.Index < len(tuple) {
			v = tuple[i.Index]
		}
		m.set(i.Into, v)
	case *ir.BinaryOp:
		v, err := binaryOp(i.Op, m.get(i.LHS), m.get(i.RHS))
		if err != nil {
			return err
		}
		m.set(i.Into, v)
	case *ir.UnaryOp:
		v, err := unaryOp(i.Op, m.get(i.Arg))
		if err != nil {
			return err
		}
		m.set(i.Into, v)
	case *ir.BinaryFunctionOp:
		v, err := m.binaryFunction(ctx, i)
		if err != nil {
			return err
		}
		m.set(i.Into, v)
	case *ir.FunctionOp:
		args := make([]any, 0, len(i.Args))
		for _, r := range i.Args {
			args = append(args, m.get(r))
		}
		v, err := callBuiltin(i.Fn, args...)
		if err != nil {
			return err
		}
		m.set(i.Into, v)
	case *ir.MapAndReadField:
		elems, _ := m.get(i.Array).(Tuple)
		out := make(Tuple, 0, len(elems))
		for _, e := range elems {
			row, _ := e.(Row)
			out = append(out, row[i.Field])
		}
		m.set(i.Into, out)
	case *ir.GetEnvironment:
		if i.Name != "program_id" {
			return fmt.Errorf("unknown environment value %q", i.Name)
		}
		m.set(i.Into, env.ProgramID())
	case *ir.FormatEvent:
		s, err := env.FormatEvent(ctx, i.Hint, m.get(i.OutputType), asRow(m.get(i.Output)))
		if err != nil {
			return err
		}
		m.set(i.Into, s)
	case *ir.LoadContext:
		v, err := env.LoadContext(ctx, i.Name, i.Type)
		if err != nil {
			return err
		}
		m.set(i.Into, v)
	case *ir.GetScope:
		prog, ok := m.rctx.Procedures[i.Name]
		if !ok {
			return fmt.Errorf("%q is not declared", i.Name)
		}
		m.set(i.Into, &procedure{prog})
	case *ir.GetASTObject:
		if i.ID < 0 || i.ID >= len(m.rctx.ASTs) {
			return fmt.Errorf("no query with ID %d", i.ID)
		}
		m.set(i.Into, m.rctx.ASTs[i.ID])
	case *ir.Iterator:
		it, err := toIterator(m.get(i.Iterable))
		if err != nil {
			return err
		}
		m.set(i.Into, it)
	case *ir.AsyncWhileLoop:
		return m.loop(ctx, i)
	case *ir.AsyncFunctionExpression:
		m.set(i.Into, &closure{parent: m, body: i.Body})
	case *ir.IfStatement:
		if truthy(m.get(i.Cond)) {
			return m.run(ctx, i.IfTrue)
		}
		return m.run(ctx, i.IfFalse)
	case *ir.TryCatch:
		err := m.run(ctx, i.Try)
		if err == nil || err == errBreak || ctx.Err() != nil {
			return err
		}
		m.rctx.Logger.Warn(i.Message, zap.Error(err))
		env.ReportError(i.Message, err)
	case *ir.Break:
		return errBreak
	case *ir.InvokeMonitor:
		attrs, err := attributes(i.Attrs)
		if err != nil {
			return err
		}
		it, err := env.InvokeMonitor(ctx, i.Kind, attrs, i.Function, asRow(m.get(i.Args)), m.hints(i.Hints))
		if err != nil {
			return err
		}
		m.set(i.Into, it)
	case *ir.InvokeQuery:
		attrs, err := attributes(i.Attrs)
		if err != nil {
			return err
		}
		it, err := env.InvokeQuery(ctx, i.Kind, attrs, i.Function, asRow(m.get(i.Args)), m.hints(i.Hints))
		if err != nil {
			return err
		}
		m.set(i.Into, it)
	case *ir.InvokeDBQuery:
		attrs, err := attributes(i.Attrs)
		if err != nil {
			return err
		}
		query, ok := m.get(i.Query).(*ast.Program)
		if !ok {
			return errors.New("database query is not a program")
		}
		it, err := env.InvokeDBQuery(ctx, i.Kind, attrs, query)
		if err != nil {
			return err
		}
		m.set(i.Into, it)
	case *ir.InvokeAction:
		attrs, err := attributes(i.Attrs)
		if err != nil {
			return err
		}
		it, err := env.InvokeAction(ctx, i.Kind, attrs, i.Function, asRow(m.get(i.Args)))
		if err != nil {
			return err
		}
		m.set(i.Into, it)
	case *ir.InvokeVoidAction:
		attrs, err := attributes(i.Attrs)
		if err != nil {
			return err
		}
		it, err := env.InvokeAction(ctx, i.Kind, attrs, i.Function, asRow(m.get(i.Args)))
		if err != nil {
			return err
		}
		return drain(ctx, it)
	case *ir.InvokeStreamVarRef:
		proc, ok := m.get(i.Function).(*procedure)
		if !ok {
			return errors.New("not a procedure")
		}
		args := make([]any, 0, len(i.Args))
		for _, r := range i.Args {
			args = append(args, m.get(r))
		}
		m.set(i.Into, generate(ctx, m.rctx, func(ctx context.Context, emit emitFunc) error {
			return runProcedure(ctx, m.rctx, proc.prog, args, emit)
		}))
	case *ir.InvokeTimer:
		it, err := env.InvokeTimer(ctx, m.get(i.Base), m.get(i.Interval), m.get(i.Frequency))
		if err != nil {
			return err
		}
		m.set(i.Into, &rowPairs{it})
	case *ir.InvokeAtTimer:
		times, _ := m.get(i.Times).(Tuple)
		it, err := env.InvokeAtTimer(ctx, times, m.get(i.Expiration))
		if err != nil {
			return err
		}
		m.set(i.Into, &rowPairs{it})
	case *ir.InvokeReadState:
		v, err := env.ReadState(ctx, i.State)
		if err != nil {
			return err
		}
		m.set(i.Into, v)
	case *ir.InvokeWriteState:
		return env.WriteState(ctx, i.State, m.get(i.Value))
	case *ir.InvokeOutput:
		return env.Output(ctx, m.get(i.OutputType), asRow(m.get(i.Output)))
	case *ir.InvokeEmit:
		if m.emit == nil {
			return errors.New("emit outside of a function")
		}
		return m.emit(ctx, m.get(i.OutputType), m.get(i.Output))
	case *ir.SendEndOfFlow:
		return env.SendEndOfFlow(ctx, m.get(i.Principal), m.get(i.Flow))
	case *ir.CheckIsNewTuple:
		m.set(i.Into, isNewTuple(m.get(i.State), m.get(i.Tuple), i.Keys))
	case *ir.AddTupleToState:
		m.set(i.Into, addTuple(m.get(i.State), m.get(i.Tuple)))
	default:
		return fmt.Errorf("unknown instruction %T", i)
	}
	return nil
}

func (m *machine) loop(ctx context.Context, loop *ir.AsyncWhileLoop) error {
	it, ok := m.get(loop.Iterator).(Iterator)
	if !ok {
		return errors.New("loop over a value that is not an iterator")
	}
	if c, ok := it.(io.Closer); ok {
		defer c.Close()
	}
	for {
		v, ok, err := it.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		m.set(loop.Into, v)
		if err := m.run(ctx, loop.Body); err != nil {
			if err == errBreak {
				return nil
			}
			return err
		}
	}
}

func (m *machine) binaryFunction(ctx context.Context, i *ir.BinaryFunctionOp) (any, error) {
	switch i.Fn {
	case "streamUnion", "tableCrossJoin":
		lhs, ok1 := m.get(i.LHS).(*closure)
		rhs, ok2 := m.get(i.RHS).(*closure)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%s: arguments are not functions", i.Fn)
		}
		if i.Fn == "streamUnion" {
			return generate(ctx, m.rctx, lhs.fork(), rhs.fork()), nil
		}
		return crossJoin(ctx, lhs.fork(), rhs.fork())
	}
	return callBuiltin(i.Fn, m.get(i.LHS), m.get(i.RHS))
}

func (m *machine) hints(h *ir.Hints) *Hints {
	if h == nil {
		return nil
	}
	out := &Hints{Projection: h.Projection, Sort: h.Sort, Limit: h.Limit}
	if clauses, ok := m.get(h.Filter).(Tuple); ok {
		for _, c := range clauses {
			if clause, ok := c.(Tuple); ok {
				out.Filter = append(out.Filter, clause)
			}
		}
	}
	return out
}

func attributes(attrs map[string]ast.Value) (Row, error) {
	out := make(Row, len(attrs))
	for k, v := range attrs {
		val, err := FromAST(v)
		if err != nil {
			return nil, err
		}
		out[k] = val
	}
	return out, nil
}

func asRow(v any) Row {
	row, _ := v.(Row)
	return row
}

func toIterator(v any) (Iterator, error) {
	switch v := v.(type) {
	case nil:
		return NewSliceIterator(nil), nil
	case Iterator:
		return v, nil
	case Tuple:
		return NewSliceIterator(v), nil
	}
	return nil, fmt.Errorf("%v is not iterable", v)
}

func drain(ctx context.Context, it Iterator) error {
	if c, ok := it.(io.Closer); ok {
		defer c.Close()
	}
	for {
		_, ok, err := it.Next(ctx)
		if err != nil || !ok {
			return err
		}
	}
}

// rowPairs adapts an iterator of rows, such as a timer, to the
// [outputType, row] protocol of invocation results.
type rowPairs struct {
	Iterator
}

func (r *rowPairs) Next(ctx context.Context) (any, bool, error) {
	v, ok, err := r.Iterator.Next(ctx)
	if !ok || err != nil {
		return nil, ok, err
	}
	return Tuple{nil, v}, true, nil
}

func (r *rowPairs) Close() error {
	if c, ok := r.Iterator.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
