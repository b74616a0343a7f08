package kernel

import (
	"strings"

	"github.com/brimdata/ruleflow/compiler/ast"
	"github.com/brimdata/ruleflow/compiler/ir"
	"github.com/brimdata/ruleflow/compiler/ops"
	"go.uber.org/zap"
)

type boundArg struct {
	name     string
	register ir.Register
}

// functionCall returns the device kind, selector attributes and function
// name an invocation dispatches to.
func (b *Builder) functionCall(inv *ast.Invocation) (string, map[string]ast.Value, string) {
	sel := inv.EffectiveSelector
	if sel == nil {
		b.logger.Warn("invocation without effective selector", zap.Stringer("invocation", inv))
		sel = inv.Selector
	}
	attrs := make(map[string]ast.Value)
	if sel.ID != "" {
		attrs["id"] = ast.NewString(sel.ID)
	}
	for _, p := range sel.Attributes {
		attrs[p.Name] = p.Value
	}
	return sel.Kind, attrs, inv.Channel
}

// inputParams builds the argument object of an invocation.  Every value
// is cast to the declared type of its parameter.
func (b *Builder) inputParams(inv *ast.Invocation, extra []*ast.InputParam, scope *Scope) ([]boundArg, ir.Register) {
	args := b.reg()
	b.add(&ir.CreateObject{Into: args})
	var bound []boundArg
	params := append(append([]*ast.InputParam(nil), inv.InParams...), extra...)
	for _, p := range params {
		reg := b.compileValue(p.Value, scope)
		reg = b.cast(reg, valueType(p.Value, scope), inv.Schema.InType(p.Name))
		b.add(&ir.SetKey{Object: args, Key: p.Name, Value: reg})
		bound = append(bound, boundArg{name: p.Name, register: reg})
	}
	return bound, args
}

// setInvocationOutputs makes the result of an invocation the current
// scope.  Bound inputs keep the registers they were passed in; optional
// inputs that were not passed and all outputs are read from the result.
// Outputs form the identity of the tuple.
func (b *Builder) setInvocationOutputs(schema *ast.FunctionDef, bound []boundArg, typeAndResult ir.Register) {
	outputType, result := b.readTypeResult(typeAndResult)
	scope := NewScope(b.global)
	scope.Set("$outputType", &Entry{Register: outputType, Direction: Special})
	scope.Set("$output", &Entry{Register: result, Direction: Special})
	b.identity = nil
	passed := make(map[string]bool)
	for _, arg := range bound {
		passed[arg.name] = true
		scope.Set(arg.name, &Entry{
			Register:  arg.register,
			Type:      schema.InType(arg.name),
			Direction: Input,
		})
	}
	for _, arg := range schema.Args {
		if arg.Direction == ast.InOpt && !passed[arg.Name] && !strings.Contains(arg.Name, ".") {
			b.readResultKey(scope, result, arg.Name, arg.Type, Input, false)
		}
	}
	if !schema.HasArgument("__response") {
		b.readResultKey(scope, result, "__response", ast.String, Output, false)
	}
	for _, arg := range schema.Outputs() {
		if strings.Contains(arg.Name, ".") {
			continue
		}
		b.readResultKey(scope, result, arg.Name, arg.Type, Output, true)
		b.identity = append(b.identity, arg.Name)
	}
	b.scope = scope
}

func (b *Builder) readResultKey(scope *Scope, result ir.Register, name string, typ ast.Type, dir Direction, identity bool) {
	reg := b.reg()
	b.add(&ir.GetKey{Object: result, Key: name, Into: reg})
	scope.Set(name, &Entry{
		Register:   reg,
		Type:       typ,
		Direction:  dir,
		InIdentity: identity,
	})
}

// hints compiles the hints of an invocation.  Only non-list queries are
// given just a projection; list queries also get the top-level atoms of
// the filter whose values can be computed before the invocation, and the
// sort and limit.
func (b *Builder) hints(schema *ast.FunctionDef, h *ops.Hints) *ir.Hints {
	if h == nil {
		return &ir.Hints{Filter: ir.NoRegister}
	}
	out := &ir.Hints{
		Projection: h.Projection.Sorted(),
		Filter:     ir.NoRegister,
	}
	if !schema.IsList {
		return out
	}
	if h.Sort != nil {
		out.Sort = &[2]string{h.Sort.Field, h.Sort.Direction}
	}
	out.Limit = h.Limit
	if h.Filter == nil {
		return out
	}
	var clauses []ast.BooleanExpression
	switch f := ast.OptimizeFilter(h.Filter).(type) {
	case *ast.And:
		clauses = f.Operands
	default:
		clauses = []ast.BooleanExpression{f}
	}
	var atoms []*ast.Atom
	for _, clause := range clauses {
		if atom, ok := clause.(*ast.Atom); ok && computable(atom.Value, b.scope) {
			atoms = append(atoms, atom)
		}
	}
	if len(atoms) == 0 {
		return out
	}
	filter := b.reg()
	b.add(&ir.CreateTuple{Size: len(atoms), Into: filter})
	for k, atom := range atoms {
		clause := &ast.ArrayValue{Elems: []ast.Value{
			ast.NewString(atom.Name),
			ast.NewString(atom.Operator),
			atom.Value,
		}}
		b.add(&ir.SetIndex{Tuple: filter, Index: k, Value: b.compileValue(clause, b.scope)})
	}
	out.Filter = filter
	return out
}

// computable reports whether v can be evaluated in scope, i.e., before
// the invocation whose result it might refer to.
func computable(v ast.Value, scope *Scope) bool {
	switch v := v.(type) {
	case *ast.VarRef:
		return scope.Has(v.Name)
	case *ast.Event:
		return scope.Has("$output")
	case *ast.Undefined:
		return false
	case *ast.Computation:
		for _, o := range v.Operands {
			if !computable(o, scope) {
				return false
			}
		}
	case *ast.ArrayValue:
		for _, e := range v.Elems {
			if !computable(e, scope) {
				return false
			}
		}
	case *ast.ArrayField:
		return computable(v.Value, scope)
	}
	return true
}

// invokeVarRef calls the procedure bound to name and iterates its
// results.  Arguments are passed positionally in the declared order;
// missing ones are null.
func (b *Builder) invokeVarRef(name string, params []*ast.InputParam) {
	decl := b.scope.Get(name)
	if decl.Kind == Assignment {
		b.readAssignment(decl)
		return
	}
	if decl.Kind != Declaration {
		panic("kernel: " + name + " is not a declaration")
	}
	fn := b.reg()
	b.add(&ir.GetScope{Name: name, Into: fn})
	values := make(map[string]*ast.InputParam)
	for _, p := range params {
		values[p.Name] = p
	}
	var bound []boundArg
	args := make([]ir.Register, 0, len(decl.Args))
	for _, arg := range decl.Args {
		p, ok := values[arg]
		if !ok {
			args = append(args, ir.NoRegister)
			continue
		}
		reg := b.compileValue(p.Value, b.scope)
		reg = b.cast(reg, valueType(p.Value, b.scope), decl.Schema.ArgType(arg))
		args = append(args, reg)
		bound = append(bound, boundArg{name: arg, register: reg})
	}
	iter := b.reg()
	b.add(&ir.InvokeStreamVarRef{Function: fn, Into: iter, Args: args})
	typeAndResult := b.loop(iter)
	b.setInvocationOutputs(decl.Schema, bound, typeAndResult)
}

// readAssignment loops over the results stored by an assignment.
func (b *Builder) readAssignment(e *Entry) {
	list := b.reg()
	b.add(&ir.InvokeReadState{Into: list, State: e.State})
	typeAndResult := b.iterate(list)
	b.setInvocationOutputs(e.Schema, nil, typeAndResult)
}
