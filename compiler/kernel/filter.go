package kernel

import (
	"fmt"

	"github.com/brimdata/ruleflow/compiler/ast"
	"github.com/brimdata/ruleflow/compiler/ir"
)

// comparison describes how a filter operator is lowered: either an
// infix operator or a call to a builtin.  Flipped operators swap their
// operands, e.g., "in_array" is "contains" with the array first.
type comparison struct {
	op   string
	fn   string
	flip bool
}

var comparisons = map[string]comparison{
	">":           {op: ">"},
	"<":           {op: "<"},
	">=":          {op: ">="},
	"<=":          {op: "<="},
	"==":          {fn: "equality"},
	"=~":          {fn: "like"},
	"~=":          {fn: "like", flip: true},
	"starts_with": {fn: "startsWith"},
	"ends_with":   {fn: "endsWith"},
	"prefix_of":   {fn: "startsWith", flip: true},
	"suffix_of":   {fn: "endsWith", flip: true},
	"contains":    {fn: "contains"},
	"in_array":    {fn: "contains", flip: true},
	"contains~":   {fn: "containsLike"},
	"in_array~":   {fn: "containsLike", flip: true},
}

// compileFilter returns a register holding the truth value of filter
// evaluated over the tuple described by scope.
func (b *Builder) compileFilter(filter ast.BooleanExpression, scope *Scope) ir.Register {
	cond := b.reg()
	switch f := filter.(type) {
	case *ast.TrueExpr, *ast.DontCare:
		b.add(&ir.LoadConstant{Value: ast.NewBoolean(true), Into: cond})
	case *ast.FalseExpr:
		b.add(&ir.LoadConstant{Value: ast.NewBoolean(false), Into: cond})
	case *ast.And:
		b.add(&ir.LoadConstant{Value: ast.NewBoolean(true), Into: cond})
		for _, operand := range f.Operands {
			b.add(&ir.BinaryOp{LHS: cond, RHS: b.compileFilter(operand, scope), Op: "&&", Into: cond})
		}
	case *ast.Or:
		b.add(&ir.LoadConstant{Value: ast.NewBoolean(false), Into: cond})
		for _, operand := range f.Operands {
			b.add(&ir.BinaryOp{LHS: cond, RHS: b.compileFilter(operand, scope), Op: "||", Into: cond})
		}
	case *ast.Not:
		b.add(&ir.UnaryOp{Arg: b.compileFilter(f.Expr, scope), Op: "!", Into: cond})
	case *ast.Atom:
		entry := scope.Get(f.Name)
		lhs := b.cast(entry.Register, entry.Type, overload(f.Overload, 0))
		rhs := b.compileValue(f.Value, scope)
		rhs = b.cast(rhs, valueType(f.Value, scope), overload(f.Overload, 1))
		b.compareInto(f.Operator, lhs, rhs, cond)
		return b.cast(cond, overload(f.Overload, 2), ast.Boolean)
	case *ast.ComputeExpr:
		lhs := b.compileValue(f.LHS, scope)
		lhs = b.cast(lhs, valueType(f.LHS, scope), overload(f.Overload, 0))
		rhs := b.compileValue(f.RHS, scope)
		rhs = b.cast(rhs, valueType(f.RHS, scope), overload(f.Overload, 1))
		b.compareInto(f.Operator, lhs, rhs, cond)
		return b.cast(cond, overload(f.Overload, 2), ast.Boolean)
	case *ast.External:
		b.compileExternalFilter(f, scope, cond)
	default:
		panic(fmt.Sprintf("kernel: unknown filter %T", filter))
	}
	return cond
}

func (b *Builder) compareInto(operator string, lhs, rhs, into ir.Register) {
	c, ok := comparisons[operator]
	if !ok {
		panic(fmt.Sprintf("kernel: unknown comparison operator %q", operator))
	}
	if c.flip {
		lhs, rhs = rhs, lhs
	}
	if c.fn != "" {
		b.add(&ir.BinaryFunctionOp{LHS: lhs, RHS: rhs, Fn: c.fn, Into: into})
		return
	}
	b.add(&ir.BinaryOp{LHS: lhs, RHS: rhs, Op: c.op, Into: into})
}

// compileExternalFilter sets cond if any result of the get-predicate
// invocation satisfies its filter.  Failures are reported and leave
// cond false.
func (b *Builder) compileExternalFilter(f *ast.External, scope *Scope, cond ir.Register) {
	b.add(&ir.LoadConstant{Value: ast.NewBoolean(false), Into: cond})
	depth := b.ir.SaveStackState()
	b.tryCatch("Failed to invoke get-predicate query")
	inv := f.Invocation
	kind, attrs, fn := b.functionCall(inv)
	bound, args := b.inputParams(inv, nil, scope)
	list := b.reg()
	b.add(&ir.InvokeQuery{
		Kind:     kind,
		Attrs:    attrs,
		Function: fn,
		Into:     list,
		Args:     args,
		Hints: &ir.Hints{
			Projection: ast.ExpressionParameters(f.Filter, inv.Schema),
			Filter:     ir.NoRegister,
		},
	})
	typeAndResult := b.iterate(list)
	_, result := b.readTypeResult(typeAndResult)
	nested := NewScope(b.global)
	for _, arg := range bound {
		nested.Set(arg.name, &Entry{Register: arg.register, Type: inv.Schema.InType(arg.name), Direction: Input})
	}
	for _, arg := range inv.Schema.Outputs() {
		reg := b.reg()
		b.add(&ir.GetKey{Object: result, Key: arg.Name, Into: reg})
		nested.Set(arg.Name, &Entry{Register: reg, Type: arg.Type, Direction: Output})
	}
	ok := b.compileFilter(f.Filter, nested)
	b.ifThen(ok)
	b.add(&ir.LoadConstant{Value: ast.NewBoolean(true), Into: cond})
	b.add(&ir.Break{})
	b.ir.PopTo(depth)
}

func overload(types []ast.Type, k int) ast.Type {
	if k < len(types) {
		return types[k]
	}
	return nil
}

// cast converts the value in reg from one type to another when the
// runtime representations differ.  Unknown types are never cast.
func (b *Builder) cast(reg ir.Register, from, to ast.Type) ir.Register {
	if from == nil || to == nil {
		return reg
	}
	if ast.TypeEqual(from, to) {
		// Devices take these entities as plain strings.
		if ast.IsEntityOf(from, "tt:hashtag") || ast.IsEntityOf(from, "tt:username") || ast.IsEntityOf(from, "tt:picture") {
			return b.unary(reg, "String")
		}
		return reg
	}
	switch {
	case ast.IsString(to):
		return b.unary(reg, "String")
	case ast.IsDate(from) && ast.IsTime(to):
		into := b.reg()
		b.add(&ir.FunctionOp{Fn: "get_time", Into: into, Args: []ir.Register{reg}})
		return into
	case ast.IsNumber(from) && ast.IsCurrency(to):
		code := b.reg()
		b.add(&ir.LoadConstant{Value: ast.NewString(b.opts.DefaultCurrency), Into: code})
		into := b.reg()
		b.add(&ir.FunctionOp{Fn: "get_currency", Into: into, Args: []ir.Register{reg, code}})
		return into
	}
	return reg
}

func (b *Builder) unary(reg ir.Register, op string) ir.Register {
	into := b.reg()
	b.add(&ir.UnaryOp{Arg: reg, Op: op, Into: into})
	return into
}
