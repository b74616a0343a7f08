package kernel

import (
	"fmt"

	"github.com/brimdata/ruleflow/compiler/ast"
	"github.com/brimdata/ruleflow/compiler/ir"
)

func (b *Builder) compileValue(v ast.Value, scope *Scope) ir.Register {
	switch v := v.(type) {
	case *ast.Undefined:
		panic("kernel: undefined value must be slot-filled before compilation")
	case *ast.Event:
		return b.compileEvent(v.Name, scope)
	case *ast.VarRef:
		return scope.Register(v.Name)
	case *ast.Computation:
		return b.compileComputation(v, scope)
	case *ast.ArrayField:
		array := b.compileValue(v.Value, scope)
		into := b.reg()
		b.add(&ir.MapAndReadField{Into: into, Array: array, Field: v.Field})
		return into
	case *ast.ContextRef:
		into := b.reg()
		b.add(&ir.LoadContext{Name: v.Name, Type: v.Type, Into: into})
		return into
	case *ast.ArrayValue:
		tuple := b.reg()
		b.add(&ir.CreateTuple{Size: len(v.Elems), Into: tuple})
		for k, elem := range v.Elems {
			b.add(&ir.SetIndex{Tuple: tuple, Index: k, Value: b.compileValue(elem, scope)})
		}
		return tuple
	case nil:
		panic("kernel: nil value")
	default:
		into := b.reg()
		b.add(&ir.LoadConstant{Value: v, Into: into})
		return into
	}
}

// compileEvent lowers the $event family: $event.type is the output type
// of the current tuple, $event.program_id comes from the environment and
// anything else is the formatted event.
func (b *Builder) compileEvent(name string, scope *Scope) ir.Register {
	switch name {
	case "type":
		return specialOf(scope, "$outputType")
	case "program_id":
		into := b.reg()
		b.add(&ir.GetEnvironment{Name: "program_id", Into: into})
		return into
	}
	hint := "string"
	if name != "" {
		hint = "string-" + name
	}
	into := b.reg()
	b.add(&ir.FormatEvent{
		Hint:       hint,
		OutputType: specialOf(scope, "$outputType"),
		Output:     specialOf(scope, "$output"),
		Into:       into,
	})
	return into
}

func (b *Builder) compileComputation(v *ast.Computation, scope *Scope) ir.Register {
	args := make([]ir.Register, 0, len(v.Operands))
	for k, operand := range v.Operands {
		reg := b.compileValue(operand, scope)
		args = append(args, b.cast(reg, valueType(operand, scope), overload(v.Overload, k)))
	}
	into := b.reg()
	switch v.Op {
	case "+", "-", "*", "/", "%", "**":
		if len(args) != 2 {
			panic(fmt.Sprintf("kernel: operator %q takes two operands", v.Op))
		}
		b.add(&ir.BinaryOp{LHS: args[0], RHS: args[1], Op: v.Op, Into: into})
	default:
		b.add(&ir.FunctionOp{Fn: v.Op, Into: into, Args: args})
	}
	return into
}

// valueType returns the type of v, resolving references against scope.
func valueType(v ast.Value, scope *Scope) ast.Type {
	switch v := v.(type) {
	case *ast.VarRef:
		if e, ok := scope.Lookup(v.Name); ok {
			return e.Type
		}
		return nil
	case *ast.Undefined:
		return nil
	}
	return ast.TypeOf(v)
}
