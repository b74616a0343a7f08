package kernel

import (
	"fmt"
	"strings"

	"github.com/brimdata/ruleflow/compiler/ast"
	"github.com/brimdata/ruleflow/compiler/ir"
	"github.com/brimdata/ruleflow/compiler/ops"
)

func (b *Builder) compileTable(op ops.TableOp) {
	if p := op.Target(); p.HandleThingTalk && p.Device != nil {
		b.compileDatabaseQuery(op)
		return
	}
	switch op := op.(type) {
	case *ops.InvokeTableVarRef:
		b.tryCatch("Failed to invoke query")
		b.invokeVarRef(op.Name, op.InParams)
	case *ops.InvokeGet:
		b.tryCatch("Failed to invoke query")
		inv := op.Invocation
		kind, attrs, fn := b.functionCall(inv)
		bound, args := b.inputParams(inv, op.ExtraInParams, b.scope)
		hints := b.hints(inv.Schema, op.Hints)
		list := b.reg()
		b.add(&ir.InvokeQuery{
			Kind:     kind,
			Attrs:    attrs,
			Function: fn,
			Into:     list,
			Args:     args,
			Hints:    hints,
		})
		typeAndResult := b.iterate(list)
		b.setInvocationOutputs(inv.Schema, bound, typeAndResult)
	case *ops.TableFilter:
		b.compileTable(op.Table)
		b.ifThen(b.compileFilter(op.Filter, b.scope))
	case *ops.TableMap:
		b.compileTable(op.Table)
		b.compilePointWise(op.Op)
	case *ops.Reduce:
		b.compileReduce(op)
	case *ops.CrossJoin:
		lhs, lhsScope := b.asyncFunction(func() { b.compileTable(op.LHS) })
		rhs, rhsScope := b.asyncFunction(func() { b.compileTable(op.RHS) })
		b.merge(lhs, rhs, "tableCrossJoin", lhsScope, rhsScope)
	case *ops.NestedLoopJoin:
		b.compileTable(op.LHS)
		lhsScope := b.scope
		b.compileTable(op.RHS)
		rhsScope := b.scope
		outputType, result := b.mergeResults(lhsScope, rhsScope)
		b.mergeScopes(lhsScope, rhsScope, outputType, result)
	default:
		panic(fmt.Sprintf("kernel: unknown table operator %T", op))
	}
}

// compileDatabaseQuery hands the whole sub-query to a device that
// evaluates it natively.  The query travels as an AST object: a command
// that notifies the table.
func (b *Builder) compileDatabaseQuery(op ops.TableOp) {
	b.tryCatch("Failed to invoke query")
	node := tableAST(op)
	device := op.Target().Device
	attrs := make(map[string]ast.Value)
	if device.ID != "" {
		attrs["id"] = ast.NewString(device.ID)
	}
	id := b.alloc.AllocAST(&ast.Program{
		Statements: []ast.Statement{
			&ast.Command{Table: node, Actions: []ast.Action{ast.Notify}},
		},
	})
	query := b.reg()
	b.add(&ir.GetASTObject{ID: id, Into: query})
	list := b.reg()
	b.add(&ir.InvokeDBQuery{Kind: device.Kind, Attrs: attrs, Into: list, Query: query})
	typeAndResult := b.iterate(list)
	b.setInvocationOutputs(node.Signature(), nil, typeAndResult)
}

func tableAST(op ops.TableOp) ast.Table {
	var node ast.Node
	switch op := op.(type) {
	case *ops.InvokeTableVarRef:
		node = op.AST
	case *ops.InvokeGet:
		node = op.AST
	case *ops.TableFilter:
		node = op.AST
	case *ops.TableMap:
		node = op.AST
	case *ops.Reduce:
		node = op.AST
	case *ops.CrossJoin:
		node = op.AST
	case *ops.NestedLoopJoin:
		node = op.AST
	}
	t, ok := node.(ast.Table)
	if !ok {
		panic(fmt.Sprintf("kernel: table operator %T has no table AST", op))
	}
	return t
}

func (b *Builder) compilePointWise(op ops.PointWiseOp) {
	switch op := op.(type) {
	case *ops.Projection:
		b.compileProjection(op.Args)
	case *ops.Compute:
		reg := b.compileValue(op.Expression, b.scope)
		b.add(&ir.SetKey{Object: b.scope.Register("$output"), Key: op.Alias, Value: reg})
		b.scope.Set(op.Alias, &Entry{
			Register:  reg,
			Type:      valueType(op.Expression, b.scope),
			Direction: Output,
		})
	default:
		panic(fmt.Sprintf("kernel: unknown point-wise operator %T", op))
	}
}

// compileProjection builds a new result object holding only args.  The
// inputs of the current tuple stay in scope.  A compound name a.b.c is
// stored under placeholder objects for a and a.b.
func (b *Builder) compileProjection(args []string) {
	old := b.scope
	scope := NewScope(b.global)
	scope.Set("$outputType", old.Get("$outputType"))
	output := b.reg()
	b.add(&ir.CreateObject{Into: output})
	scope.Set("$output", &Entry{Register: output, Direction: Special})
	for _, name := range old.OwnKeys() {
		if e := old.Get(name); e.Direction == Input {
			scope.Set(name, e)
		}
	}
	placeholders := make(map[string]ir.Register)
	for _, name := range args {
		entry := b.projectedEntry(old, name)
		parent := output
		parts := strings.Split(name, ".")
		for k := range parts[:len(parts)-1] {
			prefix := strings.Join(parts[:k+1], ".")
			obj, ok := placeholders[prefix]
			if !ok {
				obj = b.reg()
				b.add(&ir.CreateObject{Into: obj})
				b.add(&ir.SetKey{Object: parent, Key: parts[k], Value: obj})
				placeholders[prefix] = obj
			}
			parent = obj
		}
		b.add(&ir.SetKey{Object: parent, Key: parts[len(parts)-1], Value: entry.Register})
		scope.Set(name, entry)
	}
	b.scope = scope
	b.identity = append([]string(nil), args...)
}

func (b *Builder) projectedEntry(scope *Scope, name string) *Entry {
	if e, ok := scope.Lookup(name); ok {
		entry := *e
		entry.InIdentity = true
		return &entry
	}
	// Compound fields are not unpacked from results; read them through
	// the result object.
	reg := scope.Register("$output")
	for _, part := range strings.Split(name, ".") {
		next := b.reg()
		b.add(&ir.GetKey{Object: reg, Key: part, Into: next})
		reg = next
	}
	return &Entry{Register: reg, Direction: Output, InIdentity: true}
}

// mergeResults builds the result of a join from the results of its two
// sides.  Values of rhs win on name conflicts.
func (b *Builder) mergeResults(lhs, rhs *Scope) (ir.Register, ir.Register) {
	lhsType := specialOf(lhs, "$outputType")
	rhsType := specialOf(rhs, "$outputType")
	outputType := lhsType
	switch {
	case lhsType == ir.NoRegister:
		outputType = rhsType
	case rhsType != ir.NoRegister:
		outputType = b.reg()
		b.add(&ir.BinaryFunctionOp{LHS: lhsType, RHS: rhsType, Fn: "combineOutputTypes", Into: outputType})
	}
	result := b.reg()
	b.add(&ir.CreateObject{Into: result})
	for _, scope := range []*Scope{lhs, rhs} {
		for _, name := range scope.OwnKeys() {
			if strings.HasPrefix(name, "$") {
				continue
			}
			b.add(&ir.SetKey{Object: result, Key: name, Value: scope.Register(name)})
		}
	}
	return outputType, result
}

// mergeScopes makes the merged result of a join or union the current
// scope, reading every name of both sides back from result.
func (b *Builder) mergeScopes(lhs, rhs *Scope, outputType, result ir.Register) {
	scope := NewScope(b.global)
	scope.Set("$outputType", &Entry{Register: outputType, Direction: Special})
	scope.Set("$output", &Entry{Register: result, Direction: Special})
	for _, side := range []*Scope{lhs, rhs} {
		for _, name := range side.OwnKeys() {
			if strings.HasPrefix(name, "$") {
				continue
			}
			e := *side.Get(name)
			e.Register = b.reg()
			b.add(&ir.GetKey{Object: result, Key: name, Into: e.Register})
			scope.Set(name, &e)
		}
	}
	b.identity = nil
	for _, name := range scope.OwnKeys() {
		if scope.Get(name).InIdentity {
			b.identity = append(b.identity, name)
		}
	}
	b.scope = scope
}
