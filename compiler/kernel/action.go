package kernel

import (
	"fmt"

	"github.com/brimdata/ruleflow/compiler/ast"
	"github.com/brimdata/ruleflow/compiler/ir"
)

// compileAction runs action for the current tuple.  Actions do not
// change the scope seen by the actions after them.
func (b *Builder) compileAction(action ast.Action) {
	restore := b.saveScope()
	defer restore()
	depth := b.ir.SaveStackState()
	defer b.ir.PopTo(depth)
	b.tryCatch("Failed to invoke action")
	switch a := action.(type) {
	case *ast.NotifyAction:
		if a.Name == "return" {
			panic("kernel: return must be lowered before compilation")
		}
		b.output()
	case *ast.VarRefAction:
		b.invokeVarRef(a.Name, a.InParams)
		if !b.opts.ForProcedure {
			b.output()
		}
	case *ast.InvocationAction:
		if b.invokeAction(a.Invocation) && !b.opts.ForProcedure {
			b.output()
		}
	default:
		panic(fmt.Sprintf("kernel: unknown action %T", action))
	}
}

// invokeAction calls an action and reports whether it produces results,
// in which case the builder is left inside the loop over them.
func (b *Builder) invokeAction(inv *ast.Invocation) bool {
	kind, attrs, fn := b.functionCall(inv)
	bound, args := b.inputParams(inv, nil, b.scope)
	if !inv.Schema.HasAnyOutputArg() {
		b.add(&ir.InvokeVoidAction{Kind: kind, Attrs: attrs, Function: fn, Args: args})
		return false
	}
	list := b.reg()
	b.add(&ir.InvokeAction{Kind: kind, Attrs: attrs, Function: fn, Into: list, Args: args})
	typeAndResult := b.iterate(list)
	b.setInvocationOutputs(inv.Schema, bound, typeAndResult)
	return true
}

func (b *Builder) output() {
	outputType, output := b.special("$outputType"), b.special("$output")
	if b.opts.ForProcedure {
		b.add(&ir.InvokeEmit{OutputType: outputType, Output: output})
		return
	}
	b.add(&ir.InvokeOutput{OutputType: outputType, Output: output})
}

// compileEndOfFlow tells the remote principal of a send action that the
// flow is complete.  It runs once, after the stream is exhausted.
func (b *Builder) compileEndOfFlow(action ast.Action) {
	a, ok := action.(*ast.InvocationAction)
	if !ok || !ast.IsRemoteSend(a.Invocation) {
		return
	}
	depth := b.ir.SaveStackState()
	defer b.ir.PopTo(depth)
	b.tryCatch("Failed to signal end-of-flow")
	principal, flow := ir.NoRegister, ir.NoRegister
	for _, p := range a.Invocation.InParams {
		switch p.Name {
		case "__principal":
			principal = b.compileValue(p.Value, b.scope)
		case "__flow":
			flow = b.compileValue(p.Value, b.scope)
		}
	}
	b.add(&ir.SendEndOfFlow{Principal: principal, Flow: flow})
}
