// Package ops declares the operator algebra that sits between the typed
// AST and the register IR.  A stream operator produces tuples over time;
// a table operator produces a finite set of tuples each time it is
// evaluated.  Every node points back to the AST node it was compiled
// from, which is where the compiler looks up its signature.
package ops

import (
	"github.com/brimdata/ruleflow/compiler/ast"
)

type StreamOp interface {
	StreamNode()
}

type TableOp interface {
	TableNode()
	Target() *Placement
}

// Placement records where a table can be evaluated as a whole.  Device
// is the common device of every invocation below the node, or nil if
// they differ.  HandleThingTalk is set when that device accepts the
// entire sub-query instead of individual invocations.
type Placement struct {
	Device          *ast.DeviceSelector
	HandleThingTalk bool
}

func (p *Placement) Target() *Placement {
	return p
}

// Stream operators

type (
	// Now is the stream that fires exactly once.
	Now struct{}
	// InvokeStreamVarRef invokes a declared stream.
	InvokeStreamVarRef struct {
		Name     string
		InParams []*ast.InputParam
		AST      ast.Node
		Hints    *Hints
	}
	// InvokeSubscribe monitors a query through the device's
	// subscription mechanism.
	InvokeSubscribe struct {
		Invocation *ast.Invocation
		AST        ast.Node
		Hints      *Hints
	}
	// InvokeTable evaluates Table every time Stream fires with a
	// timestamp newer than the last one seen.
	InvokeTable struct {
		Stream StreamOp
		Table  TableOp
		AST    ast.Node
	}
	Timer struct {
		Base      ast.Value
		Interval  ast.Value
		Frequency ast.Value
		AST       ast.Node
	}
	AtTimer struct {
		Times          []ast.Value
		ExpirationDate ast.Value
		AST            ast.Node
	}
	StreamFilter struct {
		Stream StreamOp
		Filter ast.BooleanExpression
		AST    ast.Node
	}
	StreamMap struct {
		Stream StreamOp
		Op     PointWiseOp
		AST    ast.Node
	}
	// EdgeNew lets through only the tuples that were not part of the
	// previously observed result.
	EdgeNew struct {
		Stream StreamOp
		AST    ast.Node
	}
	// EdgeFilter lets through a tuple when Filter becomes true after
	// having been false.
	EdgeFilter struct {
		Stream StreamOp
		Filter ast.BooleanExpression
		AST    ast.Node
	}
	Union struct {
		LHS StreamOp
		RHS StreamOp
		AST ast.Node
	}
	StreamJoin struct {
		Stream StreamOp
		Table  TableOp
		AST    ast.Node
	}
)

var NowOp = &Now{}

func (*Now) StreamNode()                {}
func (*InvokeStreamVarRef) StreamNode() {}
func (*InvokeSubscribe) StreamNode()    {}
func (*InvokeTable) StreamNode()        {}
func (*Timer) StreamNode()              {}
func (*AtTimer) StreamNode()            {}
func (*StreamFilter) StreamNode()       {}
func (*StreamMap) StreamNode()          {}
func (*EdgeNew) StreamNode()            {}
func (*EdgeFilter) StreamNode()         {}
func (*Union) StreamNode()              {}
func (*StreamJoin) StreamNode()         {}

// Table operators

type (
	InvokeTableVarRef struct {
		Placement
		Name     string
		InParams []*ast.InputParam
		AST      ast.Node
		Hints    *Hints
	}
	// InvokeGet invokes a query.  ExtraInParams are input parameters
	// bound from the left side of an enclosing join.
	InvokeGet struct {
		Placement
		Invocation    *ast.Invocation
		ExtraInParams []*ast.InputParam
		AST           ast.Node
		Hints         *Hints
	}
	TableFilter struct {
		Placement
		Table  TableOp
		Filter ast.BooleanExpression
		AST    ast.Node
	}
	TableMap struct {
		Placement
		Table TableOp
		Op    PointWiseOp
		AST   ast.Node
	}
	Reduce struct {
		Placement
		Table TableOp
		Op    ReduceOp
		AST   ast.Node
	}
	// CrossJoin evaluates both sides independently and combines
	// every pair of results.
	CrossJoin struct {
		Placement
		LHS TableOp
		RHS TableOp
		AST ast.Node
	}
	// NestedLoopJoin evaluates RHS once per result of LHS, with the
	// parameters of RHS bound from that result.
	NestedLoopJoin struct {
		Placement
		LHS TableOp
		RHS TableOp
		AST ast.Node
	}
)

func (*InvokeTableVarRef) TableNode() {}
func (*InvokeGet) TableNode()         {}
func (*TableFilter) TableNode()       {}
func (*TableMap) TableNode()          {}
func (*Reduce) TableNode()            {}
func (*CrossJoin) TableNode()         {}
func (*NestedLoopJoin) TableNode()    {}

// PointWiseOp transforms one tuple at a time.
type PointWiseOp interface {
	PointWiseNode()
}

type (
	Projection struct {
		Args []string
	}
	Compute struct {
		Expression ast.Value
		Alias      string
	}
)

func (*Projection) PointWiseNode() {}
func (*Compute) PointWiseNode()    {}

// Rule is the result of compiling one statement: the stream that drives
// it and the actions to run for every tuple.
type Rule struct {
	Stream    StreamOp
	Actions   []ast.Action
	Statement ast.Statement
}

// SameDevice reports whether two selectors address the same device.
func SameDevice(a, b *ast.DeviceSelector) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Kind == b.Kind && a.ID == b.ID && a.Principal == b.Principal
}

// Join returns the placement of a join of lhs and rhs.
func Join(lhs, rhs TableOp) Placement {
	l, r := lhs.Target(), rhs.Target()
	if !SameDevice(l.Device, r.Device) {
		return Placement{}
	}
	return Placement{
		Device:          l.Device,
		HandleThingTalk: l.HandleThingTalk && r.HandleThingTalk,
	}
}
