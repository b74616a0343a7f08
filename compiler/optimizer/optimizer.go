// Package optimizer rewrites operator trees after semantic analysis.
// Rewrites never modify their input: each returns a new tree, so
// optimizing a tree twice yields the same tree as optimizing it once.
package optimizer

import (
	"fmt"

	"github.com/brimdata/ruleflow/compiler/ops"
)

// OptimizeStream collapses nested EdgeNew operators and nested
// projections.  When the rule has no output action, projections are
// dropped entirely since nothing reads the projected fields.
func OptimizeStream(op ops.StreamOp, hasOutputAction bool) ops.StreamOp {
	switch op := op.(type) {
	case *ops.Now, *ops.InvokeStreamVarRef, *ops.InvokeSubscribe, *ops.Timer, *ops.AtTimer:
		return op
	case *ops.EdgeNew:
		child := OptimizeStream(op.Stream, hasOutputAction)
		if _, ok := child.(*ops.EdgeNew); ok {
			return child
		}
		return &ops.EdgeNew{Stream: child, AST: op.AST}
	case *ops.StreamMap:
		child := OptimizeStream(op.Stream, hasOutputAction)
		if isProjection(op.Op) {
			if !hasOutputAction {
				return child
			}
			// the outer projection subsumes the inner one
			for {
				inner, ok := child.(*ops.StreamMap)
				if !ok || !isProjection(inner.Op) {
					break
				}
				child = inner.Stream
			}
		}
		return &ops.StreamMap{Stream: child, Op: op.Op, AST: op.AST}
	case *ops.StreamFilter:
		return &ops.StreamFilter{
			Stream: OptimizeStream(op.Stream, hasOutputAction),
			Filter: op.Filter,
			AST:    op.AST,
		}
	case *ops.EdgeFilter:
		return &ops.EdgeFilter{
			Stream: OptimizeStream(op.Stream, hasOutputAction),
			Filter: op.Filter,
			AST:    op.AST,
		}
	case *ops.InvokeTable:
		return &ops.InvokeTable{
			Stream: OptimizeStream(op.Stream, hasOutputAction),
			Table:  OptimizeTable(op.Table, hasOutputAction),
			AST:    op.AST,
		}
	case *ops.StreamJoin:
		return &ops.StreamJoin{
			Stream: OptimizeStream(op.Stream, hasOutputAction),
			Table:  OptimizeTable(op.Table, hasOutputAction),
			AST:    op.AST,
		}
	case *ops.Union:
		return &ops.Union{
			LHS: OptimizeStream(op.LHS, hasOutputAction),
			RHS: OptimizeStream(op.RHS, hasOutputAction),
			AST: op.AST,
		}
	default:
		panic(fmt.Sprintf("unknown stream operator %T", op))
	}
}

// OptimizeTable applies the projection rewrites of OptimizeStream to a
// table.
func OptimizeTable(op ops.TableOp, hasOutputAction bool) ops.TableOp {
	switch op := op.(type) {
	case *ops.InvokeTableVarRef, *ops.InvokeGet:
		return op
	case *ops.TableMap:
		child := OptimizeTable(op.Table, hasOutputAction)
		if isProjection(op.Op) {
			if !hasOutputAction {
				return child
			}
			for {
				inner, ok := child.(*ops.TableMap)
				if !ok || !isProjection(inner.Op) {
					break
				}
				child = inner.Table
			}
		}
		return &ops.TableMap{Placement: op.Placement, Table: child, Op: op.Op, AST: op.AST}
	case *ops.TableFilter:
		return &ops.TableFilter{
			Placement: op.Placement,
			Table:     OptimizeTable(op.Table, hasOutputAction),
			Filter:    op.Filter,
			AST:       op.AST,
		}
	case *ops.Reduce:
		return &ops.Reduce{
			Placement: op.Placement,
			Table:     OptimizeTable(op.Table, hasOutputAction),
			Op:        op.Op,
			AST:       op.AST,
		}
	case *ops.CrossJoin:
		return &ops.CrossJoin{
			Placement: op.Placement,
			LHS:       OptimizeTable(op.LHS, hasOutputAction),
			RHS:       OptimizeTable(op.RHS, hasOutputAction),
			AST:       op.AST,
		}
	case *ops.NestedLoopJoin:
		return &ops.NestedLoopJoin{
			Placement: op.Placement,
			LHS:       OptimizeTable(op.LHS, hasOutputAction),
			RHS:       OptimizeTable(op.RHS, hasOutputAction),
			AST:       op.AST,
		}
	default:
		panic(fmt.Sprintf("unknown table operator %T", op))
	}
}

func isProjection(op ops.PointWiseOp) bool {
	_, ok := op.(*ops.Projection)
	return ok
}
