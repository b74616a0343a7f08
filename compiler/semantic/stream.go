package semantic

import (
	"fmt"

	"github.com/brimdata/ruleflow/compiler/ast"
	"github.com/brimdata/ruleflow/compiler/ops"
)

// CompileStream translates a stream into a stream operator.  The
// parameters that each step needs are added to the projection hint
// before the step's child is compiled so that leaf invocations can
// project early.
func CompileStream(s ast.Stream, hints *ops.Hints) (ops.StreamOp, error) {
	switch s := s.(type) {
	case *ast.AliasStream:
		return nil, notImplemented("alias of stream")
	case *ast.VarRefStream:
		return &ops.InvokeStreamVarRef{Name: s.Name, InParams: s.InParams, AST: s, Hints: hints}, nil
	case *ast.TimerStream:
		return &ops.Timer{Base: s.Base, Interval: s.Interval, Frequency: s.Frequency, AST: s}, nil
	case *ast.AtTimerStream:
		return &ops.AtTimer{Times: s.Times, ExpirationDate: s.ExpirationDate, AST: s}, nil
	case *ast.MonitorStream:
		c := hints.Clone()
		// Monitoring specific fields only needs those fields, otherwise
		// every output is compared.
		if s.Args != nil {
			c.Projection.AddAll(s.Args)
		} else {
			c.Projection.AddAll(s.Signature().OutputNames())
		}
		return compileMonitor(s.Table, c)
	case *ast.EdgeNewStream:
		op, err := CompileStream(s.Stream, hints.Clone())
		if err != nil {
			return nil, err
		}
		return &ops.EdgeNew{Stream: op, AST: s}, nil
	case *ast.EdgeFilterStream:
		c := hints.Clone()
		c.Projection.AddAll(ast.ExpressionParameters(s.Filter, s.Signature()))
		// The filter is not pushed down: if the subscription applied it
		// the edge would go unnoticed.
		op, err := CompileStream(s.Stream, c)
		if err != nil {
			return nil, err
		}
		return &ops.EdgeFilter{Stream: op, Filter: s.Filter, AST: s}, nil
	case *ast.FilterStream:
		c := hints.Clone()
		c.Projection.AddAll(ast.ExpressionParameters(s.Filter, s.Signature()))
		c.Filter = ast.NewAnd(s.Filter, hints.Filter)
		op, err := CompileStream(s.Stream, c)
		if err != nil {
			return nil, err
		}
		return &ops.StreamFilter{Stream: op, Filter: s.Filter, AST: s}, nil
	case *ast.ProjectionStream:
		// The projection is applied for real, not only hinted, which is
		// safe because every parameter used by an enclosing filter has
		// already been added to the projection hint.
		effective := effectiveProjection(hints, s.Args, s.Signature())
		c := hints.Clone()
		c.Projection = effective
		c.Filter = hints.Filter
		op, err := CompileStream(s.Stream, c)
		if err != nil {
			return nil, err
		}
		return &ops.StreamMap{Stream: op, Op: &ops.Projection{Args: effective.Sorted()}, AST: s}, nil
	case *ast.ComputeStream:
		compute := computeOp(s.Expression, s.Alias)
		c := hints.Clone()
		delete(c.Projection, compute.Alias)
		c.Projection.AddAll(ast.ExpressionParameters(s.Expression, s.Stream.Signature()))
		c.Filter = restrictFilter(hints.Filter, s.Stream.Signature())
		op, err := CompileStream(s.Stream, c)
		if err != nil {
			return nil, err
		}
		return &ops.StreamMap{Stream: op, Op: compute, AST: s}, nil
	case *ast.JoinStream:
		stream, err := CompileStream(s.Stream, restrictHintsForJoin(hints, s.Stream.Signature()))
		if err != nil {
			return nil, err
		}
		table, err := CompileTable(s.Table, s.InParams, restrictHintsForJoin(hints, s.Table.Signature()))
		if err != nil {
			return nil, err
		}
		return &ops.StreamJoin{Stream: stream, Table: table, AST: s}, nil
	default:
		panic(fmt.Sprintf("unknown stream %T", s))
	}
}

// compileMonitor pushes a monitor down through t.  Monitoring is not a
// primitive of a table, so each step becomes its streaming analogue and
// steps that can make fewer results new are wrapped in EdgeNew.
func compileMonitor(t ast.Table, hints *ops.Hints) (ops.StreamOp, error) {
	switch t := t.(type) {
	case *ast.VarRefTable:
		return nil, notImplemented("monitor of query reference")
	case *ast.AliasTable:
		return nil, notImplemented("monitor of alias")
	case *ast.InvocationTable:
		// subscriptions are optimistic so EdgeNew is still needed
		return &ops.EdgeNew{
			Stream: &ops.InvokeSubscribe{Invocation: t.Invocation, AST: t, Hints: hints},
			AST:    t,
		}, nil
	case *ast.FilterTable:
		c := hints.Clone()
		c.Projection.AddAll(ast.ExpressionParameters(t.Filter, t.Signature()))
		c.Filter = ast.NewAnd(t.Filter, hints.Filter)
		op, err := compileMonitor(t.Table, c)
		if err != nil {
			return nil, err
		}
		return &ops.StreamFilter{Stream: op, Filter: t.Filter, AST: t}, nil
	case *ast.ProjectionTable:
		effective := effectiveProjection(hints, t.Args, t.Signature())
		c := hints.Clone()
		c.Projection = effective
		c.Filter = hints.Filter
		op, err := compileMonitor(t.Table, c)
		if err != nil {
			return nil, err
		}
		return &ops.EdgeNew{
			Stream: &ops.StreamMap{Stream: op, Op: &ops.Projection{Args: effective.Sorted()}, AST: t},
			AST:    t,
		}, nil
	case *ast.SortTable:
		return compileMonitor(t.Table, hints)
	case *ast.IndexTable:
		return compileMonitor(t.Table, hints)
	case *ast.SliceTable:
		return compileMonitor(t.Table, hints)
	case *ast.ComputeTable:
		compute := computeOp(t.Expression, t.Alias)
		c := hints.Clone()
		delete(c.Projection, compute.Alias)
		c.Projection.AddAll(ast.ExpressionParameters(t.Expression, t.Table.Signature()))
		c.Filter = restrictFilter(hints.Filter, t.Table.Signature())
		op, err := compileMonitor(t.Table, c)
		if err != nil {
			return nil, err
		}
		return &ops.EdgeNew{
			Stream: &ops.StreamMap{Stream: op, Op: compute, AST: t},
			AST:    t,
		}, nil
	case *ast.AggregationTable:
		// Subscribe to the inner table and fetch it again in full
		// every time it changes.
		h := aggregationHints(t)
		stream, err := compileMonitor(t.Table, h)
		if err != nil {
			return nil, err
		}
		table, err := CompileTable(t, nil, h)
		if err != nil {
			return nil, err
		}
		return &ops.EdgeNew{
			Stream: &ops.InvokeTable{Stream: stream, Table: table, AST: t},
			AST:    t,
		}, nil
	case *ast.JoinTable:
		if len(t.InParams) != 0 {
			// This needs a subscription to the right side that is
			// updated every time the left side fires.
			return nil, notImplemented("monitor of join with parameter passing")
		}
		lhs, err := compileMonitor(t.LHS, restrictHintsForJoin(hints, t.LHS.Signature()))
		if err != nil {
			return nil, err
		}
		rhs, err := compileMonitor(t.RHS, restrictHintsForJoin(hints, t.RHS.Signature()))
		if err != nil {
			return nil, err
		}
		return &ops.EdgeNew{
			Stream: &ops.Union{LHS: lhs, RHS: rhs, AST: t},
			AST:    t,
		}, nil
	default:
		panic(fmt.Sprintf("unknown table %T", t))
	}
}

func computeOp(expr ast.Value, alias string) *ops.Compute {
	if alias == "" {
		alias = ast.ScalarExpressionName(expr)
	}
	return &ops.Compute{Expression: expr, Alias: alias}
}

// aggregationHints discards all hints across an aggregation except a
// projection on the aggregated field.
func aggregationHints(t *ast.AggregationTable) *ops.Hints {
	if t.Field == "*" {
		return ops.NewHints(nil)
	}
	return ops.NewHints(ops.NewFieldSet(t.Field))
}
