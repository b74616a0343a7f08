package semantic

import (
	"fmt"

	"github.com/brimdata/ruleflow/compiler/ast"
	"github.com/brimdata/ruleflow/compiler/ops"
)

// CompileTable translates a table into a table operator.  extra holds
// input parameters bound by an enclosing join; they are passed to the
// invocations that declare them.
func CompileTable(t ast.Table, extra []*ast.InputParam, hints *ops.Hints) (ops.TableOp, error) {
	switch t := t.(type) {
	case *ast.AliasTable:
		return nil, notImplemented("alias of query")
	case *ast.VarRefTable:
		params := append(append([]*ast.InputParam{}, t.InParams...), extra...)
		return &ops.InvokeTableVarRef{Name: t.Name, InParams: params, AST: t, Hints: hints}, nil
	case *ast.InvocationTable:
		return &ops.InvokeGet{
			Placement: ops.Placement{
				Device:          t.Invocation.Selector,
				HandleThingTalk: t.Signature().HandleThingTalk(),
			},
			Invocation:    t.Invocation,
			ExtraInParams: extra,
			AST:           t,
			Hints:         hints,
		}, nil
	case *ast.FilterTable:
		c := hints.Clone()
		c.Projection.AddAll(ast.ExpressionParameters(t.Filter, t.Signature()))
		c.Filter = ast.NewAnd(t.Filter, hints.Filter)
		// Filtering preserves order but not cardinality.
		c.Sort = hints.Sort
		child, err := CompileTable(t.Table, extra, c)
		if err != nil {
			return nil, err
		}
		return &ops.TableFilter{Placement: *child.Target(), Table: child, Filter: t.Filter, AST: t}, nil
	case *ast.ProjectionTable:
		effective := effectiveProjection(hints, t.Args, t.Signature())
		c := hints.Clone()
		c.Projection = effective
		c.Filter = hints.Filter
		hints.CarryOrder(c)
		child, err := CompileTable(t.Table, extra, c)
		if err != nil {
			return nil, err
		}
		return &ops.TableMap{
			Placement: *child.Target(),
			Table:     child,
			Op:        &ops.Projection{Args: effective.Sorted()},
			AST:       t,
		}, nil
	case *ast.ComputeTable:
		compute := computeOp(t.Expression, t.Alias)
		c := hints.Clone()
		delete(c.Projection, compute.Alias)
		c.Projection.AddAll(ast.ExpressionParameters(t.Expression, t.Table.Signature()))
		c.Filter = restrictFilter(hints.Filter, t.Table.Signature())
		carryOrder(hints, c, t.Table.Signature())
		child, err := CompileTable(t.Table, extra, c)
		if err != nil {
			return nil, err
		}
		return &ops.TableMap{Placement: *child.Target(), Table: child, Op: compute, AST: t}, nil
	case *ast.AggregationTable:
		child, err := CompileTable(t.Table, extra, aggregationHints(t))
		if err != nil {
			return nil, err
		}
		return &ops.Reduce{Placement: *child.Target(), Table: child, Op: aggregationOp(t), AST: t}, nil
	case *ast.IndexTable:
		return compileIndex(t, extra, hints)
	case *ast.SliceTable:
		return compileSlice(t, extra, hints)
	case *ast.SortTable:
		c := hints.Clone()
		c.SetSort(t.Field, t.Direction)
		child, err := CompileTable(t.Table, extra, c)
		if err != nil {
			return nil, err
		}
		return &ops.Reduce{
			Placement: *child.Target(),
			Table:     child,
			Op:        &ops.Sort{Field: t.Field, Direction: t.Direction},
			AST:       t,
		}, nil
	case *ast.JoinTable:
		return compileJoin(t, extra, hints)
	default:
		panic(fmt.Sprintf("unknown table %T", t))
	}
}

func aggregationOp(t *ast.AggregationTable) ops.ReduceOp {
	typ := t.Table.Signature().ArgType(t.Field)
	switch {
	case t.Operator == "count" && t.Field == "*":
		return &ops.Count{}
	case t.Operator == "count":
		return &ops.CountDistinct{Field: t.Field}
	case t.Operator == "avg":
		return &ops.Average{Field: t.Field, Type: typ}
	default:
		return &ops.SimpleAggregation{Operator: t.Operator, Field: t.Field, Type: typ}
	}
}

// compileIndex converts a sort followed by a single constant index into
// an argmin or argmax.  A lone constant positive index fetches just
// enough elements; any other index is evaluated in full.
func compileIndex(t *ast.IndexTable, extra []*ast.InputParam, hints *ops.Hints) (ops.TableOp, error) {
	var index *ast.NumberValue
	if len(t.Indices) == 1 {
		index, _ = t.Indices[0].(*ast.NumberValue)
	}
	c := hints.Clone()
	var op ops.ReduceOp
	child := t.Table
	if sort, ok := t.Table.(*ast.SortTable); ok && index != nil {
		child = sort.Table
		c.SetSort(sort.Field, sort.Direction)
		if index.Value == 1 || index.Value == -1 {
			minmax := "argmax"
			if (index.Value == 1) == (sort.Direction == "asc") {
				minmax = "argmin"
			}
			if index.Value == -1 {
				// The last element comes first in the opposite order.
				c.SetSort(sort.Field, reverse(sort.Direction))
			}
			c.SetLimit(1)
			op = &ops.SimpleArgMinMax{Operator: minmax, Field: sort.Field}
		} else {
			minmax := "argmax"
			if sort.Direction == "asc" {
				minmax = "argmin"
			}
			// Index [n] needs the first n elements.  Devices that honor
			// limit must also honor sort for this to be correct.
			if index.Value > 0 {
				c.SetLimit(int(index.Value))
			}
			op = &ops.ComplexArgMinMax{
				Operator: minmax,
				Field:    sort.Field,
				Base:     index,
				Limit:    ast.NewNumber(1),
			}
		}
	} else if index != nil && index.Value > 0 {
		c.SetLimit(int(index.Value))
		op = &ops.SimpleIndex{Index: index}
	} else {
		op = &ops.ComplexIndex{Indices: t.Indices}
	}
	compiled, err := CompileTable(child, extra, c)
	if err != nil {
		return nil, err
	}
	return &ops.Reduce{Placement: *compiled.Target(), Table: compiled, Op: op, AST: t}, nil
}

// compileSlice converts a sort followed by a slice into an argmin or
// argmax.  Slice [base:limit] is 1-based so it needs the first
// base-1+limit elements when both are constant.
func compileSlice(t *ast.SliceTable, extra []*ast.InputParam, hints *ops.Hints) (ops.TableOp, error) {
	c := hints.Clone()
	base, baseOK := t.Base.(*ast.NumberValue)
	limit, limitOK := t.Limit.(*ast.NumberValue)
	// A base counted from the end needs every element.
	if baseOK && limitOK && base.Value >= 1 && limit.Value >= 0 {
		c.SetLimit(int(base.Value) - 1 + int(limit.Value))
	}
	var op ops.ReduceOp
	child := t.Table
	if sort, ok := t.Table.(*ast.SortTable); ok {
		child = sort.Table
		c.SetSort(sort.Field, sort.Direction)
		minmax := "argmax"
		if sort.Direction == "asc" {
			minmax = "argmin"
		}
		op = &ops.ComplexArgMinMax{Operator: minmax, Field: sort.Field, Base: t.Base, Limit: t.Limit}
	} else {
		op = &ops.Slice{Base: t.Base, Limit: t.Limit}
	}
	compiled, err := CompileTable(child, extra, c)
	if err != nil {
		return nil, err
	}
	return &ops.Reduce{Placement: *compiled.Target(), Table: compiled, Op: op, AST: t}, nil
}

func reverse(direction string) string {
	if direction == "asc" {
		return "desc"
	}
	return "asc"
}

// compileJoin evaluates a join without parameter passing as a cross join
// of independent branches.  With parameter passing the right side is
// evaluated once per left result and the extra parameters are split by
// which side declares them.
func compileJoin(t *ast.JoinTable, extra []*ast.InputParam, hints *ops.Hints) (ops.TableOp, error) {
	lhsHints := restrictHintsForJoin(hints, t.LHS.Signature())
	rhsHints := restrictHintsForJoin(hints, t.RHS.Signature())
	if len(t.InParams) == 0 {
		lhs, err := CompileTable(t.LHS, extra, lhsHints)
		if err != nil {
			return nil, err
		}
		rhs, err := CompileTable(t.RHS, extra, rhsHints)
		if err != nil {
			return nil, err
		}
		return &ops.CrossJoin{Placement: ops.Join(lhs, rhs), LHS: lhs, RHS: rhs, AST: t}, nil
	}
	var lhsExtra, rhsExtra []*ast.InputParam
	for _, p := range extra {
		if t.LHS.Signature().IsInput(p.Name) {
			lhsExtra = append(lhsExtra, p)
		}
		if t.RHS.Signature().IsInput(p.Name) {
			rhsExtra = append(rhsExtra, p)
		}
	}
	lhs, err := CompileTable(t.LHS, lhsExtra, lhsHints)
	if err != nil {
		return nil, err
	}
	rhs, err := CompileTable(t.RHS, append(rhsExtra, t.InParams...), rhsHints)
	if err != nil {
		return nil, err
	}
	return &ops.NestedLoopJoin{Placement: ops.Join(lhs, rhs), LHS: lhs, RHS: rhs, AST: t}, nil
}
