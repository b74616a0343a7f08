package semantic

import (
	"github.com/brimdata/ruleflow/compiler/ast"
	"github.com/brimdata/ruleflow/compiler/ops"
)

// restrictHintsForJoin lowers the hints of a join to one side of it.
// The projection keeps only the parameters of schema and any part of the
// filter that mentions a parameter schema lacks degrades to true.  Sort
// and limit never cross a join.
func restrictHintsForJoin(hints *ops.Hints, schema *ast.FunctionDef) *ops.Hints {
	c := ops.NewHints(nil)
	for name := range hints.Projection {
		if schema.HasArgument(name) {
			c.Projection.Add(name)
		}
	}
	c.Filter = restrictFilter(hints.Filter, schema)
	return c
}

// restrictFilter weakens e so that it only mentions parameters of
// schema.  Only subexpressions in positive position are replaced with
// true so the result is implied by e.
func restrictFilter(e ast.BooleanExpression, schema *ast.FunctionDef) ast.BooleanExpression {
	switch e := e.(type) {
	case *ast.TrueExpr, *ast.FalseExpr:
		return e
	case *ast.DontCare:
		return ast.True
	case *ast.And:
		operands := make([]ast.BooleanExpression, 0, len(e.Operands))
		for _, o := range e.Operands {
			operands = append(operands, restrictFilter(o, schema))
		}
		return ast.OptimizeFilter(ast.NewAnd(operands...))
	case *ast.Or:
		operands := make([]ast.BooleanExpression, 0, len(e.Operands))
		for _, o := range e.Operands {
			operands = append(operands, restrictFilter(o, schema))
		}
		return ast.OptimizeFilter(ast.NewOr(operands...))
	case *ast.Atom:
		if !schema.HasArgument(e.Name) || !allDefined(e.Value, schema) {
			return ast.True
		}
		return e
	case *ast.Not, *ast.ComputeExpr:
		for _, name := range ast.ExpressionParameters(e, nil) {
			if !schema.HasArgument(name) {
				return ast.True
			}
		}
		return e
	default:
		// get-predicates are never pushed down
		return ast.True
	}
}

func allDefined(v ast.Value, schema *ast.FunctionDef) bool {
	for _, name := range ast.ExpressionParameters(v, nil) {
		if !schema.HasArgument(name) {
			return false
		}
	}
	return true
}

// carryOrder copies sort and limit from h to c unless the sort key is
// not a parameter of schema, in which case the child cannot order its
// results and neither hint applies.
func carryOrder(h, c *ops.Hints, schema *ast.FunctionDef) {
	if h.Sort != nil && !schema.HasArgument(h.Sort.Field) {
		return
	}
	h.CarryOrder(c)
}
