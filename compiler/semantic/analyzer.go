package semantic

import (
	"fmt"

	"github.com/brimdata/ruleflow/compiler/ast"
	"github.com/brimdata/ruleflow/compiler/ops"
	"github.com/brimdata/ruleflow/compiler/optimizer"
	rfe "github.com/brimdata/ruleflow/errors"
)

// UnsupportedError names a construct that compiles to no operator tree.
// It is always wrapped in an rfe.NotImplemented error.
type UnsupportedError struct {
	Construct string
}

func (u *UnsupportedError) Error() string {
	return u.Construct
}

func notImplemented(construct string) error {
	return rfe.E(rfe.NotImplemented, &UnsupportedError{Construct: construct})
}

// Analyze translates a typed statement into a rule: the stream that
// drives the statement, with hints pushed down to every invocation, and
// the actions to run for each tuple.  The stream is optimized before it
// is returned.
func Analyze(stmt ast.Statement) (*ops.Rule, error) {
	schema := ast.StatementSchema(stmt)
	projection := ops.NewFieldSet()
	var hasOutputAction bool
	if schema != nil {
		for _, action := range stmt.StatementActions() {
			switch action := action.(type) {
			case *ast.NotifyAction:
				hasOutputAction = true
				projection.AddAll(ast.DefaultProjection(schema))
			case *ast.InvocationAction:
				addParams(projection, action.Invocation.InParams, schema)
			case *ast.VarRefAction:
				addParams(projection, action.InParams, schema)
			default:
				panic(fmt.Sprintf("unknown action %T", action))
			}
		}
	}
	// Without a declared default projection the result already holds
	// the right parameters so there is no need for a projection.
	project := schema != nil && len(schema.DefaultProjection) > 0
	var stream ops.StreamOp
	switch stmt := stmt.(type) {
	case *ast.Rule:
		s, err := CompileStream(stmt.Stream, ops.NewHints(projection))
		if err != nil {
			return nil, err
		}
		if project {
			args := projection.Sorted()
			node := &ast.ProjectionStream{
				Typed:  ast.Typed{Schema: stmt.Stream.Signature()},
				Stream: stmt.Stream,
				Args:   args,
			}
			s = &ops.StreamMap{Stream: s, Op: &ops.Projection{Args: args}, AST: node}
		}
		stream = s
	case *ast.Command:
		if stmt.Table == nil {
			stream = ops.NowOp
			break
		}
		t, err := CompileTable(stmt.Table, nil, ops.NewHints(projection))
		if err != nil {
			return nil, err
		}
		var node ast.Node = stmt.Table
		if project {
			args := projection.Sorted()
			node = &ast.ProjectionTable{
				Typed: ast.Typed{Schema: stmt.Table.Signature()},
				Table: stmt.Table,
				Args:  args,
			}
			t = &ops.TableMap{
				Placement: *t.Target(),
				Table:     t,
				Op:        &ops.Projection{Args: args},
				AST:       node,
			}
		}
		stream = &ops.StreamJoin{Stream: ops.NowOp, Table: t, AST: node}
	default:
		panic(fmt.Sprintf("unknown statement %T", stmt))
	}
	return &ops.Rule{
		Stream:    optimizer.OptimizeStream(stream, hasOutputAction),
		Actions:   stmt.StatementActions(),
		Statement: stmt,
	}, nil
}

func addParams(set ops.FieldSet, params []*ast.InputParam, schema *ast.FunctionDef) {
	for _, p := range params {
		set.AddAll(ast.ExpressionParameters(p.Value, schema))
	}
}

// effectiveProjection is the part of the requested projection that
// survives a projection on args.  The minimal projection of the schema
// is always kept.
func effectiveProjection(hints *ops.Hints, args []string, schema *ast.FunctionDef) ops.FieldSet {
	keep := ops.NewFieldSet(args...).AddAll(schema.MinimalProjection)
	return hints.Projection.Intersect(keep)
}
