package ops

import (
	"fmt"
	"strings"

	"github.com/brimdata/ruleflow/compiler/ast"
)

// Format renders a stream or table operator tree on one line, e.g.,
// EdgeNew(InvokeSubscribe(@com.foo.get)).
func Format(op interface{}) string {
	var f formatter
	switch op := op.(type) {
	case StreamOp:
		f.stream(op)
	case TableOp:
		f.table(op)
	case *Rule:
		f.stream(op.Stream)
	default:
		panic(fmt.Sprintf("ops.Format: unexpected %T", op))
	}
	return f.String()
}

type formatter struct {
	strings.Builder
}

func (f *formatter) write(format string, args ...interface{}) {
	if len(args) == 0 {
		f.WriteString(format)
		return
	}
	fmt.Fprintf(&f.Builder, format, args...)
}

func (f *formatter) stream(op StreamOp) {
	switch op := op.(type) {
	case *Now:
		f.write("Now")
	case *InvokeStreamVarRef:
		f.write("InvokeVarRef(%s)", op.Name)
	case *InvokeSubscribe:
		f.write("InvokeSubscribe(%s)", op.Invocation)
	case *InvokeTable:
		f.write("InvokeTable(")
		f.stream(op.Stream)
		f.write(", ")
		f.table(op.Table)
		f.write(")")
	case *Timer:
		f.write("Timer(%s, %s)", ast.FormatValue(op.Base), ast.FormatValue(op.Interval))
	case *AtTimer:
		f.write("AtTimer(%s)", formatValues(op.Times))
	case *StreamFilter:
		f.write("Filter(")
		f.stream(op.Stream)
		f.write(", %s)", ast.FormatFilter(op.Filter))
	case *StreamMap:
		f.write("Map(")
		f.stream(op.Stream)
		f.write(", ")
		f.pointwise(op.Op)
		f.write(")")
	case *EdgeNew:
		f.write("EdgeNew(")
		f.stream(op.Stream)
		f.write(")")
	case *EdgeFilter:
		f.write("EdgeFilter(")
		f.stream(op.Stream)
		f.write(", %s)", ast.FormatFilter(op.Filter))
	case *Union:
		f.write("Union(")
		f.stream(op.LHS)
		f.write(", ")
		f.stream(op.RHS)
		f.write(")")
	case *StreamJoin:
		f.write("Join(")
		f.stream(op.Stream)
		f.write(", ")
		f.table(op.Table)
		f.write(")")
	default:
		f.write("(unknown stream %T)", op)
	}
}

func (f *formatter) table(op TableOp) {
	switch op := op.(type) {
	case *InvokeTableVarRef:
		f.write("InvokeVarRef(%s)", op.Name)
	case *InvokeGet:
		f.write("InvokeGet(%s)", op.Invocation)
	case *TableFilter:
		f.write("Filter(")
		f.table(op.Table)
		f.write(", %s)", ast.FormatFilter(op.Filter))
	case *TableMap:
		f.write("Map(")
		f.table(op.Table)
		f.write(", ")
		f.pointwise(op.Op)
		f.write(")")
	case *Reduce:
		f.write("Reduce(")
		f.table(op.Table)
		f.write(", ")
		f.reduce(op.Op)
		f.write(")")
	case *CrossJoin:
		f.write("CrossJoin(")
		f.table(op.LHS)
		f.write(", ")
		f.table(op.RHS)
		f.write(")")
	case *NestedLoopJoin:
		f.write("NestedLoopJoin(")
		f.table(op.LHS)
		f.write(", ")
		f.table(op.RHS)
		f.write(")")
	default:
		f.write("(unknown table %T)", op)
	}
}

func (f *formatter) pointwise(op PointWiseOp) {
	switch op := op.(type) {
	case *Projection:
		f.write("Projection[%s]", strings.Join(op.Args, ", "))
	case *Compute:
		f.write("Compute(%s as %s)", ast.FormatValue(op.Expression), op.Alias)
	default:
		f.write("(unknown pointwise %T)", op)
	}
}

func (f *formatter) reduce(op ReduceOp) {
	switch op := op.(type) {
	case *Count:
		f.write("Count")
	case *CountDistinct:
		f.write("CountDistinct(%s)", op.Field)
	case *Average:
		f.write("Average(%s)", op.Field)
	case *SimpleAggregation:
		f.write("SimpleAggregation(%s, %s)", op.Operator, op.Field)
	case *Sort:
		f.write("Sort(%s, %s)", op.Field, op.Direction)
	case *SimpleIndex:
		f.write("SimpleIndex(%s)", ast.FormatValue(op.Index))
	case *ComplexIndex:
		f.write("ComplexIndex(%s)", formatValues(op.Indices))
	case *Slice:
		f.write("Slice(%s, %s)", ast.FormatValue(op.Base), ast.FormatValue(op.Limit))
	case *SimpleArgMinMax:
		f.write("SimpleArgMinMax(%s, %s)", op.Operator, op.Field)
	case *ComplexArgMinMax:
		f.write("ComplexArgMinMax(%s, %s, %s, %s)", op.Operator, op.Field, ast.FormatValue(op.Base), ast.FormatValue(op.Limit))
	default:
		f.write("(unknown reduce %T)", op)
	}
}

func formatValues(values []ast.Value) string {
	s := make([]string, 0, len(values))
	for _, v := range values {
		s = append(s, ast.FormatValue(v))
	}
	return "[" + strings.Join(s, ", ") + "]"
}
