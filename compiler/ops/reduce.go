package ops

import (
	"github.com/brimdata/ruleflow/compiler/ast"
)

// ReduceOp folds every tuple of a table into a new, usually smaller,
// result.  The IR lowering of each variant lives in the kernel.
type ReduceOp interface {
	ReduceNode()
}

type (
	Count         struct{}
	CountDistinct struct {
		Field string
	}
	Average struct {
		Field string
		Type  ast.Type
	}
	// SimpleAggregation is max, min or sum over Field.
	SimpleAggregation struct {
		Operator string
		Field    string
		Type     ast.Type
	}
	Sort struct {
		Field     string
		Direction string
	}
	// SimpleIndex selects a single element by a constant positive
	// 1-based position.
	SimpleIndex struct {
		Index ast.Value
	}
	ComplexIndex struct {
		Indices []ast.Value
	}
	Slice struct {
		Base  ast.Value
		Limit ast.Value
	}
	// SimpleArgMinMax keeps the one tuple that minimizes (argmin) or
	// maximizes (argmax) Field.
	SimpleArgMinMax struct {
		Operator string
		Field    string
	}
	// ComplexArgMinMax keeps Limit tuples starting at the 1-based
	// position Base of the ordering by Field.
	ComplexArgMinMax struct {
		Operator string
		Field    string
		Base     ast.Value
		Limit    ast.Value
	}
)

func (*Count) ReduceNode()             {}
func (*CountDistinct) ReduceNode()     {}
func (*Average) ReduceNode()           {}
func (*SimpleAggregation) ReduceNode() {}
func (*Sort) ReduceNode()              {}
func (*SimpleIndex) ReduceNode()       {}
func (*ComplexIndex) ReduceNode()      {}
func (*Slice) ReduceNode()             {}
func (*SimpleArgMinMax) ReduceNode()   {}
func (*ComplexArgMinMax) ReduceNode()  {}
