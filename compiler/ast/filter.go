package ast

import (
	"fmt"
	"strings"
)

// BooleanExpression is a filter predicate.
type BooleanExpression interface {
	BooleanNode()
}

type (
	TrueExpr  struct{}
	FalseExpr struct{}
	// DontCare marks a parameter as unconstrained; it behaves as true.
	DontCare struct {
		Name string `json:"name"`
	}
	And struct {
		Operands []BooleanExpression `json:"operands"`
	}
	Or struct {
		Operands []BooleanExpression `json:"operands"`
	}
	Not struct {
		Expr BooleanExpression `json:"expr"`
	}
	// Atom compares the parameter Name with Value.  Overload is the
	// resolved signature of Operator: lhs type, rhs type, result type.
	Atom struct {
		Name     string `json:"name"`
		Operator string `json:"operator"`
		Value    Value  `json:"value"`
		Overload []Type `json:"overload"`
	}
	// External is a get-predicate: it holds if any result of the
	// invocation satisfies Filter.
	External struct {
		Invocation *Invocation       `json:"invocation"`
		Filter     BooleanExpression `json:"filter"`
	}
	// ComputeExpr compares two arbitrary values.
	ComputeExpr struct {
		LHS      Value  `json:"lhs"`
		Operator string `json:"operator"`
		RHS      Value  `json:"rhs"`
		Overload []Type `json:"overload"`
	}
)

var (
	True  BooleanExpression = &TrueExpr{}
	False BooleanExpression = &FalseExpr{}
)

func (*TrueExpr) BooleanNode()    {}
func (*FalseExpr) BooleanNode()   {}
func (*DontCare) BooleanNode()    {}
func (*And) BooleanNode()         {}
func (*Or) BooleanNode()          {}
func (*Not) BooleanNode()         {}
func (*Atom) BooleanNode()        {}
func (*External) BooleanNode()    {}
func (*ComputeExpr) BooleanNode() {}

func NewAnd(operands ...BooleanExpression) *And {
	return &And{Operands: operands}
}

func NewOr(operands ...BooleanExpression) *Or {
	return &Or{Operands: operands}
}

// NewAtom builds a comparison whose overload is the trivial one:
// both operands have type typ and the result is Boolean.
func NewAtom(name, op string, value Value, typ Type) *Atom {
	return &Atom{
		Name:     name,
		Operator: op,
		Value:    value,
		Overload: []Type{typ, typ, Boolean},
	}
}

func IsTrue(e BooleanExpression) bool {
	switch e.(type) {
	case *TrueExpr, *DontCare:
		return true
	}
	return false
}

func IsFalse(e BooleanExpression) bool {
	_, ok := e.(*FalseExpr)
	return ok
}

// OptimizeFilter flattens nested conjunctions and disjunctions and folds
// constant operands.  The result is logically equivalent to e.
func OptimizeFilter(e BooleanExpression) BooleanExpression {
	switch e := e.(type) {
	case *DontCare:
		return True
	case *And:
		var operands []BooleanExpression
		for _, o := range e.Operands {
			o = OptimizeFilter(o)
			if IsFalse(o) {
				return False
			}
			if IsTrue(o) {
				continue
			}
			if and, ok := o.(*And); ok {
				operands = append(operands, and.Operands...)
				continue
			}
			operands = append(operands, o)
		}
		switch len(operands) {
		case 0:
			return True
		case 1:
			return operands[0]
		}
		return &And{Operands: operands}
	case *Or:
		var operands []BooleanExpression
		for _, o := range e.Operands {
			o = OptimizeFilter(o)
			if IsTrue(o) {
				return True
			}
			if IsFalse(o) {
				continue
			}
			if or, ok := o.(*Or); ok {
				operands = append(operands, or.Operands...)
				continue
			}
			operands = append(operands, o)
		}
		switch len(operands) {
		case 0:
			return False
		case 1:
			return operands[0]
		}
		return &Or{Operands: operands}
	case *Not:
		inner := OptimizeFilter(e.Expr)
		switch inner := inner.(type) {
		case *TrueExpr:
			return False
		case *FalseExpr:
			return True
		case *Not:
			return inner.Expr
		}
		return &Not{Expr: inner}
	case *External:
		return &External{Invocation: e.Invocation, Filter: OptimizeFilter(e.Filter)}
	default:
		return e
	}
}

// ExpressionParameters returns the names of the parameters of schema that
// node (a Value or a BooleanExpression) refers to.  If schema is nil,
// every referenced name is returned.  A reference to the whole event
// counts as a reference to every parameter shown by the event.
func ExpressionParameters(node interface{}, schema *FunctionDef) []string {
	w := &paramWalker{schema: schema, seen: make(map[string]bool)}
	switch node := node.(type) {
	case Value:
		w.value(node)
	case BooleanExpression:
		w.filter(node)
	case nil:
	default:
		panic(fmt.Sprintf("ExpressionParameters: unexpected node %T", node))
	}
	return w.names
}

type paramWalker struct {
	schema *FunctionDef
	seen   map[string]bool
	names  []string
}

func (w *paramWalker) add(name string) {
	if w.seen[name] {
		return
	}
	if w.schema != nil && !w.schema.HasArgument(name) {
		return
	}
	w.seen[name] = true
	w.names = append(w.names, name)
}

func (w *paramWalker) value(v Value) {
	switch v := v.(type) {
	case *VarRef:
		w.add(v.Name)
	case *Event:
		if v.Name == "" && w.schema != nil {
			for _, name := range DefaultProjection(w.schema) {
				w.add(name)
			}
		}
	case *Computation:
		for _, o := range v.Operands {
			w.value(o)
		}
	case *ArrayValue:
		for _, e := range v.Elems {
			w.value(e)
		}
	case *ArrayField:
		w.value(v.Value)
	}
}

func (w *paramWalker) filter(e BooleanExpression) {
	switch e := e.(type) {
	case *And:
		for _, o := range e.Operands {
			w.filter(o)
		}
	case *Or:
		for _, o := range e.Operands {
			w.filter(o)
		}
	case *Not:
		w.filter(e.Expr)
	case *Atom:
		w.add(e.Name)
		w.value(e.Value)
	case *ComputeExpr:
		w.value(e.LHS)
		w.value(e.RHS)
	case *External:
		// The nested filter refers to the parameters of the
		// get-predicate, only its inputs can refer to ours.
		for _, p := range e.Invocation.InParams {
			w.value(p.Value)
		}
	}
}

func FormatFilter(e BooleanExpression) string {
	switch e := e.(type) {
	case *TrueExpr:
		return "true"
	case *FalseExpr:
		return "false"
	case *DontCare:
		return "true(" + e.Name + ")"
	case *And:
		return joinFilters(e.Operands, " && ", "true")
	case *Or:
		return joinFilters(e.Operands, " || ", "false")
	case *Not:
		return "!(" + FormatFilter(e.Expr) + ")"
	case *Atom:
		return fmt.Sprintf("%s %s %s", e.Name, e.Operator, FormatValue(e.Value))
	case *ComputeExpr:
		return fmt.Sprintf("%s %s %s", FormatValue(e.LHS), e.Operator, FormatValue(e.RHS))
	case *External:
		return fmt.Sprintf("%s { %s }", e.Invocation, FormatFilter(e.Filter))
	default:
		return fmt.Sprintf("(unknown filter %T)", e)
	}
}

func joinFilters(operands []BooleanExpression, sep, empty string) string {
	if len(operands) == 0 {
		return empty
	}
	parts := make([]string, 0, len(operands))
	for _, o := range operands {
		parts = append(parts, "("+FormatFilter(o)+")")
	}
	return strings.Join(parts, sep)
}
