package ast

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Value is a scalar expression: a constant, a reference to a parameter
// in scope, or a computation over other values.
type Value interface {
	ValueNode()
}

type (
	BooleanValue struct {
		Value bool `json:"value"`
	}
	StringValue struct {
		Value string `json:"value"`
	}
	NumberValue struct {
		Value float64 `json:"value"`
	}
	MeasureValue struct {
		Value float64 `json:"value"`
		Unit  string  `json:"unit"`
	}
	CurrencyValue struct {
		Value float64 `json:"value"`
		Code  string  `json:"code"`
	}
	DateValue struct {
		Value time.Time `json:"value"`
	}
	TimeValue struct {
		Hour   int `json:"hour"`
		Minute int `json:"minute"`
		Second int `json:"second"`
	}
	EntityValue struct {
		Value   string `json:"value"`
		Type    string `json:"type"`
		Display string `json:"display"`
	}
	EnumValue struct {
		Value string `json:"value"`
	}
	ArrayValue struct {
		Elems []Value `json:"elems"`
		Type  Type    `json:"type"`
	}
	// VarRef names a parameter in the current scope.
	VarRef struct {
		Name string `json:"name"`
	}
	// Event is the implicit "current event" value.  An empty name
	// formats the whole event, "type" is the output type and
	// "program_id" is the ambient program identifier.
	Event struct {
		Name string `json:"name"`
	}
	ContextRef struct {
		Name string `json:"name"`
		Type Type   `json:"type"`
	}
	// Undefined is a placeholder that must be slot-filled before
	// compilation.
	Undefined struct {
		Local bool `json:"local"`
	}
	// Computation applies a scalar operator to its operands.  Overload
	// is the resolved signature: operand types followed by the result
	// type.
	Computation struct {
		Op       string  `json:"op"`
		Operands []Value `json:"operands"`
		Overload []Type  `json:"overload"`
		Type     Type    `json:"type"`
	}
	// ArrayField reads a field of each element of an array of compounds.
	ArrayField struct {
		Value Value  `json:"value"`
		Field string `json:"field"`
		Type  Type   `json:"type"`
	}
)

func (*BooleanValue) ValueNode()  {}
func (*StringValue) ValueNode()   {}
func (*NumberValue) ValueNode()   {}
func (*MeasureValue) ValueNode()  {}
func (*CurrencyValue) ValueNode() {}
func (*DateValue) ValueNode()     {}
func (*TimeValue) ValueNode()     {}
func (*EntityValue) ValueNode()   {}
func (*EnumValue) ValueNode()     {}
func (*ArrayValue) ValueNode()    {}
func (*VarRef) ValueNode()        {}
func (*Event) ValueNode()         {}
func (*ContextRef) ValueNode()    {}
func (*Undefined) ValueNode()     {}
func (*Computation) ValueNode()   {}
func (*ArrayField) ValueNode()    {}

func NewBoolean(b bool) *BooleanValue      { return &BooleanValue{Value: b} }
func NewString(s string) *StringValue      { return &StringValue{Value: s} }
func NewNumber(f float64) *NumberValue     { return &NumberValue{Value: f} }
func NewVarRef(name string) *VarRef        { return &VarRef{Name: name} }
func NewEnum(v string) *EnumValue          { return &EnumValue{Value: v} }
func NewEntity(v, typ string) *EntityValue { return &EntityValue{Value: v, Type: typ} }

// TypeOf returns the type of a constant or computed value.  References
// to parameters have no intrinsic type and must be resolved against a
// scope by the caller.
func TypeOf(v Value) Type {
	switch v := v.(type) {
	case *BooleanValue:
		return Boolean
	case *StringValue:
		return String
	case *NumberValue:
		return Number
	case *MeasureValue:
		return &Measure{Unit: v.Unit}
	case *CurrencyValue:
		return Currency
	case *DateValue:
		return Date
	case *TimeValue:
		return Time
	case *EntityValue:
		return &Entity{Name: v.Type}
	case *EnumValue:
		return &Enum{Entries: []string{v.Value}}
	case *ArrayValue:
		if v.Type != nil {
			return v.Type
		}
		if len(v.Elems) > 0 {
			return &Array{Elem: TypeOf(v.Elems[0])}
		}
		return &Array{Elem: Any}
	case *Event:
		if v.Name == "program_id" {
			return &Entity{Name: "tt:program_id"}
		}
		return String
	case *ContextRef:
		return v.Type
	case *Computation:
		return v.Type
	case *ArrayField:
		return v.Type
	case *VarRef, *Undefined:
		return nil
	default:
		panic(fmt.Sprintf("unknown value %T", v))
	}
}

// IsConstant reports whether v can be evaluated without a scope.
func IsConstant(v Value) bool {
	switch v := v.(type) {
	case *VarRef, *Event, *ContextRef, *Undefined, *Computation, *ArrayField:
		return false
	case *ArrayValue:
		for _, e := range v.Elems {
			if !IsConstant(e) {
				return false
			}
		}
	}
	return true
}

func FormatValue(v Value) string {
	switch v := v.(type) {
	case *BooleanValue:
		return strconv.FormatBool(v.Value)
	case *StringValue:
		return strconv.Quote(v.Value)
	case *NumberValue:
		return strconv.FormatFloat(v.Value, 'g', -1, 64)
	case *MeasureValue:
		return strconv.FormatFloat(v.Value, 'g', -1, 64) + v.Unit
	case *CurrencyValue:
		return strconv.FormatFloat(v.Value, 'g', -1, 64) + "$" + v.Code
	case *DateValue:
		return v.Value.UTC().Format(time.RFC3339)
	case *TimeValue:
		return fmt.Sprintf("%02d:%02d:%02d", v.Hour, v.Minute, v.Second)
	case *EntityValue:
		return strconv.Quote(v.Value) + "^^" + v.Type
	case *EnumValue:
		return "enum(" + v.Value + ")"
	case *ArrayValue:
		elems := make([]string, 0, len(v.Elems))
		for _, e := range v.Elems {
			elems = append(elems, FormatValue(e))
		}
		return "[" + strings.Join(elems, ", ") + "]"
	case *VarRef:
		return v.Name
	case *Event:
		if v.Name == "" {
			return "$event"
		}
		return "$event." + v.Name
	case *ContextRef:
		return "$context." + v.Name
	case *Undefined:
		return "$?"
	case *Computation:
		operands := make([]string, 0, len(v.Operands))
		for _, o := range v.Operands {
			operands = append(operands, FormatValue(o))
		}
		return v.Op + "(" + strings.Join(operands, ", ") + ")"
	case *ArrayField:
		return FormatValue(v.Value) + "." + v.Field
	default:
		return fmt.Sprintf("(unknown value %T)", v)
	}
}

// ScalarExpressionName returns the default output name of a computed
// value that has no explicit alias.
func ScalarExpressionName(v Value) string {
	switch v := v.(type) {
	case *VarRef:
		return v.Name
	case *Computation:
		if isInfix(v.Op) {
			return "result"
		}
		return v.Op
	case *ArrayField:
		return v.Field
	}
	return "result"
}

func isInfix(op string) bool {
	switch op {
	case "+", "-", "*", "/", "%", "**":
		return true
	}
	return false
}
