// Package ast declares the typed syntax trees consumed by the compiler.
// Trees arrive already typechecked: every stream, table and invocation
// carries its resolved FunctionDef and every comparison carries its
// resolved overload.
package ast

import (
	"fmt"
	"strings"
)

const (
	RemoteKind  = "org.thingpedia.builtin.thingengine.remote"
	DynamicKind = "__dyn_"
)

type DeviceSelector struct {
	Kind       string        `json:"kind"`
	ID         string        `json:"id"`
	Principal  string        `json:"principal"`
	Attributes []*InputParam `json:"attributes"`
}

type InputParam struct {
	Name  string `json:"name"`
	Value Value  `json:"value"`
}

func NewInputParam(name string, value Value) *InputParam {
	return &InputParam{Name: name, Value: value}
}

// Invocation calls Channel on the device identified by Selector.
// EffectiveSelector is set by the typechecker to the selector that is
// actually dispatched (dynamically declared classes collapse to their
// concrete device).
type Invocation struct {
	Selector          *DeviceSelector `json:"selector"`
	Channel           string          `json:"channel"`
	InParams          []*InputParam   `json:"in_params"`
	Schema            *FunctionDef    `json:"schema"`
	EffectiveSelector *DeviceSelector `json:"-"`
}

func (i *Invocation) String() string {
	return "@" + i.Selector.Kind + "." + i.Channel
}

// IsRemoteSend reports whether inv sends data to a remote principal,
// in which case the end of the flow must be signaled after the rule
// completes.
func IsRemoteSend(inv *Invocation) bool {
	kind := inv.Selector.Kind
	return (kind == RemoteKind || strings.HasPrefix(kind, DynamicKind)) && inv.Channel == "send"
}

// Typed is embedded in every stream and table node.
type Typed struct {
	Schema *FunctionDef `json:"schema"`
}

func (t *Typed) Signature() *FunctionDef {
	return t.Schema
}

type Node interface {
	Signature() *FunctionDef
}

type Stream interface {
	Node
	StreamNode()
}

type Table interface {
	Node
	TableNode()
}

// Streams

type (
	VarRefStream struct {
		Typed
		Name     string        `json:"name"`
		InParams []*InputParam `json:"in_params"`
	}
	TimerStream struct {
		Typed
		Base      Value `json:"base"`
		Interval  Value `json:"interval"`
		Frequency Value `json:"frequency"`
	}
	AtTimerStream struct {
		Typed
		Times          []Value `json:"times"`
		ExpirationDate Value   `json:"expiration_date"`
	}
	// MonitorStream fires when the result of Table changes.  Args
	// restricts the parameters that are monitored; nil means all.
	MonitorStream struct {
		Typed
		Table Table    `json:"table"`
		Args  []string `json:"args"`
	}
	EdgeNewStream struct {
		Typed
		Stream Stream `json:"stream"`
	}
	EdgeFilterStream struct {
		Typed
		Stream Stream            `json:"stream"`
		Filter BooleanExpression `json:"filter"`
	}
	FilterStream struct {
		Typed
		Stream Stream            `json:"stream"`
		Filter BooleanExpression `json:"filter"`
	}
	ProjectionStream struct {
		Typed
		Stream Stream   `json:"stream"`
		Args   []string `json:"args"`
	}
	ComputeStream struct {
		Typed
		Stream     Stream `json:"stream"`
		Expression Value  `json:"expression"`
		Alias      string `json:"alias"`
	}
	AliasStream struct {
		Typed
		Stream Stream `json:"stream"`
		Name   string `json:"name"`
	}
	JoinStream struct {
		Typed
		Stream   Stream        `json:"stream"`
		Table    Table         `json:"table"`
		InParams []*InputParam `json:"in_params"`
	}
)

func (*VarRefStream) StreamNode()     {}
func (*TimerStream) StreamNode()      {}
func (*AtTimerStream) StreamNode()    {}
func (*MonitorStream) StreamNode()    {}
func (*EdgeNewStream) StreamNode()    {}
func (*EdgeFilterStream) StreamNode() {}
func (*FilterStream) StreamNode()     {}
func (*ProjectionStream) StreamNode() {}
func (*ComputeStream) StreamNode()    {}
func (*AliasStream) StreamNode()      {}
func (*JoinStream) StreamNode()       {}

// Tables

type (
	VarRefTable struct {
		Typed
		Name     string        `json:"name"`
		InParams []*InputParam `json:"in_params"`
	}
	InvocationTable struct {
		Typed
		Invocation *Invocation `json:"invocation"`
	}
	FilterTable struct {
		Typed
		Table  Table             `json:"table"`
		Filter BooleanExpression `json:"filter"`
	}
	ProjectionTable struct {
		Typed
		Table Table    `json:"table"`
		Args  []string `json:"args"`
	}
	ComputeTable struct {
		Typed
		Table      Table  `json:"table"`
		Expression Value  `json:"expression"`
		Alias      string `json:"alias"`
	}
	AliasTable struct {
		Typed
		Table Table  `json:"table"`
		Name  string `json:"name"`
	}
	// AggregationTable applies Operator (count, sum, avg, max, min) to
	// Field.  Field is "*" for count(*).
	AggregationTable struct {
		Typed
		Table    Table  `json:"table"`
		Field    string `json:"field"`
		Operator string `json:"operator"`
		Alias    string `json:"alias"`
	}
	SortTable struct {
		Typed
		Table     Table  `json:"table"`
		Field     string `json:"field"`
		Direction string `json:"direction"`
	}
	// IndexTable selects elements by 1-based position; negative
	// positions count from the end.
	IndexTable struct {
		Typed
		Table   Table   `json:"table"`
		Indices []Value `json:"indices"`
	}
	SliceTable struct {
		Typed
		Table Table `json:"table"`
		Base  Value `json:"base"`
		Limit Value `json:"limit"`
	}
	JoinTable struct {
		Typed
		LHS      Table         `json:"lhs"`
		RHS      Table         `json:"rhs"`
		InParams []*InputParam `json:"in_params"`
	}
)

func (*VarRefTable) TableNode()      {}
func (*InvocationTable) TableNode()  {}
func (*FilterTable) TableNode()      {}
func (*ProjectionTable) TableNode()  {}
func (*ComputeTable) TableNode()     {}
func (*AliasTable) TableNode()       {}
func (*AggregationTable) TableNode() {}
func (*SortTable) TableNode()        {}
func (*IndexTable) TableNode()       {}
func (*SliceTable) TableNode()       {}
func (*JoinTable) TableNode()        {}

// Actions

type Action interface {
	ActionNode()
}

type (
	// NotifyAction delivers the result to the user.  Name is "notify"
	// or "return"; the latter must be lowered before compilation.
	NotifyAction struct {
		Name string `json:"name"`
	}
	InvocationAction struct {
		Invocation *Invocation `json:"invocation"`
	}
	VarRefAction struct {
		Typed
		Name     string        `json:"name"`
		InParams []*InputParam `json:"in_params"`
	}
)

func (*NotifyAction) ActionNode()     {}
func (*InvocationAction) ActionNode() {}
func (*VarRefAction) ActionNode()     {}

var Notify = &NotifyAction{Name: "notify"}

// Statements

type Statement interface {
	StatementNode()
	StatementActions() []Action
}

type (
	// Rule runs Actions every time Stream fires.
	Rule struct {
		Stream  Stream   `json:"stream"`
		Actions []Action `json:"actions"`
	}
	// Command runs Actions once over the result of Table, or once
	// unconditionally when Table is nil.
	Command struct {
		Table   Table    `json:"table"`
		Actions []Action `json:"actions"`
	}
	// Assignment stores the results of Value, a Table or an Action
	// with results, under Name.  Later statements read them back with
	// a VarRefTable of the same name.
	Assignment struct {
		Name   string       `json:"name"`
		Value  interface{}  `json:"value"`
		Schema *FunctionDef `json:"schema"`
	}
)

func (*Rule) StatementNode()       {}
func (*Command) StatementNode()    {}
func (*Assignment) StatementNode() {}

func (r *Rule) StatementActions() []Action     { return r.Actions }
func (c *Command) StatementActions() []Action  { return c.Actions }
func (*Assignment) StatementActions() []Action { return nil }

type DeclarationKind string

const (
	StreamDeclaration DeclarationKind = "stream"
	QueryDeclaration  DeclarationKind = "query"
	ActionDeclaration DeclarationKind = "action"
)

// Declaration binds Name to a stream, query or action that statements
// can invoke by reference.  Args lists the declared parameters in
// calling order; Value is a Stream, Table or Action accordingly.
type Declaration struct {
	Name   string          `json:"name"`
	Kind   DeclarationKind `json:"kind"`
	Args   []string        `json:"args"`
	Value  interface{}     `json:"value"`
	Schema *FunctionDef    `json:"schema"`
}

type Program struct {
	Declarations []*Declaration `json:"declarations"`
	Statements   []Statement    `json:"statements"`
}

// StatementSchema returns the signature of the data flowing into the
// actions of stmt, or nil for a command without a table.
func StatementSchema(stmt Statement) *FunctionDef {
	switch stmt := stmt.(type) {
	case *Rule:
		return stmt.Stream.Signature()
	case *Command:
		if stmt.Table != nil {
			return stmt.Table.Signature()
		}
		return nil
	case *Assignment:
		return stmt.Schema
	default:
		panic(fmt.Sprintf("unknown statement %T", stmt))
	}
}
