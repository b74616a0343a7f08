package ast

import (
	"fmt"
	"strings"
)

// Type is the statically resolved type of a value or parameter.
type Type interface {
	TypeNode()
	String() string
}

type (
	// Primitive covers the types without parameters: Boolean, String,
	// Number, Currency, Date, Time and Any.
	Primitive struct {
		Name string `json:"name"`
	}
	Measure struct {
		Unit string `json:"unit"`
	}
	Entity struct {
		Name string `json:"name"`
	}
	Enum struct {
		Entries []string `json:"entries"`
	}
	Array struct {
		Elem Type `json:"elem"`
	}
	Compound struct {
		Name   string         `json:"name"`
		Fields []*ArgumentDef `json:"fields"`
	}
)

var (
	Boolean  = &Primitive{Name: "Boolean"}
	String   = &Primitive{Name: "String"}
	Number   = &Primitive{Name: "Number"}
	Currency = &Primitive{Name: "Currency"}
	Date     = &Primitive{Name: "Date"}
	Time     = &Primitive{Name: "Time"}
	Any      = &Primitive{Name: "Any"}
)

func (*Primitive) TypeNode() {}
func (*Measure) TypeNode()   {}
func (*Entity) TypeNode()    {}
func (*Enum) TypeNode()      {}
func (*Array) TypeNode()     {}
func (*Compound) TypeNode()  {}

func (p *Primitive) String() string { return p.Name }
func (m *Measure) String() string   { return fmt.Sprintf("Measure(%s)", m.Unit) }
func (e *Entity) String() string    { return fmt.Sprintf("Entity(%s)", e.Name) }
func (e *Enum) String() string      { return fmt.Sprintf("Enum(%s)", strings.Join(e.Entries, ",")) }
func (a *Array) String() string     { return fmt.Sprintf("Array(%s)", a.Elem) }
func (c *Compound) String() string  { return fmt.Sprintf("Compound(%s)", c.Name) }

func IsString(t Type) bool   { return isPrimitive(t, "String") }
func IsNumber(t Type) bool   { return isPrimitive(t, "Number") }
func IsCurrency(t Type) bool { return isPrimitive(t, "Currency") }
func IsDate(t Type) bool     { return isPrimitive(t, "Date") }
func IsTime(t Type) bool     { return isPrimitive(t, "Time") }
func IsBoolean(t Type) bool  { return isPrimitive(t, "Boolean") }

func isPrimitive(t Type, name string) bool {
	p, ok := t.(*Primitive)
	return ok && p.Name == name
}

// IsEntityOf reports whether t is an entity type with the given name.
func IsEntityOf(t Type, name string) bool {
	e, ok := t.(*Entity)
	return ok && e.Name == name
}

// TypeEqual compares two types structurally.  A nil type is only equal
// to another nil type.
func TypeEqual(a, b Type) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch a := a.(type) {
	case *Primitive:
		b, ok := b.(*Primitive)
		return ok && a.Name == b.Name
	case *Measure:
		b, ok := b.(*Measure)
		return ok && a.Unit == b.Unit
	case *Entity:
		b, ok := b.(*Entity)
		return ok && a.Name == b.Name
	case *Enum:
		b, ok := b.(*Enum)
		if !ok || len(a.Entries) != len(b.Entries) {
			return false
		}
		for k := range a.Entries {
			if a.Entries[k] != b.Entries[k] {
				return false
			}
		}
		return true
	case *Array:
		b, ok := b.(*Array)
		return ok && TypeEqual(a.Elem, b.Elem)
	case *Compound:
		b, ok := b.(*Compound)
		return ok && a.Name == b.Name
	default:
		panic(fmt.Sprintf("unknown type %T", a))
	}
}
