package ops

import (
	"github.com/brimdata/ruleflow/compiler/ast"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// FieldSet is a set of parameter names.
type FieldSet map[string]struct{}

func NewFieldSet(names ...string) FieldSet {
	f := make(FieldSet)
	f.AddAll(names)
	return f
}

func (f FieldSet) Add(name string) {
	f[name] = struct{}{}
}

func (f FieldSet) AddAll(names []string) FieldSet {
	for _, name := range names {
		f[name] = struct{}{}
	}
	return f
}

func (f FieldSet) Has(name string) bool {
	_, ok := f[name]
	return ok
}

func (f FieldSet) Copy() FieldSet {
	out := make(FieldSet, len(f))
	for k := range f {
		out[k] = struct{}{}
	}
	return out
}

func (f FieldSet) Intersect(other FieldSet) FieldSet {
	out := make(FieldSet)
	for k := range f {
		if other.Has(k) {
			out[k] = struct{}{}
		}
	}
	return out
}

// Sorted returns the names in lexical order so that compiled output
// is deterministic.
func (f FieldSet) Sorted() []string {
	names := maps.Keys(f)
	slices.Sort(names)
	return names
}

type SortHint struct {
	Field     string
	Direction string
}

// Hints are advisory parameters passed to a query invocation: a backend
// that ignores them must still produce a correct result once the
// compiled program applies its own filter, sort and limit.
type Hints struct {
	Projection FieldSet
	Filter     ast.BooleanExpression
	Sort       *SortHint
	Limit      *int
}

func NewHints(projection FieldSet) *Hints {
	if projection == nil {
		projection = make(FieldSet)
	}
	return &Hints{
		Projection: projection,
		Filter:     ast.True,
	}
}

// Clone returns hints with an independent copy of the projection.  The
// filter, sort and limit are reset; callers that cross a boundary which
// preserves them carry them over explicitly.
func (h *Hints) Clone() *Hints {
	return NewHints(h.Projection.Copy())
}

// CarryOrder copies the sort and limit of h into c.
func (h *Hints) CarryOrder(c *Hints) {
	c.Sort = h.Sort
	c.Limit = h.Limit
}

func (h *Hints) SetSort(field, direction string) {
	h.Sort = &SortHint{Field: field, Direction: direction}
}

func (h *Hints) SetLimit(n int) {
	h.Limit = &n
}
