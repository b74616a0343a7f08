package kernel

import (
	"fmt"
	"sort"

	"github.com/agnivade/levenshtein"
	"github.com/brimdata/ruleflow/compiler/ast"
	"github.com/brimdata/ruleflow/compiler/ir"
)

type EntryKind int

const (
	// Scalar entries hold a value in a register.
	Scalar EntryKind = iota
	// Declaration entries name a procedure in the global scope.
	Declaration
	// Assignment entries name the results stored in a state slot by
	// an assignment statement.
	Assignment
)

type Direction int

const (
	Output Direction = iota
	Input
	// Special entries are $outputType and $output.
	Special
)

// Entry is what a name resolves to while compiling a function body.
type Entry struct {
	Kind       EntryKind
	Register   ir.Register
	Type       ast.Type
	Direction  Direction
	InIdentity bool
	// Schema and Args are set for declarations.  Assignments set
	// Schema and State.
	Schema *ast.FunctionDef
	Args   []string
	State  int
}

// Scope maps parameter names to entries.  Lookups fall back to the
// parent chain; own names are kept in insertion order.
type Scope struct {
	parent  *Scope
	names   []string
	entries map[string]*Entry
}

func NewScope(parent *Scope) *Scope {
	return &Scope{
		parent:  parent,
		entries: make(map[string]*Entry),
	}
}

func (s *Scope) Parent() *Scope {
	return s.parent
}

func (s *Scope) Lookup(name string) (*Entry, bool) {
	for scope := s; scope != nil; scope = scope.parent {
		if e, ok := scope.entries[name]; ok {
			return e, true
		}
	}
	return nil, false
}

// Get returns the entry for name and panics if there is none.  The
// typechecker guarantees every name resolves so a miss is a bug in the
// caller.
func (s *Scope) Get(name string) *Entry {
	e, ok := s.Lookup(name)
	if !ok {
		msg := fmt.Sprintf("kernel: %q is not in scope", name)
		if closest := s.closest(name); closest != "" {
			msg += fmt.Sprintf(" (did you mean %q?)", closest)
		}
		panic(msg)
	}
	return e
}

func (s *Scope) Has(name string) bool {
	_, ok := s.Lookup(name)
	return ok
}

// Register returns the register of a scalar name.
func (s *Scope) Register(name string) ir.Register {
	return s.Get(name).Register
}

func (s *Scope) Set(name string, e *Entry) {
	if _, ok := s.entries[name]; !ok {
		s.names = append(s.names, name)
	}
	s.entries[name] = e
}

func (s *Scope) HasOwnKey(name string) bool {
	_, ok := s.entries[name]
	return ok
}

// OwnKeys returns the names set directly on s in insertion order.
func (s *Scope) OwnKeys() []string {
	return append([]string(nil), s.names...)
}

func (s *Scope) closest(name string) string {
	var candidates []string
	for scope := s; scope != nil; scope = scope.parent {
		candidates = append(candidates, scope.names...)
	}
	sort.Strings(candidates)
	best, bestDist := "", -1
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(name, c)
		if d > len(name)/2+1 {
			continue
		}
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
