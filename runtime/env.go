// Package runtime interprets compiled register programs against an
// Environment that provides devices, persistent state and output.
package runtime

import (
	"context"

	"github.com/brimdata/ruleflow/compiler/ast"
)

// Row is the result of one invocation, keyed by parameter name.
type Row = map[string]any

// Tuple is an array value.  Iterables of invocation results produce
// pairs of [outputType, Row].
type Tuple = []any

// Iterator produces the elements of an iterable one at a time.  Next
// returns false once the iterable is exhausted.  Iterators that hold
// resources also implement io.Closer; the interpreter closes them when
// it leaves the loop early.
type Iterator interface {
	Next(ctx context.Context) (any, bool, error)
}

// Hints are advisory: an environment may ignore any of them.  Each
// filter clause is a tuple of name, operator and value.
type Hints struct {
	Projection []string
	Filter     []Tuple
	Sort       *[2]string
	Limit      *int
}

// Environment is the boundary between a compiled program and the
// outside world.  Query, monitor, action and database iterators produce
// [outputType, Row] pairs; timers produce Rows.  Environments must be
// safe for concurrent use since the branches of a merge run in parallel.
type Environment interface {
	InvokeQuery(ctx context.Context, kind string, attrs Row, function string, args Row, hints *Hints) (Iterator, error)
	InvokeMonitor(ctx context.Context, kind string, attrs Row, function string, args Row, hints *Hints) (Iterator, error)
	InvokeAction(ctx context.Context, kind string, attrs Row, function string, args Row) (Iterator, error)
	InvokeDBQuery(ctx context.Context, kind string, attrs Row, query *ast.Program) (Iterator, error)
	InvokeTimer(ctx context.Context, base, interval, frequency any) (Iterator, error)
	InvokeAtTimer(ctx context.Context, times Tuple, expiration any) (Iterator, error)
	ReadState(ctx context.Context, id int) (any, error)
	WriteState(ctx context.Context, id int, value any) error
	Output(ctx context.Context, outputType any, output Row) error
	FormatEvent(ctx context.Context, hint string, outputType any, output Row) (string, error)
	LoadContext(ctx context.Context, name string, typ ast.Type) (any, error)
	SendEndOfFlow(ctx context.Context, principal, flow any) error
	ReportError(message string, err error)
	ProgramID() string
}

// SliceIterator iterates over a fixed list of values.
type SliceIterator struct {
	values []any
	next   int
}

func NewSliceIterator(values []any) *SliceIterator {
	return &SliceIterator{values: values}
}

func (s *SliceIterator) Next(context.Context) (any, bool, error) {
	if s.next >= len(s.values) {
		return nil, false, nil
	}
	v := s.values[s.next]
	s.next++
	return v, true, nil
}
