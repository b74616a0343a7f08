// Package runtimetest provides an in-memory runtime.Environment with
// canned device results for tests.
package runtimetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/brimdata/ruleflow/compiler/ast"
	"github.com/brimdata/ruleflow/runtime"
)

type Call struct {
	Kind     string
	Function string
	Args     runtime.Row
	Hints    *runtime.Hints
}

type Output struct {
	Type any
	Row  runtime.Row
}

type Report struct {
	Message string
	Err     error
}

// Env answers queries and monitors from Results, keyed by
// "kind.function".  A monitor yields each of its rows once, in order,
// which models a device whose state changes on every poll.  Rows are
// copied before they are handed out.  If ApplyHints is set, results are
// sorted and limited as the hints of the call ask.
type Env struct {
	ID         string
	Results    map[string][]runtime.Row
	Failures   map[string]error
	Context    map[string]any
	Ticks      []runtime.Row
	ApplyHints bool

	mu         sync.Mutex
	states     map[int]any
	calls      []Call
	outputs    []Output
	reports    []Report
	endOfFlows []runtime.Tuple
	dbQueries  []*ast.Program
}

func New() *Env {
	return &Env{
		ID:       "uuid-test",
		Results:  make(map[string][]runtime.Row),
		Failures: make(map[string]error),
		Context:  make(map[string]any),
		states:   make(map[int]any),
	}
}

func (e *Env) invoke(kind, function string, args runtime.Row, hints *runtime.Hints) (runtime.Iterator, error) {
	key := kind + "." + function
	e.mu.Lock()
	e.calls = append(e.calls, Call{Kind: kind, Function: function, Args: args, Hints: hints})
	err := e.Failures[key]
	rows := e.Results[key]
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if e.ApplyHints && hints != nil {
		rows = applyHints(rows, hints)
	}
	pairs := make([]any, 0, len(rows))
	for _, row := range rows {
		pairs = append(pairs, runtime.Tuple{kind + ":" + function, copyRow(row)})
	}
	return runtime.NewSliceIterator(pairs), nil
}

func (e *Env) InvokeQuery(_ context.Context, kind string, _ runtime.Row, function string, args runtime.Row, hints *runtime.Hints) (runtime.Iterator, error) {
	return e.invoke(kind, function, args, hints)
}

func (e *Env) InvokeMonitor(_ context.Context, kind string, _ runtime.Row, function string, args runtime.Row, hints *runtime.Hints) (runtime.Iterator, error) {
	return e.invoke(kind, function, args, hints)
}

func (e *Env) InvokeAction(_ context.Context, kind string, _ runtime.Row, function string, args runtime.Row) (runtime.Iterator, error) {
	return e.invoke(kind, function, args, nil)
}

func (e *Env) InvokeDBQuery(_ context.Context, kind string, _ runtime.Row, query *ast.Program) (runtime.Iterator, error) {
	e.mu.Lock()
	e.dbQueries = append(e.dbQueries, query)
	e.mu.Unlock()
	return e.invoke(kind, "query", nil, nil)
}

func (e *Env) InvokeTimer(context.Context, any, any, any) (runtime.Iterator, error) {
	return e.ticks(), nil
}

func (e *Env) InvokeAtTimer(context.Context, runtime.Tuple, any) (runtime.Iterator, error) {
	return e.ticks(), nil
}

func (e *Env) ticks() runtime.Iterator {
	rows := make([]any, 0, len(e.Ticks))
	for _, row := range e.Ticks {
		rows = append(rows, copyRow(row))
	}
	return runtime.NewSliceIterator(rows)
}

func (e *Env) ReadState(_ context.Context, id int) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states[id], nil
}

func (e *Env) WriteState(_ context.Context, id int, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.states[id] = value
	return nil
}

func (e *Env) Output(_ context.Context, outputType any, output runtime.Row) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outputs = append(e.outputs, Output{Type: outputType, Row: output})
	return nil
}

// FormatEvent renders the output as "key=value" pairs in key order.
func (e *Env) FormatEvent(_ context.Context, hint string, outputType any, output runtime.Row) (string, error) {
	keys := make([]string, 0, len(output))
	for k := range output {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var fields []string
	for _, k := range keys {
		fields = append(fields, fmt.Sprintf("%s=%v", k, output[k]))
	}
	return strings.Join(fields, " "), nil
}

func (e *Env) LoadContext(_ context.Context, name string, _ ast.Type) (any, error) {
	v, ok := e.Context[name]
	if !ok {
		return nil, fmt.Errorf("context value %q is not available", name)
	}
	return v, nil
}

func (e *Env) SendEndOfFlow(_ context.Context, principal, flow any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.endOfFlows = append(e.endOfFlows, runtime.Tuple{principal, flow})
	return nil
}

func (e *Env) ReportError(message string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reports = append(e.reports, Report{Message: message, Err: err})
}

func (e *Env) ProgramID() string {
	return e.ID
}

func (e *Env) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

func (e *Env) Outputs() []Output {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Output(nil), e.outputs...)
}

func (e *Env) Reports() []Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Report(nil), e.reports...)
}

func (e *Env) EndOfFlows() []runtime.Tuple {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]runtime.Tuple(nil), e.endOfFlows...)
}

func (e *Env) DBQueries() []*ast.Program {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*ast.Program(nil), e.dbQueries...)
}

func (e *Env) State(id int) any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states[id]
}

func applyHints(rows []runtime.Row, hints *runtime.Hints) []runtime.Row {
	rows = append([]runtime.Row(nil), rows...)
	if hints.Sort != nil {
		field, desc := hints.Sort[0], hints.Sort[1] == "desc"
		sort.SliceStable(rows, func(i, j int) bool {
			if desc {
				return less(rows[j][field], rows[i][field])
			}
			return less(rows[i][field], rows[j][field])
		})
	}
	if hints.Limit != nil && *hints.Limit >= 0 && *hints.Limit < len(rows) {
		rows = rows[:*hints.Limit]
	}
	return rows
}

func less(a, b any) bool {
	switch a := a.(type) {
	case float64:
		b, ok := b.(float64)
		return ok && a < b
	case string:
		b, ok := b.(string)
		return ok && a < b
	}
	return false
}

func copyRow(row runtime.Row) runtime.Row {
	out := make(runtime.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
