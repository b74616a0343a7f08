package ast

// Constructors for derived nodes.  The signature of each derived node
// is computed from its children the way the typechecker computes it.

func NewInvocation(kind, channel string, schema *FunctionDef, params ...*InputParam) *Invocation {
	sel := &DeviceSelector{Kind: kind}
	return &Invocation{
		Selector:          sel,
		Channel:           channel,
		InParams:          params,
		Schema:            schema,
		EffectiveSelector: sel,
	}
}

func NewInvocationTable(inv *Invocation) *InvocationTable {
	return &InvocationTable{Typed: Typed{inv.Schema}, Invocation: inv}
}

func NewVarRefTable(name string, schema *FunctionDef, params ...*InputParam) *VarRefTable {
	return &VarRefTable{Typed: Typed{schema}, Name: name, InParams: params}
}

func NewFilterTable(t Table, filter BooleanExpression) *FilterTable {
	return &FilterTable{Typed: Typed{t.Signature()}, Table: t, Filter: filter}
}

func NewProjectionTable(t Table, args ...string) *ProjectionTable {
	return &ProjectionTable{Typed: Typed{t.Signature().Filtered(args)}, Table: t, Args: args}
}

func NewComputeTable(t Table, expr Value, alias string) *ComputeTable {
	if alias == "" {
		alias = ScalarExpressionName(expr)
	}
	schema := t.Signature().WithArgument(&ArgumentDef{Name: alias, Direction: Out, Type: valueType(expr, t.Signature())})
	return &ComputeTable{Typed: Typed{schema}, Table: t, Expression: expr, Alias: alias}
}

func NewAggregationTable(t Table, op, field, alias string) *AggregationTable {
	name := alias
	var typ Type = Number
	if name == "" {
		if field == "*" || op == "count" {
			name = "count"
		} else {
			name = field
		}
	}
	if op != "count" {
		typ = t.Signature().ArgType(field)
	}
	child := t.Signature()
	schema := &FunctionDef{
		Type:  child.Type,
		Class: child.Class,
		Name:  child.Name,
	}
	for _, a := range child.Args {
		if a.IsInput() {
			schema.Args = append(schema.Args, a)
		}
	}
	schema.Args = append(schema.Args, &ArgumentDef{Name: name, Direction: Out, Type: typ})
	return &AggregationTable{Typed: Typed{schema}, Table: t, Field: field, Operator: op, Alias: alias}
}

func NewSortTable(t Table, field, direction string) *SortTable {
	return &SortTable{Typed: Typed{t.Signature()}, Table: t, Field: field, Direction: direction}
}

func NewIndexTable(t Table, indices ...Value) *IndexTable {
	schema := t.Signature()
	if len(indices) == 1 {
		schema = schema.copy()
		schema.IsList = false
	}
	return &IndexTable{Typed: Typed{schema}, Table: t, Indices: indices}
}

func NewSliceTable(t Table, base, limit Value) *SliceTable {
	return &SliceTable{Typed: Typed{t.Signature()}, Table: t, Base: base, Limit: limit}
}

func NewJoinTable(lhs, rhs Table, params ...*InputParam) *JoinTable {
	schema := Joined(lhs.Signature(), rhs.Signature(), paramNames(params))
	return &JoinTable{Typed: Typed{schema}, LHS: lhs, RHS: rhs, InParams: params}
}

func NewMonitorStream(t Table, args ...string) *MonitorStream {
	schema := t.Signature().copy()
	schema.Type = StreamFunction
	return &MonitorStream{Typed: Typed{schema}, Table: t, Args: args}
}

func NewVarRefStream(name string, schema *FunctionDef, params ...*InputParam) *VarRefStream {
	return &VarRefStream{Typed: Typed{schema}, Name: name, InParams: params}
}

func NewTimerStream(base, interval, frequency Value) *TimerStream {
	return &TimerStream{Typed: Typed{timerSchema()}, Base: base, Interval: interval, Frequency: frequency}
}

func NewAtTimerStream(expiration Value, times ...Value) *AtTimerStream {
	return &AtTimerStream{Typed: Typed{timerSchema()}, Times: times, ExpirationDate: expiration}
}

func NewEdgeNewStream(s Stream) *EdgeNewStream {
	return &EdgeNewStream{Typed: Typed{s.Signature()}, Stream: s}
}

func NewEdgeFilterStream(s Stream, filter BooleanExpression) *EdgeFilterStream {
	return &EdgeFilterStream{Typed: Typed{s.Signature()}, Stream: s, Filter: filter}
}

func NewFilterStream(s Stream, filter BooleanExpression) *FilterStream {
	return &FilterStream{Typed: Typed{s.Signature()}, Stream: s, Filter: filter}
}

func NewProjectionStream(s Stream, args ...string) *ProjectionStream {
	return &ProjectionStream{Typed: Typed{s.Signature().Filtered(args)}, Stream: s, Args: args}
}

func NewComputeStream(s Stream, expr Value, alias string) *ComputeStream {
	if alias == "" {
		alias = ScalarExpressionName(expr)
	}
	schema := s.Signature().WithArgument(&ArgumentDef{Name: alias, Direction: Out, Type: valueType(expr, s.Signature())})
	return &ComputeStream{Typed: Typed{schema}, Stream: s, Expression: expr, Alias: alias}
}

func NewJoinStream(s Stream, t Table, params ...*InputParam) *JoinStream {
	schema := Joined(s.Signature(), t.Signature(), paramNames(params))
	schema.Type = StreamFunction
	return &JoinStream{Typed: Typed{schema}, Stream: s, Table: t, InParams: params}
}

func timerSchema() *FunctionDef {
	return &FunctionDef{Type: StreamFunction, IsMonitorable: true}
}

func paramNames(params []*InputParam) []string {
	names := make([]string, 0, len(params))
	for _, p := range params {
		names = append(names, p.Name)
	}
	return names
}

func valueType(v Value, schema *FunctionDef) Type {
	if ref, ok := v.(*VarRef); ok {
		return schema.ArgType(ref.Name)
	}
	return TypeOf(v)
}
