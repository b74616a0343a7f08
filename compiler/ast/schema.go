package ast

type ArgDirection int

const (
	InReq ArgDirection = iota
	InOpt
	Out
)

func (d ArgDirection) String() string {
	switch d {
	case InReq:
		return "in req"
	case InOpt:
		return "in opt"
	case Out:
		return "out"
	}
	return "unknown"
}

type FunctionType string

const (
	QueryFunction  FunctionType = "query"
	ActionFunction FunctionType = "action"
	StreamFunction FunctionType = "stream"
)

type ArgumentDef struct {
	Name      string       `json:"name"`
	Direction ArgDirection `json:"direction"`
	Type      Type         `json:"type"`
}

func (a *ArgumentDef) IsInput() bool {
	return a.Direction != Out
}

// FunctionDef is the resolved signature of a query, action or stream,
// either as declared by a device class or as computed by the typechecker
// for a derived expression (filter, projection, join, ...).
type FunctionDef struct {
	Type              FunctionType     `json:"type"`
	Class             string           `json:"class"`
	Name              string           `json:"name"`
	Args              []*ArgumentDef   `json:"args"`
	IsList            bool             `json:"is_list"`
	IsMonitorable     bool             `json:"is_monitorable"`
	MinimalProjection []string         `json:"minimal_projection"`
	DefaultProjection []string         `json:"default_projection"`
	Annotations       map[string]Value `json:"annotations"`
}

func (f *FunctionDef) Argument(name string) *ArgumentDef {
	for _, a := range f.Args {
		if a.Name == name {
			return a
		}
	}
	return nil
}

func (f *FunctionDef) HasArgument(name string) bool {
	return f.Argument(name) != nil
}

// ArgType returns the type of the named argument or nil.
func (f *FunctionDef) ArgType(name string) Type {
	if a := f.Argument(name); a != nil {
		return a.Type
	}
	return nil
}

// InType returns the type of the named input argument, required or
// optional, or nil if name is not an input of f.
func (f *FunctionDef) InType(name string) Type {
	if a := f.Argument(name); a != nil && a.IsInput() {
		return a.Type
	}
	return nil
}

func (f *FunctionDef) IsInput(name string) bool {
	return f.InType(name) != nil
}

func (f *FunctionDef) Outputs() []*ArgumentDef {
	var out []*ArgumentDef
	for _, a := range f.Args {
		if a.Direction == Out {
			out = append(out, a)
		}
	}
	return out
}

func (f *FunctionDef) OutputNames() []string {
	var names []string
	for _, a := range f.Outputs() {
		names = append(names, a.Name)
	}
	return names
}

func (f *FunctionDef) HasAnyOutputArg() bool {
	return len(f.Outputs()) > 0
}

// HandleThingTalk reports whether the backing device wants the full
// sub-query rather than individual invocations.
func (f *FunctionDef) HandleThingTalk() bool {
	if v, ok := f.Annotations["handle_thingtalk"].(*BooleanValue); ok {
		return v.Value
	}
	return false
}

// Filtered returns a copy of f that keeps all input arguments and only
// the output arguments named in keep.
func (f *FunctionDef) Filtered(keep []string) *FunctionDef {
	set := make(map[string]bool)
	for _, name := range keep {
		set[name] = true
	}
	out := f.copy()
	out.Args = nil
	for _, a := range f.Args {
		if a.IsInput() || set[a.Name] {
			out.Args = append(out.Args, a)
		}
	}
	return out
}

// WithArgument returns a copy of f with arg appended, replacing any
// argument with the same name.
func (f *FunctionDef) WithArgument(arg *ArgumentDef) *FunctionDef {
	out := f.copy()
	out.Args = nil
	for _, a := range f.Args {
		if a.Name != arg.Name {
			out.Args = append(out.Args, a)
		}
	}
	out.Args = append(out.Args, arg)
	return out
}

// Joined computes the signature of a join of lhs and rhs where the names
// in passed are inputs of rhs bound from lhs and are therefore no longer
// inputs of the result.  Arguments of rhs take precedence over arguments
// of lhs with the same name.
func Joined(lhs, rhs *FunctionDef, passed []string) *FunctionDef {
	bound := make(map[string]bool)
	for _, name := range passed {
		bound[name] = true
	}
	out := &FunctionDef{
		Type:          lhs.Type,
		IsList:        lhs.IsList || rhs.IsList,
		IsMonitorable: lhs.IsMonitorable && rhs.IsMonitorable,
	}
	seen := make(map[string]bool)
	for _, a := range rhs.Args {
		if a.IsInput() && bound[a.Name] {
			continue
		}
		seen[a.Name] = true
		out.Args = append(out.Args, a)
	}
	for _, a := range lhs.Args {
		if seen[a.Name] {
			continue
		}
		out.Args = append(out.Args, a)
	}
	out.MinimalProjection = append(append([]string{}, lhs.MinimalProjection...), rhs.MinimalProjection...)
	return out
}

func (f *FunctionDef) copy() *FunctionDef {
	out := *f
	out.Args = append([]*ArgumentDef{}, f.Args...)
	return &out
}

// DefaultProjection returns the parameters shown to the user by "notify":
// the declared default projection plus the minimal projection, or every
// output parameter when no default projection is declared.
func DefaultProjection(f *FunctionDef) []string {
	if f == nil {
		return nil
	}
	if len(f.DefaultProjection) == 0 {
		return f.OutputNames()
	}
	var names []string
	seen := make(map[string]bool)
	for _, list := range [][]string{f.MinimalProjection, f.DefaultProjection} {
		for _, name := range list {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}
