package ir

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/brimdata/ruleflow/compiler/ast"
	"github.com/kr/text"
)

// Format renders p as a JavaScript-like listing, one statement per line.
// Registers are named _t_N.
func Format(p *Program) string {
	f := &formatter{tab: 2}
	params := make(map[Register]bool)
	for _, r := range p.Params {
		params[r] = true
	}
	var regs []string
	for k := 0; k < p.Registers; k++ {
		if !params[Register(k)] {
			regs = append(regs, Register(k).String())
		}
	}
	if len(regs) > 0 {
		f.line("let %s;", strings.Join(regs, ", "))
	}
	f.block(p.Body)
	args := "__env, __emit"
	if len(p.Params) > 0 {
		args += ", " + registers(p.Params)
	}
	return "async function " + p.Name + "(" + args + ") {\n" + text.Indent(f.String(), "  ") + "}\n"
}

func (r Register) String() string {
	if r == NoRegister {
		return "null"
	}
	return "_t_" + strconv.Itoa(int(r))
}

type formatter struct {
	strings.Builder
	indent int
	tab    int
}

func (f *formatter) line(format string, args ...interface{}) {
	for k := 0; k < f.indent; k++ {
		f.WriteByte(' ')
	}
	fmt.Fprintf(&f.Builder, format, args...)
	f.WriteByte('\n')
}

func (f *formatter) open(format string, args ...interface{}) {
	f.line(format, args...)
	f.indent += f.tab
}

func (f *formatter) close(s string) {
	f.indent -= f.tab
	f.line("%s", s)
}

func (f *formatter) block(b *Block) {
	for _, i := range b.Instructions {
		f.instruction(i)
	}
}

func (f *formatter) instruction(i Instruction) {
	switch i := i.(type) {
	case *LoadConstant:
		f.line("%s = %s;", i.Into, constant(i.Value))
	case *Copy:
		f.line("%s = %s;", i.To, i.From)
	case *CreateObject:
		f.line("%s = {};", i.Into)
	case *CreateTuple:
		f.line("%s = new Array(%d);", i.Into, i.Size)
	case *SetKey:
		f.line("%s[%q] = %s;", i.Object, i.Key, i.Value)
	case *GetKey:
		f.line("%s = %s[%q];", i.Into, i.Object, i.Key)
	case *SetIndex:
		f.line("%s[%d] = %s;", i.Tuple, i.Index, i.Value)
	case *GetIndex:
		f.line("%s = %s[%d];", i.Into, i.Tuple, i.Index)
	case *BinaryOp:
		f.line("%s = %s %s %s;", i.Into, i.LHS, i.Op, i.RHS)
	case *UnaryOp:
		if isIdent(i.Op) {
			f.line("%s = %s(%s);", i.Into, i.Op, i.Arg)
		} else {
			f.line("%s = %s%s;", i.Into, i.Op, i.Arg)
		}
	case *BinaryFunctionOp:
		f.line("%s = __builtin.%s(%s, %s);", i.Into, i.Fn, i.LHS, i.RHS)
	case *FunctionOp:
		f.line("%s = __builtin.%s(%s);", i.Into, i.Fn, registers(i.Args))
	case *MapAndReadField:
		f.line("%s = %s.map((e) => e[%q]);", i.Into, i.Array, i.Field)
	case *GetEnvironment:
		f.line("%s = __env.%s;", i.Into, i.Name)
	case *FormatEvent:
		f.line("%s = await __env.formatEvent(%s, %s, %q);", i.Into, i.OutputType, i.Output, i.Hint)
	case *LoadContext:
		f.line("%s = await __env.loadContext(%q, %q);", i.Into, i.Name, typeName(i.Type))
	case *GetScope:
		f.line("%s = __scope.%s;", i.Into, i.Name)
	case *GetASTObject:
		f.line("%s = __ast[%d];", i.Into, i.ID)
	case *Iterator:
		f.line("%s = __builtin.getAsyncIterator(%s);", i.Into, i.Iterable)
	case *AsyncWhileLoop:
		f.open("for await (%s of %s) {", i.Into, i.Iterator)
		f.block(i.Body)
		f.close("}")
	case *AsyncFunctionExpression:
		f.open("%s = async function(__emit) {", i.Into)
		f.block(i.Body)
		f.close("}")
	case *IfStatement:
		f.open("if (%s) {", i.Cond)
		f.block(i.IfTrue)
		if i.IfFalse != nil && len(i.IfFalse.Instructions) > 0 {
			f.indent -= f.tab
			f.open("} else {")
			f.block(i.IfFalse)
		}
		f.close("}")
	case *TryCatch:
		f.open("try {")
		f.block(i.Try)
		f.indent -= f.tab
		f.open("} catch(_exc_) {")
		f.line("__env.reportError(%q, _exc_);", i.Message)
		f.close("}")
	case *Break:
		f.line("break;")
	case *InvokeMonitor:
		f.line("%s = await __env.invokeMonitor(%q, %s, %q, %s, %s);", i.Into, i.Kind, attrs(i.Attrs), i.Function, i.Args, hints(i.Hints))
	case *InvokeQuery:
		f.line("%s = await __env.invokeQuery(%q, %s, %q, %s, %s);", i.Into, i.Kind, attrs(i.Attrs), i.Function, i.Args, hints(i.Hints))
	case *InvokeDBQuery:
		f.line("%s = await __env.invokeDBQuery(%q, %s, %s);", i.Into, i.Kind, attrs(i.Attrs), i.Query)
	case *InvokeAction:
		f.line("%s = await __env.invokeAction(%q, %s, %q, %s);", i.Into, i.Kind, attrs(i.Attrs), i.Function, i.Args)
	case *InvokeVoidAction:
		f.line("await __env.invokeAction(%q, %s, %q, %s);", i.Kind, attrs(i.Attrs), i.Function, i.Args)
	case *InvokeStreamVarRef:
		f.line("%s = await __builtin.invokeStreamVarRef(__env, %s);", i.Into, registers(append([]Register{i.Function}, i.Args...)))
	case *InvokeTimer:
		f.line("%s = await __env.invokeTimer(%s, %s, %s);", i.Into, i.Base, i.Interval, i.Frequency)
	case *InvokeAtTimer:
		f.line("%s = await __env.invokeAtTimer(%s, %s);", i.Into, i.Times, i.Expiration)
	case *InvokeReadState:
		f.line("%s = await __env.readState(%d);", i.Into, i.State)
	case *InvokeWriteState:
		f.line("await __env.writeState(%d, %s);", i.State, i.Value)
	case *InvokeOutput:
		f.line("await __env.output(String(%s), %s);", i.OutputType, i.Output)
	case *InvokeEmit:
		f.line("__emit(%s, %s);", i.OutputType, i.Output)
	case *SendEndOfFlow:
		f.line("await __env.sendEndOfFlow(%s, %s);", i.Principal, i.Flow)
	case *CheckIsNewTuple:
		f.line("%s = __builtin.isNewTuple(%s, %s, %s);", i.Into, i.State, i.Tuple, quoted(i.Keys))
	case *AddTupleToState:
		f.line("%s = __builtin.addTuple(%s, %s);", i.Into, i.State, i.Tuple)
	default:
		f.line("/* unknown instruction %T */", i)
	}
}

func constant(v ast.Value) string {
	if v == nil {
		return "null"
	}
	return ast.FormatValue(v)
}

func registers(regs []Register) string {
	s := make([]string, 0, len(regs))
	for _, r := range regs {
		s = append(s, r.String())
	}
	return strings.Join(s, ", ")
}

func quoted(names []string) string {
	s := make([]string, 0, len(names))
	for _, name := range names {
		s = append(s, strconv.Quote(name))
	}
	return "[" + strings.Join(s, ", ") + "]"
}

func attrs(m map[string]ast.Value) string {
	if len(m) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := make([]string, 0, len(keys))
	for _, k := range keys {
		s = append(s, k+": "+constant(m[k]))
	}
	return "{ " + strings.Join(s, ", ") + " }"
}

func hints(h *Hints) string {
	if h == nil {
		return "{}"
	}
	s := []string{"projection: " + quoted(h.Projection)}
	if h.Filter != NoRegister {
		s = append(s, "filter: "+h.Filter.String())
	}
	if h.Sort != nil {
		s = append(s, "sort: "+quoted(h.Sort[:]))
	}
	if h.Limit != nil {
		s = append(s, "limit: "+strconv.Itoa(*h.Limit))
	}
	return "{ " + strings.Join(s, ", ") + " }"
}

func typeName(t ast.Type) string {
	if t == nil {
		return "Any"
	}
	return t.String()
}

func isIdent(op string) bool {
	for _, c := range op {
		if !(c == '_' || c == '.' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return op != ""
}
