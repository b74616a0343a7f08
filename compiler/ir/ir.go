// Package ir declares the block-structured register program produced by
// the kernel.  A program declares a fixed number of registers and a body
// of instructions; control instructions (loops, conditionals, try/catch
// and function expressions) own nested blocks.
package ir

import (
	"github.com/brimdata/ruleflow/compiler/ast"
)

// Register is a storage cell of a program.  Registers are allocated in
// increasing order and may be reassigned, e.g., once per loop iteration.
type Register int

const NoRegister Register = -1

type Block struct {
	Instructions []Instruction
}

func (b *Block) Add(i Instruction) {
	b.Instructions = append(b.Instructions, i)
}

type Instruction interface {
	InstructionNode()
}

// Hints are the compiled form of query hints.  Filter is a register
// holding a tuple of [name, operator, value] clauses or NoRegister.
type Hints struct {
	Projection []string
	Filter     Register
	Sort       *[2]string
	Limit      *int
}

// Values, objects and tuples
type (
	// LoadConstant loads Value, or null if Value is nil.
	LoadConstant struct {
		Value ast.Value
		Into  Register
	}
	Copy struct {
		From Register
		To   Register
	}
	CreateObject struct {
		Into Register
	}
	CreateTuple struct {
		Size int
		Into Register
	}
	SetKey struct {
		Object Register
		Key    string
		Value  Register
	}
	GetKey struct {
		Object Register
		Key    string
		Into   Register
	}
	SetIndex struct {
		Tuple Register
		Index int
		Value Register
	}
	GetIndex struct {
		Tuple Register
		Index int
		Into  Register
	}
	BinaryOp struct {
		LHS  Register
		RHS  Register
		Op   string
		Into Register
	}
	UnaryOp struct {
		Arg  Register
		Op   string
		Into Register
	}
	// BinaryFunctionOp calls the builtin Fn with two arguments.
	BinaryFunctionOp struct {
		LHS  Register
		RHS  Register
		Fn   string
		Into Register
	}
	FunctionOp struct {
		Fn   string
		Into Register
		Args []Register
	}
	// MapAndReadField reads Field of every element of Array.
	MapAndReadField struct {
		Into  Register
		Array Register
		Field string
	}
	GetEnvironment struct {
		Name string
		Into Register
	}
	FormatEvent struct {
		Hint       string
		OutputType Register
		Output     Register
		Into       Register
	}
	LoadContext struct {
		Name string
		Type ast.Type
		Into Register
	}
	// GetScope loads the procedure bound to Name in the global scope.
	GetScope struct {
		Name string
		Into Register
	}
	GetASTObject struct {
		ID   int
		Into Register
	}
)

// Control
type (
	Iterator struct {
		Into     Register
		Iterable Register
	}
	// AsyncWhileLoop binds Into to each element produced by Iterator
	// and runs Body.
	AsyncWhileLoop struct {
		Into     Register
		Iterator Register
		Body     *Block
	}
	// AsyncFunctionExpression binds Into to a function of one emit
	// callback whose body is Body.  It is only passed to builtin merge
	// combinators.
	AsyncFunctionExpression struct {
		Into Register
		Body *Block
	}
	IfStatement struct {
		Cond    Register
		IfTrue  *Block
		IfFalse *Block
	}
	// TryCatch runs Try and reports any error with Message.
	TryCatch struct {
		Message string
		Try     *Block
	}
	// Break leaves the innermost loop.
	Break struct{}
)

// Environment calls
type (
	InvokeMonitor struct {
		Kind     string
		Attrs    map[string]ast.Value
		Function string
		Into     Register
		Args     Register
		Hints    *Hints
	}
	InvokeQuery struct {
		Kind     string
		Attrs    map[string]ast.Value
		Function string
		Into     Register
		Args     Register
		Hints    *Hints
	}
	InvokeDBQuery struct {
		Kind  string
		Attrs map[string]ast.Value
		Into  Register
		Query Register
	}
	InvokeAction struct {
		Kind     string
		Attrs    map[string]ast.Value
		Function string
		Into     Register
		Args     Register
	}
	InvokeVoidAction struct {
		Kind     string
		Attrs    map[string]ast.Value
		Function string
		Args     Register
	}
	InvokeStreamVarRef struct {
		Function Register
		Into     Register
		Args     []Register
	}
	// InvokeTimer has no frequency when Frequency is NoRegister.
	InvokeTimer struct {
		Into      Register
		Base      Register
		Interval  Register
		Frequency Register
	}
	InvokeAtTimer struct {
		Into       Register
		Times      Register
		Expiration Register
	}
	InvokeReadState struct {
		Into  Register
		State int
	}
	InvokeWriteState struct {
		Value Register
		State int
	}
	InvokeOutput struct {
		OutputType Register
		Output     Register
	}
	// InvokeEmit hands a result to the emit callback of the enclosing
	// function expression or procedure.
	InvokeEmit struct {
		OutputType Register
		Output     Register
	}
	SendEndOfFlow struct {
		Principal Register
		Flow      Register
	}
	// CheckIsNewTuple sets Into to whether Tuple differs, on Keys, from
	// every tuple in State.
	CheckIsNewTuple struct {
		Into  Register
		State Register
		Tuple Register
		Keys  []string
	}
	AddTupleToState struct {
		Into  Register
		State Register
		Tuple Register
	}
)

func (*LoadConstant) InstructionNode()            {}
func (*Copy) InstructionNode()                    {}
func (*CreateObject) InstructionNode()            {}
func (*CreateTuple) InstructionNode()             {}
func (*SetKey) InstructionNode()                  {}
func (*GetKey) InstructionNode()                  {}
func (*SetIndex) InstructionNode()                {}
func (*GetIndex) InstructionNode()                {}
func (*BinaryOp) InstructionNode()                {}
func (*UnaryOp) InstructionNode()                 {}
func (*BinaryFunctionOp) InstructionNode()        {}
func (*FunctionOp) InstructionNode()              {}
func (*MapAndReadField) InstructionNode()         {}
func (*GetEnvironment) InstructionNode()          {}
func (*FormatEvent) InstructionNode()             {}
func (*LoadContext) InstructionNode()             {}
func (*GetScope) InstructionNode()                {}
func (*GetASTObject) InstructionNode()            {}
func (*Iterator) InstructionNode()                {}
func (*AsyncWhileLoop) InstructionNode()          {}
func (*AsyncFunctionExpression) InstructionNode() {}
func (*IfStatement) InstructionNode()             {}
func (*TryCatch) InstructionNode()                {}
func (*Break) InstructionNode()                   {}
func (*InvokeMonitor) InstructionNode()           {}
func (*InvokeQuery) InstructionNode()             {}
func (*InvokeDBQuery) InstructionNode()           {}
func (*InvokeAction) InstructionNode()            {}
func (*InvokeVoidAction) InstructionNode()        {}
func (*InvokeStreamVarRef) InstructionNode()      {}
func (*InvokeTimer) InstructionNode()             {}
func (*InvokeAtTimer) InstructionNode()           {}
func (*InvokeReadState) InstructionNode()         {}
func (*InvokeWriteState) InstructionNode()        {}
func (*InvokeOutput) InstructionNode()            {}
func (*InvokeEmit) InstructionNode()              {}
func (*SendEndOfFlow) InstructionNode()           {}
func (*CheckIsNewTuple) InstructionNode()         {}
func (*AddTupleToState) InstructionNode()         {}

// Program is one compiled function body.  Params are the registers
// bound to the arguments of a procedure, in declaration order.
type Program struct {
	Name      string
	Params    []Register
	Registers int
	Body      *Block
}

// Blocks returns the blocks owned by i.
func Blocks(i Instruction) []*Block {
	switch i := i.(type) {
	case *AsyncWhileLoop:
		return []*Block{i.Body}
	case *AsyncFunctionExpression:
		return []*Block{i.Body}
	case *IfStatement:
		return []*Block{i.IfTrue, i.IfFalse}
	case *TryCatch:
		return []*Block{i.Try}
	}
	return nil
}

// Walk calls visit for every instruction of b in program order,
// descending into nested blocks.
func Walk(b *Block, visit func(Instruction)) {
	if b == nil {
		return
	}
	for _, i := range b.Instructions {
		visit(i)
		for _, nested := range Blocks(i) {
			Walk(nested, visit)
		}
	}
}
