package ir

// Builder appends instructions to the innermost open block.  Blocks are
// opened by PushBlock, usually right after adding the control
// instruction that owns them, and stay open until popped.  Everything
// that processes one tuple of a loop is nested inside the loop's body.
type Builder struct {
	registers int
	root      *Block
	stack     []*Block
}

func NewBuilder() *Builder {
	root := &Block{}
	return &Builder{
		root:  root,
		stack: []*Block{root},
	}
}

func (b *Builder) AllocRegister() Register {
	r := Register(b.registers)
	b.registers++
	return r
}

func (b *Builder) Add(i Instruction) {
	b.stack[len(b.stack)-1].Add(i)
}

// PushBlock opens block and returns the stack depth before it was
// opened, suitable for PopTo.
func (b *Builder) PushBlock(block *Block) int {
	depth := len(b.stack)
	b.stack = append(b.stack, block)
	return depth
}

func (b *Builder) PopBlock() {
	if len(b.stack) == 1 {
		panic("ir.Builder: pop of root block")
	}
	b.stack = b.stack[:len(b.stack)-1]
}

// SaveStackState returns the current depth of the block stack.
func (b *Builder) SaveStackState() int {
	return len(b.stack)
}

// PopTo closes blocks until the stack has the given depth.
func (b *Builder) PopTo(depth int) {
	if depth < 1 || depth > len(b.stack) {
		panic("ir.Builder: invalid stack depth")
	}
	b.stack = b.stack[:depth]
}

// PopAll closes every block except the root.
func (b *Builder) PopAll() {
	b.stack = b.stack[:1]
}

func (b *Builder) Program(name string, params ...Register) *Program {
	return &Program{
		Name:      name,
		Params:    params,
		Registers: b.registers,
		Body:      b.root,
	}
}
