package compiler

import (
	"context"
	"strings"

	"github.com/brimdata/ruleflow/compiler/ast"
	"github.com/brimdata/ruleflow/compiler/ir"
	"github.com/brimdata/ruleflow/runtime"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Procedure is a compiled declaration.  Its program takes the declared
// arguments, in order, and emits its results.
type Procedure struct {
	Name    string
	Kind    ast.DeclarationKind
	Args    []string
	Program *ir.Program
}

type Program struct {
	ID           ksuid.KSUID
	Declarations []*Procedure
	// Assignments run in order before the rules and the command.
	Assignments []*ir.Program
	Rules       []*ir.Program
	// Command is nil if the program has no command.
	Command *ir.Program
	// States is the number of persistent state slots used by the
	// rules.  Slot IDs are unique within the program.
	States int
	ASTs   []*ast.Program
}

// Bind makes the declarations and database queries of p available to
// programs run with rctx.
func (p *Program) Bind(rctx *runtime.Context) {
	for _, proc := range p.Declarations {
		rctx.Procedures[proc.Name] = proc.Program
	}
	rctx.ASTs = p.ASTs
}

// Run runs the assignments of p in order, then the command and every
// rule concurrently in env until they are all done or ctx is canceled.
func (p *Program) Run(ctx context.Context, env runtime.Environment, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	rctx := runtime.NewContext(ctx, env, logger.With(zap.Stringer("program", p.ID)))
	defer rctx.Cancel()
	p.Bind(rctx)
	for _, assignment := range p.Assignments {
		if err := runtime.Run(rctx, assignment); err != nil {
			return err
		}
	}
	var group errgroup.Group
	if p.Command != nil {
		group.Go(func() error { return runtime.Run(rctx, p.Command) })
	}
	for _, rule := range p.Rules {
		rule := rule
		group.Go(func() error { return runtime.Run(rctx, rule) })
	}
	return group.Wait()
}

// String renders every function body of p in declaration order.
func (p *Program) String() string {
	var b strings.Builder
	for _, proc := range p.Declarations {
		b.WriteString(ir.Format(proc.Program))
	}
	for _, assignment := range p.Assignments {
		b.WriteString(ir.Format(assignment))
	}
	for _, rule := range p.Rules {
		b.WriteString(ir.Format(rule))
	}
	if p.Command != nil {
		b.WriteString(ir.Format(p.Command))
	}
	return b.String()
}
