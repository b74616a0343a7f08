package runtime

import (
	"context"
	"sync"

	"github.com/brimdata/ruleflow/compiler/ast"
	"github.com/brimdata/ruleflow/compiler/ir"
	"go.uber.org/zap"
)

// Context provides the state shared by every function body of one
// compiled program: the environment it runs in, the procedures bound
// to its declarations and the ASTs of its database queries.
type Context struct {
	context.Context
	// WaitGroup is used to ensure that merge and procedure goroutines
	// finish before Cancel returns.
	WaitGroup  sync.WaitGroup
	Env        Environment
	Logger     *zap.Logger
	Procedures map[string]*ir.Program
	ASTs       []*ast.Program
	cancel     context.CancelFunc
}

func NewContext(ctx context.Context, env Environment, logger *zap.Logger) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Context{
		Context:    ctx,
		Env:        env,
		Logger:     logger,
		Procedures: make(map[string]*ir.Program),
		cancel:     cancel,
	}
}

// Cancel cancels the context.  Cancel must be called to ensure that
// goroutines started on behalf of the program exit.
func (c *Context) Cancel() {
	c.cancel()
	c.WaitGroup.Wait()
}

func (c *Context) goroutine(f func()) {
	c.WaitGroup.Add(1)
	go func() {
		defer c.WaitGroup.Done()
		f()
	}()
}
