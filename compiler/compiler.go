// Package compiler drives the compilation of typed programs: every
// declaration and statement is translated to operators, optimized and
// lowered to a register program.
package compiler

import (
	"errors"
	"fmt"

	"github.com/brimdata/ruleflow/compiler/ast"
	"github.com/brimdata/ruleflow/compiler/ir"
	"github.com/brimdata/ruleflow/compiler/kernel"
	"github.com/brimdata/ruleflow/compiler/ops"
	"github.com/brimdata/ruleflow/compiler/optimizer"
	"github.com/brimdata/ruleflow/compiler/semantic"
	rfe "github.com/brimdata/ruleflow/errors"
	"github.com/brimdata/ruleflow/pkg/logger"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/ksuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type Compiler struct {
	logger  *zap.Logger
	conf    Config
	metrics *metrics
	cache   *lru.Cache[string, *Program]
}

func New(logger *zap.Logger, registerer prometheus.Registerer, conf Config) (*Compiler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if conf.DefaultCurrency == "" {
		conf.DefaultCurrency = DefaultCurrency
	}
	c := &Compiler{
		logger:  logger,
		conf:    conf,
		metrics: newMetrics(registerer),
	}
	if conf.CacheSize > 0 {
		cache, err := lru.New[string, *Program](conf.CacheSize)
		if err != nil {
			return nil, err
		}
		c.cache = cache
	}
	return c, nil
}

// NewFromConfig returns a compiler that logs as conf.Log says.
func NewFromConfig(registerer prometheus.Registerer, conf Config) (*Compiler, error) {
	l, err := logger.New(conf.Log)
	if err != nil {
		return nil, err
	}
	return New(l, registerer, conf)
}

func (c *Compiler) Logger() *zap.Logger {
	return c.logger
}

// Compile compiles every declaration and statement of prog.  Errors of
// individual statements are combined so that one unsupported statement
// does not hide the others; no program is returned unless all of them
// compiled.
func (c *Compiler) Compile(prog *ast.Program) (*Program, error) {
	out := &Program{ID: ksuid.New()}
	logger := c.logger.With(zap.Stringer("program", out.ID))
	alloc := kernel.NewAllocator()
	global := kernel.NewScope(nil)
	var errs error
	for _, decl := range prog.Declarations {
		proc, err := c.compileDeclaration(logger, alloc, global, decl)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", decl.Name, err))
			continue
		}
		out.Declarations = append(out.Declarations, proc)
		// Later declarations and statements may refer to this one.
		global.Set(decl.Name, &kernel.Entry{
			Kind:     kernel.Declaration,
			Register: ir.NoRegister,
			Schema:   decl.Schema,
			Args:     decl.Args,
		})
	}
	for k, stmt := range prog.Statements {
		if a, ok := stmt.(*ast.Assignment); ok {
			assignment, err := c.compileAssignment(logger, alloc, global, a)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("statement %d: %w", k, err))
				continue
			}
			out.Assignments = append(out.Assignments, assignment)
			continue
		}
		rule, err := semantic.Analyze(stmt)
		if err != nil {
			c.countNotImplemented(err)
			errs = multierr.Append(errs, fmt.Errorf("statement %d: %w", k, err))
			continue
		}
		opts := kernel.Options{ForProcedure: c.conf.ForProcedure, DefaultCurrency: c.conf.DefaultCurrency}
		b := kernel.NewBuilder(logger, alloc, global, opts)
		switch stmt.(type) {
		case *ast.Rule:
			out.Rules = append(out.Rules, b.CompileStatement(fmt.Sprintf("rule%d", len(out.Rules)), rule))
			c.metrics.compiled.WithLabelValues("rule").Inc()
		case *ast.Command:
			if out.Command != nil {
				errs = multierr.Append(errs, rfe.E(rfe.Invalid, "statement %d: a program has at most one command", k))
				continue
			}
			out.Command = b.CompileStatement("command", rule)
			c.metrics.compiled.WithLabelValues("command").Inc()
		}
	}
	if errs != nil {
		return nil, errs
	}
	out.States = alloc.States()
	out.ASTs = alloc.ASTs()
	c.metrics.states.Add(float64(out.States))
	logger.Debug("compiled program",
		zap.Int("declarations", len(out.Declarations)),
		zap.Int("assignments", len(out.Assignments)),
		zap.Int("rules", len(out.Rules)),
		zap.Bool("command", out.Command != nil),
		zap.Int("states", out.States))
	return out, nil
}

// CompileCached returns the program last compiled under key if it is
// still cached, and compiles and caches prog otherwise.
func (c *Compiler) CompileCached(key string, prog *ast.Program) (*Program, error) {
	if c.cache != nil {
		if p, ok := c.cache.Get(key); ok {
			c.metrics.cacheHits.Inc()
			return p, nil
		}
		c.metrics.cacheMisses.Inc()
	}
	p, err := c.Compile(prog)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.Add(key, p)
	}
	return p, nil
}

func (c *Compiler) compileDeclaration(logger *zap.Logger, alloc *kernel.Allocator, global *kernel.Scope, decl *ast.Declaration) (*Procedure, error) {
	if decl.Schema == nil {
		return nil, rfe.E(rfe.Invalid, "declaration has no signature")
	}
	opts := kernel.Options{ForProcedure: true, DefaultCurrency: c.conf.DefaultCurrency}
	b := kernel.NewBuilder(logger, alloc, global, opts)
	for _, arg := range decl.Args {
		b.DeclareParam(arg, decl.Schema.ArgType(arg))
	}
	proc := &Procedure{Name: decl.Name, Kind: decl.Kind, Args: decl.Args}
	hints := ops.NewHints(ops.NewFieldSet(decl.Schema.OutputNames()...))
	switch decl.Kind {
	case ast.StreamDeclaration:
		stream, ok := decl.Value.(ast.Stream)
		if !ok {
			return nil, rfe.E(rfe.Invalid, "stream declaration holds %T", decl.Value)
		}
		op, err := semantic.CompileStream(stream, hints)
		if err != nil {
			c.countNotImplemented(err)
			return nil, err
		}
		proc.Program = b.CompileStreamDeclaration(decl.Name, optimizer.OptimizeStream(op, true))
	case ast.QueryDeclaration:
		table, ok := decl.Value.(ast.Table)
		if !ok {
			return nil, rfe.E(rfe.Invalid, "query declaration holds %T", decl.Value)
		}
		op, err := semantic.CompileTable(table, nil, hints)
		if err != nil {
			c.countNotImplemented(err)
			return nil, err
		}
		proc.Program = b.CompileQueryDeclaration(decl.Name, optimizer.OptimizeTable(op, true))
	case ast.ActionDeclaration:
		action, ok := decl.Value.(ast.Action)
		if !ok {
			return nil, rfe.E(rfe.Invalid, "action declaration holds %T", decl.Value)
		}
		proc.Program = b.CompileActionDeclaration(decl.Name, action)
	default:
		return nil, rfe.E(rfe.Invalid, "unknown declaration kind %q", decl.Kind)
	}
	c.metrics.compiled.WithLabelValues("declaration").Inc()
	return proc, nil
}

// compileAssignment lowers a statement storing the results of a query
// or action and binds its name in global for the statements after it.
func (c *Compiler) compileAssignment(logger *zap.Logger, alloc *kernel.Allocator, global *kernel.Scope, a *ast.Assignment) (*ir.Program, error) {
	if a.Schema == nil {
		return nil, rfe.E(rfe.Invalid, "assignment to %s has no signature", a.Name)
	}
	if global.HasOwnKey(a.Name) {
		return nil, rfe.E(rfe.Invalid, "%s is already defined", a.Name)
	}
	opts := kernel.Options{DefaultCurrency: c.conf.DefaultCurrency}
	b := kernel.NewBuilder(logger, alloc, global, opts)
	name := "assign_" + a.Name
	var prog *ir.Program
	var state int
	switch v := a.Value.(type) {
	case ast.Table:
		hints := ops.NewHints(ops.NewFieldSet(a.Schema.OutputNames()...))
		op, err := semantic.CompileTable(v, nil, hints)
		if err != nil {
			c.countNotImplemented(err)
			return nil, err
		}
		prog, state = b.CompileAssignment(name, optimizer.OptimizeTable(op, true))
	case *ast.InvocationAction:
		if !v.Invocation.Schema.HasAnyOutputArg() {
			return nil, rfe.E(rfe.Invalid, "action assigned to %s has no results", a.Name)
		}
		prog, state = b.CompileActionAssignment(name, v.Invocation)
	default:
		return nil, rfe.E(rfe.Invalid, "cannot assign %T to %s", a.Value, a.Name)
	}
	global.Set(a.Name, &kernel.Entry{
		Kind:     kernel.Assignment,
		Register: ir.NoRegister,
		Schema:   a.Schema,
		State:    state,
	})
	c.metrics.compiled.WithLabelValues("assignment").Inc()
	return prog, nil
}

func (c *Compiler) countNotImplemented(err error) {
	var unsupported *semantic.UnsupportedError
	if rfe.IsNotImplemented(err) && errors.As(err, &unsupported) {
		c.metrics.notImplemented.WithLabelValues(unsupported.Construct).Inc()
	}
}
