package runtime

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// generator is an iterator over the results emitted by one or more
// function bodies that run in their own goroutines.  Results of one
// body arrive in order; results of different bodies interleave.
type generator struct {
	ch       chan Tuple
	done     chan error
	cancel   context.CancelFunc
	finished bool
	err      error
}

func generate(ctx context.Context, rctx *Context, fns ...func(context.Context, emitFunc) error) *generator {
	ctx, cancel := context.WithCancel(ctx)
	g := &generator{
		ch:     make(chan Tuple),
		done:   make(chan error, 1),
		cancel: cancel,
	}
	group, gctx := errgroup.WithContext(ctx)
	for _, fn := range fns {
		fn := fn
		group.Go(func() error {
			return fn(gctx, func(ctx context.Context, outputType, output any) error {
				select {
				case g.ch <- Tuple{outputType, output}:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
		})
	}
	rctx.goroutine(func() {
		g.done <- group.Wait()
		close(g.ch)
	})
	return g
}

func (g *generator) Next(ctx context.Context) (any, bool, error) {
	if g.finished {
		return nil, false, g.err
	}
	select {
	case t, ok := <-g.ch:
		if ok {
			return t, true, nil
		}
		g.finished = true
		g.err = <-g.done
		g.cancel()
		return nil, false, g.err
	case <-ctx.Done():
		g.cancel()
		return nil, false, ctx.Err()
	}
}

// Close stops the bodies still running.
func (g *generator) Close() error {
	g.cancel()
	return nil
}

// crossJoin runs both bodies to completion concurrently and pairs every
// result of lhs with every result of rhs.  Parameters of rhs take
// precedence over parameters of lhs with the same name.
func crossJoin(ctx context.Context, lhs, rhs func(context.Context, emitFunc) error) (Iterator, error) {
	var left, right []Tuple
	collect := func(out *[]Tuple) emitFunc {
		return func(_ context.Context, outputType, output any) error {
			*out = append(*out, Tuple{outputType, output})
			return nil
		}
	}
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return lhs(gctx, collect(&left)) })
	group.Go(func() error { return rhs(gctx, collect(&right)) })
	if err := group.Wait(); err != nil {
		return nil, err
	}
	var pairs []any
	for _, l := range left {
		for _, r := range right {
			outputType, _ := combineOutputTypes(l[0], r[0])
			pairs = append(pairs, Tuple{outputType, mergeRows(asRow(l[1]), asRow(r[1]))})
		}
	}
	return NewSliceIterator(pairs), nil
}

func mergeRows(lhs, rhs Row) Row {
	out := make(Row, len(lhs)+len(rhs))
	for k, v := range lhs {
		out[k] = v
	}
	for k, v := range rhs {
		out[k] = v
	}
	return out
}
