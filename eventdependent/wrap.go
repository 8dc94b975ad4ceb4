package eventdependent

import (
	"context"

	"github.com/juju/errors"

	"github.com/notorious-go/eventgate/notify"
)

// Operation is an asynchronous operation as seen by the wrapper: it takes a
// context and arbitrary arguments and returns a result or an error.
type Operation func(ctx context.Context, args ...any) (any, error)

// OperationGroup maps operation names to operations. A wrapped group shares a
// single Group between all of its members.
type OperationGroup map[string]Operation

// Wrap returns an OperationGroup with the same names as ops whose operations
// wait for successName to fire on src before their first use.
//
// The gating is group-wide: the first call to any member starts one gate
// attempt that every concurrent call shares, and once successName has fired
// every member, including ones never called before, runs its operation
// directly. If failureName fires first, the waiting calls fail with a
// *gate.FailureError and the next call tries again.
//
// Errors returned by the operations themselves are passed through unchanged.
func Wrap(src notify.Source, successName, failureName string, ops OperationGroup, opts ...Option) (OperationGroup, error) {
	g, err := New(src, notify.Pair{Success: successName, Failure: failureName}, opts...)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return g.WrapAll(ops)
}

// WrapAll wraps every operation of ops with g.
func (g *Group) WrapAll(ops OperationGroup) (OperationGroup, error) {
	wrapped := make(OperationGroup, len(ops))
	for name, op := range ops {
		if op == nil {
			return nil, errors.NotValidf("nil operation %q", name)
		}
		wrapped[name] = g.Wrap(name, op)
	}
	return wrapped, nil
}

// Wrap returns op gated by g. The name is only used for metrics.
func (g *Group) Wrap(name string, op Operation) Operation {
	return func(ctx context.Context, args ...any) (any, error) {
		if err := g.enter(ctx, name); err != nil {
			return nil, err
		}
		return op(ctx, args...)
	}
}

// Func returns fn gated by g. It is the typed counterpart of Group.Wrap, for
// operations with a single input and output.
func Func[In, Out any](g *Group, name string, fn func(context.Context, In) (Out, error)) func(context.Context, In) (Out, error) {
	return func(ctx context.Context, in In) (Out, error) {
		if err := g.enter(ctx, name); err != nil {
			var zero Out
			return zero, err
		}
		return fn(ctx, in)
	}
}

// enter waits for g on behalf of the named operation and records the path the
// call took.
func (g *Group) enter(ctx context.Context, name string) error {
	gated, err := g.wait(ctx)
	switch {
	case err != nil:
		g.opts.metrics.call(name, PathRejected)
		g.opts.logger.Tracef("%s: rejected: %v", name, err)
	case gated:
		g.opts.metrics.call(name, PathGated)
	default:
		g.opts.metrics.call(name, PathBypassed)
	}
	return err
}
