package eventdependent

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/notorious-go/eventgate/gate"
	"github.com/notorious-go/eventgate/notify"
)

var logger = loggo.GetLogger("eventgate.eventdependent")

const tracerName = "github.com/notorious-go/eventgate/eventdependent"

// attemptKey is the only key used with the singleflight group: a Group runs at
// most one gate attempt at a time.
const attemptKey = "gate"

// Group is the gate state shared by every operation wrapped with it.
//
// A Group starts gated. The first call to Wait, from any operation, starts a
// gate attempt; calls arriving while it is pending share it. When the success
// signal fires the group becomes ungated for good and Wait returns immediately
// from then on. When the failure signal fires, every caller sharing that
// attempt gets the same *gate.FailureError and the group stays gated, so the
// next call starts a new attempt (see WithPoisonOnFailure for the alternative).
//
// A Group is safe for concurrent use.
type Group struct {
	src    notify.Source
	pair   notify.Pair
	opts   options
	tracer trace.Tracer

	// ungated is set once, by the first successful attempt, and never cleared.
	ungated atomic.Bool
	// attempts holds the in-flight attempt, if any.
	attempts singleflight.Group

	mu sync.Mutex
	// poisoned is the failure that ended the group, with WithPoisonOnFailure.
	poisoned error
	// waiters counts the calls currently inside wait. When the last of them
	// gives up, abandon is closed and the attempt it was handed to lets go of
	// its listeners.
	waiters int
	abandon chan struct{}
}

// errAbandoned is the result of an attempt that every waiter gave up on. A
// caller that receives it without its own ctx being done joined too late and
// starts over.
const errAbandoned = errors.ConstError("gate attempt abandoned by its waiters")

// New returns a gated Group racing pair on src.
func New(src notify.Source, pair notify.Pair, opts ...Option) (*Group, error) {
	if src == nil {
		return nil, errors.NotValidf("nil source")
	}
	if err := pair.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Group{
		src:    src,
		pair:   pair,
		opts:   o,
		tracer: o.tracerProvider.Tracer(tracerName),
	}, nil
}

// Pair returns the signals the group is gated on.
func (g *Group) Pair() notify.Pair {
	return g.pair
}

// Ungated reports whether the success signal has been observed, meaning calls
// no longer wait.
func (g *Group) Ungated() bool {
	return g.ungated.Load()
}

// Wait returns nil once the group is ungated. While it is gated, Wait joins
// the in-flight gate attempt, or starts one, and returns its outcome.
//
// If ctx is done before the attempt settles, Wait returns ctx.Err(). The
// attempt carries on for its other callers. Once every caller waiting on it
// has given up, the attempt removes its listeners from the source and the
// next call starts afresh.
func (g *Group) Wait(ctx context.Context) error {
	_, err := g.wait(ctx)
	return err
}

// wait is Wait, also reporting whether the call had to wait at all.
func (g *Group) wait(ctx context.Context) (gated bool, err error) {
	if g.ungated.Load() {
		return false, nil
	}
	for {
		if err := g.poison(); err != nil {
			return true, err
		}
		abandon := g.join()
		result := g.attempts.DoChan(attemptKey, func() (any, error) {
			return nil, g.attempt(abandon)
		})
		select {
		case r := <-result:
			g.leave(false)
			if r.Err != errAbandoned {
				return true, r.Err
			}
			if err := ctx.Err(); err != nil {
				return true, err
			}
		case <-ctx.Done():
			g.leave(true)
			return true, ctx.Err()
		}
	}
}

// join counts a waiter in and returns the channel that tells an attempt
// started on its behalf that nobody waits anymore.
func (g *Group) join() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.waiters++
	if g.abandon == nil {
		g.abandon = make(chan struct{})
	}
	return g.abandon
}

// leave counts a waiter out. The last waiter to give up abandons the attempt.
func (g *Group) leave(gaveUp bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.waiters--
	if gaveUp && g.waiters == 0 {
		close(g.abandon)
		g.abandon = nil
	}
}

func (g *Group) poison() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.poisoned
}

// attempt runs one gate race. It is only ever called through the singleflight
// group, so at most one attempt exists at a time.
func (g *Group) attempt(abandon <-chan struct{}) error {
	// A caller may have read the flag just before the previous attempt
	// succeeded and joined too late to share it.
	if g.ungated.Load() {
		return nil
	}
	if err := g.poison(); err != nil {
		return err
	}

	id := uuid.NewString()
	_, span := g.tracer.Start(context.Background(), "eventgate.attempt",
		trace.WithAttributes(
			attribute.String("eventgate.attempt.id", id),
			attribute.String("eventgate.signal.success", g.pair.Success),
			attribute.String("eventgate.signal.failure", g.pair.Failure),
		),
	)
	defer span.End()

	g.opts.metrics.attemptStarted()
	start := g.opts.clock.Now()
	g.opts.logger.Debugf("attempt %s: waiting for %q or %q", id, g.pair.Success, g.pair.Failure)

	err := g.race(abandon)
	outcome := outcomeOf(err)
	g.opts.metrics.attemptSettled(outcome, g.opts.clock.Now().Sub(start))
	span.SetAttributes(attribute.String("eventgate.outcome", outcome))
	g.opts.logger.Debugf("attempt %s: %s", id, outcome)

	if err == errAbandoned {
		return err
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if g.opts.poison && gate.IsFailure(err) {
			g.mu.Lock()
			g.poisoned = err
			g.mu.Unlock()
		}
		return err
	}
	g.ungated.Store(true)
	return nil
}

// race opens a gate and waits for it, bounded by the configured timeout and
// by its waiters giving up.
func (g *Group) race(abandon <-chan struct{}) error {
	gt, err := gate.Open(g.src, g.pair)
	if err != nil {
		return errors.Trace(err)
	}
	var timeout <-chan time.Time
	if g.opts.timeout > 0 {
		timeout = g.opts.clock.After(g.opts.timeout)
	}

	var cause error
	select {
	case <-gt.Done():
		return gt.Err()
	case <-timeout:
		cause = &TimeoutError{Signal: g.pair.Success, After: g.opts.timeout}
	case <-abandon:
		cause = errAbandoned
	}
	// Close waits for a signal that is settling the gate concurrently, in
	// which case that signal's outcome stands.
	gt.Close()
	if gt.State() == gate.Abandoned {
		return cause
	}
	return gt.Err()
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case gate.IsFailure(err):
		return OutcomeFailure
	case IsTimeout(err):
		return OutcomeTimeout
	case err == errAbandoned:
		return OutcomeAbandoned
	}
	return OutcomeError
}
