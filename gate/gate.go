package gate

import (
	"context"
	"fmt"
	"sync"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/notorious-go/eventgate/notify"
)

var logger = loggo.GetLogger("eventgate.gate")

const (
	// ErrPending is returned by Gate.Err while neither signal has fired.
	ErrPending = errors.ConstError("gate pending")

	// ErrAbandoned is returned by Gate.Err after Close settled the gate.
	ErrAbandoned = errors.ConstError("gate abandoned before either signal fired")
)

// State is the settlement state of a Gate.
type State int

const (
	// Pending means neither signal has fired yet.
	Pending State = iota
	// Succeeded means the success signal fired first.
	Succeeded
	// Failed means the failure signal fired first.
	Failed
	// Abandoned means the gate was closed before either signal fired.
	Abandoned
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Abandoned:
		return "abandoned"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// FailureError reports that the failure signal fired before the success signal.
type FailureError struct {
	// Signal is the name of the failure signal.
	Signal string
	// Payload is what the source delivered with the failure signal.
	Payload any
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("Event Dependent: Failure event %s was fired", e.Signal)
}

// Unwrap returns the payload when the source delivered an error with the
// failure signal.
func (e *FailureError) Unwrap() error {
	err, _ := e.Payload.(error)
	return err
}

// IsFailure reports whether err, or any error it wraps, is a *FailureError.
func IsFailure(err error) bool {
	var fe *FailureError
	return errors.As(err, &fe)
}

// Indices into the per-signal arrays of a Gate.
const (
	success = 0
	failure = 1
)

// Gate is a single race between the two signals of a pair.
type Gate struct {
	src  notify.Source
	pair notify.Pair

	// The done channel is closed once, when the gate settles.
	done chan struct{}

	mu    sync.Mutex
	state State
	err   error
	// ids and live track the registrations this gate still owns on the source.
	// A registration stops being live when it fires or is removed.
	ids  [2]notify.ListenerID
	live [2]bool
}

// Open subscribes to both signals of pair on src and returns the pending gate.
//
// The gate may already be settled when Open returns if a signal fired during
// registration. When the second registration fails, the first is removed
// before Open returns the error.
func Open(src notify.Source, pair notify.Pair) (*Gate, error) {
	if src == nil {
		return nil, errors.NotValidf("nil source")
	}
	if err := pair.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	g := &Gate{
		src:  src,
		pair: pair,
		done: make(chan struct{}),
	}
	if err := g.subscribe(success); err != nil {
		return nil, errors.Annotatef(err, "subscribing to %q", pair.Success)
	}
	if err := g.subscribe(failure); err != nil {
		g.Close()
		return nil, errors.Annotatef(err, "subscribing to %q", pair.Failure)
	}
	return g, nil
}

func (g *Gate) signal(which int) string {
	if which == success {
		return g.pair.Success
	}
	return g.pair.Failure
}

func (g *Gate) subscribe(which int) error {
	id, err := g.src.Once(g.signal(which), func(payload any) {
		g.fire(which, payload)
	})
	if err != nil {
		return err
	}

	g.mu.Lock()
	if g.state == Pending {
		g.ids[which], g.live[which] = id, true
		g.mu.Unlock()
		logger.Tracef("listening for %q as %d", g.signal(which), id)
		return nil
	}
	g.mu.Unlock()

	// The gate settled while this registration was in flight. Either the
	// listener fired itself and is gone already, or it is stale and nobody else
	// knows about it.
	g.off(which, id)
	return nil
}

func (g *Gate) fire(which int, payload any) {
	g.mu.Lock()
	if g.state != Pending {
		g.mu.Unlock()
		return
	}
	sibling := 1 - which
	siblingID, siblingLive := g.ids[sibling], g.live[sibling]
	g.live = [2]bool{}
	if which == success {
		g.state = Succeeded
	} else {
		g.state = Failed
		g.err = &FailureError{Signal: g.pair.Failure, Payload: payload}
	}
	g.mu.Unlock()

	logger.Tracef("%q fired first, gate %s", g.signal(which), g.State())
	if siblingLive {
		g.off(sibling, siblingID)
	}
	close(g.done)
}

func (g *Gate) off(which int, id notify.ListenerID) {
	if err := g.src.Off(g.signal(which), id); err != nil {
		logger.Warningf("removing listener %d for %q: %v", id, g.signal(which), err)
	}
}

// Close abandons a pending gate and removes both of its listeners from the
// source. Closing a settled gate does nothing.
//
// Close returns once the gate has settled, so Err never reports ErrPending
// afterwards. When a signal is still cleaning up its sibling listener, Close
// waits for it and the gate keeps that signal's outcome.
func (g *Gate) Close() {
	g.mu.Lock()
	if g.state != Pending {
		g.mu.Unlock()
		<-g.done
		return
	}
	g.state = Abandoned
	g.err = ErrAbandoned
	ids, live := g.ids, g.live
	g.live = [2]bool{}
	g.mu.Unlock()

	for which := range live {
		if live[which] {
			g.off(which, ids[which])
		}
	}
	close(g.done)
}

// Done returns a channel that is closed when the gate settles.
func (g *Gate) Done() <-chan struct{} {
	return g.done
}

// Err returns nil if the success signal fired first, a *FailureError if the
// failure signal did, ErrAbandoned after Close, and ErrPending until then.
func (g *Gate) Err() error {
	select {
	case <-g.done:
	default:
		return ErrPending
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

// State returns the current state of the gate.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Pair returns the signal names the gate races.
func (g *Gate) Pair() notify.Pair {
	return g.pair
}

// Wait blocks until the gate settles or ctx is done, and returns the outcome.
// When ctx wins, the gate is closed and ctx.Err() is returned, unless a signal
// settled the gate in the meantime.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.done:
		return g.Err()
	case <-ctx.Done():
	}
	g.Close()
	if g.State() == Abandoned {
		return ctx.Err()
	}
	// A signal settled the gate while ctx was ending.
	return g.Err()
}

// Await opens a gate racing successName against failureName on src and waits
// for it to settle. It returns nil when the success signal fires first and a
// *FailureError when the failure signal does.
//
// Both listeners are removed from src before Await returns, including when ctx
// is done first.
func Await(ctx context.Context, src notify.Source, successName, failureName string) error {
	g, err := Open(src, notify.Pair{Success: successName, Failure: failureName})
	if err != nil {
		return errors.Trace(err)
	}
	return g.Wait(ctx)
}
