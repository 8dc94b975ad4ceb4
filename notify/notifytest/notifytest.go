// Package notifytest provides utilities for testing code that subscribes to a
// notify.Source. The package offers helpers for the two things such tests
// keep doing: firing a signal only once somebody listens for it, and verifying
// that nobody listens anymore once the test is done.
//
// # Example Usage
//
// Fire the readiness signal "on the next tick", after the code under test has
// subscribed, then verify the subscriptions were cleaned up:
//
//	var src notify.Emitter
//	fired := notifytest.EmitWhenListening(t, &src, "ready", nil)
//	err := gate.Await(ctx, &src, "ready", "error")
//	<-fired
//	notifytest.CheckNoListeners(t, &src, "ready", "error")
package notifytest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notorious-go/eventgate/notify"
)

// LongWait is how long the helpers wait for a source to reach the expected
// state before failing the test.
const LongWait = 10 * time.Second

// pollInterval is how often the helpers re-read listener counts.
const pollInterval = time.Millisecond

// CheckNoListeners fails the test if src holds listeners for any of the given
// signals.
func CheckNoListeners(t testing.TB, src notify.Counter, signals ...string) {
	t.Helper()
	for _, signal := range signals {
		if n := src.ListenerCount(signal); n != 0 {
			t.Errorf("source holds %d listener(s) for %q, want none", n, signal)
		}
	}
}

// WaitForListeners blocks until src holds exactly n listeners for signal. It
// fails the test if that does not happen within LongWait.
func WaitForListeners(t testing.TB, src notify.Counter, signal string, n int) {
	t.Helper()
	require.Eventuallyf(t, func() bool { return src.ListenerCount(signal) == n }, LongWait, pollInterval,
		"source never held %d listener(s) for %q", n, signal)
}

// EventuallyNoListeners waits until src holds no listeners for any of the
// given signals. Sources that deliver on their own goroutines may need a
// moment to drop a fired listener; use CheckNoListeners for synchronous ones.
func EventuallyNoListeners(t testing.TB, src notify.Counter, signals ...string) {
	t.Helper()
	for _, signal := range signals {
		assert.Eventuallyf(t, func() bool { return src.ListenerCount(signal) == 0 }, LongWait, pollInterval,
			"source still holds listener(s) for %q", signal)
	}
}

// EmitWhenListening emits signal on e from a new goroutine as soon as e holds
// at least one listener for it. The returned channel receives the number of
// handlers called and is then closed.
//
// This is how tests express "fire the signal on the next tick": the code
// under test subscribes first and the signal arrives afterwards.
func EmitWhenListening(t testing.TB, e *notify.Emitter, signal string, payload any) <-chan int {
	t.Helper()
	called := make(chan int, 1)
	fired := WhenListening(t, e, signal, func() { called <- e.Emit(signal, payload) })
	go func() {
		<-fired
		close(called)
	}()
	return called
}

// WhenListening calls fire from a new goroutine as soon as src holds at least
// one listener for signal. It is EmitWhenListening for sources that publish
// through something other than an Emitter, such as a hub or a broker. The
// returned channel is closed once fire has returned, or once the test has
// been marked failed because nobody listened within LongWait.
func WhenListening(t testing.TB, src notify.Counter, signal string, fire func()) <-chan struct{} {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		listening := func() bool { return src.ListenerCount(signal) > 0 }
		if assert.Eventuallyf(t, listening, LongWait, pollInterval, "nobody listened for %q", signal) {
			fire()
		}
	}()
	return done
}

// Recorder wraps a Source and records every registration and removal made
// through it. It is useful to prove that code subscribed exactly as often as
// expected.
type Recorder struct {
	notify.Source

	calls chan []Call
}

// A Call is one recorded Once or Off.
type Call struct {
	Method string
	Signal string
	ID     notify.ListenerID
}

// NewRecorder returns a Recorder forwarding to src.
func NewRecorder(src notify.Source) *Recorder {
	r := &Recorder{Source: src, calls: make(chan []Call, 1)}
	r.calls <- nil
	return r
}

func (r *Recorder) record(c Call) {
	calls := <-r.calls
	r.calls <- append(calls, c)
}

// Once implements notify.Source.
func (r *Recorder) Once(signal string, fn notify.Handler) (notify.ListenerID, error) {
	id, err := r.Source.Once(signal, fn)
	if err == nil {
		r.record(Call{Method: "Once", Signal: signal, ID: id})
	}
	return id, err
}

// Off implements notify.Source.
func (r *Recorder) Off(signal string, id notify.ListenerID) error {
	r.record(Call{Method: "Off", Signal: signal, ID: id})
	return r.Source.Off(signal, id)
}

// Calls returns a copy of the calls recorded so far.
func (r *Recorder) Calls() []Call {
	calls := <-r.calls
	r.calls <- calls
	return append([]Call(nil), calls...)
}

// Subscriptions returns how many times Once succeeded for signal.
func (r *Recorder) Subscriptions(signal string) int {
	n := 0
	for _, c := range r.Calls() {
		if c.Method == "Once" && c.Signal == signal {
			n++
		}
	}
	return n
}

// ListenerCount implements notify.Counter when the wrapped source does. It
// reports zero otherwise.
func (r *Recorder) ListenerCount(signal string) int {
	if c, ok := r.Source.(notify.Counter); ok {
		return c.ListenerCount(signal)
	}
	return 0
}
