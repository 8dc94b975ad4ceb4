package notify

import (
	"fmt"

	"github.com/juju/errors"
)

// A ListenerID identifies one registration made with Source.Once. IDs are
// minted by the source and are only meaningful to the source that issued them.
type ListenerID uint64

// A Handler is called at most once with the payload the source delivered for
// the signal. Payload types depend on the source.
type Handler func(payload any)

// Source is anything offering one-shot signal subscription and explicit
// unsubscription by name.
type Source interface {
	// Once registers fn to be called the next time signal fires. The listener is
	// removed from the source before fn is called.
	//
	// A source may call fn before Once returns if the signal fires concurrently
	// with the registration.
	Once(signal string, fn Handler) (ListenerID, error)

	// Off removes the listener registered under id for signal. Removing a
	// listener that already fired, or was never registered, is a no-op.
	Off(signal string, id ListenerID) error
}

// Counter is implemented by sources able to report how many listeners are
// registered for a signal.
type Counter interface {
	ListenerCount(signal string) int
}

// Pair names the two signals raced by a gate.
type Pair struct {
	// Success is the signal announcing readiness.
	Success string
	// Failure is the signal announcing that readiness will not happen.
	Failure string
}

// Validate reports whether the pair can be used for gating.
func (p Pair) Validate() error {
	if p.Success == "" {
		return errors.NotValidf("empty success signal")
	}
	if p.Failure == "" {
		return errors.NotValidf("empty failure signal")
	}
	if p.Success == p.Failure {
		return errors.NotValidf("signal pair sharing name %q", p.Success)
	}
	return nil
}

func (p Pair) String() string {
	return fmt.Sprintf("%s/%s", p.Success, p.Failure)
}
