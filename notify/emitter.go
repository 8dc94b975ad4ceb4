package notify

import (
	"sync"

	"github.com/juju/errors"
)

// Emitter is an in-process Source in the style of an event emitter. Listeners
// are registered with Once and fired, in registration order, by Emit.
//
// Handlers run synchronously on the goroutine calling Emit, without any lock
// held, so a handler may freely call Once, Off or Emit on the same Emitter.
//
// The zero-value Emitter is ready to use. An Emitter is safe for concurrent use.
type Emitter struct {
	mu sync.Mutex
	// last is the most recently minted ListenerID. IDs start at 1.
	last ListenerID
	// listeners holds the pending registrations per signal, in the order they
	// were made.
	listeners map[string][]listener
}

type listener struct {
	id ListenerID
	fn Handler
}

var _ interface {
	Source
	Counter
} = (*Emitter)(nil)

// Once implements Source.
func (e *Emitter) Once(signal string, fn Handler) (ListenerID, error) {
	if fn == nil {
		return 0, errors.NotValidf("nil handler for signal %q", signal)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[string][]listener)
	}
	e.last++
	e.listeners[signal] = append(e.listeners[signal], listener{id: e.last, fn: fn})
	return e.last, nil
}

// Off implements Source.
func (e *Emitter) Off(signal string, id ListenerID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	pending := e.listeners[signal]
	for i, l := range pending {
		if l.id != id {
			continue
		}
		pending = append(pending[:i:i], pending[i+1:]...)
		if len(pending) == 0 {
			delete(e.listeners, signal)
		} else {
			e.listeners[signal] = pending
		}
		break
	}
	return nil
}

// Emit fires signal with the given payload and returns the number of handlers
// that were called.
//
// Every listener registered for signal at the time of the call is removed
// before any handler runs. Listeners registered by those handlers wait for the
// next Emit.
func (e *Emitter) Emit(signal string, payload any) int {
	e.mu.Lock()
	fired := e.listeners[signal]
	delete(e.listeners, signal)
	e.mu.Unlock()

	for _, l := range fired {
		l.fn(payload)
	}
	return len(fired)
}

// ListenerCount implements Counter.
func (e *Emitter) ListenerCount(signal string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[signal])
}

// Signals returns the names of all signals that currently have listeners.
func (e *Emitter) Signals() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	signals := make([]string, 0, len(e.listeners))
	for signal := range e.listeners {
		signals = append(signals, signal)
	}
	return signals
}
