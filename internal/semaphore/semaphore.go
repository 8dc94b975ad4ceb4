// Package semaphore provides the counting semaphore the broker-backed sources
// use to cap how many listeners hold a connection at once.
//
// The nil Semaphore is unlimited, so a source configured without a cap needs
// no special casing around Acquire and Release.
package semaphore

import (
	"fmt"
)

// Semaphore is a counting semaphore implemented as a buffered channel. The
// buffer size is the number of tokens; len reports how many are held.
type Semaphore chan struct{}

// New returns a Semaphore with limit tokens. A limit of zero or less returns
// the nil, unlimited Semaphore, matching the zero value of a config field.
func New(limit int) Semaphore {
	if limit <= 0 {
		return nil
	}
	return make(Semaphore, limit)
}

// String returns "Semaphore(held/limit)", or "Semaphore(unlimited)".
func (s Semaphore) String() string {
	if s == nil {
		return "Semaphore(unlimited)"
	}
	return fmt.Sprintf("Semaphore(%v/%v)", len(s), cap(s))
}

// TryAcquire takes a token if one is free and reports whether it did. It
// never blocks. The nil Semaphore always succeeds.
func (s Semaphore) TryAcquire() bool {
	if s == nil {
		return true
	}
	select {
	case s <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release returns a token taken by a successful TryAcquire. It is a no-op on
// the nil Semaphore.
func (s Semaphore) Release() {
	if s == nil {
		return
	}
	<-s
}
