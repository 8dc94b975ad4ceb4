package eventdependent

import (
	"fmt"
	"time"

	"github.com/juju/errors"
)

// TimeoutError reports that neither signal fired within the attempt timeout
// configured with WithTimeout.
type TimeoutError struct {
	// Signal is the success signal that did not fire.
	Signal string
	// After is the configured timeout.
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s didn't fire after %v", e.Signal, e.After)
}

// Timeout marks the error as a timeout for callers inspecting it through
// net.Error-style interfaces.
func (e *TimeoutError) Timeout() bool {
	return true
}

// IsTimeout reports whether err, or any error it wraps, is a *TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
