package eventdependent

import (
	"time"

	"github.com/juju/clock"
	"github.com/juju/loggo/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// An Option configures a Group.
type Option func(*options)

type options struct {
	timeout        time.Duration
	clock          clock.Clock
	poison         bool
	metrics        *Metrics
	tracerProvider trace.TracerProvider
	logger         loggo.Logger
}

func defaultOptions() options {
	return options{
		clock:          clock.WallClock,
		tracerProvider: otel.GetTracerProvider(),
		logger:         logger,
	}
}

// WithTimeout bounds every gate attempt. When neither signal fires within d,
// the attempt's listeners are removed and its waiters get a *TimeoutError. The
// group stays gated, so the next call tries again.
//
// A zero or negative d means attempts wait indefinitely, which is the default.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithClock sets the clock used for attempt timeouts and wait metrics.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithPoisonOnFailure makes the first failure signal final: every call after
// it returns the same *gate.FailureError without subscribing again.
func WithPoisonOnFailure() Option {
	return func(o *options) {
		o.poison = true
	}
}

// WithMetrics records attempts, settlements and calls on m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithTracerProvider sets where attempt spans are created. The global
// provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithLogger replaces the package logger for one group.
func WithLogger(l loggo.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
