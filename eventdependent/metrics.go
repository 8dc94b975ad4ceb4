package eventdependent

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes of a gate attempt, used as the "outcome" label.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
	// OutcomeAbandoned attempts ended because every caller waiting on them
	// gave up.
	OutcomeAbandoned = "abandoned"
)

// Paths a call can take through a group, used as the "path" label.
const (
	// PathBypassed calls found the group ungated and ran directly.
	PathBypassed = "bypassed"
	// PathGated calls waited for an attempt that succeeded.
	PathGated = "gated"
	// PathRejected calls waited for an attempt that did not succeed, or gave
	// up waiting.
	PathRejected = "rejected"
)

// Metrics is a prometheus.Collector for one or more groups. Register it once
// and pass it to every group with WithMetrics.
//
// A nil *Metrics records nothing.
type Metrics struct {
	attempts    prometheus.Counter
	settlements *prometheus.CounterVec
	calls       *prometheus.CounterVec
	wait        prometheus.Histogram
}

var _ prometheus.Collector = (*Metrics)(nil)

// NewMetrics creates the collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventgate",
			Name:      "gate_attempts_total",
			Help:      "Number of gate attempts started.",
		}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventgate",
			Name:      "gate_settlements_total",
			Help:      "Number of gate attempts settled, by outcome.",
		}, []string{"outcome"}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventgate",
			Name:      "calls_total",
			Help:      "Number of wrapped operation calls, by operation and path.",
		}, []string{"operation", "path"}),
		wait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "eventgate",
			Name:      "gate_wait_seconds",
			Help:      "Time from the start of a gate attempt to its settlement.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Describe is part of the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.attempts.Describe(ch)
	m.settlements.Describe(ch)
	m.calls.Describe(ch)
	m.wait.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.attempts.Collect(ch)
	m.settlements.Collect(ch)
	m.calls.Collect(ch)
	m.wait.Collect(ch)
}

func (m *Metrics) attemptStarted() {
	if m == nil {
		return
	}
	m.attempts.Inc()
}

func (m *Metrics) attemptSettled(outcome string, waited time.Duration) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(outcome).Inc()
	m.wait.Observe(waited.Seconds())
}

func (m *Metrics) call(operation, path string) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(operation, path).Inc()
}
