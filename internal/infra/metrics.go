package infra

import (
	"sync/atomic"
	"time"

	"unlisted_go/internal/domain"
	"unlisted_go/internal/event"
)

// Metrics provides lightweight negotiation counters.
// Uses atomic operations for thread-safety; MetricsCollector exports them.
type Metrics struct {
	// Transitions
	submitted atomic.Uint64
	countered atomic.Uint64
	accepted  atomic.Uint64
	rejected  atomic.Uint64
	expired   atomic.Uint64

	// Refusals
	validationFailures atomic.Uint64 // bad price/quantity/message
	transitionRefusals atomic.Uint64 // terminal, out of turn
	errorsTotal        atomic.Uint64 // storage and other internal failures

	// Latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	feeSourceStale atomic.Int32 // 1 = last fee rate refresh failed
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordTransition records a committed transition with its latency.
func (m *Metrics) RecordTransition(kind event.Kind, latency time.Duration) {
	switch kind {
	case event.KindSubmitted:
		m.submitted.Add(1)
	case event.KindCountered:
		m.countered.Add(1)
	case event.KindAccepted:
		m.accepted.Add(1)
	case event.KindRejected:
		m.rejected.Add(1)
	case event.KindExpired:
		m.expired.Add(1)
	}
	m.latencySumNs.Add(latency.Nanoseconds())
	m.latencyCount.Add(1)
}

// RecordFailure classifies a failed operation.
func (m *Metrics) RecordFailure(err error) {
	switch domain.KindOf(err) {
	case domain.KindNone:
	case domain.KindInvalidInput, domain.KindInvalidPrice, domain.KindBelowMinimumLot, domain.KindExceedsAvailableQuantity:
		m.validationFailures.Add(1)
	case domain.KindTerminalStateViolation, domain.KindIllegalTransition:
		m.transitionRefusals.Add(1)
	case domain.KindNotFound:
		// caller error, not counted
	default:
		m.errorsTotal.Add(1)
	}
}

// SetFeeSourceStale marks whether the fee rate is running on a stale value.
func (m *Metrics) SetFeeSourceStale(stale bool) {
	if stale {
		m.feeSourceStale.Store(1)
	} else {
		m.feeSourceStale.Store(0)
	}
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	Submitted          uint64
	Countered          uint64
	Accepted           uint64
	Rejected           uint64
	Expired            uint64
	ValidationFailures uint64
	TransitionRefusals uint64
	ErrorsTotal        uint64
	AvgLatencyNs       int64
	FeeSourceStale     bool
	Timestamp          time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		Submitted:          m.submitted.Load(),
		Countered:          m.countered.Load(),
		Accepted:           m.accepted.Load(),
		Rejected:           m.rejected.Load(),
		Expired:            m.expired.Load(),
		ValidationFailures: m.validationFailures.Load(),
		TransitionRefusals: m.transitionRefusals.Load(),
		ErrorsTotal:        m.errorsTotal.Load(),
		AvgLatencyNs:       avgLatency,
		FeeSourceStale:     m.feeSourceStale.Load() == 1,
		Timestamp:          time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.submitted.Store(0)
	m.countered.Store(0)
	m.accepted.Store(0)
	m.rejected.Store(0)
	m.expired.Store(0)
	m.validationFailures.Store(0)
	m.transitionRefusals.Store(0)
	m.errorsTotal.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.feeSourceStale.Store(0)
}
