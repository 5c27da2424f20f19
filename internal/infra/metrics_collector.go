package infra

import (
	"github.com/prometheus/client_golang/prometheus"
)

// QueueStats reports sequencer backlog; satisfied by *engine.Sequencer.
type QueueStats interface {
	QueueDepth() int
	Panics() uint64
}

// MetricsCollector exposes Metrics (and optionally sequencer stats) to Prometheus.
// Values are read at scrape time, so the hot path only touches atomics.
type MetricsCollector struct {
	metrics *Metrics
	queue   QueueStats

	transitions *prometheus.Desc
	failures    *prometheus.Desc
	avgLatency  *prometheus.Desc
	feeStale    *prometheus.Desc
	queueDepth  *prometheus.Desc
	panics      *prometheus.Desc
}

func NewMetricsCollector(m *Metrics, queue QueueStats) *MetricsCollector {
	return &MetricsCollector{
		metrics: m,
		queue:   queue,
		transitions: prometheus.NewDesc("unlisted_negotiation_transitions_total",
			"Committed negotiation transitions by kind.", []string{"kind"}, nil),
		failures: prometheus.NewDesc("unlisted_negotiation_failures_total",
			"Refused or failed negotiation operations by reason.", []string{"reason"}, nil),
		avgLatency: prometheus.NewDesc("unlisted_negotiation_transition_avg_latency_seconds",
			"Average latency of committed transitions.", nil, nil),
		feeStale: prometheus.NewDesc("unlisted_fee_source_stale",
			"1 when the last fee rate refresh failed.", nil, nil),
		queueDepth: prometheus.NewDesc("unlisted_sequencer_queue_depth",
			"Jobs waiting across all sequencer shards.", nil, nil),
		panics: prometheus.NewDesc("unlisted_sequencer_panics_total",
			"Sequencer jobs that panicked.", nil, nil),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.transitions
	ch <- c.failures
	ch <- c.avgLatency
	ch <- c.feeStale
	if c.queue != nil {
		ch <- c.queueDepth
		ch <- c.panics
	}
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.metrics.Snapshot()

	for kind, v := range map[string]uint64{
		"submitted": s.Submitted,
		"countered": s.Countered,
		"accepted":  s.Accepted,
		"rejected":  s.Rejected,
		"expired":   s.Expired,
	} {
		ch <- prometheus.MustNewConstMetric(c.transitions, prometheus.CounterValue, float64(v), kind)
	}
	for reason, v := range map[string]uint64{
		"validation": s.ValidationFailures,
		"transition": s.TransitionRefusals,
		"internal":   s.ErrorsTotal,
	} {
		ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, float64(v), reason)
	}

	ch <- prometheus.MustNewConstMetric(c.avgLatency, prometheus.GaugeValue, float64(s.AvgLatencyNs)/1e9)

	stale := 0.0
	if s.FeeSourceStale {
		stale = 1
	}
	ch <- prometheus.MustNewConstMetric(c.feeStale, prometheus.GaugeValue, stale)

	if c.queue != nil {
		ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(c.queue.QueueDepth()))
		ch <- prometheus.MustNewConstMetric(c.panics, prometheus.CounterValue, float64(c.queue.Panics()))
	}
}
