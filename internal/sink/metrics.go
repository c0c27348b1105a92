package sink

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for one pipeline run. A nil
// *Metrics is valid and records nothing, so components never need to care
// whether metrics are enabled.
type Metrics struct {
	dispatched       prometheus.Counter
	matched          prometheus.Counter
	evicted          prometheus.Counter
	duplicates       prometheus.Counter
	sendFailures     prometheus.Counter
	decodeFailures   prometheus.Counter
	classifyFailures prometheus.Counter
	storeFailures    prometheus.Counter
	latency          prometheus.Histogram
}

// NewMetrics registers the pipeline instruments on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		dispatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "inferbench",
			Name:      "items_dispatched_total",
			Help:      "Items published to the input topic.",
		}),
		matched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "inferbench",
			Name:      "results_matched_total",
			Help:      "Results matched to an outstanding request.",
		}),
		evicted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "inferbench",
			Name:      "requests_evicted_total",
			Help:      "Outstanding requests evicted after the match timeout.",
		}),
		duplicates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "inferbench",
			Name:      "results_unmatched_total",
			Help:      "Results discarded because no outstanding request was found.",
		}),
		sendFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "inferbench",
			Name:      "send_failures_total",
			Help:      "Items that could not be published after retries.",
		}),
		decodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "inferbench",
			Name:      "decode_failures_total",
			Help:      "Malformed envelopes dropped by consuming loops.",
		}),
		classifyFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "inferbench",
			Name:      "classify_failures_total",
			Help:      "Classification errors dropped by the inference stage.",
		}),
		storeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "inferbench",
			Name:      "store_failures_total",
			Help:      "Records the storage collaborator failed to persist.",
		}),
		latency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "inferbench",
			Name:      "roundtrip_latency_seconds",
			Help:      "End-to-end latency from dispatch to matched result.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}
}

func (m *Metrics) IncDispatched() {
	if m != nil {
		m.dispatched.Inc()
	}
}

func (m *Metrics) IncMatched() {
	if m != nil {
		m.matched.Inc()
	}
}

func (m *Metrics) IncEvicted() {
	if m != nil {
		m.evicted.Inc()
	}
}

func (m *Metrics) IncUnmatched() {
	if m != nil {
		m.duplicates.Inc()
	}
}

func (m *Metrics) IncSendFailure() {
	if m != nil {
		m.sendFailures.Inc()
	}
}

func (m *Metrics) IncDecodeFailure() {
	if m != nil {
		m.decodeFailures.Inc()
	}
}

func (m *Metrics) IncClassifyFailure() {
	if m != nil {
		m.classifyFailures.Inc()
	}
}

func (m *Metrics) IncStoreFailure() {
	if m != nil {
		m.storeFailures.Inc()
	}
}

func (m *Metrics) ObserveLatency(d time.Duration) {
	if m != nil {
		m.latency.Observe(d.Seconds())
	}
}
