// Package metrics holds the Prometheus collectors for the gate and its cache.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rate_validator"

// Gate outcomes.
const (
	OutcomeAdmitted  = "admitted"
	OutcomeDuplicate = "duplicate"
	OutcomeInvalid   = "invalid"
	OutcomeError     = "error"
)

// Cache lookup results.
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
	ResultOK    = "ok"
)

var (
	decisionsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Count of validate calls by outcome.",
		},
		[]string{"outcome"},
	)
	decisionLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "decision_duration_seconds",
			Help:      "Time spent in validate, cache round trips included.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"outcome"},
	)
	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Count of cache lookups by tier and result.",
		},
		[]string{"tier", "result"},
	)
	cacheWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "writes_total",
			Help:      "Count of cache writes by tier and result.",
		},
		[]string{"tier", "result"},
	)
)

var registerMetrics sync.Once

// Register registers all collectors with reg. Only the first call has effect.
func Register(reg prometheus.Registerer) {
	registerMetrics.Do(func() {
		reg.MustRegister(decisionsCounter)
		reg.MustRegister(decisionLatency)
		reg.MustRegister(cacheLookups)
		reg.MustRegister(cacheWrites)
	})
}

func RecordDecision(outcome string, elapsed time.Duration) {
	decisionsCounter.WithLabelValues(outcome).Inc()
	decisionLatency.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func RecordLookup(tier, result string) {
	cacheLookups.WithLabelValues(tier, result).Inc()
}

func RecordWrite(tier string, err error) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	cacheWrites.WithLabelValues(tier, result).Inc()
}

// Decisions exposes the counter for tests.
func Decisions(outcome string) prometheus.Counter {
	return decisionsCounter.WithLabelValues(outcome)
}

// Lookups exposes the counter for tests.
func Lookups(tier, result string) prometheus.Counter {
	return cacheLookups.WithLabelValues(tier, result)
}

// Writes exposes the counter for tests.
func Writes(tier, result string) prometheus.Counter {
	return cacheWrites.WithLabelValues(tier, result)
}
