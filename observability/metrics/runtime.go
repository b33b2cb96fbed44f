package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RuntimeMetrics tracks phase invocations and transaction outcomes of the
// contract runtime.
type RuntimeMetrics struct {
	phaseTotal         *prometheus.CounterVec
	phaseDuration      *prometheus.HistogramVec
	transactions       *prometheus.CounterVec
	circuitsRegistered prometheus.Counter
}

var (
	runtimeOnce     sync.Once
	runtimeRegistry *RuntimeMetrics
)

// Runtime returns the process-wide runtime metrics, registering them with the
// default Prometheus registry on first use.
func Runtime() *RuntimeMetrics {
	runtimeOnce.Do(func() {
		runtimeRegistry = &RuntimeMetrics{
			phaseTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "slotmap",
				Subsystem: "runtime",
				Name:      "phase_total",
				Help:      "Count of contract entrypoint invocations by phase and outcome.",
			}, []string{"phase", "outcome"}),
			phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "slotmap",
				Subsystem: "runtime",
				Name:      "phase_duration_seconds",
				Help:      "Wall time spent inside contract entrypoints.",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
			}, []string{"phase"}),
			transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "slotmap",
				Subsystem: "runtime",
				Name:      "transactions_total",
				Help:      "Count of executed transactions by final status.",
			}, []string{"status"}),
			circuitsRegistered: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "slotmap",
				Subsystem: "runtime",
				Name:      "circuits_registered_total",
				Help:      "Number of circuit artifacts stored or replaced during init.",
			}),
		}
		prometheus.MustRegister(
			runtimeRegistry.phaseTotal,
			runtimeRegistry.phaseDuration,
			runtimeRegistry.transactions,
			runtimeRegistry.circuitsRegistered,
		)
	})
	return runtimeRegistry
}

// ObservePhase records one entrypoint invocation. An empty outcome means
// success.
func (m *RuntimeMetrics) ObservePhase(phase, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "ok"
	}
	m.phaseTotal.WithLabelValues(phase, outcome).Inc()
	m.phaseDuration.WithLabelValues(phase).Observe(elapsed.Seconds())
}

// ObserveTransaction records the final status of a transaction.
func (m *RuntimeMetrics) ObserveTransaction(status string) {
	if m == nil {
		return
	}
	if status == "" {
		status = "unknown"
	}
	m.transactions.WithLabelValues(status).Inc()
}

// ObserveCircuitRegistered counts a stored circuit artifact.
func (m *RuntimeMetrics) ObserveCircuitRegistered() {
	if m == nil {
		return
	}
	m.circuitsRegistered.Inc()
}

// PhaseTotal exposes the phase counter for inspection.
func (m *RuntimeMetrics) PhaseTotal() *prometheus.CounterVec {
	if m == nil {
		return nil
	}
	return m.phaseTotal
}
