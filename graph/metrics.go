package graph

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for engine activity.
//
// Metrics exposed (all namespaced with "stepflow_"):
//
//  1. graphs_created_total (counter): graph definitions accepted.
//  2. runs_total (counter, label status): finished runs by terminal
//     status (completed/error).
//  3. active_runs (gauge): runs currently executing.
//  4. step_latency_ms (histogram, labels node/status): tool execution
//     duration per node.
//  5. run_steps (histogram): executed steps per finished run; a spike
//     at the step cap signals graphs that never satisfy their exit
//     condition.
//
// Expose via HTTP for scraping:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewMetrics(registry)
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type Metrics struct {
	graphsCreated prometheus.Counter
	runsTotal     *prometheus.CounterVec
	activeRuns    prometheus.Gauge
	stepLatency   *prometheus.HistogramVec
	runSteps      prometheus.Histogram
}

// NewMetrics creates and registers all engine metrics with the provided
// registry (prometheus.DefaultRegisterer when nil).
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		graphsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "stepflow",
			Name:      "graphs_created_total",
			Help:      "Graph definitions accepted by the engine",
		}),
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stepflow",
			Name:      "runs_total",
			Help:      "Finished runs by terminal status",
		}, []string{"status"}),
		activeRuns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "stepflow",
			Name:      "active_runs",
			Help:      "Runs currently executing",
		}),
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stepflow",
			Name:      "step_latency_ms",
			Help:      "Tool execution duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"node", "status"}),
		runSteps: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "stepflow",
			Name:      "run_steps",
			Help:      "Executed steps per finished run",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
	}
}

// GraphCreated counts an accepted graph definition.
func (m *Metrics) GraphCreated() {
	if m == nil {
		return
	}
	m.graphsCreated.Inc()
}

// RunStarted marks a run as in flight.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.activeRuns.Inc()
}

// RunFinished records a run reaching a terminal status after the given
// number of executed steps.
func (m *Metrics) RunFinished(status Status, steps int) {
	if m == nil {
		return
	}
	m.activeRuns.Dec()
	m.runsTotal.WithLabelValues(string(status)).Inc()
	m.runSteps.Observe(float64(steps))
}

// ObserveStep records the duration of one tool invocation.
func (m *Metrics) ObserveStep(node string, latency time.Duration, status string) {
	if m == nil {
		return
	}
	m.stepLatency.WithLabelValues(node, status).Observe(float64(latency.Milliseconds()))
}
