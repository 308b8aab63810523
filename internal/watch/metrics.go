package watch

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conduit-lang/hmr/internal/hmr"
)

// Metrics holds the dev server's collectors. Each server owns its registry so
// several servers (and tests) can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	cyclesTotal     *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	cyclePasses     prometheus.Histogram
	modulesUpdated  prometheus.Counter
	execFailures    prometheus.Counter
	buildErrorTotal prometheus.Counter
}

// NewMetrics creates and registers the collectors. clients reports the number
// of connected browsers.
func NewMetrics(clients func() float64) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hmr_update_cycles_total",
				Help: "Number of update cycles by outcome.",
			},
			[]string{"outcome"},
		),
		cycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hmr_update_cycle_duration_seconds",
				Help:    "Time taken by one update cycle.",
				Buckets: prometheus.DefBuckets,
			},
		),
		cyclePasses: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hmr_propagation_passes",
				Help:    "Propagation passes needed to reach a decision.",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
			},
		),
		modulesUpdated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hmr_modules_updated_total",
				Help: "Total number of module instances replaced by hot updates.",
			},
		),
		execFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hmr_execution_failures_total",
				Help: "Total number of module executions or accept callbacks that failed during updates.",
			},
		),
		buildErrorTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hmr_build_errors_total",
				Help: "Total number of manifest builds that failed.",
			},
		),
	}

	m.registry.MustRegister(
		m.cyclesTotal,
		m.cycleDuration,
		m.cyclePasses,
		m.modulesUpdated,
		m.execFailures,
		m.buildErrorTotal,
	)
	if clients != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "hmr_connected_clients",
				Help: "Number of browser clients connected to the reload socket.",
			},
			clients,
		))
	}

	return m
}

// ObserveCycle records the outcome of one update cycle
func (m *Metrics) ObserveCycle(res *hmr.Result) {
	m.cyclesTotal.WithLabelValues(res.Outcome.String()).Inc()
	m.cycleDuration.Observe(res.Duration.Seconds())
	if res.Passes > 0 {
		m.cyclePasses.Observe(float64(res.Passes))
	}
	m.modulesUpdated.Add(float64(len(res.Updated)))
	m.execFailures.Add(float64(len(res.Failed)))
}

// ObserveBuildError counts a failed manifest build
func (m *Metrics) ObserveBuildError() {
	m.buildErrorTotal.Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
