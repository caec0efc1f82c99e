package indexer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus collectors an Indexer updates.
type Metrics struct {
	filesIndexed prometheus.Counter
	generations  *prometheus.CounterVec
	duration     prometheus.Histogram
	harnesses    prometheus.Gauge
}

// NewMetrics registers the indexer collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		filesIndexed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "calltree",
			Subsystem: "catalog",
			Name:      "files_indexed_total",
			Help:      "Rust files parsed into the catalog store",
		}),
		generations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "calltree",
			Subsystem: "generator",
			Name:      "runs_total",
			Help:      "Call tree generation runs by result",
		}, []string{"result"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "calltree",
			Subsystem: "generator",
			Name:      "run_seconds",
			Help:      "Duration of a call tree generation run",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}),
		harnesses: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "calltree",
			Subsystem: "generator",
			Name:      "harnesses",
			Help:      "Entry points written by the last successful run",
		}),
	}
}

// The record helpers tolerate a nil receiver so metrics stay optional.

func (m *Metrics) fileIndexed() {
	if m != nil {
		m.filesIndexed.Inc()
	}
}

func (m *Metrics) generation(seconds float64, harnesses int, err error) {
	if m == nil {
		return
	}
	m.duration.Observe(seconds)
	if err != nil {
		m.generations.WithLabelValues("error").Inc()
		return
	}
	m.generations.WithLabelValues("ok").Inc()
	m.harnesses.Set(float64(harnesses))
}
