package controller

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes Prometheus instrumentation for a run loop, namespaced
// "tierkreis_controller_". Pass nil to Run/Resume (the default) to skip
// instrumentation entirely.
type Metrics struct {
	tickDuration  prometheus.Histogram
	nodesStarted  *prometheus.CounterVec
	nodesFinished prometheus.Counter
	nodesErrored  prometheus.Counter
	inflightLocs  prometheus.Gauge
}

// NewMetrics registers a Metrics collector with registry. Pass
// prometheus.DefaultRegisterer for the global registry, or a fresh
// prometheus.NewRegistry() for test isolation.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tierkreis",
			Subsystem: "controller",
			Name:      "tick_duration_seconds",
			Help:      "Time spent in one walk+start tick of the run loop.",
			Buckets:   prometheus.DefBuckets,
		}),
		nodesStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tierkreis",
			Subsystem: "controller",
			Name:      "nodes_started_total",
			Help:      "Nodes ignited by Start, labeled by node kind.",
		}, []string{"kind"}),
		nodesFinished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tierkreis",
			Subsystem: "controller",
			Name:      "nodes_finished_total",
			Help:      "Locations the walker observed transition to finished.",
		}),
		nodesErrored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tierkreis",
			Subsystem: "controller",
			Name:      "nodes_errored_total",
			Help:      "Locations the walker observed with a recorded error.",
		}),
		inflightLocs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "tierkreis",
			Subsystem: "controller",
			Name:      "inflight_locations",
			Help:      "Locations newly admitted to run on the most recent tick.",
		}),
	}
}

func (m *Metrics) observeTick(d time.Duration) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(d.Seconds())
}

func (m *Metrics) observeStart(kind string) {
	if m == nil {
		return
	}
	m.nodesStarted.WithLabelValues(kind).Inc()
}

func (m *Metrics) observeWalk(result WalkResult) {
	if m == nil {
		return
	}
	m.nodesFinished.Add(float64(len(result.Started)))
	m.nodesErrored.Add(float64(len(result.Errored)))
	m.inflightLocs.Set(float64(len(result.InputsReady)))
}
