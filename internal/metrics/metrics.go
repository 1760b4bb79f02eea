// Package metrics holds the Prometheus collectors for pipelines and progress streaming.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "attune"

// Metrics is nil-safe: every method on a nil *Metrics is a no-op.
type Metrics struct {
	eventsPublished  *prometheus.CounterVec
	eventsDropped    prometheus.Counter
	connections      prometheus.Gauge
	rejections       *prometheus.CounterVec
	pipelineRuns     *prometheus.CounterVec
	pipelineDuration *prometheus.HistogramVec
}

// MustNew registers the collectors with reg, reusing collectors that are
// already registered under the same name.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "progress", Name: "events_published_total",
			Help: "Progress events enqueued to at least one subscriber channel.",
		}, []string{"kind"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "progress", Name: "events_dropped_total",
			Help: "Progress events dropped because a subscriber channel was full.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "stream", Name: "connections",
			Help: "Streaming connections currently registered.",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "stream", Name: "rejections_total",
			Help: "Streaming connections closed during authentication, by close code.",
		}, []string{"code"}),
		pipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "runs_total",
			Help: "Pipeline runs by pipeline, serving path and outcome.",
		}, []string{"pipeline", "path", "outcome"}),
		pipelineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "run_duration_seconds",
			Help:    "Wall time of pipeline runs including retries.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		}, []string{"pipeline"}),
	}
	m.eventsPublished = register(reg, m.eventsPublished)
	m.eventsDropped = register(reg, m.eventsDropped)
	m.connections = register(reg, m.connections)
	m.rejections = register(reg, m.rejections)
	m.pipelineRuns = register(reg, m.pipelineRuns)
	m.pipelineDuration = register(reg, m.pipelineDuration)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) EventPublished(kind string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(kind).Inc()
}

func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *Metrics) StreamRejected(code string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(code).Inc()
}

// PipelineRun records one finished run. path is the process that served it.
func (m *Metrics) PipelineRun(pipeline, path, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.pipelineRuns.WithLabelValues(pipeline, path, outcome).Inc()
	m.pipelineDuration.WithLabelValues(pipeline).Observe(took.Seconds())
}
