package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMustNewReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := MustNew(reg)
	second := MustNew(reg)

	first.EventDropped()
	second.EventDropped()
	assert.Equal(t, 2.0, testutil.ToFloat64(first.eventsDropped))
}

func TestPipelineRunLabels(t *testing.T) {
	m := MustNew(prometheus.NewRegistry())
	m.PipelineRun("plan", "sequential", "ok", time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pipelineRuns.WithLabelValues("plan", "sequential", "ok")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.EventPublished("agent_started")
	m.ConnectionOpened()
	m.StreamRejected("4001")
}
