package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	var m dto.Metric
	require.NoError(t, (<-ch).Write(&m))
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	return m.Gauge.GetValue()
}

func TestRecorder_SyncCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.SyncSucceeded("Secret")
	r.SyncSucceeded("Secret")
	r.SyncFailed("Secret")

	assert.Equal(t, 2.0, counterValue(t, r.syncsTotal.WithLabelValues("Secret")))
	assert.Equal(t, 1.0, counterValue(t, r.syncErrorsTotal.WithLabelValues("Secret")))
}

func TestRecorder_MirrorCreateDeleteNetsOut(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.MirrorCreated("ConfigMap")
	r.MirrorCreated("ConfigMap")
	r.MirrorDeleted("ConfigMap")

	assert.Equal(t, 1.0, counterValue(t, r.autoMirrorsTotal.WithLabelValues("ConfigMap")))
}

func TestRecorder_QueueDepthAndSessionRestarts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.SetQueueDepth("Secret", 12)
	r.SessionRestarted("Secret")

	assert.Equal(t, 12.0, counterValue(t, r.queueDepth.WithLabelValues("Secret")))
	assert.Equal(t, 1.0, counterValue(t, r.sessionRestartTotal.WithLabelValues("Secret")))
}
