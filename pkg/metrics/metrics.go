// Package metrics exposes the controller's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder collects reflection outcomes, keyed by resource kind. It
// satisfies reconcile.Recorder without pkg/reconcile importing this
// package.
type Recorder struct {
	syncsTotal          *prometheus.CounterVec
	syncErrorsTotal     *prometheus.CounterVec
	autoMirrorsTotal    *prometheus.GaugeVec
	sessionRestartTotal *prometheus.CounterVec
	queueDepth          *prometheus.GaugeVec

	collectors []prometheus.Collector
	registerer prometheus.Registerer
}

// New creates and registers the controller's metrics against reg.
func New(reg prometheus.Registerer) *Recorder {
	syncsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reflector_syncs_total",
		Help: "Total number of successful mirror syncs, by kind.",
	}, []string{"kind"})
	syncErrorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reflector_sync_errors_total",
		Help: "Total number of failed mirror sync attempts, by kind.",
	}, []string{"kind"})
	autoMirrorsTotal := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "reflector_auto_mirrors_total",
		Help: "Net count of auto-created-minus-deleted mirrors, by kind.",
	}, []string{"kind"})
	sessionRestartTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reflector_session_restarts_total",
		Help: "Total number of watch session restarts, by kind.",
	}, []string{"kind"})
	queueDepth := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "reflector_queue_depth",
		Help: "Current depth of the per-kind event queue.",
	}, []string{"kind"})

	collectors := []prometheus.Collector{
		syncsTotal, syncErrorsTotal, autoMirrorsTotal, sessionRestartTotal, queueDepth,
	}
	reg.MustRegister(collectors...)

	return &Recorder{
		syncsTotal:          syncsTotal,
		syncErrorsTotal:     syncErrorsTotal,
		autoMirrorsTotal:    autoMirrorsTotal,
		sessionRestartTotal: sessionRestartTotal,
		queueDepth:          queueDepth,
		collectors:          collectors,
		registerer:          reg,
	}
}

// Unregister removes all metrics from the registry. Exercised by tests
// that construct a Recorder against a throwaway registry per test case.
func (r *Recorder) Unregister() {
	if r.registerer == nil {
		return
	}
	for _, c := range r.collectors {
		r.registerer.Unregister(c)
	}
}

func (r *Recorder) SyncSucceeded(kind string) { r.syncsTotal.WithLabelValues(kind).Inc() }
func (r *Recorder) SyncFailed(kind string)    { r.syncErrorsTotal.WithLabelValues(kind).Inc() }
func (r *Recorder) MirrorCreated(kind string) { r.autoMirrorsTotal.WithLabelValues(kind).Inc() }
func (r *Recorder) MirrorDeleted(kind string) { r.autoMirrorsTotal.WithLabelValues(kind).Dec() }

// SessionRestarted records that kind's watch session was torn down and
// reconnected. kind is "Secret", "ConfigMap", or "Namespace".
func (r *Recorder) SessionRestarted(kind string) { r.sessionRestartTotal.WithLabelValues(kind).Inc() }

// SetQueueDepth reports the current occupancy of kind's event queue.
func (r *Recorder) SetQueueDepth(kind string, depth int) {
	r.queueDepth.WithLabelValues(kind).Set(float64(depth))
}
