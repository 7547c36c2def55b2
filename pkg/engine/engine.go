// Package engine wires the gateway, watch sessions, indices, and
// reconcilers into the single manager.Runnable the controller runs.
package engine

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"sigs.k8s.io/controller-runtime/pkg/manager"

	"github.com/kubereflector/controller/pkg/circuitbreaker"
	"github.com/kubereflector/controller/pkg/config"
	"github.com/kubereflector/controller/pkg/gateway"
	"github.com/kubereflector/controller/pkg/index"
	"github.com/kubereflector/controller/pkg/reconcile"
	"github.com/kubereflector/controller/pkg/watch"
)

// sessionMetrics is the subset of metrics.Recorder the engine forwards
// to its watch sessions.
type sessionMetrics = watch.SessionMetrics

// Engine owns one watch.Session per mirrored kind plus the namespace
// session, and one reconcile.Reconciler per kind registered as a
// watch.Handler on both its own kind's session and the namespace
// session, per spec.md §4.E and §5.
type Engine struct {
	log logr.Logger

	secretSession    *watch.Session
	configMapSession *watch.Session
	namespaceSession *watch.NamespaceSession

	secretReconciler    *reconcile.Reconciler
	configMapReconciler *reconcile.Reconciler
}

var _ manager.Runnable = (*Engine)(nil)

// New constructs an Engine. metrics may be nil to disable instrumentation.
func New(ctx context.Context, gw gateway.Gateway, cfg config.WatcherConfig, log logr.Logger, metrics sessionMetrics, recorder reconcile.Recorder) *Engine {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	secretSession := watch.NewSession(gw, gateway.KindSecret, log, cfg.QueueCapacity, timeout)
	configMapSession := watch.NewSession(gw, gateway.KindConfigMap, log, cfg.QueueCapacity, timeout)
	namespaceSession := watch.NewNamespaceSession(gw, log, cfg.QueueCapacity, timeout)
	if metrics != nil {
		secretSession.SetMetrics(metrics)
		configMapSession.SetMetrics(metrics)
		namespaceSession.SetMetrics(metrics)
	}

	secretIdx := index.New()
	configMapIdx := index.New()

	secretReconciler := reconcile.New(ctx, reconcile.Secrets, gw, secretIdx, circuitbreaker.NewWithDefaults(), log, recorder)
	configMapReconciler := reconcile.New(ctx, reconcile.ConfigMaps, gw, configMapIdx, circuitbreaker.NewWithDefaults(), log, recorder)

	secretSession.RegisterHandler(secretReconciler)
	configMapSession.RegisterHandler(configMapReconciler)
	namespaceSession.RegisterHandler(secretReconciler)
	namespaceSession.RegisterHandler(configMapReconciler)

	return &Engine{
		log:                 log,
		secretSession:       secretSession,
		configMapSession:    configMapSession,
		namespaceSession:    namespaceSession,
		secretReconciler:    secretReconciler,
		configMapReconciler: configMapReconciler,
	}
}

// Start runs the engine's three sessions until ctx is cancelled. It
// satisfies sigs.k8s.io/controller-runtime/pkg/manager.Runnable.
func (e *Engine) Start(ctx context.Context) error {
	done := make(chan struct{}, 3)
	run := func(f func(context.Context)) {
		f(ctx)
		done <- struct{}{}
	}

	go run(e.secretSession.Run)
	go run(e.configMapSession.Run)
	go run(e.namespaceSession.Run)

	for i := 0; i < 3; i++ {
		<-done
	}
	return ctx.Err()
}
