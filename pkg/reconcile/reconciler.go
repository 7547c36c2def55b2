package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/kubereflector/controller/pkg/annotations"
	"github.com/kubereflector/controller/pkg/circuitbreaker"
	"github.com/kubereflector/controller/pkg/gateway"
	"github.com/kubereflector/controller/pkg/index"
	"github.com/kubereflector/controller/pkg/watch"
)

// Recorder receives counts of reconciler outcomes for metrics export. A
// nil Recorder is valid; Reconciler checks before every call.
type Recorder interface {
	SyncSucceeded(kind string)
	SyncFailed(kind string)
	MirrorCreated(kind string)
	MirrorDeleted(kind string)
}

// Reconciler implements watch.Handler for one Kind. It is registered
// with that Kind's Session and with the shared NamespaceSession; the
// same instance receives OnResource from the former and OnNamespace
// from the latter, and OnSessionClosed from both.
type Reconciler struct {
	ctx     context.Context
	kind    Kind
	gw      gateway.Gateway
	idx     *index.Indices
	cb      *circuitbreaker.CircuitBreaker
	log     logr.Logger
	metrics Recorder
	now     func() time.Time

	nsMu       sync.RWMutex
	namespaces map[string]struct{}
}

var _ watch.Handler = (*Reconciler)(nil)

// New constructs a Reconciler for kind. ctx bounds every gateway call
// the reconciler issues; it is the process-lifetime scope, not any
// single watch session's scope, since Sync and AutoCreate run outside
// session boundaries. metrics may be nil.
func New(ctx context.Context, kind Kind, gw gateway.Gateway, idx *index.Indices, cb *circuitbreaker.CircuitBreaker, log logr.Logger, metrics Recorder) *Reconciler {
	return &Reconciler{
		ctx:        ctx,
		kind:       kind,
		gw:         gw,
		idx:        idx,
		cb:         cb,
		log:        log.WithValues("kind", kind.Name),
		metrics:    metrics,
		now:        time.Now,
		namespaces: map[string]struct{}{},
	}
}

// OnResource dispatches a resource event to the mirror or source path
// depending on whether the resource currently declares reflects.
func (r *Reconciler) OnResource(kind gateway.Kind, event gateway.EventType, resource gateway.Resource) {
	if kind != r.kind.Gateway {
		return
	}
	self := resource.QN()
	rp := annotations.Parse(&resource, r.log)

	if IsMirror(rp, self) {
		r.handleMirrorEvent(event, resource, rp)
		return
	}
	r.handleSourceEvent(event, resource, rp)
}

// OnSessionClosed wipes this kind's indices. A namespace session
// closure wipes all of them, since auto-reflection decisions depend on
// namespace knowledge, and also forgets the observed namespace set.
func (r *Reconciler) OnSessionClosed(kind gateway.Kind) {
	if kind != r.kind.Gateway && kind != watch.NamespaceSessionKind {
		return
	}
	r.idx.ClearAll()
	if kind == watch.NamespaceSessionKind {
		r.nsMu.Lock()
		r.namespaces = map[string]struct{}{}
		r.nsMu.Unlock()
	}
}

// OnNamespace updates the observed namespace set and fans auto-create
// or auto-mirror forgetting out to every tracked source.
func (r *Reconciler) OnNamespace(event gateway.EventType, name string) {
	switch event {
	case gateway.Added:
		r.addNamespace(name)
		r.autoCreateForNewNamespace(name)
	case gateway.Deleted:
		r.removeNamespace(name)
		r.forgetAutoMirrorsInNamespace(name)
	}
}

func (r *Reconciler) handleMirrorEvent(event gateway.EventType, mirror gateway.Resource, rp annotations.Properties) {
	mirrorQN := mirror.QN()
	switch event {
	case gateway.Added, gateway.Modified:
		r.idx.RecordProperties(mirrorQN, rp)
		if rp.AutoReflects {
			r.idx.LinkAuto(rp.Reflects, mirrorQN)
		} else {
			r.idx.LinkDirect(rp.Reflects, mirrorQN)
		}
		r.syncIfStale(rp.Reflects, mirrorQN, rp.ReflectedVersion)
	case gateway.Deleted:
		r.idx.UnlinkDirect(rp.Reflects, mirrorQN)
		r.idx.UnlinkAuto(rp.Reflects, mirrorQN)
		r.idx.RemoveProperties(mirrorQN)
	}
}

// syncIfStale invokes Sync if source's current resourceVersion differs
// from reflectedVersion. It returns without a lookup when notFoundIndex
// already says source is missing or when the cached resourceVersion
// equals reflectedVersion; otherwise it fetches source with Get, whose
// payload Sync needs.
func (r *Reconciler) syncIfStale(source, mirror annotations.QN, reflectedVersion string) {
	if r.idx.IsNotFound(source) {
		return
	}
	if cached, ok := r.idx.ResourceVersion(source); ok {
		if cached == reflectedVersion {
			return
		}
	}

	src, err := r.gw.Get(r.ctx, r.kind.Gateway, source)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			r.idx.MarkNotFound(source)
			return
		}
		r.log.Info("failed to fetch source for sync check", "source", source.String(), "error", err.Error())
		return
	}
	r.idx.RecordResourceVersion(source, src.ResourceVersion)
	if src.ResourceVersion == reflectedVersion {
		return
	}
	r.sync(src, mirror)
}

func (r *Reconciler) handleSourceEvent(event gateway.EventType, source gateway.Resource, rp annotations.Properties) {
	sourceQN := source.QN()

	switch event {
	case gateway.Added, gateway.Modified:
		r.idx.RecordProperties(sourceQN, rp)
		r.idx.ClearNotFound(sourceQN)
		r.idx.RecordResourceVersion(sourceQN, source.ResourceVersion)

		r.directFanOut(source, rp)
		r.autoFanOut(source, rp)

	case gateway.Deleted:
		for _, mirror := range r.idx.AutoMirrors(sourceQN) {
			r.deleteMirror(mirror)
			r.idx.UnlinkAuto(sourceQN, mirror)
		}
		r.idx.RemoveProperties(sourceQN)
		r.idx.ClearNotFound(sourceQN)
	}
}

// directFanOut re-evaluates every direct mirror's permission on each
// source event; a mirror that lost permission is left untouched rather
// than deleted, per the preserved source-toggle behavior.
func (r *Reconciler) directFanOut(source gateway.Resource, rp annotations.Properties) {
	sourceQN := source.QN()
	for _, mirror := range r.idx.DirectMirrors(sourceQN) {
		if !rp.Allowed || !annotations.Matches(mirror.Namespace, sourceQN.Namespace, rp.AllowedNamespaces) {
			continue
		}
		if mirrorRP, ok := r.idx.Properties(mirror); ok && mirrorRP.ReflectedVersion == source.ResourceVersion {
			continue
		}
		r.sync(source, mirror)
	}
}

// autoFanOut reconciles the auto-mirror set against the currently
// permitted target namespaces: creates missing ones, deletes
// no-longer-permitted ones, and syncs the rest when stale.
func (r *Reconciler) autoFanOut(source gateway.Resource, rp annotations.Properties) {
	sourceQN := source.QN()
	existing := r.idx.AutoMirrors(sourceQN)

	if !(rp.Allowed && rp.AutoEnabled) {
		for _, mirror := range existing {
			r.deleteMirror(mirror)
			r.idx.UnlinkAuto(sourceQN, mirror)
		}
		return
	}

	targets := map[string]struct{}{}
	for _, ns := range r.observedNamespaces() {
		if ns == sourceQN.Namespace {
			continue
		}
		if annotations.Matches(ns, sourceQN.Namespace, rp.AutoNamespaces) {
			targets[ns] = struct{}{}
		}
	}

	haveByNS := make(map[string]annotations.QN, len(existing))
	for _, mirror := range existing {
		haveByNS[mirror.Namespace] = mirror
	}

	for ns := range targets {
		if _, ok := haveByNS[ns]; !ok {
			r.autoCreate(source, ns)
		}
	}
	for ns, mirror := range haveByNS {
		if _, ok := targets[ns]; !ok {
			r.deleteMirror(mirror)
			r.idx.UnlinkAuto(sourceQN, mirror)
			continue
		}
		if mirrorRP, ok := r.idx.Properties(mirror); ok && mirrorRP.ReflectedVersion == source.ResourceVersion {
			continue
		}
		r.sync(source, mirror)
	}
}

// sync applies the payload-and-bookkeeping patch to mirror, guarded by
// the circuit breaker so a mirror the API server keeps rejecting is not
// hammered on every event.
func (r *Reconciler) sync(source gateway.Resource, mirror annotations.QN) {
	if !r.cb.AllowRequest(r.kind.Name, mirror) {
		return
	}
	patch, err := gateway.BuildSyncPatch(r.kind.Gateway, source.Data, source.BinaryData, source.ResourceVersion, r.now())
	if err != nil {
		r.log.Info("failed to build sync patch", "mirror", mirror.String(), "error", err.Error())
		return
	}

	err = r.gw.Patch(r.ctx, r.kind.Gateway, mirror, patch)
	if err == nil {
		r.cb.RecordSuccess(r.kind.Name, mirror)
		r.recordSyncSucceeded()
		return
	}

	switch {
	case errors.Is(err, gateway.ErrNotFound):
		r.idx.UnlinkDirect(source.QN(), mirror)
		r.idx.UnlinkAuto(source.QN(), mirror)
		r.idx.RemoveProperties(mirror)
	case errors.Is(err, gateway.ErrConflict):
		r.log.V(1).Info("patch conflict, next event will re-converge", "mirror", mirror.String())
	default:
		r.log.Info("sync patch failed", "mirror", mirror.String(), "error", err.Error())
	}
	r.cb.RecordFailure(r.kind.Name, mirror, err)
	r.recordSyncFailed()
}

// autoCreate constructs and submits a new auto mirror in ns. An
// AlreadyExists collision with an object this mechanism previously
// created folds into a Sync instead of failing; collision with a
// user-owned object of the same name is left untouched.
func (r *Reconciler) autoCreate(source gateway.Resource, ns string) {
	target := annotations.QN{Namespace: ns, Name: source.Name}
	if !r.cb.AllowRequest(r.kind.Name, target) {
		return
	}

	mirror := newAutoMirror(source, ns, r.now())
	err := r.gw.Create(r.ctx, r.kind.Gateway, mirror)
	switch {
	case err == nil:
		r.idx.LinkAuto(source.QN(), target)
		r.cb.RecordSuccess(r.kind.Name, target)
		r.recordMirrorCreated()

	case errors.Is(err, gateway.ErrAlreadyExists):
		existing, getErr := r.gw.Get(r.ctx, r.kind.Gateway, target)
		if getErr != nil {
			r.log.Info("auto-create collided but existing object could not be fetched", "target", target.String(), "error", getErr.Error())
			return
		}
		existingRP := annotations.Parse(&existing, r.log)
		if existingRP.AutoReflects && existingRP.Reflects == source.QN() {
			r.idx.LinkAuto(source.QN(), target)
			r.idx.RecordProperties(target, existingRP)
			r.sync(source, target)
		}
		// else: a user-owned object with the same name, never overwritten.

	default:
		r.log.Info("auto-create failed", "target", target.String(), "error", err.Error())
		r.cb.RecordFailure(r.kind.Name, target, err)
		r.recordSyncFailed()
	}
}

// deleteMirror removes mirror via the gateway, which treats NotFound
// as success, then drops its cached properties.
func (r *Reconciler) deleteMirror(mirror annotations.QN) {
	if err := r.gw.Delete(r.ctx, r.kind.Gateway, mirror); err != nil {
		r.log.Info("failed to delete mirror", "mirror", mirror.String(), "error", err.Error())
		return
	}
	r.idx.RemoveProperties(mirror)
	r.recordMirrorDeleted()
}

func (r *Reconciler) autoCreateForNewNamespace(ns string) {
	for _, s := range r.idx.Sources() {
		rp, ok := r.idx.Properties(s)
		if !ok || rp.HasReflects || !(rp.Allowed && rp.AutoEnabled) {
			continue
		}
		if ns == s.Namespace || !annotations.Matches(ns, s.Namespace, rp.AutoNamespaces) {
			continue
		}
		src, err := r.gw.Get(r.ctx, r.kind.Gateway, s)
		if err != nil {
			r.log.Info("failed to fetch source for new-namespace auto-create", "source", s.String(), "error", err.Error())
			continue
		}
		r.autoCreate(src, ns)
	}
}

func (r *Reconciler) forgetAutoMirrorsInNamespace(ns string) {
	for _, s := range r.idx.Sources() {
		for _, mirror := range r.idx.AutoMirrors(s) {
			if mirror.Namespace == ns {
				r.idx.UnlinkAuto(s, mirror)
			}
		}
	}
}

func (r *Reconciler) observedNamespaces() []string {
	r.nsMu.RLock()
	defer r.nsMu.RUnlock()
	out := make([]string, 0, len(r.namespaces))
	for ns := range r.namespaces {
		out = append(out, ns)
	}
	return out
}

func (r *Reconciler) addNamespace(ns string) {
	r.nsMu.Lock()
	r.namespaces[ns] = struct{}{}
	r.nsMu.Unlock()
}

func (r *Reconciler) removeNamespace(ns string) {
	r.nsMu.Lock()
	delete(r.namespaces, ns)
	r.nsMu.Unlock()
}

func (r *Reconciler) recordSyncSucceeded() {
	if r.metrics != nil {
		r.metrics.SyncSucceeded(r.kind.Name)
	}
}

func (r *Reconciler) recordSyncFailed() {
	if r.metrics != nil {
		r.metrics.SyncFailed(r.kind.Name)
	}
}

func (r *Reconciler) recordMirrorCreated() {
	if r.metrics != nil {
		r.metrics.MirrorCreated(r.kind.Name)
	}
}

func (r *Reconciler) recordMirrorDeleted() {
	if r.metrics != nil {
		r.metrics.MirrorDeleted(r.kind.Name)
	}
}
