package watch

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/kubereflector/controller/pkg/gateway"
)

// NamespaceSession runs the watch loop for cluster namespaces. It is
// structurally identical to Session but namespaces carry no payload, so
// it talks to Gateway.ListNamespaces/WatchNamespaces and dispatches
// through Handler.OnNamespace instead of OnResource.
type NamespaceSession struct {
	gateway        gateway.Gateway
	log            logr.Logger
	handlers       []Handler
	backoff        *backoff
	queueCapacity  int
	sessionTimeout time.Duration
	metrics        SessionMetrics
	firstRun       bool
}

// NewNamespaceSession constructs a NamespaceSession. queueCapacity and
// sessionTimeout fall back to their package defaults when zero.
func NewNamespaceSession(gw gateway.Gateway, log logr.Logger, queueCapacity int, sessionTimeout time.Duration) *NamespaceSession {
	if queueCapacity <= 0 {
		queueCapacity = DefaultQueueCapacity
	}
	if sessionTimeout <= 0 {
		sessionTimeout = DefaultSessionTimeout
	}
	return &NamespaceSession{
		gateway:        gw,
		log:            log.WithValues("kind", "Namespace"),
		backoff:        newBackoff(),
		queueCapacity:  queueCapacity,
		sessionTimeout: sessionTimeout,
		firstRun:       true,
	}
}

// RegisterHandler adds h to the set of handlers invoked for every
// namespace event, in registration order. Must be called before Run.
func (s *NamespaceSession) RegisterHandler(h Handler) {
	s.handlers = append(s.handlers, h)
}

// SetMetrics attaches optional instrumentation. Must be called before Run.
func (s *NamespaceSession) SetMetrics(m SessionMetrics) {
	s.metrics = m
}

// Run drives the reconnect loop until ctx is cancelled.
func (s *NamespaceSession) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if !s.firstRun && s.metrics != nil {
			s.metrics.SessionRestarted("Namespace")
		}
		s.firstRun = false

		handledAny, err := s.runOnce(ctx)
		s.notifyClosed()

		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.log.Info("namespace watch session ended, reconnecting", "error", err.Error())
		}

		if handledAny {
			s.backoff.Reset()
			continue
		}

		delay := s.backoff.Next()
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

func (s *NamespaceSession) runOnce(ctx context.Context) (handledAny bool, err error) {
	sessionCtx, cancel := context.WithTimeout(ctx, s.sessionTimeout)
	defer cancel()

	names, err := s.gateway.ListNamespaces(sessionCtx)
	if err != nil {
		return false, err
	}

	events, err := s.gateway.WatchNamespaces(sessionCtx, "", int(s.sessionTimeout.Seconds()))
	if err != nil {
		return false, err
	}

	queue := make(chan gateway.NamespaceEvent, s.queueCapacity)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		for ev := range queue {
			if s.metrics != nil {
				s.metrics.SetQueueDepth("Namespace", len(queue))
			}
			s.dispatch(ev)
			handledAny = true
		}
		if s.metrics != nil {
			s.metrics.SetQueueDepth("Namespace", 0)
		}
	}()

	for _, name := range names {
		select {
		case queue <- gateway.NamespaceEvent{Type: gateway.Added, Name: name}:
		case <-sessionCtx.Done():
			close(queue)
			<-consumerDone
			return handledAny, sessionCtx.Err()
		}
	}

	for ev := range events {
		select {
		case queue <- ev:
		case <-sessionCtx.Done():
			close(queue)
			<-consumerDone
			return handledAny, sessionCtx.Err()
		}
	}

	close(queue)
	<-consumerDone
	return handledAny, sessionCtx.Err()
}

func (s *NamespaceSession) dispatch(ev gateway.NamespaceEvent) {
	for _, h := range s.handlers {
		h.OnNamespace(ev.Type, ev.Name)
	}
}

func (s *NamespaceSession) notifyClosed() {
	for _, h := range s.handlers {
		h.OnSessionClosed(NamespaceSessionKind)
	}
}
