// Package watch implements the reflector's streaming watch loop: one
// long-running session per kind, with session restart, exponential
// backoff, and a bounded producer/consumer queue that never drops events.
package watch

import (
	"context"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/kubereflector/controller/pkg/gateway"
)

const (
	// DefaultQueueCapacity is the bounded channel size between the watch
	// producer and the handler-invoking consumer.
	DefaultQueueCapacity = 256
	// DefaultSessionTimeout bounds how long a single watch session is
	// allowed to stay open before it is cycled.
	DefaultSessionTimeout = 3600 * time.Second
	// helmSecretTypePrefix marks Helm-managed secrets, which the secret
	// session must never surface to handlers.
	helmSecretTypePrefix = "helm.sh"
)

// NamespaceSessionKind is the pseudo-kind handlers see in
// Handler.OnSessionClosed when the namespace session (not a
// Secret/ConfigMap session) closes.
const NamespaceSessionKind gateway.Kind = -1

// Handler receives events from one or more Sessions. A reconciler
// registers the same Handler with its own kind's Session and with the
// namespace Session; each Session only calls the methods relevant to it.
type Handler interface {
	OnResource(kind gateway.Kind, event gateway.EventType, resource gateway.Resource)
	OnSessionClosed(kind gateway.Kind)
	OnNamespace(event gateway.EventType, name string)
}

// SessionMetrics receives optional instrumentation from a Session. A nil
// SessionMetrics (the default) disables instrumentation entirely.
type SessionMetrics interface {
	SessionRestarted(kind string)
	SetQueueDepth(kind string, depth int)
}

// Session runs the watch loop for one resource kind.
type Session struct {
	gateway        gateway.Gateway
	kind           gateway.Kind
	log            logr.Logger
	handlers       []Handler
	backoff        *backoff
	queueCapacity  int
	sessionTimeout time.Duration
	metrics        SessionMetrics
	firstRun       bool
}

// NewSession constructs a Session for kind. queueCapacity and
// sessionTimeout fall back to their package defaults when zero.
func NewSession(gw gateway.Gateway, kind gateway.Kind, log logr.Logger, queueCapacity int, sessionTimeout time.Duration) *Session {
	if queueCapacity <= 0 {
		queueCapacity = DefaultQueueCapacity
	}
	if sessionTimeout <= 0 {
		sessionTimeout = DefaultSessionTimeout
	}
	return &Session{
		gateway:        gw,
		kind:           kind,
		log:            log.WithValues("kind", kind.String()),
		backoff:        newBackoff(),
		queueCapacity:  queueCapacity,
		sessionTimeout: sessionTimeout,
		firstRun:       true,
	}
}

// RegisterHandler adds h to the set of handlers invoked for every event,
// in registration order. Must be called before Run.
func (s *Session) RegisterHandler(h Handler) {
	s.handlers = append(s.handlers, h)
}

// SetMetrics attaches optional instrumentation. Must be called before Run.
func (s *Session) SetMetrics(m SessionMetrics) {
	s.metrics = m
}

// Run drives the reconnect loop until ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if !s.firstRun && s.metrics != nil {
			s.metrics.SessionRestarted(s.kind.String())
		}
		s.firstRun = false

		handledAny, err := s.runOnce(ctx)
		s.notifyClosed()

		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.log.Info("watch session ended, reconnecting", "error", err.Error())
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

// runOnce performs one open-to-close session lifetime: linked
// cancellation against the session timeout, List to seed the starting
// resourceVersion and repopulate handlers, then Watch until the stream
// ends. It reports whether at least one event reached the consumer.
func (s *Session) runOnce(ctx context.Context) (handledAny bool, err error) {
	sessionCtx, cancel := context.WithTimeout(ctx, s.sessionTimeout)
	defer cancel()

	items, err := s.gateway.List(sessionCtx, s.kind, "")
	if err != nil {
		return false, err
	}

	lastRV := ""
	for _, r := range items {
		if !s.filtered(r) {
			lastRV = r.ResourceVersion
		}
	}

	events, err := s.gateway.Watch(sessionCtx, s.kind, lastRV, int(s.sessionTimeout.Seconds()))
	if err != nil {
		return false, err
	}

	queue := make(chan gateway.Event, s.queueCapacity)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		for ev := range queue {
			if s.metrics != nil {
				s.metrics.SetQueueDepth(s.kind.String(), len(queue))
			}
			s.dispatch(ev)
			handledAny = true
		}
		if s.metrics != nil {
			s.metrics.SetQueueDepth(s.kind.String(), 0)
		}
	}()

	for _, r := range items {
		if s.filtered(r) {
			continue
		}
		select {
		case queue <- gateway.Event{Type: gateway.Added, Resource: r}:
		case <-sessionCtx.Done():
			close(queue)
			<-consumerDone
			return handledAny, sessionCtx.Err()
		}
	}

	for ev := range events {
		if s.filtered(ev.Resource) {
			continue
		}
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

// filtered reports whether a resource must never reach handlers: only
// Helm-managed secrets are filtered, per the helm.sh type prefix rule.
func (s *Session) filtered(r gateway.Resource) bool {
	return s.kind == gateway.KindSecret && strings.HasPrefix(r.SecretType, helmSecretTypePrefix)
}

func (s *Session) dispatch(ev gateway.Event) {
	for _, h := range s.handlers {
		h.OnResource(s.kind, ev.Type, ev.Resource)
	}
}

func (s *Session) notifyClosed() {
	for _, h := range s.handlers {
		h.OnSessionClosed(s.kind)
	}
}
