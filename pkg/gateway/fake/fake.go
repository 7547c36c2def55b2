// Package fake provides an in-memory gateway.Gateway for unit and
// integration tests. Gateway.Watch returns a channel, which general mock
// frameworks model awkwardly; a small hand-rolled fake over plain maps is
// more direct than forcing testify/mock onto a streaming interface.
package fake

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/kubereflector/controller/pkg/annotations"
	"github.com/kubereflector/controller/pkg/gateway"
)

type objectStore struct {
	objects map[annotations.QN]gateway.Resource
	rv      int
	mu      sync.Mutex
	subs    []chan gateway.Event
}

// Gateway is an in-memory gateway.Gateway backed by plain maps, one per
// kind, plus a namespace set. It is safe for concurrent use.
type Gateway struct {
	secrets    *objectStore
	configMaps *objectStore

	nsMu   sync.Mutex
	nsRV   int
	nsSet  map[string]bool
	nsSubs []chan gateway.NamespaceEvent
}

// New returns an empty Gateway.
func New() *Gateway {
	return &Gateway{
		secrets:    &objectStore{objects: map[annotations.QN]gateway.Resource{}},
		configMaps: &objectStore{objects: map[annotations.QN]gateway.Resource{}},
		nsSet:      map[string]bool{},
	}
}

var _ gateway.Gateway = (*Gateway)(nil)

func (g *Gateway) store(kind gateway.Kind) (*objectStore, error) {
	switch kind {
	case gateway.KindSecret:
		return g.secrets, nil
	case gateway.KindConfigMap:
		return g.configMaps, nil
	default:
		return nil, fmt.Errorf("fake gateway: unknown kind %v", kind)
	}
}

// Seed directly inserts a resource without emitting a watch event, for
// test setup before any Watch call subscribes.
func (g *Gateway) Seed(kind gateway.Kind, r gateway.Resource) {
	store, err := g.store(kind)
	if err != nil {
		panic(err)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	store.rv++
	r.ResourceVersion = fmt.Sprintf("%d", store.rv)
	store.objects[r.QN()] = r
}

// SeedNamespace registers a namespace as already existing, without
// emitting a watch event.
func (g *Gateway) SeedNamespace(name string) {
	g.nsMu.Lock()
	defer g.nsMu.Unlock()
	g.nsSet[name] = true
}

func (g *Gateway) List(ctx context.Context, kind gateway.Kind, namespace string) ([]gateway.Resource, error) {
	store, err := g.store(kind)
	if err != nil {
		return nil, err
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	var out []gateway.Resource
	for qn, r := range store.objects {
		if namespace == "" || qn.Namespace == namespace {
			out = append(out, r)
		}
	}
	return out, nil
}

func (g *Gateway) Watch(ctx context.Context, kind gateway.Kind, fromResourceVersion string, timeoutSeconds int) (<-chan gateway.Event, error) {
	store, err := g.store(kind)
	if err != nil {
		return nil, err
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	ch := make(chan gateway.Event, 16)
	store.subs = append(store.subs, ch)
	go func() {
		<-ctx.Done()
		store.mu.Lock()
		defer store.mu.Unlock()
		// CloseSession may already have closed and dropped ch.
		for i, s := range store.subs {
			if s == ch {
				store.subs = append(store.subs[:i], store.subs[i+1:]...)
				close(ch)
				break
			}
		}
	}()
	return ch, nil
}

func (g *Gateway) Get(ctx context.Context, kind gateway.Kind, qn annotations.QN) (gateway.Resource, error) {
	store, err := g.store(kind)
	if err != nil {
		return gateway.Resource{}, err
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	r, ok := store.objects[qn]
	if !ok {
		return gateway.Resource{}, fmt.Errorf("%w: %s", gateway.ErrNotFound, qn)
	}
	return r, nil
}

func (g *Gateway) Patch(ctx context.Context, kind gateway.Kind, qn annotations.QN, patch []byte) error {
	store, err := g.store(kind)
	if err != nil {
		return err
	}
	store.mu.Lock()
	defer store.mu.Unlock()

	r, ok := store.objects[qn]
	if !ok {
		return fmt.Errorf("%w: %s", gateway.ErrNotFound, qn)
	}

	encoded, marshalErr := marshalResource(r)
	if marshalErr != nil {
		return marshalErr
	}
	decoded, decodeErr := jsonpatch.DecodePatch(patch)
	if decodeErr != nil {
		return decodeErr
	}
	applied, applyErr := decoded.Apply(encoded)
	if applyErr != nil {
		return fmt.Errorf("%w: %v", gateway.ErrConflict, applyErr)
	}

	patched, unmarshalErr := unmarshalResource(applied, r)
	if unmarshalErr != nil {
		return unmarshalErr
	}

	store.rv++
	patched.ResourceVersion = fmt.Sprintf("%d", store.rv)
	store.objects[qn] = patched
	store.publish(gateway.Event{Type: gateway.Modified, Resource: patched})
	return nil
}

func (g *Gateway) Create(ctx context.Context, kind gateway.Kind, resource gateway.Resource) error {
	store, err := g.store(kind)
	if err != nil {
		return err
	}
	store.mu.Lock()
	defer store.mu.Unlock()

	qn := resource.QN()
	if _, exists := store.objects[qn]; exists {
		return fmt.Errorf("%w: %s", gateway.ErrAlreadyExists, qn)
	}
	store.rv++
	resource.ResourceVersion = fmt.Sprintf("%d", store.rv)
	store.objects[qn] = resource
	store.publish(gateway.Event{Type: gateway.Added, Resource: resource})
	return nil
}

func (g *Gateway) Delete(ctx context.Context, kind gateway.Kind, qn annotations.QN) error {
	store, err := g.store(kind)
	if err != nil {
		return err
	}
	store.mu.Lock()
	defer store.mu.Unlock()

	r, ok := store.objects[qn]
	if !ok {
		return nil
	}
	delete(store.objects, qn)
	store.publish(gateway.Event{Type: gateway.Deleted, Resource: r})
	return nil
}

func (g *Gateway) ListNamespaces(ctx context.Context) ([]string, error) {
	g.nsMu.Lock()
	defer g.nsMu.Unlock()
	out := make([]string, 0, len(g.nsSet))
	for ns := range g.nsSet {
		out = append(out, ns)
	}
	return out, nil
}

func (g *Gateway) WatchNamespaces(ctx context.Context, fromResourceVersion string, timeoutSeconds int) (<-chan gateway.NamespaceEvent, error) {
	g.nsMu.Lock()
	defer g.nsMu.Unlock()
	ch := make(chan gateway.NamespaceEvent, 16)
	g.nsSubs = append(g.nsSubs, ch)
	go func() {
		<-ctx.Done()
		g.nsMu.Lock()
		defer g.nsMu.Unlock()
		for i, s := range g.nsSubs {
			if s == ch {
				g.nsSubs = append(g.nsSubs[:i], g.nsSubs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

// CreateNamespace registers a namespace and emits an Added event to every
// active WatchNamespaces subscriber.
func (g *Gateway) CreateNamespace(name string) {
	g.nsMu.Lock()
	defer g.nsMu.Unlock()
	g.nsSet[name] = true
	g.nsRV++
	event := gateway.NamespaceEvent{Type: gateway.Added, Name: name, ResourceVersion: fmt.Sprintf("%d", g.nsRV)}
	for _, s := range g.nsSubs {
		s <- event
	}
}

// DeleteNamespace removes a namespace and emits a Deleted event.
func (g *Gateway) DeleteNamespace(name string) {
	g.nsMu.Lock()
	defer g.nsMu.Unlock()
	if !g.nsSet[name] {
		return
	}
	delete(g.nsSet, name)
	g.nsRV++
	event := gateway.NamespaceEvent{Type: gateway.Deleted, Name: name, ResourceVersion: fmt.Sprintf("%d", g.nsRV)}
	for _, s := range g.nsSubs {
		s <- event
	}
}

// CloseSession forcibly ends every active watch subscription for kind, as
// if the session's transport had failed, without cancelling ctx.
func (g *Gateway) CloseSession(kind gateway.Kind) {
	store, err := g.store(kind)
	if err != nil {
		panic(err)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, s := range store.subs {
		close(s)
	}
	store.subs = nil
}

func (s *objectStore) publish(event gateway.Event) {
	for _, sub := range s.subs {
		sub <- event
	}
}

// marshalResource and unmarshalResource round-trip a Resource through a
// plain JSON document shaped like the wire objects so gateway.Patch can
// apply an RFC 6902 document the same way the cluster implementation's
// API server does.
type wireResource struct {
	Annotations map[string]string `json:"annotations,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
	Data        map[string][]byte `json:"data,omitempty"`
	BinaryData  map[string][]byte `json:"binaryData,omitempty"`
}

func marshalResource(r gateway.Resource) ([]byte, error) {
	return json.Marshal(map[string]any{
		"metadata":   wireResource{Annotations: r.Annotations, Labels: r.Labels},
		"data":       r.Data,
		"binaryData": r.BinaryData,
	})
}

func unmarshalResource(doc []byte, base gateway.Resource) (gateway.Resource, error) {
	var parsed struct {
		Metadata   wireResource      `json:"metadata"`
		Data       map[string][]byte `json:"data"`
		BinaryData map[string][]byte `json:"binaryData"`
	}
	if err := json.Unmarshal(doc, &parsed); err != nil {
		return gateway.Resource{}, err
	}
	out := base
	out.Annotations = parsed.Metadata.Annotations
	out.Data = parsed.Data
	out.BinaryData = parsed.BinaryData
	return out, nil
}
