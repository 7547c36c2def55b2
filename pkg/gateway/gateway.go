// Package gateway abstracts cluster API access behind a small interface so
// the watch and reconcile layers never talk to client-go directly.
package gateway

import (
	"context"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/kubereflector/controller/pkg/annotations"
)

// Kind identifies one of the two value-carrying resource kinds the engine
// propagates. Namespaces are handled through the dedicated
// ListNamespaces/WatchNamespaces methods rather than through Kind, since
// they carry no payload.
type Kind int

const (
	KindSecret Kind = iota
	KindConfigMap
)

// String renders the kind name, used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindSecret:
		return "Secret"
	case KindConfigMap:
		return "ConfigMap"
	default:
		return "Unknown"
	}
}

// EventType mirrors the three watch event kinds the server emits.
type EventType int

const (
	Added EventType = iota
	Modified
	Deleted
)

func (t EventType) String() string {
	switch t {
	case Added:
		return "Added"
	case Modified:
		return "Modified"
	case Deleted:
		return "Deleted"
	default:
		return "Unknown"
	}
}

// Resource is the gateway's kind-agnostic view of a Secret or ConfigMap: its
// metadata plus the two opaque payload maps. metav1.ObjectMeta already
// implements metav1.Object, so a Resource can be handed straight to
// annotations.Parse.
type Resource struct {
	metav1.ObjectMeta
	// SecretType carries corev1.Secret.Type; empty for ConfigMaps and for
	// Secrets of the default type.
	SecretType string
	Data       map[string][]byte
	BinaryData map[string][]byte
}

// QN returns the resource's qualified name.
func (r Resource) QN() annotations.QN {
	return annotations.QN{Namespace: r.Namespace, Name: r.Name}
}

// Event is one delivery from a kind's watch stream.
type Event struct {
	Type     EventType
	Resource Resource
}

// NamespaceEvent is one delivery from the namespace watch stream.
type NamespaceEvent struct {
	Type            EventType
	Name            string
	ResourceVersion string
}

// Gateway is the only source of truth for cluster API calls available to
// the watch and reconcile layers. Implementations must not retry
// internally — all retry and backoff policy lives in pkg/watch.
type Gateway interface {
	// List enumerates every resource of kind in namespace once. An empty
	// namespace lists across all namespaces.
	List(ctx context.Context, kind Kind, namespace string) ([]Resource, error)

	// Watch opens a streaming session starting at fromResourceVersion
	// (empty to start from "now") that runs for at most timeoutSeconds.
	// The returned channel is closed when the session ends, whether
	// cleanly, by timeout, or by error; the channel does not report
	// which. The error return covers only a failure to open the watch.
	Watch(ctx context.Context, kind Kind, fromResourceVersion string, timeoutSeconds int) (<-chan Event, error)

	Get(ctx context.Context, kind Kind, qn annotations.QN) (Resource, error)
	Patch(ctx context.Context, kind Kind, qn annotations.QN, patch []byte) error
	Create(ctx context.Context, kind Kind, resource Resource) error
	Delete(ctx context.Context, kind Kind, qn annotations.QN) error

	ListNamespaces(ctx context.Context) ([]string, error)
	WatchNamespaces(ctx context.Context, fromResourceVersion string, timeoutSeconds int) (<-chan NamespaceEvent, error)
}
