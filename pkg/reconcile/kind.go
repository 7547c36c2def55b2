// Package reconcile implements the annotation-driven propagation
// algorithm: one reconciler type parameterized by a Kind descriptor,
// shared between Secrets and ConfigMaps instead of a reconciler per
// resource kind.
package reconcile

import "github.com/kubereflector/controller/pkg/gateway"

// Kind parameterizes the single reconciler implementation over the two
// value-carrying resource kinds. A third mirrorable kind is a new Kind
// value, not a new reconciler type.
type Kind struct {
	// Name is the human-readable kind name used in logs, metric labels,
	// and circuit breaker keys.
	Name string
	// Gateway is this kind's identifier in the gateway/watch layer.
	Gateway gateway.Kind
	// ImmutableFields lists fields Sync must never patch even though
	// they exist on the live object, because the cluster fixes them at
	// creation time.
	ImmutableFields []string
}

func (k Kind) String() string { return k.Name }

// Secrets is the Kind descriptor for Secret resources. Type is
// immutable after creation, so Sync never touches it.
var Secrets = Kind{
	Name:            "Secret",
	Gateway:         gateway.KindSecret,
	ImmutableFields: []string{"type"},
}

// ConfigMaps is the Kind descriptor for ConfigMap resources.
var ConfigMaps = Kind{
	Name:    "ConfigMap",
	Gateway: gateway.KindConfigMap,
}
