// Package annotations parses and matches the reflection control annotations
// that drive source/mirror propagation.
package annotations

// Prefix is shared by every reflection annotation key. It is a wire
// contract: user manifests reference these exact strings.
const Prefix = "reflector.v1.k8s.emberstack.com/"

// Annotation suffixes, appended to Prefix to form the full key.
const (
	SuffixAllowed           = "reflection-allowed"
	SuffixAllowedNamespaces = "reflection-allowed-namespaces"
	SuffixAutoEnabled       = "reflection-auto-enabled"
	SuffixAutoNamespaces    = "reflection-auto-namespaces"
	SuffixReflects          = "reflects"
	SuffixReflectedVersion  = "reflected-version"
	SuffixReflectedAt       = "reflected-at"
	SuffixAutoReflects      = "auto-reflects"
)

// Full annotation keys, ready to index into an object's annotation map.
const (
	KeyAllowed           = Prefix + SuffixAllowed
	KeyAllowedNamespaces = Prefix + SuffixAllowedNamespaces
	KeyAutoEnabled       = Prefix + SuffixAutoEnabled
	KeyAutoNamespaces    = Prefix + SuffixAutoNamespaces
	KeyReflects          = Prefix + SuffixReflects
	KeyReflectedVersion  = Prefix + SuffixReflectedVersion
	KeyReflectedAt       = Prefix + SuffixReflectedAt
	KeyAutoReflects      = Prefix + SuffixAutoReflects
)

// reflectedAtLayout is the ISO-8601 UTC layout used for reflected-at.
const reflectedAtLayout = "2006-01-02T15:04:05Z"
