package gateway

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/kubereflector/controller/pkg/annotations"
)

// patchOp is one RFC 6902 operation. A hand-rolled three- or four-element
// slice (three for Secret, four for ConfigMap) is
// simpler and more auditable here than pulling in a patch-building
// library; see DESIGN.md for why evanphx/json-patch/v5 is instead
// exercised applying these patches in jsonpatch_test.go.
type patchOp struct {
	Value any    `json:"value,omitempty"`
	Op    string `json:"op"`
	Path  string `json:"path"`
}

// escapeJSONPointerToken escapes a raw string for use as one segment of a
// JSON Pointer path, per RFC 6901: "~" -> "~0", "/" -> "~1".
func escapeJSONPointerToken(token string) string {
	token = strings.ReplaceAll(token, "~", "~0")
	token = strings.ReplaceAll(token, "/", "~1")
	return token
}

func nonNilByteMap(m map[string][]byte) map[string][]byte {
	if m == nil {
		return map[string][]byte{}
	}
	return m
}

// byteMapToStringMap mirrors cluster.byteMapToStringMap: ConfigMap.Data is
// map[string]string on the wire, unlike Secret.Data's map[string][]byte.
func byteMapToStringMap(m map[string][]byte) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = string(v)
	}
	return out
}

// BuildSyncPatch returns the RFC 6902 document Sync applies to a mirror: its
// payload replaced wholesale and the two bookkeeping annotations stamped
// with the source's current version and the sync time. It never touches
// any other field — labels, owner references, and other annotations are
// left exactly as the mirror's owner set them.
//
// The /data operation's value is kind-typed: a ConfigMap's data field is
// map[string]string on the wire, while a Secret's is map[string][]byte
// (base64-encoded by encoding/json). Marshaling a ConfigMap's payload the
// Secret way double-base64-encodes every value once the patch reaches a
// real apiserver. Secrets carry no binaryData field at all, so the
// binaryData operation is only emitted for ConfigMap.
func BuildSyncPatch(kind Kind, data, binaryData map[string][]byte, reflectedVersion string, reflectedAt time.Time) ([]byte, error) {
	var dataValue any
	if kind == KindConfigMap {
		dataValue = byteMapToStringMap(nonNilByteMap(data))
	} else {
		dataValue = nonNilByteMap(data)
	}

	ops := []patchOp{
		{Op: "replace", Path: "/data", Value: dataValue},
	}
	if kind == KindConfigMap {
		ops = append(ops, patchOp{Op: "replace", Path: "/binaryData", Value: nonNilByteMap(binaryData)})
	}
	ops = append(ops,
		patchOp{
			Op:    "add",
			Path:  "/metadata/annotations/" + escapeJSONPointerToken(annotations.KeyReflectedVersion),
			Value: reflectedVersion,
		},
		patchOp{
			Op:    "add",
			Path:  "/metadata/annotations/" + escapeJSONPointerToken(annotations.KeyReflectedAt),
			Value: annotations.ReflectedAtStamp(reflectedAt),
		},
	)
	return json.Marshal(ops)
}
