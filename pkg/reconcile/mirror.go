package reconcile

import (
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/kubereflector/controller/pkg/annotations"
	"github.com/kubereflector/controller/pkg/gateway"
)

// newAutoMirror builds the resource AutoCreate submits to the gateway:
// the source's payload, copied rather than aliased, carrying only the
// four bookkeeping annotations the auto mechanism owns. No other
// annotation or label is copied onto an auto mirror.
func newAutoMirror(source gateway.Resource, ns string, now time.Time) gateway.Resource {
	return gateway.Resource{
		ObjectMeta: metav1.ObjectMeta{
			Namespace: ns,
			Name:      source.Name,
			Annotations: map[string]string{
				annotations.KeyReflects:         source.QN().String(),
				annotations.KeyReflectedVersion: source.ResourceVersion,
				annotations.KeyReflectedAt:      annotations.ReflectedAtStamp(now),
				annotations.KeyAutoReflects:     "true",
			},
		},
		SecretType: source.SecretType,
		Data:       copyByteMap(source.Data),
		BinaryData: copyByteMap(source.BinaryData),
	}
}

func copyByteMap(m map[string][]byte) map[string][]byte {
	if m == nil {
		return nil
	}
	out := make(map[string][]byte, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
