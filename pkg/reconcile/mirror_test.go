package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/kubereflector/controller/pkg/annotations"
	"github.com/kubereflector/controller/pkg/gateway"
)

func TestNewAutoMirror_CopiesPayloadOnly(t *testing.T) {
	source := gateway.Resource{
		ObjectMeta: metav1.ObjectMeta{
			Namespace:       "ns-src",
			Name:            "cm",
			ResourceVersion: "42",
			Labels:          map[string]string{"team": "red"},
			Annotations:     map[string]string{"unrelated": "keep-out"},
		},
		Data: map[string][]byte{"a": []byte("1")},
	}

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mirror := newAutoMirror(source, "ns-a", now)

	assert.Equal(t, "ns-a", mirror.Namespace)
	assert.Equal(t, "cm", mirror.Name)
	assert.Nil(t, mirror.Labels, "auto mirrors never copy the source's labels")
	assert.Equal(t, map[string][]byte{"a": []byte("1")}, mirror.Data)
	assert.Equal(t, "ns-src/cm", mirror.Annotations[annotations.KeyReflects])
	assert.Equal(t, "42", mirror.Annotations[annotations.KeyReflectedVersion])
	assert.Equal(t, "true", mirror.Annotations[annotations.KeyAutoReflects])
	assert.NotContains(t, mirror.Annotations, "unrelated")
}

func TestCopyByteMap_NewKeysDoNotLeakBack(t *testing.T) {
	src := map[string][]byte{"a": []byte("1")}
	dst := copyByteMap(src)
	dst["b"] = []byte("2")
	assert.Len(t, src, 1, "copyByteMap must return a distinct map so adding mirror-side keys never touches the source's map")
}
