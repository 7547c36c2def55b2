package fake

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/kubereflector/controller/pkg/annotations"
	"github.com/kubereflector/controller/pkg/gateway"
)

func TestGateway_CreateGetDelete(t *testing.T) {
	g := New()
	ctx := context.Background()

	err := g.Create(ctx, gateway.KindConfigMap, gateway.Resource{
		ObjectMeta: objMeta("ns-src", "cm"),
		Data:       map[string][]byte{"a": []byte("1")},
	})
	require.NoError(t, err)

	err = g.Create(ctx, gateway.KindConfigMap, gateway.Resource{ObjectMeta: objMeta("ns-src", "cm")})
	assert.ErrorIs(t, err, gateway.ErrAlreadyExists)

	got, err := g.Get(ctx, gateway.KindConfigMap, annotations.QN{Namespace: "ns-src", Name: "cm"})
	require.NoError(t, err)
	assert.Equal(t, "1", string(got.Data["a"]))
	assert.NotEmpty(t, got.ResourceVersion)

	require.NoError(t, g.Delete(ctx, gateway.KindConfigMap, annotations.QN{Namespace: "ns-src", Name: "cm"}))
	_, err = g.Get(ctx, gateway.KindConfigMap, annotations.QN{Namespace: "ns-src", Name: "cm"})
	assert.ErrorIs(t, err, gateway.ErrNotFound)
}

func TestGateway_WatchDeliversCreateAndPatch(t *testing.T) {
	g := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := g.Watch(ctx, gateway.KindSecret, "", 60)
	require.NoError(t, err)

	require.NoError(t, g.Create(ctx, gateway.KindSecret, gateway.Resource{
		ObjectMeta: objMeta("ns-src", "s"),
		Data:       map[string][]byte{"a": []byte("1")},
	}))

	select {
	case event := <-ch:
		assert.Equal(t, gateway.Added, event.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for create event")
	}

	patch := []byte(`[{"op":"replace","path":"/data","value":{"a":"Mg=="}}]`)
	require.NoError(t, g.Patch(ctx, gateway.KindSecret, annotations.QN{Namespace: "ns-src", Name: "s"}, patch))

	select {
	case event := <-ch:
		assert.Equal(t, gateway.Modified, event.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for patch event")
	}
}

func TestGateway_CloseSessionClosesChannel(t *testing.T) {
	g := New()
	ctx := context.Background()

	ch, err := g.Watch(ctx, gateway.KindSecret, "", 60)
	require.NoError(t, err)

	g.CloseSession(gateway.KindSecret)

	_, open := <-ch
	assert.False(t, open)
}

func objMeta(ns, name string) metav1.ObjectMeta {
	return metav1.ObjectMeta{Namespace: ns, Name: name}
}
