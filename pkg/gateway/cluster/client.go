// Package cluster implements gateway.Gateway directly on top of
// client-go's typed clientset, bypassing the informer cache so that the
// watch layer gets the raw, resumable event stream the watch loop design
// requires.
package cluster

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"

	"github.com/kubereflector/controller/pkg/annotations"
	"github.com/kubereflector/controller/pkg/gateway"
)

// Gateway is the cluster-backed gateway.Gateway implementation.
type Gateway struct {
	clientset kubernetes.Interface
}

// New wraps an existing clientset. Callers obtain the clientset from
// in-cluster config or a local kubeconfig, matching the teacher's
// startup flow in cmd/reflector.
func New(clientset kubernetes.Interface) *Gateway {
	return &Gateway{clientset: clientset}
}

var _ gateway.Gateway = (*Gateway)(nil)

func (g *Gateway) List(ctx context.Context, kind gateway.Kind, namespace string) ([]gateway.Resource, error) {
	switch kind {
	case gateway.KindSecret:
		list, err := g.clientset.CoreV1().Secrets(namespace).List(ctx, metav1.ListOptions{})
		if err != nil {
			return nil, gateway.Classify(err)
		}
		out := make([]gateway.Resource, 0, len(list.Items))
		for i := range list.Items {
			out = append(out, fromSecret(&list.Items[i]))
		}
		return out, nil
	case gateway.KindConfigMap:
		list, err := g.clientset.CoreV1().ConfigMaps(namespace).List(ctx, metav1.ListOptions{})
		if err != nil {
			return nil, gateway.Classify(err)
		}
		out := make([]gateway.Resource, 0, len(list.Items))
		for i := range list.Items {
			out = append(out, fromConfigMap(&list.Items[i]))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("gateway: unknown kind %v", kind)
	}
}

func (g *Gateway) Watch(ctx context.Context, kind gateway.Kind, fromResourceVersion string, timeoutSeconds int) (<-chan gateway.Event, error) {
	opts := metav1.ListOptions{
		ResourceVersion: fromResourceVersion,
		TimeoutSeconds:  int64Ptr(int64(timeoutSeconds)),
		Watch:           true,
	}

	var watcher watch.Interface
	var err error
	switch kind {
	case gateway.KindSecret:
		watcher, err = g.clientset.CoreV1().Secrets(metav1.NamespaceAll).Watch(ctx, opts)
	case gateway.KindConfigMap:
		watcher, err = g.clientset.CoreV1().ConfigMaps(metav1.NamespaceAll).Watch(ctx, opts)
	default:
		return nil, fmt.Errorf("gateway: unknown kind %v", kind)
	}
	if err != nil {
		return nil, gateway.Classify(err)
	}

	out := make(chan gateway.Event)
	go translateWatch(ctx, kind, watcher, out)
	return out, nil
}

// translateWatch pumps raw watch.Events into gateway.Events until the
// source channel closes or ctx is done. It does not filter helm.sh
// secrets; pkg/watch.Session drops those.
func translateWatch(ctx context.Context, kind gateway.Kind, watcher watch.Interface, out chan<- gateway.Event) {
	defer close(out)
	defer watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-watcher.ResultChan():
			if !ok {
				return
			}
			event, ok := translateEvent(kind, raw)
			if !ok {
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}

func translateEvent(kind gateway.Kind, raw watch.Event) (gateway.Event, bool) {
	var evType gateway.EventType
	switch raw.Type {
	case watch.Added:
		evType = gateway.Added
	case watch.Modified:
		evType = gateway.Modified
	case watch.Deleted:
		evType = gateway.Deleted
	default:
		// Bookmark and Error events carry no resource to reconcile.
		return gateway.Event{}, false
	}

	var resource gateway.Resource
	switch kind {
	case gateway.KindSecret:
		secret, ok := raw.Object.(*corev1.Secret)
		if !ok {
			return gateway.Event{}, false
		}
		resource = fromSecret(secret)
	case gateway.KindConfigMap:
		cm, ok := raw.Object.(*corev1.ConfigMap)
		if !ok {
			return gateway.Event{}, false
		}
		resource = fromConfigMap(cm)
	}

	return gateway.Event{Type: evType, Resource: resource}, true
}

func (g *Gateway) Get(ctx context.Context, kind gateway.Kind, qn annotations.QN) (gateway.Resource, error) {
	switch kind {
	case gateway.KindSecret:
		secret, err := g.clientset.CoreV1().Secrets(qn.Namespace).Get(ctx, qn.Name, metav1.GetOptions{})
		if err != nil {
			return gateway.Resource{}, gateway.Classify(err)
		}
		return fromSecret(secret), nil
	case gateway.KindConfigMap:
		cm, err := g.clientset.CoreV1().ConfigMaps(qn.Namespace).Get(ctx, qn.Name, metav1.GetOptions{})
		if err != nil {
			return gateway.Resource{}, gateway.Classify(err)
		}
		return fromConfigMap(cm), nil
	default:
		return gateway.Resource{}, fmt.Errorf("gateway: unknown kind %v", kind)
	}
}

func (g *Gateway) Patch(ctx context.Context, kind gateway.Kind, qn annotations.QN, patch []byte) error {
	var err error
	switch kind {
	case gateway.KindSecret:
		_, err = g.clientset.CoreV1().Secrets(qn.Namespace).Patch(ctx, qn.Name, types.JSONPatchType, patch, metav1.PatchOptions{})
	case gateway.KindConfigMap:
		_, err = g.clientset.CoreV1().ConfigMaps(qn.Namespace).Patch(ctx, qn.Name, types.JSONPatchType, patch, metav1.PatchOptions{})
	default:
		return fmt.Errorf("gateway: unknown kind %v", kind)
	}
	return gateway.Classify(err)
}

func (g *Gateway) Create(ctx context.Context, kind gateway.Kind, resource gateway.Resource) error {
	var err error
	switch kind {
	case gateway.KindSecret:
		_, err = g.clientset.CoreV1().Secrets(resource.Namespace).Create(ctx, toSecret(resource), metav1.CreateOptions{})
	case gateway.KindConfigMap:
		_, err = g.clientset.CoreV1().ConfigMaps(resource.Namespace).Create(ctx, toConfigMap(resource), metav1.CreateOptions{})
	default:
		return fmt.Errorf("gateway: unknown kind %v", kind)
	}
	return gateway.Classify(err)
}

func (g *Gateway) Delete(ctx context.Context, kind gateway.Kind, qn annotations.QN) error {
	var err error
	switch kind {
	case gateway.KindSecret:
		err = g.clientset.CoreV1().Secrets(qn.Namespace).Delete(ctx, qn.Name, metav1.DeleteOptions{})
	case gateway.KindConfigMap:
		err = g.clientset.CoreV1().ConfigMaps(qn.Namespace).Delete(ctx, qn.Name, metav1.DeleteOptions{})
	default:
		return fmt.Errorf("gateway: unknown kind %v", kind)
	}
	if apierrors.IsNotFound(err) {
		return nil
	}
	return gateway.Classify(err)
}

func (g *Gateway) ListNamespaces(ctx context.Context) ([]string, error) {
	list, err := g.clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, gateway.Classify(err)
	}
	out := make([]string, 0, len(list.Items))
	for _, ns := range list.Items {
		out = append(out, ns.Name)
	}
	return out, nil
}

func (g *Gateway) WatchNamespaces(ctx context.Context, fromResourceVersion string, timeoutSeconds int) (<-chan gateway.NamespaceEvent, error) {
	opts := metav1.ListOptions{
		ResourceVersion: fromResourceVersion,
		TimeoutSeconds:  int64Ptr(int64(timeoutSeconds)),
		Watch:           true,
	}
	watcher, err := g.clientset.CoreV1().Namespaces().Watch(ctx, opts)
	if err != nil {
		return nil, gateway.Classify(err)
	}

	out := make(chan gateway.NamespaceEvent)
	go translateNamespaceWatch(ctx, watcher, out)
	return out, nil
}

func translateNamespaceWatch(ctx context.Context, watcher watch.Interface, out chan<- gateway.NamespaceEvent) {
	defer close(out)
	defer watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-watcher.ResultChan():
			if !ok {
				return
			}
			ns, ok := raw.Object.(*corev1.Namespace)
			if !ok {
				continue
			}
			var evType gateway.EventType
			switch raw.Type {
			case watch.Added:
				evType = gateway.Added
			case watch.Modified:
				evType = gateway.Modified
			case watch.Deleted:
				evType = gateway.Deleted
			default:
				continue
			}
			event := gateway.NamespaceEvent{Type: evType, Name: ns.Name, ResourceVersion: ns.ResourceVersion}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}

func fromSecret(s *corev1.Secret) gateway.Resource {
	return gateway.Resource{
		ObjectMeta: s.ObjectMeta,
		SecretType: string(s.Type),
		Data:       s.Data,
		BinaryData: nil,
	}
}

func fromConfigMap(cm *corev1.ConfigMap) gateway.Resource {
	return gateway.Resource{
		ObjectMeta: cm.ObjectMeta,
		Data:       stringMapToByteMap(cm.Data),
		BinaryData: cm.BinaryData,
	}
}

func toSecret(r gateway.Resource) *corev1.Secret {
	return &corev1.Secret{
		ObjectMeta: r.ObjectMeta,
		Type:       corev1.SecretType(r.SecretType),
		Data:       r.Data,
	}
}

func toConfigMap(r gateway.Resource) *corev1.ConfigMap {
	return &corev1.ConfigMap{
		ObjectMeta: r.ObjectMeta,
		Data:       byteMapToStringMap(r.Data),
		BinaryData: r.BinaryData,
	}
}

func stringMapToByteMap(m map[string]string) map[string][]byte {
	if m == nil {
		return nil
	}
	out := make(map[string][]byte, len(m))
	for k, v := range m {
		out[k] = []byte(v)
	}
	return out
}

func byteMapToStringMap(m map[string][]byte) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = string(v)
	}
	return out
}

func int64Ptr(v int64) *int64 { return &v }
