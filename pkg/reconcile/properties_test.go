package reconcile

import (
	"context"
	"encoding/json"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/kubereflector/controller/pkg/annotations"
	"github.com/kubereflector/controller/pkg/circuitbreaker"
	"github.com/kubereflector/controller/pkg/gateway"
	"github.com/kubereflector/controller/pkg/gateway/fake"
	"github.com/kubereflector/controller/pkg/index"
)

var _ = Describe("Reflection invariants", func() {
	var (
		ctx context.Context
		gw  *fake.Gateway
		idx *index.Indices
		r   *Reconciler
	)

	BeforeEach(func() {
		ctx = context.Background()
		gw = fake.New()
		idx = index.New()
		r = New(ctx, ConfigMaps, gw, idx, circuitbreaker.NewWithDefaults(), logr.Discard(), nil)
	})

	Describe("P1: disjoint indices", func() {
		It("never places the same mirror in both the direct and auto index for a source", func() {
			source := qn("ns-src", "cm")
			mirror := qn("ns-dst", "cm")

			idx.LinkDirect(source, mirror)
			Expect(idx.AutoMirrors(source)).NotTo(ContainElement(mirror))

			auto := qn("ns-a", "cm")
			idx.LinkAuto(source, auto)
			Expect(idx.DirectMirrors(source)).NotTo(ContainElement(auto))
		})
	})

	Describe("P3: auto coverage", func() {
		It("creates an auto-mirror in every namespace matching autoNamespaces, and none outside it", func() {
			for _, ns := range []string{"ns-src", "a", "b", "c"} {
				r.OnNamespace(gateway.Added, ns)
			}

			Expect(gw.Create(ctx, gateway.KindConfigMap, gateway.Resource{
				ObjectMeta: metav1.ObjectMeta{Namespace: "ns-src", Name: "cm", Annotations: map[string]string{
					annotations.KeyAllowed:        "true",
					annotations.KeyAutoEnabled:    "true",
					annotations.KeyAutoNamespaces: "a,b",
				}},
			})).To(Succeed())
			source, err := gw.Get(ctx, gateway.KindConfigMap, qn("ns-src", "cm"))
			Expect(err).NotTo(HaveOccurred())
			r.OnResource(gateway.KindConfigMap, gateway.Added, source)

			_, errA := gw.Get(ctx, gateway.KindConfigMap, qn("a", "cm"))
			_, errB := gw.Get(ctx, gateway.KindConfigMap, qn("b", "cm"))
			_, errC := gw.Get(ctx, gateway.KindConfigMap, qn("c", "cm"))
			Expect(errA).NotTo(HaveOccurred())
			Expect(errB).NotTo(HaveOccurred())
			Expect(errC).To(MatchError(gateway.ErrNotFound))
		})

		It("treats a pre-existing non-auto object with the same name as satisfying coverage", func() {
			r.OnNamespace(gateway.Added, "a")
			Expect(gw.Create(ctx, gateway.KindConfigMap, gateway.Resource{
				ObjectMeta: metav1.ObjectMeta{Namespace: "a", Name: "cm"},
			})).To(Succeed())

			Expect(gw.Create(ctx, gateway.KindConfigMap, gateway.Resource{
				ObjectMeta: metav1.ObjectMeta{Namespace: "ns-src", Name: "cm", Annotations: map[string]string{
					annotations.KeyAllowed:        "true",
					annotations.KeyAutoEnabled:    "true",
					annotations.KeyAutoNamespaces: "a",
				}},
			})).To(Succeed())
			source, err := gw.Get(ctx, gateway.KindConfigMap, qn("ns-src", "cm"))
			Expect(err).NotTo(HaveOccurred())
			r.OnResource(gateway.KindConfigMap, gateway.Added, source)

			untouched, err := gw.Get(ctx, gateway.KindConfigMap, qn("a", "cm"))
			Expect(err).NotTo(HaveOccurred())
			Expect(untouched.Annotations[annotations.KeyAutoReflects]).To(BeEmpty(), "a user-owned object must never be overwritten by auto mode")
		})
	})

	Describe("P4: auto cleanup", func() {
		It("deletes every auto-mirror once its source is deleted", func() {
			r.OnNamespace(gateway.Added, "a")
			Expect(gw.Create(ctx, gateway.KindConfigMap, gateway.Resource{
				ObjectMeta: metav1.ObjectMeta{Namespace: "ns-src", Name: "cm", Annotations: map[string]string{
					annotations.KeyAllowed:        "true",
					annotations.KeyAutoEnabled:    "true",
					annotations.KeyAutoNamespaces: "a",
				}},
			})).To(Succeed())
			source, err := gw.Get(ctx, gateway.KindConfigMap, qn("ns-src", "cm"))
			Expect(err).NotTo(HaveOccurred())
			r.OnResource(gateway.KindConfigMap, gateway.Added, source)

			Expect(idx.AutoMirrors(qn("ns-src", "cm"))).To(HaveLen(1))

			Expect(gw.Delete(ctx, gateway.KindConfigMap, qn("ns-src", "cm"))).To(Succeed())
			r.OnResource(gateway.KindConfigMap, gateway.Deleted, source)

			Expect(idx.AutoMirrors(qn("ns-src", "cm"))).To(BeEmpty())
			_, err = gw.Get(ctx, gateway.KindConfigMap, qn("a", "cm"))
			Expect(err).To(MatchError(gateway.ErrNotFound))
		})
	})

	Describe("P5: permission revocation", func() {
		It("stops future syncs once allowed flips to false, without deleting the mirror", func() {
			ann := map[string]string{annotations.KeyAllowed: "true"}
			Expect(gw.Create(ctx, gateway.KindConfigMap, gateway.Resource{
				ObjectMeta: metav1.ObjectMeta{Namespace: "ns-src", Name: "cm", Annotations: ann},
				Data:       map[string][]byte{"k": []byte("v1")},
			})).To(Succeed())
			source, err := gw.Get(ctx, gateway.KindConfigMap, qn("ns-src", "cm"))
			Expect(err).NotTo(HaveOccurred())
			r.OnResource(gateway.KindConfigMap, gateway.Added, source)

			Expect(gw.Create(ctx, gateway.KindConfigMap, gateway.Resource{
				ObjectMeta: metav1.ObjectMeta{Namespace: "ns-dst", Name: "cm", Annotations: map[string]string{
					annotations.KeyReflects: "ns-src/cm",
				}},
			})).To(Succeed())
			mirror, err := gw.Get(ctx, gateway.KindConfigMap, qn("ns-dst", "cm"))
			Expect(err).NotTo(HaveOccurred())
			r.OnResource(gateway.KindConfigMap, gateway.Added, mirror)

			beforeRV := mustGet(ctx, gw, qn("ns-dst", "cm")).ResourceVersion

			ann[annotations.KeyAllowed] = "false"
			Expect(gw.Patch(ctx, gateway.KindConfigMap, qn("ns-src", "cm"), rawReplaceAnnotations(ann))).To(Succeed())
			Expect(gw.Patch(ctx, gateway.KindConfigMap, qn("ns-src", "cm"), rawReplaceData(map[string][]byte{"k": []byte("v2")}))).To(Succeed())
			updatedSource := mustGet(ctx, gw, qn("ns-src", "cm"))
			r.OnResource(gateway.KindConfigMap, gateway.Modified, updatedSource)

			after := mustGet(ctx, gw, qn("ns-dst", "cm"))
			Expect(after.ResourceVersion).To(Equal(beforeRV))
		})
	})

	Describe("P6: session wipe", func() {
		It("empties this kind's indices on OnSessionClosed", func() {
			idx.RecordProperties(qn("ns-src", "cm"), annotations.Properties{Allowed: true})
			idx.LinkDirect(qn("ns-src", "cm"), qn("ns-dst", "cm"))

			r.OnSessionClosed(gateway.KindConfigMap)

			Expect(idx.Sources()).To(BeEmpty())
			Expect(idx.DirectMirrors(qn("ns-src", "cm"))).To(BeEmpty())
		})
	})
})

func mustGet(ctx context.Context, gw *fake.Gateway, q annotations.QN) gateway.Resource {
	r, err := gw.Get(ctx, gateway.KindConfigMap, q)
	Expect(err).NotTo(HaveOccurred())
	return r
}

func rawReplaceAnnotations(ann map[string]string) []byte {
	b, err := json.Marshal([]map[string]any{{"op": "replace", "path": "/metadata/annotations", "value": ann}})
	Expect(err).NotTo(HaveOccurred())
	return b
}

func rawReplaceData(data map[string][]byte) []byte {
	b, err := json.Marshal([]map[string]any{{"op": "replace", "path": "/data", "value": data}})
	Expect(err).NotTo(HaveOccurred())
	return b
}
