package reconcile

import "github.com/kubereflector/controller/pkg/annotations"

// IsMirror reports whether rp describes a mirror of some other
// resource: it carries a reflects annotation that does not name the
// resource itself. A resource that reflects itself is nonsensical and
// is treated as a plain source, per the same-kind self-target rule.
func IsMirror(rp annotations.Properties, self annotations.QN) bool {
	return rp.HasReflects && rp.Reflects != self
}
