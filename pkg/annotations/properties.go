package annotations

import (
	"regexp"
	"strings"
	"time"

	"github.com/go-logr/logr"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// QN is a namespace-qualified resource name, string form "<namespace>/<name>".
type QN struct {
	Namespace string
	Name      string
}

// String returns the "<namespace>/<name>" form.
func (q QN) String() string {
	return q.Namespace + "/" + q.Name
}

// IsZero reports whether q is the zero value.
func (q QN) IsZero() bool {
	return q.Namespace == "" && q.Name == ""
}

var reflectsPattern = regexp.MustCompile(`^[^/]+/[^/]+$`)

// ParseQN parses the "<namespace>/<name>" wire form used by the reflects
// annotation. ok is false if value does not match the required shape.
func ParseQN(value string) (qn QN, ok bool) {
	if !reflectsPattern.MatchString(value) {
		return QN{}, false
	}
	parts := strings.SplitN(value, "/", 2)
	return QN{Namespace: parts[0], Name: parts[1]}, true
}

// Properties is the parsed reflection-control record for a resource (RP).
type Properties struct {
	Reflects          QN
	ReflectedAt       time.Time
	AllowedNamespaces []Matcher
	AutoNamespaces    []Matcher
	ReflectedVersion  string
	Allowed           bool
	AutoEnabled       bool
	AutoReflects      bool
	HasReflects       bool
	HasReflectedAt    bool
}

// Parse reads the reflection annotations off obj and returns the
// resulting Properties. Malformed values are logged and treated as
// absent per the annotation schema's error-handling rules.
func Parse(obj metav1.Object, log logr.Logger) Properties {
	ann := obj.GetAnnotations()
	if ann == nil {
		ann = map[string]string{}
	}

	var p Properties
	p.Allowed = parseBool(ann, KeyAllowed, log)
	p.AutoEnabled = parseBool(ann, KeyAutoEnabled, log)
	p.AutoReflects = parseBool(ann, KeyAutoReflects, log)

	p.AllowedNamespaces = CompileMatchers(splitTokens(ann[KeyAllowedNamespaces]), log)
	if raw, present := ann[KeyAutoNamespaces]; present {
		p.AutoNamespaces = CompileMatchers(splitTokens(raw), log)
	} else {
		p.AutoNamespaces = p.AllowedNamespaces
	}

	if raw, present := ann[KeyReflects]; present && raw != "" {
		qn, ok := ParseQN(raw)
		if !ok {
			log.Info("malformed reflects annotation, treating as absent",
				"value", raw, "resource", metav1ObjKey(obj))
		} else {
			p.Reflects = qn
			p.HasReflects = true
		}
	}

	p.ReflectedVersion = ann[KeyReflectedVersion]

	if raw, present := ann[KeyReflectedAt]; present && raw != "" {
		t, err := time.Parse(reflectedAtLayout, raw)
		if err != nil {
			log.Info("malformed reflected-at annotation, treating as absent",
				"value", raw, "resource", metav1ObjKey(obj))
		} else {
			p.ReflectedAt = t
			p.HasReflectedAt = true
		}
	}

	return p
}

func parseBool(ann map[string]string, key string, log logr.Logger) bool {
	raw, present := ann[key]
	if !present || raw == "" {
		return false
	}
	if strings.EqualFold(raw, "true") {
		return true
	}
	log.Info("non-boolean value for annotation, treating as false", "key", key, "value", raw)
	return false
}

func metav1ObjKey(obj metav1.Object) string {
	return obj.GetNamespace() + "/" + obj.GetName()
}

// ReflectedAtStamp formats t in the ISO-8601 UTC layout the reflected-at
// annotation uses.
func ReflectedAtStamp(t time.Time) string {
	return t.UTC().Format(reflectedAtLayout)
}
