// Package index holds the reflector's four in-memory indices binding
// sources to mirrors. All state here is reconstructed from the cluster on
// every session restart; nothing is persisted.
package index

import (
	"sync"

	"github.com/kubereflector/controller/pkg/annotations"
)

// Indices is the complete in-memory state the reconciler consults and
// maintains. Every operation is thread-safe; mirror sets use map[QN]struct{}
// as a concurrent-set idiom guarded by the same mutex as their index, since
// atomic bulk clear (clearAll, required on session close) rules out
// sync.Map, which has no such operation.
type Indices struct {
	mu                  sync.RWMutex
	directReflectionIdx map[annotations.QN]map[annotations.QN]struct{}
	autoReflectionIdx   map[annotations.QN]map[annotations.QN]struct{}
	propertiesIdx       map[annotations.QN]annotations.Properties
	notFoundIdx         map[annotations.QN]struct{}
	// resourceVersionIdx caches the last-observed resourceVersion of any
	// resource, so the reconciler can decide whether a mirror needs a
	// Sync without an extra Get call on every event. It is not one of
	// the four indices the session-close contract names, but it is
	// cleared alongside them so a stale version never survives a
	// session restart.
	resourceVersionIdx map[annotations.QN]string
}

// New returns an empty Indices.
func New() *Indices {
	return &Indices{
		directReflectionIdx: map[annotations.QN]map[annotations.QN]struct{}{},
		autoReflectionIdx:   map[annotations.QN]map[annotations.QN]struct{}{},
		propertiesIdx:       map[annotations.QN]annotations.Properties{},
		notFoundIdx:         map[annotations.QN]struct{}{},
		resourceVersionIdx:  map[annotations.QN]string{},
	}
}

// RecordProperties stores the last-seen parse for qn.
func (idx *Indices) RecordProperties(qn annotations.QN, rp annotations.Properties) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.propertiesIdx[qn] = rp
}

// Properties returns the last-seen parse for qn, if any.
func (idx *Indices) Properties(qn annotations.QN) (annotations.Properties, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	rp, ok := idx.propertiesIdx[qn]
	return rp, ok
}

// RemoveProperties drops qn's last-seen parse.
func (idx *Indices) RemoveProperties(qn annotations.QN) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.propertiesIdx, qn)
}

// LinkDirect registers mirror as a direct (user-created) mirror of source.
func (idx *Indices) LinkDirect(source, mirror annotations.QN) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	linkLocked(idx.directReflectionIdx, source, mirror)
}

// UnlinkDirect removes mirror from source's direct mirror set.
func (idx *Indices) UnlinkDirect(source, mirror annotations.QN) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	unlinkLocked(idx.directReflectionIdx, source, mirror)
}

// DirectMirrors returns a snapshot of source's direct mirror set.
func (idx *Indices) DirectMirrors(source annotations.QN) []annotations.QN {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return snapshotLocked(idx.directReflectionIdx, source)
}

// LinkAuto registers mirror as an engine-created mirror of source.
func (idx *Indices) LinkAuto(source, mirror annotations.QN) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	linkLocked(idx.autoReflectionIdx, source, mirror)
}

// UnlinkAuto removes mirror from source's auto mirror set.
func (idx *Indices) UnlinkAuto(source, mirror annotations.QN) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	unlinkLocked(idx.autoReflectionIdx, source, mirror)
}

// AutoMirrors returns a snapshot of source's auto mirror set.
func (idx *Indices) AutoMirrors(source annotations.QN) []annotations.QN {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return snapshotLocked(idx.autoReflectionIdx, source)
}

// MarkNotFound records that source was looked up via the gateway and
// does not exist, suppressing repeated lookups until cleared.
func (idx *Indices) MarkNotFound(source annotations.QN) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.notFoundIdx[source] = struct{}{}
}

// ClearNotFound invalidates a previous MarkNotFound for source.
func (idx *Indices) ClearNotFound(source annotations.QN) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.notFoundIdx, source)
}

// IsNotFound reports whether source is currently marked not-found.
func (idx *Indices) IsNotFound(source annotations.QN) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.notFoundIdx[source]
	return ok
}

// ClearAll empties all four indices atomically. Invoked on session close;
// the next session repopulates everything from the cluster.
func (idx *Indices) ClearAll() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.directReflectionIdx = map[annotations.QN]map[annotations.QN]struct{}{}
	idx.autoReflectionIdx = map[annotations.QN]map[annotations.QN]struct{}{}
	idx.propertiesIdx = map[annotations.QN]annotations.Properties{}
	idx.notFoundIdx = map[annotations.QN]struct{}{}
	idx.resourceVersionIdx = map[annotations.QN]string{}
}

// RecordResourceVersion caches the resourceVersion last observed for qn.
func (idx *Indices) RecordResourceVersion(qn annotations.QN, rv string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.resourceVersionIdx[qn] = rv
}

// ResourceVersion returns the cached resourceVersion for qn, if any.
func (idx *Indices) ResourceVersion(qn annotations.QN) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	rv, ok := idx.resourceVersionIdx[qn]
	return rv, ok
}

// Sources returns a snapshot of every QN with a recorded Properties
// entry, for fan-out scans triggered by namespace events.
func (idx *Indices) Sources() []annotations.QN {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]annotations.QN, 0, len(idx.propertiesIdx))
	for qn := range idx.propertiesIdx {
		out = append(out, qn)
	}
	return out
}

func linkLocked(m map[annotations.QN]map[annotations.QN]struct{}, source, mirror annotations.QN) {
	set, ok := m[source]
	if !ok {
		set = map[annotations.QN]struct{}{}
		m[source] = set
	}
	set[mirror] = struct{}{}
}

func unlinkLocked(m map[annotations.QN]map[annotations.QN]struct{}, source, mirror annotations.QN) {
	set, ok := m[source]
	if !ok {
		return
	}
	delete(set, mirror)
	if len(set) == 0 {
		delete(m, source)
	}
}

func snapshotLocked(m map[annotations.QN]map[annotations.QN]struct{}, source annotations.QN) []annotations.QN {
	set, ok := m[source]
	if !ok {
		return nil
	}
	out := make([]annotations.QN, 0, len(set))
	for qn := range set {
		out = append(out, qn)
	}
	return out
}
