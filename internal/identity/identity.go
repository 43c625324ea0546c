// Package identity assigns session-unique ids to scene entities and detects
// renames and duplicated entities.
package identity

import (
	"sort"

	"github.com/Faultbox/dergo/internal/scene"
)

// proceduralBit flags mesh ids derived from a single object.
const proceduralBit = uint64(1) << 63

// ProceduralMeshID returns the private mesh id of an object with modifiers.
func ProceduralMeshID(objectID uint64) uint64 { return objectID | proceduralBit }

// IsProcedural reports whether id was produced by ProceduralMeshID.
func IsProcedural(id uint64) bool { return id&proceduralBit != 0 }

// Record is the tracking state attached to one entity.
type Record struct {
	ID              uint64 // 0 means unassigned
	InSync          bool
	Name            string
	LinkedMeshID    uint64 // Objects only
	FrameLastSynced int32  // Meshes only, 0 means never
}

// Stale is a record cleared by DetectRename, as it was before clearing.
type Stale struct {
	Ref    scene.Ref
	Record Record
}

// Tracker hands out ids for one entity class. Ids start at 1 and are not
// reused until Reset, which matches a protocol reset on the renderer.
type Tracker struct {
	next    uint64
	records map[scene.Ref]*Record
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		next:    1,
		records: make(map[scene.Ref]*Record),
	}
}

// Len returns the number of tracked entities.
func (t *Tracker) Len() int { return len(t.records) }

// Lookup returns the record of ref.
func (t *Tracker) Lookup(ref scene.Ref) (*Record, bool) {
	r, ok := t.records[ref]
	return r, ok
}

// EnsureID assigns an id to ref if it has none. Calling it again returns
// the same record unchanged.
func (t *Tracker) EnsureID(ref scene.Ref, name string) *Record {
	r, ok := t.records[ref]
	if !ok {
		r = &Record{}
		t.records[ref] = r
	}
	if r.ID == 0 {
		r.ID = t.next
		t.next++
		r.Name = name
		r.InSync = false
	}
	return r
}

// DetectRename compares name with the tracked name of ref. On a mismatch
// every entity sharing the old id is returned in ref order and cleared,
// then ref receives a fresh id. A rename and a duplicated entity look the
// same from here.
func (t *Tracker) DetectRename(ref scene.Ref, name string) ([]Stale, bool) {
	r, ok := t.records[ref]
	if !ok || r.ID == 0 || r.Name == name {
		return nil, false
	}

	stale := t.clear(r.ID)
	t.EnsureID(ref, name)
	return stale, true
}

func (t *Tracker) clear(id uint64) []Stale {
	var stale []Stale
	for ref, r := range t.records {
		if r.ID != id {
			continue
		}
		stale = append(stale, Stale{Ref: ref, Record: *r})
		*r = Record{}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].Ref < stale[j].Ref })
	return stale
}

// Seed adopts a record persisted by the host. Several refs may be seeded
// with the same id; DetectRename separates them later.
func (t *Tracker) Seed(ref scene.Ref, id uint64, name string) *Record {
	r := &Record{ID: id, Name: name}
	t.records[ref] = r
	if id >= t.next {
		t.next = id + 1
	}
	return r
}

// Refs returns every tracked ref, sorted.
func (t *Tracker) Refs() []scene.Ref {
	refs := make([]scene.Ref, 0, len(t.records))
	for ref := range t.records {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })
	return refs
}

// Forget drops ref.
func (t *Tracker) Forget(ref scene.Ref) {
	delete(t.records, ref)
}

// Reset drops every record and restarts the counter at 1.
func (t *Tracker) Reset() {
	clear(t.records)
	t.next = 1
}

// Set groups the trackers of every entity class. Lights are objects.
type Set struct {
	Objects   *Tracker
	Meshes    *Tracker
	Materials *Tracker
	Images    *Tracker
}

// NewSet creates empty trackers.
func NewSet() *Set {
	return &Set{
		Objects:   NewTracker(),
		Meshes:    NewTracker(),
		Materials: NewTracker(),
		Images:    NewTracker(),
	}
}

// Reset clears every tracker.
func (s *Set) Reset() {
	s.Objects.Reset()
	s.Meshes.Reset()
	s.Materials.Reset()
	s.Images.Reset()
}
