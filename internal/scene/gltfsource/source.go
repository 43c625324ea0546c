// Package gltfsource serves scene snapshots read from a glTF or GLB file.
//
// Every Snapshot reloads the file and compares it with the previous load, so
// an editor saving over the file drives incremental updates on the renderer.
package gltfsource

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"

	"github.com/qmuntal/gltf"
	"go.uber.org/zap"

	"github.com/Faultbox/dergo/internal/network/packets"
	"github.com/Faultbox/dergo/internal/scene"
)

// Option configures a Source.
type Option func(*Source)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Source) { s.log = l }
}

// WithWorld attaches environment settings to every snapshot. glTF has no
// equivalent, so without it the renderer keeps its defaults.
func WithWorld(w packets.WorldParams) Option {
	return func(s *Source) { s.world = &w }
}

// Source implements scene.Source over a file on disk.
type Source struct {
	path  string
	log   *zap.Logger
	world *packets.WorldParams
	prev  *state
}

var _ scene.Source = (*Source)(nil)

// New returns a Source reading path. The file is not opened until the first
// Snapshot.
func New(path string, opts ...Option) *Source {
	s := &Source{path: path, log: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Path returns the file the source reads.
func (s *Source) Path() string { return s.path }

// Snapshot loads the file and flags what changed since the last call. A
// failed load leaves the previous state in place.
func (s *Source) Snapshot(ctx context.Context) (*scene.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap, st, err := load(s.path, s.log)
	if err != nil {
		return nil, err
	}
	markDirty(snap, st, s.prev)
	s.prev = st

	if s.world != nil {
		snap.World = &scene.World{Params: *s.world}
	}
	s.log.Debug("scene loaded",
		zap.String("path", s.path),
		zap.Int("objects", len(snap.Objects)),
		zap.Int("materials", len(snap.Materials)),
		zap.Int("images", len(snap.Images)))
	return snap, nil
}

// Load reads path into a snapshot with no dirty flags set.
func Load(path string) (*scene.Snapshot, error) {
	snap, _, err := load(path, zap.NewNop())
	return snap, err
}

func load(path string, log *zap.Logger) (*scene.Snapshot, *state, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	c := newConverter(doc, filepath.Dir(path), log)
	if err := c.convert(); err != nil {
		return nil, nil, fmt.Errorf("convert %s: %w", path, err)
	}
	return c.snap, c.st, nil
}

// markDirty compares the current load against the previous one. Entities
// that are new carry no flags; the session sends them because they have
// never been synced.
func markDirty(snap *scene.Snapshot, cur, prev *state) {
	if prev == nil {
		return
	}

	for _, mat := range snap.Materials {
		old, ok := prev.materials[mat.Ref]
		mat.Dirty = ok && !reflect.DeepEqual(old, cur.materials[mat.Ref])
	}
	for _, img := range snap.Images {
		old, ok := prev.images[img.Ref]
		img.Dirty = ok && old != cur.images[img.Ref]
	}

	for _, obj := range snap.Objects {
		old, ok := prev.transforms[obj.Ref]
		obj.TransformDirty = ok && old != obj.World

		switch obj.Kind {
		case scene.KindMesh:
			if d, ok := prev.meshes[obj.Mesh.Ref]; ok && d != cur.meshes[obj.Mesh.Ref] {
				obj.Mesh.Dirty = true
			}
			link, ok := prev.links[obj.Ref]
			obj.DataDirty = obj.Mesh.Dirty || (ok && link != obj.Mesh.Ref)
		case scene.KindLight:
			l, ok := prev.lights[obj.Ref]
			obj.DataDirty = ok && l != *obj.Light
		}
	}
}
