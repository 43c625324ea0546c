// Package scene describes the read-only view of a host scene that the
// sync session consumes once per tick.
package scene

import (
	"context"

	dmath "github.com/Faultbox/dergo/pkg/math"
	"github.com/Faultbox/dergo/pkg/mesh"

	"github.com/Faultbox/dergo/internal/network/packets"
)

// Ref is a stable host handle for an entity. It survives renames.
type Ref string

// Source produces scene snapshots.
type Source interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// Snapshot is the scene state at one tick.
type Snapshot struct {
	Objects   []*Object
	Materials []*Material
	Images    []*Image
	World     *World // nil keeps the renderer defaults
}

// Image returns the image with the given ref.
func (s *Snapshot) Image(ref Ref) *Image {
	for _, img := range s.Images {
		if img.Ref == ref {
			return img
		}
	}
	return nil
}

// ObjectKind distinguishes what an object carries.
type ObjectKind uint8

const (
	KindEmpty ObjectKind = iota
	KindMesh
	KindLight
)

// Object is a scene node.
type Object struct {
	Ref     Ref
	Name    string
	Kind    ObjectKind
	Visible bool
	World   dmath.Mat4

	Mesh         *Mesh  // KindMesh
	Light        *Light // KindLight
	HasModifiers bool   // Geometry is evaluated per object

	TransformDirty bool
	DataDirty      bool

	// PersistedID is an identity the host stored on a previous run, 0 if
	// none. PersistedName is the name stored with it.
	PersistedID   uint64
	PersistedName string
}

// Mesh is mesh data shared by one or more objects.
type Mesh struct {
	Ref       Ref
	Name      string
	Geometry  *mesh.Mesh
	Materials []Ref // Material per slot, "" for an empty slot
	TangentUV int   // UV layer used for tangents, -1 for none
	Dirty     bool
}

// Light holds lamp parameters.
type Light struct {
	Type            packets.LightType
	Color           [3]float32
	Energy          float32
	CastShadows     bool
	UseNegative     bool
	Radius          float32
	RadiusThreshold float32
	Spot            packets.Spot
}

// TextureBinding attaches an image to a material slot.
type TextureBinding struct {
	Slot  packets.TextureSlot
	Image Ref
}

// Material is a PBS material. ID and Name inside Params are ignored.
type Material struct {
	Ref      Ref
	Name     string
	Params   packets.Material
	Textures []TextureBinding
	Dirty    bool
}

// Image is a texture file.
type Image struct {
	Ref   Ref
	Name  string
	Path  string
	Dirty bool
}

// World holds environment settings.
type World struct {
	Params           packets.WorldParams
	InstantRadiosity *packets.InstantRadiosity // nil leaves it untouched
	Dirty            bool
}

// Bounds returns the world-space box around every visible mesh vertex. ok is
// false when there is nothing to bound.
func (s *Snapshot) Bounds() (lo, hi dmath.Vec3, ok bool) {
	for _, obj := range s.Objects {
		if !obj.Visible || obj.Mesh == nil || obj.Mesh.Geometry == nil {
			continue
		}
		for _, v := range obj.Mesh.Geometry.Vertices {
			p := dmath.Vec3From(obj.World.TransformPoint(v.Position))
			if !ok {
				lo, hi, ok = p, p, true
				continue
			}
			lo = dmath.Vec3{X: min(lo.X, p.X), Y: min(lo.Y, p.Y), Z: min(lo.Z, p.Z)}
			hi = dmath.Vec3{X: max(hi.X, p.X), Y: max(hi.Y, p.Y), Z: max(hi.Z, p.Z)}
		}
	}
	return lo, hi, ok
}
