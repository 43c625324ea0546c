// Package mesh converts indexed, face-varying meshes into the flat,
// renderer-ready vertex streams and face records sent over the wire.
package mesh

import (
	"errors"
	"fmt"
)

// Mesh validation errors.
var (
	ErrInvalidPolygon = errors.New("mesh: polygon must have 3 or 4 vertices")
	ErrVertexIndex    = errors.New("mesh: vertex index out of range")
	ErrLayerSize      = errors.New("mesh: attribute layer does not match polygon count")
	ErrTooManyLayers  = errors.New("mesh: too many uv layers")
)

// MaxUVLayers is the number of UV layers a mesh message can describe.
const MaxUVLayers = 255

// Vertex is a shared vertex referenced by polygon corners.
type Vertex struct {
	Position [3]float32
	Normal   [3]float32
}

// Polygon is a triangle or quad of the source mesh.
type Polygon struct {
	Vertices []uint32   // 3 or 4 indices into Mesh.Vertices
	Normal   [3]float32 // Face normal, used when Smooth is false
	Smooth   bool
	Material uint16 // Index into the mesh's material slots
}

// ColorLayer holds one color per polygon corner.
type ColorLayer struct {
	HasAlpha bool            // When false the fourth channel is ignored
	Faces    [][4][4]float32 // Per polygon, per corner RGBA in [0,1]
}

// UVLayer holds one texture coordinate per polygon corner.
type UVLayer struct {
	Name  string
	Faces [][4][2]float32 // Per polygon, per corner
}

// Mesh is an indexed mesh with face-varying attribute layers.
type Mesh struct {
	Vertices []Vertex
	Polygons []Polygon
	Colors   *ColorLayer // Optional
	UVs      []UVLayer
}

// Format returns the vertex layout implied by the mesh's attribute set.
func (m *Mesh) Format() VertexFormat {
	return VertexFormat{HasColor: m.Colors != nil, UVSets: len(m.UVs)}
}

// TriangleCount returns the number of triangles after quads are split.
func (m *Mesh) TriangleCount() int {
	n := 0
	for i := range m.Polygons {
		n++
		if len(m.Polygons[i].Vertices) == 4 {
			n++
		}
	}
	return n
}

// Validate checks the preconditions of Deindex and Faces.
func (m *Mesh) Validate() error {
	for i, p := range m.Polygons {
		if len(p.Vertices) < 3 || len(p.Vertices) > 4 {
			return fmt.Errorf("%w: polygon %d has %d", ErrInvalidPolygon, i, len(p.Vertices))
		}
		for _, v := range p.Vertices {
			if int(v) >= len(m.Vertices) {
				return fmt.Errorf("%w: polygon %d references %d of %d", ErrVertexIndex, i, v, len(m.Vertices))
			}
		}
	}
	if m.Colors != nil && len(m.Colors.Faces) != len(m.Polygons) {
		return fmt.Errorf("%w: colors has %d entries", ErrLayerSize, len(m.Colors.Faces))
	}
	if len(m.UVs) > MaxUVLayers {
		return fmt.Errorf("%w: %d, at most %d", ErrTooManyLayers, len(m.UVs), MaxUVLayers)
	}
	for _, uv := range m.UVs {
		if len(uv.Faces) != len(m.Polygons) {
			return fmt.Errorf("%w: uv layer %q has %d entries", ErrLayerSize, uv.Name, len(uv.Faces))
		}
	}
	return nil
}

// triangleCorners lists the polygon corners of each emitted triangle.
// Quads share the (0,2) diagonal.
var (
	triCorners  = [][3]int{{0, 1, 2}}
	quadCorners = [][3]int{{0, 1, 2}, {0, 2, 3}}
)

func cornersOf(p *Polygon) [][3]int {
	if len(p.Vertices) == 4 {
		return quadCorners
	}
	return triCorners
}
