package mesh

const (
	smoothBit    = 1 << 15
	materialMask = 0x7fff
)

// Face is the per-polygon record of the indexed Mesh message.
type Face struct {
	Vertices [4]uint32 // Unused fourth index is 0 for triangles
	Corners  uint8     // 3 or 4
	Normal   [3]float32
	Smooth   bool
	Material uint16
}

// Packed returns the smooth flag and material index as one 16-bit field.
func (f Face) Packed() uint16 {
	p := f.Material & materialMask
	if f.Smooth {
		p |= smoothBit
	}
	return p
}

// UnpackFlags splits a packed field back into smooth flag and material.
func UnpackFlags(p uint16) (smooth bool, material uint16) {
	return p&smoothBit != 0, p & materialMask
}

// FaceBuffers is the indexed form of a mesh: face records, per-corner
// attribute blocks and the raw shared vertices.
type FaceBuffers struct {
	Faces    []Face
	Colors   [][4][3]float32   // Per face, nil without a color layer
	UVs      [][][4][2]float32 // Per UV layer, per face
	UVNames  []string
	Vertices []Vertex
}

// Faces builds one record per polygon. The mesh must satisfy Validate.
func Faces(m *Mesh) []Face {
	faces := make([]Face, len(m.Polygons))
	for i := range m.Polygons {
		p := &m.Polygons[i]
		f := &faces[i]
		copy(f.Vertices[:], p.Vertices)
		f.Corners = uint8(len(p.Vertices))
		f.Normal = p.Normal
		f.Smooth = p.Smooth
		f.Material = p.Material
	}
	return faces
}

// Split converts a mesh into face buffers. Color alpha is not carried.
func Split(m *Mesh) *FaceBuffers {
	b := &FaceBuffers{
		Faces:    Faces(m),
		Vertices: m.Vertices,
	}
	if m.Colors != nil {
		b.Colors = make([][4][3]float32, len(m.Polygons))
		for i, face := range m.Colors.Faces {
			for c := 0; c < 4; c++ {
				b.Colors[i][c] = [3]float32{face[c][0], face[c][1], face[c][2]}
			}
		}
	}
	for _, layer := range m.UVs {
		b.UVs = append(b.UVs, layer.Faces)
		b.UVNames = append(b.UVNames, layer.Name)
	}
	return b
}

// FromFaces rebuilds an indexed mesh from decoded face buffers.
func FromFaces(b *FaceBuffers) *Mesh {
	m := &Mesh{
		Vertices: b.Vertices,
		Polygons: make([]Polygon, len(b.Faces)),
	}
	for i, f := range b.Faces {
		n := int(f.Corners)
		if n != 4 {
			n = 3
		}
		m.Polygons[i] = Polygon{
			Vertices: append([]uint32(nil), f.Vertices[:n]...),
			Normal:   f.Normal,
			Smooth:   f.Smooth,
			Material: f.Material,
		}
	}
	if b.Colors != nil {
		m.Colors = &ColorLayer{Faces: make([][4][4]float32, len(b.Colors))}
		for i, face := range b.Colors {
			for c := 0; c < 4; c++ {
				m.Colors.Faces[i][c] = [4]float32{face[c][0], face[c][1], face[c][2], 1}
			}
		}
	}
	for li, layer := range b.UVs {
		name := ""
		if li < len(b.UVNames) {
			name = b.UVNames[li]
		}
		m.UVs = append(m.UVs, UVLayer{Name: name, Faces: layer})
	}
	return m
}
