package packets

import (
	"github.com/Faultbox/dergo/pkg/mesh"
)

// NoTangentUV marks a mesh without a tangent source UV set.
const NoTangentUV = 255

// MaxMeshSlots is the size limit of the material table of a Mesh message.
const MaxMeshSlots = 1<<16 - 1

// Mesh is the indexed mesh message: face records, per-corner attribute
// blocks, raw shared vertices and the material id of each slot.
type Mesh struct {
	ID              uint64
	Name            string
	TangentUVSource uint8
	Geometry        mesh.FaceBuffers
	Materials       []int32 // Material id per slot, 0 for empty slots
}

// NewMesh builds a Mesh message from a validated source mesh. Slots past
// MaxMeshSlots are dropped.
func NewMesh(id uint64, name string, m *mesh.Mesh, materials []int32, tangentUV uint8) *Mesh {
	if len(materials) > MaxMeshSlots {
		materials = materials[:MaxMeshSlots]
	}
	geo := mesh.Split(m)
	geo.UVNames = nil
	return &Mesh{
		ID:              id,
		Name:            name,
		TangentUVSource: tangentUV,
		Geometry:        *geo,
		Materials:       materials,
	}
}

func (*Mesh) Type() ClientType { return ClientMesh }

func (m *Mesh) EncodeTo(e *Encoder, _ Version) {
	g := &m.Geometry
	uvs := g.UVs[:min(len(g.UVs), mesh.MaxUVLayers)]
	slots := m.Materials[:min(len(m.Materials), MaxMeshSlots)]
	e.WriteUint64(m.ID)
	e.WriteString(m.Name)
	e.WriteUint32(uint32(len(g.Faces)))
	e.WriteUint32(uint32(len(g.Vertices)))
	e.WriteBool(g.Colors != nil)
	e.WriteUint8(uint8(len(uvs)))
	e.WriteUint8(m.TangentUVSource)

	for _, f := range g.Faces {
		for _, v := range f.Vertices {
			e.WriteUint32(v)
		}
		e.WriteFloats(f.Normal[:]...)
		e.WriteUint16(f.Packed())
		e.WriteUint8(f.Corners)
	}
	for _, face := range g.Colors {
		for _, c := range face {
			e.WriteFloats(c[:]...)
		}
	}
	for _, layer := range uvs {
		for _, face := range layer {
			for _, uv := range face {
				e.WriteFloats(uv[:]...)
			}
		}
	}
	for _, v := range g.Vertices {
		e.WriteFloats(v.Position[:]...)
		e.WriteFloats(v.Normal[:]...)
	}

	e.WriteUint16(uint16(len(slots)))
	for _, id := range slots {
		e.WriteInt32(id)
	}
}

const (
	faceRecordSize = 4*4 + 3*4 + 2 + 1
	rawVertexSize  = 6 * 4
)

func decodeMesh(d *Decoder) *Mesh {
	m := &Mesh{
		ID:   d.ReadUint64(),
		Name: d.ReadString(),
	}
	faceCount := d.ReadCount(4, faceRecordSize)
	vertexCount := int(d.ReadUint32())
	hasColor := d.ReadBool()
	uvCount := int(d.ReadUint8())
	m.TangentUVSource = d.ReadUint8()

	g := &m.Geometry
	if faceCount > 0 {
		g.Faces = make([]mesh.Face, faceCount)
	}
	for i := range g.Faces {
		f := &g.Faces[i]
		for c := range f.Vertices {
			f.Vertices[c] = d.ReadUint32()
		}
		f.Normal = d.ReadVec3()
		f.Smooth, f.Material = mesh.UnpackFlags(d.ReadUint16())
		f.Corners = d.ReadUint8()
	}

	if hasColor {
		d.checkCount(uint64(faceCount), 4*3*4)
		g.Colors = make([][4][3]float32, faceCount)
		for i := range g.Colors {
			for c := range g.Colors[i] {
				g.Colors[i][c] = d.ReadVec3()
			}
		}
	}
	for l := 0; l < uvCount && d.Err() == nil; l++ {
		d.checkCount(uint64(faceCount), 4*2*4)
		layer := make([][4][2]float32, faceCount)
		for i := range layer {
			for c := range layer[i] {
				layer[i][c] = [2]float32{d.ReadFloat32(), d.ReadFloat32()}
			}
		}
		g.UVs = append(g.UVs, layer)
	}

	vertexCount = d.checkCount(uint64(vertexCount), rawVertexSize)
	if vertexCount > 0 {
		g.Vertices = make([]mesh.Vertex, vertexCount)
	}
	for i := range g.Vertices {
		g.Vertices[i].Position = d.ReadVec3()
		g.Vertices[i].Normal = d.ReadVec3()
	}

	n := d.ReadCount(2, 4)
	if n > 0 {
		m.Materials = make([]int32, n)
	}
	for i := range m.Materials {
		m.Materials[i] = d.ReadInt32()
	}
	return m
}

// MeshFlat is the legacy mesh message: a deindexed vertex stream with one
// material slot index per triangle.
type MeshFlat struct {
	ID        uint64
	Name      string
	Format    mesh.VertexFormat
	Vertices  []mesh.ExportVertex
	Materials []uint16
}

// NewMeshFlat deindexes a validated source mesh into a MeshFlat message.
func NewMeshFlat(id uint64, name string, m *mesh.Mesh) *MeshFlat {
	vertices, materials := mesh.Deindex(m)
	return &MeshFlat{
		ID:        id,
		Name:      name,
		Format:    m.Format(),
		Vertices:  vertices,
		Materials: materials,
	}
}

func (*MeshFlat) Type() ClientType { return ClientMesh }

func (m *MeshFlat) EncodeTo(e *Encoder, _ Version) {
	e.WriteUint64(m.ID)
	e.WriteString(m.Name)
	e.WriteUint32(uint32(len(m.Vertices)))
	e.WriteBool(m.Format.HasColor)
	e.WriteUint8(uint8(m.Format.UVSets))
	e.WriteBytes(mesh.PackVertices(m.Format, m.Vertices))
	for _, mat := range m.Materials {
		e.WriteUint16(mat)
	}
}

func decodeMeshFlat(d *Decoder) *MeshFlat {
	m := &MeshFlat{
		ID:   d.ReadUint64(),
		Name: d.ReadString(),
	}
	count := int(d.ReadUint32())
	m.Format.HasColor = d.ReadBool()
	m.Format.UVSets = int(d.ReadUint8())

	count = d.checkCount(uint64(count), m.Format.Stride())
	data := d.ReadBytes(count * m.Format.Stride())
	if d.Err() != nil {
		return m
	}
	vertices, err := mesh.UnpackVertices(m.Format, data)
	if err != nil {
		d.fail(err)
		return m
	}
	if len(vertices) > 0 {
		m.Vertices = vertices
	}

	triangles := d.checkCount(uint64(count/3), 2)
	if triangles > 0 {
		m.Materials = make([]uint16, triangles)
	}
	for i := range m.Materials {
		m.Materials[i] = d.ReadUint16()
	}
	return m
}
