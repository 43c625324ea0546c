package mesh

// Deindex emits three export vertices per triangle, splitting quads into
// (0,1,2) and (0,2,3), together with one material-table entry per triangle.
//
// Smooth polygons take the shared vertex normal, flat ones replicate the face
// normal on every corner. Color and UV layers are assigned corner by corner in
// the same order. The mesh must satisfy Validate; material indices are not
// checked.
func Deindex(m *Mesh) ([]ExportVertex, []uint16) {
	triangles := m.TriangleCount()
	vertices := make([]ExportVertex, 0, triangles*3)
	materials := make([]uint16, 0, triangles)

	for fi := range m.Polygons {
		p := &m.Polygons[fi]
		for _, tri := range cornersOf(p) {
			for _, corner := range tri {
				vi := p.Vertices[corner]
				src := m.Vertices[vi]

				ev := ExportVertex{
					VertexIndex: vi,
					FaceIndex:   uint32(fi),
					Position:    src.Position,
					Normal:      p.Normal,
				}
				if p.Smooth {
					ev.Normal = src.Normal
				}
				vertices = append(vertices, ev)
			}
			materials = append(materials, p.Material)
		}
	}

	if m.Colors != nil {
		assignColors(vertices, m)
	}
	for li := range m.UVs {
		assignUVs(vertices, m, &m.UVs[li])
	}
	for i := range vertices {
		vertices[i].ComputeHash()
	}
	return vertices, materials
}

func assignColors(vertices []ExportVertex, m *Mesh) {
	vi := 0
	for fi := range m.Polygons {
		face := &m.Colors.Faces[fi]
		for _, tri := range cornersOf(&m.Polygons[fi]) {
			for _, corner := range tri {
				vertices[vi].Color = QuantizeColor(face[corner], m.Colors.HasAlpha)
				vi++
			}
		}
	}
}

func assignUVs(vertices []ExportVertex, m *Mesh, layer *UVLayer) {
	vi := 0
	for fi := range m.Polygons {
		face := &layer.Faces[fi]
		for _, tri := range cornersOf(&m.Polygons[fi]) {
			for _, corner := range tri {
				vertices[vi].TexCoords = append(vertices[vi].TexCoords, face[corner])
				vi++
			}
		}
	}
}

// QuantizeChannel maps a [0,1] color channel to a byte as uint8(v*255+0.5).
func QuantizeChannel(v float32) uint8 {
	q := v*255 + 0.5
	switch {
	case q <= 0:
		return 0
	case q >= 255:
		return 255
	}
	return uint8(q)
}

// QuantizeColor packs a float color into RGBA bytes. Alpha is 255 unless
// hasAlpha is set.
func QuantizeColor(c [4]float32, hasAlpha bool) []uint8 {
	out := []uint8{QuantizeChannel(c[0]), QuantizeChannel(c[1]), QuantizeChannel(c[2]), 255}
	if hasAlpha {
		out[3] = QuantizeChannel(c[3])
	}
	return out
}
