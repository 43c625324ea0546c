package mesh

import (
	"bytes"
	"testing"
)

func TestHashDistinguishesAttributes(t *testing.T) {
	a := ExportVertex{Position: [3]float32{1, 2, 3}, Normal: [3]float32{0, 0, 1}}
	b := a
	a.ComputeHash()
	b.ComputeHash()
	if a.Hash != b.Hash || !Equal(&a, &b) {
		t.Fatal("identical vertices must hash and compare equal")
	}

	c := a
	c.TexCoords = [][2]float32{{0.5, 0.5}}
	c.ComputeHash()
	if Equal(&a, &c) {
		t.Error("vertices with different texcoords compared equal")
	}

	d := a
	d.Color = []uint8{1, 2, 3, 255}
	d.ComputeHash()
	if d.Hash == a.Hash {
		t.Error("color did not contribute to the hash")
	}
}

func TestDedupQuad(t *testing.T) {
	vertices, _ := Deindex(quadMesh(true))

	unique, remap := Dedup(vertices)
	if len(unique) != 4 {
		t.Fatalf("unique = %d, want 4", len(unique))
	}
	want := []uint32{0, 1, 2, 0, 2, 3}
	for i, w := range want {
		if remap[i] != w {
			t.Errorf("remap[%d] = %d, want %d", i, remap[i], w)
		}
	}
}

func TestDedupKeepsSeams(t *testing.T) {
	m := quadMesh(true)
	// Vertex 0 carries a different UV in each triangle.
	m.Polygons = []Polygon{
		{Vertices: []uint32{0, 1, 2}, Smooth: true},
		{Vertices: []uint32{0, 2, 3}, Smooth: true},
	}
	m.UVs[0].Faces = [][4][2]float32{
		{{0, 0}, {1, 0}, {1, 1}},
		{{0.5, 0}, {1, 1}, {0, 1}},
	}

	vertices, _ := Deindex(m)
	unique, _ := Dedup(vertices)
	if len(unique) != 5 {
		t.Errorf("unique = %d, want 5 (seam on vertex 0)", len(unique))
	}
}

func TestPackVertices(t *testing.T) {
	tests := []struct {
		name   string
		format VertexFormat
		stride int
	}{
		{"position normal", VertexFormat{}, 24},
		{"color", VertexFormat{HasColor: true}, 28},
		{"two uv sets", VertexFormat{UVSets: 2}, 40},
		{"color and uv", VertexFormat{HasColor: true, UVSets: 1}, 36},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.format.Stride(); got != tt.stride {
				t.Fatalf("Stride() = %d, want %d", got, tt.stride)
			}

			m := quadMesh(true)
			if tt.format.HasColor {
				m.Colors = &ColorLayer{Faces: [][4][4]float32{{{1, 0, 0, 1}, {0, 1, 0, 1}, {0, 0, 1, 1}, {1, 1, 1, 1}}}}
			}
			m.UVs = nil
			for i := 0; i < tt.format.UVSets; i++ {
				m.UVs = append(m.UVs, UVLayer{Faces: [][4][2]float32{{{0, 0}, {1, 0}, {1, 1}, {0, 1}}}})
			}

			vertices, _ := Deindex(m)
			data := PackVertices(m.Format(), vertices)
			if len(data) != len(vertices)*tt.stride {
				t.Fatalf("packed = %d bytes, want %d", len(data), len(vertices)*tt.stride)
			}

			back, err := UnpackVertices(m.Format(), data)
			if err != nil {
				t.Fatalf("UnpackVertices: %v", err)
			}
			for i := range vertices {
				if !Equal(&vertices[i], &back[i]) {
					t.Errorf("vertex %d changed: %+v -> %+v", i, vertices[i], back[i])
				}
			}
		})
	}
}

func TestPackVerticesLayout(t *testing.T) {
	v := []ExportVertex{{
		Position: [3]float32{1, 0, 0},
		Color:    []uint8{10, 20, 30, 40},
	}}
	data := PackVertices(VertexFormat{HasColor: true}, v)

	// 1.0f little-endian
	if !bytes.Equal(data[0:4], []byte{0x00, 0x00, 0x80, 0x3f}) {
		t.Errorf("position.x = % x", data[0:4])
	}
	if !bytes.Equal(data[24:28], []byte{10, 20, 30, 40}) {
		t.Errorf("color = % x", data[24:28])
	}
}

func TestUnpackVerticesBadLength(t *testing.T) {
	if _, err := UnpackVertices(VertexFormat{}, make([]byte, 25)); err == nil {
		t.Error("expected error for truncated buffer")
	}
}
