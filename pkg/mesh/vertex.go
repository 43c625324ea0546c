package mesh

import (
	"encoding/binary"
	"fmt"
	"math"
)

// hashMultiplier is the polynomial base of ExportVertex.ComputeHash.
const hashMultiplier = 21737

// ExportVertex is one corner of one triangle in the flat vertex stream.
type ExportVertex struct {
	VertexIndex uint32 // Source vertex, kept for diagnostics
	FaceIndex   uint32 // Source polygon

	Position  [3]float32
	Normal    [3]float32
	Color     []uint8      // nil or RGBA
	TexCoords [][2]float32 // One per UV layer
	Hash      int64
}

func mix(h int64, v float32) int64 {
	return h*hashMultiplier + int64(math.Float32bits(v))
}

// ComputeHash refreshes Hash from position, normal, color and texcoords.
func (v *ExportVertex) ComputeHash() {
	var h int64
	for _, c := range v.Position {
		h = mix(h, c)
	}
	for _, c := range v.Normal {
		h = mix(h, c)
	}
	if len(v.Color) >= 3 {
		for _, c := range v.Color[:3] {
			h = h*hashMultiplier + int64(c)
		}
	}
	for _, uv := range v.TexCoords {
		h = mix(h, uv[0])
		h = mix(h, uv[1])
	}
	v.Hash = h
}

// Equal reports whether two vertices carry identical attributes. Hashes are
// compared first and must be current.
func Equal(a, b *ExportVertex) bool {
	if a.Hash != b.Hash || a.Position != b.Position || a.Normal != b.Normal {
		return false
	}
	if len(a.Color) != len(b.Color) || len(a.TexCoords) != len(b.TexCoords) {
		return false
	}
	for i := range a.Color {
		if a.Color[i] != b.Color[i] {
			return false
		}
	}
	for i := range a.TexCoords {
		if a.TexCoords[i] != b.TexCoords[i] {
			return false
		}
	}
	return true
}

// Dedup collapses equal vertices. remap[i] is the index in unique of the
// vertex that replaced vertices[i]; first occurrences keep their order.
func Dedup(vertices []ExportVertex) (unique []ExportVertex, remap []uint32) {
	buckets := make(map[int64][]uint32, len(vertices))
	remap = make([]uint32, len(vertices))

	for i := range vertices {
		v := &vertices[i]
		found := false
		for _, idx := range buckets[v.Hash] {
			if Equal(&unique[idx], v) {
				remap[i] = idx
				found = true
				break
			}
		}
		if found {
			continue
		}
		idx := uint32(len(unique))
		unique = append(unique, *v)
		buckets[v.Hash] = append(buckets[v.Hash], idx)
		remap[i] = idx
	}
	return unique, remap
}

// VertexFormat describes the per-vertex layout of a packed vertex buffer.
type VertexFormat struct {
	HasColor bool
	UVSets   int
}

// Stride returns the packed size of one vertex in bytes.
func (f VertexFormat) Stride() int {
	n := 6 * 4
	if f.HasColor {
		n += 4
	}
	return n + f.UVSets*8
}

// PackVertices lays vertices out as position, normal, optional RGBA bytes
// and UV pairs, little-endian. Missing colors pack as opaque white.
func PackVertices(format VertexFormat, vertices []ExportVertex) []byte {
	stride := format.Stride()
	buf := make([]byte, len(vertices)*stride)

	for i := range vertices {
		v := &vertices[i]
		b := buf[i*stride:]
		off := 0
		for _, c := range v.Position {
			binary.LittleEndian.PutUint32(b[off:], math.Float32bits(c))
			off += 4
		}
		for _, c := range v.Normal {
			binary.LittleEndian.PutUint32(b[off:], math.Float32bits(c))
			off += 4
		}
		if format.HasColor {
			if len(v.Color) == 4 {
				copy(b[off:off+4], v.Color)
			} else {
				copy(b[off:off+4], []uint8{255, 255, 255, 255})
			}
			off += 4
		}
		for s := 0; s < format.UVSets; s++ {
			var uv [2]float32
			if s < len(v.TexCoords) {
				uv = v.TexCoords[s]
			}
			binary.LittleEndian.PutUint32(b[off:], math.Float32bits(uv[0]))
			binary.LittleEndian.PutUint32(b[off+4:], math.Float32bits(uv[1]))
			off += 8
		}
	}
	return buf
}

// UnpackVertices is the inverse of PackVertices. Hashes are recomputed.
func UnpackVertices(format VertexFormat, data []byte) ([]ExportVertex, error) {
	stride := format.Stride()
	if len(data)%stride != 0 {
		return nil, fmt.Errorf("mesh: vertex buffer of %d bytes is not a multiple of stride %d", len(data), stride)
	}

	f32 := func(b []byte) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b)) }

	out := make([]ExportVertex, len(data)/stride)
	for i := range out {
		b := data[i*stride:]
		v := &out[i]
		for c := 0; c < 3; c++ {
			v.Position[c] = f32(b[c*4:])
			v.Normal[c] = f32(b[12+c*4:])
		}
		off := 24
		if format.HasColor {
			v.Color = append([]uint8(nil), b[off:off+4]...)
			off += 4
		}
		if format.UVSets > 0 {
			v.TexCoords = make([][2]float32, format.UVSets)
			for s := range v.TexCoords {
				v.TexCoords[s] = [2]float32{f32(b[off:]), f32(b[off+4:])}
				off += 8
			}
		}
		v.ComputeHash()
	}
	return out, nil
}
