package packets

import (
	"encoding/binary"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/dergo/pkg/mesh"
)

func TestMessageTypeCodes(t *testing.T) {
	assert.Equal(t, ClientType(0), ClientConnectionTest)
	assert.Equal(t, ClientType(4), ClientMesh)
	assert.Equal(t, ClientType(13), ClientReset)
	assert.Equal(t, ClientType(14), ClientRender)
	assert.Equal(t, 17, int(NumClientMessages))
	assert.Equal(t, 3, int(NumServerMessages))
	assert.Equal(t, ServerType(2), ServerResult)

	assert.Equal(t, "MaterialTexture", ClientMaterialTexture.String())
	assert.Equal(t, "ClientType(99)", ClientType(99).String())
	assert.Equal(t, "Resync", ServerResync.String())
}

func TestItemLayout(t *testing.T) {
	item := &Item{
		MeshID:   3,
		ObjectID: 1<<63 | 5,
		Name:     "Cube",
		Transform: Transform{
			Position: [3]float32{1, 2, 3},
			Rotation: [4]float32{0, 0, 0, 1},
			Scale:    [3]float32{1, 1, 1},
		},
	}

	data := Marshal(item, LatestVersion)
	require.Len(t, data, 8+8+4+4+10*4)

	assert.Equal(t, uint64(3), binary.LittleEndian.Uint64(data[0:]))
	assert.Equal(t, uint64(1<<63|5), binary.LittleEndian.Uint64(data[8:]))
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(data[16:]))
	assert.Equal(t, "Cube", string(data[20:24]))
	assert.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(data[24:])))
	// rotation w is the 7th float
	assert.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(data[24+6*4:])))
}

func TestRoundTrip(t *testing.T) {
	samplers := make([]Sampler, NumTextureSlots(V2))
	for i := range samplers {
		samplers[i] = Sampler{Filter: FilterTrilinear, UVSet: uint8(i % 2)}
	}
	samplers[SlotNormal] = Sampler{
		Filter:      FilterAnisotropic,
		AddressU:    AddressBorder,
		AddressV:    AddressClamp,
		UVSet:       1,
		BorderColor: [4]float32{0.1, 0.2, 0.3, 1},
	}

	tests := []struct {
		name    string
		msg     Message
		version Version
	}{
		{"item", &Item{MeshID: 2, ObjectID: 9, Name: "Suzanne", Transform: Transform{
			Position: [3]float32{1, -2, 3},
			Rotation: [4]float32{0.5, 0.5, 0.5, 0.5},
			Scale:    [3]float32{2, 2, 2},
		}}, V2},
		{"item remove", &ItemRemove{MeshID: 1<<63 | 4, ObjectID: 4}, V2},
		{"point light", &Light{
			ID: 7, Name: "Lamp", LightType: LightPoint, CastShadows: true,
			Color: [3]float32{1, 0.9, 0.8}, Energy: 3.14, Position: [3]float32{4, 1, 5.9},
			Rotation: [4]float32{0, 0, 0, 1}, Radius: 0.1, RadiusThreshold: 0.00392,
		}, V2},
		{"spot light", &Light{
			ID: 8, Name: "Spot", LightType: LightSpot, UseNegative: true,
			Rotation: [4]float32{0, 0, 0, 1}, Spot: Spot{Size: 0.78, Blend: 0.15, Falloff: 1},
		}, V2},
		{"light remove", &LightRemove{LightID: 12}, V2},
		{"metallic material", &Material{
			ID: 3, Name: "Gold", BRDF: BRDFCookTorrance, Workflow: WorkflowMetallic,
			CullMode: CullClockwise, CullModeShadow: CullAnticlockwise, TwoSided: true,
			Transparency: TransparencyFade, Alpha: 0.5, AlphaFromTexture: true,
			AlphaTest: CompareGreater, AlphaThreshold: 0.5,
			Diffuse: [3]float32{1, 0.8, 0.2}, Specular: [3]float32{1, 1, 1},
			Roughness: 0.3, NormalStrength: 1, Metallic: 1,
			Samplers: samplers,
			Details: [NumDetailMaps]DetailMap{
				{BlendMode: 1, Weight: 0.5, Offset: [2]float32{0.1, 0.2}, Scale: [2]float32{2, 2}},
			},
			DetailNormals: [NumDetailMaps]DetailNormal{
				{}, {Weight: 1, Scale: [2]float32{1, 1}},
			},
		}, V2},
		{"fresnel material v1", &Material{
			ID: 4, Name: "Glass", Workflow: WorkflowSpecular,
			AlphaTest: CompareAlwaysPass, FresnelMode: FresnelColor,
			Fresnel: [3]float32{0.818, 0.818, 0.818}, Roughness: 1, NormalStrength: 1,
			Samplers: samplers[:NumTextureSlots(V1)],
		}, V1},
		{"material texture", &MaterialTexture{MaterialID: 3, Slot: SlotDetailNormal2, TextureID: 11, MapType: MapNormal}, V2},
		{"texture", &Texture{ID: 11, MapType: MapColor, Path: "//textures/brick.png"}, V2},
		{"render", &Render{
			AskForResult: true, ViewID: 0xdeadbeefcafe, Width: 640, Height: 480,
			Lens: 35, ClipNear: 0.1, ClipFar: 100,
			Position: [3]float32{7, -6, 5}, Up: [3]float32{0, 0, 1},
			Right: [3]float32{1, 0, 0}, Forward: [3]float32{0, 1, 0}, Perspective: true,
		}, V2},
		{"world params", &DefaultWorldParams, V2},
		{"instant radiosity", &DefaultInstantRadiosity, V2},
		{"reset", &Reset{}, V2},
		{"init", &Init{}, V2},
		{"connection test", &ConnectionTest{Text: HelloRequest}, V2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := Marshal(tt.msg, tt.version)
			got, err := Unmarshal(tt.msg.Type(), data, tt.version)
			require.NoError(t, err)
			assert.Equal(t, tt.msg, got)
		})
	}
}

func quad() *mesh.Mesh {
	n := [3]float32{0, 0, 1}
	return &mesh.Mesh{
		Vertices: []mesh.Vertex{
			{Position: [3]float32{0, 0, 0}, Normal: n},
			{Position: [3]float32{1, 0, 0}, Normal: n},
			{Position: [3]float32{1, 1, 0}, Normal: n},
			{Position: [3]float32{0, 1, 0}, Normal: n},
		},
		Polygons: []mesh.Polygon{
			{Vertices: []uint32{0, 1, 2, 3}, Normal: n, Smooth: true, Material: 1},
		},
		Colors: &mesh.ColorLayer{Faces: [][4][4]float32{{{1, 0, 0, 1}, {0, 1, 0, 1}, {0, 0, 1, 1}, {1, 1, 1, 1}}}},
		UVs: []mesh.UVLayer{
			{Name: "UVMap", Faces: [][4][2]float32{{{0, 0}, {1, 0}, {1, 1}, {0, 1}}}},
		},
	}
}

func TestMeshRoundTrip(t *testing.T) {
	msg := NewMesh(1<<63|42, "Plane", quad(), []int32{0, 5}, 0)

	data := Marshal(msg, V2)
	header := 8 + 4 + len("Plane") + 4 + 4 + 1 + 1 + 1
	wantLen := header + faceRecordSize + 4*3*4 + 4*2*4 + 4*rawVertexSize + 2 + 2*4
	require.Len(t, data, wantLen)

	// triangleCount counts face records
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(data[8+4+5:]))
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(data[8+4+5+4:]))
	assert.Equal(t, byte(NoTangentUV), Marshal(NewMesh(1, "", quad(), nil, NoTangentUV), V2)[8+4+4+4+2])

	got, err := Unmarshal(ClientMesh, data, V2)
	require.NoError(t, err)
	assert.Equal(t, msg, got)

	// The receiver can rebuild the same flat stream from the indexed form.
	rebuilt := mesh.FromFaces(&got.(*Mesh).Geometry)
	want, _ := mesh.Deindex(quad())
	have, _ := mesh.Deindex(rebuilt)
	require.Len(t, have, len(want))
	for i := range want {
		assert.True(t, mesh.Equal(&want[i], &have[i]), "vertex %d", i)
	}
}

func TestMeshSlotLimit(t *testing.T) {
	msg := NewMesh(1, "Many", quad(), make([]int32, MaxMeshSlots+10), NoTangentUV)
	require.Len(t, msg.Materials, MaxMeshSlots)

	data := Marshal(msg, V2)
	table := data[len(data)-2-4*MaxMeshSlots:]
	assert.Equal(t, uint16(MaxMeshSlots), binary.LittleEndian.Uint16(table))

	got, err := Unmarshal(ClientMesh, data, V2)
	require.NoError(t, err)
	assert.Len(t, got.(*Mesh).Materials, MaxMeshSlots)
}

func TestMeshFlatRoundTrip(t *testing.T) {
	msg := NewMeshFlat(9, "Plane", quad())
	require.Len(t, msg.Vertices, 6)
	require.Equal(t, []uint16{1, 1}, msg.Materials)

	data := Marshal(msg, V1)
	stride := msg.Format.Stride()
	assert.Len(t, data, 8+4+5+4+1+1+6*stride+2*2)

	got, err := Unmarshal(ClientMesh, data, V1)
	require.NoError(t, err)
	flat := got.(*MeshFlat)
	assert.Equal(t, msg.ID, flat.ID)
	assert.Equal(t, msg.Name, flat.Name)
	assert.Equal(t, msg.Format, flat.Format)
	assert.Equal(t, msg.Materials, flat.Materials)
	require.Len(t, flat.Vertices, len(msg.Vertices))
	for i := range msg.Vertices {
		assert.True(t, mesh.Equal(&msg.Vertices[i], &flat.Vertices[i]), "vertex %d", i)
	}
}

func TestMaterialConditionalFields(t *testing.T) {
	base := Material{ID: 1, Workflow: WorkflowMetallic, AlphaTest: CompareAlwaysPass}
	baseLen := len(Marshal(&base, V2))

	transparent := base
	transparent.Transparency = TransparencyTransparent
	assert.Equal(t, baseLen+5, len(Marshal(&transparent, V2)), "alpha + alphaFromTexture")

	tested := base
	tested.AlphaTest = CompareLess
	assert.Equal(t, baseLen+4, len(Marshal(&tested, V2)), "alpha threshold")

	failing := base
	failing.AlphaTest = CompareAlwaysFail
	assert.Equal(t, baseLen, len(Marshal(&failing, V2)))

	fresnel := base
	fresnel.Workflow = WorkflowSpecular
	assert.Equal(t, baseLen-4+1+12, len(Marshal(&fresnel, V2)), "fresnel mode + 3 floats replace metallic")

	assert.Equal(t, baseLen-2, len(Marshal(&base, V1)), "one slot record fewer")

	border := base
	border.Samplers = []Sampler{{AddressV: AddressBorder}}
	assert.Equal(t, baseLen+16, len(Marshal(&border, V2)), "border color")
}

func TestSamplerPacking(t *testing.T) {
	s := Sampler{Filter: FilterAnisotropic, AddressU: AddressMirror, AddressV: AddressBorder}
	assert.Equal(t, uint8(0xc7), s.packed())

	back := unpackSampler(s.packed())
	assert.Equal(t, s.Filter, back.Filter)
	assert.Equal(t, s.AddressU, back.AddressU)
	assert.Equal(t, s.AddressV, back.AddressV)
}

func TestUnmarshalErrors(t *testing.T) {
	_, err := Unmarshal(NumClientMessages, nil, V2)
	assert.ErrorIs(t, err, ErrUnknownMessage)

	data := Marshal(&Item{Name: "Cube"}, V2)
	_, err = Unmarshal(ClientItem, data[:len(data)-1], V2)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = Unmarshal(ClientLightRemove, append(Marshal(&LightRemove{LightID: 1}, V2), 0), V2)
	assert.Error(t, err)

	e := NewEncoder()
	e.WriteUint64(1)
	e.WriteUint8(uint8(MapColor))
	e.WriteUint32(MaxStringLen + 1)
	_, err = Unmarshal(ClientTexture, e.Bytes(), V2)
	assert.ErrorIs(t, err, ErrStringTooLong)
}

func TestDecodeMeshHugeCount(t *testing.T) {
	e := NewEncoder()
	e.WriteUint64(1)
	e.WriteString("x")
	e.WriteUint32(math.MaxUint32)
	_, err := Unmarshal(ClientMesh, e.Bytes(), V2)
	require.Error(t, err)
}

func TestResult(t *testing.T) {
	r := &Result{Width: 2, Height: 1, Pixels: []byte{255, 0, 0, 255, 0, 255, 0, 128}}
	data := r.Encode()
	require.Len(t, data, 4+8)

	got, err := DecodeResult(data)
	require.NoError(t, err)
	assert.Equal(t, r, got)

	img := got.Image()
	assert.Equal(t, 2, img.Bounds().Dx())
	c := img.RGBAAt(1, 0)
	assert.Equal(t, uint8(255), c.G)
	assert.Equal(t, uint8(128), c.A)

	_, err = DecodeResult(data[:len(data)-1])
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
