package packets

// BRDF selects the renderer's shading model.
type BRDF uint32

const (
	BRDFDefault BRDF = iota
	BRDFCookTorrance
	BRDFDefaultUncorrelated
	BRDFSeparateDiffuseFresnel
	BRDFCookTorranceSeparateDiffuseFresnel
)

// Workflow selects between fresnel and metallic parametrization.
type Workflow uint8

const (
	WorkflowSpecular Workflow = iota
	WorkflowSpecularAsFresnel
	WorkflowMetallic
)

// CullMode is the face culling mode.
type CullMode uint8

const (
	CullNone CullMode = iota
	CullClockwise
	CullAnticlockwise
)

// TransparencyMode controls blending.
type TransparencyMode uint8

const (
	TransparencyNone TransparencyMode = iota
	TransparencyTransparent
	TransparencyFade
)

// CompareFunc is the alpha test comparison.
type CompareFunc uint8

const (
	CompareAlwaysFail CompareFunc = iota
	CompareAlwaysPass
	CompareLess
	CompareLessEqual
	CompareEqual
	CompareNotEqual
	CompareGreaterEqual
	CompareGreater
)

// HasThreshold reports whether the comparison reads an alpha threshold.
func (c CompareFunc) HasThreshold() bool {
	return c != CompareAlwaysFail && c != CompareAlwaysPass
}

// FresnelMode selects how Fresnel is interpreted.
type FresnelMode uint8

const (
	FresnelCoeff FresnelMode = iota
	FresnelIOR
	FresnelColor
	FresnelColorIOR
)

// Filter is a texture filtering mode (2 bits on the wire).
type Filter uint8

const (
	FilterPoint Filter = iota
	FilterBilinear
	FilterTrilinear
	FilterAnisotropic
)

// AddressMode is a texture addressing mode.
type AddressMode uint8

const (
	AddressWrap AddressMode = iota
	AddressMirror
	AddressClamp
	AddressBorder
)

// TextureSlot indexes the material's texture units.
type TextureSlot uint8

const (
	SlotDiffuse TextureSlot = iota
	SlotNormal
	SlotSpecular
	SlotRoughness
	SlotDetailWeight
	SlotDetail0
	SlotDetail1
	SlotDetail2
	SlotDetail3
	SlotDetailNormal0
	SlotDetailNormal1
	SlotDetailNormal2
	SlotDetailNormal3
	SlotReflection
	SlotEmissive
	// SlotLightmap only exists from V2 on.
	SlotLightmap

	MaxTextureSlots
)

// NumTextureSlots returns the number of slot records a Material carries.
func NumTextureSlots(v Version) int {
	if v == V1 {
		return int(MaxTextureSlots) - 1
	}
	return int(MaxTextureSlots)
}

// NumDetailMaps is the number of detail and detail-normal records.
const NumDetailMaps = 4

// Sampler describes how a texture slot is sampled.
type Sampler struct {
	Filter      Filter
	AddressU    AddressMode
	AddressV    AddressMode
	UVSet       uint8
	BorderColor [4]float32 // Sent only with AddressBorder
}

// DefaultSampler is trilinear with wrap addressing.
var DefaultSampler = Sampler{Filter: FilterTrilinear, BorderColor: [4]float32{0, 0, 0, 1}}

func (s *Sampler) hasBorder() bool {
	return s.AddressU == AddressBorder || s.AddressV == AddressBorder
}

func (s *Sampler) packed() uint8 {
	return uint8(s.Filter)<<6 | uint8(s.AddressU&0xf)<<2 | uint8(s.AddressV&3)
}

func unpackSampler(b uint8) Sampler {
	return Sampler{
		Filter:   Filter(b >> 6),
		AddressU: AddressMode(b >> 2 & 0xf),
		AddressV: AddressMode(b & 3),
	}
}

// DetailMap is a detail layer blend record.
type DetailMap struct {
	BlendMode uint8
	Weight    float32
	Offset    [2]float32
	Scale     [2]float32
}

// DetailNormal is a detail normal-map record.
type DetailNormal struct {
	Weight float32
	Offset [2]float32
	Scale  [2]float32
}

// Material carries a full PBS parameter block. Fields gated by a mode are
// only written when that mode enables them.
type Material struct {
	ID               uint32
	Name             string
	BRDF             BRDF
	Workflow         Workflow
	CullMode         CullMode
	CullModeShadow   CullMode
	TwoSided         bool
	Transparency     TransparencyMode
	Alpha            float32
	AlphaFromTexture bool
	AlphaTest        CompareFunc
	AlphaThreshold   float32
	Diffuse          [3]float32
	Specular         [3]float32
	Roughness        float32
	NormalStrength   float32
	Metallic         float32 // WorkflowMetallic only
	FresnelMode      FresnelMode
	Fresnel          [3]float32
	Samplers         []Sampler // NumTextureSlots(version) entries
	Details          [NumDetailMaps]DetailMap
	DetailNormals    [NumDetailMaps]DetailNormal
}

func (*Material) Type() ClientType { return ClientMaterial }

func (m *Material) EncodeTo(e *Encoder, v Version) {
	e.WriteUint32(m.ID)
	e.WriteString(m.Name)
	e.WriteUint32(uint32(m.BRDF))
	e.WriteUint8(uint8(m.Workflow))
	e.WriteUint8(uint8(m.CullMode))
	e.WriteUint8(uint8(m.CullModeShadow))
	e.WriteBool(m.TwoSided)

	e.WriteUint8(uint8(m.Transparency))
	if m.Transparency != TransparencyNone {
		e.WriteFloat32(m.Alpha)
		e.WriteBool(m.AlphaFromTexture)
	}
	e.WriteUint8(uint8(m.AlphaTest))
	if m.AlphaTest.HasThreshold() {
		e.WriteFloat32(m.AlphaThreshold)
	}

	e.WriteFloats(m.Diffuse[:]...)
	e.WriteFloats(m.Specular[:]...)
	e.WriteFloat32(m.Roughness)
	e.WriteFloat32(m.NormalStrength)
	if m.Workflow == WorkflowMetallic {
		e.WriteFloat32(m.Metallic)
	} else {
		e.WriteUint8(uint8(m.FresnelMode))
		e.WriteFloats(m.Fresnel[:]...)
	}

	for i := 0; i < NumTextureSlots(v); i++ {
		s := DefaultSampler
		if i < len(m.Samplers) {
			s = m.Samplers[i]
		}
		e.WriteUint8(s.packed())
		e.WriteUint8(s.UVSet)
		if s.hasBorder() {
			e.WriteFloats(s.BorderColor[:]...)
		}
	}
	for _, dm := range m.Details {
		e.WriteUint8(dm.BlendMode)
		e.WriteFloat32(dm.Weight)
		e.WriteFloats(dm.Offset[:]...)
		e.WriteFloats(dm.Scale[:]...)
	}
	for _, dn := range m.DetailNormals {
		e.WriteFloat32(dn.Weight)
		e.WriteFloats(dn.Offset[:]...)
		e.WriteFloats(dn.Scale[:]...)
	}
}

func decodeMaterial(d *Decoder, v Version) *Material {
	m := &Material{
		ID:             d.ReadUint32(),
		Name:           d.ReadString(),
		BRDF:           BRDF(d.ReadUint32()),
		Workflow:       Workflow(d.ReadUint8()),
		CullMode:       CullMode(d.ReadUint8()),
		CullModeShadow: CullMode(d.ReadUint8()),
		TwoSided:       d.ReadBool(),
	}

	m.Transparency = TransparencyMode(d.ReadUint8())
	if m.Transparency != TransparencyNone {
		m.Alpha = d.ReadFloat32()
		m.AlphaFromTexture = d.ReadBool()
	}
	m.AlphaTest = CompareFunc(d.ReadUint8())
	if m.AlphaTest.HasThreshold() {
		m.AlphaThreshold = d.ReadFloat32()
	}

	m.Diffuse = d.ReadVec3()
	m.Specular = d.ReadVec3()
	m.Roughness = d.ReadFloat32()
	m.NormalStrength = d.ReadFloat32()
	if m.Workflow == WorkflowMetallic {
		m.Metallic = d.ReadFloat32()
	} else {
		m.FresnelMode = FresnelMode(d.ReadUint8())
		m.Fresnel = d.ReadVec3()
	}

	m.Samplers = make([]Sampler, NumTextureSlots(v))
	for i := range m.Samplers {
		s := unpackSampler(d.ReadUint8())
		s.UVSet = d.ReadUint8()
		if s.hasBorder() {
			d.ReadFloats(s.BorderColor[:])
		}
		m.Samplers[i] = s
	}
	for i := range m.Details {
		dm := &m.Details[i]
		dm.BlendMode = d.ReadUint8()
		dm.Weight = d.ReadFloat32()
		d.ReadFloats(dm.Offset[:])
		d.ReadFloats(dm.Scale[:])
	}
	for i := range m.DetailNormals {
		dn := &m.DetailNormals[i]
		dn.Weight = d.ReadFloat32()
		d.ReadFloats(dn.Offset[:])
		d.ReadFloats(dn.Scale[:])
	}
	return m
}

// MapType classifies how the renderer should load a texture.
type MapType uint8

const (
	MapColor MapType = iota // sRGB color data
	MapLinear
	MapNormal
	MapEnvironment
)

// MapTypeForSlot returns the map type a texture bound to slot needs.
func MapTypeForSlot(slot TextureSlot) MapType {
	switch slot {
	case SlotNormal, SlotDetailNormal0, SlotDetailNormal1, SlotDetailNormal2, SlotDetailNormal3:
		return MapNormal
	case SlotRoughness, SlotDetailWeight:
		return MapLinear
	case SlotReflection:
		return MapEnvironment
	}
	return MapColor
}

// MaterialTexture binds a texture to a material slot.
type MaterialTexture struct {
	MaterialID uint32
	Slot       TextureSlot
	TextureID  uint64 // 0 unbinds the slot
	MapType    MapType
}

func (*MaterialTexture) Type() ClientType { return ClientMaterialTexture }

func (m *MaterialTexture) EncodeTo(e *Encoder, _ Version) {
	e.WriteUint32(m.MaterialID)
	e.WriteUint8(uint8(m.Slot))
	e.WriteUint64(m.TextureID)
	e.WriteUint8(uint8(m.MapType))
}

func decodeMaterialTexture(d *Decoder) *MaterialTexture {
	return &MaterialTexture{
		MaterialID: d.ReadUint32(),
		Slot:       TextureSlot(d.ReadUint8()),
		TextureID:  d.ReadUint64(),
		MapType:    MapType(d.ReadUint8()),
	}
}

// Texture announces an image file the renderer should load.
type Texture struct {
	ID      uint64
	MapType MapType
	Path    string
}

func (*Texture) Type() ClientType { return ClientTexture }

func (m *Texture) EncodeTo(e *Encoder, _ Version) {
	e.WriteUint64(m.ID)
	e.WriteUint8(uint8(m.MapType))
	e.WriteString(m.Path)
}

func decodeTexture(d *Decoder) *Texture {
	return &Texture{
		ID:      d.ReadUint64(),
		MapType: MapType(d.ReadUint8()),
		Path:    d.ReadString(),
	}
}
