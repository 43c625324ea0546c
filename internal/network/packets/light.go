package packets

import "fmt"

// LightType is the renderer's light kind.
type LightType uint8

const (
	LightSun LightType = iota
	LightPoint
	LightSpot
)

func (t LightType) String() string {
	switch t {
	case LightSun:
		return "sun"
	case LightPoint:
		return "point"
	case LightSpot:
		return "spot"
	}
	return fmt.Sprintf("LightType(%d)", uint8(t))
}

// Spot holds the cone parameters sent only for spot lights.
type Spot struct {
	Size    float32 // Cone angle in radians
	Blend   float32
	Falloff float32
}

// Light creates or replaces a light.
type Light struct {
	ID              uint64
	Name            string
	LightType       LightType
	CastShadows     bool
	UseNegative     bool
	Color           [3]float32
	Energy          float32
	Position        [3]float32
	Rotation        [4]float32 // xyzw
	Radius          float32
	RadiusThreshold float32
	Spot            Spot
}

func (*Light) Type() ClientType { return ClientLight }

func (m *Light) EncodeTo(e *Encoder, _ Version) {
	e.WriteUint64(m.ID)
	e.WriteString(m.Name)
	e.WriteUint8(uint8(m.LightType))
	e.WriteBool(m.CastShadows)
	e.WriteBool(m.UseNegative)
	e.WriteFloats(m.Color[:]...)
	e.WriteFloat32(m.Energy)
	e.WriteFloats(m.Position[:]...)
	e.WriteFloats(m.Rotation[:]...)
	e.WriteFloat32(m.Radius)
	e.WriteFloat32(m.RadiusThreshold)
	if m.LightType == LightSpot {
		e.WriteFloats(m.Spot.Size, m.Spot.Blend, m.Spot.Falloff)
	}
}

func decodeLight(d *Decoder) *Light {
	m := &Light{
		ID:          d.ReadUint64(),
		Name:        d.ReadString(),
		LightType:   LightType(d.ReadUint8()),
		CastShadows: d.ReadBool(),
		UseNegative: d.ReadBool(),
	}
	m.Color = d.ReadVec3()
	m.Energy = d.ReadFloat32()
	m.Position = d.ReadVec3()
	d.ReadFloats(m.Rotation[:])
	m.Radius = d.ReadFloat32()
	m.RadiusThreshold = d.ReadFloat32()
	if m.LightType == LightSpot {
		m.Spot = Spot{Size: d.ReadFloat32(), Blend: d.ReadFloat32(), Falloff: d.ReadFloat32()}
	}
	return m
}

// LightRemove destroys a light.
type LightRemove struct {
	LightID uint64
}

func (*LightRemove) Type() ClientType { return ClientLightRemove }

func (m *LightRemove) EncodeTo(e *Encoder, _ Version) { e.WriteUint64(m.LightID) }
