package packets

// WorldParams carries ambient lighting and exposure settings.
type WorldParams struct {
	SkyColor        [3]float32
	SkyPower        float32
	UpperHemisphere [3]float32
	UpperPower      float32
	LowerHemisphere [3]float32
	LowerPower      float32
	HemisphereDir   [3]float32
	Exposure        float32
	MinAutoExposure float32
	MaxAutoExposure float32
	BloomThreshold  float32
	EnvmapScale     float32
}

// DefaultWorldParams matches the renderer's startup state.
var DefaultWorldParams = WorldParams{
	SkyColor:        [3]float32{0.2, 0.4, 0.6},
	SkyPower:        60,
	UpperHemisphere: [3]float32{0.3, 0.50, 0.7},
	UpperPower:      4.5,
	LowerHemisphere: [3]float32{0.6, 0.45, 0.3},
	LowerPower:      2.925,
	HemisphereDir:   [3]float32{0, 0, 1},
	Exposure:        0,
	MinAutoExposure: -1,
	MaxAutoExposure: 2.5,
	BloomThreshold:  5,
	EnvmapScale:     16,
}

func (*WorldParams) Type() ClientType { return ClientWorldParams }

func (m *WorldParams) EncodeTo(e *Encoder, _ Version) {
	e.WriteFloats(m.SkyColor[:]...)
	e.WriteFloat32(m.SkyPower)
	e.WriteFloats(m.UpperHemisphere[:]...)
	e.WriteFloat32(m.UpperPower)
	e.WriteFloats(m.LowerHemisphere[:]...)
	e.WriteFloat32(m.LowerPower)
	e.WriteFloats(m.HemisphereDir[:]...)
	e.WriteFloats(m.Exposure, m.MinAutoExposure, m.MaxAutoExposure, m.BloomThreshold, m.EnvmapScale)
}

func decodeWorldParams(d *Decoder) *WorldParams {
	m := &WorldParams{}
	m.SkyColor = d.ReadVec3()
	m.SkyPower = d.ReadFloat32()
	m.UpperHemisphere = d.ReadVec3()
	m.UpperPower = d.ReadFloat32()
	m.LowerHemisphere = d.ReadVec3()
	m.LowerPower = d.ReadFloat32()
	m.HemisphereDir = d.ReadVec3()
	m.Exposure = d.ReadFloat32()
	m.MinAutoExposure = d.ReadFloat32()
	m.MaxAutoExposure = d.ReadFloat32()
	m.BloomThreshold = d.ReadFloat32()
	m.EnvmapScale = d.ReadFloat32()
	return m
}

// InstantRadiosity configures the renderer's VPL based global illumination.
type InstantRadiosity struct {
	Enabled                 bool
	NumRays                 uint16
	NumRayBounces           uint8
	SurvivingRayFraction    float32
	CellSize                float32
	NumSpreadIterations     uint8
	SpreadThreshold         float32
	Bias                    float32
	VPLMaxRange             float32
	VPLAttenuation          [3]float32 // Constant, linear, quadratic
	VPLThreshold            float32
	VPLPowerBoost           float32
	VPLUseIntensityForRange bool
	VPLIntensityRangeMult   float32
	DebugVPL                bool
	UseIrradianceVolumes    bool
	IrradianceCellSize      [3]float32
}

// DefaultInstantRadiosity is disabled with the renderer's default tuning.
var DefaultInstantRadiosity = InstantRadiosity{
	NumRays:                 128,
	NumRayBounces:           1,
	SurvivingRayFraction:    0.5,
	CellSize:                3,
	NumSpreadIterations:     1,
	SpreadThreshold:         0.0004,
	Bias:                    0.982,
	VPLMaxRange:             8,
	VPLAttenuation:          [3]float32{0.5, 0.5, 0},
	VPLThreshold:            0.0005,
	VPLPowerBoost:           1.4,
	VPLUseIntensityForRange: true,
	VPLIntensityRangeMult:   100,
	IrradianceCellSize:      [3]float32{1.5, 1.5, 1.5},
}

func (*InstantRadiosity) Type() ClientType { return ClientInstantRadiosity }

func (m *InstantRadiosity) EncodeTo(e *Encoder, _ Version) {
	e.WriteBool(m.Enabled)
	e.WriteUint16(m.NumRays)
	e.WriteUint8(m.NumRayBounces)
	e.WriteFloats(m.SurvivingRayFraction, m.CellSize)
	e.WriteUint8(m.NumSpreadIterations)
	e.WriteFloats(m.SpreadThreshold, m.Bias, m.VPLMaxRange)
	e.WriteFloats(m.VPLAttenuation[:]...)
	e.WriteFloats(m.VPLThreshold, m.VPLPowerBoost)
	e.WriteBool(m.VPLUseIntensityForRange)
	e.WriteFloat32(m.VPLIntensityRangeMult)
	e.WriteBool(m.DebugVPL)
	e.WriteBool(m.UseIrradianceVolumes)
	e.WriteFloats(m.IrradianceCellSize[:]...)
}

func decodeInstantRadiosity(d *Decoder) *InstantRadiosity {
	m := &InstantRadiosity{
		Enabled:              d.ReadBool(),
		NumRays:              d.ReadUint16(),
		NumRayBounces:        d.ReadUint8(),
		SurvivingRayFraction: d.ReadFloat32(),
		CellSize:             d.ReadFloat32(),
		NumSpreadIterations:  d.ReadUint8(),
		SpreadThreshold:      d.ReadFloat32(),
		Bias:                 d.ReadFloat32(),
		VPLMaxRange:          d.ReadFloat32(),
	}
	m.VPLAttenuation = d.ReadVec3()
	m.VPLThreshold = d.ReadFloat32()
	m.VPLPowerBoost = d.ReadFloat32()
	m.VPLUseIntensityForRange = d.ReadBool()
	m.VPLIntensityRangeMult = d.ReadFloat32()
	m.DebugVPL = d.ReadBool()
	m.UseIrradianceVolumes = d.ReadBool()
	m.IrradianceCellSize = d.ReadVec3()
	return m
}
