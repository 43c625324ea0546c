package packets

// Transform is a decomposed world transform. Rotation is xyzw.
type Transform struct {
	Position [3]float32
	Rotation [4]float32
	Scale    [3]float32
}

// IdentityTransform has no translation, no rotation and unit scale.
var IdentityTransform = Transform{
	Rotation: [4]float32{0, 0, 0, 1},
	Scale:    [3]float32{1, 1, 1},
}

func (t *Transform) encode(e *Encoder) {
	e.WriteFloats(t.Position[:]...)
	e.WriteFloats(t.Rotation[:]...)
	e.WriteFloats(t.Scale[:]...)
}

func (t *Transform) decode(d *Decoder) {
	d.ReadFloats(t.Position[:])
	d.ReadFloats(t.Rotation[:])
	d.ReadFloats(t.Scale[:])
}

// Item places an instance of a mesh in the scene.
type Item struct {
	MeshID    uint64
	ObjectID  uint64
	Name      string
	Transform Transform
}

func (*Item) Type() ClientType { return ClientItem }

func (m *Item) EncodeTo(e *Encoder, _ Version) {
	e.WriteUint64(m.MeshID)
	e.WriteUint64(m.ObjectID)
	e.WriteString(m.Name)
	m.Transform.encode(e)
}

func decodeItem(d *Decoder) *Item {
	m := &Item{
		MeshID:   d.ReadUint64(),
		ObjectID: d.ReadUint64(),
		Name:     d.ReadString(),
	}
	m.Transform.decode(d)
	return m
}

// ItemRemove destroys the instance linking an object to a mesh.
type ItemRemove struct {
	MeshID   uint64
	ObjectID uint64
}

func (*ItemRemove) Type() ClientType { return ClientItemRemove }

func (m *ItemRemove) EncodeTo(e *Encoder, _ Version) {
	e.WriteUint64(m.MeshID)
	e.WriteUint64(m.ObjectID)
}

func decodeItemRemove(d *Decoder) *ItemRemove {
	return &ItemRemove{MeshID: d.ReadUint64(), ObjectID: d.ReadUint64()}
}
