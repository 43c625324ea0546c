package packets

import (
	"fmt"
	"image"
	"io"
)

// Render asks the renderer to draw a view.
type Render struct {
	AskForResult bool
	ViewID       uint64
	Width        uint16
	Height       uint16
	Lens         float32
	ClipNear     float32
	ClipFar      float32
	Position     [3]float32
	Up           [3]float32
	Right        [3]float32
	Forward      [3]float32
	Perspective  bool
}

func (*Render) Type() ClientType { return ClientRender }

func (m *Render) EncodeTo(e *Encoder, _ Version) {
	e.WriteBool(m.AskForResult)
	e.WriteUint64(m.ViewID)
	e.WriteUint16(m.Width)
	e.WriteUint16(m.Height)
	e.WriteFloats(m.Lens, m.ClipNear, m.ClipFar)
	e.WriteFloats(m.Position[:]...)
	e.WriteFloats(m.Up[:]...)
	e.WriteFloats(m.Right[:]...)
	e.WriteFloats(m.Forward[:]...)
	e.WriteBool(m.Perspective)
}

func decodeRender(d *Decoder) *Render {
	m := &Render{
		AskForResult: d.ReadBool(),
		ViewID:       d.ReadUint64(),
		Width:        d.ReadUint16(),
		Height:       d.ReadUint16(),
		Lens:         d.ReadFloat32(),
		ClipNear:     d.ReadFloat32(),
		ClipFar:      d.ReadFloat32(),
	}
	m.Position = d.ReadVec3()
	m.Up = d.ReadVec3()
	m.Right = d.ReadVec3()
	m.Forward = d.ReadVec3()
	m.Perspective = d.ReadBool()
	return m
}

// Result is a rendered RGBA frame sent back by the renderer.
type Result struct {
	Width  uint16
	Height uint16
	Pixels []byte // Width*Height*4, row-major RGBA
}

// Encode serializes the result payload.
func (r *Result) Encode() []byte {
	e := NewEncoderWithCap(4 + len(r.Pixels))
	e.WriteUint16(r.Width)
	e.WriteUint16(r.Height)
	e.WriteBytes(r.Pixels)
	return e.Bytes()
}

// DecodeResult parses a Result payload. Pixels are copied.
func DecodeResult(payload []byte) (*Result, error) {
	d := NewDecoder(payload)
	r := &Result{
		Width:  d.ReadUint16(),
		Height: d.ReadUint16(),
	}
	n := int(r.Width) * int(r.Height) * 4
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("decoding result: %w", err)
	}
	if d.Remaining() < n {
		return nil, fmt.Errorf("decoding result %dx%d: %w", r.Width, r.Height, io.ErrUnexpectedEOF)
	}
	r.Pixels = append([]byte(nil), d.ReadBytes(n)...)
	return r, nil
}

// Image wraps the pixels in an image.RGBA without copying.
func (r *Result) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    r.Pixels,
		Stride: int(r.Width) * 4,
		Rect:   image.Rect(0, 0, int(r.Width), int(r.Height)),
	}
}
