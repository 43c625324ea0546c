package packets

import (
	"encoding/binary"
	"io"
	"math"
)

// Allocation limits applied while decoding length prefixes.
const (
	// MaxStringLen caps a single length-prefixed string.
	MaxStringLen = 1 << 20

	// MaxCollectionCount caps element counts read from the wire.
	MaxCollectionCount = 1 << 26
)

// Encoder appends little-endian fields to an internal buffer.
type Encoder struct {
	buf []byte
}

// NewEncoder creates an encoder with a default initial capacity.
func NewEncoder() *Encoder {
	return &Encoder{buf: make([]byte, 0, 256)}
}

// NewEncoderWithCap creates an encoder with the given initial capacity.
func NewEncoderWithCap(n int) *Encoder {
	return &Encoder{buf: make([]byte, 0, n)}
}

// Reset empties the encoder, reusing the buffer.
func (e *Encoder) Reset() { e.buf = e.buf[:0] }

// Bytes returns the encoded bytes. The slice is valid until the next write.
func (e *Encoder) Bytes() []byte { return e.buf }

// Len returns the number of encoded bytes.
func (e *Encoder) Len() int { return len(e.buf) }

// WriteUint8 appends a single byte.
func (e *Encoder) WriteUint8(b uint8) { e.buf = append(e.buf, b) }

// WriteBytes appends raw bytes.
func (e *Encoder) WriteBytes(b []byte) { e.buf = append(e.buf, b...) }

// WriteBool appends a bool as 0 or 1.
func (e *Encoder) WriteBool(b bool) {
	if b {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
}

func (e *Encoder) WriteUint16(v uint16) { e.buf = binary.LittleEndian.AppendUint16(e.buf, v) }
func (e *Encoder) WriteUint32(v uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }
func (e *Encoder) WriteUint64(v uint64) { e.buf = binary.LittleEndian.AppendUint64(e.buf, v) }
func (e *Encoder) WriteInt32(v int32)   { e.WriteUint32(uint32(v)) }
func (e *Encoder) WriteInt64(v int64)   { e.WriteUint64(uint64(v)) }

// WriteFloat32 appends an IEEE 754 float.
func (e *Encoder) WriteFloat32(v float32) { e.WriteUint32(math.Float32bits(v)) }

// WriteFloats appends each value as a float32.
func (e *Encoder) WriteFloats(v ...float32) {
	for _, f := range v {
		e.WriteFloat32(f)
	}
}

// WriteString appends a uint32 byte length followed by the UTF-8 bytes.
func (e *Encoder) WriteString(s string) {
	e.WriteUint32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

// Decoder reads little-endian fields from a byte slice.
//
// The first failure is latched: later reads return zero values and Err
// reports the original error.
type Decoder struct {
	buf []byte
	pos int
	err error
}

// NewDecoder creates a decoder over buf.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Err returns the first decoding error.
func (d *Decoder) Err() error { return d.err }

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.buf) - d.pos }

// Position returns the current read offset.
func (d *Decoder) Position() int { return d.pos }

func (d *Decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.pos+n > len(d.buf) {
		d.fail(io.ErrUnexpectedEOF)
		return nil
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b
}

// Skip advances past n bytes.
func (d *Decoder) Skip(n int) { d.take(n) }

// ReadBytes returns the next n bytes. The slice aliases the input.
func (d *Decoder) ReadBytes(n int) []byte { return d.take(n) }

// ReadUint8 reads one byte.
func (d *Decoder) ReadUint8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// ReadBool reads a byte; any non-zero value is true.
func (d *Decoder) ReadBool() bool { return d.ReadUint8() != 0 }

func (d *Decoder) ReadUint16() uint16 {
	b := d.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (d *Decoder) ReadUint32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *Decoder) ReadUint64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (d *Decoder) ReadInt32() int32 { return int32(d.ReadUint32()) }
func (d *Decoder) ReadInt64() int64 { return int64(d.ReadUint64()) }

// ReadFloat32 reads an IEEE 754 float.
func (d *Decoder) ReadFloat32() float32 { return math.Float32frombits(d.ReadUint32()) }

// ReadFloats fills dst with consecutive float32 values.
func (d *Decoder) ReadFloats(dst []float32) {
	for i := range dst {
		dst[i] = d.ReadFloat32()
	}
}

// ReadVec3 reads three floats.
func (d *Decoder) ReadVec3() [3]float32 {
	var v [3]float32
	d.ReadFloats(v[:])
	return v
}

// ReadString reads a uint32 length-prefixed string.
func (d *Decoder) ReadString() string {
	n := d.ReadUint32()
	if d.err != nil {
		return ""
	}
	if n > MaxStringLen {
		d.fail(ErrStringTooLong)
		return ""
	}
	return string(d.take(int(n)))
}

// ReadCount reads a count field of the given byte width and checks that
// count*elemSize bytes remain.
func (d *Decoder) ReadCount(width, elemSize int) int {
	var n uint64
	switch width {
	case 1:
		n = uint64(d.ReadUint8())
	case 2:
		n = uint64(d.ReadUint16())
	default:
		n = uint64(d.ReadUint32())
	}
	if d.err != nil {
		return 0
	}
	return d.checkCount(n, elemSize)
}

func (d *Decoder) checkCount(n uint64, elemSize int) int {
	if d.err != nil {
		return 0
	}
	if n > MaxCollectionCount {
		d.fail(ErrTooManyItems)
		return 0
	}
	if elemSize > 0 && n*uint64(elemSize) > uint64(d.Remaining()) {
		d.fail(io.ErrUnexpectedEOF)
		return 0
	}
	return int(n)
}
