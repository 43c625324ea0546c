package network

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Faultbox/dergo/internal/network/packets"
)

// ErrCorruptStream is returned once a frame with an out of range type has
// been seen. The stream cannot be trusted after that.
var ErrCorruptStream = errors.New("network: corrupt stream")

// Frame is one framed message.
type Frame struct {
	Type    uint8
	Payload []byte
}

// FrameHandler receives dispatched frames. The payload aliases the stream
// buffer and is only valid until the handler returns.
type FrameHandler func(Frame) error

// Stream reassembles frames from arbitrarily chunked input.
type Stream struct {
	buf   []byte
	limit uint8
	err   error
}

// NewStream creates a stream accepting frame types below limit.
func NewStream(limit uint8) *Stream {
	return &Stream{limit: limit}
}

// Buffered returns the number of bytes waiting for a complete frame.
func (s *Stream) Buffered() int { return len(s.buf) }

// Err returns the error that latched the stream, if any.
func (s *Stream) Err() error { return s.err }

// Feed appends chunk and dispatches every complete frame in order.
// Incomplete frames stay buffered. A handler error stops dispatching and
// is returned; frames already handled are consumed.
func (s *Stream) Feed(chunk []byte, fn FrameHandler) error {
	if s.err != nil {
		return s.err
	}
	s.buf = append(s.buf, chunk...)

	off := 0
	var err error
	for len(s.buf)-off >= packets.HeaderSize {
		size := binary.LittleEndian.Uint32(s.buf[off:])
		typ := s.buf[off+4]
		if uint64(size) > uint64(len(s.buf)-off-packets.HeaderSize) {
			break
		}
		if typ >= s.limit {
			s.err = fmt.Errorf("%w: message type %d (limit %d)", ErrCorruptStream, typ, s.limit)
			s.buf = nil
			return s.err
		}

		start := off + packets.HeaderSize
		end := start + int(size)
		off = end
		if err = fn(Frame{Type: typ, Payload: s.buf[start:end:end]}); err != nil {
			break
		}
	}

	if off > 0 {
		n := copy(s.buf, s.buf[off:])
		s.buf = s.buf[:n]
	}
	return err
}

// Reset drops buffered bytes and clears a latched error.
func (s *Stream) Reset() {
	s.buf = s.buf[:0]
	s.err = nil
}

// EncodeFrame prefixes payload with its header. A nil payload yields the
// bare 5-byte header.
func EncodeFrame(typ uint8, payload []byte) []byte {
	buf := make([]byte, packets.HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf, uint32(len(payload)))
	buf[4] = typ
	copy(buf[packets.HeaderSize:], payload)
	return buf
}
