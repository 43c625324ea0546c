package network

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/dergo/internal/network/packets"
)

func sampleStream() ([]byte, []Frame) {
	frames := []Frame{
		{Type: uint8(packets.ServerConnectionTest), Payload: []byte(packets.HelloReply)},
		{Type: uint8(packets.ServerResync), Payload: []byte{}},
		{Type: uint8(packets.ServerResult), Payload: (&packets.Result{Width: 2, Height: 2, Pixels: bytes.Repeat([]byte{7}, 16)}).Encode()},
		{Type: uint8(packets.ServerResync), Payload: []byte{}},
	}
	var buf []byte
	for _, f := range frames {
		buf = append(buf, EncodeFrame(f.Type, f.Payload)...)
	}
	return buf, frames
}

func collect(t *testing.T, s *Stream, chunks [][]byte) []Frame {
	t.Helper()
	var got []Frame
	for _, c := range chunks {
		err := s.Feed(c, func(f Frame) error {
			got = append(got, Frame{Type: f.Type, Payload: append([]byte{}, f.Payload...)})
			return nil
		})
		require.NoError(t, err)
	}
	return got
}

func TestStreamChunking(t *testing.T) {
	data, want := sampleStream()

	single := collect(t, NewStream(uint8(packets.NumServerMessages)), [][]byte{data})
	require.Equal(t, want, single)

	var bytewise [][]byte
	for i := range data {
		bytewise = append(bytewise, data[i:i+1])
	}
	assert.Equal(t, want, collect(t, NewStream(uint8(packets.NumServerMessages)), bytewise))

	rng := rand.New(rand.NewSource(1))
	for run := 0; run < 50; run++ {
		var chunks [][]byte
		for rest := data; len(rest) > 0; {
			n := 1 + rng.Intn(len(rest))
			chunks = append(chunks, rest[:n])
			rest = rest[n:]
		}
		s := NewStream(uint8(packets.NumServerMessages))
		assert.Equal(t, want, collect(t, s, chunks), "run %d", run)
		assert.Zero(t, s.Buffered())
	}
}

func TestStreamPartialMessage(t *testing.T) {
	frame := EncodeFrame(uint8(packets.ServerConnectionTest), []byte(packets.HelloReply))
	s := NewStream(uint8(packets.NumServerMessages))

	calls := 0
	var payload []byte
	fn := func(f Frame) error {
		calls++
		payload = append([]byte{}, f.Payload...)
		return nil
	}

	require.NoError(t, s.Feed(frame[:len(frame)-1], fn))
	assert.Zero(t, calls)
	assert.Equal(t, len(frame)-1, s.Buffered())

	require.NoError(t, s.Feed(frame[len(frame)-1:], fn))
	assert.Equal(t, 1, calls)
	assert.Equal(t, packets.HelloReply, string(payload))
	assert.Zero(t, s.Buffered())
}

func TestStreamHeaderOnly(t *testing.T) {
	s := NewStream(uint8(packets.NumServerMessages))
	calls := 0
	fn := func(Frame) error { calls++; return nil }

	require.NoError(t, s.Feed([]byte{0, 0, 0}, fn))
	assert.Zero(t, calls)
	require.NoError(t, s.Feed([]byte{0, byte(packets.ServerResync)}, fn))
	assert.Equal(t, 1, calls)
}

func TestStreamCorrupt(t *testing.T) {
	s := NewStream(uint8(packets.NumServerMessages))
	bad := EncodeFrame(uint8(packets.NumServerMessages), nil)

	err := s.Feed(bad, func(Frame) error {
		t.Fatal("corrupt frame dispatched")
		return nil
	})
	require.ErrorIs(t, err, ErrCorruptStream)

	good := EncodeFrame(uint8(packets.ServerResync), nil)
	err = s.Feed(good, func(Frame) error {
		t.Fatal("latched stream dispatched")
		return nil
	})
	assert.ErrorIs(t, err, ErrCorruptStream)

	s.Reset()
	assert.NoError(t, s.Feed(good, func(Frame) error { return nil }))
}

func TestStreamHandlerError(t *testing.T) {
	data, _ := sampleStream()
	s := NewStream(uint8(packets.NumServerMessages))
	stop := errors.New("stop")

	calls := 0
	err := s.Feed(data, func(Frame) error {
		calls++
		if calls == 2 {
			return stop
		}
		return nil
	})
	require.ErrorIs(t, err, stop)

	// The remaining frames are still delivered on the next feed.
	var rest []Frame
	require.NoError(t, s.Feed(nil, func(f Frame) error {
		rest = append(rest, f)
		return nil
	}))
	assert.Len(t, rest, 2)
}

func TestEncodeFrameEmpty(t *testing.T) {
	frame := EncodeFrame(uint8(packets.ClientReset), nil)
	assert.Equal(t, []byte{0, 0, 0, 0, byte(packets.ClientReset)}, frame)
}
