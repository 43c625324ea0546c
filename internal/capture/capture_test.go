package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/dergo/internal/network"
	"github.com/Faultbox/dergo/internal/network/packets"
)

func record(t *testing.T, v packets.Version, msgs ...packets.Message) []byte {
	t.Helper()
	var buf bytes.Buffer
	rec, err := NewRecorder(&buf, v)
	require.NoError(t, err)
	for _, m := range msgs {
		require.NoError(t, rec.Record(m.Type(), packets.Marshal(m, v)))
	}
	require.NoError(t, rec.Close())
	return buf.Bytes()
}

func TestHeader(t *testing.T) {
	data := record(t, packets.V2)
	assert.Equal(t, []byte{'D', 'R', 'G', 'C', 2}, data)
}

func TestRoundTrip(t *testing.T) {
	msgs := []packets.Message{
		&packets.Reset{},
		&packets.Item{MeshID: 1, ObjectID: 2, Name: "Cube", Transform: packets.IdentityTransform},
		&packets.LightRemove{LightID: 3},
	}
	data := record(t, packets.V2, msgs...)

	var got []packets.Message
	v, err := Read(context.Background(), bytes.NewReader(data), func(v packets.Version, e Entry) error {
		assert.Equal(t, len(got), e.Index)
		m, err := e.Decode(v)
		if err != nil {
			return err
		}
		got = append(got, m)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, packets.V2, v)
	assert.Equal(t, msgs, got)
}

func TestReadOneByteAtATime(t *testing.T) {
	data := record(t, packets.V1,
		&packets.ItemRemove{MeshID: 4, ObjectID: 5},
		&packets.Init{},
	)

	var types []packets.ClientType
	_, err := Read(context.Background(), iotest.OneByteReader(bytes.NewReader(data)), func(_ packets.Version, e Entry) error {
		types = append(types, e.Type)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []packets.ClientType{packets.ClientItemRemove, packets.ClientInit}, types)
}

func TestReadTruncated(t *testing.T) {
	data := record(t, packets.V2, &packets.LightRemove{LightID: 3})
	_, err := Read(context.Background(), bytes.NewReader(data[:len(data)-1]), func(packets.Version, Entry) error {
		t.Fatal("partial frame dispatched")
		return nil
	})
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadBadHeader(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"magic", []byte("NOPE\x02")},
		{"version", []byte("DRGC\x07")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(context.Background(), bytes.NewReader(tt.data), func(packets.Version, Entry) error { return nil })
			assert.ErrorIs(t, err, ErrBadHeader)
		})
	}
}

func TestReadCorruptType(t *testing.T) {
	data := append([]byte("DRGC\x02"), 0, 0, 0, 0, byte(packets.NumClientMessages))
	_, err := Read(context.Background(), bytes.NewReader(data), func(packets.Version, Entry) error { return nil })
	assert.ErrorIs(t, err, network.ErrCorruptStream)
}

func TestReadStopsOnCallbackError(t *testing.T) {
	data := record(t, packets.V2, &packets.Reset{}, &packets.Reset{})
	stop := errors.New("stop")
	calls := 0
	_, err := Read(context.Background(), bytes.NewReader(data), func(packets.Version, Entry) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestCreateAndReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.dergo")
	rec, err := Create(path, packets.V2)
	require.NoError(t, err)
	require.NoError(t, rec.Record(packets.ClientReset, nil))
	assert.Equal(t, 1, rec.Frames())
	require.NoError(t, rec.Close())

	n := 0
	v, err := ReadFile(context.Background(), path, func(_ packets.Version, e Entry) error {
		assert.Equal(t, packets.ClientReset, e.Type)
		assert.Empty(t, e.Payload)
		n++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, packets.V2, v)
	assert.Equal(t, 1, n)
}

func TestReplay(t *testing.T) {
	data := record(t, packets.V2, &packets.Reset{}, &packets.LightRemove{LightID: 9})

	var sent []packets.ClientType
	n, err := Replay(context.Background(), bytes.NewReader(data), func(typ packets.ClientType, _ []byte) error {
		sent = append(sent, typ)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []packets.ClientType{packets.ClientReset, packets.ClientLightRemove}, sent)
}

func TestSink(t *testing.T) {
	var buf bytes.Buffer
	rec, err := NewRecorder(&buf, packets.V2)
	require.NoError(t, err)
	sink := NewSink(rec)

	require.NoError(t, sink.Connect(context.Background(), "ignored"))
	require.NoError(t, sink.Send(packets.ClientReset, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, sink.Receive(ctx, nil), context.DeadlineExceeded)

	require.NoError(t, sink.Close())
	assert.Equal(t, []byte{'D', 'R', 'G', 'C', 2, 0, 0, 0, 0, byte(packets.ClientReset)}, buf.Bytes())
}
