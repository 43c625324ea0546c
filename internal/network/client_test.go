package network

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/dergo/internal/network/packets"
)

func attach(c *Client, conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attach(conn)
}

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "localhost:9995"},
		{"render-box", "render-box:9995"},
		{"127.0.0.1:7000", "127.0.0.1:7000"},
		{"::1", "[::1]:9995"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeAddress(tt.in), tt.in)
	}
}

func TestSendOrder(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	c := New(WithReceiveBuffer(64))
	attach(c, local)
	defer c.Close()

	got := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 5+10+21)
		_, _ = io.ReadFull(remote, buf)
		got <- buf
	}()

	require.NoError(t, c.Send(packets.ClientReset, nil))
	require.NoError(t, c.Send(packets.ClientConnectionTest, []byte("Hello")))
	require.NoError(t, c.Send(packets.ClientItemRemove, make([]byte, 16)))

	buf := <-got
	assert.Equal(t, []byte{0, 0, 0, 0, byte(packets.ClientReset)}, buf[:5])
	assert.Equal(t, []byte{5, 0, 0, 0, byte(packets.ClientConnectionTest), 'H', 'e', 'l', 'l', 'o'}, buf[5:15])

	sent, _, frames, _ := c.Stats()
	assert.Equal(t, uint64(len(buf)), sent)
	assert.Equal(t, uint64(3), frames)
}

func TestReceive(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	c := New(WithReceiveBuffer(4))
	attach(c, local)
	defer c.Close()

	frame := EncodeFrame(uint8(packets.ServerConnectionTest), []byte(packets.HelloReply))
	go func() { _, _ = remote.Write(frame) }()

	var payload []byte
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for payload == nil {
		err := c.Receive(ctx, func(f Frame) error {
			payload = append([]byte{}, f.Payload...)
			return nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, packets.HelloReply, string(payload))
}

func TestReceiveCorrupt(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	c := New()
	attach(c, local)
	defer c.Close()

	go func() { _, _ = remote.Write(EncodeFrame(200, nil)) }()

	err := c.Receive(context.Background(), func(Frame) error { return nil })
	assert.ErrorIs(t, err, ErrCorruptStream)
}

func TestReceiveCanceled(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	c := New()
	attach(c, local)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	err := c.Receive(ctx, func(Frame) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNotConnected(t *testing.T) {
	c := New()
	assert.ErrorIs(t, c.Send(packets.ClientReset, nil), ErrNotConnected)
	assert.ErrorIs(t, c.Receive(context.Background(), nil), ErrNotConnected)
	assert.False(t, c.IsConnected())
	assert.NoError(t, c.Close())
}

func TestConnect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	c := New(WithDialTimeout(time.Second))
	require.NoError(t, c.Connect(context.Background(), ln.Addr().String()))
	defer c.Close()
	assert.True(t, c.IsConnected())

	conn := <-accepted
	defer conn.Close()

	require.NoError(t, c.Send(packets.ClientReset, nil))
	buf := make([]byte, 5)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, byte(packets.ClientReset), buf[4])

	assert.Error(t, c.Connect(context.Background(), ln.Addr().String()), "double connect")
}

func TestConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	c := New(WithDialTimeout(time.Second))
	assert.Error(t, c.Connect(context.Background(), addr))
	assert.False(t, c.IsConnected())
}
