// Package network handles the connection to the renderer.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/dergo/internal/network/packets"
)

// ErrNotConnected is returned by operations on a closed client.
var ErrNotConnected = errors.New("network: not connected")

// Defaults for New.
const (
	DefaultDialTimeout   = 5 * time.Second
	DefaultReceiveBuffer = 8 << 20
)

// Client is a framed connection to the renderer.
type Client struct {
	conn net.Conn
	mu   sync.Mutex

	stream  *Stream
	readBuf []byte

	dialTimeout time.Duration
	log         *zap.Logger

	// Traffic counters
	bytesSent   atomic.Uint64
	bytesRecv   atomic.Uint64
	framesSent  atomic.Uint64
	framesRecvd atomic.Uint64
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithDialTimeout bounds Connect.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) { c.dialTimeout = d }
}

// WithReceiveBuffer sets the size of a single socket read.
func WithReceiveBuffer(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.readBuf = make([]byte, n)
		}
	}
}

// New creates a new disconnected client.
func New(opts ...Option) *Client {
	c := &Client{
		stream:      NewStream(uint8(packets.NumServerMessages)),
		dialTimeout: DefaultDialTimeout,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.readBuf == nil {
		c.readBuf = make([]byte, DefaultReceiveBuffer)
	}
	return c
}

// NormalizeAddress appends the default port when addr has none.
func NormalizeAddress(addr string) string {
	if addr == "" {
		addr = "localhost"
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return net.JoinHostPort(addr, strconv.Itoa(packets.DefaultPort))
	}
	return addr
}

// Connect dials the renderer.
func (c *Client) Connect(ctx context.Context, addr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return fmt.Errorf("already connected to %s", c.conn.RemoteAddr())
	}

	addr = NormalizeAddress(addr)
	d := net.Dialer{Timeout: c.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	c.attach(conn)
	c.log.Info("connected to renderer", zap.String("addr", addr))
	return nil
}

func (c *Client) attach(conn net.Conn) {
	c.conn = conn
	c.stream.Reset()
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// IsConnected returns connection status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send writes one frame. Frames reach the renderer in call order.
func (c *Client) Send(typ packets.ClientType, payload []byte) error {
	frame := EncodeFrame(uint8(typ), payload)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("sending %s: %w", typ, err)
	}
	c.bytesSent.Add(uint64(len(frame)))
	c.framesSent.Add(1)
	return nil
}

// Receive performs one blocking read and dispatches every frame it
// completes. The context deadline and cancellation interrupt the read.
func (c *Client) Receive(ctx context.Context, fn FrameHandler) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	deadline, _ := ctx.Deadline()
	if err := conn.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("setting read deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	n, err := conn.Read(c.readBuf)
	if n > 0 {
		c.bytesRecv.Add(uint64(n))
		ferr := c.stream.Feed(c.readBuf[:n], func(f Frame) error {
			c.framesRecvd.Add(1)
			return fn(f)
		})
		if ferr != nil {
			return ferr
		}
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("receiving: %w", err)
	}
	return nil
}

// Stats returns traffic counters.
func (c *Client) Stats() (bytesSent, bytesRecv, framesSent, framesRecvd uint64) {
	return c.bytesSent.Load(), c.bytesRecv.Load(), c.framesSent.Load(), c.framesRecvd.Load()
}
