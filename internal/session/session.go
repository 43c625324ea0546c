// Package session streams scene snapshots to a renderer. A Session owns the
// connection, the identity trackers, the frame counter and the sets of
// entities the renderer currently holds.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Faultbox/dergo/internal/config"
	"github.com/Faultbox/dergo/internal/identity"
	"github.com/Faultbox/dergo/internal/metrics"
	"github.com/Faultbox/dergo/internal/network"
	"github.com/Faultbox/dergo/internal/network/packets"
)

var (
	// ErrSessionFailed wraps the send or receive error that ended a session.
	ErrSessionFailed = errors.New("session: failed")
	// ErrInactive is returned by operations that need a reply from the
	// renderer while the session is not connected.
	ErrInactive = errors.New("session: not connected")
)

// Status is the connection state of a session.
type Status int32

const (
	StatusDisconnected Status = iota
	StatusConnected
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnected:
		return "connected"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("Status(%d)", int32(s))
}

// Transport moves frames to and from the renderer. *network.Client is the
// default.
type Transport interface {
	Connect(ctx context.Context, addr string) error
	Send(typ packets.ClientType, payload []byte) error
	Receive(ctx context.Context, fn network.FrameHandler) error
	Close() error
}

// Recorder receives a copy of every message sent.
type Recorder interface {
	Record(typ packets.ClientType, payload []byte) error
}

// Option configures a Session.
type Option func(*Session)

// WithTransport replaces the TCP client.
func WithTransport(t Transport) Option {
	return func(s *Session) { s.transport = t }
}

// WithRecorder tees outbound messages into r.
func WithRecorder(r Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithLogger sets the session logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithMetrics enables instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithTracer sets the tracer used for spans. The global provider is used
// otherwise.
func WithTracer(t trace.Tracer) Option {
	return func(s *Session) { s.tracer = t }
}

// OnResult registers a callback for render results.
func OnResult(fn func(*packets.Result)) Option {
	return func(s *Session) { s.onResult = fn }
}

// activeItem is an instance the renderer holds.
type activeItem struct {
	ObjectID uint64
	MeshID   uint64
}

// Session is one connection to a renderer and everything the client knows
// about what the renderer holds. It is not safe for concurrent use except
// for Status.
type Session struct {
	addr      string
	version   packets.Version
	transport Transport
	recorder  Recorder
	log       *zap.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	onResult  func(*packets.Result)

	status atomic.Int32
	enc    *packets.Encoder

	ids           *identity.Set
	frame         int32
	activeObjects map[activeItem]struct{}
	activeLights  map[uint64]struct{}
	worldInSync   bool
	needsReset    bool
	hello         string
}

// Open creates a session and connects it. A failed connect is logged and
// leaves the session inert with StatusDisconnected; Reconnect may be used
// later. The returned error only reports invalid configuration.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Session, error) {
	version := packets.Version(cfg.Sync.ProtocolVersion)
	if !version.Valid() {
		return nil, fmt.Errorf("unsupported protocol version %d", cfg.Sync.ProtocolVersion)
	}

	s := &Session{
		addr:          cfg.Renderer.Address,
		version:       version,
		log:           zap.NewNop(),
		enc:           packets.NewEncoderWithCap(64 << 10),
		ids:           identity.NewSet(),
		frame:         1,
		activeObjects: make(map[activeItem]struct{}),
		activeLights:  make(map[uint64]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("github.com/Faultbox/dergo/internal/session")
	}
	if s.transport == nil {
		s.transport = network.New(
			network.WithLogger(s.log.Named("network")),
			network.WithDialTimeout(cfg.Renderer.ConnectTimeout),
			network.WithReceiveBuffer(cfg.Renderer.ReceiveBuffer),
		)
	}

	if err := s.connect(ctx); err != nil {
		s.log.Error("renderer unavailable, session inert", zap.String("addr", s.addr), zap.Error(err))
	}
	return s, nil
}

// Status returns the connection state.
func (s *Session) Status() Status {
	return Status(s.status.Load())
}

func (s *Session) setStatus(st Status) {
	s.status.Store(int32(st))
	s.metrics.SetConnected(st == StatusConnected)
}

// Version returns the protocol version in use.
func (s *Session) Version() packets.Version { return s.version }

// Frame returns the current frame counter. It is never 0.
func (s *Session) Frame() int32 { return s.frame }

// IDs exposes the identity trackers.
func (s *Session) IDs() *identity.Set { return s.ids }

func (s *Session) connect(ctx context.Context) error {
	if err := s.transport.Connect(ctx, s.addr); err != nil {
		s.setStatus(StatusDisconnected)
		return err
	}
	s.setStatus(StatusConnected)
	return s.reset("connect")
}

// Reconnect drops the current connection, if any, and performs one connect
// followed by a protocol reset.
func (s *Session) Reconnect(ctx context.Context) error {
	_ = s.transport.Close()
	s.setStatus(StatusDisconnected)
	if err := s.connect(ctx); err != nil {
		return fmt.Errorf("reconnecting to %s: %w", s.addr, err)
	}
	return nil
}

// Reset tells the renderer to drop everything and forgets every id, so the
// next Sync sends the whole scene. It is a no-op on an inactive session.
func (s *Session) Reset() error {
	if s.Status() != StatusConnected {
		return nil
	}
	return s.reset("requested")
}

func (s *Session) reset(reason string) error {
	s.log.Debug("protocol reset", zap.String("reason", reason))
	s.metrics.Reset(reason)

	s.ids.Reset()
	clear(s.activeObjects)
	clear(s.activeLights)
	s.worldInSync = false
	s.needsReset = false
	return s.send(&packets.Reset{})
}

// Close closes the connection. The session becomes inert.
func (s *Session) Close() error {
	s.setStatus(StatusDisconnected)
	return s.transport.Close()
}

// send encodes and writes one message. Any error ends the session.
func (s *Session) send(m packets.Message) error {
	s.enc.Reset()
	m.EncodeTo(s.enc, s.version)
	payload := s.enc.Bytes()
	typ := m.Type()

	if err := s.transport.Send(typ, payload); err != nil {
		return s.fail(err)
	}
	s.metrics.MessageSent(typ.String(), packets.HeaderSize+len(payload))

	if s.recorder != nil {
		if err := s.recorder.Record(typ, payload); err != nil {
			s.log.Warn("capture stopped", zap.Error(err))
			s.recorder = nil
		}
	}
	return nil
}

func (s *Session) fail(err error) error {
	s.setStatus(StatusFailed)
	s.log.Error("session failed", zap.Error(err))
	_ = s.transport.Close()
	return fmt.Errorf("%w: %w", ErrSessionFailed, err)
}

// advanceFrame moves to the next frame number, wrapping within the positive
// int32 range and skipping 0.
func (s *Session) advanceFrame() {
	if s.frame >= 1<<31-1 {
		s.frame = 1
		return
	}
	s.frame++
}
