package session

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Faultbox/dergo/internal/network"
	"github.com/Faultbox/dergo/internal/network/packets"
)

// RequestRender asks the renderer to draw a view. Results, when requested,
// arrive through Poll.
func (s *Session) RequestRender(ctx context.Context, req *packets.Render) error {
	if s.Status() != StatusConnected {
		return nil
	}
	_, span := s.tracer.Start(ctx, "session.RequestRender",
		trace.WithAttributes(
			attribute.Int("dergo.width", int(req.Width)),
			attribute.Int("dergo.height", int(req.Height)),
			attribute.Bool("dergo.ask_for_result", req.AskForResult),
		))
	defer span.End()

	if err := s.send(req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// Poll blocks for one read from the renderer and handles every message it
// completes. Context errors leave the session usable; anything else ends it.
func (s *Session) Poll(ctx context.Context) error {
	if s.Status() != StatusConnected {
		return ErrInactive
	}
	ctx, span := s.tracer.Start(ctx, "session.Poll")
	defer span.End()

	err := s.transport.Receive(ctx, s.dispatch)
	if err == nil {
		return nil
	}
	span.RecordError(err)
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return err
	}
	span.SetStatus(codes.Error, err.Error())
	return s.fail(err)
}

func (s *Session) dispatch(f network.Frame) error {
	switch packets.ServerType(f.Type) {
	case packets.ServerConnectionTest:
		s.hello = string(f.Payload)
		s.log.Debug("connection test reply", zap.String("text", s.hello))
	case packets.ServerResync:
		s.log.Debug("renderer asked for a resync")
		s.needsReset = true
	case packets.ServerResult:
		res, err := packets.DecodeResult(f.Payload)
		if err != nil {
			return err
		}
		s.metrics.Result()
		if s.onResult != nil {
			s.onResult(res)
		}
	}
	return nil
}

// RenderAndWait requests a view with a result and polls until the image
// arrives.
func (s *Session) RenderAndWait(ctx context.Context, req *packets.Render) (*packets.Result, error) {
	if s.Status() != StatusConnected {
		return nil, ErrInactive
	}

	var got *packets.Result
	prev := s.onResult
	s.onResult = func(r *packets.Result) {
		got = r
		if prev != nil {
			prev(r)
		}
	}
	defer func() { s.onResult = prev }()

	r := *req
	r.AskForResult = true
	if err := s.RequestRender(ctx, &r); err != nil {
		return nil, err
	}
	for got == nil {
		if err := s.Poll(ctx); err != nil {
			return nil, err
		}
	}
	return got, nil
}

// TestConnection sends the handshake text and waits for the reply.
func (s *Session) TestConnection(ctx context.Context) error {
	if s.Status() != StatusConnected {
		return ErrInactive
	}
	s.hello = ""
	if err := s.send(&packets.ConnectionTest{Text: packets.HelloRequest}); err != nil {
		return err
	}
	for s.hello == "" {
		if err := s.Poll(ctx); err != nil {
			return err
		}
	}
	if s.hello != packets.HelloReply {
		return fmt.Errorf("unexpected handshake reply %q", s.hello)
	}
	return nil
}
