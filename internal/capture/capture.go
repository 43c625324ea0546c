// Package capture records the framed messages a session sends and reads
// them back. A capture file is a short header followed by the frames
// exactly as they went over the wire.
package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/Faultbox/dergo/internal/network"
	"github.com/Faultbox/dergo/internal/network/packets"
)

// Magic starts every capture file.
const Magic = "DRGC"

// headerSize is the magic plus the protocol version byte.
const headerSize = len(Magic) + 1

// ErrBadHeader reports a file that is not a capture.
var ErrBadHeader = errors.New("capture: bad header")

// Recorder appends frames to a capture.
type Recorder struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
	frames int
}

// NewRecorder writes the capture header to w.
func NewRecorder(w io.Writer, v packets.Version) (*Recorder, error) {
	r := &Recorder{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		r.closer = c
	}
	if _, err := r.w.WriteString(Magic); err != nil {
		return nil, fmt.Errorf("writing capture header: %w", err)
	}
	if err := r.w.WriteByte(byte(v)); err != nil {
		return nil, fmt.Errorf("writing capture header: %w", err)
	}
	return r, nil
}

// Create creates or truncates a capture file.
func Create(path string, v packets.Version) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating capture: %w", err)
	}
	r, err := NewRecorder(f, v)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// Record appends one frame.
func (r *Recorder) Record(typ packets.ClientType, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	frame := network.EncodeFrame(uint8(typ), payload)
	if _, err := r.w.Write(frame); err != nil {
		return fmt.Errorf("recording %s: %w", typ, err)
	}
	r.frames++
	return nil
}

// Frames returns the number of frames recorded.
func (r *Recorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Flush writes buffered frames through.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.w.Flush()
}

// Close flushes and closes the underlying writer if it is a Closer.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.w.Flush()
	if r.closer != nil {
		if cerr := r.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Entry is one recorded frame. Payload is only valid during the callback.
type Entry struct {
	Index   int
	Type    packets.ClientType
	Payload []byte
}

// Decode parses the payload with the capture's protocol version.
func (e Entry) Decode(v packets.Version) (packets.Message, error) {
	return packets.Unmarshal(e.Type, e.Payload, v)
}

// Read walks every frame of a capture in order and returns its protocol
// version. A trailing partial frame is io.ErrUnexpectedEOF.
func Read(ctx context.Context, r io.Reader, fn func(packets.Version, Entry) error) (packets.Version, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrBadHeader, err)
	}
	if string(header[:len(Magic)]) != Magic {
		return 0, fmt.Errorf("%w: magic %q", ErrBadHeader, header[:len(Magic)])
	}
	v := packets.Version(header[len(Magic)])
	if !v.Valid() {
		return 0, fmt.Errorf("%w: protocol version %d", ErrBadHeader, v)
	}

	stream := network.NewStream(uint8(packets.NumClientMessages))
	buf := make([]byte, 64<<10)
	index := 0
	for {
		if err := ctx.Err(); err != nil {
			return v, err
		}
		n, err := r.Read(buf)
		if n > 0 {
			ferr := stream.Feed(buf[:n], func(f network.Frame) error {
				e := Entry{Index: index, Type: packets.ClientType(f.Type), Payload: f.Payload}
				index++
				return fn(v, e)
			})
			if ferr != nil {
				return v, ferr
			}
		}
		if errors.Is(err, io.EOF) {
			if stream.Buffered() != 0 {
				return v, fmt.Errorf("capture ends inside a frame: %w", io.ErrUnexpectedEOF)
			}
			return v, nil
		}
		if err != nil {
			return v, fmt.Errorf("reading capture: %w", err)
		}
	}
}

// ReadFile walks the frames of the capture at path.
func ReadFile(ctx context.Context, path string, fn func(packets.Version, Entry) error) (packets.Version, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening capture: %w", err)
	}
	defer f.Close()
	return Read(ctx, f, fn)
}

// Replay sends every frame of a capture through send, in order.
func Replay(ctx context.Context, r io.Reader, send func(packets.ClientType, []byte) error) (int, error) {
	n := 0
	_, err := Read(ctx, r, func(_ packets.Version, e Entry) error {
		if err := send(e.Type, e.Payload); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}

// Sink stands in for a renderer connection and records everything sent to
// it. Nothing is ever received.
type Sink struct {
	rec *Recorder
}

// NewSink wraps a recorder.
func NewSink(rec *Recorder) *Sink { return &Sink{rec: rec} }

func (s *Sink) Connect(context.Context, string) error { return nil }

func (s *Sink) Send(typ packets.ClientType, payload []byte) error {
	return s.rec.Record(typ, payload)
}

// Receive blocks until ctx is done.
func (s *Sink) Receive(ctx context.Context, _ network.FrameHandler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s *Sink) Close() error { return s.rec.Close() }
