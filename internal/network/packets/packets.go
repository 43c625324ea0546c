// Package packets defines the DERGO wire protocol messages.
//
// Every message travels as a 5-byte header (uint32 payload size, uint8
// type) followed by the payload. All numeric fields are little-endian.
package packets

import (
	"errors"
	"fmt"
)

// HeaderSize is the size of the frame header preceding every payload.
const HeaderSize = 5

// DefaultPort is the renderer's listening port.
const DefaultPort = 9995

// Protocol errors.
var (
	ErrUnknownMessage = errors.New("packets: unknown message type")
	ErrStringTooLong  = errors.New("packets: string exceeds allocation limit")
	ErrTooManyItems   = errors.New("packets: collection count exceeds limit")
)

// Version selects the layout of version-dependent messages.
type Version uint8

const (
	// V1 sends meshes as a flat deindexed vertex buffer and materials with
	// 15 texture slots.
	V1 Version = 1
	// V2 sends meshes as face records plus raw shared vertices and
	// materials with 16 texture slots.
	V2 Version = 2

	LatestVersion = V2
)

// Valid reports whether v is a known protocol version.
func (v Version) Valid() bool {
	return v == V1 || v == V2
}

// ClientType identifies a client to renderer message.
type ClientType uint8

// Client to renderer messages.
const (
	ClientConnectionTest ClientType = iota
	ClientInit
	ClientWorldParams
	ClientInstantRadiosity
	ClientMesh
	ClientItem
	ClientItemRemove
	ClientLight
	ClientLightRemove
	ClientEmpties
	ClientMaterial
	ClientMaterialTexture
	ClientTexture
	ClientReset
	ClientRender
	ClientInitAsync
	ClientFinishAsync

	NumClientMessages
)

var clientTypeNames = [NumClientMessages]string{
	"ConnectionTest", "Init", "WorldParams", "InstantRadiosity", "Mesh",
	"Item", "ItemRemove", "Light", "LightRemove", "Empties", "Material",
	"MaterialTexture", "Texture", "Reset", "Render", "InitAsync", "FinishAsync",
}

func (t ClientType) String() string {
	if t < NumClientMessages {
		return clientTypeNames[t]
	}
	return fmt.Sprintf("ClientType(%d)", uint8(t))
}

// ServerType identifies a renderer to client message.
type ServerType uint8

// Renderer to client messages.
const (
	ServerConnectionTest ServerType = iota
	ServerResync
	ServerResult

	NumServerMessages
)

func (t ServerType) String() string {
	switch t {
	case ServerConnectionTest:
		return "ConnectionTest"
	case ServerResync:
		return "Resync"
	case ServerResult:
		return "Result"
	}
	return fmt.Sprintf("ServerType(%d)", uint8(t))
}

// Handshake payloads of the ConnectionTest exchange.
const (
	HelloRequest = "Hello"
	HelloReply   = "Hello you too"
)

// Message is an outbound message with a fixed type code.
type Message interface {
	Type() ClientType
	EncodeTo(e *Encoder, v Version)
}

// Marshal encodes a message payload (without header).
func Marshal(m Message, v Version) []byte {
	e := NewEncoder()
	m.EncodeTo(e, v)
	return e.Bytes()
}

// Unmarshal decodes an outbound message payload. It is used to inspect
// captured traffic.
func Unmarshal(t ClientType, payload []byte, v Version) (Message, error) {
	d := NewDecoder(payload)
	var m Message
	switch t {
	case ClientConnectionTest:
		m = &ConnectionTest{Text: string(payload)}
		d.Skip(len(payload))
	case ClientInit:
		m = &Init{}
	case ClientWorldParams:
		m = decodeWorldParams(d)
	case ClientInstantRadiosity:
		m = decodeInstantRadiosity(d)
	case ClientMesh:
		if v == V1 {
			m = decodeMeshFlat(d)
		} else {
			m = decodeMesh(d)
		}
	case ClientItem:
		m = decodeItem(d)
	case ClientItemRemove:
		m = decodeItemRemove(d)
	case ClientLight:
		m = decodeLight(d)
	case ClientLightRemove:
		m = &LightRemove{LightID: d.ReadUint64()}
	case ClientEmpties:
		m = &Empties{}
	case ClientMaterial:
		m = decodeMaterial(d, v)
	case ClientMaterialTexture:
		m = decodeMaterialTexture(d)
	case ClientTexture:
		m = decodeTexture(d)
	case ClientReset:
		m = &Reset{}
	case ClientRender:
		m = decodeRender(d)
	case ClientInitAsync:
		m = &InitAsync{}
	case ClientFinishAsync:
		m = &FinishAsync{}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessage, uint8(t))
	}
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", t, err)
	}
	if d.Remaining() != 0 {
		return nil, fmt.Errorf("decoding %s: %d trailing bytes", t, d.Remaining())
	}
	return m, nil
}

// ConnectionTest carries the raw handshake text.
type ConnectionTest struct {
	Text string
}

func (*ConnectionTest) Type() ClientType { return ClientConnectionTest }

func (m *ConnectionTest) EncodeTo(e *Encoder, _ Version) { e.WriteBytes([]byte(m.Text)) }

// Empty messages.
type (
	Init        struct{}
	Empties     struct{}
	Reset       struct{}
	InitAsync   struct{}
	FinishAsync struct{}
)

func (*Init) Type() ClientType        { return ClientInit }
func (*Empties) Type() ClientType     { return ClientEmpties }
func (*Reset) Type() ClientType       { return ClientReset }
func (*InitAsync) Type() ClientType   { return ClientInitAsync }
func (*FinishAsync) Type() ClientType { return ClientFinishAsync }

func (*Init) EncodeTo(*Encoder, Version)        {}
func (*Empties) EncodeTo(*Encoder, Version)     {}
func (*Reset) EncodeTo(*Encoder, Version)       {}
func (*InitAsync) EncodeTo(*Encoder, Version)   {}
func (*FinishAsync) EncodeTo(*Encoder, Version) {}
