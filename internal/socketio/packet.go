// Package socketio implements the subset of the Engine.IO v4 / Socket.IO v5
// text protocol needed to exchange events on the default namespace over a
// websocket transport.
package socketio

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ProtocolVersion is sent as the EIO query parameter during the handshake.
const ProtocolVersion = "4"

// Path is the default mount point of a Socket.IO server.
const Path = "/socket.io/"

var ErrMalformed = errors.New("malformed socket.io packet")

// EngineType is the first character of every frame.
type EngineType byte

const (
	EngineOpen    EngineType = '0'
	EngineClose   EngineType = '1'
	EnginePing    EngineType = '2'
	EnginePong    EngineType = '3'
	EngineMessage EngineType = '4'
	EngineUpgrade EngineType = '5'
	EngineNoop    EngineType = '6'
)

// SocketType is the second character of an EngineMessage frame.
type SocketType byte

const (
	SocketConnect      SocketType = '0'
	SocketDisconnect   SocketType = '1'
	SocketEvent        SocketType = '2'
	SocketAck          SocketType = '3'
	SocketConnectError SocketType = '4'
)

// Packet is one decoded websocket frame. Socket is zero unless Engine is
// EngineMessage. Data holds the remaining payload with any ack id removed.
type Packet struct {
	Engine EngineType
	Socket SocketType
	Data   []byte
}

// OpenInfo is the payload of the EngineOpen packet.
type OpenInfo struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload,omitempty"`
}

func Parse(frame []byte) (Packet, error) {
	if len(frame) == 0 {
		return Packet{}, ErrMalformed
	}
	p := Packet{Engine: EngineType(frame[0])}
	switch p.Engine {
	case EngineOpen, EngineClose, EnginePing, EnginePong, EngineUpgrade, EngineNoop:
		p.Data = frame[1:]
		return p, nil
	case EngineMessage:
	default:
		return Packet{}, fmt.Errorf("%w: engine type %q", ErrMalformed, frame[0])
	}

	if len(frame) < 2 {
		return Packet{}, fmt.Errorf("%w: empty message", ErrMalformed)
	}
	p.Socket = SocketType(frame[1])
	if p.Socket < SocketConnect || p.Socket > SocketConnectError {
		return Packet{}, fmt.Errorf("%w: socket type %q", ErrMalformed, frame[1])
	}
	rest := frame[2:]
	if len(rest) > 0 && rest[0] == '/' {
		// Only the default namespace is supported; "/," is equivalent to it.
		comma := bytes.IndexByte(rest, ',')
		if comma < 0 || string(rest[:comma]) != "/" {
			return Packet{}, fmt.Errorf("%w: unsupported namespace", ErrMalformed)
		}
		rest = rest[comma+1:]
	}
	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	p.Data = rest[i:]
	return p, nil
}

func Encode(p Packet) []byte {
	out := make([]byte, 0, len(p.Data)+2)
	out = append(out, byte(p.Engine))
	if p.Engine == EngineMessage {
		out = append(out, byte(p.Socket))
	}
	return append(out, p.Data...)
}

// Event splits an event packet into its name and raw arguments.
func (p Packet) Event() (string, []json.RawMessage, error) {
	if p.Engine != EngineMessage || p.Socket != SocketEvent {
		return "", nil, fmt.Errorf("%w: not an event", ErrMalformed)
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(p.Data, &parts); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("%w: event without name", ErrMalformed)
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return "", nil, fmt.Errorf("%w: event name: %v", ErrMalformed, err)
	}
	return name, parts[1:], nil
}

// EncodeEvent builds the frame for emitting name with the given arguments.
func EncodeEvent(name string, args ...any) ([]byte, error) {
	parts := make([]any, 0, len(args)+1)
	parts = append(parts, name)
	parts = append(parts, args...)
	data, err := json.Marshal(parts)
	if err != nil {
		return nil, err
	}
	return Encode(Packet{Engine: EngineMessage, Socket: SocketEvent, Data: data}), nil
}

// Frames for the fixed control packets.
var (
	ConnectFrame    = []byte("40")
	DisconnectFrame = []byte("41")
	PingFrame       = []byte("2")
	PongFrame       = []byte("3")
)
