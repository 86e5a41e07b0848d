// Package wire implements the presence stream's frame format: a JSON
// envelope carrying an operation code, an optional event type, and an
// optional payload. Each transport frame is exactly one envelope; there
// is no partial-message buffering.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// OpCode selects the semantics of an envelope.
type OpCode int

const (
	// OpEvent is a server-pushed domain event; the envelope's "t" field
	// names the event type and "d" carries the event payload.
	OpEvent OpCode = 0

	// OpHello is sent by the server once per connection and carries the
	// heartbeat interval to use for the rest of the session.
	OpHello OpCode = 1

	// OpSubscribe is sent by the client to request presence updates for
	// a set of subject ids.
	OpSubscribe OpCode = 2

	// OpHeartbeat is the bidirectional liveness signal.
	OpHeartbeat OpCode = 3
)

// String returns a short name for known op codes and the numeric value
// for everything else. Unknown codes are valid on the wire; they are
// ignored downstream, never fatal.
func (op OpCode) String() string {
	switch op {
	case OpEvent:
		return "event"
	case OpHello:
		return "hello"
	case OpSubscribe:
		return "subscribe"
	case OpHeartbeat:
		return "heartbeat"
	default:
		return strconv.Itoa(int(op))
	}
}

// Event types carried by OpEvent envelopes. Both are full snapshots for
// one subject; the distinction is only whether it is the first one.
const (
	EventInitState      = "INIT_STATE"
	EventPresenceUpdate = "PRESENCE_UPDATE"
)

// ErrMalformedMessage is returned by Decode when a frame is not
// well-formed JSON or lacks an "op" field. Callers must treat it as
// non-fatal: log, drop the frame, and keep the session alive.
var ErrMalformedMessage = errors.New("malformed message")

// Envelope is the wire message wrapper.
type Envelope struct {
	Op   OpCode          `json:"op"`
	Type string          `json:"t,omitempty"`
	Data json.RawMessage `json:"d,omitempty"`
}

// HelloData is the payload of an OpHello envelope.
type HelloData struct {
	HeartbeatInterval int `json:"heartbeat_interval"` // milliseconds
}

// SubscribeData is the payload of an OpSubscribe envelope.
type SubscribeData struct {
	SubscribeToIDs []string `json:"subscribe_to_ids"`
}

// Decode parses one complete frame into an Envelope.
func Decode(data []byte) (Envelope, error) {
	var probe struct {
		Op   *OpCode         `json:"op"`
		Type string          `json:"t"`
		Data json.RawMessage `json:"d"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if probe.Op == nil {
		return Envelope{}, fmt.Errorf("%w: missing op field", ErrMalformedMessage)
	}
	return Envelope{Op: *probe.Op, Type: probe.Type, Data: probe.Data}, nil
}

// Encode serializes an envelope to a frame.
func Encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// HeartbeatMessage returns the liveness envelope, {"op":3}.
func HeartbeatMessage() Envelope {
	return Envelope{Op: OpHeartbeat}
}

// SubscribeMessage returns an envelope requesting presence updates for
// the given subject ids.
func SubscribeMessage(ids []string) (Envelope, error) {
	data, err := json.Marshal(SubscribeData{SubscribeToIDs: ids})
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal subscription payload: %w", err)
	}
	return Envelope{Op: OpSubscribe, Data: data}, nil
}
