package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrSchema marks a payload that does not satisfy the wire contract.
var ErrSchema = errors.New("schema violation")

// ClientInput is one client input record, bound to the peer it arrived
// from. Axes are clamped to [-1, 1] on ingress.
type ClientInput struct {
	ClientID   uint32
	ClientTick uint32
	Seq        uint32
	Buttons    uint32
	AxisX      float32
	AxisY      float32
}

// inputWire is the client -> server payload. Required fields are pointers
// so that absence is distinguishable from zero.
type inputWire struct {
	ClientTick *uint32 `json:"clientTick"`
	Seq        *uint32 `json:"seq"`
	Buttons    uint32  `json:"buttons"`
	AxisX      float64 `json:"ax"`
	AxisY      float64 `json:"ay"`
}

// ParseClientInput decodes an input payload received from the given peer.
// clientTick and seq are required non-negative numbers; buttons and axes
// default to zero. Unknown fields are ignored.
func ParseClientInput(data []byte, clientID uint32) (ClientInput, error) {
	var w inputWire
	if err := json.Unmarshal(data, &w); err != nil {
		return ClientInput{}, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if w.ClientTick == nil {
		return ClientInput{}, fmt.Errorf("%w: missing clientTick", ErrSchema)
	}
	if w.Seq == nil {
		return ClientInput{}, fmt.Errorf("%w: missing seq", ErrSchema)
	}

	return ClientInput{
		ClientID:   clientID,
		ClientTick: *w.ClientTick,
		Seq:        *w.Seq,
		Buttons:    w.Buttons,
		AxisX:      clampAxis(w.AxisX),
		AxisY:      clampAxis(w.AxisY),
	}, nil
}

// Marshal encodes the input for sending. ClientID stays off the wire; the
// server derives it from the transport's peer index.
func (in ClientInput) Marshal() ([]byte, error) {
	return json.Marshal(struct {
		ClientTick uint32  `json:"clientTick"`
		Seq        uint32  `json:"seq"`
		Buttons    uint32  `json:"buttons"`
		AxisX      float32 `json:"ax"`
		AxisY      float32 `json:"ay"`
	}{in.ClientTick, in.Seq, in.Buttons, in.AxisX, in.AxisY})
}

// clampAxis coerces an axis value into [-1, 1]. NaN carries no usable
// direction and collapses to zero.
func clampAxis(v float64) float32 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < -1:
		return -1
	case v > 1:
		return 1
	}
	return float32(v)
}

// Snapshot is the per-peer server -> client record emitted every network
// tick. AckApplied and AckRecv are specific to the receiving peer.
type Snapshot struct {
	ServerTick uint64 `json:"serverTick"`
	AckApplied uint32 `json:"ackApplied"`
	AckRecv    uint32 `json:"ackRecv"`
}

// Marshal encodes the snapshot payload.
func (s Snapshot) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// ParseSnapshot decodes a snapshot payload on the client.
func ParseSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return s, nil
}

// Hello is the control frame the server sends a freshly accepted peer. It
// carries the protocol version and the peer's assigned index.
type Hello struct {
	Version int    `json:"version"`
	PeerID  uint32 `json:"peerId"`
}

// Marshal encodes the hello payload.
func (h Hello) Marshal() ([]byte, error) {
	return json.Marshal(h)
}

// ParseHello decodes a hello payload.
func ParseHello(data []byte) (Hello, error) {
	var h Hello
	if err := json.Unmarshal(data, &h); err != nil {
		return Hello{}, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return h, nil
}

// Goodbye is the control frame a client sends before a graceful close.
type Goodbye struct {
	Reason string `json:"reason"`
}

// Marshal encodes the goodbye payload.
func (g Goodbye) Marshal() ([]byte, error) {
	return json.Marshal(g)
}

// ParseGoodbye decodes a goodbye payload.
func ParseGoodbye(data []byte) (Goodbye, error) {
	var g Goodbye
	if err := json.Unmarshal(data, &g); err != nil {
		return Goodbye{}, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return g, nil
}
