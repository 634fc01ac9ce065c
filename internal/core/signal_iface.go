package core

import (
	"context"
	"encoding/json"

	"github.com/dkeye/huddle/internal/domain"
)

// Frame is a raw binary payload.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Envelope is the wire shape of every coordination event.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func NewEnvelope(kind MessageType, payload any) (Envelope, error) {
	env := Envelope{Type: kind}
	if payload == nil {
		return env, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return env, err
	}
	env.Data = b
	return env, nil
}

// EncodeFrame marshals payload into a ready-to-send frame.
func EncodeFrame(kind MessageType, payload any) (Frame, error) {
	env, err := NewEnvelope(kind, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Decode unmarshals the payload into v. An empty payload leaves v untouched.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

type Identity struct {
	UserID   domain.UserID
	UserName string
	IsHost   bool
	IsMuted  bool
}

// SignalChannel is the client side of the room coordination channel.
// Send is fire-and-forget; Events yields inbound envelopes in arrival order and
// a single MsgDisconnected when the transport drops.
type SignalChannel interface {
	Connect(ctx context.Context) error
	Join(room domain.RoomCode, id Identity) error
	Send(kind MessageType, payload any) error
	Events() <-chan Envelope
	Close() error
}
