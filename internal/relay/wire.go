package relay

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Chat event names.
const (
	EventRegister          = "register"
	EventLogin             = "login"
	EventFindFriend        = "findFriend"
	EventSendMessage       = "sendMessage"
	EventAdminLogin        = "adminLogin"
	EventRegisterResult    = "registerResult"
	EventLoginResult       = "loginResult"
	EventFindFriendResult  = "findFriendResult"
	EventAdminLoginResult  = "adminLoginResult"
	EventMessage           = "message"
	EventAdminMessage      = "adminMessage"
	EventMessageError      = "messageError"
	EventSessionSuperseded = "sessionSuperseded"
)

// SignalRegister is the signaling frame type that binds an id to a connection.
const SignalRegister = "REGISTER"

// Frame is the chat wire unit: an event name and its payload.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Envelope is a routed chat message. Content and Meta are relayed verbatim.
type Envelope struct {
	From      string          `json:"from"`
	To        string          `json:"to"`
	Content   json.RawMessage `json:"content"`
	Meta      json.RawMessage `json:"meta"`
	Timestamp int64           `json:"timestamp"`
}

// SignalIn is an inbound signaling frame. Id is set on REGISTER; Target on
// everything else.
type SignalIn struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Target  string          `json:"target,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SignalOut is what the target of a signaling frame receives. Sender is null
// when the forwarding connection never registered.
type SignalOut struct {
	Type    string          `json:"type"`
	Sender  *string         `json:"sender"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeFrame marshals data under the given event name.
func EncodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s payload", event)
	}
	out, err := json.Marshal(Frame{Event: event, Data: raw})
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s frame", event)
	}
	return out, nil
}

// DecodeFrame parses a chat frame. Frames without an event name are rejected.
func DecodeFrame(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, errors.Wrap(err, "decode frame")
	}
	if f.Event == "" {
		return Frame{}, errors.New("frame has no event")
	}
	return f, nil
}

// orNull keeps absent opaque payloads as JSON null on the wire.
func orNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
