// Package server defines the wire events exchanged with clients and the
// helpers that encode and decode them.
package server

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Server to client event types.
const (
	EventInit             = "init"
	EventJoin             = "join"
	EventLeave            = "leave"
	EventMessage          = "message"
	EventUpdateClientList = "updateClientList"
	EventError            = "error"
)

// Client to server event types. EventMessage is shared by both directions.
const (
	EventSetNickname = "setNickname"
)

const (
	msgInvalidFormat   = "Invalid message format."
	msgUnsupportedType = "Unsupported event type."
)

// Event is the envelope every frame carries in both directions.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// outboundEvent is the encoding form of Event with a typed payload.
type outboundEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// IdentityPayload is sent with init.
type IdentityPayload struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
}

// PresencePayload is sent with join and leave.
type PresencePayload struct {
	ID  string `json:"id"`
	Msg string `json:"msg"`
}

// ChatPayload is the body of a broadcast message event. Msg is relayed
// exactly as the sender wrote it and is omitted when the sender sent none.
type ChatPayload struct {
	ID       string          `json:"id"`
	Nickname string          `json:"nickname"`
	Msg      json.RawMessage `json:"msg,omitempty"`
}

// ErrorPayload is sent to the originator of a bad frame.
type ErrorPayload struct {
	Msg string `json:"msg"`
}

// ClientEntry is one row of the client list.
type ClientEntry struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
}

// Snapshot is an ordered, caller-owned copy of the registry.
type Snapshot []ClientEntry

type setNicknamePayload struct {
	Nickname json.RawMessage `json:"nickname"`
}

type messagePayload struct {
	Msg json.RawMessage `json:"msg"`
}

// encodeEvent serializes a single frame.
func encodeEvent(eventType string, payload any) ([]byte, error) {
	return json.Marshal(outboundEvent{Type: eventType, Payload: payload})
}

// decodeEvent parses an inbound frame into its envelope.
func decodeEvent(raw []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return Event{}, err
	}
	return evt, nil
}

// decodePayload fills dst from an event payload. A payload that is absent or
// not a JSON object leaves dst at its zero value.
func decodePayload(raw json.RawMessage, dst any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	return json.Unmarshal(trimmed, dst)
}

// nicknameText returns the display name carried by a setNickname value.
// Empty strings, false, zero and null carry none. Other non-string values
// are named by their compact JSON text.
func nicknameText(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", false
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", false
	}
	switch v := v.(type) {
	case nil:
		return "", false
	case string:
		return v, v != ""
	case bool:
		if !v {
			return "", false
		}
		return "true", true
	case json.Number:
		if f, _ := v.Float64(); f == 0 {
			return "", false
		}
		return v.String(), true
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return "", false
	}
	return buf.String(), true
}

func defaultNickname(id string) string {
	return "User_" + id
}

func joinNotice(nickname string) string {
	return nickname + " joined the chat"
}

func leaveNotice(nickname string) string {
	return nickname + " left the chat"
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
