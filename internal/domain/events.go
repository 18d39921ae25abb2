package domain

import (
	"encoding/json"
	"fmt"
)

// EventKind tags a collaboration event on the realtime channel.
type EventKind string

const (
	EventFoundationUpdate      EventKind = "foundation_update"
	EventDifferentiationUpdate EventKind = "differentiation_update"
	EventApproachUpdate        EventKind = "approach_update"
	EventStatusUpdate          EventKind = "status_update"
	EventUserJoin              EventKind = "user_join"
	EventUserLeave             EventKind = "user_leave"
	EventUserList              EventKind = "user_list"
	EventCursorUpdate          EventKind = "cursor_update"
	EventChatMessage           EventKind = "chat_message"
	EventPing                  EventKind = "ping"
	EventPong                  EventKind = "pong"
)

// ParseEventKind validates a wire tag against the closed kind set.
func ParseEventKind(s string) (EventKind, error) {
	k := EventKind(s)
	switch k {
	case EventFoundationUpdate, EventDifferentiationUpdate, EventApproachUpdate,
		EventStatusUpdate, EventUserJoin, EventUserLeave, EventUserList,
		EventCursorUpdate, EventChatMessage, EventPing, EventPong:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEventKind, s)
}

// IsDocumentUpdate reports whether an event of this kind invalidates the
// local document copy when authored by another participant.
func (k EventKind) IsDocumentUpdate() bool {
	switch k {
	case EventFoundationUpdate, EventDifferentiationUpdate, EventApproachUpdate, EventStatusUpdate:
		return true
	}
	return false
}

// Envelope is the JSON frame exchanged on the realtime channel. Every frame
// claims the room it was sent on.
type Envelope struct {
	RoomID string          `json:"room_id"`
	Type   EventKind       `json:"type"`
	Data   json.RawMessage `json:"data"`
}

// ActorPayload is the common event body carrying the author's identity.
type ActorPayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

// UserListPayload is sent by the server to a freshly joined client with a
// snapshot of everyone currently in the room.
type UserListPayload struct {
	Users []ActorPayload `json:"users"`
}

// PingPayload carries the client wall-clock on heartbeat pings. The server
// may echo it on the pong; the client does not depend on that.
type PingPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// ChatPayload is a room chat line, self-sufficient on the wire.
type ChatPayload struct {
	ID       string `json:"id"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Text     string `json:"text"`
	SentAt   int64  `json:"sentAt"`
}

// Decode unmarshals the event body into v. An absent body is not an error;
// v is left untouched.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode event data: %w", err)
	}
	return nil
}

// Actor decodes the author identity out of an event body. Events without a
// userId field yield a zero ActorPayload, not an error.
func (e Envelope) Actor() (ActorPayload, error) {
	var p ActorPayload
	err := e.Decode(&p)
	return p, err
}
