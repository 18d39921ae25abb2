package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventKind_KnownKinds(t *testing.T) {
	for _, s := range []string{
		"foundation_update", "differentiation_update", "approach_update",
		"status_update", "user_join", "user_leave", "user_list",
		"cursor_update", "chat_message", "ping", "pong",
	} {
		kind, err := ParseEventKind(s)
		require.NoError(t, err, s)
		assert.Equal(t, EventKind(s), kind)
	}
}

func TestParseEventKind_UnknownKindRejected(t *testing.T) {
	_, err := ParseEventKind("document_burned")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownEventKind))
}

func TestEventKind_IsDocumentUpdate(t *testing.T) {
	assert.True(t, EventFoundationUpdate.IsDocumentUpdate())
	assert.True(t, EventStatusUpdate.IsDocumentUpdate())
	assert.False(t, EventUserJoin.IsDocumentUpdate())
	assert.False(t, EventPong.IsDocumentUpdate())
	assert.False(t, EventChatMessage.IsDocumentUpdate())
}

func TestEnvelope_Actor(t *testing.T) {
	env := Envelope{
		RoomID: "r1",
		Type:   EventFoundationUpdate,
		Data:   json.RawMessage(`{"userId":"alice_123","userName":"alice"}`),
	}
	actor, err := env.Actor()
	require.NoError(t, err)
	assert.Equal(t, "alice_123", actor.UserID)
	assert.Equal(t, "alice", actor.UserName)
}

func TestEnvelope_ActorMissingBody(t *testing.T) {
	actor, err := Envelope{Type: EventUserJoin}.Actor()
	require.NoError(t, err)
	assert.Empty(t, actor.UserID)
}

func TestEnvelope_ActorMalformedBody(t *testing.T) {
	env := Envelope{Type: EventUserJoin, Data: json.RawMessage(`"just a string"`)}
	_, err := env.Actor()
	assert.Error(t, err)
}

func TestNewParticipantID(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	assert.Equal(t, "alice_1700000000000", NewParticipantID("alice", now))
}

func TestRoomStatus_Valid(t *testing.T) {
	assert.True(t, StatusFoundation.Valid())
	assert.True(t, StatusCompleted.Valid())
	assert.False(t, RoomStatus("archived").Valid())
}
