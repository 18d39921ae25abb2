package statusserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sprintroom/roomlink/internal/domain"
	"github.com/sprintroom/roomlink/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUpstream struct{ err error }

func (f fakeUpstream) Health(context.Context) error { return f.err }

type fakeSnapshotter struct{}

func (fakeSnapshotter) Snapshot() session.Snapshot {
	return session.Snapshot{
		RoomID:          "r1",
		ParticipantID:   "alice_1",
		ConnectionState: "open",
		Roster: []domain.Participant{
			{ID: "alice_1", DisplayName: "alice", Online: true},
		},
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer("0", fakeSnapshotter{}, fakeUpstream{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["upstream"])
}

func TestHealthEndpoint_UpstreamDown(t *testing.T) {
	srv := NewServer("0", fakeSnapshotter{}, fakeUpstream{err: errors.New("refused")})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unreachable", body["upstream"])
}

func TestStatusEndpoint(t *testing.T) {
	srv := NewServer("0", fakeSnapshotter{}, fakeUpstream{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "r1", snap.RoomID)
	assert.Equal(t, "open", snap.ConnectionState)
	require.Len(t, snap.Roster, 1)
	assert.Equal(t, "alice_1", snap.Roster[0].ID)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := NewServer("0", fakeSnapshotter{}, fakeUpstream{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
