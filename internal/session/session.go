// Package session is the top-level room controller. It owns the realtime
// channel and the local document copy, reconciling foreign edits by
// refetching the authoritative room and replacing local state wholesale.
// There is no field-level merge: last full write observed wins.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sprintroom/roomlink/internal/api"
	"github.com/sprintroom/roomlink/internal/domain"
	"github.com/sprintroom/roomlink/internal/metrics"
	"github.com/sprintroom/roomlink/internal/platform/correlation"
	"github.com/sprintroom/roomlink/internal/platform/retry"
	"github.com/sprintroom/roomlink/internal/realtime"
)

// handlerName keys this session's subscriptions on the dispatcher.
const handlerName = "session"

// RoomAPI is the CRUD surface the session consumes.
type RoomAPI interface {
	GetRoom(ctx context.Context, roomID string) (*domain.Room, error)
	UpdateFoundation(ctx context.Context, roomID string, f domain.Foundation) (*domain.Room, error)
	UpdateDifferentiation(ctx context.Context, roomID string, d domain.Differentiation) (*domain.Room, error)
	UpdateApproach(ctx context.Context, roomID string, a domain.Approach) (*domain.Room, error)
	UpdateStatus(ctx context.Context, roomID string, status domain.RoomStatus) (*domain.Room, error)
}

// Transport is the realtime channel surface the session consumes.
type Transport interface {
	Connect(roomID, participantID string)
	Disconnect()
	Send(kind domain.EventKind, data any) error
	Events() *realtime.Dispatcher
	State() realtime.State
}

// Session binds one participant to one room for the lifetime of the process.
type Session struct {
	api       RoomAPI
	transport Transport
	clock     clockwork.Clock

	roomID        string
	participantID string
	displayName   string

	mu         sync.Mutex
	room       *domain.Room
	roster     map[string]*domain.Participant
	appliedSeq uint64
	connects   int
	onChat     func(domain.ChatPayload)

	refetchSeq atomic.Uint64
}

// New creates a session for the given room. The participant ID is generated
// locally from the display name and the current time, the same identity the
// web client would claim.
func New(roomAPI RoomAPI, transport Transport, roomID, displayName string, clock clockwork.Clock) *Session {
	return &Session{
		api:           roomAPI,
		transport:     transport,
		clock:         clock,
		roomID:        roomID,
		participantID: domain.NewParticipantID(displayName, clock.Now()),
		displayName:   displayName,
		roster:        make(map[string]*domain.Participant),
	}
}

func (s *Session) ParticipantID() string { return s.participantID }
func (s *Session) RoomID() string        { return s.roomID }

// OnChat sets the callback invoked for inbound room chat lines.
func (s *Session) OnChat(fn func(domain.ChatPayload)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChat = fn
}

// Join fetches the room, subscribes to the channel, and connects. The
// initial fetch retries transient failures; an authoritative rejection
// (unknown room, bad request) aborts immediately.
func (s *Session) Join(ctx context.Context) error {
	policy := retry.Policy{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.Warn("Initial room fetch failed, retrying",
				"attempt", attempt, "backoff", backoff, "error", err)
		},
	}
	room, err := retry.Do(ctx, policy, classifyAPIError, func() (*domain.Room, error) {
		return s.api.GetRoom(ctx, s.roomID)
	})
	if err != nil {
		return fmt.Errorf("join room %s: %w", s.roomID, err)
	}

	s.mu.Lock()
	s.room = room
	s.roster[s.participantID] = &domain.Participant{
		ID:          s.participantID,
		DisplayName: s.displayName,
		Online:      true,
	}
	s.mu.Unlock()

	ev := s.transport.Events()
	ev.OnConnect(handlerName, s.handleConnect)
	ev.OnDisconnect(handlerName, func() {
		slog.Warn("Room channel disconnected", "room", s.roomID)
	})
	ev.OnMessage(handlerName, s.handleMessage)
	ev.OnError(handlerName, func(err error) {
		slog.Error("Room channel error", "room", s.roomID, "error", err)
	})

	s.transport.Connect(s.roomID, s.participantID)
	return nil
}

// Leave tears the channel down and detaches all subscriptions. Safe to call
// more than once.
func (s *Session) Leave() {
	s.transport.Disconnect()
	ev := s.transport.Events()
	ev.Off(realtime.SignalConnect, handlerName)
	ev.Off(realtime.SignalDisconnect, handlerName)
	ev.Off(realtime.SignalMessage, handlerName)
	ev.Off(realtime.SignalError, handlerName)
	slog.Info("Left room", "room", s.roomID)
}

func classifyAPIError(err error) retry.Action {
	if api.AsAPIError(err).Permanent() {
		return retry.Stop
	}
	return retry.Retry
}

func (s *Session) handleConnect() {
	s.mu.Lock()
	s.connects++
	resync := s.connects > 1
	s.mu.Unlock()

	if !resync {
		return
	}
	// Missed events are never replayed; a full refetch after reconnect is
	// the only catch-up mechanism.
	slog.Info("Reconnected, resynchronizing room", "room", s.roomID)
	seq := s.refetchSeq.Add(1)
	go s.refetch(seq, "reconnect")
}

// handleMessage is the reconciliation policy. Self-authored updates were
// already applied optimistically and are ignored; foreign updates trigger a
// full document refetch.
func (s *Session) handleMessage(env domain.Envelope) {
	switch {
	case env.Type.IsDocumentUpdate():
		actor, err := env.Actor()
		if err != nil {
			slog.Warn("Update event without readable actor, ignoring", "kind", env.Type, "error", err)
			return
		}
		if actor.UserID == s.participantID {
			slog.Debug("Ignoring self-authored update", "kind", env.Type)
			return
		}
		seq := s.refetchSeq.Add(1)
		go s.refetch(seq, string(env.Type))

	case env.Type == domain.EventUserJoin:
		s.applyPresence(env, true)

	case env.Type == domain.EventUserLeave:
		s.applyPresence(env, false)

	case env.Type == domain.EventUserList:
		s.applyUserList(env)

	case env.Type == domain.EventChatMessage:
		s.applyChat(env)

	case env.Type == domain.EventCursorUpdate:
		// presence cosmetics, nothing to reconcile
		slog.Debug("Cursor update", "room", env.RoomID)
	}
}

// refetch fetches the authoritative document and replaces local state.
// Overlapping refetches are not serialized; the sequence number guarantees
// an older response never overwrites a newer one.
func (s *Session) refetch(seq uint64, reason string) {
	ctx := correlation.WithID(context.Background(), correlation.NewID())
	slog.InfoContext(ctx, "Refetching room after foreign change", "room", s.roomID, "reason", reason)

	room, err := s.api.GetRoom(ctx, s.roomID)
	if err != nil {
		// stale-but-not-corrupted: keep whatever we had
		slog.WarnContext(ctx, "Refetch failed, keeping previous state", "room", s.roomID, "error", err)
		metrics.Refetches.WithLabelValues("error").Inc()
		return
	}
	s.applyRefetch(ctx, seq, room)
}

func (s *Session) applyRefetch(ctx context.Context, seq uint64, room *domain.Room) {
	s.mu.Lock()
	if seq <= s.appliedSeq {
		s.mu.Unlock()
		slog.DebugContext(ctx, "Discarding stale refetch response", "seq", seq)
		metrics.Refetches.WithLabelValues("stale").Inc()
		return
	}
	s.appliedSeq = seq
	s.room = room
	s.mu.Unlock()

	metrics.Refetches.WithLabelValues("applied").Inc()
	slog.InfoContext(ctx, "Applied refetched room", "room", room.ID, "status", room.Status)
}

func (s *Session) applyPresence(env domain.Envelope, online bool) {
	actor, err := env.Actor()
	if err != nil || actor.UserID == "" {
		slog.Warn("Presence event without readable actor, ignoring", "kind", env.Type, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertLocked(actor, online)
}

func (s *Session) applyUserList(env domain.Envelope) {
	var list domain.UserListPayload
	if len(env.Data) > 0 {
		if err := env.Decode(&list); err != nil {
			slog.Warn("Malformed user list, ignoring", "error", err)
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range list.Users {
		if u.UserID == "" {
			continue
		}
		s.upsertLocked(u, true)
	}
}

// upsertLocked applies the roster mutation rules: join upserts online=true,
// leave only flips online=false. Entries are never deleted; who was ever
// present is retained for the session.
func (s *Session) upsertLocked(actor domain.ActorPayload, online bool) {
	p, exists := s.roster[actor.UserID]
	if !exists {
		p = &domain.Participant{ID: actor.UserID, DisplayName: actor.UserName}
		s.roster[actor.UserID] = p
	}
	if actor.UserName != "" {
		p.DisplayName = actor.UserName
	}
	p.Online = online
}

func (s *Session) applyChat(env domain.Envelope) {
	var msg domain.ChatPayload
	if err := env.Decode(&msg); err != nil {
		slog.Warn("Malformed chat message, ignoring", "error", err)
		return
	}

	s.mu.Lock()
	fn := s.onChat
	s.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

// EditFoundation applies the edit optimistically, writes it through the API,
// and broadcasts the update tagged with this participant's identity. On
// failure the optimistic copy stands until a future refetch reconciles it.
func (s *Session) EditFoundation(ctx context.Context, f domain.Foundation) error {
	s.mu.Lock()
	if s.room == nil {
		s.mu.Unlock()
		return domain.ErrRoomNotLoaded
	}
	s.room.Foundation = f
	s.mu.Unlock()

	room, err := s.api.UpdateFoundation(ctx, s.roomID, f)
	if err != nil {
		return api.AsAPIError(err)
	}
	s.storeRoom(room)
	s.broadcast(domain.EventFoundationUpdate)
	return nil
}

// EditDifferentiation mirrors EditFoundation for the second stage.
func (s *Session) EditDifferentiation(ctx context.Context, d domain.Differentiation) error {
	s.mu.Lock()
	if s.room == nil {
		s.mu.Unlock()
		return domain.ErrRoomNotLoaded
	}
	s.room.Differentiation = d
	s.mu.Unlock()

	room, err := s.api.UpdateDifferentiation(ctx, s.roomID, d)
	if err != nil {
		return api.AsAPIError(err)
	}
	s.storeRoom(room)
	s.broadcast(domain.EventDifferentiationUpdate)
	return nil
}

// EditApproach mirrors EditFoundation for the third stage.
func (s *Session) EditApproach(ctx context.Context, a domain.Approach) error {
	s.mu.Lock()
	if s.room == nil {
		s.mu.Unlock()
		return domain.ErrRoomNotLoaded
	}
	s.room.Approach = a
	s.mu.Unlock()

	room, err := s.api.UpdateApproach(ctx, s.roomID, a)
	if err != nil {
		return api.AsAPIError(err)
	}
	s.storeRoom(room)
	s.broadcast(domain.EventApproachUpdate)
	return nil
}

// AdvanceStatus moves the room to another workshop stage.
func (s *Session) AdvanceStatus(ctx context.Context, status domain.RoomStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid room status %q", status)
	}

	s.mu.Lock()
	if s.room == nil {
		s.mu.Unlock()
		return domain.ErrRoomNotLoaded
	}
	s.room.Status = status
	s.mu.Unlock()

	room, err := s.api.UpdateStatus(ctx, s.roomID, status)
	if err != nil {
		return api.AsAPIError(err)
	}
	s.storeRoom(room)
	s.broadcast(domain.EventStatusUpdate)
	return nil
}

// SendChat broadcasts a chat line. The payload is self-sufficient; receivers
// do not refetch for it.
func (s *Session) SendChat(text string) error {
	return s.transport.Send(domain.EventChatMessage, domain.ChatPayload{
		ID:       uuid.NewString(),
		UserID:   s.participantID,
		UserName: s.displayName,
		Text:     text,
		SentAt:   s.clock.Now().UnixMilli(),
	})
}

func (s *Session) storeRoom(room *domain.Room) {
	s.mu.Lock()
	s.room = room
	s.mu.Unlock()
}

// broadcast announces a successful write. A drop while disconnected is fine:
// peers converge on their next refetch.
func (s *Session) broadcast(kind domain.EventKind) {
	err := s.transport.Send(kind, domain.ActorPayload{
		UserID:   s.participantID,
		UserName: s.displayName,
	})
	if err != nil {
		slog.Debug("Update broadcast dropped", "kind", kind, "error", err)
	}
}

// Room returns a copy of the current local document, nil before Join.
func (s *Session) Room() *domain.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return nil
	}
	r := *s.room
	return &r
}

// Roster returns the participants seen this session, sorted by ID.
func (s *Session) Roster() []domain.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Participant, 0, len(s.roster))
	for _, p := range s.roster {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot is the status server's view of the session.
type Snapshot struct {
	RoomID          string               `json:"room_id"`
	ParticipantID   string               `json:"participant_id"`
	ConnectionState string               `json:"connection_state"`
	Room            *domain.Room         `json:"room,omitempty"`
	Roster          []domain.Participant `json:"roster"`
}

func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		RoomID:          s.roomID,
		ParticipantID:   s.participantID,
		ConnectionState: s.transport.State().String(),
		Room:            s.Room(),
		Roster:          s.Roster(),
	}
}
