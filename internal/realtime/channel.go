package realtime

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/sprintroom/roomlink/internal/domain"
	"github.com/sprintroom/roomlink/internal/metrics"
)

// State is the channel lifecycle state.
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

const writeTimeout = 5 * time.Second

// Options configures the channel's endpoint and timing.
type Options struct {
	// WebsocketBaseURL is the ws(s)://host base; the channel appends
	// /ws/{roomID}?userId={participantID}.
	WebsocketBaseURL string

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	ReconnectBaseDelay   time.Duration
	ReconnectMaxBackoff  time.Duration
	ReconnectMaxAttempts int
}

func (o *Options) applyDefaults() {
	if o.HeartbeatInterval == 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.HeartbeatTimeout == 0 {
		o.HeartbeatTimeout = 5 * time.Second
	}
	if o.ReconnectBaseDelay == 0 {
		o.ReconnectBaseDelay = time.Second
	}
	if o.ReconnectMaxBackoff == 0 {
		o.ReconnectMaxBackoff = 30 * time.Second
	}
	if o.ReconnectMaxAttempts == 0 {
		o.ReconnectMaxAttempts = 5
	}
}

// WebsocketBaseURL derives the ws endpoint base from the server's http URL,
// mirroring its scheme (https becomes wss).
func WebsocketBaseURL(serverURL string) string {
	switch {
	case strings.HasPrefix(serverURL, "https://"):
		return "wss://" + strings.TrimPrefix(serverURL, "https://")
	case strings.HasPrefix(serverURL, "http://"):
		return "ws://" + strings.TrimPrefix(serverURL, "http://")
	default:
		return serverURL
	}
}

// Channel owns the transport lifecycle for one (room, participant) pairing.
// Exactly one transport is live at a time; the top-level session controller
// is the only caller of Connect/Disconnect.
//
// Every transport carries a generation number. Teardown bumps the generation
// before closing, which detaches all goroutines belonging to the old
// transport: their callbacks compare generations and return without acting.
// That ordering is what keeps an intentional close from ever racing a
// reconnect against a newer connection.
type Channel struct {
	opts   Options
	clock  clockwork.Clock
	events *Dispatcher
	dialer *websocket.Dialer

	mu            sync.Mutex
	state         State
	conn          *websocket.Conn
	gen           uint64
	roomID        string
	participantID string
	attempts      int
	hb            *heartbeat

	writeMu sync.Mutex
}

func NewChannel(opts Options, clock clockwork.Clock) *Channel {
	opts.applyDefaults()
	return &Channel{
		opts:   opts,
		clock:  clock,
		events: NewDispatcher(),
		dialer: websocket.DefaultDialer,
		state:  StateClosed,
	}
}

// Events returns the dispatcher components subscribe through.
func (c *Channel) Events() *Dispatcher { return c.events }

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect establishes the transport for the given pairing. Calling it again
// with the same pairing while live is a no-op; a different pairing tears the
// old transport down first.
func (c *Channel) Connect(roomID, participantID string) {
	c.mu.Lock()
	live := c.state == StateOpen || c.state == StateConnecting
	if live && c.roomID == roomID && c.participantID == participantID {
		c.mu.Unlock()
		slog.Debug("Connect ignored, channel already live", "room", roomID)
		return
	}
	if live {
		c.teardownLocked()
	}
	c.roomID = roomID
	c.participantID = participantID
	c.attempts = 0
	c.setStateLocked(StateConnecting)
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	go c.dial(gen, roomID, participantID)
}

// Disconnect closes the transport with a normal-closure code and stops the
// heartbeat. It never schedules a reconnect. Idempotent.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		// still cancels any reconnect waiting out its backoff
		c.gen++
		return
	}
	c.setStateLocked(StateClosing)
	c.teardownLocked()
}

// teardownLocked detaches all transport goroutines, then closes. The
// generation bump must come first: a close event observed by a goroutine
// holding a stale generation is ignored, never reinterpreted as a failure.
func (c *Channel) teardownLocked() {
	c.gen++
	if c.hb != nil {
		c.hb.stop()
		c.hb = nil
	}
	if c.conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
		_ = c.conn.Close()
		c.conn = nil
	}
	c.setStateLocked(StateClosed)
}

// Send broadcasts an event to the room. Only valid while open: when the
// channel is down the event is dropped with a warning, never queued. The
// next successful refetch picks up the true state regardless.
func (c *Channel) Send(kind domain.EventKind, data any) error {
	c.mu.Lock()
	if c.state != StateOpen || c.conn == nil {
		c.mu.Unlock()
		slog.Warn("Channel not open, dropping outbound event", "kind", kind)
		return domain.ErrNotConnected
	}
	conn := c.conn
	roomID := c.roomID
	c.mu.Unlock()

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode event data: %w", err)
	}
	frame, err := json.Marshal(domain.Envelope{RoomID: roomID, Type: kind, Data: payload})
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		slog.Warn("Failed to write frame", "kind", kind, "error", err)
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (c *Channel) dial(gen uint64, roomID, participantID string) {
	wsURL := c.endpoint(roomID, participantID)
	slog.Info("Connecting to room channel", "url", wsURL)

	conn, resp, err := c.dialer.Dial(wsURL, nil)
	if err != nil && resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return // superseded by a newer connect or an intentional close
	}
	if err != nil {
		c.conn = nil
		c.setStateLocked(StateClosed)
		c.mu.Unlock()
		slog.Warn("Channel dial failed", "room", roomID, "error", err)
		c.events.emitError(err)
		c.scheduleReconnect()
		return
	}

	c.conn = conn
	c.setStateLocked(StateOpen)
	c.attempts = 0
	hb := newHeartbeat(c.clock, c.opts.HeartbeatInterval, c.opts.HeartbeatTimeout,
		func() error {
			return c.Send(domain.EventPing, domain.PingPayload{Timestamp: c.clock.Now().UnixMilli()})
		},
		func() { c.forceClose(gen) },
	)
	c.hb = hb
	c.mu.Unlock()

	hb.start()
	go c.readLoop(gen, conn)

	slog.Info("Connected to room", "room", roomID, "participant", participantID)
	c.events.emitConnect()
}

func (c *Channel) readLoop(gen uint64, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleTransportClose(gen, err)
			return
		}
		c.handleFrame(gen, data)
	}
}

// handleTransportClose runs when a transport the channel still owns dies
// underneath it. Stale generations mean the close was caller-initiated and
// already handled.
func (c *Channel) handleTransportClose(gen uint64, err error) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.gen++
	if c.hb != nil {
		c.hb.stop()
		c.hb = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.setStateLocked(StateClosed)
	c.mu.Unlock()

	slog.Warn("Channel connection lost", "error", err)
	c.events.emitDisconnect()

	// A server-sent normal closure is not a failure.
	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		return
	}
	c.scheduleReconnect()
}

// forceClose abnormally closes the current transport, used by the heartbeat
// when a pong never arrives. The read loop observes the closed connection
// and drives the regular abnormal-close path.
func (c *Channel) forceClose(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.conn == nil {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "heartbeat timeout")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
	_ = conn.Close()
}

func (c *Channel) scheduleReconnect() {
	c.mu.Lock()
	if c.attempts >= c.opts.ReconnectMaxAttempts {
		c.mu.Unlock()
		slog.Error("Max reconnect attempts reached, giving up",
			"max_attempts", c.opts.ReconnectMaxAttempts)
		c.events.emitError(domain.ErrReconnectExhausted)
		return
	}
	c.attempts++
	attempt := c.attempts
	delay := backoffDelay(c.opts.ReconnectBaseDelay, c.opts.ReconnectMaxBackoff, attempt)
	roomID, participantID := c.roomID, c.participantID
	c.setStateLocked(StateConnecting)
	gen := c.gen
	c.mu.Unlock()

	metrics.ReconnectAttempts.Inc()
	slog.Info("Scheduling reconnect",
		"attempt", attempt,
		"max_attempts", c.opts.ReconnectMaxAttempts,
		"delay", delay)

	go func() {
		<-c.clock.After(delay)

		c.mu.Lock()
		if c.gen != gen || c.state != StateConnecting {
			c.mu.Unlock()
			return // closed or superseded while waiting out the backoff
		}
		c.gen++
		next := c.gen
		c.mu.Unlock()

		c.dial(next, roomID, participantID)
	}()
}

// backoffDelay is base doubled per attempt, capped at ceiling.
func backoffDelay(base, ceiling time.Duration, attempt int) time.Duration {
	if attempt > 30 {
		return ceiling
	}
	d := base << (attempt - 1)
	if d <= 0 || d > ceiling {
		return ceiling
	}
	return d
}

func (c *Channel) handleFrame(gen uint64, data []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		// a malformed single frame is not a connection failure
		slog.Warn("Dropping malformed frame", "error", err)
		metrics.FramesDropped.WithLabelValues("malformed").Inc()
		return
	}
	if _, err := domain.ParseEventKind(string(env.Type)); err != nil {
		slog.Warn("Dropping frame with unknown event kind", "kind", env.Type)
		metrics.FramesDropped.WithLabelValues("unknown_kind").Inc()
		return
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	roomID := c.roomID
	hb := c.hb
	c.mu.Unlock()

	// The server is trusted not to cross-route, but don't assume it.
	if env.RoomID != roomID {
		slog.Warn("Dropping frame for foreign room",
			"frame_room", env.RoomID, "channel_room", roomID)
		metrics.FramesDropped.WithLabelValues("room_mismatch").Inc()
		return
	}

	// Heartbeat plumbing stays invisible to application subscribers.
	if env.Type == domain.EventPong {
		if hb != nil {
			hb.pong()
		}
		return
	}

	metrics.EventsReceived.WithLabelValues(string(env.Type)).Inc()
	c.events.emitMessage(env)
}

func (c *Channel) setStateLocked(s State) {
	c.state = s
	metrics.ConnectionState.Set(float64(s))
}

func (c *Channel) endpoint(roomID, participantID string) string {
	base := strings.TrimRight(c.opts.WebsocketBaseURL, "/")
	return fmt.Sprintf("%s/ws/%s?userId=%s", base, roomID, url.QueryEscape(participantID))
}
