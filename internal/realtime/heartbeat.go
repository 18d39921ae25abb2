package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sprintroom/roomlink/internal/metrics"
)

// heartbeat detects connections that are technically open but no longer
// functioning, which happens with idle long-lived sockets behind proxies.
//
// Each interval tick sends a ping and arms a one-shot pong timeout. At most
// one timeout is armed at a time; a tick arriving while the previous ping is
// unresolved is skipped. A pong disarms the timeout. An expired timeout
// force-closes the transport, handing control to the reconnect policy.
type heartbeat struct {
	clock    clockwork.Clock
	interval time.Duration
	timeout  time.Duration
	sendPing func() error
	onExpire func()

	mu        sync.Mutex
	ticker    clockwork.Ticker
	pongTimer clockwork.Timer
	stopCh    chan struct{}
	stopped   bool
}

func newHeartbeat(clock clockwork.Clock, interval, timeout time.Duration, sendPing func() error, onExpire func()) *heartbeat {
	return &heartbeat{
		clock:    clock,
		interval: interval,
		timeout:  timeout,
		sendPing: sendPing,
		onExpire: onExpire,
		stopCh:   make(chan struct{}),
	}
}

// start arms the interval ticker. Idempotent.
func (h *heartbeat) start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped || h.ticker != nil {
		return
	}
	h.ticker = h.clock.NewTicker(h.interval)
	go h.run(h.ticker)
}

func (h *heartbeat) run(ticker clockwork.Ticker) {
	for {
		select {
		case <-ticker.Chan():
			h.tick()
		case <-h.stopCh:
			return
		}
	}
}

func (h *heartbeat) tick() {
	h.mu.Lock()
	if h.stopped || h.pongTimer != nil {
		// previous ping still unresolved
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	if err := h.sendPing(); err != nil {
		slog.Warn("Heartbeat ping failed", "error", err)
		return
	}

	h.mu.Lock()
	if !h.stopped && h.pongTimer == nil {
		h.pongTimer = h.clock.AfterFunc(h.timeout, h.expire)
	}
	h.mu.Unlock()
}

// pong resolves the outstanding liveness check.
func (h *heartbeat) pong() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pongTimer != nil {
		h.pongTimer.Stop()
		h.pongTimer = nil
	}
}

func (h *heartbeat) expire() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.pongTimer = nil
	h.mu.Unlock()

	metrics.HeartbeatTimeouts.Inc()
	slog.Warn("Heartbeat timed out waiting for pong, forcing close")
	h.onExpire()
}

// stop halts the ticker and disarms any pending timeout. Mandatory on every
// close so a zombie timer cannot ping a dead channel. Idempotent.
func (h *heartbeat) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	if h.ticker != nil {
		h.ticker.Stop()
		h.ticker = nil
	}
	if h.pongTimer != nil {
		h.pongTimer.Stop()
		h.pongTimer = nil
	}
	close(h.stopCh)
}
