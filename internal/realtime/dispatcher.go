package realtime

import (
	"log/slog"
	"sync"

	"github.com/sprintroom/roomlink/internal/domain"
)

// Signal names the channel lifecycle events subscribers can attach to.
type Signal string

const (
	SignalConnect    Signal = "connect"
	SignalDisconnect Signal = "disconnect"
	SignalMessage    Signal = "message"
	SignalError      Signal = "error"
)

// registry holds named handlers for one signal. Handlers register under a
// caller-chosen name; re-registering a name replaces the handler in place
// (still exactly one invocation), so registration is idempotent. Fan-out
// preserves registration order.
type registry[T any] struct {
	signal Signal

	mu     sync.Mutex
	order  []string
	byName map[string]func(T)
}

func newRegistry[T any](signal Signal) *registry[T] {
	return &registry[T]{signal: signal, byName: make(map[string]func(T))}
}

func (r *registry[T]) add(name string, fn func(T)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; !exists {
		r.order = append(r.order, name)
	}
	r.byName[name] = fn
}

func (r *registry[T]) remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; !exists {
		return
	}
	delete(r.byName, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *registry[T]) emit(v T) {
	r.mu.Lock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	fns := make([]func(T), 0, len(names))
	for _, n := range names {
		fns = append(fns, r.byName[n])
	}
	r.mu.Unlock()

	for i, fn := range fns {
		r.invoke(names[i], fn, v)
	}
}

// invoke runs one handler inside its own failure boundary. A panicking
// handler must not prevent the remaining handlers from running.
func (r *registry[T]) invoke(name string, fn func(T), v T) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Event handler panicked", "signal", r.signal, "handler", name, "panic", rec)
		}
	}()
	fn(v)
}

// Dispatcher decouples the channel's raw inbound frames from application
// subscribers. Heartbeat pongs are routed to the liveness monitor before
// dispatch and never reach message subscribers.
type Dispatcher struct {
	connect    *registry[struct{}]
	disconnect *registry[struct{}]
	message    *registry[domain.Envelope]
	errs       *registry[error]
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		connect:    newRegistry[struct{}](SignalConnect),
		disconnect: newRegistry[struct{}](SignalDisconnect),
		message:    newRegistry[domain.Envelope](SignalMessage),
		errs:       newRegistry[error](SignalError),
	}
}

// OnConnect registers a handler for successful channel opens.
func (d *Dispatcher) OnConnect(name string, fn func()) {
	d.connect.add(name, func(struct{}) { fn() })
}

// OnDisconnect registers a handler for unexpected connection loss.
func (d *Dispatcher) OnDisconnect(name string, fn func()) {
	d.disconnect.add(name, func(struct{}) { fn() })
}

// OnMessage registers a handler for inbound collaboration events.
func (d *Dispatcher) OnMessage(name string, fn func(domain.Envelope)) {
	d.message.add(name, fn)
}

// OnError registers a handler for transport errors and the terminal
// reconnect give-up signal.
func (d *Dispatcher) OnError(name string, fn func(error)) {
	d.errs.add(name, fn)
}

// Off removes the named handler from a signal. Unknown names are a no-op.
func (d *Dispatcher) Off(signal Signal, name string) {
	switch signal {
	case SignalConnect:
		d.connect.remove(name)
	case SignalDisconnect:
		d.disconnect.remove(name)
	case SignalMessage:
		d.message.remove(name)
	case SignalError:
		d.errs.remove(name)
	}
}

func (d *Dispatcher) emitConnect()                    { d.connect.emit(struct{}{}) }
func (d *Dispatcher) emitDisconnect()                 { d.disconnect.emit(struct{}{}) }
func (d *Dispatcher) emitMessage(env domain.Envelope) { d.message.emit(env) }
func (d *Dispatcher) emitError(err error)             { d.errs.emit(err) }
