// Package realtime is the synchronization core: one websocket channel per
// (room, participant) with reconnect and capped exponential backoff, a
// heartbeat monitor that detects silently dead connections, and a typed
// dispatcher fanning inbound events out to subscribers.
//
// The channel guarantees at most one live transport at a time. Tearing a
// transport down always detaches its goroutines (by bumping a generation
// counter) before closing, so an intentional close can never be mistaken for
// a failure and trigger a reconnect.
package realtime
