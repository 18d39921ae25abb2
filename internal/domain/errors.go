package domain

import "errors"

var (
	ErrNotConnected       = errors.New("channel not connected")
	ErrUnknownEventKind   = errors.New("unknown event kind")
	ErrRoomMismatch       = errors.New("event room does not match channel room")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrRoomNotLoaded      = errors.New("room not loaded")
)
