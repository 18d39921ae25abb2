// Package domain defines the core domain types shared across the client.
//
// This package contains concept-oriented files (room.go, events.go, roster.go,
// errors.go) with the wire-format document model and the collaboration event
// taxonomy. No implementation code - just contracts. Cross-cutting interfaces
// live on the consumer side to prevent circular imports.
package domain
