package domain

import (
	"fmt"
	"time"
)

// Participant is one user within a room. IDs are opaque strings generated
// locally at join time; the client does not assume global uniqueness.
type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Online      bool   `json:"online"`
}

// NewParticipantID derives a locally unique actor ID from a chosen display
// name, the same way the web client does it.
func NewParticipantID(displayName string, now time.Time) string {
	return fmt.Sprintf("%s_%d", displayName, now.UnixMilli())
}
