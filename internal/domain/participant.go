package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConnectionID keys roster entries, peer links and signaling messages.
// A rejoin always gets a new one.
type ConnectionID string

func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}

// Participant represents one party in a room as seen by a single client.
type Participant struct {
	ConnectionID ConnectionID `json:"connectionId"`
	DisplayName  string       `json:"userName"`
	JoinedAt     time.Time    `json:"joinedAt"`
	IsHost       bool         `json:"isHost"`
	IsMuted      bool         `json:"isMuted"`
	IsPinned     bool         `json:"-"`
}
