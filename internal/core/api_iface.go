package core

import (
	"context"

	"github.com/dkeye/huddle/internal/domain"
)

// MeetingAPI is the part of the authenticated resource API the meeting core consumes.
type MeetingAPI interface {
	LeaveRoom(ctx context.Context, code domain.RoomCode) error
	EndRoom(ctx context.Context, code domain.RoomCode) error
	AppendTranscript(ctx context.Context, code domain.RoomCode, e domain.TranscriptEntry) error
	FinalizeTranscript(ctx context.Context, code domain.RoomCode, t domain.FinalTranscript) error
}
