package core

import (
	"errors"

	"github.com/dkeye/huddle/internal/domain"
)

var (
	ErrRoomFull  = errors.New("room is full")
	ErrRoomEnded = errors.New("meeting has ended")
	ErrNoMember  = errors.New("no such member")
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// Announce renders the frame existing members receive for a newcomer.
type Announce func(newcomer domain.Participant) (Frame, error)

type Admission struct {
	Existing  []domain.Participant
	Announced PublishResult
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	MembersSnapshot() []domain.Participant
	Member(id domain.ConnectionID) (MemberSession, bool)

	// Admit inserts ms, snapshots the members already present and sends them
	// announce, all under one lock. Two concurrent joiners therefore see each
	// other exactly once: in the snapshot or through the announcement.
	Admit(ms MemberSession, announce Announce) (Admission, error)
	RemoveMember(id domain.ConnectionID) (MemberSession, bool)
	SetMuted(id domain.ConnectionID, muted bool) bool

	IsHost(id domain.ConnectionID) bool
	TranscriptionEnabled() bool
	SetTranscription(enabled bool)
	End() bool

	Broadcast(from domain.ConnectionID, data Frame) PublishResult
	SendTo(to domain.ConnectionID, data Frame) error
}

type RoomInfo struct {
	Code            domain.RoomCode   `json:"roomId"`
	Status          domain.RoomStatus `json:"status"`
	HostName        string            `json:"hostName"`
	MemberCount     int               `json:"participantCount"`
	MaxParticipants int               `json:"maxParticipants"`
}

type RoomManager interface {
	GetOrCreate(code domain.RoomCode) RoomService
	GetRoom(code domain.RoomCode) (RoomService, bool)
	List() []RoomInfo
}
