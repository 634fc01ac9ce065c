package domain

import (
	"strings"
	"time"
)

type RoomCode string

// NormalizeRoomCode makes codes typed by hand comparable: "ab12 " and "AB12" are the same room.
func NormalizeRoomCode(raw string) RoomCode {
	return RoomCode(strings.ToUpper(strings.TrimSpace(raw)))
}

type RoomStatus string

const (
	RoomWaiting RoomStatus = "waiting"
	RoomActive  RoomStatus = "active"
	RoomEnded   RoomStatus = "ended"
)

const DefaultMaxParticipants = 10

type RoomSettings struct {
	AllowRecording    bool `json:"allowRecording"`
	AutoTranscription bool `json:"autoTranscription"`
	MuteOnJoin        bool `json:"muteOnJoin"`
	VideoOnJoin       bool `json:"videoOnJoin"`
	RequireApproval   bool `json:"requireApproval"`
}

func DefaultRoomSettings() RoomSettings {
	return RoomSettings{
		AllowRecording:    true,
		AutoTranscription: true,
		MuteOnJoin:        true,
		VideoOnJoin:       true,
	}
}

type Room struct {
	Code            RoomCode
	Status          RoomStatus
	HostID          UserID
	HostName        string
	MaxParticipants int
	Settings        RoomSettings
	CreatedAt       time.Time
	StartedAt       time.Time
	EndedAt         time.Time
}

func NewRoom(code RoomCode, maxParticipants int, settings RoomSettings) *Room {
	if maxParticipants <= 0 {
		maxParticipants = DefaultMaxParticipants
	}
	return &Room{
		Code:            code,
		Status:          RoomWaiting,
		MaxParticipants: maxParticipants,
		Settings:        settings,
		CreatedAt:       time.Now(),
	}
}

// Activate moves a waiting room to active. It reports whether the status changed.
func (r *Room) Activate() bool {
	if r.Status != RoomWaiting {
		return false
	}
	r.Status = RoomActive
	r.StartedAt = time.Now()
	return true
}

// End transitions the room to ended. Only the first call has an effect.
func (r *Room) End() bool {
	if r.Status == RoomEnded {
		return false
	}
	r.Status = RoomEnded
	r.EndedAt = time.Now()
	return true
}

func (r *Room) Ended() bool { return r.Status == RoomEnded }
