package core

import (
	"encoding/json"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/pion/webrtc/v4"
)

type MessageType string

const (
	MsgJoinRoom             MessageType = "join-room"
	MsgLeaveRoom            MessageType = "leave-room"
	MsgEndMeeting           MessageType = "end-meeting"
	MsgExistingUsers        MessageType = "existing-users"
	MsgJoinRejected         MessageType = "join-rejected"
	MsgUserJoined           MessageType = "user-joined"
	MsgUserLeft             MessageType = "user-left"
	MsgOffer                MessageType = "offer"
	MsgAnswer               MessageType = "answer"
	MsgICECandidate         MessageType = "ice-candidate"
	MsgMuteStatus           MessageType = "participant-mute-status"
	MsgToggleTranscription  MessageType = "toggle-transcription"
	MsgTranscriptionToggled MessageType = "transcription-toggled"
	MsgTranscriptUpdate     MessageType = "transcript-update"
	MsgMeetingEnded         MessageType = "meeting-ended"
	MsgError                MessageType = "error"
	MsgPing                 MessageType = "ping"
	MsgPong                 MessageType = "pong"

	// MsgDisconnected never crosses the wire; the client channel emits it locally.
	MsgDisconnected MessageType = "disconnected"
)

type JoinRoom struct {
	Room     domain.RoomCode `json:"room"`
	UserID   domain.UserID   `json:"userId"`
	UserName string          `json:"userName"`
	IsHost   bool            `json:"isHost"`
	IsMuted  bool            `json:"isMuted"`
}

type ExistingUsers struct {
	You                  domain.ConnectionID  `json:"you"`
	IsHost               bool                 `json:"isHost"`
	Users                []domain.Participant `json:"users"`
	TranscriptionEnabled bool                 `json:"transcriptionEnabled"`
	Settings             domain.RoomSettings  `json:"settings"`
}

type JoinRejected struct {
	Reason string `json:"reason"`
}

type UserJoined struct {
	domain.Participant
}

type UserLeft struct {
	ConnectionID domain.ConnectionID `json:"connectionId"`
}

// Negotiation carries an offer or an answer. Clients fill Target, the server
// replaces it with Caller on relay.
type Negotiation struct {
	Target domain.ConnectionID       `json:"target,omitempty"`
	Caller domain.ConnectionID       `json:"caller,omitempty"`
	SDP    webrtc.SessionDescription `json:"sdp"`
}

type Candidate struct {
	Target    domain.ConnectionID     `json:"target,omitempty"`
	Caller    domain.ConnectionID     `json:"caller,omitempty"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type MuteStatus struct {
	ConnectionID domain.ConnectionID `json:"connectionId,omitempty"`
	IsMuted      bool                `json:"isMuted"`
}

type TranscriptionFlag struct {
	Enabled bool `json:"enabled"`
}

type TranscriptUpdate struct {
	Caller domain.ConnectionID    `json:"caller,omitempty"`
	Entry  domain.TranscriptEntry `json:"entry"`
}

type MeetingEnded struct {
	HostName  string          `json:"hostName"`
	FinalData json.RawMessage `json:"finalData,omitempty"`
}

type ErrorMessage struct {
	Error string `json:"error"`
}
