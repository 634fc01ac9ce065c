package api

import "github.com/dkeye/huddle/internal/domain"

type CreateRoomRequest struct {
	Title             string `json:"title,omitempty"`
	Description       string `json:"description,omitempty"`
	Language          string `json:"language,omitempty"`
	FolderID          string `json:"folder_id,omitempty"`
	MaxParticipants   int    `json:"max_participants,omitempty"`
	AllowRecording    bool   `json:"allow_recording"`
	AutoTranscription bool   `json:"auto_transcription"`
	MuteOnJoin        bool   `json:"mute_on_join"`
	VideoOnJoin       bool   `json:"video_on_join"`
	RequireApproval   bool   `json:"require_approval"`
}

// NewCreateRoomRequest mirrors the room defaults.
func NewCreateRoomRequest(title string, s domain.RoomSettings) CreateRoomRequest {
	return CreateRoomRequest{
		Title:             title,
		MaxParticipants:   domain.DefaultMaxParticipants,
		AllowRecording:    s.AllowRecording,
		AutoTranscription: s.AutoTranscription,
		MuteOnJoin:        s.MuteOnJoin,
		VideoOnJoin:       s.VideoOnJoin,
		RequireApproval:   s.RequireApproval,
	}
}

type MeetingSettings struct {
	AllowRecording    bool `json:"allow_recording"`
	AutoTranscription bool `json:"auto_transcription"`
	ParticipantLimit  int  `json:"participant_limit"`
	RequireApproval   bool `json:"require_approval"`
	MuteOnJoin        bool `json:"mute_on_join"`
	VideoOnJoin       bool `json:"video_on_join"`
}

func (s MeetingSettings) Room() domain.RoomSettings {
	return domain.RoomSettings{
		AllowRecording:    s.AllowRecording,
		AutoTranscription: s.AutoTranscription,
		MuteOnJoin:        s.MuteOnJoin,
		VideoOnJoin:       s.VideoOnJoin,
		RequireApproval:   s.RequireApproval,
	}
}

type Meeting struct {
	ID       string          `json:"id"`
	RoomID   domain.RoomCode `json:"room_id"`
	HostID   string          `json:"host_id"`
	HostName string          `json:"host_name"`
	Title    string          `json:"title"`
	Status   string          `json:"status"`
	Settings MeetingSettings `json:"settings"`
}

type CreateRoomResponse struct {
	Meeting Meeting         `json:"meeting"`
	RoomID  domain.RoomCode `json:"room_id"`
	JoinURL string          `json:"join_url"`
}

type RoomInfo struct {
	RoomID           domain.RoomCode `json:"room_id"`
	Title            string          `json:"title"`
	HostName         string          `json:"host_name"`
	Status           string          `json:"status"`
	ParticipantCount int             `json:"participant_count"`
	MaxParticipants  int             `json:"max_participants"`
}

type JoinedParticipant struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

type JoinResponse struct {
	Meeting     Meeting           `json:"meeting"`
	Participant JoinedParticipant `json:"participant"`
	IsHost      bool              `json:"is_host"`
}

type MeetingUpdate struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	FolderID    string `json:"folder_id,omitempty"`
}

type transcriptSegment struct {
	SpeakerName string  `json:"speaker_name"`
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
}
