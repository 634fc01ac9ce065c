package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// ErrUnauthorized means the bearer credential was rejected; the caller should
// treat the session as logged out.
var ErrUnauthorized = domain.ErrUnauthorized

type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("resource api: status %d", e.Code)
	}
	return fmt.Sprintf("resource api: status %d: %s", e.Code, e.Message)
}

var _ core.MeetingAPI = (*Client)(nil)

// Client talks to the authenticated resource API.
type Client struct {
	base  string
	token string
	http  *http.Client
}

func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		base:  strings.TrimRight(baseURL, "/"),
		token: token,
		http:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) CreateRoom(ctx context.Context, req CreateRoomRequest) (*CreateRoomResponse, error) {
	var out CreateRoomResponse
	if err := c.do(ctx, http.MethodPost, "/webrtc/create-room", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RoomInfo(ctx context.Context, code domain.RoomCode) (*RoomInfo, error) {
	var out RoomInfo
	if err := c.do(ctx, http.MethodGet, roomPath(code, "info"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) JoinRoom(ctx context.Context, code domain.RoomCode, displayName string) (*JoinResponse, error) {
	var out JoinResponse
	body := map[string]string{"display_name": displayName}
	if err := c.do(ctx, http.MethodPost, "/webrtc/join/"+url.PathEscape(string(code)), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) LeaveRoom(ctx context.Context, code domain.RoomCode) error {
	return c.do(ctx, http.MethodPost, roomPath(code, "leave"), nil, nil)
}

func (c *Client) EndRoom(ctx context.Context, code domain.RoomCode) error {
	return c.do(ctx, http.MethodPost, roomPath(code, "end"), nil, nil)
}

func (c *Client) AppendTranscript(ctx context.Context, code domain.RoomCode, e domain.TranscriptEntry) error {
	body := transcriptSegment{SpeakerName: e.Speaker, Text: e.Text, Confidence: e.Confidence}
	return c.do(ctx, http.MethodPost, roomPath(code, "transcript"), body, nil)
}

func (c *Client) FinalizeTranscript(ctx context.Context, code domain.RoomCode, t domain.FinalTranscript) error {
	return c.do(ctx, http.MethodPost, roomPath(code, "finalize"), t, nil)
}

// UpdateMeeting patches meeting metadata such as title or folder.
func (c *Client) UpdateMeeting(ctx context.Context, meetingID string, update MeetingUpdate) error {
	return c.do(ctx, http.MethodPut, "/meetings/"+url.PathEscape(meetingID), update, nil)
}

func roomPath(code domain.RoomCode, action string) string {
	return "/webrtc/room/" + url.PathEscape(string(code)) + "/" + action
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	log.Debug().Str("module", "api").Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("resource api call")

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusUnprocessableEntity:
		return ErrUnauthorized
	case resp.StatusCode >= 300:
		var msg struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&msg)
		return &StatusError{Code: resp.StatusCode, Message: msg.Error}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
