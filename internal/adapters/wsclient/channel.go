package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("channel closed")
	ErrNotConnected = errors.New("channel not connected")
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 64
	eventQueue = 256
)

// Channel is a single-use client connection to the coordination server.
// After a disconnect a fresh Channel is dialed.
type Channel struct {
	url    string
	header http.Header
	dialer *websocket.Dialer

	conn    *websocket.Conn
	send    chan core.Frame
	events  chan core.Envelope
	done    chan struct{}
	flushed chan struct{}

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// New prepares a channel to url. A non-empty token is sent as a bearer header.
func New(url, token string) *Channel {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return &Channel{
		url:     url,
		header:  header,
		dialer:  websocket.DefaultDialer,
		send:    make(chan core.Frame, sendBuffer),
		events:  make(chan core.Envelope, eventQueue),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
	}
}

func (c *Channel) Connect(ctx context.Context) error {
	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		if resp != nil {
			log.Warn().Str("module", "wsclient").Int("status", resp.StatusCode).Str("url", c.url).Msg("dial rejected")
		}
		return &domain.SignalingError{Op: "connect", Err: err}
	}
	c.conn = conn
	log.Info().Str("module", "wsclient").Str("url", c.url).Msg("connected")
	go c.writePump()
	go c.readPump()
	return nil
}

func (c *Channel) Join(room domain.RoomCode, id core.Identity) error {
	return c.Send(core.MsgJoinRoom, core.JoinRoom{
		Room:     room,
		UserID:   id.UserID,
		UserName: id.UserName,
		IsHost:   id.IsHost,
		IsMuted:  id.IsMuted,
	})
}

// Send queues one event without blocking.
func (c *Channel) Send(kind core.MessageType, payload any) error {
	frame, err := core.EncodeFrame(kind, payload)
	if err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	if c.conn == nil {
		return ErrNotConnected
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrBackpressure
	}
}

// Events yields inbound envelopes in arrival order. A transport drop adds a
// single MsgDisconnected; a local Close adds nothing. The stream is closed
// once the reader exits.
func (c *Channel) Events() <-chan core.Envelope { return c.events }

// Close stops accepting events, flushes what is already queued and closes
// the transport. It is idempotent.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.done)
		c.mu.Unlock()
		if c.conn == nil {
			close(c.events)
			return
		}
		select {
		case <-c.flushed:
		case <-time.After(writeWait):
			_ = c.conn.Close()
		}
		log.Info().Str("module", "wsclient").Msg("closed")
	})
	return nil
}

func (c *Channel) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Channel) writePump() {
	defer close(c.flushed)
	for {
		select {
		case <-c.done:
			c.drain()
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			_ = c.conn.Close()
			return
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				log.Warn().Err(err).Str("module", "wsclient").Msg("writePump write error")
				_ = c.conn.Close()
				return
			}
		}
	}
}

// drain writes frames queued before Close.
func (c *Channel) drain() {
	for {
		select {
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Channel) write(frame core.Frame) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Channel) readPump() {
	defer close(c.events)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.isClosed() {
				log.Warn().Err(err).Str("module", "wsclient").Msg("transport dropped")
				c.emit(core.Envelope{Type: core.MsgDisconnected})
			}
			return
		}
		var env core.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn().Err(err).Str("module", "wsclient").Msg("bad json")
			continue
		}
		if !c.emit(env) {
			return
		}
	}
}

func (c *Channel) emit(env core.Envelope) bool {
	select {
	case c.events <- env:
		return true
	case <-c.done:
		return false
	}
}
