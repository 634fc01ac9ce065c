package orch

import (
	"errors"

	"github.com/dkeye/huddle/internal/app"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotInRoom    = errors.New("not in a room")
	ErrNotHost      = errors.New("only the host can do that")
	ErrMutedEntry   = errors.New("muted transcript entries are not relayed")
	ErrUnknownPeer  = errors.New("target is not in this room")
	ErrRateLimited  = errors.New("too many join attempts")
	ErrInvalidEntry = errors.New("invalid transcript entry")
)

// Orchestrator is the room coordination service: admission, roster fan-out and
// opaque relay of negotiation payloads. It never looks inside SDP.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Policy   app.Policy
	Limiter  JoinLimiter
}

type JoinLimiter interface {
	Allow(uid domain.UserID) bool
}

// publish fans frame out to everyone in room except from, kicking members
// the policy gives up on.
func (o *Orchestrator) publish(room core.RoomService, from domain.ConnectionID, kind core.MessageType, payload any) {
	frame, err := core.EncodeFrame(kind, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("type", string(kind)).Msg("encode frame")
		return
	}
	o.enforce(room, room.Broadcast(from, frame))
}

// enforce applies the backpressure policy to members a fan-out could not reach.
func (o *Orchestrator) enforce(room core.RoomService, res core.PublishResult) {
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			if sid, ok := o.Registry.SessionOf(slow.Meta().ConnectionID); ok {
				log.Warn().Str("module", "orch").Str("conn_id", string(slow.Meta().ConnectionID)).Msg("kicking slow member")
				o.KickBySID(sid)
			}
		case app.MarkSlow, app.DropFrame, app.NoAction:
		}
	}
}

func (o *Orchestrator) sendTo(room core.RoomService, to domain.ConnectionID, kind core.MessageType, payload any) error {
	frame, err := core.EncodeFrame(kind, payload)
	if err != nil {
		return err
	}
	return room.SendTo(to, frame)
}

func (o *Orchestrator) current(sid core.SessionID) (core.RoomService, domain.ConnectionID, error) {
	code, id, ok := o.Registry.RoomOf(sid)
	if !ok {
		return nil, "", ErrNotInRoom
	}
	room, ok := o.Rooms.GetRoom(code)
	if !ok {
		return nil, "", ErrNotInRoom
	}
	return room, id, nil
}
