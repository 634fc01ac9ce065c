package orch

import (
	"encoding/json"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// Join admits the socket sid into req.Room under a fresh connection id and
// announces it to everyone already there. The returned snapshot excludes the joiner.
func (o *Orchestrator) Join(sid core.SessionID, req core.JoinRoom) (core.ExistingUsers, error) {
	if _, _, ok := o.Registry.RoomOf(sid); ok {
		o.Leave(sid)
		log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("left previous room before join")
	}
	user, err := domain.NewUser(req.UserID, req.UserName)
	if err != nil {
		return core.ExistingUsers{}, err
	}
	if o.Limiter != nil && !o.Limiter.Allow(user.ID) {
		return core.ExistingUsers{}, ErrRateLimited
	}
	conn, ok := o.Registry.Signal(sid)
	if !ok {
		return core.ExistingUsers{}, ErrNotInRoom
	}

	room := o.Rooms.GetOrCreate(req.Room)

	meta := domain.NewMember(user, domain.NewConnectionID())
	meta.IsHost = req.IsHost
	meta.IsMuted = req.IsMuted
	adm, err := room.Admit(core.NewMemberSession(meta, conn), func(p domain.Participant) (core.Frame, error) {
		return core.EncodeFrame(core.MsgUserJoined, core.UserJoined{Participant: p})
	})
	if err != nil {
		return core.ExistingUsers{}, err
	}
	o.Registry.UpdateRoom(sid, req.Room, meta.ConnectionID)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(req.Room)).Str("conn_id", string(meta.ConnectionID)).Bool("host", meta.IsHost).Msg("joined")

	o.enforce(room, adm.Announced)

	return core.ExistingUsers{
		You:                  meta.ConnectionID,
		IsHost:               meta.IsHost,
		Users:                adm.Existing,
		TranscriptionEnabled: room.TranscriptionEnabled(),
		Settings:             room.Room().Settings,
	}, nil
}

// Leave is a deliberate exit. A host leaving ends the meeting for everyone.
func (o *Orchestrator) Leave(sid core.SessionID) {
	room, id, err := o.current(sid)
	if err != nil {
		return
	}
	if room.IsHost(id) {
		_ = o.End(sid, nil)
		return
	}
	o.cleanupMembership(sid)
}

// OnDisconnect drops the membership without ending the room, so a host can reconnect.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	o.cleanupMembership(sid)
	o.Registry.Unbind(sid)
}

func (o *Orchestrator) KickBySID(sid core.SessionID) {
	o.cleanupMembership(sid)
	o.Registry.Cancel(sid)
}

func (o *Orchestrator) cleanupMembership(sid core.SessionID) {
	room, id, err := o.current(sid)
	if err != nil {
		return
	}
	o.Registry.RemoveRoom(sid)
	if _, ok := room.RemoveMember(id); !ok {
		return
	}
	o.publish(room, id, core.MsgUserLeft, core.UserLeft{ConnectionID: id})
}

// End ends sid's room. Only the host may do it and only the first call has an effect.
func (o *Orchestrator) End(sid core.SessionID, finalData json.RawMessage) error {
	room, id, err := o.current(sid)
	if err != nil {
		return err
	}
	if !room.IsHost(id) {
		return ErrNotHost
	}
	if !room.End() {
		return nil
	}
	info := room.Room()
	log.Info().Str("module", "orch").Str("room", string(info.Code)).Str("host", info.HostName).Msg("meeting ended")
	o.publish(room, id, core.MsgMeetingEnded, core.MeetingEnded{HostName: info.HostName, FinalData: finalData})
	o.EvictRoom(info.Code)
	return nil
}

// EvictRoom drops every membership in code without announcing departures.
// The room itself stays registered as ended so late joins are rejected.
func (o *Orchestrator) EvictRoom(code domain.RoomCode) {
	room, ok := o.Rooms.GetRoom(code)
	if !ok {
		return
	}
	for _, snap := range o.Registry.MembersOfRoom(code) {
		room.RemoveMember(snap.ConnID)
		o.Registry.RemoveRoom(snap.SID)
	}
}
