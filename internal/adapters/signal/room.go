package signal

import (
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(
	sid core.SessionID,
	conn *WsSignalConn,
	env core.Envelope,
) {
	var p core.JoinRoom
	if err := env.Decode(&p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendJSON(conn, core.MsgJoinRejected, core.JoinRejected{Reason: "bad_payload"})
		return
	}
	p.Room = domain.NormalizeRoomCode(string(p.Room))
	if conn.user != "" {
		p.UserID = conn.user
	}
	if p.Room == "" {
		ctl.sendJSON(conn, core.MsgJoinRejected, core.JoinRejected{Reason: "missing room"})
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(p.Room)).Msg("join")
	snapshot, err := ctl.Orch.Join(sid, p)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("room", string(p.Room)).Msg("join rejected")
		ctl.sendJSON(conn, core.MsgJoinRejected, core.JoinRejected{Reason: err.Error()})
		return
	}
	ctl.sendJSON(conn, core.MsgExistingUsers, snapshot)
}

// handleLeave leaves the current room; the socket stays open.
func (ctl *SignalWSController) handleLeave(sid core.SessionID) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave")
	ctl.Orch.Leave(sid)
}

func (ctl *SignalWSController) handleEnd(
	sid core.SessionID,
	conn *WsSignalConn,
	env core.Envelope,
) {
	var p core.MeetingEnded
	if err := env.Decode(&p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad end payload")
		return
	}
	if err := ctl.Orch.End(sid, p.FinalData); err != nil {
		ctl.sendError(conn, err)
	}
}
