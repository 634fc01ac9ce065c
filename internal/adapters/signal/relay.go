package signal

import (
	"github.com/dkeye/huddle/internal/core"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleNegotiation(
	sid core.SessionID,
	conn *WsSignalConn,
	env core.Envelope,
) {
	var p core.Negotiation
	if err := env.Decode(&p); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("type", string(env.Type)).Msg("bad negotiation payload")
		return
	}
	if err := ctl.Orch.RelayNegotiation(sid, env.Type, p); err != nil {
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handleCandidate(
	sid core.SessionID,
	env core.Envelope,
) {
	var p core.Candidate
	if err := env.Decode(&p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad candidate payload")
		return
	}
	if err := ctl.Orch.RelayCandidate(sid, p); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("candidate dropped")
	}
}

func (ctl *SignalWSController) handleMute(
	sid core.SessionID,
	conn *WsSignalConn,
	env core.Envelope,
) {
	var p core.MuteStatus
	if err := env.Decode(&p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad mute payload")
		return
	}
	if err := ctl.Orch.SetMuted(sid, p.IsMuted); err != nil {
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handleToggleTranscription(
	sid core.SessionID,
	conn *WsSignalConn,
	env core.Envelope,
) {
	var p core.TranscriptionFlag
	if err := env.Decode(&p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad transcription payload")
		return
	}
	if err := ctl.Orch.ToggleTranscription(sid, p.Enabled); err != nil {
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handleTranscript(
	sid core.SessionID,
	conn *WsSignalConn,
	env core.Envelope,
) {
	var p core.TranscriptUpdate
	if err := env.Decode(&p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad transcript payload")
		return
	}
	if err := ctl.Orch.PublishTranscript(sid, p.Entry); err != nil {
		ctl.sendError(conn, err)
	}
}
