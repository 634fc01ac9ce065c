package orch

import (
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// RelayNegotiation forwards an offer or answer to its target, stamping the caller.
func (o *Orchestrator) RelayNegotiation(sid core.SessionID, kind core.MessageType, msg core.Negotiation) error {
	room, id, err := o.current(sid)
	if err != nil {
		return err
	}
	target := msg.Target
	msg.Target = ""
	msg.Caller = id
	if err := o.sendTo(room, target, kind, msg); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("type", string(kind)).Str("from", string(id)).Str("to", string(target)).Msg("relay failed")
		return ErrUnknownPeer
	}
	return nil
}

func (o *Orchestrator) RelayCandidate(sid core.SessionID, msg core.Candidate) error {
	room, id, err := o.current(sid)
	if err != nil {
		return err
	}
	target := msg.Target
	msg.Target = ""
	msg.Caller = id
	if err := o.sendTo(room, target, core.MsgICECandidate, msg); err != nil {
		return ErrUnknownPeer
	}
	return nil
}

func (o *Orchestrator) SetMuted(sid core.SessionID, muted bool) error {
	room, id, err := o.current(sid)
	if err != nil {
		return err
	}
	room.SetMuted(id, muted)
	o.publish(room, id, core.MsgMuteStatus, core.MuteStatus{ConnectionID: id, IsMuted: muted})
	return nil
}

// ToggleTranscription flips the room-wide flag. Every member, the host
// included, gets the new value and recomputes its own gate.
func (o *Orchestrator) ToggleTranscription(sid core.SessionID, enabled bool) error {
	room, id, err := o.current(sid)
	if err != nil {
		return err
	}
	if !room.IsHost(id) {
		return ErrNotHost
	}
	room.SetTranscription(enabled)
	o.publish(room, "", core.MsgTranscriptionToggled, core.TranscriptionFlag{Enabled: enabled})
	return nil
}

func (o *Orchestrator) PublishTranscript(sid core.SessionID, entry domain.TranscriptEntry) error {
	room, id, err := o.current(sid)
	if err != nil {
		return err
	}
	if entry.IsMuted {
		return ErrMutedEntry
	}
	if entry.Text == "" {
		return ErrInvalidEntry
	}
	if !room.TranscriptionEnabled() {
		return nil
	}
	o.publish(room, id, core.MsgTranscriptUpdate, core.TranscriptUpdate{Caller: id, Entry: entry})
	return nil
}
