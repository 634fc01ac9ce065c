package meeting

import (
	"context"
	"encoding/json"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

func (c *Controller) SetAudio(enabled bool) error {
	return c.do(func() error { return c.setAudio(enabled) })
}

func (c *Controller) SetVideo(enabled bool) error {
	return c.do(func() error { return c.setVideo(enabled) })
}

func (c *Controller) ToggleAudio() error {
	return c.do(func() error { return c.setAudio(!c.media.State().AudioEnabled()) })
}

func (c *Controller) ToggleVideo() error {
	return c.do(func() error { return c.setVideo(!c.media.State().VideoEnabled()) })
}

// SetTranscription asks the room to flip transcription. The local gate moves
// when the server's broadcast comes back, like everyone else's.
func (c *Controller) SetTranscription(enabled bool) error {
	return c.do(func() error {
		if c.state != Connected {
			return ErrNotConnected
		}
		if !c.opts.Identity.IsHost {
			return ErrNotHost
		}
		return outbound{c}.Send(core.MsgToggleTranscription, core.TranscriptionFlag{Enabled: enabled})
	})
}

// Pin pins id, or unpins it when it is already pinned.
func (c *Controller) Pin(id domain.ConnectionID) error {
	return c.do(func() error {
		if !c.roster.Pin(id) {
			return ErrUnknownParticipant
		}
		return nil
	})
}

// Leave exits the meeting. A host leaving ends it for everyone.
func (c *Controller) Leave() error {
	return c.do(func() error {
		if c.opts.Identity.IsHost && c.state == Connected {
			return c.endMeeting()
		}
		c.end(reasonLeave, nil)
		return nil
	})
}

// End ends the meeting for everyone. Host only.
func (c *Controller) End() error {
	return c.do(func() error {
		if !c.opts.Identity.IsHost {
			return ErrNotHost
		}
		return c.endMeeting()
	})
}

func (c *Controller) Snapshot() Snapshot {
	var snap Snapshot
	if err := c.do(func() error { snap = c.snapshot(); return nil }); err != nil {
		c.finalMu.Lock()
		defer c.finalMu.Unlock()
		return c.final
	}
	return snap
}

func (c *Controller) snapshot() Snapshot {
	return Snapshot{
		State:                c.state,
		Local:                c.roster.Local(),
		Participants:         c.roster.Remote(),
		Links:                c.mesh.Len(),
		Media:                c.media.State(),
		Transcription:        c.gate.State(),
		TranscriptionEnabled: c.gate.RoomEnabled(),
		Settings:             c.settings,
		Transcript:           c.transcript.Entries(),
	}
}

// setAudio flips the microphone and tells the room and the gate about the new mute state.
func (c *Controller) setAudio(enabled bool) error {
	if err := c.media.SetEnabled(c.ctx, webrtc.RTPCodecTypeAudio, enabled); err != nil {
		c.report(domain.ScopeMeeting, "", err)
		return err
	}
	muted := !c.media.State().AudioEnabled()
	c.roster.SetMuted(c.roster.Local().ConnectionID, muted)
	if c.state == Connected {
		if err := (outbound{c}).Send(core.MsgMuteStatus, core.MuteStatus{IsMuted: muted}); err != nil {
			log.Warn().Err(err).Str("module", "meeting").Msg("send mute status")
		}
	}
	if err := c.gate.SetMuted(muted); err != nil {
		c.report(domain.ScopeMeeting, "", err)
	}
	return nil
}

func (c *Controller) setVideo(enabled bool) error {
	if err := c.media.SetEnabled(c.ctx, webrtc.RTPCodecTypeVideo, enabled); err != nil {
		c.report(domain.ScopeMeeting, "", err)
		return err
	}
	return nil
}

// endMeeting announces the end with the finalized transcript attached.
func (c *Controller) endMeeting() error {
	if c.state == Connected {
		final, err := json.Marshal(c.transcript.Finalize())
		if err != nil {
			return err
		}
		if err := (outbound{c}).Send(core.MsgEndMeeting, core.MeetingEnded{
			HostName:  c.opts.Identity.UserName,
			FinalData: final,
		}); err != nil {
			log.Warn().Err(err).Str("module", "meeting").Msg("send end-meeting")
		}
	}
	c.end(reasonHostEnd, nil)
	return nil
}

// end tears the meeting down in order and settles with the resource API.
func (c *Controller) end(reason endReason, cause error) {
	if c.state == Ended {
		return
	}
	wasConnected := c.state == Connected
	c.state = Ended
	c.result = cause
	stopTimer(&c.joinTimer)
	stopTimer(&c.retryTimer)

	c.gate.Stop()
	c.mesh.CloseAll()
	c.media.Stop()
	if c.signal != nil && wasConnected && reason == reasonLeave {
		if err := c.signal.Send(core.MsgLeaveRoom, nil); err != nil {
			log.Debug().Err(err).Str("module", "meeting").Msg("send leave-room")
		}
	}
	c.dropSession()
	log.Info().Str("module", "meeting").Str("room", string(c.opts.Room)).Int("transcript", c.transcript.Len()).Msg("meeting ended")

	c.settle(reason)
}

const (
	opAppend   = "append transcript"
	opFinalize = "finalize transcript"
	opEnd      = "end room"
	opLeave    = "leave room"
)

func (c *Controller) settle(reason endReason) {
	api := c.deps.API
	if api == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.APITimeout)
	defer cancel()
	room := c.opts.Room

	if c.opts.Identity.IsHost && c.transcript.Len() > 0 {
		if err := api.FinalizeTranscript(ctx, room, c.transcript.Finalize()); err != nil {
			c.apiError(opFinalize, err)
		}
	}
	switch reason {
	case reasonHostEnd:
		if err := api.EndRoom(ctx, room); err != nil {
			c.apiError(opEnd, err)
		}
	case reasonLeave, reasonFailure:
		if err := api.LeaveRoom(ctx, room); err != nil {
			c.apiError(opLeave, err)
		}
	case reasonRemoteEnd:
	}
}
