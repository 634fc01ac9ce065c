package meeting

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// startJoin dials a fresh channel and sends the join intent. The answer
// arrives later as existing-users or join-rejected.
func (c *Controller) startJoin() {
	ch := c.deps.Dial()
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.JoinTimeout)
	err := ch.Connect(ctx)
	cancel()
	if err != nil {
		_ = ch.Close()
		c.transportLost(err)
		return
	}
	c.signal = ch
	c.events = ch.Events()
	c.joining = true
	c.early = nil

	id := c.opts.Identity
	id.IsMuted = !c.media.State().AudioEnabled()
	if err := ch.Join(c.opts.Room, id); err != nil {
		c.transportLost(err)
		return
	}
	c.joinTimer = time.NewTimer(c.opts.JoinTimeout)
	log.Info().Str("module", "meeting").Str("room", string(c.opts.Room)).Str("user", id.UserName).Msg("join sent")
}

// transportLost drops everything tied to the current channel and retries the
// join once after the backoff. A second loss in a row ends the meeting.
func (c *Controller) transportLost(cause error) {
	stopTimer(&c.joinTimer)
	c.dropSession()
	if c.retried {
		c.joinFailed(&domain.SignalingError{Op: "reconnect", Err: cause})
		return
	}
	c.retried = true
	c.state = MediaReady
	c.report(domain.ScopeMeeting, "", &domain.SignalingError{Op: "transport", Err: cause})
	log.Warn().Err(cause).Str("module", "meeting").Dur("backoff", c.opts.ReconnectBackoff).Msg("signaling lost, retrying")
	c.retryTimer = time.NewTimer(c.opts.ReconnectBackoff)
}

// dropSession closes every link and the channel. The roster is rebuilt from
// the next snapshot.
func (c *Controller) dropSession() {
	c.mesh.CloseAll()
	c.roster.Reset()
	c.joining = false
	c.early = nil
	if c.signal != nil {
		_ = c.signal.Close()
		c.signal = nil
	}
	c.events = nil
}

func (c *Controller) joinFailed(err error) {
	log.Error().Err(err).Str("module", "meeting").Str("room", string(c.opts.Room)).Msg("join failed")
	c.report(domain.ScopeMeeting, "", err)
	c.end(reasonFailure, err)
}

func (c *Controller) handleSignal(env core.Envelope) {
	if env.Type == core.MsgDisconnected {
		c.transportLost(errors.New("transport disconnected"))
		return
	}
	if c.joining {
		switch env.Type {
		case core.MsgExistingUsers:
			c.onExistingUsers(env)
		case core.MsgJoinRejected:
			var msg core.JoinRejected
			_ = env.Decode(&msg)
			stopTimer(&c.joinTimer)
			c.joinFailed(&domain.SignalingError{Op: "join", Err: errors.New(msg.Reason)})
		case core.MsgMeetingEnded:
			c.onMeetingEnded(env)
		default:
			c.early = append(c.early, env)
		}
		return
	}
	if c.state != Connected {
		return
	}
	if err := c.dispatch(env); err != nil {
		log.Warn().Err(err).Str("module", "meeting").Str("type", string(env.Type)).Msg("bad event")
	}
}

func (c *Controller) dispatch(env core.Envelope) error {
	switch env.Type {
	case core.MsgUserJoined:
		return c.onUserJoined(env)
	case core.MsgUserLeft:
		return c.onUserLeft(env)
	case core.MsgOffer:
		return c.onOffer(env)
	case core.MsgAnswer:
		return c.onAnswer(env)
	case core.MsgICECandidate:
		return c.onCandidate(env)
	case core.MsgMuteStatus:
		return c.onMuteStatus(env)
	case core.MsgTranscriptionToggled:
		return c.onTranscriptionToggled(env)
	case core.MsgTranscriptUpdate:
		return c.onTranscriptUpdate(env)
	case core.MsgMeetingEnded:
		c.onMeetingEnded(env)
	case core.MsgError:
		var msg core.ErrorMessage
		if err := env.Decode(&msg); err != nil {
			return err
		}
		log.Warn().Str("module", "meeting").Str("error", msg.Error).Msg("server error")
		c.report(domain.ScopeMeeting, "", &domain.SignalingError{Op: "server", Err: errors.New(msg.Error)})
	case core.MsgPong:
	default:
		log.Debug().Str("module", "meeting").Str("type", string(env.Type)).Msg("unhandled event")
	}
	return nil
}

func (c *Controller) onExistingUsers(env core.Envelope) {
	var snap core.ExistingUsers
	if err := env.Decode(&snap); err != nil {
		stopTimer(&c.joinTimer)
		c.joinFailed(&domain.SignalingError{Op: "join", Err: err})
		return
	}
	stopTimer(&c.joinTimer)
	c.joining = false
	c.retried = false
	c.state = Connected
	c.settings = snap.Settings
	if c.opts.Identity.IsHost && !snap.IsHost {
		log.Warn().Str("module", "meeting").Str("room", string(c.opts.Room)).Msg("host claim not granted, joining as guest")
	}
	c.opts.Identity.IsHost = snap.IsHost

	c.roster.SetLocal(domain.Participant{
		ConnectionID: snap.You,
		DisplayName:  c.opts.Identity.UserName,
		JoinedAt:     time.Now(),
		IsHost:       c.opts.Identity.IsHost,
		IsMuted:      !c.media.State().AudioEnabled(),
	})
	c.gate.SetSpeaker(snap.You, c.opts.Identity.UserName)
	log.Info().Str("module", "meeting").Str("room", string(c.opts.Room)).Str("conn_id", string(snap.You)).Int("existing", len(snap.Users)).Msg("joined")

	c.applyJoinSettings()

	for _, p := range snap.Users {
		if !c.roster.Add(p) {
			continue
		}
		if err := c.mesh.ConnectTo(p.ConnectionID, p.DisplayName, true); err != nil {
			c.connectFailed(p.ConnectionID, err)
		}
	}
	if err := c.gate.SetRoomEnabled(snap.TranscriptionEnabled); err != nil {
		c.report(domain.ScopeMeeting, "", err)
	}
	if err := c.gate.SetMuted(!c.media.State().AudioEnabled()); err != nil {
		c.report(domain.ScopeMeeting, "", err)
	}

	early := c.early
	c.early = nil
	for _, env := range early {
		c.handleSignal(env)
	}
}

// applyJoinSettings applies the room's join defaults to participants. The host
// keeps whatever it chose.
func (c *Controller) applyJoinSettings() {
	if c.opts.Identity.IsHost {
		return
	}
	st := c.media.State()
	if c.settings.MuteOnJoin && st.AudioEnabled() {
		if err := c.setAudio(false); err != nil {
			log.Warn().Err(err).Str("module", "meeting").Msg("mute on join")
		}
	}
	if !c.settings.VideoOnJoin && st.VideoEnabled() {
		if err := c.setVideo(false); err != nil {
			log.Warn().Err(err).Str("module", "meeting").Msg("video off on join")
		}
	}
}

// connectFailed keeps the roster and the mesh in step when a link cannot be built.
func (c *Controller) connectFailed(id domain.ConnectionID, err error) {
	if _, ok := c.mesh.Link(id); !ok {
		c.roster.Remove(id)
	}
	c.linkError(id, err)
}

func (c *Controller) onUserJoined(env core.Envelope) error {
	var msg core.UserJoined
	if err := env.Decode(&msg); err != nil {
		return err
	}
	p := msg.Participant
	if p.ConnectionID == "" || p.ConnectionID == c.roster.Local().ConnectionID {
		return nil
	}
	c.roster.Add(p)
	log.Info().Str("module", "meeting").Str("conn_id", string(p.ConnectionID)).Str("name", p.DisplayName).Msg("participant joined")
	if err := c.mesh.ConnectTo(p.ConnectionID, p.DisplayName, false); err != nil {
		c.connectFailed(p.ConnectionID, err)
	}
	return nil
}

func (c *Controller) onUserLeft(env core.Envelope) error {
	var msg core.UserLeft
	if err := env.Decode(&msg); err != nil {
		return err
	}
	c.mesh.Teardown(msg.ConnectionID)
	if p, ok := c.roster.Remove(msg.ConnectionID); ok {
		log.Info().Str("module", "meeting").Str("conn_id", string(p.ConnectionID)).Str("name", p.DisplayName).Msg("participant left")
	}
	return nil
}

// onOffer admits an offer from someone the roster has not seen yet; the
// user-joined for them may still be on its way.
func (c *Controller) onOffer(env core.Envelope) error {
	var msg core.Negotiation
	if err := env.Decode(&msg); err != nil {
		return err
	}
	if msg.Caller == "" || msg.SDP.Type != webrtc.SDPTypeOffer {
		return errors.New("malformed offer")
	}
	if msg.Caller == c.roster.Local().ConnectionID {
		return nil
	}
	if !c.roster.Has(msg.Caller) {
		c.roster.Add(domain.Participant{ConnectionID: msg.Caller, JoinedAt: time.Now()})
	}
	p, _ := c.roster.Get(msg.Caller)
	if err := c.mesh.HandleOffer(msg.Caller, p.DisplayName, msg.SDP); err != nil {
		c.connectFailed(msg.Caller, err)
	}
	return nil
}

func (c *Controller) onAnswer(env core.Envelope) error {
	var msg core.Negotiation
	if err := env.Decode(&msg); err != nil {
		return err
	}
	if err := c.mesh.HandleAnswer(msg.Caller, msg.SDP); err != nil {
		c.linkError(msg.Caller, err)
	}
	return nil
}

func (c *Controller) onCandidate(env core.Envelope) error {
	var msg core.Candidate
	if err := env.Decode(&msg); err != nil {
		return err
	}
	c.mesh.HandleICECandidate(msg.Caller, msg.Candidate)
	return nil
}

func (c *Controller) onMuteStatus(env core.Envelope) error {
	var msg core.MuteStatus
	if err := env.Decode(&msg); err != nil {
		return err
	}
	c.roster.SetMuted(msg.ConnectionID, msg.IsMuted)
	return nil
}

func (c *Controller) onTranscriptionToggled(env core.Envelope) error {
	var msg core.TranscriptionFlag
	if err := env.Decode(&msg); err != nil {
		return err
	}
	log.Info().Str("module", "meeting").Bool("enabled", msg.Enabled).Msg("room transcription toggled")
	if err := c.gate.SetRoomEnabled(msg.Enabled); err != nil {
		c.report(domain.ScopeMeeting, "", err)
	}
	return nil
}

func (c *Controller) onTranscriptUpdate(env core.Envelope) error {
	var msg core.TranscriptUpdate
	if err := env.Decode(&msg); err != nil {
		return err
	}
	entry := msg.Entry
	if entry.IsMuted || entry.Text == "" {
		return nil
	}
	if entry.SpeakerID == "" {
		entry.SpeakerID = msg.Caller
	}
	if entry.Speaker == "" {
		if p, ok := c.roster.Get(msg.Caller); ok {
			entry.Speaker = p.DisplayName
		}
	}
	c.transcript.Append(entry)
	return nil
}

func (c *Controller) onMeetingEnded(env core.Envelope) {
	var msg core.MeetingEnded
	_ = env.Decode(&msg)
	log.Info().Str("module", "meeting").Str("room", string(c.opts.Room)).Str("host", msg.HostName).Msg("meeting ended by host")
	stopTimer(&c.joinTimer)
	c.end(reasonRemoteEnd, nil)
}

func (c *Controller) handleRecognition(r recognition) {
	if r.err != nil {
		c.report(domain.ScopeMeeting, "", c.gate.HandleError(r.err))
		return
	}
	entry, ok := c.gate.HandleResult(r.result)
	if !ok {
		return
	}
	c.transcript.Append(entry)
	if c.deps.API == nil || entry.IsMuted {
		return
	}
	go func(api core.MeetingAPI, code domain.RoomCode, e domain.TranscriptEntry, timeout time.Duration) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := api.AppendTranscript(ctx, code, e); err != nil {
			c.postAPIFailure(opAppend, err)
		}
	}(c.deps.API, c.opts.Room, entry, c.opts.APITimeout)
}
