package meeting

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dkeye/huddle/internal/app/media"
	"github.com/dkeye/huddle/internal/app/transcribe"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

func hostOpts() Options {
	return Options{Identity: core.Identity{UserID: "u-host", UserName: "Hana", IsHost: true}, Video: true, Audio: true}
}

func guestOpts() Options {
	return Options{Identity: core.Identity{UserID: "u-guest", UserName: "Gus"}, Video: true, Audio: true}
}

func TestJoinEmptyRoomHasNoLinks(t *testing.T) {
	r := newRig(t, hostOpts())
	r.start(t)

	r.joined(t, 0, "x", core.ExistingUsers{})
	s := r.c.Snapshot()
	require.Equal(t, Connected, s.State)
	require.Empty(t, s.Participants)
	require.Zero(t, s.Links)
	require.Equal(t, "Hana", s.Local.DisplayName)
}

func TestJoinerInitiatesTowardExistingParticipants(t *testing.T) {
	r := newRig(t, guestOpts())
	r.start(t)

	ch := r.joined(t, 0, "y", core.ExistingUsers{Users: []domain.Participant{participant("x", "Xena")}})
	s := r.c.Snapshot()
	require.Equal(t, 1, s.Links)
	require.Len(t, s.Participants, 1)

	offers := ch.sentOf(core.MsgOffer)
	require.Len(t, offers, 1)
	var msg core.Negotiation
	require.NoError(t, offers[0].Decode(&msg))
	require.Equal(t, domain.ConnectionID("x"), msg.Target)
}

func TestExistingSideIsReceiverForLateJoiner(t *testing.T) {
	r := newRig(t, hostOpts())
	r.start(t)
	ch := r.joined(t, 0, "x", core.ExistingUsers{})

	ch.push(t, core.MsgUserJoined, core.UserJoined{Participant: participant("y", "Yuri")})
	s := r.waitFor(t, func(s Snapshot) bool { return s.Links == 1 })
	require.Len(t, s.Participants, 1)
	require.Empty(t, ch.sentOf(core.MsgOffer))

	ch.push(t, core.MsgOffer, core.Negotiation{Caller: "y", SDP: webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "o"}})
	require.Eventually(t, func() bool { return len(ch.sentOf(core.MsgAnswer)) == 1 }, 2*time.Second, 5*time.Millisecond)

	ch.push(t, core.MsgUserLeft, core.UserLeft{ConnectionID: "y"})
	s = r.waitFor(t, func(s Snapshot) bool { return s.Links == 0 })
	require.Empty(t, s.Participants)
	_, _, closed := r.peers.get("y").stats()
	require.True(t, closed)
}

func TestOfferFromUnknownPeerKeepsRosterAndLinksInStep(t *testing.T) {
	r := newRig(t, hostOpts())
	r.start(t)
	ch := r.joined(t, 0, "x", core.ExistingUsers{})

	ch.push(t, core.MsgOffer, core.Negotiation{Caller: "z", SDP: webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "o"}})
	s := r.waitFor(t, func(s Snapshot) bool { return s.Links == 1 })
	require.Len(t, s.Participants, 1)

	ch.push(t, core.MsgUserJoined, core.UserJoined{Participant: participant("z", "Zoe")})
	s = r.waitFor(t, func(s Snapshot) bool { return len(s.Participants) == 1 && s.Participants[0].DisplayName == "Zoe" })
	require.Equal(t, 1, s.Links)
}

func TestEnablingVideoRenegotiatesEachLinkOnce(t *testing.T) {
	opts := guestOpts()
	opts.Video = false
	r := newRig(t, opts)
	r.start(t)

	ch := r.joined(t, 0, "me", core.ExistingUsers{Users: []domain.Participant{participant("a", "Ann"), participant("b", "Bob")}})
	for _, id := range []string{"a", "b"} {
		ch.push(t, core.MsgAnswer, core.Negotiation{Caller: domain.ConnectionID(id), SDP: webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "a"}})
	}
	require.Eventually(t, func() bool {
		return r.peers.get("a").SignalingState() == webrtc.SignalingStateStable &&
			r.peers.get("b").SignalingState() == webrtc.SignalingStateStable
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, r.c.SetVideo(true))

	s := r.c.Snapshot()
	require.Equal(t, media.Live, s.Media.Video)
	for _, id := range []domain.ConnectionID{"a", "b"} {
		offers, tracks, _ := r.peers.get(id).stats()
		require.Equal(t, 2, offers, "one initial offer plus one renegotiation")
		require.Equal(t, 2, tracks)
	}
	require.Len(t, ch.sentOf(core.MsgOffer), 4)
}

func TestMuteSuppressesTranscription(t *testing.T) {
	r := newRig(t, hostOpts())
	r.start(t)
	ch := r.joined(t, 0, "x", core.ExistingUsers{TranscriptionEnabled: true})
	require.Equal(t, transcribe.Listening, r.c.Snapshot().Transcription)

	r.rec.say("before mute")
	require.Eventually(t, func() bool { return len(ch.sentOf(core.MsgTranscriptUpdate)) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, r.c.SetAudio(false))
	s := r.c.Snapshot()
	require.Equal(t, transcribe.Suppressed, s.Transcription)
	require.Equal(t, media.Muted, s.Media.Audio)
	require.False(t, r.rec.isRunning())
	require.Len(t, ch.sentOf(core.MsgMuteStatus), 1)

	r.rec.say("while muted")
	time.Sleep(20 * time.Millisecond)
	s = r.c.Snapshot()
	require.Len(t, s.Transcript, 1)
	require.Len(t, ch.sentOf(core.MsgTranscriptUpdate), 1)

	require.NoError(t, r.c.ToggleAudio())
	require.Equal(t, transcribe.Listening, r.c.Snapshot().Transcription)
}

func TestTranscriptionToggleFollowsRoomBroadcast(t *testing.T) {
	r := newRig(t, hostOpts())
	r.start(t)
	ch := r.joined(t, 0, "x", core.ExistingUsers{})

	require.NoError(t, r.c.SetTranscription(true))
	require.Len(t, ch.sentOf(core.MsgToggleTranscription), 1)
	require.Equal(t, transcribe.Idle, r.c.Snapshot().Transcription)

	ch.push(t, core.MsgTranscriptionToggled, core.TranscriptionFlag{Enabled: true})
	r.waitFor(t, func(s Snapshot) bool { return s.Transcription == transcribe.Listening })
}

func TestGuestCannotToggleTranscriptionOrEnd(t *testing.T) {
	r := newRig(t, guestOpts())
	r.start(t)
	r.joined(t, 0, "g", core.ExistingUsers{})

	require.ErrorIs(t, r.c.SetTranscription(true), ErrNotHost)
	require.ErrorIs(t, r.c.End(), ErrNotHost)
}

func TestHostEndedMeetingEndsParticipant(t *testing.T) {
	r := newRig(t, guestOpts())
	r.start(t)
	ch := r.joined(t, 0, "g", core.ExistingUsers{Users: []domain.Participant{participant("h", "Hana")}})

	ch.push(t, core.MsgMeetingEnded, core.MeetingEnded{HostName: "Hana"})
	require.NoError(t, r.wait(t))

	s := r.c.Snapshot()
	require.Equal(t, Ended, s.State)
	require.Zero(t, s.Links)
	for _, tr := range r.capt.tracks() {
		require.True(t, tr.isClosed())
	}
	_, _, closed := r.peers.get("h").stats()
	require.True(t, closed)
	require.True(t, ch.isClosed())
	require.Empty(t, ch.sentOf(core.MsgEndMeeting))
	require.Empty(t, r.api.snapshot(), "no end or leave request after a remote end")

	_, open := <-r.c.Reports()
	require.False(t, open)
}

func TestHostEndPersistsTranscriptThenEnds(t *testing.T) {
	r := newRig(t, hostOpts())
	r.start(t)
	ch := r.joined(t, 0, "h", core.ExistingUsers{Users: []domain.Participant{participant("g", "Gus")}})

	entry := domain.NewTranscriptEntry("g", "Gus", "hello there", 0.9, false)
	ch.push(t, core.MsgTranscriptUpdate, core.TranscriptUpdate{Caller: "g", Entry: entry})
	r.waitFor(t, func(s Snapshot) bool { return len(s.Transcript) == 1 })

	require.NoError(t, r.c.End())
	require.NoError(t, r.wait(t))

	ends := ch.sentOf(core.MsgEndMeeting)
	require.Len(t, ends, 1)
	var msg core.MeetingEnded
	require.NoError(t, ends[0].Decode(&msg))
	require.Equal(t, "Hana", msg.HostName)
	require.Contains(t, string(msg.FinalData), "hello there")

	require.Equal(t, []string{"finalize", "end"}, r.api.snapshot())
	require.Equal(t, []string{"Gus"}, r.api.finalized.Speakers)
	require.Contains(t, r.api.finalized.Transcript, "Gus (")
}

func TestGuestLeaveCallsLeave(t *testing.T) {
	r := newRig(t, guestOpts())
	r.start(t)
	ch := r.joined(t, 0, "g", core.ExistingUsers{})

	require.NoError(t, r.c.Leave())
	require.NoError(t, r.wait(t))
	require.Len(t, ch.sentOf(core.MsgLeaveRoom), 1)
	require.Equal(t, []string{"leave"}, r.api.snapshot())
	require.ErrorIs(t, r.c.Leave(), ErrMeetingOver)
}

func TestRefusedHostClaimActsAsGuest(t *testing.T) {
	r := newRig(t, hostOpts())
	r.start(t)
	require.Eventually(t, func() bool {
		return r.dialer.count() > 0 && len(r.dialer.channel(0).sentOf(core.MsgJoinRoom)) == 1
	}, 2*time.Second, 5*time.Millisecond)
	ch := r.dialer.channel(0)
	ch.push(t, core.MsgExistingUsers, core.ExistingUsers{You: "h2", Users: []domain.Participant{participant("h", "Hana")}})
	s := r.waitFor(t, func(s Snapshot) bool { return s.State == Connected })
	require.False(t, s.Local.IsHost)

	ch.push(t, core.MsgTranscriptUpdate, core.TranscriptUpdate{Caller: "h", Entry: domain.NewTranscriptEntry("h", "Hana", "welcome", 1, false)})
	r.waitFor(t, func(s Snapshot) bool { return len(s.Transcript) == 1 })

	require.ErrorIs(t, r.c.SetTranscription(false), ErrNotHost)
	require.ErrorIs(t, r.c.End(), ErrNotHost)
	require.NoError(t, r.c.Leave())
	require.NoError(t, r.wait(t))

	require.Empty(t, ch.sentOf(core.MsgEndMeeting))
	require.Len(t, ch.sentOf(core.MsgLeaveRoom), 1)
	require.Equal(t, []string{"leave"}, r.api.snapshot())
	require.Nil(t, r.api.finalized)
}

func TestRejectedCredentialIsReportedAsLoggedOut(t *testing.T) {
	r := newRig(t, hostOpts())
	r.start(t)
	r.joined(t, 0, "h", core.ExistingUsers{TranscriptionEnabled: true})
	r.api.fail(fmt.Errorf("append: %w", domain.ErrUnauthorized))

	r.rec.say("anyone there")
	var rep domain.Report
	select {
	case rep = <-r.c.Reports():
	case <-time.After(2 * time.Second):
		t.Fatal("no report for rejected append")
	}
	require.Equal(t, domain.ScopeMeeting, rep.Scope)
	var auth *domain.AuthError
	require.ErrorAs(t, rep.Err, &auth)
	require.Equal(t, "append transcript", auth.Op)

	require.NoError(t, r.c.End())
	require.NoError(t, r.wait(t))
	var ops []string
	for rep := range r.c.Reports() {
		if errors.As(rep.Err, &auth) {
			ops = append(ops, auth.Op)
		}
	}
	require.Equal(t, []string{"finalize transcript", "end room"}, ops)
}

func TestOtherAppendFailuresAreOnlyLogged(t *testing.T) {
	r := newRig(t, guestOpts())
	r.start(t)
	r.joined(t, 0, "g", core.ExistingUsers{TranscriptionEnabled: true})
	r.api.fail(errors.New("503"))

	r.rec.say("hello")
	r.waitFor(t, func(s Snapshot) bool { return len(s.Transcript) == 1 })
	require.Eventually(t, func() bool {
		r.api.mu.Lock()
		defer r.api.mu.Unlock()
		return len(r.api.appended) == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, r.c.Leave())
	require.NoError(t, r.wait(t))
	var errs []error
	for rep := range r.c.Reports() {
		errs = append(errs, rep.Err)
	}
	require.Len(t, errs, 1, "only the failed leave is reported")
	require.NotErrorIs(t, errs[0], domain.ErrUnauthorized)
}

func TestMutedEntriesFromOthersAreNotRecorded(t *testing.T) {
	r := newRig(t, hostOpts())
	r.start(t)
	ch := r.joined(t, 0, "h", core.ExistingUsers{})

	ch.push(t, core.MsgTranscriptUpdate, core.TranscriptUpdate{Caller: "g", Entry: domain.NewTranscriptEntry("g", "Gus", "psst", 1, true)})
	ch.push(t, core.MsgTranscriptUpdate, core.TranscriptUpdate{Caller: "g", Entry: domain.NewTranscriptEntry("g", "Gus", "hi", 1, false)})
	s := r.waitFor(t, func(s Snapshot) bool { return len(s.Transcript) >= 1 })
	require.Len(t, s.Transcript, 1)
	require.Equal(t, "hi", s.Transcript[0].Text)
}

func TestDeviceFailureIsFatal(t *testing.T) {
	r := newRig(t, guestOpts())
	r.capt.err = errors.New("permission denied")
	r.start(t)

	err := r.wait(t)
	require.ErrorIs(t, err, domain.ErrDevice)
	require.Zero(t, r.dialer.count(), "no signaling without media")

	rep, ok := <-r.c.Reports()
	require.True(t, ok)
	require.Equal(t, domain.ScopeMeeting, rep.Scope)
}

func TestJoinRejectedIsFatal(t *testing.T) {
	r := newRig(t, guestOpts())
	r.start(t)
	require.Eventually(t, func() bool { return r.dialer.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	r.dialer.channel(0).push(t, core.MsgJoinRejected, core.JoinRejected{Reason: "room is full"})
	err := r.wait(t)
	require.ErrorIs(t, err, domain.ErrSignaling)
	require.Contains(t, err.Error(), "room is full")
}

func TestJoinTimeoutIsFatal(t *testing.T) {
	opts := guestOpts()
	opts.JoinTimeout = 30 * time.Millisecond
	r := newRig(t, opts)
	r.start(t)

	err := r.wait(t)
	require.ErrorIs(t, err, domain.ErrSignaling)
	require.ErrorIs(t, err, ErrJoinTimeout)
}

func TestConnectRetriedOnceThenFatal(t *testing.T) {
	r := newRig(t, guestOpts())
	r.dialer.failures = 2
	r.start(t)

	err := r.wait(t)
	require.ErrorIs(t, err, domain.ErrSignaling)
	require.Equal(t, 2, r.dialer.count())
}

func TestDisconnectRejoinsFromScratch(t *testing.T) {
	r := newRig(t, guestOpts())
	r.start(t)
	first := r.joined(t, 0, "g1", core.ExistingUsers{Users: []domain.Participant{participant("a", "Ann")}})

	first.push(t, core.MsgDisconnected, nil)
	second := r.joined(t, 1, "g2", core.ExistingUsers{Users: []domain.Participant{participant("b", "Bob")}})

	require.True(t, first.isClosed())
	s := r.c.Snapshot()
	require.Equal(t, 1, s.Links)
	require.Equal(t, domain.ConnectionID("b"), s.Participants[0].ConnectionID)
	_, _, closed := r.peers.get("a").stats()
	require.True(t, closed)
	require.Len(t, second.sentOf(core.MsgOffer), 1)

	second.push(t, core.MsgDisconnected, nil)
	r.joined(t, 2, "g3", core.ExistingUsers{})
}

func TestLinkFailureIsReportedPerParticipant(t *testing.T) {
	r := newRig(t, guestOpts())
	r.start(t)
	r.joined(t, 0, "g", core.ExistingUsers{Users: []domain.Participant{participant("a", "Ann"), participant("b", "Bob")}})

	r.peers.get("a").fire(webrtc.PeerConnectionStateFailed)

	select {
	case rep := <-r.c.Reports():
		require.Equal(t, domain.ScopeParticipant, rep.Scope)
		require.Equal(t, domain.ConnectionID("a"), rep.Peer)
		require.ErrorIs(t, rep.Err, domain.ErrLinkFailure)
	case <-time.After(2 * time.Second):
		t.Fatal("no report")
	}
	require.Equal(t, 2, r.c.Snapshot().Links)
}

func TestMuteOnJoinAppliesToGuests(t *testing.T) {
	r := newRig(t, guestOpts())
	r.start(t)
	ch := r.joined(t, 0, "g", core.ExistingUsers{Settings: domain.RoomSettings{MuteOnJoin: true, VideoOnJoin: false}})

	s := r.c.Snapshot()
	require.Equal(t, media.Muted, s.Media.Audio)
	require.Equal(t, media.Muted, s.Media.Video)
	require.True(t, s.Local.IsMuted)
	require.Len(t, ch.sentOf(core.MsgMuteStatus), 1)
}

func TestPinTogglesParticipant(t *testing.T) {
	r := newRig(t, guestOpts())
	r.start(t)
	r.joined(t, 0, "g", core.ExistingUsers{Users: []domain.Participant{participant("a", "Ann")}})

	require.NoError(t, r.c.Pin("a"))
	require.True(t, r.c.Snapshot().Participants[0].IsPinned)
	require.ErrorIs(t, r.c.Pin("nobody"), ErrUnknownParticipant)
}

func TestContextCancelLeaves(t *testing.T) {
	r := newRig(t, guestOpts())
	r.start(t)
	r.joined(t, 0, "g", core.ExistingUsers{})

	r.cancel()
	require.NoError(t, r.wait(t))
	require.Equal(t, []string{"leave"}, r.api.snapshot())
}
