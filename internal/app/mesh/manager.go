package mesh

import (
	"errors"
	"fmt"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Sender is the outbound half of the signaling channel.
type Sender interface {
	Send(kind core.MessageType, payload any) error
}

// Manager keeps exactly one Link per remote participant. Like the rest of the
// meeting core it runs on the meeting loop only; native callbacks reach it
// through post and HandleLinkEvent.
type Manager struct {
	factory core.PeerFactory
	signal  Sender
	tracks  func() []webrtc.TrackLocal
	post    func(Event)
	links   map[domain.ConnectionID]*Link
}

func NewManager(factory core.PeerFactory, signal Sender, tracks func() []webrtc.TrackLocal, post func(Event)) *Manager {
	return &Manager{
		factory: factory,
		signal:  signal,
		tracks:  tracks,
		post:    post,
		links:   make(map[domain.ConnectionID]*Link),
	}
}

func (m *Manager) Len() int { return len(m.links) }

func (m *Manager) Link(id domain.ConnectionID) (*Link, bool) {
	l, ok := m.links[id]
	return l, ok
}

func (m *Manager) Peers() []domain.ConnectionID {
	out := make([]domain.ConnectionID, 0, len(m.links))
	for id := range m.links {
		out = append(out, id)
	}
	return out
}

// ConnectTo creates the link to id with the current local tracks attached.
// A second call for the same id is ignored. The initiator sends the first offer.
func (m *Manager) ConnectTo(id domain.ConnectionID, name string, initiator bool) error {
	if _, ok := m.links[id]; ok {
		log.Debug().Str("module", "mesh").Str("peer", string(id)).Msg("link exists, connect ignored")
		return nil
	}
	pc, err := m.factory.NewPeer(id)
	if err != nil {
		return &domain.LinkFailure{Peer: id, Name: name, State: "new", Err: err}
	}
	l := &Link{Peer: id, Name: name, Initiator: initiator, pc: pc, state: webrtc.PeerConnectionStateNew}
	m.wire(l)
	m.links[id] = l

	for _, t := range m.tracks() {
		if err := pc.AddLocalTrack(t); err != nil {
			log.Warn().Err(err).Str("module", "mesh").Str("peer", string(id)).Str("track", t.ID()).Msg("attach track")
			continue
		}
		l.attached = append(l.attached, t)
	}
	log.Info().Str("module", "mesh").Str("peer", string(id)).Str("name", name).Bool("initiator", initiator).Int("tracks", len(l.attached)).Msg("link created")

	if initiator {
		return m.offer(l)
	}
	return nil
}

func (m *Manager) wire(l *Link) {
	l.pc.OnICECandidate(func(c webrtc.ICECandidateInit) {
		m.post(Event{Kind: EventICECandidate, Peer: l.Peer, Candidate: c, link: l})
	})
	l.pc.OnStateChange(func(s webrtc.PeerConnectionState) {
		m.post(Event{Kind: EventStateChange, Peer: l.Peer, State: s, link: l})
	})
	l.pc.OnTrack(func(t core.RemoteTrack) {
		m.post(Event{Kind: EventTrack, Peer: l.Peer, Track: t, link: l})
	})
}

// offer starts an offer cycle, or marks one pending while the link is mid-negotiation.
func (m *Manager) offer(l *Link) error {
	if st := l.pc.SignalingState(); st != webrtc.SignalingStateStable {
		l.pending = true
		log.Debug().Str("module", "mesh").Str("peer", string(l.Peer)).Str("state", st.String()).Msg("offer deferred")
		return nil
	}
	l.pending = false
	sdp, err := l.pc.CreateOffer()
	if err != nil {
		return l.failure("offer", err)
	}
	if err := m.signal.Send(core.MsgOffer, core.Negotiation{Target: l.Peer, SDP: sdp}); err != nil {
		return &domain.SignalingError{Op: "send offer", Err: err}
	}
	return nil
}

// flushPending issues a deferred re-offer once the link is stable again.
func (m *Manager) flushPending(l *Link) error {
	if !l.pending || l.pc.SignalingState() != webrtc.SignalingStateStable {
		return nil
	}
	log.Debug().Str("module", "mesh").Str("peer", string(l.Peer)).Msg("issuing pending re-offer")
	return m.offer(l)
}

// HandleOffer applies a remote offer and answers it. A missing link is
// created in the receiver role. A local offer in flight is rolled back and
// re-issued once the link is stable.
func (m *Manager) HandleOffer(from domain.ConnectionID, name string, offer webrtc.SessionDescription) error {
	l, ok := m.links[from]
	if !ok {
		if err := m.ConnectTo(from, name, false); err != nil {
			return err
		}
		l = m.links[from]
	}
	switch st := l.pc.SignalingState(); st {
	case webrtc.SignalingStateStable:
	case webrtc.SignalingStateHaveLocalOffer:
		l.pending = true
	default:
		return l.conflict("offer")
	}
	answer, err := l.pc.ApplyOfferAndCreateAnswer(offer)
	if err != nil {
		return l.failure("answer", err)
	}
	if err := m.signal.Send(core.MsgAnswer, core.Negotiation{Target: from, SDP: answer}); err != nil {
		return &domain.SignalingError{Op: "send answer", Err: err}
	}
	return m.flushPending(l)
}

// HandleAnswer applies an answer only while the link has a local offer out;
// anything else is stale or a duplicate.
func (m *Manager) HandleAnswer(from domain.ConnectionID, answer webrtc.SessionDescription) error {
	l, ok := m.links[from]
	if !ok {
		return nil
	}
	if l.pc.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
		return l.conflict("answer")
	}
	if err := l.pc.ApplyAnswer(answer); err != nil {
		return l.failure("apply answer", err)
	}
	return m.flushPending(l)
}

// HandleICECandidate forwards c to the link for from. Without a link it is dropped.
func (m *Manager) HandleICECandidate(from domain.ConnectionID, c webrtc.ICECandidateInit) {
	l, ok := m.links[from]
	if !ok {
		log.Debug().Str("module", "mesh").Str("peer", string(from)).Msg("candidate for unknown link dropped")
		return
	}
	if err := l.pc.AddICECandidate(c); err != nil {
		log.Warn().Err(err).Str("module", "mesh").Str("peer", string(from)).Msg("add ice candidate")
	}
}

// Renegotiate brings the attached tracks of one link in line with the
// current local tracks and restarts its offer cycle.
func (m *Manager) Renegotiate(id domain.ConnectionID) error {
	l, ok := m.links[id]
	if !ok {
		return nil
	}
	current := m.tracks()
	kept := l.attached[:0]
	for _, t := range l.attached {
		if contains(current, t) {
			kept = append(kept, t)
			continue
		}
		if err := l.pc.RemoveLocalTrack(t); err != nil {
			log.Warn().Err(err).Str("module", "mesh").Str("peer", string(id)).Str("track", t.ID()).Msg("detach track")
		}
	}
	l.attached = kept
	for _, t := range current {
		if l.isAttached(t) {
			continue
		}
		if err := l.pc.AddLocalTrack(t); err != nil {
			log.Warn().Err(err).Str("module", "mesh").Str("peer", string(id)).Str("track", t.ID()).Msg("attach track")
			continue
		}
		l.attached = append(l.attached, t)
	}
	return m.offer(l)
}

// RenegotiateAll renegotiates each live link once. A failing link does not
// stop the others.
func (m *Manager) RenegotiateAll() error {
	var errs []error
	for id := range m.links {
		if err := m.Renegotiate(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Teardown closes the link to id. It reports whether a link was removed.
func (m *Manager) Teardown(id domain.ConnectionID) bool {
	l, ok := m.links[id]
	if !ok {
		return false
	}
	delete(m.links, id)
	l.closed = true
	l.remote = nil
	l.attached = nil
	if err := l.pc.Close(); err != nil {
		log.Warn().Err(err).Str("module", "mesh").Str("peer", string(id)).Msg("close link")
	}
	log.Info().Str("module", "mesh").Str("peer", string(id)).Msg("link closed")
	return true
}

func (m *Manager) CloseAll() {
	for id := range m.links {
		m.Teardown(id)
	}
}

// HandleLinkEvent applies a callback posted by a link. Events from a link
// that has since been torn down or replaced are discarded.
func (m *Manager) HandleLinkEvent(ev Event) error {
	l, ok := m.links[ev.Peer]
	if !ok || l != ev.link {
		return nil
	}
	switch ev.Kind {
	case EventICECandidate:
		if err := m.signal.Send(core.MsgICECandidate, core.Candidate{Target: l.Peer, Candidate: ev.Candidate}); err != nil {
			return &domain.SignalingError{Op: "send candidate", Err: err}
		}
	case EventStateChange:
		l.state = ev.State
		log.Info().Str("module", "mesh").Str("peer", string(l.Peer)).Str("state", ev.State.String()).Msg("link state")
		switch ev.State {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
			return l.failure(ev.State.String(), nil)
		}
	case EventTrack:
		l.remote = append(l.remote, ev.Track)
		log.Info().Str("module", "mesh").Str("peer", string(l.Peer)).Str("kind", ev.Track.Kind.String()).Str("track", ev.Track.ID).Msg("remote track")
	default:
		return fmt.Errorf("unknown link event %d", ev.Kind)
	}
	return nil
}

func contains(ts []webrtc.TrackLocal, t webrtc.TrackLocal) bool {
	for _, cur := range ts {
		if cur == t {
			return true
		}
	}
	return false
}
