package mesh

import (
	"errors"
	"fmt"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/pion/webrtc/v4"
)

type fakePC struct {
	state      webrtc.SignalingState
	tracks     []webrtc.TrackLocal
	candidates []webrtc.ICECandidateInit
	offers     int
	rollbacks  int
	closed     int

	onICE   func(webrtc.ICECandidateInit)
	onState func(webrtc.PeerConnectionState)
	onTrack func(core.RemoteTrack)
}

func newFakePC() *fakePC { return &fakePC{state: webrtc.SignalingStateStable} }

func (p *fakePC) CreateOffer() (webrtc.SessionDescription, error) {
	if p.state != webrtc.SignalingStateStable {
		return webrtc.SessionDescription{}, errors.New("offer outside stable")
	}
	p.offers++
	p.state = webrtc.SignalingStateHaveLocalOffer
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("offer-%d", p.offers)}, nil
}

func (p *fakePC) ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if p.state == webrtc.SignalingStateHaveLocalOffer {
		p.rollbacks++
		p.state = webrtc.SignalingStateStable
	}
	if p.state != webrtc.SignalingStateStable {
		return webrtc.SessionDescription{}, errors.New("offer in wrong state")
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer"}, nil
}

func (p *fakePC) ApplyAnswer(webrtc.SessionDescription) error {
	if p.state != webrtc.SignalingStateHaveLocalOffer {
		return errors.New("answer in wrong state")
	}
	p.state = webrtc.SignalingStateStable
	return nil
}

func (p *fakePC) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *fakePC) AddLocalTrack(t webrtc.TrackLocal) error {
	p.tracks = append(p.tracks, t)
	return nil
}

func (p *fakePC) RemoveLocalTrack(t webrtc.TrackLocal) error {
	for i, cur := range p.tracks {
		if cur == t {
			p.tracks = append(p.tracks[:i], p.tracks[i+1:]...)
			return nil
		}
	}
	return errors.New("not attached")
}

func (p *fakePC) SignalingState() webrtc.SignalingState { return p.state }

func (p *fakePC) OnICECandidate(fn func(webrtc.ICECandidateInit))   { p.onICE = fn }
func (p *fakePC) OnStateChange(fn func(webrtc.PeerConnectionState)) { p.onState = fn }
func (p *fakePC) OnTrack(fn func(core.RemoteTrack))                 { p.onTrack = fn }
func (p *fakePC) Close() error {
	p.closed++
	p.state = webrtc.SignalingStateClosed
	return nil
}

type fakeFactory struct {
	pcs  map[domain.ConnectionID]*fakePC
	fail bool
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{pcs: make(map[domain.ConnectionID]*fakePC)}
}

func (f *fakeFactory) NewPeer(id domain.ConnectionID) (core.PeerConnection, error) {
	if f.fail {
		return nil, errors.New("no peer for you")
	}
	pc := newFakePC()
	f.pcs[id] = pc
	return pc, nil
}

type sent struct {
	kind    core.MessageType
	payload any
}

type fakeSender struct{ out []sent }

func (s *fakeSender) Send(kind core.MessageType, payload any) error {
	s.out = append(s.out, sent{kind, payload})
	return nil
}

func (s *fakeSender) count(kind core.MessageType) int {
	n := 0
	for _, m := range s.out {
		if m.kind == kind {
			n++
		}
	}
	return n
}

type stubTrack struct{ id string }

func (t *stubTrack) Bind(webrtc.TrackLocalContext) (webrtc.RTPCodecParameters, error) {
	return webrtc.RTPCodecParameters{}, nil
}
func (t *stubTrack) Unbind(webrtc.TrackLocalContext) error { return nil }
func (t *stubTrack) ID() string                            { return t.id }
func (t *stubTrack) RID() string                           { return "" }
func (t *stubTrack) StreamID() string                      { return "local" }
func (t *stubTrack) Kind() webrtc.RTPCodecType             { return webrtc.RTPCodecTypeAudio }
