package mesh

import (
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Link is the mesh's handle on one remote participant.
type Link struct {
	Peer      domain.ConnectionID
	Name      string
	Initiator bool

	pc       core.PeerConnection
	attached []webrtc.TrackLocal
	remote   []core.RemoteTrack
	state    webrtc.PeerConnectionState
	pending  bool
	closed   bool
}

// NegotiationState reports the offer/answer state; a torn-down link is closed.
func (l *Link) NegotiationState() webrtc.SignalingState {
	if l.closed {
		return webrtc.SignalingStateClosed
	}
	return l.pc.SignalingState()
}

func (l *Link) ConnectionState() webrtc.PeerConnectionState { return l.state }

// RenegotiationPending reports whether a re-offer waits for the link to become stable.
func (l *Link) RenegotiationPending() bool { return l.pending }

func (l *Link) RemoteTracks() []core.RemoteTrack {
	out := make([]core.RemoteTrack, len(l.remote))
	copy(out, l.remote)
	return out
}

func (l *Link) isAttached(t webrtc.TrackLocal) bool {
	for _, cur := range l.attached {
		if cur == t {
			return true
		}
	}
	return false
}

func (l *Link) failure(state string, err error) *domain.LinkFailure {
	return &domain.LinkFailure{Peer: l.Peer, Name: l.Name, State: state, Err: err}
}

func (l *Link) conflict(kind string) *domain.NegotiationConflict {
	return &domain.NegotiationConflict{Peer: l.Peer, Kind: kind, State: l.NegotiationState().String()}
}

type EventKind int

const (
	EventICECandidate EventKind = iota
	EventStateChange
	EventTrack
)

// Event is a link callback on its way into the meeting loop.
type Event struct {
	Kind      EventKind
	Peer      domain.ConnectionID
	Candidate webrtc.ICECandidateInit
	State     webrtc.PeerConnectionState
	Track     core.RemoteTrack

	link *Link
}
