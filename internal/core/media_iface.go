package core

import (
	"context"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/pion/webrtc/v4"
)

// PeerConnection is the native connection behind one PeerLink.
type PeerConnection interface {
	// CreateOffer creates an offer and sets it as local description.
	CreateOffer() (webrtc.SessionDescription, error)
	// ApplyOfferAndCreateAnswer rolls back a pending local offer if needed,
	// applies the remote offer and sets the answer as local description.
	ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (webrtc.SessionDescription, error)
	ApplyAnswer(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	// AddLocalTrack attaches a local track; RemoveLocalTrack detaches it again.
	AddLocalTrack(webrtc.TrackLocal) error
	RemoveLocalTrack(webrtc.TrackLocal) error
	SignalingState() webrtc.SignalingState
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	OnStateChange(func(webrtc.PeerConnectionState))
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(RemoteTrack))
	// Close should stop all underlying media resources.
	Close() error
}

// RemoteTrack describes an inbound track. Track is nil for fakes.
type RemoteTrack struct {
	ID       string
	StreamID string
	Kind     webrtc.RTPCodecType
	Track    *webrtc.TrackRemote
}

type PeerFactory interface {
	NewPeer(id domain.ConnectionID) (PeerConnection, error)
}

type Constraints struct {
	Video bool
	Audio bool
}

// CaptureTrack is a local device track. Close releases the hardware.
type CaptureTrack interface {
	webrtc.TrackLocal
	Close() error
}

type Capturer interface {
	GetUserMedia(ctx context.Context, c Constraints) ([]CaptureTrack, error)
}
