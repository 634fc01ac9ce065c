package rtc

import (
	"errors"
	"io"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrTrackNotAttached = errors.New("track not attached")

// Connection adapts a pion PeerConnection to core.PeerConnection.
// Descriptions are trickled: no call waits for ICE gathering.
type Connection struct {
	pc      *webrtc.PeerConnection
	peer    domain.ConnectionID
	senders map[webrtc.TrackLocal]*webrtc.RTPSender
}

func newConnection(pc *webrtc.PeerConnection, peer domain.ConnectionID) *Connection {
	return &Connection{
		pc:      pc,
		peer:    peer,
		senders: make(map[webrtc.TrackLocal]*webrtc.RTPSender),
	}
}

func (c *Connection) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (c *Connection) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if c.pc.SignalingState() == webrtc.SignalingStateHaveLocalOffer {
		log.Info().Str("module", "webrtc").Str("peer", string(c.peer)).Msg("rolling back local offer")
		if err := c.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}); err != nil {
			return webrtc.SessionDescription{}, err
		}
	}
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (c *Connection) ApplyAnswer(answer webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(answer)
}

func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

// AddLocalTrack attaches a local track to the PeerConnection.
func (c *Connection) AddLocalTrack(track webrtc.TrackLocal) error {
	if _, ok := c.senders[track]; ok {
		return nil
	}
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return err
	}
	c.senders[track] = sender
	go drainRTCP(sender)
	return nil
}

func (c *Connection) RemoveLocalTrack(track webrtc.TrackLocal) error {
	sender, ok := c.senders[track]
	if !ok {
		return ErrTrackNotAttached
	}
	delete(c.senders, track)
	return c.pc.RemoveTrack(sender)
}

func (c *Connection) SignalingState() webrtc.SignalingState {
	return c.pc.SignalingState()
}

func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil {
			fn(cand.ToJSON())
		}
	})
}

func (c *Connection) OnStateChange(fn func(webrtc.PeerConnectionState)) {
	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("peer", string(c.peer)).Str("peer_connection_state", s.String()).Msg("Peer state")
		fn(s)
	})
}

// OnTrack reports remote tracks and keeps reading them so the receiver's
// buffers and interceptors never stall.
func (c *Connection) OnTrack(fn func(core.RemoteTrack)) {
	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("peer", string(c.peer)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		go drainTrack(c.peer, track)
		fn(core.RemoteTrack{
			ID:       track.ID(),
			StreamID: track.StreamID(),
			Kind:     track.Kind(),
			Track:    track,
		})
	})
}

func (c *Connection) Close() error {
	err := c.pc.Close()
	if err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("peer", string(c.peer)).Msg("close error")
	} else {
		log.Info().Str("module", "webrtc").Str("peer", string(c.peer)).Msg("closed")
	}
	return err
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func drainTrack(peer domain.ConnectionID, track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug().Err(err).Str("module", "webrtc").Str("peer", string(peer)).Str("track_id", track.ID()).Msg("remote track ended")
			}
			return
		}
	}
}
