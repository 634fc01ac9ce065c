package rtc

import (
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Configuration builds a pion configuration from plain STUN/TURN urls.
func Configuration(iceServers []string) webrtc.Configuration {
	cfg := webrtc.Configuration{}
	for _, url := range iceServers {
		cfg.ICEServers = append(cfg.ICEServers, webrtc.ICEServer{URLs: []string{url}})
	}
	return cfg
}

// Factory opens one pion PeerConnection per remote participant. A nil api
// means pion's default media engine.
type Factory struct {
	api *webrtc.API
	cfg webrtc.Configuration
}

func NewFactory(api *webrtc.API, iceServers []string) *Factory {
	return &Factory{api: api, cfg: Configuration(iceServers)}
}

func (f *Factory) NewPeer(id domain.ConnectionID) (core.PeerConnection, error) {
	var (
		pc  *webrtc.PeerConnection
		err error
	)
	if f.api != nil {
		pc, err = f.api.NewPeerConnection(f.cfg)
	} else {
		pc, err = webrtc.NewPeerConnection(f.cfg)
	}
	if err != nil {
		return nil, err
	}
	return newConnection(pc, id), nil
}
