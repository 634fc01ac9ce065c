// Package capture opens local camera and microphone tracks through mediadevices.
// Drivers are registered by blank imports in the binary.
package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/huddle/internal/core"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Width     int
	Height    int
	FrameRate float64
	// SampleRate and ChannelCount shape the microphone stream.
	SampleRate   int
	ChannelCount int
}

func DefaultOptions() Options {
	return Options{Width: 640, Height: 480, FrameRate: 30, SampleRate: 48000, ChannelCount: 1}
}

type Capturer struct {
	selector *mediadevices.CodecSelector
	opts     Options
}

var _ core.Capturer = (*Capturer)(nil)

func NewCapturer(selector *mediadevices.CodecSelector, opts Options) *Capturer {
	return &Capturer{selector: selector, opts: opts}
}

// NewAPI builds a pion API whose media engine knows the selector's codecs,
// so every peer connection can carry the captured tracks.
func NewAPI(selector *mediadevices.CodecSelector) *webrtc.API {
	me := &webrtc.MediaEngine{}
	selector.Populate(me)
	return webrtc.NewAPI(webrtc.WithMediaEngine(me))
}

func (c *Capturer) GetUserMedia(ctx context.Context, want core.Constraints) ([]core.CaptureTrack, error) {
	if !want.Video && !want.Audio {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cons := mediadevices.MediaStreamConstraints{Codec: c.selector}
	if want.Video {
		cons.Video = func(m *mediadevices.MediaTrackConstraints) {
			m.Width = prop.Int(c.opts.Width)
			m.Height = prop.Int(c.opts.Height)
			m.FrameRate = prop.Float(c.opts.FrameRate)
		}
	}
	if want.Audio {
		cons.Audio = func(m *mediadevices.MediaTrackConstraints) {
			m.SampleRate = prop.Int(c.opts.SampleRate)
			m.ChannelCount = prop.Int(c.opts.ChannelCount)
			m.Latency = prop.Duration(20 * time.Millisecond)
		}
	}

	stream, err := mediadevices.GetUserMedia(cons)
	if err != nil {
		return nil, fmt.Errorf("get user media: %w", err)
	}

	tracks := stream.GetTracks()
	out := make([]core.CaptureTrack, 0, len(tracks))
	for _, t := range tracks {
		log.Info().Str("module", "capture").Str("track", t.ID()).Str("kind", t.Kind().String()).Msg("device track opened")
		out = append(out, deviceTrack{t})
	}
	return out, nil
}

// deviceTrack adapts a mediadevices track to a local pion track.
type deviceTrack struct {
	mediadevices.Track
}

// Captured tracks are never simulcast.
func (deviceTrack) RID() string { return "" }
