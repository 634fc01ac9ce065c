// Package vpxopus configures the VP8 and Opus encoders used for outgoing media.
// It links against libvpx and libopus.
package vpxopus

import (
	"fmt"
	"time"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	"github.com/rs/zerolog/log"
)

type Params struct {
	VideoBitRate     int
	KeyFrameInterval int
	AudioBitRate     int
}

func DefaultParams() Params {
	return Params{VideoBitRate: 500_000, KeyFrameInterval: 60, AudioBitRate: 32_000}
}

func NewCodecSelector(p Params) (*mediadevices.CodecSelector, error) {
	vp8, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	vp8.BitRate = p.VideoBitRate
	vp8.KeyFrameInterval = p.KeyFrameInterval
	vp8.RateControlEndUsage = vpx.RateControlVBR
	vp8.Deadline = 200 * time.Millisecond

	op, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}
	op.BitRate = p.AudioBitRate
	op.Latency = opus.Latency20ms

	log.Debug().Str("module", "capture").Int("video_bitrate", vp8.BitRate).Int("audio_bitrate", op.BitRate).Msg("encoders configured")
	return mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vp8),
		mediadevices.WithAudioEncoders(&op),
	), nil
}
