package media

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type TrackState int

const (
	Absent TrackState = iota
	Live
	Muted
)

func (s TrackState) String() string {
	switch s {
	case Live:
		return "live"
	case Muted:
		return "muted"
	default:
		return "absent"
	}
}

type LocalMediaState struct {
	Video TrackState
	Audio TrackState
}

func (s LocalMediaState) VideoEnabled() bool { return s.Video == Live }
func (s LocalMediaState) AudioEnabled() bool { return s.Audio == Live }

// Of returns the state of one kind.
func (s LocalMediaState) Of(kind webrtc.RTPCodecType) TrackState {
	if kind == webrtc.RTPCodecTypeVideo {
		return s.Video
	}
	return s.Audio
}

var ErrUnknownKind = errors.New("unknown media kind")

// Controller owns the local capture tracks. It is not safe for concurrent
// use; the meeting loop is its only caller.
type Controller struct {
	capturer     core.Capturer
	video        *LocalTrack
	audio        *LocalTrack
	onTrackAdded func(*LocalTrack)
}

func NewController(capturer core.Capturer) *Controller {
	return &Controller{capturer: capturer}
}

// OnTrackAdded registers the listener told about tracks added after Acquire.
func (c *Controller) OnTrackAdded(fn func(*LocalTrack)) { c.onTrackAdded = fn }

func (c *Controller) State() LocalMediaState {
	return LocalMediaState{Video: stateOf(c.video), Audio: stateOf(c.audio)}
}

func stateOf(t *LocalTrack) TrackState {
	switch {
	case t == nil:
		return Absent
	case t.Enabled():
		return Live
	default:
		return Muted
	}
}

// Acquire replaces every held track with a fresh capture of the wanted kinds.
func (c *Controller) Acquire(ctx context.Context, videoWanted, audioWanted bool) (LocalMediaState, error) {
	c.Stop()
	if !videoWanted && !audioWanted {
		return c.State(), nil
	}
	got, err := c.capture(ctx, core.Constraints{Video: videoWanted, Audio: audioWanted})
	if err != nil {
		return c.State(), err
	}
	c.video, c.audio = got[webrtc.RTPCodecTypeVideo], got[webrtc.RTPCodecTypeAudio]
	st := c.State()
	log.Info().Str("module", "media").Str("video", st.Video.String()).Str("audio", st.Audio.String()).Msg("acquired local media")
	return st, nil
}

func (c *Controller) capture(ctx context.Context, want core.Constraints) (map[webrtc.RTPCodecType]*LocalTrack, error) {
	raw, err := c.capturer.GetUserMedia(ctx, want)
	if err != nil {
		return nil, &domain.DeviceError{Kind: kindsOf(want), Err: err}
	}
	out := make(map[webrtc.RTPCodecType]*LocalTrack, len(raw))
	for _, t := range raw {
		if _, dup := out[t.Kind()]; dup {
			_ = t.Close()
			continue
		}
		out[t.Kind()] = newLocalTrack(t)
	}
	missing := ""
	if want.Video && out[webrtc.RTPCodecTypeVideo] == nil {
		missing = "video"
	}
	if want.Audio && out[webrtc.RTPCodecTypeAudio] == nil {
		missing = "audio"
	}
	if missing != "" {
		for _, t := range out {
			_ = t.close()
		}
		return nil, &domain.DeviceError{Kind: missing, Err: fmt.Errorf("no %s track returned", missing)}
	}
	return out, nil
}

func kindsOf(c core.Constraints) string {
	switch {
	case c.Video && c.Audio:
		return "video+audio"
	case c.Video:
		return "video"
	default:
		return "audio"
	}
}

// SetEnabled flips a present track in place. Enabling an absent kind captures
// it and hands it to the track listener; disabling an absent kind is a no-op.
func (c *Controller) SetEnabled(ctx context.Context, kind webrtc.RTPCodecType, enabled bool) error {
	slot, err := c.slot(kind)
	if err != nil {
		return err
	}
	if *slot != nil {
		(*slot).setEnabled(enabled)
		log.Debug().Str("module", "media").Str("kind", kind.String()).Bool("enabled", enabled).Msg("track toggled")
		return nil
	}
	if !enabled {
		return nil
	}
	got, err := c.capture(ctx, core.Constraints{Video: kind == webrtc.RTPCodecTypeVideo, Audio: kind == webrtc.RTPCodecTypeAudio})
	if err != nil {
		return err
	}
	*slot = got[kind]
	for k, t := range got {
		if k != kind {
			_ = t.close()
		}
	}
	log.Info().Str("module", "media").Str("kind", kind.String()).Msg("track added")
	if c.onTrackAdded != nil {
		c.onTrackAdded(*slot)
	}
	return nil
}

func (c *Controller) slot(kind webrtc.RTPCodecType) (**LocalTrack, error) {
	switch kind {
	case webrtc.RTPCodecTypeVideo:
		return &c.video, nil
	case webrtc.RTPCodecTypeAudio:
		return &c.audio, nil
	default:
		return nil, ErrUnknownKind
	}
}

// Tracks returns the present local tracks, muted ones included.
func (c *Controller) Tracks() []webrtc.TrackLocal {
	out := make([]webrtc.TrackLocal, 0, 2)
	if c.audio != nil {
		out = append(out, c.audio)
	}
	if c.video != nil {
		out = append(out, c.video)
	}
	return out
}

// Stop releases every held track.
func (c *Controller) Stop() {
	for _, slot := range []**LocalTrack{&c.video, &c.audio} {
		if *slot == nil {
			continue
		}
		if err := (*slot).close(); err != nil {
			log.Warn().Err(err).Str("module", "media").Str("kind", (*slot).Kind().String()).Msg("stop track")
		}
		*slot = nil
	}
}
