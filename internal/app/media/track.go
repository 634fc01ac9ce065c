package media

import (
	"sync/atomic"

	"github.com/dkeye/huddle/internal/core"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// LocalTrack wraps a capture track with a write gate. While disabled the
// track stays bound to every sender but no packet leaves it.
type LocalTrack struct {
	src     core.CaptureTrack
	enabled atomic.Bool
}

func newLocalTrack(src core.CaptureTrack) *LocalTrack {
	t := &LocalTrack{src: src}
	t.enabled.Store(true)
	return t
}

func (t *LocalTrack) Enabled() bool { return t.enabled.Load() }

func (t *LocalTrack) setEnabled(v bool) { t.enabled.Store(v) }

func (t *LocalTrack) Bind(ctx webrtc.TrackLocalContext) (webrtc.RTPCodecParameters, error) {
	return t.src.Bind(&gatedContext{TrackLocalContext: ctx, track: t})
}

// Unbind passes the original context; bindings are keyed by ctx.ID().
func (t *LocalTrack) Unbind(ctx webrtc.TrackLocalContext) error {
	return t.src.Unbind(ctx)
}

func (t *LocalTrack) ID() string                { return t.src.ID() }
func (t *LocalTrack) RID() string               { return t.src.RID() }
func (t *LocalTrack) StreamID() string          { return t.src.StreamID() }
func (t *LocalTrack) Kind() webrtc.RTPCodecType { return t.src.Kind() }

func (t *LocalTrack) close() error { return t.src.Close() }

type gatedContext struct {
	webrtc.TrackLocalContext
	track *LocalTrack
}

func (c *gatedContext) WriteStream() webrtc.TrackLocalWriter {
	return &gatedWriter{next: c.TrackLocalContext.WriteStream(), track: c.track}
}

type gatedWriter struct {
	next  webrtc.TrackLocalWriter
	track *LocalTrack
}

func (w *gatedWriter) WriteRTP(header *rtp.Header, payload []byte) (int, error) {
	if !w.track.Enabled() {
		return len(payload), nil
	}
	return w.next.WriteRTP(header, payload)
}

func (w *gatedWriter) Write(b []byte) (int, error) {
	if !w.track.Enabled() {
		return len(b), nil
	}
	return w.next.Write(b)
}
