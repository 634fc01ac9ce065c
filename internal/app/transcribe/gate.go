package transcribe

import (
	"strings"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

type State int

const (
	Idle State = iota
	Listening
	Suppressed
)

func (s State) String() string {
	switch s {
	case Listening:
		return "listening"
	case Suppressed:
		return "suppressed"
	default:
		return "idle"
	}
}

// Sender is the outbound half of the signaling channel.
type Sender interface {
	Send(kind core.MessageType, payload any) error
}

// Gate couples a recognizer to the local mute state and the room-wide
// transcription flag. The recognizer only runs while listening; nothing is
// analysed while muted. It is driven from the meeting loop only.
type Gate struct {
	recognizer core.Recognizer
	sink       core.RecognitionSink
	signal     Sender

	state       State
	roomEnabled bool
	muted       bool
	failed      bool
	stopped     bool

	speakerID domain.ConnectionID
	speaker   string
}

// New builds an idle gate. sink receives recognizer output and must hand it
// back to the loop's HandleResult/HandleError.
func New(recognizer core.Recognizer, sink core.RecognitionSink, signal Sender) *Gate {
	return &Gate{recognizer: recognizer, sink: sink, signal: signal}
}

func (g *Gate) State() State      { return g.state }
func (g *Gate) RoomEnabled() bool { return g.roomEnabled }

func (g *Gate) SetSpeaker(id domain.ConnectionID, name string) {
	g.speakerID = id
	g.speaker = name
}

// SetRoomEnabled applies the host's room-wide flag. A flip also clears an
// earlier recognizer failure so the next listen gets a fresh start.
func (g *Gate) SetRoomEnabled(enabled bool) error {
	if enabled != g.roomEnabled {
		g.failed = false
	}
	g.roomEnabled = enabled
	return g.recompute()
}

func (g *Gate) SetMuted(muted bool) error {
	g.muted = muted
	return g.recompute()
}

func (g *Gate) target() State {
	switch {
	case g.stopped || g.failed || !g.roomEnabled:
		return Idle
	case g.muted:
		return Suppressed
	default:
		return Listening
	}
}

func (g *Gate) recompute() error {
	next := g.target()
	if next == g.state {
		return nil
	}
	prev := g.state
	if prev == Listening {
		if err := g.recognizer.Stop(); err != nil {
			log.Warn().Err(err).Str("module", "transcribe").Msg("stop recognizer")
		}
	}
	if next == Listening {
		if err := g.recognizer.Start(g.sink); err != nil {
			g.failed = true
			g.state = Idle
			log.Warn().Err(err).Str("module", "transcribe").Msg("start recognizer")
			return &domain.TranscriptionError{Err: err}
		}
	}
	g.state = next
	log.Info().Str("module", "transcribe").Str("from", prev.String()).Str("to", next.String()).Msg("gate transition")
	return nil
}

// HandleResult turns a final recognition into a transcript entry. Only
// results that arrive while listening produce one, and only unmuted entries
// are sent to the room.
func (g *Gate) HandleResult(r core.Recognition) (domain.TranscriptEntry, bool) {
	text := strings.TrimSpace(r.Text)
	if !r.Final || text == "" || g.state != Listening {
		return domain.TranscriptEntry{}, false
	}
	entry := domain.NewTranscriptEntry(g.speakerID, g.speaker, text, r.Confidence, g.muted)
	if !entry.IsMuted {
		if err := g.signal.Send(core.MsgTranscriptUpdate, core.TranscriptUpdate{Entry: entry}); err != nil {
			log.Warn().Err(err).Str("module", "transcribe").Msg("send transcript entry")
		}
	}
	return entry, true
}

// HandleError reports a recognizer failure and parks the gate in idle.
func (g *Gate) HandleError(err error) error {
	g.failed = true
	if rerr := g.recompute(); rerr != nil {
		log.Warn().Err(rerr).Str("module", "transcribe").Msg("recompute after failure")
	}
	return &domain.TranscriptionError{Err: err}
}

// Stop halts recognition for good.
func (g *Gate) Stop() {
	g.stopped = true
	_ = g.recompute()
}
