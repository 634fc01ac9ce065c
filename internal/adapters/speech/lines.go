// Package speech provides recognizers that feed the transcription gate.
package speech

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/dkeye/huddle/internal/core"
	"github.com/rs/zerolog/log"
)

var ErrRunning = errors.New("recognizer already running")

// interimPrefix marks a line as a partial hypothesis.
const interimPrefix = "~"

// LineRecognizer turns each line of a text stream into a recognition result.
// The stream is read by a single goroutine for the recognizer's lifetime;
// lines that arrive while stopped are discarded.
type LineRecognizer struct {
	src  io.Reader
	once sync.Once

	mu   sync.Mutex
	sink core.RecognitionSink
}

var _ core.Recognizer = (*LineRecognizer)(nil)

func NewLineRecognizer(src io.Reader) *LineRecognizer {
	return &LineRecognizer{src: src}
}

func (l *LineRecognizer) Start(sink core.RecognitionSink) error {
	if sink == nil {
		return errors.New("nil recognition sink")
	}
	l.mu.Lock()
	if l.sink != nil {
		l.mu.Unlock()
		return ErrRunning
	}
	l.sink = sink
	l.mu.Unlock()

	l.once.Do(func() { go l.read() })
	log.Debug().Str("module", "speech").Msg("recognizer started")
	return nil
}

func (l *LineRecognizer) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sink != nil {
		log.Debug().Str("module", "speech").Msg("recognizer stopped")
	}
	l.sink = nil
	return nil
}

func (l *LineRecognizer) active() core.RecognitionSink {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sink
}

func (l *LineRecognizer) read() {
	sc := bufio.NewScanner(l.src)
	for sc.Scan() {
		r, ok := parseLine(sc.Text())
		if !ok {
			continue
		}
		if sink := l.active(); sink != nil {
			sink.OnResult(r)
		}
	}
	if err := sc.Err(); err != nil {
		log.Warn().Str("module", "speech").Err(err).Msg("input stream failed")
		if sink := l.active(); sink != nil {
			sink.OnError(err)
		}
		return
	}
	log.Debug().Str("module", "speech").Msg("input stream closed")
}

func parseLine(line string) (core.Recognition, bool) {
	text := strings.TrimSpace(line)
	final := true
	if rest, ok := strings.CutPrefix(text, interimPrefix); ok {
		text = strings.TrimSpace(rest)
		final = false
	}
	if text == "" {
		return core.Recognition{}, false
	}
	return core.Recognition{Text: text, Confidence: 1, Final: final}, true
}
