package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type TranscriptEntry struct {
	ID         string       `json:"id"`
	SpeakerID  ConnectionID `json:"speakerId,omitempty"`
	Speaker    string       `json:"speaker"`
	Text       string       `json:"text"`
	Timestamp  time.Time    `json:"timestamp"`
	Confidence float64      `json:"confidence"`
	IsMuted    bool         `json:"isMuted"`
}

func NewTranscriptEntry(speakerID ConnectionID, speaker, text string, confidence float64, muted bool) TranscriptEntry {
	return TranscriptEntry{
		ID:         uuid.NewString(),
		SpeakerID:  speakerID,
		Speaker:    speaker,
		Text:       strings.TrimSpace(text),
		Timestamp:  time.Now(),
		Confidence: confidence,
		IsMuted:    muted,
	}
}

// Line renders the entry the way it is persisted: "speaker (HH:MM:SS): text".
func (e TranscriptEntry) Line() string {
	return fmt.Sprintf("%s (%s): %s", e.Speaker, e.Timestamp.Format(time.TimeOnly), e.Text)
}

// Transcript is append-only; entries keep receipt order and are never mutated.
type Transcript struct {
	entries []TranscriptEntry
}

func (t *Transcript) Append(e TranscriptEntry) {
	t.entries = append(t.entries, e)
}

func (t *Transcript) Len() int { return len(t.entries) }

func (t *Transcript) Entries() []TranscriptEntry {
	out := make([]TranscriptEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

type FinalTranscript struct {
	Transcript string   `json:"transcript"`
	Speakers   []string `json:"speakers"`
}

func (t *Transcript) Finalize() FinalTranscript {
	lines := make([]string, 0, len(t.entries))
	seen := make(map[string]struct{})
	speakers := make([]string, 0)
	for _, e := range t.entries {
		lines = append(lines, e.Line())
		if _, ok := seen[e.Speaker]; !ok {
			seen[e.Speaker] = struct{}{}
			speakers = append(speakers, e.Speaker)
		}
	}
	return FinalTranscript{
		Transcript: strings.Join(lines, "\n"),
		Speakers:   speakers,
	}
}
