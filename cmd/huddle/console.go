package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/huddle/internal/app/meeting"
	"github.com/dkeye/huddle/internal/domain"
)

// commander is the part of the meeting controller the console drives.
type commander interface {
	SetAudio(enabled bool) error
	SetVideo(enabled bool) error
	ToggleAudio() error
	ToggleVideo() error
	SetTranscription(enabled bool) error
	Pin(id domain.ConnectionID) error
	Leave() error
	End() error
	Snapshot() meeting.Snapshot
}

// console reads stdin. Lines starting with "/" are commands; anything else is
// forwarded to the speech recognizer as dictated text.
type console struct {
	in     io.Reader
	out    io.Writer
	speech *io.PipeReader
	dict   chan string
}

func newConsole(in io.Reader) *console {
	return newConsoleTo(in, os.Stdout)
}

func newConsoleTo(in io.Reader, out io.Writer) *console {
	pr, pw := io.Pipe()
	c := &console{in: in, out: out, speech: pr, dict: make(chan string, 16)}
	go func() {
		defer pw.Close()
		for line := range c.dict {
			if _, err := io.WriteString(pw, line+"\n"); err != nil {
				return
			}
		}
	}()
	return c
}

func (c *console) Speech() io.Reader { return c.speech }

func (c *console) Run(m commander) {
	defer close(c.dict)
	sc := bufio.NewScanner(c.in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			select {
			case c.dict <- line:
			default:
				log.Debug().Str("module", "console").Msg("recognizer not listening, dictation dropped")
			}
			continue
		}
		quit, err := c.exec(m, line)
		if err != nil {
			log.Warn().Str("module", "console").Str("cmd", line).Err(err).Msg("command failed")
		}
		if quit || errors.Is(err, meeting.ErrMeetingOver) {
			return
		}
	}
}

func (c *console) exec(m commander, line string) (bool, error) {
	fields := strings.Fields(line)
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}
	switch fields[0] {
	case "/mute":
		return false, m.SetAudio(false)
	case "/unmute":
		return false, m.SetAudio(true)
	case "/audio":
		return false, m.ToggleAudio()
	case "/video":
		switch arg {
		case "on":
			return false, m.SetVideo(true)
		case "off":
			return false, m.SetVideo(false)
		}
		return false, m.ToggleVideo()
	case "/transcription":
		if arg != "on" && arg != "off" {
			return false, fmt.Errorf("usage: /transcription on|off")
		}
		return false, m.SetTranscription(arg == "on")
	case "/pin":
		if arg == "" {
			return false, fmt.Errorf("usage: /pin <connection-id>")
		}
		return false, m.Pin(domain.ConnectionID(arg))
	case "/who", "/status":
		c.printStatus(m.Snapshot())
		return false, nil
	case "/leave":
		return true, m.Leave()
	case "/end":
		return true, m.End()
	}
	return false, fmt.Errorf("unknown command %q", fields[0])
}

func (c *console) printStatus(s meeting.Snapshot) {
	fmt.Fprintf(c.out, "state=%s links=%d audio=%s video=%s transcription=%s\n",
		s.State, s.Links, s.Media.Audio, s.Media.Video, s.Transcription)
	for _, p := range s.Participants {
		marks := ""
		if p.IsHost {
			marks += " host"
		}
		if p.IsMuted {
			marks += " muted"
		}
		if p.IsPinned {
			marks += " pinned"
		}
		fmt.Fprintf(c.out, "  %s %s%s\n", p.ConnectionID, p.DisplayName, marks)
	}
}
