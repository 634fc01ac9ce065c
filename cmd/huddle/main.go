package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"

	"github.com/dkeye/huddle/internal/adapters/api"
	"github.com/dkeye/huddle/internal/adapters/capture"
	"github.com/dkeye/huddle/internal/adapters/capture/vpxopus"
	"github.com/dkeye/huddle/internal/adapters/rtc"
	"github.com/dkeye/huddle/internal/adapters/speech"
	"github.com/dkeye/huddle/internal/adapters/wsclient"
	"github.com/dkeye/huddle/internal/app/meeting"
	"github.com/dkeye/huddle/internal/config"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	cc := cfg.Client

	id := core.Identity{UserID: domain.UserID(cc.UserID), UserName: cc.UserName, IsHost: cc.Host}
	room := domain.NormalizeRoomCode(cc.Room)

	var meetingAPI core.MeetingAPI
	if cc.Token != "" && cc.APIURL != "" {
		client := api.New(cc.APIURL, cc.Token, cc.APITimeout)
		meetingAPI = client
		room, id, err = resolveRoom(ctx, client, cc, room, id)
		if errors.Is(err, api.ErrUnauthorized) {
			log.Fatal().Err(err).Msg("session logged out: log in again and refresh HUDDLE_CLIENT_TOKEN")
		}
		if err != nil {
			log.Fatal().Err(err).Msg("resource api rejected the meeting")
		}
	}
	if room == "" {
		log.Fatal().Msg("no room: set HUDDLE_CLIENT_ROOM or provide a token to create one")
	}
	if id.UserID == "" {
		id.UserID = domain.UserID(domain.NewConnectionID())
	}

	selector, err := vpxopus.NewCodecSelector(vpxopus.DefaultParams())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure encoders")
	}

	console := newConsole(os.Stdin)
	ctrl := meeting.New(meeting.Options{
		Room:             room,
		Identity:         id,
		Video:            cc.Video,
		Audio:            cc.Audio,
		ReconnectBackoff: cc.ReconnectBackoff,
		JoinTimeout:      cc.JoinTimeout,
		APITimeout:       cc.APITimeout,
	}, meeting.Deps{
		Capturer:   capture.NewCapturer(selector, capture.DefaultOptions()),
		Peers:      rtc.NewFactory(capture.NewAPI(selector), cc.ICEServers),
		Dial:       func() core.SignalChannel { return wsclient.New(cc.SignalURL, cc.Token) },
		Recognizer: speech.NewLineRecognizer(console.Speech()),
		API:        meetingAPI,
	})

	go logReports(ctrl)
	go console.Run(ctrl)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info().Msg("leaving meeting")
		if err := ctrl.Leave(); err != nil && !errors.Is(err, meeting.ErrMeetingOver) {
			log.Warn().Err(err).Msg("leave failed")
		}
		select {
		case <-ctrl.Done():
		case <-time.After(5 * time.Second):
			cancel()
		}
	}()

	log.Info().Str("room", string(room)).Str("user", id.UserName).Bool("host", id.IsHost).Msg("joining meeting")
	if err := ctrl.Run(ctx); err != nil {
		log.Error().Err(err).Msg("meeting failed")
		os.Exit(1)
	}
	log.Info().Msg("meeting over")
}

// resolveRoom creates the room when a host has none yet, then registers the
// join with the resource API, which decides the host role.
func resolveRoom(ctx context.Context, client *api.Client, cc config.ClientConfig, room domain.RoomCode, id core.Identity) (domain.RoomCode, core.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, cc.APITimeout)
	defer cancel()

	if room == "" && cc.Host {
		res, err := client.CreateRoom(ctx, api.NewCreateRoomRequest(cc.Title, domain.DefaultRoomSettings()))
		if err != nil {
			return "", id, err
		}
		room = res.RoomID
		log.Info().Str("room", string(room)).Str("join_url", res.JoinURL).Msg("room created")
	}
	if room == "" {
		return "", id, nil
	}

	joined, err := client.JoinRoom(ctx, room, id.UserName)
	if err != nil {
		return "", id, err
	}
	id.IsHost = joined.IsHost
	if id.UserID == "" {
		id.UserID = domain.UserID(joined.Participant.UserID)
	}
	return room, id, nil
}

func logReports(ctrl *meeting.Controller) {
	for r := range ctrl.Reports() {
		if errors.Is(r.Err, domain.ErrUnauthorized) {
			log.Error().Err(r.Err).Msg("session logged out: log in again and refresh HUDDLE_CLIENT_TOKEN")
			continue
		}
		ev := log.Warn()
		if r.Scope == domain.ScopeMeeting {
			ev = log.Error()
		}
		ev.Err(r.Err).Str("scope", string(r.Scope)).Str("peer", string(r.Peer)).Msg("meeting report")
	}
}
