package meeting

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/huddle/internal/app/media"
	"github.com/dkeye/huddle/internal/app/mesh"
	"github.com/dkeye/huddle/internal/app/roster"
	"github.com/dkeye/huddle/internal/app/transcribe"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

type State int

const (
	Initializing State = iota
	MediaReady
	Connected
	Ended
)

func (s State) String() string {
	switch s {
	case MediaReady:
		return "media-ready"
	case Connected:
		return "connected"
	case Ended:
		return "ended"
	default:
		return "initializing"
	}
}

var (
	ErrMeetingOver        = errors.New("meeting is over")
	ErrAlreadyRunning     = errors.New("meeting already running")
	ErrNotHost            = errors.New("only the host can do that")
	ErrNotConnected       = errors.New("not connected to the room")
	ErrUnknownParticipant = errors.New("unknown participant")
	ErrJoinTimeout        = errors.New("timed out waiting for the room")
)

type Options struct {
	Room             domain.RoomCode
	Identity         core.Identity
	Video            bool
	Audio            bool
	ReconnectBackoff time.Duration
	JoinTimeout      time.Duration
	APITimeout       time.Duration
}

func (o *Options) withDefaults() {
	if o.ReconnectBackoff <= 0 {
		o.ReconnectBackoff = 2 * time.Second
	}
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = 10 * time.Second
	}
	if o.APITimeout <= 0 {
		o.APITimeout = 10 * time.Second
	}
}

// Deps are the collaborators of a meeting. Dial returns a fresh, unconnected
// channel for every join attempt. Recognizer and API are optional.
type Deps struct {
	Capturer   core.Capturer
	Peers      core.PeerFactory
	Dial       func() core.SignalChannel
	Recognizer core.Recognizer
	API        core.MeetingAPI
}

// Snapshot is a copy of the meeting as the loop last saw it.
type Snapshot struct {
	State                State
	Local                domain.Participant
	Participants         []domain.Participant
	Links                int
	Media                media.LocalMediaState
	Transcription        transcribe.State
	TranscriptionEnabled bool
	Settings             domain.RoomSettings
	Transcript           []domain.TranscriptEntry
}

type endReason int

const (
	reasonLeave endReason = iota
	reasonHostEnd
	reasonRemoteEnd
	reasonFailure
)

type command struct {
	fn    func() error
	reply chan error
}

type recognition struct {
	result core.Recognition
	err    error
}

// Controller runs one meeting. Every state change happens on the goroutine
// inside Run; the exported methods are messages into it.
type Controller struct {
	opts Options
	deps Deps

	cmds        chan command
	linkEvents  chan mesh.Event
	recognized  chan recognition
	apiFailures chan apiFailure
	reports     chan domain.Report
	done        chan struct{}
	runOnce     sync.Once
	finalMu     sync.Mutex
	final       Snapshot
	reportsOnce sync.Once

	// loop-owned
	ctx        context.Context
	state      State
	media      *media.Controller
	mesh       *mesh.Manager
	roster     *roster.Roster
	gate       *transcribe.Gate
	transcript domain.Transcript
	settings   domain.RoomSettings
	signal     core.SignalChannel
	events     <-chan core.Envelope
	early      []core.Envelope
	joining    bool
	retried    bool
	joinTimer  *time.Timer
	retryTimer *time.Timer
	result     error
}

func New(opts Options, deps Deps) *Controller {
	opts.withDefaults()
	c := &Controller{
		opts:        opts,
		deps:        deps,
		cmds:        make(chan command),
		linkEvents:  make(chan mesh.Event, 256),
		recognized:  make(chan recognition, 64),
		apiFailures: make(chan apiFailure, 16),
		reports:     make(chan domain.Report, 64),
		done:        make(chan struct{}),
		roster:      roster.New(),
	}
	c.media = media.NewController(deps.Capturer)
	c.media.OnTrackAdded(c.onTrackAdded)
	c.mesh = mesh.NewManager(deps.Peers, outbound{c}, c.media.Tracks, c.postLinkEvent)
	rec := deps.Recognizer
	if rec == nil {
		rec = noRecognizer{}
	}
	c.gate = transcribe.New(rec, sink{c}, outbound{c})
	return c
}

// Reports streams failures worth showing the user. It is closed when Run returns.
func (c *Controller) Reports() <-chan domain.Report { return c.reports }

// Done is closed once the meeting has ended and torn down.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Run acquires media, joins the room and processes events until the meeting
// ends. It returns nil for a normal end and the fatal error otherwise.
func (c *Controller) Run(ctx context.Context) error {
	started := false
	c.runOnce.Do(func() { started = true })
	if !started {
		return ErrAlreadyRunning
	}
	defer c.finish()
	c.ctx = ctx

	if _, err := c.media.Acquire(ctx, c.opts.Video, c.opts.Audio); err != nil {
		c.report(domain.ScopeMeeting, "", err)
		c.state = Ended
		return err
	}
	c.state = MediaReady
	log.Info().Str("module", "meeting").Str("room", string(c.opts.Room)).Msg("media ready")

	c.startJoin()
	for c.state != Ended {
		c.step()
	}
	return c.result
}

func (c *Controller) step() {
	select {
	case <-c.ctx.Done():
		c.end(reasonLeave, nil)
	case cmd := <-c.cmds:
		cmd.reply <- cmd.fn()
	case env, ok := <-c.events:
		if !ok {
			c.events = nil
			return
		}
		c.handleSignal(env)
	case ev := <-c.linkEvents:
		if err := c.mesh.HandleLinkEvent(ev); err != nil {
			c.linkError(ev.Peer, err)
		}
	case r := <-c.recognized:
		c.handleRecognition(r)
	case f := <-c.apiFailures:
		c.apiError(f.op, f.err)
	case <-timerC(c.joinTimer):
		c.joinTimer = nil
		c.joinFailed(&domain.SignalingError{Op: "join", Err: ErrJoinTimeout})
	case <-timerC(c.retryTimer):
		c.retryTimer = nil
		c.startJoin()
	}
}

func (c *Controller) finish() {
	snap := c.snapshot()
	c.finalMu.Lock()
	c.final = snap
	c.finalMu.Unlock()
	close(c.done)
	c.reportsOnce.Do(func() { close(c.reports) })
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

// do runs fn on the loop and waits for its result.
func (c *Controller) do(fn func() error) error {
	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case c.cmds <- cmd:
	case <-c.done:
		return ErrMeetingOver
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-c.done:
		return ErrMeetingOver
	}
}

func (c *Controller) report(scope domain.Scope, peer domain.ConnectionID, err error) {
	select {
	case c.reports <- domain.Report{Scope: scope, Peer: peer, Err: err}:
	default:
		log.Warn().Err(err).Str("module", "meeting").Msg("report queue full, dropped")
	}
}

type apiFailure struct {
	op  string
	err error
}

func (c *Controller) postAPIFailure(op string, err error) {
	select {
	case c.apiFailures <- apiFailure{op: op, err: err}:
	case <-c.done:
	default:
		log.Warn().Err(err).Str("module", "meeting").Str("op", op).Msg("api failure queue full, dropped")
	}
}

// apiError reports a resource API failure. A rejected credential gets its own
// report so the user knows to log in again.
func (c *Controller) apiError(op string, err error) {
	log.Warn().Err(err).Str("module", "meeting").Str("room", string(c.opts.Room)).Str("op", op).Msg("resource api")
	if errors.Is(err, domain.ErrUnauthorized) {
		c.report(domain.ScopeMeeting, "", &domain.AuthError{Op: op, Err: err})
		return
	}
	if op != opAppend {
		c.report(domain.ScopeMeeting, "", err)
	}
}

func (c *Controller) postLinkEvent(ev mesh.Event) {
	select {
	case c.linkEvents <- ev:
	case <-c.done:
	}
}

func (c *Controller) onTrackAdded(t *media.LocalTrack) {
	log.Info().Str("module", "meeting").Str("kind", t.Kind().String()).Int("links", c.mesh.Len()).Msg("renegotiating for new track")
	if err := c.mesh.RenegotiateAll(); err != nil {
		c.linkError("", err)
	}
}

// linkError sorts a mesh error into log-only conflicts and user-facing reports.
func (c *Controller) linkError(peer domain.ConnectionID, err error) {
	var lf *domain.LinkFailure
	switch {
	case errors.Is(err, domain.ErrNegotiationConflict):
		log.Debug().Err(err).Str("module", "meeting").Str("peer", string(peer)).Msg("negotiation conflict dropped")
	case errors.As(err, &lf):
		log.Warn().Err(err).Str("module", "meeting").Str("peer", string(lf.Peer)).Msg("link failure")
		c.report(domain.ScopeParticipant, lf.Peer, err)
	default:
		log.Warn().Err(err).Str("module", "meeting").Str("peer", string(peer)).Msg("mesh error")
		c.report(domain.ScopeParticipant, peer, err)
	}
}

// outbound is the loop's view of whatever channel is currently connected.
type outbound struct{ c *Controller }

func (o outbound) Send(kind core.MessageType, payload any) error {
	if o.c.signal == nil {
		return ErrNotConnected
	}
	return o.c.signal.Send(kind, payload)
}

type sink struct{ c *Controller }

func (s sink) OnResult(r core.Recognition) { s.post(recognition{result: r}) }
func (s sink) OnError(err error)           { s.post(recognition{err: err}) }

func (s sink) post(r recognition) {
	select {
	case s.c.recognized <- r:
	case <-s.c.done:
	}
}

type noRecognizer struct{}

func (noRecognizer) Start(core.RecognitionSink) error { return nil }
func (noRecognizer) Stop() error                      { return nil }
