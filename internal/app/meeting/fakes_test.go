package meeting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

// fakeChannel records outbound events and lets tests inject inbound ones.
type fakeChannel struct {
	mu         sync.Mutex
	connectErr error
	sent       []core.Envelope
	closed     bool
	events     chan core.Envelope
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{events: make(chan core.Envelope, 64)}
}

func (f *fakeChannel) Connect(context.Context) error { return f.connectErr }

func (f *fakeChannel) Join(room domain.RoomCode, id core.Identity) error {
	return f.Send(core.MsgJoinRoom, core.JoinRoom{Room: room, UserID: id.UserID, UserName: id.UserName, IsHost: id.IsHost, IsMuted: id.IsMuted})
}

func (f *fakeChannel) Send(kind core.MessageType, payload any) error {
	env, err := core.NewEnvelope(kind, payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("closed")
	}
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeChannel) Events() <-chan core.Envelope { return f.events }

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeChannel) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeChannel) push(t *testing.T, kind core.MessageType, payload any) {
	t.Helper()
	env, err := core.NewEnvelope(kind, payload)
	require.NoError(t, err)
	f.events <- env
}

func (f *fakeChannel) sentOf(kind core.MessageType) []core.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.Envelope
	for _, env := range f.sent {
		if env.Type == kind {
			out = append(out, env)
		}
	}
	return out
}

type dialer struct {
	mu       sync.Mutex
	channels []*fakeChannel
	failures int
}

func (d *dialer) dial() core.SignalChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch := newFakeChannel()
	if d.failures > 0 {
		d.failures--
		ch.connectErr = errors.New("connection refused")
	}
	d.channels = append(d.channels, ch)
	return ch
}

func (d *dialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.channels)
}

func (d *dialer) channel(i int) *fakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.channels[i]
}

type fakePC struct {
	mu      sync.Mutex
	state   webrtc.SignalingState
	tracks  int
	offers  int
	closed  bool
	onState func(webrtc.PeerConnectionState)
}

func (p *fakePC) CreateOffer() (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offers++
	p.state = webrtc.SignalingStateHaveLocalOffer
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer"}, nil
}

func (p *fakePC) ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = webrtc.SignalingStateStable
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer"}, nil
}

func (p *fakePC) ApplyAnswer(webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = webrtc.SignalingStateStable
	return nil
}

func (p *fakePC) AddICECandidate(webrtc.ICECandidateInit) error { return nil }

func (p *fakePC) AddLocalTrack(webrtc.TrackLocal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks++
	return nil
}

func (p *fakePC) RemoveLocalTrack(webrtc.TrackLocal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks--
	return nil
}

func (p *fakePC) SignalingState() webrtc.SignalingState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *fakePC) OnICECandidate(func(webrtc.ICECandidateInit)) {}
func (p *fakePC) OnTrack(func(core.RemoteTrack))               {}

func (p *fakePC) OnStateChange(fn func(webrtc.PeerConnectionState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onState = fn
}

func (p *fakePC) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.state = webrtc.SignalingStateClosed
	return nil
}

func (p *fakePC) stats() (offers, tracks int, closed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offers, p.tracks, p.closed
}

func (p *fakePC) fire(s webrtc.PeerConnectionState) {
	p.mu.Lock()
	fn := p.onState
	p.mu.Unlock()
	fn(s)
}

type fakePeers struct {
	mu  sync.Mutex
	pcs map[domain.ConnectionID]*fakePC
}

func (f *fakePeers) NewPeer(id domain.ConnectionID) (core.PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pcs == nil {
		f.pcs = make(map[domain.ConnectionID]*fakePC)
	}
	pc := &fakePC{state: webrtc.SignalingStateStable}
	f.pcs[id] = pc
	return pc, nil
}

func (f *fakePeers) get(id domain.ConnectionID) *fakePC {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pcs[id]
}

type fakeTrack struct {
	kind   webrtc.RTPCodecType
	mu     sync.Mutex
	closed bool
}

func (f *fakeTrack) Bind(webrtc.TrackLocalContext) (webrtc.RTPCodecParameters, error) {
	return webrtc.RTPCodecParameters{}, nil
}
func (f *fakeTrack) Unbind(webrtc.TrackLocalContext) error { return nil }
func (f *fakeTrack) ID() string                            { return f.kind.String() }
func (f *fakeTrack) RID() string                           { return "" }
func (f *fakeTrack) StreamID() string                      { return "local" }
func (f *fakeTrack) Kind() webrtc.RTPCodecType             { return f.kind }

func (f *fakeTrack) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTrack) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeCapturer struct {
	mu     sync.Mutex
	err    error
	issued []*fakeTrack
}

func (c *fakeCapturer) GetUserMedia(_ context.Context, want core.Constraints) ([]core.CaptureTrack, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	var out []core.CaptureTrack
	if want.Video {
		t := &fakeTrack{kind: webrtc.RTPCodecTypeVideo}
		c.issued = append(c.issued, t)
		out = append(out, t)
	}
	if want.Audio {
		t := &fakeTrack{kind: webrtc.RTPCodecTypeAudio}
		c.issued = append(c.issued, t)
		out = append(out, t)
	}
	return out, nil
}

func (c *fakeCapturer) tracks() []*fakeTrack {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeTrack(nil), c.issued...)
}

type fakeRecognizer struct {
	mu      sync.Mutex
	sink    core.RecognitionSink
	running bool
}

func (r *fakeRecognizer) Start(s core.RecognitionSink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = s
	r.running = true
	return nil
}

func (r *fakeRecognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
	return nil
}

func (r *fakeRecognizer) say(text string) {
	r.mu.Lock()
	s := r.sink
	r.mu.Unlock()
	s.OnResult(core.Recognition{Text: text, Confidence: 0.8, Final: true})
}

func (r *fakeRecognizer) isRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

type fakeAPI struct {
	mu        sync.Mutex
	calls     []string
	finalized *domain.FinalTranscript
	appended  []domain.TranscriptEntry
	err       error
}

func (a *fakeAPI) fail(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

func (a *fakeAPI) record(call string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, call)
	return a.err
}

func (a *fakeAPI) LeaveRoom(context.Context, domain.RoomCode) error { return a.record("leave") }
func (a *fakeAPI) EndRoom(context.Context, domain.RoomCode) error   { return a.record("end") }

func (a *fakeAPI) AppendTranscript(_ context.Context, _ domain.RoomCode, e domain.TranscriptEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.appended = append(a.appended, e)
	return a.err
}

func (a *fakeAPI) FinalizeTranscript(_ context.Context, _ domain.RoomCode, t domain.FinalTranscript) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, "finalize")
	a.finalized = &t
	return a.err
}

func (a *fakeAPI) snapshot() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

type rig struct {
	c      *Controller
	dialer *dialer
	peers  *fakePeers
	capt   *fakeCapturer
	rec    *fakeRecognizer
	api    *fakeAPI
	host   bool
	result chan error
	cancel context.CancelFunc
}

func newRig(t *testing.T, opts Options) *rig {
	t.Helper()
	r := &rig{
		dialer: &dialer{},
		peers:  &fakePeers{},
		capt:   &fakeCapturer{},
		rec:    &fakeRecognizer{},
		api:    &fakeAPI{},
		host:   opts.Identity.IsHost,
		result: make(chan error, 1),
	}
	if opts.Room == "" {
		opts.Room = "ROOM1"
	}
	if opts.ReconnectBackoff == 0 {
		opts.ReconnectBackoff = 10 * time.Millisecond
	}
	r.c = New(opts, Deps{
		Capturer:   r.capt,
		Peers:      r.peers,
		Dial:       r.dialer.dial,
		Recognizer: r.rec,
		API:        r.api,
	})
	return r
}

func (r *rig) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	t.Cleanup(cancel)
	go func() { r.result <- r.c.Run(ctx) }()
}

// joined waits for channel i and answers the join with users. The claimed
// host role is granted.
func (r *rig) joined(t *testing.T, i int, you domain.ConnectionID, snap core.ExistingUsers) *fakeChannel {
	t.Helper()
	require.Eventually(t, func() bool {
		return r.dialer.count() > i && len(r.dialer.channel(i).sentOf(core.MsgJoinRoom)) == 1
	}, 2*time.Second, 5*time.Millisecond)
	ch := r.dialer.channel(i)
	snap.You = you
	snap.IsHost = snap.IsHost || r.host
	ch.push(t, core.MsgExistingUsers, snap)
	r.waitFor(t, func(s Snapshot) bool { return s.State == Connected && s.Local.ConnectionID == you })
	return ch
}

func (r *rig) waitFor(t *testing.T, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	var last Snapshot
	require.Eventually(t, func() bool {
		last = r.c.Snapshot()
		return cond(last)
	}, 2*time.Second, 5*time.Millisecond)
	return last
}

func (r *rig) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.result:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("meeting did not end")
		return nil
	}
}

func participant(id, name string) domain.Participant {
	return domain.Participant{ConnectionID: domain.ConnectionID(id), DisplayName: name}
}
