package call

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/afroluxe/concierge/internal/capture"
	"github.com/afroluxe/concierge/internal/live"
	"github.com/afroluxe/concierge/internal/persona"
	"github.com/afroluxe/concierge/internal/playback"
	"github.com/afroluxe/concierge/internal/protocol"
	"github.com/afroluxe/concierge/internal/session"
	"github.com/afroluxe/concierge/internal/store"
	"github.com/afroluxe/concierge/internal/transcript"
)

type fakeMic struct {
	mu     sync.Mutex
	closed bool
	ch     chan struct{}
}

func newFakeMic() *fakeMic { return &fakeMic{ch: make(chan struct{})} }

func (m *fakeMic) Read() ([]float32, error) {
	<-m.ch
	return nil, errors.New("mic closed")
}

func (m *fakeMic) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.ch)
	}
	return nil
}

func (m *fakeMic) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type nopHandle struct{}

func (nopHandle) Stop() {}

type fakePlayer struct {
	mu     sync.Mutex
	played int
	closed bool
}

func (p *fakePlayer) Play(_ []float32, _ float64, _ func()) (playback.Handle, error) {
	p.mu.Lock()
	p.played++
	p.mu.Unlock()
	return nopHandle{}, nil
}

func (p *fakePlayer) Now() float64 { return 0 }

func (p *fakePlayer) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *fakePlayer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type recordingNotifier struct {
	mu       sync.Mutex
	states   []State
	messages []string
	volumes  []float64
	speaking []bool
	turns    []transcript.Turn
}

func (n *recordingNotifier) StateChanged(s State, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.states = append(n.states, s)
	n.messages = append(n.messages, msg)
}

func (n *recordingNotifier) VolumeChanged(v float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.volumes = append(n.volumes, v)
}

func (n *recordingNotifier) SpeakingChanged(v bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.speaking = append(n.speaking, v)
}

func (n *recordingNotifier) TranscriptUpdated(turns []transcript.Turn) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.turns = turns
}

func (n *recordingNotifier) lastMessage() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.messages) == 0 {
		return ""
	}
	return n.messages[len(n.messages)-1]
}

type fixture struct {
	ctrl      *Controller
	mic       *fakeMic
	player    *fakePlayer
	transport *live.MockTransport
	notifier  *recordingNotifier
	store     *store.InMemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		player:   &fakePlayer{},
		notifier: &recordingNotifier{},
		store:    store.NewInMemoryStore(),
	}
	f.ctrl = NewController(Options{
		Persona:      persona.Default(),
		FrameSamples: 64,
		Devices: Devices{
			OpenMic: func(int) (capture.Device, error) {
				f.mic = newFakeMic()
				return f.mic, nil
			},
			OpenPlayer: func() (playback.Player, playback.Clock, io.Closer, error) {
				return f.player, f.player, f.player, nil
			},
		},
		Dial: func(context.Context, live.Config) (live.Transport, error) {
			f.transport = live.NewMockTransport()
			return f.transport, nil
		},
		Records:  session.NewManager(time.Minute),
		Store:    f.store,
		Notifier: f.notifier,
	})
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}

func (f *fixture) open(t *testing.T) {
	t.Helper()
	f.start(t)
	f.transport.Emit(protocol.SetupComplete{})
	waitState(t, f.ctrl, StateOpen)
}

func waitState(t *testing.T, c *Controller, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Snapshot().State == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", c.Snapshot().State, want)
}

func waitCond(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func TestStartWhileActiveFails(t *testing.T) {
	f := newFixture(t)
	f.open(t)
	defer f.ctrl.Hangup()

	if err := f.ctrl.Start(context.Background()); !errors.Is(err, ErrCallActive) {
		t.Fatalf("second Start() = %v, want ErrCallActive", err)
	}
}

func TestOpenSeedsGreeting(t *testing.T) {
	f := newFixture(t)
	f.open(t)
	defer f.ctrl.Hangup()

	snap := f.ctrl.Snapshot()
	if len(snap.Transcript) != 1 {
		t.Fatalf("transcript = %#v", snap.Transcript)
	}
	turn := snap.Transcript[0]
	if turn.Role != transcript.RoleAgent || turn.Partial {
		t.Fatalf("greeting turn = %#v", turn)
	}
	if turn.Text != persona.Default().Greeting {
		t.Fatalf("greeting text = %q", turn.Text)
	}
}

func TestTranscriptAndAudioEvents(t *testing.T) {
	f := newFixture(t)
	f.open(t)
	defer f.ctrl.Hangup()

	f.transport.Emit(protocol.InputTranscriptDelta{Text: "my salon "})
	f.transport.Emit(protocol.InputTranscriptDelta{Text: "needs clients"})
	f.transport.Emit(protocol.OutputTranscriptDelta{Text: "let's fix that"})
	f.transport.Emit(protocol.AudioDelta{Data: "AAAAAAAAAAA="})
	f.transport.Emit(protocol.TurnComplete{})

	waitCond(t, func() bool {
		turns := f.ctrl.Snapshot().Transcript
		if len(turns) != 3 {
			return false
		}
		for _, turn := range turns {
			if turn.Partial {
				return false
			}
		}
		return true
	})

	turns := f.ctrl.Snapshot().Transcript
	if turns[1].Role != transcript.RoleUser || turns[1].Text != "my salon needs clients" {
		t.Fatalf("user turn = %#v", turns[1])
	}
	if turns[2].Role != transcript.RoleAgent || turns[2].Text != "let's fix that" {
		t.Fatalf("agent turn = %#v", turns[2])
	}

	f.player.mu.Lock()
	played := f.player.played
	f.player.mu.Unlock()
	if played != 1 {
		t.Fatalf("played buffers = %d, want 1", played)
	}
}

func TestHangupCleansUpEverything(t *testing.T) {
	f := newFixture(t)
	f.open(t)
	f.transport.Emit(protocol.OutputTranscriptDelta{Text: "still talking"})
	waitCond(t, func() bool { return len(f.ctrl.Snapshot().Transcript) == 2 })

	f.ctrl.Hangup()
	waitState(t, f.ctrl, StateClosed)
	assertCleanedUp(t, f, "")

	// Transcript survives teardown.
	snap := f.ctrl.Snapshot()
	if len(snap.Transcript) != 2 {
		t.Fatalf("transcript lost on teardown: %#v", snap.Transcript)
	}
	for _, turn := range snap.Transcript {
		if turn.Partial {
			t.Fatalf("turn still partial after teardown: %#v", turn)
		}
	}

	// Hangup again is a no-op.
	f.ctrl.Hangup()
}

func TestTransportErrorClosesWithMessage(t *testing.T) {
	f := newFixture(t)
	f.open(t)

	f.transport.Finish(errors.New("connection reset"))
	waitState(t, f.ctrl, StateClosed)
	assertCleanedUp(t, f, msgConnLost)
}

func TestCleanRemoteCloseHasNoMessage(t *testing.T) {
	f := newFixture(t)
	f.open(t)

	f.transport.Finish(nil)
	waitState(t, f.ctrl, StateClosed)
	assertCleanedUp(t, f, "")
}

// assertCleanedUp checks the single teardown contract: devices released,
// transport closed, observables zeroed.
func assertCleanedUp(t *testing.T, f *fixture, wantMsg string) {
	t.Helper()
	waitCond(t, func() bool { return f.mic.isClosed() })
	waitCond(t, func() bool { return f.transport.Closed() })
	waitCond(t, func() bool { return f.player.isClosed() })

	snap := f.ctrl.Snapshot()
	if snap.State != StateClosed {
		t.Fatalf("state = %s", snap.State)
	}
	if snap.Volume != 0 {
		t.Fatalf("volume = %v after teardown", snap.Volume)
	}
	if snap.Speaking {
		t.Fatalf("speaking after teardown")
	}
	if snap.UserMessage != wantMsg {
		t.Fatalf("user message = %q, want %q", snap.UserMessage, wantMsg)
	}
	if got := f.notifier.lastMessage(); got != wantMsg {
		t.Fatalf("notified message = %q, want %q", got, wantMsg)
	}
}

func TestFinishedCallIsPersisted(t *testing.T) {
	f := newFixture(t)
	f.open(t)
	f.transport.Emit(protocol.InputTranscriptDelta{Text: "hello"})
	waitCond(t, func() bool { return len(f.ctrl.Snapshot().Transcript) == 2 })

	f.ctrl.Hangup()
	waitState(t, f.ctrl, StateClosed)

	waitCond(t, func() bool {
		calls, err := f.store.ListCalls(context.Background(), 10)
		return err == nil && len(calls) == 1
	})
	calls, _ := f.store.ListCalls(context.Background(), 10)
	if calls[0].EndReason != session.EndReasonHangup {
		t.Fatalf("end reason = %q", calls[0].EndReason)
	}
	rec, err := f.store.GetCall(context.Background(), calls[0].ID)
	if err != nil {
		t.Fatalf("GetCall() error = %v", err)
	}
	if len(rec.Turns) != 2 {
		t.Fatalf("persisted turns = %#v", rec.Turns)
	}
}

func TestNewCallResetsTranscript(t *testing.T) {
	f := newFixture(t)
	f.open(t)
	f.transport.Emit(protocol.InputTranscriptDelta{Text: "first call"})
	waitCond(t, func() bool { return len(f.ctrl.Snapshot().Transcript) == 2 })
	f.ctrl.Hangup()
	waitState(t, f.ctrl, StateClosed)

	// Still visible after the call ends...
	if len(f.ctrl.Snapshot().Transcript) != 2 {
		t.Fatalf("transcript cleared on teardown")
	}

	// ...and cleared only by the next start.
	f.open(t)
	defer f.ctrl.Hangup()
	snap := f.ctrl.Snapshot()
	for _, turn := range snap.Transcript {
		if turn.Text == "first call" {
			t.Fatalf("old transcript survived new call: %#v", snap.Transcript)
		}
	}
}

func TestInterruptedStopsPlaybackAndCounts(t *testing.T) {
	f := newFixture(t)
	f.open(t)
	defer f.ctrl.Hangup()

	f.transport.Emit(protocol.AudioDelta{Data: "AAAAAAAAAAA="})
	f.transport.Emit(protocol.OutputTranscriptDelta{Text: "as I was say"})
	f.transport.Emit(protocol.Interrupted{})

	waitCond(t, func() bool {
		turns := f.ctrl.Snapshot().Transcript
		return len(turns) == 2 && !turns[1].Partial
	})
	waitCond(t, func() bool { return !f.ctrl.Snapshot().Speaking })
}

func TestMicFailureClosesWithMessage(t *testing.T) {
	f := newFixture(t)
	f.ctrl.opts.Devices.OpenMic = func(int) (capture.Device, error) {
		return nil, capture.ErrPermissionDenied
	}
	dialed := false
	f.ctrl.opts.Dial = func(context.Context, live.Config) (live.Transport, error) {
		dialed = true
		return live.NewMockTransport(), nil
	}

	if err := f.ctrl.Start(context.Background()); !errors.Is(err, capture.ErrPermissionDenied) {
		t.Fatalf("Start() = %v, want ErrPermissionDenied", err)
	}
	if dialed {
		t.Fatalf("dialed transport despite mic failure")
	}
	snap := f.ctrl.Snapshot()
	if snap.State != StateClosed || snap.UserMessage != msgMicFailed {
		t.Fatalf("snapshot = %#v", snap)
	}
}

func TestDialFailureReleasesMic(t *testing.T) {
	f := newFixture(t)
	f.ctrl.opts.Dial = func(context.Context, live.Config) (live.Transport, error) {
		return nil, errors.New("endpoint down")
	}

	if err := f.ctrl.Start(context.Background()); err == nil {
		t.Fatalf("Start() = nil, want dial error")
	}
	if !f.mic.isClosed() {
		t.Fatalf("mic not released after dial failure")
	}
	snap := f.ctrl.Snapshot()
	if snap.State != StateClosed || snap.UserMessage != msgConnLost {
		t.Fatalf("snapshot = %#v", snap)
	}
}

func TestCanStartAgainAfterFailure(t *testing.T) {
	f := newFixture(t)
	failDial := true
	f.ctrl.opts.Dial = func(context.Context, live.Config) (live.Transport, error) {
		if failDial {
			return nil, errors.New("endpoint down")
		}
		f.transport = live.NewMockTransport()
		return f.transport, nil
	}

	if err := f.ctrl.Start(context.Background()); err == nil {
		t.Fatalf("expected dial failure")
	}
	failDial = false
	f.start(t)
	defer f.ctrl.Hangup()
	f.transport.Emit(protocol.SetupComplete{})
	waitState(t, f.ctrl, StateOpen)
}
