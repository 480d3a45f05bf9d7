// Package call coordinates one voice call end to end: microphone capture,
// the realtime transport, playback scheduling and the transcript, plus the
// observables the UI renders. A controller runs at most one call at a time;
// ending a call never retries or reconnects anything.
package call

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/afroluxe/concierge/internal/capture"
	"github.com/afroluxe/concierge/internal/live"
	"github.com/afroluxe/concierge/internal/observability"
	"github.com/afroluxe/concierge/internal/persona"
	"github.com/afroluxe/concierge/internal/playback"
	"github.com/afroluxe/concierge/internal/protocol"
	"github.com/afroluxe/concierge/internal/session"
	"github.com/afroluxe/concierge/internal/store"
	"github.com/afroluxe/concierge/internal/summary"
	"github.com/afroluxe/concierge/internal/transcript"
)

// State is the call connection state shown to the visitor.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
)

// User-facing failure strings. Everything else stays in logs.
const (
	msgMicFailed      = "Mic access failed."
	msgConnLost       = "Connection lost."
	msgPlaybackFailed = "Speaker unavailable."
)

// ErrCallActive reports a start attempt while a call is connecting or open.
var ErrCallActive = errors.New("a call is already active")

// Notifier receives observable updates. Implementations must not block; the
// http layer fans these out to its event stream.
type Notifier interface {
	StateChanged(state State, userMessage string)
	VolumeChanged(level float64)
	SpeakingChanged(speaking bool)
	TranscriptUpdated(turns []transcript.Turn)
}

// Dialer opens the realtime transport. Production uses live.Dial.
type Dialer func(ctx context.Context, cfg live.Config) (live.Transport, error)

// Devices supplies the audio hardware. Production wires PortAudio; tests
// substitute fakes.
type Devices struct {
	OpenMic    func(frameSamples int) (capture.Device, error)
	OpenPlayer func() (playback.Player, playback.Clock, io.Closer, error)
}

// Options wires a controller.
type Options struct {
	Live         live.Config
	Persona      persona.Persona
	FrameSamples int
	Devices      Devices
	Dial         Dialer
	Records      *session.Manager
	Store        store.Store
	Summarizer   *summary.LeadSummarizer
	Metrics      *observability.Metrics
	Notifier     Notifier
}

// Controller owns the call lifecycle state machine.
type Controller struct {
	opts Options

	mu         sync.Mutex
	notifier   Notifier
	state      State
	userMsg    string
	volume     float64
	speaking   bool
	active     *activeCall
	transcript *transcript.Assembler
}

type activeCall struct {
	id        string
	transport live.Transport
	mic       capture.Device
	pipeline  *capture.Pipeline
	scheduler *playback.Scheduler
	speaker   io.Closer

	openMu     sync.Mutex
	openAt     time.Time
	firstAudio bool

	teardownOnce sync.Once
}

func NewController(opts Options) *Controller {
	return &Controller{
		opts:       opts,
		notifier:   opts.Notifier,
		state:      StateIdle,
		transcript: transcript.NewAssembler(),
	}
}

// SetNotifier wires the observable sink after construction; the http layer
// needs the controller first. Call before the first Start.
func (c *Controller) SetNotifier(n Notifier) {
	c.mu.Lock()
	c.notifier = n
	c.mu.Unlock()
}

func (c *Controller) getNotifier() Notifier {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notifier
}

// Snapshot is the full observable state for the UI.
type Snapshot struct {
	CallID      string            `json:"call_id,omitempty"`
	State       State             `json:"state"`
	UserMessage string            `json:"user_message,omitempty"`
	Volume      float64           `json:"volume"`
	Speaking    bool              `json:"speaking"`
	Transcript  []transcript.Turn `json:"transcript"`
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	var id string
	if c.active != nil {
		id = c.active.id
	}
	return Snapshot{
		CallID:      id,
		State:       c.state,
		UserMessage: c.userMsg,
		Volume:      c.volume,
		Speaking:    c.speaking,
		Transcript:  c.transcript.Turns(),
	}
}

// Start begins a new call. The previous call's transcript is discarded here
// and nowhere else. Failures before the call opens clean up what was already
// acquired and land in Closed with a user-facing message.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateOpen {
		c.mu.Unlock()
		return ErrCallActive
	}
	c.transcript.Reset()
	c.state = StateConnecting
	c.userMsg = ""
	c.mu.Unlock()

	c.notifyTranscript()
	c.notifyState(StateConnecting, "")
	c.countEvent("start")

	mic, err := c.opts.Devices.OpenMic(c.opts.FrameSamples)
	if err != nil {
		log.Printf("call: microphone open failed: %v", err)
		c.countEvent("mic_failed")
		c.setClosed(msgMicFailed)
		return err
	}

	player, clock, speaker, err := c.opts.Devices.OpenPlayer()
	if err != nil {
		log.Printf("call: speaker open failed: %v", err)
		mic.Close()
		c.countEvent("speaker_failed")
		c.setClosed(msgPlaybackFailed)
		return err
	}

	transport, err := c.opts.Dial(ctx, c.opts.Live)
	if err != nil {
		log.Printf("call: dial failed: %v", err)
		mic.Close()
		if speaker != nil {
			speaker.Close()
		}
		c.countEvent("dial_failed")
		c.setClosed(msgConnLost)
		return err
	}

	a := &activeCall{
		id:        c.opts.Records.Create(),
		transport: transport,
		mic:       mic,
		speaker:   speaker,
	}
	a.scheduler = playback.NewScheduler(clock, player, func(speaking bool) {
		c.setSpeaking(speaking)
		c.opts.Records.Touch(a.id)
	})
	a.pipeline = capture.NewPipeline(mic, transport, c.setVolume, func() {
		if c.opts.Metrics != nil {
			c.opts.Metrics.DroppedFrames.Inc()
		}
	})

	c.mu.Lock()
	c.active = a
	c.mu.Unlock()
	if c.opts.Metrics != nil {
		c.opts.Metrics.ActiveCalls.Inc()
	}

	go func() {
		if err := a.pipeline.Run(); err != nil {
			log.Printf("call %s: capture failed: %v", a.id, err)
			c.teardown(a, session.EndReasonError, msgMicFailed)
		}
	}()
	go c.demux(a)

	log.Printf("call %s: connecting", a.id)
	return nil
}

// Hangup ends the active call. No-op when nothing is active.
func (c *Controller) Hangup() {
	c.mu.Lock()
	a := c.active
	c.mu.Unlock()
	if a == nil {
		return
	}
	c.countEvent("hangup")
	c.teardown(a, session.EndReasonHangup, "")
}

// demux dispatches transport events until the stream closes, then tears the
// call down with a reason derived from the transport's terminal error. One
// wire message may have produced several of these events; each is handled on
// its own.
func (c *Controller) demux(a *activeCall) {
	for ev := range a.transport.Events() {
		switch ev := ev.(type) {
		case protocol.SetupComplete:
			c.onOpen(a)
		case protocol.AudioDelta:
			c.countMessage("in", "audio")
			c.observeFirstAudio(a)
			if err := a.scheduler.ScheduleDelta(ev.Data); err != nil {
				log.Printf("call %s: playback: %v", a.id, err)
			}
			c.opts.Records.Touch(a.id)
		case protocol.InputTranscriptDelta:
			c.countMessage("in", "input_transcript")
			c.transcript.Append(transcript.RoleUser, ev.Text)
			c.notifyTranscript()
			c.opts.Records.Touch(a.id)
		case protocol.OutputTranscriptDelta:
			c.countMessage("in", "output_transcript")
			c.transcript.Append(transcript.RoleAgent, ev.Text)
			c.notifyTranscript()
		case protocol.TurnComplete:
			c.countMessage("in", "turn_complete")
			c.transcript.FinalizeAll()
			c.notifyTranscript()
		case protocol.Interrupted:
			c.countMessage("in", "interrupted")
			c.countEvent("interrupted")
			a.scheduler.Interrupt()
			c.transcript.FinalizeAll()
			c.notifyTranscript()
			c.opts.Records.Interrupt(a.id)
		}
	}

	if err := a.transport.Err(); err != nil {
		log.Printf("call %s: transport failed: %v", a.id, err)
		c.countEvent("transport_error")
		if c.opts.Metrics != nil {
			c.opts.Metrics.TransportErrors.WithLabelValues("read").Inc()
		}
		c.teardown(a, session.EndReasonError, msgConnLost)
		return
	}
	c.countEvent("transport_closed")
	c.teardown(a, session.EndReasonClosed, "")
}

func (c *Controller) onOpen(a *activeCall) {
	a.openMu.Lock()
	a.openAt = time.Now()
	a.openMu.Unlock()

	c.mu.Lock()
	alreadyOpen := c.state != StateConnecting
	if !alreadyOpen {
		c.state = StateOpen
	}
	c.mu.Unlock()
	if alreadyOpen {
		return
	}

	c.notifyState(StateOpen, "")
	c.countEvent("open")
	if c.opts.Persona.Greeting != "" {
		c.transcript.AppendFinal(transcript.RoleAgent, c.opts.Persona.Greeting)
		c.notifyTranscript()
	}
	log.Printf("call %s: open", a.id)
}

func (c *Controller) observeFirstAudio(a *activeCall) {
	a.openMu.Lock()
	defer a.openMu.Unlock()
	if a.firstAudio || a.openAt.IsZero() {
		return
	}
	a.firstAudio = true
	if c.opts.Metrics != nil {
		c.opts.Metrics.ObserveFirstAudioLatency(time.Since(a.openAt))
	}
}

// teardown is the single cleanup path for an open or connecting call,
// whatever ended it: hangup, transport failure or a clean remote close. It
// runs exactly once per call.
func (c *Controller) teardown(a *activeCall, reason, userMsg string) {
	a.teardownOnce.Do(func() {
		a.pipeline.Stop()
		a.mic.Close()
		a.pipeline.Wait()
		a.transport.Close()
		a.scheduler.Interrupt()
		if a.speaker != nil {
			a.speaker.Close()
		}

		c.transcript.FinalizeAll()
		c.notifyTranscript()
		c.setVolume(0)
		c.setSpeaking(false)

		c.mu.Lock()
		c.active = nil
		c.mu.Unlock()
		c.setClosed(userMsg)
		if c.opts.Metrics != nil {
			c.opts.Metrics.ActiveCalls.Dec()
		}

		rec, ok := c.opts.Records.End(a.id, reason)
		if ok {
			c.persist(a, rec)
		}
		log.Printf("call %s: closed (%s)", a.id, reason)
	})
}

// persist saves the finished call and, when configured, kicks off the lead
// summary in the background. The transcript itself stays on screen; only the
// copy goes to the store.
func (c *Controller) persist(a *activeCall, rec session.Record) {
	if c.opts.Store == nil {
		return
	}
	turns := c.transcript.Turns()
	saved := store.CallRecord{
		ID:            rec.ID,
		StartedAt:     rec.StartedAt,
		EndedAt:       rec.EndedAt,
		DurationMS:    rec.EndedAt.Sub(rec.StartedAt).Milliseconds(),
		Interruptions: rec.Interruptions,
		EndReason:     rec.EndReason,
	}
	for _, t := range turns {
		saved.Turns = append(saved.Turns, store.TurnRecord{ID: t.ID, Role: t.Role, Text: t.Text})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.opts.Store.SaveCall(ctx, saved); err != nil {
		log.Printf("call %s: save failed: %v", a.id, err)
		return
	}
	c.opts.Records.Remove(a.id)

	if c.opts.Summarizer != nil && len(saved.Turns) > 0 {
		go c.summarize(saved)
	}
}

func (c *Controller) summarize(rec store.CallRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	note, err := c.opts.Summarizer.Summarize(ctx, rec)
	if err != nil {
		log.Printf("call %s: summary skipped: %v", rec.ID, err)
		return
	}
	if err := c.opts.Store.SetSummary(ctx, rec.ID, note); err != nil {
		log.Printf("call %s: summary save failed: %v", rec.ID, err)
	}
}

func (c *Controller) setClosed(userMsg string) {
	c.mu.Lock()
	c.state = StateClosed
	c.userMsg = userMsg
	c.mu.Unlock()
	c.notifyState(StateClosed, userMsg)
}

func (c *Controller) setVolume(level float64) {
	c.mu.Lock()
	changed := c.volume != level
	c.volume = level
	n := c.notifier
	c.mu.Unlock()
	if changed && n != nil {
		n.VolumeChanged(level)
	}
}

func (c *Controller) setSpeaking(speaking bool) {
	c.mu.Lock()
	changed := c.speaking != speaking
	c.speaking = speaking
	n := c.notifier
	c.mu.Unlock()
	if changed && n != nil {
		n.SpeakingChanged(speaking)
	}
}

func (c *Controller) notifyState(state State, userMsg string) {
	if n := c.getNotifier(); n != nil {
		n.StateChanged(state, userMsg)
	}
}

func (c *Controller) notifyTranscript() {
	if n := c.getNotifier(); n != nil {
		n.TranscriptUpdated(c.transcript.Turns())
	}
}

func (c *Controller) countEvent(event string) {
	if c.opts.Metrics != nil {
		c.opts.Metrics.CallEvents.WithLabelValues(event).Inc()
	}
}

func (c *Controller) countMessage(direction, typ string) {
	if c.opts.Metrics != nil {
		c.opts.Metrics.WSMessages.WithLabelValues(direction, typ).Inc()
	}
}
