// Package playback schedules decoded agent audio onto a gapless timeline.
// Audio arrives as base64 PCM16LE 24kHz chunks; each chunk starts either at
// the tail of the previous one or immediately, whichever is later, so back to
// back deltas play without gaps and a late delta after silence plays at once.
package playback

import (
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/afroluxe/concierge/internal/audio"
)

// Clock reports the playback timeline position in seconds. The real clock is
// the audio device's stream time; tests substitute a fake.
type Clock interface {
	Now() float64
}

// Handle controls one scheduled buffer. Stop halts it early; a stopped buffer
// must not fire its completion callback.
type Handle interface {
	Stop()
}

// Player starts playback of a sample buffer at a timeline position. The done
// callback fires once on natural completion, never synchronously from Play
// and never after Stop.
type Player interface {
	Play(samples []float32, startAt float64, done func()) (Handle, error)
}

// Scheduler owns the timeline cursor and the set of in-flight buffers.
type Scheduler struct {
	mu         sync.Mutex
	clock      Clock
	player     Player
	sampleRate int

	nextStart float64
	gen       uint64
	nextID    uint64
	active    map[uint64]Handle

	speaking   bool
	onSpeaking func(bool)
}

// NewScheduler builds a scheduler over the given device pair. onSpeaking is
// invoked (under no lock) on every speaking transition; nil is allowed.
func NewScheduler(clock Clock, player Player, onSpeaking func(bool)) *Scheduler {
	return &Scheduler{
		clock:      clock,
		player:     player,
		sampleRate: audio.PlaybackSampleRate,
		active:     make(map[uint64]Handle),
		onSpeaking: onSpeaking,
	}
}

// ScheduleDelta decodes one base64 PCM payload and appends it to the
// timeline. The first buffer of a response flips speaking on.
func (s *Scheduler) ScheduleDelta(dataBase64 string) error {
	raw, err := base64.StdEncoding.DecodeString(dataBase64)
	if err != nil {
		return fmt.Errorf("decode audio delta: %w", err)
	}
	samples := audio.PCM16LEToFloat32(raw)
	if len(samples) == 0 {
		return nil
	}

	s.mu.Lock()
	start := s.nextStart
	if now := s.clock.Now(); now > start {
		start = now
	}
	gen := s.gen
	id := s.nextID
	s.nextID++

	handle, err := s.player.Play(samples, start, func() { s.complete(gen, id) })
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("start playback: %w", err)
	}
	s.nextStart = start + audio.Duration(len(samples), s.sampleRate)
	s.active[id] = handle
	notify := !s.speaking
	s.speaking = true
	s.mu.Unlock()

	if notify && s.onSpeaking != nil {
		s.onSpeaking(true)
	}
	return nil
}

// complete removes a naturally-finished buffer. Callbacks from a previous
// generation (fired around an interrupt or teardown) are ignored.
func (s *Scheduler) complete(gen, id uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	delete(s.active, id)
	notify := s.speaking && len(s.active) == 0
	if notify {
		s.speaking = false
	}
	s.mu.Unlock()

	if notify && s.onSpeaking != nil {
		s.onSpeaking(false)
	}
}

// Interrupt hard-stops everything in flight and rewinds the cursor to zero,
// so the next delta plays immediately. Used both when the user talks over the
// agent and on call teardown.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	handles := make([]Handle, 0, len(s.active))
	for _, h := range s.active {
		handles = append(handles, h)
	}
	s.active = make(map[uint64]Handle)
	s.gen++
	s.nextStart = 0
	notify := s.speaking
	s.speaking = false
	s.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}
	if notify && s.onSpeaking != nil {
		s.onSpeaking(false)
	}
}

// Speaking reports whether any agent audio is scheduled or playing.
func (s *Scheduler) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// ActiveBuffers reports the number of in-flight buffers.
func (s *Scheduler) ActiveBuffers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}
