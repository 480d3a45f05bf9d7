package playback

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/afroluxe/concierge/internal/audio"
)

const speakerFrameSamples = 1024

// Speaker plays scheduled buffers on the default output device. It implements
// Player and Clock: a single writer goroutine feeds the PortAudio stream from
// a FIFO of jobs, sleeping until each job's start time, which preserves the
// scheduler's ordering. Stream writes are blocking, so consecutive jobs are
// naturally gapless.
type Speaker struct {
	stream *portaudio.Stream
	buf    []float32
	epoch  time.Time

	mu     sync.Mutex
	queue  []*playJob
	wake   chan struct{}
	closed bool
	done   chan struct{}
}

type playJob struct {
	samples   []float32
	startAt   float64
	done      func()
	cancelled atomic.Bool
}

// Stop marks the job cancelled. The feeder drops it at the next frame
// boundary and skips its completion callback.
func (j *playJob) Stop() { j.cancelled.Store(true) }

// OpenSpeaker opens the default output device at the playback rate. The
// caller must have initialized PortAudio.
func OpenSpeaker() (*Speaker, error) {
	s := &Speaker{
		buf:   make([]float32, speakerFrameSamples),
		epoch: time.Now(),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(audio.PlaybackSampleRate), speakerFrameSamples, s.buf)
	if err != nil {
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start output stream: %w", err)
	}
	s.stream = stream
	go s.feed()
	return s, nil
}

// Now returns seconds since the speaker opened. The scheduler only compares
// these values against its own cursor, so any monotonic origin works.
func (s *Speaker) Now() float64 {
	return time.Since(s.epoch).Seconds()
}

// Play enqueues one buffer. The feeder goroutine plays jobs strictly in
// enqueue order, which matches the scheduler's timeline order.
func (s *Speaker) Play(samples []float32, startAt float64, done func()) (Handle, error) {
	job := &playJob{samples: samples, startAt: startAt, done: done}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("speaker closed")
	}
	s.queue = append(s.queue, job)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return job, nil
}

func (s *Speaker) feed() {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			close(s.done)
			return
		}
		var job *playJob
		if len(s.queue) > 0 {
			job = s.queue[0]
			s.queue = s.queue[1:]
		}
		s.mu.Unlock()

		if job == nil {
			<-s.wake
			continue
		}
		if job.cancelled.Load() {
			continue
		}
		if wait := job.startAt - s.Now(); wait > 0 {
			time.Sleep(time.Duration(wait * float64(time.Second)))
		}
		if s.write(job) {
			job.done()
		}
	}
}

// write streams the job frame by frame, checking for cancellation between
// frames. It reports whether the job ran to natural completion.
func (s *Speaker) write(job *playJob) bool {
	samples := job.samples
	for len(samples) > 0 {
		if job.cancelled.Load() {
			return false
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return false
		}
		n := copy(s.buf, samples)
		for i := n; i < len(s.buf); i++ {
			s.buf[i] = 0
		}
		err := s.stream.Write()
		s.mu.Unlock()
		if err != nil {
			return false
		}
		samples = samples[n:]
	}
	return !job.cancelled.Load()
}

// Close stops the feeder and releases the stream. Queued jobs are discarded
// without their callbacks firing.
func (s *Speaker) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.queue = nil
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	<-s.done
	if err := s.stream.Stop(); err != nil {
		s.stream.Close()
		return fmt.Errorf("stop output stream: %w", err)
	}
	return s.stream.Close()
}
