package capture

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// scriptedDevice yields a fixed sequence of frames, then blocks until closed.
type scriptedDevice struct {
	frames [][]float32
	i      int
	closed chan struct{}
	once   sync.Once
}

func newScriptedDevice(frames ...[]float32) *scriptedDevice {
	return &scriptedDevice{frames: frames, closed: make(chan struct{})}
}

func (d *scriptedDevice) Read() ([]float32, error) {
	if d.i < len(d.frames) {
		f := d.frames[d.i]
		d.i++
		return f, nil
	}
	<-d.closed
	return nil, errors.New("device closed")
}

func (d *scriptedDevice) Close() error {
	d.once.Do(func() { close(d.closed) })
	return nil
}

type collectSink struct {
	mu     sync.Mutex
	frames [][]byte
	errs   []error
}

func (s *collectSink) SendFrame(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return err
		}
	}
	s.frames = append(s.frames, pcm)
	return nil
}

func (s *collectSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func TestPipelineEncodesFramesAndPublishesLevels(t *testing.T) {
	frame := make([]float32, 64)
	for i := range frame {
		frame[i] = 0.01
	}
	dev := newScriptedDevice(frame, frame)
	sink := &collectSink{}

	var mu sync.Mutex
	var levels []float64
	p := NewPipeline(dev, sink, func(v float64) {
		mu.Lock()
		levels = append(levels, v)
		mu.Unlock()
	}, nil)

	ran := make(chan error, 1)
	go func() { ran <- p.Run() }()

	waitFor(t, func() bool { return sink.count() == 2 })
	p.Stop()
	dev.Close()
	p.Wait()
	if err := <-ran; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := len(sink.frames[0]); got != 128 {
		t.Fatalf("frame bytes = %d, want 128", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(levels) != 2 {
		t.Fatalf("levels = %d, want 2", len(levels))
	}
	if levels[0] < 4.9 || levels[0] > 5.1 {
		t.Fatalf("level = %v, want ~5", levels[0])
	}
}

func TestPipelineCountsDropsAndKeepsPumping(t *testing.T) {
	frame := make([]float32, 16)
	dev := newScriptedDevice(frame, frame, frame)
	sink := &collectSink{errs: []error{ErrSinkClosed, nil, nil}}

	var drops int32
	var mu sync.Mutex
	p := NewPipeline(dev, sink, nil, func() {
		mu.Lock()
		drops++
		mu.Unlock()
	})

	go p.Run()
	waitFor(t, func() bool { return sink.count() == 2 })
	p.Stop()
	dev.Close()
	p.Wait()

	mu.Lock()
	defer mu.Unlock()
	if drops != 1 {
		t.Fatalf("drops = %d, want 1", drops)
	}
}

func TestPipelineStopDuringBlockedReadIsClean(t *testing.T) {
	dev := newScriptedDevice() // blocks on first read
	p := NewPipeline(dev, &collectSink{}, nil, nil)

	ran := make(chan error, 1)
	go func() { ran <- p.Run() }()

	p.Stop()
	dev.Close()
	p.Wait()
	if err := <-ran; err != nil {
		t.Fatalf("Run() after stop = %v, want nil", err)
	}
	// Stop is idempotent.
	p.Stop()
}

func TestPipelineSurfacesDeviceFailure(t *testing.T) {
	dev := newScriptedDevice()
	p := NewPipeline(dev, &collectSink{}, nil, nil)

	ran := make(chan error, 1)
	go func() { ran <- p.Run() }()

	// Device dies without Stop having been called.
	dev.Close()
	select {
	case err := <-ran:
		if err == nil {
			t.Fatalf("Run() = nil, want device error")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run() did not return after device failure")
	}
}

func waitFor(t *testing.T, cond func() bool) {
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
