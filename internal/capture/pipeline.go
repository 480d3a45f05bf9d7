package capture

import (
	"errors"
	"sync"

	"github.com/afroluxe/concierge/internal/audio"
)

// FrameSink accepts encoded capture frames. The live session implements it;
// a sink error means the frame did not go out, which the pipeline treats as a
// silent drop rather than a fault.
type FrameSink interface {
	SendFrame(pcm []byte) error
}

// Pipeline pumps frames from a device into a sink. Per frame it publishes a
// 0-100 display level through onLevel and counts drops through onDrop; both
// callbacks may be nil.
type Pipeline struct {
	dev     Device
	sink    FrameSink
	onLevel func(float64)
	onDrop  func()

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewPipeline(dev Device, sink FrameSink, onLevel func(float64), onDrop func()) *Pipeline {
	return &Pipeline{
		dev:     dev,
		sink:    sink,
		onLevel: onLevel,
		onDrop:  onDrop,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Run pumps until Stop is called or the device fails. A device read error
// ends the pump and is returned; send failures only count as drops.
func (p *Pipeline) Run() error {
	defer close(p.done)
	for {
		select {
		case <-p.stop:
			return nil
		default:
		}

		samples, err := p.dev.Read()
		if err != nil {
			select {
			case <-p.stop:
				// Read failures during teardown are expected; the
				// device is being closed under us.
				return nil
			default:
			}
			return err
		}
		if p.onLevel != nil {
			p.onLevel(audio.DisplayLevel(samples))
		}
		if err := p.sink.SendFrame(audio.Float32ToPCM16LE(samples)); err != nil {
			if p.onDrop != nil {
				p.onDrop()
			}
		}
	}
}

// Stop signals the pump to end. It does not wait: the pump may be blocked in
// a device read, which only returns once the caller closes the device. Safe
// to call more than once.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

// Wait blocks until Run has returned.
func (p *Pipeline) Wait() {
	<-p.done
}

// ErrSinkClosed is a conventional sink error for a transport that is not
// accepting frames. Sinks may return any error; this one exists so tests and
// sinks agree on a name.
var ErrSinkClosed = errors.New("frame sink closed")
