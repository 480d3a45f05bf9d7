// Package capture reads microphone audio and feeds it to the live transport
// as fixed-size PCM frames, publishing a display level per frame along the
// way.
package capture

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gordonklaus/portaudio"

	"github.com/afroluxe/concierge/internal/audio"
)

// Open failures collapse into two cases the UI can phrase for the visitor:
// the OS refused access, or no usable device exists.
var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceUnavailable = errors.New("microphone unavailable")
)

// Device is a started capture source producing one frame per Read.
type Device interface {
	// Read blocks until a full frame of samples is available and returns
	// it. The returned slice is only valid until the next Read.
	Read() ([]float32, error)
	Close() error
}

// Mic captures mono float32 frames from the default input device.
type Mic struct {
	stream *portaudio.Stream
	buf    []float32
}

// OpenMic opens and starts the default input device at the capture rate. The
// caller must have initialized PortAudio.
func OpenMic(frameSamples int) (*Mic, error) {
	if frameSamples <= 0 {
		frameSamples = audio.CaptureFrameSamples
	}
	buf := make([]float32, frameSamples)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(audio.CaptureSampleRate), frameSamples, buf)
	if err != nil {
		return nil, classifyOpenError(err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, classifyOpenError(err)
	}
	return &Mic{stream: stream, buf: buf}, nil
}

func (m *Mic) Read() ([]float32, error) {
	if err := m.stream.Read(); err != nil {
		return nil, fmt.Errorf("read capture frame: %w", err)
	}
	return m.buf, nil
}

func (m *Mic) Close() error {
	if err := m.stream.Stop(); err != nil {
		m.stream.Close()
		return fmt.Errorf("stop capture stream: %w", err)
	}
	return m.stream.Close()
}

// classifyOpenError maps PortAudio open failures onto the two user-facing
// cases. Host APIs word permission refusals inconsistently, so this matches
// on substrings and defaults to "unavailable".
func classifyOpenError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "denied") || strings.Contains(msg, "not allowed") {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}
