package live

import "sync"

// MockTransport is a scripted Transport for tests. The test pushes events
// with Emit and ends the stream with Finish; sent frames are recorded.
type MockTransport struct {
	mu     sync.Mutex
	events chan any
	frames [][]byte
	open   bool
	closed bool
	err    error

	onClose func()
}

func NewMockTransport() *MockTransport {
	return &MockTransport{events: make(chan any, 64), open: true}
}

// Emit delivers one event to the consumer.
func (m *MockTransport) Emit(ev any) { m.events <- ev }

// Finish ends the stream with the given terminal error (nil for a clean
// remote close).
func (m *MockTransport) Finish(err error) {
	m.mu.Lock()
	if !m.open {
		m.mu.Unlock()
		return
	}
	m.open = false
	m.err = err
	m.mu.Unlock()
	close(m.events)
}

func (m *MockTransport) Events() <-chan any { return m.events }

func (m *MockTransport) SendFrame(pcm []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || !m.open {
		return ErrFrameDropped
	}
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	m.frames = append(m.frames, cp)
	return nil
}

func (m *MockTransport) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	wasOpen := m.open && !m.closed
	m.closed = true
	onClose := m.onClose
	m.mu.Unlock()
	if wasOpen {
		m.Finish(nil)
	}
	if onClose != nil {
		onClose()
	}
	return nil
}

// Closed reports whether Close has been called.
func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Frames returns the frames accepted so far.
func (m *MockTransport) Frames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.frames))
	copy(out, m.frames)
	return out
}

// OnClose registers a hook invoked from Close.
func (m *MockTransport) OnClose(fn func()) {
	m.mu.Lock()
	m.onClose = fn
	m.mu.Unlock()
}
