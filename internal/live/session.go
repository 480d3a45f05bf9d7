package live

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/afroluxe/concierge/internal/protocol"
)

// ErrFrameDropped reports a capture frame that was not sent: the session was
// not ready, already closed, or the send queue was full. Callers count these;
// they are not faults.
var ErrFrameDropped = errors.New("frame dropped")

// Session is one realtime connection. Two goroutines own the socket: the
// reader decodes inbound messages into Events, and a single writer drains the
// bounded frame queue, which keeps outbound frames strictly ordered. The
// writer starts sending only after the server confirms setup.
type Session struct {
	conn   *websocket.Conn
	events chan any
	sendq  chan protocol.RealtimeInputMessage

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	closeOnce sync.Once

	errMu sync.Mutex
	err   error
}

// Dial connects, performs the setup exchange and starts the session
// goroutines. The context bounds only the dial; an open session lives until
// Close or a transport failure.
func Dial(ctx context.Context, cfg Config) (*Session, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if cfg.APIKey != "" {
		q := u.Query()
		q.Set("key", cfg.APIKey)
		u.RawQuery = q.Encode()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial realtime endpoint: %w", err)
	}

	if err := conn.WriteJSON(setupMessage(cfg)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send setup: %w", err)
	}

	qsize := cfg.SendQueueSize
	if qsize <= 0 {
		qsize = DefaultSendQueueSize
	}
	s := &Session{
		conn:   conn,
		events: make(chan any, 64),
		sendq:  make(chan protocol.RealtimeInputMessage, qsize),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	go s.writeLoop()
	return s, nil
}

func setupMessage(cfg Config) protocol.SetupMessage {
	setup := protocol.Setup{
		Model: cfg.Model,
		GenerationConfig: &protocol.GenerationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
	}
	if cfg.VoiceName != "" {
		setup.GenerationConfig.SpeechConfig = &protocol.SpeechConfig{
			VoiceConfig: &protocol.VoiceConfig{
				PrebuiltVoiceConfig: &protocol.PrebuiltVoiceConfig{VoiceName: cfg.VoiceName},
			},
		}
	}
	if cfg.SystemPrompt != "" {
		setup.SystemInstruction = &protocol.Content{Parts: []protocol.Part{{Text: cfg.SystemPrompt}}}
	}
	if cfg.TranscribeInput {
		setup.InputAudioTranscription = &protocol.TranscriptionConfig{}
	}
	if cfg.TranscribeOutput {
		setup.OutputAudioTranscription = &protocol.TranscriptionConfig{}
	}
	return protocol.SetupMessage{Setup: setup}
}

// Events implements Transport.
func (s *Session) Events() <-chan any { return s.events }

// SendFrame implements Transport. Frames offered before setup completes or
// while the queue is full are dropped, never queued out of order and never
// blocked on.
func (s *Session) SendFrame(pcm []byte) error {
	select {
	case <-s.done:
		return ErrFrameDropped
	default:
	}
	select {
	case <-s.ready:
	default:
		return ErrFrameDropped
	}
	msg := protocol.NewAudioFrameMessage(base64.StdEncoding.EncodeToString(pcm), frameMimeType)
	select {
	case s.sendq <- msg:
		return nil
	default:
		return ErrFrameDropped
	}
}

// Err implements Transport.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close implements Transport. The reader observes the closed socket, records
// no error for this local shutdown, and closes Events.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
	return nil
}

func (s *Session) readLoop() {
	defer close(s.events)
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.recordReadError(err)
			s.Close()
			return
		}
		events, err := protocol.DecodeServerMessage(raw)
		if err != nil {
			s.recordReadError(err)
			s.Close()
			return
		}
		for _, ev := range events {
			if _, ok := ev.(protocol.SetupComplete); ok {
				s.readyOnce.Do(func() { close(s.ready) })
			}
			select {
			case s.events <- ev:
			case <-s.done:
				return
			}
		}
	}
}

// recordReadError keeps the first terminal error. A read failure after a
// local Close, or a normal remote close frame, counts as clean.
func (s *Session) recordReadError(err error) {
	select {
	case <-s.done:
		return
	default:
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
}

func (s *Session) writeLoop() {
	select {
	case <-s.ready:
	case <-s.done:
		return
	}
	for {
		select {
		case msg := <-s.sendq:
			if err := s.conn.WriteJSON(msg); err != nil {
				// The reader sees the same broken socket and
				// surfaces it; the writer just stops.
				return
			}
		case <-s.done:
			return
		}
	}
}
