// Package live speaks the realtime duplex protocol of the conversational
// audio endpoint: one websocket per call, microphone frames out, tagged
// events in. There is exactly one connection attempt per call; the package
// never retries or reconnects.
package live

import "github.com/afroluxe/concierge/internal/audio"

// DefaultEndpoint is the bidirectional streaming endpoint of the hosted
// realtime API.
const DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// DefaultSendQueueSize bounds the outbound frame queue. At ~256ms per frame
// this is several seconds of backlog; past that, frames drop.
const DefaultSendQueueSize = 32

// Config parameterizes one session.
type Config struct {
	// Endpoint is the websocket URL without credentials. Empty selects
	// DefaultEndpoint.
	Endpoint string
	// APIKey authenticates the connection (query parameter).
	APIKey string
	// Model is the realtime model ID, e.g. a native-audio variant.
	Model string
	// VoiceName selects the prebuilt voice for agent speech.
	VoiceName string
	// SystemPrompt is the persona instruction sent in setup.
	SystemPrompt string
	// TranscribeInput and TranscribeOutput enable live transcription of
	// the respective conversation side.
	TranscribeInput  bool
	TranscribeOutput bool
	// SendQueueSize bounds the outbound queue; zero selects the default.
	SendQueueSize int
}

// Transport is the session surface the call coordinator depends on. *Session
// is the real implementation; tests substitute a scripted one.
type Transport interface {
	// Events yields decoded protocol events. The channel closes when the
	// connection ends for any reason.
	Events() <-chan any
	// SendFrame enqueues one PCM16LE capture frame for sending. A frame
	// that cannot be enqueued (queue full, session not ready or closed)
	// is dropped; ErrFrameDropped reports that.
	SendFrame(pcm []byte) error
	// Err reports why the session ended, nil for a locally-initiated
	// clean close. Valid once Events is closed.
	Err() error
	// Close tears the connection down. Idempotent.
	Close() error
}

// frameMimeType tags outbound frames; the endpoint requires the rate suffix.
const frameMimeType = audio.CaptureMimeType
