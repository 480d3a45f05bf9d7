package httpapi

import (
	"time"

	"github.com/afroluxe/concierge/internal/call"
	"github.com/afroluxe/concierge/internal/transcript"
)

// Event payloads pushed over the UI event socket. Each carries its type tag
// so the page can dispatch without sniffing fields.

type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func newEvent(typ string) Event {
	return Event{Type: typ, Timestamp: time.Now().UTC()}
}

type StateEvent struct {
	Event
	State       call.State `json:"state"`
	UserMessage string     `json:"user_message,omitempty"`
}

type VolumeEvent struct {
	Event
	Volume float64 `json:"volume"`
}

type SpeakingEvent struct {
	Event
	Speaking bool `json:"speaking"`
}

type TranscriptEvent struct {
	Event
	Turns []transcript.Turn `json:"turns"`
}
