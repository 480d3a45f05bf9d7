package protocol

import (
	"encoding/json"
	"fmt"
)

// Wire shapes for the realtime conversational endpoint. The client sends one
// setup message after connecting, then one realtimeInput message per captured
// audio frame. The server streams messages whose serverContent fields are not
// mutually exclusive: a single message may carry audio, transcription text and
// a turn signal at once, and every populated field must be handled.

// Blob is a base64 media payload with its MIME tag.
type Blob struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

// Part is one piece of model content; exactly one field is set.
type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

// Content is an ordered list of parts.
type Content struct {
	Parts []Part `json:"parts"`
}

// TranscriptionConfig enables live transcription for one conversation side.
// The endpoint treats presence of the (empty) object as the enable switch.
type TranscriptionConfig struct{}

type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type VoiceConfig struct {
	PrebuiltVoiceConfig *PrebuiltVoiceConfig `json:"prebuiltVoiceConfig,omitempty"`
}

type SpeechConfig struct {
	VoiceConfig *VoiceConfig `json:"voiceConfig,omitempty"`
}

type GenerationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *SpeechConfig `json:"speechConfig,omitempty"`
}

// Setup configures the session: model, audio response modality, per-side
// transcription and the agent persona prompt.
type Setup struct {
	Model                    string               `json:"model"`
	GenerationConfig         *GenerationConfig    `json:"generationConfig,omitempty"`
	SystemInstruction        *Content             `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *TranscriptionConfig `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *TranscriptionConfig `json:"outputAudioTranscription,omitempty"`
}

type SetupMessage struct {
	Setup Setup `json:"setup"`
}

// RealtimeInput carries one captured audio frame.
type RealtimeInput struct {
	Media Blob `json:"media"`
}

type RealtimeInputMessage struct {
	RealtimeInput RealtimeInput `json:"realtimeInput"`
}

// NewAudioFrameMessage wraps an already base64-encoded PCM frame for sending.
func NewAudioFrameMessage(dataBase64, mimeType string) RealtimeInputMessage {
	return RealtimeInputMessage{
		RealtimeInput: RealtimeInput{
			Media: Blob{Data: dataBase64, MimeType: mimeType},
		},
	}
}

// serverMessage mirrors the inbound wire shape.
type serverMessage struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *serverContent `json:"serverContent,omitempty"`
}

type serverContent struct {
	ModelTurn           *Content       `json:"modelTurn,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
}

type transcription struct {
	Text string `json:"text"`
}

// Tagged event variants produced by DecodeServerMessage. One wire message may
// yield several of these; consumers dispatch on the concrete type.

// SetupComplete confirms the session handshake; streaming may begin.
type SetupComplete struct{}

// AudioDelta is one base64 PCM16LE 24kHz mono payload of agent speech.
type AudioDelta struct {
	Data string
}

// InputTranscriptDelta is a text chunk of the user's transcribed speech.
type InputTranscriptDelta struct {
	Text string
}

// OutputTranscriptDelta is a text chunk of the agent's own speech.
type OutputTranscriptDelta struct {
	Text string
}

// TurnComplete signals the current exchange is finished.
type TurnComplete struct{}

// Interrupted signals the user began speaking over the agent's audio.
type Interrupted struct{}

// DecodeServerMessage decodes one inbound wire message into its event
// variants, in the order audio, input transcript, output transcript, turn
// complete, interrupted. An empty message decodes to no events.
func DecodeServerMessage(raw []byte) ([]any, error) {
	var msg serverMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid server message: %w", err)
	}

	var events []any
	if msg.SetupComplete != nil {
		events = append(events, SetupComplete{})
	}
	sc := msg.ServerContent
	if sc == nil {
		return events, nil
	}
	if sc.ModelTurn != nil && len(sc.ModelTurn.Parts) > 0 {
		if inline := sc.ModelTurn.Parts[0].InlineData; inline != nil && inline.Data != "" {
			events = append(events, AudioDelta{Data: inline.Data})
		}
	}
	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		events = append(events, InputTranscriptDelta{Text: sc.InputTranscription.Text})
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		events = append(events, OutputTranscriptDelta{Text: sc.OutputTranscription.Text})
	}
	if sc.TurnComplete {
		events = append(events, TurnComplete{})
	}
	if sc.Interrupted {
		events = append(events, Interrupted{})
	}
	return events, nil
}
