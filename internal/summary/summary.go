// Package summary turns a finished call's transcript into a short lead note
// for the agency team. Generation happens after teardown, off the call path;
// a failure here never affects the call itself.
package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/afroluxe/concierge/internal/store"
	"github.com/afroluxe/concierge/internal/transcript"
)

// ErrEmptyTranscript reports a call with nothing worth summarizing.
var ErrEmptyTranscript = errors.New("empty transcript")

// Completer produces one text completion. The real implementation is the
// Gemini client; tests script one.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

const summarizerPrompt = `You summarize sales calls between a salon growth consultant and a salon owner. Write 2-3 sentences: who the caller is, their main pain point, and how warm the lead seems. Plain text, no headings.`

// LeadSummarizer generates lead notes from stored calls.
type LeadSummarizer struct {
	completer Completer
}

func NewLeadSummarizer(c Completer) *LeadSummarizer {
	return &LeadSummarizer{completer: c}
}

// Summarize renders the transcript as "role: text" lines and asks the model
// for a lead note.
func (s *LeadSummarizer) Summarize(ctx context.Context, rec store.CallRecord) (string, error) {
	var b strings.Builder
	for _, turn := range rec.Turns {
		text := strings.TrimSpace(turn.Text)
		if text == "" {
			continue
		}
		speaker := "caller"
		if turn.Role == transcript.RoleAgent {
			speaker = "consultant"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, text)
	}
	if b.Len() == 0 {
		return "", ErrEmptyTranscript
	}

	note, err := s.completer.Complete(ctx, summarizerPrompt, b.String())
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}
	note = strings.TrimSpace(note)
	if note == "" {
		return "", errors.New("model returned empty summary")
	}
	return note, nil
}
