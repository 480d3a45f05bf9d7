// Package transcript accumulates the rolling conversation transcript of one
// voice call. Transcription text arrives as partial deltas per side; deltas
// for a side fold into that side's open turn until the turn is finalized.
package transcript

import (
	"sync"

	"github.com/google/uuid"
)

// Role identifies which side of the conversation a turn belongs to.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Turn is one contiguous utterance by one side. Partial is true while deltas
// may still fold into it.
type Turn struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Text    string `json:"text"`
	Partial bool   `json:"partial"`
}

// Assembler folds transcription deltas into turns. It keeps one open turn per
// role at most; interleaved deltas for different roles never merge.
type Assembler struct {
	mu    sync.Mutex
	turns []Turn
	open  map[Role]int
}

func NewAssembler() *Assembler {
	return &Assembler{open: make(map[Role]int)}
}

// Append folds a delta into the role's open turn, or opens a new partial turn
// when none is open. Empty deltas are ignored.
func (a *Assembler) Append(role Role, text string) {
	if text == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if i, ok := a.open[role]; ok {
		a.turns[i].Text += text
		return
	}
	a.turns = append(a.turns, Turn{
		ID:      uuid.NewString(),
		Role:    role,
		Text:    text,
		Partial: true,
	})
	a.open[role] = len(a.turns) - 1
}

// AppendFinal records an already-complete turn, such as the scripted greeting
// played when the call opens. It never becomes a fold target.
func (a *Assembler) AppendFinal(role Role, text string) {
	if text == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.turns = append(a.turns, Turn{
		ID:   uuid.NewString(),
		Role: role,
		Text: text,
	})
}

// FinalizeAll closes every open turn. Subsequent deltas open new turns.
// Calling it with nothing open is a no-op.
func (a *Assembler) FinalizeAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, i := range a.open {
		a.turns[i].Partial = false
	}
	a.open = make(map[Role]int)
}

// Reset discards the transcript. Only a new call resets; call teardown does
// not, so the finished conversation stays readable.
func (a *Assembler) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.turns = nil
	a.open = make(map[Role]int)
}

// Turns returns a snapshot copy of the transcript.
func (a *Assembler) Turns() []Turn {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Turn, len(a.turns))
	copy(out, a.turns)
	return out
}

// Len returns the current number of turns.
func (a *Assembler) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.turns)
}
