package scribe

import (
	"strings"
	"sync"
	"time"
)

// Speaker labels assigned by turn parity. The first speaker in an encounter
// is the doctor, who typically asks the initial question. Parity assignment
// is a simplifying heuristic; the collaborator's diarization could replace
// it.
const (
	SpeakerDoctor  = "Doctor"
	SpeakerPatient = "Patient"
)

// SpeakerForOrdinal returns the speaker label for a turn index.
func SpeakerForOrdinal(ordinal int) string {
	if ordinal%2 == 0 {
		return SpeakerDoctor
	}
	return SpeakerPatient
}

// Turn is one finalized utterance. Ordinal always equals the turn's position
// in the transcript.
type Turn struct {
	Ordinal   int       `json:"ordinal"`
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// TranscriptSnapshot is a point-in-time copy of the accumulated transcript:
// finalized turns plus the pending partial text, which is display-only and
// never durable.
type TranscriptSnapshot struct {
	Turns   []Turn `json:"turns"`
	Partial string `json:"partial"`
}

// Transcript accumulates finalized turns in arrival order, append-only, plus
// at most one pending partial. One mutex guards both so the receiver lane
// can write while API handlers snapshot.
type Transcript struct {
	mu      sync.Mutex
	turns   []Turn
	partial string
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{}
}

// Apply consumes one turn event. Formatted non-empty text appends a
// finalized turn and clears the partial; unformatted non-empty text replaces
// the single partial slot; empty or whitespace-only text is ignored. It
// reports whether a turn was appended.
func (t *Transcript) Apply(text string, formatted bool) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if formatted {
		ordinal := len(t.turns)
		t.turns = append(t.turns, Turn{
			Ordinal:   ordinal,
			Speaker:   SpeakerForOrdinal(ordinal),
			Text:      trimmed,
			CreatedAt: time.Now().UTC(),
		})
		t.partial = ""
		return true
	}

	t.partial = trimmed
	return false
}

// Snapshot returns copied turns plus the pending partial without mutating
// state.
func (t *Transcript) Snapshot() TranscriptSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	turns := make([]Turn, len(t.turns))
	copy(turns, t.turns)
	return TranscriptSnapshot{Turns: turns, Partial: t.partial}
}

// Len returns the number of finalized turns.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.turns)
}

// Render produces the speaker-labeled transcript text handed to enrichment,
// one turn per paragraph.
func (t *Transcript) Render() string {
	snap := t.Snapshot()

	var b strings.Builder
	for i, turn := range snap.Turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(turn.Speaker)
		b.WriteString(": ")
		b.WriteString(turn.Text)
	}
	return b.String()
}

// Reset discards all turns and the pending partial.
func (t *Transcript) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = nil
	t.partial = ""
}
