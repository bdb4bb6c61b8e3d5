package scribe

import (
	"testing"
)

func TestTranscriptPartialThenFinal(t *testing.T) {
	tr := NewTranscript()

	if appended := tr.Apply("hello", false); appended {
		t.Error("Expected partial text not to append a turn")
	}
	if appended := tr.Apply("hello wor", false); appended {
		t.Error("Expected partial text not to append a turn")
	}

	snap := tr.Snapshot()
	if len(snap.Turns) != 0 {
		t.Fatalf("Expected no finalized turns yet, got %d", len(snap.Turns))
	}
	if snap.Partial != "hello wor" {
		t.Errorf("Expected latest partial %q, got %q", "hello wor", snap.Partial)
	}

	if appended := tr.Apply("Hello, world.", true); !appended {
		t.Fatal("Expected formatted text to append a turn")
	}

	snap = tr.Snapshot()
	if len(snap.Turns) != 1 {
		t.Fatalf("Expected 1 finalized turn, got %d", len(snap.Turns))
	}
	if snap.Turns[0].Text != "Hello, world." {
		t.Errorf("Expected turn text %q, got %q", "Hello, world.", snap.Turns[0].Text)
	}
	if snap.Turns[0].Speaker != SpeakerDoctor {
		t.Errorf("Expected first speaker %q, got %q", SpeakerDoctor, snap.Turns[0].Speaker)
	}
	if snap.Turns[0].Ordinal != 0 {
		t.Errorf("Expected ordinal 0, got %d", snap.Turns[0].Ordinal)
	}
	if snap.Partial != "" {
		t.Errorf("Expected partial cleared after a finalized turn, got %q", snap.Partial)
	}
}

func TestTranscriptSpeakerAlternation(t *testing.T) {
	tr := NewTranscript()
	texts := []string{
		"What brings you in today?",
		"I've had a cough for two weeks.",
		"Any fever or chills?",
		"A low fever on and off.",
	}
	for _, text := range texts {
		tr.Apply(text, true)
	}

	snap := tr.Snapshot()
	if len(snap.Turns) != len(texts) {
		t.Fatalf("Expected %d turns, got %d", len(texts), len(snap.Turns))
	}
	for i, turn := range snap.Turns {
		want := SpeakerDoctor
		if i%2 == 1 {
			want = SpeakerPatient
		}
		if turn.Speaker != want {
			t.Errorf("Turn %d: expected speaker %q, got %q", i, want, turn.Speaker)
		}
		if turn.Ordinal != i {
			t.Errorf("Turn %d: expected ordinal %d, got %d", i, i, turn.Ordinal)
		}
	}
}

func TestTranscriptIgnoresBlankText(t *testing.T) {
	tr := NewTranscript()

	if tr.Apply("", true) {
		t.Error("Expected empty formatted text to be ignored")
	}
	if tr.Apply("   \t\n", true) {
		t.Error("Expected whitespace-only formatted text to be ignored")
	}
	tr.Apply("", false)
	tr.Apply("  ", false)

	snap := tr.Snapshot()
	if len(snap.Turns) != 0 {
		t.Errorf("Expected no turns, got %d", len(snap.Turns))
	}
	if snap.Partial != "" {
		t.Errorf("Expected no partial, got %q", snap.Partial)
	}
}

func TestTranscriptTrimsWhitespace(t *testing.T) {
	tr := NewTranscript()
	tr.Apply("  Take twice daily.  \n", true)

	snap := tr.Snapshot()
	if len(snap.Turns) != 1 {
		t.Fatalf("Expected 1 turn, got %d", len(snap.Turns))
	}
	if snap.Turns[0].Text != "Take twice daily." {
		t.Errorf("Expected trimmed text, got %q", snap.Turns[0].Text)
	}
}

func TestTranscriptRender(t *testing.T) {
	tr := NewTranscript()
	tr.Apply("How are you feeling?", true)
	tr.Apply("Much better, thank you.", true)

	want := "Doctor: How are you feeling?\n\nPatient: Much better, thank you."
	if got := tr.Render(); got != want {
		t.Errorf("Expected rendered transcript %q, got %q", want, got)
	}
}

func TestTranscriptRenderEmpty(t *testing.T) {
	tr := NewTranscript()
	if got := tr.Render(); got != "" {
		t.Errorf("Expected empty render, got %q", got)
	}
}

func TestTranscriptSnapshotIsolation(t *testing.T) {
	tr := NewTranscript()
	tr.Apply("first", true)

	snap := tr.Snapshot()
	snap.Turns[0].Text = "mutated"
	snap.Turns = append(snap.Turns, Turn{Text: "bogus"})

	fresh := tr.Snapshot()
	if len(fresh.Turns) != 1 {
		t.Fatalf("Expected 1 turn, got %d", len(fresh.Turns))
	}
	if fresh.Turns[0].Text != "first" {
		t.Errorf("Expected snapshot mutation not to leak back, got %q", fresh.Turns[0].Text)
	}
}

func TestTranscriptReset(t *testing.T) {
	tr := NewTranscript()
	tr.Apply("some text", true)
	tr.Apply("in flight", false)

	tr.Reset()

	snap := tr.Snapshot()
	if len(snap.Turns) != 0 || snap.Partial != "" {
		t.Errorf("Expected empty transcript after reset, got %d turns, partial %q", len(snap.Turns), snap.Partial)
	}
	if tr.Len() != 0 {
		t.Errorf("Expected length 0 after reset, got %d", tr.Len())
	}

	// Ordinals restart from zero after a reset.
	tr.Apply("new encounter", true)
	snap = tr.Snapshot()
	if snap.Turns[0].Ordinal != 0 {
		t.Errorf("Expected ordinal 0 after reset, got %d", snap.Turns[0].Ordinal)
	}
	if snap.Turns[0].Speaker != SpeakerDoctor {
		t.Errorf("Expected speaker %q after reset, got %q", SpeakerDoctor, snap.Turns[0].Speaker)
	}
}
