package sqlite

import (
	"testing"
	"time"

	"github.com/scribelab/medscribe/pkg/logger"
)

func newTestStorage(t *testing.T) *EncounterStorage {
	t.Helper()

	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	storage, err := NewEncounterStorage(db, logger.NewNop())
	if err != nil {
		t.Fatalf("Failed to create encounter storage: %v", err)
	}
	return storage
}

func sampleEncounter(id string, startedAt time.Time) *EncounterRecord {
	return &EncounterRecord{
		ID:               id,
		Specialty:        "Cardiology",
		PatientContext:   "58-year-old male",
		Transcript:       "Doctor: How are you?\n\nPatient: Fine.",
		TurnCount:        2,
		AudioDurationSec: 42.5,
		StartedAt:        startedAt,
		EndedAt:          startedAt.Add(5 * time.Minute),
		CreatedAt:        startedAt.Add(5 * time.Minute),
	}
}

func TestStoreAndGetEncounter(t *testing.T) {
	storage := newTestStorage(t)

	started := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	record := sampleEncounter("enc-1", started)
	if err := storage.StoreEncounter(record); err != nil {
		t.Fatalf("StoreEncounter failed: %v", err)
	}

	got, err := storage.GetEncounter("enc-1")
	if err != nil {
		t.Fatalf("GetEncounter failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected an encounter record")
	}
	if got.ID != "enc-1" {
		t.Errorf("Expected id enc-1, got %q", got.ID)
	}
	if got.Specialty != "Cardiology" {
		t.Errorf("Expected specialty Cardiology, got %q", got.Specialty)
	}
	if got.PatientContext != "58-year-old male" {
		t.Errorf("Expected patient context preserved, got %q", got.PatientContext)
	}
	if got.Transcript != record.Transcript {
		t.Errorf("Expected transcript preserved, got %q", got.Transcript)
	}
	if got.TurnCount != 2 {
		t.Errorf("Expected turn count 2, got %d", got.TurnCount)
	}
	if got.AudioDurationSec != 42.5 {
		t.Errorf("Expected audio duration 42.5, got %v", got.AudioDurationSec)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("Expected started at %v, got %v", started, got.StartedAt)
	}
	if !got.EndedAt.Equal(started.Add(5 * time.Minute)) {
		t.Errorf("Expected ended at %v, got %v", started.Add(5*time.Minute), got.EndedAt)
	}
}

func TestGetEncounterMissing(t *testing.T) {
	storage := newTestStorage(t)

	got, err := storage.GetEncounter("nope")
	if err != nil {
		t.Fatalf("GetEncounter failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for a missing encounter, got %+v", got)
	}
}

func TestStoreEncounterEmptyPatientContext(t *testing.T) {
	storage := newTestStorage(t)

	record := sampleEncounter("enc-2", time.Now().UTC())
	record.PatientContext = ""
	if err := storage.StoreEncounter(record); err != nil {
		t.Fatalf("StoreEncounter failed: %v", err)
	}

	got, err := storage.GetEncounter("enc-2")
	if err != nil {
		t.Fatalf("GetEncounter failed: %v", err)
	}
	if got.PatientContext != "" {
		t.Errorf("Expected empty patient context, got %q", got.PatientContext)
	}
}

func TestListEncountersOrderedNewestFirst(t *testing.T) {
	storage := newTestStorage(t)

	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"enc-a", "enc-b", "enc-c"} {
		if err := storage.StoreEncounter(sampleEncounter(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("StoreEncounter %s failed: %v", id, err)
		}
	}

	records, err := storage.ListEncounters(10)
	if err != nil {
		t.Fatalf("ListEncounters failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 encounters, got %d", len(records))
	}
	wantOrder := []string{"enc-c", "enc-b", "enc-a"}
	for i, want := range wantOrder {
		if records[i].ID != want {
			t.Errorf("Position %d: expected %s, got %s", i, want, records[i].ID)
		}
	}

	limited, err := storage.ListEncounters(2)
	if err != nil {
		t.Fatalf("ListEncounters with limit failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("Expected limit of 2 to apply, got %d", len(limited))
	}
}

func TestStoreAndGetTurns(t *testing.T) {
	storage := newTestStorage(t)

	created := time.Date(2025, 6, 1, 9, 31, 0, 0, time.UTC)
	if err := storage.StoreEncounter(sampleEncounter("enc-3", created)); err != nil {
		t.Fatalf("StoreEncounter failed: %v", err)
	}

	turns := []TurnRecord{
		{EncounterID: "enc-3", Ordinal: 0, Speaker: "Doctor", Text: "What brings you in?", CreatedAt: created},
		{EncounterID: "enc-3", Ordinal: 1, Speaker: "Patient", Text: "A persistent cough.", CreatedAt: created.Add(10 * time.Second)},
	}
	if err := storage.StoreTurns("enc-3", turns); err != nil {
		t.Fatalf("StoreTurns failed: %v", err)
	}

	got, err := storage.GetTurns("enc-3")
	if err != nil {
		t.Fatalf("GetTurns failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 turns, got %d", len(got))
	}
	for i, turn := range got {
		if turn.Ordinal != i {
			t.Errorf("Turn %d: expected ordinal %d, got %d", i, i, turn.Ordinal)
		}
		if turn.EncounterID != "enc-3" {
			t.Errorf("Turn %d: expected encounter enc-3, got %q", i, turn.EncounterID)
		}
		if turn.ID == 0 {
			t.Errorf("Turn %d: expected an assigned row id", i)
		}
	}
	if got[0].Speaker != "Doctor" || got[1].Speaker != "Patient" {
		t.Errorf("Expected Doctor then Patient, got %q then %q", got[0].Speaker, got[1].Speaker)
	}
}

func TestStoreTurnsEmpty(t *testing.T) {
	storage := newTestStorage(t)
	if err := storage.StoreTurns("enc-4", nil); err != nil {
		t.Errorf("Expected storing no turns to succeed, got %v", err)
	}
}

func TestGetTurnsMissingEncounter(t *testing.T) {
	storage := newTestStorage(t)

	got, err := storage.GetTurns("nope")
	if err != nil {
		t.Fatalf("GetTurns failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected no turns, got %d", len(got))
	}
}

func TestStoreAndGetResults(t *testing.T) {
	storage := newTestStorage(t)

	generated := time.Date(2025, 6, 1, 9, 40, 0, 0, time.UTC)
	if err := storage.StoreEncounter(sampleEncounter("enc-5", generated)); err != nil {
		t.Fatalf("StoreEncounter failed: %v", err)
	}

	record := &ResultsRecord{
		EncounterID:   "enc-5",
		SOAPNote:      "## Subjective\nCough.",
		Redacted:      "Doctor: Hello [PERSON_NAME].",
		SentimentJSON: `{"turns":[],"patient_summary":"calm"}`,
		GeneratedAt:   generated,
	}
	if err := storage.StoreResults(record); err != nil {
		t.Fatalf("StoreResults failed: %v", err)
	}

	got, err := storage.GetResults("enc-5")
	if err != nil {
		t.Fatalf("GetResults failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected a results record")
	}
	if got.SOAPNote != record.SOAPNote {
		t.Errorf("Expected SOAP note preserved, got %q", got.SOAPNote)
	}
	if got.Redacted != record.Redacted {
		t.Errorf("Expected redacted transcript preserved, got %q", got.Redacted)
	}
	if got.SentimentJSON != record.SentimentJSON {
		t.Errorf("Expected sentiment JSON preserved, got %q", got.SentimentJSON)
	}
	if !got.GeneratedAt.Equal(generated) {
		t.Errorf("Expected generated at %v, got %v", generated, got.GeneratedAt)
	}
}

func TestStoreResultsReplaces(t *testing.T) {
	storage := newTestStorage(t)

	now := time.Now().UTC().Truncate(time.Second)
	first := &ResultsRecord{EncounterID: "enc-6", SOAPNote: "v1", Redacted: "r1", SentimentJSON: "{}", GeneratedAt: now}
	second := &ResultsRecord{EncounterID: "enc-6", SOAPNote: "v2", Redacted: "r2", SentimentJSON: "{}", GeneratedAt: now.Add(time.Minute)}

	if err := storage.StoreResults(first); err != nil {
		t.Fatalf("First StoreResults failed: %v", err)
	}
	if err := storage.StoreResults(second); err != nil {
		t.Fatalf("Second StoreResults failed: %v", err)
	}

	got, err := storage.GetResults("enc-6")
	if err != nil {
		t.Fatalf("GetResults failed: %v", err)
	}
	if got.SOAPNote != "v2" {
		t.Errorf("Expected replacement to win, got %q", got.SOAPNote)
	}
}

func TestGetResultsMissing(t *testing.T) {
	storage := newTestStorage(t)

	got, err := storage.GetResults("nope")
	if err != nil {
		t.Fatalf("GetResults failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for missing results, got %+v", got)
	}
}

func TestDuplicateEncounterIDRejected(t *testing.T) {
	storage := newTestStorage(t)

	record := sampleEncounter("enc-7", time.Now().UTC())
	if err := storage.StoreEncounter(record); err != nil {
		t.Fatalf("StoreEncounter failed: %v", err)
	}
	if err := storage.StoreEncounter(record); err == nil {
		t.Error("Expected a primary key violation for a duplicate id")
	}
}
