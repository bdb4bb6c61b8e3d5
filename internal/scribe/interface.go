package scribe

import (
	"context"

	"github.com/scribelab/medscribe/internal/enrich"
	"github.com/scribelab/medscribe/internal/storage/sqlite"
)

// Enricher defines the interface for post-encounter transcript processors
type Enricher interface {
	Enrich(ctx context.Context, transcript, specialty, patientContext string) *enrich.SessionResult
}

// EncounterStore defines the interface for encounter persistence
type EncounterStore interface {
	StoreEncounter(record *sqlite.EncounterRecord) error
	StoreTurns(encounterID string, turns []sqlite.TurnRecord) error
	StoreResults(record *sqlite.ResultsRecord) error
	GetEncounter(id string) (*sqlite.EncounterRecord, error)
	GetTurns(encounterID string) ([]*sqlite.TurnRecord, error)
	GetResults(encounterID string) (*sqlite.ResultsRecord, error)
	ListEncounters(limit int) ([]*sqlite.EncounterRecord, error)
}

// Ensure the concrete implementations satisfy the interfaces
var (
	_ Enricher       = (*enrich.Enricher)(nil)
	_ EncounterStore = (*sqlite.EncounterStorage)(nil)
)
