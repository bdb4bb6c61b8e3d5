package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/scribelab/medscribe/pkg/logger"
)

// EncounterStorage handles storage of encounters, their turns, and
// enrichment results
type EncounterStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewEncounterStorage creates a new SQLite encounter storage
func NewEncounterStorage(db *sql.DB, log *logger.Logger) (*EncounterStorage, error) {
	storage := &EncounterStorage{
		db:     db,
		logger: log.Named("sqlite-encounters"),
	}

	if err := storage.initDB(); err != nil {
		return nil, fmt.Errorf("failed to initialize encounter storage: %w", err)
	}

	return storage, nil
}

// initDB initializes the database tables
func (s *EncounterStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS encounters (
			id TEXT PRIMARY KEY,
			specialty TEXT NOT NULL,
			patient_context TEXT,
			transcript TEXT NOT NULL,
			turn_count INTEGER NOT NULL,
			audio_duration_sec REAL NOT NULL DEFAULT 0,
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create encounters table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			encounter_id TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			speaker TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			FOREIGN KEY (encounter_id) REFERENCES encounters(id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create turns table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS results (
			encounter_id TEXT PRIMARY KEY,
			soap_note TEXT NOT NULL,
			redacted_transcript TEXT NOT NULL,
			sentiment_json TEXT NOT NULL,
			generated_at TIMESTAMP NOT NULL,
			FOREIGN KEY (encounter_id) REFERENCES encounters(id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create results table: %w", err)
	}

	// Create indexes for performance
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_encounters_started_at ON encounters(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_encounter_id ON turns(encounter_id)`,
	}

	for _, indexSQL := range indexes {
		_, err = s.db.Exec(indexSQL)
		if err != nil {
			return fmt.Errorf("failed to create encounter index: %w", err)
		}
	}

	return nil
}

// StoreEncounter stores a finished encounter record
func (s *EncounterStorage) StoreEncounter(record *EncounterRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO encounters
		(id, specialty, patient_context, transcript, turn_count, audio_duration_sec, started_at, ended_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.Specialty,
		record.PatientContext,
		record.Transcript,
		record.TurnCount,
		record.AudioDurationSec,
		record.StartedAt.Format(time.RFC3339),
		record.EndedAt.Format(time.RFC3339),
		record.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert encounter: %w", err)
	}

	return nil
}

// StoreTurns stores the finalized turns of an encounter in one transaction
func (s *EncounterStorage) StoreTurns(encounterID string, turns []TurnRecord) error {
	if len(turns) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO turns (encounter_id, ordinal, speaker, text, created_at)
		VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare turn insert: %w", err)
	}
	defer stmt.Close()

	for _, turn := range turns {
		if _, err := stmt.Exec(
			encounterID,
			turn.Ordinal,
			turn.Speaker,
			turn.Text,
			turn.CreatedAt.Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("failed to insert turn %d: %w", turn.Ordinal, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit turns: %w", err)
	}

	return nil
}

// StoreResults stores (or replaces) the enrichment outputs for an encounter
func (s *EncounterStorage) StoreResults(record *ResultsRecord) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO results
		(encounter_id, soap_note, redacted_transcript, sentiment_json, generated_at)
		VALUES (?, ?, ?, ?, ?)`,
		record.EncounterID,
		record.SOAPNote,
		record.Redacted,
		record.SentimentJSON,
		record.GeneratedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert results: %w", err)
	}

	return nil
}

// GetEncounter returns a single encounter by ID, or nil when not found
func (s *EncounterStorage) GetEncounter(id string) (*EncounterRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, specialty, patient_context, transcript, turn_count, audio_duration_sec, started_at, ended_at, created_at
		FROM encounters
		WHERE id = ?`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query encounter: %w", err)
	}
	defer rows.Close()

	records, err := s.scanEncounterRows(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	return records[0], nil
}

// ListEncounters returns recent encounters, newest first
func (s *EncounterStorage) ListEncounters(limit int) ([]*EncounterRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, specialty, patient_context, transcript, turn_count, audio_duration_sec, started_at, ended_at, created_at
		FROM encounters
		ORDER BY started_at DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query encounters: %w", err)
	}
	defer rows.Close()

	return s.scanEncounterRows(rows)
}

// GetTurns returns the finalized turns of an encounter in speaking order
func (s *EncounterStorage) GetTurns(encounterID string) ([]*TurnRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, encounter_id, ordinal, speaker, text, created_at
		FROM turns
		WHERE encounter_id = ?
		ORDER BY ordinal ASC`,
		encounterID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var records []*TurnRecord
	for rows.Next() {
		var record TurnRecord
		var createdAt string

		if err := rows.Scan(
			&record.ID,
			&record.EncounterID,
			&record.Ordinal,
			&record.Speaker,
			&record.Text,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}

		record.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}

		records = append(records, &record)
	}

	return records, nil
}

// GetResults returns the enrichment outputs for an encounter, or nil when
// none are stored yet
func (s *EncounterStorage) GetResults(encounterID string) (*ResultsRecord, error) {
	var record ResultsRecord
	var generatedAt string

	err := s.db.QueryRow(
		`SELECT encounter_id, soap_note, redacted_transcript, sentiment_json, generated_at
		FROM results
		WHERE encounter_id = ?`,
		encounterID,
	).Scan(
		&record.EncounterID,
		&record.SOAPNote,
		&record.Redacted,
		&record.SentimentJSON,
		&generatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}

	record.GeneratedAt, err = time.Parse(time.RFC3339, generatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse generated_at: %w", err)
	}

	return &record, nil
}

// scanEncounterRows scans database rows into EncounterRecord structs
func (s *EncounterStorage) scanEncounterRows(rows *sql.Rows) ([]*EncounterRecord, error) {
	var records []*EncounterRecord
	for rows.Next() {
		var record EncounterRecord
		var startedAt, endedAt, createdAt string
		var patientContext sql.NullString

		if err := rows.Scan(
			&record.ID,
			&record.Specialty,
			&patientContext,
			&record.Transcript,
			&record.TurnCount,
			&record.AudioDurationSec,
			&startedAt,
			&endedAt,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan encounter: %w", err)
		}

		// Parse timestamps
		var err error
		record.StartedAt, err = time.Parse(time.RFC3339, startedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse started_at: %w", err)
		}

		record.EndedAt, err = time.Parse(time.RFC3339, endedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ended_at: %w", err)
		}

		record.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}

		if patientContext.Valid {
			record.PatientContext = patientContext.String
		}

		records = append(records, &record)
	}

	return records, nil
}
