package sqlite

import "time"

// EncounterRecord represents one recorded encounter
type EncounterRecord struct {
	ID               string    `json:"id"`
	Specialty        string    `json:"specialty"`
	PatientContext   string    `json:"patient_context,omitempty"`
	Transcript       string    `json:"transcript"`
	TurnCount        int       `json:"turn_count"`
	AudioDurationSec float64   `json:"audio_duration_sec"`
	StartedAt        time.Time `json:"started_at"`
	EndedAt          time.Time `json:"ended_at"`
	CreatedAt        time.Time `json:"created_at"`
}

// TurnRecord represents one finalized speaker turn within an encounter
type TurnRecord struct {
	ID          int64     `json:"id"`
	EncounterID string    `json:"encounter_id"`
	Ordinal     int       `json:"ordinal"`
	Speaker     string    `json:"speaker"` // "Doctor" or "Patient"
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"created_at"`
}

// ResultsRecord represents the enrichment outputs for an encounter
type ResultsRecord struct {
	EncounterID   string    `json:"encounter_id"`
	SOAPNote      string    `json:"soap_note"`
	Redacted      string    `json:"redacted_transcript"`
	SentimentJSON string    `json:"sentiment_json"`
	GeneratedAt   time.Time `json:"generated_at"`
}
