package enrich

import "time"

// Task names used in logs, metrics, and per-task results.
const (
	TaskNote      = "soap_note"
	TaskRedaction = "pii_redaction"
	TaskSentiment = "sentiment"
)

// SessionResult bundles the three post-encounter artifacts. Every field is
// populated even on failure: a failed task carries its error placeholder
// text so one bad call never blanks the other tabs.
type SessionResult struct {
	SOAPNote           string           `json:"soap_note"`
	RedactedTranscript string           `json:"redacted_transcript"`
	SentimentRaw       string           `json:"sentiment_raw"`
	Sentiment          *SentimentReport `json:"sentiment,omitempty"`
	Specialty          string           `json:"specialty"`
	GeneratedAt        time.Time        `json:"generated_at"`
}

// SentimentReport is the structured payload the sentiment task returns.
type SentimentReport struct {
	Error                   string          `json:"error,omitempty"`
	Turns                   []TurnSentiment `json:"turns"`
	PatientSummary          string          `json:"patient_summary"`
	OverallPatientSentiment string          `json:"overall_patient_sentiment"`
	OverallDoctorSentiment  string          `json:"overall_doctor_sentiment"`
}

// TurnSentiment scores the emotional tone of a single speaker turn.
type TurnSentiment struct {
	Speaker    string `json:"speaker"`
	Excerpt    string `json:"excerpt"`
	Sentiment  string `json:"sentiment"`
	Confidence string `json:"confidence"`
	Reason     string `json:"reason"`
}
