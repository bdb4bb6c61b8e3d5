package scribe

import (
	"time"

	"github.com/scribelab/medscribe/pkg/logger"
)

// SessionState is the transport session's lifecycle phase.
type SessionState string

const (
	StateIdle    SessionState = "idle"
	StateOpening SessionState = "opening"
	StateActive  SessionState = "active"
	StateClosing SessionState = "closing"
	StateFaulted SessionState = "faulted"
)

// EventType identifies a session lifecycle notification.
type EventType string

const (
	EventSessionStarted EventType = "session_started"
	EventSessionStopped EventType = "session_stopped"
	EventSessionFault   EventType = "session_fault"
)

// Event is one session lifecycle notification.
type Event struct {
	Type        EventType `json:"type"`
	EncounterID string    `json:"encounter_id"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// EventSink receives session lifecycle events. Implementations must return
// quickly; events are published from session goroutines.
type EventSink interface {
	Publish(event Event)
}

// LogSink is an EventSink that writes events to the service log.
type LogSink struct {
	logger *logger.Logger
}

// NewLogSink creates a sink logging to log.
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{logger: log.Named("events")}
}

// Publish logs the event.
func (s *LogSink) Publish(event Event) {
	fields := []logger.Field{
		logger.String("encounter_id", event.EncounterID),
		logger.Time("timestamp", event.Timestamp),
	}
	switch event.Type {
	case EventSessionFault:
		s.logger.Error("Session fault", append(fields, logger.String("error", event.Error))...)
	case EventSessionStopped:
		s.logger.Info("Session stopped", fields...)
	default:
		s.logger.Info("Session started", fields...)
	}
}

// Ensure the sink implements the interface
var _ EventSink = (*LogSink)(nil)
