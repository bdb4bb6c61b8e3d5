package scribe

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scribelab/medscribe/internal/assemblyai"
	"github.com/scribelab/medscribe/internal/audio"
	"github.com/scribelab/medscribe/internal/config"
	"github.com/scribelab/medscribe/internal/enrich"
	"github.com/scribelab/medscribe/internal/keyterms"
	"github.com/scribelab/medscribe/internal/metrics"
	"github.com/scribelab/medscribe/internal/storage/sqlite"
	"github.com/scribelab/medscribe/pkg/logger"
)

// StartOptions configures a new encounter.
type StartOptions struct {
	Specialty      string   `json:"specialty"`
	PatientContext string   `json:"patient_context"`
	Keyterms       []string `json:"keyterms"`
}

// EncounterInfo describes an encounter in flight.
type EncounterInfo struct {
	ID             string    `json:"id"`
	Specialty      string    `json:"specialty"`
	PatientContext string    `json:"patient_context,omitempty"`
	StartedAt      time.Time `json:"started_at"`
}

// EncounterSummary is returned when an encounter stops.
type EncounterSummary struct {
	EncounterInfo
	EndedAt          time.Time `json:"ended_at"`
	TurnCount        int       `json:"turn_count"`
	AudioDurationSec float64   `json:"audio_duration_sec"`
	Transcript       string    `json:"transcript"`
}

// ResultStatus tracks the lifecycle of an encounter's enrichment outputs.
type ResultStatus string

const (
	ResultPending ResultStatus = "pending"
	ResultReady   ResultStatus = "ready"
	ResultSkipped ResultStatus = "skipped"
)

// ResultEnvelope pairs enrichment outputs with their status.
type ResultEnvelope struct {
	EncounterID string                `json:"encounter_id"`
	Status      ResultStatus          `json:"status"`
	Result      *enrich.SessionResult `json:"result,omitempty"`
}

// ServiceStatus reports the live recording state.
type ServiceStatus struct {
	State        SessionState   `json:"state"`
	Encounter    *EncounterInfo `json:"encounter,omitempty"`
	Turns        int            `json:"turns"`
	QueueDepth   int            `json:"queue_depth"`
	QueueEvicted uint64         `json:"queue_evicted"`
	StreamID     string         `json:"stream_id,omitempty"`
}

// Service orchestrates encounters: it runs at most one recording session at
// a time, routes captured audio into it, and on stop persists the encounter
// and kicks off enrichment in the background.
type Service struct {
	cfg      *config.Config
	dialer   StreamDialer
	enricher Enricher
	store    EncounterStore
	events   EventSink
	metrics  *metrics.Metrics
	logger   *logger.Logger

	mu       sync.Mutex
	starting bool
	current  *Session
	info     EncounterInfo
	lastInfo *EncounterInfo
	lastSnap TranscriptSnapshot
	results  map[string]*ResultEnvelope

	enrichWG sync.WaitGroup
}

// NewService creates the encounter service. The store may be nil to disable
// persistence.
func NewService(
	cfg *config.Config,
	dialer StreamDialer,
	enricher Enricher,
	store EncounterStore,
	events EventSink,
	m *metrics.Metrics,
	log *logger.Logger,
) *Service {
	return &Service{
		cfg:      cfg,
		dialer:   dialer,
		enricher: enricher,
		store:    store,
		events:   events,
		metrics:  m,
		logger:   log.Named("scribe"),
		results:  make(map[string]*ResultEnvelope),
	}
}

// StartEncounter opens a new recording session. Only one encounter may be
// active; a second start is rejected with ErrSessionActive.
func (s *Service) StartEncounter(ctx context.Context, opts StartOptions) (EncounterInfo, error) {
	s.mu.Lock()
	if s.starting || (s.current != nil && s.current.State() != StateIdle) {
		s.mu.Unlock()
		return EncounterInfo{}, ErrSessionActive
	}
	s.starting = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()
	}()

	specialty := strings.TrimSpace(opts.Specialty)
	if specialty == "" {
		specialty = s.cfg.Session.DefaultSpecialty
	}
	if !keyterms.Known(specialty) {
		s.logger.Warn("Unknown specialty requested, using default",
			logger.String("specialty", specialty))
		specialty = keyterms.DefaultSpecialty
	}
	terms := keyterms.Merge(specialty, opts.Keyterms)

	id := uuid.NewString()
	sess := NewSession(id, SessionConfig{
		TargetSampleRate: s.cfg.Audio.TargetSampleRate,
		ChunkSamples:     s.cfg.Audio.ChunkSamples,
		QueueCapacity:    s.cfg.Audio.QueueCapacity,
		PollInterval:     s.cfg.Audio.PollInterval(),
		TerminationWait:  s.cfg.Session.TerminationWait(),
		CloseTimeout:     s.cfg.Session.CloseTimeout(),
		Params: assemblyai.StreamParams{
			SampleRate:            s.cfg.AssemblyAI.SampleRate,
			Encoding:              s.cfg.AssemblyAI.Encoding,
			FormatTurns:           s.cfg.AssemblyAI.FormatTurns,
			EndOfTurnConfidence:   s.cfg.AssemblyAI.EndOfTurnConfidence,
			MinEndOfTurnSilenceMs: s.cfg.AssemblyAI.MinEndOfTurnSilenceMs,
			MaxTurnSilenceMs:      s.cfg.AssemblyAI.MaxTurnSilenceMs,
			Keyterms:              terms,
		},
	}, s.dialer, s.events, s.metrics, s.logger)

	if err := sess.Open(ctx); err != nil {
		return EncounterInfo{}, err
	}

	info := EncounterInfo{
		ID:             id,
		Specialty:      specialty,
		PatientContext: strings.TrimSpace(opts.PatientContext),
		StartedAt:      time.Now().UTC(),
	}

	s.mu.Lock()
	s.current = sess
	s.info = info
	s.mu.Unlock()

	s.metrics.SessionsStartedTotal.Inc()
	s.logger.Info("Encounter started",
		logger.String("encounter_id", id),
		logger.String("specialty", specialty),
		logger.Int("keyterms", len(terms)))

	return info, nil
}

// StopEncounter closes the active session, persists the encounter, and
// starts enrichment in the background. The summary reflects the transcript
// at the moment of closing.
func (s *Service) StopEncounter() (EncounterSummary, error) {
	s.mu.Lock()
	sess := s.current
	info := s.info
	s.mu.Unlock()

	if sess == nil {
		return EncounterSummary{}, ErrNoSession
	}

	if err := sess.Close(); err != nil {
		s.logger.Warn("Error closing recording session", logger.Error(err))
	}

	snap := sess.Transcript().Snapshot()
	summary := EncounterSummary{
		EncounterInfo:    info,
		EndedAt:          time.Now().UTC(),
		TurnCount:        len(snap.Turns),
		AudioDurationSec: sess.AudioDuration(),
		Transcript:       sess.Transcript().Render(),
	}

	s.mu.Lock()
	s.current = nil
	s.lastInfo = &info
	s.lastSnap = snap
	s.results[info.ID] = &ResultEnvelope{EncounterID: info.ID, Status: ResultPending}
	s.mu.Unlock()

	s.metrics.SessionsStoppedTotal.Inc()
	s.logger.Info("Encounter stopped",
		logger.String("encounter_id", info.ID),
		logger.Int("turns", summary.TurnCount),
		logger.Float64("audio_duration_sec", summary.AudioDurationSec))

	s.persistEncounter(summary, snap)

	if summary.Transcript == "" {
		s.setResult(info.ID, &ResultEnvelope{EncounterID: info.ID, Status: ResultSkipped})
		s.logger.Info("Skipping enrichment for empty transcript",
			logger.String("encounter_id", info.ID))
		return summary, nil
	}

	s.enrichWG.Add(1)
	go s.runEnrichment(info, summary.Transcript)

	return summary, nil
}

// IngestFrame routes one captured frame to the active session. Frames
// arriving with no active session are dropped.
func (s *Service) IngestFrame(frame audio.Frame) error {
	s.mu.Lock()
	sess := s.current
	s.mu.Unlock()

	if sess == nil || sess.State() != StateActive {
		s.metrics.FramesDroppedTotal.Inc()
		return ErrNoSession
	}

	sess.IngestFrame(frame)
	return nil
}

// Snapshot returns the live transcript of the active encounter, or the
// last finished one when nothing is recording.
func (s *Service) Snapshot() (EncounterInfo, TranscriptSnapshot, bool) {
	s.mu.Lock()
	sess := s.current
	info := s.info
	lastInfo := s.lastInfo
	lastSnap := s.lastSnap
	s.mu.Unlock()

	if sess != nil {
		return info, sess.Transcript().Snapshot(), true
	}
	if lastInfo != nil {
		return *lastInfo, lastSnap, true
	}
	return EncounterInfo{}, TranscriptSnapshot{}, false
}

// Status reports the live recording state.
func (s *Service) Status() ServiceStatus {
	s.mu.Lock()
	sess := s.current
	info := s.info
	s.mu.Unlock()

	if sess == nil {
		return ServiceStatus{State: StateIdle}
	}

	return ServiceStatus{
		State:        sess.State(),
		Encounter:    &info,
		Turns:        sess.Transcript().Len(),
		QueueDepth:   sess.QueueDepth(),
		QueueEvicted: sess.QueueEvicted(),
		StreamID:     sess.RemoteID(),
	}
}

// Result returns the enrichment envelope for an encounter. Results not in
// memory are looked up in storage, so finished encounters survive restarts.
func (s *Service) Result(encounterID string) (*ResultEnvelope, bool) {
	s.mu.Lock()
	env, ok := s.results[encounterID]
	s.mu.Unlock()
	if ok {
		return env, true
	}

	if s.store == nil {
		return nil, false
	}
	stored, err := s.store.GetResults(encounterID)
	if err != nil {
		s.logger.Error("Failed to load stored results",
			logger.String("encounter_id", encounterID),
			logger.Error(err))
		return nil, false
	}
	if stored == nil {
		return nil, false
	}

	report, _ := enrich.ParseSentimentReport(stored.SentimentJSON)
	return &ResultEnvelope{
		EncounterID: encounterID,
		Status:      ResultReady,
		Result: &enrich.SessionResult{
			SOAPNote:           stored.SOAPNote,
			RedactedTranscript: stored.Redacted,
			SentimentRaw:       stored.SentimentJSON,
			Sentiment:          report,
			GeneratedAt:        stored.GeneratedAt,
		},
	}, true
}

// Close stops any active session and waits for in-flight enrichment to
// finish, bounded by the configured close timeout.
func (s *Service) Close() error {
	s.mu.Lock()
	sess := s.current
	s.mu.Unlock()

	if sess != nil {
		if err := sess.Close(); err != nil {
			s.logger.Warn("Error closing recording session", logger.Error(err))
		}
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
	}

	done := make(chan struct{})
	go func() {
		s.enrichWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.cfg.Session.CloseTimeout()):
		s.logger.Warn("Enrichment tasks still running at shutdown")
	}

	return nil
}

func (s *Service) runEnrichment(info EncounterInfo, transcript string) {
	defer s.enrichWG.Done()

	result := s.enricher.Enrich(context.Background(), transcript, info.Specialty, info.PatientContext)
	s.setResult(info.ID, &ResultEnvelope{
		EncounterID: info.ID,
		Status:      ResultReady,
		Result:      result,
	})

	if s.store != nil {
		err := s.store.StoreResults(&sqlite.ResultsRecord{
			EncounterID:   info.ID,
			SOAPNote:      result.SOAPNote,
			Redacted:      result.RedactedTranscript,
			SentimentJSON: result.SentimentRaw,
			GeneratedAt:   result.GeneratedAt,
		})
		if err != nil {
			s.logger.Error("Failed to persist enrichment results",
				logger.String("encounter_id", info.ID),
				logger.Error(err))
		}
	}

	s.logger.Info("Enrichment finished", logger.String("encounter_id", info.ID))
}

func (s *Service) setResult(encounterID string, env *ResultEnvelope) {
	s.mu.Lock()
	s.results[encounterID] = env
	s.mu.Unlock()
}

func (s *Service) persistEncounter(summary EncounterSummary, snap TranscriptSnapshot) {
	if s.store == nil {
		return
	}

	record := &sqlite.EncounterRecord{
		ID:               summary.ID,
		Specialty:        summary.Specialty,
		PatientContext:   summary.PatientContext,
		Transcript:       summary.Transcript,
		TurnCount:        summary.TurnCount,
		AudioDurationSec: summary.AudioDurationSec,
		StartedAt:        summary.StartedAt,
		EndedAt:          summary.EndedAt,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.store.StoreEncounter(record); err != nil {
		s.logger.Error("Failed to persist encounter",
			logger.String("encounter_id", summary.ID),
			logger.Error(err))
		return
	}

	turns := make([]sqlite.TurnRecord, 0, len(snap.Turns))
	for _, turn := range snap.Turns {
		turns = append(turns, sqlite.TurnRecord{
			EncounterID: summary.ID,
			Ordinal:     turn.Ordinal,
			Speaker:     turn.Speaker,
			Text:        turn.Text,
			CreatedAt:   turn.CreatedAt,
		})
	}
	if err := s.store.StoreTurns(summary.ID, turns); err != nil {
		s.logger.Error("Failed to persist encounter turns",
			logger.String("encounter_id", summary.ID),
			logger.Error(err))
	}
}
