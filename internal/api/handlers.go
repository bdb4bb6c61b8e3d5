package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/scribelab/medscribe/internal/assemblyai"
	"github.com/scribelab/medscribe/internal/audio"
	"github.com/scribelab/medscribe/internal/config"
	"github.com/scribelab/medscribe/internal/keyterms"
	"github.com/scribelab/medscribe/internal/scribe"
	"github.com/scribelab/medscribe/internal/storage/sqlite"
	"github.com/scribelab/medscribe/pkg/logger"
)

// Uploaded WAV files are capped to keep a bad client from exhausting
// memory.
const maxUploadBytes = 64 << 20

// TokenMinter mints short-lived streaming tokens for browser capture
// clients.
type TokenMinter interface {
	TemporaryToken(ctx context.Context, expiresIn time.Duration) (string, error)
}

var _ TokenMinter = (*assemblyai.Client)(nil)

// Handler handles API requests
type Handler struct {
	service *scribe.Service
	tokens  TokenMinter
	store   scribe.EncounterStore
	config  *config.Config
	logger  *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(service *scribe.Service, tokens TokenMinter, store scribe.EncounterStore, cfg *config.Config, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		tokens:  tokens,
		store:   store,
		config:  cfg,
		logger:  log.Named("api-handler"),
	}
}

// StartEncounter handles POST /encounters/start
func (h *Handler) StartEncounter(w http.ResponseWriter, r *http.Request) {
	var opts scribe.StartOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil && err != io.EOF {
		h.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	info, err := h.service.StartEncounter(r.Context(), opts)
	if err != nil {
		if errors.Is(err, scribe.ErrSessionActive) {
			h.respondError(w, http.StatusConflict, "an encounter is already being recorded")
			return
		}
		h.logger.Error("Failed to start encounter", logger.Error(err))
		h.respondError(w, http.StatusBadGateway, "failed to open transcription session")
		return
	}

	h.respondJSON(w, http.StatusCreated, info)
}

// StopEncounter handles POST /encounters/stop
func (h *Handler) StopEncounter(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.StopEncounter()
	if err != nil {
		if errors.Is(err, scribe.ErrNoSession) {
			h.respondError(w, http.StatusConflict, "no encounter is being recorded")
			return
		}
		h.logger.Error("Failed to stop encounter", logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to stop encounter")
		return
	}

	h.respondJSON(w, http.StatusOK, summary)
}

type transcriptResponse struct {
	Encounter scribe.EncounterInfo `json:"encounter"`
	Turns     []scribe.Turn        `json:"turns"`
	Partial   string               `json:"partial,omitempty"`
}

// GetActiveTranscript handles GET /encounters/active/transcript. It serves
// the live transcript while recording and the last finished one otherwise.
func (h *Handler) GetActiveTranscript(w http.ResponseWriter, r *http.Request) {
	info, snap, ok := h.service.Snapshot()
	if !ok {
		h.respondError(w, http.StatusNotFound, "no encounter has been recorded yet")
		return
	}

	turns := snap.Turns
	if turns == nil {
		turns = []scribe.Turn{}
	}

	h.respondJSON(w, http.StatusOK, transcriptResponse{
		Encounter: info,
		Turns:     turns,
		Partial:   snap.Partial,
	})
}

// GetStatus handles GET /encounters/active/status
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.service.Status())
}

// GetEncounterResults handles GET /encounters/{id}/results
func (h *Handler) GetEncounterResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	env, ok := h.service.Result(id)
	if !ok {
		h.respondError(w, http.StatusNotFound, "no results for encounter "+id)
		return
	}

	h.respondJSON(w, http.StatusOK, env)
}

// ListEncounters handles GET /encounters
func (h *Handler) ListEncounters(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			h.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	records, err := h.store.ListEncounters(limit)
	if err != nil {
		h.logger.Error("Failed to list encounters", logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to list encounters")
		return
	}
	if records == nil {
		records = []*sqlite.EncounterRecord{} // keep JSON an array, not null
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"encounters": records,
		"count":      len(records),
	})
}

// GetEncounter handles GET /encounters/{id}
func (h *Handler) GetEncounter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	record, err := h.store.GetEncounter(id)
	if err != nil {
		h.logger.Error("Failed to get encounter", logger.String("id", id), logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to get encounter")
		return
	}
	if record == nil {
		h.respondError(w, http.StatusNotFound, "encounter not found")
		return
	}

	turns, err := h.store.GetTurns(id)
	if err != nil {
		h.logger.Error("Failed to get encounter turns", logger.String("id", id), logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to get encounter turns")
		return
	}
	if turns == nil {
		turns = []*sqlite.TurnRecord{}
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"encounter": record,
		"turns":     turns,
	})
}

// GetToken handles GET /token. The minted token lets a browser open its own
// streaming socket without ever seeing the API key.
func (h *Handler) GetToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.tokens.TemporaryToken(r.Context(), h.config.AssemblyAI.TokenExpiry())
	if err != nil {
		h.logger.Error("Failed to mint streaming token", logger.Error(err))
		h.respondError(w, http.StatusBadGateway, "failed to mint streaming token")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"token":              token,
		"expires_in_seconds": h.config.AssemblyAI.TokenExpirySec,
	})
}

// GetKeyterms handles GET /keyterms
func (h *Handler) GetKeyterms(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"default":     keyterms.DefaultSpecialty,
		"specialties": keyterms.Catalog(),
	})
}

// GetHealth handles GET /health
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"state":  h.service.Status().State,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// UploadAudio handles POST /encounters/active/audio/file. The body is a
// WAV file whose PCM is pushed through the active session in one-second
// slices, paced so the bounded queue does not evict the file's own tail.
func (h *Handler) UploadAudio(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		h.respondError(w, http.StatusRequestEntityTooLarge, "failed to read upload: "+err.Error())
		return
	}

	frame, err := audio.DecodeWAV(body)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid WAV file: "+err.Error())
		return
	}

	sliceLen := frame.SampleRate * frame.Channels
	frames := 0
	for off := 0; off < len(frame.Samples); off += sliceLen {
		end := off + sliceLen
		if end > len(frame.Samples) {
			end = len(frame.Samples)
		}

		slice := audio.Frame{
			Samples:    frame.Samples[off:end],
			SampleRate: frame.SampleRate,
			Channels:   frame.Channels,
			Captured:   time.Now().UTC(),
		}
		if err := h.service.IngestFrame(slice); err != nil {
			h.respondError(w, http.StatusConflict, "no encounter is being recorded")
			return
		}
		frames++

		for h.service.Status().QueueDepth > h.config.Audio.QueueCapacity/2 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(25 * time.Millisecond):
			}
		}
	}

	h.respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"frames":       frames,
		"duration_sec": frame.Duration().Seconds(),
	})
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", logger.Error(err))
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, errorResponse{Error: message})
}
