package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scribelab/medscribe/internal/config"
	"github.com/scribelab/medscribe/internal/metrics"
	"github.com/scribelab/medscribe/internal/scribe"
	"github.com/scribelab/medscribe/pkg/logger"
)

// Router is the API router
type Router struct {
	handler    *Handler
	middleware *Middleware
	config     *config.Config
	gatherer   prometheus.Gatherer
	logger     *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(
	service *scribe.Service,
	tokens TokenMinter,
	store scribe.EncounterStore,
	cfg *config.Config,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
	log *logger.Logger,
) *Router {
	return &Router{
		handler:    NewHandler(service, tokens, store, cfg, log),
		middleware: NewMiddleware(log, m),
		config:     cfg,
		gatherer:   gatherer,
		logger:     log.Named("api-router"),
	}
}

// Routes returns the API routes
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	// Middleware
	router.Use(r.middleware.RequestID)
	router.Use(r.middleware.Logger)
	router.Use(r.middleware.Recoverer)
	router.Use(r.middleware.Metrics)
	router.Use(r.middleware.CORS(r.config.Server.CORSAllowedOrigins))

	// API routes
	router.Route("/api/v1", func(router chi.Router) {
		// Encounter lifecycle
		router.Post("/encounters/start", r.handler.StartEncounter)
		router.Post("/encounters/stop", r.handler.StopEncounter)
		router.Get("/encounters/active/transcript", r.handler.GetActiveTranscript)
		router.Get("/encounters/active/status", r.handler.GetStatus)
		router.Post("/encounters/active/audio/file", r.handler.UploadAudio)

		// Finished encounters
		router.Get("/encounters", r.handler.ListEncounters)
		router.Get("/encounters/{id}", r.handler.GetEncounter)
		router.Get("/encounters/{id}/results", r.handler.GetEncounterResults)

		// Capture support
		router.Get("/ws/audio", r.handler.HandleAudioIngest)
		router.Get("/token", r.handler.GetToken)
		router.Get("/keyterms", r.handler.GetKeyterms)

		// Health check
		router.Get("/health", r.handler.GetHealth)
	})

	// Prometheus scrape endpoint
	router.Handle("/metrics", promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{}))

	return router
}
