package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus instruments for the service. Construct one
// per process (or per test registry) and share it.
type Metrics struct {
	// Audio pipeline
	FramesIngestedTotal prometheus.Counter
	FramesDroppedTotal  prometheus.Counter
	ChunksEmittedTotal  prometheus.Counter
	ChunksSentTotal     prometheus.Counter
	ChunksEvictedTotal  prometheus.Counter
	QueueDepth          prometheus.Gauge

	// Session lifecycle
	SessionsStartedTotal prometheus.Counter
	SessionsStoppedTotal prometheus.Counter
	SessionFaultsTotal   prometheus.Counter
	AudioDurationSeconds prometheus.Gauge

	// Transcript
	FinalTurnsTotal    prometheus.Counter
	PartialEventsTotal prometheus.Counter

	// Enrichment
	EnrichmentRequestsTotal   *prometheus.CounterVec
	EnrichmentFailuresTotal   *prometheus.CounterVec
	EnrichmentDurationSeconds *prometheus.HistogramVec

	// HTTP surface
	HTTPRequestsTotal       *prometheus.CounterVec
	HTTPRequestDurationSecs *prometheus.HistogramVec
}

// New creates and registers all instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FramesIngestedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "medscribe_frames_ingested_total",
			Help: "Capture frames accepted by the audio pipeline",
		}),
		FramesDroppedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "medscribe_frames_dropped_total",
			Help: "Capture frames dropped due to conversion errors or no active session",
		}),
		ChunksEmittedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "medscribe_chunks_emitted_total",
			Help: "Canonical PCM chunks produced by the framer",
		}),
		ChunksSentTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "medscribe_chunks_sent_total",
			Help: "PCM chunks transmitted to the transcription service",
		}),
		ChunksEvictedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "medscribe_chunks_evicted_total",
			Help: "PCM chunks evicted from the bounded queue under overflow",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "medscribe_queue_depth",
			Help: "PCM chunks currently waiting in the bounded queue",
		}),
		SessionsStartedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "medscribe_sessions_started_total",
			Help: "Recording sessions opened",
		}),
		SessionsStoppedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "medscribe_sessions_stopped_total",
			Help: "Recording sessions closed",
		}),
		SessionFaultsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "medscribe_session_faults_total",
			Help: "Recording sessions terminated by a transport fault",
		}),
		AudioDurationSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Name: "medscribe_audio_duration_seconds",
			Help: "Audio duration reported by the collaborator for the last session",
		}),
		FinalTurnsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "medscribe_final_turns_total",
			Help: "Finalized transcript turns accumulated",
		}),
		PartialEventsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "medscribe_partial_events_total",
			Help: "Partial (unformatted) transcript events received",
		}),
		EnrichmentRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medscribe_enrichment_requests_total",
			Help: "Enrichment calls issued, by task",
		}, []string{"task"}),
		EnrichmentFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medscribe_enrichment_failures_total",
			Help: "Enrichment calls that failed or produced unparseable output, by task",
		}, []string{"task"}),
		EnrichmentDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medscribe_enrichment_duration_seconds",
			Help:    "Enrichment call latency, by task",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"task"}),
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medscribe_http_requests_total",
			Help: "HTTP requests served, by method, route, and status",
		}, []string{"method", "route", "status"}),
		HTTPRequestDurationSecs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medscribe_http_request_duration_seconds",
			Help:    "HTTP request latency, by method and route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// RecordHTTPRequest tracks one served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDurationSecs.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RecordEnrichment tracks one enrichment call outcome.
func (m *Metrics) RecordEnrichment(task string, elapsed time.Duration, failed bool) {
	m.EnrichmentRequestsTotal.WithLabelValues(task).Inc()
	m.EnrichmentDurationSeconds.WithLabelValues(task).Observe(elapsed.Seconds())
	if failed {
		m.EnrichmentFailuresTotal.WithLabelValues(task).Inc()
	}
}
