package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/scribelab/medscribe/internal/config"
	"github.com/scribelab/medscribe/internal/metrics"
	"github.com/scribelab/medscribe/pkg/logger"
)

// Enricher fans a finished transcript out to the three post-encounter
// tasks: SOAP note generation, PII redaction, and sentiment analysis.
// Tasks are independent and run concurrently; a failure in one is captured
// in its own slot and never aborts the others.
type Enricher struct {
	client      openai.Client
	model       string
	maxTokens   int64
	temperature float64
	metrics     *metrics.Metrics
	logger      *logger.Logger
}

// NewEnricher builds an enricher from the OpenAI config section. Extra
// request options are appended after the config-derived ones, so tests can
// redirect the client at a local endpoint.
func NewEnricher(cfg *config.OpenAIConfig, m *metrics.Metrics, log *logger.Logger, opts ...option.RequestOption) *Enricher {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout()),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	reqOpts = append(reqOpts, opts...)

	return &Enricher{
		client:      openai.NewClient(reqOpts...),
		model:       cfg.Model,
		maxTokens:   int64(cfg.MaxTokens),
		temperature: cfg.Temperature,
		metrics:     m,
		logger:      log.Named("enricher"),
	}
}

// Enrich runs all three tasks against the transcript and collects their
// outcomes. It blocks until every task has finished or failed.
func (e *Enricher) Enrich(ctx context.Context, transcript, specialty, patientContext string) *SessionResult {
	result := &SessionResult{Specialty: specialty}

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		result.SOAPNote = e.GenerateNote(ctx, transcript, specialty, patientContext)
	}()
	go func() {
		defer wg.Done()
		result.RedactedTranscript = e.RedactPII(ctx, transcript)
	}()
	go func() {
		defer wg.Done()
		result.SentimentRaw, result.Sentiment = e.AnalyzeSentiment(ctx, transcript)
	}()

	wg.Wait()
	result.GeneratedAt = time.Now().UTC()
	return result
}

// GenerateNote produces a structured SOAP note for the encounter. On
// failure it returns the error placeholder text instead.
func (e *Enricher) GenerateNote(ctx context.Context, transcript, specialty, patientContext string) string {
	system, err := renderNotePrompt(specialty)
	if err != nil {
		e.logger.Error("Failed to render note prompt", logger.Error(err))
		return fmt.Sprintf("Error generating SOAP note: %v", err)
	}

	user := "Encounter Transcript:\n\n" + transcript
	if pc := strings.TrimSpace(patientContext); pc != "" {
		user = "Patient Context:\n\n" + pc + "\n\n" + user
	}

	out, err := e.complete(ctx, TaskNote, system, user)
	if err != nil {
		return fmt.Sprintf("Error generating SOAP note: %v", err)
	}
	return out
}

// RedactPII rewrites the transcript with PII replaced by bracketed labels.
// On failure it returns the error placeholder text instead.
func (e *Enricher) RedactPII(ctx context.Context, transcript string) string {
	out, err := e.complete(ctx, TaskRedaction, redactionPrompt, "Transcript:\n\n"+transcript)
	if err != nil {
		return fmt.Sprintf("Error redacting PII: %v", err)
	}
	return out
}

// AnalyzeSentiment scores each turn's emotional tone. It returns the raw
// payload plus the parsed report; the report is nil when the model answered
// with something that is not JSON even after fence stripping. On call
// failure both carry a synthetic report describing the error.
func (e *Enricher) AnalyzeSentiment(ctx context.Context, transcript string) (string, *SentimentReport) {
	out, err := e.complete(ctx, TaskSentiment, sentimentPrompt, "Transcript:\n\n"+transcript)
	if err != nil {
		fallback := &SentimentReport{
			Error:                   err.Error(),
			Turns:                   []TurnSentiment{},
			PatientSummary:          "Error analyzing sentiment",
			OverallPatientSentiment: "UNKNOWN",
			OverallDoctorSentiment:  "UNKNOWN",
		}
		raw, _ := json.Marshal(fallback)
		return string(raw), fallback
	}

	report, perr := ParseSentimentReport(out)
	if perr != nil {
		e.logger.Warn("Sentiment response is not valid JSON", logger.Error(perr))
		return out, nil
	}
	return out, report
}

func (e *Enricher) complete(ctx context.Context, task, system, user string) (string, error) {
	start := time.Now()
	resp, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Model:       openai.ChatModel(e.model),
		MaxTokens:   openai.Int(e.maxTokens),
		Temperature: openai.Float(e.temperature),
	})
	elapsed := time.Since(start)

	if err != nil {
		e.metrics.RecordEnrichment(task, elapsed, true)
		e.logger.Error("Enrichment call failed",
			logger.String("task", task),
			logger.Duration("elapsed", elapsed),
			logger.Error(err))
		return "", err
	}
	if len(resp.Choices) == 0 {
		e.metrics.RecordEnrichment(task, elapsed, true)
		return "", fmt.Errorf("no choices in completion response")
	}

	e.metrics.RecordEnrichment(task, elapsed, false)
	e.logger.Info("Enrichment call completed",
		logger.String("task", task),
		logger.Duration("elapsed", elapsed))
	return resp.Choices[0].Message.Content, nil
}
