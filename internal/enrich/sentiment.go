package enrich

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StripFences removes a surrounding markdown code fence from a model
// response. Models occasionally wrap JSON in ```json fences despite being
// told not to.
func StripFences(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		if idx := strings.Index(cleaned, "\n"); idx >= 0 {
			cleaned = cleaned[idx+1:]
		} else {
			cleaned = cleaned[3:]
		}
		if strings.HasSuffix(cleaned, "```") {
			cleaned = cleaned[:len(cleaned)-3]
		}
	}
	return strings.TrimSpace(cleaned)
}

// ParseSentimentReport decodes a sentiment payload, tolerating code fences
// around the JSON body.
func ParseSentimentReport(raw string) (*SentimentReport, error) {
	var report SentimentReport
	if err := json.Unmarshal([]byte(StripFences(raw)), &report); err != nil {
		return nil, fmt.Errorf("failed to parse sentiment payload: %w", err)
	}
	if report.Turns == nil {
		report.Turns = []TurnSentiment{}
	}
	return &report, nil
}
