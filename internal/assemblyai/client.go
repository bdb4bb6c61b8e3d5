package assemblyai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scribelab/medscribe/internal/config"
	"github.com/scribelab/medscribe/pkg/logger"
)

// Client talks to the AssemblyAI v3 streaming service. It dials the duplex
// streaming socket for recording sessions and mints temporary tokens for
// browser-side capture.
type Client struct {
	apiKey     string
	baseURL    string
	tokenURL   string
	dialer     *websocket.Dialer
	httpClient *http.Client
	logger     *logger.Logger
}

// StreamParams carries the streaming socket's connection parameters.
type StreamParams struct {
	SampleRate            int
	Encoding              string
	FormatTurns           bool
	EndOfTurnConfidence   float64
	MinEndOfTurnSilenceMs int
	MaxTurnSilenceMs      int
	Keyterms              []string
}

// NewClient creates a streaming client from configuration.
func NewClient(cfg *config.AssemblyAIConfig, log *logger.Logger) *Client {
	if cfg.APIKey == "" {
		log.Warn("AssemblyAI API key is empty - live transcription will not work")
	}

	return &Client{
		apiKey:   cfg.APIKey,
		baseURL:  cfg.BaseURL,
		tokenURL: cfg.TokenURL,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.DialTimeout(),
		},
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout(),
		},
		logger: log.Named("assemblyai"),
	}
}

// StreamURL builds the streaming socket URL with p encoded as query
// parameters. Keyterms are serialized as a JSON string list.
func (c *Client) StreamURL(p StreamParams) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid streaming base URL %q: %w", c.baseURL, err)
	}

	q := u.Query()
	q.Set("sample_rate", strconv.Itoa(p.SampleRate))
	q.Set("format_turns", strconv.FormatBool(p.FormatTurns))
	q.Set("encoding", p.Encoding)
	if p.EndOfTurnConfidence > 0 {
		q.Set("end_of_turn_confidence_threshold", strconv.FormatFloat(p.EndOfTurnConfidence, 'f', -1, 64))
	}
	if p.MinEndOfTurnSilenceMs > 0 {
		q.Set("min_end_of_turn_silence_when_confident", strconv.Itoa(p.MinEndOfTurnSilenceMs))
	}
	if p.MaxTurnSilenceMs > 0 {
		q.Set("max_turn_silence", strconv.Itoa(p.MaxTurnSilenceMs))
	}
	if len(p.Keyterms) > 0 {
		terms, err := json.Marshal(p.Keyterms)
		if err != nil {
			return "", fmt.Errorf("failed to encode keyterms: %w", err)
		}
		q.Set("keyterms_prompt", string(terms))
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// DialStream opens the duplex streaming socket, authenticating with the
// API key in the Authorization header.
func (c *Client) DialStream(ctx context.Context, p StreamParams) (*websocket.Conn, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("AssemblyAI API key is required for streaming")
	}

	streamURL, err := c.StreamURL(p)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", c.apiKey)

	conn, resp, err := c.dialer.DialContext(ctx, streamURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial streaming socket (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial streaming socket: %w", err)
	}

	c.logger.Info("Connected to streaming transcription service",
		logger.Int("sample_rate", p.SampleRate),
		logger.String("encoding", p.Encoding),
		logger.Bool("format_turns", p.FormatTurns),
		logger.Int("keyterms", len(p.Keyterms)))

	return conn, nil
}

// TemporaryToken mints a short-lived streaming token for browser capture
// clients so the API key never leaves the server.
func (c *Client) TemporaryToken(ctx context.Context, expiresIn time.Duration) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("AssemblyAI API key is required to mint tokens")
	}

	u, err := url.Parse(c.tokenURL)
	if err != nil {
		return "", fmt.Errorf("invalid token URL %q: %w", c.tokenURL, err)
	}
	q := u.Query()
	q.Set("expires_in_seconds", strconv.Itoa(int(expiresIn.Seconds())))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tokenResp TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResp.Token == "" {
		return "", fmt.Errorf("token endpoint returned an empty token")
	}

	c.logger.Debug("Minted temporary streaming token",
		logger.Duration("expires_in", expiresIn))

	return tokenResp.Token, nil
}
