// Package voice creates realtime voice calls on Ultravox. The service runs the
// call itself; this package only asks it for a join URL.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/teilomillet/supportdesk/utils"
)

const (
	DefaultEndpoint = "https://api.ultravox.ai/api/calls"
	DefaultModel    = "fixie-ai/ultravox-v0.7"
	DefaultVoice    = "terrence"
	DefaultLanguage = "en"

	callTemperature = 0.7
)

// ErrMissingAPIKey is returned when no Ultravox credential is configured.
var ErrMissingAPIKey = errors.New("ULTRAVOX_API_KEY not configured. Get your free API key at https://app.ultravox.ai/settings/")

// SupportedLanguages lists the accepted language hints.
var SupportedLanguages = []string{"en", "bg"}

// IsSupportedLanguage reports whether lang is one of SupportedLanguages.
func IsSupportedLanguage(lang string) bool {
	return slices.Contains(SupportedLanguages, lang)
}

// Call is a created voice session.
type Call struct {
	CallID  string `json:"callId"`
	JoinURL string `json:"joinUrl"`
}

// CallRequest describes the call to create.
type CallRequest struct {
	SystemPrompt string
	Language     string
	Voice        string
}

// APIError carries a non-2xx upstream reply so callers can relay it verbatim.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Ultravox API error: %d - %s", e.StatusCode, e.Body)
}

type Client struct {
	apiKey   string
	endpoint string
	model    string
	client   *http.Client
	logger   utils.Logger
}

type ClientOption func(*Client)

func WithEndpoint(endpoint string) ClientOption {
	return func(c *Client) { c.endpoint = endpoint }
}

func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.client = client }
}

func WithLogger(logger utils.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:   apiKey,
		endpoint: DefaultEndpoint,
		model:    DefaultModel,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   utils.NewLogger(utils.LogLevelInfo),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether the client has a credential.
func (c *Client) Configured() bool { return c.apiKey != "" }

type createCallBody struct {
	SystemPrompt string  `json:"systemPrompt"`
	Voice        string  `json:"voice"`
	LanguageHint string  `json:"languageHint"`
	Model        string  `json:"model"`
	Temperature  float64 `json:"temperature"`
}

// CreateCall asks Ultravox for a new call. Empty language and voice fall back
// to DefaultLanguage and DefaultVoice. A non-2xx reply is returned as *APIError.
func (c *Client) CreateCall(ctx context.Context, req CallRequest) (*Call, error) {
	if !c.Configured() {
		return nil, ErrMissingAPIKey
	}
	if req.Language == "" {
		req.Language = DefaultLanguage
	}
	if req.Voice == "" {
		req.Voice = DefaultVoice
	}

	payload, err := json.Marshal(createCallBody{
		SystemPrompt: req.SystemPrompt,
		Voice:        req.Voice,
		LanguageHint: req.Language,
		Model:        c.model,
		Temperature:  callTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling call request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating call request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", c.apiKey)

	c.logger.Info("Creating voice call", "language", req.Language, "voice", req.Voice)
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending call request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading call response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("Ultravox API error", "status", resp.StatusCode, "body", string(body))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var call Call
	if err := json.Unmarshal(body, &call); err != nil {
		return nil, fmt.Errorf("decoding call response: %w", err)
	}
	c.logger.Info("Voice call created", "call_id", call.CallID)
	return &call, nil
}
