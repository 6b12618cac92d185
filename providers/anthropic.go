package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/teilomillet/supportdesk/utils"
)

const (
	anthropicEndpoint = "https://api.anthropic.com/v1/messages"
	anthropicVersion  = "2023-06-01"
)

// AnthropicProvider implements the Anthropic Messages API. The API has no
// system role inside messages, so system messages travel in the top-level
// "system" field.
type AnthropicProvider struct {
	apiKey       string
	model        string
	endpoint     string
	extraHeaders map[string]string
	logger       utils.Logger
}

func NewAnthropicProvider(apiKey, model string, extraHeaders map[string]string) Provider {
	p := &AnthropicProvider{
		apiKey:       apiKey,
		model:        model,
		endpoint:     anthropicEndpoint,
		extraHeaders: make(map[string]string),
		logger:       utils.NewLogger(utils.LogLevelInfo),
	}
	copyHeaders(p.extraHeaders, extraHeaders)
	return p
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Endpoint() string { return p.endpoint }

func (p *AnthropicProvider) SetEndpoint(endpoint string) { p.endpoint = endpoint }

func (p *AnthropicProvider) SetLogger(logger utils.Logger) { p.logger = logger }

func (p *AnthropicProvider) Headers() map[string]string {
	headers := map[string]string{
		"Content-Type":      "application/json",
		"x-api-key":         p.apiKey,
		"anthropic-version": anthropicVersion,
	}
	copyHeaders(headers, p.extraHeaders)
	return headers
}

type anthropicRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *AnthropicProvider) PrepareRequest(req *Request) ([]byte, error) {
	var system []string
	messages := make([]Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		// Consecutive turns from the same speaker are merged; the API
		// expects user and assistant to alternate.
		if n := len(messages); n > 0 && messages[n-1].Role == m.Role {
			messages[n-1].Content += "\n\n" + m.Content
			continue
		}
		messages = append(messages, m)
	}
	// The conversation must open with a user turn; a trimmed history can
	// start mid-exchange.
	for len(messages) > 0 && messages[0].Role != RoleUser {
		p.logger.Debug("Dropping leading turn", "provider", p.Name(), "role", messages[0].Role)
		messages = messages[1:]
	}

	body, err := json.Marshal(anthropicRequest{
		Model:       p.model,
		System:      strings.Join(system, "\n\n"),
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling anthropic request: %w", err)
	}
	p.logger.Debug("Request prepared", "provider", p.Name(), "messages", len(messages))
	return body, nil
}

func (p *AnthropicProvider) ParseResponse(body []byte) (*Response, error) {
	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding anthropic response: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return nil, errors.New("empty response from API")
	}

	out := &Response{Content: sb.String()}
	if resp.Usage != nil {
		out.Usage = NewUsage(resp.Usage.InputTokens, resp.Usage.OutputTokens, 0)
	}
	return out, nil
}
