package providers

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/teilomillet/supportdesk/utils"
)

const openAIEndpoint = "https://api.openai.com/v1/chat/completions"

// OpenAIProvider implements the OpenAI chat completions protocol. Groq and other
// OpenAI-compatible services reuse it with a different name and endpoint.
type OpenAIProvider struct {
	name         string
	apiKey       string
	model        string
	endpoint     string
	extraHeaders map[string]string
	logger       utils.Logger
}

// NewOpenAIProvider creates a new OpenAI provider instance
func NewOpenAIProvider(apiKey, model string, extraHeaders map[string]string) Provider {
	return newOpenAICompatible("openai", openAIEndpoint, apiKey, model, extraHeaders)
}

func newOpenAICompatible(name, endpoint, apiKey, model string, extraHeaders map[string]string) *OpenAIProvider {
	p := &OpenAIProvider{
		name:         name,
		apiKey:       apiKey,
		model:        model,
		endpoint:     endpoint,
		extraHeaders: make(map[string]string),
		logger:       utils.NewLogger(utils.LogLevelInfo),
	}
	copyHeaders(p.extraHeaders, extraHeaders)
	return p
}

func (p *OpenAIProvider) Name() string { return p.name }

func (p *OpenAIProvider) Endpoint() string { return p.endpoint }

func (p *OpenAIProvider) SetEndpoint(endpoint string) { p.endpoint = endpoint }

func (p *OpenAIProvider) SetLogger(logger utils.Logger) { p.logger = logger }

// Headers returns the necessary headers for API requests
func (p *OpenAIProvider) Headers() map[string]string {
	headers := map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer " + p.apiKey,
	}
	copyHeaders(headers, p.extraHeaders)
	return headers
}

type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// PrepareRequest prepares the request body for the API call
func (p *OpenAIProvider) PrepareRequest(req *Request) ([]byte, error) {
	body, err := json.Marshal(openAIRequest{
		Model:       p.model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling %s request: %w", p.name, err)
	}
	p.logger.Debug("Request prepared", "provider", p.name, "messages", len(req.Messages))
	return body, nil
}

// ParseResponse parses the API response
func (p *OpenAIProvider) ParseResponse(body []byte) (*Response, error) {
	var resp openAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("empty response from API")
	}

	out := &Response{Content: resp.Choices[0].Message.Content}
	if resp.Usage != nil {
		out.Usage = NewUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	}
	return out, nil
}
