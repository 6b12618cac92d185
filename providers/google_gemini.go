package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/teilomillet/supportdesk/utils"
)

// GeminiProvider implements the generateContent endpoint of Google's Generative
// Language API. Gemini conversations only know "user" and "model" turns: the
// system prompt is sent as a leading user turn and assistant turns become model
// turns.
type GeminiProvider struct {
	apiKey       string
	model        string
	endpoint     string
	extraHeaders map[string]string
	logger       utils.Logger
}

func NewGeminiProvider(apiKey, model string, extraHeaders map[string]string) Provider {
	modelName := model
	if !strings.HasPrefix(modelName, "models/") {
		modelName = "models/" + modelName
	}
	p := &GeminiProvider{
		apiKey:       apiKey,
		model:        model,
		endpoint:     fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/%s:generateContent", modelName),
		extraHeaders: make(map[string]string),
		logger:       utils.NewLogger(utils.LogLevelInfo),
	}
	copyHeaders(p.extraHeaders, extraHeaders)
	return p
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Endpoint() string { return p.endpoint }

func (p *GeminiProvider) SetEndpoint(endpoint string) { p.endpoint = endpoint }

func (p *GeminiProvider) SetLogger(logger utils.Logger) { p.logger = logger }

func (p *GeminiProvider) Headers() map[string]string {
	headers := map[string]string{
		"Content-Type":   "application/json",
		"x-goog-api-key": p.apiKey,
	}
	copyHeaders(headers, p.extraHeaders)
	return headers
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// geminiRole maps a chat role onto the nearest Gemini role.
func geminiRole(role string) string {
	switch role {
	case RoleAssistant:
		return "model"
	default:
		return "user"
	}
}

func (p *GeminiProvider) PrepareRequest(req *Request) ([]byte, error) {
	var body geminiRequest
	body.Contents = make([]geminiContent, 0, len(req.Messages))
	for _, m := range req.Messages {
		body.Contents = append(body.Contents, geminiContent{
			Role:  geminiRole(m.Role),
			Parts: []geminiPart{{Text: m.Content}},
		})
	}
	body.GenerationConfig.Temperature = req.Temperature
	body.GenerationConfig.MaxOutputTokens = req.MaxTokens

	out, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling gemini request: %w", err)
	}
	p.logger.Debug("Request prepared", "provider", p.Name(), "contents", len(body.Contents))
	return out, nil
}

func (p *GeminiProvider) ParseResponse(body []byte) (*Response, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding gemini response: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, errors.New("empty response from API")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	if sb.Len() == 0 {
		return nil, errors.New("empty response from API")
	}

	out := &Response{Content: sb.String()}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = NewUsage(u.PromptTokenCount, u.CandidatesTokenCount, u.TotalTokenCount)
	}
	return out, nil
}
