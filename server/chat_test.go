package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/teilomillet/supportdesk/config"
	"github.com/teilomillet/supportdesk/knowledge"
	"github.com/teilomillet/supportdesk/llm"
	"github.com/teilomillet/supportdesk/providers"
	"github.com/teilomillet/supportdesk/utils"
)

func TestChatRefundQuestion(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(&llm.Response{
		Message:  "Refunds are accepted within 30 days of purchase.",
		Provider: "openai",
		Usage:    &providers.Usage{PromptTokens: 200, CompletionTokens: 12, TotalTokens: 212},
	}, nil)
	s, _ := newTestServer(t, gen)

	rec := do(t, s, http.MethodPost, "/api/chat", `{"message":"What is your refund policy?","history":[]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Contains(t, resp.Message, "30 days")
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, 212, resp.Usage.TotalTokens)

	gen.AssertNumberOfCalls(t, "Generate", 1)
	call := gen.Calls[0]
	messages := call.Arguments.Get(1).([]providers.Message)
	systemPrompt := call.Arguments.Get(2).(string)
	assert.Equal(t, []providers.Message{{Role: providers.RoleUser, Content: "What is your refund policy?"}}, messages)
	assert.Contains(t, systemPrompt, "Acme")
	assert.Contains(t, systemPrompt, "## policy refunds\nRefunds are accepted within 30 days of purchase.")
}

func TestChatHistoryIsTruncated(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(&llm.Response{Message: "ok", Provider: "groq"}, nil)
	s, _ := newTestServer(t, gen)

	history := make([]ChatMessage, 15)
	for i := range history {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		history[i] = ChatMessage{Role: role, Content: fmt.Sprintf("turn %d", i)}
	}
	body, err := json.Marshal(ChatRequest{Message: "latest", History: history})
	require.NoError(t, err)

	rec := do(t, s, http.MethodPost, "/api/chat", string(body), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	messages := gen.Calls[0].Arguments.Get(1).([]providers.Message)
	require.Len(t, messages, 11)
	assert.Equal(t, "turn 5", messages[0].Content)
	assert.Equal(t, "turn 14", messages[9].Content)
	assert.Equal(t, providers.Message{Role: providers.RoleUser, Content: "latest"}, messages[10])

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotContains(t, resp, "usage")
}

func TestChatValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{name: "missing message", body: `{"history":[]}`, wantMsg: "Message is required"},
		{name: "empty message", body: `{"message":""}`, wantMsg: "Message is required"},
		{name: "blank message", body: `{"message":"   "}`, wantMsg: "Message is required"},
		{name: "non-string message", body: `{"message":42}`, wantMsg: "Message is required"},
		{name: "null message", body: `{"message":null}`, wantMsg: "Message is required"},
		{name: "malformed json", body: `{"message":`, wantMsg: "Invalid request body"},
		{name: "bad history role", body: `{"message":"hi","history":[{"role":"robot","content":"x"}]}`, wantMsg: "Invalid history"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mockGenerator{}
			s, _ := newTestServer(t, gen)

			rec := do(t, s, http.MethodPost, "/api/chat", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeError(t, rec)
			assert.False(t, resp.Success)
			assert.True(t, strings.HasPrefix(resp.Error, tt.wantMsg), resp.Error)
			gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestChatErrorMapping(t *testing.T) {
	authErr := llm.NewLLMError(llm.ErrorTypeAuthentication, "API error: status code 401", nil)
	limitErr := llm.NewLLMError(llm.ErrorTypeRateLimit, "API error: status code 429", nil)
	apiErr := llm.NewLLMError(llm.ErrorTypeAPI, "API error: status code 500", nil)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{name: "no providers", err: llm.ErrNoProviders, wantStatus: http.StatusInternalServerError, wantMsg: "LLM provider API key not configured"},
		{
			name:       "all auth failures",
			err:        &llm.ChainError{Attempts: []llm.Attempt{{Provider: "openai", Err: authErr}, {Provider: "groq", Err: authErr}}},
			wantStatus: http.StatusUnauthorized,
			wantMsg:    "Invalid API key",
		},
		{
			name:       "rate limited",
			err:        &llm.ChainError{Attempts: []llm.Attempt{{Provider: "openai", Err: authErr}, {Provider: "groq", Err: limitErr}}},
			wantStatus: http.StatusTooManyRequests,
			wantMsg:    "Too many requests. Please try again later.",
		},
		{
			name:       "exhausted",
			err:        &llm.ChainError{Attempts: []llm.Attempt{{Provider: "openai", Err: limitErr}, {Provider: "groq", Err: apiErr}}},
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Failed to generate response",
		},
		{name: "unexpected", err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantMsg: "Failed to generate response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mockGenerator{}
			gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err)
			s, logger := newTestServer(t, gen)

			rec := do(t, s, http.MethodPost, "/api/chat", `{"message":"hi"}`, nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeError(t, rec)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantMsg, resp.Error)
			assert.NotContains(t, rec.Body.String(), "status code")
			assert.True(t, logger.HasMessage("ERROR", "Request error"))
		})
	}
}

func TestChatKnowledgeFailure(t *testing.T) {
	gen := &mockGenerator{}
	s := New(config.NewConfig(), failingSource{}, gen, utils.NewMockLogger())

	rec := do(t, s, http.MethodPost, "/api/chat", `{"message":"hi"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to load knowledge base", decodeError(t, rec).Error)
	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}

func TestChatMissingKnowledgeDirectory(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(&llm.Response{Message: "ok", Provider: "openai"}, nil)
	logger := utils.NewMockLogger()
	s := New(config.NewConfig(), knowledge.NewStore(t.TempDir()+"/missing", logger), gen, logger)

	rec := do(t, s, http.MethodPost, "/api/chat", `{"message":"hi"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	systemPrompt := gen.Calls[0].Arguments.Get(2).(string)
	assert.Contains(t, systemPrompt, knowledge.EmptyKnowledgePlaceholder)
	assert.Contains(t, systemPrompt, "Our Company")
}

func TestChatInboundRateLimit(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(&llm.Response{Message: "ok", Provider: "openai"}, nil)

	cfg := config.NewConfig()
	config.ApplyOptions(cfg, config.SetRateLimit(0.001, 1))
	s := New(cfg, knowledge.NewStore(t.TempDir(), utils.NewMockLogger()), gen, utils.NewMockLogger())

	rec := do(t, s, http.MethodPost, "/api/chat", `{"message":"hi"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/chat", `{"message":"hi again"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too many requests. Please try again later.", decodeError(t, rec).Error)
	gen.AssertNumberOfCalls(t, "Generate", 1)
}

func TestChatEndToEndFallback(t *testing.T) {
	failing := &stubUpstream{status: http.StatusUnauthorized}
	healthy := &stubUpstream{status: http.StatusOK, body: `{"content":"Refunds are accepted within 30 days of purchase."}`}
	first, second := failing.start(t), healthy.start(t)

	chain := llm.NewChain([]providers.Provider{
		providers.NewMockProvider("openai", first),
		providers.NewMockProvider("anthropic", second),
	}, llm.WithLogger(utils.NewMockLogger()))
	s, _ := newTestServer(t, chain)

	rec := do(t, s, http.MethodPost, "/api/chat", `{"message":"What is your refund policy?"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "anthropic", resp.Provider)
	assert.Contains(t, resp.Message, "30 days")
}

func TestChatGenerationDeadline(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
		Return(nil, context.DeadlineExceeded)
	s, _ := newTestServer(t, gen, WithGenerateBudget(50*time.Millisecond))

	rec := do(t, s, http.MethodPost, "/api/chat", `{"message":"hi"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeError(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "Failed to generate response", resp.Error)
}

func TestWriteTimeoutCoversEveryAttempt(t *testing.T) {
	cfg := config.NewConfig()
	config.ApplyOptions(cfg,
		config.SetProviders("openai", "anthropic", "groq"),
		config.SetTimeout(11*time.Second),
	)
	s := New(cfg, failingSource{}, &mockGenerator{}, utils.NewMockLogger())
	assert.Equal(t, 33*time.Second, s.generateBudget)
	assert.Greater(t, s.writeTimeout(), 33*time.Second)

	s = New(cfg, failingSource{}, &mockGenerator{}, utils.NewMockLogger(), WithGenerateBudget(22*time.Second))
	assert.Equal(t, 22*time.Second+writeMargin, s.writeTimeout())

	config.ApplyOptions(cfg, config.SetTimeout(0))
	s = New(cfg, failingSource{}, &mockGenerator{}, utils.NewMockLogger())
	assert.Zero(t, s.writeTimeout())
}

func TestChatForwardsMessageVerbatim(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(&llm.Response{Message: "ok", Provider: "openai"}, nil)
	s, _ := newTestServer(t, gen)

	rec := do(t, s, http.MethodPost, "/api/chat", `{"message":"  Where is my order?\n"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	messages := gen.Calls[0].Arguments.Get(1).([]providers.Message)
	assert.Equal(t, "  Where is my order?\n", messages[len(messages)-1].Content)
}
