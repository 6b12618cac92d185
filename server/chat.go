package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/teilomillet/supportdesk/knowledge"
	"github.com/teilomillet/supportdesk/llm"
	"github.com/teilomillet/supportdesk/providers"
	"github.com/teilomillet/supportdesk/utils"
)

// ChatMessage is one prior turn of the conversation as sent by the widget.
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system" jsonschema:"enum=user,enum=assistant,enum=system"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string        `json:"message" validate:"required" jsonschema:"minLength=1"`
	History []ChatMessage `json:"history,omitempty" validate:"omitempty,dive"`
}

// ChatResponse is the body of a successful POST /api/chat.
type ChatResponse struct {
	Success  bool             `json:"success"`
	Message  string           `json:"message"`
	Provider string           `json:"provider"`
	Usage    *providers.Usage `json:"usage,omitempty"`
}

// decodeChatRequest reads the body leniently so that a missing or non-string
// message is reported as such rather than as malformed JSON.
func decodeChatRequest(c echo.Context) (*ChatRequest, error) {
	var raw struct {
		Message json.RawMessage `json:"message"`
		History []ChatMessage   `json:"history"`
	}
	if err := json.NewDecoder(c.Request().Body).Decode(&raw); err != nil {
		return nil, apiError(http.StatusBadRequest, msgInvalidBody, err)
	}

	req := &ChatRequest{History: raw.History}
	if len(raw.Message) == 0 || json.Unmarshal(raw.Message, &req.Message) != nil {
		return nil, apiError(http.StatusBadRequest, msgMessageRequired, nil)
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, apiError(http.StatusBadRequest, msgMessageRequired, nil)
	}
	if err := utils.Validate(req); err != nil {
		return nil, apiError(http.StatusBadRequest, "Invalid history: "+utils.ValidationMessage(err), nil)
	}
	return req, nil
}

func (s *Server) handleChat(c echo.Context) error {
	req, err := decodeChatRequest(c)
	if err != nil {
		return err
	}

	docs, err := s.knowledge.Load()
	if err != nil {
		return apiError(http.StatusInternalServerError, msgKnowledgeFailed, err)
	}
	systemPrompt := knowledge.BuildSystemPrompt(s.cfg.CompanyName, docs)

	history := make([]providers.Message, len(req.History))
	for i, m := range req.History {
		history[i] = providers.Message{Role: m.Role, Content: m.Content}
	}
	messages := append(s.window.Apply(history), providers.Message{Role: providers.RoleUser, Content: req.Message})

	ctx := c.Request().Context()
	if s.generateBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.generateBudget)
		defer cancel()
	}
	resp, err := s.chat.Generate(ctx, messages, systemPrompt)
	if err != nil {
		return chatError(err)
	}

	return c.JSON(http.StatusOK, ChatResponse{
		Success:  true,
		Message:  resp.Message,
		Provider: resp.Provider,
		Usage:    resp.Usage,
	})
}

// chatError maps a chain failure onto the status and message shown to the
// widget. Provider payloads are never included.
func chatError(err error) error {
	if errors.Is(err, llm.ErrNoProviders) {
		return apiError(http.StatusInternalServerError, msgNoProviders, err)
	}

	var chainErr *llm.ChainError
	if errors.As(err, &chainErr) {
		switch {
		case chainErr.AllAuthFailures():
			return apiError(http.StatusUnauthorized, msgInvalidAPIKey, err)
		case chainErr.RateLimited():
			return apiError(http.StatusTooManyRequests, msgRateLimited, err)
		}
	}
	return apiError(http.StatusInternalServerError, msgGenerateFailed, err)
}
