package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/teilomillet/supportdesk/knowledge"
	"github.com/teilomillet/supportdesk/utils"
	"github.com/teilomillet/supportdesk/voice"
)

// VoiceCallRequest is the body of POST /api/voice/create-call. Both fields are
// optional.
type VoiceCallRequest struct {
	Language string `json:"language,omitempty" validate:"omitempty,voice_language" jsonschema:"enum=en,enum=bg,default=en"`
	Voice    string `json:"voice,omitempty" jsonschema:"default=terrence"`
}

// VoiceCallResponse is the body of a successful call creation.
type VoiceCallResponse struct {
	Success bool   `json:"success"`
	CallID  string `json:"callId"`
	JoinURL string `json:"joinUrl"`
	Message string `json:"message"`
}

func init() {
	if err := utils.RegisterCustomValidation("voice_language", func(fl validator.FieldLevel) bool {
		return voice.IsSupportedLanguage(fl.Field().String())
	}); err != nil {
		panic(err)
	}
}

const msgCallCreated = "Voice call created successfully! Click the joinUrl to start."

func (s *Server) handleCreateCall(c echo.Context) error {
	if s.voice == nil || !s.voice.Configured() {
		return apiError(http.StatusInternalServerError, voice.ErrMissingAPIKey.Error(), nil)
	}

	var req VoiceCallRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return apiError(http.StatusBadRequest, msgInvalidBody, err)
	}
	if err := utils.Validate(req); err != nil {
		return apiError(http.StatusBadRequest, "Unsupported language: "+req.Language, nil)
	}
	if req.Voice == "" {
		req.Voice = s.cfg.UltravoxVoice
	}

	docs, err := s.knowledge.Load()
	if err != nil {
		return apiError(http.StatusInternalServerError, msgKnowledgeFailed, err)
	}
	s.logger.Info("Voice call requested", "documents", len(docs), "language", req.Language, "voice", req.Voice)

	call, err := s.voice.CreateCall(c.Request().Context(), voice.CallRequest{
		SystemPrompt: knowledge.BuildSystemPrompt(s.cfg.VoiceCompanyName, docs),
		Language:     req.Language,
		Voice:        req.Voice,
	})
	if err != nil {
		var upstream *voice.APIError
		if errors.As(err, &upstream) {
			return apiError(upstream.StatusCode, upstream.Error(), nil)
		}
		return apiError(http.StatusInternalServerError, msgCallFailed, err)
	}

	return c.JSON(http.StatusOK, VoiceCallResponse{
		Success: true,
		CallID:  call.CallID,
		JoinURL: call.JoinURL,
		Message: msgCallCreated,
	})
}
