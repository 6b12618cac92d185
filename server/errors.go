package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	msgMessageRequired = "Message is required"
	msgInvalidBody     = "Invalid request body"
	msgNoProviders     = "LLM provider API key not configured"
	msgInvalidAPIKey   = "Invalid API key"
	msgRateLimited     = "Too many requests. Please try again later."
	msgGenerateFailed  = "Failed to generate response"
	msgCallFailed      = "Failed to create voice call"
	msgKnowledgeFailed = "Failed to load knowledge base"
)

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
	}
	if he != nil && he.Internal != nil {
		s.logger.Error("Request error", "status", code, "path", c.Path(), "error", he.Internal)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, ErrorResponse{Success: false, Error: msg})
}

func apiError(code int, msg string, internal error) *echo.HTTPError {
	he := echo.NewHTTPError(code, msg)
	if internal != nil {
		he = he.SetInternal(internal)
	}
	return he
}
