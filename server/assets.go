package server

import (
	_ "embed"
	"net/http"

	"github.com/invopop/jsonschema"
	"github.com/labstack/echo/v4"

	"github.com/teilomillet/supportdesk/knowledge"
)

//go:embed static/widget.js
var widgetJS []byte

func (s *Server) handleWidget(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=300")
	return c.Blob(http.StatusOK, "application/javascript; charset=utf-8", widgetJS)
}

// KnowledgeEntry describes one loaded document without its content.
type KnowledgeEntry struct {
	Title    string `json:"title"`
	Category string `json:"category"`
}

type KnowledgeResponse struct {
	Success   bool             `json:"success"`
	Count     int              `json:"count"`
	Documents []KnowledgeEntry `json:"documents"`
	Summary   string           `json:"summary"`
}

func (s *Server) handleKnowledge(c echo.Context) error {
	docs, err := s.knowledge.Load()
	if err != nil {
		return apiError(http.StatusInternalServerError, msgKnowledgeFailed, err)
	}

	entries := make([]KnowledgeEntry, len(docs))
	for i, d := range docs {
		entries[i] = KnowledgeEntry{Title: d.Title, Category: d.Category}
	}
	return c.JSON(http.StatusOK, KnowledgeResponse{
		Success:   true,
		Count:     len(docs),
		Documents: entries,
		Summary:   knowledge.Summary(docs),
	})
}

// Schemas returns the JSON Schema of every API request and response body,
// keyed by type name.
func Schemas() map[string]*jsonschema.Schema {
	r := &jsonschema.Reflector{DoNotReference: true}
	return map[string]*jsonschema.Schema{
		"ChatRequest":       r.Reflect(&ChatRequest{}),
		"ChatResponse":      r.Reflect(&ChatResponse{}),
		"VoiceCallRequest":  r.Reflect(&VoiceCallRequest{}),
		"VoiceCallResponse": r.Reflect(&VoiceCallResponse{}),
		"KnowledgeResponse": r.Reflect(&KnowledgeResponse{}),
		"ErrorResponse":     r.Reflect(&ErrorResponse{}),
	}
}

func (s *Server) handleSchema(c echo.Context) error {
	return c.JSON(http.StatusOK, Schemas())
}
