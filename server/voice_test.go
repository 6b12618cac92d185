package server

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/teilomillet/supportdesk/utils"
	"github.com/teilomillet/supportdesk/voice"
)

func TestCreateCall(t *testing.T) {
	caller := &mockCaller{configured: true}
	caller.On("CreateCall", mock.Anything, mock.Anything).Return(&voice.Call{CallID: "call-1", JoinURL: "wss://join/call-1"}, nil)
	s, _ := newTestServer(t, &mockGenerator{}, WithVoice(caller))

	rec := do(t, s, http.MethodPost, "/api/voice/create-call", `{"language":"bg"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp VoiceCallResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, VoiceCallResponse{
		Success: true,
		CallID:  "call-1",
		JoinURL: "wss://join/call-1",
		Message: "Voice call created successfully! Click the joinUrl to start.",
	}, resp)

	req := caller.Calls[0].Arguments.Get(1).(voice.CallRequest)
	assert.Equal(t, "bg", req.Language)
	assert.Equal(t, "terrence", req.Voice)
	assert.Contains(t, req.SystemPrompt, "Acme")
	assert.NotContains(t, req.SystemPrompt, "AI Support Agent")
	assert.Contains(t, req.SystemPrompt, "Refunds are accepted within 30 days")
}

func TestCreateCallEmptyBody(t *testing.T) {
	caller := &mockCaller{configured: true}
	caller.On("CreateCall", mock.Anything, mock.Anything).Return(&voice.Call{CallID: "c", JoinURL: "u"}, nil)
	s, _ := newTestServer(t, &mockGenerator{}, WithVoice(caller))

	rec := do(t, s, http.MethodPost, "/api/voice/create-call", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	req := caller.Calls[0].Arguments.Get(1).(voice.CallRequest)
	assert.Empty(t, req.Language)
	assert.Equal(t, "terrence", req.Voice)
}

func TestCreateCallUnsupportedLanguage(t *testing.T) {
	caller := &mockCaller{configured: true}
	s, _ := newTestServer(t, &mockGenerator{}, WithVoice(caller))

	rec := do(t, s, http.MethodPost, "/api/voice/create-call", `{"language":"fr"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Unsupported language: fr", decodeError(t, rec).Error)
	caller.AssertNotCalled(t, "CreateCall", mock.Anything, mock.Anything)
}

func TestCreateCallWithoutKey(t *testing.T) {
	for name, opts := range map[string][]Option{
		"no client":          nil,
		"client without key": {WithVoice(voice.NewClient(""))},
	} {
		t.Run(name, func(t *testing.T) {
			s, _ := newTestServer(t, &mockGenerator{}, opts...)
			rec := do(t, s, http.MethodPost, "/api/voice/create-call", `{}`, nil)
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Contains(t, decodeError(t, rec).Error, "ULTRAVOX_API_KEY not configured")
		})
	}
}

func TestCreateCallRelaysUpstreamStatus(t *testing.T) {
	upstream := (&stubUpstream{status: http.StatusPaymentRequired, body: `{"detail":"out of credits"}`}).start(t)
	client := voice.NewClient("uv-key", voice.WithEndpoint(upstream), voice.WithLogger(utils.NewMockLogger()))
	s, _ := newTestServer(t, &mockGenerator{}, WithVoice(client))

	rec := do(t, s, http.MethodPost, "/api/voice/create-call", `{"language":"en"}`, nil)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	resp := decodeError(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, `Ultravox API error: 402 - {"detail":"out of credits"}`, resp.Error)
}

func TestCreateCallEndToEnd(t *testing.T) {
	upstream := (&stubUpstream{status: http.StatusCreated, body: `{"callId":"abc","joinUrl":"wss://voice/abc"}`}).start(t)
	client := voice.NewClient("uv-key", voice.WithEndpoint(upstream), voice.WithLogger(utils.NewMockLogger()))
	s, _ := newTestServer(t, &mockGenerator{}, WithVoice(client))

	rec := do(t, s, http.MethodPost, "/api/voice/create-call", `{"voice":"mark"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp VoiceCallResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "abc", resp.CallID)
	assert.Equal(t, "wss://voice/abc", resp.JoinURL)
}
