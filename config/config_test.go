package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teilomillet/supportdesk/config"
	"github.com/teilomillet/supportdesk/utils"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "Our Company", cfg.CompanyName)
	assert.Equal(t, "AI Support Agent", cfg.VoiceCompanyName)
	assert.Equal(t, []string{"openai", "anthropic", "groq"}, cfg.Providers)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAIModel)
	assert.InDelta(t, 0.7, cfg.Temperature, 1e-9)
	assert.Equal(t, 1000, cfg.MaxTokens)
	assert.Equal(t, 10, cfg.HistoryLimit)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, "https://api.ultravox.ai/api/calls", cfg.UltravoxEndpoint)
	assert.Equal(t, "terrence", cfg.UltravoxVoice)
	assert.Equal(t, utils.LogFormatText, cfg.LogFormat)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("COMPANY_NAME", "Acme")
	t.Setenv("LLM_PROVIDERS", "gemini,openai")
	t.Setenv("OPENAI_API_KEY", "sk-test-openai")
	t.Setenv("GOOGLE_API_KEY", "google-key")
	t.Setenv("ULTRAVOX_API_KEY", "uv-key")
	t.Setenv("CHAT_HISTORY_LIMIT", "4")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LLM_EXTRA_HEADERS", "X-Gateway-Key=gw-1,X-Team=support")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "Acme", cfg.CompanyName)
	assert.Equal(t, "Acme", cfg.VoiceCompanyName)
	assert.Equal(t, []string{"gemini", "openai"}, cfg.Providers)
	assert.Equal(t, "sk-test-openai", cfg.APIKey("openai"))
	assert.Equal(t, "google-key", cfg.APIKey("gemini"), "GOOGLE_API_KEY should alias gemini")
	assert.Equal(t, "uv-key", cfg.APIKey(config.VoiceKey))
	assert.Equal(t, 4, cfg.HistoryLimit)
	assert.Equal(t, utils.LogLevelDebug, cfg.LogLevel)
	assert.Equal(t, utils.LogFormatJSON, cfg.LogFormat)
	assert.Equal(t, map[string]string{"X-Gateway-Key": "gw-1", "X-Team": "support"}, cfg.ExtraHeaders)
}

func TestVoiceCompanyName(t *testing.T) {
	tests := []struct {
		name    string
		company string
		voice   string
		want    string
	}{
		{name: "defaults", want: "AI Support Agent"},
		{name: "follows company name", company: "Acme", want: "Acme"},
		{name: "explicit voice name wins", company: "Acme", voice: "Acme Phone Desk", want: "Acme Phone Desk"},
		{name: "voice name alone", voice: "Helpline", want: "Helpline"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.company != "" {
				t.Setenv("COMPANY_NAME", tt.company)
			}
			if tt.voice != "" {
				t.Setenv("VOICE_COMPANY_NAME", tt.voice)
			}
			cfg, err := config.LoadConfig()
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.VoiceCompanyName)
		})
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown provider", "LLM_PROVIDERS", "openai,skynet"},
		{"temperature too high", "LLM_TEMPERATURE", "3.5"},
		{"zero max tokens", "LLM_MAX_TOKENS", "0"},
		{"bad log level", "LOG_LEVEL", "chatty"},
		{"bad log format", "LOG_FORMAT", "xml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := config.LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestConfiguredProvidersSkipsMissingCredentials(t *testing.T) {
	cfg := config.NewConfig()
	config.ApplyOptions(cfg,
		config.SetProviders("openai", "anthropic", "groq"),
		config.SetAPIKey("groq", "gsk-test"),
		config.SetAPIKey("OpenAI", "sk-test"),
	)

	assert.Equal(t, []string{"openai", "groq"}, cfg.ConfiguredProviders())
}

func TestConfigOptions(t *testing.T) {
	cfg := config.NewConfig()
	require.NoError(t, cfg.Validate())

	config.ApplyOptions(cfg,
		config.SetCompanyName("Globex"),
		config.SetMaxTokens(0),
		config.SetEndpoint("anthropic", "http://localhost:9999/v1/messages"),
		config.SetRateLimit(2, 3),
	)

	assert.Equal(t, "Globex", cfg.CompanyName)
	assert.Equal(t, 1, cfg.MaxTokens, "max tokens is clamped to 1")
	assert.Equal(t, "http://localhost:9999/v1/messages", cfg.Endpoint("anthropic"))
	assert.Equal(t, "", cfg.Endpoint("openai"))
	assert.Equal(t, "claude-3-5-haiku-latest", cfg.Model("anthropic"))
	assert.InDelta(t, 2.0, cfg.RateLimit, 1e-9)
	assert.Equal(t, 3, cfg.RateBurst)
	require.NoError(t, cfg.Validate())
}
