// File: config/config.go

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/teilomillet/supportdesk/utils"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGroq      = "groq"
	ProviderGemini    = "gemini"

	DefaultVoiceCompanyName = "AI Support Agent"

	// VoiceKey is the APIKeys entry holding the realtime voice service credential.
	VoiceKey = "ultravox"
)

type Config struct {
	CompanyName      string `env:"COMPANY_NAME" envDefault:"Our Company" validate:"required"`
	// VoiceCompanyName falls back to COMPANY_NAME, then to DefaultVoiceCompanyName.
	VoiceCompanyName string `env:"VOICE_COMPANY_NAME" validate:"required"`

	KnowledgeBaseDir string `env:"KNOWLEDGE_BASE_DIR" envDefault:"knowledge-base" validate:"required"`
	KnowledgeCache   bool   `env:"KNOWLEDGE_CACHE" envDefault:"false"`

	// Providers is the fallback order. Entries without a credential are skipped.
	Providers []string `env:"LLM_PROVIDERS" envDefault:"openai,anthropic,groq" envSeparator:"," validate:"dive,oneof=openai anthropic groq gemini"`

	OpenAIModel    string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	AnthropicModel string `env:"ANTHROPIC_MODEL" envDefault:"claude-3-5-haiku-latest"`
	GroqModel      string `env:"GROQ_MODEL" envDefault:"llama-3.1-8b-instant"`
	GeminiModel    string `env:"GEMINI_MODEL" envDefault:"gemini-1.5-flash"`

	OpenAIEndpoint    string `env:"OPENAI_ENDPOINT" validate:"omitempty,url"`
	AnthropicEndpoint string `env:"ANTHROPIC_ENDPOINT" validate:"omitempty,url"`
	GroqEndpoint      string `env:"GROQ_ENDPOINT" validate:"omitempty,url"`
	GeminiEndpoint    string `env:"GEMINI_ENDPOINT" validate:"omitempty,url"`

	// ExtraHeaders are sent with every provider request, e.g. for an API
	// gateway in front of the vendors. Format: "Name=value,Other=value".
	ExtraHeaders map[string]string `env:"LLM_EXTRA_HEADERS" envSeparator:"," envKeyValSeparator:"="`

	Temperature float64       `env:"LLM_TEMPERATURE" envDefault:"0.7" validate:"gte=0,lte=2"`
	MaxTokens   int           `env:"LLM_MAX_TOKENS" envDefault:"1000" validate:"min=1"`
	Timeout     time.Duration `env:"LLM_TIMEOUT" envDefault:"30s" validate:"gte=0"`

	HistoryLimit     int `env:"CHAT_HISTORY_LIMIT" envDefault:"10" validate:"min=0"`
	HistoryMaxTokens int `env:"CHAT_HISTORY_MAX_TOKENS" envDefault:"0" validate:"min=0"`

	RateLimit float64 `env:"CHAT_RATE_LIMIT" envDefault:"0" validate:"gte=0"`
	RateBurst int     `env:"CHAT_RATE_BURST" envDefault:"5" validate:"min=1"`

	UltravoxEndpoint string `env:"ULTRAVOX_ENDPOINT" envDefault:"https://api.ultravox.ai/api/calls" validate:"required,url"`
	UltravoxModel    string `env:"ULTRAVOX_MODEL" envDefault:"fixie-ai/ultravox-v0.7"`
	UltravoxVoice    string `env:"ULTRAVOX_VOICE" envDefault:"terrence"`

	ListenAddr string          `env:"LISTEN_ADDR" envDefault:":3000"`
	LogLevel   utils.LogLevel  `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat  utils.LogFormat `env:"LOG_FORMAT" envDefault:"text"`

	APIKeys map[string]string
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		APIKeys: make(map[string]string),
	}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	loadAPIKeys(cfg)
	if cfg.VoiceCompanyName == "" {
		cfg.VoiceCompanyName = DefaultVoiceCompanyName
		if name, ok := os.LookupEnv("COMPANY_NAME"); ok && name != "" {
			cfg.VoiceCompanyName = cfg.CompanyName
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadAPIKeys(cfg *Config) {
	for _, envVar := range os.Environ() {
		key, value, found := strings.Cut(envVar, "=")
		if found && value != "" && strings.HasSuffix(strings.ToUpper(key), "_API_KEY") {
			provider := strings.TrimSuffix(strings.ToUpper(key), "_API_KEY")
			cfg.APIKeys[strings.ToLower(provider)] = value
		}
	}

	// Gemini keys are issued as Google API keys.
	if _, ok := cfg.APIKeys[ProviderGemini]; !ok {
		if key, ok := cfg.APIKeys["google"]; ok {
			cfg.APIKeys[ProviderGemini] = key
		}
	}
}

// Validate checks field constraints. Missing credentials are not a validation
// error: they surface per request as configuration errors.
func (c *Config) Validate() error {
	if err := utils.Validate(c); err != nil {
		return fmt.Errorf("invalid configuration: %s", utils.ValidationMessage(err))
	}
	return nil
}

// APIKey returns the credential configured for name, or "".
func (c *Config) APIKey(name string) string {
	return c.APIKeys[strings.ToLower(name)]
}

// Model returns the model configured for a provider.
func (c *Config) Model(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return c.OpenAIModel
	case ProviderAnthropic:
		return c.AnthropicModel
	case ProviderGroq:
		return c.GroqModel
	case ProviderGemini:
		return c.GeminiModel
	default:
		return ""
	}
}

// Endpoint returns the endpoint override for a provider, or "" for the default.
func (c *Config) Endpoint(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return c.OpenAIEndpoint
	case ProviderAnthropic:
		return c.AnthropicEndpoint
	case ProviderGroq:
		return c.GroqEndpoint
	case ProviderGemini:
		return c.GeminiEndpoint
	default:
		return ""
	}
}

// ConfiguredProviders returns the fallback order restricted to providers that
// have a credential.
func (c *Config) ConfiguredProviders() []string {
	out := make([]string, 0, len(c.Providers))
	for _, name := range c.Providers {
		if c.APIKey(name) != "" {
			out = append(out, name)
		}
	}
	return out
}

type ConfigOption func(*Config)

// NewConfig returns a Config holding the same defaults LoadConfig applies,
// without reading the environment.
func NewConfig() *Config {
	return &Config{
		CompanyName:      "Our Company",
		VoiceCompanyName: DefaultVoiceCompanyName,
		KnowledgeBaseDir: "knowledge-base",
		Providers:        []string{ProviderOpenAI, ProviderAnthropic, ProviderGroq},
		OpenAIModel:      "gpt-4o-mini",
		AnthropicModel:   "claude-3-5-haiku-latest",
		GroqModel:        "llama-3.1-8b-instant",
		GeminiModel:      "gemini-1.5-flash",
		Temperature:      0.7,
		MaxTokens:        1000,
		Timeout:          30 * time.Second,
		HistoryLimit:     10,
		RateBurst:        5,
		UltravoxEndpoint: "https://api.ultravox.ai/api/calls",
		UltravoxModel:    "fixie-ai/ultravox-v0.7",
		UltravoxVoice:    "terrence",
		ListenAddr:       ":3000",
		LogLevel:         utils.LogLevelInfo,
		LogFormat:        utils.LogFormatText,
		APIKeys:          make(map[string]string),
	}
}

// SetCompanyName names the company in both the chat and the voice prompt.
func SetCompanyName(name string) ConfigOption {
	return func(c *Config) {
		c.CompanyName = name
		c.VoiceCompanyName = name
	}
}

func SetKnowledgeBaseDir(dir string) ConfigOption {
	return func(c *Config) {
		c.KnowledgeBaseDir = dir
	}
}

func SetKnowledgeCache(enabled bool) ConfigOption {
	return func(c *Config) {
		c.KnowledgeCache = enabled
	}
}

func SetProviders(names ...string) ConfigOption {
	return func(c *Config) {
		c.Providers = append([]string(nil), names...)
	}
}

func SetAPIKey(name, apiKey string) ConfigOption {
	return func(c *Config) {
		if c.APIKeys == nil {
			c.APIKeys = make(map[string]string)
		}
		c.APIKeys[strings.ToLower(name)] = apiKey
	}
}

func SetEndpoint(provider, endpoint string) ConfigOption {
	return func(c *Config) {
		switch provider {
		case ProviderOpenAI:
			c.OpenAIEndpoint = endpoint
		case ProviderAnthropic:
			c.AnthropicEndpoint = endpoint
		case ProviderGroq:
			c.GroqEndpoint = endpoint
		case ProviderGemini:
			c.GeminiEndpoint = endpoint
		}
	}
}

func SetExtraHeaders(headers map[string]string) ConfigOption {
	return func(c *Config) {
		c.ExtraHeaders = headers
	}
}

func SetTemperature(temperature float64) ConfigOption {
	return func(c *Config) {
		c.Temperature = temperature
	}
}

func SetMaxTokens(maxTokens int) ConfigOption {
	return func(c *Config) {
		if maxTokens < 1 {
			maxTokens = 1
		}
		c.MaxTokens = maxTokens
	}
}

func SetTimeout(timeout time.Duration) ConfigOption {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

func SetHistoryLimit(limit int) ConfigOption {
	return func(c *Config) {
		c.HistoryLimit = limit
	}
}

func SetRateLimit(perSecond float64, burst int) ConfigOption {
	return func(c *Config) {
		c.RateLimit = perSecond
		c.RateBurst = burst
	}
}

func SetUltravoxEndpoint(endpoint string) ConfigOption {
	return func(c *Config) {
		c.UltravoxEndpoint = endpoint
	}
}

func SetLogLevel(level utils.LogLevel) ConfigOption {
	return func(c *Config) {
		c.LogLevel = level
	}
}

func SetLogFormat(format utils.LogFormat) ConfigOption {
	return func(c *Config) {
		c.LogFormat = format
	}
}

func ApplyOptions(cfg *Config, options ...ConfigOption) {
	for _, option := range options {
		option(cfg)
	}
}
