package providers

const groqEndpoint = "https://api.groq.com/openai/v1/chat/completions"

// NewGroqProvider creates a provider for Groq's OpenAI-compatible endpoint.
func NewGroqProvider(apiKey, model string, extraHeaders map[string]string) Provider {
	return newOpenAICompatible("groq", groqEndpoint, apiKey, model, extraHeaders)
}
