package providers

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ProviderRegistry manages the registration and retrieval of LLM providers.
// It is safe for concurrent use.
type ProviderRegistry struct {
	providers map[string]ProviderConstructor
	mutex     sync.RWMutex
}

// NewProviderRegistry creates a registry holding the named providers. With no
// names every known provider is registered.
func NewProviderRegistry(providerNames ...string) *ProviderRegistry {
	registry := &ProviderRegistry{
		providers: make(map[string]ProviderConstructor),
	}

	known := getKnownProviders()
	if len(providerNames) == 0 {
		for name, constructor := range known {
			registry.providers[name] = constructor
		}
		return registry
	}

	for _, name := range providerNames {
		if constructor, ok := known[strings.ToLower(name)]; ok {
			registry.providers[strings.ToLower(name)] = constructor
		}
	}
	return registry
}

func getKnownProviders() map[string]ProviderConstructor {
	return map[string]ProviderConstructor{
		"openai":    NewOpenAIProvider,
		"anthropic": NewAnthropicProvider,
		"groq":      NewGroqProvider,
		"gemini":    NewGeminiProvider,
		"google":    NewGeminiProvider,
	}
}

// Register adds a provider constructor, replacing any existing one with the
// same name.
func (r *ProviderRegistry) Register(name string, constructor ProviderConstructor) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.providers[strings.ToLower(name)] = constructor
}

// Get builds a provider instance by name.
func (r *ProviderRegistry) Get(name, apiKey, model string, extraHeaders map[string]string) (Provider, error) {
	r.mutex.RLock()
	constructor, exists := r.providers[strings.ToLower(name)]
	r.mutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
	return constructor(apiKey, model, extraHeaders), nil
}

// Names lists the registered provider names in sorted order.
func (r *ProviderRegistry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
