// Package providers implements the wire protocols of the LLM services the
// fallback chain can call. Each provider turns a Request into a vendor request
// body and parses the vendor response back into a Response; transport, retries
// and fallback live in package llm.
package providers

import (
	"github.com/teilomillet/supportdesk/utils"
)

// Provider defines the interface every LLM provider must implement.
type Provider interface {
	// Name identifies the provider in responses, logs and metrics.
	Name() string
	// Endpoint is the URL requests are POSTed to.
	Endpoint() string
	// SetEndpoint overrides the default endpoint.
	SetEndpoint(endpoint string)
	// Headers returns authentication and content headers plus the extra
	// headers given at construction.
	Headers() map[string]string
	SetLogger(logger utils.Logger)

	// PrepareRequest encodes req for the vendor API.
	PrepareRequest(req *Request) ([]byte, error)
	// ParseResponse decodes a 2xx response body. Malformed or empty payloads
	// are errors.
	ParseResponse(body []byte) (*Response, error)
}

// ProviderConstructor defines a function type for creating new provider instances.
type ProviderConstructor func(apiKey, model string, extraHeaders map[string]string) Provider

func copyHeaders(dst map[string]string, src map[string]string) {
	for k, v := range src {
		dst[k] = v
	}
}
