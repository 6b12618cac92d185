// Package llm runs chat completions against an ordered chain of providers,
// falling through to the next provider whenever one fails.
package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/teilomillet/supportdesk/config"
	"github.com/teilomillet/supportdesk/providers"
	"github.com/teilomillet/supportdesk/utils"
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 1000
	defaultTimeout     = 30 * time.Second

	maxResponseBytes = 4 << 20
)

// Response is the result of a successful chain call.
type Response struct {
	Message  string
	Provider string
	Usage    *providers.Usage
}

// Orderer decides the order in which providers are attempted for one call.
type Orderer interface {
	Order(chain []providers.Provider) []providers.Provider
}

// StaticOrder attempts providers in their configured order.
type StaticOrder struct{}

// Order returns chain unchanged.
func (StaticOrder) Order(chain []providers.Provider) []providers.Provider { return chain }

// Chain is an ordered provider fallback chain. It is built once at startup and
// is safe for concurrent use.
type Chain struct {
	providers   []providers.Provider
	orderer     Orderer
	client      *http.Client
	temperature float64
	maxTokens   int
	logger      utils.Logger
	metrics     *Metrics
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithOrderer sets how providers are ordered for each call.
func WithOrderer(o Orderer) ChainOption {
	return func(c *Chain) { c.orderer = o }
}

// WithHTTPClient sends provider requests through client.
func WithHTTPClient(client *http.Client) ChainOption {
	return func(c *Chain) { c.client = client }
}

// WithTimeout replaces the HTTP client with one bounding each attempt to timeout.
func WithTimeout(timeout time.Duration) ChainOption {
	return func(c *Chain) { c.client = &http.Client{Timeout: timeout} }
}

// WithTemperature sets the sampling temperature sent to every provider.
func WithTemperature(temperature float64) ChainOption {
	return func(c *Chain) { c.temperature = temperature }
}

// WithMaxTokens caps the reply length in tokens.
func WithMaxTokens(maxTokens int) ChainOption {
	return func(c *Chain) { c.maxTokens = maxTokens }
}

// WithLogger sets the logger for attempt outcomes.
func WithLogger(logger utils.Logger) ChainOption {
	return func(c *Chain) { c.logger = logger }
}

// WithMetrics records attempts on m.
func WithMetrics(m *Metrics) ChainOption {
	return func(c *Chain) { c.metrics = m }
}

// NewChain creates a chain over chain, attempted in the given order.
func NewChain(chain []providers.Provider, opts ...ChainOption) *Chain {
	c := &Chain{
		providers:   append([]providers.Provider(nil), chain...),
		orderer:     StaticOrder{},
		client:      &http.Client{Timeout: defaultTimeout},
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
		logger:      utils.NewLogger(utils.LogLevelInfo),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewChainFromConfig builds the chain from cfg.Providers, leaving out every
// provider without a credential. An empty chain is not an error here; Generate
// reports ErrNoProviders.
func NewChainFromConfig(cfg *config.Config, registry *providers.ProviderRegistry, logger utils.Logger, opts ...ChainOption) (*Chain, error) {
	var chain []providers.Provider
	for _, name := range cfg.ConfiguredProviders() {
		p, err := registry.Get(name, cfg.APIKey(name), cfg.Model(name), cfg.ExtraHeaders)
		if err != nil {
			return nil, fmt.Errorf("building provider chain: %w", err)
		}
		if endpoint := cfg.Endpoint(name); endpoint != "" {
			p.SetEndpoint(endpoint)
		}
		p.SetLogger(logger)
		chain = append(chain, p)
	}

	if len(chain) == 0 {
		logger.Warn("No LLM provider credentials configured", "order", cfg.Providers)
	} else {
		logger.Info("Provider chain ready", "providers", names(chain))
	}

	base := []ChainOption{
		WithLogger(logger),
		WithTemperature(cfg.Temperature),
		WithMaxTokens(cfg.MaxTokens),
		WithTimeout(cfg.Timeout),
	}
	return NewChain(chain, append(base, opts...)...), nil
}

// Len returns the number of providers in the chain.
func (c *Chain) Len() int { return len(c.providers) }

// Providers returns the provider names in configured order.
func (c *Chain) Providers() []string { return names(c.providers) }

// Generate sends systemPrompt followed by messages to each provider in turn
// and returns the first successful reply. When every provider fails it returns
// a *ChainError; a cancelled ctx stops the chain with ctx.Err().
func (c *Chain) Generate(ctx context.Context, messages []providers.Message, systemPrompt string) (*Response, error) {
	if len(c.providers) == 0 {
		return nil, ErrNoProviders
	}

	full := make([]providers.Message, 0, len(messages)+1)
	full = append(full, providers.Message{Role: providers.RoleSystem, Content: systemPrompt})
	full = append(full, messages...)
	req := &providers.Request{
		Messages:    full,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	order := c.orderer.Order(append([]providers.Provider(nil), c.providers...))
	var attempts []Attempt
	for _, p := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		resp, err := c.attempt(ctx, p, req)
		c.metrics.observe(p.Name(), err, time.Since(start))
		if err == nil {
			c.logger.Debug("Provider succeeded", "provider", p.Name(), "duration", time.Since(start))
			return &Response{
				Message:  resp.Content,
				Provider: p.Name(),
				Usage:    resp.Usage,
			}, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.Warn("Provider failed, trying next", append([]any{"provider", p.Name()}, loggableFields(err)...)...)
		attempts = append(attempts, Attempt{Provider: p.Name(), Err: err})
	}

	c.logger.Error("All providers failed", "attempts", len(attempts))
	return nil, &ChainError{Attempts: attempts}
}

func (c *Chain) attempt(ctx context.Context, p providers.Provider, chatReq *providers.Request) (*providers.Response, error) {
	reqBody, err := p.PrepareRequest(chatReq)
	if err != nil {
		return nil, NewLLMError(ErrorTypeRequest, "failed to prepare request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint(), bytes.NewReader(reqBody))
	if err != nil {
		return nil, NewLLMError(ErrorTypeRequest, "failed to create request", err)
	}
	for k, v := range p.Headers() {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, NewLLMError(ErrorTypeRequest, "failed to send request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, NewLLMError(ErrorTypeResponse, "failed to read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("API error", "provider", p.Name(), "status", resp.StatusCode, "body", string(body))
		return nil, NewLLMError(classifyStatus(resp.StatusCode), fmt.Sprintf("API error: status code %d", resp.StatusCode), nil)
	}

	result, err := p.ParseResponse(body)
	if err != nil {
		return nil, NewLLMError(ErrorTypeResponse, "failed to parse response", err)
	}
	return result, nil
}

func classifyStatus(status int) ErrorType {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrorTypeAuthentication
	case http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	default:
		return ErrorTypeAPI
	}
}

func loggableFields(err error) []any {
	var llmErr *LLMError
	if errors.As(err, &llmErr) {
		return llmErr.LoggableFields()
	}
	return []any{"error", err}
}

func names(chain []providers.Provider) []string {
	out := make([]string, len(chain))
	for i, p := range chain {
		out[i] = p.Name()
	}
	return out
}
