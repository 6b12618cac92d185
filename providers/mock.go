package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/teilomillet/supportdesk/utils"
)

// MockProvider implements Provider for tests. It posts the Request as plain
// JSON and expects {"content": "..."} back, so a test server can stand in for a
// vendor API without speaking any vendor dialect.
type MockProvider struct {
	name     string
	endpoint string
	logger   utils.Logger

	mu       sync.Mutex
	requests []Request
	parseErr error
}

type mockBody struct {
	Content string `json:"content"`
	Usage   *Usage `json:"usage,omitempty"`
}

// NewMockProvider creates a mock provider called name that posts to endpoint.
func NewMockProvider(name, endpoint string) *MockProvider {
	return &MockProvider{
		name:     name,
		endpoint: endpoint,
		logger:   utils.NewLogger(utils.LogLevelOff),
	}
}

// SetMockError makes ParseResponse fail with err; nil restores normal parsing.
func (p *MockProvider) SetMockError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.parseErr = err
}

// Requests returns copies of every request the provider prepared.
func (p *MockProvider) Requests() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Request, len(p.requests))
	copy(out, p.requests)
	return out
}

func (p *MockProvider) Name() string                  { return p.name }
func (p *MockProvider) Endpoint() string              { return p.endpoint }
func (p *MockProvider) SetEndpoint(endpoint string)   { p.endpoint = endpoint }
func (p *MockProvider) SetLogger(logger utils.Logger) { p.logger = logger }

func (p *MockProvider) Headers() map[string]string {
	return map[string]string{"Content-Type": "application/json"}
}

func (p *MockProvider) PrepareRequest(req *Request) ([]byte, error) {
	p.mu.Lock()
	recorded := *req
	recorded.Messages = append([]Message(nil), req.Messages...)
	p.requests = append(p.requests, recorded)
	p.mu.Unlock()

	return json.Marshal(req)
}

func (p *MockProvider) ParseResponse(body []byte) (*Response, error) {
	p.mu.Lock()
	parseErr := p.parseErr
	p.mu.Unlock()
	if parseErr != nil {
		return nil, parseErr
	}

	var resp mockBody
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding mock response: %w", err)
	}
	if resp.Content == "" {
		return nil, errors.New("empty response from API")
	}
	return &Response{Content: resp.Content, Usage: resp.Usage}, nil
}
