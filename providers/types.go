package providers

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in the conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the provider-neutral generation request. Messages already carry
// the system prompt as their first entry.
type Request struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Response is a parsed completion.
type Response struct {
	Content string
	Usage   *Usage
}

// Usage holds token counters normalised across providers.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// NewUsage builds a Usage, deriving the total when the provider omits it.
func NewUsage(promptTokens, completionTokens, totalTokens int) *Usage {
	if totalTokens == 0 {
		totalTokens = promptTokens + completionTokens
	}
	return &Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      totalTokens,
	}
}
