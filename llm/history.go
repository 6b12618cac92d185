package llm

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/teilomillet/supportdesk/providers"
	"github.com/teilomillet/supportdesk/utils"
)

// TrimHistory returns a copy of the last limit entries of history, in order.
// A limit of zero or less keeps nothing.
func TrimHistory(history []providers.Message, limit int) []providers.Message {
	if limit <= 0 || len(history) == 0 {
		return []providers.Message{}
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	out := make([]providers.Message, len(history))
	copy(out, history)
	return out
}

// TokenCounter counts the tokens of a piece of text.
type TokenCounter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTokenCounter returns a tiktoken counter for model. Unknown models fall
// back to the cl100k_base encoding.
func NewTokenCounter(model string, logger utils.Logger) (TokenCounter, error) {
	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		logger.Warn("Failed to get encoding for model, defaulting to cl100k_base", "model", model, "error", err)
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("failed to get default encoding: %w", err)
		}
	}
	return &tiktokenCounter{encoding: encoding}, nil
}

func (t *tiktokenCounter) Count(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}

// HistoryWindow bounds the history handed to providers. MaxMessages keeps the
// most recent entries; when MaxTokens is positive and a Counter is set, the
// oldest remaining entries are dropped until the total fits.
type HistoryWindow struct {
	MaxMessages int
	MaxTokens   int
	Counter     TokenCounter
}

func (w HistoryWindow) Apply(history []providers.Message) []providers.Message {
	out := TrimHistory(history, w.MaxMessages)
	if w.MaxTokens <= 0 || w.Counter == nil {
		return out
	}

	counts := make([]int, len(out))
	total := 0
	for i, m := range out {
		counts[i] = w.Counter.Count(m.Content)
		total += counts[i]
	}

	start := 0
	for total > w.MaxTokens && start < len(out) {
		total -= counts[start]
		start++
	}
	return out[start:]
}
