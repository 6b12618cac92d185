package utils

import (
	"fmt"
	"strings"
	"sync"
)

// MockLogger records every message regardless of level. Safe for concurrent use.
type MockLogger struct {
	mu       sync.Mutex
	Messages []LogMessage
	level    LogLevel
}

// LogMessage represents a logged message
type LogMessage struct {
	Level   string
	Message string
	Args    []any
}

func NewMockLogger() *MockLogger {
	return &MockLogger{level: LogLevelDebug}
}

func (m *MockLogger) record(level, msg string, args []any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, LogMessage{Level: level, Message: msg, Args: args})
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) { m.record("DEBUG", msg, keysAndValues) }
func (m *MockLogger) Info(msg string, keysAndValues ...any)  { m.record("INFO", msg, keysAndValues) }
func (m *MockLogger) Warn(msg string, keysAndValues ...any)  { m.record("WARN", msg, keysAndValues) }
func (m *MockLogger) Error(msg string, keysAndValues ...any) { m.record("ERROR", msg, keysAndValues) }

func (m *MockLogger) SetLevel(level LogLevel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.level = level
}

// GetMessages returns a copy of all logged messages
func (m *MockLogger) GetMessages() []LogMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LogMessage{}, m.Messages...)
}

func (m *MockLogger) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = nil
}

// HasMessage checks if a message with the given text was logged at the given level.
// An empty level matches any level.
func (m *MockLogger) HasMessage(level, text string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.Messages {
		if msg.Message == text && (level == "" || msg.Level == level) {
			return true
		}
	}
	return false
}

func (m *MockLogger) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sb strings.Builder
	for _, msg := range m.Messages {
		fmt.Fprintf(&sb, "[%s] %s %v\n", msg.Level, msg.Message, msg.Args)
	}
	return sb.String()
}
