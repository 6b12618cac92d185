package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents the type of an error
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeRequest
	ErrorTypeResponse
	ErrorTypeAPI
	ErrorTypeRateLimit
	ErrorTypeAuthentication
)

// ErrNoProviders is returned when no provider has a credential configured.
var ErrNoProviders = errors.New("no LLM providers configured")

// LLMError represents an error in the LLM package
type LLMError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *LLMError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", e.TypeString(), e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.TypeString(), e.Message)
}

func (e *LLMError) Unwrap() error {
	return e.Err
}

func (e *LLMError) TypeString() string {
	switch e.Type {
	case ErrorTypeRequest:
		return "RequestError"
	case ErrorTypeResponse:
		return "ResponseError"
	case ErrorTypeAPI:
		return "APIError"
	case ErrorTypeRateLimit:
		return "RateLimitError"
	case ErrorTypeAuthentication:
		return "AuthenticationError"
	default:
		return "UnknownError"
	}
}

// LoggableFields returns key/value pairs for structured logging.
func (e *LLMError) LoggableFields() []any {
	return []any{
		"error_type", e.TypeString(),
		"message", e.Message,
		"underlying_error", e.Err,
	}
}

// NewLLMError creates a new LLMError
func NewLLMError(errType ErrorType, message string, err error) *LLMError {
	return &LLMError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// Attempt records one failed provider call.
type Attempt struct {
	Provider string
	Err      error
}

// ErrorType returns the classification of the attempt's error, or
// ErrorTypeUnknown when it is not an *LLMError.
func (a Attempt) ErrorType() ErrorType {
	var llmErr *LLMError
	if errors.As(a.Err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}

// ChainError is returned once every provider in the chain has failed. It does
// not unwrap to the individual attempt errors.
type ChainError struct {
	Attempts []Attempt
}

func (e *ChainError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Provider, a.Err))
	}
	return "all LLM providers failed: " + strings.Join(parts, "; ")
}

// AllAuthFailures reports whether every attempt failed authentication.
func (e *ChainError) AllAuthFailures() bool {
	if len(e.Attempts) == 0 {
		return false
	}
	for _, a := range e.Attempts {
		if a.ErrorType() != ErrorTypeAuthentication {
			return false
		}
	}
	return true
}

// RateLimited reports whether at least one attempt was rate limited and every
// other attempt was either rate limited or rejected for authentication.
func (e *ChainError) RateLimited() bool {
	limited := false
	for _, a := range e.Attempts {
		switch a.ErrorType() {
		case ErrorTypeRateLimit:
			limited = true
		case ErrorTypeAuthentication:
		default:
			return false
		}
	}
	return limited
}
