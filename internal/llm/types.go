// Package llm provides inference backend client implementations.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Message represents a chat message for the backend.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // for tool responses
}

// ToolCall represents a tool call from the model.
type ToolCall struct {
	ID       string       `json:"id,omitempty"` // provider-assigned, needed for result correlation
	Function FunctionCall `json:"function"`
}

// FunctionCall is the function half of a tool call: the operation name
// and its decoded arguments.
type FunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ChatResponse is the unified response from any backend. Wire format
// conversion happens at provider boundaries (anthropic.go, openai.go).
type ChatResponse struct {
	Provider     string
	Model        string
	Message      Message
	InputTokens  int
	OutputTokens int
}

// Client is the interface all inference backends implement. Adding a
// backend means adding an implementation; the dispatcher does not change.
type Client interface {
	// Name identifies the provider ("anthropic", "openai").
	Name() string

	// Chat sends a chat completion request. Tools are neutral
	// function-call specs; each provider converts to its wire format.
	Chat(ctx context.Context, messages []Message, tools []map[string]any) (*ChatResponse, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}

// FailureKind classifies a backend failure for retry/failover decisions.
type FailureKind string

const (
	FailureTimeout   FailureKind = "timeout"
	FailureRateLimit FailureKind = "rate_limit"
	FailureTransport FailureKind = "transport"
	FailureMalformed FailureKind = "malformed"
)

// BackendError is a classified backend failure. Every error returned
// by a Client's Chat is one of these, so callers can branch on Kind
// without provider knowledge.
type BackendError struct {
	Provider string
	Kind     FailureKind
	Err      error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// classifyTransport wraps an http.Client.Do error as timeout or
// transport depending on what actually happened.
func classifyTransport(provider string, err error) *BackendError {
	kind := FailureTransport
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = FailureTimeout
	}
	return &BackendError{Provider: provider, Kind: kind, Err: err}
}

// classifyStatus maps a non-200 HTTP status to a failure kind.
func classifyStatus(provider string, status int, body string) *BackendError {
	kind := FailureTransport
	if status == 429 {
		kind = FailureRateLimit
	}
	return &BackendError{
		Provider: provider,
		Kind:     kind,
		Err:      fmt.Errorf("API error %d: %s", status, body),
	}
}

// retryBaseline is a floor for provider HTTP client timeouts so a
// misconfigured context can't hang a request forever.
const retryBaseline = 5 * time.Minute
