package model

import (
	"context"
	"strings"

	"github.com/davin/easel/pkg/toolmap"
)

// State tracks the model session lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Part is one ordered element of a request: an acknowledgment, free text,
// or an inline image. The set is sealed.
type Part interface {
	isPart()
}

// TextPart carries free text.
type TextPart struct {
	Text string
}

// ImagePart carries an inline image for visual self-verification.
type ImagePart struct {
	MediaType string
	Data      []byte
}

// AckPart reports a tool call as handled. The output is always a success
// result; the model must never stall waiting for an acknowledgment.
type AckPart struct {
	CallID string
	Output string
}

func (TextPart) isPart()  {}
func (ImagePart) isPart() {}
func (AckPart) isPart()   {}

// Request is an ordered list of parts sent to the model.
type Request struct {
	Parts []Part
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]interface{}
}

// Response is what the model returned for one round trip.
type Response struct {
	Text      string
	ToolCalls []ToolCall
}

// Config configures a model session.
type Config struct {
	Model        string
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
	Tools        []toolmap.Definition
}

// Service is a stateful conversation with the model service. Send keeps the
// conversation history inside the session so consecutive round trips within
// one verification run share context.
type Service interface {
	// Connect establishes the session.
	Connect(ctx context.Context) error

	// Send performs one round trip and returns the parsed response.
	Send(ctx context.Context, req Request) (*Response, error)

	// State reports the session lifecycle state.
	State() State

	// Provider returns the provider name.
	Provider() string

	// Close tears the session down. Safe to call repeatedly.
	Close() error
}

// AuthProfile represents authentication credentials for model providers
type AuthProfile struct {
	ID       string `json:"id"`
	Provider string `json:"provider"` // "anthropic", "openai"
	APIKey   string `json:"api_key"`
	Priority int    `json:"priority"`
}

// IsRetryableError checks if an error should be retried
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errMsg := err.Error()

	// Network errors
	if strings.Contains(errMsg, "ECONNRESET") || strings.Contains(errMsg, "ETIMEDOUT") {
		return true
	}

	// Rate limits
	if strings.Contains(errMsg, "429") || strings.Contains(errMsg, "rate limit") {
		return true
	}

	// Server errors
	for _, code := range []string{"500", "502", "503", "504"} {
		if strings.Contains(errMsg, code) {
			return true
		}
	}

	return false
}
