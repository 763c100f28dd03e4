package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// RunIDKey is the context key for a verification run ID
	RunIDKey ContextKey = "run_id"
	// BoardIDKey is the context key for board ID
	BoardIDKey ContextKey = "board_id"
)

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewRunID generates a new run ID
func NewRunID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithRunID adds a run ID to the context
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// WithBoardID adds a board ID to the context
func WithBoardID(ctx context.Context, boardID string) context.Context {
	return context.WithValue(ctx, BoardIDKey, boardID)
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetRunID retrieves the run ID from the context
func GetRunID(ctx context.Context) string {
	if runID, ok := ctx.Value(RunIDKey).(string); ok {
		return runID
	}
	return ""
}

// GetBoardID retrieves the board ID from the context
func GetBoardID(ctx context.Context) string {
	if boardID, ok := ctx.Value(BoardIDKey).(string); ok {
		return boardID
	}
	return ""
}

// NewRequestContext creates a new context for a request with a new trace ID
func NewRequestContext(ctx context.Context) context.Context {
	return WithTraceID(ctx, NewTraceID())
}

// NewRunContext creates a new context for a verification run with a new run ID
func NewRunContext(ctx context.Context, boardID string) context.Context {
	ctx = WithRunID(ctx, NewRunID())
	return WithBoardID(ctx, boardID)
}
