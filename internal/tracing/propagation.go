package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// LoggerFromContext enriches a base logger with the tracing fields present
// in the context.
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	logCtx := baseLogger.With()

	if traceID := GetTraceID(ctx); traceID != "" {
		logCtx = logCtx.Str("trace_id", traceID)
	}
	if runID := GetRunID(ctx); runID != "" {
		logCtx = logCtx.Str("run_id", runID)
	}
	if boardID := GetBoardID(ctx); boardID != "" {
		logCtx = logCtx.Str("board_id", boardID)
	}

	return logCtx.Logger()
}
