package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// PropagateHandoff moves the context to a new active agent. The trace and
// run IDs are kept.
func PropagateHandoff(ctx context.Context, agent string) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}
	return WithAgent(ctx, agent)
}

// PropagateToLogger adds tracing context to a zerolog logger
func PropagateToLogger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	if tc.TraceID != "" {
		logger = logger.With().Str("trace_id", tc.TraceID).Logger()
	}
	if tc.RunID != "" {
		logger = logger.With().Str("run_id", tc.RunID).Logger()
	}
	if tc.Agent != "" {
		logger = logger.With().Str("active_agent", tc.Agent).Logger()
	}
	if tc.ClientID != "" {
		logger = logger.With().Str("client_id", tc.ClientID).Logger()
	}

	return logger
}

// LoggerFromContext creates a logger with tracing context from the given context
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	return PropagateToLogger(ctx, baseLogger)
}
