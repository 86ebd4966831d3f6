package logging

import (
	"context"
	"log/slog"
)

type contextKey string

const stageKey contextKey = "stage"

// WithStage records the active stage name on the context.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name carried by the context, if any.
func StageFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(stageKey).(string); ok {
		return v
	}
	return ""
}

// WithContext returns a logger annotated with any stage context carried by
// ctx. A nil logger yields the slog default.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if stage := StageFromContext(ctx); stage != "" {
		logger = logger.With(slog.String("stage", stage))
	}
	return logger
}

// Error wraps an error as a slog attribute.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}
