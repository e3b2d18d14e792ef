package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// LoggingBehavior logs every request with its outcome and duration.
type LoggingBehavior struct {
	logger *slog.Logger
}

func NewLoggingBehavior(logger *slog.Logger) (*LoggingBehavior, error) {
	if logger == nil {
		return nil, ErrNilLogger
	}
	return &LoggingBehavior{logger: logger}, nil
}

func (b *LoggingBehavior) Handle(ctx context.Context, req any, next Next) (any, error) {
	name := RequestName(req)
	start := time.Now()

	b.logger.DebugContext(ctx, "handling request", "request", name)
	resp, err := next(ctx)
	elapsed := time.Since(start)
	if err != nil {
		b.logger.WarnContext(ctx, "request failed", "request", name, "elapsed", elapsed, "error", err)
		return resp, err
	}
	b.logger.InfoContext(ctx, "request handled", "request", name, "elapsed", elapsed)
	return resp, nil
}
