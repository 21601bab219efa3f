// Package middleware provides sensei.Interceptor implementations for
// logging, metrics and request ids.
package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/blnkoff/sensei"
)

// LoggingInterceptor creates an interceptor that logs outgoing calls using slog.
// It logs the start and end of each call, including duration, status code and
// error status.
func LoggingInterceptor(logger *slog.Logger) sensei.Interceptor {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, call *sensei.Call, next sensei.Invoker) (*sensei.Response, error) {
		start := time.Now()

		logger.InfoContext(ctx, "request started",
			slog.String("method", call.Method),
			slog.String("endpoint", call.Path),
			slog.String("flavor", call.Flavor.String()),
		)

		resp, err := next(ctx, call)
		duration := time.Since(start)

		if err != nil {
			logger.ErrorContext(ctx, "request failed",
				slog.String("method", call.Method),
				slog.String("endpoint", call.Path),
				slog.Duration("duration", duration),
				slog.Any("error", err),
			)
		} else {
			logger.InfoContext(ctx, "request completed",
				slog.String("method", call.Method),
				slog.String("endpoint", call.Path),
				slog.Int("status", resp.StatusCode()),
				slog.Duration("duration", duration),
			)
		}

		return resp, err
	}
}
