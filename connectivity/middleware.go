package connectivity

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"
)

// HandlerMiddleware wraps a Handler.
type HandlerMiddleware func(next Handler) Handler

// Chain composes middlewares; the first one is the outermost.
func Chain(mws ...HandlerMiddleware) HandlerMiddleware {
	return func(next Handler) Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging logs every call with its duration.
func Logging(logger *slog.Logger, service string) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			start := time.Now()
			resp, err := next(ctx, payload)
			dur := time.Since(start)
			if err != nil {
				logger.ErrorContext(ctx, "connectivity: call failed",
					"service", service, "duration_ms", dur.Milliseconds(), "error", err)
			} else {
				logger.DebugContext(ctx, "connectivity: call ok",
					"service", service, "duration_ms", dur.Milliseconds(), "response_bytes", len(resp))
			}
			return resp, err
		}
	}
}

// Recovery converts panics in downstream handlers into *ErrPanic.
func Recovery(logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) (resp []byte, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.ErrorContext(ctx, "connectivity: handler panic recovered",
						"panic", r, "stack", string(debug.Stack()))
					err = &ErrPanic{Value: r}
				}
			}()
			return next(ctx, payload)
		}
	}
}
