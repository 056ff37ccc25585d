package connectivity

import (
	"context"
	"log/slog"
	"time"
)

// WithTimeout bounds each call. A zero duration disables the timeout.
func WithTimeout(d time.Duration) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			if d > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
			}
			return next(ctx, payload)
		}
	}
}

// WithRetry retries failed calls with exponential backoff starting at
// baseBackoff. It stops early when ctx is done. logger may be nil.
func WithRetry(maxRetries int, baseBackoff time.Duration, logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			var lastErr error
			for attempt := 0; attempt <= maxRetries; attempt++ {
				resp, err := next(ctx, payload)
				if err == nil {
					return resp, nil
				}
				lastErr = err
				if ctx.Err() != nil {
					return nil, lastErr
				}
				if _, ok := err.(*ErrServiceNotFound); ok {
					return nil, err
				}
				if attempt == maxRetries {
					break
				}
				wait := baseBackoff * (1 << uint(attempt))
				if logger != nil {
					logger.WarnContext(ctx, "connectivity: retrying call",
						"attempt", attempt+1, "max_retries", maxRetries,
						"backoff_ms", wait.Milliseconds(), "error", err)
				}
				select {
				case <-ctx.Done():
					return nil, lastErr
				case <-time.After(wait):
				}
			}
			return nil, lastErr
		}
	}
}
