package connectivity

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// WithRetry returns a HandlerMiddleware that retries failed calls with
// exponential backoff. It respects context cancellation between retries and
// never retries permanent errors, open circuits or recovered panics.
//
// Parameters:
//   - maxRetries: maximum number of retry attempts (0 = no retry)
//   - baseBackoff: initial wait between retries, doubled each attempt
//   - logger: used to log retry attempts (may be nil for silent retries)
func WithRetry(maxRetries int, baseBackoff time.Duration, logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		if maxRetries <= 0 {
			return next
		}
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			var lastErr error
			for attempt := 0; attempt <= maxRetries; attempt++ {
				resp, err := next(ctx, payload)
				if err == nil {
					return resp, nil
				}
				lastErr = err

				if ctx.Err() != nil || !retryable(err) {
					return nil, lastErr
				}

				if attempt < maxRetries {
					wait := baseBackoff * (1 << uint(attempt))
					if logger != nil {
						logger.WarnContext(ctx, "retrying engine call",
							"attempt", attempt+1,
							"max_retries", maxRetries,
							"backoff_ms", wait.Milliseconds(),
							"error", err)
					}
					t := time.NewTimer(wait)
					select {
					case <-ctx.Done():
						t.Stop()
						return nil, lastErr
					case <-t.C:
					}
				}
			}
			return nil, lastErr
		}
	}
}

func retryable(err error) bool {
	if IsPermanent(err) {
		return false
	}
	var eco *ErrCircuitOpen
	if errors.As(err, &eco) {
		return false
	}
	var ep *ErrPanic
	return !errors.As(err, &ep)
}
