package connectivity

import (
	"context"
	"log/slog"
)

// WithFallback returns a HandlerMiddleware that calls secondary when the
// primary handler fails. Cancellation and permanent errors are returned as
// is: the caller gave up, or the input itself is at fault.
func WithFallback(secondary Handler, service string, logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		if secondary == nil {
			return next
		}
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			resp, err := next(ctx, payload)
			if err == nil {
				return resp, nil
			}
			if ctx.Err() != nil || IsPermanent(err) {
				return nil, err
			}
			if logger != nil {
				logger.WarnContext(ctx, "primary engine failed, using fallback",
					"service", service,
					"primary_error", err)
			}
			return secondary(ctx, payload)
		}
	}
}
