package connectivity

import (
	"context"
	"time"

	"github.com/hazyhaar/ocrapi/observability"
)

// WithObservability records the duration of every call under metric, with
// the service name and outcome as labels. A nil manager disables recording.
func WithObservability(mm *observability.MetricsManager, metric, service string) HandlerMiddleware {
	return func(next Handler) Handler {
		if mm == nil {
			return next
		}
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			start := time.Now()
			resp, err := next(ctx, payload)
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			mm.Record(&observability.Metric{
				Name:      metric,
				Timestamp: start,
				Value:     float64(time.Since(start).Milliseconds()),
				Labels:    map[string]string{"service": service, "outcome": outcome},
				Unit:      "milliseconds",
			})
			return resp, err
		}
	}
}
