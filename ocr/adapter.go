package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/ocrapi/connectivity"
	"github.com/hazyhaar/ocrapi/observability"
)

// AdapterConfig configures an Adapter.
type AdapterConfig struct {
	// Languages used when a call does not name any. Default kor+eng.
	Languages Languages
	// PageTimeout bounds one recognition attempt. Zero disables it.
	PageTimeout time.Duration
	// Retries is the number of extra attempts after a failure.
	Retries      int
	RetryBackoff time.Duration
	// Breaker trips after repeated engine failures. Nil gets a default
	// breaker (5 failures, 30s reset).
	Breaker *connectivity.CircuitBreaker
	// Fallback is tried when the primary engine fails. Optional.
	Fallback Engine
	Metrics  *observability.MetricsManager
	Logger   *slog.Logger
}

// Adapter is the OCR entry point used by the pipeline.
type Adapter struct {
	engine  Engine
	cfg     AdapterConfig
	breaker *connectivity.CircuitBreaker

	mu        sync.Mutex
	installed []string
}

// NewAdapter wraps engine.
func NewAdapter(engine Engine, cfg AdapterConfig) *Adapter {
	if len(cfg.Languages) == 0 {
		cfg.Languages = DefaultLanguages
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Breaker == nil {
		cfg.Breaker = connectivity.NewCircuitBreaker()
	}
	return &Adapter{engine: engine, cfg: cfg, breaker: cfg.Breaker}
}

// EngineName returns the primary engine's name.
func (a *Adapter) EngineName() string { return a.engine.Name() }

// Languages returns the default language set.
func (a *Adapter) Languages() Languages { return a.cfg.Languages }

// BreakerState reports the engine circuit breaker state.
func (a *Adapter) BreakerState() connectivity.BreakerState { return a.breaker.State() }

// Installed returns the engine's installed language packs. A successful
// listing is cached for the life of the adapter.
func (a *Adapter) Installed(ctx context.Context) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.installed != nil {
		return a.installed, nil
	}
	langs, err := a.engine.Languages(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngine, err)
	}
	a.installed = langs
	return langs, nil
}

// Check verifies that every language of langs (or the defaults when empty)
// is installed. Run at startup and for per-request overrides.
func (a *Adapter) Check(ctx context.Context, langs Languages) error {
	if len(langs) == 0 {
		langs = a.cfg.Languages
	}
	installed, err := a.Installed(ctx)
	if err != nil {
		return err
	}
	return langs.Validate(installed)
}

// Recognize runs OCR on one page image and returns normalised text. An
// empty result is valid. Failures wrap ErrEngine; caller cancellation is
// returned as ctx.Err().
func (a *Adapter) Recognize(ctx context.Context, img []byte, langs Languages) (string, error) {
	if len(langs) == 0 {
		langs = a.cfg.Languages
	}
	name := a.engine.Name()

	var fallback connectivity.Handler
	if a.cfg.Fallback != nil {
		fallback = connectivity.Chain(
			connectivity.WithTimeout(a.cfg.PageTimeout),
		)(engineHandler(a.cfg.Fallback, langs))
	}

	call := connectivity.Chain(
		connectivity.Recovery(a.cfg.Logger),
		connectivity.WithObservability(a.cfg.Metrics, observability.MetricOCRPageDurationMs, name),
		connectivity.WithFallback(fallback, "ocr", a.cfg.Logger),
		connectivity.WithCircuitBreaker(a.breaker, name),
		connectivity.WithRetry(a.cfg.Retries, a.cfg.RetryBackoff, a.cfg.Logger),
		connectivity.WithTimeout(a.cfg.PageTimeout),
		connectivity.Logging(a.cfg.Logger, name),
	)(engineHandler(a.engine, langs))

	out, err := call(ctx, img)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: %w", ErrEngine, err)
	}
	return Normalize(string(out)), nil
}

func engineHandler(e Engine, langs Languages) connectivity.Handler {
	return func(ctx context.Context, img []byte) ([]byte, error) {
		text, err := e.Recognize(ctx, img, langs)
		if err != nil {
			return nil, err
		}
		return []byte(text), nil
	}
}
