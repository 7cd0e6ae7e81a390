package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hazyhaar/ocrapi/config"
	"github.com/hazyhaar/ocrapi/connectivity"
	"github.com/hazyhaar/ocrapi/docpipe"
	"github.com/hazyhaar/ocrapi/observability"
	"github.com/hazyhaar/ocrapi/ocr"
	"github.com/hazyhaar/ocrapi/raster"
)

// engines returns the primary OCR engine and an optional fallback.
// gosseract falls back to the tesseract CLI; a binary built without the
// gosseract tag uses the CLI only.
func engines(cfg config.OCRConfig, logger *slog.Logger) (ocr.Engine, ocr.Engine, error) {
	tess := ocr.NewTesseract(ocr.TesseractConfig{
		Binary:      cfg.Tesseract,
		PSM:         cfg.PSM,
		TessdataDir: cfg.TessdataDir,
	})
	if cfg.Engine != "gosseract" {
		return tess, nil, nil
	}
	g, err := ocr.NewGosseract(ocr.GosseractConfig{PSM: cfg.PSM, TessdataDir: cfg.TessdataDir})
	if errors.Is(err, ocr.ErrEngineNotCompiled) {
		logger.Warn("gosseract not compiled in, using tesseract CLI", "error", err)
		return tess, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return g, tess, nil
}

// components wires the rasterizer, the OCR adapter and the pipeline.
// metrics may be nil.
func components(cfg *config.Config, metrics *observability.MetricsManager, logger *slog.Logger) (*raster.Poppler, *ocr.Adapter, *docpipe.Pipeline, error) {
	primary, fallback, err := engines(cfg.OCR, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	adapter := ocr.NewAdapter(primary, ocr.AdapterConfig{
		Languages:   cfg.OCR.Languages,
		PageTimeout: cfg.OCR.PageTimeout,
		Retries:     cfg.OCR.Retries,
		Breaker: connectivity.NewCircuitBreaker(
			connectivity.WithBreakerThreshold(cfg.OCR.BreakerThreshold),
			connectivity.WithBreakerResetTimeout(cfg.OCR.BreakerReset),
			connectivity.WithBreakerOnChange(breakerWatch(primary.Name(), metrics, logger)),
		),
		Fallback: fallback,
		Metrics:  metrics,
		Logger:   logger,
	})

	poppler := raster.NewPoppler(raster.Config{
		DPI:      cfg.Raster.DPI,
		TmpDir:   cfg.Raster.TmpDir,
		Pdftoppm: cfg.Raster.Pdftoppm,
		Pdfinfo:  cfg.Raster.Pdfinfo,
		Logger:   logger,
	})

	pipe := docpipe.New(docpipe.Config{
		Languages:      cfg.OCR.Languages,
		Workers:        cfg.Pipeline.Workers,
		MaxInFlight:    cfg.Pipeline.MaxInFlight,
		QueueTimeout:   cfg.Pipeline.QueueTimeout,
		MaxFileSize:    cfg.MaxFileBytes(),
		DetectLanguage: cfg.OCR.DetectLanguage,
		Metrics:        metrics,
		Logger:         logger,
	}, poppler, adapter)

	return poppler, adapter, pipe, nil
}

// breakerWatch logs OCR breaker transitions and records the new state
// (0 closed, 1 open, 2 half open).
func breakerWatch(engine string, metrics *observability.MetricsManager, logger *slog.Logger) func(from, to connectivity.BreakerState) {
	return func(from, to connectivity.BreakerState) {
		level := slog.LevelInfo
		if to == connectivity.BreakerOpen {
			level = slog.LevelWarn
		}
		logger.Log(context.Background(), level, "ocr breaker state changed",
			"engine", engine, "from", from.String(), "to", to.String())
		metrics.RecordSimple(observability.MetricOCRBreakerState, float64(to), "state", "engine", engine)
	}
}
