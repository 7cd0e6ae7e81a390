package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/net/netutil"

	"github.com/hazyhaar/ocrapi/api"
	"github.com/hazyhaar/ocrapi/config"
	"github.com/hazyhaar/ocrapi/dbopen"
	"github.com/hazyhaar/ocrapi/observability"
	"github.com/hazyhaar/ocrapi/shield"

	_ "modernc.org/sqlite"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			return serve(c.Context, cfg, newLogger(cfg))
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Metrics store. The default in-memory database keeps the API
	// functional without touching disk.
	var opts []dbopen.Option
	if cfg.Metrics.DB != dbopen.Memory {
		opts = append(opts, dbopen.WithMkdirAll())
	}
	opts = append(opts, dbopen.WithSchema(observability.Schema))
	db, err := dbopen.Open(cfg.Metrics.DB, opts...)
	if err != nil {
		return fmt.Errorf("metrics db: %w", err)
	}
	defer db.Close()

	metrics := observability.NewMetricsManager(db, 100, cfg.Metrics.FlushInterval)
	defer metrics.Close()
	go observability.SampleRuntime(ctx, metrics, cfg.Metrics.RuntimeInterval)
	go cleanupLoop(ctx, metrics, cfg.Metrics.Retention, logger)

	poppler, adapter, pipe, err := components(cfg, metrics, logger)
	if err != nil {
		return fmt.Errorf("ocr engine: %w", err)
	}

	// Boot checks: refuse to start without the tools every request needs.
	bootCtx, bootCancel := context.WithTimeout(ctx, 30*time.Second)
	defer bootCancel()
	if err := poppler.Check(bootCtx); err != nil {
		return fmt.Errorf("rasterizer: %w", err)
	}
	if err := adapter.Check(bootCtx, cfg.OCR.Languages); err != nil {
		return fmt.Errorf("ocr languages %s: %w", cfg.OCR.Languages, err)
	}
	installed, _ := adapter.Installed(bootCtx)
	logger.Info("ocr engine ready",
		"engine", adapter.EngineName(),
		"languages", cfg.OCR.Languages.String(),
		"installed", installed,
		"dpi", poppler.DPI(),
		"workers", cfg.Pipeline.Workers,
	)

	srv := api.New(pipe, adapter, metrics, api.Config{
		RequestTimeout: cfg.RequestTimeout,
		EnableMCP:      cfg.MCP.Enabled,
		Version:        version,
		Shield: shield.StackConfig{
			MaxBodyBytes: cfg.MaxBodyBytes(),
			CORSOrigins:  cfg.Security.CORSOrigins,
			RateLimit:    cfg.Security.RateLimit,
			APIKeyHash:   cfg.Security.APIKeyHash,
			Public:       []string{"/health"},
			Done:         ctx.Done(),
		},
	})

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}
	if cfg.MaxConns > 0 {
		ln = netutil.LimitListener(ln, cfg.MaxConns)
	}

	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", ln.Addr().String(), "mcp", cfg.MCP.Enabled, "version", version)
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	// In-flight extractions get ShutdownTimeout to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("server stopped")
	return nil
}

// cleanupLoop drops metric points older than retention once an hour.
func cleanupLoop(ctx context.Context, mm *observability.MetricsManager, retention time.Duration, logger *slog.Logger) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := mm.Cleanup(ctx, retention)
			if err != nil {
				logger.Warn("metrics cleanup", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("metrics cleanup", "deleted", n)
			}
		}
	}
}
