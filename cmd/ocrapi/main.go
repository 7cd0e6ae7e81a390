// Command ocrapi serves OCR text extraction for scanned PDFs and images.
//
//	ocrapi serve --config ocrapi.yaml
//	ocrapi extract --lang kor+eng scan.pdf photo.png
//	ocrapi langs
//	ocrapi hash-key <key>
//
// Every global flag can also be set through its OCRAPI_* environment
// variable. Flags win over the config file.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/hazyhaar/ocrapi/config"
	"github.com/hazyhaar/ocrapi/ocr"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "ocrapi:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "ocrapi",
		Usage:   "extract text from scanned PDFs and images",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML config file", EnvVars: []string{"OCRAPI_CONFIG"}},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error", EnvVars: []string{"OCRAPI_LOG_LEVEL"}},
			&cli.StringFlag{Name: "listen", Usage: "HTTP listen address", EnvVars: []string{"OCRAPI_LISTEN"}},
			&cli.StringFlag{Name: "engine", Usage: "OCR engine: tesseract or gosseract", EnvVars: []string{"OCRAPI_ENGINE"}},
			&cli.StringFlag{Name: "langs", Usage: "default OCR languages, e.g. kor+eng", EnvVars: []string{"OCRAPI_LANGS"}},
			&cli.IntFlag{Name: "workers", Usage: "pages processed in parallel per document", EnvVars: []string{"OCRAPI_WORKERS"}},
			&cli.IntFlag{Name: "dpi", Usage: "PDF rasterization resolution", EnvVars: []string{"OCRAPI_DPI"}},
			&cli.IntFlag{Name: "max-file-mb", Usage: "largest accepted upload in MB", EnvVars: []string{"OCRAPI_MAX_FILE_MB"}},
			&cli.StringFlag{Name: "metrics-db", Usage: "SQLite metrics database (:memory: keeps nothing)", EnvVars: []string{"OCRAPI_METRICS_DB"}},
			&cli.BoolFlag{Name: "mcp", Usage: "mount the MCP endpoint on /mcp", EnvVars: []string{"OCRAPI_MCP"}},
		},
		Commands: []*cli.Command{
			serveCommand(),
			extractCommand(),
			langsCommand(),
			hashKeyCommand(),
		},
	}
}

// loadConfig reads --config, overlays the flags that were set and
// validates the result.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("listen") {
		cfg.Listen = c.String("listen")
	}
	if c.IsSet("engine") {
		cfg.OCR.Engine = c.String("engine")
	}
	if c.IsSet("langs") {
		langs, err := ocr.ParseLanguages(c.String("langs"))
		if err != nil {
			return nil, fmt.Errorf("--langs: %w", err)
		}
		cfg.OCR.Languages = langs
	}
	if c.IsSet("workers") {
		cfg.Pipeline.Workers = c.Int("workers")
	}
	if c.IsSet("dpi") {
		cfg.Raster.DPI = c.Int("dpi")
	}
	if c.IsSet("max-file-mb") {
		cfg.MaxFileMB = c.Int("max-file-mb")
	}
	if c.IsSet("metrics-db") {
		cfg.Metrics.DB = c.String("metrics-db")
	}
	if c.IsSet("mcp") {
		cfg.MCP.Enabled = c.Bool("mcp")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config:\n%w", err)
	}
	return cfg, nil
}

// newLogger installs a JSON logger on stderr as the slog default.
func newLogger(cfg *config.Config) *slog.Logger {
	lvl, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}
