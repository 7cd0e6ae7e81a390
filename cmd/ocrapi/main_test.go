package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/hazyhaar/ocrapi/config"
)

// probe runs the app with args and returns the config loadConfig built.
func probe(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()
	var (
		cfg *config.Config
		err error
	)
	app := newApp()
	app.Commands = []*cli.Command{{
		Name: "probe",
		Action: func(c *cli.Context) error {
			cfg, err = loadConfig(c)
			return nil
		},
	}}
	if runErr := app.Run(append(append([]string{"ocrapi"}, args...), "probe")); runErr != nil {
		t.Fatalf("run: %v", runErr)
	}
	return cfg, err
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := probe(t)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":8000" || cfg.OCR.Languages.String() != "kor+eng" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ocrapi.yaml")
	os.WriteFile(path, []byte("listen: \":7000\"\nraster:\n  dpi: 150\npipeline:\n  workers: 2\n"), 0o600)

	cfg, err := probe(t, "--config", path, "--listen", ":9999", "--langs", "ko,en,ja", "--mcp")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":9999" {
		t.Errorf("Listen = %q, flag should win", cfg.Listen)
	}
	if cfg.Raster.DPI != 150 || cfg.Pipeline.Workers != 2 {
		t.Errorf("file values lost: dpi=%d workers=%d", cfg.Raster.DPI, cfg.Pipeline.Workers)
	}
	if cfg.OCR.Languages.String() != "kor+eng+jpn" {
		t.Errorf("languages = %q", cfg.OCR.Languages)
	}
	if !cfg.MCP.Enabled {
		t.Error("--mcp not applied")
	}
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("OCRAPI_DPI", "300")
	t.Setenv("OCRAPI_WORKERS", "4")

	cfg, err := probe(t)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Raster.DPI != 300 || cfg.Pipeline.Workers != 4 {
		t.Errorf("dpi=%d workers=%d", cfg.Raster.DPI, cfg.Pipeline.Workers)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	if _, err := probe(t, "--dpi", "5"); err == nil {
		t.Error("expected validation error for dpi 5")
	}
	if _, err := probe(t, "--langs", "k@r"); err == nil {
		t.Error("expected error for invalid --langs")
	}
}

func TestComponents(t *testing.T) {
	cfg := config.DefaultConfig()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	poppler, adapter, pipe, err := components(cfg, nil, logger)
	if err != nil {
		t.Fatal(err)
	}
	if poppler.DPI() != 200 {
		t.Errorf("dpi = %d", poppler.DPI())
	}
	if adapter.EngineName() != "tesseract" {
		t.Errorf("engine = %q", adapter.EngineName())
	}
	if got := pipe.Config().MaxFileSize; got != cfg.MaxFileBytes() {
		t.Errorf("MaxFileSize = %d", got)
	}
}
