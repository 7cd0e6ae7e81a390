// Package config loads the ocrapi service configuration from YAML.
//
// Every key has a default, so a missing file is a valid configuration.
// The CLI overlays flags and OCRAPI_* environment variables on top of the
// loaded file before Validate runs.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/ocrapi/dbopen"
	"github.com/hazyhaar/ocrapi/ocr"
	"github.com/hazyhaar/ocrapi/shield"
)

// Config holds the full ocrapi configuration.
type Config struct {
	Listen          string        `yaml:"listen"`
	MaxConns        int           `yaml:"max_conns"`
	LogLevel        string        `yaml:"log_level"`
	MaxFileMB       int           `yaml:"max_file_mb"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	OCR      OCRConfig      `yaml:"ocr"`
	Raster   RasterConfig   `yaml:"raster"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Security SecurityConfig `yaml:"security"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	MCP      MCPConfig      `yaml:"mcp"`
}

// OCRConfig selects and tunes the OCR engine.
type OCRConfig struct {
	Engine           string        `yaml:"engine"` // tesseract | gosseract
	Languages        ocr.Languages `yaml:"languages"`
	Tesseract        string        `yaml:"tesseract"`
	TessdataDir      string        `yaml:"tessdata_dir"`
	PSM              int           `yaml:"psm"`
	PageTimeout      time.Duration `yaml:"page_timeout"`
	Retries          int           `yaml:"retries"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerReset     time.Duration `yaml:"breaker_reset"`
	DetectLanguage   bool          `yaml:"detect_language"`
}

// RasterConfig configures PDF rasterization.
type RasterConfig struct {
	DPI      int    `yaml:"dpi"`
	TmpDir   string `yaml:"tmp_dir"`
	Pdftoppm string `yaml:"pdftoppm"`
	Pdfinfo  string `yaml:"pdfinfo"`
}

// PipelineConfig bounds extraction concurrency.
type PipelineConfig struct {
	Workers      int           `yaml:"workers"`
	MaxInFlight  int           `yaml:"max_in_flight"`
	QueueTimeout time.Duration `yaml:"queue_timeout"`
}

// SecurityConfig configures the HTTP middleware stack.
type SecurityConfig struct {
	CORSOrigins []string               `yaml:"cors_origins"`
	APIKeyHash  string                 `yaml:"api_key_hash"`
	RateLimit   shield.RateLimitConfig `yaml:"rate_limit"`
}

// MetricsConfig configures the metrics store.
type MetricsConfig struct {
	DB              string        `yaml:"db"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
	Retention       time.Duration `yaml:"retention"`
	RuntimeInterval time.Duration `yaml:"runtime_interval"`
}

// MCPConfig toggles the MCP endpoint.
type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:          ":8000",
		MaxConns:        256,
		LogLevel:        "info",
		MaxFileMB:       50,
		RequestTimeout:  5 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
		OCR: OCRConfig{
			Engine:           "tesseract",
			Languages:        ocr.DefaultLanguages,
			Tesseract:        "tesseract",
			PSM:              3,
			PageTimeout:      60 * time.Second,
			Retries:          1,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
			DetectLanguage:   true,
		},
		Raster: RasterConfig{
			DPI:      200,
			Pdftoppm: "pdftoppm",
			Pdfinfo:  "pdfinfo",
		},
		Pipeline: PipelineConfig{
			Workers:      1,
			QueueTimeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			CORSOrigins: []string{"*"},
			RateLimit: shield.RateLimitConfig{
				MaxRequests: 60,
				Window:      time.Minute,
				Enabled:     true,
			},
		},
		Metrics: MetricsConfig{
			DB:              dbopen.Memory,
			FlushInterval:   5 * time.Second,
			Retention:       24 * time.Hour,
			RuntimeInterval: 30 * time.Second,
		},
	}
}

// LoadConfig reads and parses a YAML config file. Returns DefaultConfig
// merged with the file. An empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that required fields are present and values are sane.
// Every problem is reported, not only the first.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Listen != "", "listen is required")
	check(c.MaxConns >= 0, "max_conns must be >= 0")
	check(c.MaxFileMB > 0, "max_file_mb must be > 0")
	check(c.RequestTimeout > 0, "request_timeout must be > 0")
	check(c.ShutdownTimeout > 0, "shutdown_timeout must be > 0")
	_, lvlErr := ParseLevel(c.LogLevel)
	check(lvlErr == nil, "log_level: %v", lvlErr)

	switch c.OCR.Engine {
	case "tesseract", "gosseract":
	default:
		check(false, "ocr.engine: unsupported engine %q (use tesseract or gosseract)", c.OCR.Engine)
	}
	check(len(c.OCR.Languages) > 0, "ocr.languages is required")
	check(c.OCR.PSM >= 0 && c.OCR.PSM <= 13, "ocr.psm must be between 0 and 13")
	check(c.OCR.PageTimeout > 0, "ocr.page_timeout must be > 0")
	check(c.OCR.Retries >= 0, "ocr.retries must be >= 0")
	check(c.OCR.BreakerThreshold > 0, "ocr.breaker_threshold must be > 0")
	check(c.OCR.BreakerReset > 0, "ocr.breaker_reset must be > 0")

	check(c.Raster.DPI >= 50 && c.Raster.DPI <= 1200, "raster.dpi must be between 50 and 1200")
	check(c.Pipeline.Workers >= 1 && c.Pipeline.Workers <= 64, "pipeline.workers must be between 1 and 64")
	check(c.Pipeline.MaxInFlight >= 0, "pipeline.max_in_flight must be >= 0")

	if c.Security.APIKeyHash != "" {
		check(strings.HasPrefix(c.Security.APIKeyHash, "$2"),
			"security.api_key_hash must be a bcrypt hash (see: ocrapi hash-key)")
	}
	if c.Security.RateLimit.Enabled {
		check(c.Security.RateLimit.MaxRequests > 0, "security.rate_limit.max_requests must be > 0")
	}
	check(c.Metrics.FlushInterval > 0, "metrics.flush_interval must be > 0")

	return errors.Join(errs...)
}

// MaxFileBytes returns max file size in bytes.
func (c *Config) MaxFileBytes() int64 { return int64(c.MaxFileMB) * 1024 * 1024 }

// MaxBodyBytes is the request body cap: the file plus multipart overhead.
func (c *Config) MaxBodyBytes() int64 { return c.MaxFileBytes() + 1<<20 }

// ParseLevel maps debug|info|warn|error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown level %q", s)
}
