package docpipe

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/hazyhaar/ocrapi/observability"
	"github.com/hazyhaar/ocrapi/ocr"
)

// Config configures the extraction pipeline.
type Config struct {
	// Languages recognised when a request does not override them
	// (default: kor+eng, one pass).
	Languages ocr.Languages `json:"languages" yaml:"languages"`

	// Workers is the number of pages of one document processed at once
	// (default: 1, sequential).
	Workers int `json:"workers" yaml:"workers"`

	// MaxInFlight bounds concurrent extractions across requests
	// (default: runtime.NumCPU()).
	MaxInFlight int `json:"max_in_flight" yaml:"max_in_flight"`

	// QueueTimeout is how long a request waits for a free slot before
	// failing with ErrBusy (default: 30s).
	QueueTimeout time.Duration `json:"queue_timeout" yaml:"queue_timeout"`

	// MaxFileSize is the largest accepted upload (default: 50 MB).
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// DetectLanguage reports the dominant language of the output.
	DetectLanguage bool `json:"detect_language" yaml:"detect_language"`

	Metrics *observability.MetricsManager `json:"-" yaml:"-"`

	// Logger for debug/error messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if len(c.Languages) == 0 {
		c.Languages = ocr.DefaultLanguages
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = runtime.NumCPU()
	}
	if c.QueueTimeout <= 0 {
		c.QueueTimeout = 30 * time.Second
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 50 * 1024 * 1024
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
