// Package ocr recognises text in page images.
//
// An Engine is one way of running Tesseract: the CLI binary (default) or
// the cgo binding behind the "gosseract" build tag. The Adapter wraps an
// engine with per-page timeout, retry, circuit breaking and text
// normalisation, and is what the extraction pipeline calls.
package ocr

import (
	"context"
	"errors"
)

// ErrEngine wraps every recognition failure reported by an engine.
var ErrEngine = errors.New("ocr: engine failure")

// ErrEngineNotCompiled is returned by engines whose build tag was not set.
var ErrEngineNotCompiled = errors.New("ocr: engine not compiled in; rebuild with -tags gosseract")

// Engine runs OCR on one encoded image (PNG, JPEG, BMP or TIFF).
type Engine interface {
	Name() string
	// Languages lists the installed language packs.
	Languages(ctx context.Context) ([]string, error)
	// Recognize returns the raw text of img. Empty text is not an error.
	Recognize(ctx context.Context, img []byte, langs Languages) (string, error)
}
