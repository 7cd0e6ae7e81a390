package docpipe

import (
	"context"
	"errors"

	"github.com/hazyhaar/ocrapi/horosafe"
	"github.com/hazyhaar/ocrapi/ocr"
	"github.com/hazyhaar/ocrapi/raster"
)

// Kind names an error category. Kinds are stable strings shared by the
// HTTP and MCP surfaces.
type Kind string

const (
	KindUnsupportedFormat   Kind = "unsupported_format"
	KindCorruptDocument     Kind = "corrupt_document"
	KindRasterizationFailed Kind = "rasterization_failed"
	KindOCREngineFailure    Kind = "ocr_engine_failure"
	KindLanguageUnavailable Kind = "language_unavailable"
	KindFileTooLarge        Kind = "file_too_large"
	KindBusy                Kind = "busy"
	KindCanceled            Kind = "canceled"
	KindInternal            Kind = "internal_error"
)

var (
	ErrUnsupportedFormat   = errors.New("unsupported file format")
	ErrCorruptDocument     = errors.New("document is corrupt or unreadable")
	ErrRasterizationFailed = errors.New("page rasterization failed")
	ErrOCREngineFailure    = errors.New("ocr engine failure")
	ErrLanguageUnavailable = errors.New("language pack unavailable")
	ErrFileTooLarge        = errors.New("file too large")
	// ErrBusy is returned when no extraction slot frees up within
	// Config.QueueTimeout.
	ErrBusy = errors.New("server busy")
	// ErrCanceled accompanies a partial result when the request context
	// ended before every page ran.
	ErrCanceled = errors.New("extraction canceled")
)

// KindOf maps err to its Kind. Errors from the raster and ocr packages are
// recognised too. A nil error has no kind; anything unknown is internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsupportedFormat):
		return KindUnsupportedFormat
	case errors.Is(err, ErrCorruptDocument), errors.Is(err, raster.ErrCorrupt):
		return KindCorruptDocument
	case errors.Is(err, ErrLanguageUnavailable),
		errors.Is(err, ocr.ErrLanguageUnavailable),
		errors.Is(err, ocr.ErrInvalidLanguages):
		return KindLanguageUnavailable
	case errors.Is(err, ErrFileTooLarge), errors.Is(err, horosafe.ErrTooLarge):
		return KindFileTooLarge
	case errors.Is(err, ErrBusy):
		return KindBusy
	case errors.Is(err, ErrCanceled),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, ErrRasterizationFailed),
		errors.Is(err, raster.ErrPageFailed),
		errors.Is(err, raster.ErrToolMissing):
		return KindRasterizationFailed
	case errors.Is(err, ErrOCREngineFailure), errors.Is(err, ocr.ErrEngine):
		return KindOCREngineFailure
	default:
		return KindInternal
	}
}

