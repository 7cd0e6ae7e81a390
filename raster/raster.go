// Package raster turns uploaded documents into per-page images for OCR.
//
// Images pass through untouched as a single page. PDFs are opened once per
// request into a private temp directory; pages are rendered lazily with
// poppler's pdftoppm, one subprocess per page, so a 200 page scan never
// holds more than the pages currently being recognised in memory.
package raster

import (
	"context"
	"errors"
	"fmt"
)

// PageImage is one rendered page. Index is 0-based and contiguous.
type PageImage struct {
	Index int
	Data  []byte
	Type  string // "png", "jpeg", "bmp", "tiff"
}

// Source yields the pages of one opened document.
type Source interface {
	PageCount() int
	// Page renders page i (0-based). Safe for concurrent use with distinct i.
	Page(ctx context.Context, i int) (PageImage, error)
	// Close releases every temporary artifact. Idempotent.
	Close() error
}

var (
	// ErrCorrupt is returned by Open when the document cannot be parsed.
	ErrCorrupt = errors.New("raster: document cannot be opened")
	// ErrPageFailed wraps every per-page rendering failure.
	ErrPageFailed = errors.New("raster: page rendering failed")
	// ErrToolMissing is returned when a poppler binary is not installed.
	ErrToolMissing = errors.New("raster: poppler tool not found")
)

type imageSource struct {
	data []byte
	typ  string
}

// ImageSource wraps an already-encoded image as a one-page Source.
func ImageSource(data []byte, typ string) Source {
	return &imageSource{data: data, typ: typ}
}

func (s *imageSource) PageCount() int { return 1 }

func (s *imageSource) Page(ctx context.Context, i int) (PageImage, error) {
	if i != 0 {
		return PageImage{}, fmt.Errorf("%w: page %d out of range", ErrPageFailed, i)
	}
	if err := ctx.Err(); err != nil {
		return PageImage{}, err
	}
	return PageImage{Index: 0, Data: s.data, Type: s.typ}, nil
}

func (s *imageSource) Close() error { return nil }
