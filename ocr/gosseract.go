//go:build gosseract

package ocr

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"

	"github.com/hazyhaar/ocrapi/connectivity"
)

// GosseractConfig configures the cgo engine.
type GosseractConfig struct {
	PSM         int
	TessdataDir string
}

// Gosseract runs Tesseract in-process through libtesseract. Each call gets
// its own client: a TessBaseAPI handle is not safe for concurrent use.
type Gosseract struct {
	cfg GosseractConfig
}

// NewGosseract creates the cgo engine.
func NewGosseract(cfg GosseractConfig) (*Gosseract, error) {
	if cfg.PSM <= 0 {
		cfg.PSM = 3
	}
	return &Gosseract{cfg: cfg}, nil
}

// Name implements Engine.
func (g *Gosseract) Name() string { return "gosseract" }

// Languages implements Engine.
func (g *Gosseract) Languages(ctx context.Context) ([]string, error) {
	langs, err := gosseract.GetAvailableLanguages()
	if err != nil {
		return nil, fmt.Errorf("gosseract: list languages: %w", err)
	}
	return langs, nil
}

// Recognize implements Engine. A cgo call cannot be interrupted; on
// cancellation the result is abandoned and ctx.Err is returned.
func (g *Gosseract) Recognize(ctx context.Context, img []byte, langs Languages) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := g.recognize(img, langs)
		done <- result{text, err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.text, r.err
	}
}

func (g *Gosseract) recognize(img []byte, langs Languages) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if g.cfg.TessdataDir != "" {
		if err := client.SetTessdataPrefix(g.cfg.TessdataDir); err != nil {
			return "", fmt.Errorf("gosseract: tessdata: %w", err)
		}
	}
	if err := client.SetLanguage(langs...); err != nil {
		return "", fmt.Errorf("gosseract: set language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PageSegMode(g.cfg.PSM)); err != nil {
		return "", fmt.Errorf("gosseract: set psm: %w", err)
	}
	if err := client.SetImageFromBytes(img); err != nil {
		// leptonica could not read the image: the page is bad, not the engine.
		return "", connectivity.Permanent(fmt.Errorf("gosseract: set image: %w", err))
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("gosseract: %w", err)
	}
	return text, nil
}
