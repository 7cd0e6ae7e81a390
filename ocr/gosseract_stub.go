//go:build !gosseract

package ocr

import "context"

// GosseractConfig configures the cgo engine.
type GosseractConfig struct {
	PSM         int
	TessdataDir string
}

// Gosseract is the placeholder used when the binary was built without the
// "gosseract" tag. Every method returns ErrEngineNotCompiled.
type Gosseract struct{}

// NewGosseract returns ErrEngineNotCompiled. Rebuild with -tags gosseract
// (requires libtesseract-dev and libleptonica-dev).
func NewGosseract(cfg GosseractConfig) (*Gosseract, error) {
	return nil, ErrEngineNotCompiled
}

// Name implements Engine.
func (g *Gosseract) Name() string { return "gosseract" }

// Languages implements Engine.
func (g *Gosseract) Languages(ctx context.Context) ([]string, error) {
	return nil, ErrEngineNotCompiled
}

// Recognize implements Engine.
func (g *Gosseract) Recognize(ctx context.Context, img []byte, langs Languages) (string, error) {
	return "", ErrEngineNotCompiled
}
