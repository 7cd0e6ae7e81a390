package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/hazyhaar/ocrapi/connectivity"
	"github.com/hazyhaar/ocrapi/horosafe"
)

// TesseractConfig configures the CLI engine.
type TesseractConfig struct {
	Binary      string `yaml:"binary"`       // default "tesseract"
	PSM         int    `yaml:"psm"`          // page segmentation mode, default 3 (auto)
	TessdataDir string `yaml:"tessdata_dir"` // "" = tesseract default
}

// Tesseract runs the tesseract binary once per page, image on stdin and
// text on stdout. OpenMP is pinned to one thread per process so parallel
// pages do not oversubscribe the CPU.
type Tesseract struct {
	cfg TesseractConfig
}

// NewTesseract creates a CLI engine.
func NewTesseract(cfg TesseractConfig) *Tesseract {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.PSM <= 0 {
		cfg.PSM = 3
	}
	return &Tesseract{cfg: cfg}
}

// Name implements Engine.
func (t *Tesseract) Name() string { return "tesseract" }

// Languages implements Engine using --list-langs.
func (t *Tesseract) Languages(ctx context.Context) ([]string, error) {
	args := []string{"--list-langs"}
	if t.cfg.TessdataDir != "" {
		args = append([]string{"--tessdata-dir", t.cfg.TessdataDir}, args...)
	}
	cmd := exec.CommandContext(ctx, t.cfg.Binary, args...)
	cmd.WaitDelay = time.Second
	// Tesseract 3 prints the list on stderr, 4+ on stdout.
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("tesseract --list-langs: %w: %s", err, horosafe.Tail(string(out), 200))
	}
	return parseLangList(string(out)), nil
}

// Recognize implements Engine.
func (t *Tesseract) Recognize(ctx context.Context, img []byte, langs Languages) (string, error) {
	args := []string{"stdin", "stdout", "-l", langs.String(), "--psm", strconv.Itoa(t.cfg.PSM)}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.cfg.Binary, args...)
	cmd.Stdin = bytes.NewReader(img)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(), "OMP_THREAD_LIMIT=1")
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		err = fmt.Errorf("tesseract: %w: %s", err, horosafe.Tail(stderr.String(), 300))
		if inputRejected(err, stderr.String()) {
			// A bad page must not trip the breaker shared by every request.
			return "", connectivity.Permanent(err)
		}
		return "", err
	}
	return stdout.String(), nil
}

func parseLangList(out string) []string {
	var langs []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of available languages") || strings.Contains(line, " ") {
			continue
		}
		langs = append(langs, line)
	}
	return langs
}

// unreadableImage lists stderr fragments of leptonica and tesseract that
// blame the image rather than the engine.
var unreadableImage = []string{
	"pixreadmem",
	"pixreadstream",
	"unknown format",
	"unsupported image",
	"cannot be read",
	"image too large",
	"image too small",
	"invalid image",
}

// inputRejected reports whether tesseract ran to completion and refused
// the image itself. Signals, missing binaries and exec failures are
// engine failures.
func inputRejected(err error, stderr string) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || !exitErr.Exited() {
		return false
	}
	msg := strings.ToLower(stderr)
	for _, frag := range unreadableImage {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}
