package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/hazyhaar/ocrapi/horosafe"
)

// Config configures the poppler rasterizer.
type Config struct {
	DPI      int          `yaml:"dpi"`
	TmpDir   string       `yaml:"tmp_dir"`  // "" = os.TempDir()
	Pdftoppm string       `yaml:"pdftoppm"` // binary path or name
	Pdfinfo  string       `yaml:"pdfinfo"`
	Logger   *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.DPI <= 0 {
		c.DPI = 200
	}
	if c.Pdftoppm == "" {
		c.Pdftoppm = "pdftoppm"
	}
	if c.Pdfinfo == "" {
		c.Pdfinfo = "pdfinfo"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Poppler renders PDF pages with pdftoppm.
type Poppler struct {
	cfg Config
}

// NewPoppler creates a rasterizer.
func NewPoppler(cfg Config) *Poppler {
	cfg.defaults()
	return &Poppler{cfg: cfg}
}

// DPI returns the rendering resolution.
func (p *Poppler) DPI() int { return p.cfg.DPI }

// Check verifies that pdftoppm can be executed.
func (p *Poppler) Check(ctx context.Context) error {
	path, err := exec.LookPath(p.cfg.Pdftoppm)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrToolMissing, p.cfg.Pdftoppm, err)
	}
	// pdftoppm -v prints its version on stderr and exits 0 (older builds 99).
	out, err := exec.CommandContext(ctx, path, "-v").CombinedOutput()
	if err != nil && !strings.Contains(string(out), "pdftoppm") {
		return fmt.Errorf("%w: %s -v: %v", ErrToolMissing, path, err)
	}
	return nil
}

// Open validates pdf, counts its pages and stages it in a temp directory.
// It fails with ErrCorrupt when neither pdfcpu nor pdfinfo can read a page
// count. The returned Source must be closed.
func (p *Poppler) Open(ctx context.Context, pdf []byte) (Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp(p.cfg.TmpDir, "ocrapi-")
	if err != nil {
		return nil, fmt.Errorf("raster: temp dir: %w", err)
	}
	src := &pdfSource{p: p, dir: dir, path: filepath.Join(dir, "input.pdf")}

	if err := os.WriteFile(src.path, pdf, 0o600); err != nil {
		src.Close()
		return nil, fmt.Errorf("raster: stage pdf: %w", err)
	}

	pages, err := CountPages(pdf)
	if err != nil {
		p.cfg.Logger.Debug("raster: pdfcpu rejected document, trying pdfinfo", "error", err)
		var infoErr error
		pages, infoErr = p.pdfinfoPages(ctx, src.path)
		if infoErr != nil {
			src.Close()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, errors.Join(err, infoErr))
		}
	}
	if pages <= 0 {
		src.Close()
		return nil, fmt.Errorf("%w: no pages", ErrCorrupt)
	}
	src.pages = pages
	return src, nil
}

// CountPages parses pdf with pdfcpu in relaxed mode and returns its page
// count.
func CountPages(pdf []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(pdf), conf)
	if err != nil {
		return 0, fmt.Errorf("pdfcpu read: %w", err)
	}
	return ctx.PageCount, nil
}

func (p *Poppler) pdfinfoPages(ctx context.Context, path string) (int, error) {
	out, err := exec.CommandContext(ctx, p.cfg.Pdfinfo, path).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return 0, fmt.Errorf("pdfinfo: %w: %s", err, horosafe.Tail(string(exitErr.Stderr), 200))
		}
		return 0, fmt.Errorf("pdfinfo: %w", err)
	}
	for _, line := range strings.Split(string(out), "\n") {
		if v, ok := strings.CutPrefix(line, "Pages:"); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return 0, fmt.Errorf("pdfinfo: bad page count %q", v)
			}
			return n, nil
		}
	}
	return 0, errors.New("pdfinfo: could not determine page count")
}

type pdfSource struct {
	p     *Poppler
	dir   string
	path  string
	pages int

	closeOnce sync.Once
	closeErr  error
}

func (s *pdfSource) PageCount() int { return s.pages }

func (s *pdfSource) Page(ctx context.Context, i int) (PageImage, error) {
	if i < 0 || i >= s.pages {
		return PageImage{}, fmt.Errorf("%w: page %d out of range [0,%d)", ErrPageFailed, i, s.pages)
	}
	n := strconv.Itoa(i + 1)
	prefix := filepath.Join(s.dir, "page-"+n)
	out := prefix + ".png"
	defer os.Remove(out)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.p.cfg.Pdftoppm,
		"-f", n, "-l", n,
		"-r", strconv.Itoa(s.p.cfg.DPI),
		"-png", "-singlefile",
		s.path, prefix)
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return PageImage{}, ctxErr
		}
		return PageImage{}, fmt.Errorf("%w: page %d: %v: %s", ErrPageFailed, i, err, horosafe.Tail(stderr.String(), 200))
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return PageImage{}, fmt.Errorf("%w: page %d: read output: %v", ErrPageFailed, i, err)
	}
	if len(data) == 0 {
		return PageImage{}, fmt.Errorf("%w: page %d: empty output", ErrPageFailed, i)
	}
	return PageImage{Index: i, Data: data, Type: "png"}, nil
}

func (s *pdfSource) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = os.RemoveAll(s.dir)
	})
	return s.closeErr
}

