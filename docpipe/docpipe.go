// Package docpipe extracts text from uploaded images and PDFs.
//
// An extraction runs in four steps:
//
//   - classify the upload by byte signature (declared type and extension
//     only break ties), failing fast on anything that is not PNG, JPEG,
//     BMP, TIFF or PDF;
//   - open it as a page source: images pass through as one page, PDFs are
//     rasterized lazily, one page at a time;
//   - recognise every page with the OCR adapter;
//   - join page texts in page order with a single newline.
//
// Only classification and opening are fatal. A page that fails to render
// or recognise contributes empty text and never stops its siblings.
//
// Usage:
//
//	pipe := docpipe.New(docpipe.Config{}, poppler, adapter)
//	res, err := pipe.Extract(ctx, docpipe.Upload{Filename: "scan.pdf", Data: b})
//	fmt.Println(res.Text)
package docpipe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/ocrapi/kit"
	"github.com/hazyhaar/ocrapi/langid"
	"github.com/hazyhaar/ocrapi/observability"
	"github.com/hazyhaar/ocrapi/ocr"
	"github.com/hazyhaar/ocrapi/raster"
)

// Rasterizer opens a PDF as a lazy page source.
type Rasterizer interface {
	Open(ctx context.Context, pdf []byte) (raster.Source, error)
}

// Recognizer runs OCR on one page image. *ocr.Adapter implements it.
type Recognizer interface {
	Recognize(ctx context.Context, img []byte, langs ocr.Languages) (string, error)
	Check(ctx context.Context, langs ocr.Languages) error
	Installed(ctx context.Context) ([]string, error)
}

// Pipeline is the extraction engine. Safe for concurrent use; requests
// share nothing but the in-flight limit.
type Pipeline struct {
	cfg      Config
	logger   *slog.Logger
	raster   Rasterizer
	ocr      Recognizer
	detector *langid.Detector
	slots    chan struct{}
}

// New creates a Pipeline with the given configuration.
func New(cfg Config, rasterizer Rasterizer, recognizer Recognizer) *Pipeline {
	cfg.defaults()
	p := &Pipeline{
		cfg:    cfg,
		logger: cfg.Logger,
		raster: rasterizer,
		ocr:    recognizer,
		slots:  make(chan struct{}, cfg.MaxInFlight),
	}
	if cfg.DetectLanguage {
		p.detector = langid.New()
	}
	return p
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// LanguageInfo lists the configured and installed language packs.
type LanguageInfo struct {
	Default   string   `json:"default"`
	Installed []string `json:"installed"`
}

// Languages reports the default language set and the installed packs.
func (p *Pipeline) Languages(ctx context.Context) (LanguageInfo, error) {
	installed, err := p.ocr.Installed(ctx)
	if err != nil {
		return LanguageInfo{}, fmt.Errorf("%w: %w", ErrOCREngineFailure, err)
	}
	return LanguageInfo{Default: p.cfg.Languages.String(), Installed: installed}, nil
}

// Option tunes a single extraction.
type Option func(*extractOptions)

type extractOptions struct {
	langs    ocr.Languages
	override bool
	progress func(Event)
}

// WithLanguages overrides the language packs for one extraction. The set
// is validated against the installed packs before any page runs.
func WithLanguages(langs ocr.Languages) Option {
	return func(o *extractOptions) {
		if len(langs) > 0 {
			o.langs = langs
			o.override = true
		}
	}
}

// WithProgress registers fn to receive one Event per finished page. Calls
// are serialised but may arrive out of page order when Workers > 1.
func WithProgress(fn func(Event)) Option {
	return func(o *extractOptions) { o.progress = fn }
}

// Extract runs the whole pipeline on one upload.
//
// Fatal errors return a nil Result. When ctx ends mid-document the pages
// already done are returned together with ErrCanceled; pages never started
// are marked canceled.
func (p *Pipeline) Extract(ctx context.Context, u Upload, opts ...Option) (*Result, error) {
	o := extractOptions{langs: p.cfg.Languages}
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	res, err := p.extract(ctx, u, o)
	if res != nil {
		res.Duration = time.Since(start)
	}
	p.record(u, res, err, time.Since(start))
	return res, err
}

func (p *Pipeline) extract(ctx context.Context, u Upload, o extractOptions) (*Result, error) {
	if u.Size() > p.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, u.Size(), p.cfg.MaxFileSize)
	}

	format, imgType := p.Detect(u)
	if format == FormatUnsupported {
		return nil, fmt.Errorf("%w: accepted types are PNG, JPEG, BMP, TIFF and PDF", ErrUnsupportedFormat)
	}

	release, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if o.override {
		if err := p.ocr.Check(ctx, o.langs); err != nil {
			if errors.Is(err, ocr.ErrLanguageUnavailable) || errors.Is(err, ocr.ErrInvalidLanguages) {
				return nil, fmt.Errorf("%w: %w", ErrLanguageUnavailable, err)
			}
			return nil, fmt.Errorf("%w: %w", ErrOCREngineFailure, err)
		}
	}

	src, err := p.open(ctx, format, imgType, u.Data)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := src.Close(); err != nil {
			p.logger.Warn("docpipe: release page source", "error", err)
		}
	}()

	p.logger.Debug("extracting document",
		"filename", u.Filename, "format", format, "size", u.Size(),
		"pages", src.PageCount(), "languages", o.langs.String(),
		"transport", kit.GetTransport(ctx))

	res := &Result{Filename: u.Filename, Format: format}
	res.Pages = p.pages(ctx, src, o)

	texts := make([]string, len(res.Pages))
	canceled := false
	for i, pr := range res.Pages {
		texts[i] = pr.Text
		if pr.Kind == KindCanceled {
			canceled = true
		}
	}
	res.Text = strings.Join(texts, "\n")
	res.Quality = assess(res.Pages, res.Text)

	if canceled {
		return res, fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
	}
	if p.detector != nil {
		res.Language = p.detector.Detect(res.Text, o.langs)
	}
	return res, nil
}

// acquire takes an in-flight slot, waiting at most QueueTimeout.
func (p *Pipeline) acquire(ctx context.Context) (func(), error) {
	release := func() { <-p.slots }
	select {
	case p.slots <- struct{}{}:
		return release, nil
	default:
	}

	timer := time.NewTimer(p.cfg.QueueTimeout)
	defer timer.Stop()
	select {
	case p.slots <- struct{}{}:
		return release, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
	case <-timer.C:
		return nil, fmt.Errorf("%w: %d extractions in flight", ErrBusy, cap(p.slots))
	}
}

func (p *Pipeline) open(ctx context.Context, format Format, typ ImageType, data []byte) (raster.Source, error) {
	if format == FormatImage {
		if err := validateImage(data); err != nil {
			return nil, err
		}
		return raster.ImageSource(data, string(typ)), nil
	}

	src, err := p.raster.Open(ctx, data)
	switch {
	case err == nil:
		return src, nil
	case errors.Is(err, raster.ErrCorrupt):
		return nil, fmt.Errorf("%w: %w", ErrCorruptDocument, err)
	case ctx.Err() != nil:
		return nil, fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
	default:
		return nil, fmt.Errorf("open pdf: %w", err)
	}
}

// validateImage decodes the image header only. Variants the Go decoders
// do not handle are passed through and left to the OCR engine.
func validateImage(data []byte) error {
	_, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err == nil {
		return nil
	}
	var tiffUnsupported tiff.UnsupportedError
	if errors.Is(err, bmp.ErrUnsupported) || errors.As(err, &tiffUnsupported) {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrCorruptDocument, err)
}

// pages processes every page of src, Workers at a time. Results are
// written by index, so the order of completion is never observable.
func (p *Pipeline) pages(ctx context.Context, src raster.Source, o extractOptions) []PageResult {
	n := src.PageCount()
	results := make([]PageResult, n)
	for i := range results {
		results[i] = PageResult{Index: i, Kind: KindCanceled, Err: ErrCanceled.Error()}
	}

	var mu sync.Mutex
	emit := func(pr PageResult) {
		if o.progress == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		o.progress(Event{Index: pr.Index, Total: n, OK: pr.OK, Kind: pr.Kind, Text: pr.Text})
	}

	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			pr := p.page(ctx, src, i, o.langs)
			results[i] = pr
			if pr.Kind != KindCanceled {
				emit(pr)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (p *Pipeline) page(ctx context.Context, src raster.Source, i int, langs ocr.Languages) PageResult {
	pr := PageResult{Index: i}
	fail := func(kind Kind, err error) PageResult {
		if ctx.Err() != nil {
			kind, err = KindCanceled, ErrCanceled
		} else {
			p.logger.Warn("docpipe: page failed", "page", i, "kind", kind, "error", err)
		}
		pr.Kind = kind
		pr.Err = err.Error()
		return pr
	}

	if ctx.Err() != nil {
		return fail(KindCanceled, ErrCanceled)
	}

	img, err := src.Page(ctx, i)
	if err != nil {
		return fail(KindRasterizationFailed, err)
	}

	text, err := p.ocr.Recognize(ctx, img.Data, langs)
	if err != nil {
		return fail(KindOCREngineFailure, err)
	}
	pr.Text = text
	pr.OK = true
	return pr
}

func (p *Pipeline) record(u Upload, res *Result, err error, elapsed time.Duration) {
	mm := p.cfg.Metrics
	if mm == nil {
		return
	}
	if res == nil {
		format, _ := p.Detect(u)
		mm.RecordSimple(observability.MetricExtractionErrors, 1, "count",
			"format", string(format), "kind", string(KindOf(err)))
		return
	}

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "canceled"
	case res.Failed() > 0:
		outcome = "partial"
	}
	format := string(res.Format)
	mm.RecordSimple(observability.MetricExtractionDurationMs, float64(elapsed.Milliseconds()), "milliseconds",
		"format", format, "outcome", outcome)
	mm.RecordSimple(observability.MetricExtractionPages, float64(len(res.Pages)), "count", "format", format)
	if failed := res.Failed(); failed > 0 {
		mm.RecordSimple(observability.MetricPageFailures, float64(failed), "count", "format", format)
	}
}
