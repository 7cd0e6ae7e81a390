package raster

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"codeberg.org/go-pdf/fpdf"
)

// buildPDF renders a real n-page PDF with one line of text per page.
func buildPDF(t *testing.T, n int) []byte {
	t.Helper()
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Helvetica", "", 24)
	for i := 0; i < n; i++ {
		pdf.AddPage()
		pdf.Cell(40, 10, "Page "+string(rune('A'+i)))
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		t.Fatalf("fpdf output: %v", err)
	}
	return buf.Bytes()
}

// writeScript installs an executable shell script and returns its path.
func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

// fakePdftoppm writes "PNG-<page>-<dpi>" to <prefix>.png and fails on failPage
// (1-based, 0 = never). Arguments: -f N -l N -r DPI -png -singlefile PDF PREFIX.
func fakePdftoppm(t *testing.T, failPage string) string {
	return writeScript(t, "pdftoppm", `
if [ "$1" = "-v" ]; then echo "pdftoppm version 0.0 (fake)" >&2; exit 0; fi
page="$2"
dpi="$6"
for last; do :; done
if [ "$page" = "`+failPage+`" ]; then echo "Syntax Error: broken page" >&2; exit 1; fi
printf 'PNG-%s-%s' "$page" "$dpi" > "$last.png"
`)
}

func TestImageSource(t *testing.T) {
	src := ImageSource([]byte("img"), "jpeg")
	defer src.Close()

	if src.PageCount() != 1 {
		t.Fatalf("page count: got %d", src.PageCount())
	}
	pg, err := src.Page(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if pg.Index != 0 || string(pg.Data) != "img" || pg.Type != "jpeg" {
		t.Fatalf("page: %+v", pg)
	}
	if _, err := src.Page(context.Background(), 1); !errors.Is(err, ErrPageFailed) {
		t.Fatalf("out of range: got %v", err)
	}
}

func TestCountPages(t *testing.T) {
	n, err := CountPages(buildPDF(t, 3))
	if err != nil {
		t.Fatalf("CountPages: %v", err)
	}
	if n != 3 {
		t.Fatalf("pages: got %d, want 3", n)
	}

	if _, err := CountPages([]byte("%PDF-1.4\ngarbage")); err == nil {
		t.Fatal("expected error for garbage PDF")
	}
}

func TestPoppler_OpenAndRenderLazily(t *testing.T) {
	tmp := t.TempDir()
	p := NewPoppler(Config{DPI: 150, TmpDir: tmp, Pdftoppm: fakePdftoppm(t, "0")})

	src, err := p.Open(context.Background(), buildPDF(t, 3))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if src.PageCount() != 3 {
		t.Fatalf("page count: got %d", src.PageCount())
	}

	pg, err := src.Page(context.Background(), 1)
	if err != nil {
		t.Fatalf("Page(1): %v", err)
	}
	if string(pg.Data) != "PNG-2-150" || pg.Index != 1 || pg.Type != "png" {
		t.Fatalf("page: index=%d type=%s data=%q", pg.Index, pg.Type, pg.Data)
	}

	// The rendered file is deleted once read; only the staged input remains.
	entries, _ := os.ReadDir(tmp)
	if len(entries) != 1 {
		t.Fatalf("temp entries: got %d, want 1 request dir", len(entries))
	}
	inner, _ := os.ReadDir(filepath.Join(tmp, entries[0].Name()))
	if len(inner) != 1 || inner[0].Name() != "input.pdf" {
		t.Fatalf("request dir contents: %v", inner)
	}

	if err := src.Close(); err != nil {
		t.Fatal(err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if entries, _ := os.ReadDir(tmp); len(entries) != 0 {
		t.Fatalf("temp dir not cleaned: %v", entries)
	}
}

func TestPoppler_ConcurrentPages(t *testing.T) {
	p := NewPoppler(Config{TmpDir: t.TempDir(), Pdftoppm: fakePdftoppm(t, "0")})
	src, err := p.Open(context.Background(), buildPDF(t, 4))
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	var wg sync.WaitGroup
	got := make([]string, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pg, err := src.Page(context.Background(), i)
			if err != nil {
				t.Errorf("page %d: %v", i, err)
				return
			}
			got[i] = string(pg.Data)
		}(i)
	}
	wg.Wait()
	for i, s := range got {
		if want := "PNG-" + string(rune('1'+i)) + "-200"; s != want {
			t.Fatalf("page %d: got %q, want %q", i, s, want)
		}
	}
}

func TestPoppler_PageFailure(t *testing.T) {
	p := NewPoppler(Config{TmpDir: t.TempDir(), Pdftoppm: fakePdftoppm(t, "2")})
	src, err := p.Open(context.Background(), buildPDF(t, 3))
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	_, err = src.Page(context.Background(), 1)
	if !errors.Is(err, ErrPageFailed) {
		t.Fatalf("expected ErrPageFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "broken page") {
		t.Fatalf("stderr not surfaced: %v", err)
	}
	if _, err := src.Page(context.Background(), 2); err != nil {
		t.Fatalf("sibling page: %v", err)
	}
	if _, err := src.Page(context.Background(), 3); !errors.Is(err, ErrPageFailed) {
		t.Fatalf("out of range: %v", err)
	}
}

func TestPoppler_CorruptDocument(t *testing.T) {
	tmp := t.TempDir()
	p := NewPoppler(Config{
		TmpDir:   tmp,
		Pdftoppm: fakePdftoppm(t, "0"),
		Pdfinfo:  writeScript(t, "pdfinfo", "echo 'Syntax Error: not a PDF' >&2\nexit 1\n"),
	})
	_, err := p.Open(context.Background(), []byte("%PDF-1.7 this is not really a pdf"))
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
	// Both page counters explain themselves.
	if msg := err.Error(); !strings.Contains(msg, "pdfcpu") || !strings.Contains(msg, "Syntax Error: not a PDF") {
		t.Errorf("error should carry both pdfcpu and pdfinfo causes, got %q", msg)
	}
	if entries, _ := os.ReadDir(tmp); len(entries) != 0 {
		t.Fatalf("temp dir not cleaned after failed open: %v", entries)
	}
}

func TestPoppler_PdfinfoFallback(t *testing.T) {
	p := NewPoppler(Config{
		TmpDir:   t.TempDir(),
		Pdftoppm: fakePdftoppm(t, "0"),
		Pdfinfo:  writeScript(t, "pdfinfo", "echo 'Producer: test'\necho 'Pages:          2'\n"),
	})
	src, err := p.Open(context.Background(), []byte("%PDF-1.7 damaged xref poppler can still read"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()
	if src.PageCount() != 2 {
		t.Fatalf("page count: got %d, want 2", src.PageCount())
	}
}

func TestPoppler_PageCanceled(t *testing.T) {
	slow := writeScript(t, "pdftoppm", "exec sleep 5\n")
	p := NewPoppler(Config{TmpDir: t.TempDir(), Pdftoppm: slow})
	src, err := p.Open(context.Background(), buildPDF(t, 1))
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = src.Page(ctx, 0)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Fatal("subprocess was not killed on cancel")
	}
}

func TestPoppler_Check(t *testing.T) {
	p := NewPoppler(Config{Pdftoppm: fakePdftoppm(t, "0")})
	if err := p.Check(context.Background()); err != nil {
		t.Fatalf("Check: %v", err)
	}

	missing := NewPoppler(Config{Pdftoppm: filepath.Join(t.TempDir(), "no-such-pdftoppm")})
	if err := missing.Check(context.Background()); !errors.Is(err, ErrToolMissing) {
		t.Fatalf("expected ErrToolMissing, got %v", err)
	}
}

func TestPoppler_RealPdftoppm(t *testing.T) {
	if _, err := exec.LookPath("pdftoppm"); err != nil {
		t.Skip("pdftoppm not installed")
	}
	p := NewPoppler(Config{DPI: 72, TmpDir: t.TempDir()})
	src, err := p.Open(context.Background(), buildPDF(t, 2))
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	pg, err := src.Page(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(pg.Data, []byte("\x89PNG\r\n\x1a\n")) {
		t.Fatal("output is not a PNG")
	}
}
