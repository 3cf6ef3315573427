// Package raster turns PDF pages into PNG images.
//
// Page counting goes through pdfcpu; rendering shells out to pdftoppm
// (poppler-utils), which must be on PATH.
package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

const (
	// DefaultZoom matches a 2x render of a 72 DPI page.
	DefaultZoom = 2.0

	// baseDPI is the PDF user-space resolution.
	baseDPI = 72.0
)

// ErrUnreadable is returned when a document cannot be opened or parsed.
var ErrUnreadable = errors.New("unreadable document")

// Rasterizer counts and renders document pages.
type Rasterizer interface {
	// PageCount returns the number of pages. Errors wrap ErrUnreadable when the
	// document itself is broken.
	PageCount(ctx context.Context, path string) (int, error)

	// RenderPage renders a 1-indexed page to PNG bytes.
	RenderPage(ctx context.Context, path string, page int) ([]byte, error)
}

// Config configures the poppler rasterizer.
type Config struct {
	// Zoom scales the 72 DPI page (default 2).
	Zoom float64
	// Binary is the pdftoppm executable (default "pdftoppm").
	Binary string
}

// Poppler renders pages with pdftoppm.
type Poppler struct {
	zoom   float64
	binary string
}

// NewPoppler creates a pdftoppm-backed rasterizer.
func NewPoppler(cfg Config) *Poppler {
	if cfg.Zoom <= 0 {
		cfg.Zoom = DefaultZoom
	}
	if cfg.Binary == "" {
		cfg.Binary = "pdftoppm"
	}
	return &Poppler{zoom: cfg.Zoom, binary: cfg.Binary}
}

// DPI returns the render resolution.
func (p *Poppler) DPI() int {
	return int(baseDPI * p.zoom)
}

// PageCount opens the PDF with pdfcpu and returns its page count.
func (p *Poppler) PageCount(_ context.Context, path string) (int, error) {
	return CountPages(path)
}

// CountPages returns the page count of the PDF at path.
func CountPages(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer f.Close()
	return countPages(f)
}

func countPages(rs io.ReadSeeker) (n int, err error) {
	// pdfcpu can panic on badly malformed input.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrUnreadable, r)
		}
	}()
	n, err = api.PageCount(rs, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return n, nil
}

// CountPagesBytes returns the page count of an in-memory PDF.
func CountPagesBytes(data []byte) (int, error) {
	return countPages(bytes.NewReader(data))
}

// RenderPage renders a single page with pdftoppm and returns the PNG bytes.
func (p *Poppler) RenderPage(ctx context.Context, path string, page int) ([]byte, error) {
	if page < 1 {
		return nil, fmt.Errorf("invalid page number %d", page)
	}

	tmpDir, err := os.MkdirTemp("", "stdcheck-page-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outputPrefix := filepath.Join(tmpDir, "page")
	pageStr := strconv.Itoa(page)

	// -singlefile writes <prefix>.png without a page suffix
	cmd := exec.CommandContext(ctx, p.binary,
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", strconv.Itoa(p.DPI()),
		"-singlefile",
		path,
		outputPrefix,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("pdftoppm failed on page %d: %w (output: %s)", page, err, string(output))
	}

	data, err := os.ReadFile(outputPrefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}
	return data, nil
}

var _ Rasterizer = (*Poppler)(nil)
