package raster

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/jackzampolin/stdcheck/internal/testutil"
)

func TestCountPages(t *testing.T) {
	for _, n := range []int{1, 3, 7} {
		path := testutil.WritePDF(t, n)
		got, err := CountPages(path)
		if err != nil {
			t.Fatalf("CountPages(%d pages) error = %v", n, err)
		}
		if got != n {
			t.Errorf("CountPages() = %d, want %d", got, n)
		}
	}
}

func TestCountPagesBytes(t *testing.T) {
	got, err := CountPagesBytes(testutil.MinimalPDF(2))
	if err != nil {
		t.Fatalf("CountPagesBytes() error = %v", err)
	}
	if got != 2 {
		t.Errorf("CountPagesBytes() = %d, want 2", got)
	}
}

func TestCountPages_Unreadable(t *testing.T) {
	t.Run("garbage", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.pdf")
		if err := os.WriteFile(path, []byte("this is not a pdf at all"), 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := CountPages(path)
		if !errors.Is(err, ErrUnreadable) {
			t.Errorf("error = %v, want ErrUnreadable", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := CountPages(filepath.Join(t.TempDir(), "nope.pdf"))
		if !errors.Is(err, ErrUnreadable) {
			t.Errorf("error = %v, want ErrUnreadable", err)
		}
	})
}

func TestPoppler_DPI(t *testing.T) {
	tests := []struct {
		zoom float64
		want int
	}{
		{0, 144},
		{1, 72},
		{2, 144},
		{3, 216},
	}
	for _, tt := range tests {
		if got := NewPoppler(Config{Zoom: tt.zoom}).DPI(); got != tt.want {
			t.Errorf("DPI() with zoom %v = %d, want %d", tt.zoom, got, tt.want)
		}
	}
}

func TestPoppler_RenderPage(t *testing.T) {
	if _, err := exec.LookPath("pdftoppm"); err != nil {
		t.Skip("pdftoppm not installed")
	}

	path := testutil.WritePDF(t, 2)
	p := NewPoppler(Config{})

	data, err := p.RenderPage(context.Background(), path, 2)
	if err != nil {
		t.Fatalf("RenderPage() error = %v", err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Errorf("RenderPage() did not return PNG data")
	}

	if _, err := p.RenderPage(context.Background(), path, 0); err == nil {
		t.Error("expected error for page 0")
	}
}
