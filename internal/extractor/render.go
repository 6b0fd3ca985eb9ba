package extractor

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"visionrag/internal/domain"
)

// Poppler rasterizes PDF pages with pdftoppm. One PNG per page is
// written to a temp dir and decoded.
type Poppler struct {
	command string
	dpi     int
}

var _ domain.PageRenderer = (*Poppler)(nil)

func NewPoppler(command string, dpi int) *Poppler {
	if command == "" {
		command = "pdftoppm"
	}
	if dpi <= 0 {
		dpi = 150
	}
	return &Poppler{command: command, dpi: dpi}
}

// RenderPages returns one image per page, in page order.
func (p *Poppler) RenderPages(ctx context.Context, path string) ([]image.Image, error) {
	dir, err := os.MkdirTemp("", "visionrag-render-")
	if err != nil {
		return nil, fmt.Errorf("render temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	prefix := filepath.Join(dir, "page")
	cmd := exec.CommandContext(ctx, p.command, "-png", "-r", strconv.Itoa(p.dpi), path, prefix)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("run %s: %w: %s", p.command, err, strings.TrimSpace(string(out)))
	}

	files, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, err
	}
	// pdftoppm numbers pages in the suffix; zero-padding is based on
	// the page count, so sort numerically to be safe.
	sort.Slice(files, func(i, j int) bool {
		return pageNumber(files[i]) < pageNumber(files[j])
	})

	images := make([]image.Image, 0, len(files))
	for _, f := range files {
		fh, err := os.Open(f)
		if err != nil {
			return nil, err
		}
		img, err := png.Decode(fh)
		fh.Close()
		if err != nil {
			return nil, fmt.Errorf("decode rendered page %s: %w", filepath.Base(f), err)
		}
		images = append(images, img)
	}
	return images, nil
}

func pageNumber(path string) int {
	base := strings.TrimSuffix(filepath.Base(path), ".png")
	idx := strings.LastIndex(base, "-")
	if idx < 0 {
		return 0
	}
	n, _ := strconv.Atoi(base[idx+1:])
	return n
}
