package processor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// lookPath is swapped in tests to simulate a missing binary.
var lookPath = exec.LookPath

// PopplerRasterizer renders pages with poppler's pdftoppm.
type PopplerRasterizer struct {
	binPath string
}

// NewPopplerRasterizer returns a rasterizer using the pdftoppm binary at
// binPath, or the one on PATH when binPath is empty.
func NewPopplerRasterizer(binPath string) *PopplerRasterizer {
	if binPath == "" {
		binPath = "pdftoppm"
	}
	return &PopplerRasterizer{binPath: binPath}
}

// Available reports whether pdftoppm can be found.
func (p *PopplerRasterizer) Available() error {
	if _, err := lookPath(p.binPath); err != nil {
		return fmt.Errorf("pdftoppm not found (%s): %w", p.binPath, err)
	}
	return nil
}

// Rasterize writes one PNG per page into workDir and returns them ordered
// by page number.
func (p *PopplerRasterizer) Rasterize(ctx context.Context, pdfPath string, dpi int, workDir string) ([]PageImage, error) {
	prefix := filepath.Join(workDir, "page")
	cmd := exec.CommandContext(ctx, p.binPath, "-r", strconv.Itoa(dpi), "-png", pdfPath, prefix)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("pdftoppm failed: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("pdftoppm failed: %w", err)
	}

	return collectPageImages(workDir, "page", dpi)
}

// collectPageImages finds "<prefix>-N.png" files. pdftoppm zero-pads N to
// the width of the page count, so ordering is by parsed number.
func collectPageImages(dir, prefix string, dpi int) ([]PageImage, error) {
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"-*.png"))
	if err != nil {
		return nil, err
	}

	images := make([]PageImage, 0, len(matches))
	for _, m := range matches {
		base := strings.TrimSuffix(filepath.Base(m), ".png")
		num, err := strconv.Atoi(strings.TrimPrefix(base, prefix+"-"))
		if err != nil {
			continue
		}
		images = append(images, PageImage{PageNumber: num, Path: m, DPI: dpi})
	}
	sort.Slice(images, func(i, j int) bool {
		return images[i].PageNumber < images[j].PageNumber
	})
	return images, nil
}
