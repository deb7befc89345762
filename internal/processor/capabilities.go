package processor

import (
	"context"
	"fmt"

	perrors "github.com/adverant/nexus/docconvert-worker/internal/errors"
)

// DirectExtractor converts a text-bearing PDF straight into a .docx at
// outputPath.
type DirectExtractor interface {
	Extract(ctx context.Context, pdfPath, outputPath string) error
}

// PageRasterizer renders every page of a PDF to an image in workDir,
// returning the images in page order.
type PageRasterizer interface {
	Rasterize(ctx context.Context, pdfPath string, dpi int, workDir string) ([]PageImage, error)
	Available() error
}

// OCREngine recognizes the text in one page image. Blank pages may yield
// empty text without an error.
type OCREngine interface {
	Recognize(ctx context.Context, image PageImage, languages []string) (*OCRPage, error)
	Available(languages []string) error
}

// PDFInspector opens a PDF far enough to count its pages.
type PDFInspector interface {
	PageCount(pdfPath string) (int, error)
}

// OCRCapability bundles what the OCR path needs. A nil *OCRCapability
// means OCR is not available on this host.
type OCRCapability struct {
	Rasterizer PageRasterizer
	Engine     OCREngine
}

// ProbeOCR checks once, at startup, that both the rasterizer and the OCR
// engine (with the requested languages) are usable. It returns a
// CapabilityUnavailable error describing the first missing piece.
func ProbeOCR(rasterizer PageRasterizer, engine OCREngine, languages []string) (*OCRCapability, error) {
	if rasterizer == nil || engine == nil {
		return nil, perrors.NewCapabilityUnavailableError("ocr", fmt.Errorf("rasterizer or engine not configured"))
	}
	if err := rasterizer.Available(); err != nil {
		return nil, perrors.NewCapabilityUnavailableError("rasterizer", err)
	}
	if err := engine.Available(languages); err != nil {
		return nil, perrors.NewCapabilityUnavailableError("ocr-engine", err)
	}
	return &OCRCapability{Rasterizer: rasterizer, Engine: engine}, nil
}
