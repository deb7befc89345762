package processor

import (
	"strings"
	"unicode/utf8"

	"github.com/adverant/nexus/docconvert-worker/internal/logging"
)

const (
	// detectSamplePages is how many leading pages are examined.
	detectSamplePages = 3
	// detectMinChars is the trimmed length a page must exceed to count as
	// carrying body text.
	detectMinChars = 50
)

// Detector decides whether a PDF already carries enough extractable text to
// skip OCR.
type Detector struct {
	layer  TextLayer
	logger *logging.Logger
}

// NewDetector returns a detector reading through layer (the default text
// layer when nil).
func NewDetector(layer TextLayer) *Detector {
	if layer == nil {
		layer = NewTextLayer()
	}
	return &Detector{layer: layer, logger: logging.NewLogger("detector")}
}

// HasText examines at most the first three pages and reports true as soon
// as one of them yields more than 50 characters of trimmed text. It never
// fails: anything that goes wrong means "needs OCR".
func (d *Detector) HasText(pdfPath string) (hasText bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("Text detection panicked, assuming scanned PDF", "path", pdfPath, "panic", r)
			hasText = false
		}
	}()

	pages, err := d.layer.Open(pdfPath)
	if err != nil {
		d.logger.Debug("Text detection could not open PDF", "path", pdfPath, "error", err)
		return false
	}
	defer pages.Close()

	n := pages.NumPage()
	if n > detectSamplePages {
		n = detectSamplePages
	}

	for i := 1; i <= n; i++ {
		text, err := pages.PageText(i)
		if err != nil {
			d.logger.Debug("Text detection failed on page", "path", pdfPath, "page", i, "error", err)
			return false
		}
		if utf8.RuneCountInString(strings.TrimSpace(text)) > detectMinChars {
			return true
		}
	}
	return false
}
