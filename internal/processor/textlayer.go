package processor

import (
	"fmt"
	"os"

	"github.com/ledongthuc/pdf"
)

// TextLayer opens a PDF's embedded text layer.
type TextLayer interface {
	Open(pdfPath string) (TextPages, error)
}

// TextPages gives page-by-page access to extracted text. Pages are
// 1-based.
type TextPages interface {
	NumPage() int
	PageText(n int) (string, error)
	Close() error
}

// ledongthucTextLayer reads text with github.com/ledongthuc/pdf.
type ledongthucTextLayer struct{}

// NewTextLayer returns the default pure-Go text layer reader.
func NewTextLayer() TextLayer {
	return ledongthucTextLayer{}
}

func (ledongthucTextLayer) Open(pdfPath string) (TextPages, error) {
	f, r, err := pdf.Open(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	return &ledongthucPages{file: f, reader: r}, nil
}

type ledongthucPages struct {
	file   *os.File
	reader *pdf.Reader
}

func (p *ledongthucPages) NumPage() int {
	return p.reader.NumPage()
}

// PageText extracts one page. The library panics on some malformed content
// streams; that is reported as an error.
func (p *ledongthucPages) PageText(n int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page %d: text extraction panicked: %v", n, r)
		}
	}()

	page := p.reader.Page(n)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

func (p *ledongthucPages) Close() error {
	return p.file.Close()
}
