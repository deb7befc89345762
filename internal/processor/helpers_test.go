package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/docconvert-worker/internal/docx"
)

// writePDF renders one page per entry with fpdf. Empty entries give blank
// pages.
func writePDF(t *testing.T, dir, name string, pages ...string) string {
	t.Helper()
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 11)
	for _, text := range pages {
		pdf.AddPage()
		if text != "" {
			pdf.MultiCell(0, 5, text, "", "L", false)
		}
	}
	path := filepath.Join(dir, name)
	require.NoError(t, pdf.OutputFileAndClose(path))
	return path
}

// writeStub creates a placeholder input for tests whose collaborators are
// all fakes.
func writeStub(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4\n%%EOF\n"), 0o600))
	return path
}

// writeDocx builds a document with one body paragraph per entry.
func writeDocx(t *testing.T, dir, name string, paragraphs ...string) string {
	t.Helper()
	doc := docx.New()
	for _, p := range paragraphs {
		doc.AddParagraph(p)
	}
	path := filepath.Join(dir, name)
	require.NoError(t, doc.Save(path))
	return path
}

func openDocx(t *testing.T, path string) *docx.Document {
	t.Helper()
	doc, err := docx.Open(path)
	require.NoError(t, err)
	return doc
}

func paragraphTexts(doc *docx.Document) []string {
	var out []string
	for _, p := range doc.Paragraphs() {
		out = append(out, p.Text())
	}
	return out
}

// fakeLayer serves page texts from memory, keyed by path.
type fakeLayer struct {
	docs map[string][]string
	err  error
}

func (f *fakeLayer) Open(pdfPath string) (TextPages, error) {
	if f.err != nil {
		return nil, f.err
	}
	pages, ok := f.docs[pdfPath]
	if !ok {
		return nil, fmt.Errorf("no such document: %s", pdfPath)
	}
	return &fakePages{pages: pages}, nil
}

type fakePages struct {
	pages   []string
	failAt  int
	panicAt int
	closed  bool
}

func (p *fakePages) NumPage() int { return len(p.pages) }

func (p *fakePages) PageText(n int) (string, error) {
	if n == p.panicAt {
		panic("malformed content stream")
	}
	if n == p.failAt {
		return "", errors.New("bad page")
	}
	return p.pages[n-1], nil
}

func (p *fakePages) Close() error {
	p.closed = true
	return nil
}

// pagesLayer returns a fixed TextPages for any path.
type pagesLayer struct{ pages *fakePages }

func (l pagesLayer) Open(string) (TextPages, error) { return l.pages, nil }

type fakeInspector struct {
	pages int
	err   error
}

func (f fakeInspector) PageCount(string) (int, error) { return f.pages, f.err }

type fakeDetector struct {
	hasText bool
	calls   int
}

func (f *fakeDetector) HasText(string) bool {
	f.calls++
	return f.hasText
}

// fakeRasterizer reports pages images without touching the disk.
type fakeRasterizer struct {
	pages int
	err   error
}

func (f *fakeRasterizer) Rasterize(ctx context.Context, _ string, dpi int, workDir string) ([]PageImage, error) {
	if f.err != nil {
		return nil, f.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	images := make([]PageImage, f.pages)
	for i := range images {
		images[i] = PageImage{
			PageNumber: i + 1,
			Path:       filepath.Join(workDir, fmt.Sprintf("page-%d.png", i+1)),
			DPI:        dpi,
		}
	}
	return images, nil
}

func (f *fakeRasterizer) Available() error { return nil }

// fakeEngine returns "page N" for page N. delay lets a test make early
// pages finish last.
type fakeEngine struct {
	delay  func(page int) time.Duration
	failOn int

	mu        sync.Mutex
	languages []string
	inFlight  int
	maxFlight int
}

func (f *fakeEngine) Recognize(ctx context.Context, image PageImage, languages []string) (*OCRPage, error) {
	f.mu.Lock()
	f.languages = languages
	f.inFlight++
	if f.inFlight > f.maxFlight {
		f.maxFlight = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.delay != nil {
		select {
		case <-time.After(f.delay(image.PageNumber)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if image.PageNumber == f.failOn {
		return nil, errors.New("engine crashed")
	}
	return &OCRPage{
		PageNumber: image.PageNumber,
		Text:       fmt.Sprintf("page %d", image.PageNumber),
		Confidence: 0.8,
	}, nil
}

func (f *fakeEngine) Available([]string) error { return nil }

// recorder collects progress events.
type recorder struct {
	mu     sync.Mutex
	events []Progress
}

func (r *recorder) OnProgress(p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, p)
}

func (r *recorder) phases() []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Phase, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Phase)
	}
	return out
}

func (r *recorder) count(phase Phase) int {
	n := 0
	for _, p := range r.phases() {
		if p == phase {
			n++
		}
	}
	return n
}
