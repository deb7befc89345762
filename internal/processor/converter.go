/**
 * Conversion Orchestrator
 *
 * Picks a strategy for each PDF and produces the .docx:
 *   direct_extract - the embedded text layer is written out as-is
 *   ocr_recognize  - pages are rasterized at 300 DPI, recognized in a
 *                    bounded pool and assembled in page order
 */

package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/adverant/nexus/docconvert-worker/internal/docx"
	perrors "github.com/adverant/nexus/docconvert-worker/internal/errors"
	"github.com/adverant/nexus/docconvert-worker/internal/logging"
)

// DefaultOCRWorkers bounds concurrent page recognition when no value is
// configured.
const DefaultOCRWorkers = 4

// Phase names a step of a conversion reported to an Observer.
type Phase string

const (
	PhaseDetect    Phase = "detect"
	PhaseDegrade   Phase = "degrade"
	PhaseExtract   Phase = "extract"
	PhaseRasterize Phase = "rasterize"
	PhaseRecognize Phase = "recognize"
	PhaseAssemble  Phase = "assemble"
	PhaseDone      Phase = "done"
)

// Progress is one phase-boundary notification. Page and Total are set for
// per-page phases ("page 2 of 5 recognized") and zero otherwise.
type Progress struct {
	Phase Phase
	Page  int
	Total int
}

// Observer receives progress notifications. Calls are serialized.
type Observer interface {
	OnProgress(p Progress)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(p Progress)

func (f ObserverFunc) OnProgress(p Progress) { f(p) }

// TextDetector reports whether a PDF carries enough extractable text.
type TextDetector interface {
	HasText(pdfPath string) bool
}

// ConvertRequest describes one conversion. OutputPath defaults to the input
// path with its extension replaced by .docx.
type ConvertRequest struct {
	PDFPath    string
	OutputPath string
	Override   StrategyOverride
}

// ConverterConfig wires a Converter. OCR may be nil when the host has no
// OCR tooling; such conversions degrade to direct extraction.
type ConverterConfig struct {
	Inspector  PDFInspector
	Detector   TextDetector
	Extractor  DirectExtractor
	OCR        *OCRCapability
	Languages  []string
	OCRWorkers int
	TempDir    string
	Observer   Observer
}

// Converter is the conversion orchestrator. It holds no per-request state
// and is safe for concurrent use.
type Converter struct {
	inspector PDFInspector
	detector  TextDetector
	extractor DirectExtractor
	ocr       *OCRCapability
	languages []string
	workers   int
	tempDir   string
	observer  Observer
	logger    *logging.Logger

	observerMu sync.Mutex
}

// NewConverter fills unset collaborators with the default implementations.
func NewConverter(cfg ConverterConfig) *Converter {
	c := &Converter{
		inspector: cfg.Inspector,
		detector:  cfg.Detector,
		extractor: cfg.Extractor,
		ocr:       cfg.OCR,
		languages: cfg.Languages,
		workers:   cfg.OCRWorkers,
		tempDir:   cfg.TempDir,
		observer:  cfg.Observer,
		logger:    logging.NewLogger("converter"),
	}
	if c.inspector == nil {
		c.inspector = NewPDFInspector()
	}
	if c.detector == nil {
		c.detector = NewDetector(nil)
	}
	if c.extractor == nil {
		c.extractor = NewTextLayerExtractor(nil)
	}
	if len(c.languages) == 0 {
		c.languages = DefaultLanguages
	}
	if c.workers <= 0 {
		c.workers = DefaultOCRWorkers
	}
	return c
}

// OCRAvailable reports whether the OCR path can run.
func (c *Converter) OCRAvailable() bool {
	return c.ocr != nil
}

// DefaultOutputPath replaces the extension of pdfPath with .docx.
func DefaultOutputPath(pdfPath string) string {
	return strings.TrimSuffix(pdfPath, filepath.Ext(pdfPath)) + ".docx"
}

// Convert produces a .docx from req.PDFPath. The output file is created or
// replaced only when the conversion succeeds.
func (c *Converter) Convert(ctx context.Context, req ConvertRequest) (*ConversionResult, error) {
	startTime := time.Now()

	override, ok := ParseStrategyOverride(string(req.Override))
	if !ok {
		return nil, perrors.NewInvalidJobError("", fmt.Sprintf("unknown strategy %q", req.Override))
	}

	if _, err := os.Stat(req.PDFPath); err != nil {
		if os.IsNotExist(err) {
			return nil, perrors.NewNotFoundError(req.PDFPath, err)
		}
		return nil, perrors.NewIOFailureError(req.PDFPath, err)
	}

	outputPath := req.OutputPath
	if outputPath == "" {
		outputPath = DefaultOutputPath(req.PDFPath)
	}

	pageCount, err := c.inspector.PageCount(req.PDFPath)
	if err != nil {
		return nil, perrors.NewUnsupportedOrCorruptError(req.PDFPath, err)
	}

	log := c.logger.With("path", req.PDFPath)
	strategy, degraded := c.resolveStrategy(log, req.PDFPath, override)
	log.Info("Strategy selected",
		"override", string(override),
		"strategy", string(strategy),
		"pages", pageCount,
		"degraded", degraded)

	result := &ConversionResult{
		PDFPath:    req.PDFPath,
		OutputPath: outputPath,
		Strategy:   strategy,
		PageCount:  pageCount,
		Degraded:   degraded,
	}

	switch strategy {
	case StrategyOCRRecognize:
		confidence, err := c.convertOCR(ctx, log, req.PDFPath, outputPath)
		if err != nil {
			return nil, perrors.NewConversionFailedError(req.PDFPath, string(strategy), err)
		}
		result.Confidence = confidence
	default:
		c.notify(Progress{Phase: PhaseExtract})
		if err := c.extractor.Extract(ctx, req.PDFPath, outputPath); err != nil {
			return nil, perrors.NewConversionFailedError(req.PDFPath, string(strategy), err)
		}
	}

	result.Duration = time.Since(startTime)
	c.notify(Progress{Phase: PhaseDone})
	log.Info("Conversion complete",
		"output", outputPath,
		"strategy", string(strategy),
		"duration", result.Duration.String())
	return result, nil
}

// resolveStrategy applies the override, running detection only for auto,
// and degrades OCR to direct extraction when OCR is unavailable.
func (c *Converter) resolveStrategy(log *logging.Logger, pdfPath string, override StrategyOverride) (Strategy, bool) {
	var strategy Strategy
	switch override {
	case OverrideForceDirect:
		strategy = StrategyDirectExtract
	case OverrideForceOCR:
		strategy = StrategyOCRRecognize
	default:
		c.notify(Progress{Phase: PhaseDetect})
		if c.detector.HasText(pdfPath) {
			strategy = StrategyDirectExtract
		} else {
			strategy = StrategyOCRRecognize
		}
	}

	if strategy == StrategyOCRRecognize && c.ocr == nil {
		log.Warn("OCR unavailable, falling back to direct extraction")
		c.notify(Progress{Phase: PhaseDegrade})
		return StrategyDirectExtract, true
	}
	return strategy, false
}

// convertOCR runs the three OCR phases and returns the mean page
// confidence.
func (c *Converter) convertOCR(ctx context.Context, log *logging.Logger, pdfPath, outputPath string) (float64, error) {
	workDir, err := os.MkdirTemp(c.tempDir, "ocr-*")
	if err != nil {
		return 0, perrors.NewIOFailureError(c.tempDir, err)
	}
	defer os.RemoveAll(workDir)

	// Phase 1: rasterize
	images, err := c.ocr.Rasterizer.Rasterize(ctx, pdfPath, RasterDPI, workDir)
	if err != nil {
		return 0, fmt.Errorf("rasterize: %w", err)
	}
	if len(images) == 0 {
		return 0, fmt.Errorf("rasterize: no pages produced")
	}
	for i := range images {
		c.notify(Progress{Phase: PhaseRasterize, Page: i + 1, Total: len(images)})
	}

	// Phase 2: recognize
	pages, err := c.recognizePages(ctx, log, images)
	if err != nil {
		return 0, err
	}

	// Phase 3: assemble
	c.notify(Progress{Phase: PhaseAssemble, Total: len(pages)})
	doc := docx.New()
	var confidence float64
	for i, page := range pages {
		if i == 0 {
			doc.AddParagraph(page.Text)
		} else {
			doc.AddPageBreakParagraph(page.Text)
		}
		confidence += page.Confidence
	}

	if err := doc.Save(outputPath); err != nil {
		return 0, perrors.NewIOFailureError(outputPath, err)
	}
	return confidence / float64(len(pages)), nil
}

// recognizePages runs OCR on every image with at most c.workers in flight.
// Results land in a slice indexed by position so completion order never
// affects output order. Cancellation is checked before each page starts.
func (c *Converter) recognizePages(ctx context.Context, log *logging.Logger, images []PageImage) ([]*OCRPage, error) {
	pages := make([]*OCRPage, len(images))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for i, img := range images {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			page, err := c.ocr.Engine.Recognize(gctx, img, c.languages)
			if err != nil {
				return fmt.Errorf("recognize page %d: %w", img.PageNumber, err)
			}
			if page == nil {
				page = &OCRPage{PageNumber: img.PageNumber}
			}
			pages[i] = page
			log.Debug("Page recognized",
				"page", img.PageNumber,
				"chars", len(page.Text),
				"confidence", page.Confidence)
			c.notify(Progress{Phase: PhaseRecognize, Page: img.PageNumber, Total: len(images)})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return pages, nil
}

func (c *Converter) notify(p Progress) {
	if c.observer == nil {
		return
	}
	c.observerMu.Lock()
	defer c.observerMu.Unlock()
	c.observer.OnProgress(p)
}
