package processor

import (
	"github.com/adverant/nexus/docconvert-worker/internal/config"
	"github.com/adverant/nexus/docconvert-worker/internal/logging"
)

// NewConverterFromConfig wires the default collaborators and probes the OCR
// tooling once. A host without pdftoppm or the tesseract language data
// still gets a working converter; OCR requests then degrade to direct
// extraction.
func NewConverterFromConfig(cfg *config.Config, observer Observer) *Converter {
	logger := logging.NewLogger("setup")

	languages := cfg.OCRLanguages
	if len(languages) == 0 {
		languages = DefaultLanguages
	}

	ocr, err := ProbeOCR(
		NewPopplerRasterizer(cfg.PdftoppmPath),
		NewTesseractOCR(&TesseractConfig{TessdataPrefix: cfg.TessdataPrefix}),
		languages,
	)
	if err != nil {
		logger.Warn("OCR unavailable, scanned PDFs will fall back to direct extraction", "error", err)
	} else {
		logger.Info("OCR available", "languages", languages, "workers", cfg.OCRWorkers)
	}

	layer := NewTextLayer()
	return NewConverter(ConverterConfig{
		Inspector:  NewPDFInspector(),
		Detector:   NewDetector(layer),
		Extractor:  NewTextLayerExtractor(layer),
		OCR:        ocr,
		Languages:  languages,
		OCRWorkers: cfg.OCRWorkers,
		TempDir:    cfg.TempDir,
		Observer:   observer,
	})
}
