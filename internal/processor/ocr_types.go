/**
 * OCR Types - Shared data structures for conversion
 *
 * Common types used by the detector, the direct extractor and the
 * rasterize-then-recognize OCR path.
 */

package processor

import (
	"time"
)

// RasterDPI is the fixed resolution pages are rendered at before OCR.
const RasterDPI = 300

// DefaultLanguages is the combined language pack requested for every OCR
// pass: Simplified Chinese and English recognized together.
var DefaultLanguages = []string{"chi_sim", "eng"}

// Strategy is the conversion method chosen for one PDF.
type Strategy string

const (
	StrategyDirectExtract Strategy = "direct_extract"
	StrategyOCRRecognize  Strategy = "ocr_recognize"
)

// StrategyOverride is the caller's request: detect automatically or force
// one strategy.
type StrategyOverride string

const (
	OverrideAuto        StrategyOverride = "auto"
	OverrideForceDirect StrategyOverride = "force-direct"
	OverrideForceOCR    StrategyOverride = "force-ocr"
)

// ParseStrategyOverride maps user input to an override. The empty string
// means auto.
func ParseStrategyOverride(s string) (StrategyOverride, bool) {
	switch StrategyOverride(s) {
	case "", OverrideAuto:
		return OverrideAuto, true
	case OverrideForceDirect:
		return OverrideForceDirect, true
	case OverrideForceOCR:
		return OverrideForceOCR, true
	}
	return "", false
}

// PageImage is one rasterized PDF page on disk. It lives only for the
// duration of a single conversion.
type PageImage struct {
	PageNumber int // 1-based
	Path       string
	DPI        int
}

// OCRPage represents the recognized text of a single page
type OCRPage struct {
	PageNumber int
	Text       string
	Confidence float64
	Duration   time.Duration
}

// ConversionResult describes a finished conversion.
type ConversionResult struct {
	PDFPath    string
	OutputPath string
	Strategy   Strategy
	PageCount  int
	// Degraded is set when OCR was wanted but unavailable and direct
	// extraction ran instead.
	Degraded   bool
	Confidence float64
	Duration   time.Duration
}
