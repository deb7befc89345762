/**
 * Tesseract OCR - page recognition for scanned PDFs
 *
 * Runs one combined-language pass per rasterized page through libtesseract.
 */

package processor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/otiai10/gosseract/v2"
)

// TesseractOCR handles OCR using Tesseract
type TesseractOCR struct {
	tessdataPrefix string
}

// TesseractConfig holds Tesseract configuration
type TesseractConfig struct {
	// TessdataPrefix overrides the directory holding *.traineddata files.
	TessdataPrefix string
}

// NewTesseractOCR creates a new Tesseract OCR instance
func NewTesseractOCR(cfg *TesseractConfig) *TesseractOCR {
	if cfg == nil {
		cfg = &TesseractConfig{}
	}
	return &TesseractOCR{tessdataPrefix: cfg.TessdataPrefix}
}

// Available reports whether every requested language has trained data.
func (t *TesseractOCR) Available(languages []string) error {
	installed, err := t.installedLanguages()
	if err != nil {
		return fmt.Errorf("list tesseract languages: %w", err)
	}

	have := make(map[string]bool, len(installed))
	for _, lang := range installed {
		have[lang] = true
	}
	var missing []string
	for _, lang := range languages {
		if !have[lang] {
			missing = append(missing, lang)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("tesseract language data missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (t *TesseractOCR) installedLanguages() ([]string, error) {
	if t.tessdataPrefix == "" {
		return gosseract.GetAvailableLanguages()
	}
	files, err := filepath.Glob(filepath.Join(t.tessdataPrefix, "*.traineddata"))
	if err != nil {
		return nil, err
	}
	langs := make([]string, 0, len(files))
	for _, f := range files {
		langs = append(langs, strings.TrimSuffix(filepath.Base(f), ".traineddata"))
	}
	return langs, nil
}

// Recognize performs OCR on one page image using all languages in a single
// pass. Each call owns its own Tesseract client, so pages can be
// recognized concurrently.
func (t *TesseractOCR) Recognize(ctx context.Context, image PageImage, languages []string) (*OCRPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	startTime := time.Now()

	// Create Tesseract client
	client := gosseract.NewClient()
	defer client.Close()

	if t.tessdataPrefix != "" {
		if err := client.SetTessdataPrefix(t.tessdataPrefix); err != nil {
			return nil, fmt.Errorf("failed to set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(languages...); err != nil {
		return nil, fmt.Errorf("failed to set languages %v: %w", languages, err)
	}
	if err := client.SetImage(image.Path); err != nil {
		return nil, fmt.Errorf("failed to set image for page %d: %w", image.PageNumber, err)
	}

	// Extract text
	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed on page %d: %w", image.PageNumber, err)
	}

	return &OCRPage{
		PageNumber: image.PageNumber,
		Text:       text,
		Confidence: calculateTesseractConfidence(text),
		Duration:   time.Since(startTime),
	}, nil
}

// calculateTesseractConfidence estimates confidence based on text quality
func calculateTesseractConfidence(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}

	confidence := 0.5 // Base confidence

	runes := []rune(text)
	if len(runes) > 1000 {
		confidence += 0.1
	}
	if len(runes) > 5000 {
		confidence += 0.1
	}

	// Check for coherent words (simple heuristic)
	if len(strings.Fields(text)) > 100 {
		confidence += 0.1
	}

	// Letters and Han ideographs versus OCR noise
	letterCount := 0
	for _, r := range runes {
		if unicode.IsLetter(r) || unicode.Is(unicode.Han, r) {
			letterCount++
		}
	}
	ratio := float64(letterCount) / float64(len(runes))
	if ratio > 0.5 && ratio < 0.95 {
		confidence += 0.1
	}

	// Cap at reasonable maximum for Tesseract
	if confidence > 0.85 {
		confidence = 0.85
	}

	return confidence
}
