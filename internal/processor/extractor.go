package processor

import (
	"context"
	"fmt"
	"strings"

	"github.com/adverant/nexus/docconvert-worker/internal/docx"
)

// TextLayerExtractor is the direct extractor: it reads each page's text
// layer and writes it as paragraphs, one page per page of output.
type TextLayerExtractor struct {
	layer TextLayer
}

// NewTextLayerExtractor returns an extractor reading through layer (the
// default text layer when nil).
func NewTextLayerExtractor(layer TextLayer) *TextLayerExtractor {
	if layer == nil {
		layer = NewTextLayer()
	}
	return &TextLayerExtractor{layer: layer}
}

// Extract converts pdfPath into a .docx at outputPath. Blank-line separated
// blocks become paragraphs and every page after the first starts with a
// page break. The output is written only if every page was read.
func (e *TextLayerExtractor) Extract(ctx context.Context, pdfPath, outputPath string) error {
	pages, err := e.layer.Open(pdfPath)
	if err != nil {
		return err
	}
	defer pages.Close()

	doc := docx.New()
	for i := 1; i <= pages.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		text, err := pages.PageText(i)
		if err != nil {
			return fmt.Errorf("extract page %d: %w", i, err)
		}

		blocks := splitBlocks(text)
		if i > 1 {
			first := ""
			if len(blocks) > 0 {
				first, blocks = blocks[0], blocks[1:]
			}
			doc.AddPageBreakParagraph(first)
		}
		for _, block := range blocks {
			doc.AddParagraph(block)
		}
	}

	if err := doc.Save(outputPath); err != nil {
		return fmt.Errorf("save %s: %w", outputPath, err)
	}
	return nil
}

// splitBlocks splits page text on blank lines, trimming each block.
func splitBlocks(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var blocks []string
	var current []string
	flush := func() {
		if len(current) == 0 {
			return
		}
		blocks = append(blocks, strings.Join(current, "\n"))
		current = current[:0]
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()
	return blocks
}
