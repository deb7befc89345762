package processor

import (
	"os"
	"strings"
	"unicode/utf8"

	"github.com/adverant/nexus/docconvert-worker/internal/docx"
	perrors "github.com/adverant/nexus/docconvert-worker/internal/errors"
	"github.com/adverant/nexus/docconvert-worker/internal/logging"
)

const (
	highlightSuffix = "_highlighted"
	editedSuffix    = "_edited"
)

// SearchResult is one body paragraph containing the keyword.
type SearchResult struct {
	ParagraphIndex int    `json:"paragraphIndex"`
	Text           string `json:"text"`
}

// MutationOutcome is where a mutated document was written and, for
// highlight and replace, how many runs were changed.
type MutationOutcome struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// DocumentInfo summarizes a document body.
type DocumentInfo struct {
	Paragraphs int `json:"paragraphs"`
	Tables     int `json:"tables"`
	Characters int `json:"characters"`
}

// Mutator edits .docx files. Text matching and replacement happen within
// a single run: a keyword split across formatting runs is not matched.
type Mutator struct {
	logger *logging.Logger
}

func NewMutator() *Mutator {
	return &Mutator{logger: logging.NewLogger("mutator")}
}

// Search returns the body paragraphs whose text contains keyword,
// case-insensitively, in document order.
func (m *Mutator) Search(docPath, keyword string) ([]SearchResult, error) {
	doc, err := openDocument(docPath)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(keyword)
	results := []SearchResult{}
	for i, para := range doc.Paragraphs() {
		text := para.Text()
		if strings.Contains(strings.ToLower(text), needle) {
			results = append(results, SearchResult{ParagraphIndex: i, Text: text})
		}
	}

	m.logger.Debug("Search complete", "path", docPath, "keyword", keyword, "matches", len(results))
	return results, nil
}

// Highlight marks yellow every run that contains keyword inside a body
// paragraph that contains it. Text is left untouched. The result goes to
// outputPath, or to "<name>_highlighted.docx" next to the input.
func (m *Mutator) Highlight(docPath, keyword, outputPath string) (*MutationOutcome, error) {
	doc, err := openDocument(docPath)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(keyword)
	count := 0
	for _, para := range doc.Paragraphs() {
		if !strings.Contains(strings.ToLower(para.Text()), needle) {
			continue
		}
		for _, run := range para.Runs() {
			if strings.Contains(strings.ToLower(run.Text()), needle) {
				run.SetHighlight(docx.HighlightYellow)
				count++
			}
		}
	}

	if outputPath == "" {
		outputPath = derivedPath(docPath, highlightSuffix)
	}
	if err := saveDocument(doc, outputPath); err != nil {
		return nil, err
	}

	m.logger.Info("Keyword highlighted", "path", docPath, "keyword", keyword, "runs", count, "output", outputPath)
	return &MutationOutcome{Path: outputPath, Count: count}, nil
}

// Replace substitutes newText for every case-sensitive occurrence of
// oldText lying within one run, in body paragraphs and in every table
// cell. Count is the number of occurrences replaced. The result goes to
// outputPath, or to "<name>_edited.docx" next to the input.
func (m *Mutator) Replace(docPath, oldText, newText, outputPath string) (*MutationOutcome, error) {
	doc, err := openDocument(docPath)
	if err != nil {
		return nil, err
	}

	count := 0
	if oldText != "" {
		count += replaceInParagraphs(doc.Paragraphs(), oldText, newText)
		for _, table := range doc.Tables() {
			for _, row := range table.Rows() {
				for _, cell := range row.Cells() {
					if strings.Contains(cell.Text(), oldText) {
						count += replaceInParagraphs(cell.Paragraphs(), oldText, newText)
					}
				}
			}
		}
	}

	if outputPath == "" {
		outputPath = derivedPath(docPath, editedSuffix)
	}
	if err := saveDocument(doc, outputPath); err != nil {
		return nil, err
	}

	m.logger.Info("Text replaced", "path", docPath, "count", count, "output", outputPath)
	return &MutationOutcome{Path: outputPath, Count: count}, nil
}

func replaceInParagraphs(paras []*docx.Paragraph, oldText, newText string) int {
	count := 0
	for _, para := range paras {
		if !strings.Contains(para.Text(), oldText) {
			continue
		}
		for _, run := range para.Runs() {
			text := run.Text()
			n := strings.Count(text, oldText)
			if n == 0 {
				continue
			}
			run.SetText(strings.ReplaceAll(text, oldText, newText))
			count += n
		}
	}
	return count
}

// Append adds one paragraph holding text at the end of the body. Without
// an outputPath the input is rewritten in place.
func (m *Mutator) Append(docPath, text, outputPath string) (*MutationOutcome, error) {
	doc, err := openDocument(docPath)
	if err != nil {
		return nil, err
	}

	doc.AddParagraph(text)

	if outputPath == "" {
		outputPath = docPath
	}
	if err := saveDocument(doc, outputPath); err != nil {
		return nil, err
	}

	m.logger.Info("Paragraph appended", "path", docPath, "output", outputPath)
	return &MutationOutcome{Path: outputPath, Count: 1}, nil
}

// Info counts body paragraphs, body tables and the characters of all body
// paragraph text.
func (m *Mutator) Info(docPath string) (*DocumentInfo, error) {
	doc, err := openDocument(docPath)
	if err != nil {
		return nil, err
	}

	paras := doc.Paragraphs()
	info := &DocumentInfo{
		Paragraphs: len(paras),
		Tables:     len(doc.Tables()),
	}
	for _, para := range paras {
		info.Characters += utf8.RuneCountInString(para.Text())
	}
	return info, nil
}

func openDocument(docPath string) (*docx.Document, error) {
	if _, err := os.Stat(docPath); err != nil {
		if os.IsNotExist(err) {
			return nil, perrors.NewNotFoundError(docPath, err)
		}
		return nil, perrors.NewIOFailureError(docPath, err)
	}
	doc, err := docx.Open(docPath)
	if err != nil {
		return nil, perrors.NewUnsupportedOrCorruptError(docPath, err)
	}
	return doc, nil
}

func saveDocument(doc *docx.Document, outputPath string) error {
	if err := doc.Save(outputPath); err != nil {
		return perrors.NewIOFailureError(outputPath, err)
	}
	return nil
}

// derivedPath inserts suffix before the last ".docx" in path, or appends
// suffix plus ".docx" when there is none.
func derivedPath(path, suffix string) string {
	i := strings.LastIndex(path, ".docx")
	if i < 0 {
		return path + suffix + ".docx"
	}
	return path[:i] + suffix + path[i:]
}
