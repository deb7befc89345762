package processor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/docconvert-worker/internal/docx"
	perrors "github.com/adverant/nexus/docconvert-worker/internal/errors"
)

func TestMutatorSearch(t *testing.T) {
	dir := t.TempDir()
	path := writeDocx(t, dir, "a.docx", "Hello World", "nothing here", "the world is round")
	m := NewMutator()

	results, err := m.Search(path, "WORLD")
	require.NoError(t, err)
	assert.Equal(t, []SearchResult{
		{ParagraphIndex: 0, Text: "Hello World"},
		{ParagraphIndex: 2, Text: "the world is round"},
	}, results)

	again, err := m.Search(path, "WORLD")
	require.NoError(t, err)
	assert.Equal(t, results, again)

	none, err := m.Search(path, "absent")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestMutatorHighlight(t *testing.T) {
	dir := t.TempDir()
	path := writeDocx(t, dir, "a.docx", "find the Needle", "no match", "needle again")
	m := NewMutator()

	res, err := m.Highlight(path, "needle", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a_highlighted.docx"), res.Path)
	assert.Equal(t, 2, res.Count)

	before := openDocx(t, path)
	after := openDocx(t, res.Path)
	assert.Equal(t, paragraphTexts(before), paragraphTexts(after), "text is unchanged")

	paras := after.Paragraphs()
	assert.Equal(t, docx.HighlightYellow, paras[0].Runs()[0].Highlight())
	assert.Equal(t, "", paras[1].Runs()[0].Highlight())
	assert.Equal(t, docx.HighlightYellow, paras[2].Runs()[0].Highlight())

	// the input is not modified
	assert.Equal(t, "", before.Paragraphs()[0].Runs()[0].Highlight())
}

func TestMutatorHighlightOnlyMatchingRuns(t *testing.T) {
	dir := t.TempDir()
	doc := docx.New()
	p := doc.AddParagraph("")
	p.AddRun("plain ")
	p.AddRun("keyword here")
	path := filepath.Join(dir, "runs.docx")
	require.NoError(t, doc.Save(path))

	res, err := NewMutator().Highlight(path, "KEYWORD", filepath.Join(dir, "out.docx"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)

	runs := openDocx(t, res.Path).Paragraphs()[0].Runs()
	require.Len(t, runs, 2)
	assert.Equal(t, "", runs[0].Highlight())
	assert.Equal(t, docx.HighlightYellow, runs[1].Highlight())
}

func TestMutatorReplace(t *testing.T) {
	dir := t.TempDir()
	path := writeDocx(t, dir, "a.docx", "foo baz foo", "keep")
	m := NewMutator()

	res, err := m.Replace(path, "foo", "bar", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a_edited.docx"), res.Path)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, []string{"bar baz bar", "keep"}, paragraphTexts(openDocx(t, res.Path)))

	// replacing again finds nothing
	second, err := m.Replace(res.Path, "foo", "bar", filepath.Join(dir, "second.docx"))
	require.NoError(t, err)
	assert.Equal(t, 0, second.Count)
	assert.Equal(t, []string{"bar baz bar", "keep"}, paragraphTexts(openDocx(t, second.Path)))
}

func TestMutatorReplaceIsCaseSensitive(t *testing.T) {
	dir := t.TempDir()
	path := writeDocx(t, dir, "a.docx", "Foo foo FOO")

	res, err := NewMutator().Replace(path, "foo", "x", "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, []string{"Foo x FOO"}, paragraphTexts(openDocx(t, res.Path)))
}

func TestMutatorReplaceInTables(t *testing.T) {
	dir := t.TempDir()
	doc := docx.New()
	doc.AddParagraph("old body")
	tbl := doc.AddTable(2, 2)
	tbl.Cell(0, 0).SetText("old cell")
	tbl.Cell(1, 1).SetText("untouched")
	path := filepath.Join(dir, "t.docx")
	require.NoError(t, doc.Save(path))

	res, err := NewMutator().Replace(path, "old", "new", "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)

	out := openDocx(t, res.Path)
	assert.Equal(t, []string{"new body"}, paragraphTexts(out))
	tables := out.Tables()
	require.Len(t, tables, 1)
	assert.Equal(t, "new cell", tables[0].Cell(0, 0).Text())
	assert.Equal(t, "untouched", tables[0].Cell(1, 1).Text())
}

func TestMutatorReplaceEmptyOldText(t *testing.T) {
	dir := t.TempDir()
	path := writeDocx(t, dir, "a.docx", "text")

	res, err := NewMutator().Replace(path, "", "x", "")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count)
	assert.Equal(t, []string{"text"}, paragraphTexts(openDocx(t, res.Path)))
}

func TestMutatorAppend(t *testing.T) {
	dir := t.TempDir()
	path := writeDocx(t, dir, "a.docx", "first")
	m := NewMutator()

	res, err := m.Append(path, "second", "")
	require.NoError(t, err)
	assert.Equal(t, path, res.Path, "append rewrites the input by default")
	assert.Equal(t, []string{"first", "second"}, paragraphTexts(openDocx(t, path)))

	other := filepath.Join(dir, "copy.docx")
	_, err = m.Append(path, "third", other)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, paragraphTexts(openDocx(t, path)))
	assert.Equal(t, []string{"first", "second", "third"}, paragraphTexts(openDocx(t, other)))
}

func TestMutatorInfo(t *testing.T) {
	dir := t.TempDir()
	doc := docx.New()
	doc.AddParagraph("héllo")
	doc.AddParagraph("世界")
	doc.AddTable(1, 1)
	path := filepath.Join(dir, "i.docx")
	require.NoError(t, doc.Save(path))

	info, err := NewMutator().Info(path)
	require.NoError(t, err)
	assert.Equal(t, &DocumentInfo{Paragraphs: 2, Tables: 1, Characters: 7}, info)
}

func TestMutatorErrors(t *testing.T) {
	dir := t.TempDir()
	m := NewMutator()

	_, err := m.Search(filepath.Join(dir, "missing.docx"), "x")
	assert.True(t, perrors.Is(err, perrors.ErrorNotFound))

	bogus := filepath.Join(dir, "bogus.docx")
	require.NoError(t, os.WriteFile(bogus, []byte("not a zip"), 0o600))
	_, err = m.Info(bogus)
	assert.True(t, perrors.Is(err, perrors.ErrorUnsupportedOrCorrupt))

	good := writeDocx(t, dir, "good.docx", "foo")
	_, err = m.Replace(good, "foo", "bar", filepath.Join(dir, "no-such-dir", "out.docx"))
	assert.True(t, perrors.Is(err, perrors.ErrorIOFailure))
}

func TestMutatorMissingInputCreatesNothing(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.docx")
	m := NewMutator()

	tests := []struct {
		name string
		run  func() error
	}{
		{"search", func() error { _, err := m.Search(missing, "x"); return err }},
		{"highlight", func() error { _, err := m.Highlight(missing, "x", ""); return err }},
		{"replace", func() error { _, err := m.Replace(missing, "a", "b", ""); return err }},
		{"append", func() error { _, err := m.Append(missing, "text", ""); return err }},
		{"info", func() error { _, err := m.Info(missing); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.True(t, perrors.Is(err, perrors.ErrorNotFound), "got %v", err)

			assert.NoFileExists(t, missing)
			assert.NoFileExists(t, derivedPath(missing, highlightSuffix))
			assert.NoFileExists(t, derivedPath(missing, editedSuffix))
		})
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDerivedPath(t *testing.T) {
	assert.Equal(t, "/a/report_edited.docx", derivedPath("/a/report.docx", editedSuffix))
	assert.Equal(t, "/a/my.docx.files/r_highlighted.docx", derivedPath("/a/my.docx.files/r.docx", highlightSuffix))
	assert.Equal(t, "/a/report_edited.docx", derivedPath("/a/report", editedSuffix))
}
