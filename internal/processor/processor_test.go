package processor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/docconvert-worker/internal/clients"
	perrors "github.com/adverant/nexus/docconvert-worker/internal/errors"
	"github.com/adverant/nexus/docconvert-worker/internal/storage"
)

const testJobID = "0d8b1c9e-4a55-4c1f-9a43-2f7d0c6b8e11"

type fakeStore struct {
	mu      sync.Mutex
	updates []*storage.JobUpdate
	err     error
}

func (f *fakeStore) UpdateJobStatus(_ context.Context, update *storage.JobUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, update)
	return f.err
}

// newTestProcessor builds a processor whose converter reads every PDF as
// the given pages of text.
func newTestProcessor(t *testing.T, store JobStatusStore, pages ...string) (*DocumentProcessor, string) {
	t.Helper()
	dir := t.TempDir()
	layer := pagesLayer{pages: &fakePages{pages: pages}}
	converter := NewConverter(ConverterConfig{
		Inspector: fakeInspector{pages: len(pages)},
		Detector:  &fakeDetector{hasText: true},
		Extractor: NewTextLayerExtractor(layer),
		TempDir:   dir,
	})
	proc, err := NewDocumentProcessor(&ProcessorConfig{
		Converter:   converter,
		Store:       store,
		TempDir:     dir,
		MaxFileSize: 1 << 20,
	})
	require.NoError(t, err)
	return proc, dir
}

func TestNewDocumentProcessorValidation(t *testing.T) {
	_, err := NewDocumentProcessor(nil)
	assert.Error(t, err)

	_, err = NewDocumentProcessor(&ProcessorConfig{})
	assert.Error(t, err)
}

func TestParseJobType(t *testing.T) {
	for _, s := range []string{"convert", "search", "highlight", "replace", "append", "info"} {
		jt, ok := ParseJobType(s)
		assert.True(t, ok, s)
		assert.Equal(t, JobType(s), jt)
	}
	_, ok := ParseJobType("print")
	assert.False(t, ok)
}

func TestProcessJobRejectsInvalidRequests(t *testing.T) {
	proc, _ := newTestProcessor(t, nil, "text")

	tests := []struct {
		name string
		req  *JobRequest
	}{
		{"nil", nil},
		{"no id", &JobRequest{Type: JobInfo, DocPath: "/a.docx"}},
		{"unknown type", &JobRequest{JobID: testJobID, Type: "print"}},
		{"convert without source", &JobRequest{JobID: testJobID, Type: JobConvert}},
		{"url without output", &JobRequest{JobID: testJobID, Type: JobConvert, PDFURL: "http://x/a.pdf"}},
		{"bad strategy", &JobRequest{JobID: testJobID, Type: JobConvert, PDFPath: "/a.pdf", Strategy: "fast"}},
		{"search without doc", &JobRequest{JobID: testJobID, Type: JobSearch, Keyword: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := proc.ProcessJob(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, perrors.Is(err, perrors.ErrorInvalidJob))
		})
	}
}

func TestProcessJobTagsErrorsWithJobID(t *testing.T) {
	proc, dir := newTestProcessor(t, nil, "text")

	_, err := proc.ProcessJob(context.Background(), &JobRequest{
		JobID:   testJobID,
		Type:    JobInfo,
		DocPath: filepath.Join(dir, "missing.docx"),
	})
	require.Error(t, err)

	var pe *perrors.ProcessingError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, perrors.ErrorNotFound, pe.Code)
	assert.Equal(t, testJobID, pe.JobID)
}

func TestProcessConvertLocalPath(t *testing.T) {
	proc, dir := newTestProcessor(t, nil, "hello from the text layer")
	in := writeStub(t, dir, "in.pdf")

	result, err := proc.ProcessJob(context.Background(), &JobRequest{JobID: testJobID, Type: JobConvert, PDFPath: in})
	require.NoError(t, err)

	assert.Equal(t, testJobID, result.JobID)
	assert.Equal(t, JobConvert, result.Type)
	assert.Equal(t, filepath.Join(dir, "in.docx"), result.OutputPath)
	assert.Equal(t, StrategyDirectExtract, result.Strategy)
	assert.Equal(t, 1, result.PageCount)
	assert.Equal(t, []string{"hello from the text layer"}, paragraphTexts(openDocx(t, result.OutputPath)))
}

func TestProcessConvertInlineData(t *testing.T) {
	proc, dir := newTestProcessor(t, nil, "inline")
	out := filepath.Join(dir, "inline.docx")

	result, err := proc.ProcessJob(context.Background(), &JobRequest{
		JobID:      testJobID,
		Type:       JobConvert,
		PDFData:    []byte("%PDF-1.4\n%%EOF\n"),
		OutputPath: out,
	})
	require.NoError(t, err)
	assert.Equal(t, out, result.OutputPath)
	assert.FileExists(t, out)

	leftovers, err := filepath.Glob(filepath.Join(dir, "job-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "the staged source is removed")
}

func TestProcessConvertFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("%PDF-1.4\n%%EOF\n"))
	}))
	defer srv.Close()

	proc, dir := newTestProcessor(t, nil, "downloaded")
	out := filepath.Join(dir, "remote.docx")

	result, err := proc.ProcessJob(context.Background(), &JobRequest{
		JobID:      testJobID,
		Type:       JobConvert,
		PDFURL:     srv.URL + "/doc.pdf",
		OutputPath: out,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"downloaded"}, paragraphTexts(openDocx(t, result.OutputPath)))
}

func TestProcessMutationJobs(t *testing.T) {
	proc, dir := newTestProcessor(t, nil, "unused")
	doc := writeDocx(t, dir, "d.docx", "alpha beta", "beta gamma")
	ctx := context.Background()

	search, err := proc.ProcessJob(ctx, &JobRequest{JobID: testJobID, Type: JobSearch, DocPath: doc, Keyword: "BETA"})
	require.NoError(t, err)
	assert.Equal(t, 2, search.Count)
	assert.Len(t, search.Matches, 2)

	highlight, err := proc.ProcessJob(ctx, &JobRequest{JobID: testJobID, Type: JobHighlight, DocPath: doc, Keyword: "gamma"})
	require.NoError(t, err)
	assert.Equal(t, 1, highlight.Count)
	assert.Equal(t, filepath.Join(dir, "d_highlighted.docx"), highlight.OutputPath)

	replace, err := proc.ProcessJob(ctx, &JobRequest{JobID: testJobID, Type: JobReplace, DocPath: doc, OldText: "beta", NewText: "delta"})
	require.NoError(t, err)
	assert.Equal(t, 2, replace.Count)

	appended, err := proc.ProcessJob(ctx, &JobRequest{JobID: testJobID, Type: JobAppend, DocPath: doc, Text: "omega"})
	require.NoError(t, err)
	assert.Equal(t, doc, appended.OutputPath)

	info, err := proc.ProcessJob(ctx, &JobRequest{JobID: testJobID, Type: JobInfo, DocPath: doc})
	require.NoError(t, err)
	require.NotNil(t, info.Info)
	assert.Equal(t, 3, info.Info.Paragraphs)
}

func TestUpdateJobStatusWithoutStore(t *testing.T) {
	proc, _ := newTestProcessor(t, nil, "x")
	assert.NoError(t, proc.UpdateJobStatus(context.Background(), testJobID, storage.StatusProcessing, 0, nil))
}

func TestUpdateJobStatusMapsMetadata(t *testing.T) {
	store := &fakeStore{}
	proc, _ := newTestProcessor(t, store, "x")

	req := &JobRequest{JobID: testJobID, Type: JobConvert, PDFPath: "/in/a.pdf", Metadata: map[string]interface{}{"user": "u1"}}
	result := &JobResult{
		OutputPath:       "/in/a.docx",
		Strategy:         StrategyDirectExtract,
		PageCount:        4,
		Degraded:         true,
		Warnings:         []string{"ocr_unavailable_degraded_to_direct"},
		Confidence:       0.5,
		ProcessingTimeMs: 1200,
	}

	err := proc.UpdateJobStatus(context.Background(), testJobID, storage.StatusCompleted, 100, StatusMetadata(req, result, nil))
	require.NoError(t, err)

	require.Len(t, store.updates, 1)
	u := store.updates[0]
	assert.Equal(t, testJobID, u.JobID)
	assert.Equal(t, storage.StatusCompleted, u.Status)
	assert.Equal(t, "convert", u.JobType)
	assert.Equal(t, "/in/a.pdf", u.InputPath)
	assert.Equal(t, "/in/a.docx", u.OutputPath)
	assert.Equal(t, "direct_extract", u.Strategy)
	assert.Equal(t, 4, u.PageCount)
	assert.Equal(t, 0.5, u.Confidence)
	assert.Equal(t, int64(1200), u.ProcessingTimeMs)
	assert.Equal(t, []string{"ocr_unavailable_degraded_to_direct"}, u.Warnings)
	assert.Empty(t, u.ErrorCode)
	assert.Equal(t, "u1", u.Metadata["user"])
	assert.Equal(t, 100, u.Metadata["progress"])
}

func TestUpdateJobStatusRecordsError(t *testing.T) {
	store := &fakeStore{}
	proc, _ := newTestProcessor(t, store, "x")

	req := &JobRequest{JobID: testJobID, Type: JobReplace, DocPath: "/d.docx"}
	jobErr := perrors.NewNotFoundError("/d.docx", nil)

	require.NoError(t, proc.UpdateJobStatus(context.Background(), testJobID, storage.StatusFailed, 0, StatusMetadata(req, nil, jobErr)))

	u := store.updates[0]
	assert.Equal(t, "/d.docx", u.InputPath)
	assert.Equal(t, string(perrors.ErrorNotFound), u.ErrorCode)
	assert.Contains(t, u.ErrorMessage, "/d.docx")
}

func TestUpdateJobStatusStoreFailure(t *testing.T) {
	proc, _ := newTestProcessor(t, &fakeStore{err: errors.New("connection refused")}, "x")

	err := proc.UpdateJobStatus(context.Background(), testJobID, storage.StatusProcessing, 0, map[string]interface{}{})
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrorStorageFailed))
}

type fakePublisher struct {
	mu       sync.Mutex
	requests []*clients.ArtifactUploadRequest
	err      error
}

func (f *fakePublisher) UploadArtifact(_ context.Context, req *clients.ArtifactUploadRequest) (*clients.ArtifactUploadResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	resp := &clients.ArtifactUploadResponse{Success: true}
	resp.Artifact.ID = "art-1"
	resp.Artifact.DownloadURL = "https://files.example/art-1"
	return resp, nil
}

func newPublishingProcessor(t *testing.T, publisher ArtifactPublisher) (*DocumentProcessor, string) {
	t.Helper()
	dir := t.TempDir()
	proc, err := NewDocumentProcessor(&ProcessorConfig{
		Converter: NewConverter(ConverterConfig{Inspector: fakeInspector{pages: 1}, Detector: &fakeDetector{}}),
		Artifacts: publisher,
		TempDir:   dir,
	})
	require.NoError(t, err)
	return proc, dir
}

func TestProcessJobPublishesOutput(t *testing.T) {
	publisher := &fakePublisher{}
	proc, dir := newPublishingProcessor(t, publisher)
	doc := writeDocx(t, dir, "d.docx", "foo")

	result, err := proc.ProcessJob(context.Background(), &JobRequest{JobID: testJobID, Type: JobReplace, DocPath: doc, OldText: "foo", NewText: "bar"})
	require.NoError(t, err)

	assert.Equal(t, "art-1", result.ArtifactID)
	assert.Equal(t, "https://files.example/art-1", result.ArtifactURL)
	require.Len(t, publisher.requests, 1)
	req := publisher.requests[0]
	assert.Equal(t, "d_edited.docx", req.Filename)
	assert.Equal(t, testJobID, req.SourceID)
	assert.Equal(t, clients.DocxMimeType, req.MimeType)
	assert.NotEmpty(t, req.FileBuffer)

	meta := StatusMetadata(&JobRequest{JobID: testJobID, Type: JobReplace, DocPath: doc}, result, nil)
	assert.Equal(t, "art-1", meta["artifactId"])

	// search produces no document, so nothing is published
	_, err = proc.ProcessJob(context.Background(), &JobRequest{JobID: testJobID, Type: JobSearch, DocPath: doc, Keyword: "x"})
	require.NoError(t, err)
	assert.Len(t, publisher.requests, 1)
}

func TestProcessJobPublishFailureIsWarning(t *testing.T) {
	proc, dir := newPublishingProcessor(t, &fakePublisher{err: errors.New("503")})
	doc := writeDocx(t, dir, "d.docx", "foo")

	result, err := proc.ProcessJob(context.Background(), &JobRequest{JobID: testJobID, Type: JobAppend, DocPath: doc, Text: "more"})
	require.NoError(t, err)
	assert.Empty(t, result.ArtifactID)
	assert.Equal(t, []string{warningArtifactFailed}, result.Warnings)
}

func TestProcessConvertDegradedWarning(t *testing.T) {
	dir := t.TempDir()
	in := writeStub(t, dir, "scan.pdf")
	proc, err := NewDocumentProcessor(&ProcessorConfig{
		Converter: NewConverter(ConverterConfig{
			Inspector: fakeInspector{pages: 1},
			Detector:  &fakeDetector{hasText: false},
			Extractor: NewTextLayerExtractor(pagesLayer{pages: &fakePages{pages: []string{""}}}),
		}),
		TempDir: dir,
	})
	require.NoError(t, err)

	result, err := proc.ProcessJob(context.Background(), &JobRequest{JobID: testJobID, Type: JobConvert, PDFPath: in})
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.Equal(t, []string{warningDegraded}, result.Warnings)
}
