package main

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/docconvert-worker/internal/docx"
	perrors "github.com/adverant/nexus/docconvert-worker/internal/errors"
	"github.com/adverant/nexus/docconvert-worker/internal/storage"
)

func writeDoc(t *testing.T, paragraphs ...string) string {
	t.Helper()
	doc := docx.New()
	for _, p := range paragraphs {
		doc.AddParagraph(p)
	}
	path := filepath.Join(t.TempDir(), "doc.docx")
	require.NoError(t, doc.Save(path))
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 100))
	assert.Equal(t, "abc...", truncate("abcdef", 3))
	assert.Equal(t, "世界...", truncate("世界你好", 2))
}

func TestRunWithoutCommandPrintsHelp(t *testing.T) {
	out, err := runCLI(t)
	require.NoError(t, err)
	for _, name := range []string{"convert", "search", "highlight", "replace", "append", "info", "enqueue", "status"} {
		assert.Contains(t, out, name)
	}
}

func TestRunRejectsBadInvocations(t *testing.T) {
	_, err := runCLI(t, "print")
	assert.ErrorContains(t, err, "unknown command")

	_, err = runCLI(t, "search", "--keyword", "x")
	assert.ErrorContains(t, err, `required flag(s) "doc" not set`)

	_, err = runCLI(t, "replace", "--doc", "a.docx", "--old", "")
	assert.ErrorContains(t, err, "--old must not be empty")

	_, err = runCLI(t, "convert", "--in", "a.pdf", "--strategy", "fastest")
	assert.ErrorContains(t, err, `unknown strategy "fastest"`)
}

func TestSearchPrintsAtMostTenResults(t *testing.T) {
	paras := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		paras = append(paras, fmt.Sprintf("match %d %s", i, strings.Repeat("z", 150)))
	}
	path := writeDoc(t, paras...)

	out, err := runCLI(t, "search", "--doc", path, "--keyword", "MATCH")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, `Found 12 paragraphs containing "MATCH":`, lines[0])
	assert.Len(t, lines, 12, "header, ten results and the overflow line")
	assert.Equal(t, "... and 2 more", lines[11])
	assert.True(t, strings.HasPrefix(lines[1], "[paragraph 0] match 0 "))
	assert.True(t, strings.HasSuffix(lines[1], "..."))
}

func TestReplaceAndInfo(t *testing.T) {
	path := writeDoc(t, "foo baz foo")
	out := filepath.Join(filepath.Dir(path), "edited.docx")

	stdout, err := runCLI(t, "replace", "--doc", path, "--old", "foo", "--new", "bar", "--out", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Replaced 2 occurrences")

	stdout, err = runCLI(t, "info", "--doc", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Paragraphs: 1")
	assert.Contains(t, stdout, "Characters: 11")
}

func TestMissingDocumentIsNotFound(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.docx")
	_, err := runCLI(t, "highlight", "--doc", missing, "--keyword", "x")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(describe(err), "file not found:"))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(missing), "missing_highlighted.docx"))
}

type fakeJobStore struct {
	records map[string]*storage.JobRecord
	closed  bool
}

func (f *fakeJobStore) GetJobByID(_ context.Context, jobID string) (*storage.JobRecord, error) {
	rec, ok := f.records[jobID]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	return rec, nil
}

func (f *fakeJobStore) Close() error {
	f.closed = true
	return nil
}

func useJobStore(t *testing.T, store *fakeJobStore) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://worker@localhost/docconvert")
	orig := openJobStore
	openJobStore = func(string) (jobStore, error) { return store, nil }
	t.Cleanup(func() { openJobStore = orig })
}

func TestStatusPrintsJob(t *testing.T) {
	store := &fakeJobStore{records: map[string]*storage.JobRecord{
		"job-1": {
			ID:               "job-1",
			JobType:          "replace",
			InputPath:        "/in/report.docx",
			OutputPath:       "/in/report_edited.docx",
			Status:           "completed",
			MatchCount:       1234,
			ProcessingTimeMs: 1500,
			Warnings:         []string{"artifact_upload_failed"},
			Metadata:         map[string]interface{}{"artifactId": "art-9"},
			UpdatedAt:        time.Now().Add(-2 * time.Minute),
		},
	}}
	useJobStore(t, store)

	out, err := runCLI(t, "status", "--job", "job-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Status:     completed")
	assert.Contains(t, out, "Matches:    1,234")
	assert.Contains(t, out, "Duration:   1.5s")
	assert.Contains(t, out, "Warnings:   artifact_upload_failed")
	assert.Contains(t, out, "Artifact:   art-9")
	assert.Contains(t, out, "2 minutes ago")
	assert.NotContains(t, out, "Pages:")
	assert.True(t, store.closed)
}

func TestStatusErrors(t *testing.T) {
	store := &fakeJobStore{}
	useJobStore(t, store)

	_, err := runCLI(t, "status", "--job", "nope")
	assert.ErrorContains(t, err, "job not found: nope")

	_, err = runCLI(t, "status")
	assert.ErrorContains(t, err, `required flag(s) "job" not set`)

	t.Setenv("DATABASE_URL", "")
	_, err = runCLI(t, "status", "--job", "job-1")
	assert.ErrorContains(t, err, "DATABASE_URL is not set")
}

func TestDescribe(t *testing.T) {
	msg := describe(perrors.NewNotFoundError("/x.pdf", nil))
	assert.True(t, strings.HasPrefix(msg, "file not found:"))
	assert.Equal(t, "plain", describe(fmt.Errorf("plain")))
}
