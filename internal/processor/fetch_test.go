package processor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastDownloader(maxBytes int64) *downloader {
	d := newDownloader(maxBytes)
	d.initialBackoff = time.Millisecond
	d.maxBackoff = 4 * time.Millisecond
	return d
}

func TestDownloaderBackoff(t *testing.T) {
	d := newDownloader(0)
	assert.Equal(t, time.Second, d.backoff(1))
	assert.Equal(t, 2*time.Second, d.backoff(2))
	assert.Equal(t, 16*time.Second, d.backoff(5))
	assert.Equal(t, 32*time.Second, d.backoff(6))
	assert.Equal(t, 32*time.Second, d.backoff(40))
	assert.Equal(t, defaultMaxFileSize, d.maxBytes)
}

func TestDownloaderRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("pdf bytes"))
	}))
	defer srv.Close()

	target := filepath.Join(t.TempDir(), "out.pdf")
	require.NoError(t, fastDownloader(1024).fetch(context.Background(), testJobID, srv.URL, target))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "pdf bytes", string(data))
	assert.Equal(t, int32(3), hits.Load())
}

func TestDownloaderGivesUp(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.NotFound(w, nil)
	}))
	defer srv.Close()

	target := filepath.Join(t.TempDir(), "out.pdf")
	err := fastDownloader(1024).fetch(context.Background(), testJobID, srv.URL, target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 5 attempts")
	assert.Equal(t, int32(downloadMaxRetries), hits.Load())
	assert.NoFileExists(t, target)
}

func TestDownloaderRejectsDeclaredOversize(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	target := filepath.Join(t.TempDir(), "out.pdf")
	err := fastDownloader(16).fetch(context.Background(), testJobID, srv.URL, target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum")
	assert.Equal(t, int32(1), hits.Load(), "oversize is not retried")
	assert.NoFileExists(t, target)
}

func TestDownloaderRejectsStreamedOversize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// flushing first forces a chunked response without Content-Length
		w.(http.Flusher).Flush()
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	dir := t.TempDir()
	target := filepath.Join(dir, "out.pdf")
	err := fastDownloader(16).fetch(context.Background(), testJobID, srv.URL, target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "partial downloads are cleaned up")
}

func TestDownloaderStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "busy", http.StatusBadGateway)
	}))
	defer srv.Close()

	d := newDownloader(1024)
	d.initialBackoff = time.Hour
	d.maxBackoff = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := d.fetch(ctx, testJobID, srv.URL, filepath.Join(t.TempDir(), "out.pdf"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
