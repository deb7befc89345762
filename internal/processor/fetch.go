package processor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/adverant/nexus/docconvert-worker/internal/logging"
)

const (
	downloadMaxRetries     = 5
	downloadInitialBackoff = time.Second
	downloadMaxBackoff     = 32 * time.Second
	downloadTimeout        = 10 * time.Minute
	// defaultMaxFileSize applies when no limit is configured.
	defaultMaxFileSize int64 = 2 << 30
)

// downloader fetches source PDFs over HTTP with retries.
type downloader struct {
	client         *http.Client
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	maxBytes       int64
	logger         *logging.Logger
}

func newDownloader(maxBytes int64) *downloader {
	if maxBytes <= 0 {
		maxBytes = defaultMaxFileSize
	}
	return &downloader{
		client:         &http.Client{Timeout: downloadTimeout},
		maxRetries:     downloadMaxRetries,
		initialBackoff: downloadInitialBackoff,
		maxBackoff:     downloadMaxBackoff,
		maxBytes:       maxBytes,
		logger:         logging.NewLogger("downloader"),
	}
}

// fetch downloads url into target. Failed attempts are retried with
// exponential backoff; a file larger than maxBytes is rejected without
// retrying.
func (d *downloader) fetch(ctx context.Context, jobID, url, target string) error {
	var lastErr error

	for attempt := 1; attempt <= d.maxRetries; attempt++ {
		d.logger.Debug(fmt.Sprintf("[Job %s] Download attempt %d/%d", jobID, attempt, d.maxRetries), "url", url)

		n, retry, err := d.attempt(ctx, url, target)
		if err == nil {
			d.logger.Info(fmt.Sprintf("[Job %s] Download complete", jobID),
				"attempt", attempt,
				"size", humanize.IBytes(uint64(n)))
			return nil
		}
		if !retry {
			return err
		}

		lastErr = err
		d.logger.Warn(fmt.Sprintf("[Job %s] Download attempt %d failed", jobID, attempt), "error", err)

		if attempt < d.maxRetries {
			backoff := d.backoff(attempt)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
			}
		}
	}

	return fmt.Errorf("failed to download file after %d attempts: %w", d.maxRetries, lastErr)
}

// backoff is initialBackoff doubled per failed attempt, capped at
// maxBackoff.
func (d *downloader) backoff(attempt int) time.Duration {
	b := d.initialBackoff
	for i := 1; i < attempt && b < d.maxBackoff; i++ {
		b *= 2
	}
	if b > d.maxBackoff {
		return d.maxBackoff
	}
	return b
}

func (d *downloader) attempt(ctx context.Context, url, target string) (n int64, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, false, fmt.Errorf("invalid URL: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, true, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	if resp.ContentLength > d.maxBytes {
		return 0, false, fmt.Errorf("file size exceeds maximum: %s > %s",
			humanize.IBytes(uint64(resp.ContentLength)), humanize.IBytes(uint64(d.maxBytes)))
	}

	f, err := os.CreateTemp(filepath.Dir(target), ".download-*")
	if err != nil {
		return 0, false, err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	// One byte past the limit tells an oversized body from an exact fit.
	n, err = io.Copy(f, io.LimitReader(resp.Body, d.maxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, ctx.Err() == nil, err
	}
	if n > d.maxBytes {
		return 0, false, fmt.Errorf("file size exceeds maximum of %s", humanize.IBytes(uint64(d.maxBytes)))
	}

	if err := os.Rename(tmp, target); err != nil {
		return 0, false, err
	}
	return n, false, nil
}
