package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/TheerasakPing/thai-video-downloader/internal/logger"
)

const progressiveChunk = 256 * 1024

// ProgressiveDownloader streams single-file sources to disk, resuming with a
// Range request when the server honors one.
type ProgressiveDownloader struct {
	client      *Client
	logger      logger.Logger
	retries     int
	backoffBase time.Duration
}

// NewProgressiveDownloader creates a progressive fetcher sharing the media
// client.
func NewProgressiveDownloader(client *Client, log logger.Logger, retries int, backoffBase time.Duration) *ProgressiveDownloader {
	return &ProgressiveDownloader{
		client:      client,
		logger:      log,
		retries:     retries,
		backoffBase: backoffBase,
	}
}

// Fetch streams url into f starting at offset. When the server ignores the
// Range request the file is truncated and the transfer restarts from zero.
// setTotal reports the full size once known; onBytes is called per chunk
// written. Returns the final on-disk size.
func (p *ProgressiveDownloader) Fetch(ctx context.Context, url string, f *os.File, offset int64, setTotal func(total int64), onBytes func(n int64)) (int64, error) {
	var lastErr error
	for attempt := 1; attempt <= p.retries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return offset, ctx.Err()
			case <-time.After(backoff(p.backoffBase, attempt-1)):
			}
			p.logger.Warnf("Progressive fetch attempt %d/%d for %s after: %v", attempt, p.retries, url, lastErr)
		}

		written, err := p.fetchOnce(ctx, url, f, offset, setTotal, onBytes)
		offset = written
		if err == nil {
			return offset, nil
		}
		if ctx.Err() != nil {
			return offset, ctx.Err()
		}
		if !isTransient(err) {
			return offset, err
		}
		lastErr = err
	}
	return offset, fmt.Errorf("progressive fetch of %s failed after %d attempts: %w", url, p.retries, lastErr)
}

func (p *ProgressiveDownloader) fetchOnce(ctx context.Context, url string, f *os.File, offset int64, setTotal func(int64), onBytes func(int64)) (int64, error) {
	req, err := p.client.newRequest(ctx, http.MethodGet, url)
	if err != nil {
		return offset, err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := p.client.httpClient.Do(req)
	if err != nil {
		return offset, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		if setTotal != nil && resp.ContentLength > 0 {
			setTotal(offset + resp.ContentLength)
		}
	case http.StatusOK:
		// Server ignored the range; start over.
		if offset > 0 {
			p.logger.Debugf("Server for %s does not honor ranges, restarting transfer", url)
			if err := f.Truncate(0); err != nil {
				return 0, fmt.Errorf("failed to truncate for restart: %w", err)
			}
			offset = 0
		}
		if setTotal != nil && resp.ContentLength > 0 {
			setTotal(resp.ContentLength)
		}
	default:
		return offset, &statusError{code: resp.StatusCode, url: url}
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("failed to seek to resume offset: %w", err)
	}

	buf := make([]byte, progressiveChunk)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := f.Write(buf[:n]); err != nil {
				return offset, fmt.Errorf("failed to write chunk: %w", err)
			}
			offset += int64(n)
			if onBytes != nil {
				onBytes(int64(n))
			}
		}
		if readErr == io.EOF {
			return offset, nil
		}
		if readErr != nil {
			if errors.Is(readErr, context.Canceled) || ctx.Err() != nil {
				return offset, ctx.Err()
			}
			return offset, readErr
		}
	}
}
