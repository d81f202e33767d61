package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/TheerasakPing/thai-video-downloader/internal/logger"
	"github.com/TheerasakPing/thai-video-downloader/internal/models"
)

const maxBackoff = 15 * time.Second

// SegmentDownloader fetches playlist segments through a bounded worker pool
// and assembles them onto disk in strict sequence order, whatever order the
// fetches complete in.
type SegmentDownloader struct {
	client      *Client
	logger      logger.Logger
	workers     int
	retries     int
	backoffBase time.Duration
	// fetchTimeout bounds one attempt at one segment.
	fetchTimeout time.Duration
}

// NewSegmentDownloader creates a downloader with the given pool and retry
// settings.
func NewSegmentDownloader(client *Client, log logger.Logger, workers, retries int, backoffBase, fetchTimeout time.Duration) *SegmentDownloader {
	return &SegmentDownloader{
		client:       client,
		logger:       log,
		workers:      workers,
		retries:      retries,
		backoffBase:  backoffBase,
		fetchTimeout: fetchTimeout,
	}
}

type fetchResult struct {
	seq  int
	data []byte
	err  error
}

// Download fetches the given segments concurrently and writes them to w in
// sequence order. onSegment is called after each segment hits the writer,
// with the sequence number and byte count. The first exhausted segment
// cancels all in-flight fetches and fails the call.
func (d *SegmentDownloader) Download(ctx context.Context, segments []models.Segment, w io.Writer, onSegment func(seq int, n int64)) error {
	if len(segments) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan models.Segment)
	results := make(chan fetchResult, d.workers)

	for i := 0; i < d.workers; i++ {
		go func() {
			for seg := range jobs {
				data, err := d.fetchSegment(ctx, seg)
				select {
				case results <- fetchResult{seq: seg.Sequence, data: data, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, seg := range segments {
			select {
			case jobs <- seg:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Out-of-order completions park here until their turn comes.
	pending := make(map[int][]byte)
	next := segments[0].Sequence
	last := segments[len(segments)-1].Sequence

	for next <= last {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res := <-results:
			if res.err != nil {
				return res.err
			}
			pending[res.seq] = res.data
			for data, ok := pending[next]; ok; data, ok = pending[next] {
				if _, err := w.Write(data); err != nil {
					return fmt.Errorf("failed to write segment %d: %w", next, err)
				}
				delete(pending, next)
				if onSegment != nil {
					onSegment(next, int64(len(data)))
				}
				next++
			}
		}
	}
	return nil
}

// fetchSegment retries one segment with exponential backoff until it
// succeeds, exhausts the attempt budget, or hits a permanent error.
func (d *SegmentDownloader) fetchSegment(ctx context.Context, seg models.Segment) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= d.retries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff(d.backoffBase, attempt-1)):
			}
		}

		data, err := d.fetchOnce(ctx, seg)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isTransient(err) {
			return nil, &models.SegmentFetchExhaustedError{Index: seg.Sequence, Attempts: attempt, Err: err}
		}
		lastErr = err
		d.logger.Warnf("Segment %d attempt %d/%d failed: %v", seg.Sequence, attempt, d.retries, err)
	}
	return nil, &models.SegmentFetchExhaustedError{Index: seg.Sequence, Attempts: d.retries, Err: lastErr}
}

func (d *SegmentDownloader) fetchOnce(ctx context.Context, seg models.Segment) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, d.fetchTimeout)
	defer cancel()

	req, err := d.client.newRequest(ctx, http.MethodGet, seg.URI)
	if err != nil {
		return nil, err
	}
	if seg.ByteRange != nil {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d",
			seg.ByteRange.Offset, seg.ByteRange.Offset+seg.ByteRange.Length-1))
	}

	resp, err := d.client.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, &statusError{code: resp.StatusCode, url: seg.URI}
	}

	return io.ReadAll(resp.Body)
}

// backoff doubles the base delay per prior attempt, capped at maxBackoff.
func backoff(base time.Duration, prior int) time.Duration {
	d := base << prior
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}

// isTransient reports whether an error is worth another attempt. Connection
// trouble, timeouts and server-side status codes are; other client errors
// are permanent.
func isTransient(err error) bool {
	var st *statusError
	if errors.As(err, &st) {
		switch {
		case st.code >= 500:
			return true
		case st.code == http.StatusRequestTimeout, st.code == http.StatusTooManyRequests:
			return true
		default:
			return false
		}
	}
	// Anything without a status code never got a response: connection
	// trouble, timeouts, truncated bodies. All worth another attempt.
	return true
}
