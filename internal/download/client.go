// Package download fetches media onto disk: playlist retrieval, the segment
// worker pool, progressive transfers and the task engine tying them to muxing.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/TheerasakPing/thai-video-downloader/internal/logger"
)

// Client wraps the shared HTTP client used for all media traffic.
type Client struct {
	httpClient *http.Client
	logger     logger.Logger
	userAgent  string
}

// NewClient creates a media client. Redirects are followed; CDNs bounce
// playlist and segment URLs routinely.
func NewClient(log logger.Logger, userAgent string) *Client {
	transport := &http.Transport{
		ResponseHeaderTimeout: 10 * time.Second,
		MaxIdleConnsPerHost:   8,
	}

	return &Client{
		httpClient: &http.Client{Transport: transport},
		logger:     log,
		userAgent:  userAgent,
	}
}

// HttpClient returns the underlying http.Client instance.
func (c *Client) HttpClient() *http.Client {
	return c.httpClient
}

func (c *Client) newRequest(ctx context.Context, method, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", url, err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return req, nil
}

// FetchPlaylist retrieves the raw bytes of a playlist URL.
func (c *Client) FetchPlaylist(ctx context.Context, url string) ([]byte, error) {
	c.logger.Debugf("Fetching playlist from URL: %s", url)

	req, err := c.newRequest(ctx, http.MethodGet, url)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playlist from %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode, url: url}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read playlist body from %s: %w", url, err)
	}
	return data, nil
}

// statusError carries a non-success HTTP status so retry logic can tell
// transient server trouble from permanent client errors.
type statusError struct {
	code int
	url  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("received status code %d from %s", e.code, e.url)
}
