package resolver

import "context"

// NetworkResponse is one observed response on the page's network, reduced to
// what classification needs.
type NetworkResponse struct {
	URL         string
	ContentType string
}

// BrowserSession abstracts the runtime-provided browser automation
// capability. Production code uses a Chrome DevTools session; tests replay
// canned responses through a fake.
type BrowserSession interface {
	// Navigate opens the given URL in the session's page.
	Navigate(ctx context.Context, url string) error
	// Responses streams network responses observed since the session opened.
	// The channel may be closed when the session closes; readers must also
	// bound their reads with a context deadline.
	Responses() <-chan NetworkResponse
	// Title returns the current page title.
	Title(ctx context.Context) (string, error)
	// Thumbnail returns the page's poster image URL, if any.
	Thumbnail(ctx context.Context) (string, error)
	// Duration returns the page player's media length in seconds, 0 when
	// the player exposes none.
	Duration(ctx context.Context) (float64, error)
	// PageSources scrapes media URLs embedded directly in the page markup or
	// player state, for sites that never load media over the network during
	// the observation window.
	PageSources(ctx context.Context) ([]string, error)
	// Close tears the session down. Safe to call more than once.
	Close() error
}

// SessionFactory opens a fresh, isolated browser session. Each resolution
// call gets its own; sessions are never shared between concurrent calls.
type SessionFactory func(ctx context.Context) (BrowserSession, error)
