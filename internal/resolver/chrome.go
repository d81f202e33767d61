package resolver

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const thumbnailScript = `(function() {
	var meta = document.querySelector('meta[property="og:image"]');
	if (meta) return meta.getAttribute('content') || '';
	var video = document.querySelector('video');
	if (video && video.poster) return video.poster;
	return '';
})()`

const durationScript = `(function() {
	var video = document.querySelector('video');
	if (video && isFinite(video.duration) && video.duration > 0) return video.duration;
	return 0;
})()`

const pageSourcesScript = `(function() {
	var sources = [];
	document.querySelectorAll('video').forEach(function(v) {
		if (v.currentSrc) sources.push(v.currentSrc);
		if (v.src) sources.push(v.src);
		v.querySelectorAll('source').forEach(function(s) {
			if (s.src) sources.push(s.src);
		});
	});
	var html = document.documentElement.outerHTML;
	var re = /https?:\/\/[^\s"'<>\\)]+\.(?:m3u8|mp4|webm)[^\s"'<>\\)]*/g;
	var m;
	while ((m = re.exec(html)) !== null) sources.push(m[0]);
	return sources;
})()`

// ChromeSession is a BrowserSession backed by a headless Chrome tab over the
// DevTools protocol. One session owns one browser process; concurrent
// resolutions each launch their own.
type ChromeSession struct {
	tabCtx    context.Context
	cancelTab context.CancelFunc
	cancelAll context.CancelFunc

	responses chan NetworkResponse
	closeOnce sync.Once
}

// NewChromeFactory returns a SessionFactory launching isolated headless
// Chrome instances.
func NewChromeFactory(headless bool, userAgent string) SessionFactory {
	return func(ctx context.Context) (BrowserSession, error) {
		return newChromeSession(ctx, headless, userAgent)
	}
}

func newChromeSession(ctx context.Context, headless bool, userAgent string) (*ChromeSession, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", headless),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
	)
	if userAgent != "" {
		opts = append(opts, chromedp.UserAgent(userAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	s := &ChromeSession{
		tabCtx:    tabCtx,
		cancelTab: cancelTab,
		cancelAll: cancelAlloc,
		responses: make(chan NetworkResponse, 256),
	}

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Response == nil {
			return
		}
		select {
		case s.responses <- NetworkResponse{URL: resp.Response.URL, ContentType: resp.Response.MimeType}:
		default:
			// Never block the event dispatcher; a full buffer means the
			// resolver is already saturated with candidates.
		}
	})

	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start browser session: %w", err)
	}

	return s, nil
}

// Navigate opens the URL in the session's tab and nudges common players
// into loading their media.
func (s *ChromeSession) Navigate(ctx context.Context, url string) error {
	if err := chromedp.Run(s.tabCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	// Best effort: click whatever looks like a play control so lazy players
	// begin fetching.
	var ignored interface{}
	_ = chromedp.Run(s.tabCtx, chromedp.Evaluate(`(function() {
		var selectors = ['.play-button', '.vjs-big-play-button', '.plyr__control--overlaid', '[class*="play"]', 'video'];
		for (var i = 0; i < selectors.length; i++) {
			var el = document.querySelector(selectors[i]);
			if (el) { el.click(); break; }
		}
		document.querySelectorAll('video').forEach(function(v) {
			try { v.play(); } catch (e) {}
		});
		return true;
	})()`, &ignored))
	return nil
}

// Responses streams observed network responses.
func (s *ChromeSession) Responses() <-chan NetworkResponse {
	return s.responses
}

// Title returns the current page title.
func (s *ChromeSession) Title(ctx context.Context) (string, error) {
	var title string
	if err := chromedp.Run(s.tabCtx, chromedp.Title(&title)); err != nil {
		return "", err
	}
	return title, nil
}

// Thumbnail returns the page's poster image URL.
func (s *ChromeSession) Thumbnail(ctx context.Context) (string, error) {
	var thumb string
	if err := chromedp.Run(s.tabCtx, chromedp.Evaluate(thumbnailScript, &thumb)); err != nil {
		return "", err
	}
	return thumb, nil
}

// Duration reads the media length off the page's video element.
func (s *ChromeSession) Duration(ctx context.Context) (float64, error) {
	var seconds float64
	if err := chromedp.Run(s.tabCtx, chromedp.Evaluate(durationScript, &seconds)); err != nil {
		return 0, err
	}
	return seconds, nil
}

// PageSources scrapes media URLs out of the page markup and video elements.
func (s *ChromeSession) PageSources(ctx context.Context) ([]string, error) {
	var sources []string
	if err := chromedp.Run(s.tabCtx, chromedp.Evaluate(pageSourcesScript, &sources)); err != nil {
		return nil, err
	}
	return sources, nil
}

// Close tears down the tab and the browser process. The responses channel
// is left open because the event dispatcher may still be draining; readers
// stop via their own deadlines.
func (s *ChromeSession) Close() error {
	s.closeOnce.Do(func() {
		s.cancelTab()
		s.cancelAll()
	})
	return nil
}
