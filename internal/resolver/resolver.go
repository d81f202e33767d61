// Package resolver discovers the real media URLs behind a streaming page by
// driving a browser session and classifying its network traffic.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/TheerasakPing/thai-video-downloader/internal/logger"
	"github.com/TheerasakPing/thai-video-downloader/internal/models"
)

// Info is the outcome of one successful resolution.
type Info struct {
	URL       string                `json:"url"`
	Title     string                `json:"title"`
	Thumbnail string                `json:"thumbnail"`
	Duration  string                `json:"duration"`
	Qualities []string              `json:"qualities"`
	Sources   []models.StreamSource `json:"sources"`
}

// SourceForQuality returns the variant carrying the given label. "auto"
// always denotes the top-ranked variant.
func (i *Info) SourceForQuality(quality string) (models.StreamSource, bool) {
	if len(i.Sources) == 0 {
		return models.StreamSource{}, false
	}
	if quality == "" || quality == "auto" {
		return i.Sources[0], true
	}
	for _, s := range i.Sources {
		if s.Quality == quality {
			return s, true
		}
	}
	return i.Sources[0], true
}

// Resolver drives isolated browser sessions against page URLs and returns
// ranked variants. Safe for concurrent use; each call opens its own session.
type Resolver struct {
	sessions SessionFactory
	classify Classifier
	logger   logger.Logger

	// ObservationWindow bounds a whole resolution; QuietPeriod short-circuits
	// it once no new candidate has appeared for that long.
	ObservationWindow time.Duration
	QuietPeriod       time.Duration
}

// New creates a resolver. A nil classifier gets the default predicate set.
func New(sessions SessionFactory, classify Classifier, log logger.Logger) *Resolver {
	if classify == nil {
		classify = NewClassifier()
	}
	return &Resolver{
		sessions:          sessions,
		classify:          classify,
		logger:            log,
		ObservationWindow: 45 * time.Second,
		QuietPeriod:       5 * time.Second,
	}
}

// Resolve opens a session on pageURL, observes its traffic for the
// observation window and returns ranked variants plus page metadata.
func (r *Resolver) Resolve(ctx context.Context, pageURL string) (*Info, error) {
	if err := validatePageURL(pageURL); err != nil {
		return nil, &models.ResolutionError{Kind: models.ResolutionNotSupported, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, r.ObservationWindow)
	defer cancel()

	session, err := r.sessions(ctx)
	if err != nil {
		return nil, &models.ResolutionError{Kind: models.ResolutionNetworkFailure, Err: err}
	}
	defer session.Close()

	if err := session.Navigate(ctx, pageURL); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &models.ResolutionError{Kind: models.ResolutionTimeout, Err: err}
		}
		return nil, &models.ResolutionError{Kind: models.ResolutionNetworkFailure, Err: err}
	}

	sources := r.observe(ctx, session)

	// Some players never touch the network during the window; fall back to
	// URLs embedded in the page itself.
	if embedded, err := session.PageSources(ctx); err == nil {
		for _, u := range embedded {
			sources = appendCandidate(sources, r.classify, Candidate{URL: u})
		}
	}

	if len(sources) == 0 {
		return nil, &models.ResolutionError{Kind: models.ResolutionNoMediaFound}
	}

	rankSources(sources)

	title, _ := session.Title(ctx)
	thumbnail, _ := session.Thumbnail(ctx)
	seconds, _ := session.Duration(ctx)

	return &Info{
		URL:       pageURL,
		Title:     title,
		Thumbnail: thumbnail,
		Duration:  durationLabel(seconds),
		Qualities: qualityLabels(sources),
		Sources:   sources,
	}, nil
}

// durationLabel formats a media length as mm:ss or hh:mm:ss, empty when the
// page never exposed one.
func durationLabel(seconds float64) string {
	if seconds <= 0 {
		return ""
	}
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}

// observe drains the session's response stream until the window closes or
// the quiet period elapses with no new candidate.
func (r *Resolver) observe(ctx context.Context, session BrowserSession) []models.StreamSource {
	var sources []models.StreamSource
	quiet := time.NewTimer(r.QuietPeriod)
	defer quiet.Stop()

	for {
		select {
		case <-ctx.Done():
			return sources
		case <-quiet.C:
			r.logger.Debugf("no new media candidate for %v, closing observation window", r.QuietPeriod)
			return sources
		case resp, ok := <-session.Responses():
			if !ok {
				return sources
			}
			before := len(sources)
			sources = appendCandidate(sources, r.classify, Candidate{URL: resp.URL, ContentType: resp.ContentType})
			if len(sources) > before {
				r.logger.Debugf("media candidate: %s (%s)", resp.URL, resp.ContentType)
				if !quiet.Stop() {
					select {
					case <-quiet.C:
					default:
					}
				}
				quiet.Reset(r.QuietPeriod)
			}
		}
	}
}

// appendCandidate classifies one candidate and appends it when it is media,
// deduplicating by URL.
func appendCandidate(sources []models.StreamSource, classify Classifier, c Candidate) []models.StreamSource {
	var kind models.SourceKind
	switch classify(c) {
	case CategoryMasterManifest, CategoryMediaManifest:
		kind = models.SourceHLS
	case CategoryProgressive:
		kind = models.SourceProgressive
	default:
		return sources
	}
	for _, s := range sources {
		if s.URL == c.URL {
			return sources
		}
	}
	return append(sources, models.StreamSource{
		URL:     c.URL,
		Quality: qualityFromURL(c.URL),
		Kind:    kind,
	})
}

// rankSources orders variants by declared quality descending. Sources with
// no quality metadata keep their appearance order; selecting "auto" picks
// whatever ends up ranked first.
func rankSources(sources []models.StreamSource) {
	sort.SliceStable(sources, func(i, j int) bool {
		return qualityRank(sources[i].Quality) > qualityRank(sources[j].Quality)
	})
}

func qualityRank(label string) int {
	n, err := strconv.Atoi(strings.TrimSuffix(label, "p"))
	if err != nil {
		return 0
	}
	return n
}

func qualityLabels(sources []models.StreamSource) []string {
	seen := make(map[string]struct{})
	var labels []string
	for _, s := range sources {
		if _, ok := seen[s.Quality]; ok {
			continue
		}
		seen[s.Quality] = struct{}{}
		labels = append(labels, s.Quality)
	}
	if len(labels) == 0 {
		labels = []string{"auto"}
	}
	return labels
}

// validatePageURL rejects non-HTTP schemes and private-network hosts before
// any browser navigation happens.
func validatePageURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("URL has no host")
	}
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("refusing to resolve %q", host)
	}
	if ip := net.ParseIP(host); ip != nil && (ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()) {
		return fmt.Errorf("refusing to resolve private address %q", host)
	}
	return nil
}
