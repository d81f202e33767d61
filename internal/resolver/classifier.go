package resolver

import "strings"

// Category buckets one observed response for ranking purposes.
type Category int

const (
	CategoryIrrelevant Category = iota
	CategoryMasterManifest
	CategoryMediaManifest
	CategoryProgressive
	CategoryAdvertisement
)

// Candidate is a response under classification.
type Candidate struct {
	URL         string
	ContentType string
}

// Classifier decides what a candidate is. Injected into the resolver so the
// predicate set can be extended without touching discovery logic.
type Classifier func(Candidate) Category

// AdPredicate reports whether a URL belongs to an ad network.
type AdPredicate func(url string) bool

// adPatterns is the default denylist of known ad-serving URL shapes.
var adPatterns = []string{
	"adsrc",
	"/ad/",
	"advertisement",
	"b7e06ea0-c18b-4b1e-9cba-2f7a9891f52f",
	"01dd0f98-3b37-40a5-ad47-20935908b632",
	"cf953e68-8e67-4135-9b39-746fe7557c10",
}

// DefaultAdPredicate matches the built-in denylist.
func DefaultAdPredicate(url string) bool {
	lower := strings.ToLower(url)
	for _, pattern := range adPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// NewClassifier builds the default classifier with extra ad predicates
// layered on top of the built-in denylist.
func NewClassifier(extra ...AdPredicate) Classifier {
	predicates := append([]AdPredicate{DefaultAdPredicate}, extra...)

	return func(c Candidate) Category {
		for _, isAd := range predicates {
			if isAd(c.URL) {
				return CategoryAdvertisement
			}
		}

		lower := strings.ToLower(c.URL)
		mime := strings.ToLower(c.ContentType)

		switch {
		case strings.Contains(lower, ".m3u8") || strings.Contains(mime, "mpegurl"):
			if strings.Contains(lower, "master") || strings.Contains(lower, "index.m3u8") {
				return CategoryMasterManifest
			}
			return CategoryMediaManifest
		case strings.Contains(lower, ".ts") && !strings.Contains(lower, ".m3u8"):
			// Individual transport segments are noise; the playlist that
			// references them is the real candidate.
			return CategoryIrrelevant
		case strings.Contains(lower, ".mp4") || strings.Contains(lower, ".webm") ||
			strings.Contains(mime, "video/mp4") || strings.Contains(mime, "video/webm"):
			return CategoryProgressive
		default:
			return CategoryIrrelevant
		}
	}
}

// qualityFromURL guesses a quality label from resolution markers in the URL.
func qualityFromURL(url string) string {
	switch {
	case strings.Contains(url, "2160"):
		return "2160p"
	case strings.Contains(url, "1080"):
		return "1080p"
	case strings.Contains(url, "720"):
		return "720p"
	case strings.Contains(url, "480"):
		return "480p"
	case strings.Contains(url, "360"):
		return "360p"
	default:
		return "auto"
	}
}
