package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifier(t *testing.T) {
	classify := NewClassifier()

	cases := []struct {
		name string
		c    Candidate
		want Category
	}{
		{"master by name", Candidate{URL: "https://cdn.example.com/hls/master.m3u8"}, CategoryMasterManifest},
		{"index playlist", Candidate{URL: "https://cdn.example.com/720/index.m3u8"}, CategoryMasterManifest},
		{"media playlist", Candidate{URL: "https://cdn.example.com/720/chunks.m3u8"}, CategoryMediaManifest},
		{"playlist by mime", Candidate{URL: "https://cdn.example.com/pl", ContentType: "application/vnd.apple.mpegURL"}, CategoryMediaManifest},
		{"transport segment", Candidate{URL: "https://cdn.example.com/720/seg0042.ts"}, CategoryIrrelevant},
		{"mp4 file", Candidate{URL: "https://cdn.example.com/v/720/video.mp4"}, CategoryProgressive},
		{"webm file", Candidate{URL: "https://cdn.example.com/v/clip.webm"}, CategoryProgressive},
		{"video by mime", Candidate{URL: "https://cdn.example.com/stream", ContentType: "video/mp4"}, CategoryProgressive},
		{"page asset", Candidate{URL: "https://cdn.example.com/app.js", ContentType: "text/javascript"}, CategoryIrrelevant},
		{"ad network playlist", Candidate{URL: "https://ads.example.com/ad/preroll.m3u8"}, CategoryAdvertisement},
		{"ad query marker", Candidate{URL: "https://cdn.example.com/v.mp4?adSrc=x"}, CategoryAdvertisement},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, classify(tc.c), tc.name)
	}
}

func TestClassifier_ExtraPredicates(t *testing.T) {
	blockCDN := func(url string) bool { return url == "https://blocked.example.com/v.m3u8" }
	classify := NewClassifier(blockCDN)

	assert.Equal(t, CategoryAdvertisement, classify(Candidate{URL: "https://blocked.example.com/v.m3u8"}))
	assert.Equal(t, CategoryMediaManifest, classify(Candidate{URL: "https://ok.example.com/v.m3u8"}))
}

func TestQualityFromURL(t *testing.T) {
	cases := map[string]string{
		"https://cdn.example.com/2160/v.m3u8":     "2160p",
		"https://cdn.example.com/v/1080p.mp4":     "1080p",
		"https://cdn.example.com/720/chunks.m3u8": "720p",
		"https://cdn.example.com/sd-480.mp4":      "480p",
		"https://cdn.example.com/mobile-360.mp4":  "360p",
		"https://cdn.example.com/v.m3u8":          "auto",
	}
	for url, want := range cases {
		assert.Equal(t, want, qualityFromURL(url), url)
	}
}
