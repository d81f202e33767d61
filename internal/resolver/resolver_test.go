package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheerasakPing/thai-video-downloader/internal/logger"
	"github.com/TheerasakPing/thai-video-downloader/internal/models"
)

// fakeSession replays canned network responses.
type fakeSession struct {
	responses   []NetworkResponse
	title       string
	thumbnail   string
	duration    float64
	pageSources []string
	navigateErr error

	ch     chan NetworkResponse
	closed bool
}

func newFakeSession(responses ...NetworkResponse) *fakeSession {
	return &fakeSession{responses: responses, title: "Test Video", thumbnail: "https://example.com/poster.jpg"}
}

func (f *fakeSession) Navigate(ctx context.Context, url string) error {
	if f.navigateErr != nil {
		return f.navigateErr
	}
	f.ch = make(chan NetworkResponse, len(f.responses))
	for _, r := range f.responses {
		f.ch <- r
	}
	close(f.ch)
	return nil
}

func (f *fakeSession) Responses() <-chan NetworkResponse { return f.ch }

func (f *fakeSession) Title(ctx context.Context) (string, error) { return f.title, nil }

func (f *fakeSession) Thumbnail(ctx context.Context) (string, error) { return f.thumbnail, nil }

func (f *fakeSession) Duration(ctx context.Context) (float64, error) { return f.duration, nil }

func (f *fakeSession) PageSources(ctx context.Context) ([]string, error) { return f.pageSources, nil }

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func factoryFor(s *fakeSession) SessionFactory {
	return func(ctx context.Context) (BrowserSession, error) { return s, nil }
}

func newTestResolver(s *fakeSession) *Resolver {
	r := New(factoryFor(s), nil, logger.Nop())
	r.ObservationWindow = 2 * time.Second
	r.QuietPeriod = 100 * time.Millisecond
	return r
}

func TestResolve_FiltersAdsAndNoise(t *testing.T) {
	session := newFakeSession(
		NetworkResponse{URL: "https://ads.example.com/ad/banner.m3u8"},
		NetworkResponse{URL: "https://cdn.example.com/stream/playlist.m3u8", ContentType: "application/vnd.apple.mpegurl"},
		NetworkResponse{URL: "https://cdn.example.com/stream/seg001.ts", ContentType: "video/mp2t"},
	)

	info, err := newTestResolver(session).Resolve(context.Background(), "https://video.example.com/watch/1")
	require.NoError(t, err)

	// One ad response plus one playlist yields exactly one variant.
	require.Len(t, info.Sources, 1)
	assert.Equal(t, "https://cdn.example.com/stream/playlist.m3u8", info.Sources[0].URL)
	assert.Equal(t, models.SourceHLS, info.Sources[0].Kind)
	assert.True(t, session.closed, "session must be torn down on success")
}

func TestResolve_RanksByQualityDescending(t *testing.T) {
	session := newFakeSession(
		NetworkResponse{URL: "https://cdn.example.com/v/480/video.mp4", ContentType: "video/mp4"},
		NetworkResponse{URL: "https://cdn.example.com/v/1080/video.mp4", ContentType: "video/mp4"},
		NetworkResponse{URL: "https://cdn.example.com/v/720/video.mp4", ContentType: "video/mp4"},
	)

	info, err := newTestResolver(session).Resolve(context.Background(), "https://video.example.com/watch/2")
	require.NoError(t, err)
	require.Len(t, info.Sources, 3)

	assert.Equal(t, "1080p", info.Sources[0].Quality)
	assert.Equal(t, "720p", info.Sources[1].Quality)
	assert.Equal(t, "480p", info.Sources[2].Quality)
	assert.Equal(t, []string{"1080p", "720p", "480p"}, info.Qualities)
}

func TestResolve_DeduplicatesByURL(t *testing.T) {
	session := newFakeSession(
		NetworkResponse{URL: "https://cdn.example.com/stream/playlist.m3u8"},
		NetworkResponse{URL: "https://cdn.example.com/stream/playlist.m3u8"},
	)

	info, err := newTestResolver(session).Resolve(context.Background(), "https://video.example.com/watch/3")
	require.NoError(t, err)
	assert.Len(t, info.Sources, 1)
}

func TestResolve_NoMediaFound(t *testing.T) {
	session := newFakeSession(
		NetworkResponse{URL: "https://video.example.com/app.js", ContentType: "text/javascript"},
	)

	_, err := newTestResolver(session).Resolve(context.Background(), "https://video.example.com/watch/4")
	require.Error(t, err)

	var resErr *models.ResolutionError
	require.True(t, errors.As(err, &resErr))
	assert.Equal(t, models.ResolutionNoMediaFound, resErr.Kind)
	assert.True(t, session.closed, "session must be torn down on failure")
}

func TestResolve_NavigationFailure(t *testing.T) {
	session := newFakeSession()
	session.navigateErr = errors.New("net::ERR_NAME_NOT_RESOLVED")

	_, err := newTestResolver(session).Resolve(context.Background(), "https://video.example.com/watch/5")
	var resErr *models.ResolutionError
	require.True(t, errors.As(err, &resErr))
	assert.Equal(t, models.ResolutionNetworkFailure, resErr.Kind)
	assert.True(t, session.closed)
}

func TestResolve_PageEmbeddedSources(t *testing.T) {
	session := newFakeSession()
	session.pageSources = []string{"https://cdn.example.com/embedded/720/video.mp4"}

	info, err := newTestResolver(session).Resolve(context.Background(), "https://video.example.com/watch/6")
	require.NoError(t, err)
	require.Len(t, info.Sources, 1)
	assert.Equal(t, models.SourceProgressive, info.Sources[0].Kind)
	assert.Equal(t, "720p", info.Sources[0].Quality)
}

func TestResolve_RejectsPrivateTargets(t *testing.T) {
	r := newTestResolver(newFakeSession())

	for _, target := range []string{
		"ftp://example.com/video",
		"http://localhost/admin",
		"http://127.0.0.1:8080/",
		"http://192.168.1.10/video",
	} {
		_, err := r.Resolve(context.Background(), target)
		var resErr *models.ResolutionError
		require.True(t, errors.As(err, &resErr), "target %s", target)
		assert.Equal(t, models.ResolutionNotSupported, resErr.Kind, "target %s", target)
	}
}

func TestResolve_PopulatesMetadata(t *testing.T) {
	session := newFakeSession(
		NetworkResponse{URL: "https://cdn.example.com/stream/playlist.m3u8"},
	)
	session.duration = 754

	info, err := newTestResolver(session).Resolve(context.Background(), "https://video.example.com/watch/7")
	require.NoError(t, err)
	assert.Equal(t, "Test Video", info.Title)
	assert.Equal(t, "https://example.com/poster.jpg", info.Thumbnail)
	assert.Equal(t, "12:34", info.Duration)
}

func TestDurationLabel(t *testing.T) {
	assert.Equal(t, "", durationLabel(0))
	assert.Equal(t, "00:45", durationLabel(45))
	assert.Equal(t, "12:34", durationLabel(754))
	assert.Equal(t, "01:01:05", durationLabel(3665))
}

func TestSourceForQuality(t *testing.T) {
	info := &Info{Sources: []models.StreamSource{
		{URL: "a", Quality: "1080p"},
		{URL: "b", Quality: "720p"},
	}}

	top, ok := info.SourceForQuality("auto")
	require.True(t, ok)
	assert.Equal(t, "a", top.URL, `"auto" denotes the top-ranked variant`)

	mid, ok := info.SourceForQuality("720p")
	require.True(t, ok)
	assert.Equal(t, "b", mid.URL)
}

func TestDefaultAdPredicate(t *testing.T) {
	assert.True(t, DefaultAdPredicate("https://x.com/ad/clip.mp4"))
	assert.True(t, DefaultAdPredicate("https://x.com/?adSrc=1"))
	assert.False(t, DefaultAdPredicate("https://x.com/stream/playlist.m3u8"))
}
