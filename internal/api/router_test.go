package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheerasakPing/thai-video-downloader/internal/history"
	"github.com/TheerasakPing/thai-video-downloader/internal/logger"
	"github.com/TheerasakPing/thai-video-downloader/internal/models"
	"github.com/TheerasakPing/thai-video-downloader/internal/queue"
	"github.com/TheerasakPing/thai-video-downloader/internal/resolver"
)

type fakeResolver struct {
	info *resolver.Info
	err  error
}

func (f *fakeResolver) Resolve(ctx context.Context, pageURL string) (*resolver.Info, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.info, nil
}

// idleRunner never gets scheduled; the manager stays unstarted in these
// tests so items remain deterministically pending.
type idleRunner struct{}

func (idleRunner) Run(ctx context.Context, item *models.QueueItem, progress func(float64, models.ProgressSnapshot)) (string, int64, error) {
	<-ctx.Done()
	return "", 0, ctx.Err()
}

func (idleRunner) Cleanup(item *models.QueueItem) error { return nil }

type fixture struct {
	handler http.Handler
	queue   *queue.Manager
	store   *history.FileStore
}

func newFixture(t *testing.T, res StreamResolver) *fixture {
	t.Helper()
	mgr := queue.NewManager(idleRunner{}, nil, logger.Nop(), 2, 10*time.Millisecond)
	store := history.NewFileStore(filepath.Join(t.TempDir(), "history.json"), 100, logger.Nop())
	return &fixture{
		handler: New(res, mgr, store, t.TempDir(), logger.Nop()),
		queue:   mgr,
		store:   store,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestResolveEndpoint(t *testing.T) {
	info := &resolver.Info{
		URL:       "https://example.com/watch/1",
		Title:     "Video",
		Qualities: []string{"1080p"},
		Sources:   []models.StreamSource{{URL: "https://cdn.example.com/v.m3u8", Quality: "1080p", Kind: models.SourceHLS}},
	}
	f := newFixture(t, &fakeResolver{info: info})

	rec := f.do(t, http.MethodPost, "/resolve", map[string]string{"url": "https://example.com/watch/1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var got resolver.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Video", got.Title)
	require.Len(t, got.Sources, 1)
}

func TestResolveEndpoint_ErrorMapping(t *testing.T) {
	cases := []struct {
		kind models.ResolutionKind
		code int
	}{
		{models.ResolutionNotSupported, http.StatusBadRequest},
		{models.ResolutionNoMediaFound, http.StatusNotFound},
		{models.ResolutionTimeout, http.StatusGatewayTimeout},
		{models.ResolutionNetworkFailure, http.StatusBadGateway},
	}
	for _, tc := range cases {
		f := newFixture(t, &fakeResolver{err: &models.ResolutionError{Kind: tc.kind}})
		rec := f.do(t, http.MethodPost, "/resolve", map[string]string{"url": "https://example.com/x"})
		assert.Equal(t, tc.code, rec.Code, "kind %s", tc.kind)
	}
}

func TestResolveEndpoint_BadBody(t *testing.T) {
	f := newFixture(t, &fakeResolver{})
	rec := f.do(t, http.MethodPost, "/resolve", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnqueueAndList(t *testing.T) {
	f := newFixture(t, &fakeResolver{})

	rec := f.do(t, http.MethodPost, "/queue", map[string]string{
		"url":     "https://cdn.example.com/stream/playlist.m3u8",
		"title":   "My: Video?",
		"quality": "1080p",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var item models.QueueItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, models.StatusPending, item.Status)
	assert.Equal(t, models.SourceHLS, item.SourceKind, "kind inferred from the URL")
	assert.Equal(t, "My_ Video_.mp4", item.OutputFilename)

	rec = f.do(t, http.MethodGet, "/queue", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var items []models.QueueItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, item.ID, items[0].ID)
}

func TestQueueActions(t *testing.T) {
	f := newFixture(t, &fakeResolver{})
	rec := f.do(t, http.MethodPost, "/queue", map[string]string{"url": "https://cdn.example.com/v.mp4", "title": "v"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var item models.QueueItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))

	// Pausing a pending item is a state conflict.
	rec = f.do(t, http.MethodPost, "/queue/"+item.ID+"/pause", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/queue/"+item.ID+"/cancel", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodPost, "/queue/"+item.ID+"/explode", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/queue/missing/pause", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRemoveAndClearCompleted(t *testing.T) {
	f := newFixture(t, &fakeResolver{})
	rec := f.do(t, http.MethodPost, "/queue", map[string]string{"url": "https://cdn.example.com/v.mp4", "title": "v"})
	var item models.QueueItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))

	rec = f.do(t, http.MethodDelete, "/queue/"+item.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodDelete, "/queue/"+item.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/queue/clear-completed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed":0}`, rec.Body.String())
}

func TestHistoryEndpoints(t *testing.T) {
	f := newFixture(t, &fakeResolver{})
	require.NoError(t, f.store.Add(history.Record{ID: "h1", Title: "Old", FileSize: 9}))
	require.NoError(t, f.store.Add(history.Record{ID: "h2", Title: "New", FileSize: 11}))

	rec := f.do(t, http.MethodGet, "/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var records []history.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 2)
	assert.Equal(t, "h2", records[0].ID)

	rec = f.do(t, http.MethodDelete, "/history/h1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodDelete, "/history", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/history", nil)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestSetConcurrency(t *testing.T) {
	f := newFixture(t, &fakeResolver{})

	rec := f.do(t, http.MethodPut, "/settings/concurrency", map[string]int{"max": 4})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"max":4}`, rec.Body.String())

	rec = f.do(t, http.MethodPut, "/settings/concurrency", map[string]int{"max": 9})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventsStream(t *testing.T) {
	f := newFixture(t, &fakeResolver{})
	server := httptest.NewServer(f.handler)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	queued := f.queue.Enqueue(models.NewQueueItem("https://cdn.example.com/v.m3u8", "v", "", "auto", t.TempDir(), "v.mp4", models.SourceHLS))

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev models.ProgressEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		assert.Equal(t, queued.ID, ev.ID)
		assert.Equal(t, models.StatusPending, ev.Status)
		return
	}
	t.Fatalf("no event received: %v", scanner.Err())
}

func TestOutputFilename(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Plain Title", "Plain Title.mp4"},
		{"bad/name: here?", "bad_name_ here_.mp4"},
		{"already.mp4", "already.mp4"},
		{"", "download.mp4"},
		{"...", "download.mp4"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, outputFilename(tc.in), "input %q", tc.in)
	}
}
