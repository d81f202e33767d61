package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())

	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusDownloading.IsTerminal())
	assert.False(t, StatusPaused.IsTerminal())
}

func TestIsReorderable(t *testing.T) {
	assert.True(t, StatusPending.IsReorderable())
	assert.True(t, StatusPaused.IsReorderable())

	assert.False(t, StatusDownloading.IsReorderable())
	assert.False(t, StatusCompleted.IsReorderable())
	assert.False(t, StatusFailed.IsReorderable())
	assert.False(t, StatusCancelled.IsReorderable())
}

func TestManifestTotalBytes(t *testing.T) {
	m := &Manifest{Segments: []Segment{
		{Sequence: 0, ByteRange: &ByteRange{Length: 100, Offset: 0}},
		{Sequence: 1, ByteRange: &ByteRange{Length: 150, Offset: 100}},
		{Sequence: 2, ByteRange: &ByteRange{Length: 250, Offset: 250}},
	}}
	assert.Equal(t, int64(500), m.TotalBytes())

	m.Segments[1].ByteRange = nil
	assert.Zero(t, m.TotalBytes(), "one sizeless segment makes the total unknown")
}

func TestNewQueueItem(t *testing.T) {
	item := NewQueueItem("https://cdn.example.com/v.m3u8", "Title", "thumb", "720p", "/dl", "v.mp4", SourceHLS)
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, StatusPending, item.Status)
	assert.False(t, item.AddedAt.IsZero())

	clone := item.Clone()
	clone.Title = "changed"
	assert.Equal(t, "Title", item.Title)
}
