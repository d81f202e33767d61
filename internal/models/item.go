package models

import (
	"time"

	"github.com/google/uuid"
)

// QueueItem is one queued download. It is owned exclusively by the queue
// manager; every field mutation goes through the manager's lock.
type QueueItem struct {
	ID             string     `json:"id"`
	SourceURL      string     `json:"url"`
	Title          string     `json:"title"`
	Thumbnail      string     `json:"thumbnail"`
	Quality        string     `json:"quality"`
	SourceKind     SourceKind `json:"type"`
	OutputDir      string     `json:"outputDir"`
	OutputFilename string     `json:"outputFilename"`
	Status         ItemStatus `json:"status"`
	// Progress is a percentage in [0,100].
	Progress  float64   `json:"progress"`
	Speed     string    `json:"speed"`
	ETA       string    `json:"eta"`
	LastError string    `json:"error,omitempty"`
	FilePath  string    `json:"filePath,omitempty"`
	Position  int       `json:"position"`
	AddedAt   time.Time `json:"addedAt"`
}

// NewQueueItem builds a pending item with a fresh ID.
func NewQueueItem(sourceURL, title, thumbnail, quality, outputDir, outputFilename string, kind SourceKind) *QueueItem {
	return &QueueItem{
		ID:             uuid.New().String(),
		SourceURL:      sourceURL,
		Title:          title,
		Thumbnail:      thumbnail,
		Quality:        quality,
		SourceKind:     kind,
		OutputDir:      outputDir,
		OutputFilename: outputFilename,
		Status:         StatusPending,
		AddedAt:        time.Now().UTC(),
	}
}

// Clone returns a copy safe to hand outside the manager's lock.
func (i *QueueItem) Clone() QueueItem {
	return *i
}

// ProgressEvent is one entry on the per-task event stream fanned out by the
// queue manager. Delivered on every status transition and at a bounded rate
// while bytes are moving.
type ProgressEvent struct {
	ID       string     `json:"id"`
	Status   ItemStatus `json:"status"`
	Progress float64    `json:"progress"`
	Speed    string     `json:"speed"`
	ETA      string     `json:"eta"`
	Message  string     `json:"message"`
	FilePath string     `json:"filePath,omitempty"`
}
