// Package history persists the record of finished downloads as a JSON file,
// newest first, capped at a configurable length.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/TheerasakPing/thai-video-downloader/internal/logger"
)

// Record is one finished download.
type Record struct {
	ID           string    `json:"id"`
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Thumbnail    string    `json:"thumbnail"`
	Filename     string    `json:"filename"`
	Quality      string    `json:"quality"`
	DownloadedAt time.Time `json:"downloaded_at"`
	FilePath     string    `json:"file_path"`
	FileSize     int64     `json:"file_size"`
}

// Recorder is the write-only side of the store, all the queue needs.
type Recorder interface {
	Add(rec Record) error
}

// Store is the history contract consumed by the API layer.
type Store interface {
	Add(rec Record) error
	List() ([]Record, error)
	Delete(id string) error
	Clear() error
}

// FileStore keeps history in a single JSON file. All methods are safe for
// concurrent use; the file is rewritten whole on every mutation.
type FileStore struct {
	mu     sync.Mutex
	path   string
	limit  int
	logger logger.Logger
}

// NewFileStore creates a store writing to path, keeping at most limit
// records.
func NewFileStore(path string, limit int, log logger.Logger) *FileStore {
	return &FileStore{path: path, limit: limit, logger: log}
}

// Add prepends a record, dropping the oldest entries beyond the cap.
func (s *FileStore) Add(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		// A corrupt history file must not block new downloads.
		s.logger.Warnf("Discarding unreadable history file %s: %v", s.path, err)
		records = nil
	}

	records = append([]Record{rec}, records...)
	if s.limit > 0 && len(records) > s.limit {
		records = records[:s.limit]
	}
	return s.save(records)
}

// List returns all records, newest first.
func (s *FileStore) List() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Delete removes the record with the given id. Unknown ids are a no-op.
func (s *FileStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	kept := records[:0]
	for _, rec := range records {
		if rec.ID != id {
			kept = append(kept, rec)
		}
	}
	return s.save(kept)
}

// Clear removes every record.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(nil)
}

func (s *FileStore) load() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse history file: %w", err)
	}
	return records, nil
}

func (s *FileStore) save(records []Record) error {
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}
	return nil
}
