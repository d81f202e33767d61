// Package queue owns the download queue: item lifecycle, the concurrency
// bounded scheduler, and the progress event fanout.
package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/TheerasakPing/thai-video-downloader/internal/history"
	"github.com/TheerasakPing/thai-video-downloader/internal/logger"
	"github.com/TheerasakPing/thai-video-downloader/internal/models"
)

const (
	schedulerTick   = time.Second
	subscriberDepth = 64
)

var (
	// ErrItemNotFound reports an unknown queue item id.
	ErrItemNotFound = errors.New("queue item not found")
	// ErrInvalidTransition reports an operation the item's current state
	// does not allow.
	ErrInvalidTransition = errors.New("operation not valid for item state")
)

// TaskRunner executes one queue item. Run blocks until the item finished,
// failed, or its context was cancelled; Cleanup removes partial files after
// a cancel.
type TaskRunner interface {
	Run(ctx context.Context, item *models.QueueItem, progress func(percent float64, snap models.ProgressSnapshot)) (finalPath string, fileSize int64, err error)
	Cleanup(item *models.QueueItem) error
}

type intent int

const (
	intentNone intent = iota
	intentPause
	intentCancel
)

type activeTask struct {
	cancel context.CancelFunc
	intent intent
}

// Manager is the single owner of the queue. Every item mutation happens
// under its lock; workers report back through it and never touch items
// directly.
type Manager struct {
	runner  TaskRunner
	history history.Recorder
	logger  logger.Logger

	mu            sync.Mutex
	items         []*models.QueueItem
	active        map[string]*activeTask
	resumed       map[string]struct{}
	maxConcurrent int
	subscribers   map[chan models.ProgressEvent]struct{}

	eventInterval time.Duration

	wake       chan struct{}
	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

// NewManager creates a queue manager. maxConcurrent must already be
// validated by configuration loading.
func NewManager(runner TaskRunner, recorder history.Recorder, log logger.Logger, maxConcurrent int, eventInterval time.Duration) *Manager {
	return &Manager{
		runner:        runner,
		history:       recorder,
		logger:        log,
		active:        make(map[string]*activeTask),
		resumed:       make(map[string]struct{}),
		maxConcurrent: maxConcurrent,
		subscribers:   make(map[chan models.ProgressEvent]struct{}),
		eventInterval: eventInterval,
		wake:          make(chan struct{}, 1),
	}
}

// Start launches the scheduler. Stop must be called to release it.
func (m *Manager) Start() {
	m.baseCtx, m.baseCancel = context.WithCancel(context.Background())
	m.wg.Add(1)
	go m.scheduleLoop()
}

// Stop cancels every running task and waits for workers to acknowledge.
// In-flight downloads end up Paused, ready to resume on the next start.
func (m *Manager) Stop() {
	m.baseCancel()
	m.wg.Wait()
}

func (m *Manager) scheduleLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(schedulerTick)
	defer ticker.Stop()

	for {
		select {
		case <-m.baseCtx.Done():
			return
		case <-m.wake:
		case <-ticker.C:
		}
		m.schedule()
	}
}

// schedule admits admissible items in position order while a slot is free.
func (m *Manager) schedule() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, item := range m.sortedLocked() {
		if len(m.active) >= m.maxConcurrent {
			return
		}
		if !m.admissibleLocked(item) {
			continue
		}
		m.launchLocked(item)
	}
}

func (m *Manager) admissibleLocked(item *models.QueueItem) bool {
	switch item.Status {
	case models.StatusPending:
		return true
	case models.StatusPaused:
		_, ok := m.resumed[item.ID]
		return ok
	default:
		return false
	}
}

func (m *Manager) launchLocked(item *models.QueueItem) {
	ctx, cancel := context.WithCancel(m.baseCtx)
	m.active[item.ID] = &activeTask{cancel: cancel}
	delete(m.resumed, item.ID)

	item.Status = models.StatusDownloading
	item.LastError = ""
	m.emitLocked(eventFor(item, "download started"))
	m.logger.Infof("Starting download %s (%s)", item.ID, item.Title)

	m.wg.Add(1)
	go m.runTask(ctx, item.ID)
}

func (m *Manager) runTask(ctx context.Context, id string) {
	defer m.wg.Done()

	m.mu.Lock()
	item := m.findLocked(id)
	if item == nil {
		delete(m.active, id)
		m.mu.Unlock()
		return
	}
	snapshot := item.Clone()
	m.mu.Unlock()

	limiter := rate.NewLimiter(rate.Every(m.eventInterval), 1)
	progress := func(pct float64, snap models.ProgressSnapshot) {
		m.mu.Lock()
		defer m.mu.Unlock()
		it := m.findLocked(id)
		if it == nil || it.Status != models.StatusDownloading {
			return
		}
		it.Progress = pct
		it.Speed = snap.SpeedLabel()
		it.ETA = snap.ETALabel()
		if limiter.Allow() {
			m.emitLocked(eventFor(it, ""))
		}
	}

	path, size, err := m.runner.Run(ctx, &snapshot, progress)
	m.finishTask(id, &snapshot, path, size, err)
	m.kick()
}

// finishTask applies the terminal (or paused) transition once the worker
// returned. Cancel and pause take effect here, on acknowledgment, never
// earlier.
func (m *Manager) finishTask(id string, snapshot *models.QueueItem, path string, size int64, err error) {
	m.mu.Lock()

	task := m.active[id]
	delete(m.active, id)
	taskIntent := intentNone
	if task != nil {
		taskIntent = task.intent
	}

	item := m.findLocked(id)
	if item == nil {
		// Removed while running; nothing to transition, just clean up.
		m.mu.Unlock()
		if cerr := m.runner.Cleanup(snapshot); cerr != nil {
			m.logger.Warnf("Cleanup after removal of %s failed: %v", id, cerr)
		}
		return
	}

	switch {
	case err == nil:
		item.Status = models.StatusCompleted
		item.Progress = 100
		item.Speed = ""
		item.ETA = ""
		item.FilePath = path
		m.emitLocked(eventFor(item, "download completed"))
		m.logger.Infof("Completed download %s (%s)", item.ID, item.Title)

		rec := history.Record{
			ID:           item.ID,
			URL:          item.SourceURL,
			Title:        item.Title,
			Thumbnail:    item.Thumbnail,
			Filename:     item.OutputFilename,
			Quality:      item.Quality,
			DownloadedAt: time.Now().UTC(),
			FilePath:     path,
			FileSize:     size,
		}
		m.mu.Unlock()
		if m.history != nil {
			if herr := m.history.Add(rec); herr != nil {
				m.logger.Warnf("Failed to record history for %s: %v", id, herr)
			}
		}
		return

	case errors.Is(err, context.Canceled) || taskIntent != intentNone:
		if taskIntent == intentCancel {
			item.Status = models.StatusCancelled
			item.Speed = ""
			item.ETA = ""
			item.LastError = ""
			m.emitLocked(eventFor(item, "download cancelled"))
			m.mu.Unlock()
			if cerr := m.runner.Cleanup(snapshot); cerr != nil {
				m.logger.Warnf("Cleanup after cancel of %s failed: %v", id, cerr)
			}
			return
		}
		// Explicit pause, or shutdown; either way the partial file stays.
		item.Status = models.StatusPaused
		item.Speed = ""
		item.ETA = ""
		m.emitLocked(eventFor(item, "download paused"))
		m.mu.Unlock()
		return

	default:
		item.Status = models.StatusFailed
		item.Speed = ""
		item.ETA = ""
		item.LastError = err.Error()
		m.emitLocked(eventFor(item, "download failed"))
		m.logger.Errorf("Download %s failed: %v", id, err)
		m.mu.Unlock()
		return
	}
}

// Enqueue appends a pending item at the end of the queue.
func (m *Manager) Enqueue(item *models.QueueItem) models.QueueItem {
	m.mu.Lock()
	item.Status = models.StatusPending
	item.Position = len(m.items)
	m.items = append(m.items, item)
	m.emitLocked(eventFor(item, "queued"))
	clone := item.Clone()
	m.mu.Unlock()

	m.kick()
	return clone
}

// Items returns a snapshot of the queue in position order.
func (m *Manager) Items() []models.QueueItem {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.QueueItem, 0, len(m.items))
	for _, item := range m.sortedLocked() {
		out = append(out, item.Clone())
	}
	return out
}

// Get returns one item by id.
func (m *Manager) Get(id string) (models.QueueItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item := m.findLocked(id); item != nil {
		return item.Clone(), true
	}
	return models.QueueItem{}, false
}

// Pause stops a downloading item, keeping its partial file for resume. The
// status flips to Paused when the worker acknowledges.
func (m *Manager) Pause(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := m.findLocked(id)
	if item == nil {
		return ErrItemNotFound
	}
	task := m.active[id]
	if item.Status != models.StatusDownloading || task == nil {
		return ErrInvalidTransition
	}
	task.intent = intentPause
	task.cancel()
	return nil
}

// Resume marks a paused item admissible again. It continues, subject to the
// concurrency bound, from where the partial file stops.
func (m *Manager) Resume(id string) error {
	m.mu.Lock()
	item := m.findLocked(id)
	if item == nil {
		m.mu.Unlock()
		return ErrItemNotFound
	}
	if item.Status != models.StatusPaused {
		m.mu.Unlock()
		return ErrInvalidTransition
	}
	m.resumed[id] = struct{}{}
	m.mu.Unlock()

	m.kick()
	return nil
}

// Cancel aborts an item and discards its partial file.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()

	item := m.findLocked(id)
	if item == nil {
		m.mu.Unlock()
		return ErrItemNotFound
	}

	switch item.Status {
	case models.StatusDownloading:
		task := m.active[id]
		if task == nil {
			m.mu.Unlock()
			return ErrInvalidTransition
		}
		task.intent = intentCancel
		task.cancel()
		m.mu.Unlock()
		return nil

	case models.StatusPending, models.StatusPaused:
		hadPartial := item.Status == models.StatusPaused
		delete(m.resumed, id)
		item.Status = models.StatusCancelled
		item.Speed = ""
		item.ETA = ""
		m.emitLocked(eventFor(item, "download cancelled"))
		snapshot := item.Clone()
		m.mu.Unlock()
		if hadPartial {
			if cerr := m.runner.Cleanup(&snapshot); cerr != nil {
				m.logger.Warnf("Cleanup after cancel of %s failed: %v", id, cerr)
			}
		}
		m.kick()
		return nil

	default:
		m.mu.Unlock()
		return ErrInvalidTransition
	}
}

// Retry re-queues a failed item. Completed partial data on disk is reused
// by the runner where possible.
func (m *Manager) Retry(id string) error {
	m.mu.Lock()
	item := m.findLocked(id)
	if item == nil {
		m.mu.Unlock()
		return ErrItemNotFound
	}
	if item.Status != models.StatusFailed {
		m.mu.Unlock()
		return ErrInvalidTransition
	}
	item.Status = models.StatusPending
	item.LastError = ""
	item.Progress = 0
	m.emitLocked(eventFor(item, "queued for retry"))
	m.mu.Unlock()

	m.kick()
	return nil
}

// Remove deletes an item from the queue. A downloading item is cancelled
// first; its worker cleans up after acknowledging.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()

	idx := -1
	for i, item := range m.items {
		if item.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		m.mu.Unlock()
		return ErrItemNotFound
	}

	item := m.items[idx]
	snapshot := item.Clone()
	wasPaused := item.Status == models.StatusPaused

	if task := m.active[id]; task != nil {
		task.intent = intentCancel
		task.cancel()
	}
	delete(m.resumed, id)
	m.items = append(m.items[:idx], m.items[idx+1:]...)
	m.recompactLocked()
	m.mu.Unlock()

	if wasPaused {
		if cerr := m.runner.Cleanup(&snapshot); cerr != nil {
			m.logger.Warnf("Cleanup after removal of %s failed: %v", id, cerr)
		}
	}
	m.kick()
	return nil
}

// MoveUp swaps the item with its closest reorderable predecessor.
func (m *Manager) MoveUp(id string) error { return m.move(id, -1) }

// MoveDown swaps the item with its closest reorderable successor.
func (m *Manager) MoveDown(id string) error { return m.move(id, 1) }

func (m *Manager) move(id string, dir int) error {
	m.mu.Lock()

	ordered := m.sortedLocked()
	idx := -1
	for i, item := range ordered {
		if item.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		m.mu.Unlock()
		return ErrItemNotFound
	}
	if !ordered[idx].Status.IsReorderable() {
		m.mu.Unlock()
		return ErrInvalidTransition
	}

	// Walk past items that cannot change place until a swap partner shows
	// up. Hitting the edge is a no-op.
	for j := idx + dir; j >= 0 && j < len(ordered); j += dir {
		if ordered[j].Status.IsReorderable() {
			ordered[idx].Position, ordered[j].Position = ordered[j].Position, ordered[idx].Position
			break
		}
	}
	m.mu.Unlock()

	m.kick()
	return nil
}

// ClearCompleted removes every item in a terminal state.
func (m *Manager) ClearCompleted() int {
	m.mu.Lock()

	kept := m.items[:0]
	removed := 0
	for _, item := range m.items {
		if item.Status.IsTerminal() {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	m.items = kept
	m.recompactLocked()
	m.mu.Unlock()

	m.kick()
	return removed
}

// SetMaxConcurrent adjusts the concurrency bound. Running downloads are
// never interrupted; a lower bound applies as slots free up.
func (m *Manager) SetMaxConcurrent(n int) error {
	if n < 1 || n > 5 {
		return models.ErrConcurrencyLimitInvalid
	}
	m.mu.Lock()
	m.maxConcurrent = n
	m.mu.Unlock()

	m.kick()
	return nil
}

// MaxConcurrent returns the current concurrency bound.
func (m *Manager) MaxConcurrent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxConcurrent
}

// Subscribe registers an event listener. The returned cancel func must be
// called to release it. A slow listener loses coalesced progress events;
// status transitions evict the oldest buffered event instead, so they are
// always delivered and the channel never blocks the queue.
func (m *Manager) Subscribe() (<-chan models.ProgressEvent, func()) {
	ch := make(chan models.ProgressEvent, subscriberDepth)

	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subscribers, ch)
			m.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// emitLocked fans an event out to every subscriber. Transition events
// carry a message and displace the oldest buffered event when a channel is
// full; plain progress updates are lossy.
func (m *Manager) emitLocked(ev models.ProgressEvent) {
	for ch := range m.subscribers {
		select {
		case ch <- ev:
			continue
		default:
		}
		if ev.Message == "" {
			continue
		}
		// All sends happen under the lock, so after draining one slot the
		// retry cannot race another producer.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

func (m *Manager) kick() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) findLocked(id string) *models.QueueItem {
	for _, item := range m.items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

func (m *Manager) sortedLocked() []*models.QueueItem {
	ordered := make([]*models.QueueItem, len(m.items))
	copy(ordered, m.items)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Position < ordered[j].Position
	})
	return ordered
}

func (m *Manager) recompactLocked() {
	for i, item := range m.sortedLocked() {
		item.Position = i
	}
}

func eventFor(item *models.QueueItem, msg string) models.ProgressEvent {
	return models.ProgressEvent{
		ID:       item.ID,
		Status:   item.Status,
		Progress: item.Progress,
		Speed:    item.Speed,
		ETA:      item.ETA,
		Message:  msg,
		FilePath: item.FilePath,
	}
}
