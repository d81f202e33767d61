// Package api exposes the resolver, queue and history over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/TheerasakPing/thai-video-downloader/internal/history"
	"github.com/TheerasakPing/thai-video-downloader/internal/logger"
	"github.com/TheerasakPing/thai-video-downloader/internal/models"
	"github.com/TheerasakPing/thai-video-downloader/internal/queue"
	"github.com/TheerasakPing/thai-video-downloader/internal/resolver"
)

// StreamResolver is the discovery capability the API depends on.
type StreamResolver interface {
	Resolve(ctx context.Context, pageURL string) (*resolver.Info, error)
}

type API struct {
	resolver    StreamResolver
	queue       *queue.Manager
	history     history.Store
	downloadDir string
	logger      logger.Logger
}

// New builds the HTTP handler for all endpoints.
func New(res StreamResolver, mgr *queue.Manager, store history.Store, downloadDir string, log logger.Logger) http.Handler {
	api := &API{
		resolver:    res,
		queue:       mgr,
		history:     store,
		downloadDir: downloadDir,
		logger:      log,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /resolve", api.handleResolve)
	mux.HandleFunc("POST /queue", api.handleEnqueue)
	mux.HandleFunc("GET /queue", api.handleListQueue)
	mux.HandleFunc("POST /queue/clear-completed", api.handleClearCompleted)
	mux.HandleFunc("POST /queue/{id}/{action}", api.handleQueueAction)
	mux.HandleFunc("DELETE /queue/{id}", api.handleRemove)
	mux.HandleFunc("GET /events", api.handleEvents)
	mux.HandleFunc("GET /history", api.handleListHistory)
	mux.HandleFunc("DELETE /history/{id}", api.handleDeleteHistory)
	mux.HandleFunc("DELETE /history", api.handleClearHistory)
	mux.HandleFunc("PUT /settings/concurrency", api.handleSetConcurrency)

	return mux
}

type resolveRequest struct {
	URL string `json:"url"`
}

func (a *API) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "request body must be JSON with a non-empty url")
		return
	}

	info, err := a.resolver.Resolve(r.Context(), req.URL)
	if err != nil {
		a.logger.Warnf("Resolution of %s failed: %v", req.URL, err)
		writeError(w, resolutionStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// resolutionStatus maps discovery failures onto HTTP statuses.
func resolutionStatus(err error) int {
	var resErr *models.ResolutionError
	if !errors.As(err, &resErr) {
		return http.StatusInternalServerError
	}
	switch resErr.Kind {
	case models.ResolutionNotSupported:
		return http.StatusBadRequest
	case models.ResolutionNoMediaFound:
		return http.StatusNotFound
	case models.ResolutionTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

type enqueueRequest struct {
	URL       string            `json:"url"`
	Title     string            `json:"title"`
	Thumbnail string            `json:"thumbnail"`
	Quality   string            `json:"quality"`
	Kind      models.SourceKind `json:"type"`
	Filename  string            `json:"filename"`
}

func (a *API) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "request body must be JSON with a non-empty url")
		return
	}

	if req.Kind == "" {
		if strings.Contains(strings.ToLower(req.URL), ".m3u8") {
			req.Kind = models.SourceHLS
		} else {
			req.Kind = models.SourceProgressive
		}
	}
	if req.Quality == "" {
		req.Quality = "auto"
	}
	filename := req.Filename
	if filename == "" {
		filename = req.Title
	}
	filename = outputFilename(filename)

	item := models.NewQueueItem(req.URL, req.Title, req.Thumbnail, req.Quality, a.downloadDir, filename, req.Kind)
	queued := a.queue.Enqueue(item)
	writeJSON(w, http.StatusCreated, queued)
}

func (a *API) handleListQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.queue.Items())
}

func (a *API) handleQueueAction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	action := r.PathValue("action")

	var err error
	switch action {
	case "pause":
		err = a.queue.Pause(id)
	case "resume":
		err = a.queue.Resume(id)
	case "cancel":
		err = a.queue.Cancel(id)
	case "retry":
		err = a.queue.Retry(id)
	case "move-up":
		err = a.queue.MoveUp(id)
	case "move-down":
		err = a.queue.MoveDown(id)
	default:
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown action %q", action))
		return
	}

	if err != nil {
		writeError(w, queueStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRemove(w http.ResponseWriter, r *http.Request) {
	if err := a.queue.Remove(r.PathValue("id")); err != nil {
		writeError(w, queueStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleClearCompleted(w http.ResponseWriter, r *http.Request) {
	removed := a.queue.ClearCompleted()
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func queueStatus(err error) int {
	switch {
	case errors.Is(err, queue.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, queue.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// handleEvents streams queue events as server-sent events until the client
// disconnects.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, cancel := a.queue.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (a *API) handleListHistory(w http.ResponseWriter, r *http.Request) {
	records, err := a.history.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (a *API) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	if err := a.history.Delete(r.PathValue("id")); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := a.history.Clear(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type concurrencyRequest struct {
	Max int `json:"max"`
}

func (a *API) handleSetConcurrency(w http.ResponseWriter, r *http.Request) {
	var req concurrencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be JSON with a max field")
		return
	}
	if err := a.queue.SetMaxConcurrent(req.Max); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"max": a.queue.MaxConcurrent()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
