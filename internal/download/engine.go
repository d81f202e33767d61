package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/TheerasakPing/thai-video-downloader/internal/config"
	"github.com/TheerasakPing/thai-video-downloader/internal/logger"
	"github.com/TheerasakPing/thai-video-downloader/internal/manifest"
	"github.com/TheerasakPing/thai-video-downloader/internal/models"
)

// Muxer rewraps a finished transport stream into its final container.
type Muxer interface {
	Remux(ctx context.Context, inPath, outPath string) error
}

// Engine executes one queue item end to end: playlist retrieval, segment or
// progressive transfer, container remux and partial-file bookkeeping. It is
// stateless across tasks; all per-task state lives on disk next to the
// output file.
type Engine struct {
	client      *Client
	segments    *SegmentDownloader
	progressive *ProgressiveDownloader
	muxer       Muxer
	logger      logger.Logger
}

// NewEngine wires a task engine from the configuration.
func NewEngine(cfg *config.Config, muxer Muxer, log logger.Logger) *Engine {
	client := NewClient(log, cfg.UserAgent)
	return &Engine{
		client: client,
		segments: NewSegmentDownloader(client, log,
			cfg.SegmentWorkers, cfg.SegmentRetries,
			cfg.BackoffBase.Std(), cfg.FetchTimeout.Std()),
		progressive: NewProgressiveDownloader(client, log,
			cfg.SegmentRetries, cfg.BackoffBase.Std()),
		muxer:  muxer,
		logger: log,
	}
}

// Run downloads the item to completion and returns the final file path and
// size. A cancelled context propagates out as ctx.Err(); the caller decides
// whether that was a pause or a cancel.
func (e *Engine) Run(ctx context.Context, item *models.QueueItem, progress func(percent float64, snap models.ProgressSnapshot)) (string, int64, error) {
	if err := os.MkdirAll(item.OutputDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	finalPath := filepath.Join(item.OutputDir, item.OutputFilename)
	partPath := partPathFor(finalPath)

	var err error
	switch item.SourceKind {
	case models.SourceHLS:
		err = e.runPlaylist(ctx, item, partPath, finalPath, progress)
	default:
		err = e.runProgressive(ctx, item, partPath, finalPath, progress)
	}
	if err != nil {
		return "", 0, err
	}

	fi, err := os.Stat(finalPath)
	if err != nil {
		return "", 0, fmt.Errorf("finished file missing: %w", err)
	}
	return finalPath, fi.Size(), nil
}

// Cleanup removes the partial file and its resume sidecar after a cancel.
func (e *Engine) Cleanup(item *models.QueueItem) error {
	partPath := partPathFor(filepath.Join(item.OutputDir, item.OutputFilename))
	ClearState(partPath)
	if err := os.Remove(partPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove partial file: %w", err)
	}
	return nil
}

func (e *Engine) runPlaylist(ctx context.Context, item *models.QueueItem, partPath, finalPath string, progress func(float64, models.ProgressSnapshot)) error {
	media, err := e.fetchMedia(ctx, item.SourceURL, item.Quality)
	if err != nil {
		return err
	}

	total := len(media.Segments)
	st, resuming := LoadState(partPath)
	if resuming && !partMatches(partPath, st) {
		st, resuming = ResumeState{}, false
	}
	if st.NextIndex > total {
		st, resuming = ResumeState{}, false
	}

	if st.NextIndex < total {
		flags := os.O_CREATE | os.O_WRONLY
		if resuming {
			flags |= os.O_APPEND
		} else {
			flags |= os.O_TRUNC
		}
		f, err := os.OpenFile(partPath, flags, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open partial file: %w", err)
		}

		totalBytes := media.TotalBytes()
		meter := models.NewSpeedMeter(st.WrittenBytes, totalBytes)
		done := st.NextIndex
		written := st.WrittenBytes
		onSegment := func(seq int, n int64) {
			done = seq + 1
			written += n
			snap := meter.Add(n)
			if progress != nil {
				// Byte-accurate when every segment advertises its size;
				// otherwise the segment count is the only measure available.
				pct := snap.Percent()
				if totalBytes == 0 {
					pct = float64(done) / float64(total) * 100
				}
				progress(pct, snap)
			}
			_ = SaveState(partPath, ResumeState{NextIndex: done, WrittenBytes: written})
		}

		err = e.segments.Download(ctx, media.Segments[st.NextIndex:], f, onSegment)
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close partial file: %w", cerr)
		}
		if err != nil {
			return err
		}
	} else {
		e.logger.Infof("All %d segments already on disk for %s, remuxing only", total, item.OutputFilename)
	}

	if err := e.muxer.Remux(ctx, partPath, finalPath); err != nil {
		return err
	}

	ClearState(partPath)
	if err := os.Remove(partPath); err != nil && !os.IsNotExist(err) {
		e.logger.Warnf("Failed to remove partial file %s: %v", partPath, err)
	}
	return nil
}

func (e *Engine) runProgressive(ctx context.Context, item *models.QueueItem, partPath, finalPath string, progress func(float64, models.ProgressSnapshot)) error {
	var offset int64
	if st, ok := LoadState(partPath); ok && partMatches(partPath, st) {
		offset = st.WrittenBytes
	}

	f, err := os.OpenFile(partPath, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open partial file: %w", err)
	}

	meter := models.NewSpeedMeter(offset, 0)
	onBytes := func(n int64) {
		snap := meter.Add(n)
		if progress != nil {
			progress(snap.Percent(), snap)
		}
	}

	finalSize, err := e.progressive.Fetch(ctx, item.SourceURL, f, offset, meter.SetTotal, onBytes)
	if err != nil {
		_ = SaveState(partPath, ResumeState{WrittenBytes: finalSize})
	}
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close partial file: %w", cerr)
	}
	if err != nil {
		return err
	}

	ClearState(partPath)
	if err := os.Rename(partPath, finalPath); err != nil {
		return fmt.Errorf("failed to move finished file into place: %w", err)
	}
	return nil
}

// fetchMedia retrieves and parses the playlist, following one master level
// by picking the variant closest to the requested quality.
func (e *Engine) fetchMedia(ctx context.Context, playlistURL, quality string) (*models.Manifest, error) {
	data, err := e.client.FetchPlaylist(ctx, playlistURL)
	if err != nil {
		return nil, err
	}
	parsed, err := manifest.Parse(data, playlistURL)
	if err != nil {
		return nil, err
	}

	if parsed.IsMaster {
		variant := pickVariant(parsed.Variants, quality)
		e.logger.Debugf("Master playlist: picked variant %s (%s, %d bps)", variant.URI, variant.Resolution, variant.Bandwidth)

		data, err = e.client.FetchPlaylist(ctx, variant.URI)
		if err != nil {
			return nil, err
		}
		parsed, err = manifest.Parse(data, variant.URI)
		if err != nil {
			return nil, err
		}
		if parsed.IsMaster {
			return nil, &models.ParseError{Kind: models.ParseUnsupportedFeature, Err: fmt.Errorf("master playlist points at another master playlist")}
		}
	}
	return parsed.Media, nil
}

// pickVariant matches the requested quality label against variant
// resolutions, falling back to the highest bandwidth.
func pickVariant(variants []models.VariantRef, quality string) models.VariantRef {
	marker := strings.TrimSuffix(quality, "p")
	if marker != "" && quality != "auto" {
		for _, v := range variants {
			if strings.Contains(v.Resolution, marker) {
				return v
			}
		}
	}

	best := variants[0]
	for _, v := range variants[1:] {
		if v.Bandwidth > best.Bandwidth {
			best = v
		}
	}
	return best
}

// partMatches verifies the partial file on disk is the one the sidecar
// describes. Any mismatch restarts the transfer from zero.
func partMatches(partPath string, st ResumeState) bool {
	fi, err := os.Stat(partPath)
	if err != nil {
		return false
	}
	return fi.Size() == st.WrittenBytes
}

func partPathFor(finalPath string) string {
	return finalPath + ".part"
}
