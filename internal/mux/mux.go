// Package mux rewraps downloaded transport streams into MP4 containers by
// shelling out to ffmpeg. Streams are copied, never re-encoded.
package mux

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/TheerasakPing/thai-video-downloader/internal/logger"
	"github.com/TheerasakPing/thai-video-downloader/internal/models"
)

const stderrTailLines = 8

// Remuxer invokes ffmpeg to change containers without touching codec data.
type Remuxer struct {
	logger logger.Logger
	// binary overrides the ffmpeg lookup, for tests.
	binary string
}

// New creates a remuxer using whatever ffmpeg PATH resolves to.
func New(log logger.Logger) *Remuxer {
	return &Remuxer{logger: log, binary: "ffmpeg"}
}

// Remux copies the streams of inPath into an MP4 at outPath. ADTS audio
// headers are converted for the MP4 container. A missing ffmpeg and a
// corrupt input are reported as distinct failures so callers can retry the
// right way.
func (r *Remuxer) Remux(ctx context.Context, inPath, outPath string) error {
	bin, err := exec.LookPath(r.binary)
	if err != nil {
		return &models.MuxError{Kind: models.MuxToolUnavailable, Err: err}
	}

	args := remuxArgs(inPath, outPath)
	r.logger.Debugf("Running %s %s", bin, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &models.MuxError{
			Kind: models.MuxStreamCorrupt,
			Err:  fmt.Errorf("%w: %s", err, stderrTail(stderr.String())),
		}
	}
	return nil
}

func remuxArgs(inPath, outPath string) []string {
	return []string{"-y", "-i", inPath, "-c", "copy", "-bsf:a", "aac_adtstoasc", outPath}
}

// stderrTail keeps the last few lines of ffmpeg output, which is where it
// states the actual failure.
func stderrTail(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > stderrTailLines {
		lines = lines[len(lines)-stderrTailLines:]
	}
	return strings.Join(lines, "\n")
}
