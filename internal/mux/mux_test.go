package mux

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheerasakPing/thai-video-downloader/internal/logger"
	"github.com/TheerasakPing/thai-video-downloader/internal/models"
)

func TestRemuxArgs(t *testing.T) {
	args := remuxArgs("/tmp/video.ts.part", "/tmp/video.mp4")
	assert.Equal(t, []string{"-y", "-i", "/tmp/video.ts.part", "-c", "copy", "-bsf:a", "aac_adtstoasc", "/tmp/video.mp4"}, args)
}

func TestRemux_ToolUnavailable(t *testing.T) {
	r := New(logger.Nop())
	r.binary = "ffmpeg-that-does-not-exist-anywhere"

	err := r.Remux(context.Background(), "in.ts", "out.mp4")
	require.Error(t, err)

	var muxErr *models.MuxError
	require.True(t, errors.As(err, &muxErr))
	assert.Equal(t, models.MuxToolUnavailable, muxErr.Kind)
}

func TestStderrTail(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 20; i++ {
		b.WriteString("line\n")
	}
	b.WriteString("the actual error")

	tail := stderrTail(b.String())
	assert.Equal(t, stderrTailLines, len(strings.Split(tail, "\n")))
	assert.True(t, strings.HasSuffix(tail, "the actual error"))
}
