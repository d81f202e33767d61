package models

import (
	"fmt"
	"time"
)

// Smoothing factor for the speed moving average: weight of the newest sample.
const speedSmoothing = 0.3

// ProgressSnapshot is the per-task transfer state recomputed on every write.
// Never persisted.
type ProgressSnapshot struct {
	DownloadedBytes int64
	// TotalBytes is 0 when the source did not advertise a size.
	TotalBytes int64
	// SpeedBytesPerSec is an exponential moving average of recent samples.
	SpeedBytesPerSec float64
	// ETASeconds is negative when it cannot be derived.
	ETASeconds float64
}

// Percent returns progress in [0,100], or 0 when the total is unknown.
func (p ProgressSnapshot) Percent() float64 {
	if p.TotalBytes <= 0 {
		return 0
	}
	pct := float64(p.DownloadedBytes) / float64(p.TotalBytes) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// SpeedLabel formats the smoothed speed for display, e.g. "1.2 MB/s".
func (p ProgressSnapshot) SpeedLabel() string {
	switch speed := p.SpeedBytesPerSec; {
	case speed <= 0:
		return ""
	case speed >= 1<<20:
		return fmt.Sprintf("%.1f MB/s", speed/(1<<20))
	case speed >= 1<<10:
		return fmt.Sprintf("%.1f KB/s", speed/(1<<10))
	default:
		return fmt.Sprintf("%.0f B/s", speed)
	}
}

// ETALabel formats the remaining time as mm:ss or hh:mm:ss, or "—" when the
// ETA cannot be derived.
func (p ProgressSnapshot) ETALabel() string {
	if p.ETASeconds < 0 {
		return "—"
	}
	total := int(p.ETASeconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// SpeedMeter tracks cumulative downloaded bytes and smooths instantaneous
// speed samples with an exponential moving average.
type SpeedMeter struct {
	downloaded int64
	total      int64
	speed      float64
	lastSample time.Time
	lastBytes  int64
}

// NewSpeedMeter starts a meter. Pass total 0 when unknown, and a non-zero
// downloaded offset when resuming a paused transfer.
func NewSpeedMeter(downloaded, total int64) *SpeedMeter {
	return &SpeedMeter{
		downloaded: downloaded,
		total:      total,
		lastSample: time.Now(),
		lastBytes:  downloaded,
	}
}

// SetTotal records a total discovered after the transfer started.
func (m *SpeedMeter) SetTotal(total int64) {
	m.total = total
}

// Add accounts for n freshly written bytes and returns the current snapshot.
func (m *SpeedMeter) Add(n int64) ProgressSnapshot {
	m.downloaded += n
	now := time.Now()
	elapsed := now.Sub(m.lastSample).Seconds()
	if elapsed >= 0.5 {
		sample := float64(m.downloaded-m.lastBytes) / elapsed
		if m.speed == 0 {
			m.speed = sample
		} else {
			m.speed = speedSmoothing*sample + (1-speedSmoothing)*m.speed
		}
		m.lastSample = now
		m.lastBytes = m.downloaded
	}
	return m.Snapshot()
}

// Snapshot returns the current transfer state without adding bytes.
func (m *SpeedMeter) Snapshot() ProgressSnapshot {
	eta := -1.0
	if m.speed > 0 && m.total > 0 && m.downloaded < m.total {
		eta = float64(m.total-m.downloaded) / m.speed
	}
	return ProgressSnapshot{
		DownloadedBytes:  m.downloaded,
		TotalBytes:       m.total,
		SpeedBytesPerSec: m.speed,
		ETASeconds:       eta,
	}
}
