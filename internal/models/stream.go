package models

// SourceKind distinguishes segmented playlists from single-file sources.
type SourceKind string

const (
	SourceHLS         SourceKind = "hls"
	SourceProgressive SourceKind = "progressive"
)

// StreamSource is one playable URL discovered for a page, consumed once by
// the enqueue call that follows resolution.
type StreamSource struct {
	URL               string     `json:"url"`
	Quality           string     `json:"quality"`
	Kind              SourceKind `json:"type"`
	EncryptionKeyHint string     `json:"keyHint,omitempty"`
}

// ByteRange is an EXT-X-BYTERANGE sub-range of a segment URI.
type ByteRange struct {
	Length int64
	Offset int64
}

// Segment is one media chunk of a playlist. Sequence indices are contiguous
// and start at zero; final assembly order is sequence order regardless of
// fetch completion order.
type Segment struct {
	Sequence  int
	URI       string
	Duration  float64
	ByteRange *ByteRange
	// KeyRef is the EXT-X-KEY URI in effect for this segment. Captured so
	// ordering stays correct for encrypted streams; decryption is out of scope.
	KeyRef string
}

// Manifest is the ordered segment list of one media playlist. Owned by the
// downloader for the duration of a single task.
type Manifest struct {
	Segments       []Segment
	TargetDuration float64
}

// TotalBytes sums advertised segment sizes. Returns 0 when any segment
// carries no byte range, meaning the total is unknown until the last
// segment completes.
func (m *Manifest) TotalBytes() int64 {
	var total int64
	for _, seg := range m.Segments {
		if seg.ByteRange == nil {
			return 0
		}
		total += seg.ByteRange.Length
	}
	return total
}

// VariantRef is one entry of a master playlist. The parser never recurses
// into variants; the caller re-resolves the chosen one explicitly.
type VariantRef struct {
	URI        string
	Bandwidth  uint32
	Resolution string
}
