package models

import (
	"errors"
	"fmt"
)

// ResolutionKind categorizes stream discovery failures.
type ResolutionKind string

const (
	ResolutionNotSupported   ResolutionKind = "not_supported"
	ResolutionNetworkFailure ResolutionKind = "network_failure"
	ResolutionNoMediaFound   ResolutionKind = "no_media_found"
	ResolutionTimeout        ResolutionKind = "timeout"
)

// ResolutionError is a stream discovery failure. Never retried
// automatically; re-resolving is the user's decision.
type ResolutionError struct {
	Kind ResolutionKind
	Err  error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolution failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("resolution failed (%s)", e.Kind)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// ParseKind categorizes manifest parse failures.
type ParseKind string

const (
	ParseMalformed          ParseKind = "malformed"
	ParseUnsupportedFeature ParseKind = "unsupported_feature"
)

// ParseError is a manifest parse failure.
type ParseError struct {
	Kind ParseKind
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("manifest parse failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("manifest parse failed (%s)", e.Kind)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SegmentFetchExhaustedError marks a single segment that failed every
// configured retry attempt, failing its whole task.
type SegmentFetchExhaustedError struct {
	Index    int
	Attempts int
	Err      error
}

func (e *SegmentFetchExhaustedError) Error() string {
	return fmt.Sprintf("segment %d failed after %d attempts: %v", e.Index, e.Attempts, e.Err)
}

func (e *SegmentFetchExhaustedError) Unwrap() error { return e.Err }

// MuxKind categorizes remux failures.
type MuxKind string

const (
	MuxToolUnavailable MuxKind = "tool_unavailable"
	MuxStreamCorrupt   MuxKind = "stream_corrupt"
)

// MuxError is a container remux failure. It occurs after all segments are
// on disk, so a retry should re-attempt muxing rather than re-download.
type MuxError struct {
	Kind MuxKind
	Err  error
}

func (e *MuxError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remux failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("remux failed (%s)", e.Kind)
}

func (e *MuxError) Unwrap() error { return e.Err }

// ErrConcurrencyLimitInvalid rejects an out-of-range concurrency setting at
// configuration load time.
var ErrConcurrencyLimitInvalid = errors.New("max concurrent downloads must be between 1 and 5")
