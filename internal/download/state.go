package download

import (
	"encoding/json"
	"os"
)

// ResumeState is the sidecar written next to a partial file so a paused
// transfer can continue where it stopped. For playlists NextIndex is the
// first sequence not yet flushed; for progressive sources it stays zero and
// WrittenBytes carries the resume offset.
type ResumeState struct {
	NextIndex    int   `json:"nextIndex"`
	WrittenBytes int64 `json:"writtenBytes"`
}

func statePath(partPath string) string {
	return partPath + ".state"
}

// LoadState reads the sidecar for a partial file. The second return is false
// when no usable state exists.
func LoadState(partPath string) (ResumeState, bool) {
	data, err := os.ReadFile(statePath(partPath))
	if err != nil {
		return ResumeState{}, false
	}
	var st ResumeState
	if err := json.Unmarshal(data, &st); err != nil {
		return ResumeState{}, false
	}
	if st.NextIndex < 0 || st.WrittenBytes < 0 {
		return ResumeState{}, false
	}
	return st, true
}

// SaveState writes the sidecar. Failures are returned but callers treat them
// as non-fatal; losing resume state only costs a restart from zero.
func SaveState(partPath string, st ResumeState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return os.WriteFile(statePath(partPath), data, 0o644)
}

// ClearState removes the sidecar once the transfer finished or was cancelled.
func ClearState(partPath string) {
	_ = os.Remove(statePath(partPath))
}
