package models

// ItemStatus is the lifecycle state of a queue item.
type ItemStatus string

const (
	StatusPending     ItemStatus = "pending"
	StatusDownloading ItemStatus = "downloading"
	StatusPaused      ItemStatus = "paused"
	StatusCompleted   ItemStatus = "completed"
	StatusFailed      ItemStatus = "failed"
	StatusCancelled   ItemStatus = "cancelled"
)

// String returns the string representation of the status.
func (s ItemStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the scheduler will never pick the item up again
// without an explicit user action.
func (s ItemStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsReorderable reports whether the item may be removed or moved within the
// queue. Only idle items qualify; in-flight and terminal items keep their
// place until acted on.
func (s ItemStatus) IsReorderable() bool {
	return s == StatusPending || s == StatusPaused
}
