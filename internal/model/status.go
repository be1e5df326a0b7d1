package model

// TaskStatus represents the lifecycle state of a download task
type TaskStatus string

const (
	// TaskStatusPending means the task is registered but no transfer has started
	TaskStatusPending TaskStatus = "Pending"

	// TaskStatusDownloading means a transfer loop owns the task and is writing bytes
	TaskStatusDownloading TaskStatus = "Downloading"

	// TaskStatusPaused means the transfer was stopped by the user and can be resumed
	TaskStatusPaused TaskStatus = "Paused"

	// TaskStatusCompleted means every byte was written to the destination
	TaskStatusCompleted TaskStatus = "Completed"

	// TaskStatusError means the transfer failed; the task may be retried
	TaskStatusError TaskStatus = "Error"

	// TaskStatusCancelled means the task was cancelled and its file removed
	TaskStatusCancelled TaskStatus = "Cancelled"
)

// transitions is the single authoritative state table. Deletion is not a
// transition: it removes the record from any state.
var transitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:     {TaskStatusDownloading, TaskStatusCancelled},
	TaskStatusDownloading: {TaskStatusPaused, TaskStatusCompleted, TaskStatusError, TaskStatusCancelled},
	TaskStatusPaused:      {TaskStatusDownloading, TaskStatusCancelled},
	TaskStatusError:       {TaskStatusDownloading},
}

// AllStatuses lists every status in lifecycle order
func AllStatuses() []TaskStatus {
	return []TaskStatus{
		TaskStatusPending,
		TaskStatusDownloading,
		TaskStatusPaused,
		TaskStatusCompleted,
		TaskStatusError,
		TaskStatusCancelled,
	}
}

// String returns the string representation of TaskStatus
func (ts TaskStatus) String() string {
	return string(ts)
}

// Valid reports whether ts is one of the known statuses
func (ts TaskStatus) Valid() bool {
	for _, s := range AllStatuses() {
		if s == ts {
			return true
		}
	}
	return false
}

// CanTransition reports whether the table allows moving from ts to next
func (ts TaskStatus) CanTransition(next TaskStatus) bool {
	for _, allowed := range transitions[ts] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsActive returns true while a transfer loop may be running for the task
func (ts TaskStatus) IsActive() bool {
	return ts == TaskStatusDownloading
}

// IsLive returns true for states that can still reach Completed without a retry
func (ts TaskStatus) IsLive() bool {
	return ts == TaskStatusPending || ts == TaskStatusDownloading || ts == TaskStatusPaused
}

// IsTerminal returns true for states no signal can leave (Error is left only by retry)
func (ts TaskStatus) IsTerminal() bool {
	return ts == TaskStatusCompleted || ts == TaskStatusCancelled
}

// IsFinished returns true if the task is in a finished state (completed, cancelled, or error)
func (ts TaskStatus) IsFinished() bool {
	return ts.IsTerminal() || ts == TaskStatusError
}
