package download

import (
	"context"
	"fmt"

	"github.com/ytget/media-taskd/internal/model"
	"github.com/ytget/media-taskd/internal/platform"
)

// MsgDestinationChanged is recorded on tasks whose file no longer matches their counters
const MsgDestinationChanged = "destination changed while offline"

// Restore loads stored tasks and re-validates the interrupted ones. A task
// stored as Downloading or Paused keeps its state only when its destination
// still holds exactly DownloadedBytes; Downloading tasks are then restarted
// from their cursor as slots free up, ahead of Pending tasks. Any mismatch turns the task into Error with its cursor
// cleared, so a retry starts from the first byte.
func (s *Service) Restore(ctx context.Context) (int, error) {
	if s.gateway == nil {
		return 0, nil
	}

	records, err := s.gateway.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load tasks: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrServiceClosed
	}

	now := s.clock.Now()
	restored := 0
	resuming := 0

	for i := range records {
		task := records[i]
		if task.ID == "" || !task.Status.Valid() {
			s.log.Warnw("restore_skip_invalid", "task_id", task.ID, "status", task.Status)
			continue
		}
		if _, exists := s.tasks[task.ID]; exists {
			continue
		}

		task.SpeedBps = 0
		task.ETASec = -1

		switch task.Status {
		case model.TaskStatusDownloading, model.TaskStatusPaused:
			if !destinationMatches(task.DestinationPath, task.DownloadedBytes) {
				task.Status = model.TaskStatusError
				task.LastError = MsgDestinationChanged
				task.ResumeCursor = ""
				task.FinishedAt = now
				s.log.Warnw("restore_destination_changed", "task_id", task.ID, "destination", task.DestinationPath)
			} else if task.Status == model.TaskStatusDownloading {
				resuming++
			}
		}

		s.tasks[task.ID] = &task
		s.order = append(s.order, task.ID)
		restored++
	}

	s.log.Infow("tasks_restored", "count", restored, "resuming", resuming)

	s.publishLocked()
	s.dispatchLocked()

	return restored, nil
}

// destinationMatches reports whether path holds exactly written bytes. A
// missing file matches a task that never wrote anything.
func destinationMatches(path string, written uint64) bool {
	size, err := platform.FileSize(path)
	if err != nil {
		return false
	}
	if size < 0 {
		return written == 0
	}
	return uint64(size) == written
}
