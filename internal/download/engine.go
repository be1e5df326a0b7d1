package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/ytget/media-taskd/internal/model"
	"github.com/ytget/media-taskd/internal/platform"
)

// transfer is the body of one run. It owns the destination file until done is closed.
func (s *Service) transfer(ctx context.Context, id string, r *run) {
	defer s.wg.Done()
	defer close(r.done)

	err := s.execute(ctx, id)
	event := s.finish(id, r, err)
	if event != nil && s.notifier != nil {
		s.notifier.Notify(*event)
	}
}

// execute opens the destination and streams into it, retrying network failures
func (s *Service) execute(ctx context.Context, id string) error {
	s.mu.Lock()
	task, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	destination, cursor, written := task.DestinationPath, task.ResumeCursor, task.DownloadedBytes
	s.mu.Unlock()

	file, err := openDestination(destination, cursor, written)
	if err != nil {
		return err
	}

	err = s.transferWithRetry(ctx, task, file)
	if cerr := file.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("%w: %v", ErrWriteFailure, cerr)
	}
	return err
}

// transferWithRetry reopens the stream from the current cursor after a network
// failure. Attempts are counted from the last stream that wrote bytes.
func (s *Service) transferWithRetry(ctx context.Context, task *model.DownloadTask, file *os.File) error {
	attempt := 0
	for {
		progressed, err := s.stream(ctx, task, file)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if progressed {
			attempt = 0
		}
		if !IsRetryable(err) || attempt >= s.opts.RetryAttempts {
			return err
		}

		attempt++
		delay := s.backoff(attempt)
		s.log.Warnw("task_retry_scheduled", "task_id", task.ID, "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(delay):
		}
	}
}

// stream runs one fetcher session. A chunk that arrives after ctx was
// cancelled is dropped before anything is written.
func (s *Service) stream(ctx context.Context, task *model.DownloadTask, file *os.File) (progressed bool, err error) {
	s.mu.Lock()
	media, quality, cursor := task.Media, task.Quality, task.ResumeCursor
	startBytes := task.DownloadedBytes
	s.mu.Unlock()

	st, err := s.fetcher.Open(ctx, media, quality, cursor)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, err
	}
	defer st.Close()

	if total := st.TotalLength(); total > 0 {
		s.mu.Lock()
		task.SetTotal(uint64(total))
		s.publishLocked()
		s.mu.Unlock()
	}

	started := s.clock.Now()
	for {
		if err := ctx.Err(); err != nil {
			return progressed, err
		}

		chunkCtx, cancel := context.WithTimeout(ctx, s.opts.ChunkTimeout)
		data, nextErr := st.Next(chunkCtx)
		timedOut := errors.Is(chunkCtx.Err(), context.DeadlineExceeded)
		cancel()

		if err := ctx.Err(); err != nil {
			return progressed, err
		}
		eof := errors.Is(nextErr, io.EOF)
		if nextErr != nil && !eof {
			if timedOut {
				return progressed, fmt.Errorf("%w: no data within %s", ErrNetworkFailure, s.opts.ChunkTimeout)
			}
			return progressed, nextErr
		}

		if len(data) == 0 && !eof {
			return progressed, fmt.Errorf("%w: stream returned an empty chunk", ErrNetworkFailure)
		}

		if len(data) > 0 {
			if _, werr := file.Write(data); werr != nil {
				s.mu.Lock()
				written := task.DownloadedBytes
				s.mu.Unlock()
				// keep the file aligned with the recorded counters
				_ = file.Truncate(int64(written))
				return progressed, fmt.Errorf("%w: %v", ErrWriteFailure, werr)
			}
			progressed = true

			s.mu.Lock()
			task.SetProgress(task.DownloadedBytes + uint64(len(data)))
			task.ResumeCursor = st.Cursor()
			s.updateRateLocked(task, startBytes, started)
			s.publishLocked()
			s.mu.Unlock()
		}

		if eof {
			s.mu.Lock()
			downloaded, total, estimated := task.DownloadedBytes, task.TotalBytes, task.TotalEstimated
			s.mu.Unlock()

			if !estimated && total > 0 && downloaded < total {
				return progressed, fmt.Errorf("%w: stream ended at %d of %d bytes", ErrNetworkFailure, downloaded, total)
			}
			return progressed, nil
		}
	}
}

// finish applies the outcome of a run under the store lock. A stop reason
// recorded by a command wins over the loop's own result, except that a
// completed transfer stays Completed when it was only paused or shut down.
func (s *Service) finish(id string, r *run, err error) *Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.runs, id)
	defer s.dispatchLocked()

	task, ok := s.tasks[id]
	if !ok {
		return nil
	}

	now := s.clock.Now()
	var event *Event

	switch {
	case r.reason == stopDelete:
		s.removeLocked(task)

	case r.reason == stopCancel:
		s.cancelLocked(task)

	case err == nil:
		task.MarkComplete(now)
		s.log.Infow("task_completed", "task_id", id, "bytes", task.DownloadedBytes, "destination", task.DestinationPath)
		event = newEvent(task, OutcomeCompleted, now)

	case r.reason == stopPause:
		task.Status = model.TaskStatusPaused
		task.SpeedBps = 0
		task.ETASec = -1
		s.log.Infow("task_paused", "task_id", id, "bytes", task.DownloadedBytes, "cursor", task.ResumeCursor)

	case r.reason == stopShutdown:
		// stays Downloading so Restore re-validates it
		task.SpeedBps = 0
		task.ETASec = -1
		s.log.Infow("task_interrupted", "task_id", id, "bytes", task.DownloadedBytes)

	default:
		task.Status = model.TaskStatusError
		task.LastError = err.Error()
		task.SpeedBps = 0
		task.ETASec = -1
		task.FinishedAt = now
		s.log.Errorw("task_failed", "task_id", id, "bytes", task.DownloadedBytes, "error", err)
		event = newEvent(task, OutcomeError, now)
	}

	s.publishLocked()
	return event
}

func newEvent(task *model.DownloadTask, outcome Outcome, at time.Time) *Event {
	return &Event{
		TaskID:      task.ID,
		MediaTitle:  task.GetDisplayTitle(),
		Quality:     task.Quality,
		Outcome:     outcome,
		ErrorDetail: task.LastError,
		At:          at,
	}
}

// updateRateLocked derives speed and ETA from the bytes of the current stream
func (s *Service) updateRateLocked(task *model.DownloadTask, startBytes uint64, started time.Time) {
	elapsed := s.clock.Now().Sub(started).Seconds()
	if elapsed <= 0 {
		return
	}
	speed := float64(task.DownloadedBytes-startBytes) / elapsed
	task.SpeedBps = int64(speed)

	if speed > 0 && task.TotalBytes > task.DownloadedBytes {
		task.ETASec = int(float64(task.TotalBytes-task.DownloadedBytes) / speed)
	} else {
		task.ETASec = -1
	}
}

// backoff waits for an exponentially increasing duration with jitter
func (s *Service) backoff(attempt int) time.Duration {
	backoff := s.opts.RetryBackoff * time.Duration(1<<uint(attempt-1))
	if backoff > s.opts.RetryMaxBackoff || backoff <= 0 {
		backoff = s.opts.RetryMaxBackoff
	}

	// jitter: 0.5 to 1.5 of backoff
	return time.Duration(float64(backoff) * (0.5 + rand.Float64()))
}

// openDestination creates the file for a fresh transfer, or reopens it for
// append after checking it still holds exactly the recorded bytes
func openDestination(path, cursor string, written uint64) (*os.File, error) {
	if err := platform.CreateDirectoryIfNotExists(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}

	if cursor == "" && written == 0 {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, platform.DefaultFilePermissions)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrWriteFailure, err)
		}
		return file, nil
	}

	size, err := platform.FileSize(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	if size != int64(written) {
		return nil, fmt.Errorf("%w: destination holds %d bytes, expected %d", ErrWriteFailure, size, written)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, platform.DefaultFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	return file, nil
}
