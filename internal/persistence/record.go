// Package persistence stores task snapshots so they survive a restart.
package persistence

import (
	"time"

	"github.com/ytget/media-taskd/internal/model"
)

// TaskRecord is the flat row layout shared by every driver. Timestamps are
// unix nanoseconds with 0 meaning unset.
type TaskRecord struct {
	ID              string  `gorm:"column:id;primaryKey;size:64"`
	Position        int     `gorm:"column:position;index;not null"`
	Title           string  `gorm:"column:title"`
	Platform        string  `gorm:"column:platform;size:32"`
	Thumbnail       string  `gorm:"column:thumbnail"`
	Author          string  `gorm:"column:author"`
	URL             string  `gorm:"column:url;not null"`
	Quality         string  `gorm:"column:quality;size:32"`
	DestinationPath string  `gorm:"column:destination_path"`
	Status          string  `gorm:"column:status;size:16;index"`
	ProgressPercent float64 `gorm:"column:progress_percent"`
	DownloadedBytes int64   `gorm:"column:downloaded_bytes"`
	TotalBytes      int64   `gorm:"column:total_bytes"`
	TotalEstimated  bool    `gorm:"column:total_estimated"`
	LastError       string  `gorm:"column:last_error"`
	ResumeCursor    string  `gorm:"column:resume_cursor"`
	CreatedNs       int64   `gorm:"column:created_ns"`
	StartedNs       int64   `gorm:"column:started_ns"`
	FinishedNs      int64   `gorm:"column:finished_ns"`
}

func (TaskRecord) TableName() string {
	return "download_tasks"
}

func toRecord(task model.DownloadTask, position int) TaskRecord {
	return TaskRecord{
		ID:              task.ID,
		Position:        position,
		Title:           task.Media.Title,
		Platform:        task.Media.Platform,
		Thumbnail:       task.Media.Thumbnail,
		Author:          task.Media.Author,
		URL:             task.Media.URL,
		Quality:         task.Quality,
		DestinationPath: task.DestinationPath,
		Status:          string(task.Status),
		ProgressPercent: task.ProgressPercent,
		DownloadedBytes: int64(task.DownloadedBytes),
		TotalBytes:      int64(task.TotalBytes),
		TotalEstimated:  task.TotalEstimated,
		LastError:       task.LastError,
		ResumeCursor:    task.ResumeCursor,
		CreatedNs:       toNanos(task.CreatedAt),
		StartedNs:       toNanos(task.StartedAt),
		FinishedNs:      toNanos(task.FinishedAt),
	}
}

// Task converts the row back into a task. Live counters such as speed and
// ETA are not stored.
func (r TaskRecord) Task() model.DownloadTask {
	return model.DownloadTask{
		ID: r.ID,
		Media: model.MediaRef{
			Title:     r.Title,
			Platform:  r.Platform,
			Thumbnail: r.Thumbnail,
			Author:    r.Author,
			URL:       r.URL,
		},
		Quality:         r.Quality,
		DestinationPath: r.DestinationPath,
		Status:          model.TaskStatus(r.Status),
		ProgressPercent: r.ProgressPercent,
		DownloadedBytes: uint64(max(r.DownloadedBytes, 0)),
		TotalBytes:      uint64(max(r.TotalBytes, 0)),
		TotalEstimated:  r.TotalEstimated,
		ETASec:          -1,
		LastError:       r.LastError,
		ResumeCursor:    r.ResumeCursor,
		CreatedAt:       fromNanos(r.CreatedNs),
		StartedAt:       fromNanos(r.StartedNs),
		FinishedAt:      fromNanos(r.FinishedNs),
	}
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
