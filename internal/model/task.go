package model

import (
	"fmt"
	"strings"
	"time"
)

// MediaRef identifies the source rendition a task materializes
type MediaRef struct {
	Title     string `json:"title"`
	Platform  string `json:"platform"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Author    string `json:"author,omitempty"`
	URL       string `json:"url"`
}

// Rendition is one quality/format variant offered for a media item
type Rendition struct {
	Label      string `json:"label"`      // quality label, e.g. "720p"
	Bandwidth  uint32 `json:"bandwidth"`  // bits per second as advertised
	Resolution string `json:"resolution"` // e.g. "1280x720"
	Codecs     string `json:"codecs,omitempty"`
	URL        string `json:"url"`
}

// DownloadTask represents a single download task
type DownloadTask struct {
	ID              string     `json:"id"`
	Media           MediaRef   `json:"media"`
	Quality         string     `json:"quality"`
	DestinationPath string     `json:"destination_path"`
	Status          TaskStatus `json:"status"`
	ProgressPercent float64    `json:"progress_percent"` // 0 to 100
	DownloadedBytes uint64     `json:"downloaded_bytes"`
	TotalBytes      uint64     `json:"total_bytes"`     // 0 means unknown
	TotalEstimated  bool       `json:"total_estimated"` // TotalBytes comes from the quality table
	SpeedBps        int64      `json:"speed_bps"`       // bytes per second of the current run
	ETASec          int        `json:"eta_sec"`         // ETA in seconds, -1 if unknown
	LastError       string     `json:"last_error,omitempty"`
	ResumeCursor    string     `json:"resume_cursor,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       time.Time  `json:"started_at"`  // first transition into Downloading
	FinishedAt      time.Time  `json:"finished_at"` // Completed, Error or Cancelled
}

// NewDownloadTask builds the initial Pending record
func NewDownloadTask(id string, media MediaRef, quality, destination string, createdAt time.Time) *DownloadTask {
	return &DownloadTask{
		ID:              id,
		Media:           media,
		Quality:         quality,
		DestinationPath: destination,
		Status:          TaskStatusPending,
		ETASec:          -1,
		CreatedAt:       createdAt,
	}
}

// Snapshot returns a copy safe to hand to readers outside the owning lock
func (dt *DownloadTask) Snapshot() DownloadTask {
	return *dt
}

// SetProgress records written bytes and recomputes ProgressPercent. An
// estimated total is raised to keep DownloadedBytes <= TotalBytes, and an
// estimate never yields 100 percent.
func (dt *DownloadTask) SetProgress(downloaded uint64) {
	if downloaded < dt.DownloadedBytes {
		return
	}
	dt.DownloadedBytes = downloaded
	if dt.TotalBytes > 0 && dt.DownloadedBytes > dt.TotalBytes {
		dt.TotalBytes = dt.DownloadedBytes
	}
	if dt.TotalBytes == 0 {
		return
	}

	percent := float64(dt.DownloadedBytes) / float64(dt.TotalBytes) * 100
	if dt.TotalEstimated && percent > 99 {
		percent = 99
	}
	if percent < dt.ProgressPercent {
		percent = dt.ProgressPercent
	}
	dt.ProgressPercent = percent
}

// SetTotal replaces an estimate (or unknown length) with a length reported by the source
func (dt *DownloadTask) SetTotal(total uint64) {
	if total == 0 {
		return
	}
	dt.TotalBytes = total
	dt.TotalEstimated = false
	dt.SetProgress(dt.DownloadedBytes)
}

// MarkComplete finalizes counters once the source reported end of stream
func (dt *DownloadTask) MarkComplete(at time.Time) {
	dt.TotalBytes = dt.DownloadedBytes
	dt.TotalEstimated = false
	dt.ProgressPercent = 100
	dt.Status = TaskStatusCompleted
	dt.ResumeCursor = ""
	dt.SpeedBps = 0
	dt.ETASec = -1
	dt.FinishedAt = at
}

// ResetProgress clears counters before a transfer restarts from the first byte
func (dt *DownloadTask) ResetProgress() {
	dt.DownloadedBytes = 0
	dt.ProgressPercent = 0
	dt.ResumeCursor = ""
	if dt.TotalEstimated {
		dt.TotalBytes = 0
		dt.TotalEstimated = false
	}
}

// GetETAString returns ETA formatted as hh:mm:ss, or "—" if unknown
func (dt *DownloadTask) GetETAString() string {
	if dt.ETASec <= 0 {
		return "—"
	}

	hours := dt.ETASec / 3600
	minutes := (dt.ETASec % 3600) / 60
	seconds := dt.ETASec % 60

	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// GetDisplayTitle returns title, filename, or URL in order of preference
func (dt *DownloadTask) GetDisplayTitle() string {
	if dt.Media.Title != "" && !strings.HasPrefix(dt.Media.Title, "http") {
		return dt.Media.Title
	}

	if dt.DestinationPath != "" {
		// support both / and \ separators
		parts := strings.FieldsFunc(dt.DestinationPath, func(r rune) bool {
			return r == '/' || r == '\\'
		})
		if len(parts) > 0 {
			filename := parts[len(parts)-1]
			if idx := strings.LastIndex(filename, "."); idx > 0 {
				filename = filename[:idx]
			}
			return filename
		}
	}

	return dt.Media.URL
}
