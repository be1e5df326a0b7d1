package download

import (
	"context"
	"time"

	"github.com/ytget/media-taskd/internal/model"
)

// Fetcher opens byte streams for a media rendition. A non-empty cursor is a
// value previously returned by Stream.Cursor and must resume right after the
// last byte delivered before it was taken.
type Fetcher interface {
	Open(ctx context.Context, media model.MediaRef, quality, cursor string) (Stream, error)
}

// Stream delivers a rendition chunk by chunk.
type Stream interface {
	// TotalLength is the full rendition length in bytes, or <= 0 when unknown
	TotalLength() int64
	// Next returns the next chunk, or io.EOF once the rendition is exhausted
	Next(ctx context.Context) ([]byte, error)
	// Cursor identifies the position after the last chunk returned by Next
	Cursor() string
	Close() error
}

// RenditionLister is implemented by fetchers able to enumerate renditions
type RenditionLister interface {
	Renditions(ctx context.Context, media model.MediaRef) ([]model.Rendition, error)
}

// Outcome of a finished transfer
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeError     Outcome = "error"
)

// Event is emitted when a task reaches Completed or Error
type Event struct {
	TaskID      string    `json:"task_id"`
	MediaTitle  string    `json:"media_title"`
	Quality     string    `json:"quality"`
	Outcome     Outcome   `json:"outcome"`
	ErrorDetail string    `json:"error_detail,omitempty"`
	At          time.Time `json:"at"`
}

// Notifier renders finished-transfer events to the user
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

// Gateway stores task records across restarts
type Gateway interface {
	SaveAll(ctx context.Context, tasks []model.DownloadTask) error
	LoadAll(ctx context.Context) ([]model.DownloadTask, error)
	Close() error
}

// Clock abstracts time for pacing and timestamps
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
