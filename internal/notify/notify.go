// Package notify renders finished-transfer events: to the log and to every
// connected websocket client.
package notify

import (
	"github.com/ytget/media-taskd/internal/download"
	"github.com/ytget/media-taskd/internal/logger"
)

// LogNotifier writes one log line per event
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.NewNop()
	}
	return &LogNotifier{log: log.Named("notify")}
}

func (n *LogNotifier) Notify(e download.Event) {
	switch e.Outcome {
	case download.OutcomeCompleted:
		n.log.Infow("download_completed", "task_id", e.TaskID, "title", e.MediaTitle, "quality", e.Quality)
	default:
		n.log.Warnw("download_failed", "task_id", e.TaskID, "title", e.MediaTitle, "quality", e.Quality, "error", e.ErrorDetail)
	}
}

// Multi delivers every event to each notifier in order
type Multi []download.Notifier

func (m Multi) Notify(e download.Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(e)
		}
	}
}
