package download

import (
	"context"
	"sync"
	"time"

	"github.com/ytget/media-taskd/internal/logger"
	"github.com/ytget/media-taskd/internal/model"
)

const (
	DefaultPersistInterval = 2 * time.Second
	persistTimeout         = 10 * time.Second
)

// Persister mirrors hub snapshots into a Gateway. A snapshot is saved when
// the set of tasks or any status changed, or when interval elapsed since the
// last save; pure progress updates in between are skipped.
type Persister struct {
	gateway  Gateway
	interval time.Duration
	clock    Clock
	log      *logger.Logger

	mu       sync.Mutex
	statuses map[string]model.TaskStatus
	lastSave time.Time
	saves    int
}

// NewPersister creates a persister writing to gateway
func NewPersister(gateway Gateway, interval time.Duration, clock Clock, log *logger.Logger) *Persister {
	if interval <= 0 {
		interval = DefaultPersistInterval
	}
	if clock == nil {
		clock = realClock{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Persister{
		gateway:  gateway,
		interval: interval,
		clock:    clock,
		log:      log,
		statuses: make(map[string]model.TaskStatus),
	}
}

// Observe is a hub callback
func (p *Persister) Observe(tasks []model.DownloadTask) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.changedLocked(tasks) && p.clock.Now().Sub(p.lastSave) < p.interval {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := p.saveLocked(ctx, tasks); err != nil {
		p.log.Errorw("persist_save_failed", "tasks", len(tasks), "error", err)
	}
}

// Flush saves tasks unconditionally
func (p *Persister) Flush(ctx context.Context, tasks []model.DownloadTask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saveLocked(ctx, tasks)
}

// Saves returns the number of successful saves
func (p *Persister) Saves() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saves
}

func (p *Persister) changedLocked(tasks []model.DownloadTask) bool {
	if len(tasks) != len(p.statuses) {
		return true
	}
	for _, task := range tasks {
		if status, ok := p.statuses[task.ID]; !ok || status != task.Status {
			return true
		}
	}
	return false
}

func (p *Persister) saveLocked(ctx context.Context, tasks []model.DownloadTask) error {
	if err := p.gateway.SaveAll(ctx, tasks); err != nil {
		return err
	}

	p.statuses = make(map[string]model.TaskStatus, len(tasks))
	for _, task := range tasks {
		p.statuses[task.ID] = task.Status
	}
	p.lastSave = p.clock.Now()
	p.saves++
	return nil
}
