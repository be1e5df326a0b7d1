package download

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ytget/media-taskd/internal/logger"
	"github.com/ytget/media-taskd/internal/model"
	"github.com/ytget/media-taskd/internal/platform"
)

// Default values
const (
	DefaultMaxParallel     = 2
	DefaultChunkTimeout    = 30 * time.Second
	DefaultRetryBackoff    = time.Second
	DefaultRetryMaxBackoff = 30 * time.Second
	DefaultQuality         = "720p"
	DefaultEstimatedSize   = 25 * 1024 * 1024
)

// Options configures a Service. Fetcher is required.
type Options struct {
	Fetcher  Fetcher
	Notifier Notifier
	Gateway  Gateway
	Logger   *logger.Logger
	Clock    Clock

	Directory       string
	MaxParallel     int
	ChunkTimeout    time.Duration
	RetryAttempts   int
	RetryBackoff    time.Duration
	RetryMaxBackoff time.Duration
	PersistInterval time.Duration
	DefaultQuality  string

	// EstimateSize returns the expected size for a quality label, used until
	// the fetcher reports a real length
	EstimateSize func(quality string) uint64
}

// Filter selects a subset of tasks
type Filter string

const (
	FilterAll         Filter = "all"
	FilterDownloading Filter = "downloading"
	FilterCompleted   Filter = "completed"
)

// ParseFilter converts a query value into a Filter; empty means all
func ParseFilter(value string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(value))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterDownloading, FilterCompleted:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown filter %q", ErrInvalidInput, value)
	}
}

// Match reports whether a task belongs to the filter. Downloading covers
// every task still waiting for or receiving bytes.
func (f Filter) Match(status model.TaskStatus) bool {
	switch f {
	case FilterDownloading:
		return status == model.TaskStatusDownloading || status == model.TaskStatusPending
	case FilterCompleted:
		return status == model.TaskStatusCompleted
	default:
		return true
	}
}

// Counts summarizes the store per filter
type Counts struct {
	All         int `json:"all"`
	Downloading int `json:"downloading"`
	Completed   int `json:"completed"`
}

type stopReason int

const (
	stopNone stopReason = iota
	stopShutdown
	stopPause
	stopCancel
	stopDelete
)

// run is the handle of one live transfer loop
type run struct {
	cancel context.CancelFunc
	done   chan struct{}
	reason stopReason // guarded by Service.mu
}

// Service owns every task record and the transfer loops writing them
type Service struct {
	mu      sync.Mutex
	tasks   map[string]*model.DownloadTask
	order   []string
	runs    map[string]*run
	hold    int // dispatch is suspended while > 0
	closed  bool
	baseCtx context.Context
	stopAll context.CancelFunc
	wg      sync.WaitGroup

	fetcher   Fetcher
	notifier  Notifier
	hub       *Hub
	persister *Persister
	gateway   Gateway
	log       *logger.Logger
	clock     Clock
	opts      Options
}

// NewService creates a new download service
func NewService(opts Options) (*Service, error) {
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("%w: fetcher is required", ErrInvalidInput)
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.MaxParallel < 1 {
		opts.MaxParallel = DefaultMaxParallel
	}
	if opts.ChunkTimeout <= 0 {
		opts.ChunkTimeout = DefaultChunkTimeout
	}
	if opts.RetryAttempts < 0 {
		opts.RetryAttempts = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultRetryBackoff
	}
	if opts.RetryMaxBackoff < opts.RetryBackoff {
		opts.RetryMaxBackoff = max(DefaultRetryMaxBackoff, opts.RetryBackoff)
	}
	if opts.DefaultQuality == "" {
		opts.DefaultQuality = DefaultQuality
	}
	if opts.EstimateSize == nil {
		opts.EstimateSize = func(string) uint64 { return DefaultEstimatedSize }
	}

	log := opts.Logger.Named("download")
	baseCtx, stopAll := context.WithCancel(context.Background())

	s := &Service{
		tasks:    make(map[string]*model.DownloadTask),
		runs:     make(map[string]*run),
		baseCtx:  baseCtx,
		stopAll:  stopAll,
		fetcher:  opts.Fetcher,
		notifier: opts.Notifier,
		hub:      NewHub(log),
		gateway:  opts.Gateway,
		log:      log,
		clock:    opts.Clock,
		opts:     opts,
	}

	if opts.Gateway != nil {
		s.persister = NewPersister(opts.Gateway, opts.PersistInterval, opts.Clock, log)
		s.hub.Subscribe(s.persister.Observe)
	}

	return s, nil
}

// Start registers a Pending task for media and dispatches it when a slot is free
func (s *Service) Start(ctx context.Context, media model.MediaRef, quality string) (model.DownloadTask, error) {
	if err := ctx.Err(); err != nil {
		return model.DownloadTask{}, err
	}
	media.URL = strings.TrimSpace(media.URL)
	if media.URL == "" {
		return model.DownloadTask{}, fmt.Errorf("%w: media URL is empty", ErrInvalidInput)
	}
	quality = strings.TrimSpace(quality)
	if quality == "" {
		quality = s.opts.DefaultQuality
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return model.DownloadTask{}, ErrServiceClosed
	}

	now := s.clock.Now()
	id := generateTaskID()
	destination := platform.DestinationPath(s.opts.Directory, media.Title, media.Platform, quality, now, s.pathTakenLocked)

	task := model.NewDownloadTask(id, media, quality, destination, now)
	if estimate := s.opts.EstimateSize(quality); estimate > 0 {
		task.TotalBytes = estimate
		task.TotalEstimated = true
	}

	s.tasks[id] = task
	s.order = append(s.order, id)
	s.log.Infow("task_created", "task_id", id, "url", media.URL, "quality", quality, "destination", destination)

	s.publishLocked()
	s.dispatchLocked()

	return task.Snapshot(), nil
}

// Get returns a task by ID
func (s *Service) Get(id string) (model.DownloadTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return model.DownloadTask{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return task.Snapshot(), nil
}

// List returns all tasks in insertion order
func (s *Service) List() []model.DownloadTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Filter returns tasks matching f in insertion order
func (s *Service) Filter(f Filter) []model.DownloadTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := make([]model.DownloadTask, 0, len(s.order))
	for _, id := range s.order {
		task := s.tasks[id]
		if f.Match(task.Status) {
			tasks = append(tasks, task.Snapshot())
		}
	}
	return tasks
}

// Counts returns the number of tasks per filter
func (s *Service) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()

	var c Counts
	for _, task := range s.tasks {
		c.All++
		if FilterDownloading.Match(task.Status) {
			c.Downloading++
		}
		if FilterCompleted.Match(task.Status) {
			c.Completed++
		}
	}
	return c
}

// Subscribe registers callback for snapshots. The current snapshot is
// delivered first.
func (s *Service) Subscribe(callback func([]model.DownloadTask)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hub.subscribe(callback, s.snapshotLocked())
}

// Pause stops a Downloading task at the next chunk boundary and waits for
// its loop to exit
func (s *Service) Pause(id string) error {
	s.mu.Lock()
	task, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if s.closed {
		s.mu.Unlock()
		return ErrServiceClosed
	}
	r := s.runs[id]
	if !task.Status.CanTransition(model.TaskStatusPaused) || (r != nil && r.reason != stopNone) {
		status := task.Status
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot pause %s task", ErrInvalidState, status)
	}

	if r == nil {
		// restored transfer still waiting for a slot
		task.Status = model.TaskStatusPaused
		task.SpeedBps = 0
		task.ETASec = -1
		s.log.Infow("task_paused", "task_id", id, "bytes", task.DownloadedBytes, "cursor", task.ResumeCursor)
		s.publishLocked()
		s.mu.Unlock()
		return nil
	}

	r.reason = stopPause
	r.cancel()
	s.mu.Unlock()

	<-r.done
	return nil
}

// Resume restarts a Paused task from its cursor, or retries an Error task.
// It starts immediately regardless of MaxParallel.
func (s *Service) Resume(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if task.Status != model.TaskStatusPaused && task.Status != model.TaskStatusError {
		return fmt.Errorf("%w: cannot resume %s task", ErrInvalidState, task.Status)
	}
	if s.closed {
		return ErrServiceClosed
	}

	if task.Status == model.TaskStatusError {
		task.LastError = ""
		if task.ResumeCursor == "" {
			task.ResetProgress()
			if estimate := s.opts.EstimateSize(task.Quality); estimate > 0 && task.TotalBytes == 0 {
				task.TotalBytes = estimate
				task.TotalEstimated = true
			}
		}
		s.log.Infow("task_retry", "task_id", id, "cursor", task.ResumeCursor)
	} else {
		s.log.Infow("task_resume", "task_id", id, "cursor", task.ResumeCursor)
	}

	s.startLocked(task)
	return nil
}

// Cancel stops a live task, removes its destination file and marks it Cancelled
func (s *Service) Cancel(id string) error {
	s.mu.Lock()
	task, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if s.closed {
		s.mu.Unlock()
		return ErrServiceClosed
	}
	if !task.Status.CanTransition(model.TaskStatusCancelled) {
		status := task.Status
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot cancel %s task", ErrInvalidState, status)
	}

	if r := s.runs[id]; r != nil {
		if r.reason < stopCancel {
			r.reason = stopCancel
		}
		r.cancel()
		s.mu.Unlock()
		<-r.done
		return nil
	}

	s.cancelLocked(task)
	s.publishLocked()
	s.mu.Unlock()
	return nil
}

// Delete stops the task if needed, removes its file and drops the record.
// Delete is legal in every state.
func (s *Service) Delete(id string) error {
	s.mu.Lock()
	task, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if s.closed {
		s.mu.Unlock()
		return ErrServiceClosed
	}

	if r := s.runs[id]; r != nil {
		r.reason = stopDelete
		r.cancel()
		s.mu.Unlock()
		<-r.done
		return nil
	}

	s.removeLocked(task)
	s.publishLocked()
	s.dispatchLocked()
	s.mu.Unlock()
	return nil
}

// ClearAll stops every live task, deletes every destination file and empties the store
func (s *Service) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServiceClosed
	}
	s.hold++
	stopped := 0
	for len(s.runs) > 0 {
		runs := make([]*run, 0, len(s.runs))
		for _, r := range s.runs {
			r.reason = stopDelete
			r.cancel()
			runs = append(runs, r)
		}
		s.mu.Unlock()
		for _, r := range runs {
			<-r.done
		}
		stopped += len(runs)
		s.mu.Lock()
	}
	s.hold--

	for _, id := range append([]string(nil), s.order...) {
		s.removeLocked(s.tasks[id])
	}
	s.log.Infow("tasks_cleared", "stopped", stopped)
	s.publishLocked()
	return nil
}

// Renditions lists candidate renditions when the fetcher supports it
func (s *Service) Renditions(ctx context.Context, media model.MediaRef) ([]model.Rendition, error) {
	lister, ok := s.fetcher.(RenditionLister)
	if !ok {
		return nil, ErrUnsupported
	}
	if strings.TrimSpace(media.URL) == "" {
		return nil, fmt.Errorf("%w: media URL is empty", ErrInvalidInput)
	}
	return lister.Renditions(ctx, media)
}

// Close stops every transfer, leaving interrupted tasks Downloading with their
// cursor so Restore can re-validate them, then flushes the final snapshot
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, r := range s.runs {
		if r.reason == stopNone {
			r.reason = stopShutdown
		}
		r.cancel()
	}
	s.mu.Unlock()

	stopped := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		s.stopAll()
		return ctx.Err()
	}
	s.stopAll()

	if err := s.hub.Close(ctx); err != nil {
		return err
	}

	if s.persister == nil {
		return nil
	}
	s.mu.Lock()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if err := s.persister.Flush(ctx, snapshot); err != nil {
		return err
	}
	return s.gateway.Close()
}

// startLocked moves task into Downloading and launches its transfer loop
func (s *Service) startLocked(task *model.DownloadTask) {
	ctx, cancel := context.WithCancel(s.baseCtx)
	r := &run{cancel: cancel, done: make(chan struct{})}
	s.runs[task.ID] = r

	task.Status = model.TaskStatusDownloading
	if task.StartedAt.IsZero() {
		task.StartedAt = s.clock.Now()
	}
	task.FinishedAt = time.Time{}
	task.SpeedBps = 0
	task.ETASec = -1

	s.log.Infow("task_started", "task_id", task.ID, "cursor", task.ResumeCursor, "active", len(s.runs))
	s.publishLocked()

	s.wg.Add(1)
	go s.transfer(ctx, task.ID, r)
}

// dispatchLocked fills free slots in insertion order. Restored transfers
// (Downloading without a run) go first, then Pending tasks.
func (s *Service) dispatchLocked() {
	if s.closed || s.hold > 0 {
		return
	}
	for _, waiting := range []func(*model.DownloadTask) bool{s.awaitingRestartLocked, isPending} {
		for _, id := range s.order {
			if len(s.runs) >= s.opts.MaxParallel {
				return
			}
			if task := s.tasks[id]; waiting(task) {
				s.startLocked(task)
			}
		}
	}
}

func (s *Service) awaitingRestartLocked(task *model.DownloadTask) bool {
	return task.Status == model.TaskStatusDownloading && s.runs[task.ID] == nil
}

func isPending(task *model.DownloadTask) bool {
	return task.Status == model.TaskStatusPending
}

// cancelLocked marks a task without a running loop Cancelled and removes its file
func (s *Service) cancelLocked(task *model.DownloadTask) {
	if err := platform.RemoveFileIfExists(task.DestinationPath); err != nil {
		s.log.Warnw("task_cleanup_failed", "task_id", task.ID, "error", err)
	}
	task.Status = model.TaskStatusCancelled
	task.SpeedBps = 0
	task.ETASec = -1
	task.FinishedAt = s.clock.Now()
	s.log.Infow("task_cancelled", "task_id", task.ID)
}

// removeLocked drops a task without a running loop and removes its file
func (s *Service) removeLocked(task *model.DownloadTask) {
	if err := platform.RemoveFileIfExists(task.DestinationPath); err != nil {
		s.log.Warnw("task_cleanup_failed", "task_id", task.ID, "error", err)
	}
	delete(s.tasks, task.ID)
	for i, id := range s.order {
		if id == task.ID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.log.Infow("task_deleted", "task_id", task.ID)
}

func (s *Service) pathTakenLocked(path string) bool {
	for _, task := range s.tasks {
		if task.DestinationPath == path {
			return true
		}
	}
	return false
}

func (s *Service) snapshotLocked() []model.DownloadTask {
	tasks := make([]model.DownloadTask, 0, len(s.order))
	for _, id := range s.order {
		tasks = append(tasks, s.tasks[id].Snapshot())
	}
	return tasks
}

// publishLocked must be called with s.mu held so the snapshot matches the mutation
func (s *Service) publishLocked() {
	s.hub.Publish(s.snapshotLocked())
}

// generateTaskID generates a unique task ID
func generateTaskID() string {
	return "task-" + uuid.NewString()
}
