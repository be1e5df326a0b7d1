package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ytget/media-taskd/internal/model"
)

// fakeSource describes one deterministic rendition served by fakeFetcher
type fakeSource struct {
	size       int64
	chunk      int64
	reportSize bool
	blockAt    int64 // Next blocks until ctx is done once offset reaches it; -1 disables
	failAt     int64 // Next fails once offset reaches it; -1 disables
	emptyAt    int64 // Next returns neither data nor error once offset reaches it; -1 disables
	failErr    error
	failTimes  int // 0 means fail every time
	failed     int
}

type fakeFetcher struct {
	mu      sync.Mutex
	sources map[string]*fakeSource
	cursors map[string][]string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		sources: make(map[string]*fakeSource),
		cursors: make(map[string][]string),
	}
}

func (f *fakeFetcher) add(url string, size, chunk int64) *fakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	src := &fakeSource{size: size, chunk: chunk, reportSize: true, blockAt: -1, failAt: -1, emptyAt: -1}
	f.sources[url] = src
	return src
}

func (f *fakeFetcher) update(url string, fn func(*fakeSource)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f.sources[url])
}

func (f *fakeFetcher) opens(url string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cursors[url]...)
}

func (f *fakeFetcher) Open(ctx context.Context, media model.MediaRef, quality, cursor string) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	src, ok := f.sources[media.URL]
	if !ok {
		return nil, fmt.Errorf("unknown media %s", media.URL)
	}
	f.cursors[media.URL] = append(f.cursors[media.URL], cursor)

	var offset int64
	if cursor != "" {
		n, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad cursor %q", cursor)
		}
		offset = n
	}
	return &fakeStream{fetcher: f, src: src, offset: offset}, nil
}

type fakeStream struct {
	fetcher *fakeFetcher
	src     *fakeSource
	offset  int64
}

func (s *fakeStream) TotalLength() int64 {
	s.fetcher.mu.Lock()
	defer s.fetcher.mu.Unlock()
	if !s.src.reportSize {
		return -1
	}
	return s.src.size
}

func (s *fakeStream) Next(ctx context.Context) ([]byte, error) {
	s.fetcher.mu.Lock()
	src := s.src
	if src.blockAt >= 0 && s.offset >= src.blockAt {
		s.fetcher.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if src.failAt >= 0 && s.offset >= src.failAt && (src.failTimes == 0 || src.failed < src.failTimes) {
		src.failed++
		err := src.failErr
		s.fetcher.mu.Unlock()
		return nil, err
	}
	if src.emptyAt >= 0 && s.offset >= src.emptyAt {
		s.fetcher.mu.Unlock()
		return nil, nil
	}
	size, chunk := src.size, src.chunk
	s.fetcher.mu.Unlock()

	if s.offset >= size {
		return nil, io.EOF
	}
	n := min(chunk, size-s.offset)
	data := pattern(s.offset, n)
	s.offset += n
	return data, nil
}

func (s *fakeStream) Cursor() string {
	return strconv.FormatInt(s.offset, 10)
}

func (s *fakeStream) Close() error { return nil }

// renditionFetcher adds rendition listing to fakeFetcher
type renditionFetcher struct {
	*fakeFetcher
}

func (r renditionFetcher) Renditions(ctx context.Context, media model.MediaRef) ([]model.Rendition, error) {
	return []model.Rendition{{Label: "720p", Resolution: "1280x720", URL: media.URL}}, nil
}

func pattern(offset, n int64) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte((offset + int64(i)) % 251)
	}
	return data
}

func writePattern(t *testing.T, path string, n int64) {
	t.Helper()
	if err := os.WriteFile(path, pattern(0, n), 0o644); err != nil {
		t.Fatal(err)
	}
}

// verifyFile checks the destination holds exactly the first size pattern bytes
func verifyFile(t *testing.T, path string, size int64) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	if int64(len(data)) != size {
		t.Fatalf("file %s has %d bytes, expected %d", path, len(data), size)
	}
	for i, b := range data {
		if b != byte(int64(i)%251) {
			t.Fatalf("file %s differs at byte %d", path, i)
		}
	}
}

func fileMissing(path string) bool {
	_, err := os.Stat(path)
	return errors.Is(err, os.ErrNotExist)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(e Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) list() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Event(nil), n.events...)
}

type memGateway struct {
	mu      sync.Mutex
	records []model.DownloadTask
	saves   int
	closed  bool
	loadErr error
}

func (g *memGateway) SaveAll(ctx context.Context, tasks []model.DownloadTask) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.records = append([]model.DownloadTask(nil), tasks...)
	g.saves++
	return nil
}

func (g *memGateway) LoadAll(ctx context.Context) ([]model.DownloadTask, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.loadErr != nil {
		return nil, g.loadErr
	}
	return append([]model.DownloadTask(nil), g.records...), nil
}

func (g *memGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

func (g *memGateway) snapshot() []model.DownloadTask {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]model.DownloadTask(nil), g.records...)
}

// fixedClock always reports the same instant
type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time                         { return c.now }
func (c fixedClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitForStatus(t *testing.T, s *Service, id string, status model.TaskStatus) model.DownloadTask {
	t.Helper()
	var task model.DownloadTask
	waitFor(t, fmt.Sprintf("task %s to become %s", id, status), func() bool {
		var err error
		task, err = s.Get(id)
		return err == nil && task.Status == status
	})
	return task
}

func newTestService(t *testing.T, fetcher Fetcher, mutate func(*Options)) *Service {
	t.Helper()
	opts := Options{
		Fetcher:         fetcher,
		Directory:       t.TempDir(),
		MaxParallel:     4,
		ChunkTimeout:    5 * time.Second,
		RetryAttempts:   0,
		RetryBackoff:    time.Millisecond,
		RetryMaxBackoff: 5 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&opts)
	}
	s, err := NewService(opts)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s
}

func clip(url string) model.MediaRef {
	return model.MediaRef{Title: "Test Clip", Platform: "youtube", URL: url}
}
