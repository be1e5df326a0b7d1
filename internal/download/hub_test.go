package download

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ytget/media-taskd/internal/model"
)

func snapshotOf(ids ...string) []model.DownloadTask {
	tasks := make([]model.DownloadTask, 0, len(ids))
	for _, id := range ids {
		tasks = append(tasks, model.DownloadTask{ID: id})
	}
	return tasks
}

func TestHub_DeliversInPublishOrder(t *testing.T) {
	hub := NewHub(nil)

	var mu sync.Mutex
	var got []int
	hub.Subscribe(func(tasks []model.DownloadTask) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, len(tasks))
	})

	for i := 1; i <= 100; i++ {
		hub.Publish(make([]model.DownloadTask, i))
	}

	waitFor(t, "100 deliveries", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 100
	})
	mu.Lock()
	defer mu.Unlock()
	for i, n := range got {
		if n != i+1 {
			t.Fatalf("delivery %d carried %d tasks, expected %d", i, n, i+1)
		}
	}
}

func TestHub_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	hub := NewHub(nil)
	release := make(chan struct{})
	hub.Subscribe(func([]model.DownloadTask) { <-release })
	defer close(release)

	fast := make(chan struct{}, 10)
	hub.Subscribe(func([]model.DownloadTask) { fast <- struct{}{} })

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.Publish(snapshotOf("task-1"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	for i := 0; i < 10; i++ {
		select {
		case <-fast:
		case <-time.After(2 * time.Second):
			t.Fatal("fast subscriber starved by slow one")
		}
	}
}

func TestHub_PanicIsIsolated(t *testing.T) {
	hub := NewHub(nil)
	hub.Subscribe(func([]model.DownloadTask) { panic("boom") })

	got := make(chan int, 4)
	hub.Subscribe(func(tasks []model.DownloadTask) { got <- len(tasks) })

	hub.Publish(snapshotOf("a"))
	hub.Publish(snapshotOf("a", "b"))

	for _, expected := range []int{1, 2} {
		select {
		case n := <-got:
			if n != expected {
				t.Errorf("received %d tasks, expected %d", n, expected)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("healthy subscriber stopped receiving after a panic elsewhere")
		}
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := NewHub(nil)
	got := make(chan struct{}, 4)
	unsubscribe := hub.Subscribe(func([]model.DownloadTask) { got <- struct{}{} })

	if hub.Len() != 1 {
		t.Fatalf("Len() = %d, expected 1", hub.Len())
	}
	unsubscribe()
	unsubscribe()
	if hub.Len() != 0 {
		t.Fatalf("Len() = %d after unsubscribe, expected 0", hub.Len())
	}

	hub.Publish(snapshotOf("a"))
	select {
	case <-got:
		t.Error("unsubscribed callback still invoked")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_CallbackGetsPrivateCopy(t *testing.T) {
	hub := NewHub(nil)
	got := make(chan []model.DownloadTask, 2)
	hub.Subscribe(func(tasks []model.DownloadTask) {
		tasks[0].ID = "mutated"
		got <- tasks
	})
	second := make(chan []model.DownloadTask, 1)
	hub.Subscribe(func(tasks []model.DownloadTask) { second <- tasks })

	snapshot := snapshotOf("task-1")
	hub.Publish(snapshot)

	<-got
	select {
	case tasks := <-second:
		if tasks[0].ID != "task-1" {
			t.Errorf("subscriber saw another subscriber's mutation: %s", tasks[0].ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery")
	}
	if snapshot[0].ID != "task-1" {
		t.Error("published snapshot was mutated")
	}
}

func TestHub_CloseDrainsMailboxes(t *testing.T) {
	hub := NewHub(nil)

	var mu sync.Mutex
	count := 0
	hub.Subscribe(func([]model.DownloadTask) {
		time.Sleep(time.Millisecond)
		mu.Lock()
		count++
		mu.Unlock()
	})

	for i := 0; i < 20; i++ {
		hub.Publish(snapshotOf("a"))
	}
	// an empty snapshot is a valid delivery, not an end marker
	hub.Publish(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hub.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	mu.Lock()
	if count != 21 {
		t.Errorf("delivered %d snapshots before Close returned, expected 21", count)
	}
	mu.Unlock()

	hub.Publish(snapshotOf("late"))
	if unsubscribe := hub.Subscribe(func([]model.DownloadTask) {}); unsubscribe == nil {
		t.Error("Subscribe after Close must return a usable func")
	}
	if hub.Len() != 0 {
		t.Errorf("Len() = %d after Close", hub.Len())
	}
}
