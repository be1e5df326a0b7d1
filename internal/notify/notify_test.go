package notify

import (
	"testing"
	"time"

	"github.com/ytget/media-taskd/internal/download"
	"github.com/ytget/media-taskd/internal/model"
)

func TestMulti(t *testing.T) {
	var got []string
	first := download.NotifierFunc(func(e download.Event) { got = append(got, "first:"+e.TaskID) })
	second := download.NotifierFunc(func(e download.Event) { got = append(got, "second:"+e.TaskID) })

	Multi{first, nil, second, NewLogNotifier(nil)}.Notify(download.Event{TaskID: "task-1", Outcome: download.OutcomeCompleted})

	if len(got) != 2 || got[0] != "first:task-1" || got[1] != "second:task-1" {
		t.Errorf("delivery order = %v", got)
	}
}

func TestLogNotifier_BothOutcomes(t *testing.T) {
	n := NewLogNotifier(nil)
	n.Notify(download.Event{TaskID: "task-1", Outcome: download.OutcomeCompleted})
	n.Notify(download.Event{TaskID: "task-2", Outcome: download.OutcomeError, ErrorDetail: "boom"})
}

func TestBroadcaster_DeliversEvents(t *testing.T) {
	b := NewBroadcaster(4, nil)
	c1 := b.Register()
	c2 := b.Register()
	if b.Len() != 2 {
		t.Fatalf("Len() = %d, expected 2", b.Len())
	}

	b.Notify(download.Event{TaskID: "task-1", Outcome: download.OutcomeError, ErrorDetail: "gone"})

	for _, c := range []*Client{c1, c2} {
		select {
		case m := <-c.C():
			if m.Type != MessageEvent || m.Event == nil || m.Event.TaskID != "task-1" || m.Event.ErrorDetail != "gone" {
				t.Errorf("message = %+v", m)
			}
		case <-time.After(time.Second):
			t.Fatal("no message delivered")
		}
	}
}

func TestBroadcaster_DropsSlowClient(t *testing.T) {
	b := NewBroadcaster(2, nil)
	slow := b.Register()
	fast := b.Register()

	for i := 0; i < 3; i++ {
		b.Notify(download.Event{TaskID: "task-1"})
		<-fast.C()
	}

	select {
	case <-slow.Done():
	default:
		t.Fatal("slow client should have been dropped")
	}
	if b.Len() != 1 {
		t.Errorf("Len() = %d, expected only the fast client", b.Len())
	}

	// the two buffered messages are still readable, then the channel is closed
	n := 0
	for range slow.C() {
		n++
	}
	if n != 2 {
		t.Errorf("drained %d messages from dropped client, expected 2", n)
	}
	if slow.Send(Message{Type: MessageTasks}) {
		t.Error("Send on a dropped client must report false")
	}
}

func TestBroadcaster_UnregisterAndClose(t *testing.T) {
	b := NewBroadcaster(0, nil)
	c := b.Register()
	b.Unregister(c)
	b.Unregister(c)

	if b.Len() != 0 {
		t.Errorf("Len() = %d after unregister", b.Len())
	}
	if _, ok := <-c.C(); ok {
		t.Error("channel should be closed after unregister")
	}

	other := b.Register()
	if !other.Send(Message{Type: MessageTasks, Tasks: []model.DownloadTask{{ID: "task-1"}}}) {
		t.Error("Send to a live client failed")
	}
	b.Close()
	select {
	case <-other.Done():
	default:
		t.Error("Close must drop every client")
	}
}
