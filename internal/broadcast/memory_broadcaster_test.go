package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"
)

func recv(t *testing.T, s Subscription) model.BroadcastEvent {
	t.Helper()
	select {
	case ev, ok := <-s.C():
		if !ok {
			t.Fatalf("subscription closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("no event received")
	}
	return model.BroadcastEvent{}
}

func TestMemoryBroadcastIsPerAccount(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroadcaster()
	a1, _ := b.Subscribe(ctx, "acc1")
	a2, _ := b.Subscribe(ctx, "acc1")
	other, _ := b.Subscribe(ctx, "acc2")
	defer a1.Close()
	defer a2.Close()
	defer other.Close()

	_ = b.Publish(ctx, "acc1", model.NewAbortEvent("acc1", "t1"))

	for _, s := range []Subscription{a1, a2} {
		ev := recv(t, s)
		if ev.Kind != model.EVENT_ABORT || ev.Abort.DelegateTaskID != "t1" {
			t.Fatalf("unexpected event %+v", ev)
		}
	}
	select {
	case ev := <-other.C():
		t.Fatalf("other account received %+v", ev)
	default:
	}
}

func TestMemoryBroadcastSlowSubscriberDrops(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroadcaster()
	s, _ := b.Subscribe(ctx, "acc")
	defer s.Close()
	for i := 0; i < subscriberBuffer+10; i++ {
		if err := b.Publish(ctx, "acc", model.NewAbortEvent("acc", "t")); err != nil {
			t.Fatalf("publish should not block or fail: %v", err)
		}
	}
	if got := len(s.C()); got != subscriberBuffer {
		t.Fatalf("buffered %d events, want %d", got, subscriberBuffer)
	}
}

func TestMemoryBroadcastContextClosesSubscription(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := NewMemoryBroadcaster()
	s, _ := b.Subscribe(ctx, "acc")
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-s.C():
			if !ok {
				if n := b.Subscribers("acc"); n != 0 {
					t.Fatalf("subscriber still registered: %d", n)
				}
				return
			}
		case <-deadline:
			t.Fatalf("subscription not closed after cancel")
		}
	}
}

func TestMemoryBroadcastCloseReleasesWatcher(t *testing.T) {
	b := NewMemoryBroadcaster()
	s, _ := b.Subscribe(context.Background(), "acc")
	_ = s.Close()
	_ = s.Close()

	select {
	case <-s.(*memorySub).done:
	case <-time.After(time.Second):
		t.Fatalf("close did not release the context watcher")
	}
	if n := b.Subscribers("acc"); n != 0 {
		t.Fatalf("subscriber still registered: %d", n)
	}
}
