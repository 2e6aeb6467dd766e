package queue

import (
	"context"
	"testing"
	"time"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"
)

func TestMemoryQueueOfferBeforePoll(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(time.Minute)
	_ = q.Offer(ctx, "k1", model.EchoResponse("early"))

	data, ok, err := q.Poll(ctx, "k1", 10*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("poll: ok=%v err=%v", ok, err)
	}
	if data.Echo == nil || data.Echo.Message != "early" {
		t.Fatalf("unexpected data %+v", data)
	}
}

func TestMemoryQueuePollWaitsForOffer(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(time.Minute)
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = q.Offer(ctx, "k1", model.EchoResponse("late"))
	}()
	data, ok, err := q.Poll(ctx, "k1", 2*time.Second)
	if err != nil || !ok || data.Echo.Message != "late" {
		t.Fatalf("poll: %+v ok=%v err=%v", data, ok, err)
	}
}

func TestMemoryQueuePollTimeout(t *testing.T) {
	q := NewMemoryQueue(time.Minute)
	start := time.Now()
	_, ok, err := q.Poll(context.Background(), "k1", 30*time.Millisecond)
	if ok || err != nil {
		t.Fatalf("expected timeout, ok=%v err=%v", ok, err)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatalf("returned before timeout")
	}
}

func TestMemoryQueuePollCancelled(t *testing.T) {
	q := NewMemoryQueue(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok, err := q.Poll(ctx, "k1", time.Minute)
	if ok || err == nil {
		t.Fatalf("expected ctx error, ok=%v err=%v", ok, err)
	}
}

func TestMemoryQueueSweepKeepsWaitedKeys(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(time.Second)
	base := time.Now()
	q.now = func() time.Time { return base }
	_ = q.Offer(ctx, "orphan", model.EchoResponse("x"))

	q.now = func() time.Time { return base.Add(2 * time.Second) }
	if n := q.sweep(); n != 1 {
		t.Fatalf("sweep removed %d, want 1", n)
	}
	if _, ok, _ := q.Poll(ctx, "orphan", time.Millisecond); ok {
		t.Fatalf("expired response delivered")
	}
}
