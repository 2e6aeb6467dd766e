package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"
)

func syncTask(id string) *model.DelegateTask {
	return &model.DelegateTask{
		ID: id, AccountID: "acc", TaskType: consts.TASK_TYPE_ECHO,
		Parameters: model.EchoParameters("ping"), Status: consts.TASK_QUEUED, QueueName: id,
	}
}

func TestMemoryCacheFirstClaimWins(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute)
	_ = c.Put(ctx, syncTask("s1"))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins []string
	)
	for _, d := range []string{"d1", "d2", "d3", "d4"} {
		wg.Add(1)
		go func(d string) {
			defer wg.Done()
			got, present, err := c.Claim(ctx, "s1", d)
			if err != nil || !present {
				t.Errorf("claim %s: present=%v err=%v", d, present, err)
				return
			}
			if got != nil {
				mu.Lock()
				wins = append(wins, d)
				mu.Unlock()
			}
		}(d)
	}
	wg.Wait()
	if len(wins) != 1 {
		t.Fatalf("expected one winner, got %v", wins)
	}
	cached, _ := c.Get(ctx, "s1")
	if cached.DelegateID != wins[0] {
		t.Fatalf("cached delegate %q, winner %q", cached.DelegateID, wins[0])
	}
	again, present, _ := c.Claim(ctx, "s1", wins[0])
	if !present || again == nil {
		t.Fatalf("winner re-claim should return the task")
	}
}

func TestMemoryCacheClaimMissing(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	got, present, err := c.Claim(context.Background(), "nope", "d1")
	if err != nil || present || got != nil {
		t.Fatalf("unexpected claim result %v %v %v", got, present, err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Second)
	base := time.Now()
	c.now = func() time.Time { return base }
	_ = c.Put(ctx, syncTask("s1"))
	_ = c.Put(ctx, syncTask("s2"))

	c.now = func() time.Time { return base.Add(2 * time.Second) }
	if got, _ := c.Get(ctx, "s1"); got != nil {
		t.Fatalf("expired entry returned")
	}
	if n := c.sweep(); n != 1 {
		t.Fatalf("sweep removed %d, want 1", n)
	}
}

func TestMemoryCacheRemoveReturnsEntry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute)
	_ = c.Put(ctx, syncTask("s1"))
	_, _, _ = c.Claim(ctx, "s1", "d1")

	got, err := c.Remove(ctx, "s1")
	if err != nil || got == nil || got.DelegateID != "d1" {
		t.Fatalf("remove: %+v %v", got, err)
	}
	if again, _ := c.Remove(ctx, "s1"); again != nil {
		t.Fatalf("second remove should miss")
	}
}
