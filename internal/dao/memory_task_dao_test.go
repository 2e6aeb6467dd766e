package dao

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"
)

func queuedTask(id string) *model.DelegateTask {
	return &model.DelegateTask{
		ID:         id,
		AccountID:  "acc",
		TaskType:   consts.TASK_TYPE_ECHO,
		Parameters: model.EchoParameters("hi"),
		Status:     consts.TASK_QUEUED,
		Async:      true,
	}
}

func TestConcurrentClaimHasExactlyOneWinner(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryTaskDao()
	if err := d.Create(ctx, queuedTask("t1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(delegateID string) {
			defer wg.Done()
			got, err := d.ClaimQueued(ctx, "acc", "t1", delegateID)
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			if got != nil {
				mu.Lock()
				winners = append(winners, delegateID)
				mu.Unlock()
			}
		}(string(rune('A' + i)))
	}
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %v", winners)
	}
	stored, err := d.Get(ctx, "acc", "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.DelegateID != winners[0] {
		t.Fatalf("delegate_id=%q winner=%q", stored.DelegateID, winners[0])
	}
}

func TestClaimRespectsAccount(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryTaskDao()
	_ = d.Create(ctx, queuedTask("t1"))
	got, err := d.ClaimQueued(ctx, "other", "t1", "d1")
	if err != nil || got != nil {
		t.Fatalf("claim across accounts should miss: %v %v", got, err)
	}
}

func TestAbortQueuedClearsDelegate(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryTaskDao()
	_ = d.Create(ctx, queuedTask("t1"))
	if _, err := d.ClaimQueued(ctx, "acc", "t1", "d1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	ok, err := d.AbortQueued(ctx, "acc", "t1")
	if err != nil || !ok {
		t.Fatalf("abort: %v %v", ok, err)
	}
	got, _ := d.Get(ctx, "acc", "t1")
	if got.Status != consts.TASK_ABORTED || got.DelegateID != "" {
		t.Fatalf("unexpected task %+v", got)
	}
	if ok, _ := d.AbortQueued(ctx, "acc", "t1"); ok {
		t.Fatalf("second abort should not match")
	}
}

func TestStartRequiresClaimant(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryTaskDao()
	_ = d.Create(ctx, queuedTask("t1"))
	_, _ = d.ClaimQueued(ctx, "acc", "t1", "d1")

	if got, _ := d.StartClaimed(ctx, "acc", "t1", "d2"); got != nil {
		t.Fatalf("non claimant started task")
	}
	got, err := d.StartClaimed(ctx, "acc", "t1", "d1")
	if err != nil || got == nil || got.Status != consts.TASK_STARTED {
		t.Fatalf("start: %+v %v", got, err)
	}
	if ok, _ := d.AbortQueued(ctx, "acc", "t1"); ok {
		t.Fatalf("abort after start must not match")
	}
	if ok, _ := d.Complete(ctx, "acc", "t1", consts.TASK_SUCCESS); !ok {
		t.Fatalf("complete should match started task")
	}
	if _, err := d.Complete(ctx, "acc", "t1", consts.TASK_QUEUED); err == nil {
		t.Fatalf("non terminal status accepted")
	}
}

func TestTouchStartedOnlyStaleTasksOfDelegate(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryTaskDao()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return base }
	for _, id := range []string{"t1", "t2", "t3"} {
		_ = d.Create(ctx, queuedTask(id))
		_, _ = d.ClaimQueued(ctx, "acc", id, "d1")
	}
	_, _ = d.StartClaimed(ctx, "acc", "t1", "d1")
	_, _ = d.StartClaimed(ctx, "acc", "t2", "d1")

	d.now = func() time.Time { return base.Add(time.Minute) }
	n, err := d.TouchStarted(ctx, "acc", "d1", []string{"t1", "t3"}, base.Add(time.Second))
	if err != nil {
		t.Fatalf("touch: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 touched, got %d", n)
	}
	expired, _ := d.ExpireStarted(ctx, base.Add(30*time.Second), 10)
	if len(expired) != 1 || expired[0].ID != "t2" {
		t.Fatalf("expected only t2 stale, got %+v", expired)
	}
}

func TestListByAccountFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryTaskDao()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		tk := queuedTask(id)
		tk.CreatedAt = base.Add(time.Duration(i) * time.Second)
		_ = d.Create(ctx, tk)
	}
	_, _ = d.AbortQueued(ctx, "acc", "b")

	list, _ := d.ListByAccount(ctx, "acc", model.TaskFilter{Status: consts.TASK_QUEUED}, 10, 0)
	if len(list) != 2 || list[0].ID != "c" || list[1].ID != "a" {
		t.Fatalf("unexpected list %+v", list)
	}
	n, _ := d.CountByAccount(ctx, "acc", model.TaskFilter{})
	if n != 3 {
		t.Fatalf("count=%d", n)
	}
	page, _ := d.ListByAccount(ctx, "acc", model.TaskFilter{}, 1, 1)
	if len(page) != 1 || page[0].ID != "b" {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestCreateDuplicateIDIsErrDuplicate(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryTaskDao()
	if err := d.Create(ctx, queuedTask("t1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := d.Create(ctx, queuedTask("t1")); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate create: got %v", err)
	}
}
