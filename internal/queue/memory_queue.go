package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"
)

const slotCapacity = 4

type slot struct {
	ch       chan model.ResponseData
	expireAt time.Time
	waiters  int
}

type MemoryQueue struct {
	*core.BaseComponent
	ttl    time.Duration
	mu     sync.Mutex
	slots  map[string]*slot
	now    func() time.Time
	cancel context.CancelFunc
}

func NewMemoryQueue(ttl time.Duration) *MemoryQueue {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryQueue{
		BaseComponent: core.NewBaseComponent(consts.COMP_RESPONSE_QUEUE),
		ttl:           ttl,
		slots:         map[string]*slot{},
		now:           time.Now,
	}
}

func (q *MemoryQueue) Start(ctx context.Context) error {
	if q.IsActive() {
		return nil
	}
	if err := q.BaseComponent.Start(ctx); err != nil {
		return err
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	go q.sweepLoop(loopCtx)
	return nil
}

func (q *MemoryQueue) Stop(ctx context.Context) error {
	if !q.IsActive() {
		return nil
	}
	if q.cancel != nil {
		q.cancel()
	}
	return q.BaseComponent.Stop(ctx)
}

func (q *MemoryQueue) sweepLoop(ctx context.Context) {
	interval := q.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := q.sweep(); n > 0 {
				logging.Debug(ctx, "response queue swept idle keys", zap.Int("count", n))
			}
		}
	}
}

// sweep 只清理没有等待者且已过期的桶
func (q *MemoryQueue) sweep() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	n := 0
	for k, s := range q.slots {
		if s.waiters == 0 && !now.Before(s.expireAt) {
			delete(q.slots, k)
			n++
		}
	}
	return n
}

func (q *MemoryQueue) slotFor(key string) *slot {
	s, ok := q.slots[key]
	if !ok {
		s = &slot{ch: make(chan model.ResponseData, slotCapacity)}
		q.slots[key] = s
	}
	s.expireAt = q.now().Add(q.ttl)
	return s
}

func (q *MemoryQueue) Offer(ctx context.Context, key string, data model.ResponseData) error {
	q.mu.Lock()
	s := q.slotFor(key)
	q.mu.Unlock()
	select {
	case s.ch <- data:
	default:
		logging.Warn(ctx, "response queue full, dropping response", zap.String("queue", key))
	}
	return nil
}

func (q *MemoryQueue) Poll(ctx context.Context, key string, timeout time.Duration) (model.ResponseData, bool, error) {
	q.mu.Lock()
	s := q.slotFor(key)
	s.waiters++
	q.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var (
		data model.ResponseData
		ok   bool
		err  error
	)
	select {
	case data = <-s.ch:
		ok = true
	case <-timer.C:
	case <-ctx.Done():
		err = ctx.Err()
	}

	q.mu.Lock()
	s.waiters--
	if ok && s.waiters == 0 && len(s.ch) == 0 {
		delete(q.slots, key)
	}
	q.mu.Unlock()
	return data, ok, err
}
