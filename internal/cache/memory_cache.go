package cache

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

type entry struct {
	task     *model.DelegateTask
	expireAt time.Time
}

// MemoryCache 进程内实现：同步任务固定在创建它的实例上，多实例部署需要按实例路由或改用 redis。
type MemoryCache struct {
	*core.BaseComponent
	ttl     time.Duration
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
	cancel  context.CancelFunc
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		BaseComponent: core.NewBaseComponent(consts.COMP_SYNC_CACHE),
		ttl:           ttl,
		entries:       map[string]*entry{},
		now:           time.Now,
	}
}

func (m *MemoryCache) Start(ctx context.Context) error {
	if m.IsActive() {
		return nil
	}
	if err := m.BaseComponent.Start(ctx); err != nil {
		return err
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go m.sweepLoop(loopCtx)
	return nil
}

func (m *MemoryCache) Stop(ctx context.Context) error {
	if !m.IsActive() {
		return nil
	}
	if m.cancel != nil {
		m.cancel()
	}
	return m.BaseComponent.Stop(ctx)
}

func (m *MemoryCache) sweepLoop(ctx context.Context) {
	interval := m.ttl / 2
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
			if n := m.sweep(); n > 0 {
				logging.Debug(ctx, "sync cache swept expired entries", zap.Int("count", n))
			}
		}
	}
}

func (m *MemoryCache) sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for id, e := range m.entries {
		if !now.Before(e.expireAt) {
			delete(m.entries, id)
			n++
		}
	}
	return n
}

// live 调用方持锁
func (m *MemoryCache) live(id string) *entry {
	e, ok := m.entries[id]
	if !ok {
		return nil
	}
	if !m.now().Before(e.expireAt) {
		delete(m.entries, id)
		return nil
	}
	return e
}

func (m *MemoryCache) Put(_ context.Context, task *model.DelegateTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[task.ID] = &entry{task: task.Clone(), expireAt: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryCache) Get(_ context.Context, id string) (*model.DelegateTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.live(id); e != nil {
		return e.task.Clone(), nil
	}
	return nil, nil
}

func (m *MemoryCache) Claim(_ context.Context, id, delegateID string) (*model.DelegateTask, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.live(id)
	if e == nil {
		return nil, false, nil
	}
	switch e.task.DelegateID {
	case "":
		e.task.DelegateID = delegateID
	case delegateID:
	default:
		return nil, true, nil
	}
	return e.task.Clone(), true, nil
}

func (m *MemoryCache) Remove(_ context.Context, id string) (*model.DelegateTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.live(id)
	if e == nil {
		return nil, nil
	}
	delete(m.entries, id)
	return e.task, nil
}
