package broadcast

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"
)

// MemoryBroadcaster 进程内扇出，消费跟不上的订阅者会丢事件。
type MemoryBroadcaster struct {
	*core.BaseComponent
	mu   sync.RWMutex
	subs map[string]map[*memorySub]struct{}
}

func NewMemoryBroadcaster() *MemoryBroadcaster {
	return &MemoryBroadcaster{
		BaseComponent: core.NewBaseComponent(consts.COMP_BROADCASTER),
		subs:          map[string]map[*memorySub]struct{}{},
	}
}

type memorySub struct {
	owner     *MemoryBroadcaster
	accountID string
	ch        chan model.BroadcastEvent
	once      sync.Once
	done      chan struct{}
}

func (s *memorySub) C() <-chan model.BroadcastEvent { return s.ch }

func (s *memorySub) Close() error {
	s.once.Do(func() {
		b := s.owner
		b.mu.Lock()
		if set, ok := b.subs[s.accountID]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(b.subs, s.accountID)
			}
		}
		close(s.ch)
		close(s.done)
		b.mu.Unlock()
	})
	return nil
}

func (b *MemoryBroadcaster) Publish(ctx context.Context, accountID string, event model.BroadcastEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs[accountID] {
		select {
		case s.ch <- event:
		default:
			logging.Warn(ctx, "broadcast subscriber lagging, event dropped",
				zap.String("account_id", accountID), zap.String("kind", string(event.Kind)))
		}
	}
	return nil
}

func (b *MemoryBroadcaster) Subscribe(ctx context.Context, accountID string) (Subscription, error) {
	s := &memorySub{owner: b, accountID: accountID, ch: make(chan model.BroadcastEvent, subscriberBuffer), done: make(chan struct{})}
	b.mu.Lock()
	set, ok := b.subs[accountID]
	if !ok {
		set = map[*memorySub]struct{}{}
		b.subs[accountID] = set
	}
	set[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

// Subscribers 当前订阅数，用于指标
func (b *MemoryBroadcaster) Subscribers(accountID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[accountID])
}
