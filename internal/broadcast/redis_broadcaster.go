package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/redis"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"
)

// RedisBroadcaster 基于 redis Pub/Sub，多个服务实例共享同一组频道
type RedisBroadcaster struct {
	*core.BaseComponent
	Redis *redis.RedisComponent `infra:"dep:redis"`
}

func NewRedisBroadcaster() *RedisBroadcaster {
	return &RedisBroadcaster{BaseComponent: core.NewBaseComponent(consts.COMP_BROADCASTER, "redis")}
}

func (b *RedisBroadcaster) channel(accountID string) string {
	return b.Redis.Key(consts.REDIS_CHANNEL_STREAM, accountID)
}

func (b *RedisBroadcaster) Publish(ctx context.Context, accountID string, event model.BroadcastEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.Redis.Client().Publish(ctx, b.channel(accountID), raw).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", accountID, err)
	}
	return nil
}

type redisSub struct {
	ps   *goredis.PubSub
	ch   chan model.BroadcastEvent
	once sync.Once
	done chan struct{}
}

func (s *redisSub) C() <-chan model.BroadcastEvent { return s.ch }

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		if s.ps != nil {
			err = s.ps.Close()
		}
	})
	return err
}

func (b *RedisBroadcaster) Subscribe(ctx context.Context, accountID string) (Subscription, error) {
	ps := b.Redis.Client().Subscribe(ctx, b.channel(accountID))
	// 等待订阅确认，避免订阅前发布的事件丢失
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", accountID, err)
	}
	s := &redisSub{ps: ps, ch: make(chan model.BroadcastEvent, subscriberBuffer), done: make(chan struct{})}
	go s.pump(ctx, accountID, ps.Channel())
	return s, nil
}

func (s *redisSub) pump(ctx context.Context, accountID string, msgs <-chan *goredis.Message) {
	defer close(s.ch)
	defer func() {
		if r := recover(); r != nil {
			logging.Error(ctx, "broadcast receive loop panic", zap.String("account_id", accountID), zap.Any("panic", r))
			_ = s.Close()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			_ = s.Close()
			return
		case <-s.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var ev model.BroadcastEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logging.Warn(ctx, "drop undecodable broadcast", zap.String("account_id", accountID), zap.Error(err))
				continue
			}
			select {
			case s.ch <- ev:
			default:
				logging.Warn(ctx, "broadcast subscriber lagging, event dropped", zap.String("account_id", accountID))
			}
		}
	}
}
