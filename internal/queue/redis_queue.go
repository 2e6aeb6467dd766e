package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/redis"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"
)

// RedisQueue RPUSH 写入、BLPOP 阻塞读取，key 带 TTL，未被消费的响应过期即丢弃。
type RedisQueue struct {
	*core.BaseComponent
	Redis *redis.RedisComponent `infra:"dep:redis"`
	ttl   time.Duration
}

func NewRedisQueue(ttl time.Duration) *RedisQueue {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisQueue{
		BaseComponent: core.NewBaseComponent(consts.COMP_RESPONSE_QUEUE, "redis"),
		ttl:           ttl,
	}
}

func (q *RedisQueue) key(k string) string { return q.Redis.Key(consts.REDIS_KEY_QUEUE, k) }

func (q *RedisQueue) Offer(ctx context.Context, key string, data model.ResponseData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	k := q.key(key)
	if _, err := q.Redis.Client().Pipelined(ctx, func(p goredis.Pipeliner) error {
		p.RPush(ctx, k, raw)
		p.PExpire(ctx, k, q.ttl)
		return nil
	}); err != nil {
		return fmt.Errorf("offer response %s: %w", key, err)
	}
	return nil
}

func (q *RedisQueue) Poll(ctx context.Context, key string, timeout time.Duration) (model.ResponseData, bool, error) {
	var data model.ResponseData
	if timeout < time.Second {
		timeout = time.Second
	}
	res, err := q.Redis.Client().BLPop(ctx, timeout, q.key(key)).Result()
	if errors.Is(err, goredis.Nil) {
		return data, false, nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return data, false, ctxErr
		}
		return data, false, fmt.Errorf("poll response %s: %w", key, err)
	}
	// BLPOP 返回 [key, value]
	if len(res) != 2 {
		return data, false, fmt.Errorf("poll response %s: unexpected reply %v", key, res)
	}
	if err := json.Unmarshal([]byte(res[1]), &data); err != nil {
		return data, false, fmt.Errorf("decode response: %w", err)
	}
	return data, true, nil
}
