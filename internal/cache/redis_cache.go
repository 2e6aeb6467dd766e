package cache

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

// claimScript 在任务 key 存在时写入领取者，已有领取者则保持不变。
// 返回 {owner, task json}；任务 key 不存在返回 nil。
var claimScript = goredis.NewScript(`
local task = redis.call('GET', KEYS[1])
if not task then
  return false
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl <= 0 then
  ttl = tonumber(ARGV[2])
end
redis.call('SET', KEYS[2], ARGV[1], 'PX', ttl, 'NX')
local owner = redis.call('GET', KEYS[2])
return {owner, task}
`)

// RedisCache 基于 redis 的共享实现，任何实例都能领取同步任务。
// 任务本体和领取者分两个 key 存放，领取者由 Lua 脚本原子写入。
type RedisCache struct {
	*core.BaseComponent
	Redis *redis.RedisComponent `infra:"dep:redis"`
	ttl   time.Duration
}

func NewRedisCache(ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{
		BaseComponent: core.NewBaseComponent(consts.COMP_SYNC_CACHE, "redis"),
		ttl:           ttl,
	}
}

func (r *RedisCache) taskKey(id string) string  { return r.Redis.Key(consts.REDIS_KEY_SYNC_TASK, id) }
func (r *RedisCache) claimKey(id string) string { return r.Redis.Key(consts.REDIS_KEY_SYNC_CLAIM, id) }

func (r *RedisCache) Put(ctx context.Context, task *model.DelegateTask) error {
	raw, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode sync task: %w", err)
	}
	cli := r.Redis.Client()
	if _, err := cli.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, r.taskKey(task.ID), raw, r.ttl)
		if task.DelegateID != "" {
			p.Set(ctx, r.claimKey(task.ID), task.DelegateID, r.ttl)
		} else {
			p.Del(ctx, r.claimKey(task.ID))
		}
		return nil
	}); err != nil {
		return fmt.Errorf("put sync task %s: %w", task.ID, err)
	}
	return nil
}

func (r *RedisCache) decode(raw string, owner string) (*model.DelegateTask, error) {
	var t model.DelegateTask
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, fmt.Errorf("decode sync task: %w", err)
	}
	if owner != "" {
		t.DelegateID = owner
	}
	return &t, nil
}

func (r *RedisCache) Get(ctx context.Context, id string) (*model.DelegateTask, error) {
	vals, err := r.Redis.Client().MGet(ctx, r.taskKey(id), r.claimKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get sync task %s: %w", id, err)
	}
	raw, ok := vals[0].(string)
	if !ok {
		return nil, nil
	}
	owner, _ := vals[1].(string)
	return r.decode(raw, owner)
}

func (r *RedisCache) Claim(ctx context.Context, id, delegateID string) (*model.DelegateTask, bool, error) {
	res, err := claimScript.Run(ctx, r.Redis.Client(),
		[]string{r.taskKey(id), r.claimKey(id)}, delegateID, r.ttl.Milliseconds()).Slice()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("claim sync task %s: %w", id, err)
	}
	if len(res) != 2 {
		return nil, false, fmt.Errorf("claim sync task %s: unexpected reply %v", id, res)
	}
	owner, _ := res[0].(string)
	if owner != delegateID {
		return nil, true, nil
	}
	raw, _ := res[1].(string)
	t, err := r.decode(raw, owner)
	return t, true, err
}

func (r *RedisCache) Remove(ctx context.Context, id string) (*model.DelegateTask, error) {
	cli := r.Redis.Client()
	var get *goredis.StringCmd
	var owner *goredis.StringCmd
	if _, err := cli.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		get = p.Get(ctx, r.taskKey(id))
		owner = p.Get(ctx, r.claimKey(id))
		p.Del(ctx, r.taskKey(id), r.claimKey(id))
		return nil
	}); err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("remove sync task %s: %w", id, err)
	}
	raw, err := get.Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.decode(raw, owner.Val())
}
