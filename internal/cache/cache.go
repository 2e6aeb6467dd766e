package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"
)

// SyncCache 保存等待同步响应的任务，按关联 id 索引，超过 TTL 的条目自动淘汰。
type SyncCache interface {
	core.Component
	Put(ctx context.Context, task *model.DelegateTask) error
	// Get 不存在时返回 nil, nil
	Get(ctx context.Context, id string) (*model.DelegateTask, error)
	// Claim 第一次领取生效。present=false 表示缓存里没有该任务；
	// present=true 且 task=nil 表示已被其他 delegate 领取。
	Claim(ctx context.Context, id, delegateID string) (task *model.DelegateTask, present bool, err error)
	// Remove 淘汰并返回条目，不存在时返回 nil
	Remove(ctx context.Context, id string) (*model.DelegateTask, error)
}

const DefaultTTL = 60 * time.Second

func New(backend string, ttl time.Duration) (SyncCache, error) {
	switch backend {
	case consts.BACKEND_MEMORY, "":
		return NewMemoryCache(ttl), nil
	case consts.BACKEND_REDIS:
		return NewRedisCache(ttl), nil
	}
	return nil, fmt.Errorf("unsupported sync cache backend %q", backend)
}
