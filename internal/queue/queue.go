package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"
)

// ResponseQueue 按关联 id 分桶的单消费者阻塞队列，同步执行的调用方在上面等待 delegate 的响应。
type ResponseQueue interface {
	core.Component
	Offer(ctx context.Context, key string, data model.ResponseData) error
	// Poll 超时或 ctx 结束返回 ok=false；ctx 结束时同时返回 ctx.Err()
	Poll(ctx context.Context, key string, timeout time.Duration) (data model.ResponseData, ok bool, err error)
}

// DefaultTTL 先到的响应保留时长
const DefaultTTL = 2 * time.Minute

func New(backend string, ttl time.Duration) (ResponseQueue, error) {
	switch backend {
	case consts.BACKEND_MEMORY, "":
		return NewMemoryQueue(ttl), nil
	case consts.BACKEND_REDIS:
		return NewRedisQueue(ttl), nil
	}
	return nil, fmt.Errorf("unsupported response queue backend %q", backend)
}
