package broadcast

import (
	"context"
	"fmt"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"
)

// Subscription 账号频道上的一个订阅。Close 之后 C() 会被关闭。
type Subscription interface {
	C() <-chan model.BroadcastEvent
	Close() error
}

// Broadcaster 按账号的发布订阅，投递是尽力而为的，不做持久化。
type Broadcaster interface {
	core.Component
	Publish(ctx context.Context, accountID string, event model.BroadcastEvent) error
	// Subscribe ctx 结束时订阅自动关闭
	Subscribe(ctx context.Context, accountID string) (Subscription, error)
}

const subscriberBuffer = 64

func New(backend string) (Broadcaster, error) {
	switch backend {
	case consts.BACKEND_MEMORY, "":
		return NewMemoryBroadcaster(), nil
	case consts.BACKEND_REDIS:
		return NewRedisBroadcaster(), nil
	}
	return nil, fmt.Errorf("unsupported broadcast backend %q", backend)
}
