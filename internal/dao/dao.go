package dao

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"
)

// ErrNotFound 与 gorm 共用同一个哨兵错误，内存实现同样返回它
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate 主键冲突；gorm 需开启 TranslateError
var ErrDuplicate = gorm.ErrDuplicatedKey

// TaskDao 任务存储。所有条件更新（领取、启动、中止、完成）在存储层原子执行。
type TaskDao interface {
	core.Component
	Create(ctx context.Context, t *model.DelegateTask) error
	Get(ctx context.Context, accountID, id string) (*model.DelegateTask, error)
	ListByAccount(ctx context.Context, accountID string, f model.TaskFilter, limit, offset int) ([]*model.DelegateTask, error)
	CountByAccount(ctx context.Context, accountID string, f model.TaskFilter) (int64, error)
	// ClaimQueued status=QUEUED 且未分配时写入 delegateID；未命中返回 nil, nil
	ClaimQueued(ctx context.Context, accountID, taskID, delegateID string) (*model.DelegateTask, error)
	// StartClaimed status=QUEUED 且 delegate_id=领取者时置为 STARTED；未命中返回 nil, nil
	StartClaimed(ctx context.Context, accountID, taskID, delegateID string) (*model.DelegateTask, error)
	// AbortQueued status=QUEUED 时置为 ABORTED 并清空 delegate_id
	AbortQueued(ctx context.Context, accountID, taskID string) (bool, error)
	// TouchStarted 刷新 delegate 上报的执行中任务里 last_updated_at 早于 before 的记录
	TouchStarted(ctx context.Context, accountID, delegateID string, ids []string, before time.Time) (int64, error)
	Complete(ctx context.Context, accountID, id string, status consts.TaskStatus) (bool, error)
	ExpireStarted(ctx context.Context, cutoff time.Time, limit int) ([]*model.DelegateTask, error)
	Delete(ctx context.Context, accountID, id string) error
}

type DelegateDao interface {
	core.Component
	// FindByHost 未找到返回 nil, nil
	FindByHost(ctx context.Context, accountID, ip, hostName string) (*model.Delegate, error)
	Create(ctx context.Context, d *model.Delegate) error
	Get(ctx context.Context, accountID, id string) (*model.Delegate, error)
	List(ctx context.Context, accountID string, limit, offset int) ([]*model.Delegate, error)
	Count(ctx context.Context, accountID string) (int64, error)
	Update(ctx context.Context, accountID, id string, u model.DelegateUpdate) (*model.Delegate, error)
	Delete(ctx context.Context, accountID, id string) error
	// MarkDisconnected 把 last_heartbeat 早于 cutoff（毫秒）的在线 delegate 标记为断开
	MarkDisconnected(ctx context.Context, cutoffMillis int64) (int64, error)
}

type clock func() time.Time

func defaultClock() time.Time { return time.Now().UTC() }

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
