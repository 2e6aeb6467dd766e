package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/dao"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"
)

// TaskReaper 扫描长时间未被心跳刷新的 STARTED 任务，标记 FAILURE；
// 带 wait-id 的任务通知 ERROR 响应后删除记录。每轮最多处理 batchSize 条。
type TaskReaper struct {
	*core.BaseComponent
	TaskDao   dao.TaskDao      `infra:"dep:task_dao"`
	Notify    *NotifyEngine    `infra:"dep:notify_engine"`
	Metrics   *DispatchMetrics `infra:"dep:dispatch_metrics?"`
	expiry    time.Duration
	interval  time.Duration
	batchSize int
	cancel    context.CancelFunc
	now       func() time.Time
}

func NewTaskReaper(expiry, interval time.Duration, batchSize int) *TaskReaper {
	if expiry <= 0 {
		expiry = 10 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &TaskReaper{
		BaseComponent: core.NewBaseComponent(consts.COMP_SVC_TASK_REAPER),
		expiry:        expiry,
		interval:      interval,
		batchSize:     batchSize,
		now:           time.Now,
	}
}

func (r *TaskReaper) Start(ctx context.Context) error {
	if r.IsActive() {
		return nil
	}
	if err := r.BaseComponent.Start(ctx); err != nil {
		return err
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go r.loop(loopCtx)
	return nil
}

func (r *TaskReaper) Stop(ctx context.Context) error {
	if !r.IsActive() {
		return nil
	}
	if r.cancel != nil {
		r.cancel()
	}
	return r.BaseComponent.Stop(ctx)
}

func (r *TaskReaper) loop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.scan(ctx)
		}
	}
}

func (r *TaskReaper) scan(ctx context.Context) int {
	expired, err := r.TaskDao.ExpireStarted(ctx, r.now().UTC().Add(-r.expiry), r.batchSize)
	if err != nil {
		logging.Error(ctx, "task reaper list expired failed", zap.Error(err))
		return 0
	}
	reaped := 0
	for _, t := range expired {
		ok, err := r.TaskDao.Complete(ctx, t.AccountID, t.ID, consts.TASK_FAILURE)
		if err != nil {
			logging.Error(ctx, "task reaper complete failed", zap.String("task_id", t.ID), zap.Error(err))
			continue
		}
		if !ok {
			// 期间已完成
			continue
		}
		reaped++
		logging.Info(ctx, "started task expired", zap.String("task_id", t.ID), zap.String("delegate_id", t.DelegateID))
		if t.WaitID == "" {
			continue
		}
		r.Notify.Notify(ctx, t.WaitID, model.ErrorResponse("task %s expired on delegate %s", t.ID, t.DelegateID))
		if err := r.TaskDao.Delete(ctx, t.AccountID, t.ID); err != nil {
			logging.Error(ctx, "task reaper delete failed", zap.String("task_id", t.ID), zap.Error(err))
		}
	}
	r.Metrics.Reaped(reaped)
	return reaped
}
