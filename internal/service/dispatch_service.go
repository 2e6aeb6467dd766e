package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/broadcast"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/cache"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/dao"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/queue"
)

const DefaultSyncTimeout = 30 * time.Second

// DispatchService 任务派发、领取与响应回传。
//
// 异步任务（QueueTask）落库并以 wait-id 关联结果；同步任务（ExecuteTask）只放进同步缓存，
// 调用方阻塞在以关联 id 命名的响应队列上。一次响应只走其中一条路径。
type DispatchService struct {
	*core.BaseComponent
	TaskDao     dao.TaskDao           `infra:"dep:task_dao"`
	DelegateDao dao.DelegateDao       `infra:"dep:delegate_dao"`
	Cache       cache.SyncCache       `infra:"dep:sync_cache"`
	Queue       queue.ResponseQueue   `infra:"dep:response_queue"`
	Broadcaster broadcast.Broadcaster `infra:"dep:broadcaster"`
	Notify      *NotifyEngine         `infra:"dep:notify_engine"`
	Metrics     *DispatchMetrics      `infra:"dep:dispatch_metrics?"`

	syncTimeout time.Duration
	tracer      trace.Tracer
	newID       func() string
}

func NewDispatchService(syncTimeout time.Duration) *DispatchService {
	if syncTimeout <= 0 {
		syncTimeout = DefaultSyncTimeout
	}
	return &DispatchService{
		BaseComponent: core.NewBaseComponent(consts.COMP_SVC_DISPATCH),
		syncTimeout:   syncTimeout,
		tracer:        otel.Tracer("delegate/dispatch"),
		newID:         uuid.NewString,
	}
}

func (s *DispatchService) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "dispatch."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func validateTask(t *model.DelegateTask) error {
	if t == nil {
		return newError(ERR_INVALID_REQUEST, nil, "reason", "task is required")
	}
	if t.AccountID == "" {
		return newError(ERR_INVALID_REQUEST, nil, "reason", "account_id is required")
	}
	if !t.TaskType.Valid() {
		return newError(ERR_INVALID_REQUEST, nil, "reason", fmt.Sprintf("unknown task_type %q", t.TaskType))
	}
	if t.Parameters.Kind != t.TaskType {
		return newError(ERR_INVALID_REQUEST, nil, "reason", "parameters kind does not match task_type")
	}
	if err := t.Parameters.Validate(); err != nil {
		return newError(ERR_INVALID_REQUEST, err, "reason", "invalid parameters")
	}
	return nil
}

// publish 投递到任务所属账号；全局 delegate 订阅全局频道，因此同时投递一份
func (s *DispatchService) publish(ctx context.Context, accountID string, ev model.BroadcastEvent) {
	targets := []string{accountID}
	if accountID != consts.GLOBAL_ACCOUNT_ID {
		targets = append(targets, consts.GLOBAL_ACCOUNT_ID)
	}
	for _, acct := range targets {
		if err := s.Broadcaster.Publish(ctx, acct, ev); err != nil {
			logging.Error(ctx, "broadcast failed", zap.String("channel", acct), zap.String("kind", string(ev.Kind)), zap.Error(err))
		}
	}
}

// QueueTask 异步派发：落库后广播，返回任务 id。未指定 wait_id 时使用任务 id。
func (s *DispatchService) QueueTask(ctx context.Context, task *model.DelegateTask) (id string, err error) {
	ctx, span := s.startSpan(ctx, "QueueTask")
	defer func() { endSpan(span, err) }()

	if err = validateTask(task); err != nil {
		return "", err
	}
	if task.ID == "" {
		task.ID = s.newID()
	}
	if task.WaitID == "" {
		task.WaitID = task.ID
	}
	task.Status = consts.TASK_QUEUED
	task.Async = true
	task.DelegateID = ""
	task.QueueName = ""
	span.SetAttributes(attribute.String("task.id", task.ID), attribute.String("account.id", task.AccountID))

	if err = s.TaskDao.Create(ctx, task); err != nil {
		if errors.Is(err, dao.ErrDuplicate) {
			return "", newError(ERR_INVALID_REQUEST, err, "reason", "task id already exists", "task_id", task.ID)
		}
		return "", fmt.Errorf("persist task %s: %w", task.ID, err)
	}
	s.Notify.RegisterCallback(task.WaitID, task.CallbackURL)
	s.publish(ctx, task.AccountID, model.NewTaskEvent(task))
	s.Metrics.Submitted("async", task.TaskType)
	logging.Debug(ctx, "task queued", zap.String("task_id", task.ID), zap.String("account_id", task.AccountID))
	return task.ID, nil
}

// ExecuteTask 同步派发，最多阻塞 syncTimeout；超时返回 REQUEST_TIMEOUT，参数 name 为调用者
func (s *DispatchService) ExecuteTask(ctx context.Context, task *model.DelegateTask, caller string) (data model.ResponseData, err error) {
	ctx, span := s.startSpan(ctx, "ExecuteTask")
	defer func() { endSpan(span, err) }()

	if caller == "" {
		caller = consts.DEFAULT_CALLER
	}
	if err = validateTask(task); err != nil {
		return data, err
	}
	id := s.newID()
	task.ID = id
	task.QueueName = id
	task.WaitID = ""
	task.DelegateID = ""
	task.Status = consts.TASK_QUEUED
	task.Async = false
	now := time.Now().UTC()
	task.CreatedAt, task.LastUpdatedAt = now, now
	span.SetAttributes(attribute.String("task.id", id), attribute.String("caller", caller))

	if err = s.Cache.Put(ctx, task); err != nil {
		return data, fmt.Errorf("cache sync task %s: %w", id, err)
	}
	s.publish(ctx, task.AccountID, model.NewTaskEvent(task))
	s.Metrics.Submitted("sync", task.TaskType)
	logging.Info(ctx, "broadcast new sync task", zap.String("task_id", id), zap.String("caller", caller))

	start := time.Now()
	data, ok, err := s.Queue.Poll(ctx, id, s.syncTimeout)
	switch {
	case err != nil:
		s.Metrics.SyncWait("cancelled", time.Since(start))
		s.evict(ctx, id)
		return data, fmt.Errorf("wait sync task %s: %w", id, err)
	case !ok:
		s.Metrics.SyncWait("timeout", time.Since(start))
		s.evict(ctx, id)
		return data, newError(ERR_REQUEST_TIMEOUT, nil, "name", caller)
	}
	s.Metrics.SyncWait("ok", time.Since(start))
	return data, nil
}

func (s *DispatchService) evict(ctx context.Context, id string) {
	if _, err := s.Cache.Remove(context.WithoutCancel(ctx), id); err != nil {
		logging.Warn(ctx, "evict sync task failed", zap.String("task_id", id), zap.Error(err))
	}
}

// AcquireTask 领取任务。失败的竞争不算错误，返回 nil。
func (s *DispatchService) AcquireTask(ctx context.Context, accountID, delegateID, taskID string) (task *model.DelegateTask, err error) {
	ctx, span := s.startSpan(ctx, "AcquireTask",
		attribute.String("task.id", taskID), attribute.String("delegate.id", delegateID))
	defer func() { endSpan(span, err) }()

	cached, err := s.Cache.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		if cached.AccountID != accountID {
			return nil, nil
		}
		claimed, present, cerr := s.Cache.Claim(ctx, taskID, delegateID)
		if cerr != nil {
			return nil, cerr
		}
		if present {
			s.Metrics.Acquisition("sync", claimed != nil)
			return claimed, nil
		}
	}

	task, err = s.TaskDao.ClaimQueued(ctx, accountID, taskID, delegateID)
	if err != nil {
		return nil, fmt.Errorf("claim task %s: %w", taskID, err)
	}
	s.Metrics.Acquisition("async", task != nil)
	if task == nil {
		logging.Debug(ctx, "task acquisition lost", zap.String("task_id", taskID), zap.String("delegate_id", delegateID))
	}
	return task, nil
}

// StartTask 同步任务直接从缓存淘汰，异步任务 QUEUED -> STARTED（仅领取者）
func (s *DispatchService) StartTask(ctx context.Context, accountID, delegateID, taskID string) (task *model.DelegateTask, err error) {
	ctx, span := s.startSpan(ctx, "StartTask",
		attribute.String("task.id", taskID), attribute.String("delegate.id", delegateID))
	defer func() { endSpan(span, err) }()

	cached, err := s.Cache.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		if cached.DelegateID != delegateID {
			return nil, nil
		}
		removed, rerr := s.Cache.Remove(ctx, taskID)
		if rerr != nil {
			return nil, rerr
		}
		if removed != nil {
			removed.Status = consts.TASK_STARTED
		}
		return removed, nil
	}
	task, err = s.TaskDao.StartClaimed(ctx, accountID, taskID, delegateID)
	if err != nil {
		return nil, fmt.Errorf("start task %s: %w", taskID, err)
	}
	return task, nil
}

// ProcessResponse 回传结果：带 wait-id 的通知并删除任务记录，否则投递到 queue_name 对应的队列
func (s *DispatchService) ProcessResponse(ctx context.Context, resp *model.DelegateTaskResponse) (err error) {
	ctx, span := s.startSpan(ctx, "ProcessResponse", attribute.String("task.id", resp.Task.ID))
	defer func() { endSpan(span, err) }()

	ref := resp.Task
	switch {
	case ref.WaitID != "":
		s.Metrics.Response("notify")
		return s.notifyAndDelete(ctx, resp)
	case ref.QueueName != "":
		s.Metrics.Response("queue")
		if err = s.Queue.Offer(ctx, ref.QueueName, resp.Response); err != nil {
			return fmt.Errorf("offer response %s: %w", ref.QueueName, err)
		}
		return nil
	}

	s.Metrics.Response("complete")
	ok, err := s.TaskDao.Complete(ctx, resp.AccountID, ref.ID, resp.Response.TerminalStatus())
	if err != nil {
		return fmt.Errorf("complete task %s: %w", ref.ID, err)
	}
	if !ok {
		return newError(ERR_TASK_NOT_FOUND, nil, "task_id", ref.ID)
	}
	return nil
}

func (s *DispatchService) notifyAndDelete(ctx context.Context, resp *model.DelegateTaskResponse) error {
	waitID := resp.Task.WaitID
	stored, err := s.TaskDao.Get(ctx, resp.AccountID, resp.Task.ID)
	switch {
	case errors.Is(err, dao.ErrNotFound):
		// 任务已被中止或回收，wait-id 已有结果，迟到的响应直接丢弃
		logging.Warn(ctx, "response for missing task dropped",
			zap.String("task_id", resp.Task.ID), zap.String("wait_id", waitID), zap.String("kind", string(resp.Response.Kind)))
		return nil
	case err != nil:
		return fmt.Errorf("load task %s: %w", resp.Task.ID, err)
	}
	if stored.WaitID != "" {
		waitID = stored.WaitID
	}
	s.Notify.Notify(ctx, waitID, resp.Response)
	if err := s.TaskDao.Delete(ctx, resp.AccountID, stored.ID); err != nil {
		return fmt.Errorf("delete task %s: %w", stored.ID, err)
	}
	return nil
}

// AbortTask 仅 QUEUED 状态可直接中止；已被领取的任务只能广播中止事件由 delegate 自行取消
func (s *DispatchService) AbortTask(ctx context.Context, accountID, taskID string) (err error) {
	ctx, span := s.startSpan(ctx, "AbortTask", attribute.String("task.id", taskID))
	defer func() { endSpan(span, err) }()

	aborted, err := s.TaskDao.AbortQueued(ctx, accountID, taskID)
	if err != nil {
		return fmt.Errorf("abort task %s: %w", taskID, err)
	}
	if aborted {
		s.Metrics.Abort("aborted")
		s.discardWait(ctx, accountID, taskID)
		return nil
	}
	s.Metrics.Abort("broadcast")
	logging.Debug(ctx, "task not queued, broadcasting abort", zap.String("task_id", taskID))
	s.publish(ctx, accountID, model.NewAbortEvent(accountID, taskID))
	return nil
}

// discardWait 中止的任务不会再有响应，清掉它的 wait-id 登记
func (s *DispatchService) discardWait(ctx context.Context, accountID, taskID string) {
	t, err := s.TaskDao.Get(ctx, accountID, taskID)
	if err != nil {
		logging.Warn(ctx, "load aborted task failed", zap.String("task_id", taskID), zap.Error(err))
		return
	}
	if t.WaitID != "" {
		s.Notify.Discard(t.WaitID)
	}
}

func (s *DispatchService) GetTask(ctx context.Context, accountID, taskID string) (*model.DelegateTask, error) {
	t, err := s.TaskDao.Get(ctx, accountID, taskID)
	if errors.Is(err, dao.ErrNotFound) {
		return nil, newError(ERR_TASK_NOT_FOUND, err, "task_id", taskID)
	}
	return t, err
}

func (s *DispatchService) ListTasks(ctx context.Context, accountID string, f model.TaskFilter, limit, offset int) ([]*model.DelegateTask, int64, error) {
	list, err := s.TaskDao.ListByAccount(ctx, accountID, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.TaskDao.CountByAccount(ctx, accountID, f)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// findDelegate delegate 可能注册在任务账号下，也可能是全局 delegate
func (s *DispatchService) findDelegate(ctx context.Context, accountID, delegateID string) (*model.Delegate, error) {
	for _, acct := range []string{accountID, consts.GLOBAL_ACCOUNT_ID} {
		d, err := s.DelegateDao.Get(ctx, acct, delegateID)
		if err == nil {
			return d, nil
		}
		if !errors.Is(err, dao.ErrNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

// FilterTask delegate 是否应当收到该任务：启用、账号匹配（或全局）、支持该任务类型
func (s *DispatchService) FilterTask(ctx context.Context, delegateID string, task *model.DelegateTask) (bool, error) {
	if task == nil {
		return false, nil
	}
	d, err := s.findDelegate(ctx, task.AccountID, delegateID)
	if err != nil || d == nil {
		return false, err
	}
	if d.Status != consts.DELEGATE_ENABLED {
		return false, nil
	}
	if d.AccountID != task.AccountID && d.AccountID != consts.GLOBAL_ACCOUNT_ID {
		return false, nil
	}
	return d.Supports(task.TaskType), nil
}

// FilterAbort 只有领取了该任务的 delegate 需要处理中止事件
func (s *DispatchService) FilterAbort(ctx context.Context, delegateID string, ev *model.AbortEvent) (bool, error) {
	if ev == nil {
		return false, nil
	}
	t, err := s.TaskDao.Get(ctx, ev.AccountID, ev.DelegateTaskID)
	if errors.Is(err, dao.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return t.DelegateID == delegateID, nil
}

// Stream 订阅 delegate 所在账号的频道，只转发通过过滤的事件。ctx 结束后返回的 channel 关闭。
func (s *DispatchService) Stream(ctx context.Context, accountID, delegateID string) (<-chan model.BroadcastEvent, error) {
	sub, err := s.Broadcaster.Subscribe(ctx, accountID)
	if err != nil {
		return nil, err
	}
	out := make(chan model.BroadcastEvent, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.C():
				if !ok {
					return
				}
				if !s.accept(ctx, delegateID, ev) {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *DispatchService) accept(ctx context.Context, delegateID string, ev model.BroadcastEvent) bool {
	var (
		ok  bool
		err error
	)
	switch ev.Kind {
	case model.EVENT_NEW_TASK:
		ok, err = s.FilterTask(ctx, delegateID, ev.Task)
	case model.EVENT_ABORT:
		ok, err = s.FilterAbort(ctx, delegateID, ev.Abort)
	}
	if err != nil {
		logging.Warn(ctx, "stream filter failed", zap.String("delegate_id", delegateID), zap.Error(err))
		return false
	}
	return ok
}
