package dao

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"
)

// MemoryTaskDao 单节点实现，条件更新由互斥锁保证原子性。读写都做拷贝，调用方拿到的对象可以随意修改。
type MemoryTaskDao struct {
	*core.BaseComponent
	mu    sync.RWMutex
	tasks map[string]*model.DelegateTask
	now   clock
}

func NewMemoryTaskDao() *MemoryTaskDao {
	return &MemoryTaskDao{
		BaseComponent: core.NewBaseComponent(consts.COMP_DAO_TASK),
		tasks:         map[string]*model.DelegateTask{},
		now:           defaultClock,
	}
}

func (m *MemoryTaskDao) Create(_ context.Context, t *model.DelegateTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tasks[t.ID]; exists {
		return fmt.Errorf("task %s: %w", t.ID, ErrDuplicate)
	}
	now := m.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.LastUpdatedAt = now
	m.tasks[t.ID] = t.Clone()
	return nil
}

func (m *MemoryTaskDao) lookup(accountID, id string) *model.DelegateTask {
	t, ok := m.tasks[id]
	if !ok || t.AccountID != accountID {
		return nil
	}
	return t
}

func (m *MemoryTaskDao) Get(_ context.Context, accountID, id string) (*model.DelegateTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t := m.lookup(accountID, id)
	if t == nil {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (m *MemoryTaskDao) matching(accountID string, f model.TaskFilter) []*model.DelegateTask {
	var out []*model.DelegateTask
	for _, t := range m.tasks {
		if t.AccountID == accountID && f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}

func (m *MemoryTaskDao) ListByAccount(_ context.Context, accountID string, f model.TaskFilter, limit, offset int) ([]*model.DelegateTask, error) {
	limit, offset = normalizePage(limit, offset)
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.matching(accountID, f)
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	if offset >= len(list) {
		return nil, nil
	}
	list = list[offset:]
	if len(list) > limit {
		list = list[:limit]
	}
	out := make([]*model.DelegateTask, len(list))
	for i, t := range list {
		out[i] = t.Clone()
	}
	return out, nil
}

func (m *MemoryTaskDao) CountByAccount(_ context.Context, accountID string, f model.TaskFilter) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.matching(accountID, f))), nil
}

func (m *MemoryTaskDao) ClaimQueued(_ context.Context, accountID, taskID, delegateID string) (*model.DelegateTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.lookup(accountID, taskID)
	if t == nil || t.Status != consts.TASK_QUEUED || t.DelegateID != "" {
		return nil, nil
	}
	t.DelegateID = delegateID
	t.LastUpdatedAt = m.now()
	return t.Clone(), nil
}

func (m *MemoryTaskDao) StartClaimed(_ context.Context, accountID, taskID, delegateID string) (*model.DelegateTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.lookup(accountID, taskID)
	if t == nil || t.Status != consts.TASK_QUEUED || t.DelegateID != delegateID {
		return nil, nil
	}
	t.Status = consts.TASK_STARTED
	t.LastUpdatedAt = m.now()
	return t.Clone(), nil
}

func (m *MemoryTaskDao) AbortQueued(_ context.Context, accountID, taskID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.lookup(accountID, taskID)
	if t == nil || t.Status != consts.TASK_QUEUED {
		return false, nil
	}
	t.Status = consts.TASK_ABORTED
	t.DelegateID = ""
	t.LastUpdatedAt = m.now()
	return true, nil
}

func (m *MemoryTaskDao) TouchStarted(_ context.Context, accountID, delegateID string, ids []string, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var n int64
	for _, id := range ids {
		t := m.lookup(accountID, id)
		if t == nil || t.DelegateID != delegateID || t.Status != consts.TASK_STARTED || !t.LastUpdatedAt.Before(before) {
			continue
		}
		t.LastUpdatedAt = now
		n++
	}
	return n, nil
}

func (m *MemoryTaskDao) Complete(_ context.Context, accountID, id string, status consts.TaskStatus) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("status %s is not terminal", status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.lookup(accountID, id)
	if t == nil || t.Status != consts.TASK_STARTED {
		return false, nil
	}
	t.Status = status
	t.LastUpdatedAt = m.now()
	return true, nil
}

func (m *MemoryTaskDao) ExpireStarted(_ context.Context, cutoff time.Time, limit int) ([]*model.DelegateTask, error) {
	if limit <= 0 {
		limit = 500
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.DelegateTask
	for _, t := range m.tasks {
		if t.Status == consts.TASK_STARTED && t.LastUpdatedAt.Before(cutoff) {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUpdatedAt.Before(out[j].LastUpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryTaskDao) Delete(_ context.Context, accountID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookup(accountID, id) != nil {
		delete(m.tasks, id)
	}
	return nil
}
