package dao

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"
)

type MemoryDelegateDao struct {
	*core.BaseComponent
	mu        sync.RWMutex
	delegates map[string]*model.Delegate
	now       clock
}

func NewMemoryDelegateDao() *MemoryDelegateDao {
	return &MemoryDelegateDao{
		BaseComponent: core.NewBaseComponent(consts.COMP_DAO_DELEGATE),
		delegates:     map[string]*model.Delegate{},
		now:           defaultClock,
	}
}

func (m *MemoryDelegateDao) FindByHost(_ context.Context, accountID, ip, hostName string) (*model.Delegate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *model.Delegate
	for _, d := range m.delegates {
		if d.AccountID != accountID || d.IP != ip || d.HostName != hostName {
			continue
		}
		if found == nil || d.CreatedAt.Before(found.CreatedAt) {
			found = d
		}
	}
	return found.Clone(), nil
}

func (m *MemoryDelegateDao) Create(_ context.Context, d *model.Delegate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.delegates[d.ID]; exists {
		return fmt.Errorf("delegate %s: %w", d.ID, ErrDuplicate)
	}
	now := m.now()
	d.CreatedAt, d.LastUpdatedAt = now, now
	stored := d.Clone()
	stored.CurrentlyExecutingTasks = nil
	m.delegates[d.ID] = stored
	return nil
}

func (m *MemoryDelegateDao) Get(_ context.Context, accountID, id string) (*model.Delegate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.delegates[id]
	if !ok || d.AccountID != accountID {
		return nil, ErrNotFound
	}
	return d.Clone(), nil
}

func (m *MemoryDelegateDao) List(_ context.Context, accountID string, limit, offset int) ([]*model.Delegate, error) {
	limit, offset = normalizePage(limit, offset)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var list []*model.Delegate
	for _, d := range m.delegates {
		if d.AccountID == accountID {
			list = append(list, d.Clone())
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	if offset >= len(list) {
		return nil, nil
	}
	list = list[offset:]
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (m *MemoryDelegateDao) Count(_ context.Context, accountID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, d := range m.delegates {
		if d.AccountID == accountID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryDelegateDao) Update(_ context.Context, accountID, id string, u model.DelegateUpdate) (*model.Delegate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.delegates[id]
	if !ok || d.AccountID != accountID {
		return nil, ErrNotFound
	}
	u.Apply(d)
	d.LastUpdatedAt = m.now()
	return d.Clone(), nil
}

func (m *MemoryDelegateDao) Delete(_ context.Context, accountID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.delegates[id]; ok && d.AccountID == accountID {
		delete(m.delegates, id)
	}
	return nil
}

func (m *MemoryDelegateDao) MarkDisconnected(_ context.Context, cutoffMillis int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var n int64
	for _, d := range m.delegates {
		if d.Connected && d.LastHeartbeat < cutoffMillis {
			d.Connected = false
			d.LastUpdatedAt = now
			n++
		}
	}
	return n, nil
}
