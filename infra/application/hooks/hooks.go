package hooks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Phase 生命周期阶段
type Phase string

const (
	BeforeStart    Phase = "before_start"
	AfterStart     Phase = "after_start"
	BeforeShutdown Phase = "before_shutdown"
	AfterShutdown  Phase = "after_shutdown"
)

type HookFunc func(ctx context.Context) error

// Hook 按 Priority 升序执行，同优先级按注册顺序。
type Hook struct {
	Name     string
	Phase    Phase
	Function HookFunc
	Priority int

	seq int
}

type Manager struct {
	mu    sync.RWMutex
	hooks map[Phase][]*Hook
	seq   int
}

func NewManager() *Manager {
	return &Manager{hooks: make(map[Phase][]*Hook)}
}

func (m *Manager) Register(hook *Hook) error {
	if hook == nil || hook.Function == nil {
		return fmt.Errorf("hook must have a function")
	}
	if hook.Name == "" {
		return fmt.Errorf("hook must have a name")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.hooks[hook.Phase] {
		if h.Name == hook.Name {
			return fmt.Errorf("hook %s already registered for phase %s", hook.Name, hook.Phase)
		}
	}
	m.seq++
	hook.seq = m.seq
	list := append(m.hooks[hook.Phase], hook)
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Priority != list[j].Priority {
			return list[i].Priority < list[j].Priority
		}
		return list[i].seq < list[j].seq
	})
	m.hooks[hook.Phase] = list
	return nil
}

// Execute 顺序执行该阶段的钩子，遇到首个错误即返回。
func (m *Manager) Execute(ctx context.Context, phase Phase) error {
	m.mu.RLock()
	list := make([]*Hook, len(m.hooks[phase]))
	copy(list, m.hooks[phase])
	m.mu.RUnlock()

	for _, h := range list {
		if err := h.Function(ctx); err != nil {
			return fmt.Errorf("hook %s (%s): %w", h.Name, phase, err)
		}
	}
	return nil
}

func (m *Manager) Count(phase Phase) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hooks[phase])
}

var hookLogger atomic.Pointer[zap.Logger]

func init() { hookLogger.Store(zap.NewNop()) }

// SetLogger 由 logging 组件启动后注入。
func SetLogger(l *zap.Logger) {
	if l != nil {
		hookLogger.Store(l)
	}
}

func logger() *zap.Logger { return hookLogger.Load() }
