package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/hooks"
)

var coreLogger atomic.Pointer[zap.Logger]

func init() { coreLogger.Store(zap.NewNop()) }

// SetLogger 替换生命周期日志输出，logging 组件启动后调用。
func SetLogger(l *zap.Logger) {
	if l != nil {
		coreLogger.Store(l)
	}
}

// Logger 返回框架内部日志器，默认 no-op。
func Logger() *zap.Logger { return coreLogger.Load() }

// LifecycleManager 按依赖顺序启动组件，逆序停止。
type LifecycleManager struct {
	container   *Container
	hookManager *hooks.Manager

	mutex          sync.Mutex
	started        []Component
	shutdownCalled bool
	timeout        time.Duration
}

func NewLifecycleManager(container *Container) *LifecycleManager {
	return NewLifecycleManagerWithManager(container, hooks.NewManager())
}

// NewLifecycleManagerWithManager 使用外部钩子管理器（通常是全局管理器）。
func NewLifecycleManagerWithManager(container *Container, hm *hooks.Manager) *LifecycleManager {
	if hm == nil {
		hm = hooks.NewManager()
	}
	return &LifecycleManager{
		container:   container,
		hookManager: hm,
		timeout:     30 * time.Second,
	}
}

// SetTimeout 设置单个组件启动/停止超时
func (lm *LifecycleManager) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		lm.timeout = timeout
	}
}

func (lm *LifecycleManager) AddHook(name string, phase hooks.Phase, function hooks.HookFunc, priority int) error {
	return lm.hookManager.Register(&hooks.Hook{
		Name:     name,
		Phase:    phase,
		Function: function,
		Priority: priority,
	})
}

func (lm *LifecycleManager) StartAll(ctx context.Context) error {
	if err := lm.hookManager.Execute(ctx, hooks.BeforeStart); err != nil {
		return fmt.Errorf("before_start hooks failed: %w", err)
	}

	components, err := lm.container.SortComponentsByDependencies()
	if err != nil {
		return fmt.Errorf("failed to sort components: %w", err)
	}

	for _, comp := range components {
		startCtx, cancel := context.WithTimeout(ctx, lm.timeout)
		begin := time.Now()
		err := comp.Start(startCtx)
		cancel()
		if err != nil {
			Logger().Error("component start failed", zap.String("component", comp.Name()), zap.Error(err))
			lm.stopStarted(context.Background())
			return fmt.Errorf("failed to start component %s: %w", comp.Name(), err)
		}
		lm.mutex.Lock()
		lm.started = append(lm.started, comp)
		lm.mutex.Unlock()
		Logger().Info("component started", zap.String("component", comp.Name()), zap.Duration("took", time.Since(begin)))
	}

	if err := lm.hookManager.Execute(ctx, hooks.AfterStart); err != nil {
		Logger().Warn("after_start hooks failed", zap.Error(err))
	}
	return nil
}

// StopAll 只执行一次；按启动的逆序停止。
func (lm *LifecycleManager) StopAll(ctx context.Context) {
	lm.mutex.Lock()
	if lm.shutdownCalled {
		lm.mutex.Unlock()
		return
	}
	lm.shutdownCalled = true
	lm.mutex.Unlock()

	if err := lm.hookManager.Execute(ctx, hooks.BeforeShutdown); err != nil {
		Logger().Warn("before_shutdown hooks failed", zap.Error(err))
	}

	lm.stopStarted(ctx)

	if err := lm.hookManager.Execute(ctx, hooks.AfterShutdown); err != nil {
		Logger().Warn("after_shutdown hooks failed", zap.Error(err))
	}
}

func (lm *LifecycleManager) stopStarted(ctx context.Context) {
	lm.mutex.Lock()
	started := lm.started
	lm.started = nil
	lm.mutex.Unlock()

	for i := len(started) - 1; i >= 0; i-- {
		comp := started[i]
		if !comp.IsActive() {
			continue
		}
		stopCtx, cancel := context.WithTimeout(ctx, lm.timeout)
		if err := comp.Stop(stopCtx); err != nil {
			Logger().Error("component stop failed", zap.String("component", comp.Name()), zap.Error(err))
		} else {
			Logger().Info("component stopped", zap.String("component", comp.Name()))
		}
		cancel()
	}
}
