package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Component 是容器中所有可管理单元的统一接口。
type Component interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	HealthCheck() error
	Dependencies() []string
	IsActive() bool
}

// BaseComponent 提供名称、依赖和激活状态的默认实现，业务组件通过嵌入复用。
type BaseComponent struct {
	name   string
	active atomic.Bool

	depMu sync.RWMutex
	deps  []string
}

func NewBaseComponent(name string, deps ...string) *BaseComponent {
	bc := &BaseComponent{name: name}
	bc.AddDependencies(deps...)
	return bc
}

func (c *BaseComponent) Name() string { return c.name }

func (c *BaseComponent) Dependencies() []string {
	c.depMu.RLock()
	defer c.depMu.RUnlock()
	out := make([]string, len(c.deps))
	copy(out, c.deps)
	return out
}

func (c *BaseComponent) IsActive() bool { return c.active.Load() }

func (c *BaseComponent) SetActive(active bool) { c.active.Store(active) }

func (c *BaseComponent) Start(ctx context.Context) error {
	c.active.Store(true)
	return nil
}

func (c *BaseComponent) Stop(ctx context.Context) error {
	c.active.Store(false)
	return nil
}

func (c *BaseComponent) HealthCheck() error {
	if !c.active.Load() {
		return fmt.Errorf("component %s is not active", c.name)
	}
	return nil
}

// AddDependencies 追加运行期依赖（去重）。必须在 LifecycleManager.StartAll 之前调用，
// autowire 注入与 registry.ExtendRuntimeDependencies 都依赖它来修正启动顺序。
func (c *BaseComponent) AddDependencies(deps ...string) {
	if len(deps) == 0 {
		return
	}
	c.depMu.Lock()
	defer c.depMu.Unlock()
	for _, d := range deps {
		if d == "" || d == c.name {
			continue
		}
		dup := false
		for _, existing := range c.deps {
			if existing == d {
				dup = true
				break
			}
		}
		if !dup {
			c.deps = append(c.deps, d)
		}
	}
}
