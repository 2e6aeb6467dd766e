package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/autowire"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/config"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
)

// BuilderFunc 返回 (enabled, component, error)；enabled=false 时跳过注册。
type BuilderFunc func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error)

// Builder 构建器元数据
type Builder struct {
	Name string
	Fn   BuilderFunc
	// Auto 构建器的名称与构建期依赖由预构建实例推断
	Auto bool
	// Deps 构建期依赖，只影响构建顺序
	Deps []string

	prebuilt   core.Component
	preEnabled bool
}

var (
	mu       sync.Mutex
	builders []*Builder
)

func findBuilder(name string) *Builder {
	for _, b := range builders {
		if b.Name == name {
			return b
		}
	}
	return nil
}

// Register 以显式名称注册构建器。
func Register(name string, fn BuilderFunc) {
	RegisterWithDeps(name, nil, fn)
}

// RegisterWithDeps 注册构建器并声明构建期依赖：deps 中的组件会先于本构建器被构建注册，
// 构建函数内部即可从容器 Resolve 它们。
func RegisterWithDeps(name string, deps []string, fn BuilderFunc) {
	if name == "" {
		panic("registry: empty name in Register")
	}
	mu.Lock()
	defer mu.Unlock()
	if findBuilder(name) != nil {
		panic("registry: duplicate builder name " + name)
	}
	builders = append(builders, &Builder{Name: name, Fn: fn, Deps: append([]string(nil), deps...)})
}

// RegisterAuto 注册名称与依赖均由组件本身推断的构建器；组件 Name() 必须稳定且非空。
func RegisterAuto(fn BuilderFunc) {
	mu.Lock()
	defer mu.Unlock()
	builders = append(builders, &Builder{Auto: true, Fn: fn})
}

// BuildAndRegisterAll 预构建 auto 构建器推断名称和标签依赖，拓扑排序后依次构建并注册，
// 最后应用 ExtendRuntimeDependencies 声明的运行时依赖。
func BuildAndRegisterAll(cfg *config.AppConfig, c *core.Container) error {
	mu.Lock()
	defer mu.Unlock()

	for _, b := range builders {
		if !b.Auto || b.Name != "" {
			continue
		}
		enabled, comp, err := b.Fn(cfg, c)
		if err != nil {
			return fmt.Errorf("auto builder failed: %w", err)
		}
		b.preEnabled, b.prebuilt = enabled, comp
		if !enabled || comp == nil {
			continue
		}
		name := comp.Name()
		if name == "" {
			return fmt.Errorf("auto builder produced unnamed component")
		}
		if existing := findBuilder(name); existing != nil && existing != b {
			return fmt.Errorf("duplicate inferred name: %s", name)
		}
		b.Name = name
		for _, tag := range autowire.Tags(comp) {
			if findBuilder(tag.Name) != nil {
				b.Deps = append(b.Deps, tag.Name)
			}
		}
	}

	ordered, err := topoSortBuilders(builders)
	if err != nil {
		return err
	}
	for _, b := range ordered {
		var (
			enabled bool
			comp    core.Component
		)
		if b.Auto {
			enabled, comp = b.preEnabled, b.prebuilt
		} else {
			enabled, comp, err = b.Fn(cfg, c)
			if err != nil {
				return fmt.Errorf("build %s failed: %w", b.Name, err)
			}
		}
		if !enabled || comp == nil {
			continue
		}
		if err := c.Register(b.Name, comp); err != nil {
			return fmt.Errorf("register %s failed: %w", b.Name, err)
		}
	}
	applyRuntimeDepExtensions(c)
	return nil
}

// Names 返回已知构建器名称（auto 构建器推断前为空名称不计入）。
func Names() []string {
	mu.Lock()
	defer mu.Unlock()
	var out []string
	for _, b := range builders {
		if b.Name != "" {
			out = append(out, b.Name)
		}
	}
	sort.Strings(out)
	return out
}

// Kahn 算法；未知依赖忽略。
func topoSortBuilders(list []*Builder) ([]*Builder, error) {
	nameMap := map[string]*Builder{}
	inDeg := map[string]int{}
	adj := map[string][]string{}
	for _, b := range list {
		if b.Name != "" {
			nameMap[b.Name] = b
			inDeg[b.Name] = 0
		}
	}
	for _, b := range list {
		if b.Name == "" {
			continue
		}
		for _, d := range b.Deps {
			if _, ok := nameMap[d]; !ok || d == b.Name {
				continue
			}
			adj[d] = append(adj[d], b.Name)
			inDeg[b.Name]++
		}
	}
	var zero []string
	for n, d := range inDeg {
		if d == 0 {
			zero = append(zero, n)
		}
	}
	sort.Strings(zero)
	var ordered []*Builder
	for len(zero) > 0 {
		n := zero[0]
		zero = zero[1:]
		ordered = append(ordered, nameMap[n])
		for _, nxt := range adj[n] {
			inDeg[nxt]--
			if inDeg[nxt] == 0 {
				zero = append(zero, nxt)
			}
		}
		sort.Strings(zero)
	}
	if len(ordered) != len(nameMap) {
		var cyc []string
		for n, d := range inDeg {
			if d > 0 {
				cyc = append(cyc, n)
			}
		}
		sort.Strings(cyc)
		return nil, fmt.Errorf("registry: cyclic builder deps: %v", cyc)
	}
	return ordered, nil
}
