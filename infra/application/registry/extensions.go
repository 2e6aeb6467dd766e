package registry

import (
	"sync"

	"go.uber.org/zap"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
)

// target 组件名 -> 额外运行时依赖；在 BuildAndRegisterAll 之前声明（通常在 init 中）。
var (
	runtimeDepExtMap = map[string][]string{}
	runtimeDepExtMu  sync.Mutex
)

// ExtendRuntimeDependencies 声明 target 在运行时额外依赖 deps，只影响启动/停止顺序，不影响构建顺序。
// 典型用法：http_server 依赖业务控制器，保证路由注册时控制器已就绪。
func ExtendRuntimeDependencies(target string, deps ...string) {
	if target == "" || len(deps) == 0 {
		return
	}
	runtimeDepExtMu.Lock()
	defer runtimeDepExtMu.Unlock()
	runtimeDepExtMap[target] = append(runtimeDepExtMap[target], deps...)
}

func applyRuntimeDepExtensions(c *core.Container) {
	runtimeDepExtMu.Lock()
	defer runtimeDepExtMu.Unlock()
	for target, extra := range runtimeDepExtMap {
		comp, err := c.Resolve(target)
		if err != nil {
			core.Logger().Warn("runtime dep extension target not registered", zap.String("target", target))
			continue
		}
		var present []string
		for _, d := range extra {
			if _, err := c.Resolve(d); err == nil {
				present = append(present, d)
			}
		}
		if extender, ok := comp.(interface{ AddDependencies(...string) }); ok {
			extender.AddDependencies(present...)
		}
	}
	runtimeDepExtMap = map[string][]string{}
}
