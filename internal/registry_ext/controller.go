package registry_ext

import (
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/config"
	appconsts "github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/registry"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/api"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/rpc"
)

func init() {
	// http_server / grpc_server 启动前控制器必须就绪
	registry.ExtendRuntimeDependencies(appconsts.COMPONENT_HTTP_SERVER, consts.COMP_CTRL_TASK, consts.COMP_CTRL_DELEGATE)
	registry.ExtendRuntimeDependencies(appconsts.COMPONENT_GRPC_SERVER, consts.COMP_RPC_AGENT)

	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return cfg.HTTPServer != nil && cfg.HTTPServer.Enabled, api.NewTaskController(), nil
	})
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return cfg.HTTPServer != nil && cfg.HTTPServer.Enabled, api.NewDelegateController(), nil
	})
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return cfg.GRPCServer != nil && cfg.GRPCServer.Enabled, rpc.NewAgentServer(), nil
	})
}
