package registry_ext

import (
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/config"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/registry"
	bizConfig "github.com/grand-thief-cash/chaos/app/projects/delegate/internal/config"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/service"
)

func init() {
	// 指标只在 prometheus 组件启用时注册，dispatch_service 以可选依赖引用
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		if cfg.Prometheus == nil || !cfg.Prometheus.Enabled {
			return false, nil, nil
		}
		return true, service.NewDispatchMetrics(), nil
	})

	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		n := bizConfig.GetBizConfig().Notify
		return true, service.NewNotifyEngine(n.Workers, n.ResultTTL, n.CallbackClient), nil
	})

	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return true, service.NewDispatchService(bizConfig.GetBizConfig().Dispatch.SyncTimeout), nil
	})

	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		u := bizConfig.GetBizConfig().Upgrade
		return true, service.NewDelegateService(u.Client, u.MetadataURL), nil
	})

	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		h := bizConfig.GetBizConfig().Heartbeat
		return true, service.NewHeartbeatMonitor(h.DeadAfter, h.Interval), nil
	})

	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		r := bizConfig.GetBizConfig().Reaper
		return true, service.NewTaskReaper(r.TaskExpiry, r.Interval, r.BatchSize), nil
	})
}
