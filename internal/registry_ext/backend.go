package registry_ext

import (
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/config"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/registry"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/broadcast"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/cache"
	bizConfig "github.com/grand-thief-cash/chaos/app/projects/delegate/internal/config"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/queue"
)

// 同步缓存、响应队列与广播频道，按 biz_config 选择 memory 或 redis 实现
func init() {
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		bc := bizConfig.GetBizConfig().SyncCache
		comp, err := cache.New(bc.Backend, bc.TTL)
		if err != nil {
			return true, nil, err
		}
		return true, comp, nil
	})
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		bc := bizConfig.GetBizConfig().Queue
		comp, err := queue.New(bc.Backend, bc.TTL)
		if err != nil {
			return true, nil, err
		}
		return true, comp, nil
	})
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		comp, err := broadcast.New(bizConfig.GetBizConfig().Broadcast.Backend)
		if err != nil {
			return true, nil, err
		}
		return true, comp, nil
	})
}
