package registry_ext

import (
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/config"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/registry"
	bizConfig "github.com/grand-thief-cash/chaos/app/projects/delegate/internal/config"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/dao"
)

func init() {
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		store := bizConfig.GetBizConfig().Store
		d, err := dao.NewTaskDao(store.Driver, store.DataSource)
		if err != nil {
			return true, nil, err
		}
		return true, d, nil
	})
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		store := bizConfig.GetBizConfig().Store
		d, err := dao.NewDelegateDao(store.Driver, store.DataSource)
		if err != nil {
			return true, nil, err
		}
		return true, d, nil
	})
}
