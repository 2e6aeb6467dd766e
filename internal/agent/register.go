package agent

import (
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/config"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/registry"
	bizConfig "github.com/grand-thief-cash/chaos/app/projects/delegate/internal/config"
)

func init() {
	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return true, NewRunner(bizConfig.GetBizConfig().Agent), nil
	})
}
