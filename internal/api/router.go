package api

import (
	"fmt"

	"github.com/go-chi/chi/v5"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/http_server"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
	bizConsts "github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
)

func init() {
	http_server.RegisterRoutes(func(r chi.Router, c *core.Container) error {
		taskCtrl, err := core.ResolveAs[*TaskController](c, bizConsts.COMP_CTRL_TASK)
		if err != nil {
			return fmt.Errorf("resolve task controller: %w", err)
		}
		delegateCtrl, err := core.ResolveAs[*DelegateController](c, bizConsts.COMP_CTRL_DELEGATE)
		if err != nil {
			return fmt.Errorf("resolve delegate controller: %w", err)
		}
		Mount(r, taskCtrl, delegateCtrl)
		return nil
	})
}

// Mount 挂载 /api/v1 下的全部路由
func Mount(r chi.Router, taskCtrl *TaskController, delegateCtrl *DelegateController) {
	r.Route("/api/v1/accounts/{accountId}", func(r chi.Router) {
		r.Route("/tasks", taskCtrl.Routes)
		r.Get("/notifications/{waitId}", taskCtrl.getNotification)
		r.Route("/delegates", delegateCtrl.Routes)
	})
}
