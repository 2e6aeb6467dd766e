package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
	bizConsts "github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/service"
)

const streamKeepAlive = 25 * time.Second

// DelegateController delegate 侧接口：注册、心跳、领取/开始/回传以及 SSE 事件流
type DelegateController struct {
	*core.BaseComponent
	Delegates *service.DelegateService `infra:"dep:delegate_service"`
	Dispatch  *service.DispatchService `infra:"dep:dispatch_service"`
}

func NewDelegateController() *DelegateController {
	return &DelegateController{BaseComponent: core.NewBaseComponent(bizConsts.COMP_CTRL_DELEGATE, consts.COMPONENT_LOGGING)}
}

func (dc *DelegateController) Routes(r chi.Router) {
	r.Post("/register", dc.register)
	r.Get("/", dc.list)
	r.Route("/{delegateId}", func(r chi.Router) {
		r.Get("/", dc.get)
		r.Put("/", dc.update)
		r.Delete("/", dc.delete)
		r.Post("/heartbeat", dc.heartbeat)
		r.Get("/upgrade", dc.checkUpgrade)
		r.Get("/stream", dc.stream)
		r.Post("/tasks/{taskId}/acquire", dc.acquire)
		r.Post("/tasks/{taskId}/start", dc.start)
		r.Post("/tasks/{taskId}/response", dc.response)
	})
}

func (dc *DelegateController) register(w http.ResponseWriter, r *http.Request) {
	var d model.Delegate
	if err := decodeJSON(r, &d); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	d.AccountID = chi.URLParam(r, "accountId")
	out, err := dc.Delegates.Register(r.Context(), &d)
	if err != nil {
		writeServiceErr(r.Context(), w, err)
		return
	}
	writeJSON(w, out)
}

func (dc *DelegateController) list(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	items, total, err := dc.Delegates.List(r.Context(), chi.URLParam(r, "accountId"), limit, offset)
	if err != nil {
		writeServiceErr(r.Context(), w, err)
		return
	}
	if items == nil {
		items = []*model.Delegate{}
	}
	writeJSON(w, listBody[*model.Delegate]{Items: items, Total: total})
}

func (dc *DelegateController) get(w http.ResponseWriter, r *http.Request) {
	d, err := dc.Delegates.Get(r.Context(), chi.URLParam(r, "accountId"), chi.URLParam(r, "delegateId"))
	if err != nil {
		writeServiceErr(r.Context(), w, err)
		return
	}
	writeJSON(w, d)
}

func (dc *DelegateController) update(w http.ResponseWriter, r *http.Request) {
	var d model.Delegate
	if err := decodeJSON(r, &d); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	d.AccountID = chi.URLParam(r, "accountId")
	d.ID = chi.URLParam(r, "delegateId")
	out, err := dc.Delegates.Update(r.Context(), &d)
	if err != nil {
		writeServiceErr(r.Context(), w, err)
		return
	}
	writeJSON(w, out)
}

func (dc *DelegateController) delete(w http.ResponseWriter, r *http.Request) {
	if err := dc.Delegates.Delete(r.Context(), chi.URLParam(r, "accountId"), chi.URLParam(r, "delegateId")); err != nil {
		writeServiceErr(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (dc *DelegateController) heartbeat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentlyExecutingTasks []string `json:"currently_executing_tasks"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeErr(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	out, err := dc.Delegates.Heartbeat(r.Context(), chi.URLParam(r, "accountId"), chi.URLParam(r, "delegateId"), req.CurrentlyExecutingTasks)
	if err != nil {
		writeServiceErr(r.Context(), w, err)
		return
	}
	writeJSON(w, out)
}

func (dc *DelegateController) checkUpgrade(w http.ResponseWriter, r *http.Request) {
	out, err := dc.Delegates.CheckForUpgrade(r.Context(), chi.URLParam(r, "accountId"), chi.URLParam(r, "delegateId"), r.URL.Query().Get("version"))
	if err != nil {
		writeServiceErr(r.Context(), w, err)
		return
	}
	writeJSON(w, out)
}

// acquire 竞争失败返回 204
func (dc *DelegateController) acquire(w http.ResponseWriter, r *http.Request) {
	t, err := dc.Dispatch.AcquireTask(r.Context(), chi.URLParam(r, "accountId"), chi.URLParam(r, "delegateId"), chi.URLParam(r, "taskId"))
	if err != nil {
		writeServiceErr(r.Context(), w, err)
		return
	}
	if t == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, t)
}

func (dc *DelegateController) start(w http.ResponseWriter, r *http.Request) {
	t, err := dc.Dispatch.StartTask(r.Context(), chi.URLParam(r, "accountId"), chi.URLParam(r, "delegateId"), chi.URLParam(r, "taskId"))
	if err != nil {
		writeServiceErr(r.Context(), w, err)
		return
	}
	if t == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, t)
}

func (dc *DelegateController) response(w http.ResponseWriter, r *http.Request) {
	var resp model.DelegateTaskResponse
	if err := decodeJSON(r, &resp); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	resp.AccountID = chi.URLParam(r, "accountId")
	if resp.Task.ID == "" {
		resp.Task.ID = chi.URLParam(r, "taskId")
	}
	if err := dc.Dispatch.ProcessResponse(r.Context(), &resp); err != nil {
		writeServiceErr(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// stream 以 server-sent events 推送过滤后的广播事件，event 字段为事件类型
func (dc *DelegateController) stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID, delegateID := chi.URLParam(r, "accountId"), chi.URLParam(r, "delegateId")
	events, err := dc.Dispatch.Stream(ctx, accountID, delegateID)
	if err != nil {
		writeServiceErr(ctx, w, err)
		return
	}

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		logging.Warn(ctx, "event stream not flushable", zap.Error(err))
		return
	}
	logging.Info(ctx, "delegate stream opened", zap.String("account_id", accountID), zap.String("delegate_id", delegateID))

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				logging.Warn(ctx, "encode stream event failed", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, payload); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
