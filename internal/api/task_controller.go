package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
	bizConsts "github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/service"
)

// TaskController 调用方接口：派发、同步执行、查询、中止与通知轮询
type TaskController struct {
	*core.BaseComponent
	Dispatch *service.DispatchService `infra:"dep:dispatch_service"`
	Notify   *service.NotifyEngine    `infra:"dep:notify_engine"`
}

func NewTaskController() *TaskController {
	return &TaskController{BaseComponent: core.NewBaseComponent(bizConsts.COMP_CTRL_TASK, consts.COMPONENT_LOGGING)}
}

type taskRequest struct {
	AppID                   string               `json:"app_id"`
	TaskType                bizConsts.TaskType   `json:"task_type"`
	Parameters              model.TaskParameters `json:"parameters"`
	Tag                     string               `json:"tag"`
	EnvID                   string               `json:"env_id"`
	InfrastructureMappingID string               `json:"infrastructure_mapping_id"`
	WaitID                  string               `json:"wait_id"`
	CallbackURL             string               `json:"callback_url"`
	TimeoutMs               int64                `json:"timeout_ms"`
}

func (req taskRequest) toTask(accountID string) *model.DelegateTask {
	taskType := req.TaskType
	if taskType == "" {
		taskType = req.Parameters.Kind
	}
	return &model.DelegateTask{
		AccountID:               accountID,
		AppID:                   req.AppID,
		TaskType:                taskType,
		Parameters:              req.Parameters,
		Tag:                     req.Tag,
		EnvID:                   req.EnvID,
		InfrastructureMappingID: req.InfrastructureMappingID,
		WaitID:                  req.WaitID,
		CallbackURL:             req.CallbackURL,
		TimeoutMs:               req.TimeoutMs,
	}
}

func (tc *TaskController) Routes(r chi.Router) {
	r.Post("/", tc.queueTask)
	r.Get("/", tc.listTasks)
	r.Post("/execute", tc.executeTask)
	r.Get("/{taskId}", tc.getTask)
	r.Post("/{taskId}/abort", tc.abortTask)
}

func (tc *TaskController) queueTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := tc.Dispatch.QueueTask(r.Context(), req.toTask(chi.URLParam(r, "accountId")))
	if err != nil {
		writeServiceErr(r.Context(), w, err)
		return
	}
	writeJSONStatus(w, http.StatusAccepted, map[string]string{"id": id})
}

func (tc *TaskController) executeTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	caller := strings.TrimSpace(r.Header.Get(bizConsts.HEADER_CALLER_NAME))
	data, err := tc.Dispatch.ExecuteTask(r.Context(), req.toTask(chi.URLParam(r, "accountId")), caller)
	if err != nil {
		writeServiceErr(r.Context(), w, err)
		return
	}
	writeJSON(w, data)
}

func (tc *TaskController) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := model.TaskFilter{
		Status:     bizConsts.TaskStatus(strings.ToUpper(q.Get("status"))),
		TaskType:   bizConsts.TaskType(strings.ToUpper(q.Get("task_type"))),
		DelegateID: q.Get("delegate_id"),
	}
	limit, offset := pageParams(r)
	items, total, err := tc.Dispatch.ListTasks(r.Context(), chi.URLParam(r, "accountId"), f, limit, offset)
	if err != nil {
		writeServiceErr(r.Context(), w, err)
		return
	}
	if items == nil {
		items = []*model.DelegateTask{}
	}
	writeJSON(w, listBody[*model.DelegateTask]{Items: items, Total: total})
}

func (tc *TaskController) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := tc.Dispatch.GetTask(r.Context(), chi.URLParam(r, "accountId"), chi.URLParam(r, "taskId"))
	if err != nil {
		writeServiceErr(r.Context(), w, err)
		return
	}
	writeJSON(w, t)
}

func (tc *TaskController) abortTask(w http.ResponseWriter, r *http.Request) {
	if err := tc.Dispatch.AbortTask(r.Context(), chi.URLParam(r, "accountId"), chi.URLParam(r, "taskId")); err != nil {
		writeServiceErr(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (tc *TaskController) getNotification(w http.ResponseWriter, r *http.Request) {
	waitID := chi.URLParam(r, "waitId")
	data, ok := tc.Notify.Result(waitID)
	if !ok {
		writeErr(w, http.StatusNotFound, "notification not available: "+waitID)
		return
	}
	writeJSON(w, map[string]any{"wait_id": waitID, "response": data})
}
