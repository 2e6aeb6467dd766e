package model

import (
	"time"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
)

// DelegateTask 下发给 delegate 的任务。DelegateID 只能经由领取（claim）写入一次；
// 状态单调 QUEUED -> STARTED -> SUCCESS/FAILURE，ABORTED 只能从 QUEUED 进入。
type DelegateTask struct {
	ID                      string            `gorm:"column:id;primaryKey;size:64" json:"id"`
	AccountID               string            `gorm:"column:account_id;size:64;not null" json:"account_id"`
	AppID                   string            `gorm:"column:app_id;size:64" json:"app_id,omitempty"`
	TaskType                consts.TaskType   `gorm:"column:task_type;size:32;not null" json:"task_type"`
	Parameters              TaskParameters    `gorm:"column:parameters;type:text" json:"parameters"`
	Tag                     string            `gorm:"column:tag;size:128" json:"tag,omitempty"`
	EnvID                   string            `gorm:"column:env_id;size:64" json:"env_id,omitempty"`
	InfrastructureMappingID string            `gorm:"column:infrastructure_mapping_id;size:64" json:"infrastructure_mapping_id,omitempty"`
	Status                  consts.TaskStatus `gorm:"column:status;size:16;not null" json:"status"`
	DelegateID              string            `gorm:"column:delegate_id;size:64" json:"delegate_id,omitempty"`
	WaitID                  string            `gorm:"column:wait_id;size:64" json:"wait_id,omitempty"`
	QueueName               string            `gorm:"column:queue_name;size:64" json:"queue_name,omitempty"`
	// CallbackURL 异步任务完成后的 webhook 地址，可为空
	CallbackURL   string    `gorm:"column:callback_url;size:512" json:"callback_url,omitempty"`
	Async         bool      `gorm:"column:async" json:"async"`
	TimeoutMs     int64     `gorm:"column:timeout_ms" json:"timeout_ms,omitempty"`
	CreatedAt     time.Time `gorm:"column:created_at" json:"created_at"`
	LastUpdatedAt time.Time `gorm:"column:last_updated_at" json:"last_updated_at"`
}

func (DelegateTask) TableName() string { return "delegate_tasks" }

// Ref 回传响应时使用的关联信息
func (t *DelegateTask) Ref() DelegateTaskRef {
	return DelegateTaskRef{ID: t.ID, WaitID: t.WaitID, QueueName: t.QueueName}
}

func (t *DelegateTask) Clone() *DelegateTask {
	if t == nil {
		return nil
	}
	cp := *t
	if t.Parameters.Echo != nil {
		e := *t.Parameters.Echo
		cp.Parameters.Echo = &e
	}
	if t.Parameters.Shell != nil {
		s := *t.Parameters.Shell
		s.Env = cloneMap(s.Env)
		cp.Parameters.Shell = &s
	}
	if t.Parameters.HTTP != nil {
		h := *t.Parameters.HTTP
		h.Headers = cloneMap(h.Headers)
		cp.Parameters.HTTP = &h
	}
	return &cp
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// TaskFilter 列表查询条件，空字段不过滤
type TaskFilter struct {
	Status     consts.TaskStatus
	TaskType   consts.TaskType
	DelegateID string
}

func (f TaskFilter) Match(t *DelegateTask) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.TaskType != "" && t.TaskType != f.TaskType {
		return false
	}
	if f.DelegateID != "" && t.DelegateID != f.DelegateID {
		return false
	}
	return true
}
