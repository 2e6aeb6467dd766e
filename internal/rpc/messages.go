package rpc

import "github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"

type RegisterRequest struct {
	Delegate *model.Delegate `json:"delegate"`
}

type HeartbeatRequest struct {
	AccountID               string   `json:"account_id"`
	DelegateID              string   `json:"delegate_id"`
	CurrentlyExecutingTasks []string `json:"currently_executing_tasks,omitempty"`
}

type DelegateReply struct {
	Delegate *model.Delegate `json:"delegate"`
}

// TaskRequest 领取与开始共用
type TaskRequest struct {
	AccountID  string `json:"account_id"`
	DelegateID string `json:"delegate_id"`
	TaskID     string `json:"task_id"`
}

// TaskReply 竞争失败时 Task 为空
type TaskReply struct {
	Task *model.DelegateTask `json:"task,omitempty"`
}

type ResponseRequest struct {
	Response *model.DelegateTaskResponse `json:"response"`
}

type SubscribeRequest struct {
	AccountID  string `json:"account_id"`
	DelegateID string `json:"delegate_id"`
}

type Empty struct{}
