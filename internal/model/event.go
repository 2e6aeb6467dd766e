package model

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

type EventKind string

const (
	EVENT_NEW_TASK EventKind = "NEW_TASK"
	EVENT_ABORT    EventKind = "ABORT"
)

// BroadcastEvent 按账号广播给 delegate 的事件
type BroadcastEvent struct {
	Kind  EventKind
	Task  *DelegateTask
	Abort *AbortEvent
}

type AbortEvent struct {
	AccountID      string `json:"account_id"`
	DelegateTaskID string `json:"delegate_task_id"`
}

func NewTaskEvent(t *DelegateTask) BroadcastEvent {
	return BroadcastEvent{Kind: EVENT_NEW_TASK, Task: t}
}

func NewAbortEvent(accountID, taskID string) BroadcastEvent {
	return BroadcastEvent{Kind: EVENT_ABORT, Abort: &AbortEvent{AccountID: accountID, DelegateTaskID: taskID}}
}

func (e BroadcastEvent) MarshalJSON() ([]byte, error) {
	out := struct {
		Kind  EventKind     `json:"kind"`
		Task  *DelegateTask `json:"task,omitempty"`
		Abort *AbortEvent   `json:"abort,omitempty"`
	}{Kind: e.Kind}
	switch e.Kind {
	case EVENT_NEW_TASK:
		out.Task = e.Task
	case EVENT_ABORT:
		out.Abort = e.Abort
	default:
		return nil, fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return json.Marshal(out)
}

func (e *BroadcastEvent) UnmarshalJSON(data []byte) error {
	*e = BroadcastEvent{}
	root := gjson.ParseBytes(data)
	e.Kind = EventKind(root.Get("kind").String())
	switch e.Kind {
	case EVENT_NEW_TASK:
		payload := root.Get("task")
		if !payload.IsObject() {
			return fmt.Errorf("event %s missing task", e.Kind)
		}
		e.Task = &DelegateTask{}
		return json.Unmarshal([]byte(payload.Raw), e.Task)
	case EVENT_ABORT:
		payload := root.Get("abort")
		if !payload.IsObject() {
			return fmt.Errorf("event %s missing abort", e.Kind)
		}
		e.Abort = &AbortEvent{}
		return json.Unmarshal([]byte(payload.Raw), e.Abort)
	}
	return fmt.Errorf("unknown event kind %q", e.Kind)
}
