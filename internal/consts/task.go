package consts

type TaskStatus string

const (
	TASK_QUEUED  TaskStatus = "QUEUED"
	TASK_STARTED TaskStatus = "STARTED"
	TASK_ABORTED TaskStatus = "ABORTED"
	TASK_SUCCESS TaskStatus = "SUCCESS"
	TASK_FAILURE TaskStatus = "FAILURE"
)

// Terminal SUCCESS/FAILURE 之后不再变化
func (s TaskStatus) Terminal() bool { return s == TASK_SUCCESS || s == TASK_FAILURE }

type TaskType string

const (
	TASK_TYPE_ECHO  TaskType = "ECHO"
	TASK_TYPE_SHELL TaskType = "SHELL_SCRIPT"
	TASK_TYPE_HTTP  TaskType = "HTTP"
)

func (t TaskType) Valid() bool {
	switch t {
	case TASK_TYPE_ECHO, TASK_TYPE_SHELL, TASK_TYPE_HTTP:
		return true
	}
	return false
}

type DelegateStatus string

const (
	DELEGATE_ENABLED  DelegateStatus = "ENABLED"
	DELEGATE_DISABLED DelegateStatus = "DISABLED"
)

const (
	// GLOBAL_ACCOUNT_ID 全局 delegate 可以领取任意账号的任务
	GLOBAL_ACCOUNT_ID = "__GLOBAL_ACCOUNT_ID__"

	DEFAULT_CALLER = "Harness Bot"

	// DEFAULT_DELEGATE_VERSION 获取最新版本失败时的兜底值
	DEFAULT_DELEGATE_VERSION = "0.0.0"

	HEADER_CALLER_NAME = "X-Caller-Name"
)
