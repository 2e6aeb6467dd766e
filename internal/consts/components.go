package consts

const (
	COMP_DAO_TASK     = "task_dao"
	COMP_DAO_DELEGATE = "delegate_dao"

	COMP_SYNC_CACHE     = "sync_cache"
	COMP_RESPONSE_QUEUE = "response_queue"
	COMP_BROADCASTER    = "broadcaster"

	COMP_SVC_NOTIFY            = "notify_engine"
	COMP_SVC_DISPATCH          = "dispatch_service"
	COMP_SVC_DELEGATE          = "delegate_service"
	COMP_SVC_HEARTBEAT_MONITOR = "heartbeat_monitor"
	COMP_SVC_TASK_REAPER       = "task_reaper"
	COMP_SVC_METRICS           = "dispatch_metrics"

	COMP_CTRL_TASK     = "task_ctrl"
	COMP_CTRL_DELEGATE = "delegate_ctrl"
	COMP_RPC_AGENT     = "agent_rpc"

	COMP_AGENT_RUNNER = "agent_runner"
)
