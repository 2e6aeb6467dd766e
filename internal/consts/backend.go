package consts

const (
	STORE_MYSQL    = "mysql"
	STORE_POSTGRES = "postgres"
	STORE_MEMORY   = "memory"

	BACKEND_MEMORY = "memory"
	BACKEND_REDIS  = "redis"
)

// redis key 片段，最终 key 由 redis 组件的 key_prefix 拼接
const (
	REDIS_KEY_SYNC_TASK  = "sync_task"
	REDIS_KEY_SYNC_CLAIM = "sync_claim"
	REDIS_KEY_QUEUE      = "resp_queue"
	REDIS_CHANNEL_STREAM = "delegate:stream"
)
