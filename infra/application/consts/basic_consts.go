package consts

const (
	ENV_PRODUCTION  = "production"
	ENV_DEVELOPMENT = "development"
	ENV_TEST        = "test"

	DEFAULT_CONFIG_PATH = "config.yaml"

	// 进程级环境变量
	ENV_KEY_APP_ENV     = "APP_ENV"
	ENV_KEY_CONFIG_PATH = "CONFIG_PATH"
	// ENV_KEY_PREFIX 覆盖配置项使用的前缀，例如 DELEGATE_HTTP_SERVER_PORT
	ENV_KEY_PREFIX = "DELEGATE_"

	KEY_TraceID = "trace_id"
)
