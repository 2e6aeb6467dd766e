package config

import (
	"time"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
)

var (
	bizConfig *BizConfig
)

func GetBizConfig() *BizConfig {
	return bizConfig
}

// BizConfig 对应配置文件里的 biz_config 段，server 与 agent 共用
type BizConfig struct {
	Store     StoreConfig     `yaml:"store" json:"store"`
	SyncCache BackendConfig   `yaml:"sync_cache" json:"sync_cache"`
	Queue     BackendConfig   `yaml:"queue" json:"queue"`
	Broadcast BackendConfig   `yaml:"broadcast" json:"broadcast"`
	Dispatch  DispatchConfig  `yaml:"dispatch" json:"dispatch"`
	Notify    NotifyConfig    `yaml:"notify" json:"notify"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat" json:"heartbeat"`
	Reaper    ReaperConfig    `yaml:"reaper" json:"reaper"`
	Upgrade   UpgradeConfig   `yaml:"upgrade" json:"upgrade"`
	Agent     AgentConfig     `yaml:"agent" json:"agent"`
}

type StoreConfig struct {
	// Driver mysql / postgres / memory
	Driver string `yaml:"driver" json:"driver"`
	// DataSource mysql_gorm / postgres_gorm 中的数据源名
	DataSource string `yaml:"data_source" json:"data_source"`
}

type BackendConfig struct {
	Backend string        `yaml:"backend" json:"backend"`
	TTL     time.Duration `yaml:"ttl" json:"ttl"`
}

type DispatchConfig struct {
	SyncTimeout time.Duration `yaml:"sync_timeout" json:"sync_timeout"`
}

type NotifyConfig struct {
	Workers int `yaml:"workers" json:"workers"`
	// ResultTTL 已送达的通知保留多久供轮询
	ResultTTL      time.Duration `yaml:"result_ttl" json:"result_ttl"`
	CallbackClient string        `yaml:"callback_client" json:"callback_client"`
}

type HeartbeatConfig struct {
	DeadAfter time.Duration `yaml:"dead_after" json:"dead_after"`
	Interval  time.Duration `yaml:"interval" json:"interval"`
}

type ReaperConfig struct {
	TaskExpiry time.Duration `yaml:"task_expiry" json:"task_expiry"`
	Interval   time.Duration `yaml:"interval" json:"interval"`
	BatchSize  int           `yaml:"batch_size" json:"batch_size"`
}

type UpgradeConfig struct {
	Client      string `yaml:"client" json:"client"`
	MetadataURL string `yaml:"metadata_url" json:"metadata_url"`
}

// AgentConfig 参考 delegate 进程使用
type AgentConfig struct {
	AccountID          string        `yaml:"account_id" json:"account_id"`
	HostName           string        `yaml:"host_name" json:"host_name"`
	IP                 string        `yaml:"ip" json:"ip"`
	Description        string        `yaml:"description" json:"description"`
	Version            string        `yaml:"version" json:"version"`
	SupportedTaskTypes []string      `yaml:"supported_task_types" json:"supported_task_types"`
	GRPCClient         string        `yaml:"grpc_client" json:"grpc_client"`
	HTTPClient         string        `yaml:"http_client" json:"http_client"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval" json:"heartbeat_interval"`
	Concurrency        int           `yaml:"concurrency" json:"concurrency"`
	ShellEnabled       bool          `yaml:"shell_enabled" json:"shell_enabled"`
}

func Default() *BizConfig {
	return &BizConfig{
		Store:     StoreConfig{Driver: consts.STORE_MEMORY, DataSource: "delegate"},
		SyncCache: BackendConfig{Backend: consts.BACKEND_MEMORY, TTL: 60 * time.Second},
		Queue:     BackendConfig{Backend: consts.BACKEND_MEMORY, TTL: 2 * time.Minute},
		Broadcast: BackendConfig{Backend: consts.BACKEND_MEMORY},
		Dispatch:  DispatchConfig{SyncTimeout: 30 * time.Second},
		Notify:    NotifyConfig{Workers: 4, ResultTTL: 10 * time.Minute},
		Heartbeat: HeartbeatConfig{DeadAfter: 2 * time.Minute, Interval: 30 * time.Second},
		Reaper:    ReaperConfig{TaskExpiry: 10 * time.Minute, Interval: time.Minute, BatchSize: 500},
		Agent: AgentConfig{
			AccountID:          consts.GLOBAL_ACCOUNT_ID,
			Version:            consts.DEFAULT_DELEGATE_VERSION,
			SupportedTaskTypes: []string{string(consts.TASK_TYPE_ECHO), string(consts.TASK_TYPE_HTTP)},
			HeartbeatInterval:  30 * time.Second,
			Concurrency:        4,
		},
	}
}

func init() {
	bizConfig = Default()
	app := application.GetApp()
	app.SetBizConfig(bizConfig)
}
