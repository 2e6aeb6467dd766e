package grpc_client

import "time"

// GRPCClientConfig 单个客户端
type GRPCClientConfig struct {
	Name            string `yaml:"name" json:"name"`
	Host            string `yaml:"host" json:"host"`
	Port            int    `yaml:"port" json:"port"`
	Secure          bool   `yaml:"secure" json:"secure"`
	CredentialsPath string `yaml:"credentials_path,omitempty" json:"credentials_path,omitempty"`
	// ContentSubtype 非 proto 编码（如 json）时设置，对应服务端注册的 codec 名称
	ContentSubtype          string            `yaml:"content_subtype,omitempty" json:"content_subtype,omitempty"`
	MaxReceiveMessageLength int               `yaml:"max_receive_message_length" json:"max_receive_message_length"`
	MaxSendMessageLength    int               `yaml:"max_send_message_length" json:"max_send_message_length"`
	Timeout                 time.Duration     `yaml:"timeout" json:"timeout"`
	RetryPolicy             *RetryPolicy      `yaml:"retry_policy,omitempty" json:"retry_policy,omitempty"`
	KeepaliveOptions        *KeepaliveOptions `yaml:"keepalive_options,omitempty" json:"keepalive_options,omitempty"`
}

type GRPCClientsConfig struct {
	Enabled             bool                         `yaml:"enabled" json:"enabled"`
	Clients             map[string]*GRPCClientConfig `yaml:"clients" json:"clients"`
	DefaultTimeout      time.Duration                `yaml:"default_timeout" json:"default_timeout"`
	EnableHealthCheck   bool                         `yaml:"enable_health_check" json:"enable_health_check"`
	HealthCheckInterval time.Duration                `yaml:"health_check_interval" json:"health_check_interval"`
}

// RetryPolicy 转换为 gRPC service config 的 retryPolicy，作用于 unary 调用
type RetryPolicy struct {
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier"`
}

type KeepaliveOptions struct {
	Time                time.Duration `yaml:"time" json:"time"`
	Timeout             time.Duration `yaml:"timeout" json:"timeout"`
	PermitWithoutStream bool          `yaml:"permit_without_stream" json:"permit_without_stream"`
}

func (cfg *GRPCClientsConfig) applyDefaults() {
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = 60 * time.Second
	}
	for name, cc := range cfg.Clients {
		if cc.Name == "" {
			cc.Name = name
		}
		if cc.MaxReceiveMessageLength == 0 {
			cc.MaxReceiveMessageLength = 4 << 20
		}
		if cc.MaxSendMessageLength == 0 {
			cc.MaxSendMessageLength = 4 << 20
		}
		if cc.Timeout == 0 {
			cc.Timeout = cfg.DefaultTimeout
		}
		if rp := cc.RetryPolicy; rp != nil {
			if rp.MaxRetries <= 0 {
				rp.MaxRetries = 3
			}
			if rp.InitialDelay <= 0 {
				rp.InitialDelay = 200 * time.Millisecond
			}
			if rp.MaxDelay <= 0 {
				rp.MaxDelay = 5 * time.Second
			}
			if rp.Multiplier <= 1 {
				rp.Multiplier = 2
			}
		}
	}
}
