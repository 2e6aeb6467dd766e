package grpc_server

import "time"

type Config struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	Address          string        `yaml:"address" json:"address"` // ":50051"
	MaxRecvMsgSize   int           `yaml:"max_recv_msg_size" json:"max_recv_msg_size"`
	MaxSendMsgSize   int           `yaml:"max_send_msg_size" json:"max_send_msg_size"`
	GracefulTimeout  time.Duration `yaml:"graceful_timeout" json:"graceful_timeout"`
	EnableReflection bool          `yaml:"enable_reflection" json:"enable_reflection"`
	EnableHealth     bool          `yaml:"enable_health" json:"enable_health"`
}

func (c *Config) applyDefaults() {
	if c.Address == "" {
		c.Address = ":50051"
	}
	if c.MaxRecvMsgSize == 0 {
		c.MaxRecvMsgSize = 4 << 20
	}
	if c.MaxSendMsgSize == 0 {
		c.MaxSendMsgSize = 4 << 20
	}
	if c.GracefulTimeout == 0 {
		c.GracefulTimeout = 10 * time.Second
	}
}
