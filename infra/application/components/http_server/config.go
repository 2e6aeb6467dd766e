package http_server

import "time"

// HTTPServerConfig defines server settings.
type HTTPServerConfig struct {
	Enabled     bool          `yaml:"enabled" json:"enabled"`
	Address     string        `yaml:"address" json:"address"`           // e.g. ":8080"
	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"` // whole request incl. body
	// WriteTimeout must exceed the longest synchronous handler; streaming handlers clear it per request.
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	GracefulTimeout time.Duration `yaml:"graceful_timeout" json:"graceful_timeout"`
	// RequestTimeout 非流式请求的 context 超时
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`

	EnableHealth bool `yaml:"enable_health" json:"enable_health"`
	EnablePprof  bool `yaml:"enable_pprof" json:"enable_pprof"`
	// ServiceName injected from APPInfo.APPName
	ServiceName string `yaml:"-" json:"-"`
}

func (c *HTTPServerConfig) applyDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 45 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.GracefulTimeout == 0 {
		c.GracefulTimeout = 10 * time.Second
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 40 * time.Second
	}
	if c.ServiceName == "" {
		c.ServiceName = "http_server"
	}
}
