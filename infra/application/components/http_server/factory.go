package http_server

import (
	"fmt"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
)

type Factory struct {
	container *core.Container
}

func NewFactory(c *core.Container) *Factory { return &Factory{container: c} }

func (f *Factory) Create(cfg *HTTPServerConfig) (core.Component, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, fmt.Errorf("http_server component disabled")
	}
	cfg.applyDefaults()
	if cfg.WriteTimeout > 0 && cfg.WriteTimeout < cfg.RequestTimeout {
		return nil, fmt.Errorf("http_server.write_timeout (%s) must not be shorter than request_timeout (%s)", cfg.WriteTimeout, cfg.RequestTimeout)
	}
	return NewHTTPServerComponent(cfg, f.container), nil
}
