package grpc_server

import (
	"fmt"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
)

type Factory struct {
	container *core.Container
}

func NewFactory(c *core.Container) *Factory { return &Factory{container: c} }

func (f *Factory) Create(c *Config) (core.Component, error) {
	if c == nil || !c.Enabled {
		return nil, fmt.Errorf("grpc_server component disabled")
	}
	c.applyDefaults()
	return NewGRPCServerComponent(c, f.container), nil
}
