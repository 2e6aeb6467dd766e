package http_client

import (
	"fmt"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
)

type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (f *Factory) Create(c *HTTPClientsConfig) (core.Component, error) {
	if c == nil || !c.Enabled {
		return nil, fmt.Errorf("http_clients component disabled")
	}
	c.applyDefaults()
	return NewHTTPClientsComponent(c), nil
}
