package grpc_client

import (
	"fmt"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
)

type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (f *Factory) Create(cfg *GRPCClientsConfig) (core.Component, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, fmt.Errorf("grpc_clients component is disabled")
	}
	cfg.applyDefaults()
	for name, cc := range cfg.Clients {
		if cc == nil || cc.Host == "" || cc.Port == 0 {
			return nil, fmt.Errorf("grpc client %s requires host and port", name)
		}
	}
	return NewGRPCClientComponent(cfg), nil
}
