package grpc_server

import (
	"sync"

	"google.golang.org/grpc"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
)

// ServiceRegistrar 在服务启动前把业务服务注册到 grpc.Server
type ServiceRegistrar func(s *grpc.Server, c *core.Container) error

var (
	regMu      sync.RWMutex
	registrars []ServiceRegistrar
)

func RegisterService(fn ServiceRegistrar) {
	if fn == nil {
		return
	}
	regMu.Lock()
	registrars = append(registrars, fn)
	regMu.Unlock()
}

func snapshot() []ServiceRegistrar {
	regMu.RLock()
	defer regMu.RUnlock()
	cp := make([]ServiceRegistrar, len(registrars))
	copy(cp, registrars)
	return cp
}
