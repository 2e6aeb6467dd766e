package http_client

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
)

// HTTPClientsComponent 按名称管理多个带 otelhttp 埋点的客户端
type HTTPClientsComponent struct {
	*core.BaseComponent
	cfg     *HTTPClientsConfig
	mu      sync.RWMutex
	clients map[string]*InstrumentedClient
}

func NewHTTPClientsComponent(cfg *HTTPClientsConfig) *HTTPClientsComponent {
	return &HTTPClientsComponent{
		BaseComponent: core.NewBaseComponent(
			consts.COMPONENT_HTTP_CLIENTS,
			consts.COMPONENT_LOGGING,
			consts.COMPONENT_TELEMETRY,
		),
		cfg:     cfg,
		clients: map[string]*InstrumentedClient{},
	}
}

func (hc *HTTPClientsComponent) Start(ctx context.Context) error {
	if err := hc.BaseComponent.Start(ctx); err != nil {
		return err
	}
	hc.cfg.applyDefaults()

	hc.mu.Lock()
	for name, cc := range hc.cfg.Clients {
		tr := &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        cc.MaxIdleConns,
			MaxIdleConnsPerHost: cc.MaxIdleConnsPerHost,
			IdleConnTimeout:     cc.IdleConnTimeout,
			TLSHandshakeTimeout: 5 * time.Second,
		}
		hc.clients[name] = &InstrumentedClient{
			Name:           name,
			BaseURL:        cc.BaseURL,
			DefaultHeaders: cc.DefaultHeaders,
			Client:         &http.Client{Timeout: cc.Timeout, Transport: otelhttp.NewTransport(tr)},
			Retry:          cc.Retry,
			transport:      tr,
		}
	}
	n := len(hc.clients)
	hc.mu.Unlock()

	setGlobal(hc)
	logging.Info(ctx, "http_clients component started", zap.Int("clients", n))
	return nil
}

func (hc *HTTPClientsComponent) Stop(ctx context.Context) error {
	defer hc.BaseComponent.Stop(ctx)
	setGlobal(nil)
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	for _, cli := range hc.clients {
		cli.transport.CloseIdleConnections()
	}
	return nil
}

func (hc *HTTPClientsComponent) HealthCheck() error {
	if err := hc.BaseComponent.HealthCheck(); err != nil {
		return err
	}
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	if len(hc.clients) == 0 {
		return fmt.Errorf("no http clients initialized")
	}
	return nil
}

// Client 空名称返回默认客户端
func (hc *HTTPClientsComponent) Client(name string) (*InstrumentedClient, error) {
	if name == "" {
		name = hc.cfg.Default
	}
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	cli, ok := hc.clients[name]
	if !ok {
		return nil, fmt.Errorf("http client %s not found", name)
	}
	return cli, nil
}

func (hc *HTTPClientsComponent) Default() (*InstrumentedClient, error) {
	return hc.Client("")
}

var (
	gMu      sync.RWMutex
	gClients *HTTPClientsComponent
)

func setGlobal(c *HTTPClientsComponent) {
	gMu.Lock()
	gClients = c
	gMu.Unlock()
}

func Global() *HTTPClientsComponent {
	gMu.RLock()
	defer gMu.RUnlock()
	return gClients
}
