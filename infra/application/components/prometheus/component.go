package prometheus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
)

// Component 独立 registry + /metrics 监听。registry 在构造时创建，依赖方在 Start 之前也可注册指标。
type Component struct {
	*core.BaseComponent
	cfg      *Config
	registry *prometheus.Registry
	server   *http.Server
}

func NewComponent(cfg *Config) *Component {
	return &Component{
		BaseComponent: core.NewBaseComponent(consts.COMPONENT_PROMETHEUS, consts.COMPONENT_LOGGING),
		cfg:           cfg,
		registry:      prometheus.NewRegistry(),
	}
}

func (c *Component) Start(ctx context.Context) error {
	if err := c.BaseComponent.Start(ctx); err != nil {
		return err
	}
	if c.cfg.CollectGoMetrics != nil && *c.cfg.CollectGoMetrics {
		c.mustRegister(collectors.NewGoCollector())
	}
	if c.cfg.CollectProcess != nil && *c.cfg.CollectProcess {
		c.mustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	ln, err := net.Listen("tcp", c.cfg.Address)
	if err != nil {
		_ = c.BaseComponent.Stop(ctx)
		return fmt.Errorf("prometheus listen %s: %w", c.cfg.Address, err)
	}
	mux := http.NewServeMux()
	mux.Handle(c.cfg.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry}))
	c.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := c.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error(context.Background(), "prometheus server error", zap.Error(err))
		}
	}()
	registerGlobal(c)
	logging.Info(ctx, "prometheus metrics listening", zap.String("addr", ln.Addr().String()), zap.String("path", c.cfg.Path))
	return nil
}

func (c *Component) Stop(ctx context.Context) error {
	defer c.BaseComponent.Stop(ctx)
	registerGlobal(nil)
	if c.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("prometheus server shutdown: %w", err)
	}
	return nil
}

func (c *Component) Registry() *prometheus.Registry { return c.registry }

func (c *Component) fqName(name string) string {
	return prometheus.BuildFQName(c.cfg.Namespace, c.cfg.Subsystem, name)
}

func (c *Component) mustRegister(col prometheus.Collector) {
	_ = c.registry.Register(col)
}

// register 重复注册时返回已存在的 collector
func register[T prometheus.Collector](c *Component, col T) T {
	if err := c.registry.Register(col); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		logging.Warn(context.Background(), "prometheus register failed", zap.Error(err))
	}
	return col
}

func (c *Component) NewCounter(name, help string, labels []string) *prometheus.CounterVec {
	return register(c, prometheus.NewCounterVec(prometheus.CounterOpts{Name: c.fqName(name), Help: help}, labels))
}

func (c *Component) NewGauge(name, help string, labels []string) *prometheus.GaugeVec {
	return register(c, prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: c.fqName(name), Help: help}, labels))
}

func (c *Component) NewHistogram(name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	return register(c, prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: c.fqName(name), Help: help, Buckets: buckets}, labels))
}

var (
	globalMu      sync.RWMutex
	globalMetrics *Component
)

func registerGlobal(c *Component) {
	globalMu.Lock()
	globalMetrics = c
	globalMu.Unlock()
}

// C 返回运行中的全局组件，未启用时为 nil
func C() *Component {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}
