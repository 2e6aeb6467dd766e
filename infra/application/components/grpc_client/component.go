package grpc_client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
)

// GRPCClientComponent 管理多个命名的 ClientConn
type GRPCClientComponent struct {
	*core.BaseComponent
	config  *GRPCClientsConfig
	mutex   sync.RWMutex
	clients map[string]*grpc.ClientConn
	stop    chan struct{}
	wg      sync.WaitGroup
}

func NewGRPCClientComponent(config *GRPCClientsConfig) *GRPCClientComponent {
	return &GRPCClientComponent{
		BaseComponent: core.NewBaseComponent(consts.COMPONENT_GRPC_CLIENTS, consts.COMPONENT_LOGGING, consts.COMPONENT_TELEMETRY),
		config:        config,
		clients:       make(map[string]*grpc.ClientConn),
	}
}

func (gc *GRPCClientComponent) Start(ctx context.Context) error {
	if err := gc.BaseComponent.Start(ctx); err != nil {
		return err
	}
	for name, cc := range gc.config.Clients {
		conn, err := dial(cc)
		if err != nil {
			gc.closeAll()
			_ = gc.BaseComponent.Stop(ctx)
			return fmt.Errorf("failed to create grpc client %s: %w", name, err)
		}
		// NewClient 是惰性连接，这里主动触发
		conn.Connect()
		gc.mutex.Lock()
		gc.clients[name] = conn
		gc.mutex.Unlock()
		logging.Info(ctx, "grpc client created", zap.String("client", name), zap.String("target", conn.Target()))
	}
	if gc.config.EnableHealthCheck {
		gc.stop = make(chan struct{})
		gc.wg.Add(1)
		go gc.watch()
	}
	return nil
}

func (gc *GRPCClientComponent) Stop(ctx context.Context) error {
	defer gc.BaseComponent.Stop(ctx)
	if gc.stop != nil {
		close(gc.stop)
		gc.wg.Wait()
		gc.stop = nil
	}
	gc.closeAll()
	return nil
}

// HealthCheck 任一连接处于 Shutdown/TransientFailure 即视为不健康
func (gc *GRPCClientComponent) HealthCheck() error {
	if err := gc.BaseComponent.HealthCheck(); err != nil {
		return err
	}
	gc.mutex.RLock()
	defer gc.mutex.RUnlock()
	for name, conn := range gc.clients {
		if st := conn.GetState(); st == connectivity.Shutdown || st == connectivity.TransientFailure {
			return fmt.Errorf("grpc client %s state %s", name, st)
		}
	}
	return nil
}

func (gc *GRPCClientComponent) GetClient(name string) (*grpc.ClientConn, error) {
	gc.mutex.RLock()
	defer gc.mutex.RUnlock()
	conn, ok := gc.clients[name]
	if !ok {
		return nil, fmt.Errorf("grpc client not found: %s", name)
	}
	if conn.GetState() == connectivity.Shutdown {
		return nil, fmt.Errorf("grpc client %s is shut down", name)
	}
	return conn, nil
}

// Timeout 单次调用默认超时
func (gc *GRPCClientComponent) Timeout(name string) time.Duration {
	if cc, ok := gc.config.Clients[name]; ok && cc.Timeout > 0 {
		return cc.Timeout
	}
	return gc.config.DefaultTimeout
}

func dial(cc *GRPCClientConfig) (*grpc.ClientConn, error) {
	target := net.JoinHostPort(cc.Host, strconv.Itoa(cc.Port))
	callOpts := []grpc.CallOption{
		grpc.MaxCallRecvMsgSize(cc.MaxReceiveMessageLength),
		grpc.MaxCallSendMsgSize(cc.MaxSendMessageLength),
	}
	if cc.ContentSubtype != "" {
		callOpts = append(callOpts, grpc.CallContentSubtype(cc.ContentSubtype))
	}
	opts := []grpc.DialOption{
		grpc.WithDefaultCallOptions(callOpts...),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
	if ka := cc.KeepaliveOptions; ka != nil {
		opts = append(opts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                ka.Time,
			Timeout:             ka.Timeout,
			PermitWithoutStream: ka.PermitWithoutStream,
		}))
	}
	if cc.Secure {
		creds, err := transportCredentials(cc)
		if err != nil {
			return nil, fmt.Errorf("failed to build credentials: %w", err)
		}
		opts = append(opts, grpc.WithTransportCredentials(creds))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	if cc.RetryPolicy != nil {
		sc, err := serviceConfig(cc.RetryPolicy)
		if err != nil {
			return nil, err
		}
		opts = append(opts, grpc.WithDefaultServiceConfig(sc))
	}
	return grpc.NewClient(target, opts...)
}

func transportCredentials(cc *GRPCClientConfig) (credentials.TransportCredentials, error) {
	if cc.CredentialsPath != "" {
		return credentials.NewClientTLSFromFile(cc.CredentialsPath, "")
	}
	return credentials.NewTLS(&tls.Config{ServerName: cc.Host, MinVersion: tls.VersionTLS12}), nil
}

// serviceConfig 生成对所有方法生效的重试配置
func serviceConfig(rp *RetryPolicy) (string, error) {
	seconds := func(d time.Duration) string { return strconv.FormatFloat(d.Seconds(), 'f', -1, 64) + "s" }
	sc := map[string]any{
		"methodConfig": []any{map[string]any{
			"name": []any{map[string]any{}},
			"retryPolicy": map[string]any{
				"maxAttempts":          rp.MaxRetries + 1,
				"initialBackoff":       seconds(rp.InitialDelay),
				"maxBackoff":           seconds(rp.MaxDelay),
				"backoffMultiplier":    rp.Multiplier,
				"retryableStatusCodes": []string{"UNAVAILABLE", "RESOURCE_EXHAUSTED"},
			},
		}},
	}
	b, err := json.Marshal(sc)
	if err != nil {
		return "", fmt.Errorf("marshal service config: %w", err)
	}
	return string(b), nil
}

func (gc *GRPCClientComponent) watch() {
	defer gc.wg.Done()
	ticker := time.NewTicker(gc.config.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-gc.stop:
			return
		case <-ticker.C:
			gc.mutex.RLock()
			for name, conn := range gc.clients {
				st := conn.GetState()
				if st == connectivity.TransientFailure || st == connectivity.Idle {
					logging.Warn(context.Background(), "grpc client not ready", zap.String("client", name), zap.String("state", st.String()))
					conn.Connect()
				}
			}
			gc.mutex.RUnlock()
		}
	}
}

func (gc *GRPCClientComponent) closeAll() {
	gc.mutex.Lock()
	defer gc.mutex.Unlock()
	for name, conn := range gc.clients {
		if err := conn.Close(); err != nil {
			logging.Warn(context.Background(), "grpc client close failed", zap.String("client", name), zap.Error(err))
		}
	}
	gc.clients = make(map[string]*grpc.ClientConn)
}
