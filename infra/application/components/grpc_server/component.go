package grpc_server

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
)

type GRPCServerComponent struct {
	*core.BaseComponent
	cfg       *Config
	container *core.Container
	server    *grpc.Server
	addr      net.Addr
	healthSrv *health.Server
}

func NewGRPCServerComponent(cfg *Config, c *core.Container) *GRPCServerComponent {
	return &GRPCServerComponent{
		BaseComponent: core.NewBaseComponent(
			consts.COMPONENT_GRPC_SERVER,
			consts.COMPONENT_LOGGING,
			consts.COMPONENT_TELEMETRY,
		),
		cfg:       cfg,
		container: c,
	}
}

func (gc *GRPCServerComponent) Start(ctx context.Context) error {
	if err := gc.BaseComponent.Start(ctx); err != nil {
		return err
	}
	gc.server = grpc.NewServer(
		grpc.MaxRecvMsgSize(gc.cfg.MaxRecvMsgSize),
		grpc.MaxSendMsgSize(gc.cfg.MaxSendMsgSize),
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(unaryInterceptor),
		grpc.ChainStreamInterceptor(streamInterceptor),
	)
	if gc.cfg.EnableHealth {
		gc.healthSrv = health.NewServer()
		healthpb.RegisterHealthServer(gc.server, gc.healthSrv)
	}
	if gc.cfg.EnableReflection {
		reflection.Register(gc.server)
	}
	for _, register := range snapshot() {
		if err := register(gc.server, gc.container); err != nil {
			_ = gc.BaseComponent.Stop(ctx)
			return fmt.Errorf("grpc service register failed: %w", err)
		}
	}

	lis, err := net.Listen("tcp", gc.cfg.Address)
	if err != nil {
		_ = gc.BaseComponent.Stop(ctx)
		return fmt.Errorf("grpc_server listen %s: %w", gc.cfg.Address, err)
	}
	gc.addr = lis.Addr()
	if gc.healthSrv != nil {
		gc.healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	}
	go func() {
		if err := gc.server.Serve(lis); err != nil {
			logging.Error(context.Background(), "grpc_server serve error", zap.Error(err))
		}
	}()
	logging.Info(ctx, "grpc_server listening", zap.String("addr", gc.Addr()))
	return nil
}

func (gc *GRPCServerComponent) Addr() string {
	if gc.addr == nil {
		return ""
	}
	return gc.addr.String()
}

// Stop 先置 NOT_SERVING，再优雅停止；超时或 ctx 取消后强制关闭。
func (gc *GRPCServerComponent) Stop(ctx context.Context) error {
	defer gc.BaseComponent.Stop(ctx)
	if gc.server == nil {
		return nil
	}
	if gc.healthSrv != nil {
		gc.healthSrv.Shutdown()
	}
	done := make(chan struct{})
	go func() {
		gc.server.GracefulStop()
		close(done)
	}()
	timer := time.NewTimer(gc.cfg.GracefulTimeout)
	defer timer.Stop()
	select {
	case <-done:
		logging.Info(ctx, "grpc_server stopped gracefully")
	case <-ctx.Done():
		logging.Warn(ctx, "grpc_server stop context canceled, forcing")
		gc.server.Stop()
	case <-timer.C:
		logging.Warn(ctx, "grpc_server graceful timeout exceeded, forcing")
		gc.server.Stop()
	}
	return nil
}
