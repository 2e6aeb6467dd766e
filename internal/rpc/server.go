package rpc

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/grpc_server"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/core"
	bizConsts "github.com/grand-thief-cash/chaos/app/projects/delegate/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/dao"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/service"
)

func init() {
	grpc_server.RegisterService(func(s *grpc.Server, c *core.Container) error {
		comp, err := c.Resolve(bizConsts.COMP_RPC_AGENT)
		if err != nil {
			// 未启用 agent rpc 时跳过
			return nil
		}
		srv, ok := comp.(*AgentServer)
		if !ok {
			return fmt.Errorf("component %s has unexpected type %T", bizConsts.COMP_RPC_AGENT, comp)
		}
		RegisterDelegateAgentServer(s, srv)
		return nil
	})
}

// AgentServer delegate.v1.DelegateAgent 实现，直接委托给 service 层
type AgentServer struct {
	*core.BaseComponent
	Delegates *service.DelegateService `infra:"dep:delegate_service"`
	Dispatch  *service.DispatchService `infra:"dep:dispatch_service"`
}

func NewAgentServer() *AgentServer {
	return &AgentServer{BaseComponent: core.NewBaseComponent(bizConsts.COMP_RPC_AGENT, consts.COMPONENT_LOGGING)}
}

func (a *AgentServer) Register(ctx context.Context, req *RegisterRequest) (*DelegateReply, error) {
	if req.Delegate == nil {
		return nil, status.Error(codes.InvalidArgument, "delegate is required")
	}
	d, err := a.Delegates.Register(ctx, req.Delegate)
	if err != nil {
		return nil, toStatus(err)
	}
	return &DelegateReply{Delegate: d}, nil
}

func (a *AgentServer) Heartbeat(ctx context.Context, req *HeartbeatRequest) (*DelegateReply, error) {
	d, err := a.Delegates.Heartbeat(ctx, req.AccountID, req.DelegateID, req.CurrentlyExecutingTasks)
	if err != nil {
		return nil, toStatus(err)
	}
	return &DelegateReply{Delegate: d}, nil
}

func (a *AgentServer) Acquire(ctx context.Context, req *TaskRequest) (*TaskReply, error) {
	t, err := a.Dispatch.AcquireTask(ctx, req.AccountID, req.DelegateID, req.TaskID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &TaskReply{Task: t}, nil
}

func (a *AgentServer) Start(ctx context.Context, req *TaskRequest) (*TaskReply, error) {
	t, err := a.Dispatch.StartTask(ctx, req.AccountID, req.DelegateID, req.TaskID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &TaskReply{Task: t}, nil
}

func (a *AgentServer) SendResponse(ctx context.Context, req *ResponseRequest) (*Empty, error) {
	if req.Response == nil {
		return nil, status.Error(codes.InvalidArgument, "response is required")
	}
	if err := a.Dispatch.ProcessResponse(ctx, req.Response); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

// Subscribe 推送经过过滤的事件，直到客户端断开
func (a *AgentServer) Subscribe(req *SubscribeRequest, stream EventSender) error {
	ctx := stream.Context()
	events, err := a.Dispatch.Stream(ctx, req.AccountID, req.DelegateID)
	if err != nil {
		return toStatus(err)
	}
	logging.Info(ctx, "delegate subscribed", zap.String("account_id", req.AccountID), zap.String("delegate_id", req.DelegateID))
	for ev := range events {
		if err := stream.Send(&ev); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return status.FromContextError(err).Err()
	}
	return nil
}

func toStatus(err error) error {
	var de *service.DispatchError
	switch {
	case errors.As(err, &de):
		switch de.Code {
		case service.ERR_INVALID_REQUEST:
			return status.Error(codes.InvalidArgument, de.Error())
		case service.ERR_TASK_NOT_FOUND, service.ERR_DELEGATE_NOT_FOUND:
			return status.Error(codes.NotFound, de.Error())
		case service.ERR_REQUEST_TIMEOUT:
			return status.Error(codes.DeadlineExceeded, de.Error())
		}
	case errors.Is(err, dao.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}
	return status.Error(codes.Internal, err.Error())
}

var _ DelegateAgentServer = (*AgentServer)(nil)
