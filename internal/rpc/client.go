package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"
)

// AgentClient delegate.v1.DelegateAgent 的类型化客户端，强制使用 JSON codec
type AgentClient struct {
	cc grpc.ClientConnInterface
}

func NewAgentClient(cc grpc.ClientConnInterface) *AgentClient {
	return &AgentClient{cc: cc}
}

func callOpts(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func (c *AgentClient) Register(ctx context.Context, d *model.Delegate, opts ...grpc.CallOption) (*model.Delegate, error) {
	out := new(DelegateReply)
	if err := c.cc.Invoke(ctx, methodRegister, &RegisterRequest{Delegate: d}, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out.Delegate, nil
}

func (c *AgentClient) Heartbeat(ctx context.Context, req *HeartbeatRequest, opts ...grpc.CallOption) (*model.Delegate, error) {
	out := new(DelegateReply)
	if err := c.cc.Invoke(ctx, methodHeartbeat, req, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out.Delegate, nil
}

// Acquire 返回 nil 表示其它 delegate 已领取
func (c *AgentClient) Acquire(ctx context.Context, req *TaskRequest, opts ...grpc.CallOption) (*model.DelegateTask, error) {
	out := new(TaskReply)
	if err := c.cc.Invoke(ctx, methodAcquire, req, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out.Task, nil
}

func (c *AgentClient) Start(ctx context.Context, req *TaskRequest, opts ...grpc.CallOption) (*model.DelegateTask, error) {
	out := new(TaskReply)
	if err := c.cc.Invoke(ctx, methodStart, req, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out.Task, nil
}

func (c *AgentClient) SendResponse(ctx context.Context, resp *model.DelegateTaskResponse, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, methodSendResponse, &ResponseRequest{Response: resp}, new(Empty), callOpts(opts)...)
}

// EventStream Subscribe 的客户端流
type EventStream struct {
	stream grpc.ClientStream
}

func (s *EventStream) Recv() (*model.BroadcastEvent, error) {
	ev := new(model.BroadcastEvent)
	if err := s.stream.RecvMsg(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func (c *AgentClient) Subscribe(ctx context.Context, req *SubscribeRequest, opts ...grpc.CallOption) (*EventStream, error) {
	stream, err := c.cc.NewStream(ctx, &DelegateAgentServiceDesc.Streams[0], methodSubscribe, callOpts(opts)...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &EventStream{stream: stream}, nil
}
