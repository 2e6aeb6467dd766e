package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/model"
)

const ServiceName = "delegate.v1.DelegateAgent"

const (
	methodRegister     = "/" + ServiceName + "/Register"
	methodHeartbeat    = "/" + ServiceName + "/Heartbeat"
	methodAcquire      = "/" + ServiceName + "/Acquire"
	methodStart        = "/" + ServiceName + "/Start"
	methodSendResponse = "/" + ServiceName + "/SendResponse"
	methodSubscribe    = "/" + ServiceName + "/Subscribe"
)

// DelegateAgentServer delegate 进程调用的服务端接口
type DelegateAgentServer interface {
	Register(context.Context, *RegisterRequest) (*DelegateReply, error)
	Heartbeat(context.Context, *HeartbeatRequest) (*DelegateReply, error)
	Acquire(context.Context, *TaskRequest) (*TaskReply, error)
	Start(context.Context, *TaskRequest) (*TaskReply, error)
	SendResponse(context.Context, *ResponseRequest) (*Empty, error)
	Subscribe(*SubscribeRequest, EventSender) error
}

// EventSender Subscribe 的服务端流
type EventSender interface {
	Send(*model.BroadcastEvent) error
	Context() context.Context
}

func RegisterDelegateAgentServer(s grpc.ServiceRegistrar, srv DelegateAgentServer) {
	s.RegisterService(&DelegateAgentServiceDesc, srv)
}

func unaryHandler[Req any, Resp any](method string, call func(DelegateAgentServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(DelegateAgentServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(DelegateAgentServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type eventSender struct {
	grpc.ServerStream
}

func (s *eventSender) Send(ev *model.BroadcastEvent) error { return s.ServerStream.SendMsg(ev) }

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(SubscribeRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(DelegateAgentServer).Subscribe(in, &eventSender{stream})
}

var DelegateAgentServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DelegateAgentServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Register", Handler: unaryHandler(methodRegister, DelegateAgentServer.Register)},
		{MethodName: "Heartbeat", Handler: unaryHandler(methodHeartbeat, DelegateAgentServer.Heartbeat)},
		{MethodName: "Acquire", Handler: unaryHandler(methodAcquire, DelegateAgentServer.Acquire)},
		{MethodName: "Start", Handler: unaryHandler(methodStart, DelegateAgentServer.Start)},
		{MethodName: "SendResponse", Handler: unaryHandler(methodSendResponse, DelegateAgentServer.SendResponse)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: subscribeHandler, ServerStreams: true},
	},
	Metadata: "delegate/v1/agent.json",
}
