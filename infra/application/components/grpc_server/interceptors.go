package grpc_server

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/consts"
)

func accessFields(method string, start time.Time, err error) []zap.Field {
	fields := []zap.Field{
		zap.String("method", method),
		zap.Duration("dur", time.Since(start)),
		zap.String("grpc_status", status.Code(err).String()),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	return fields
}

func logAccess(ctx context.Context, method string, start time.Time, err error) {
	if err != nil {
		logging.Warn(ctx, "grpc_access", accessFields(method, start, err)...)
		return
	}
	logging.Info(ctx, "grpc_access", accessFields(method, start, err)...)
}

func recovered(ctx context.Context, method string, r any) error {
	logging.Error(ctx, "grpc panic recovered", zap.Any("panic", r), zap.String("method", method))
	return status.Errorf(codes.Internal, "internal error")
}

// 有效 span 时回写 trace_id 响应头，便于调用方关联日志
func setTraceHeader(ctx context.Context) {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		_ = grpc.SetHeader(ctx, metadata.Pairs(consts.KEY_TraceID, sc.TraceID().String()))
	}
}

func unaryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = recovered(ctx, info.FullMethod, r)
		}
		logAccess(ctx, info.FullMethod, start, err)
	}()
	setTraceHeader(ctx)
	return handler(ctx, req)
}

func streamInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
	ctx := ss.Context()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = recovered(ctx, info.FullMethod, r)
		}
		logAccess(ctx, info.FullMethod, start, err)
	}()
	setTraceHeader(ctx)
	return handler(srv, ss)
}
