package grpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"TribalRealms/internal/shared/transport"
	"TribalRealms/modules/kit/errx"
	"TribalRealms/modules/kit/logx"
)

// Dial 建立到引擎的 grpc 连接（worldctl 远程模式使用）。
func Dial(target string) (*grpc.ClientConn, error) {
	// grpc Dial 拨号配置
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(UnaryClientTraceInterceptor()),
		grpc.WithChainStreamInterceptor(StreamClientTraceInterceptor()),
	}
	// NewClient 只创建 ClientConn，真正建连在第一次调用时由 resolver/balancer 异步完成。
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial engine service failed: %w", err)
	}
	return conn, nil
}

// NewServer 创建带 trace 透传与访问日志的 grpc 服务端。
func NewServer(logger logx.Logger, opts ...grpc.ServerOption) *grpc.Server {
	base := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(UnaryServerTraceInterceptor(), UnaryServerAccessLogInterceptor(logger)),
		grpc.ChainStreamInterceptor(StreamServerTraceInterceptor()),
	}
	return grpc.NewServer(append(base, opts...)...)
}

// UnaryServerAccessLogInterceptor 每个 unary 调用写一条访问日志，业务码由错误码推导。
func UnaryServerAccessLogInterceptor(logger logx.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = logx.NewZapLogger(nil)
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx = transport.NewContextWithParent(ctx, info.FullMethod)
		resp, err := handler(ctx, req)
		code := transport.BizCode(transport.OK)
		if err != nil {
			code = bizCodeOf(err)
			transport.SetErrorReason(ctx, err.Error())
		}
		transport.SetBizCode(ctx, code)
		transport.WriteAccessLog(ctx, logger)
		return resp, err
	}
}

// bizCodeOf 把 handler 返回的错误折算成访问日志业务码，与 HTTP 入口口径一致。
func bizCodeOf(err error) transport.BizCode {
	if e, ok := errx.As(err); ok && e.IsBiz() {
		return transport.BizCode(transport.Rejected)
	}
	switch status.Code(err) {
	case codes.InvalidArgument:
		return transport.BizCode(transport.InvalidParam)
	case codes.Unauthenticated:
		return transport.BizCode(transport.Unauthorized)
	case codes.PermissionDenied:
		return transport.BizCode(transport.Forbidden)
	case codes.NotFound:
		return transport.BizCode(transport.NotFound)
	case codes.Aborted:
		return transport.BizCode(transport.Conflict)
	case codes.FailedPrecondition:
		return transport.BizCode(transport.Rejected)
	case codes.ResourceExhausted:
		return transport.BizCode(transport.TooManyReqs)
	case codes.Unavailable, codes.DeadlineExceeded:
		return transport.BizCode(transport.Unavailable)
	}
	return transport.BizCode(transport.SystemError)
}
