package handler

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"TribalRealms/internal/shared/transport"
	"TribalRealms/internal/world/entity"
	"TribalRealms/modules/kit/errx"
)

const busyMsg = "系统繁忙，请稍后重试"

func mapBizCodeToClientCode(code errx.Code) int {
	switch code {
	case entity.CodeNotFound:
		return transport.NotFound
	case entity.CodeNotOwner:
		return transport.Forbidden
	case entity.CodeInvalidCommand, entity.CodeUnknownBuilding, entity.CodeUnknownUnit:
		return transport.InvalidParam
	default:
		return transport.Rejected
	}
}

func mapSysCodeToClientCode(code errx.Code) int {
	switch code {
	case errx.CodeRateLimited:
		return transport.TooManyReqs
	case errx.CodeConflict:
		return transport.Conflict
	case errx.CodeUnavailable, errx.CodeTimeout:
		return transport.Unavailable
	case errx.CodeReqParamError:
		return transport.InvalidParam
	default:
		return transport.SystemError
	}
}

// HandleError 把领域错误归一成客户端业务码、错误原因码和提示文案，同时记到访问日志上下文。
func HandleError(ctx context.Context, err error) (int, string, string) {
	if err == nil {
		return transport.OK, "", ""
	}
	xe, ok := errx.As(err)
	if !ok {
		transport.SetErrorReason(ctx, err.Error())
		return transport.SystemError, string(errx.CodeInternal), busyMsg
	}
	reason := xe.CodeText()
	transport.SetErrorReason(ctx, reason)
	if xe.IsBiz() {
		return mapBizCodeToClientCode(xe.Code()), reason, xe.Msg()
	}
	code := mapSysCodeToClientCode(xe.Code())
	if code == transport.SystemError || code == transport.Unavailable {
		return code, reason, busyMsg
	}
	return code, reason, xe.Msg()
}

// ToRPCError 把领域错误转成 grpc status，消息体为 "原因码: 文案"。
func ToRPCError(err error) error {
	if err == nil {
		return nil
	}
	xe, ok := errx.As(err)
	if !ok {
		return status.Error(codes.Internal, err.Error())
	}
	msg := xe.CodeText() + ": " + xe.Msg()
	if xe.IsBiz() {
		switch xe.Code() {
		case entity.CodeNotFound:
			return status.Error(codes.NotFound, msg)
		case entity.CodeNotOwner:
			return status.Error(codes.PermissionDenied, msg)
		case entity.CodeInvalidCommand, entity.CodeUnknownBuilding, entity.CodeUnknownUnit:
			return status.Error(codes.InvalidArgument, msg)
		default:
			return status.Error(codes.FailedPrecondition, msg)
		}
	}
	switch xe.Code() {
	case errx.CodeRateLimited:
		return status.Error(codes.ResourceExhausted, msg)
	case errx.CodeConflict:
		return status.Error(codes.Aborted, msg)
	case errx.CodeUnavailable:
		return status.Error(codes.Unavailable, msg)
	case errx.CodeTimeout:
		return status.Error(codes.DeadlineExceeded, msg)
	case errx.CodeReqParamError:
		return status.Error(codes.InvalidArgument, msg)
	default:
		return status.Error(codes.Internal, msg)
	}
}
