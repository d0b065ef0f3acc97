// Package rpc 是引擎的 grpc 入口 tribalrealms.world.v1.Engine。
//
// 消息体统一使用 google.protobuf.Struct / Timestamp，服务描述手写，不依赖代码生成：
//
//	rpc IssueCommand(google.protobuf.Struct) returns (google.protobuf.Struct);
//	rpc Tick(google.protobuf.Timestamp) returns (google.protobuf.Struct);
//
// IssueCommand 的请求形如 {"player_id": 7, "village_id": 3, "payload": {"kind": "build", ...}}，
// 调用方是已完成鉴权的网关，玩家 id 由其透传。
package rpc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"TribalRealms/internal/shared/transport"
	"TribalRealms/internal/world/command"
	"TribalRealms/internal/world/engine"
	"TribalRealms/internal/world/entity"
	"TribalRealms/internal/world/interfaces/handler"
	"TribalRealms/modules/kit/logx"
)

const (
	ServiceName        = "tribalrealms.world.v1.Engine"
	IssueCommandMethod = "/" + ServiceName + "/IssueCommand"
	TickMethod         = "/" + ServiceName + "/Tick"
)

// EngineServer 是服务端需要实现的方法集。
type EngineServer interface {
	IssueCommand(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Tick(ctx context.Context, req *timestamppb.Timestamp) (*structpb.Struct, error)
}

// World 是 grpc 层依赖的引擎能力，由 engine.Engine 实现。
type World interface {
	IssueCommand(ctx context.Context, player entity.PlayerID, villageID entity.VillageID,
		payload command.Payload, now time.Time) (*engine.CommandResult, error)
	Tick(ctx context.Context, now time.Time) (engine.TickStats, error)
}

type commandRequest struct {
	PlayerID  int64          `mapstructure:"player_id"`
	VillageID int64          `mapstructure:"village_id"`
	Payload   map[string]any `mapstructure:"payload"`
}

type EngineService struct {
	world World
	now   func() time.Time
	log   logx.Logger
}

var _ EngineServer = (*EngineService)(nil)

func NewEngineService(world World, l logx.Logger) *EngineService {
	if l == nil {
		l = logx.NewZapLogger(nil)
	}
	return &EngineService{world: world, now: time.Now, log: l}
}

func (s *EngineService) IssueCommand(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in commandRequest
	if err := mapstructure.Decode(req.AsMap(), &in); err != nil {
		return nil, handler.ToRPCError(entity.ErrInvalidCommand.WithCause(err))
	}
	if in.PlayerID <= 0 || in.VillageID <= 0 || in.Payload == nil {
		return nil, handler.ToRPCError(entity.ErrInvalidCommand.WithData("player_id", in.PlayerID).WithData("village_id", in.VillageID))
	}
	transport.SetActor(ctx, in.PlayerID, in.VillageID)
	payload, err := command.Decode(in.Payload)
	if err != nil {
		return nil, handler.ToRPCError(err)
	}
	res, err := s.world.IssueCommand(ctx, entity.PlayerID(in.PlayerID), entity.VillageID(in.VillageID), payload, s.now())
	if err != nil {
		return nil, handler.ToRPCError(err)
	}
	return toStruct(res)
}

// Tick 推进到请求时间；时间为空时使用服务端当前时间。
func (s *EngineService) Tick(ctx context.Context, req *timestamppb.Timestamp) (*structpb.Struct, error) {
	now := s.now()
	if req != nil && (req.GetSeconds() != 0 || req.GetNanos() != 0) {
		now = req.AsTime()
	}
	stats, err := s.world.Tick(ctx, now)
	if err != nil {
		logx.ReportSysErrorWithLoggerContext(ctx, s.log, logx.NewSysLog("world rpc tick", err))
		return nil, handler.ToRPCError(err)
	}
	return toStruct(stats)
}

// toStruct 经 JSON 转成 Struct，字段名与 HTTP 回包一致。
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, handler.ToRPCError(err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, handler.ToRPCError(err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, handler.ToRPCError(err)
	}
	return out, nil
}

func RegisterEngineServer(s grpc.ServiceRegistrar, srv EngineServer) {
	s.RegisterService(&EngineServiceDesc, srv)
}

func issueCommandHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EngineServer).IssueCommand(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: IssueCommandMethod}
	h := func(ctx context.Context, req any) (any, error) {
		return srv.(EngineServer).IssueCommand(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, h)
}

func tickHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(timestamppb.Timestamp)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EngineServer).Tick(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: TickMethod}
	h := func(ctx context.Context, req any) (any, error) {
		return srv.(EngineServer).Tick(ctx, req.(*timestamppb.Timestamp))
	}
	return interceptor(ctx, in, info, h)
}

var EngineServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EngineServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "IssueCommand", Handler: issueCommandHandler},
		{MethodName: "Tick", Handler: tickHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tribalrealms/world/v1/engine.proto",
}
