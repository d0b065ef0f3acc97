package rpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// EngineClient 是 worldctl 远程模式使用的客户端。
type EngineClient struct {
	cc grpc.ClientConnInterface
}

func NewEngineClient(cc grpc.ClientConnInterface) *EngineClient {
	return &EngineClient{cc: cc}
}

func (c *EngineClient) IssueCommand(ctx context.Context, playerID, villageID int64, payload map[string]any, opts ...grpc.CallOption) (map[string]any, error) {
	in, err := structpb.NewStruct(map[string]any{
		"player_id":  playerID,
		"village_id": villageID,
		"payload":    payload,
	})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, IssueCommandMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// Tick 让服务端推进到 at；at 为零值时由服务端取当前时间。
func (c *EngineClient) Tick(ctx context.Context, at time.Time, opts ...grpc.CallOption) (map[string]any, error) {
	in := &timestamppb.Timestamp{}
	if !at.IsZero() {
		in = timestamppb.New(at)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, TickMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}
