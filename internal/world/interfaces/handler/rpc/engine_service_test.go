package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"TribalRealms/internal/shared/gameconfig"
	sharedgrpc "TribalRealms/internal/shared/transport/grpc"
	"TribalRealms/internal/world/command"
	"TribalRealms/internal/world/engine"
	"TribalRealms/internal/world/entity"
)

type fakeWorld struct {
	player  entity.PlayerID
	village entity.VillageID
	payload command.Payload
	tickAt  time.Time
	err     error
}

func (f *fakeWorld) IssueCommand(_ context.Context, player entity.PlayerID, villageID entity.VillageID,
	payload command.Payload, now time.Time) (*engine.CommandResult, error) {
	f.player, f.village, f.payload = player, villageID, payload
	if f.err != nil {
		return nil, f.err
	}
	return &engine.CommandResult{CommandID: "c1", Kind: payload.Kind(), VillageID: villageID, ItemID: 42, IssuedAt: now}, nil
}

func (f *fakeWorld) Tick(_ context.Context, now time.Time) (engine.TickStats, error) {
	f.tickAt = now
	return engine.TickStats{Applied: 3, Stale: 1}, nil
}

func dialEngine(t *testing.T, world World) *EngineClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := sharedgrpc.NewServer(nil)
	RegisterEngineServer(srv, NewEngineService(world, nil))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial err=%v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewEngineClient(conn)
}

func TestEngineService_IssueCommand(t *testing.T) {
	world := &fakeWorld{}
	client := dialEngine(t, world)

	out, err := client.IssueCommand(context.Background(), 7, 3, map[string]any{"kind": "build", "building": "farm"})
	if err != nil {
		t.Fatalf("issue err=%v", err)
	}
	if world.player != 7 || world.village != 3 {
		t.Fatalf("玩家或村庄不符: %d %d", world.player, world.village)
	}
	if p, ok := world.payload.(command.BuildPayload); !ok || p.Building != gameconfig.Farm {
		t.Fatalf("负载不符: %#v", world.payload)
	}
	if out["command_id"] != "c1" || out["item_id"] != float64(42) {
		t.Fatalf("回包不符: %v", out)
	}
}

func TestEngineService_错误转grpc状态码(t *testing.T) {
	world := &fakeWorld{err: entity.ErrInsufficientResources}
	client := dialEngine(t, world)

	_, err := client.IssueCommand(context.Background(), 7, 3, map[string]any{"kind": "build", "building": "farm"})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("期望 FailedPrecondition，got=%v", err)
	}
	_, err = client.IssueCommand(context.Background(), 7, 3, map[string]any{"kind": "demolish"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("未知指令期望 InvalidArgument，got=%v", err)
	}
	_, err = client.IssueCommand(context.Background(), 0, 3, map[string]any{"kind": "build", "building": "farm"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("缺少玩家 id 期望 InvalidArgument，got=%v", err)
	}
}

func TestEngineService_Tick(t *testing.T) {
	world := &fakeWorld{}
	client := dialEngine(t, world)

	at := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	out, err := client.Tick(context.Background(), at)
	if err != nil {
		t.Fatalf("tick err=%v", err)
	}
	if !world.tickAt.Equal(at) {
		t.Fatalf("推进时间不符: %v", world.tickAt)
	}
	if out["applied"] != float64(3) || out["stale"] != float64(1) {
		t.Fatalf("统计不符: %v", out)
	}

	if _, err := client.Tick(context.Background(), time.Time{}); err != nil {
		t.Fatalf("tick err=%v", err)
	}
	if world.tickAt.IsZero() || world.tickAt.Equal(at) {
		t.Fatalf("空时间应使用服务端当前时间，got=%v", world.tickAt)
	}
}
