package app

import (
	"context"
	"testing"
	"time"

	"TribalRealms/internal/shared/gameconfig"
	"TribalRealms/internal/shared/serverconfig"
	"TribalRealms/internal/shared/utils"
	"TribalRealms/internal/world/command"
	"TribalRealms/internal/world/entity"
	"TribalRealms/internal/world/infra/persistence/memory"
)

func TestBuild_出生建造并推进(t *testing.T) {
	cfg := serverconfig.Config{}
	cfg.Archive = serverconfig.ArchiveConfig{Enabled: true, Dir: t.TempDir()}
	cfg.ApplyDefaults()

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := memory.NewWorldRepository()
	w, err := Build(context.Background(), Options{Config: cfg, Repo: repo, IDs: utils.NewCounter(1), Now: t0})
	if err != nil {
		t.Fatalf("build err=%v", err)
	}
	defer w.Close()
	if w.Clock.Len() != 1 {
		t.Fatalf("启动后应只有周期维护事件，got=%d", w.Clock.Len())
	}

	v, err := w.Spawner.SpawnVillage(context.Background(), 7, "Home", t0)
	if err != nil {
		t.Fatalf("spawn err=%v", err)
	}
	res, err := w.Engine.IssueCommand(context.Background(), 7, v.ID, command.BuildPayload{Building: gameconfig.Woodcutter}, t0)
	if err != nil {
		t.Fatalf("issue err=%v", err)
	}
	if _, err := w.Engine.Tick(context.Background(), res.CompleteAt); err != nil {
		t.Fatalf("tick err=%v", err)
	}
	got, err := w.Runtime.Get(context.Background(), v.ID)
	if err != nil {
		t.Fatalf("get err=%v", err)
	}
	if got.Level(gameconfig.Woodcutter) != 2 {
		t.Fatalf("伐木场应升到 2 级，got=%d", got.Level(gameconfig.Woodcutter))
	}
}

func TestBuild_重建后保留村庄与事件(t *testing.T) {
	cfg := serverconfig.Config{}
	cfg.ApplyDefaults()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := memory.NewWorldRepository()

	w, err := Build(context.Background(), Options{Config: cfg, Repo: repo, IDs: utils.NewCounter(1), Now: t0})
	if err != nil {
		t.Fatalf("build err=%v", err)
	}
	v, err := w.Spawner.SpawnVillage(context.Background(), entity.Barbarian, "", t0)
	if err != nil {
		t.Fatalf("spawn err=%v", err)
	}
	w.Close()

	w2, err := Build(context.Background(), Options{Config: cfg, Repo: repo, IDs: utils.NewCounter(100), Now: t0.Add(time.Minute)})
	if err != nil {
		t.Fatalf("rebuild err=%v", err)
	}
	defer w2.Close()
	if ids := w2.Runtime.ListVillageIDs(context.Background()); len(ids) != 1 || ids[0] != v.ID {
		t.Fatalf("重建后村庄索引不符: %v", ids)
	}
	if w2.Clock.Len() != 1 {
		t.Fatalf("重建后不应重复创建周期维护事件，got=%d", w2.Clock.Len())
	}
}
