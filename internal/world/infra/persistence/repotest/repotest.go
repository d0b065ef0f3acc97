// Package repotest 是世界仓储各后端共用的一致性用例，每个后端的测试里调用 Run。
package repotest

import (
	"context"
	"errors"
	"testing"
	"time"

	"TribalRealms/internal/shared/gameconfig"
	"TribalRealms/internal/world/app/port"
	"TribalRealms/internal/world/entity"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Run 对 newRepo 返回的空仓储执行全部用例。每个用例都拿到一个新仓储。
func Run(t *testing.T, newRepo func(t *testing.T) port.WorldRepository) {
	t.Run("创建与读取", func(t *testing.T) { testCreate(t, newRepo(t)) })
	t.Run("版本号CAS", func(t *testing.T) { testVersion(t, newRepo(t)) })
	t.Run("事件部队战报同单元提交", func(t *testing.T) { testChange(t, newRepo(t)) })
	t.Run("冲突时整体不生效", func(t *testing.T) { testAtomic(t, newRepo(t)) })
	t.Run("战报查询", func(t *testing.T) { testReports(t, newRepo(t)) })
}

func village(id entity.VillageID, x, y int) *entity.Village {
	return &entity.Village{
		ID:          id,
		WorldID:     1,
		OwnerID:     7,
		Name:        "v",
		X:           x,
		Y:           y,
		Terrain:     gameconfig.Plains,
		Buildings:   map[gameconfig.BuildingType]int{gameconfig.Headquarters: 1},
		Resources:   entity.Resources{Wood: 100, Clay: 90, Iron: 80},
		LastAccrual: base,
		Garrison:    entity.Units{gameconfig.Swordsman: 3},
		Support:     []entity.Support{{Origin: 9, OwnerID: 8, Units: entity.Units{gameconfig.Archer: 2}}},
		Version:     1,
	}
}

func create(t *testing.T, r port.WorldRepository, v *entity.Village) {
	t.Helper()
	if err := r.Commit(context.Background(), &port.Change{WorldID: 1, Village: v, CreateVillage: true}); err != nil {
		t.Fatalf("create village %d err=%v", v.ID, err)
	}
}

func testCreate(t *testing.T, r port.WorldRepository) {
	ctx := context.Background()
	create(t, r, village(1, 3, 4))

	got, err := r.LoadVillage(ctx, 1, 1)
	if err != nil {
		t.Fatalf("load err=%v", err)
	}
	if got.X != 3 || got.Y != 4 || got.Version != 1 || got.Garrison[gameconfig.Swordsman] != 3 {
		t.Fatalf("读回的村庄不一致: %+v", got)
	}
	if !got.LastAccrual.Equal(base) || got.Resources.Wood != 100 {
		t.Fatalf("时间或资源不一致: %+v", got)
	}
	if got.StationedFrom(9, 8)[gameconfig.Archer] != 2 {
		t.Fatalf("驻扎支援应随村庄落库，got=%+v", got.Support)
	}

	if _, err := r.LoadVillage(ctx, 1, 99); !errors.Is(err, entity.ErrVillageNotFound) {
		t.Fatalf("期望 ErrVillageNotFound，got=%v", err)
	}
	if _, err := r.LoadArmy(ctx, 1, 99); !errors.Is(err, entity.ErrArmyNotFound) {
		t.Fatalf("期望 ErrArmyNotFound，got=%v", err)
	}

	err = r.Commit(ctx, &port.Change{WorldID: 1, Village: village(2, 3, 4), CreateVillage: true})
	if !errors.Is(err, entity.ErrCoordinateTaken) {
		t.Fatalf("坐标重复期望 ErrCoordinateTaken，got=%v", err)
	}
	err = r.Commit(ctx, &port.Change{WorldID: 1, Village: village(1, 8, 8), CreateVillage: true})
	if !errors.Is(err, entity.ErrStaleVersion) {
		t.Fatalf("id 重复期望 ErrStaleVersion，got=%v", err)
	}

	create(t, r, village(2, 5, 5))
	all, err := r.ListVillages(ctx, 1)
	if err != nil || len(all) != 2 {
		t.Fatalf("期望 2 个村庄，got=%d err=%v", len(all), err)
	}
}

func testVersion(t *testing.T, r port.WorldRepository) {
	ctx := context.Background()
	create(t, r, village(1, 0, 0))

	next := village(1, 0, 0)
	next.Version = 2
	next.OwnerID = 8
	if err := r.Commit(ctx, &port.Change{WorldID: 1, Village: next, ExpectedVersion: 1}); err != nil {
		t.Fatalf("update err=%v", err)
	}
	stale := village(1, 0, 0)
	stale.Version = 2
	stale.OwnerID = 9
	if err := r.Commit(ctx, &port.Change{WorldID: 1, Village: stale, ExpectedVersion: 1}); !errors.Is(err, entity.ErrStaleVersion) {
		t.Fatalf("期望 ErrStaleVersion，got=%v", err)
	}
	got, _ := r.LoadVillage(ctx, 1, 1)
	if got.OwnerID != 8 || got.Version != 2 {
		t.Fatalf("过期写不应覆盖，got owner=%d version=%d", got.OwnerID, got.Version)
	}
}

func testChange(t *testing.T, r port.WorldRepository) {
	ctx := context.Background()
	create(t, r, village(1, 0, 0))

	evs := []entity.ScheduledEvent{
		{WorldID: 1, Due: base.Add(time.Hour), Seq: 3, Kind: entity.EventArmyArrival, VillageID: 2, ArmyID: 50},
		{WorldID: 1, Due: base.Add(time.Minute), Seq: 2, Kind: entity.EventConstructionComplete, VillageID: 1, ItemID: 9},
		{WorldID: 1, Due: base.Add(time.Minute), Seq: 1, Kind: entity.EventTrainingComplete, VillageID: 1, ItemID: 8},
	}
	army := &entity.Army{
		ID: 50, WorldID: 1, OwnerID: 7, Origin: 1, Destination: 2,
		Units:    entity.Units{gameconfig.Swordsman: 2},
		Intent:   entity.IntentAttack,
		DepartAt: base,
		ArriveAt: base.Add(time.Hour),
	}
	next := village(1, 0, 0)
	next.Version = 2
	next.Garrison = entity.Units{gameconfig.Swordsman: 1}
	change := &port.Change{WorldID: 1, Village: next, ExpectedVersion: 1, NewEvents: evs, NewArmies: []*entity.Army{army}}
	if err := r.Commit(ctx, change); err != nil {
		t.Fatalf("commit err=%v", err)
	}

	loaded, err := r.LoadEvents(ctx, 1)
	if err != nil || len(loaded) != 3 {
		t.Fatalf("期望 3 个事件，got=%d err=%v", len(loaded), err)
	}
	if loaded[0].Seq != 1 || loaded[1].Seq != 2 || loaded[2].Seq != 3 {
		t.Fatalf("事件应按 (due, seq) 排序，got=%v", loaded)
	}
	if loaded[2].ArmyID != 50 || !loaded[2].Due.Equal(base.Add(time.Hour)) || loaded[1].ItemID != 9 {
		t.Fatalf("事件字段不一致: %+v", loaded[2])
	}
	a, err := r.LoadArmy(ctx, 1, 50)
	if err != nil || a.Units[gameconfig.Swordsman] != 2 || !a.ArriveAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("部队读回不一致: %+v err=%v", a, err)
	}

	// 完成事件、销毁部队
	last := village(1, 0, 0)
	last.Version = 3
	change = &port.Change{
		WorldID:         1,
		Village:         last,
		ExpectedVersion: 2,
		DoneEvents:      []entity.EventKey{evs[1].Key()},
		DoneArmies:      []entity.ArmyID{50},
	}
	if err := r.Commit(ctx, change); err != nil {
		t.Fatalf("commit err=%v", err)
	}
	if _, err := r.LoadArmy(ctx, 1, 50); !errors.Is(err, entity.ErrArmyNotFound) {
		t.Fatalf("部队应已删除，got=%v", err)
	}
	if err := r.DeleteEvents(ctx, 1, []entity.EventKey{evs[0].Key()}); err != nil {
		t.Fatalf("delete events err=%v", err)
	}
	loaded, _ = r.LoadEvents(ctx, 1)
	if len(loaded) != 1 || loaded[0].Seq != 1 {
		t.Fatalf("期望只剩 seq=1 的事件，got=%v", loaded)
	}

	// 世界级提交：不带村庄
	upkeep := entity.ScheduledEvent{WorldID: 1, Due: base.Add(2 * time.Hour), Seq: 4, Kind: entity.EventPeriodicUpkeep}
	if err := r.Commit(ctx, &port.Change{WorldID: 1, NewEvents: []entity.ScheduledEvent{upkeep}}); err != nil {
		t.Fatalf("world commit err=%v", err)
	}
	loaded, _ = r.LoadEvents(ctx, 1)
	if len(loaded) != 2 || loaded[1].Kind != entity.EventPeriodicUpkeep {
		t.Fatalf("期望追加周期维护事件，got=%v", loaded)
	}
}

func testAtomic(t *testing.T, r port.WorldRepository) {
	ctx := context.Background()
	create(t, r, village(1, 0, 0))

	next := village(1, 0, 0)
	next.Version = 6
	change := &port.Change{
		WorldID:         1,
		Village:         next,
		ExpectedVersion: 5,
		NewEvents:       []entity.ScheduledEvent{{WorldID: 1, Due: base, Seq: 1, Kind: entity.EventConstructionComplete, VillageID: 1}},
		Reports:         []*entity.BattleReport{{ID: "01HQ0000000000000000000000", WorldID: 1, DefenderVillage: 1, OccurredAt: base}},
	}
	if err := r.Commit(ctx, change); !errors.Is(err, entity.ErrStaleVersion) {
		t.Fatalf("期望 ErrStaleVersion，got=%v", err)
	}
	evs, _ := r.LoadEvents(ctx, 1)
	reports, _ := r.ListReports(ctx, 1, 0, 10)
	if len(evs) != 0 || len(reports) != 0 {
		t.Fatalf("冲突时不应写入任何内容，events=%d reports=%d", len(evs), len(reports))
	}
}

func testReports(t *testing.T, r port.WorldRepository) {
	ctx := context.Background()
	reports := []*entity.BattleReport{
		{ID: "01HQ0000000000000000000001", WorldID: 1, AttackerVillage: 1, DefenderVillage: 2, OccurredAt: base, Outcome: entity.OutcomeDefenderHeld},
		{ID: "01HQ0000000000000000000002", WorldID: 1, AttackerVillage: 3, DefenderVillage: 1, OccurredAt: base.Add(time.Hour), Outcome: entity.OutcomeConquered},
		{ID: "01HQ0000000000000000000003", WorldID: 1, AttackerVillage: 3, DefenderVillage: 4, OccurredAt: base.Add(2 * time.Hour)},
	}
	if err := r.Commit(ctx, &port.Change{WorldID: 1, Reports: reports}); err != nil {
		t.Fatalf("commit err=%v", err)
	}

	got, err := r.ListReports(ctx, 1, 1, 10)
	if err != nil || len(got) != 2 {
		t.Fatalf("村庄 1 期望 2 份战报，got=%d err=%v", len(got), err)
	}
	if got[0].ID != reports[1].ID || got[0].Outcome != entity.OutcomeConquered {
		t.Fatalf("战报应按时间倒序，got=%s", got[0].ID)
	}
	if !got[1].OccurredAt.Equal(base) {
		t.Fatalf("时间读回不一致: %v", got[1].OccurredAt)
	}
	got, _ = r.ListReports(ctx, 1, 0, 2)
	if len(got) != 2 || got[0].ID != reports[2].ID {
		t.Fatalf("limit 后应只返回最新 2 份，got=%v", len(got))
	}
}
