package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"TribalRealms/internal/shared/gameconfig"
	"TribalRealms/internal/shared/serverconfig"
	"TribalRealms/internal/shared/utils"
	"TribalRealms/internal/world/actor"
	"TribalRealms/internal/world/clock"
	"TribalRealms/internal/world/combat"
	"TribalRealms/internal/world/command"
	"TribalRealms/internal/world/entity"
	"TribalRealms/internal/world/events"
	"TribalRealms/internal/world/infra/persistence/memory"
	"TribalRealms/internal/world/store"
	"TribalRealms/modules/kit/errx"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type env struct {
	eng   *Engine
	rt    *actor.Runtime
	repo  *memory.WorldRepository
	clock *clock.Clock

	mu        sync.Mutex
	published []events.Event
}

func newEnv(t *testing.T, repo *memory.WorldRepository, rl serverconfig.RateLimitConfig) *env {
	t.Helper()
	if repo == nil {
		repo = memory.NewWorldRepository()
	}
	tables := gameconfig.MustDefault(1)
	clk := clock.New()
	bus := events.NewBus(nil)
	ids := utils.NewCounter(1000)
	rt := actor.NewRuntime(1, repo, clk, bus, ids, time.Second)
	t.Cleanup(rt.Shutdown)
	if err := rt.Load(context.Background()); err != nil {
		t.Fatalf("load err=%v", err)
	}
	e := &env{rt: rt, repo: repo, clock: clk}
	bus.OnAll(func(_ context.Context, ev events.Event) {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.published = append(e.published, ev)
	})
	e.eng = New(Deps{
		WorldID:  1,
		Store:    rt,
		Events:   repo,
		Clock:    clk,
		Tables:   tables,
		Resolver: combat.NewResolver(tables, serverconfig.CombatConfig{LuckRange: 0.0001}, 42),
		IDs:      ids,
		Config: serverconfig.EngineConfig{
			DispatchWorkers:    4,
			MaxConflictRetries: 2,
			UpkeepInterval:     time.Hour,
		},
		RateLimit: rl,
	})
	return e
}

func (e *env) village(t *testing.T, id entity.VillageID, owner entity.PlayerID, x, y int, garrison entity.Units) {
	t.Helper()
	_, err := e.rt.CreateVillage(context.Background(), &entity.Village{
		ID:      id,
		OwnerID: owner,
		X:       x,
		Y:       y,
		Terrain: gameconfig.Plains,
		Buildings: map[gameconfig.BuildingType]int{
			gameconfig.Headquarters: 1,
			gameconfig.Woodcutter:   1,
			gameconfig.ClayPit:      1,
			gameconfig.IronMine:     1,
			gameconfig.Farm:         1,
			gameconfig.Storage:      1,
			gameconfig.Barracks:     1,
		},
		Resources:   entity.Resources{Wood: 1000, Clay: 1000, Iron: 1000},
		Garrison:    garrison,
		LastAccrual: t0,
	})
	if err != nil {
		t.Fatalf("create village err=%v", err)
	}
}

func (e *env) get(t *testing.T, id entity.VillageID) *entity.Village {
	t.Helper()
	v, err := e.rt.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get village %d err=%v", id, err)
	}
	return v
}

func (e *env) kinds() map[events.Kind]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[events.Kind]int)
	for _, ev := range e.published {
		out[ev.Kind]++
	}
	return out
}

func TestEngine_建造队列到期并链式推进(t *testing.T) {
	e := newEnv(t, nil, serverconfig.RateLimitConfig{})
	e.village(t, 1, 7, 0, 0, nil)
	ctx := context.Background()

	for range 2 {
		if _, err := e.eng.IssueCommand(ctx, 7, 1, command.BuildPayload{Building: gameconfig.Woodcutter}, t0); err != nil {
			t.Fatalf("build err=%v", err)
		}
	}

	stats, err := e.eng.Tick(ctx, t0.Add(5*time.Minute))
	if err != nil || stats.Applied != 1 {
		t.Fatalf("期望处理 1 个事件，stats=%+v err=%v", stats, err)
	}
	v := e.get(t, 1)
	if v.Level(gameconfig.Woodcutter) != 2 || len(v.Construction) != 1 {
		t.Fatalf("期望升到 2 级且队列剩 1 项，got level=%d queue=%d", v.Level(gameconfig.Woodcutter), len(v.Construction))
	}
	if v.Construction[0].CompleteAt.IsZero() || e.clock.Len() != 1 {
		t.Fatalf("下一项应从上一项完成时刻开始计时并调度")
	}

	// 一次 Tick 追赶：链式产生的到期事件在同一次调用里继续处理
	stats, err = e.eng.Tick(ctx, t0.Add(10*time.Hour))
	if err != nil || stats.Applied != 1 {
		t.Fatalf("期望处理剩余 1 个事件，stats=%+v err=%v", stats, err)
	}
	v = e.get(t, 1)
	if v.Level(gameconfig.Woodcutter) != 3 || len(v.Construction) != 0 || e.clock.Len() != 0 {
		t.Fatalf("期望升到 3 级且队列清空，got level=%d", v.Level(gameconfig.Woodcutter))
	}
	if e.kinds()[events.QueueCompleted] != 2 {
		t.Fatalf("期望发布两次 queue_completed，got=%v", e.kinds())
	}
	if evs, _ := e.repo.LoadEvents(ctx, 1); len(evs) != 0 {
		t.Fatalf("已完成的事件行应删除，got=%d", len(evs))
	}
}

func TestEngine_积压的两项在一次Tick内完成(t *testing.T) {
	e := newEnv(t, nil, serverconfig.RateLimitConfig{})
	e.village(t, 1, 7, 0, 0, nil)
	ctx := context.Background()
	for range 2 {
		if _, err := e.eng.IssueCommand(ctx, 7, 1, command.BuildPayload{Building: gameconfig.ClayPit}, t0); err != nil {
			t.Fatalf("build err=%v", err)
		}
	}
	stats, err := e.eng.Tick(ctx, t0.Add(10*time.Hour))
	if err != nil || stats.Applied != 2 {
		t.Fatalf("期望一次处理 2 个事件，stats=%+v err=%v", stats, err)
	}
	if e.get(t, 1).Level(gameconfig.ClayPit) != 3 {
		t.Fatalf("期望 clay_pit 升到 3 级")
	}
}

func TestEngine_训练完成加入驻军(t *testing.T) {
	e := newEnv(t, nil, serverconfig.RateLimitConfig{})
	e.village(t, 1, 7, 0, 0, nil)
	ctx := context.Background()

	res, err := e.eng.IssueCommand(ctx, 7, 1, command.TrainPayload{Unit: gameconfig.Swordsman, Count: 5}, t0)
	if err != nil {
		t.Fatalf("train err=%v", err)
	}
	if res.CommandID == "" || !res.CompleteAt.Equal(t0.Add(30*time.Minute)) {
		t.Fatalf("回执不完整: %+v", res)
	}
	if _, err := e.eng.Tick(ctx, t0.Add(29*time.Minute)); err != nil {
		t.Fatalf("tick err=%v", err)
	}
	if e.get(t, 1).Garrison[gameconfig.Swordsman] != 0 {
		t.Fatalf("未到期不应入驻")
	}
	if _, err := e.eng.Tick(ctx, t0.Add(30*time.Minute)); err != nil {
		t.Fatalf("tick err=%v", err)
	}
	v := e.get(t, 1)
	if v.Garrison[gameconfig.Swordsman] != 5 || len(v.Training) != 0 {
		t.Fatalf("期望驻军 5 剑士，got=%v", v.Garrison)
	}
}

func TestEngine_攻击占领并返程(t *testing.T) {
	e := newEnv(t, nil, serverconfig.RateLimitConfig{})
	e.village(t, 1, 7, 0, 0, entity.Units{gameconfig.Nobleman: 1, gameconfig.Swordsman: 200})
	e.village(t, 2, 8, 3, 4, entity.Units{gameconfig.Swordsman: 10})
	ctx := context.Background()

	res, err := e.eng.IssueCommand(ctx, 7, 1, command.DispatchPayload{
		Destination: 2,
		Units:       entity.Units{gameconfig.Nobleman: 1, gameconfig.Swordsman: 200},
		Intent:      entity.IntentAttack,
	}, t0)
	if err != nil {
		t.Fatalf("dispatch err=%v", err)
	}
	// 距离 5，贵族 30 分钟/格
	arrive := t0.Add(150 * time.Minute)
	if !res.CompleteAt.Equal(arrive) {
		t.Fatalf("期望 150 分钟后到达，got=%v", res.CompleteAt)
	}

	if _, err := e.eng.Tick(ctx, arrive); err != nil {
		t.Fatalf("tick err=%v", err)
	}
	target := e.get(t, 2)
	if target.OwnerID != 7 || !target.Garrison.IsEmpty() {
		t.Fatalf("期望村庄易主且守军清空，got owner=%d garrison=%v", target.OwnerID, target.Garrison)
	}
	if _, err := e.rt.GetArmy(ctx, res.ArmyID); !errors.Is(err, entity.ErrNotFound) {
		t.Fatalf("到达后出征部队应销毁，got=%v", err)
	}
	reports, err := e.rt.ListReports(ctx, 2, 10)
	if err != nil || len(reports) != 1 {
		t.Fatalf("期望一份战报，got=%d err=%v", len(reports), err)
	}
	report := reports[0]
	if report.Outcome != entity.OutcomeConquered || report.Loot.IsZero() {
		t.Fatalf("期望占领并掠夺，got=%+v", report)
	}
	k := e.kinds()
	if k[events.BattleReportCreated] != 1 || k[events.VillageConquered] != 1 {
		t.Fatalf("期望发布战报和占领事件，got=%v", k)
	}
	if e.clock.Len() != 1 {
		t.Fatalf("期望调度一个返程事件，got=%d", e.clock.Len())
	}

	if _, err := e.eng.Tick(ctx, arrive.Add(150*time.Minute)); err != nil {
		t.Fatalf("tick err=%v", err)
	}
	home := e.get(t, 1)
	if home.Garrison[gameconfig.Nobleman] != 1 || home.Garrison[gameconfig.Swordsman] != 199 {
		t.Fatalf("期望幸存者回到出发村，got=%v", home.Garrison)
	}
	// 出发村自产加战利品超过仓库容量，按容量封顶
	limit := home.StorageCap(gameconfig.MustDefault(1))
	if home.Resources != (entity.Resources{Wood: limit, Clay: limit, Iron: limit}) {
		t.Fatalf("期望资源封顶 %d，got=%+v", limit, home.Resources)
	}
	if e.kinds()[events.ArmyReturned] != 1 {
		t.Fatalf("期望发布 army_returned")
	}
}

func TestEngine_支援并入驻军(t *testing.T) {
	e := newEnv(t, nil, serverconfig.RateLimitConfig{})
	e.village(t, 1, 7, 0, 0, entity.Units{gameconfig.Swordsman: 20})
	e.village(t, 3, 7, 0, 5, entity.Units{gameconfig.Swordsman: 1})
	ctx := context.Background()

	res, err := e.eng.IssueCommand(ctx, 7, 1, command.DispatchPayload{
		Destination: 3,
		Units:       entity.Units{gameconfig.Swordsman: 5},
		Intent:      entity.IntentReinforce,
	}, t0)
	if err != nil {
		t.Fatalf("dispatch err=%v", err)
	}
	if _, err := e.eng.Tick(ctx, res.CompleteAt); err != nil {
		t.Fatalf("tick err=%v", err)
	}
	if got := e.get(t, 3).Garrison[gameconfig.Swordsman]; got != 6 {
		t.Fatalf("期望驻军 6，got=%d", got)
	}
	if got := e.get(t, 1).Garrison[gameconfig.Swordsman]; got != 15 {
		t.Fatalf("出发村应剩 15，got=%d", got)
	}
}

func TestEngine_过期事件丢弃不重试(t *testing.T) {
	e := newEnv(t, nil, serverconfig.RateLimitConfig{})
	e.village(t, 1, 7, 0, 0, nil)
	ctx := context.Background()
	if _, err := e.eng.IssueCommand(ctx, 7, 1, command.BuildPayload{Building: gameconfig.Woodcutter}, t0); err != nil {
		t.Fatalf("build err=%v", err)
	}
	_, err := e.rt.ApplyMutation(ctx, 1, t0, func(m *store.Mutation) error {
		m.Village.Construction = nil
		return nil
	})
	if err != nil {
		t.Fatalf("mutate err=%v", err)
	}

	stats, err := e.eng.Tick(ctx, t0.Add(time.Hour))
	if err != nil || stats.Stale != 1 || stats.Applied != 0 {
		t.Fatalf("期望 1 个过期事件，stats=%+v err=%v", stats, err)
	}
	if e.get(t, 1).Level(gameconfig.Woodcutter) != 1 {
		t.Fatalf("过期事件不应改变状态")
	}
	if evs, _ := e.repo.LoadEvents(ctx, 1); len(evs) != 0 {
		t.Fatalf("过期事件行应删除，got=%d", len(evs))
	}
	stats, _ = e.eng.Tick(ctx, t0.Add(2*time.Hour))
	if stats.Stale != 0 {
		t.Fatalf("同一事件不应被处理两次")
	}
}

func TestEngine_存储不可用时事件放回(t *testing.T) {
	e := newEnv(t, nil, serverconfig.RateLimitConfig{})
	e.village(t, 1, 7, 0, 0, nil)
	ctx := context.Background()
	if _, err := e.eng.IssueCommand(ctx, 7, 1, command.BuildPayload{Building: gameconfig.Woodcutter}, t0); err != nil {
		t.Fatalf("build err=%v", err)
	}

	e.repo.FailNext(errors.New("disk gone"))
	stats, err := e.eng.Tick(ctx, t0.Add(5*time.Minute))
	if !errors.Is(err, entity.ErrPersistenceUnavailable) || stats.Requeued != 1 {
		t.Fatalf("期望 PersistenceUnavailable 且事件放回，stats=%+v err=%v", stats, err)
	}
	if e.clock.Len() != 1 || e.get(t, 1).Level(gameconfig.Woodcutter) != 1 {
		t.Fatalf("失败后状态不应改变，事件应仍在队列")
	}

	stats, err = e.eng.Tick(ctx, t0.Add(5*time.Minute))
	if err != nil || stats.Applied != 1 || e.get(t, 1).Level(gameconfig.Woodcutter) != 2 {
		t.Fatalf("恢复后应正常处理，stats=%+v err=%v", stats, err)
	}
}

func TestEngine_玩家限流(t *testing.T) {
	e := newEnv(t, nil, serverconfig.RateLimitConfig{PerSecond: 1, Burst: 1})
	e.village(t, 1, 7, 0, 0, nil)
	ctx := context.Background()
	if _, err := e.eng.IssueCommand(ctx, 7, 1, command.BuildPayload{Building: gameconfig.Woodcutter}, t0); err != nil {
		t.Fatalf("build err=%v", err)
	}
	_, err := e.eng.IssueCommand(ctx, 7, 1, command.BuildPayload{Building: gameconfig.Woodcutter}, t0)
	if !errors.Is(err, errx.ErrRateLimited) {
		t.Fatalf("期望限流，got=%v", err)
	}
	if _, err := e.eng.IssueCommand(ctx, 7, 1, command.BuildPayload{Building: gameconfig.Woodcutter}, t0.Add(time.Second)); err != nil {
		t.Fatalf("令牌恢复后应放行，got=%v", err)
	}
}

func TestEngine_非村主指令被拒绝(t *testing.T) {
	e := newEnv(t, nil, serverconfig.RateLimitConfig{})
	e.village(t, 1, 7, 0, 0, nil)
	_, err := e.eng.IssueCommand(context.Background(), 8, 1, command.BuildPayload{Building: gameconfig.Woodcutter}, t0)
	if !errors.Is(err, entity.ErrNotOwner) {
		t.Fatalf("期望 NotOwner，got=%v", err)
	}
	if _, err := e.eng.IssueCommand(context.Background(), 7, 1, nil, t0); !errors.Is(err, entity.ErrInvalidCommand) {
		t.Fatalf("空负载期望 InvalidCommand，got=%v", err)
	}
}

func TestEngine_重启后从存储恢复事件(t *testing.T) {
	repo := memory.NewWorldRepository()
	first := newEnv(t, repo, serverconfig.RateLimitConfig{})
	first.village(t, 1, 7, 0, 0, nil)
	ctx := context.Background()
	if _, err := first.eng.IssueCommand(ctx, 7, 1, command.BuildPayload{Building: gameconfig.Woodcutter}, t0); err != nil {
		t.Fatalf("build err=%v", err)
	}

	second := newEnv(t, repo, serverconfig.RateLimitConfig{})
	if err := second.eng.Start(ctx, t0); err != nil {
		t.Fatalf("start err=%v", err)
	}
	if second.clock.Len() != 2 || !second.clock.HasKind(entity.EventPeriodicUpkeep) {
		t.Fatalf("期望恢复建造事件并补上周期维护，got=%d", second.clock.Len())
	}

	third := newEnv(t, repo, serverconfig.RateLimitConfig{})
	if err := third.eng.Start(ctx, t0); err != nil {
		t.Fatalf("start err=%v", err)
	}
	if third.clock.Len() != 2 {
		t.Fatalf("周期维护事件不应重复调度，got=%d", third.clock.Len())
	}

	stats, err := third.eng.Tick(ctx, t0.Add(5*time.Minute))
	if err != nil || stats.Applied != 1 {
		t.Fatalf("恢复的事件应能处理，stats=%+v err=%v", stats, err)
	}
	if third.get(t, 1).Level(gameconfig.Woodcutter) != 2 {
		t.Fatalf("期望升到 2 级")
	}
}

func TestEngine_周期维护结算并续期(t *testing.T) {
	e := newEnv(t, nil, serverconfig.RateLimitConfig{})
	e.village(t, 1, 7, 0, 0, nil)
	ctx := context.Background()
	if err := e.eng.Start(ctx, t0); err != nil {
		t.Fatalf("start err=%v", err)
	}

	stats, err := e.eng.Tick(ctx, t0.Add(3*time.Hour+30*time.Minute))
	if err != nil || stats.Applied != 1 {
		t.Fatalf("期望处理一次维护，stats=%+v err=%v", stats, err)
	}
	if v := e.get(t, 1); !v.LastAccrual.Equal(t0.Add(time.Hour)) {
		t.Fatalf("期望结算到维护事件时刻，got=%v", v.LastAccrual)
	}
	next, ok := e.clock.NextDue()
	if !ok || !next.Equal(t0.Add(4*time.Hour)) {
		t.Fatalf("下一次维护应跳到 now 之后的节拍，got=%v", next)
	}
}

func TestEngine_nextWait(t *testing.T) {
	e := newEnv(t, nil, serverconfig.RateLimitConfig{})
	e.village(t, 1, 7, 0, 0, nil)
	if got := e.eng.nextWait(t0, time.Second, false); got != time.Second {
		t.Fatalf("空队列按间隔等待，got=%v", got)
	}
	if _, err := e.eng.IssueCommand(context.Background(), 7, 1, command.BuildPayload{Building: gameconfig.Woodcutter}, t0); err != nil {
		t.Fatalf("build err=%v", err)
	}
	if got := e.eng.nextWait(t0.Add(5*time.Minute-200*time.Millisecond), time.Second, false); got != 200*time.Millisecond {
		t.Fatalf("期望等到最近事件，got=%v", got)
	}
	if got := e.eng.nextWait(t0.Add(time.Hour), time.Second, false); got != 0 {
		t.Fatalf("已到期立即执行，got=%v", got)
	}
}

func TestEngine_支援他人驻扎并参与防守后召回(t *testing.T) {
	e := newEnv(t, nil, serverconfig.RateLimitConfig{})
	e.village(t, 1, 7, 0, 0, entity.Units{gameconfig.Swordsman: 20})
	e.village(t, 2, 8, 3, 4, entity.Units{gameconfig.Swordsman: 1})
	e.village(t, 3, 9, 6, 8, entity.Units{gameconfig.Swordsman: 3})
	ctx := context.Background()

	res, err := e.eng.IssueCommand(ctx, 7, 1, command.DispatchPayload{
		Destination: 2,
		Units:       entity.Units{gameconfig.Swordsman: 10},
		Intent:      entity.IntentReinforce,
	}, t0)
	if err != nil {
		t.Fatalf("reinforce err=%v", err)
	}
	arrived := res.CompleteAt
	if _, err := e.eng.Tick(ctx, arrived); err != nil {
		t.Fatalf("tick err=%v", err)
	}
	host := e.get(t, 2)
	if host.Garrison[gameconfig.Swordsman] != 1 || host.StationedFrom(1, 7)[gameconfig.Swordsman] != 10 {
		t.Fatalf("他人的支援应单独驻扎，garrison=%v support=%+v", host.Garrison, host.Support)
	}
	if e.kinds()[events.ReinforcementArrived] != 1 {
		t.Fatalf("期望发布 reinforcement_arrived")
	}

	atk, err := e.eng.IssueCommand(ctx, 9, 3, command.DispatchPayload{
		Destination: 2,
		Units:       entity.Units{gameconfig.Swordsman: 3},
		Intent:      entity.IntentAttack,
	}, arrived)
	if err != nil {
		t.Fatalf("attack err=%v", err)
	}
	if _, err := e.eng.Tick(ctx, atk.CompleteAt); err != nil {
		t.Fatalf("tick err=%v", err)
	}
	reports, err := e.rt.ListReports(ctx, 2, 10)
	if err != nil || len(reports) != 1 {
		t.Fatalf("期望一份战报，got=%d err=%v", len(reports), err)
	}
	report := reports[0]
	if report.Outcome != entity.OutcomeDefenderHeld || report.DefenderBefore[gameconfig.Swordsman] != 11 {
		t.Fatalf("支援应参与防守，got=%+v", report)
	}
	host = e.get(t, 2)
	stationed := host.StationedFrom(1, 7)[gameconfig.Swordsman]
	if stationed <= 0 || stationed+host.Garrison[gameconfig.Swordsman] != report.DefenderAfter[gameconfig.Swordsman] {
		t.Fatalf("幸存守军应按来源拆分，stationed=%d garrison=%v after=%v", stationed, host.Garrison, report.DefenderAfter)
	}
	if host.OwnerID != 8 || len(host.Support) != 1 || host.Support[0].OwnerID != 7 {
		t.Fatalf("幸存支援仍归派出方，got=%+v", host.Support)
	}

	back, err := e.eng.IssueCommand(ctx, 7, 1, command.RecallPayload{Host: 2}, atk.CompleteAt)
	if err != nil {
		t.Fatalf("recall err=%v", err)
	}
	if _, err := e.eng.Tick(ctx, back.CompleteAt); err != nil {
		t.Fatalf("tick err=%v", err)
	}
	if got := e.get(t, 1).Garrison[gameconfig.Swordsman]; got != 10+stationed {
		t.Fatalf("召回的支援应回到出发村，期望 %d，got=%d", 10+stationed, got)
	}
	if got := e.get(t, 2); len(got.Support) != 0 {
		t.Fatalf("召回后驻地不应再有支援，got=%+v", got.Support)
	}
}

func TestEngine_多村庄并行Tick(t *testing.T) {
	e := newEnv(t, nil, serverconfig.RateLimitConfig{})
	ctx := context.Background()
	const n = 6
	for i := range n {
		id := entity.VillageID(i + 1)
		e.village(t, id, entity.PlayerID(10+i), i*3, 0, nil)
		for range 2 {
			if _, err := e.eng.IssueCommand(ctx, entity.PlayerID(10+i), id, command.BuildPayload{Building: gameconfig.ClayPit}, t0); err != nil {
				t.Fatalf("build village %d err=%v", id, err)
			}
		}
	}

	stats, err := e.eng.Tick(ctx, t0.Add(10*time.Hour))
	if err != nil || stats.Applied != 2*n || stats.Stale != 0 || stats.Requeued != 0 {
		t.Fatalf("期望处理 %d 个事件，stats=%+v err=%v", 2*n, stats, err)
	}
	for i := range n {
		v := e.get(t, entity.VillageID(i+1))
		if v.Level(gameconfig.ClayPit) != 3 || len(v.Construction) != 0 {
			t.Fatalf("村庄 %d 期望 clay_pit 3 级且队列清空，got level=%d queue=%d", v.ID, v.Level(gameconfig.ClayPit), len(v.Construction))
		}
	}
	if e.clock.Len() != 0 {
		t.Fatalf("所有事件应处理完，剩余=%d", e.clock.Len())
	}
	if evs, _ := e.repo.LoadEvents(ctx, 1); len(evs) != 0 {
		t.Fatalf("事件行应全部删除，got=%d", len(evs))
	}
	if got := e.kinds()[events.QueueCompleted]; got != 2*n {
		t.Fatalf("期望发布 %d 个 queue_completed，got=%d", 2*n, got)
	}
}
