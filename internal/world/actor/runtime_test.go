package actor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"TribalRealms/internal/shared/gameconfig"
	"TribalRealms/internal/shared/utils"
	"TribalRealms/internal/world/app/port"
	"TribalRealms/internal/world/clock"
	"TribalRealms/internal/world/entity"
	"TribalRealms/internal/world/events"
	"TribalRealms/internal/world/infra/persistence/memory"
	"TribalRealms/internal/world/store"
	"TribalRealms/modules/kit/errx"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newRuntime(t *testing.T) (*Runtime, *memory.WorldRepository, *clock.Clock, *events.Bus) {
	t.Helper()
	repo := memory.NewWorldRepository()
	clk := clock.New()
	bus := events.NewBus(nil)
	rt := NewRuntime(1, repo, clk, bus, utils.NewCounter(100), time.Second)
	t.Cleanup(rt.Shutdown)
	return rt, repo, clk, bus
}

func createVillage(t *testing.T, rt *Runtime, x, y int) *entity.Village {
	t.Helper()
	v, err := rt.CreateVillage(context.Background(), &entity.Village{
		OwnerID:     7,
		X:           x,
		Y:           y,
		Buildings:   map[gameconfig.BuildingType]int{gameconfig.Headquarters: 1},
		Resources:   entity.Resources{Wood: 500, Clay: 500, Iron: 500},
		LastAccrual: t0,
	})
	if err != nil {
		t.Fatalf("create err=%v", err)
	}
	return v
}

func TestRuntime_创建与读取(t *testing.T) {
	rt, _, _, _ := newRuntime(t)
	v := createVillage(t, rt, 1, 1)
	if v.ID != 101 || v.Version != 1 {
		t.Fatalf("期望 id=101 version=1，got id=%d version=%d", v.ID, v.Version)
	}
	got, err := rt.Get(context.Background(), v.ID)
	if err != nil || got.Resources.Wood != 500 {
		t.Fatalf("读取失败 got=%v err=%v", got, err)
	}
	if _, err := rt.Get(context.Background(), 999); !errors.Is(err, entity.ErrNotFound) {
		t.Fatalf("期望 NotFound，got=%v", err)
	}
	if _, err := rt.CreateVillage(context.Background(), &entity.Village{X: 1, Y: 1}); !errors.Is(err, entity.ErrCoordinateTaken) {
		t.Fatalf("坐标重复应被拒绝，got=%v", err)
	}
}

func TestRuntime_修改与事件一起提交(t *testing.T) {
	rt, repo, clk, bus := newRuntime(t)
	v := createVillage(t, rt, 1, 1)

	var published []events.Event
	bus.OnAll(func(ctx context.Context, e events.Event) { published = append(published, e) })

	now := t0.Add(time.Minute)
	got, err := rt.ApplyMutation(context.Background(), v.ID, now, func(m *store.Mutation) error {
		m.Village.Resources.Wood -= 100
		if _, err := m.Schedule(entity.ScheduledEvent{Kind: entity.EventConstructionComplete, VillageID: v.ID, Due: now.Add(time.Minute)}); err != nil {
			return err
		}
		m.Publish(events.Event{Kind: events.QueueCompleted, VillageID: v.ID})
		return nil
	})
	if err != nil {
		t.Fatalf("mutate err=%v", err)
	}
	if got.Resources.Wood != 400 || got.Version != 2 {
		t.Fatalf("期望 wood=400 version=2，got wood=%d version=%d", got.Resources.Wood, got.Version)
	}
	if clk.Len() != 1 {
		t.Fatalf("提交成功后事件应进入时钟，len=%d", clk.Len())
	}
	evs, _ := repo.LoadEvents(context.Background(), 1)
	if len(evs) != 1 {
		t.Fatalf("事件应与村庄同一单元落库，got=%d", len(evs))
	}
	if len(published) != 1 || published[0].WorldID != 1 {
		t.Fatalf("提交后应发布领域事件，got=%v", published)
	}
}

func TestRuntime_校验失败不改状态(t *testing.T) {
	rt, repo, clk, _ := newRuntime(t)
	v := createVillage(t, rt, 1, 1)
	before := repo.Commits()

	_, err := rt.ApplyMutation(context.Background(), v.ID, t0, func(m *store.Mutation) error {
		m.Village.Resources.Wood = 0
		if _, err := m.Schedule(entity.ScheduledEvent{Kind: entity.EventTrainingComplete, Due: t0.Add(time.Hour)}); err != nil {
			return err
		}
		return entity.ErrInsufficientResources
	})
	if !errors.Is(err, entity.ErrInsufficientResources) {
		t.Fatalf("期望透传校验错误，got=%v", err)
	}
	got, _ := rt.Get(context.Background(), v.ID)
	if got.Resources.Wood != 500 || repo.Commits() != before || clk.Len() != 0 {
		t.Fatalf("校验失败不应有任何写入")
	}
}

func TestRuntime_版本冲突返回Conflict并重新加载(t *testing.T) {
	rt, repo, _, _ := newRuntime(t)
	v := createVillage(t, rt, 1, 1)
	repo.Bump(v.ID)

	_, err := rt.ApplyMutation(context.Background(), v.ID, t0, func(m *store.Mutation) error {
		m.Village.Resources.Wood--
		return nil
	})
	if !errors.Is(err, entity.ErrConflict) {
		t.Fatalf("期望 Conflict，got=%v", err)
	}
	got, err := rt.ApplyMutation(context.Background(), v.ID, t0, func(m *store.Mutation) error {
		m.Village.Resources.Wood--
		return nil
	})
	if err != nil || got.Version != 3 || got.Resources.Wood != 499 {
		t.Fatalf("重试应基于最新版本成功，got=%v err=%v", got, err)
	}
}

func TestRuntime_存储不可用不改状态(t *testing.T) {
	rt, repo, clk, _ := newRuntime(t)
	v := createVillage(t, rt, 1, 1)
	repo.FailNext(errors.New("db down"))

	_, err := rt.ApplyMutation(context.Background(), v.ID, t0, func(m *store.Mutation) error {
		m.Village.Resources.Wood = 1
		_, err := m.Schedule(entity.ScheduledEvent{Kind: entity.EventTrainingComplete, Due: t0.Add(time.Hour)})
		return err
	})
	if !errors.Is(err, entity.ErrPersistenceUnavailable) {
		t.Fatalf("期望 PersistenceUnavailable，got=%v", err)
	}
	got, _ := rt.Get(context.Background(), v.ID)
	if got.Resources.Wood != 500 || clk.Len() != 0 {
		t.Fatalf("存储失败时内存状态与时钟都不应变化")
	}
}

func TestRuntime_框选查询(t *testing.T) {
	rt, _, _, _ := newRuntime(t)
	a := createVillage(t, rt, 0, 0)
	b := createVillage(t, rt, 5, 5)
	createVillage(t, rt, 20, 20)

	list, err := rt.VillagesInBox(context.Background(), 5, 5, 0, 0)
	if err != nil {
		t.Fatalf("box err=%v", err)
	}
	if len(list) != 2 || list[0].ID != a.ID || list[1].ID != b.ID {
		t.Fatalf("期望命中前两个村庄，got=%d", len(list))
	}
	if ids := rt.ListVillageIDs(context.Background()); len(ids) != 3 {
		t.Fatalf("期望 3 个村庄，got=%v", ids)
	}
}

// slowRepo 让每次提交等待 delay，期间遵守 ctx 取消。
type slowRepo struct {
	*memory.WorldRepository
	delay time.Duration
}

func (r *slowRepo) Commit(ctx context.Context, c *port.Change) error {
	select {
	case <-time.After(r.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return r.WorldRepository.Commit(ctx, c)
}

func TestRuntime_排队超时的修改不产生任何效果(t *testing.T) {
	mem := memory.NewWorldRepository()
	seed := &entity.Village{
		ID: 101, WorldID: 1, OwnerID: 7, Version: 1,
		Buildings:   map[gameconfig.BuildingType]int{gameconfig.Headquarters: 1},
		Resources:   entity.Resources{Wood: 500, Clay: 500, Iron: 500},
		LastAccrual: t0,
	}
	if err := mem.Commit(context.Background(), &port.Change{WorldID: 1, Village: seed, CreateVillage: true}); err != nil {
		t.Fatalf("seed err=%v", err)
	}
	repo := &slowRepo{WorldRepository: mem, delay: 60 * time.Millisecond}
	clk := clock.New()
	rt := NewRuntime(1, repo, clk, events.NewBus(nil), utils.NewCounter(200), 100*time.Millisecond)
	t.Cleanup(rt.Shutdown)
	if err := rt.Load(context.Background()); err != nil {
		t.Fatalf("load err=%v", err)
	}

	const n = 3
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			due := t0.Add(time.Duration(i+1) * time.Minute)
			_, errs[i] = rt.ApplyMutation(context.Background(), 101, t0, func(m *store.Mutation) error {
				m.Village.Resources.Wood -= 100
				_, err := m.Schedule(entity.ScheduledEvent{Kind: entity.EventConstructionComplete, VillageID: 101, Due: due})
				return err
			})
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, errx.ErrTimeout):
			t.Fatalf("只允许成功或超时，got=%v", err)
		}
	}
	if ok == 0 {
		t.Fatalf("第一个修改应在超时前完成，errs=%v", errs)
	}

	v, err := mem.LoadVillage(context.Background(), 1, 101)
	if err != nil {
		t.Fatalf("load village err=%v", err)
	}
	if want := int64(500 - 100*ok); v.Resources.Wood != want {
		t.Fatalf("扣费次数应等于成功次数：期望 wood=%d，got=%d", want, v.Resources.Wood)
	}
	evs, _ := mem.LoadEvents(context.Background(), 1)
	if len(evs) != ok || clk.Len() != len(evs) {
		t.Fatalf("仓储事件与时钟事件应一致：success=%d repo=%d clock=%d", ok, len(evs), clk.Len())
	}
}
