// Package actor 用 protoactor 实现村庄状态存储：每个村庄一个 actor，
// Runtime 对外暴露 store.Store，并在提交成功后驱动事件时钟和领域事件总线。
package actor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	protoactor "github.com/asynkron/protoactor-go/actor"

	"TribalRealms/internal/shared/utils"
	"TribalRealms/internal/world/actors"
	"TribalRealms/internal/world/app/port"
	"TribalRealms/internal/world/clock"
	"TribalRealms/internal/world/entity"
	"TribalRealms/internal/world/events"
	"TribalRealms/internal/world/store"
	"TribalRealms/modules/kit/errx"
)

const (
	defaultAskTimeout = 3 * time.Second
	// replyGrace 是截止时间之后继续等待应答的余量：actor 在截止时间前一定会给出结果，
	// 调用方多等这一小段，拿到的超时就只可能来自“未执行”。
	replyGrace = 200 * time.Millisecond
)

type coord struct {
	x, y int
}

type Runtime struct {
	system  *protoactor.ActorSystem
	root    *protoactor.RootContext
	manager *protoactor.PID
	timeout time.Duration

	worldID entity.WorldID
	repo    port.WorldRepository
	clock   *clock.Clock
	bus     *events.Bus
	ids     utils.IDGenerator

	// 坐标索引：村庄坐标创建后不变，用于框选查询和唯一性预检。
	mu       sync.RWMutex
	coords   map[coord]entity.VillageID
	villages map[entity.VillageID]coord
}

var _ store.Store = (*Runtime)(nil)

func NewRuntime(worldID entity.WorldID, repo port.WorldRepository, clk *clock.Clock, bus *events.Bus,
	ids utils.IDGenerator, askTimeout time.Duration) *Runtime {
	if askTimeout <= 0 {
		askTimeout = defaultAskTimeout
	}

	system := protoactor.NewActorSystem()
	root := system.Root
	managerProps := protoactor.PropsFromProducer(func() protoactor.Actor {
		return actors.NewManagerActor(repo, worldID, askTimeout)
	})
	manager := root.Spawn(managerProps)

	return &Runtime{
		system:   system,
		root:     root,
		manager:  manager,
		timeout:  askTimeout,
		worldID:  worldID,
		repo:     repo,
		clock:    clk,
		bus:      bus,
		ids:      ids,
		coords:   make(map[coord]entity.VillageID),
		villages: make(map[entity.VillageID]coord),
	}
}

// Load 从仓储重建坐标索引，启动时调用一次。
func (r *Runtime) Load(ctx context.Context) error {
	list, err := r.repo.ListVillages(ctx, r.worldID)
	if err != nil {
		return entity.ErrPersistenceUnavailable.WithCause(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range list {
		r.indexLocked(v)
	}
	return nil
}

func (r *Runtime) Shutdown() {
	if r == nil {
		return
	}
	if r.root != nil && r.manager != nil {
		_ = r.root.StopFuture(r.manager).Wait()
	}
	if r.system != nil {
		r.system.Shutdown()
	}
}

func (r *Runtime) WorldID() entity.WorldID {
	return r.worldID
}

func (r *Runtime) Get(ctx context.Context, id entity.VillageID) (*entity.Village, error) {
	reply, err := r.request(ctx, r.deadline(ctx), &actors.GetVillage{ID: id})
	if err != nil {
		return nil, err
	}
	return reply.Village, nil
}

func (r *Runtime) ApplyMutation(ctx context.Context, id entity.VillageID, now time.Time, fn store.MutateFunc) (*entity.Village, error) {
	if !r.exists(id) {
		return nil, entity.ErrNotFound.WithData("village_id", id)
	}
	deadline := r.deadline(ctx)
	reply, err := r.request(ctx, deadline, &actors.MutateVillage{
		ID:        id,
		Now:       now,
		Fn:        fn,
		Stager:    r.clock,
		Deadline:  deadline,
		Committed: r.onCommitted(ctx),
	})
	if err != nil {
		return nil, err
	}
	return reply.Village, nil
}

// ApplyWorldMutation 直接提交到仓储，不经过任何村庄 actor。
func (r *Runtime) ApplyWorldMutation(ctx context.Context, now time.Time, fn store.MutateFunc) error {
	m := store.NewMutation(r.worldID, nil, now, r.clock)
	if err := fn(m); err != nil {
		return err
	}
	if m.Village != nil {
		return errx.ErrInternal.WithData("reason", "world mutation must not write a village")
	}
	change := m.Change(0, false)
	if change.Empty() {
		r.afterCommit(ctx, nil, m.Published())
		return nil
	}
	if err := r.repo.Commit(ctx, change); err != nil {
		return entity.ErrPersistenceUnavailable.WithCause(err)
	}
	r.afterCommit(ctx, change, m.Published())
	return nil
}

// CreateVillage 分配 id（为 0 时）并写入新村庄；坐标已被占用返回 ErrConflict。
func (r *Runtime) CreateVillage(ctx context.Context, v *entity.Village) (*entity.Village, error) {
	if v == nil {
		return nil, errx.ErrReqParamERR
	}
	v = v.Clone()
	if v.ID == 0 {
		v.ID = entity.VillageID(r.ids.NextID())
	}
	v.WorldID = r.worldID
	if r.coordTaken(v.X, v.Y) {
		return nil, entity.ErrConflict.WithCause(entity.ErrCoordinateTaken).WithDataMap(map[string]any{"x": v.X, "y": v.Y})
	}

	deadline := r.deadline(ctx)
	reply, err := r.request(ctx, deadline, &actors.CreateVillage{
		Village:   v,
		Now:       v.LastAccrual,
		Stager:    r.clock,
		Deadline:  deadline,
		Committed: r.onCommitted(ctx),
	})
	if err != nil {
		return nil, err
	}
	return reply.Village, nil
}

func (r *Runtime) GetArmy(ctx context.Context, id entity.ArmyID) (*entity.Army, error) {
	a, err := r.repo.LoadArmy(ctx, r.worldID, id)
	if err != nil {
		if errors.Is(err, entity.ErrArmyNotFound) {
			return nil, entity.ErrNotFound.WithData("army_id", id)
		}
		return nil, entity.ErrPersistenceUnavailable.WithCause(err).WithData("army_id", id)
	}
	return a, nil
}

func (r *Runtime) ListVillageIDs(ctx context.Context) []entity.VillageID {
	r.mu.RLock()
	ids := make([]entity.VillageID, 0, len(r.villages))
	for id := range r.villages {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// VillagesInBox 返回坐标落在闭区间 [x0,x1]×[y0,y1] 内的村庄，按 id 排序。
func (r *Runtime) VillagesInBox(ctx context.Context, x0, y0, x1, y1 int) ([]*entity.Village, error) {
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	r.mu.RLock()
	var ids []entity.VillageID
	for id, c := range r.villages {
		if c.x >= x0 && c.x <= x1 && c.y >= y0 && c.y <= y1 {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()
	slices.Sort(ids)

	out := make([]*entity.Village, 0, len(ids))
	for _, id := range ids {
		v, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *Runtime) ListReports(ctx context.Context, villageID entity.VillageID, limit int) ([]*entity.BattleReport, error) {
	list, err := r.repo.ListReports(ctx, r.worldID, villageID, limit)
	if err != nil {
		return nil, entity.ErrPersistenceUnavailable.WithCause(err)
	}
	return list, nil
}

func (r *Runtime) DiscardEvents(ctx context.Context, keys ...entity.EventKey) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.repo.DeleteEvents(ctx, r.worldID, keys); err != nil {
		return entity.ErrPersistenceUnavailable.WithCause(err)
	}
	return nil
}

// onCommitted 返回在村庄 actor 内、提交成功后立即执行的回调。
// 调用方即使已经超时返回，已落库的事件也会进入时钟，新村庄也会进入坐标索引。
func (r *Runtime) onCommitted(ctx context.Context) actors.CommitHook {
	return func(change *port.Change, published []events.Event) {
		if change != nil && change.CreateVillage && change.Village != nil {
			r.mu.Lock()
			r.indexLocked(change.Village)
			r.mu.Unlock()
		}
		r.afterCommit(ctx, change, published)
	}
}

// afterCommit 提交成功后：新事件进内存队列，再发布领域事件。
func (r *Runtime) afterCommit(ctx context.Context, change *port.Change, published []events.Event) {
	if change != nil && r.clock != nil {
		r.clock.Admit(change.NewEvents...)
	}
	if r.bus != nil && len(published) > 0 {
		r.bus.Publish(ctx, published...)
	}
}

func (r *Runtime) exists(id entity.VillageID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.villages[id]
	return ok
}

func (r *Runtime) coordTaken(x, y int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.coords[coord{x, y}]
	return ok
}

func (r *Runtime) indexLocked(v *entity.Village) {
	if v == nil {
		return
	}
	c := coord{v.X, v.Y}
	r.coords[c] = v.ID
	r.villages[v.ID] = c
}

// request 把 deadline 一并交给 actor；actor 过了 deadline 不再执行修改，
// 这里在 deadline 之后再多等 replyGrace 收取应答。
func (r *Runtime) request(ctx context.Context, deadline time.Time, msg any) (*actors.Reply, error) {
	if r == nil || r.root == nil {
		return nil, errx.ErrInternal.WithData("reason", "actor runtime 未初始化")
	}
	if err := ctx.Err(); err != nil {
		return nil, errx.ErrTimeout.WithCause(err)
	}

	wait := time.Until(deadline)
	if wait < 0 {
		wait = 0
	}
	future := r.root.RequestFuture(r.manager, msg, wait+replyGrace)
	res, err := future.Result()
	if err != nil {
		return nil, errx.ErrTimeout.WithCause(err).WithData("reason", "actor 请求失败")
	}
	reply, ok := res.(*actors.Reply)
	if !ok || reply == nil {
		return nil, errx.ErrInternal.WithCause(fmt.Errorf("unexpected actor reply %T", res))
	}
	if reply.Err != nil {
		return nil, reply.Err
	}
	return reply, nil
}

// deadline 取 ctx 截止时间与 ask 超时中较早的一个。
func (r *Runtime) deadline(ctx context.Context) time.Time {
	timeout := defaultAskTimeout
	if r != nil && r.timeout > 0 {
		timeout = r.timeout
	}
	deadline := time.Now().Add(timeout)
	if ctx == nil {
		return deadline
	}
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		return d
	}
	return deadline
}
