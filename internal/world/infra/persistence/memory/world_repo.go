// Package memory 是进程内的世界仓储，用于测试和单机预演；语义与数据库实现一致。
package memory

import (
	"context"
	"slices"
	"sync"

	"TribalRealms/internal/world/app/port"
	"TribalRealms/internal/world/entity"
)

type coordKey struct {
	world entity.WorldID
	x, y  int
}

type WorldRepository struct {
	mu       sync.Mutex
	villages map[entity.VillageID]*entity.Village
	coords   map[coordKey]entity.VillageID
	armies   map[entity.ArmyID]*entity.Army
	events   map[entity.EventKey]entity.ScheduledEvent
	reports  []*entity.BattleReport

	failNext error
	commits  int
}

var _ port.WorldRepository = (*WorldRepository)(nil)

func NewWorldRepository() *WorldRepository {
	return &WorldRepository{
		villages: make(map[entity.VillageID]*entity.Village),
		coords:   make(map[coordKey]entity.VillageID),
		armies:   make(map[entity.ArmyID]*entity.Army),
		events:   make(map[entity.EventKey]entity.ScheduledEvent),
	}
}

// FailNext 让下一次 Commit/DeleteEvents 返回 err，模拟存储不可用。
func (r *WorldRepository) FailNext(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = err
}

// Bump 在仓储侧把村庄版本号 +1，模拟另一个写入方抢先提交。
func (r *WorldRepository) Bump(id entity.VillageID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.villages[id]; ok {
		v.Version++
	}
}

// Commits 返回成功提交次数。
func (r *WorldRepository) Commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commits
}

func (r *WorldRepository) LoadVillage(ctx context.Context, worldID entity.WorldID, id entity.VillageID) (*entity.Village, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.villages[id]
	if !ok || v.WorldID != worldID {
		return nil, entity.ErrVillageNotFound
	}
	return v.Clone(), nil
}

func (r *WorldRepository) ListVillages(ctx context.Context, worldID entity.WorldID) ([]*entity.Village, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entity.Village, 0, len(r.villages))
	for _, v := range r.villages {
		if v.WorldID == worldID {
			out = append(out, v.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *entity.Village) int { return int(a.ID - b.ID) })
	return out, nil
}

func (r *WorldRepository) LoadArmy(ctx context.Context, worldID entity.WorldID, id entity.ArmyID) (*entity.Army, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.armies[id]
	if !ok || a.WorldID != worldID {
		return nil, entity.ErrArmyNotFound
	}
	return a.Clone(), nil
}

func (r *WorldRepository) LoadEvents(ctx context.Context, worldID entity.WorldID) ([]entity.ScheduledEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]entity.ScheduledEvent, 0, len(r.events))
	for _, ev := range r.events {
		if ev.WorldID == worldID {
			out = append(out, ev)
		}
	}
	slices.SortFunc(out, compareEvents)
	return out, nil
}

// ListReports 按发生时间倒序；villageID 为 0 时返回全部。
func (r *WorldRepository) ListReports(ctx context.Context, worldID entity.WorldID, villageID entity.VillageID, limit int) ([]*entity.BattleReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.BattleReport
	for i := len(r.reports) - 1; i >= 0; i-- {
		rep := r.reports[i]
		if rep.WorldID != worldID {
			continue
		}
		if villageID != 0 && rep.AttackerVillage != villageID && rep.DefenderVillage != villageID {
			continue
		}
		cp := *rep
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Commit 先整体校验再整体写入，保证全有或全无。
func (r *WorldRepository) Commit(ctx context.Context, c *port.Change) error {
	if c == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.takeFailure(); err != nil {
		return err
	}
	if v := c.Village; v != nil {
		cur, ok := r.villages[v.ID]
		switch {
		case c.CreateVillage && ok:
			return entity.ErrStaleVersion
		case c.CreateVillage:
			if _, taken := r.coords[coordKey{v.WorldID, v.X, v.Y}]; taken {
				return entity.ErrCoordinateTaken
			}
		case !ok:
			return entity.ErrVillageNotFound
		case cur.Version != c.ExpectedVersion:
			return entity.ErrStaleVersion
		}
	}

	if v := c.Village; v != nil {
		r.villages[v.ID] = v.Clone()
		r.coords[coordKey{v.WorldID, v.X, v.Y}] = v.ID
	}
	for _, ev := range c.NewEvents {
		r.events[ev.Key()] = ev
	}
	for _, k := range c.DoneEvents {
		delete(r.events, k)
	}
	for _, a := range c.NewArmies {
		r.armies[a.ID] = a.Clone()
	}
	for _, id := range c.DoneArmies {
		delete(r.armies, id)
	}
	for _, rep := range c.Reports {
		cp := *rep
		r.reports = append(r.reports, &cp)
	}
	r.commits++
	return nil
}

func (r *WorldRepository) DeleteEvents(ctx context.Context, worldID entity.WorldID, keys []entity.EventKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return err
	}
	for _, k := range keys {
		if k.WorldID == worldID {
			delete(r.events, k)
		}
	}
	return nil
}

func (r *WorldRepository) takeFailure() error {
	err := r.failNext
	r.failNext = nil
	return err
}

func compareEvents(a, b entity.ScheduledEvent) int {
	switch {
	case a.Before(b):
		return -1
	case b.Before(a):
		return 1
	}
	return 0
}
