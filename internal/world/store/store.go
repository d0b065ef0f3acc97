// Package store 定义村庄状态存储的对外接口和一次原子修改的工作单元。
package store

import (
	"context"
	"time"

	"TribalRealms/internal/world/app/port"
	"TribalRealms/internal/world/entity"
	"TribalRealms/internal/world/events"
)

// MutateFunc 在村庄副本上执行修改；返回错误时整个工作单元丢弃，状态不变。
type MutateFunc func(m *Mutation) error

// Store 是村庄状态的唯一写入口，同一村庄的修改串行执行。
type Store interface {
	Get(ctx context.Context, id entity.VillageID) (*entity.Village, error)
	// ApplyMutation 对单个村庄做原子读-改-写，返回提交后的村庄。
	ApplyMutation(ctx context.Context, id entity.VillageID, now time.Time, fn MutateFunc) (*entity.Village, error)
	// ApplyWorldMutation 不涉及村庄的工作单元（周期维护事件的完成与续期）。
	ApplyWorldMutation(ctx context.Context, now time.Time, fn MutateFunc) error
	CreateVillage(ctx context.Context, v *entity.Village) (*entity.Village, error)
	GetArmy(ctx context.Context, id entity.ArmyID) (*entity.Army, error)
	ListVillageIDs(ctx context.Context) []entity.VillageID
	VillagesInBox(ctx context.Context, x0, y0, x1, y1 int) ([]*entity.Village, error)
	ListReports(ctx context.Context, villageID entity.VillageID, limit int) ([]*entity.BattleReport, error)
	// DiscardEvents 删除已判定过期的事件行。
	DiscardEvents(ctx context.Context, keys ...entity.EventKey) error
}

// Stager 给事件分配序号（由事件时钟实现）。
type Stager interface {
	Stage(ev entity.ScheduledEvent, now time.Time) (entity.ScheduledEvent, error)
}

// Mutation 是一次原子修改的工作单元。
type Mutation struct {
	Village *entity.Village
	Now     time.Time

	worldID   entity.WorldID
	stager    Stager
	change    port.Change
	published []events.Event
}

func NewMutation(worldID entity.WorldID, v *entity.Village, now time.Time, stager Stager) *Mutation {
	return &Mutation{
		Village: v,
		Now:     entity.Millis(now),
		worldID: worldID,
		stager:  stager,
	}
}

func (m *Mutation) WorldID() entity.WorldID {
	return m.worldID
}

// Schedule 在同一个提交单元里写入新事件。
func (m *Mutation) Schedule(ev entity.ScheduledEvent) (entity.ScheduledEvent, error) {
	return m.ScheduleAt(ev, m.Now)
}

// ScheduleAt 以 from 作为“当前时间”校验 due。队列链式推进时 from 是上一个事件的到期时间，
// 追赶积压事件时新事件可能已经到期，会在同一轮 tick 中继续被处理。
func (m *Mutation) ScheduleAt(ev entity.ScheduledEvent, from time.Time) (entity.ScheduledEvent, error) {
	ev.WorldID = m.worldID
	staged, err := m.stager.Stage(ev, from)
	if err != nil {
		return staged, err
	}
	m.change.NewEvents = append(m.change.NewEvents, staged)
	return staged, nil
}

// Complete 标记事件已生效，提交时删除事件行。
func (m *Mutation) Complete(ev entity.ScheduledEvent) {
	m.change.DoneEvents = append(m.change.DoneEvents, ev.Key())
}

func (m *Mutation) CreateArmy(a *entity.Army) {
	a.WorldID = m.worldID
	m.change.NewArmies = append(m.change.NewArmies, a)
}

func (m *Mutation) RemoveArmy(id entity.ArmyID) {
	m.change.DoneArmies = append(m.change.DoneArmies, id)
}

func (m *Mutation) AppendReport(r *entity.BattleReport) {
	r.WorldID = m.worldID
	m.change.Reports = append(m.change.Reports, r)
}

// Publish 登记领域事件，提交成功后才真正发布。
func (m *Mutation) Publish(e events.Event) {
	e.WorldID = m.worldID
	if e.At.IsZero() {
		e.At = m.Now
	}
	m.published = append(m.published, e)
}

// Change 生成提交内容。村庄版本号在这里 +1。
func (m *Mutation) Change(expectedVersion int64, create bool) *port.Change {
	c := m.change
	c.WorldID = m.worldID
	c.ExpectedVersion = expectedVersion
	c.CreateVillage = create
	if m.Village != nil {
		c.Village = m.Village
		if create {
			c.Village.Version = 1
		} else {
			c.Village.Version = expectedVersion + 1
		}
	}
	return &c
}

func (m *Mutation) Published() []events.Event {
	return m.published
}
