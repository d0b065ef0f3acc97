// Package command 处理玩家指令：建造、训练、派兵、召回支援。
//
// 每条指令都是一次村庄原子修改：结算资源、校验、扣费、入队、写事件在同一个提交单元完成，
// 任一校验失败都不会留下任何状态变化。
package command

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"TribalRealms/internal/shared/gameconfig"
	"TribalRealms/internal/shared/utils"
	"TribalRealms/internal/world/entity"
	"TribalRealms/internal/world/ledger"
	"TribalRealms/internal/world/store"
	"TribalRealms/modules/kit/logx"
)

// Result 是指令成功后的回执。CompleteAt 只有立刻开始的队列项或派出的部队才有值。
type Result struct {
	Village    *entity.Village
	ItemID     int64
	ArmyID     entity.ArmyID
	CompleteAt time.Time
}

type Processor struct {
	store   store.Store
	ledger  *ledger.Ledger
	tables  *gameconfig.Tables
	ids     utils.IDGenerator
	retries int
	log     logx.Logger
}

func NewProcessor(s store.Store, tables *gameconfig.Tables, ids utils.IDGenerator, maxConflictRetries int, l logx.Logger) *Processor {
	if l == nil {
		l = logx.NewZapLogger(nil)
	}
	return &Processor{
		store:   s,
		ledger:  ledger.New(tables),
		tables:  tables,
		ids:     ids,
		retries: max(maxConflictRetries, 0),
		log:     l,
	}
}

// StartConstruction 把 building 的下一级加入建造队列；队列原本为空时立刻开工。
func (p *Processor) StartConstruction(ctx context.Context, player entity.PlayerID, villageID entity.VillageID,
	b gameconfig.BuildingType, now time.Time) (*Result, error) {
	def, ok := p.tables.Building(b)
	if !ok {
		return nil, entity.ErrUnknownBuilding.WithData("building", b)
	}

	res := &Result{}
	v, err := p.mutate(ctx, villageID, now, func(m *store.Mutation) error {
		*res = Result{}
		v, err := p.prepare(m, player)
		if err != nil {
			return err
		}

		target := v.PlannedLevel(b) + 1
		if target > def.MaxLevel {
			return entity.ErrMaxLevelReached.WithDataMap(map[string]any{"building": b, "max_level": def.MaxLevel})
		}
		if len(v.Construction) >= p.tables.Formulas.ConstructionQueue {
			return entity.ErrQueueFull.WithData("queue", "construction")
		}
		if b != gameconfig.Farm {
			delta := p.tables.BuildingPopulation(b, target) - p.tables.BuildingPopulation(b, target-1)
			if v.PopulationUsed(p.tables)+delta > v.PopulationCap(p.tables) {
				return entity.ErrInsufficientPopulation.WithData("need", delta)
			}
		}
		cost := entity.FromCost(p.tables.UpgradeCost(b, target))
		if !v.Resources.Covers(cost) {
			return entity.ErrInsufficientResources.WithDataMap(map[string]any{"cost": cost, "balance": v.Resources})
		}

		v.Resources = v.Resources.Sub(cost)
		item := entity.ConstructionItem{
			ID:          p.ids.NextID(),
			Building:    b,
			TargetLevel: target,
			Duration:    p.tables.BuildTime(b, target, v.Level(gameconfig.Headquarters)),
		}
		if len(v.Construction) == 0 {
			ev, err := m.Schedule(entity.ScheduledEvent{
				Kind:      entity.EventConstructionComplete,
				VillageID: v.ID,
				ItemID:    item.ID,
				Due:       m.Now.Add(item.Duration),
			})
			if err != nil {
				return err
			}
			item.CompleteAt = ev.Due
			res.CompleteAt = ev.Due
		}
		v.Construction = append(v.Construction, item)
		res.ItemID = item.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Village = v
	return res, nil
}

// StartTraining 把一批兵加入训练队列，整批共用一个完成事件。
func (p *Processor) StartTraining(ctx context.Context, player entity.PlayerID, villageID entity.VillageID,
	u gameconfig.UnitType, count int64, now time.Time) (*Result, error) {
	def, ok := p.tables.Unit(u)
	if !ok {
		return nil, entity.ErrUnknownUnit.WithData("unit", u)
	}

	res := &Result{}
	v, err := p.mutate(ctx, villageID, now, func(m *store.Mutation) error {
		*res = Result{}
		v, err := p.prepare(m, player)
		if err != nil {
			return err
		}

		barracks := v.Level(gameconfig.Barracks)
		if barracks <= 0 {
			return entity.ErrBuildingRequired.WithData("building", gameconfig.Barracks)
		}
		if count <= 0 {
			return entity.ErrInvalidCommand.WithData("count", count)
		}
		if limit := p.tables.TrainingQueueCap(barracks); count > limit-v.QueuedUnits() {
			return entity.ErrQueueFull.WithDataMap(map[string]any{"queue": "training", "capacity": limit})
		}
		per := p.tables.TrainingTime(u, barracks)
		if batchOverflows(def, per, count) {
			return entity.ErrInvalidCommand.WithData("count", count)
		}
		cost := entity.FromCost(def.Cost).Scale(count)
		if !v.Resources.Covers(cost) {
			return entity.ErrInsufficientResources.WithDataMap(map[string]any{"cost": cost, "balance": v.Resources})
		}
		if v.PopulationUsed(p.tables)+def.Population*count > v.PopulationCap(p.tables) {
			return entity.ErrInsufficientPopulation.WithData("need", def.Population*count)
		}

		v.Resources = v.Resources.Sub(cost)
		batch := entity.TrainingBatch{
			ID:       p.ids.NextID(),
			Unit:     u,
			Count:    count,
			Duration: per * time.Duration(count),
		}
		if len(v.Training) == 0 {
			ev, err := m.Schedule(entity.ScheduledEvent{
				Kind:      entity.EventTrainingComplete,
				VillageID: v.ID,
				ItemID:    batch.ID,
				Due:       m.Now.Add(batch.Duration),
			})
			if err != nil {
				return err
			}
			batch.CompleteAt = ev.Due
			res.CompleteAt = ev.Due
		}
		v.Training = append(v.Training, batch)
		res.ItemID = batch.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Village = v
	return res, nil
}

// batchOverflows count 个兵的花费、人口或训练时长任一超出 int64 时返回 true。
func batchOverflows(def gameconfig.Unit, per time.Duration, count int64) bool {
	for _, x := range []int64{def.Cost.Wood, def.Cost.Clay, def.Cost.Iron, def.Population, int64(per)} {
		if x > 0 && count > math.MaxInt64/x {
			return true
		}
	}
	return false
}

// DispatchArmy 从驻军中抽出部队发往 destination。
func (p *Processor) DispatchArmy(ctx context.Context, player entity.PlayerID, villageID entity.VillageID,
	req DispatchPayload, now time.Time) (*Result, error) {
	if req.Intent != entity.IntentAttack && req.Intent != entity.IntentReinforce {
		return nil, entity.ErrInvalidCommand.WithData("intent", req.Intent)
	}
	units := req.Units.Positive()
	for u, n := range req.Units {
		if _, ok := p.tables.Unit(u); !ok {
			return nil, entity.ErrUnknownUnit.WithData("unit", u)
		}
		if n < 0 {
			return nil, entity.ErrInvalidCommand.WithData("unit", u)
		}
	}
	if units.IsEmpty() {
		return nil, entity.ErrInvalidCommand.WithData("reason", "empty army")
	}
	if req.Destination == villageID {
		return nil, entity.ErrInvalidDestination.WithData("destination", req.Destination)
	}
	dest, err := p.store.Get(ctx, req.Destination)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return nil, entity.ErrInvalidDestination.WithData("destination", req.Destination)
		}
		return nil, err
	}

	res := &Result{}
	v, err := p.mutate(ctx, villageID, now, func(m *store.Mutation) error {
		*res = Result{}
		v, err := p.prepare(m, player)
		if err != nil {
			return err
		}
		if !v.Garrison.Covers(units) {
			return entity.ErrInsufficientTroops.WithDataMap(map[string]any{"garrison": v.Garrison, "need": units})
		}

		v.Garrison = v.Garrison.Sub(units)
		army := &entity.Army{
			ID:          entity.ArmyID(p.ids.NextID()),
			OwnerID:     v.OwnerID,
			Origin:      v.ID,
			Destination: dest.ID,
			Units:       units.Clone(),
			Intent:      req.Intent,
			DepartAt:    m.Now,
			ArriveAt:    m.Now.Add(TravelTime(p.tables, v.Distance(dest), units)),
		}
		ev, err := m.Schedule(entity.ScheduledEvent{
			Kind:      entity.EventArmyArrival,
			VillageID: dest.ID,
			ArmyID:    army.ID,
			Due:       army.ArriveAt,
		})
		if err != nil {
			return err
		}
		army.ArriveAt = ev.Due
		m.CreateArmy(army)
		res.ArmyID = army.ID
		res.CompleteAt = army.ArriveAt
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Village = v
	return res, nil
}

// RecallSupport 把 origin 驻扎在 req.Host 的支援撤出，作为返程部队送回 origin。
// 修改落在驻地村庄上，归属按 origin 校验。
func (p *Processor) RecallSupport(ctx context.Context, player entity.PlayerID, originID entity.VillageID,
	req RecallPayload, now time.Time) (*Result, error) {
	for u, n := range req.Units {
		if _, ok := p.tables.Unit(u); !ok {
			return nil, entity.ErrUnknownUnit.WithData("unit", u)
		}
		if n < 0 {
			return nil, entity.ErrInvalidCommand.WithData("unit", u)
		}
	}
	if req.Host == originID {
		return nil, entity.ErrInvalidDestination.WithData("host", req.Host)
	}
	origin, err := p.store.Get(ctx, originID)
	if err != nil {
		return nil, err
	}
	if !origin.IsOwnedBy(player) {
		return nil, entity.ErrNotOwner.WithDataMap(map[string]any{"village_id": originID, "player_id": player})
	}
	if _, err := p.store.Get(ctx, req.Host); err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return nil, entity.ErrInvalidDestination.WithData("host", req.Host)
		}
		return nil, err
	}

	res := &Result{}
	_, err = p.mutate(ctx, req.Host, now, func(m *store.Mutation) error {
		*res = Result{}
		host := m.Village
		units, ok := host.Withdraw(origin.ID, player, req.Units)
		if !ok {
			return entity.ErrInsufficientTroops.WithDataMap(map[string]any{
				"stationed": host.StationedFrom(origin.ID, player),
				"need":      req.Units,
			})
		}
		army := &entity.Army{
			ID:          entity.ArmyID(p.ids.NextID()),
			OwnerID:     player,
			Origin:      host.ID,
			Destination: origin.ID,
			Units:       units,
			Intent:      entity.IntentReturn,
			DepartAt:    m.Now,
			ArriveAt:    m.Now.Add(TravelTime(p.tables, host.Distance(origin), units)),
		}
		ev, err := m.Schedule(entity.ScheduledEvent{
			Kind:      entity.EventArmyArrival,
			VillageID: origin.ID,
			ArmyID:    army.ID,
			Due:       army.ArriveAt,
		})
		if err != nil {
			return err
		}
		army.ArriveAt = ev.Due
		m.CreateArmy(army)
		res.ArmyID = army.ID
		res.CompleteAt = army.ArriveAt
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Village = origin
	return res, nil
}

// TravelTime 按最慢兵种计算行军耗时，毫秒精度。
func TravelTime(t *gameconfig.Tables, distance float64, units entity.Units) time.Duration {
	var slowest time.Duration
	for u, n := range units {
		if n <= 0 {
			continue
		}
		slowest = max(slowest, t.UnitSpeed(u))
	}
	ms := math.Ceil(distance * float64(slowest.Milliseconds()))
	return time.Duration(int64(ms)) * time.Millisecond
}

// prepare 结算资源到 m.Now 并校验归属。
func (p *Processor) prepare(m *store.Mutation, player entity.PlayerID) (*entity.Village, error) {
	if !m.Village.IsOwnedBy(player) {
		return nil, entity.ErrNotOwner.WithDataMap(map[string]any{"village_id": m.Village.ID, "player_id": player})
	}
	m.Village = p.ledger.SettleTo(m.Village, m.Now)
	return m.Village, nil
}

// mutate 对并发写冲突做有限次重试；校验错误与存储错误直接返回。
func (p *Processor) mutate(ctx context.Context, id entity.VillageID, now time.Time, fn store.MutateFunc) (*entity.Village, error) {
	for attempt := 0; ; attempt++ {
		v, err := p.store.ApplyMutation(ctx, id, now, fn)
		if err == nil || !errors.Is(err, entity.ErrConflict) || attempt >= p.retries {
			return v, err
		}
		p.log.WithContext(ctx).Warn("command conflict, retrying",
			zap.Int64("village_id", int64(id)),
			zap.Int("attempt", attempt+1),
		)
	}
}
