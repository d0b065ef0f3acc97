package engine

import (
	"context"
	"errors"
	"time"

	"github.com/sourcegraph/conc/pool"

	"TribalRealms/internal/world/combat"
	"TribalRealms/internal/world/command"
	"TribalRealms/internal/world/entity"
	"TribalRealms/internal/world/events"
	"TribalRealms/internal/world/store"
)

// 每个事件处理函数都重新校验前置条件：队首 id 不符、部队不存在都视为过期事件。

func (e *Engine) onConstructionComplete(ctx context.Context, ev entity.ScheduledEvent, _ time.Time) error {
	return e.applyEvent(ctx, ev, func(m *store.Mutation) error {
		v := m.Village
		if len(v.Construction) == 0 || v.Construction[0].ID != ev.ItemID {
			return entity.ErrStaleEvent.WithData("reason", "construction head mismatch")
		}
		v = e.ledger.SettleTo(v, ev.Due)
		head := v.Construction[0]
		v.Buildings[head.Building] = max(v.Buildings[head.Building], head.TargetLevel)
		v.Construction = v.Construction[1:]
		m.Complete(ev)

		if len(v.Construction) > 0 {
			next := &v.Construction[0]
			staged, err := m.ScheduleAt(entity.ScheduledEvent{
				Kind:      entity.EventConstructionComplete,
				VillageID: v.ID,
				ItemID:    next.ID,
				Due:       ev.Due.Add(next.Duration),
			}, ev.Due)
			if err != nil {
				return err
			}
			next.CompleteAt = staged.Due
		}
		m.Village = v
		m.Publish(events.Event{
			Kind:      events.QueueCompleted,
			VillageID: v.ID,
			Players:   players(v.OwnerID),
			At:        ev.Due,
			Payload: events.QueuePayload{
				Queue:    "construction",
				ItemID:   head.ID,
				Building: string(head.Building),
				Level:    head.TargetLevel,
			},
		})
		return nil
	})
}

func (e *Engine) onTrainingComplete(ctx context.Context, ev entity.ScheduledEvent, _ time.Time) error {
	return e.applyEvent(ctx, ev, func(m *store.Mutation) error {
		v := m.Village
		if len(v.Training) == 0 || v.Training[0].ID != ev.ItemID {
			return entity.ErrStaleEvent.WithData("reason", "training head mismatch")
		}
		v = e.ledger.SettleTo(v, ev.Due)
		head := v.Training[0]
		v.Garrison = v.Garrison.Add(entity.Units{head.Unit: head.Count})
		v.Training = v.Training[1:]
		m.Complete(ev)

		if len(v.Training) > 0 {
			next := &v.Training[0]
			staged, err := m.ScheduleAt(entity.ScheduledEvent{
				Kind:      entity.EventTrainingComplete,
				VillageID: v.ID,
				ItemID:    next.ID,
				Due:       ev.Due.Add(next.Duration),
			}, ev.Due)
			if err != nil {
				return err
			}
			next.CompleteAt = staged.Due
		}
		m.Village = v
		m.Publish(events.Event{
			Kind:      events.QueueCompleted,
			VillageID: v.ID,
			Players:   players(v.OwnerID),
			At:        ev.Due,
			Payload: events.QueuePayload{
				Queue:  "training",
				ItemID: head.ID,
				Unit:   string(head.Unit),
				Count:  head.Count,
			},
		})
		return nil
	})
}

func (e *Engine) onArmyArrival(ctx context.Context, ev entity.ScheduledEvent, _ time.Time) error {
	army, err := e.store.GetArmy(ctx, ev.ArmyID)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return entity.ErrStaleEvent.WithData("reason", "army not found")
		}
		return err
	}
	if army.Destination != ev.VillageID {
		return entity.ErrStaleEvent.WithData("reason", "army destination mismatch")
	}

	switch army.Intent {
	case entity.IntentReinforce:
		return e.arriveReinforce(ctx, ev, army)
	case entity.IntentReturn:
		return e.arriveReturn(ctx, ev, army)
	case entity.IntentAttack:
		return e.arriveAttack(ctx, ev, army)
	}
	return entity.ErrStaleEvent.WithData("reason", "unknown intent")
}

// arriveReinforce 支援到达：目的地属于同一玩家时并入驻军，否则作为驻扎支援保留归属。
func (e *Engine) arriveReinforce(ctx context.Context, ev entity.ScheduledEvent, army *entity.Army) error {
	return e.applyEvent(ctx, ev, func(m *store.Mutation) error {
		v := e.ledger.SettleTo(m.Village, ev.Due)
		m.Village = v
		m.Complete(ev)
		m.RemoveArmy(army.ID)
		if v.OwnerID == army.OwnerID {
			v.Garrison = v.Garrison.Add(army.Units)
		} else {
			v.Station(army.Origin, army.OwnerID, army.Units)
		}
		m.Publish(events.Event{
			Kind:      events.ReinforcementArrived,
			VillageID: v.ID,
			Players:   players(army.OwnerID, v.OwnerID),
			At:        ev.Due,
			Payload: events.ReinforcePayload{
				ArmyID: army.ID,
				Origin: army.Origin,
				Units:  army.Units,
			},
		})
		return nil
	})
}

// arriveReturn 返程部队回到出发村；出发村已易主时部队解散。
func (e *Engine) arriveReturn(ctx context.Context, ev entity.ScheduledEvent, army *entity.Army) error {
	return e.applyEvent(ctx, ev, func(m *store.Mutation) error {
		v := e.ledger.SettleTo(m.Village, ev.Due)
		m.Village = v
		m.Complete(ev)
		m.RemoveArmy(army.ID)

		dropped := v.OwnerID != army.OwnerID
		if !dropped {
			v.Garrison = v.Garrison.Add(army.Units)
			v.Resources = v.Resources.Add(army.Loot).ClampTo(v.StorageCap(e.tables))
		}
		m.Publish(events.Event{
			Kind:      events.ArmyReturned,
			VillageID: v.ID,
			Players:   players(army.OwnerID),
			At:        ev.Due,
			Payload: events.ReturnPayload{
				ArmyID:  army.ID,
				Units:   army.Units,
				Loot:    army.Loot,
				Dropped: dropped,
			},
		})
		return nil
	})
}

func (e *Engine) arriveAttack(ctx context.Context, ev entity.ScheduledEvent, army *entity.Army) error {
	origin, err := e.store.Get(ctx, army.Origin)
	if err != nil && !errors.Is(err, entity.ErrNotFound) {
		return err
	}
	return e.applyEvent(ctx, ev, func(m *store.Mutation) error {
		v := e.ledger.SettleTo(m.Village, ev.Due)
		out := e.resolver.Resolve(combat.Engagement{Army: army, Defender: v, Seq: ev.Seq, At: ev.Due})

		prevOwner := v.OwnerID
		supporters := v.Supporters()
		v.Garrison = out.Garrison
		v.Support = out.Support
		v.Resources = v.Resources.Sub(out.Loot)
		if out.Conquered {
			v.OwnerID = army.OwnerID
		}
		m.Village = v
		m.Complete(ev)
		m.RemoveArmy(army.ID)
		m.AppendReport(out.Report)

		if !out.Survivors.IsEmpty() && origin != nil {
			if err := e.sendHome(m, ev, army, v, origin, out.Survivors, out.Loot); err != nil {
				return err
			}
		}

		m.Publish(events.Event{
			Kind:      events.BattleReportCreated,
			VillageID: v.ID,
			Players:   players(append([]entity.PlayerID{army.OwnerID, prevOwner}, supporters...)...),
			At:        ev.Due,
			Payload:   out.Report,
		})
		if out.Conquered {
			m.Publish(events.Event{
				Kind:      events.VillageConquered,
				VillageID: v.ID,
				Players:   players(army.OwnerID, prevOwner),
				At:        ev.Due,
				Payload: events.ConquestPayload{
					ReportID:  out.Report.ID,
					PrevOwner: prevOwner,
					NewOwner:  army.OwnerID,
				},
			})
		}
		return nil
	})
}

// sendHome 在当前提交单元里创建返程部队并调度到达事件。
func (e *Engine) sendHome(m *store.Mutation, ev entity.ScheduledEvent, army *entity.Army, from, home *entity.Village,
	units entity.Units, loot entity.Resources) error {
	back := &entity.Army{
		ID:          entity.ArmyID(e.ids.NextID()),
		OwnerID:     army.OwnerID,
		Origin:      from.ID,
		Destination: home.ID,
		Units:       units.Clone(),
		Loot:        loot,
		Intent:      entity.IntentReturn,
		DepartAt:    ev.Due,
		ArriveAt:    ev.Due.Add(command.TravelTime(e.tables, from.Distance(home), units)),
	}
	staged, err := m.ScheduleAt(entity.ScheduledEvent{
		Kind:      entity.EventArmyArrival,
		VillageID: home.ID,
		ArmyID:    back.ID,
		Due:       back.ArriveAt,
	}, ev.Due)
	if err != nil {
		return err
	}
	back.ArriveAt = staged.Due
	m.CreateArmy(back)
	return nil
}

// onPeriodicUpkeep 把所有村庄结算到事件时刻，然后按固定节拍续期。
func (e *Engine) onPeriodicUpkeep(ctx context.Context, ev entity.ScheduledEvent, now time.Time) error {
	p := pool.New().WithMaxGoroutines(e.cfg.DispatchWorkers).WithErrors()
	for _, id := range e.store.ListVillageIDs(ctx) {
		p.Go(func() error {
			_, err := e.store.ApplyMutation(ctx, id, ev.Due, func(m *store.Mutation) error {
				m.Village = e.ledger.SettleTo(m.Village, ev.Due)
				return nil
			})
			if errors.Is(err, entity.ErrNotFound) {
				return nil
			}
			return err
		})
	}
	if err := p.Wait(); err != nil {
		return err
	}

	next := ev.Due.Add(e.cfg.UpkeepInterval)
	for !next.After(now) {
		next = next.Add(e.cfg.UpkeepInterval)
	}
	return e.store.ApplyWorldMutation(ctx, ev.Due, func(m *store.Mutation) error {
		m.Complete(ev)
		_, err := m.ScheduleAt(entity.ScheduledEvent{Kind: entity.EventPeriodicUpkeep, Due: next}, ev.Due)
		return err
	})
}

// applyEvent 对事件的目标村庄做一次修改；村庄不存在视为过期。
func (e *Engine) applyEvent(ctx context.Context, ev entity.ScheduledEvent, fn store.MutateFunc) error {
	_, err := e.store.ApplyMutation(ctx, ev.VillageID, ev.Due, fn)
	if err != nil && errors.Is(err, entity.ErrNotFound) && !errors.Is(err, entity.ErrStaleEvent) {
		return entity.ErrStaleEvent.WithCause(err)
	}
	return err
}

func players(ids ...entity.PlayerID) []entity.PlayerID {
	out := make([]entity.PlayerID, 0, len(ids))
	for _, id := range ids {
		if id == entity.Barbarian {
			continue
		}
		dup := false
		for _, o := range out {
			dup = dup || o == id
		}
		if !dup {
			out = append(out, id)
		}
	}
	return out
}
