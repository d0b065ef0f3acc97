// Package ledger 负责村庄资源的连续时间结算。
//
// 产量按整数计算：每种资源累计 rate(每小时) × 经过毫秒，除以 3_600_000 得到整数产出，
// 余数留在 Village.Remainder 里带到下一次，所以任意切分的多次结算与一次结算结果相同。
package ledger

import (
	"time"

	"TribalRealms/internal/shared/gameconfig"
	"TribalRealms/internal/world/entity"
)

const msPerHour = int64(time.Hour / time.Millisecond)

var producers = map[entity.Resource]gameconfig.BuildingType{
	entity.Wood: gameconfig.Woodcutter,
	entity.Clay: gameconfig.ClayPit,
	entity.Iron: gameconfig.IronMine,
}

type Ledger struct {
	tables *gameconfig.Tables
}

func New(tables *gameconfig.Tables) *Ledger {
	return &Ledger{tables: tables}
}

// Rates 每种资源当前每小时产量。
func (l *Ledger) Rates(v *entity.Village) entity.Resources {
	var out entity.Resources
	for _, res := range entity.AllResources {
		out.Set(res, l.tables.ProductionPerHour(v.Level(producers[res])))
	}
	return out
}

// Accrue 把村庄资源结算到 at，返回新副本，不修改入参。
// at 早于上次结算时间返回 ErrInvalidTime；at 等于上次结算时间原样返回副本。
func (l *Ledger) Accrue(v *entity.Village, at time.Time) (*entity.Village, error) {
	at = entity.Millis(at)
	last := entity.Millis(v.LastAccrual)
	if at.Before(last) {
		return nil, entity.ErrInvalidTime.WithDataMap(map[string]any{
			"village_id":   v.ID,
			"at":           at,
			"last_accrual": last,
		})
	}
	out := v.Clone()
	elapsed := at.Sub(last).Milliseconds()
	if elapsed == 0 {
		return out, nil
	}

	capacity := out.StorageCap(l.tables)
	rates := l.Rates(out)
	rem := [3]*int64{&out.Remainder.Wood, &out.Remainder.Clay, &out.Remainder.Iron}
	for i, res := range entity.AllResources {
		bal := out.Resources.Get(res)
		rate := rates.Get(res)
		if rate <= 0 {
			continue
		}
		// 已满仓：产出直接丢弃，余数清零，避免出仓后瞬间补一个单位。
		if bal >= capacity {
			*rem[i] = 0
			continue
		}
		acc := rate*elapsed + *rem[i]
		gained := acc / msPerHour
		next := bal + gained
		if next >= capacity {
			next = capacity
			*rem[i] = 0
		} else {
			*rem[i] = acc % msPerHour
		}
		out.Resources.Set(res, next)
	}
	out.LastAccrual = at
	return out, nil
}

// SettleTo 等价于 Accrue，但 at 早于上次结算时间时保持原样（事件补放时使用）。
func (l *Ledger) SettleTo(v *entity.Village, at time.Time) *entity.Village {
	if entity.Millis(at).Before(entity.Millis(v.LastAccrual)) {
		return v.Clone()
	}
	out, err := l.Accrue(v, at)
	if err != nil {
		return v.Clone()
	}
	return out
}
