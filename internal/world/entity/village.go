package entity

import (
	"math"
	"time"

	"TribalRealms/internal/shared/gameconfig"
)

// Remainder 记录每种资源累计产出中不足 1 的部分（单位：资源·毫秒/小时），
// 保证多次细粒度结算与一次整段结算结果一致。
type Remainder struct {
	Wood int64 `json:"wood"`
	Clay int64 `json:"clay"`
	Iron int64 `json:"iron"`
}

type ConstructionItem struct {
	ID          int64                   `json:"id"`
	Building    gameconfig.BuildingType `json:"building"`
	TargetLevel int                     `json:"target_level"`
	Duration    time.Duration           `json:"duration"`
	CompleteAt  time.Time               `json:"complete_at,omitempty"` // 只有队首有值
}

type TrainingBatch struct {
	ID         int64               `json:"id"`
	Unit       gameconfig.UnitType `json:"unit"`
	Count      int64               `json:"count"`
	Duration   time.Duration       `json:"duration"` // 整批耗时
	CompleteAt time.Time           `json:"complete_at,omitempty"`
}

type Village struct {
	ID           VillageID                       `json:"id"`
	WorldID      WorldID                         `json:"world_id"`
	OwnerID      PlayerID                        `json:"owner_id"`
	Name         string                          `json:"name"`
	X            int                             `json:"x"`
	Y            int                             `json:"y"`
	Terrain      gameconfig.Terrain              `json:"terrain"`
	Buildings    map[gameconfig.BuildingType]int `json:"buildings"`
	Resources    Resources                       `json:"resources"`
	Remainder    Remainder                       `json:"remainder"`
	LastAccrual  time.Time                       `json:"last_accrual"`
	Garrison     Units                           `json:"garrison"`
	Support      []Support                       `json:"support"`
	Construction []ConstructionItem              `json:"construction"`
	Training     []TrainingBatch                 `json:"training"`
	Version      int64                           `json:"version"`
}

// Clone 深拷贝，mutation 永远作用在副本上，提交成功才替换。
func (v *Village) Clone() *Village {
	if v == nil {
		return nil
	}
	out := *v
	out.Buildings = make(map[gameconfig.BuildingType]int, len(v.Buildings))
	for k, lvl := range v.Buildings {
		out.Buildings[k] = lvl
	}
	out.Garrison = v.Garrison.Clone()
	if v.Support != nil {
		out.Support = make([]Support, len(v.Support))
		for i, s := range v.Support {
			out.Support[i] = Support{Origin: s.Origin, OwnerID: s.OwnerID, Units: s.Units.Clone()}
		}
	}
	out.Construction = append([]ConstructionItem(nil), v.Construction...)
	out.Training = append([]TrainingBatch(nil), v.Training...)
	return &out
}

func (v *Village) Level(b gameconfig.BuildingType) int {
	return v.Buildings[b]
}

// PlannedLevel 当前等级加上建造队列里同类建筑的排队数。
func (v *Village) PlannedLevel(b gameconfig.BuildingType) int {
	lvl := v.Buildings[b]
	for _, item := range v.Construction {
		if item.Building == b {
			lvl++
		}
	}
	return lvl
}

// QueuedUnits 训练队列中的兵数合计。
func (v *Village) QueuedUnits() int64 {
	var n int64
	for _, b := range v.Training {
		n += b.Count
	}
	return n
}

// PopulationUsed 建筑（按计划等级）+ 驻军 + 训练中的兵。出征部队不计入。
func (v *Village) PopulationUsed(t *gameconfig.Tables) int64 {
	var used int64
	for _, b := range gameconfig.AllBuildings {
		used += t.BuildingPopulation(b, v.PlannedLevel(b))
	}
	for u, n := range v.Garrison {
		if def, ok := t.Unit(u); ok {
			used += def.Population * n
		}
	}
	for _, b := range v.Training {
		if def, ok := t.Unit(b.Unit); ok {
			used += def.Population * b.Count
		}
	}
	return used
}

func (v *Village) PopulationCap(t *gameconfig.Tables) int64 {
	return t.FarmCap(v.Level(gameconfig.Farm))
}

func (v *Village) StorageCap(t *gameconfig.Tables) int64 {
	return t.StorageCap(v.Level(gameconfig.Storage))
}

// Distance 两村之间的欧氏距离（格）。
func (v *Village) Distance(o *Village) float64 {
	dx := float64(v.X - o.X)
	dy := float64(v.Y - o.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

// IsOwnedBy 野蛮村（owner=0）不属于任何玩家。
func (v *Village) IsOwnedBy(p PlayerID) bool {
	return p != Barbarian && v.OwnerID == p
}
