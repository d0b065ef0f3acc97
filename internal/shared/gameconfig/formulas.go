package gameconfig

import (
	"math"
	"time"
)

// 所有公式结果向下取整，和原版整数结算保持一致。

func grow(base, growth float64, exp int) float64 {
	if exp <= 0 {
		return base
	}
	return base * math.Pow(growth, float64(exp))
}

// UpgradeCost 升级到 targetLevel 的花费：base * cost_growth^(target-1)。
func (t *Tables) UpgradeCost(b BuildingType, targetLevel int) Cost {
	def, ok := t.Buildings[b]
	if !ok || targetLevel <= 0 {
		return Cost{}
	}
	exp := targetLevel - 1
	g := t.Formulas.CostGrowth
	return Cost{
		Wood: int64(grow(float64(def.BaseCost.Wood), g, exp)),
		Clay: int64(grow(float64(def.BaseCost.Clay), g, exp)),
		Iron: int64(grow(float64(def.BaseCost.Iron), g, exp)),
	}
}

// BuildTime 升级到 targetLevel 的耗时，受世界速度和总部等级影响。
func (t *Tables) BuildTime(b BuildingType, targetLevel, hqLevel int) time.Duration {
	def, ok := t.Buildings[b]
	if !ok || targetLevel <= 0 {
		return 0
	}
	baseMs := float64(def.BaseBuildTime.Milliseconds()) / t.Speed
	ms := grow(baseMs, t.Formulas.BuildTimeGrowth, targetLevel-1) * t.reduction(t.Formulas.HQReductionPerLevel, hqLevel)
	return time.Duration(int64(ms)) * time.Millisecond
}

// reduction 每级 (level-1)*perLevel 的耗时折扣，封顶 max_time_reduction。
func (t *Tables) reduction(perLevel float64, level int) float64 {
	if level <= 1 {
		return 1
	}
	r := float64(level-1) * perLevel
	if r > t.Formulas.MaxTimeReduction {
		r = t.Formulas.MaxTimeReduction
	}
	return 1 - r
}

// BuildingPopulation 某建筑在 level 级时占用的人口。
func (t *Tables) BuildingPopulation(b BuildingType, level int) int64 {
	def, ok := t.Buildings[b]
	if !ok || level <= 0 {
		return 0
	}
	return int64(grow(float64(def.BasePopulation), t.Formulas.PopulationGrowth, level-1))
}

// ProductionPerHour 产出建筑在 level 级时每小时的产量（已乘世界速度）。
func (t *Tables) ProductionPerHour(level int) int64 {
	if level <= 0 {
		return 0
	}
	return int64(grow(t.Formulas.ProductionBase*t.Speed, t.Formulas.ProductionGrowth, level-1))
}

// StorageCap 仓库容量，三种资源各自独立封顶。
func (t *Tables) StorageCap(level int) int64 {
	return int64(grow(t.Formulas.StorageBase, t.Formulas.StorageGrowth, max(level, 1)-1))
}

// FarmCap 农场可供养的人口上限。
func (t *Tables) FarmCap(level int) int64 {
	return int64(grow(t.Formulas.FarmBase, t.Formulas.FarmGrowth, max(level, 1)-1))
}

// TrainingTime 单个兵的训练耗时，受世界速度和兵营等级影响。
func (t *Tables) TrainingTime(u UnitType, barracksLevel int) time.Duration {
	def, ok := t.Units[u]
	if !ok {
		return 0
	}
	baseMs := float64(def.TrainTime.Milliseconds()) / t.Speed
	ms := baseMs * t.reduction(t.Formulas.BarracksReductionPerLevel, barracksLevel)
	return time.Duration(int64(ms)) * time.Millisecond
}

// TrainingQueueCap 训练队列可容纳的兵数（原版用于防止拿兵营囤资源）。
func (t *Tables) TrainingQueueCap(barracksLevel int) int64 {
	if barracksLevel <= 0 {
		return 0
	}
	return t.Formulas.TrainingQueueBase + t.Formulas.TrainingQueuePerLevel*int64(barracksLevel-1)
}

// WallBonus 城墙防御倍率。
func (t *Tables) WallBonus(level int) float64 {
	if level <= 0 {
		return 1
	}
	return 1 + t.Formulas.WallBonusPerLevel*float64(level)
}

// TerrainDefense 地形防御倍率，未配置的地形按 1 处理。
func (t *Tables) TerrainDefense(terrain Terrain) float64 {
	if v, ok := t.Terrain[terrain]; ok && v > 0 {
		return v
	}
	return 1
}

// UnitSpeed 单位每格耗时（已按世界速度换算）。
func (t *Tables) UnitSpeed(u UnitType) time.Duration {
	def, ok := t.Units[u]
	if !ok {
		return 0
	}
	return time.Duration(float64(def.Speed) / t.Speed)
}
