// Package combat 结算部队到达时的攻防战斗：兵力、损失、掠夺、占领和战报。
package combat

import (
	"iter"
	"math"
	"math/bits"
	"math/rand/v2"
	"time"

	"github.com/oklog/ulid/v2"

	"TribalRealms/internal/shared/gameconfig"
	"TribalRealms/internal/shared/serverconfig"
	"TribalRealms/internal/world/entity"
)

type Resolver struct {
	tables *gameconfig.Tables
	cfg    serverconfig.CombatConfig
	seed   uint64
}

func NewResolver(tables *gameconfig.Tables, cfg serverconfig.CombatConfig, worldSeed uint64) *Resolver {
	return &Resolver{tables: tables, cfg: cfg.WithDefaults(), seed: worldSeed}
}

// Luck 由世界种子和事件序号确定，同一事件重放得到同样的结果。
func (r *Resolver) Luck(seq int64) float64 {
	rng := rand.New(rand.NewPCG(r.seed, uint64(seq)))
	return (rng.Float64()*2 - 1) * r.cfg.LuckRange
}

// Battle 是一次交战的输入。
type Battle struct {
	Attacker  entity.Units
	Defender  entity.Units
	WallLevel int
	Terrain   gameconfig.Terrain
	Luck      float64
}

// Result 是交战结果。AttackPower/DefensePower 为首轮（含运气、城墙、地形）的总兵力。
type Result struct {
	AttackerAfter  entity.Units
	AttackerLosses entity.Units
	DefenderAfter  entity.Units
	DefenderLosses entity.Units
	AttackPower    float64
	DefensePower   float64
	Rounds         int
	AttackerWon    bool
}

// Fight 按近战/远程拆分交战，多轮直到一方被消灭或进攻方失去攻击力。
//
// 每轮中防守兵按进攻方近战/远程攻击力占比拆到两个战场；
// 战场上弱的一方全灭，强的一方损失 (弱/强)^1.5，平局双方全灭。
func (r *Resolver) Fight(b Battle) Result {
	att := b.Attacker.Positive()
	def := b.Defender.Positive()
	defMod := r.tables.WallBonus(b.WallLevel) * r.tables.TerrainDefense(b.Terrain)

	res := Result{}
	for round := 0; round < r.cfg.MaxRounds && !att.IsEmpty() && !def.IsEmpty(); round++ {
		melee, ranged := r.attackPower(att, b.Luck)
		total := melee + ranged
		if total <= 0 {
			break
		}
		meleeShare := melee / total
		rangedShare := ranged / total

		var meleeDef, rangedDef float64
		for u, n := range ordered(def) {
			unit, _ := r.tables.Unit(u)
			meleeDef += float64(n) * meleeShare * float64(unit.DefenseMelee) * defMod
			rangedDef += float64(n) * rangedShare * float64(unit.DefenseRanged) * defMod
		}
		if round == 0 {
			res.AttackPower = total
			res.DefensePower = meleeDef + rangedDef
		}

		meleeAttLoss, meleeDefLoss := engage(melee, meleeDef)
		rangedAttLoss, rangedDefLoss := engage(ranged, rangedDef)

		nextAtt := make(entity.Units, len(att))
		for u, n := range ordered(att) {
			ratio := meleeAttLoss
			if unit, _ := r.tables.Unit(u); unit.Class == gameconfig.ClassRanged {
				ratio = rangedAttLoss
			}
			lost := min(n, int64(math.RoundToEven(float64(n)*ratio)))
			nextAtt[u] = n - lost
		}
		nextDef := make(entity.Units, len(def))
		for u, n := range ordered(def) {
			lossF := float64(n)*meleeShare*meleeDefLoss + float64(n)*rangedShare*rangedDefLoss
			lost := int64(math.RoundToEven(math.Min(float64(n), lossF)))
			nextDef[u] = n - lost
		}
		att, def = nextAtt.Positive(), nextDef.Positive()
		res.Rounds++
	}
	if res.Rounds == 0 && def.IsEmpty() {
		// 无人防守：不交战，攻击力照常记录，用于判定占领。
		melee, ranged := r.attackPower(att, b.Luck)
		res.AttackPower = melee + ranged
	}

	res.AttackerAfter = att
	res.DefenderAfter = def
	res.AttackerLosses = b.Attacker.Positive().Sub(att)
	res.DefenderLosses = b.Defender.Positive().Sub(def)
	res.AttackerWon = !att.IsEmpty() && def.IsEmpty()
	return res
}

func (r *Resolver) attackPower(att entity.Units, luck float64) (melee, ranged float64) {
	for u, n := range ordered(att) {
		unit, ok := r.tables.Unit(u)
		if !ok {
			continue
		}
		p := float64(n) * float64(unit.Attack) * (1 + luck)
		if unit.Class == gameconfig.ClassRanged {
			ranged += p
		} else {
			melee += p
		}
	}
	return melee, ranged
}

// ordered 按固定兵种顺序遍历，保证浮点累加顺序一致。
func ordered(units entity.Units) iter.Seq2[gameconfig.UnitType, int64] {
	return func(yield func(gameconfig.UnitType, int64) bool) {
		for _, u := range gameconfig.AllUnits {
			n := units[u]
			if n <= 0 {
				continue
			}
			if !yield(u, n) {
				return
			}
		}
	}
}

// engage 返回单个战场上双方的损失比例。
func engage(attack, defense float64) (attLoss, defLoss float64) {
	switch {
	case attack <= 0:
		return 0, 0
	case attack > defense:
		return math.Pow(defense/attack, 1.5), 1
	case defense > attack:
		return 1, math.Pow(attack/defense, 1.5)
	default:
		return 1, 1
	}
}

// Conquers 判定是否占领：进攻方获胜，首轮攻击力超过防御力的 (1+阈值) 倍，幸存者里有可占领兵种。
func (r *Resolver) Conquers(res Result) bool {
	if !res.AttackerWon {
		return false
	}
	if res.AttackPower <= res.DefensePower*(1+r.cfg.ConquestThreshold) {
		return false
	}
	for u, n := range res.AttackerAfter {
		if unit, ok := r.tables.Unit(u); ok && unit.Conquers && n > 0 {
			return true
		}
	}
	return false
}

// CarryCapacity 部队总负重。
func (r *Resolver) CarryCapacity(units entity.Units) int64 {
	var total int64
	for u, n := range units {
		if unit, ok := r.tables.Unit(u); ok && n > 0 {
			total += unit.Carry * n
		}
	}
	return total
}

// Loot 每种资源取 min(余额*loot_fraction, 负重/3)。
func (r *Resolver) Loot(balance entity.Resources, survivors entity.Units) entity.Resources {
	share := r.CarryCapacity(survivors) / int64(len(entity.AllResources))
	var out entity.Resources
	for _, res := range entity.AllResources {
		take := int64(math.Floor(float64(balance.Get(res)) * r.cfg.LootFraction))
		out.Set(res, max(0, min(take, share)))
	}
	return out
}

// Engagement 是一次攻击到达的完整输入。Defender 已结算到到达时刻。
type Engagement struct {
	Army     *entity.Army
	Defender *entity.Village
	Seq      int64
	At       time.Time
}

// Outcome 是攻击到达的完整结果，由调用方写回村庄并生成返程部队。
// Garrison 与 Support 是守军按来源拆分后的幸存者，Support 已去掉全灭的条目。
type Outcome struct {
	Report    *entity.BattleReport
	Survivors entity.Units
	Loot      entity.Resources
	Garrison  entity.Units
	Support   []entity.Support
	Conquered bool
}

// Resolve 结算一次攻击。不修改入参。
func (r *Resolver) Resolve(e Engagement) *Outcome {
	luck := r.Luck(e.Seq)
	defenders := e.Defender.Defenders()
	res := r.Fight(Battle{
		Attacker:  e.Army.Units,
		Defender:  defenders,
		WallLevel: e.Defender.Level(gameconfig.Wall),
		Terrain:   e.Defender.Terrain,
		Luck:      luck,
	})

	conquered := e.Army.OwnerID != e.Defender.OwnerID && r.Conquers(res)
	var loot entity.Resources
	if conquered || (r.cfg.RaidLoot && res.AttackerWon) {
		loot = r.Loot(e.Defender.Resources, res.AttackerAfter)
	}

	outcome := entity.OutcomeDefenderHeld
	switch {
	case conquered:
		outcome = entity.OutcomeConquered
	case res.AttackerWon:
		outcome = entity.OutcomeAttackerWon
	}

	at := entity.Millis(e.At)
	report := &entity.BattleReport{
		ID:              ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String(),
		WorldID:         e.Defender.WorldID,
		AttackerVillage: e.Army.Origin,
		AttackerPlayer:  e.Army.OwnerID,
		DefenderVillage: e.Defender.ID,
		DefenderPlayer:  e.Defender.OwnerID,
		AttackerBefore:  e.Army.Units.Positive(),
		AttackerLosses:  res.AttackerLosses,
		AttackerAfter:   res.AttackerAfter,
		DefenderBefore:  defenders.Positive(),
		DefenderLosses:  res.DefenderLosses,
		DefenderAfter:   res.DefenderAfter,
		Loot:            loot,
		Luck:            luck,
		AttackPower:     res.AttackPower,
		DefensePower:    res.DefensePower,
		Rounds:          res.Rounds,
		Outcome:         outcome,
		OccurredAt:      at,
	}
	before := make([]entity.Units, 0, 1+len(e.Defender.Support))
	before = append(before, e.Defender.Garrison.Positive())
	for _, sp := range e.Defender.Support {
		before = append(before, sp.Units.Positive())
	}
	after := splitSurvivors(before, res.DefenderAfter)

	var support []entity.Support
	for i, sp := range e.Defender.Support {
		if left := after[i+1]; !left.IsEmpty() {
			support = append(support, entity.Support{Origin: sp.Origin, OwnerID: sp.OwnerID, Units: left})
		}
	}
	return &Outcome{
		Report:    report,
		Survivors: res.AttackerAfter,
		Loot:      loot,
		Garrison:  after[0],
		Support:   support,
		Conquered: conquered,
	}
}

// splitSurvivors 把幸存守军按参战比例分回各来源：每个兵种先按比例向下取整，
// 余数按来源顺序（驻军在前）逐个补齐，总数与 survivors 一致。
func splitSurvivors(before []entity.Units, survivors entity.Units) []entity.Units {
	out := make([]entity.Units, len(before))
	for i := range out {
		out[i] = entity.Units{}
	}
	for u, alive := range ordered(survivors) {
		var total int64
		for _, b := range before {
			total += b[u]
		}
		if total <= 0 {
			continue
		}
		alive = min(alive, total)
		left := alive
		for i, b := range before {
			if b[u] <= 0 {
				continue
			}
			hi, lo := bits.Mul64(uint64(b[u]), uint64(alive))
			q, _ := bits.Div64(hi, lo, uint64(total))
			out[i][u] = int64(q)
			left -= int64(q)
		}
		for i, b := range before {
			if left == 0 {
				break
			}
			if out[i][u] < b[u] {
				out[i][u]++
				left--
			}
		}
	}
	for i := range out {
		out[i] = out[i].Positive()
	}
	return out
}
