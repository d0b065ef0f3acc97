package combat

import (
	"math/rand/v2"
	"testing"
	"time"

	"TribalRealms/internal/shared/gameconfig"
	"TribalRealms/internal/shared/serverconfig"
	"TribalRealms/internal/world/entity"
)

func newResolver(cfg serverconfig.CombatConfig) *Resolver {
	return NewResolver(gameconfig.MustDefault(1), cfg, 42)
}

func TestFight_无人防守直接获胜(t *testing.T) {
	r := newResolver(serverconfig.CombatConfig{})
	res := r.Fight(Battle{Attacker: entity.Units{gameconfig.Swordsman: 100}})
	if !res.AttackerWon || res.Rounds != 0 || !res.AttackerLosses.IsEmpty() {
		t.Fatalf("期望无损获胜，got=%+v", res)
	}
	if res.AttackPower != 2000 {
		t.Fatalf("期望攻击力 2000，got=%v", res.AttackPower)
	}
}

func TestFight_防守方获胜(t *testing.T) {
	r := newResolver(serverconfig.CombatConfig{})
	res := r.Fight(Battle{
		Attacker: entity.Units{gameconfig.Swordsman: 10},
		Defender: entity.Units{gameconfig.Knight: 100},
		Terrain:  gameconfig.Plains,
	})
	if res.AttackerWon {
		t.Fatalf("期望防守方获胜")
	}
	if res.Rounds != 1 || !res.AttackerAfter.IsEmpty() {
		t.Fatalf("进攻方应一轮全灭，got rounds=%d after=%v", res.Rounds, res.AttackerAfter)
	}
	// (200/2800)^1.5 * 100 ≈ 1.9 → 2
	if res.DefenderAfter[gameconfig.Knight] != 98 {
		t.Fatalf("期望防守方剩 98，got=%v", res.DefenderAfter)
	}
	if res.DefensePower != 2800 {
		t.Fatalf("期望防御力 2800，got=%v", res.DefensePower)
	}
}

func TestFight_城墙与地形放大防御(t *testing.T) {
	r := newResolver(serverconfig.CombatConfig{})
	res := r.Fight(Battle{
		Attacker:  entity.Units{gameconfig.Swordsman: 10},
		Defender:  entity.Units{gameconfig.Knight: 10},
		WallLevel: 10,
		Terrain:   gameconfig.Hills,
	})
	want := 10 * 28 * 1.4 * 1.25
	if diff := res.DefensePower - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("期望防御力 %v，got=%v", want, res.DefensePower)
	}
}

func TestFight_兵力守恒(t *testing.T) {
	r := newResolver(serverconfig.CombatConfig{})
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 200; i++ {
		att := entity.Units{}
		def := entity.Units{}
		for _, u := range gameconfig.AllUnits {
			att[u] = rng.Int64N(300)
			def[u] = rng.Int64N(300)
		}
		res := r.Fight(Battle{Attacker: att, Defender: def, WallLevel: rng.IntN(21), Luck: rng.Float64()/2 - 0.25})
		for _, u := range gameconfig.AllUnits {
			if res.AttackerAfter[u]+res.AttackerLosses[u] != att[u] {
				t.Fatalf("进攻方 %s 不守恒: before=%d after=%d loss=%d", u, att[u], res.AttackerAfter[u], res.AttackerLosses[u])
			}
			if res.DefenderAfter[u]+res.DefenderLosses[u] != def[u] {
				t.Fatalf("防守方 %s 不守恒: before=%d after=%d loss=%d", u, def[u], res.DefenderAfter[u], res.DefenderLosses[u])
			}
			if res.AttackerAfter[u] < 0 || res.DefenderAfter[u] < 0 {
				t.Fatalf("兵力不能为负")
			}
		}
		if res.Rounds > r.cfg.MaxRounds {
			t.Fatalf("轮数超过上限 %d", res.Rounds)
		}
	}
}

func TestLuck_确定且在范围内(t *testing.T) {
	r := newResolver(serverconfig.CombatConfig{})
	for seq := int64(1); seq < 500; seq++ {
		l := r.Luck(seq)
		if l < -0.25 || l > 0.25 {
			t.Fatalf("luck 越界: %v", l)
		}
		if l != r.Luck(seq) {
			t.Fatalf("同一序号的 luck 应一致")
		}
	}
}

func conquestEngagement(attackerOwner entity.PlayerID) Engagement {
	return Engagement{
		Army: &entity.Army{
			ID:          9,
			OwnerID:     attackerOwner,
			Origin:      1,
			Destination: 2,
			Units:       entity.Units{gameconfig.Nobleman: 1, gameconfig.Swordsman: 200},
			Intent:      entity.IntentAttack,
		},
		Defender: &entity.Village{
			ID:        2,
			WorldID:   1,
			OwnerID:   8,
			Terrain:   gameconfig.Plains,
			Buildings: map[gameconfig.BuildingType]int{},
			Resources: entity.Resources{Wood: 1000, Clay: 1000, Iron: 1000},
			Garrison:  entity.Units{gameconfig.Swordsman: 10},
		},
		Seq: 3,
		At:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestResolve_占领与掠夺(t *testing.T) {
	r := NewResolver(gameconfig.MustDefault(1), serverconfig.CombatConfig{LuckRange: 0.0001}, 42)
	out := r.Resolve(conquestEngagement(7))
	if !out.Conquered || out.Report.Outcome != entity.OutcomeConquered {
		t.Fatalf("期望占领，got=%+v", out.Report)
	}
	if out.Survivors[gameconfig.Nobleman] != 1 || out.Survivors[gameconfig.Swordsman] != 199 {
		t.Fatalf("期望幸存 1 贵族 199 剑士，got=%v", out.Survivors)
	}
	// 负重 199*20/3 = 1326，余额 80% = 800
	if out.Loot != (entity.Resources{Wood: 800, Clay: 800, Iron: 800}) {
		t.Fatalf("期望掠夺各 800，got=%+v", out.Loot)
	}
	if !out.Garrison.IsEmpty() || out.Report.ID == "" || out.Report.DefenderPlayer != 8 {
		t.Fatalf("战报字段不完整: %+v", out.Report)
	}
}

func TestResolve_同一玩家不占领且不掠夺(t *testing.T) {
	r := newResolver(serverconfig.CombatConfig{})
	e := conquestEngagement(8)
	out := r.Resolve(e)
	if out.Conquered || out.Report.Outcome != entity.OutcomeAttackerWon {
		t.Fatalf("同一玩家不应占领，got=%s", out.Report.Outcome)
	}
	if !out.Loot.IsZero() {
		t.Fatalf("未占领且未开启 raid_loot 时不掠夺，got=%+v", out.Loot)
	}
}

func TestResolve_开启突袭掠夺(t *testing.T) {
	r := newResolver(serverconfig.CombatConfig{RaidLoot: true})
	e := conquestEngagement(7)
	e.Army.Units = entity.Units{gameconfig.Swordsman: 200}
	out := r.Resolve(e)
	if out.Conquered {
		t.Fatalf("没有贵族不能占领")
	}
	if out.Loot.IsZero() {
		t.Fatalf("开启 raid_loot 时获胜应掠夺")
	}
}

func TestSplitSurvivors_按来源拆分且总数守恒(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 200; i++ {
		before := make([]entity.Units, 1+rng.IntN(4))
		total := entity.Units{}
		for j := range before {
			before[j] = entity.Units{}
			for _, u := range gameconfig.AllUnits {
				before[j][u] = rng.Int64N(50)
			}
			total = total.Add(before[j])
		}
		alive := entity.Units{}
		for u, n := range total {
			alive[u] = rng.Int64N(n + 1)
		}

		out := splitSurvivors(before, alive)
		sum := entity.Units{}
		for j, o := range out {
			if !before[j].Covers(o) {
				t.Fatalf("来源 %d 的幸存者不能多于参战数，before=%v after=%v", j, before[j], o)
			}
			sum = sum.Add(o)
		}
		for _, u := range gameconfig.AllUnits {
			if sum[u] != alive[u] {
				t.Fatalf("%s 拆分后总数不符，期望 %d got=%d", u, alive[u], sum[u])
			}
		}
	}
}

func TestResolve_驻扎支援参与防守并保留归属(t *testing.T) {
	r := newResolver(serverconfig.CombatConfig{LuckRange: 0.0001})
	e := conquestEngagement(7)
	e.Army.Units = entity.Units{gameconfig.Swordsman: 3}
	e.Defender.Garrison = entity.Units{gameconfig.Swordsman: 1}
	e.Defender.Support = []entity.Support{{Origin: 5, OwnerID: 6, Units: entity.Units{gameconfig.Swordsman: 10}}}

	out := r.Resolve(e)
	if out.Report.Outcome != entity.OutcomeDefenderHeld || out.Report.DefenderBefore[gameconfig.Swordsman] != 11 {
		t.Fatalf("支援应计入守军，got=%+v", out.Report)
	}
	// 60 对 99：守方损失 (60/99)^1.5 ≈ 0.47，11 人剩 6；按 1:10 拆分后余数补给驻军
	if out.Garrison[gameconfig.Swordsman] != 1 {
		t.Fatalf("期望驻军剩 1，got=%v", out.Garrison)
	}
	if len(out.Support) != 1 || out.Support[0].OwnerID != 6 || out.Support[0].Origin != 5 || out.Support[0].Units[gameconfig.Swordsman] != 5 {
		t.Fatalf("期望支援剩 5 且归属不变，got=%+v", out.Support)
	}
	if len(e.Defender.Support[0].Units) != 1 || e.Defender.Support[0].Units[gameconfig.Swordsman] != 10 {
		t.Fatalf("Resolve 不应修改入参")
	}
}

func TestResolve_支援全灭时移除条目(t *testing.T) {
	r := newResolver(serverconfig.CombatConfig{})
	e := conquestEngagement(7)
	e.Defender.Support = []entity.Support{{Origin: 5, OwnerID: 6, Units: entity.Units{gameconfig.Archer: 2}}}

	out := r.Resolve(e)
	if out.Report.Outcome == entity.OutcomeDefenderHeld || len(out.Support) != 0 || !out.Garrison.IsEmpty() {
		t.Fatalf("进攻方获胜后守军与支援应全灭，got garrison=%v support=%+v", out.Garrison, out.Support)
	}
}
