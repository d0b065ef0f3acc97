package entity

import "time"

type Outcome string

const (
	OutcomeDefenderHeld Outcome = "defender_held"
	OutcomeAttackerWon  Outcome = "attacker_won"
	OutcomeConquered    Outcome = "conquered"
)

// BattleReport 战报，写入后不可变，只追加。
type BattleReport struct {
	ID              string    `json:"id"` // ULID
	WorldID         WorldID   `json:"world_id"`
	AttackerVillage VillageID `json:"attacker_village"`
	AttackerPlayer  PlayerID  `json:"attacker_player"`
	DefenderVillage VillageID `json:"defender_village"`
	DefenderPlayer  PlayerID  `json:"defender_player"`
	AttackerBefore  Units     `json:"attacker_before"`
	AttackerLosses  Units     `json:"attacker_losses"`
	AttackerAfter   Units     `json:"attacker_after"`
	DefenderBefore  Units     `json:"defender_before"`
	DefenderLosses  Units     `json:"defender_losses"`
	DefenderAfter   Units     `json:"defender_after"`
	Loot            Resources `json:"loot"`
	Luck            float64   `json:"luck"`
	AttackPower     float64   `json:"attack_power"`
	DefensePower    float64   `json:"defense_power"`
	Rounds          int       `json:"rounds"`
	Outcome         Outcome   `json:"outcome"`
	OccurredAt      time.Time `json:"occurred_at"`
}
