package model

import (
	"fmt"

	"TribalRealms/internal/world/entity"
)

// mongodb 文档。_id 带上世界 id，多个世界可以共用集合；
// 查询用到的字段提到顶层，其余状态整体放在 state 里。

type VillageDoc struct {
	Key       string          `bson:"_id"`
	WorldID   int64           `bson:"world_id"`
	VillageID int64           `bson:"village_id"`
	X         int             `bson:"x"`
	Y         int             `bson:"y"`
	Version   int64           `bson:"version"`
	State     *entity.Village `bson:"state"`
}

type EventDoc struct {
	Key     string                `bson:"_id"`
	WorldID int64                 `bson:"world_id"`
	Due     int64                 `bson:"due"`
	Seq     int64                 `bson:"seq"`
	State   entity.ScheduledEvent `bson:"state"`
}

type ArmyDoc struct {
	Key     string       `bson:"_id"`
	WorldID int64        `bson:"world_id"`
	State   *entity.Army `bson:"state"`
}

type ReportDoc struct {
	ID              string               `bson:"_id"`
	WorldID         int64                `bson:"world_id"`
	AttackerVillage int64                `bson:"attacker_village"`
	DefenderVillage int64                `bson:"defender_village"`
	OccurredAt      int64                `bson:"occurred_at"`
	State           *entity.BattleReport `bson:"state"`
}

func VillageKey(worldID entity.WorldID, id entity.VillageID) string {
	return fmt.Sprintf("%d:%d", worldID, id)
}

func ArmyKey(worldID entity.WorldID, id entity.ArmyID) string {
	return fmt.Sprintf("%d:%d", worldID, id)
}

func EventKey(k entity.EventKey) string {
	return fmt.Sprintf("%d:%d:%d", k.WorldID, k.Due.UnixMilli(), k.Seq)
}

func VillageToDoc(v *entity.Village) *VillageDoc {
	return &VillageDoc{
		Key:       VillageKey(v.WorldID, v.ID),
		WorldID:   int64(v.WorldID),
		VillageID: int64(v.ID),
		X:         v.X,
		Y:         v.Y,
		Version:   v.Version,
		State:     v,
	}
}

// DocToVillage 还原后把时间规整成 UTC 毫秒（bson datetime 读出来是本地时区）。
func DocToVillage(d *VillageDoc) *entity.Village {
	v := d.State
	if v == nil {
		return nil
	}
	v.LastAccrual = entity.Millis(v.LastAccrual)
	for i := range v.Construction {
		v.Construction[i].CompleteAt = normalize(v.Construction[i].CompleteAt)
	}
	for i := range v.Training {
		v.Training[i].CompleteAt = normalize(v.Training[i].CompleteAt)
	}
	return v
}

func EventToDoc(ev entity.ScheduledEvent) *EventDoc {
	return &EventDoc{
		Key:     EventKey(ev.Key()),
		WorldID: int64(ev.WorldID),
		Due:     ev.Due.UnixMilli(),
		Seq:     ev.Seq,
		State:   ev,
	}
}

func DocToEvent(d *EventDoc) entity.ScheduledEvent {
	ev := d.State
	ev.Due = entity.FromMillis(d.Due)
	return ev
}

func ArmyToDoc(a *entity.Army) *ArmyDoc {
	return &ArmyDoc{Key: ArmyKey(a.WorldID, a.ID), WorldID: int64(a.WorldID), State: a}
}

func DocToArmy(d *ArmyDoc) *entity.Army {
	a := d.State
	if a == nil {
		return nil
	}
	a.DepartAt = entity.Millis(a.DepartAt)
	a.ArriveAt = entity.Millis(a.ArriveAt)
	return a
}

func ReportToDoc(r *entity.BattleReport) *ReportDoc {
	return &ReportDoc{
		ID:              r.ID,
		WorldID:         int64(r.WorldID),
		AttackerVillage: int64(r.AttackerVillage),
		DefenderVillage: int64(r.DefenderVillage),
		OccurredAt:      r.OccurredAt.UnixMilli(),
		State:           r,
	}
}

func DocToReport(d *ReportDoc) *entity.BattleReport {
	r := d.State
	if r != nil {
		r.OccurredAt = entity.Millis(r.OccurredAt)
	}
	return r
}
