package entity

import "time"

type EventKind string

const (
	EventConstructionComplete EventKind = "construction_complete"
	EventTrainingComplete     EventKind = "training_complete"
	EventArmyArrival          EventKind = "army_arrival"
	EventPeriodicUpkeep       EventKind = "periodic_upkeep"
)

// ScheduledEvent 是持久化的定时事件，同一世界内按 (Due, Seq) 全序。
//
// VillageID 是事件作用的村庄：建造/训练完成为本村，部队到达为目的地，
// 周期维护为 0。
type ScheduledEvent struct {
	WorldID   WorldID   `json:"world_id"`
	Due       time.Time `json:"due"`
	Seq       int64     `json:"seq"`
	Kind      EventKind `json:"kind"`
	VillageID VillageID `json:"village_id,omitempty"`
	ItemID    int64     `json:"item_id,omitempty"`
	ArmyID    ArmyID    `json:"army_id,omitempty"`
}

// EventKey 是事件的唯一键。
type EventKey struct {
	WorldID WorldID
	Due     time.Time
	Seq     int64
}

func (e ScheduledEvent) Key() EventKey {
	return EventKey{WorldID: e.WorldID, Due: e.Due, Seq: e.Seq}
}

// Before 按 (Due, Seq) 比较先后。
func (e ScheduledEvent) Before(o ScheduledEvent) bool {
	if !e.Due.Equal(o.Due) {
		return e.Due.Before(o.Due)
	}
	return e.Seq < o.Seq
}
