package entity

import "time"

type Intent string

const (
	IntentAttack    Intent = "attack"
	IntentReinforce Intent = "reinforce"
	IntentReturn    Intent = "return"
)

func (i Intent) Valid() bool {
	switch i {
	case IntentAttack, IntentReinforce, IntentReturn:
		return true
	}
	return false
}

// Army 在途部队，由派兵或战斗（返程）创建，到达事件处理后销毁。
type Army struct {
	ID          ArmyID    `json:"id"`
	WorldID     WorldID   `json:"world_id"`
	OwnerID     PlayerID  `json:"owner_id"`
	Origin      VillageID `json:"origin"`
	Destination VillageID `json:"destination"`
	Units       Units     `json:"units"`
	Loot        Resources `json:"loot"`
	Intent      Intent    `json:"intent"`
	DepartAt    time.Time `json:"depart_at"`
	ArriveAt    time.Time `json:"arrive_at"`
}

func (a *Army) Clone() *Army {
	if a == nil {
		return nil
	}
	out := *a
	out.Units = a.Units.Clone()
	return &out
}
