package model

import (
	"encoding/json"
	"fmt"
	"time"

	"TribalRealms/internal/shared/gameconfig"
	"TribalRealms/internal/world/entity"
)

func VillageToRow(v *entity.Village) (*Village, error) {
	row := &Village{
		WorldID:     int64(v.WorldID),
		ID:          int64(v.ID),
		OwnerID:     int64(v.OwnerID),
		Name:        v.Name,
		X:           v.X,
		Y:           v.Y,
		Terrain:     string(v.Terrain),
		LastAccrual: v.LastAccrual.UnixMilli(),
		Version:     v.Version,
	}
	var err error
	enc := func(dst *string, src any) {
		if err != nil {
			return
		}
		var b []byte
		b, err = json.Marshal(src)
		*dst = string(b)
	}
	enc(&row.Buildings, v.Buildings)
	enc(&row.Resources, v.Resources)
	enc(&row.Remainder, v.Remainder)
	enc(&row.Garrison, v.Garrison)
	enc(&row.Support, v.Support)
	enc(&row.Construction, v.Construction)
	enc(&row.Training, v.Training)
	if err != nil {
		return nil, fmt.Errorf("encode village %d: %w", v.ID, err)
	}
	return row, nil
}

func RowToVillage(row *Village) (*entity.Village, error) {
	v := &entity.Village{
		ID:          entity.VillageID(row.ID),
		WorldID:     entity.WorldID(row.WorldID),
		OwnerID:     entity.PlayerID(row.OwnerID),
		Name:        row.Name,
		X:           row.X,
		Y:           row.Y,
		Terrain:     gameconfig.Terrain(row.Terrain),
		LastAccrual: entity.FromMillis(row.LastAccrual),
		Version:     row.Version,
	}
	var err error
	dec := func(src string, dst any) {
		if err != nil || src == "" {
			return
		}
		err = json.Unmarshal([]byte(src), dst)
	}
	dec(row.Buildings, &v.Buildings)
	dec(row.Resources, &v.Resources)
	dec(row.Remainder, &v.Remainder)
	dec(row.Garrison, &v.Garrison)
	dec(row.Support, &v.Support)
	dec(row.Construction, &v.Construction)
	dec(row.Training, &v.Training)
	if err != nil {
		return nil, fmt.Errorf("decode village %d: %w", row.ID, err)
	}
	if v.Buildings == nil {
		v.Buildings = make(map[gameconfig.BuildingType]int)
	}
	if v.Garrison == nil {
		v.Garrison = make(entity.Units)
	}
	for i := range v.Construction {
		v.Construction[i].CompleteAt = normalize(v.Construction[i].CompleteAt)
	}
	for i := range v.Training {
		v.Training[i].CompleteAt = normalize(v.Training[i].CompleteAt)
	}
	return v, nil
}

func EventToRow(ev entity.ScheduledEvent) *Event {
	return &Event{
		WorldID:   int64(ev.WorldID),
		Due:       ev.Due.UnixMilli(),
		Seq:       ev.Seq,
		Kind:      string(ev.Kind),
		VillageID: int64(ev.VillageID),
		ItemID:    ev.ItemID,
		ArmyID:    int64(ev.ArmyID),
	}
}

func RowToEvent(row *Event) entity.ScheduledEvent {
	return entity.ScheduledEvent{
		WorldID:   entity.WorldID(row.WorldID),
		Due:       entity.FromMillis(row.Due),
		Seq:       row.Seq,
		Kind:      entity.EventKind(row.Kind),
		VillageID: entity.VillageID(row.VillageID),
		ItemID:    row.ItemID,
		ArmyID:    entity.ArmyID(row.ArmyID),
	}
}

func ArmyToRow(a *entity.Army) (*Army, error) {
	units, err := json.Marshal(a.Units)
	if err != nil {
		return nil, fmt.Errorf("encode army %d: %w", a.ID, err)
	}
	loot, err := json.Marshal(a.Loot)
	if err != nil {
		return nil, fmt.Errorf("encode army %d: %w", a.ID, err)
	}
	return &Army{
		WorldID:     int64(a.WorldID),
		ID:          int64(a.ID),
		OwnerID:     int64(a.OwnerID),
		Origin:      int64(a.Origin),
		Destination: int64(a.Destination),
		Units:       string(units),
		Loot:        string(loot),
		Intent:      string(a.Intent),
		DepartAt:    a.DepartAt.UnixMilli(),
		ArriveAt:    a.ArriveAt.UnixMilli(),
	}, nil
}

func RowToArmy(row *Army) (*entity.Army, error) {
	a := &entity.Army{
		ID:          entity.ArmyID(row.ID),
		WorldID:     entity.WorldID(row.WorldID),
		OwnerID:     entity.PlayerID(row.OwnerID),
		Origin:      entity.VillageID(row.Origin),
		Destination: entity.VillageID(row.Destination),
		Intent:      entity.Intent(row.Intent),
		DepartAt:    entity.FromMillis(row.DepartAt),
		ArriveAt:    entity.FromMillis(row.ArriveAt),
	}
	if err := json.Unmarshal([]byte(row.Units), &a.Units); err != nil {
		return nil, fmt.Errorf("decode army %d: %w", row.ID, err)
	}
	if row.Loot != "" {
		if err := json.Unmarshal([]byte(row.Loot), &a.Loot); err != nil {
			return nil, fmt.Errorf("decode army %d: %w", row.ID, err)
		}
	}
	return a, nil
}

func ReportToRow(r *entity.BattleReport) (*Report, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode report %s: %w", r.ID, err)
	}
	return &Report{
		ID:              r.ID,
		WorldID:         int64(r.WorldID),
		AttackerVillage: int64(r.AttackerVillage),
		DefenderVillage: int64(r.DefenderVillage),
		OccurredAt:      r.OccurredAt.UnixMilli(),
		Body:            string(body),
	}, nil
}

func RowToReport(row *Report) (*entity.BattleReport, error) {
	var r entity.BattleReport
	if err := json.Unmarshal([]byte(row.Body), &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", row.ID, err)
	}
	r.OccurredAt = entity.Millis(r.OccurredAt)
	return &r, nil
}

// normalize JSON 反序列化后的时间统一成 UTC 毫秒，与内存里的值可直接比较。
func normalize(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return entity.Millis(t)
}
