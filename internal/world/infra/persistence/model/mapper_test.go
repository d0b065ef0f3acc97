package model

import (
	"testing"
	"time"

	"TribalRealms/internal/shared/gameconfig"
	"TribalRealms/internal/world/entity"
)

func TestVillageRow_嵌套结构与时间精度(t *testing.T) {
	at := time.Date(2024, 1, 1, 8, 0, 0, 123456789, time.FixedZone("CST", 8*3600))
	v := &entity.Village{
		ID:          3,
		WorldID:     1,
		OwnerID:     7,
		X:           -4,
		Y:           9,
		Terrain:     gameconfig.Hills,
		Buildings:   map[gameconfig.BuildingType]int{gameconfig.Farm: 2},
		Resources:   entity.Resources{Wood: 5},
		LastAccrual: at,
		Garrison:    entity.Units{gameconfig.Archer: 4},
		Construction: []entity.ConstructionItem{
			{ID: 11, Building: gameconfig.Farm, TargetLevel: 3, Duration: time.Minute, CompleteAt: at},
		},
		Version: 6,
	}
	row, err := VillageToRow(v)
	if err != nil {
		t.Fatalf("to row err=%v", err)
	}
	if row.LastAccrual != at.UnixMilli() {
		t.Fatalf("时间应存毫秒，got=%d", row.LastAccrual)
	}
	got, err := RowToVillage(row)
	if err != nil {
		t.Fatalf("from row err=%v", err)
	}
	if !got.LastAccrual.Equal(entity.Millis(at)) || got.LastAccrual.Location() != time.UTC {
		t.Fatalf("期望 UTC 毫秒，got=%v", got.LastAccrual)
	}
	if got.Construction[0].CompleteAt.Location() != time.UTC || got.Construction[0].Duration != time.Minute {
		t.Fatalf("队列项还原错误: %+v", got.Construction[0])
	}
	if got.Garrison[gameconfig.Archer] != 4 || got.Buildings[gameconfig.Farm] != 2 || got.Version != 6 {
		t.Fatalf("村庄字段还原错误: %+v", got)
	}
	if got.Training != nil {
		t.Fatalf("空训练队列应为 nil")
	}
}

func TestRowToVillage_空JSON列补默认值(t *testing.T) {
	v, err := RowToVillage(&Village{ID: 1, WorldID: 1, Terrain: "plains"})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if v.Buildings == nil || v.Garrison == nil {
		t.Fatalf("建筑和驻军应初始化为空 map")
	}
}

func TestEventKey_包含世界与序号(t *testing.T) {
	k := entity.EventKey{WorldID: 2, Due: time.UnixMilli(1500).UTC(), Seq: 9}
	if got := EventKey(k); got != "2:1500:9" {
		t.Fatalf("got=%s", got)
	}
}
