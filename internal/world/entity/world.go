package entity

import (
	"time"

	"TribalRealms/internal/shared/gameconfig"
)

type (
	WorldID   int64
	VillageID int64
	PlayerID  int64
	ArmyID    int64
)

// Barbarian 表示无主村庄的 owner。
const Barbarian PlayerID = 0

// World 是一个开服世界的元信息；开服后只有其中的村庄会变化。
type World struct {
	ID        WorldID
	Name      string
	StartedAt time.Time
	Speed     float64
	Seed      uint64
	Tables    *gameconfig.Tables
}

func NewWorld(id WorldID, name string, startedAt time.Time, seed uint64, tables *gameconfig.Tables) *World {
	speed := 1.0
	if tables != nil {
		speed = tables.Speed
	}
	return &World{
		ID:        id,
		Name:      name,
		StartedAt: Millis(startedAt),
		Speed:     speed,
		Seed:      seed,
		Tables:    tables,
	}
}

// Millis 把时间规整到 UTC 毫秒精度，持久化与调度都以毫秒为最小单位。
func Millis(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// FromMillis 是 Millis 的逆操作，供仓储层还原时间戳。
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
