package port

import (
	"context"

	"TribalRealms/internal/world/entity"
)

// Change 是一次原子提交的全部内容：村庄新状态、事件增删、部队增删、战报追加。
// 实现必须保证要么全部生效，要么全部不生效。
type Change struct {
	WorldID entity.WorldID

	// Village 为提交后的村庄状态；nil 表示本次不写村庄（世界级维护）。
	Village *entity.Village
	// ExpectedVersion 是读取时的版本号，存储层据此做乐观锁；CreateVillage 时忽略。
	ExpectedVersion int64
	CreateVillage   bool

	NewEvents  []entity.ScheduledEvent
	DoneEvents []entity.EventKey
	NewArmies  []*entity.Army
	DoneArmies []entity.ArmyID
	Reports    []*entity.BattleReport
}

// Empty 没有任何需要落库的内容。
func (c *Change) Empty() bool {
	return c.Village == nil && len(c.NewEvents) == 0 && len(c.DoneEvents) == 0 &&
		len(c.NewArmies) == 0 && len(c.DoneArmies) == 0 && len(c.Reports) == 0
}

// WorldRepository 是世界状态的持久化端口。
//
// 约定：
//   - LoadVillage/LoadArmy 找不到时返回 entity.ErrVillageNotFound / entity.ErrArmyNotFound
//   - Commit 乐观锁失败返回 entity.ErrStaleVersion，坐标冲突返回 entity.ErrCoordinateTaken
//   - 其他错误一律视为存储不可用
type WorldRepository interface {
	LoadVillage(ctx context.Context, worldID entity.WorldID, id entity.VillageID) (*entity.Village, error)
	ListVillages(ctx context.Context, worldID entity.WorldID) ([]*entity.Village, error)
	LoadArmy(ctx context.Context, worldID entity.WorldID, id entity.ArmyID) (*entity.Army, error)
	LoadEvents(ctx context.Context, worldID entity.WorldID) ([]entity.ScheduledEvent, error)
	ListReports(ctx context.Context, worldID entity.WorldID, villageID entity.VillageID, limit int) ([]*entity.BattleReport, error)
	Commit(ctx context.Context, change *Change) error
	DeleteEvents(ctx context.Context, worldID entity.WorldID, keys []entity.EventKey) error
}
