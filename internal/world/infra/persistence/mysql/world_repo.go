package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"TribalRealms/internal/world/app/port"
	"TribalRealms/internal/world/entity"
	"TribalRealms/internal/world/errs"
	"TribalRealms/internal/world/infra/persistence/model"
)

const (
	OpLoadVillage  = "repo.world.LoadVillage"
	OpListVillages = "repo.world.ListVillages"
	OpLoadArmy     = "repo.world.LoadArmy"
	OpLoadEvents   = "repo.world.LoadEvents"
	OpListReports  = "repo.world.ListReports"
	OpCommit       = "repo.world.Commit"
	OpDeleteEvents = "repo.world.DeleteEvents"
	OpMigrate      = "repo.world.Migrate"
)

// WorldRepository 基于 gorm 的 mysql 实现。Commit 在一个事务里完成，村庄用版本号做 CAS。
type WorldRepository struct {
	db *gorm.DB
}

var _ port.WorldRepository = (*WorldRepository)(nil)

func NewWorldRepository(db *gorm.DB) *WorldRepository {
	return &WorldRepository{db: db}
}

func (r *WorldRepository) WithTx(tx *gorm.DB) *WorldRepository {
	return &WorldRepository{db: tx}
}

// Migrate 建表，启动时调用。
func (r *WorldRepository) Migrate(ctx context.Context) error {
	err := r.db.WithContext(ctx).AutoMigrate(&model.Village{}, &model.Event{}, &model.Army{}, &model.Report{})
	return errs.Wrap(OpMigrate, errs.KindInfra, err, nil)
}

func (r *WorldRepository) LoadVillage(ctx context.Context, worldID entity.WorldID, id entity.VillageID) (*entity.Village, error) {
	var m model.Village
	err := r.db.WithContext(ctx).Where("world_id = ? AND id = ?", worldID, id).First(&m).Error
	switch {
	case err == nil:
		return model.RowToVillage(&m)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, entity.ErrVillageNotFound
	default:
		return nil, errs.Wrap(OpLoadVillage, errs.KindInfra, err, map[string]any{"village_id": id})
	}
}

func (r *WorldRepository) ListVillages(ctx context.Context, worldID entity.WorldID) ([]*entity.Village, error) {
	var rows []model.Village
	if err := r.db.WithContext(ctx).Where("world_id = ?", worldID).Order("id").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(OpListVillages, errs.KindInfra, err, map[string]any{"world_id": worldID})
	}
	out := make([]*entity.Village, 0, len(rows))
	for i := range rows {
		v, err := model.RowToVillage(&rows[i])
		if err != nil {
			return nil, errs.Wrap(OpListVillages, errs.KindCodec, err, nil)
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *WorldRepository) LoadArmy(ctx context.Context, worldID entity.WorldID, id entity.ArmyID) (*entity.Army, error) {
	var m model.Army
	err := r.db.WithContext(ctx).Where("world_id = ? AND id = ?", worldID, id).First(&m).Error
	switch {
	case err == nil:
		return model.RowToArmy(&m)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, entity.ErrArmyNotFound
	default:
		return nil, errs.Wrap(OpLoadArmy, errs.KindInfra, err, map[string]any{"army_id": id})
	}
}

func (r *WorldRepository) LoadEvents(ctx context.Context, worldID entity.WorldID) ([]entity.ScheduledEvent, error) {
	var rows []model.Event
	if err := r.db.WithContext(ctx).Where("world_id = ?", worldID).Order("due, seq").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(OpLoadEvents, errs.KindInfra, err, map[string]any{"world_id": worldID})
	}
	out := make([]entity.ScheduledEvent, 0, len(rows))
	for i := range rows {
		out = append(out, model.RowToEvent(&rows[i]))
	}
	return out, nil
}

func (r *WorldRepository) ListReports(ctx context.Context, worldID entity.WorldID, villageID entity.VillageID, limit int) ([]*entity.BattleReport, error) {
	q := r.db.WithContext(ctx).Where("world_id = ?", worldID)
	if villageID != 0 {
		q = q.Where("attacker_village = ? OR defender_village = ?", villageID, villageID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []model.Report
	if err := q.Order("occurred_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(OpListReports, errs.KindInfra, err, map[string]any{"village_id": villageID})
	}
	out := make([]*entity.BattleReport, 0, len(rows))
	for i := range rows {
		rep, err := model.RowToReport(&rows[i])
		if err != nil {
			return nil, errs.Wrap(OpListReports, errs.KindCodec, err, nil)
		}
		out = append(out, rep)
	}
	return out, nil
}

func (r *WorldRepository) Commit(ctx context.Context, c *port.Change) error {
	if c == nil || c.Empty() {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return r.WithTx(tx).apply(c)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, entity.ErrStaleVersion), errors.Is(err, entity.ErrCoordinateTaken), errors.Is(err, entity.ErrVillageNotFound):
		return err
	default:
		return errs.Wrap(OpCommit, errs.KindInfra, err, changeMeta(c))
	}
}

func (r *WorldRepository) apply(c *port.Change) error {
	if c.Village != nil {
		if err := r.saveVillage(c); err != nil {
			return err
		}
	}
	for _, ev := range c.NewEvents {
		if err := r.db.Create(model.EventToRow(ev)).Error; err != nil {
			return err
		}
	}
	if err := r.deleteEvents(c.WorldID, c.DoneEvents); err != nil {
		return err
	}
	for _, a := range c.NewArmies {
		row, err := model.ArmyToRow(a)
		if err != nil {
			return err
		}
		if err := r.db.Create(row).Error; err != nil {
			return err
		}
	}
	if len(c.DoneArmies) > 0 {
		if err := r.db.Where("world_id = ? AND id IN ?", c.WorldID, c.DoneArmies).Delete(&model.Army{}).Error; err != nil {
			return err
		}
	}
	for _, rep := range c.Reports {
		row, err := model.ReportToRow(rep)
		if err != nil {
			return err
		}
		if err := r.db.Create(row).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *WorldRepository) saveVillage(c *port.Change) error {
	row, err := model.VillageToRow(c.Village)
	if err != nil {
		return err
	}
	if c.CreateVillage {
		var n int64
		if err := r.db.Model(&model.Village{}).Where("world_id = ? AND id = ?", row.WorldID, row.ID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return entity.ErrStaleVersion
		}
		err := r.db.Create(row).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return entity.ErrCoordinateTaken
		}
		return err
	}

	res := r.db.Model(&model.Village{}).
		Where("world_id = ? AND id = ? AND version = ?", row.WorldID, row.ID, c.ExpectedVersion).
		Select("*").Omit("world_id", "id").
		Updates(row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return entity.ErrStaleVersion
	}
	return nil
}

func (r *WorldRepository) deleteEvents(worldID entity.WorldID, keys []entity.EventKey) error {
	for _, k := range keys {
		err := r.db.Where("world_id = ? AND due = ? AND seq = ?", worldID, k.Due.UnixMilli(), k.Seq).
			Delete(&model.Event{}).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *WorldRepository) DeleteEvents(ctx context.Context, worldID entity.WorldID, keys []entity.EventKey) error {
	if len(keys) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return r.WithTx(tx).deleteEvents(worldID, keys)
	})
	return errs.Wrap(OpDeleteEvents, errs.KindInfra, err, map[string]any{"events": len(keys)})
}

func changeMeta(c *port.Change) map[string]any {
	meta := map[string]any{"world_id": c.WorldID, "events": len(c.NewEvents)}
	if c.Village != nil {
		meta["village_id"] = c.Village.ID
		meta["expected_version"] = c.ExpectedVersion
	}
	return meta
}
