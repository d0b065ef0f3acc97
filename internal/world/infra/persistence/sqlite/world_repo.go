package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"TribalRealms/internal/world/app/port"
	"TribalRealms/internal/world/entity"
	"TribalRealms/internal/world/errs"
	"TribalRealms/internal/world/infra/persistence/model"
)

const (
	OpEnsureSchema = "repo.world.sqlite.EnsureSchema"
	OpLoadVillage  = "repo.world.sqlite.LoadVillage"
	OpListVillages = "repo.world.sqlite.ListVillages"
	OpLoadArmy     = "repo.world.sqlite.LoadArmy"
	OpLoadEvents   = "repo.world.sqlite.LoadEvents"
	OpListReports  = "repo.world.sqlite.ListReports"
	OpCommit       = "repo.world.sqlite.Commit"
	OpDeleteEvents = "repo.world.sqlite.DeleteEvents"
)

const schema = `
CREATE TABLE IF NOT EXISTS village (
    world_id     INTEGER NOT NULL,
    id           INTEGER NOT NULL,
    owner_id     INTEGER NOT NULL DEFAULT 0,
    name         TEXT NOT NULL DEFAULT '',
    x            INTEGER NOT NULL,
    y            INTEGER NOT NULL,
    terrain      TEXT NOT NULL,
    buildings    TEXT NOT NULL,
    resources    TEXT NOT NULL,
    remainder    TEXT NOT NULL,
    last_accrual INTEGER NOT NULL,
    garrison     TEXT NOT NULL,
    support      TEXT NOT NULL DEFAULT '',
    construction TEXT NOT NULL,
    training     TEXT NOT NULL,
    version      INTEGER NOT NULL,
    PRIMARY KEY (world_id, id),
    UNIQUE (world_id, x, y)
);
CREATE TABLE IF NOT EXISTS scheduled_event (
    world_id   INTEGER NOT NULL,
    due        INTEGER NOT NULL,
    seq        INTEGER NOT NULL,
    kind       TEXT NOT NULL,
    village_id INTEGER NOT NULL DEFAULT 0,
    item_id    INTEGER NOT NULL DEFAULT 0,
    army_id    INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (world_id, due, seq)
);
CREATE TABLE IF NOT EXISTS army (
    world_id    INTEGER NOT NULL,
    id          INTEGER NOT NULL,
    owner_id    INTEGER NOT NULL,
    origin      INTEGER NOT NULL,
    destination INTEGER NOT NULL,
    units       TEXT NOT NULL,
    loot        TEXT NOT NULL,
    intent      TEXT NOT NULL,
    depart_at   INTEGER NOT NULL,
    arrive_at   INTEGER NOT NULL,
    PRIMARY KEY (world_id, id)
);
CREATE TABLE IF NOT EXISTS battle_report (
    id               TEXT PRIMARY KEY,
    world_id         INTEGER NOT NULL,
    attacker_village INTEGER NOT NULL,
    defender_village INTEGER NOT NULL,
    occurred_at      INTEGER NOT NULL,
    body             TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_report_attacker ON battle_report (world_id, attacker_village);
CREATE INDEX IF NOT EXISTS idx_report_defender ON battle_report (world_id, defender_village);
`

const villageColumns = `world_id, id, owner_id, name, x, y, terrain, buildings, resources, remainder,
    last_accrual, garrison, support, construction, training, version`

// WorldRepository 单文件 sqlite 实现，适合单机部署与 worldctl 本地预演。
type WorldRepository struct {
	db *sql.DB
}

var _ port.WorldRepository = (*WorldRepository)(nil)

func NewWorldRepository(db *sql.DB) *WorldRepository {
	return &WorldRepository{db: db}
}

func (r *WorldRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return errs.Wrap(OpEnsureSchema, errs.KindInfra, err, nil)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVillage(s scanner) (*entity.Village, error) {
	var m model.Village
	err := s.Scan(&m.WorldID, &m.ID, &m.OwnerID, &m.Name, &m.X, &m.Y, &m.Terrain, &m.Buildings, &m.Resources,
		&m.Remainder, &m.LastAccrual, &m.Garrison, &m.Support, &m.Construction, &m.Training, &m.Version)
	if err != nil {
		return nil, err
	}
	return model.RowToVillage(&m)
}

func (r *WorldRepository) LoadVillage(ctx context.Context, worldID entity.WorldID, id entity.VillageID) (*entity.Village, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+villageColumns+` FROM village WHERE world_id = ? AND id = ?`, int64(worldID), int64(id))
	v, err := scanVillage(row)
	switch {
	case err == nil:
		return v, nil
	case errors.Is(err, sql.ErrNoRows):
		return nil, entity.ErrVillageNotFound
	default:
		return nil, errs.Wrap(OpLoadVillage, errs.KindInfra, err, map[string]any{"village_id": id})
	}
}

func (r *WorldRepository) ListVillages(ctx context.Context, worldID entity.WorldID) ([]*entity.Village, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+villageColumns+` FROM village WHERE world_id = ? ORDER BY id`, int64(worldID))
	if err != nil {
		return nil, errs.Wrap(OpListVillages, errs.KindInfra, err, nil)
	}
	defer rows.Close()
	var out []*entity.Village
	for rows.Next() {
		v, err := scanVillage(rows)
		if err != nil {
			return nil, errs.Wrap(OpListVillages, errs.KindInfra, err, nil)
		}
		out = append(out, v)
	}
	return out, errs.Wrap(OpListVillages, errs.KindInfra, rows.Err(), nil)
}

func (r *WorldRepository) LoadArmy(ctx context.Context, worldID entity.WorldID, id entity.ArmyID) (*entity.Army, error) {
	var m model.Army
	err := r.db.QueryRowContext(ctx, `
SELECT world_id, id, owner_id, origin, destination, units, loot, intent, depart_at, arrive_at
FROM army WHERE world_id = ? AND id = ?`, int64(worldID), int64(id)).
		Scan(&m.WorldID, &m.ID, &m.OwnerID, &m.Origin, &m.Destination, &m.Units, &m.Loot, &m.Intent, &m.DepartAt, &m.ArriveAt)
	switch {
	case err == nil:
		return model.RowToArmy(&m)
	case errors.Is(err, sql.ErrNoRows):
		return nil, entity.ErrArmyNotFound
	default:
		return nil, errs.Wrap(OpLoadArmy, errs.KindInfra, err, map[string]any{"army_id": id})
	}
}

func (r *WorldRepository) LoadEvents(ctx context.Context, worldID entity.WorldID) ([]entity.ScheduledEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT world_id, due, seq, kind, village_id, item_id, army_id
FROM scheduled_event WHERE world_id = ? ORDER BY due, seq`, int64(worldID))
	if err != nil {
		return nil, errs.Wrap(OpLoadEvents, errs.KindInfra, err, nil)
	}
	defer rows.Close()
	var out []entity.ScheduledEvent
	for rows.Next() {
		var m model.Event
		if err := rows.Scan(&m.WorldID, &m.Due, &m.Seq, &m.Kind, &m.VillageID, &m.ItemID, &m.ArmyID); err != nil {
			return nil, errs.Wrap(OpLoadEvents, errs.KindInfra, err, nil)
		}
		out = append(out, model.RowToEvent(&m))
	}
	return out, errs.Wrap(OpLoadEvents, errs.KindCodec, rows.Err(), nil)
}

func (r *WorldRepository) ListReports(ctx context.Context, worldID entity.WorldID, villageID entity.VillageID, limit int) ([]*entity.BattleReport, error) {
	var (
		b    strings.Builder
		args = []any{int64(worldID)}
	)
	b.WriteString(`SELECT id, body FROM battle_report WHERE world_id = ?`)
	if villageID != 0 {
		b.WriteString(` AND (attacker_village = ? OR defender_village = ?)`)
		args = append(args, int64(villageID), int64(villageID))
	}
	b.WriteString(` ORDER BY occurred_at DESC, id DESC`)
	if limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, errs.Wrap(OpListReports, errs.KindInfra, err, nil)
	}
	defer rows.Close()
	var out []*entity.BattleReport
	for rows.Next() {
		var m model.Report
		if err := rows.Scan(&m.ID, &m.Body); err != nil {
			return nil, errs.Wrap(OpListReports, errs.KindInfra, err, nil)
		}
		rep, err := model.RowToReport(&m)
		if err != nil {
			return nil, errs.Wrap(OpListReports, errs.KindCodec, err, nil)
		}
		out = append(out, rep)
	}
	return out, errs.Wrap(OpListReports, errs.KindInfra, rows.Err(), nil)
}

func (r *WorldRepository) Commit(ctx context.Context, c *port.Change) error {
	if c == nil || c.Empty() {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(OpCommit, errs.KindInfra, err, nil)
	}
	if err := apply(ctx, tx, c); err != nil {
		_ = tx.Rollback()
		if errors.Is(err, entity.ErrStaleVersion) || errors.Is(err, entity.ErrCoordinateTaken) {
			return err
		}
		return errs.Wrap(OpCommit, errs.KindInfra, err, map[string]any{"world_id": c.WorldID})
	}
	return errs.Wrap(OpCommit, errs.KindInfra, tx.Commit(), nil)
}

func apply(ctx context.Context, tx *sql.Tx, c *port.Change) error {
	if c.Village != nil {
		if err := saveVillage(ctx, tx, c); err != nil {
			return err
		}
	}
	for _, ev := range c.NewEvents {
		m := model.EventToRow(ev)
		_, err := tx.ExecContext(ctx, `
INSERT INTO scheduled_event (world_id, due, seq, kind, village_id, item_id, army_id)
VALUES (?, ?, ?, ?, ?, ?, ?)`, m.WorldID, m.Due, m.Seq, m.Kind, m.VillageID, m.ItemID, m.ArmyID)
		if err != nil {
			return err
		}
	}
	if err := deleteEvents(ctx, tx, c.WorldID, c.DoneEvents); err != nil {
		return err
	}
	for _, a := range c.NewArmies {
		m, err := model.ArmyToRow(a)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO army (world_id, id, owner_id, origin, destination, units, loot, intent, depart_at, arrive_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.WorldID, m.ID, m.OwnerID, m.Origin, m.Destination, m.Units, m.Loot, m.Intent, m.DepartAt, m.ArriveAt)
		if err != nil {
			return err
		}
	}
	for _, id := range c.DoneArmies {
		if _, err := tx.ExecContext(ctx, `DELETE FROM army WHERE world_id = ? AND id = ?`, int64(c.WorldID), int64(id)); err != nil {
			return err
		}
	}
	for _, rep := range c.Reports {
		m, err := model.ReportToRow(rep)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO battle_report (id, world_id, attacker_village, defender_village, occurred_at, body)
VALUES (?, ?, ?, ?, ?, ?)`, m.ID, m.WorldID, m.AttackerVillage, m.DefenderVillage, m.OccurredAt, m.Body)
		if err != nil {
			return err
		}
	}
	return nil
}

func saveVillage(ctx context.Context, tx *sql.Tx, c *port.Change) error {
	m, err := model.VillageToRow(c.Village)
	if err != nil {
		return err
	}
	if c.CreateVillage {
		var n int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM village WHERE world_id = ? AND id = ?`, m.WorldID, m.ID).Scan(&n)
		if err != nil {
			return err
		}
		if n > 0 {
			return entity.ErrStaleVersion
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO village (`+villageColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.WorldID, m.ID, m.OwnerID, m.Name, m.X, m.Y, m.Terrain, m.Buildings, m.Resources, m.Remainder,
			m.LastAccrual, m.Garrison, m.Support, m.Construction, m.Training, m.Version)
		if isUniqueViolation(err) {
			return entity.ErrCoordinateTaken
		}
		return err
	}

	res, err := tx.ExecContext(ctx, `
UPDATE village SET owner_id = ?, name = ?, x = ?, y = ?, terrain = ?, buildings = ?, resources = ?, remainder = ?,
    last_accrual = ?, garrison = ?, support = ?, construction = ?, training = ?, version = ?
WHERE world_id = ? AND id = ? AND version = ?`,
		m.OwnerID, m.Name, m.X, m.Y, m.Terrain, m.Buildings, m.Resources, m.Remainder,
		m.LastAccrual, m.Garrison, m.Support, m.Construction, m.Training, m.Version,
		m.WorldID, m.ID, c.ExpectedVersion)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return entity.ErrStaleVersion
	}
	return nil
}

func deleteEvents(ctx context.Context, tx *sql.Tx, worldID entity.WorldID, keys []entity.EventKey) error {
	for _, k := range keys {
		_, err := tx.ExecContext(ctx, `DELETE FROM scheduled_event WHERE world_id = ? AND due = ? AND seq = ?`,
			int64(worldID), k.Due.UnixMilli(), k.Seq)
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
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(OpDeleteEvents, errs.KindInfra, err, nil)
	}
	if err := deleteEvents(ctx, tx, worldID, keys); err != nil {
		_ = tx.Rollback()
		return errs.Wrap(OpDeleteEvents, errs.KindInfra, err, nil)
	}
	return errs.Wrap(OpDeleteEvents, errs.KindInfra, tx.Commit(), nil)
}

// isUniqueViolation 只看主错误码：id 已在事务内预检，插入时的约束冲突只可能来自坐标唯一索引。
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}
