package postgres

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"TribalRealms/internal/world/app/port"
	"TribalRealms/internal/world/entity"
	"TribalRealms/internal/world/errs"
	"TribalRealms/internal/world/infra/persistence/model"
)

const (
	OpEnsureSchema = "repo.world.postgres.EnsureSchema"
	OpLoadVillage  = "repo.world.postgres.LoadVillage"
	OpListVillages = "repo.world.postgres.ListVillages"
	OpLoadArmy     = "repo.world.postgres.LoadArmy"
	OpLoadEvents   = "repo.world.postgres.LoadEvents"
	OpListReports  = "repo.world.postgres.ListReports"
	OpCommit       = "repo.world.postgres.Commit"
	OpDeleteEvents = "repo.world.postgres.DeleteEvents"
)

// uniqueViolation 是 postgres 的 unique_violation 错误码。
const uniqueViolation = "23505"

const ddl = `
CREATE TABLE IF NOT EXISTS village (
    world_id     BIGINT NOT NULL,
    id           BIGINT NOT NULL,
    owner_id     BIGINT NOT NULL DEFAULT 0,
    name         TEXT NOT NULL DEFAULT '',
    x            INTEGER NOT NULL,
    y            INTEGER NOT NULL,
    terrain      TEXT NOT NULL,
    buildings    TEXT NOT NULL,
    resources    TEXT NOT NULL,
    remainder    TEXT NOT NULL,
    last_accrual BIGINT NOT NULL,
    garrison     TEXT NOT NULL,
    support      TEXT NOT NULL DEFAULT '',
    construction TEXT NOT NULL,
    training     TEXT NOT NULL,
    version      BIGINT NOT NULL,
    PRIMARY KEY (world_id, id),
    CONSTRAINT uk_village_coord UNIQUE (world_id, x, y)
);

CREATE TABLE IF NOT EXISTS scheduled_event (
    world_id   BIGINT NOT NULL,
    due        BIGINT NOT NULL,
    seq        BIGINT NOT NULL,
    kind       TEXT NOT NULL,
    village_id BIGINT NOT NULL DEFAULT 0,
    item_id    BIGINT NOT NULL DEFAULT 0,
    army_id    BIGINT NOT NULL DEFAULT 0,
    PRIMARY KEY (world_id, due, seq)
);

CREATE TABLE IF NOT EXISTS army (
    world_id    BIGINT NOT NULL,
    id          BIGINT NOT NULL,
    owner_id    BIGINT NOT NULL,
    origin      BIGINT NOT NULL,
    destination BIGINT NOT NULL,
    units       TEXT NOT NULL,
    loot        TEXT NOT NULL,
    intent      TEXT NOT NULL,
    depart_at   BIGINT NOT NULL,
    arrive_at   BIGINT NOT NULL,
    PRIMARY KEY (world_id, id)
);

CREATE TABLE IF NOT EXISTS battle_report (
    id               TEXT PRIMARY KEY,
    world_id         BIGINT NOT NULL,
    attacker_village BIGINT NOT NULL,
    defender_village BIGINT NOT NULL,
    occurred_at      BIGINT NOT NULL,
    body             TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_report_attacker ON battle_report (world_id, attacker_village);
CREATE INDEX IF NOT EXISTS idx_report_defender ON battle_report (world_id, defender_village);
`

const villageColumns = `world_id, id, owner_id, name, x, y, terrain, buildings, resources, remainder,
    last_accrual, garrison, support, construction, training, version`

type WorldRepository struct {
	pool *pgxpool.Pool
}

var _ port.WorldRepository = (*WorldRepository)(nil)

func NewWorldRepository(pool *pgxpool.Pool) *WorldRepository {
	return &WorldRepository{pool: pool}
}

// EnsureSchema 所有 DDL 一次执行，IF NOT EXISTS 保证可重复执行。
func (r *WorldRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, ddl)
	return errs.Wrap(OpEnsureSchema, errs.KindInfra, err, nil)
}

func scanVillage(row pgx.Row) (*entity.Village, error) {
	var m model.Village
	err := row.Scan(&m.WorldID, &m.ID, &m.OwnerID, &m.Name, &m.X, &m.Y, &m.Terrain, &m.Buildings, &m.Resources,
		&m.Remainder, &m.LastAccrual, &m.Garrison, &m.Support, &m.Construction, &m.Training, &m.Version)
	if err != nil {
		return nil, err
	}
	return model.RowToVillage(&m)
}

func (r *WorldRepository) LoadVillage(ctx context.Context, worldID entity.WorldID, id entity.VillageID) (*entity.Village, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+villageColumns+` FROM village WHERE world_id = $1 AND id = $2`, int64(worldID), int64(id))
	v, err := scanVillage(row)
	switch {
	case err == nil:
		return v, nil
	case errors.Is(err, pgx.ErrNoRows):
		return nil, entity.ErrVillageNotFound
	default:
		return nil, errs.Wrap(OpLoadVillage, errs.KindInfra, err, map[string]any{"village_id": id})
	}
}

func (r *WorldRepository) ListVillages(ctx context.Context, worldID entity.WorldID) ([]*entity.Village, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+villageColumns+` FROM village WHERE world_id = $1 ORDER BY id`, int64(worldID))
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
	err := r.pool.QueryRow(ctx, `
SELECT world_id, id, owner_id, origin, destination, units, loot, intent, depart_at, arrive_at
FROM army WHERE world_id = $1 AND id = $2`, int64(worldID), int64(id)).
		Scan(&m.WorldID, &m.ID, &m.OwnerID, &m.Origin, &m.Destination, &m.Units, &m.Loot, &m.Intent, &m.DepartAt, &m.ArriveAt)
	switch {
	case err == nil:
		return model.RowToArmy(&m)
	case errors.Is(err, pgx.ErrNoRows):
		return nil, entity.ErrArmyNotFound
	default:
		return nil, errs.Wrap(OpLoadArmy, errs.KindInfra, err, map[string]any{"army_id": id})
	}
}

func (r *WorldRepository) LoadEvents(ctx context.Context, worldID entity.WorldID) ([]entity.ScheduledEvent, error) {
	rows, err := r.pool.Query(ctx, `
SELECT world_id, due, seq, kind, village_id, item_id, army_id
FROM scheduled_event WHERE world_id = $1 ORDER BY due, seq`, int64(worldID))
	if err != nil {
		return nil, errs.Wrap(OpLoadEvents, errs.KindInfra, err, nil)
	}
	evs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (entity.ScheduledEvent, error) {
		var m model.Event
		err := row.Scan(&m.WorldID, &m.Due, &m.Seq, &m.Kind, &m.VillageID, &m.ItemID, &m.ArmyID)
		return model.RowToEvent(&m), err
	})
	if err != nil {
		return nil, errs.Wrap(OpLoadEvents, errs.KindCodec, err, nil)
	}
	return evs, nil
}

func (r *WorldRepository) ListReports(ctx context.Context, worldID entity.WorldID, villageID entity.VillageID, limit int) ([]*entity.BattleReport, error) {
	var (
		b    strings.Builder
		args = []any{int64(worldID)}
	)
	b.WriteString(`SELECT id, body FROM battle_report WHERE world_id = $1`)
	if villageID != 0 {
		args = append(args, int64(villageID))
		b.WriteString(` AND (attacker_village = $2 OR defender_village = $2)`)
	}
	b.WriteString(` ORDER BY occurred_at DESC, id DESC`)
	if limit > 0 {
		args = append(args, limit)
		b.WriteString(` LIMIT $` + strconv.Itoa(len(args)))
	}
	rows, err := r.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, errs.Wrap(OpListReports, errs.KindInfra, err, nil)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*entity.BattleReport, error) {
		var m model.Report
		if err := row.Scan(&m.ID, &m.Body); err != nil {
			return nil, err
		}
		return model.RowToReport(&m)
	})
	if err != nil {
		return nil, errs.Wrap(OpListReports, errs.KindCodec, err, nil)
	}
	return out, nil
}

func (r *WorldRepository) Commit(ctx context.Context, c *port.Change) error {
	if c == nil || c.Empty() {
		return nil
	}
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return apply(ctx, tx, c)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, entity.ErrStaleVersion), errors.Is(err, entity.ErrCoordinateTaken):
		return err
	default:
		return errs.Wrap(OpCommit, errs.KindInfra, err, map[string]any{"world_id": c.WorldID})
	}
}

func apply(ctx context.Context, tx pgx.Tx, c *port.Change) error {
	if c.Village != nil {
		if err := saveVillage(ctx, tx, c); err != nil {
			return err
		}
	}

	// 事件、部队、战报批量发送，减少往返
	batch := &pgx.Batch{}
	for _, ev := range c.NewEvents {
		m := model.EventToRow(ev)
		batch.Queue(`
INSERT INTO scheduled_event (world_id, due, seq, kind, village_id, item_id, army_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, m.WorldID, m.Due, m.Seq, m.Kind, m.VillageID, m.ItemID, m.ArmyID)
	}
	for _, k := range c.DoneEvents {
		batch.Queue(`DELETE FROM scheduled_event WHERE world_id = $1 AND due = $2 AND seq = $3`,
			int64(c.WorldID), k.Due.UnixMilli(), k.Seq)
	}
	for _, a := range c.NewArmies {
		m, err := model.ArmyToRow(a)
		if err != nil {
			return err
		}
		batch.Queue(`
INSERT INTO army (world_id, id, owner_id, origin, destination, units, loot, intent, depart_at, arrive_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			m.WorldID, m.ID, m.OwnerID, m.Origin, m.Destination, m.Units, m.Loot, m.Intent, m.DepartAt, m.ArriveAt)
	}
	for _, id := range c.DoneArmies {
		batch.Queue(`DELETE FROM army WHERE world_id = $1 AND id = $2`, int64(c.WorldID), int64(id))
	}
	for _, rep := range c.Reports {
		m, err := model.ReportToRow(rep)
		if err != nil {
			return err
		}
		batch.Queue(`
INSERT INTO battle_report (id, world_id, attacker_village, defender_village, occurred_at, body)
VALUES ($1, $2, $3, $4, $5, $6)`, m.ID, m.WorldID, m.AttackerVillage, m.DefenderVillage, m.OccurredAt, m.Body)
	}
	if batch.Len() == 0 {
		return nil
	}
	return tx.SendBatch(ctx, batch).Close()
}

func saveVillage(ctx context.Context, tx pgx.Tx, c *port.Change) error {
	m, err := model.VillageToRow(c.Village)
	if err != nil {
		return err
	}
	if c.CreateVillage {
		var exists bool
		err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM village WHERE world_id = $1 AND id = $2)`, m.WorldID, m.ID).Scan(&exists)
		if err != nil {
			return err
		}
		if exists {
			return entity.ErrStaleVersion
		}
		_, err = tx.Exec(ctx, `INSERT INTO village (`+villageColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			m.WorldID, m.ID, m.OwnerID, m.Name, m.X, m.Y, m.Terrain, m.Buildings, m.Resources, m.Remainder,
			m.LastAccrual, m.Garrison, m.Support, m.Construction, m.Training, m.Version)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return entity.ErrCoordinateTaken
		}
		return err
	}

	tag, err := tx.Exec(ctx, `
UPDATE village SET owner_id = $1, name = $2, x = $3, y = $4, terrain = $5, buildings = $6, resources = $7,
    remainder = $8, last_accrual = $9, garrison = $10, support = $11, construction = $12, training = $13, version = $14
WHERE world_id = $15 AND id = $16 AND version = $17`,
		m.OwnerID, m.Name, m.X, m.Y, m.Terrain, m.Buildings, m.Resources,
		m.Remainder, m.LastAccrual, m.Garrison, m.Support, m.Construction, m.Training, m.Version,
		m.WorldID, m.ID, c.ExpectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return entity.ErrStaleVersion
	}
	return nil
}

func (r *WorldRepository) DeleteEvents(ctx context.Context, worldID entity.WorldID, keys []entity.EventKey) error {
	if len(keys) == 0 {
		return nil
	}
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, k := range keys {
			batch.Queue(`DELETE FROM scheduled_event WHERE world_id = $1 AND due = $2 AND seq = $3`,
				int64(worldID), k.Due.UnixMilli(), k.Seq)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	return errs.Wrap(OpDeleteEvents, errs.KindInfra, err, map[string]any{"events": len(keys)})
}
