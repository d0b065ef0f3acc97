package dc

import (
	"context"
	"errors"
	"time"

	"TribalRealms/internal/world/app/port"
	"TribalRealms/internal/world/entity"
	"TribalRealms/modules/kit/errx"
)

const defaultCommitTimeout = 3 * time.Second

// VillageDC 是单个村庄 actor 的数据中心：持有内存副本，所有写入同步落库后才替换副本。
// 只在所属 actor 的消息循环里访问，不加锁。
type VillageDC struct {
	repo    port.WorldRepository
	worldID entity.WorldID
	id      entity.VillageID
	entity  *entity.Village
	timeout time.Duration
}

func NewVillageDC(repo port.WorldRepository, worldID entity.WorldID, id entity.VillageID, timeout time.Duration) *VillageDC {
	if timeout <= 0 {
		timeout = defaultCommitTimeout
	}
	return &VillageDC{
		repo:    repo,
		worldID: worldID,
		id:      id,
		timeout: timeout,
	}
}

// Load 从仓储读取村庄。找不到返回 entity.ErrNotFound，其余失败返回 ErrPersistenceUnavailable。
func (d *VillageDC) Load() (*entity.Village, error) {
	if d.repo == nil {
		return nil, entity.ErrPersistenceUnavailable.WithCause(errors.New("world repository is nil"))
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	v, err := d.repo.LoadVillage(ctx, d.worldID, d.id)
	if err != nil {
		if errors.Is(err, entity.ErrVillageNotFound) {
			return nil, entity.ErrNotFound.WithData("village_id", d.id)
		}
		return nil, entity.ErrPersistenceUnavailable.WithCause(err).WithData("village_id", d.id)
	}
	d.entity = v
	return v, nil
}

func (d *VillageDC) Entity() *entity.Village {
	return d.entity
}

func (d *VillageDC) Loaded() bool {
	return d.entity != nil
}

// Commit 同步提交一个工作单元，成功后内存副本替换为 change.Village。
//
// 版本冲突时丢弃内存副本（下次请求重新加载），返回 ErrConflict。
func (d *VillageDC) Commit(change *port.Change) error {
	return d.CommitBy(change, time.Time{})
}

// CommitBy 与 Commit 相同，但提交不会越过 deadline（为零时只受自身超时约束）。
// 因截止时间取消的提交返回 ErrTimeout，仓储保证此时没有任何写入。
func (d *VillageDC) CommitBy(change *port.Change, deadline time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if !deadline.IsZero() {
		var cancelBy context.CancelFunc
		ctx, cancelBy = context.WithDeadline(ctx, deadline)
		defer cancelBy()
	}

	err := d.repo.Commit(ctx, change)
	switch {
	case err == nil:
		if change.Village != nil {
			d.entity = change.Village
		}
		return nil
	case errors.Is(err, entity.ErrStaleVersion):
		d.entity = nil
		return entity.ErrConflict.WithCause(err).WithData("village_id", d.id)
	case errors.Is(err, entity.ErrCoordinateTaken):
		return entity.ErrConflict.WithCause(err).WithData("village_id", d.id)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return errx.ErrTimeout.WithCause(err).WithData("village_id", d.id)
	default:
		return entity.ErrPersistenceUnavailable.WithCause(err).WithData("village_id", d.id)
	}
}

// Drop 丢弃内存副本。
func (d *VillageDC) Drop() {
	d.entity = nil
}
