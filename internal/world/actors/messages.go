package actors

import (
	"time"

	"TribalRealms/internal/world/app/port"
	"TribalRealms/internal/world/entity"
	"TribalRealms/internal/world/events"
	"TribalRealms/internal/world/store"
)

// villageMessage 是发给村庄 actor 的请求，manager 按村庄 id 路由。
type villageMessage interface {
	villageID() entity.VillageID
}

type GetVillage struct {
	ID entity.VillageID
}

// CommitHook 在 actor 内、提交成功后同步调用。
type CommitHook func(change *port.Change, published []events.Event)

// MutateVillage 的 Deadline 过后 actor 不再执行 Fn，提交也受它约束。
type MutateVillage struct {
	ID        entity.VillageID
	Now       time.Time
	Fn        store.MutateFunc
	Stager    store.Stager
	Deadline  time.Time
	Committed CommitHook
}

type CreateVillage struct {
	Village   *entity.Village
	Now       time.Time
	Stager    store.Stager
	Deadline  time.Time
	Committed CommitHook
}

func (m *GetVillage) villageID() entity.VillageID    { return m.ID }
func (m *MutateVillage) villageID() entity.VillageID { return m.ID }
func (m *CreateVillage) villageID() entity.VillageID { return m.Village.ID }

// Reply 是村庄 actor 的统一应答。Village 是提交后状态的副本。
type Reply struct {
	Village   *entity.Village
	Change    *port.Change
	Published []events.Event
	Err       error
}

func fail(err error) *Reply {
	return &Reply{Err: err}
}

func expired(deadline time.Time) bool {
	return !deadline.IsZero() && !time.Now().Before(deadline)
}
