package actors

import (
	"fmt"

	"github.com/asynkron/protoactor-go/actor"

	"TribalRealms/internal/world/entity"
	"TribalRealms/internal/world/store"
	"TribalRealms/modules/kit/errx"
)

type VillageHandler struct{}

var VH = &VillageHandler{}

func (h *VillageHandler) HandleGetVillage(ctx actor.Context, p *VillageActor, req *GetVillage) {
	v, err := p.ensureLoaded()
	if err != nil {
		ctx.Respond(fail(err))
		return
	}
	ctx.Respond(&Reply{Village: v.Clone()})
}

// HandleMutateVillage 在副本上执行修改，提交成功才替换内存状态。
func (h *VillageHandler) HandleMutateVillage(ctx actor.Context, p *VillageActor, req *MutateVillage) {
	if req.Fn == nil {
		ctx.Respond(fail(errx.ErrReqParamERR.WithData("reason", "nil mutate func")))
		return
	}
	current, err := p.ensureLoaded()
	if err != nil {
		ctx.Respond(fail(err))
		return
	}
	if expired(req.Deadline) {
		ctx.Respond(fail(errx.ErrTimeout.WithData("village_id", p.villageID)))
		return
	}

	m := store.NewMutation(p.worldID, current.Clone(), req.Now, req.Stager)
	if err := runMutate(req.Fn, m); err != nil {
		ctx.Respond(fail(err))
		return
	}
	if m.Village == nil || m.Village.ID != p.villageID {
		ctx.Respond(fail(errx.ErrInternal.WithData("reason", "mutation replaced village identity")))
		return
	}

	change := m.Change(current.Version, false)
	if err := p.dc.CommitBy(change, req.Deadline); err != nil {
		ctx.Logger().Warn("village commit failed", "village_id", p.villageID, "err", err)
		ctx.Respond(fail(err))
		return
	}
	if req.Committed != nil {
		req.Committed(change, m.Published())
	}
	ctx.Respond(&Reply{Village: change.Village.Clone(), Change: change, Published: m.Published()})
}

func (h *VillageHandler) HandleCreateVillage(ctx actor.Context, p *VillageActor, req *CreateVillage) {
	if req.Village == nil {
		ctx.Respond(fail(errx.ErrReqParamERR))
		return
	}
	if p.dc.Loaded() {
		ctx.Respond(fail(entity.ErrConflict.WithData("village_id", p.villageID)))
		return
	}
	if expired(req.Deadline) {
		ctx.Respond(fail(errx.ErrTimeout.WithData("village_id", p.villageID)))
		return
	}

	v := req.Village.Clone()
	v.WorldID = p.worldID
	v.LastAccrual = entity.Millis(v.LastAccrual)
	m := store.NewMutation(p.worldID, v, req.Now, req.Stager)
	change := m.Change(0, true)
	if err := p.dc.CommitBy(change, req.Deadline); err != nil {
		ctx.Respond(fail(err))
		return
	}
	p.state = Online
	if req.Committed != nil {
		req.Committed(change, nil)
	}
	ctx.Respond(&Reply{Village: change.Village.Clone(), Change: change})
}

// runMutate 把修改函数里的 panic 转成错误，避免 actor 重启丢掉请求。
func runMutate(fn store.MutateFunc, m *store.Mutation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errx.ErrInternal.WithCause(fmt.Errorf("mutate panic: %v", r))
		}
	}()
	return fn(m)
}
