package actors

import (
	"time"

	"github.com/asynkron/protoactor-go/actor"

	"TribalRealms/internal/world/app/port"
	"TribalRealms/internal/world/dc"
	"TribalRealms/internal/world/entity"
)

type State int

const (
	None State = iota
	Init
	Online
	Stopping
)

// VillageActor 独占一个村庄的内存状态；消息循环保证同一村庄的修改串行。
type VillageActor struct {
	state      State
	worldID    entity.WorldID
	villageID  entity.VillageID
	dc         *dc.VillageDC
	dispatcher *Dispatcher
}

func NewVillageActor(worldID entity.WorldID, id entity.VillageID, repo port.WorldRepository, commitTimeout time.Duration) *VillageActor {
	return &VillageActor{
		state:      None,
		worldID:    worldID,
		villageID:  id,
		dc:         dc.NewVillageDC(repo, worldID, id, commitTimeout),
		dispatcher: NewDispatcher(),
	}
}

func (p *VillageActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		p.state = Init
		p.init(ctx)
	case *actor.Stopping:
		p.state = Stopping
	case *actor.Restarting:
		p.dc.Drop()
		p.state = Init
	case villageMessage:
		if p.state == Stopping {
			ctx.Respond(fail(entity.ErrConflict.WithData("reason", "village actor stopping")))
			return
		}
		p.dispatcher.Dispatch(ctx, p, msg)
	}
}

// init 尝试预加载；村庄不存在时保持 Init，等待 CreateVillage。
func (p *VillageActor) init(ctx actor.Context) {
	if _, err := p.dc.Load(); err != nil {
		if !entity.IsValidation(err) {
			ctx.Logger().Warn("village preload failed", "village_id", p.villageID, "err", err)
		}
		return
	}
	p.state = Online
}

// ensureLoaded 在副本缺失（未创建、或冲突后被丢弃）时重新读取。
func (p *VillageActor) ensureLoaded() (*entity.Village, error) {
	if p.dc.Loaded() {
		return p.dc.Entity(), nil
	}
	v, err := p.dc.Load()
	if err != nil {
		return nil, err
	}
	p.state = Online
	return v, nil
}

func (p *VillageActor) VillageID() entity.VillageID {
	return p.villageID
}

func (p *VillageActor) DC() *dc.VillageDC {
	return p.dc
}
