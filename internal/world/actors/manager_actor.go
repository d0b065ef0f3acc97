package actors

import (
	"time"

	"github.com/asynkron/protoactor-go/actor"

	"TribalRealms/internal/world/app/port"
	"TribalRealms/internal/world/entity"
)

// ManagerActor 按村庄 id 懒创建村庄 actor 并转发请求，保证同一村庄的请求串行。
type ManagerActor struct {
	repo          port.WorldRepository
	worldID       entity.WorldID
	commitTimeout time.Duration
	villageActors map[entity.VillageID]*actor.PID
	byPID         map[string]entity.VillageID
}

func NewManagerActor(repo port.WorldRepository, worldID entity.WorldID, commitTimeout time.Duration) *ManagerActor {
	return &ManagerActor{
		repo:          repo,
		worldID:       worldID,
		commitTimeout: commitTimeout,
		villageActors: make(map[entity.VillageID]*actor.PID),
		byPID:         make(map[string]entity.VillageID),
	}
}

func (m *ManagerActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case villageMessage:
		ctx.Forward(m.getOrSpawn(ctx, msg.villageID()))
	case *actor.Terminated:
		if id, ok := m.byPID[msg.Who.Id]; ok {
			delete(m.byPID, msg.Who.Id)
			delete(m.villageActors, id)
		}
	}
}

func (m *ManagerActor) getOrSpawn(ctx actor.Context, id entity.VillageID) *actor.PID {
	if pid, ok := m.villageActors[id]; ok && pid != nil {
		return pid
	}

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewVillageActor(m.worldID, id, m.repo, m.commitTimeout)
	})
	pid := ctx.Spawn(props)
	ctx.Watch(pid)
	m.villageActors[id] = pid
	m.byPID[pid.Id] = id
	return pid
}
