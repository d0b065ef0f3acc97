// Package events 是进程内的领域事件总线。订阅方：战报归档、ws 推送、指标。
package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"TribalRealms/internal/world/entity"
	"TribalRealms/modules/kit/logx"
)

type Kind string

const (
	BattleReportCreated  Kind = "battle_report_created"
	VillageConquered     Kind = "village_conquered"
	QueueCompleted       Kind = "queue_completed"
	ArmyReturned         Kind = "army_returned"
	ReinforcementArrived Kind = "reinforcement_arrived"
)

// Event 只在提交成功后发布。Players 是关心该事件的玩家，用于推送过滤。
type Event struct {
	Kind      Kind              `json:"kind"`
	WorldID   entity.WorldID    `json:"world_id"`
	VillageID entity.VillageID  `json:"village_id"`
	Players   []entity.PlayerID `json:"players,omitempty"`
	At        time.Time         `json:"at"`
	Payload   any               `json:"payload,omitempty"`
}

// QueuePayload 是 queue_completed 的负载。
type QueuePayload struct {
	Queue    string `json:"queue"` // construction / training
	ItemID   int64  `json:"item_id"`
	Building string `json:"building,omitempty"`
	Level    int    `json:"level,omitempty"`
	Unit     string `json:"unit,omitempty"`
	Count    int64  `json:"count,omitempty"`
}

// ConquestPayload 是 village_conquered 的负载。
type ConquestPayload struct {
	ReportID  string          `json:"report_id"`
	PrevOwner entity.PlayerID `json:"prev_owner"`
	NewOwner  entity.PlayerID `json:"new_owner"`
}

// ReturnPayload 是 army_returned 的负载。
type ReturnPayload struct {
	ArmyID  entity.ArmyID    `json:"army_id"`
	Units   entity.Units     `json:"units"`
	Loot    entity.Resources `json:"loot"`
	Dropped bool             `json:"dropped,omitempty"` // 出发村已易主，部队解散
}

// ReinforcePayload 是 reinforcement_arrived 的负载。
type ReinforcePayload struct {
	ArmyID entity.ArmyID    `json:"army_id"`
	Origin entity.VillageID `json:"origin"`
	Units  entity.Units     `json:"units"`
}

type Handler func(ctx context.Context, e Event)

type Bus struct {
	mu     sync.RWMutex
	byKind map[Kind][]Handler
	all    []Handler
	logger logx.Logger
}

func NewBus(logger logx.Logger) *Bus {
	if logger == nil {
		logger = logx.NewZapLogger(nil)
	}
	return &Bus{byKind: make(map[Kind][]Handler), logger: logger}
}

// On 订阅某类事件。
func (b *Bus) On(kind Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byKind[kind] = append(b.byKind[kind], h)
}

// OnAll 订阅全部事件。
func (b *Bus) OnAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Publish 同步调用订阅者；单个订阅者 panic 不影响其余订阅者和调用方。
func (b *Bus) Publish(ctx context.Context, evs ...Event) {
	if b == nil {
		return
	}
	for _, e := range evs {
		b.mu.RLock()
		hs := append(append([]Handler(nil), b.byKind[e.Kind]...), b.all...)
		b.mu.RUnlock()
		for _, h := range hs {
			b.call(ctx, h, e)
		}
	}
}

func (b *Bus) call(ctx context.Context, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithContext(ctx).Error("event handler panic",
				zap.String("kind", string(e.Kind)),
				zap.Int64("village_id", int64(e.VillageID)),
				zap.Any("panic", r),
			)
		}
	}()
	h(ctx, e)
}
