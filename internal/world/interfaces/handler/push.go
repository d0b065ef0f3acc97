package handler

import (
	"context"

	"go.uber.org/zap"

	"TribalRealms/internal/world/events"
	"TribalRealms/modules/kit/logx"
)

// Sender 是推送目标，由 ws.Hub 实现。
type Sender interface {
	Send(uids []int64, name string, data any) int
}

// Pusher 把总线上的领域事件推给相关玩家的 websocket 连接。
type Pusher struct {
	sender Sender
	log    logx.Logger
}

func NewPusher(sender Sender, l logx.Logger) *Pusher {
	if l == nil {
		l = logx.NewZapLogger(nil)
	}
	return &Pusher{sender: sender, log: l}
}

func (p *Pusher) Subscribe(bus *events.Bus) {
	bus.OnAll(p.push)
}

func (p *Pusher) push(ctx context.Context, e events.Event) {
	if len(e.Players) == 0 {
		return
	}
	uids := make([]int64, 0, len(e.Players))
	for _, pid := range e.Players {
		uids = append(uids, int64(pid))
	}
	n := p.sender.Send(uids, string(e.Kind), e)
	p.log.WithContext(ctx).Debug("domain event pushed",
		zap.String("kind", string(e.Kind)),
		zap.Int64("village_id", int64(e.VillageID)),
		zap.Int("conns", n))
}
