package events

import (
	"context"
	"testing"
)

func TestBus_按类型与全量订阅(t *testing.T) {
	b := NewBus(nil)
	var kindHits, allHits int
	b.On(VillageConquered, func(ctx context.Context, e Event) { kindHits++ })
	b.OnAll(func(ctx context.Context, e Event) { allHits++ })

	b.Publish(context.Background(), Event{Kind: VillageConquered}, Event{Kind: QueueCompleted})
	if kindHits != 1 || allHits != 2 {
		t.Fatalf("期望按类型命中 1 次、全量 2 次，got=%d/%d", kindHits, allHits)
	}
}

func TestBus_订阅者panic不影响其他订阅者(t *testing.T) {
	b := NewBus(nil)
	var hit bool
	b.On(ArmyReturned, func(ctx context.Context, e Event) { panic("boom") })
	b.On(ArmyReturned, func(ctx context.Context, e Event) { hit = true })
	b.Publish(context.Background(), Event{Kind: ArmyReturned})
	if !hit {
		t.Fatalf("期望后续订阅者仍被调用")
	}
}
