package engine

import (
	"context"
	"errors"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"TribalRealms/internal/world/entity"
	"TribalRealms/modules/kit/logx"
	"TribalRealms/modules/kit/tracex"
)

// TickStats 是一次 Tick 的处理统计。
type TickStats struct {
	Applied  int `json:"applied"`
	Stale    int `json:"stale"`
	Requeued int `json:"requeued"`
}

// Tick 处理所有 due <= now 的事件。
//
// 到期事件按目标村庄分组，组间在有限的 worker 上并行，组内严格按 (due, seq) 串行。
// 处理过程中链式产生的到期事件会在下一轮继续处理，直到没有到期事件。
// 存储不可用时该组剩余事件放回时钟，错误向上返回。
func (e *Engine) Tick(ctx context.Context, now time.Time) (TickStats, error) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	start := time.Now()
	defer func() {
		e.metrics.tickDuration.Observe(time.Since(start).Seconds())
		e.metrics.queueDepth.Set(float64(e.clock.Len()))
	}()

	now = entity.Millis(now)
	ctx = tracex.WithTick(ctx, now.UnixMilli())
	var stats TickStats
	for {
		groups, order := e.collect(now)
		if len(order) == 0 {
			return stats, nil
		}

		results := make([]TickStats, len(order))
		p := pool.New().WithMaxGoroutines(e.cfg.DispatchWorkers).WithErrors()
		for i, id := range order {
			evs := groups[id]
			p.Go(func() error {
				return e.runGroup(ctx, evs, now, &results[i])
			})
		}
		err := p.Wait()
		for _, r := range results {
			stats.Applied += r.Applied
			stats.Stale += r.Stale
			stats.Requeued += r.Requeued
		}
		if err != nil {
			return stats, err
		}
	}
}

// collect 取出本轮所有到期事件，按村庄分组并保留首次出现的顺序。
func (e *Engine) collect(now time.Time) (map[entity.VillageID][]entity.ScheduledEvent, []entity.VillageID) {
	groups := make(map[entity.VillageID][]entity.ScheduledEvent)
	var order []entity.VillageID
	for ev := range e.clock.AdvanceTo(now) {
		if _, ok := groups[ev.VillageID]; !ok {
			order = append(order, ev.VillageID)
		}
		groups[ev.VillageID] = append(groups[ev.VillageID], ev)
	}
	return groups, order
}

func (e *Engine) runGroup(ctx context.Context, evs []entity.ScheduledEvent, now time.Time, stats *TickStats) error {
	for i, ev := range evs {
		err := e.dispatch(ctx, ev, now)
		switch {
		case err == nil:
			stats.Applied++
			e.metrics.dispatched.WithLabelValues(string(ev.Kind), "applied").Inc()
		case errors.Is(err, entity.ErrStaleEvent):
			stats.Stale++
			e.metrics.dispatched.WithLabelValues(string(ev.Kind), "stale").Inc()
			e.dropStale(ctx, ev, err)
		default:
			rest := evs[i:]
			e.clock.Requeue(rest...)
			stats.Requeued += len(rest)
			e.metrics.dispatched.WithLabelValues(string(ev.Kind), "requeued").Add(float64(len(rest)))
			logx.ReportSysErrorWithLoggerContext(ctx, e.log, logx.NewSysLog("engine.dispatch", err), eventFields(ev)...)
			return err
		}
	}
	return nil
}

func (e *Engine) dispatch(ctx context.Context, ev entity.ScheduledEvent, now time.Time) error {
	h, ok := e.handlers[ev.Kind]
	if !ok {
		return entity.ErrStaleEvent.WithData("reason", "unknown event kind")
	}
	return e.withRetry(ctx, ev, func() error { return h(ctx, ev, now) })
}

// withRetry 对并发写冲突有限次重试。
func (e *Engine) withRetry(ctx context.Context, ev entity.ScheduledEvent, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !errors.Is(err, entity.ErrConflict) || attempt >= e.cfg.MaxConflictRetries {
			return err
		}
		e.log.WithContext(ctx).Warn("event conflict, retrying", append(eventFields(ev), zap.Int("attempt", attempt+1))...)
	}
}

// dropStale 过期事件只记日志并删除事件行，不重试。
func (e *Engine) dropStale(ctx context.Context, ev entity.ScheduledEvent, cause error) {
	e.log.WithContext(ctx).Warn("stale event dropped", append(eventFields(ev), zap.Error(cause))...)
	if err := e.store.DiscardEvents(ctx, ev.Key()); err != nil {
		logx.ReportSysErrorWithLoggerContext(ctx, e.log, logx.NewSysLog("engine.discard_event", err), eventFields(ev)...)
	}
}

func eventFields(ev entity.ScheduledEvent) []zap.Field {
	return []zap.Field{
		zap.String("kind", string(ev.Kind)),
		zap.Time("due", ev.Due),
		zap.Int64("seq", ev.Seq),
		zap.Int64("village_id", int64(ev.VillageID)),
		zap.Int64("item_id", ev.ItemID),
		zap.Int64("army_id", int64(ev.ArmyID)),
	}
}
