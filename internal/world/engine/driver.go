package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"TribalRealms/modules/kit/logx"
)

// Run 是引擎的驱动循环：按 interval 兜底轮询，最近的到期事件更早时提前醒来，
// 新指令写入事件后通过 notify 立即重新计算等待时长。
// 墙上时间只在这里读取，引擎内部一律使用传入的 now。
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	timer := time.NewTimer(0)
	defer timer.Stop()

	e.log.WithContext(ctx).Info("engine loop started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			e.log.Info("engine loop stopped")
			return nil
		case <-e.wake:
		case <-timer.C:
		}

		stats, err := e.Tick(ctx, time.Now())
		if err != nil {
			logx.ReportSysErrorWithLoggerContext(ctx, e.log, logx.NewSysLog("engine.tick", err),
				zap.Int("applied", stats.Applied), zap.Int("requeued", stats.Requeued))
		} else if stats.Applied+stats.Stale > 0 {
			e.log.WithContext(ctx).Debug("tick done",
				zap.Int("applied", stats.Applied), zap.Int("stale", stats.Stale))
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(e.nextWait(time.Now(), interval, err != nil))
	}
}

// nextWait 存储出错时按完整间隔退避，否则等到最近事件或 interval，取较小者。
func (e *Engine) nextWait(now time.Time, interval time.Duration, failed bool) time.Duration {
	if failed {
		return interval
	}
	due, ok := e.clock.NextDue()
	if !ok {
		return interval
	}
	return max(min(due.Sub(now), interval), 0)
}
