// Package clock 是世界内定时事件的内存队列，按 (due, seq) 全序出队。
//
// 持久化由 store 负责：事件行与调度它的 mutation 在同一个存储单元写入，
// 提交成功后再 Admit 进内存；重启时用 Restore 从存储重建。
package clock

import (
	"container/heap"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"TribalRealms/internal/world/entity"
)

type Clock struct {
	mu     sync.Mutex
	queue  eventHeap
	queued map[entity.EventKey]struct{}
	seq    atomic.Int64
}

func New() *Clock {
	return &Clock{queued: make(map[entity.EventKey]struct{})}
}

// Stage 校验到期时间并分配序号，不入队。
// due 早于 now 返回 ErrInvalidSchedule。
func (c *Clock) Stage(ev entity.ScheduledEvent, now time.Time) (entity.ScheduledEvent, error) {
	ev.Due = entity.Millis(ev.Due)
	if ev.Due.Before(entity.Millis(now)) {
		return ev, entity.ErrInvalidSchedule.WithDataMap(map[string]any{
			"kind": ev.Kind,
			"due":  ev.Due,
			"now":  now,
		})
	}
	ev.Seq = c.seq.Add(1)
	return ev, nil
}

// Admit 把已持久化的事件放入内存队列，重复的 key 忽略。
func (c *Clock) Admit(evs ...entity.ScheduledEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ev := range evs {
		k := ev.Key()
		if _, ok := c.queued[k]; ok {
			continue
		}
		c.queued[k] = struct{}{}
		heap.Push(&c.queue, ev)
	}
}

// Schedule = Stage + Admit，用于不需要持久化的场景（测试、CLI 预演）。
func (c *Clock) Schedule(ev entity.ScheduledEvent, now time.Time) (entity.ScheduledEvent, error) {
	staged, err := c.Stage(ev, now)
	if err != nil {
		return staged, err
	}
	c.Admit(staged)
	return staged, nil
}

// Requeue 把处理失败（存储不可用）的事件放回队列，下个 tick 重试。
func (c *Clock) Requeue(evs ...entity.ScheduledEvent) {
	c.Admit(evs...)
}

// AdvanceTo 惰性地产出所有 due <= now 的事件，每产出一个就从队列里移除。
// 迭代过程中新 Admit 的到期事件也会被产出；调用方提前 break 时剩余事件保留在队列中。
func (c *Clock) AdvanceTo(now time.Time) iter.Seq[entity.ScheduledEvent] {
	now = entity.Millis(now)
	return func(yield func(entity.ScheduledEvent) bool) {
		for {
			ev, ok := c.popDue(now)
			if !ok {
				return
			}
			if !yield(ev) {
				return
			}
		}
	}
}

func (c *Clock) popDue(now time.Time) (entity.ScheduledEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 || c.queue[0].Due.After(now) {
		return entity.ScheduledEvent{}, false
	}
	ev := heap.Pop(&c.queue).(entity.ScheduledEvent)
	delete(c.queued, ev.Key())
	return ev, true
}

// Restore 用存储中的事件重建队列，序号从已有最大值继续。
func (c *Clock) Restore(evs []entity.ScheduledEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = make(eventHeap, 0, len(evs))
	c.queued = make(map[entity.EventKey]struct{}, len(evs))
	var maxSeq int64
	for _, ev := range evs {
		k := ev.Key()
		if _, ok := c.queued[k]; ok {
			continue
		}
		c.queued[k] = struct{}{}
		c.queue = append(c.queue, ev)
		maxSeq = max(maxSeq, ev.Seq)
	}
	heap.Init(&c.queue)
	if cur := c.seq.Load(); maxSeq > cur {
		c.seq.Store(maxSeq)
	}
}

// NextDue 最早的到期时间，队列为空返回 false。
func (c *Clock) NextDue() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return time.Time{}, false
	}
	return c.queue[0].Due, true
}

func (c *Clock) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// HasKind 队列里是否存在某类事件（周期维护事件只保留一个）。
func (c *Clock) HasKind(kind entity.EventKind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ev := range c.queue {
		if ev.Kind == kind {
			return true
		}
	}
	return false
}

type eventHeap []entity.ScheduledEvent

func (h eventHeap) Len() int           { return len(h) }
func (h eventHeap) Less(i, j int) bool { return h[i].Before(h[j]) }
func (h eventHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(entity.ScheduledEvent))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
