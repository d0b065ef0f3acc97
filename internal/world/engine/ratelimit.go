package engine

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"TribalRealms/internal/world/entity"
)

// playerLimiter 按玩家做令牌桶限流，时间由调用方传入。
type playerLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[entity.PlayerID]*rate.Limiter
}

func newPlayerLimiter(perSecond float64, burst int) *playerLimiter {
	if perSecond <= 0 {
		return nil
	}
	return &playerLimiter{
		limit:   rate.Limit(perSecond),
		burst:   max(burst, 1),
		buckets: make(map[entity.PlayerID]*rate.Limiter),
	}
}

func (l *playerLimiter) Allow(player entity.PlayerID, now time.Time) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	b, ok := l.buckets[player]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[player] = b
	}
	l.mu.Unlock()
	return b.AllowN(now, 1)
}
