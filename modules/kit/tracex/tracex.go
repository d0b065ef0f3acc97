// Package tracex 在 context 中携带链路标识（trace/span）和当前处理的世界实体 id，
// 日志适配器从这里取字段，业务代码不必层层传参。
package tracex

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

type ctxKey int

const (
	traceIDKey ctxKey = iota
	spanIDKey
	villageIDKey
	playerIDKey
	tickKey
)

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceIDFrom(ctx context.Context) (string, bool) {
	return stringFrom(ctx, traceIDKey)
}

func WithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, spanIDKey, spanID)
}

func SpanIDFrom(ctx context.Context) (string, bool) {
	return stringFrom(ctx, spanIDKey)
}

// WithVillage 标记当前处理的村庄；id <= 0 时原样返回。
func WithVillage(ctx context.Context, villageID int64) context.Context {
	if villageID <= 0 {
		return ctx
	}
	return context.WithValue(ctx, villageIDKey, villageID)
}

func VillageFrom(ctx context.Context) (int64, bool) {
	return int64From(ctx, villageIDKey)
}

// WithPlayer 标记发起命令的玩家；蛮族（0）不记录。
func WithPlayer(ctx context.Context, playerID int64) context.Context {
	if playerID <= 0 {
		return ctx
	}
	return context.WithValue(ctx, playerIDKey, playerID)
}

func PlayerFrom(ctx context.Context) (int64, bool) {
	return int64From(ctx, playerIDKey)
}

// WithTick 标记本次推进的目标时刻（毫秒）。
func WithTick(ctx context.Context, atMillis int64) context.Context {
	return context.WithValue(ctx, tickKey, atMillis)
}

func TickFrom(ctx context.Context) (int64, bool) {
	return int64From(ctx, tickKey)
}

// NewTraceID 生成 16 字节随机 trace_id（hex）。
func NewTraceID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return ""
	}
	return hex.EncodeToString(b[:])
}

func stringFrom(ctx context.Context, k ctxKey) (string, bool) {
	s, ok := ctx.Value(k).(string)
	return s, ok && s != ""
}

func int64From(ctx context.Context, k ctxKey) (int64, bool) {
	v, ok := ctx.Value(k).(int64)
	return v, ok
}
