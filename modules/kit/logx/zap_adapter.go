package logx

import (
	"context"

	"go.uber.org/zap"

	"TribalRealms/modules/kit/tracex"
)

// ZapLogger 是 zap 的适配器。WithContext 会把 ctx 里的 trace 与世界实体 id 带到字段上。
type ZapLogger struct {
	logger *zap.Logger
}

func NewZapLogger(l *zap.Logger) *ZapLogger {
	if l == nil {
		return &ZapLogger{logger: zap.NewNop()}
	}
	return &ZapLogger{logger: l}
}

func (z *ZapLogger) WithContext(ctx context.Context) Logger {
	if z == nil {
		return NewZapLogger(nil)
	}
	return &ZapLogger{logger: z.logger.With(ContextFields(ctx)...)}
}

// ContextFields 返回 ctx 中可识别的日志字段。
func ContextFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	var fields []zap.Field
	if tid, ok := tracex.TraceIDFrom(ctx); ok {
		fields = append(fields, zap.String("trace_id", tid))
	}
	if sid, ok := tracex.SpanIDFrom(ctx); ok {
		fields = append(fields, zap.String("span_id", sid))
	}
	if vid, ok := tracex.VillageFrom(ctx); ok {
		fields = append(fields, zap.Int64("village_id", vid))
	}
	if pid, ok := tracex.PlayerFrom(ctx); ok {
		fields = append(fields, zap.Int64("player_id", pid))
	}
	if at, ok := tracex.TickFrom(ctx); ok {
		fields = append(fields, zap.Int64("tick_at", at))
	}
	return fields
}

func (z *ZapLogger) Info(msg string, fields ...zap.Field) {
	z.logger.Info(msg, fields...)
}

func (z *ZapLogger) Error(msg string, fields ...zap.Field) {
	z.logger.Error(msg, fields...)
}

func (z *ZapLogger) Debug(msg string, fields ...zap.Field) {
	z.logger.Debug(msg, fields...)
}

func (z *ZapLogger) Warn(msg string, fields ...zap.Field) {
	z.logger.Warn(msg, fields...)
}
