package logx

import (
	"context"

	"go.uber.org/zap"
)

// Logger 是引擎各层共用的最小日志接口。
// WithContext 从 ctx 取 trace、村庄、玩家和 tick 字段（见 tracex），调用方只写业务字段。
type Logger interface {
	Info(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Debug(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	WithContext(ctx context.Context) Logger
}
