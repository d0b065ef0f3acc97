// Package errs 包装仓储层的基础设施错误，保留发生位置和关键参数，
// 上层据此区分"存储不可用"和"数据损坏"。
package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindUnknown Kind = "unknown"
	// KindInfra 连接、超时、事务失败等，可重试。
	KindInfra Kind = "infra"
	// KindCodec 行数据无法解码成领域对象。
	KindCodec Kind = "codec"
)

type Error struct {
	Op    string  // 发生位置：world_repo.commit / world_repo.load_village
	Kind  Kind
	Meta  map[string]any  // 关键参数（village_id, world_id...）
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Op
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Operation 和 Class 供日志层提取字段。
func (e *Error) Operation() string { return e.Op }

func (e *Error) Class() string { return string(e.Kind) }

// Wrap 是统一包装入口，cause 为 nil 时返回 nil。
func Wrap(op string, kind Kind, cause error, meta map[string]any) error {
	if cause == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Cause: cause, Meta: meta}
}

// KindOf 返回错误链上第一个 *Error 的分类。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
