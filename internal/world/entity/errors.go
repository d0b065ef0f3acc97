package entity

import (
	"errors"

	"TribalRealms/modules/kit/errx"
)

// Code 表示世界引擎的错误码，对外协议直接透出。
type Code = errx.Code

const (
	CodeInsufficientResources  Code = "INSUFFICIENT_RESOURCES"
	CodeInsufficientTroops     Code = "INSUFFICIENT_TROOPS"
	CodeInsufficientPopulation Code = "INSUFFICIENT_POPULATION"
	CodeQueueFull              Code = "QUEUE_FULL"
	CodeMaxLevelReached        Code = "MAX_LEVEL_REACHED"
	CodeInvalidDestination     Code = "INVALID_DESTINATION"
	CodeUnknownBuilding        Code = "UNKNOWN_BUILDING"
	CodeUnknownUnit            Code = "UNKNOWN_UNIT"
	CodeBuildingRequired       Code = "BUILDING_REQUIRED"
	CodeInvalidCommand         Code = "INVALID_COMMAND"
	CodeNotOwner               Code = "NOT_OWNER"
	CodeInvalidTime            Code = "INVALID_TIME"
	CodeInvalidSchedule        Code = "INVALID_SCHEDULE"
	CodeStaleEvent             Code = "STALE_EVENT"
	CodeNotFound               Code = errx.CodeNotFound
	CodeConflict               Code = errx.CodeConflict
	// CodePersistenceUnavailable 复用 kit 的统一系统码，存储不可用时告警口径一致。
	CodePersistenceUnavailable Code = errx.CodeUnavailable
)

// 校验类错误（业务拒绝，不带栈，不改任何状态）。
var (
	ErrInsufficientResources  = errx.NewBiz(CodeInsufficientResources, "资源不足")
	ErrInsufficientTroops     = errx.NewBiz(CodeInsufficientTroops, "兵力不足")
	ErrInsufficientPopulation = errx.NewBiz(CodeInsufficientPopulation, "人口不足")
	ErrQueueFull              = errx.NewBiz(CodeQueueFull, "队列已满")
	ErrMaxLevelReached        = errx.NewBiz(CodeMaxLevelReached, "已达最高等级")
	ErrInvalidDestination     = errx.NewBiz(CodeInvalidDestination, "目标村庄无效")
	ErrUnknownBuilding        = errx.NewBiz(CodeUnknownBuilding, "未知建筑")
	ErrUnknownUnit            = errx.NewBiz(CodeUnknownUnit, "未知兵种")
	ErrBuildingRequired       = errx.NewBiz(CodeBuildingRequired, "缺少前置建筑")
	ErrInvalidCommand         = errx.NewBiz(CodeInvalidCommand, "指令非法")
	ErrNotOwner               = errx.NewBiz(CodeNotOwner, "不是村庄主人")
	ErrNotFound               = errx.NewBiz(CodeNotFound, "村庄不存在")
)

// 调度/时间类错误。
var (
	ErrInvalidTime     = errx.NewBiz(CodeInvalidTime, "结算时间早于上次结算")
	ErrInvalidSchedule = errx.NewBiz(CodeInvalidSchedule, "事件到期时间早于当前时间")
	ErrStaleEvent      = errx.NewBiz(CodeStaleEvent, "事件已过期")
)

// 并发/存储类错误（系统错误，第一次挂 cause 时捕获栈）。
var (
	ErrConflict               = errx.NewSys(CodeConflict, "并发写冲突")
	ErrPersistenceUnavailable = errx.NewSys(CodePersistenceUnavailable, "存储不可用")
)

// 仓储层哨兵错误，由 store 转换成上面的 errx 错误。
var (
	ErrVillageNotFound = errors.New("village not found")
	ErrArmyNotFound    = errors.New("army not found")
	ErrStaleVersion    = errors.New("village version mismatch")
	ErrCoordinateTaken = errors.New("coordinate already taken")
)

// IsValidation 判断是否为同步校验类错误（可直接回给玩家）。
func IsValidation(err error) bool {
	e, ok := errx.As(err)
	return ok && e.IsBiz()
}
