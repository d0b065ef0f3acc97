package transport

// BizCode 表示业务码的强类型封装，用于在日志上下文中减少误传风险。
// 约定：0 成功；1~499 业务拒绝（WARN）；>=500 系统错误（ERROR）。
type BizCode int

const (
	OK           = 0
	InvalidParam = 400
	Unauthorized = 401
	Forbidden    = 403
	NotFound     = 404
	Conflict     = 409
	Rejected     = 422
	TooManyReqs  = 429
	SystemError  = 500
	Unavailable  = 503
)
