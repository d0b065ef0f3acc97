package http

// Response 是所有 HTTP 接口的统一回包，code 与 transport 业务码一致。
type Response struct {
	Code   int    `json:"code"`
	Reason string `json:"reason,omitempty"`
	Msg    string `json:"msg"`
	Data   any    `json:"data,omitempty"`
}

func Success(data any) Response {
	return Response{Code: 0, Msg: "ok", Data: data}
}

func Error(code int, reason, msg string) Response {
	return Response{Code: code, Reason: reason, Msg: msg}
}
