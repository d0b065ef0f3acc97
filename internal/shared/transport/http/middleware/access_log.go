package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"TribalRealms/internal/shared/transport"
	"TribalRealms/modules/kit/logx"
)

// 只缓存 JSON 响应体的前若干字节，足够解析 code/reason。
const maxCapture = 4 << 10

type bodyCaptureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyCaptureWriter) Write(data []byte) (int, error) {
	w.capture(data)
	return w.ResponseWriter.Write(data)
}

func (w *bodyCaptureWriter) WriteString(s string) (int, error) {
	w.capture([]byte(s))
	return w.ResponseWriter.WriteString(s)
}

func (w *bodyCaptureWriter) capture(data []byte) {
	if room := maxCapture - w.body.Len(); room > 0 {
		_, _ = w.body.Write(data[:min(room, len(data))])
	}
}

// AccessLog 统一写访问日志，从响应体的 code/reason 字段提取业务码和失败原因。
// skip 中的路由（/healthz、/metrics 这类探针）不记录。
func AccessLog(log logx.Logger, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		if _, ok := skipped[route]; ok {
			c.Next()
			return
		}
		action := c.Request.Method + " " + route

		ctx := transport.NewContextWithParent(c.Request.Context(), action)
		c.Request = c.Request.WithContext(ctx)

		bw := &bodyCaptureWriter{ResponseWriter: c.Writer}
		c.Writer = bw

		c.Next()

		if bizCode, reason, ok := parseBody(bw.body.Bytes()); ok {
			transport.SetBizCode(ctx, transport.BizCode(bizCode))
			if al := transport.FromContext(ctx); al != nil && al.ErrorReason == "" {
				transport.SetErrorReason(ctx, reason)
			}
		} else if c.Writer.Status() >= http.StatusInternalServerError {
			transport.SetBizCode(ctx, transport.BizCode(transport.SystemError))
		} else if c.Writer.Status() >= http.StatusBadRequest {
			transport.SetBizCode(ctx, transport.BizCode(c.Writer.Status()))
		} else {
			transport.SetBizCode(ctx, transport.BizCode(transport.OK))
		}

		transport.WriteAccessLog(ctx, log)
	}
}

// parseBody 按统一响应体 {"code":422,"reason":"QUEUE_FULL",...} 解析。
func parseBody(body []byte) (int, string, bool) {
	if len(body) == 0 {
		return 0, "", false
	}
	var payload struct {
		Code   *int   `json:"code"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Code == nil {
		return 0, "", false
	}
	return *payload.Code, payload.Reason, true
}
