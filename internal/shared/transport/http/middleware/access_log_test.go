package middleware

import (
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"TribalRealms/modules/kit/logx"
)

func newEngine(t *testing.T) (*gin.Engine, *observer.ObservedLogs) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	r := gin.New()
	r.Use(AccessLog(logx.NewZapLogger(zap.New(core)), "/healthz"))
	r.GET("/healthz", func(c *gin.Context) { c.String(nethttp.StatusOK, "ok") })
	r.POST("/v1/villages/:id/commands", func(c *gin.Context) {
		c.JSON(422, gin.H{"code": 422, "reason": "QUEUE_FULL", "msg": "队列已满"})
	})
	r.GET("/plain", func(c *gin.Context) { c.String(nethttp.StatusServiceUnavailable, "down") })
	return r, logs
}

func TestAccessLog_从响应体提取业务码与原因(t *testing.T) {
	r, logs := newEngine(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(nethttp.MethodPost, "/v1/villages/3/commands", nil))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("期望一条访问日志，got=%d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["biz_code"] != int64(422) || fields["error_reason"] != "QUEUE_FULL" {
		t.Fatalf("字段不符: %v", fields)
	}
	if fields["action"] != "POST /v1/villages/:id/commands" {
		t.Fatalf("action 应使用路由模板，got=%v", fields["action"])
	}
}

func TestAccessLog_跳过探针与非JSON响应(t *testing.T) {
	r, logs := newEngine(t)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(nethttp.MethodGet, "/healthz", nil))
	if logs.Len() != 0 {
		t.Fatalf("探针不应记录访问日志")
	}

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(nethttp.MethodGet, "/plain", nil))
	entries := logs.All()
	if len(entries) != 1 || entries[0].ContextMap()["biz_code"] != int64(500) {
		t.Fatalf("非 JSON 的 5xx 应记为系统错误: %v", entries)
	}
}
