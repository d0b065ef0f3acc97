package http

import (
	"context"
	"encoding/json"
	nethttp "net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"TribalRealms/internal/shared/security"
	"TribalRealms/internal/shared/transport"
	"TribalRealms/internal/world/command"
	"TribalRealms/internal/world/engine"
	"TribalRealms/internal/world/entity"
	"TribalRealms/internal/world/interfaces/handler"
	"TribalRealms/internal/world/ledger"
	"TribalRealms/modules/kit/logx"
)

const (
	maxBoxSpan     = 100
	defaultReports = 20
	maxReports     = 200
)

// Commander 是指令入口，由 engine.Engine 实现。
type Commander interface {
	IssueCommand(ctx context.Context, player entity.PlayerID, villageID entity.VillageID,
		payload command.Payload, now time.Time) (*engine.CommandResult, error)
}

// VillageReader 是只读查询入口，由村庄状态存储实现。
type VillageReader interface {
	Get(ctx context.Context, id entity.VillageID) (*entity.Village, error)
	VillagesInBox(ctx context.Context, x0, y0, x1, y1 int) ([]*entity.Village, error)
	ListReports(ctx context.Context, villageID entity.VillageID, limit int) ([]*entity.BattleReport, error)
}

// WSServer 把已鉴权的连接挂到推送 Hub。
type WSServer interface {
	Serve(resp nethttp.ResponseWriter, req *nethttp.Request, uid int64)
}

type Options struct {
	Commander Commander
	Reader    VillageReader
	// Ledger 非空时查询结果按当前时间结算资源（只读，不落库）。
	Ledger *ledger.Ledger
	WS     WSServer
	// Auth 从 Authorization 头解析玩家 id，默认使用 JWT。
	Auth   func(header string) (int64, error)
	Now    func() time.Time
	Logger logx.Logger
}

type HttpHandler struct {
	cmd    Commander
	reader VillageReader
	ledger *ledger.Ledger
	ws     WSServer
	auth   func(header string) (int64, error)
	now    func() time.Time
	log    logx.Logger
}

func NewHttpHandler(o Options) *HttpHandler {
	if o.Auth == nil {
		o.Auth = security.PlayerFromBearer
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = logx.NewZapLogger(nil)
	}
	return &HttpHandler{
		cmd:    o.Commander,
		reader: o.Reader,
		ledger: o.Ledger,
		ws:     o.WS,
		auth:   o.Auth,
		now:    o.Now,
		log:    o.Logger,
	}
}

func (h *HttpHandler) RegisterRoutes(group *gin.RouterGroup) {
	v1 := group.Group("/v1")
	villages := v1.Group("/villages")
	villages.GET("", h.ListVillages)
	villages.GET("/:id", h.GetVillage)
	villages.GET("/:id/reports", h.ListReports)
	villages.POST("/:id/commands", h.IssueCommand)
	if h.ws != nil {
		v1.GET("/ws/events", h.Events)
	}
}

func (h *HttpHandler) IssueCommand(c *gin.Context) {
	ctx := c.Request.Context()

	player, ok := h.player(c)
	if !ok {
		return
	}
	villageID, ok := pathVillageID(c)
	if !ok {
		h.fail(c, transport.InvalidParam, string(entity.CodeInvalidCommand), "村庄 id 有误")
		return
	}
	transport.SetActor(ctx, player, int64(villageID))
	raw, err := c.GetRawData()
	if err != nil {
		h.fail(c, transport.InvalidParam, string(entity.CodeInvalidCommand), "读取请求体失败")
		return
	}
	body, err := validateCommand(raw)
	if err != nil {
		transport.SetErrorReason(ctx, err.Error())
		h.fail(c, transport.InvalidParam, string(entity.CodeInvalidCommand), "参数有误")
		return
	}
	payload, err := command.Decode(body)
	if err != nil {
		h.error(ctx, c, err)
		return
	}

	res, err := h.cmd.IssueCommand(ctx, entity.PlayerID(player), villageID, payload, h.now())
	if err != nil {
		h.error(ctx, c, err)
		return
	}
	h.ok(c, res)
}

func (h *HttpHandler) GetVillage(c *gin.Context) {
	ctx := c.Request.Context()

	villageID, ok := pathVillageID(c)
	if !ok {
		h.fail(c, transport.InvalidParam, string(entity.CodeInvalidCommand), "村庄 id 有误")
		return
	}
	v, err := h.reader.Get(ctx, villageID)
	if err != nil {
		h.error(ctx, c, err)
		return
	}
	h.ok(c, h.settle(v))
}

// ListVillages 按坐标框查询：/v1/villages?x0=&y0=&x1=&y1=
func (h *HttpHandler) ListVillages(c *gin.Context) {
	ctx := c.Request.Context()

	var box [4]int
	for i, key := range []string{"x0", "y0", "x1", "y1"} {
		n, err := strconv.Atoi(c.Query(key))
		if err != nil {
			h.fail(c, transport.InvalidParam, string(entity.CodeInvalidCommand), "坐标参数有误")
			return
		}
		box[i] = n
	}
	if abs(box[2]-box[0]) > maxBoxSpan || abs(box[3]-box[1]) > maxBoxSpan {
		h.fail(c, transport.InvalidParam, string(entity.CodeInvalidCommand), "查询范围过大")
		return
	}
	list, err := h.reader.VillagesInBox(ctx, box[0], box[1], box[2], box[3])
	if err != nil {
		h.error(ctx, c, err)
		return
	}
	out := make([]*entity.Village, 0, len(list))
	for _, v := range list {
		out = append(out, h.settle(v))
	}
	h.ok(c, out)
}

func (h *HttpHandler) ListReports(c *gin.Context) {
	ctx := c.Request.Context()

	villageID, ok := pathVillageID(c)
	if !ok {
		h.fail(c, transport.InvalidParam, string(entity.CodeInvalidCommand), "村庄 id 有误")
		return
	}
	limit := defaultReports
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			h.fail(c, transport.InvalidParam, string(entity.CodeInvalidCommand), "limit 有误")
			return
		}
		limit = min(n, maxReports)
	}
	list, err := h.reader.ListReports(ctx, villageID, limit)
	if err != nil {
		h.error(ctx, c, err)
		return
	}
	if list == nil {
		list = []*entity.BattleReport{}
	}
	h.ok(c, list)
}

// Events 升级为 websocket 推送。浏览器无法自定义握手头，允许 ?token= 传入。
func (h *HttpHandler) Events(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" && c.Query("token") != "" {
		header = "Bearer " + c.Query("token")
	}
	player, err := h.auth(header)
	if err != nil {
		transport.SetErrorReason(c.Request.Context(), err.Error())
		h.fail(c, transport.Unauthorized, "UNAUTHORIZED", "未登录或登录已过期")
		return
	}
	transport.SetActor(c.Request.Context(), player, 0)
	h.ws.Serve(c.Writer, c.Request, player)
}

func (h *HttpHandler) player(c *gin.Context) (int64, bool) {
	player, err := h.auth(c.GetHeader("Authorization"))
	if err != nil {
		transport.SetErrorReason(c.Request.Context(), err.Error())
		h.fail(c, transport.Unauthorized, "UNAUTHORIZED", "未登录或登录已过期")
		return 0, false
	}
	return player, true
}

func (h *HttpHandler) settle(v *entity.Village) *entity.Village {
	if h.ledger == nil || v == nil {
		return v
	}
	return h.ledger.SettleTo(v, entity.Millis(h.now()))
}

func (h *HttpHandler) ok(c *gin.Context, data any) {
	c.JSON(nethttp.StatusOK, Success(data))
}

func (h *HttpHandler) fail(c *gin.Context, code int, reason, msg string) {
	c.JSON(code, Error(code, reason, msg))
}

func (h *HttpHandler) error(ctx context.Context, c *gin.Context, err error) {
	code, reason, msg := handler.HandleError(ctx, err)
	if code >= transport.SystemError {
		logx.ReportSysErrorWithLoggerContext(ctx, h.log, logx.NewSysLog("world http", err))
	}
	h.fail(c, code, reason, msg)
}

func validateCommand(raw []byte) (map[string]any, error) {
	schema, err := CommandSchema()
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if err := schema.Validate(doc); err != nil {
		return nil, err
	}
	body, _ := doc.(map[string]any)
	return body, nil
}

func pathVillageID(c *gin.Context) (entity.VillageID, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return entity.VillageID(id), true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
