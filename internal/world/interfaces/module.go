package interfaces

import (
	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"

	"TribalRealms/internal/shared/gameconfig"
	"TribalRealms/internal/shared/transport/ws"
	"TribalRealms/internal/world/engine"
	"TribalRealms/internal/world/events"
	"TribalRealms/internal/world/interfaces/handler"
	httph "TribalRealms/internal/world/interfaces/handler/http"
	"TribalRealms/internal/world/interfaces/handler/rpc"
	"TribalRealms/internal/world/ledger"
	"TribalRealms/modules/kit/logx"
)

// Module 汇总引擎的对外入口：HTTP、grpc 和 websocket 推送。
type Module struct {
	http   *httph.HttpHandler
	rpc    *rpc.EngineService
	pusher *handler.Pusher
}

func New(eng *engine.Engine, tables *gameconfig.Tables, hub *ws.Hub, wsServer *ws.Server, l logx.Logger) *Module {
	opts := httph.Options{
		Commander: eng,
		Reader:    eng.Store(),
		Ledger:    ledger.New(tables),
		Logger:    l,
	}
	if wsServer != nil {
		opts.WS = wsServer
	}
	m := &Module{
		http: httph.NewHttpHandler(opts),
		rpc:  rpc.NewEngineService(eng, l),
	}
	if hub != nil {
		m.pusher = handler.NewPusher(hub, l)
	}
	return m
}

func (m *Module) RegisterHTTP(group *gin.RouterGroup) {
	m.http.RegisterRoutes(group)
}

func (m *Module) RegisterGRPC(s grpc.ServiceRegistrar) {
	rpc.RegisterEngineServer(s, m.rpc)
}

// Subscribe 把领域事件接到 websocket 推送。
func (m *Module) Subscribe(bus *events.Bus) {
	if m.pusher != nil {
		m.pusher.Subscribe(bus)
	}
}
