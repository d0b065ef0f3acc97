package ws

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"TribalRealms/modules/kit/logx"
)

// Hub 按玩家维护推送连接，一个玩家可以有多条连接。
type Hub struct {
	mu sync.RWMutex
	clients map[int64]map[WSConn]struct{}
	log logx.Logger
}

func NewHub(l logx.Logger) *Hub {
	if l == nil {
		l = logx.NewZapLogger(nil)
	}
	return &Hub{clients: make(map[int64]map[WSConn]struct{}), log: l}
}

func (h *Hub) Register(uid int64, c WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[uid]
	if set == nil {
		set = make(map[WSConn]struct{})
		h.clients[uid] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) Unregister(uid int64, c WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[uid]
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, uid)
	}
}

// Send 推给指定玩家的全部连接，返回成功投递的连接数。
func (h *Hub) Send(uids []int64, name string, data any) int {
	h.mu.RLock()
	targets := make([]WSConn, 0, len(uids))
	for _, uid := range uids {
		for c := range h.clients[uid] {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	n := 0
	for _, c := range targets {
		if c.Push(name, data) {
			n++
		}
	}
	return n
}

func (h *Hub) Online(uid int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[uid])
}

// Server 负责升级连接并挂到 Hub。
type Server struct {
	hub    *Hub
	secret []byte
	buffer int
	log    logx.Logger
}

func NewServer(hub *Hub, secret string, buffer int, l logx.Logger) *Server {
	if l == nil {
		l = logx.NewZapLogger(nil)
	}
	var key []byte
	if secret != "" {
		key = []byte(secret)
	}
	return &Server{hub: hub, secret: key, buffer: buffer, log: l}
}

// Serve 升级为 websocket 并注册到 uid 名下，连接关闭时自动注销。
func (s *Server) Serve(resp http.ResponseWriter, req *http.Request, uid int64) {
	upgrader := websocket.Upgrader{
		// 允许所有CORS跨域请求
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	wsConn, err := upgrader.Upgrade(resp, req, nil)
	if err != nil {
		s.log.Error("websocket upgrade error", zap.Error(err))
		return
	}

	conn := NewWsServer(wsConn, s.secret, s.buffer, s.log)
	conn.SetProperty(ConnKeyUID, uid)
	s.hub.Register(uid, conn)
	conn.Run()
	s.log.Info("websocket upgrade success", zap.Int64("uid", uid), zap.String("addr", conn.Addr()))

	go func() {
		<-conn.Done()
		s.hub.Unregister(uid, conn)
	}()
}
