package ws

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"TribalRealms/internal/shared/security"
	"TribalRealms/modules/kit/logx"
)

const writeWait = 5 * time.Second

// WsServer 是一条下行推送连接。上行只处理心跳。
type WsServer struct {
	conn     *websocket.Conn
	outChan  chan *RespBody
	seq      atomic.Int64
	secret   []byte
	property map[string]any
	sync.RWMutex
	done      chan struct{}
	closeOnce sync.Once
	log       logx.Logger
}

func NewWsServer(wsConn *websocket.Conn, secret []byte, buffer int, l logx.Logger) *WsServer {
	if buffer <= 0 {
		buffer = 64
	}
	if l == nil {
		l = logx.NewZapLogger(nil)
	}
	return &WsServer{
		conn:     wsConn,
		outChan:  make(chan *RespBody, buffer),
		secret:   secret,
		property: make(map[string]any),
		done:     make(chan struct{}),
		log:      l,
	}
}

func (s *WsServer) SetProperty(key string, value any) {
	s.Lock()
	defer s.Unlock()
	s.property[key] = value
}

func (s *WsServer) GetProperty(key string) any {
	s.RLock()
	defer s.RUnlock()
	return s.property[key]
}

func (s *WsServer) Addr() string {
	return s.conn.RemoteAddr().String()
}

// Push 非阻塞投递；缓冲满说明客户端消费过慢，直接丢弃并返回 false。
func (s *WsServer) Push(name string, data any) bool {
	body := &RespBody{Seq: s.seq.Add(1), Name: name, Msg: data}
	select {
	case <-s.done:
		return false
	case s.outChan <- body:
		return true
	default:
		s.log.Warn("ws_server push dropped, slow consumer", zap.String("name", name), zap.String("addr", s.Addr()))
		return false
	}
}

func (s *WsServer) Run() {
	go s.readMsgLoop()
	go s.writeMsgLoop()
}

func (s *WsServer) readMsgLoop() {
	defer func() {
		if err := recover(); err != nil {
			s.log.Error("ws readMsgLoop error", zap.String("err", fmt.Sprintf("%v", err)))
		}
		s.Close()
	}()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.log.Debug("ws_server read msg", zap.Error(err))
			return
		}
		if len(s.secret) > 0 {
			if data, err = security.AesCBCDecrypt(data, s.secret); err != nil {
				s.log.Warn("ws_server readMsgLoop decrypt error", zap.Error(err))
				continue
			}
		}

		req := ReqBody{}
		if err := json.Unmarshal(data, &req); err != nil {
			s.log.Warn("ws_server readMsgLoop unmarshal json error", zap.Error(err))
			continue
		}
		if req.Name != HeartbeatMsg {
			continue
		}
		h := &Heartbeat{}
		if err := mapstructure.Decode(req.Msg, h); err != nil {
			s.log.Warn("ws_server heartbeat decode error", zap.Error(err))
		}
		h.STime = time.Now().UnixMilli()
		select {
		case s.outChan <- &RespBody{Seq: req.Seq, Name: HeartbeatMsg, Msg: h}:
		case <-s.done:
			return
		}
	}
}

func (s *WsServer) writeMsgLoop() {
	for {
		select {
		case msg := <-s.outChan:
			if err := s.write(msg); err != nil {
				s.log.Debug("ws_server write error", zap.Error(err))
				s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *WsServer) Close() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
		close(s.done)
	})
}

func (s *WsServer) Done() <-chan struct{} {
	return s.done
}

func (s *WsServer) write(msg *RespBody) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		s.log.Error("ws_server write marshal json error", zap.Error(err))
		return nil
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if len(s.secret) == 0 {
		return s.conn.WriteMessage(websocket.TextMessage, payload)
	}
	encrypted, err := security.AesCBCEncrypt(payload, s.secret)
	if err != nil {
		s.log.Error("ws_server write encrypt error", zap.Error(err))
		return nil
	}
	// 密文是二进制字节流，必须走 BinaryMessage
	return s.conn.WriteMessage(websocket.BinaryMessage, encrypted)
}
