package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"TribalRealms/internal/shared/security"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial err=%v", err)
	}
	return c
}

func waitOnline(t *testing.T, hub *Hub, uid int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Online(uid) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("期望连接注册到 hub")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_按玩家推送(t *testing.T) {
	hub := NewHub(nil)
	s := NewServer(hub, "", 8, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Serve(w, r, 7)
	}))
	defer srv.Close()

	c := dial(t, srv)
	defer c.Close()
	waitOnline(t, hub, 7)

	if n := hub.Send([]int64{7, 8}, "village_conquered", map[string]any{"village_id": 3}); n != 1 {
		t.Fatalf("期望只投递到玩家 7 的 1 条连接，got=%d", n)
	}
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read err=%v", err)
	}
	var body RespBody
	if err := json.Unmarshal(data, &body); err != nil || body.Name != "village_conquered" {
		t.Fatalf("期望收到 village_conquered，got=%s err=%v", data, err)
	}
}

func TestHub_加密推送(t *testing.T) {
	key := "0123456789abcdef"
	hub := NewHub(nil)
	s := NewServer(hub, key, 8, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Serve(w, r, 9)
	}))
	defer srv.Close()

	c := dial(t, srv)
	defer c.Close()
	waitOnline(t, hub, 9)

	hub.Send([]int64{9}, "army_returned", "ok")
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read err=%v", err)
	}
	if mt != websocket.BinaryMessage {
		t.Fatalf("期望密文走二进制帧，got=%d", mt)
	}
	plain, err := security.AesCBCDecrypt(data, []byte(key))
	if err != nil || !strings.Contains(string(plain), "army_returned") {
		t.Fatalf("期望解密得到推送内容，got=%s err=%v", plain, err)
	}
}
