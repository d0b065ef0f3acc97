package http

import (
	"context"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"TribalRealms/internal/shared/gameconfig"
	"TribalRealms/internal/world/command"
	"TribalRealms/internal/world/engine"
	"TribalRealms/internal/world/entity"
	"TribalRealms/modules/kit/errx"
)

var now = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type fakeCommander struct {
	calls   int
	player  entity.PlayerID
	village entity.VillageID
	payload command.Payload
	err     error
}

func (f *fakeCommander) IssueCommand(_ context.Context, player entity.PlayerID, villageID entity.VillageID,
	payload command.Payload, at time.Time) (*engine.CommandResult, error) {
	f.calls++
	f.player, f.village, f.payload = player, villageID, payload
	if f.err != nil {
		return nil, f.err
	}
	return &engine.CommandResult{CommandID: "c1", Kind: payload.Kind(), VillageID: villageID, IssuedAt: at}, nil
}

type fakeReader struct {
	villages map[entity.VillageID]*entity.Village
	box      [4]int
	limit    int
}

func (f *fakeReader) Get(_ context.Context, id entity.VillageID) (*entity.Village, error) {
	v, ok := f.villages[id]
	if !ok {
		return nil, entity.ErrNotFound.WithData("village_id", id)
	}
	return v, nil
}

func (f *fakeReader) VillagesInBox(_ context.Context, x0, y0, x1, y1 int) ([]*entity.Village, error) {
	f.box = [4]int{x0, y0, x1, y1}
	return []*entity.Village{f.villages[1]}, nil
}

func (f *fakeReader) ListReports(_ context.Context, _ entity.VillageID, limit int) ([]*entity.BattleReport, error) {
	f.limit = limit
	return nil, nil
}

func fakeAuth(header string) (int64, error) {
	if header == "Bearer good" {
		return 7, nil
	}
	return 0, errors.New("bad token")
}

func newRouter(cmd *fakeCommander, reader *fakeReader) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHttpHandler(Options{
		Commander: cmd,
		Reader:    reader,
		Auth:      fakeAuth,
		Now:       func() time.Time { return now },
	})
	h.RegisterRoutes(r.Group(""))
	return r
}

func do(r *gin.Engine, method, path, token, body string) (*httptest.ResponseRecorder, Response) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var resp Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestIssueCommand_校验通过后下发指令(t *testing.T) {
	cmd := &fakeCommander{}
	r := newRouter(cmd, &fakeReader{})

	w, resp := do(r, nethttp.MethodPost, "/v1/villages/3/commands", "good", `{"kind":"train","unit":"swordsman","count":5}`)
	if w.Code != nethttp.StatusOK || resp.Code != 0 {
		t.Fatalf("期望成功，status=%d body=%s", w.Code, w.Body.String())
	}
	if cmd.player != 7 || cmd.village != 3 {
		t.Fatalf("玩家或村庄不符: player=%d village=%d", cmd.player, cmd.village)
	}
	p, ok := cmd.payload.(command.TrainPayload)
	if !ok || p.Unit != gameconfig.Swordsman || p.Count != 5 {
		t.Fatalf("负载解析不符: %#v", cmd.payload)
	}
}

func TestIssueCommand_出兵负载解析(t *testing.T) {
	cmd := &fakeCommander{}
	r := newRouter(cmd, &fakeReader{})

	body := `{"kind":"dispatch","destination":9,"intent":"attack","units":{"swordsman":10,"nobleman":1}}`
	w, _ := do(r, nethttp.MethodPost, "/v1/villages/3/commands", "good", body)
	if w.Code != nethttp.StatusOK {
		t.Fatalf("期望成功，status=%d body=%s", w.Code, w.Body.String())
	}
	p, ok := cmd.payload.(command.DispatchPayload)
	if !ok || p.Destination != 9 || p.Intent != entity.IntentAttack || p.Units[gameconfig.Nobleman] != 1 || p.Units[gameconfig.Swordsman] != 10 {
		t.Fatalf("出兵负载不符: %#v", cmd.payload)
	}
}

func TestIssueCommand_召回负载解析(t *testing.T) {
	cmd := &fakeCommander{}
	r := newRouter(cmd, &fakeReader{})

	w, _ := do(r, nethttp.MethodPost, "/v1/villages/3/commands", "good", `{"kind":"recall","host":9,"units":{"archer":4}}`)
	if w.Code != nethttp.StatusOK {
		t.Fatalf("期望成功，status=%d body=%s", w.Code, w.Body.String())
	}
	p, ok := cmd.payload.(command.RecallPayload)
	if !ok || p.Host != 9 || p.Units[gameconfig.Archer] != 4 {
		t.Fatalf("召回负载不符: %#v", cmd.payload)
	}
}

func TestIssueCommand_Schema不通过直接拒绝(t *testing.T) {
	cases := []string{
		`{"kind":"train","unit":"swordsman"}`,
		`{"kind":"train","unit":"swordsman","count":0}`,
		`{"kind":"build","building":"wall","extra":1}`,
		`{"kind":"dispatch","destination":2,"intent":"return","units":{"swordsman":1}}`,
		`{"kind":"demolish"}`,
		`{"kind":"recall","units":{"archer":1}}`,
		`{"kind":"recall","host":9,"intent":"attack"}`,
		`not json`,
	}
	for _, body := range cases {
		cmd := &fakeCommander{}
		r := newRouter(cmd, &fakeReader{})
		w, resp := do(r, nethttp.MethodPost, "/v1/villages/3/commands", "good", body)
		if w.Code != nethttp.StatusBadRequest || resp.Reason != string(entity.CodeInvalidCommand) {
			t.Fatalf("body=%s 期望 400 INVALID_COMMAND，status=%d resp=%+v", body, w.Code, resp)
		}
		if cmd.calls != 0 {
			t.Fatalf("body=%s 校验失败不应下发指令", body)
		}
	}
}

func TestIssueCommand_未登录(t *testing.T) {
	cmd := &fakeCommander{}
	r := newRouter(cmd, &fakeReader{})

	w, _ := do(r, nethttp.MethodPost, "/v1/villages/3/commands", "", `{"kind":"build","building":"wall"}`)
	if w.Code != nethttp.StatusUnauthorized {
		t.Fatalf("期望 401，got=%d", w.Code)
	}
	w, _ = do(r, nethttp.MethodPost, "/v1/villages/3/commands", "forged", `{"kind":"build","building":"wall"}`)
	if w.Code != nethttp.StatusUnauthorized || cmd.calls != 0 {
		t.Fatalf("伪造 token 期望 401，got=%d calls=%d", w.Code, cmd.calls)
	}
}

func TestIssueCommand_领域错误映射(t *testing.T) {
	cases := []struct {
		err    error
		status int
		reason string
	}{
		{entity.ErrInsufficientResources, nethttp.StatusUnprocessableEntity, string(entity.CodeInsufficientResources)},
		{entity.ErrNotOwner, nethttp.StatusForbidden, string(entity.CodeNotOwner)},
		{entity.ErrNotFound, nethttp.StatusNotFound, string(entity.CodeNotFound)},
		{errx.ErrRateLimited, nethttp.StatusTooManyRequests, string(errx.CodeRateLimited)},
		{entity.ErrPersistenceUnavailable.WithCause(errors.New("db down")), nethttp.StatusServiceUnavailable, string(entity.CodePersistenceUnavailable)},
	}
	for _, tc := range cases {
		cmd := &fakeCommander{err: tc.err}
		r := newRouter(cmd, &fakeReader{})
		w, resp := do(r, nethttp.MethodPost, "/v1/villages/3/commands", "good", `{"kind":"build","building":"wall"}`)
		if w.Code != tc.status || resp.Reason != tc.reason || resp.Code != tc.status {
			t.Fatalf("err=%v 期望 %d/%s，got status=%d resp=%+v", tc.err, tc.status, tc.reason, w.Code, resp)
		}
	}
}

func TestGetVillage_查询与不存在(t *testing.T) {
	reader := &fakeReader{villages: map[entity.VillageID]*entity.Village{1: {ID: 1, Name: "A"}}}
	r := newRouter(&fakeCommander{}, reader)

	w, resp := do(r, nethttp.MethodGet, "/v1/villages/1", "", "")
	if w.Code != nethttp.StatusOK || resp.Code != 0 {
		t.Fatalf("期望 200，got=%d", w.Code)
	}
	w, _ = do(r, nethttp.MethodGet, "/v1/villages/2", "", "")
	if w.Code != nethttp.StatusNotFound {
		t.Fatalf("期望 404，got=%d", w.Code)
	}
	w, _ = do(r, nethttp.MethodGet, "/v1/villages/abc", "", "")
	if w.Code != nethttp.StatusBadRequest {
		t.Fatalf("期望 400，got=%d", w.Code)
	}
}

func TestListVillages_坐标框(t *testing.T) {
	reader := &fakeReader{villages: map[entity.VillageID]*entity.Village{1: {ID: 1}}}
	r := newRouter(&fakeCommander{}, reader)

	w, _ := do(r, nethttp.MethodGet, "/v1/villages?x0=-5&y0=0&x1=5&y1=10", "", "")
	if w.Code != nethttp.StatusOK || reader.box != [4]int{-5, 0, 5, 10} {
		t.Fatalf("坐标框不符: status=%d box=%v", w.Code, reader.box)
	}
	w, _ = do(r, nethttp.MethodGet, "/v1/villages?x0=0&y0=0&x1=500&y1=1", "", "")
	if w.Code != nethttp.StatusBadRequest {
		t.Fatalf("范围过大期望 400，got=%d", w.Code)
	}
	w, _ = do(r, nethttp.MethodGet, "/v1/villages?x0=0&y0=0", "", "")
	if w.Code != nethttp.StatusBadRequest {
		t.Fatalf("缺参数期望 400，got=%d", w.Code)
	}
}

func TestListReports_limit默认与上限(t *testing.T) {
	reader := &fakeReader{}
	r := newRouter(&fakeCommander{}, reader)

	do(r, nethttp.MethodGet, "/v1/villages/1/reports", "", "")
	if reader.limit != defaultReports {
		t.Fatalf("默认 limit 期望 %d，got=%d", defaultReports, reader.limit)
	}
	do(r, nethttp.MethodGet, "/v1/villages/1/reports?limit=100000", "", "")
	if reader.limit != maxReports {
		t.Fatalf("limit 上限期望 %d，got=%d", maxReports, reader.limit)
	}
}
