package archive

import (
	"context"
	"os"
	"testing"
	"time"

	"TribalRealms/internal/shared/gameconfig"
	"TribalRealms/internal/world/entity"
	"TribalRealms/internal/world/events"
)

var t0 = time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)

func report(id string, att, def entity.VillageID, at time.Time) *entity.BattleReport {
	return &entity.BattleReport{
		ID:              id,
		WorldID:         1,
		AttackerVillage: att,
		AttackerPlayer:  7,
		DefenderVillage: def,
		DefenderPlayer:  8,
		AttackerBefore:  entity.Units{gameconfig.Swordsman: 10},
		Outcome:         entity.OutcomeDefenderHeld,
		OccurredAt:      at,
	}
}

func collect(t *testing.T, dir string, f Filter) []string {
	t.Helper()
	var ids []string
	err := Scan(dir, 1, f, func(r *entity.BattleReport) bool {
		ids = append(ids, r.ID)
		return true
	})
	if err != nil {
		t.Fatalf("scan err=%v", err)
	}
	return ids
}

func TestWriter_按小时滚动并可读回(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, 1, 16, nil)
	if err != nil {
		t.Fatalf("new writer err=%v", err)
	}
	w.Append(report("a", 1, 2, t0))
	w.Append(report("b", 3, 4, t0.Add(10*time.Minute)))
	w.Append(report("c", 1, 5, t0.Add(time.Hour)))
	w.Close()

	files, err := Files(dir, 1)
	if err != nil || len(files) != 2 {
		t.Fatalf("期望两个小时文件，got=%v err=%v", files, err)
	}
	if got := collect(t, dir, Filter{}); len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("期望按写入顺序读回 a b c，got=%v", got)
	}
	if got := collect(t, dir, Filter{VillageID: 1}); len(got) != 2 {
		t.Fatalf("按村庄过滤期望 2 条，got=%v", got)
	}
	if got := collect(t, dir, Filter{PlayerID: 9}); len(got) != 0 {
		t.Fatalf("无关玩家不应匹配，got=%v", got)
	}
}

func TestWriter_重开后追加到同一小时(t *testing.T) {
	dir := t.TempDir()
	for _, id := range []string{"a", "b"} {
		w, err := NewWriter(dir, 1, 4, nil)
		if err != nil {
			t.Fatalf("new writer err=%v", err)
		}
		w.Append(report(id, 1, 2, t0))
		w.Close()
	}
	if got := collect(t, dir, Filter{}); len(got) != 2 {
		t.Fatalf("多个 zstd 帧应连续读出，got=%v", got)
	}
	if _, err := os.Stat(dir + "/" + FileName(1, HourOf(t0))); err != nil {
		t.Fatalf("期望文件 %s 存在: %v", FileName(1, HourOf(t0)), err)
	}
}

func TestWriter_订阅战报事件(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, 1, 4, nil)
	if err != nil {
		t.Fatalf("new writer err=%v", err)
	}
	bus := events.NewBus(nil)
	w.Subscribe(bus)
	bus.Publish(context.Background(),
		events.Event{Kind: events.BattleReportCreated, Payload: report("x", 1, 2, t0)},
		events.Event{Kind: events.QueueCompleted, Payload: events.QueuePayload{Queue: "training"}},
	)
	w.Close()
	w.Close()

	if got := collect(t, dir, Filter{}); len(got) != 1 || got[0] != "x" {
		t.Fatalf("只归档战报，got=%v", got)
	}
}

func TestWriter_关闭后追加直接丢弃(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, 1, 4, nil)
	if err != nil {
		t.Fatalf("new writer err=%v", err)
	}
	bus := events.NewBus(nil)
	w.Subscribe(bus)
	if !w.Append(report("a", 1, 2, t0)) {
		t.Fatalf("关闭前应能入队")
	}
	w.Close()

	if w.Append(report("b", 1, 2, t0)) {
		t.Fatalf("关闭后 Append 应返回 false")
	}
	bus.Publish(context.Background(), events.Event{Kind: events.BattleReportCreated, Payload: report("c", 1, 2, t0)})

	if got := collect(t, dir, Filter{}); len(got) != 1 || got[0] != "a" {
		t.Fatalf("只应归档关闭前的战报，got=%v", got)
	}
}

func TestScan_提前停止(t *testing.T) {
	dir := t.TempDir()
	w, _ := NewWriter(dir, 1, 8, nil)
	for _, id := range []string{"a", "b", "c"} {
		w.Append(report(id, 1, 2, t0))
	}
	w.Close()

	var n int
	_ = Scan(dir, 1, Filter{}, func(*entity.BattleReport) bool {
		n++
		return n < 2
	})
	if n != 2 {
		t.Fatalf("fn 返回 false 后应停止，got=%d", n)
	}
}
