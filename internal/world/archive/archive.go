// Package archive 把战报按小时滚动写成 zstd 压缩的 JSONL 文件，供离线查询与对账。
package archive

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"TribalRealms/internal/world/entity"
	"TribalRealms/internal/world/events"
	"TribalRealms/modules/kit/logx"
)

const hourLayout = "2006010215"

// Writer 异步归档战报。Append 不阻塞引擎，队列满时丢弃并告警。
type Writer struct {
	dir     string
	worldID entity.WorldID
	log     logx.Logger

	// mu 保护 closed 与向 queue 的发送，Close 之后 Append 直接返回。
	mu        sync.RWMutex
	closed    bool
	queue     chan *entity.BattleReport
	done      chan struct{}
	closeOnce sync.Once

	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewWriter(dir string, worldID entity.WorldID, buffer int, l logx.Logger) (*Writer, error) {
	if l == nil {
		l = logx.NewZapLogger(nil)
	}
	if buffer <= 0 {
		buffer = 1024
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("archive mkdir %s: %w", dir, err)
	}
	w := &Writer{
		dir:     dir,
		worldID: worldID,
		log:     l,
		queue:   make(chan *entity.BattleReport, buffer),
		done:    make(chan struct{}),
	}
	go w.writerLoop()
	return w, nil
}

// Subscribe 订阅战报事件。
func (w *Writer) Subscribe(bus *events.Bus) {
	bus.On(events.BattleReportCreated, func(ctx context.Context, e events.Event) {
		if r, ok := e.Payload.(*entity.BattleReport); ok {
			w.Append(r)
		}
	})
}

// Append 入队一份战报；Writer 已关闭或队列已满时返回 false。
func (w *Writer) Append(r *entity.BattleReport) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.log.Warn("archive closed, report dropped", zap.String("report_id", r.ID))
		return false
	}
	select {
	case w.queue <- r:
		return true
	default:
		w.log.Warn("archive queue full, report dropped", zap.String("report_id", r.ID))
		return false
	}
}

// Close 写完队列里剩余的战报并关闭当前文件。
func (w *Writer) Close() {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.queue)
		w.mu.Unlock()
		<-w.done
	})
}

func (w *Writer) writerLoop() {
	defer close(w.done)
	for r := range w.queue {
		if err := w.write(r); err != nil {
			logx.ReportSysErrorWithLoggerContext(context.Background(), w.log, logx.NewSysLog("archive.write", err), zap.String("report_id", r.ID))
		}
		// 队列空了再刷盘，批量写入时减少 flush 次数
		if len(w.queue) == 0 && w.w != nil {
			_ = w.w.Flush()
			_ = w.enc.Flush()
		}
	}
	if err := w.closeFile(); err != nil {
		logx.ReportSysErrorWithLoggerContext(context.Background(), w.log, logx.NewSysLog("archive.close", err))
	}
}

func (w *Writer) write(r *entity.BattleReport) error {
	hour := r.OccurredAt.UTC().Format(hourLayout)
	if hour != w.curHour {
		if err := w.rotate(hour); err != nil {
			return err
		}
	}
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

func (w *Writer) rotate(hour string) error {
	if err := w.closeFile(); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f, w.enc, w.w, w.curHour = f, enc, bufio.NewWriterSize(enc, 64*1024), hour
	return nil
}

func (w *Writer) closeFile() error {
	var err error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err = w.enc.Close()
	}
	if w.f != nil {
		_ = w.f.Close()
	}
	w.f, w.enc, w.w, w.curHour = nil, nil, nil, ""
	return err
}

func (w *Writer) path(hour string) string {
	return filepath.Join(w.dir, FileName(w.worldID, hour))
}

// FileName 归档文件名：reports-<world>-<yyyymmddhh>.jsonl.zst
func FileName(worldID entity.WorldID, hour string) string {
	return fmt.Sprintf("reports-%d-%s.jsonl.zst", worldID, hour)
}

// HourOf 返回时间所在归档小时的文件名片段。
func HourOf(t time.Time) string {
	return t.UTC().Format(hourLayout)
}
