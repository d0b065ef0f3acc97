package logs

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"TribalRealms/internal/shared/serverconfig"
)

func TestInit_按应用名写文件(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	if err := Init("engine", serverconfig.LogConfig{FileDir: dir, Level: "WARN"}); err != nil {
		t.Fatalf("init err=%v", err)
	}
	defer func() { logger = zap.NewNop() }()

	if level.Level() != zapcore.WarnLevel {
		t.Fatalf("期望 warn 级别，got=%s", level.Level())
	}
	Warn("tick slow")
	_ = Logger().Sync()
	if _, err := os.Stat(filepath.Join(dir, "engine.log")); err != nil {
		t.Fatalf("期望生成 engine.log: %v", err)
	}
}

func TestParseLevel_无法识别时回退info(t *testing.T) {
	if parseLevel("verbose") != zapcore.InfoLevel {
		t.Fatalf("未知级别应回退 info")
	}
	if parseLevel("Debug") != zapcore.DebugLevel {
		t.Fatalf("级别应大小写不敏感")
	}
}
