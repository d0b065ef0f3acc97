package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"TribalRealms/internal/shared/serverconfig"
	"TribalRealms/internal/world/infra/persistence/memory"
	worldsqlite "TribalRealms/internal/world/infra/persistence/sqlite"
)

func TestOpen_按驱动选择仓储(t *testing.T) {
	repo, closeFn, err := Open(context.Background(), serverconfig.Config{}, nil)
	if err != nil {
		t.Fatalf("memory open err=%v", err)
	}
	closeFn()
	if _, ok := repo.(*memory.WorldRepository); !ok {
		t.Fatalf("默认应为内存仓储，got=%T", repo)
	}

	cfg := serverconfig.Config{
		Storage: serverconfig.StorageConfig{Driver: DriverSQLite},
		SQLite:  serverconfig.SQLiteConfig{Path: filepath.Join(t.TempDir(), "w.db")},
	}
	repo, closeFn, err = Open(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("sqlite open err=%v", err)
	}
	defer closeFn()
	if _, ok := repo.(*worldsqlite.WorldRepository); !ok {
		t.Fatalf("期望 sqlite 仓储，got=%T", repo)
	}
	if _, err := repo.LoadEvents(context.Background(), 1); err != nil {
		t.Fatalf("建表后应可查询: %v", err)
	}
}

func TestOpen_未知驱动(t *testing.T) {
	cfg := serverconfig.Config{Storage: serverconfig.StorageConfig{Driver: "redis"}}
	if _, _, err := Open(context.Background(), cfg, nil); err == nil {
		t.Fatalf("未知驱动应报错")
	}
}
