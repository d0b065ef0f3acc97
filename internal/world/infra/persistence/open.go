// Package persistence 按配置选择世界仓储的后端并完成建表/建索引。
package persistence

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"TribalRealms/internal/shared/infrastructure/db"
	sharedmongo "TribalRealms/internal/shared/infrastructure/mongo"
	sharedpg "TribalRealms/internal/shared/infrastructure/postgres"
	sharedsqlite "TribalRealms/internal/shared/infrastructure/sqlite"
	"TribalRealms/internal/shared/serverconfig"
	"TribalRealms/internal/world/app/port"
	"TribalRealms/internal/world/infra/persistence/memory"
	worldmongo "TribalRealms/internal/world/infra/persistence/mongodb"
	worldmysql "TribalRealms/internal/world/infra/persistence/mysql"
	worldpg "TribalRealms/internal/world/infra/persistence/postgres"
	worldsqlite "TribalRealms/internal/world/infra/persistence/sqlite"
)

const (
	DriverMemory   = "memory"
	DriverMySQL    = "mysql"
	DriverMongoDB  = "mongodb"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open 返回仓储和释放底层连接的函数。
func Open(ctx context.Context, cfg serverconfig.Config, l *zap.Logger) (port.WorldRepository, func(), error) {
	if l == nil {
		l = zap.NewNop()
	}
	noop := func() {}

	switch cfg.Storage.Driver {
	case "", DriverMemory:
		l.Warn("world storage is in-memory, state is lost on exit")
		return memory.NewWorldRepository(), noop, nil

	case DriverMySQL:
		gormDB, err := db.Open(cfg.MySQL)
		if err != nil {
			return nil, noop, fmt.Errorf("open mysql: %w", err)
		}
		closeFn := func() {
			if sqlDB, err := gormDB.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		repo := worldmysql.NewWorldRepository(gormDB)
		if err := repo.Migrate(ctx); err != nil {
			closeFn()
			return nil, noop, fmt.Errorf("migrate mysql: %w", err)
		}
		return repo, closeFn, nil

	case DriverMongoDB:
		client, err := sharedmongo.Open(cfg.MongoDB, l)
		if err != nil {
			return nil, noop, fmt.Errorf("open mongodb: %w", err)
		}
		closeFn := func() { _ = client.Disconnect(context.Background()) }
		repo := worldmongo.NewWorldRepository(client.Database(cfg.MongoDB.Database))
		if err := repo.EnsureIndexes(ctx); err != nil {
			closeFn()
			return nil, noop, fmt.Errorf("ensure mongodb indexes: %w", err)
		}
		return repo, closeFn, nil

	case DriverSQLite:
		sqlDB, err := sharedsqlite.Open(cfg.SQLite, l)
		if err != nil {
			return nil, noop, fmt.Errorf("open sqlite: %w", err)
		}
		closeFn := func() { _ = sqlDB.Close() }
		repo := worldsqlite.NewWorldRepository(sqlDB)
		if err := repo.EnsureSchema(ctx); err != nil {
			closeFn()
			return nil, noop, fmt.Errorf("ensure sqlite schema: %w", err)
		}
		return repo, closeFn, nil

	case DriverPostgres:
		pool, err := sharedpg.Open(ctx, cfg.Postgres, l)
		if err != nil {
			return nil, noop, fmt.Errorf("open postgres: %w", err)
		}
		repo := worldpg.NewWorldRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, noop, fmt.Errorf("ensure postgres schema: %w", err)
		}
		return repo, pool.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}
