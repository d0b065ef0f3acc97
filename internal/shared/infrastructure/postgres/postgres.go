package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"TribalRealms/internal/shared/serverconfig"
)

// Open 建立 pgx 连接池并 Ping。
func Open(ctx context.Context, cfg serverconfig.PostgresConfig, l *zap.Logger) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is empty")
	}
	if l == nil {
		l = zap.NewNop()
	}
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	l.Info("open postgres success", zap.String("host", pcfg.ConnConfig.Host), zap.String("db", pcfg.ConnConfig.Database))
	return pool, nil
}
