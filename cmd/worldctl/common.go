package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"TribalRealms/internal/shared/logs"
	"TribalRealms/internal/shared/serverconfig"
	"TribalRealms/internal/world/app"
	"TribalRealms/internal/world/infra/persistence"
)

var flags struct {
	config  string
	storage string
}

func loadConfig() (serverconfig.Config, error) {
	if err := serverconfig.Load(flags.config); err != nil {
		return serverconfig.Config{}, err
	}
	cfg := serverconfig.Conf
	if flags.storage != "" {
		cfg.Storage.Driver = flags.storage
	}
	if err := logs.Init("worldctl", cfg.Log); err != nil {
		return serverconfig.Config{}, err
	}
	return cfg, nil
}

// openWorld 按配置打开仓储并组装世界，返回的 close 负责全部释放。
func openWorld(ctx context.Context) (*app.World, serverconfig.Config, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, cfg, nil, err
	}
	if cfg.Storage.Driver == "" || cfg.Storage.Driver == persistence.DriverMemory {
		return nil, cfg, nil, fmt.Errorf("worldctl needs persistent storage, got driver %q", cfg.Storage.Driver)
	}
	repo, closeRepo, err := persistence.Open(ctx, cfg, logs.Logger())
	if err != nil {
		return nil, cfg, nil, err
	}
	world, err := app.Build(ctx, app.Options{
		Config: cfg,
		Repo:   repo,
		Logger: logs.Kit(),
	})
	if err != nil {
		closeRepo()
		return nil, cfg, nil, err
	}
	return world, cfg, func() {
		world.Close()
		closeRepo()
	}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
