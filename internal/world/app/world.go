// Package app 把存储、事件时钟、引擎和订阅者组装成一个可运行的世界。
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"TribalRealms/internal/shared/gameconfig"
	"TribalRealms/internal/shared/serverconfig"
	"TribalRealms/internal/shared/utils"
	"TribalRealms/internal/world/actor"
	"TribalRealms/internal/world/app/port"
	"TribalRealms/internal/world/archive"
	"TribalRealms/internal/world/clock"
	"TribalRealms/internal/world/combat"
	"TribalRealms/internal/world/engine"
	"TribalRealms/internal/world/entity"
	"TribalRealms/internal/world/events"
	"TribalRealms/internal/world/service"
	"TribalRealms/modules/kit/logx"
)

type World struct {
	Meta    *entity.World
	Tables  *gameconfig.Tables
	Clock   *clock.Clock
	Bus     *events.Bus
	Runtime *actor.Runtime
	Engine  *engine.Engine
	Spawner *service.WorldService
	Archive *archive.Writer
}

type Options struct {
	Config serverconfig.Config
	Repo   port.WorldRepository
	// IDs 为空时使用雪花 id。
	IDs utils.IDGenerator
	// Registerer 为空时指标注册到独立 registry。
	Registerer prometheus.Registerer
	Logger     logx.Logger
	Now        time.Time
}

// Build 组装世界：加载数值表、重建坐标索引与事件时钟，并挂好领域事件订阅者。
func Build(ctx context.Context, o Options) (*World, error) {
	cfg := o.Config
	if o.Logger == nil {
		o.Logger = logx.NewZapLogger(nil)
	}
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	tables, err := gameconfig.Load(cfg.World.Tables, cfg.World.Speed)
	if err != nil {
		return nil, err
	}
	if o.IDs == nil {
		sf, err := utils.DefaultSnowflake()
		if err != nil {
			return nil, fmt.Errorf("snowflake: %w", err)
		}
		o.IDs = sf
	}

	worldID := entity.WorldID(cfg.World.ID)
	w := &World{
		Meta:   entity.NewWorld(worldID, cfg.World.Name, o.Now, cfg.World.Seed, tables),
		Tables: tables,
		Clock:  clock.New(),
		Bus:    events.NewBus(o.Logger),
	}
	w.Runtime = actor.NewRuntime(worldID, o.Repo, w.Clock, w.Bus, o.IDs, cfg.Engine.ActorTimeout)
	if err := w.Runtime.Load(ctx); err != nil {
		w.Close()
		return nil, err
	}

	metrics := engine.NewMetrics(o.Registerer)
	metrics.Subscribe(w.Bus)
	if cfg.Archive.Enabled {
		w.Archive, err = archive.NewWriter(cfg.Archive.Dir, worldID, 0, o.Logger)
		if err != nil {
			w.Close()
			return nil, err
		}
		w.Archive.Subscribe(w.Bus)
	}

	w.Engine = engine.New(engine.Deps{
		WorldID:   worldID,
		Store:     w.Runtime,
		Events:    o.Repo,
		Clock:     w.Clock,
		Tables:    tables,
		Resolver:  combat.NewResolver(tables, cfg.Combat, cfg.World.Seed),
		IDs:       o.IDs,
		Metrics:   metrics,
		Logger:    o.Logger,
		Config:    cfg.Engine,
		RateLimit: cfg.RateLimit,
	})
	if err := w.Engine.Start(ctx, o.Now); err != nil {
		w.Close()
		return nil, err
	}
	w.Spawner = service.NewWorldService(w.Runtime, cfg.World.Seed)

	o.Logger.WithContext(ctx).Info("world ready",
		zap.Int64("world_id", int64(worldID)),
		zap.Float64("speed", tables.Speed),
		zap.Int("villages", len(w.Runtime.ListVillageIDs(ctx))),
		zap.Int("events", w.Clock.Len()))
	return w, nil
}

// Close 停止 actor 系统并刷完归档。
func (w *World) Close() {
	if w.Runtime != nil {
		w.Runtime.Shutdown()
	}
	if w.Archive != nil {
		w.Archive.Close()
	}
}
