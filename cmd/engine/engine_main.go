package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	nethttp "net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"TribalRealms/internal/shared/logs"
	"TribalRealms/internal/shared/serverconfig"
	transportgrpc "TribalRealms/internal/shared/transport/grpc"
	transporthttp "TribalRealms/internal/shared/transport/http"
	"TribalRealms/internal/shared/transport/ws"
	"TribalRealms/internal/world/app"
	"TribalRealms/internal/world/infra/persistence"
	"TribalRealms/internal/world/interfaces"
)

func main() {
	confPath := flag.String("config", "", "config file, default configs/conf.yml")
	flag.Parse()

	if err := serverconfig.Load(*confPath); err != nil {
		panic(err)
	}
	if err := logs.Init("engine", serverconfig.Conf.Log); err != nil {
		panic(err)
	}
	logs.Info("conf", zap.Any("storage", serverconfig.Conf.Storage), zap.Any("world", serverconfig.Conf.World),
		zap.Any("engine", serverconfig.Conf.Engine))

	if err := run(serverconfig.Conf); err != nil {
		logs.Fatal("服务异常退出", zap.Error(err))
	}
	logs.Info("服务已退出")
}

func run(cfg serverconfig.Config) error {
	baseLogger := logs.Kit()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := persistence.Open(ctx, cfg, logs.Logger())
	if err != nil {
		return err
	}
	defer closeRepo()

	world, err := app.Build(ctx, app.Options{
		Config:     cfg,
		Repo:       repo,
		Registerer: prometheus.DefaultRegisterer,
		Logger:     baseLogger,
	})
	if err != nil {
		return err
	}
	defer world.Close()

	hub := ws.NewHub(baseLogger)
	wsServer := ws.NewServer(hub, cfg.WS.Secret, cfg.WS.SendBuffer, baseLogger)
	module := interfaces.New(world.Engine, world.Tables, hub, wsServer, baseLogger)
	module.Subscribe(world.Bus)

	httpServer := transporthttp.NewHttpServer(cfg.HTTPServer.Addr(), nil, baseLogger)
	module.RegisterHTTP(httpServer.Group())

	grpcServer := transportgrpc.NewServer(baseLogger)
	module.RegisterGRPC(grpcServer)
	lis, err := net.Listen("tcp", cfg.GRPCServer.Addr())
	if err != nil {
		return fmt.Errorf("listen engine grpc failed: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return world.Engine.Run(gctx, cfg.Engine.TickInterval)
	})
	g.Go(func() error {
		logs.Info("engine http server started", zap.String("addr", cfg.HTTPServer.Addr()))
		if err := httpServer.Start(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			return fmt.Errorf("engine http serve failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logs.Info("engine grpc server started", zap.String("addr", cfg.GRPCServer.Addr()))
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("engine grpc serve failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logs.Info("收到退出信号，准备优雅退出")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)

		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			grpcServer.Stop()
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
