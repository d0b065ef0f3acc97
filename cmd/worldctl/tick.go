package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	transportgrpc "TribalRealms/internal/shared/transport/grpc"
	"TribalRealms/internal/world/interfaces/handler/rpc"
)

func tickCmd() *cobra.Command {
	var (
		at     string
		remote string
	)
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Advance the world once, locally or through a running engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			var when time.Time
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return err
				}
				when = t
			}
			if remote != "" {
				return runRemoteTick(cmd, remote, when)
			}
			return runTick(cmd, when)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "advance to this RFC3339 time (default now)")
	cmd.Flags().StringVar(&remote, "remote", "", "engine grpc address; empty ticks against storage directly")
	return cmd
}

func runTick(cmd *cobra.Command, at time.Time) error {
	ctx := context.Background()
	world, _, closeFn, err := openWorld(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	if at.IsZero() {
		at = time.Now()
	}
	stats, err := world.Engine.Tick(ctx, at)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), stats)
}

func runRemoteTick(cmd *cobra.Command, addr string, at time.Time) error {
	conn, err := transportgrpc.Dial(addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	out, err := rpc.NewEngineClient(conn).Tick(ctx, at)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}
