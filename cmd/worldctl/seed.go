package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"TribalRealms/internal/world/entity"
)

func seedCmd() *cobra.Command {
	var (
		players     []int64
		barbarians  int
		villageName string
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Spawn player and barbarian villages on the spawn rings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(players) == 0 && barbarians <= 0 {
				return fmt.Errorf("nothing to seed: pass --player and/or --barbarians")
			}
			return runSeed(cmd, players, barbarians, villageName)
		},
	}
	cmd.Flags().Int64SliceVar(&players, "player", nil, "player id to spawn a village for (repeatable)")
	cmd.Flags().IntVar(&barbarians, "barbarians", 0, "number of barbarian villages to spawn")
	cmd.Flags().StringVar(&villageName, "name", "", "village name for player villages")
	return cmd
}

func runSeed(cmd *cobra.Command, players []int64, barbarians int, name string) error {
	ctx := context.Background()
	world, _, closeFn, err := openWorld(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	out := cmd.OutOrStdout()
	now := time.Now()
	for _, pid := range players {
		v, err := world.Spawner.SpawnVillage(ctx, entity.PlayerID(pid), name, now)
		if err != nil {
			return fmt.Errorf("spawn village for player %d: %w", pid, err)
		}
		fmt.Fprintf(out, "player %d -> village %d at (%d,%d) %s\n", pid, v.ID, v.X, v.Y, v.Terrain)
	}
	for range barbarians {
		v, err := world.Spawner.SpawnVillage(ctx, entity.Barbarian, "", now)
		if err != nil {
			return fmt.Errorf("spawn barbarian village: %w", err)
		}
		fmt.Fprintf(out, "barbarian -> village %d at (%d,%d) %s\n", v.ID, v.X, v.Y, v.Terrain)
	}
	return nil
}
