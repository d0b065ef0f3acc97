package main

import (
	"context"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"TribalRealms/internal/world/entity"
	"TribalRealms/internal/world/ledger"
)

func villageCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "village <id>",
		Short: "Show a village, with resources settled to now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return err
			}
			return runVillage(cmd, entity.VillageID(id), raw)
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the stored state without settling resources")
	return cmd
}

func runVillage(cmd *cobra.Command, id entity.VillageID, raw bool) error {
	ctx := context.Background()
	world, _, closeFn, err := openWorld(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	v, err := world.Runtime.Get(ctx, id)
	if err != nil {
		return err
	}
	if !raw {
		v = ledger.New(world.Tables).SettleTo(v, entity.Millis(time.Now()))
	}
	return printJSON(cmd.OutOrStdout(), v)
}
