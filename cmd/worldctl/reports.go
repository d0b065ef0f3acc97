package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"TribalRealms/internal/world/archive"
	"TribalRealms/internal/world/entity"
)

func reportsCmd() *cobra.Command {
	var (
		village int64
		player  int64
		limit   int
		dir     string
	)
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Read archived battle reports (zstd JSONL)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.Archive.Dir
			}
			if dir == "" {
				return fmt.Errorf("archive dir is empty: set archive.dir or --dir")
			}
			filter := archive.Filter{VillageID: entity.VillageID(village), PlayerID: entity.PlayerID(player)}
			out := cmd.OutOrStdout()
			n := 0
			var printErr error
			err = archive.Scan(dir, entity.WorldID(cfg.World.ID), filter, func(r *entity.BattleReport) bool {
				if printErr = printJSON(out, r); printErr != nil {
					return false
				}
				n++
				return limit <= 0 || n < limit
			})
			if err != nil {
				return err
			}
			return printErr
		},
	}
	cmd.Flags().Int64Var(&village, "village", 0, "only reports involving this village")
	cmd.Flags().Int64Var(&player, "player", 0, "only reports involving this player")
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many reports (0 = all)")
	cmd.Flags().StringVar(&dir, "dir", "", "archive dir, default archive.dir from config")
	return cmd
}
