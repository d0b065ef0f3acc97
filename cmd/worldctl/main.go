package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "worldctl",
		Short:        "Operate a TribalRealms world: seed villages, tick, inspect state and reports",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.config, "config", "", "config file, default configs/conf.yml")
	root.PersistentFlags().StringVar(&flags.storage, "storage", "", "override storage.driver")
	root.AddCommand(seedCmd())
	root.AddCommand(tickCmd())
	root.AddCommand(villageCmd())
	root.AddCommand(reportsCmd())
	root.AddCommand(tokenCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
