package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zph/fleetd/pkg/inventory"
)

var psRefresh bool

var psCmd = &cobra.Command{
	Use:   "ps [HOST] [TYPE] [ID]",
	Short: "List daemons known to the orchestrator",
	Args:  cobra.MaximumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var filter inventory.Filter
		if len(args) > 0 {
			filter.Host = args[0]
		}
		if len(args) > 1 {
			filter.Type = args[1]
		}
		if len(args) > 2 {
			filter.ID = args[2]
		}

		daemons, err := theApp.inventory.GetDaemons(context.Background(), filter, psRefresh, !psRefresh)
		if err != nil {
			return err
		}
		for _, d := range daemons {
			fmt.Printf("%-30s %-10s %-20s %s\n", d.Name(), d.Type, d.Host, d.Version)
		}
		return nil
	},
}

func init() {
	psCmd.Flags().BoolVar(&psRefresh, "refresh", false, "force an unconditional refresh before listing")
	rootCmd.AddCommand(psCmd)
}
