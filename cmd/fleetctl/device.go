package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var deviceRefresh bool

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Inspect storage devices",
}

var deviceLsCmd = &cobra.Command{
	Use:   "ls [HOST...]",
	Short: "List storage devices across one or more hosts",
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := theApp.inventory.GetDevices(context.Background(), args, deviceRefresh)
		if err != nil {
			return err
		}
		for _, d := range devices {
			fmt.Printf("%-20s %-12d %-6t %-6t\n", d.Path, d.Size, d.Rotational, d.Available)
		}
		return nil
	},
}

func init() {
	deviceLsCmd.Flags().BoolVar(&deviceRefresh, "refresh", false, "force an unconditional refresh before listing")
	deviceCmd.AddCommand(deviceLsCmd)
	rootCmd.AddCommand(deviceCmd)
}
